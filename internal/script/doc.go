// Package script performs static analysis of page payload scripts before they
// are handed to the sandbox.
//
// Two passes are provided:
//   - StripComments: removes // and /* */ comments while tracking quote state
//   - RankCandidates: orders identifiers by how often they receive .push( calls
//
// Neither pass parses JavaScript. Both work on the narrow dialect emitted by the
// site's obfuscator: single-line string literals, no template literals and no
// regular-expression literals containing comment markers.
package script
