/*
Package extractor turns a chapter's obfuscated payload script into the ordered
list of page image URLs.

The payload pushes into many arrays; only one of them ends up holding the real
image list. Extract strips comments from the payload, ranks the variables that
receive .push( calls by how often they do, runs the bootstrap and the payload
once in a pooled sandbox runtime, then probes the candidates in rank order with
an indirect Array.isArray. The first array found is returned.

Ranking by push count is a heuristic. A decoy pushed to as often as the real
list, or more often, can win.

Errors:
  - ErrScriptNotFound: empty payload
  - ErrNoImagesFound: no candidates, or none of them is an array
  - *SandboxError: the bootstrap, payload or a probe failed or ran out of budget
*/
package extractor
