package script

import (
	"regexp"
	"sort"
)

var pushCall = regexp.MustCompile(`(\w+)\s*\.\s*push\s*\(`)

// Candidate is an identifier that receives appended elements in a script
type Candidate struct {
	Name  string
	Count int
}

// RankCandidates collects every identifier used as the receiver of a .push(
// call and orders them by descending call count. Ties keep the order in which
// the identifiers were first seen.
//
// The most appended-to array is usually the one holding the page images, but
// that is a heuristic: a decoy with as many appends can outrank it.
func RankCandidates(stripped string) []Candidate {
	matches := pushCall.FindAllStringSubmatch(stripped, -1)
	if len(matches) == 0 {
		return nil
	}

	index := make(map[string]int, len(matches))
	candidates := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if i, ok := index[name]; ok {
			candidates[i].Count++
			continue
		}
		index[name] = len(candidates)
		candidates = append(candidates, Candidate{Name: name, Count: 1})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Count > candidates[j].Count
	})
	return candidates
}

// Names returns the candidate identifiers in ranked order
func Names(candidates []Candidate) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return names
}
