package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankCandidates(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   []Candidate
	}{
		{
			name:   "no push calls",
			source: "var a = [1, 2, 3]; a.concat([4]);",
			want:   nil,
		},
		{
			name:   "frequency beats position",
			source: `a.push(1); b.push("x"); b.push("y"); b.push("z");`,
			want:   []Candidate{{Name: "b", Count: 3}, {Name: "a", Count: 1}},
		},
		{
			name:   "ties keep first-seen order",
			source: "z.push(1); y.push(1); x.push(1); y.push(2); z.push(2);",
			want:   []Candidate{{Name: "z", Count: 2}, {Name: "y", Count: 2}, {Name: "x", Count: 1}},
		},
		{
			name:   "whitespace around dot and paren",
			source: "_0xabc . push ( 1 );\n_0xabc\t.push\n(2);",
			want:   []Candidate{{Name: "_0xabc", Count: 2}},
		},
		{
			name:   "bracket access is not counted",
			source: "q['push'](1); q.push(2);",
			want:   []Candidate{{Name: "q", Count: 1}},
		},
		{
			name:   "member receiver counts its last segment",
			source: "obj.list.push(1);",
			want:   []Candidate{{Name: "list", Count: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RankCandidates(tt.source))
		})
	}
}

func TestRankCandidatesDeterministic(t *testing.T) {
	source := "c.push(1); a.push(1); b.push(1); a.push(2); c.push(3); d.push(4);"

	first := RankCandidates(source)
	require.Len(t, first, 4)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, RankCandidates(source))
	}
	assert.Equal(t, []string{"c", "a", "b", "d"}, Names(first))
}
