package script

import (
	"strings"
	"unicode"
)

const (
	lineComment  = "//"
	blockOpen    = "/*"
	blockClose   = "*/"
	blankMarker  = "\n"
	maxBlankRun  = "\n\n"
	overBlankRun = "\n\n\n"
)

// StripOptions tunes the comment stripper
type StripOptions struct {
	// HonorEscapes makes a backslash inside a string literal escape the next
	// character, so \" and \' no longer close the literal. Off by default to
	// match how the site's scripts have always been cleaned.
	HonorEscapes bool
}

// StripComments removes line and block comments from source. Comment markers
// inside single or double quoted literals are left alone. Escaped quotes are
// not special-cased; see StripCommentsWith.
func StripComments(source string) string {
	return StripCommentsWith(source, StripOptions{})
}

// StripCommentsWith is StripComments with explicit options
func StripCommentsWith(source string, opts StripOptions) string {
	text := stripBlockComments(source, opts)
	text = stripLineComments(text, opts)

	for strings.Contains(text, overBlankRun) {
		text = strings.ReplaceAll(text, overBlankRun, maxBlankRun)
	}
	return strings.TrimLeft(text, "\n")
}

// quoteState tracks whether the scanner sits inside a string literal.
// A newline always closes both kinds of literal.
type quoteState struct {
	double  bool
	single  bool
	escapes bool
	escaped bool
}

func (q *quoteState) step(c byte) {
	if c == '\n' {
		*q = quoteState{escapes: q.escapes}
		return
	}
	if q.escaped {
		q.escaped = false
		return
	}

	switch c {
	case '\\':
		if q.escapes && q.inside() {
			q.escaped = true
		}
	case '"':
		if !q.single {
			q.double = !q.double
		}
	case '\'':
		if !q.double {
			q.single = !q.single
		}
	}
}

func (q *quoteState) inside() bool {
	return q.double || q.single
}

// indexSet returns every offset at which marker occurs in s, overlaps included
func indexSet(s, marker string) map[int]struct{} {
	set := make(map[int]struct{})
	for from := 0; ; {
		i := strings.Index(s[from:], marker)
		if i < 0 {
			return set
		}
		set[from+i] = struct{}{}
		from += i + 1
	}
}

func stripBlockComments(source string, opts StripOptions) string {
	opens := indexSet(source, blockOpen)
	if len(opens) == 0 {
		return source
	}
	closes := indexSet(source, blockClose)

	var out strings.Builder
	out.Grow(len(source))

	quotes := quoteState{escapes: opts.HonorEscapes}
	inComment := false
	record := 0
	open := 0

	for i := 0; i < len(source); i++ {
		if !inComment {
			quotes.step(source[i])
		} else if source[i] == '\n' {
			quotes.step('\n')
		}

		_, isOpen := opens[i]
		_, isClose := closes[i]

		// A marker may not reuse a slash or star of the marker before it:
		// "/*/" opens without closing and "*/*" closes without reopening.
		switch {
		case isOpen && !inComment && i >= record && !quotes.inside():
			out.WriteString(source[record:i])
			inComment = true
			open = i
		case isClose && inComment && i >= open+len(blockOpen):
			record = i + len(blockClose)
			inComment = false
		case i == len(source)-1 && !inComment:
			out.WriteString(source[record:])
		}
	}
	return out.String()
}

func stripLineComments(text string, opts StripOptions) string {
	lines := strings.Split(text, "\n")
	for n, line := range lines {
		if strings.Contains(line, lineComment) {
			line = truncateLineComment(line, opts)
		}
		if isBlank(line) {
			line = blankMarker
		}
		lines[n] = line
	}
	return strings.Join(lines, "\n")
}

func truncateLineComment(line string, opts StripOptions) string {
	markers := indexSet(line, lineComment)
	quotes := quoteState{escapes: opts.HonorEscapes}

	for i := 0; i < len(line); i++ {
		quotes.step(line[i])
		if _, ok := markers[i]; ok && !quotes.inside() {
			return line[:i]
		}
	}
	return line
}

func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
