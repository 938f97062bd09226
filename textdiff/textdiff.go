// Package textdiff renders aligned insertion/deletion diffs between a
// reference text and a candidate text, segmented by longest-common-subsequence
// opcodes.
package textdiff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Markers annotate inserted and deleted spans in rendered output.
type Markers struct {
	InsertStart string
	InsertEnd   string
	DeleteStart string
	DeleteEnd   string
}

// ANSIMarkers render insertions green and deletions red on a terminal.
func ANSIMarkers() Markers {
	return Markers{
		InsertStart: "\x1b[38;5;16;48;5;2m",
		InsertEnd:   "\x1b[0m",
		DeleteStart: "\x1b[38;5;16;48;5;1m",
		DeleteEnd:   "\x1b[0m",
	}
}

// Render builds a character-aligned diff of candidate against reference.
// Equal spans pass through unchanged, inserted candidate spans and deleted
// reference spans are wrapped in their markers, and replace segments render
// the candidate span first, then the reference span.
func Render(reference, candidate string, m Markers) string {
	a := runes(reference)
	b := runes(candidate)
	matcher := difflib.NewMatcher(a, b)

	var out strings.Builder
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			out.WriteString(strings.Join(a[op.I1:op.I2], ""))
		case 'i':
			out.WriteString(m.InsertStart)
			out.WriteString(strings.Join(b[op.J1:op.J2], ""))
			out.WriteString(m.InsertEnd)
		case 'd':
			out.WriteString(m.DeleteStart)
			out.WriteString(strings.Join(a[op.I1:op.I2], ""))
			out.WriteString(m.DeleteEnd)
		case 'r':
			out.WriteString(m.InsertStart)
			out.WriteString(strings.Join(b[op.J1:op.J2], ""))
			out.WriteString(m.InsertEnd)
			out.WriteString(m.DeleteStart)
			out.WriteString(strings.Join(a[op.I1:op.I2], ""))
			out.WriteString(m.DeleteEnd)
		}
	}
	return out.String()
}

// Aligned holds reference and candidate text paired line by line together
// with the per-line diff.
type Aligned struct {
	Reference string
	Candidate string
	Diff      string
}

// AlignLines pairs reference and candidate line by line, skipping pairs
// where both lines are blank. Lines beyond the shorter text are dropped so
// the three views stay correlated.
func AlignLines(reference, candidate string, m Markers) Aligned {
	refLines := strings.Split(reference, "\n")
	candLines := strings.Split(candidate, "\n")
	n := len(refLines)
	if len(candLines) < n {
		n = len(candLines)
	}

	var ref, cand, diff strings.Builder
	for i := 0; i < n; i++ {
		l1, l2 := refLines[i], candLines[i]
		if l1 == "" && l2 == "" {
			continue
		}
		ref.WriteString(l1)
		ref.WriteString("\n")
		cand.WriteString(l2)
		cand.WriteString("\n")
		diff.WriteString(Render(l1, l2, m))
		diff.WriteString("\n")
	}
	return Aligned{Reference: ref.String(), Candidate: cand.String(), Diff: diff.String()}
}

func runes(s string) []string {
	rs := []rune(s)
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}
