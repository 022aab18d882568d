package compare

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	// lines in a replaced block are paired only when their similarity reaches this ratio
	pairCutoff = 0.75
	// replaced blocks larger than this are dumped without intra-line hints
	maxPairings = 10000
)

// Diff renders a line diff of expected against actual in the classic differ
// layout: "  " common, "- " expected only, "+ " actual only and "? " hint
// lines marking intra-line changes between similar lines.
func Diff(expected, actual string) []string {
	a := splitLines(expected)
	b := splitLines(actual)

	var out []string
	m := difflib.NewMatcher(a, b)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'r':
			out = fancyReplace(out, a, op.I1, op.I2, b, op.J1, op.J2)
		case 'd':
			out = dump(out, "-", a, op.I1, op.I2)
		case 'i':
			out = dump(out, "+", b, op.J1, op.J2)
		case 'e':
			out = dump(out, " ", a, op.I1, op.I2)
		}
	}
	return out
}

// CloseMatch returns the candidate most similar to name, provided its
// similarity ratio is at least cutoff.
func CloseMatch(name string, candidates []string, cutoff float64) (string, bool) {
	type scored struct {
		name  string
		ratio float64
	}

	target := chars(name)
	var matches []scored
	for _, candidate := range candidates {
		m := difflib.NewMatcher(chars(candidate), target)
		if m.RealQuickRatio() < cutoff || m.QuickRatio() < cutoff {
			continue
		}
		if r := m.Ratio(); r >= cutoff {
			matches = append(matches, scored{name: candidate, ratio: r})
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].ratio != matches[j].ratio {
			return matches[i].ratio > matches[j].ratio
		}
		return matches[i].name > matches[j].name
	})
	return matches[0].name, true
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func dump(out []string, tag string, lines []string, lo, hi int) []string {
	for i := lo; i < hi; i++ {
		out = append(out, tag+" "+lines[i])
	}
	return out
}

func plainReplace(out []string, a []string, alo, ahi int, b []string, blo, bhi int) []string {
	if bhi-blo < ahi-alo {
		out = dump(out, "+", b, blo, bhi)
		return dump(out, "-", a, alo, ahi)
	}
	out = dump(out, "-", a, alo, ahi)
	return dump(out, "+", b, blo, bhi)
}

// fancyReplace pairs up the most similar lines of a replaced block and
// annotates them, recursing on the blocks before and after the pair.
func fancyReplace(out []string, a []string, alo, ahi int, b []string, blo, bhi int) []string {
	if (ahi-alo)*(bhi-blo) > maxPairings {
		return plainReplace(out, a, alo, ahi, b, blo, bhi)
	}

	bestRatio := pairCutoff - 0.01
	besti, bestj := -1, -1
	eqi, eqj := -1, -1

	for j := blo; j < bhi; j++ {
		bj := chars(b[j])
		for i := alo; i < ahi; i++ {
			if a[i] == b[j] {
				if eqi < 0 {
					eqi, eqj = i, j
				}
				continue
			}
			m := difflib.NewMatcher(chars(a[i]), bj)
			if m.RealQuickRatio() > bestRatio && m.QuickRatio() > bestRatio {
				if r := m.Ratio(); r > bestRatio {
					bestRatio, besti, bestj = r, i, j
				}
			}
		}
	}

	if bestRatio < pairCutoff {
		if eqi < 0 {
			return plainReplace(out, a, alo, ahi, b, blo, bhi)
		}
		besti, bestj = eqi, eqj
	} else {
		eqi = -1
	}

	out = fancyHelper(out, a, alo, besti, b, blo, bestj)
	if eqi >= 0 {
		out = append(out, "  "+a[besti])
	} else {
		out = hintPair(out, a[besti], b[bestj])
	}
	return fancyHelper(out, a, besti+1, ahi, b, bestj+1, bhi)
}

func fancyHelper(out []string, a []string, alo, ahi int, b []string, blo, bhi int) []string {
	switch {
	case alo < ahi && blo < bhi:
		return fancyReplace(out, a, alo, ahi, b, blo, bhi)
	case alo < ahi:
		return dump(out, "-", a, alo, ahi)
	case blo < bhi:
		return dump(out, "+", b, blo, bhi)
	}
	return out
}

func hintPair(out []string, aline, bline string) []string {
	ca, cb := chars(aline), chars(bline)
	var atags, btags strings.Builder
	m := difflib.NewMatcher(ca, cb)
	for _, op := range m.GetOpCodes() {
		la, lb := op.I2-op.I1, op.J2-op.J1
		switch op.Tag {
		case 'r':
			atags.WriteString(strings.Repeat("^", la))
			btags.WriteString(strings.Repeat("^", lb))
		case 'd':
			atags.WriteString(strings.Repeat("-", la))
		case 'i':
			btags.WriteString(strings.Repeat("+", lb))
		case 'e':
			atags.WriteString(strings.Repeat(" ", la))
			btags.WriteString(strings.Repeat(" ", lb))
		}
	}

	out = append(out, "- "+aline)
	if tags := keepTabs(ca, atags.String()); tags != "" {
		out = append(out, "? "+tags)
	}
	out = append(out, "+ "+bline)
	if tags := keepTabs(cb, btags.String()); tags != "" {
		out = append(out, "? "+tags)
	}
	return out
}

// keepTabs keeps hint markers aligned under tabs and drops trailing blanks
func keepTabs(line []string, tags string) string {
	marks := []rune(tags)
	for i := range marks {
		if marks[i] == ' ' && i < len(line) && line[i] == "\t" {
			marks[i] = '\t'
		}
	}
	return strings.TrimRight(string(marks), " \t")
}
