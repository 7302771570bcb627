// internal/align/align.go
//
// Sequence alignment scoring for the phrase scramble game.
// Responsibilities:
//   - Edit (Levenshtein) distance between two phrases.
//   - Normalized similarity derived from that distance.
//
// Notes:
//   - A position is one Unicode code point (rune). No case folding, no
//     whitespace trimming, no normalization: callers normalize phrases once
//     when they are loaded (see the phrases package).
//   - Invalid UTF-8 bytes decode to U+FFFD and count as one position each.
//   - Everything here is pure and safe for concurrent use.
package align

// Distance returns the minimum number of single code point insertions,
// deletions or substitutions needed to turn a into b.
func Distance(a, b string) int {
	return distance([]rune(a), []rune(b))
}

// Similarity returns 1 - Distance(a, b) / max(len(a), len(b)), in [0, 1].
// Two empty phrases are identical (1.0); exactly one empty phrase scores 0.0.
// The result is 1.0 exactly when a and b decode to the same code points, so
// for valid UTF-8 exactly when a == b. Distinct invalid bytes all decode to
// U+FFFD and compare equal.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	return similarity(ra, rb, distance(ra, rb))
}

func similarity(a, b []rune, d int) float64 {
	switch {
	case len(a) == 0 && len(b) == 0:
		return 1.0
	case len(a) == 0 || len(b) == 0:
		return 0.0
	}
	return 1.0 - float64(d)/float64(max(len(a), len(b)))
}

// distance is the classic dynamic-programming edit distance kept in a single
// rolling row sized by the shorter input.
//
// row[j] holds cell(i, j) after row i is complete; diag carries cell(i-1, j-1)
// while row i is being filled in.
func distance(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			up := row[j]
			if a[i-1] == b[j-1] {
				row[j] = diag
			} else {
				// deletion, insertion, substitution
				row[j] = 1 + min(up, row[j-1], diag)
			}
			diag = up
		}
	}
	return row[len(b)]
}
