package amounts

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// contextRadius is how many characters around a value count as its context
const contextRadius = 50

// formatValue renders v in its shortest decimal form: 1200, 12.5, 0.1.
// v must be finite.
func formatValue(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// findValue locates the first occurrence of v in text that is a whole number
// on its own: 200 does not match inside 1200 or 1,200, and 12 matches 12.00
// but not 12.50. Digit-grouped spellings such as 4,000 and 1,00,000 are also
// found. It returns the byte span of the match.
func findValue(text string, v float64) (start, end int, ok bool) {
	for _, s := range renderings(formatValue(v)) {
		if start, end, ok = findRendering(text, s); ok {
			return start, end, true
		}
	}
	return -1, -1, false
}

func findRendering(text, s string) (start, end int, ok bool) {
	hasPoint := strings.Contains(s, ".")

	for from := 0; from < len(text); {
		i := strings.Index(text[from:], s)
		if i < 0 {
			break
		}
		start = from + i
		if boundedBefore(text, start) {
			if end, ok = boundedAfter(text, start+len(s), hasPoint); ok {
				return start, end, true
			}
		}
		from = start + 1
	}
	return -1, -1, false
}

// renderings returns s followed by its thousands-grouped and lakh-grouped
// spellings when they differ
func renderings(s string) []string {
	whole, frac, hasFrac := strings.Cut(s, ".")
	if len(whole) <= 3 {
		return []string{s}
	}
	suffix := ""
	if hasFrac {
		suffix = "." + frac
	}

	out := []string{s, groupDigits(whole, 3, 3) + suffix}
	if lakh := groupDigits(whole, 3, 2) + suffix; lakh != out[1] {
		out = append(out, lakh)
	}
	return out
}

// groupDigits inserts commas into digits: first after the lowest group of
// size first, then every rest digits
func groupDigits(digits string, first, rest int) string {
	if len(digits) <= first {
		return digits
	}
	head, tail := digits[:len(digits)-first], digits[len(digits)-first:]
	var groups []string
	for len(head) > rest {
		groups = append([]string{head[len(head)-rest:]}, groups...)
		head = head[:len(head)-rest]
	}
	groups = append([]string{head}, groups...)
	return strings.Join(append(groups, tail), ",")
}

func boundedBefore(text string, start int) bool {
	if start == 0 {
		return true
	}
	c := text[start-1]
	if isDigit(c) {
		return false
	}
	if (c == '.' || c == ',') && start >= 2 && isDigit(text[start-2]) {
		return false
	}
	return true
}

func boundedAfter(text string, end int, hasPoint bool) (int, bool) {
	i := end
	if !hasPoint && i+1 < len(text) && text[i] == '.' && isDigit(text[i+1]) {
		i++
	}
	// inside a fraction only trailing zeros may follow
	if hasPoint || i > end {
		for i < len(text) && text[i] == '0' {
			i++
		}
	}
	if i < len(text) {
		c := text[i]
		if isDigit(c) {
			return 0, false
		}
		if (c == ',' || c == '.') && i+1 < len(text) && isDigit(text[i+1]) {
			return 0, false
		}
	}
	return i, true
}

// wordMatches returns the spans of re in text that are not part of a longer
// word. Only letters extend a word, so "Total" matches in "Total1200".
func wordMatches(re *regexp.Regexp, text string) [][]int {
	var spans [][]int
	for _, m := range re.FindAllStringIndex(text, -1) {
		if m[0] > 0 {
			if r, _ := utf8.DecodeLastRuneInString(text[:m[0]]); unicode.IsLetter(r) {
				continue
			}
		}
		if m[1] < len(text) {
			if r, _ := utf8.DecodeRuneInString(text[m[1]:]); unicode.IsLetter(r) {
				continue
			}
		}
		spans = append(spans, m)
	}
	return spans
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// window returns text[start:end] widened by radius characters on each side
// and trimmed.
func window(text string, start, end, radius int) string {
	return strings.TrimSpace(text[backRunes(text, start, radius):forwardRunes(text, end, radius)])
}

// preceding returns up to radius characters of text before start
func preceding(text string, start, radius int) string {
	return text[backRunes(text, start, radius):start]
}

func backRunes(text string, pos, n int) int {
	for ; n > 0 && pos > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(text[:pos])
		pos -= size
	}
	return pos
}

func forwardRunes(text string, pos, n int) int {
	for ; n > 0 && pos < len(text); n-- {
		_, size := utf8.DecodeRuneInString(text[pos:])
		pos += size
	}
	return pos
}
