package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Snippet picks the sentences of text that mention any of terms, in order,
// until maxLen characters are filled. With no matching sentence it falls back
// to the leading text. The result is cut at a word boundary, or at a rune
// boundary when the text has no spaces near maxLen.
func Snippet(text string, terms []string, maxLen int) string {
	if text == "" || maxLen <= 0 {
		return ""
	}

	lowerTerms := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowerTerms = append(lowerTerms, t)
		}
	}

	var picked []string
	size := 0
	for _, s := range splitSentences(text) {
		ls := strings.ToLower(s)
		for _, t := range lowerTerms {
			if strings.Contains(ls, t) {
				picked = append(picked, s)
				size += len(s) + 1
				break
			}
		}
		if size >= maxLen {
			break
		}
	}

	out := strings.Join(picked, " ")
	if out == "" {
		out = text
	}
	return truncateWords(out, maxLen)
}

// splitSentences splits on '.', '!' or '?' keeping the delimiter.
func splitSentences(text string) []string {
	sentences := make([]string, 0, len(text)/80+1)
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i + 1
		if end < len(text) && !unicode.IsSpace(rune(text[end])) {
			// "3.14", "e.g." mid-token: not a boundary.
			continue
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}
	if start < len(text) {
		if s := strings.TrimSpace(text[start:]); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func truncateWords(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	n := maxLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > maxLen/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + "…"
}
