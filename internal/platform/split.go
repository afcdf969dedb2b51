package platform

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const truncateLookback = 30

// sentenceEnd matches terminal punctuation (with optional closing quotes or
// brackets) followed by the whitespace that separates it from the next sentence.
var sentenceEnd = regexp.MustCompile(`[.!?…]+["'”’)\]]*(\s+)`)

type sentence struct {
	text string
	sep  string
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func splitSentences(text string) []sentence {
	var out []sentence
	prev := 0
	for _, m := range sentenceEnd.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, sentence{text: text[prev:m[2]], sep: text[m[2]:m[3]]})
		prev = m[3]
	}
	if prev < len(text) {
		out = append(out, sentence{text: text[prev:]})
	}
	return out
}

// SplitThread greedily packs sentences into chunks of at most limit runes.
// With numbering enabled every chunk gets a trailing " n/N" marker and the
// per-chunk budget shrinks by the marker width.
func SplitThread(text string, limit int, numbering bool) []string {
	text = strings.TrimSpace(text)
	if text == "" || limit <= 0 {
		return nil
	}
	if runeLen(text) <= limit {
		return []string{text}
	}
	if !numbering {
		return pack(splitSentences(text), limit)
	}

	overhead := runeLen(" 9/9")
	var chunks []string
	for i := 0; i < 4; i++ {
		budget := limit - overhead
		if budget <= 0 {
			return pack(splitSentences(text), limit)
		}
		chunks = pack(splitSentences(text), budget)
		needed := runeLen(marker(len(chunks), len(chunks)))
		if needed <= overhead {
			break
		}
		overhead = needed
	}

	for i := range chunks {
		chunks[i] += marker(i+1, len(chunks))
	}
	return chunks
}

func marker(n, total int) string {
	return fmt.Sprintf(" %d/%d", n, total)
}

func pack(sentences []sentence, max int) []string {
	var (
		chunks  []string
		cur     strings.Builder
		curLen  int
		pending string
	)

	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, s := range sentences {
		n := runeLen(s.text)
		switch {
		case n > max:
			flush()
			pieces := wrapWords(s.text, max)
			chunks = append(chunks, pieces[:len(pieces)-1]...)
			last := pieces[len(pieces)-1]
			cur.WriteString(last)
			curLen = runeLen(last)
		case curLen == 0:
			cur.WriteString(s.text)
			curLen = n
		case curLen+runeLen(pending)+n <= max:
			cur.WriteString(pending)
			cur.WriteString(s.text)
			curLen += runeLen(pending) + n
		default:
			flush()
			cur.WriteString(s.text)
			curLen = n
		}
		pending = s.sep
	}
	flush()

	return chunks
}

// wrapWords breaks an over-long sentence at the last whitespace that keeps a
// piece within max runes, hard-cutting words that are longer than max.
func wrapWords(text string, max int) []string {
	var pieces []string
	r := []rune(text)

	for len(r) > max {
		cut := -1
		for i := max; i > 0; i-- {
			if unicode.IsSpace(r[i]) {
				cut = i
				break
			}
		}

		var piece []rune
		if cut > 0 {
			piece, r = r[:cut], r[cut:]
		} else {
			piece, r = r[:max], r[max:]
		}

		pieces = append(pieces, strings.TrimRightFunc(string(piece), unicode.IsSpace))
		r = []rune(strings.TrimLeftFunc(string(r), unicode.IsSpace))
	}

	if len(r) > 0 {
		pieces = append(pieces, string(r))
	}
	return pieces
}

// Truncate cuts text to limit runes, backing up to a preceding whitespace
// within a short lookback window so words are not split.
func Truncate(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	if limit <= 0 {
		return ""
	}

	window := truncateLookback
	if half := limit / 2; half < window {
		window = half
	}

	cut := limit
	if !unicode.IsSpace(r[limit]) {
		for i := limit; i > limit-window && i > 0; i-- {
			if unicode.IsSpace(r[i-1]) {
				cut = i - 1
				break
			}
		}
	}

	return strings.TrimRightFunc(string(r[:cut]), unicode.IsSpace)
}
