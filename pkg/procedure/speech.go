package procedure

import (
	"strings"
	"unicode/utf8"
)

// minWordBoundary guards against degenerate one-word fragments when
// truncating mid-sentence.
const minWordBoundary = 40

// ShortenForSpeech trims text to at most maxChars characters for audio
// delivery. Whitespace is normalized first. When truncation is needed it
// prefers the first sentence boundary at or before maxChars, then the last
// word boundary past minWordBoundary, and only then a hard cut. Word-boundary
// and hard cuts get an ellipsis appended. Cuts land on rune boundaries, so
// safety notes with degree signs or non-ASCII brand names stay valid UTF-8.
func ShortenForSpeech(text string, maxChars int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	head := string([]rune(text)[:maxChars])
	if i := strings.IndexAny(head, ".!?"); i >= 0 {
		return head[:i+1]
	}
	if i := strings.LastIndex(head, " "); i > 0 && utf8.RuneCountInString(head[:i]) > minWordBoundary {
		return head[:i] + "..."
	}
	return head + "..."
}
