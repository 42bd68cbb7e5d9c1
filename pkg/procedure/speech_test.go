package procedure

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestShortenForSpeech(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{
			name: "short text unchanged",
			text: "Unplug the dryer.",
			max:  140,
			want: "Unplug the dryer.",
		},
		{
			name: "whitespace normalized",
			text: "Unplug  the\n dryer.",
			max:  140,
			want: "Unplug the dryer.",
		},
		{
			name: "truncates at sentence boundary",
			text: "Unplug the dryer first. Then wait ten minutes for the heating element to cool down before touching any internal part.",
			max:  60,
			want: "Unplug the dryer first.",
		},
		{
			name: "truncates at word boundary with ellipsis",
			text: "disconnect the capacitor leads and discharge them against the metal chassis using an insulated screwdriver",
			max:  60,
			want: "disconnect the capacitor leads and discharge them against...",
		},
		{
			name: "hard cut when no usable boundary",
			text: "supercalifragilisticexpialidocious-compressor-relay-assembly-block",
			max:  20,
			want: "supercalifragilistic...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShortenForSpeech(tt.text, tt.max)
			if got != tt.want {
				t.Errorf("ShortenForSpeech(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
			if len(got) > tt.max+len("...") {
				t.Errorf("result length %d exceeds max %d + ellipsis", len(got), tt.max)
			}
		})
	}
}

func TestShortenForSpeechCutsOnRuneBoundaries(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
	}{
		{
			name: "degree signs in a hard cut",
			text: strings.Repeat("37°C ", 40) + "compressor-inlet-temperature-reading",
			max:  43,
		},
		{
			name: "non-ascii brand name at the cut point",
			text: "Ångström™ control boards overheat when the ventilation grille behind the Ångström™ badge is blocked by lint",
			max:  75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShortenForSpeech(tt.text, tt.max)
			if !utf8.ValidString(got) {
				t.Fatalf("ShortenForSpeech produced invalid UTF-8: %q", got)
			}
			trimmed := strings.TrimSuffix(got, "...")
			if n := utf8.RuneCountInString(trimmed); n > tt.max {
				t.Errorf("kept %d runes, want at most %d", n, tt.max)
			}
		})
	}
}

func TestShortenForSpeechSentenceEndsWithTerminator(t *testing.T) {
	got := ShortenForSpeech("Check the belt! Then rotate the drum by hand to verify it tracks evenly along the rollers.", 40)
	if !strings.HasSuffix(got, "!") {
		t.Errorf("ShortenForSpeech = %q, want sentence terminator suffix", got)
	}
}
