package analysis

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Stats
	}{
		{"empty", "", Stats{}},
		{"whitespace only", "   ", Stats{}},
		{"newlines only", "\n\r\n\t\n", Stats{}},
		{"single char", "a", Stats{ParagraphCount: 1, WordCount: 1, CharCount: 1}},
		{"two paragraphs", "a\n\nb", Stats{ParagraphCount: 2, WordCount: 2, CharCount: 4}},
		{"hello goodbye", "Hello world.\n\nGoodbye world.", Stats{ParagraphCount: 2, WordCount: 4, CharCount: 28}},
		{"single line break", "a\nb", Stats{ParagraphCount: 1, WordCount: 2, CharCount: 3}},
		{"crlf single break", "a\r\nb", Stats{ParagraphCount: 1, WordCount: 2, CharCount: 4}},
		{"crlf paragraphs", "a\r\n\r\nb", Stats{ParagraphCount: 2, WordCount: 2, CharCount: 6}},
		{"cr paragraphs", "a\r\rb\r\r\rc", Stats{ParagraphCount: 3, WordCount: 3, CharCount: 8}},
		{"surrounding breaks", "\n\nfirst words\n\n\n\nsecond\n\n", Stats{ParagraphCount: 2, WordCount: 3, CharCount: 25}},
		{"tabs separate words", "one\ttwo  three", Stats{ParagraphCount: 1, WordCount: 3, CharCount: 14}},
		{"multibyte", "héllo wörld", Stats{ParagraphCount: 1, WordCount: 2, CharCount: 11}},
		{"blank line with spaces", "a\n \nb", Stats{ParagraphCount: 1, WordCount: 2, CharCount: 5}},
		{"whitespace paragraph", "a\n\n \n\nb", Stats{ParagraphCount: 3, WordCount: 2, CharCount: 7}},
		{"spaces between breaks", "a\n\n   \n\nb", Stats{ParagraphCount: 3, WordCount: 2, CharCount: 9}},
		{"tab between breaks", "a\n\n\t\n\nb", Stats{ParagraphCount: 3, WordCount: 2, CharCount: 7}},
		{"crlf around spaces", "a\r\n\r\n  \r\n\r\nb", Stats{ParagraphCount: 3, WordCount: 2, CharCount: 12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeStats(tt.text))
		})
	}
}

func TestComputeStatsProperties(t *testing.T) {
	alphabet := []rune{'a', 'b', 'é', '字', ' ', '\t', '\n', '\r', '.'}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		runes := make([]rune, rng.Intn(40))
		for j := range runes {
			runes[j] = alphabet[rng.Intn(len(alphabet))]
		}
		text := string(runes)

		stats := ComputeStats(text)
		assert.Equal(t, stats, ComputeStats(text), "not deterministic for %q", text)

		if strings.TrimSpace(text) == "" {
			assert.Equal(t, Stats{}, stats, "blank text %q", text)
			continue
		}

		assert.Equal(t, utf8.RuneCountInString(text), stats.CharCount, "chars of %q", text)
		assert.GreaterOrEqual(t, stats.ParagraphCount, 1, "paragraphs of %q", text)
		assert.LessOrEqual(t, stats.ParagraphCount, stats.CharCount, "paragraphs of %q", text)
		if !strings.Contains(lineEndings.Replace(text), "\n\n") {
			assert.Equal(t, 1, stats.ParagraphCount, "paragraphs of %q", text)
		}
		assert.LessOrEqual(t, stats.WordCount, stats.CharCount, "words of %q", text)
	}
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"valid", []byte("héllo"), "héllo"},
		{"empty", nil, ""},
		{"invalid byte", []byte{'a', 0xff, 'b'}, "a\uFFFDb"},
		{"truncated sequence", []byte{'a', 0xc3}, "a\uFFFD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeText(tt.data)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}

	assert.Equal(t, 3, ComputeStats(DecodeText([]byte{'a', 0xff, 'b'})).CharCount)
}
