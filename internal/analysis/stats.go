package analysis

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

var (
	lineEndings    = strings.NewReplacer("\r\n", "\n", "\r", "\n")
	paragraphBreak = regexp.MustCompile(`\n{2,}`)
)

// Stats are the text statistics of one file.
type Stats struct {
	ParagraphCount int
	WordCount      int
	CharCount      int
}

// DecodeText decodes data as UTF-8, replacing invalid sequences with U+FFFD.
func DecodeText(data []byte) string {
	decoded, err := unicode.UTF8.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}
	return string(decoded)
}

// ComputeStats counts the characters, words and paragraphs of text.
//
// A document that is empty after trimming whitespace has no characters, words
// or paragraphs. Otherwise characters are counted over the untrimmed text,
// words are maximal runs of non-whitespace, and paragraphs are the segments
// between runs of two or more line breaks of any convention. A segment holding
// only spaces or tabs still counts as a paragraph.
func ComputeStats(text string) Stats {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Stats{}
	}

	paragraphs := 0
	for _, segment := range paragraphBreak.Split(lineEndings.Replace(trimmed), -1) {
		if segment != "" {
			paragraphs++
		}
	}
	if paragraphs == 0 {
		paragraphs = 1
	}

	return Stats{
		ParagraphCount: paragraphs,
		WordCount:      len(strings.Fields(trimmed)),
		CharCount:      utf8.RuneCountInString(text),
	}
}
