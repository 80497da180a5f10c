package filter

import (
	"strings"
)

// Whisper reliably produces these on silence or noise. Matched against
// whitespace-stripped text.
var knownHallucinations = []string{
	"Thank you.",
	".",
	"You.",
	"Thanks for watching.",
	"Thanks for listening.",
	"Subscribe.",
	"Like and subscribe.",
	"Please subscribe.",
	"Thank you for watching.",
	"What is the name?",
	"I'm going to go to the next one.",
	"I'm going to go ahead and get some more.",
	"I'm going to put a little bit of water on the top.",
	"ご視聴ありがとうございました",
	"お願いします",
	"ありがとうございます",
	"字幕は自動生成されています",
}

// cjkRanges are the Unicode blocks whose presence marks a transcript as a
// wrong-script hallucination when the deployment does not expect them.
var cjkRanges = [][2]rune{
	{0x4E00, 0x9FFF}, // CJK Unified Ideographs
	{0x3040, 0x309F}, // Hiragana
	{0x30A0, 0x30FF}, // Katakana
	{0xFF65, 0xFF9F}, // Halfwidth Katakana
	{0x3000, 0x303F}, // CJK Symbols and Punctuation
	{0xFF00, 0xFFEF}, // Fullwidth Forms
}

// Config contains transcript filter configuration.
type Config struct {
	// RejectCJK discards any transcript containing CJK-range characters.
	// This is a policy knob, not a language restriction: the upstream model
	// hallucinates CJK boilerplate on silence.
	RejectCJK bool

	// ExtraDenylist extends the built-in hallucination list.
	ExtraDenylist []string
}

// Filter decides whether a transcript should be suppressed.
type Filter struct {
	denylist  map[string]struct{}
	rejectCJK bool
}

// New creates a transcript filter.
func New(config Config) *Filter {
	denylist := make(map[string]struct{}, len(knownHallucinations)+len(config.ExtraDenylist))
	for _, phrase := range knownHallucinations {
		denylist[phrase] = struct{}{}
	}
	for _, phrase := range config.ExtraDenylist {
		denylist[phrase] = struct{}{}
	}

	return &Filter{
		denylist:  denylist,
		rejectCJK: config.RejectCJK,
	}
}

// IsHallucination reports whether the transcript should be discarded. Empty
// text is always a hallucination.
func (f *Filter) IsHallucination(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}

	if _, known := f.denylist[strings.TrimSpace(text)]; known {
		return true
	}

	if f.rejectCJK && ContainsCJK(text) {
		return true
	}

	return false
}

// ContainsCJK reports whether any character falls into a CJK Unicode range.
func ContainsCJK(text string) bool {
	for _, r := range text {
		for _, span := range cjkRanges {
			if r >= span[0] && r <= span[1] {
				return true
			}
		}
	}
	return false
}
