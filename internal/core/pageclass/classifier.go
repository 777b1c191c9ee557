// Package pageclass decides whether a page's native text layer is usable or
// whether the page is effectively a scanned image that needs OCR.
package pageclass

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Reasons reported in Decision.Reasons.
const (
	ReasonTooShort         = "text_too_short"
	ReasonTooFewWords      = "too_few_words"
	ReasonDigitHeavy       = "digit_heavy"
	ReasonLowLetterDensity = "low_letter_density"
	ReasonExtractionFailed = "extraction_failed"
)

// Metrics describe a page's native text. They only drive the scanned decision.
type Metrics struct {
	TextLength       int
	WordCount        int
	DigitPercentage  float64
	LetterPercentage float64
}

// ComputeMetrics measures the trimmed native text. Percentages are 0 for empty input.
func ComputeMetrics(text string) Metrics {
	text = strings.TrimSpace(text)
	m := Metrics{
		TextLength: utf8.RuneCountInString(text),
		WordCount:  len(strings.Fields(text)),
	}
	if m.TextLength == 0 {
		return m
	}

	var nonSpace, digits, word int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		nonSpace++
		if unicode.IsDigit(r) {
			digits++
		}
		if isWordRune(r) {
			word++
		}
	}
	if nonSpace > 0 {
		m.DigitPercentage = float64(digits) * 100 / float64(nonSpace)
	}
	m.LetterPercentage = float64(word) * 100 / float64(m.TextLength)
	return m
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Policy is a set of thresholds. A zero threshold disables that check.
type Policy struct {
	Name             string
	MinChars         int
	MinWords         int
	MaxDigitPercent  float64
	MinLetterPercent float64
}

// StrictPolicy applies all four heuristics.
func StrictPolicy() Policy {
	return Policy{Name: "strict", MinChars: 50, MinWords: 10, MaxDigitPercent: 80, MinLetterPercent: 20}
}

// InlinePolicy only looks at length; it is what the extraction pipeline uses by default.
func InlinePolicy() Policy {
	return Policy{Name: "inline", MinChars: 100}
}

// Decision is the outcome of classifying one page.
type Decision struct {
	Scanned bool
	Reasons []string
	Metrics Metrics
}

// Classify reports whether text looks like a scanned page.
func (p Policy) Classify(text string) Decision {
	m := ComputeMetrics(text)
	d := Decision{Metrics: m}

	if p.MinChars > 0 && m.TextLength < p.MinChars {
		d.Reasons = append(d.Reasons, ReasonTooShort)
	}
	if p.MinWords > 0 && m.WordCount < p.MinWords {
		d.Reasons = append(d.Reasons, ReasonTooFewWords)
	}
	if p.MaxDigitPercent > 0 && m.DigitPercentage > p.MaxDigitPercent {
		d.Reasons = append(d.Reasons, ReasonDigitHeavy)
	}
	if p.MinLetterPercent > 0 && m.LetterPercentage < p.MinLetterPercent {
		d.Reasons = append(d.Reasons, ReasonLowLetterDensity)
	}
	d.Scanned = len(d.Reasons) > 0
	return d
}

// ClassifyResult is Classify for a native extraction that may have failed.
// A failed extraction is treated as scanned.
func (p Policy) ClassifyResult(text string, err error) Decision {
	if err != nil {
		return Decision{Scanned: true, Reasons: []string{ReasonExtractionFailed}}
	}
	return p.Classify(text)
}

// ByName returns the named built-in policy; unknown names fall back to inline.
func ByName(name string) Policy {
	if strings.EqualFold(name, "strict") {
		return StrictPolicy()
	}
	return InlinePolicy()
}
