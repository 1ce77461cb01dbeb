package nlu

import (
	"regexp"

	"github.com/dwizi/roster-assist/internal/shifts"
)

type Intent string

const (
	IntentQuery     Intent = "query"
	IntentReplace   Intent = "replace"
	IntentRecommend Intent = "recommend"
	IntentApprove   Intent = "approve"
	IntentUnknown   Intent = "unknown"
)

type keywordRule[T any] struct {
	pattern *regexp.Regexp
	value   T
}

func rule[T any](pattern string, value T) keywordRule[T] {
	return keywordRule[T]{pattern: regexp.MustCompile(`(?i)` + pattern), value: value}
}

// Evaluated in order; the first matching rule wins.
var shiftRules = []keywordRule[shifts.Type]{
	rule(`\bmornings?\b`, shifts.Morning),
	rule(`\bam\s+shifts?\b`, shifts.Morning),
	rule(`\bday\s+shifts?\b`, shifts.Morning),
	rule(`\bafternoons?\b`, shifts.Afternoon),
	rule(`\bevenings?\b`, shifts.Evening),
	rule(`\bpm\s+shifts?\b`, shifts.Evening),
	rule(`\bnights?\b`, shifts.Night),
	rule(`\bovernights?\b`, shifts.Night),
	rule(`\btonight\b`, shifts.Night),
	rule(`\bgraveyard\b`, shifts.Night),
}

// Evaluated in order; the first matching rule wins.
var intentRules = []keywordRule[Intent]{
	rule(`\bwho\s+works\b`, IntentQuery),
	rule(`\bwho\s+is\s+working\b`, IntentQuery),
	rule(`\bwho's\s+working\b`, IntentQuery),
	rule(`\blist\b`, IntentQuery),
	rule(`\bshow\b`, IntentQuery),
	rule(`\bcalled\s+off\b`, IntentReplace),
	rule(`\bcall(?:s|ed)?\s+out\b`, IntentReplace),
	rule(`\breplace\b`, IntentReplace),
	rule(`\breplacement\b`, IntentReplace),
	rule(`\bneed\s+someone\s+else\b`, IntentReplace),
	rule(`\bcover\b`, IntentReplace),
	rule(`\brecommend\b`, IntentRecommend),
	rule(`\bsuggest\b`, IntentRecommend),
	rule(`\bapprove\b`, IntentApprove),
	rule(`\byes\b`, IntentApprove),
	rule(`\bconfirm\b`, IntentApprove),
}

func firstMatch[T any](rules []keywordRule[T], text string) (T, bool) {
	for _, candidate := range rules {
		if candidate.pattern.MatchString(text) {
			return candidate.value, true
		}
	}
	var zero T
	return zero, false
}

// ExtractShift returns the first shift category named in text, or "".
func ExtractShift(text string) shifts.Type {
	value, _ := firstMatch(shiftRules, text)
	return value
}

func ExtractIntent(text string) Intent {
	if value, ok := firstMatch(intentRules, text); ok {
		return value
	}
	return IntentUnknown
}
