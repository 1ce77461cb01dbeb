package nlu

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/en"
)

// DateRange is an inclusive range of calendar days at UTC midnight. Month is
// set when the range covers a whole calendar month.
type DateRange struct {
	Start time.Time
	End   time.Time
	Month bool
}

func (r DateRange) SingleDay() bool {
	return r.Start.Equal(r.End)
}

const monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var (
	relativeDayPattern   = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|yesterday)\b`)
	relativeSpanPattern  = regexp.MustCompile(`(?i)\b(this|next|last)\s+(week|month)\b`)
	isoDatePattern       = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDatePattern     = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}))?\b`)
	monthDayPattern      = regexp.MustCompile(`(?i)\b` + monthPattern + `\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4})\b)?`)
	monthYearPattern     = regexp.MustCompile(`(?i)\b` + monthPattern + `\.?\s+(\d{4})\b`)
	prepositionalMonth   = regexp.MustCompile(`(?i)\b(?:in|for|during|of|throughout)\s+` + monthPattern + `\b`)
	monthAbbreviationMap = map[string]time.Month{
		"jan": time.January,
		"feb": time.February,
		"mar": time.March,
		"apr": time.April,
		"may": time.May,
		"jun": time.June,
		"jul": time.July,
		"aug": time.August,
		"sep": time.September,
		"oct": time.October,
		"nov": time.November,
		"dec": time.December,
	}
)

type dateMatch struct {
	start int
	end   int
	rng   DateRange
	span  bool
}

type dateExtractor struct {
	flexible *when.Parser
}

func newDateExtractor() *dateExtractor {
	parser := when.New(nil)
	parser.Add(en.All...)
	return &dateExtractor{flexible: parser}
}

// Extract resolves the date phrases in text relative to now's UTC date.
func (d *dateExtractor) Extract(text string, now time.Time) *DateRange {
	today := dayOf(now)
	matches := explicitMatches(text, today)
	if len(matches) == 0 && d.flexible != nil {
		matches = d.flexibleMatches(text, now)
	}
	if len(matches) == 0 {
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	for _, match := range matches {
		if match.span {
			rng := match.rng
			return &rng
		}
	}
	first := matches[0].rng.Start
	if len(matches) == 1 {
		return &DateRange{Start: first, End: first}
	}
	second := matches[1].rng.Start
	if second.Before(first) {
		first, second = second, first
	}
	return &DateRange{Start: first, End: second}
}

func explicitMatches(text string, today time.Time) []dateMatch {
	var matches []dateMatch
	taken := func(start, end int) bool {
		for _, match := range matches {
			if start < match.end && end > match.start {
				return true
			}
		}
		return false
	}

	for _, loc := range relativeSpanPattern.FindAllStringSubmatchIndex(text, -1) {
		which := strings.ToLower(text[loc[2]:loc[3]])
		unit := strings.ToLower(text[loc[4]:loc[5]])
		matches = append(matches, dateMatch{start: loc[0], end: loc[1], rng: relativeSpan(today, which, unit), span: true})
	}
	for _, loc := range relativeDayPattern.FindAllStringSubmatchIndex(text, -1) {
		day := today
		switch strings.ToLower(text[loc[2]:loc[3]]) {
		case "tomorrow":
			day = today.AddDate(0, 0, 1)
		case "yesterday":
			day = today.AddDate(0, 0, -1)
		}
		matches = append(matches, dayMatch(loc[0], loc[1], day))
	}
	for _, loc := range isoDatePattern.FindAllStringSubmatchIndex(text, -1) {
		year, _ := strconv.Atoi(text[loc[2]:loc[3]])
		month, _ := strconv.Atoi(text[loc[4]:loc[5]])
		date, _ := strconv.Atoi(text[loc[6]:loc[7]])
		if day, ok := calendarDay(year, time.Month(month), date); ok && !taken(loc[0], loc[1]) {
			matches = append(matches, dayMatch(loc[0], loc[1], day))
		}
	}
	// Slash dates read month first; a missing year is the current one.
	for _, loc := range slashDatePattern.FindAllStringSubmatchIndex(text, -1) {
		if taken(loc[0], loc[1]) {
			continue
		}
		month, _ := strconv.Atoi(text[loc[2]:loc[3]])
		date, _ := strconv.Atoi(text[loc[4]:loc[5]])
		year := today.Year()
		if loc[6] >= 0 {
			year, _ = strconv.Atoi(text[loc[6]:loc[7]])
		}
		if day, ok := calendarDay(year, time.Month(month), date); ok {
			matches = append(matches, dayMatch(loc[0], loc[1], day))
		}
	}
	for _, loc := range monthDayPattern.FindAllStringSubmatchIndex(text, -1) {
		if taken(loc[0], loc[1]) {
			continue
		}
		month := parseMonth(text[loc[2]:loc[3]])
		date, _ := strconv.Atoi(text[loc[4]:loc[5]])
		year := today.Year()
		if loc[6] >= 0 {
			year, _ = strconv.Atoi(text[loc[6]:loc[7]])
		}
		if day, ok := calendarDay(year, month, date); ok {
			matches = append(matches, dayMatch(loc[0], loc[1], day))
		}
	}
	for _, loc := range monthYearPattern.FindAllStringSubmatchIndex(text, -1) {
		if taken(loc[0], loc[1]) {
			continue
		}
		year, _ := strconv.Atoi(text[loc[4]:loc[5]])
		matches = append(matches, dateMatch{start: loc[0], end: loc[1], rng: monthRange(year, parseMonth(text[loc[2]:loc[3]])), span: true})
	}
	for _, loc := range prepositionalMonth.FindAllStringSubmatchIndex(text, -1) {
		if taken(loc[2], loc[3]) {
			continue
		}
		matches = append(matches, dateMatch{start: loc[2], end: loc[3], rng: monthRange(today.Year(), parseMonth(text[loc[2]:loc[3]])), span: true})
	}
	return matches
}

func (d *dateExtractor) flexibleMatches(text string, now time.Time) []dateMatch {
	var matches []dateMatch
	offset := 0
	remaining := text
	for len(matches) < 2 && strings.TrimSpace(remaining) != "" {
		result, err := d.flexible.Parse(remaining, now.UTC())
		if err != nil || result == nil || result.Text == "" {
			break
		}
		start := offset + result.Index
		end := start + len(result.Text)
		matches = append(matches, dayMatch(start, end, dayOf(result.Time)))
		consumed := result.Index + len(result.Text)
		if consumed >= len(remaining) {
			break
		}
		offset += consumed
		remaining = remaining[consumed:]
	}
	return matches
}

func relativeSpan(today time.Time, which, unit string) DateRange {
	if unit == "month" {
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		switch which {
		case "next":
			first = first.AddDate(0, 1, 0)
		case "last":
			first = first.AddDate(0, -1, 0)
		}
		return monthRange(first.Year(), first.Month())
	}
	offset := (int(today.Weekday()) + 6) % 7
	monday := today.AddDate(0, 0, -offset)
	switch which {
	case "next":
		monday = monday.AddDate(0, 0, 7)
	case "last":
		monday = monday.AddDate(0, 0, -7)
	}
	return DateRange{Start: monday, End: monday.AddDate(0, 0, 6)}
}

func monthRange(year int, month time.Month) DateRange {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return DateRange{Start: first, End: first.AddDate(0, 1, -1), Month: true}
}

func dayMatch(start, end int, day time.Time) dateMatch {
	return dateMatch{start: start, end: end, rng: DateRange{Start: day, End: day}}
}

func calendarDay(year int, month time.Month, date int) (time.Time, bool) {
	if month < time.January || month > time.December || date < 1 {
		return time.Time{}, false
	}
	day := time.Date(year, month, date, 0, 0, 0, 0, time.UTC)
	if day.Month() != month || day.Day() != date {
		return time.Time{}, false
	}
	return day, true
}

func parseMonth(raw string) time.Month {
	key := strings.ToLower(strings.TrimSpace(raw))
	if len(key) > 3 {
		key = key[:3]
	}
	return monthAbbreviationMap[key]
}

func dayOf(value time.Time) time.Time {
	year, month, date := value.UTC().Date()
	return time.Date(year, month, date, 0, 0, 0, 0, time.UTC)
}
