package nlu

import (
	"regexp"
	"sort"
	"strings"
)

var capitalizedSpan = regexp.MustCompile(`\b[A-Z][A-Za-z'’\-]*(?:\s+[A-Z][A-Za-z'’\-]*)*`)

var nonNameWords = buildWordSet(
	"who", "what", "when", "where", "which", "why", "how", "is", "are", "was", "were",
	"can", "could", "would", "should", "will", "do", "does", "did", "please", "find",
	"list", "show", "tell", "give", "get", "i", "i'm", "we", "us", "our", "my", "the",
	"a", "an", "and", "or", "yes", "no", "ok", "okay", "hi", "hello", "hey", "thanks",
	"approve", "approved", "confirm", "recommend", "suggest", "replace", "need", "someone",
	"anyone", "everyone", "today", "tonight", "tomorrow", "yesterday", "this", "next",
	"last", "week", "month", "shift", "shifts", "schedule", "policy", "am", "pm",
	"morning", "mornings", "afternoon", "afternoons", "evening", "evenings", "night",
	"nights", "overnight", "overnights", "graveyard",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"mon", "tue", "tues", "wed", "thu", "thur", "thurs", "fri", "sat", "sun",
	"january", "february", "march", "april", "may", "june", "july", "august",
	"september", "october", "november", "december",
	"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
)

func buildWordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}

// personCandidates returns capitalised spans that look like person names,
// with question words, calendar words and possessives removed.
func personCandidates(text string) []string {
	var candidates []string
	for _, span := range capitalizedSpan.FindAllString(text, -1) {
		var kept []string
		for _, word := range strings.Fields(span) {
			word = strings.TrimSuffix(strings.TrimSuffix(word, "'s"), "’s")
			word = strings.Trim(word, "'’-")
			if word == "" {
				continue
			}
			if _, skip := nonNameWords[strings.ToLower(word)]; skip {
				if len(kept) > 0 {
					candidates = append(candidates, strings.Join(kept, " "))
					kept = nil
				}
				continue
			}
			kept = append(kept, word)
		}
		if len(kept) > 0 {
			candidates = append(candidates, strings.Join(kept, " "))
		}
	}
	filtered := candidates[:0]
	for _, candidate := range candidates {
		if len(candidate) >= 3 {
			filtered = append(filtered, candidate)
		}
	}
	return filtered
}

// MatchNames resolves the people mentioned in text against the directory.
// A capitalised span matches a directory name when either contains the other,
// ignoring case. Directory names found verbatim in text always match.
func MatchNames(text string, directory []string) []string {
	found := map[string]struct{}{}
	lowered := make([]string, len(directory))
	for i, name := range directory {
		lowered[i] = strings.ToLower(strings.TrimSpace(name))
	}

	for _, candidate := range personCandidates(text) {
		needle := strings.ToLower(candidate)
		for i, name := range lowered {
			if name == "" {
				continue
			}
			if strings.Contains(name, needle) || strings.Contains(needle, name) {
				found[directory[i]] = struct{}{}
			}
		}
	}

	haystack := strings.ToLower(text)
	for i, name := range lowered {
		if name != "" && strings.Contains(haystack, name) {
			found[directory[i]] = struct{}{}
		}
	}

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
