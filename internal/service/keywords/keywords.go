package keywords

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultMax is the number of keywords stored per chunk
const DefaultMax = 10

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "has": {}, "his": {}, "him": {},
	"how": {}, "its": {}, "may": {}, "she": {}, "who": {}, "will": {},
	"with": {}, "this": {}, "that": {}, "they": {}, "them": {}, "then": {},
	"than": {}, "there": {}, "their": {}, "these": {}, "those": {},
	"have": {}, "from": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "were": {}, "been": {}, "being": {}, "would": {},
	"could": {}, "should": {}, "about": {}, "into": {}, "just": {},
	"like": {}, "more": {}, "some": {}, "very": {}, "your": {},
	"really": {}, "going": {}, "gonna": {}, "because": {}, "here": {},
	"also": {}, "only": {}, "over": {}, "such": {}, "most": {},
	"other": {}, "after": {}, "before": {}, "while": {}, "doing": {},
	"does": {}, "don't": {}, "it's": {}, "i'm": {}, "we're": {},
	"you're": {}, "that's": {}, "thing": {}, "things": {}, "want": {},
	"know": {}, "think": {}, "actually": {}, "right": {}, "kind": {},
	"lot": {}, "get": {}, "got": {}, "let": {}, "say": {}, "said": {},
	"see": {}, "way": {}, "well": {}, "now": {}, "yeah": {}, "okay": {},
}

// Extract returns up to max keywords from text, ordered by descending
// frequency with ties broken by first occurrence. Words shorter than
// three characters and stopwords are skipped. Output is deterministic.
func Extract(text string, max int) []string {
	if max <= 0 {
		max = DefaultMax
	}

	type entry struct {
		word  string
		count int
		first int
	}

	counts := make(map[string]*entry)
	order := make([]*entry, 0)

	pos := 0
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		word := strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
		})
		if len(word) < 3 {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		if e, ok := counts[word]; ok {
			e.count++
		} else {
			e := &entry{word: word, count: 1, first: pos}
			counts[word] = e
			order = append(order, e)
		}
		pos++
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].first < order[j].first
	})

	if len(order) > max {
		order = order[:max]
	}
	result := make([]string, len(order))
	for i, e := range order {
		result[i] = e.word
	}
	return result
}
