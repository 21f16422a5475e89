package search

import (
	"sort"
	"strings"
	"unicode"

	"github.com/mindsift/mindsift/internal/model"
)

// Weights are the lexical boost factors blended on top of vector similarity
type Weights struct {
	// FullQueryMatch is added when the whole query appears in the chunk text
	FullQueryMatch float64
	// TokenOverlap scales the fraction of query tokens found in the chunk
	TokenOverlap float64
	// ProperPair is added when two adjacent query tokens appear together
	ProperPair float64
	// TitleFull is added when the whole query appears in the video title
	TitleFull float64
	// TitlePartial scales the fraction of query tokens found in the title
	TitlePartial float64
}

// DefaultWeights returns the boost factors used in production
func DefaultWeights() Weights {
	return Weights{
		FullQueryMatch: 0.5,
		TokenOverlap:   0.3,
		ProperPair:     0.4,
		TitleFull:      0.3,
		TitlePartial:   0.15,
	}
}

// Rerank blends lexical boosts into each chunk's similarity score, applies
// per-video balancing and trims the list to budget. Results are ordered by
// descending score with ties broken by video ID then chunk index, so the
// same inputs always rank identically.
func Rerank(chunks []*model.ScoredChunk, query string, w Weights, perVideoCap, budget int) []*model.ScoredChunk {
	if len(chunks) == 0 {
		return []*model.ScoredChunk{}
	}
	if perVideoCap <= 0 {
		perVideoCap = 5
	}
	if budget <= 0 {
		budget = 25
	}

	queryLower := strings.ToLower(strings.TrimSpace(query))
	tokens := tokenize(queryLower)

	for _, c := range chunks {
		c.Score = c.Similarity + lexicalBoost(c, queryLower, tokens, w)
	}

	sortByScore(chunks)

	return balance(chunks, perVideoCap, budget)
}

// lexicalBoost computes the boost a chunk earns from exact-text signals
func lexicalBoost(c *model.ScoredChunk, queryLower string, tokens []string, w Weights) float64 {
	textLower := strings.ToLower(c.Text)
	titleLower := strings.ToLower(c.VideoTitle)

	var boost float64

	if queryLower != "" && strings.Contains(textLower, queryLower) {
		boost += w.FullQueryMatch
	}

	if len(tokens) > 0 {
		matched := 0
		for _, tok := range tokens {
			if strings.Contains(textLower, tok) {
				matched++
			}
		}
		boost += w.TokenOverlap * float64(matched) / float64(len(tokens))

		if len(tokens) >= 2 {
			for i := 0; i+1 < len(tokens); i++ {
				if strings.Contains(textLower, tokens[i]+" "+tokens[i+1]) {
					boost += w.ProperPair
					break
				}
			}
		}
	}

	if queryLower != "" && strings.Contains(titleLower, queryLower) {
		boost += w.TitleFull
	} else if len(tokens) > 0 {
		matched := 0
		for _, tok := range tokens {
			if strings.Contains(titleLower, tok) {
				matched++
			}
		}
		boost += w.TitlePartial * float64(matched) / float64(len(tokens))
	}

	return boost
}

// balance selects up to budget chunks in three passes: every video keeps its
// best chunk first, then each video fills up to perVideoCap in score order,
// then any remaining budget is filled ignoring the cap.
func balance(sorted []*model.ScoredChunk, perVideoCap, budget int) []*model.ScoredChunk {
	if len(sorted) <= budget {
		out := make([]*model.ScoredChunk, len(sorted))
		copy(out, sorted)
		return out
	}

	taken := make(map[*model.ScoredChunk]bool, budget)
	perVideo := make(map[string]int)
	out := make([]*model.ScoredChunk, 0, budget)

	take := func(c *model.ScoredChunk) {
		taken[c] = true
		perVideo[c.VideoID]++
		out = append(out, c)
	}

	// Pass 1: floor of one chunk per video so a single strong video cannot
	// crowd every other video out entirely.
	for _, c := range sorted {
		if len(out) >= budget {
			break
		}
		if perVideo[c.VideoID] == 0 {
			take(c)
		}
	}

	// Pass 2: fill per-video up to the cap in global score order
	for _, c := range sorted {
		if len(out) >= budget {
			break
		}
		if !taken[c] && perVideo[c.VideoID] < perVideoCap {
			take(c)
		}
	}

	// Pass 3: spend leftover budget regardless of the cap
	for _, c := range sorted {
		if len(out) >= budget {
			break
		}
		if !taken[c] {
			take(c)
		}
	}

	sortByScore(out)
	return out
}

func sortByScore(chunks []*model.ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		if chunks[i].VideoID != chunks[j].VideoID {
			return chunks[i].VideoID < chunks[j].VideoID
		}
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
}

// tokenize lowercases and splits a query on non-alphanumeric runes
func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
