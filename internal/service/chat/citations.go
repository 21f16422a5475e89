package chat

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/mindsift/mindsift/internal/model"
)

// timestampPattern matches [MM:SS] and [HH:MM:SS] references in a reply
var timestampPattern = regexp.MustCompile(`\[(?:(\d{1,2}):)?(\d{1,3}):(\d{2})\]`)

// ParseCitations extracts timestamp references from an assistant reply and
// resolves each against the retrieved chunks. A reference resolves to the
// first ranked chunk whose time range contains it; unresolved references
// are kept with only the timestamp so the caller can still render them.
func ParseCitations(reply string, context []*model.ScoredChunk) []model.Citation {
	matches := timestampPattern.FindAllStringSubmatch(reply, -1)
	if len(matches) == 0 {
		return []model.Citation{}
	}

	citations := make([]model.Citation, 0, len(matches))
	seen := make(map[string]bool)
	for _, m := range matches {
		raw := m[0][1 : len(m[0])-1]
		if seen[raw] {
			continue
		}
		seen[raw] = true

		seconds := parseTimestamp(m)
		citation := model.Citation{
			Timestamp: raw,
			Seconds:   seconds,
		}
		if c := resolve(seconds, context); c != nil {
			citation.VideoID = c.VideoID
			citation.StartTime = c.StartTime
			citation.EndTime = c.EndTime
			citation.Text = c.Text
		}
		citations = append(citations, citation)
	}
	return citations
}

func parseTimestamp(m []string) float64 {
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	total := float64(minutes*60 + seconds)
	if m[1] != "" {
		hours, _ := strconv.Atoi(m[1])
		total += float64(hours * 3600)
	}
	return total
}

// resolve returns the best-ranked chunk whose time range contains seconds
func resolve(seconds float64, context []*model.ScoredChunk) *model.ScoredChunk {
	for _, c := range context {
		if seconds >= c.StartTime && seconds <= c.EndTime {
			return c
		}
	}
	return nil
}

// FormatTimestamp renders seconds as MM:SS, or HH:MM:SS past an hour
func FormatTimestamp(seconds float64) string {
	s := int(seconds)
	if s < 0 {
		s = 0
	}
	if s >= 3600 {
		return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
