package chunker

import (
	"strings"

	"github.com/mindsift/mindsift/internal/model"
)

// Options controls chunk boundary selection
type Options struct {
	// TargetSize is the character count after which a chunk may close at
	// the next natural boundary.
	TargetSize int
	// HardMax is the character count at which a chunk closes regardless
	// of boundaries.
	HardMax int
	// GapSeconds is the silence between segments treated as a topic break.
	GapSeconds float64
}

// DefaultOptions returns the chunking parameters used for ingestion
func DefaultOptions() Options {
	return Options{
		TargetSize: 1200,
		HardMax:    2000,
		GapSeconds: 0.5,
	}
}

// Chunk is a contiguous run of transcript text with its time range
type Chunk struct {
	Index     int
	StartTime float64
	EndTime   float64
	Text      string
}

// Split groups timed transcript segments into chunks. Boundaries prefer
// sentence-ending punctuation or a silence gap once TargetSize characters
// have accumulated, and are forced at HardMax. The same input always
// produces the same chunks.
func Split(segments []model.TranscriptSegment, opts Options) []Chunk {
	if opts.TargetSize <= 0 {
		opts.TargetSize = DefaultOptions().TargetSize
	}
	if opts.HardMax < opts.TargetSize {
		opts.HardMax = DefaultOptions().HardMax
	}
	if opts.GapSeconds <= 0 {
		opts.GapSeconds = DefaultOptions().GapSeconds
	}

	chunks := make([]Chunk, 0)
	var (
		sb        strings.Builder
		startTime float64
		endTime   float64
		open      bool
	)

	flush := func() {
		text := strings.TrimSpace(sb.String())
		if text != "" {
			chunks = append(chunks, Chunk{
				Index:     len(chunks),
				StartTime: startTime,
				EndTime:   endTime,
				Text:      text,
			})
		}
		sb.Reset()
		open = false
	}

	for i, seg := range segments {
		text := normalizeWhitespace(seg.Text)
		if text == "" {
			continue
		}

		if !open {
			startTime = seg.Start
			open = true
		} else {
			sb.WriteString(" ")
		}
		sb.WriteString(text)
		endTime = seg.End()

		if sb.Len() < opts.TargetSize {
			continue
		}

		// Past the target: close at a sentence end, a silence gap before
		// the next segment, or unconditionally at the hard maximum.
		atSentence := endsSentence(text)
		atGap := i+1 < len(segments) && segments[i+1].Start-seg.End() >= opts.GapSeconds
		if atSentence || atGap || sb.Len() >= opts.HardMax {
			flush()
		}
	}
	flush()

	return chunks
}

// normalizeWhitespace collapses all whitespace runs to single spaces
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var sentenceEnders = []string{".", "!", "?", "。", "！", "？"}

func endsSentence(s string) bool {
	s = strings.TrimRight(s, `"')]`+"”’")
	for _, e := range sentenceEnders {
		if strings.HasSuffix(s, e) {
			return true
		}
	}
	return false
}
