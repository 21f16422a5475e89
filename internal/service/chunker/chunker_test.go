package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindsift/mindsift/internal/model"
)

// makeSegments builds n contiguous segments of the given text
func makeSegments(n int, text string, dur float64) []model.TranscriptSegment {
	segments := make([]model.TranscriptSegment, n)
	for i := range segments {
		segments[i] = model.TranscriptSegment{
			Start:    float64(i) * dur,
			Duration: dur,
			Text:     text,
		}
	}
	return segments
}

func TestSplit(t *testing.T) {
	t.Run("empty input yields no chunks", func(t *testing.T) {
		chunks := Split(nil, DefaultOptions())
		assert.Empty(t, chunks)

		chunks = Split([]model.TranscriptSegment{}, DefaultOptions())
		assert.Empty(t, chunks)
	})

	t.Run("short transcript yields single chunk", func(t *testing.T) {
		segments := []model.TranscriptSegment{
			{Start: 0, Duration: 3, Text: "hello there"},
			{Start: 3, Duration: 2, Text: "general kenobi"},
		}

		chunks := Split(segments, DefaultOptions())

		require.Len(t, chunks, 1)
		assert.Equal(t, 0, chunks[0].Index)
		assert.Equal(t, 0.0, chunks[0].StartTime)
		assert.Equal(t, 5.0, chunks[0].EndTime)
		assert.Equal(t, "hello there general kenobi", chunks[0].Text)
	})

	t.Run("closes at sentence end after target size", func(t *testing.T) {
		// 40-char segments: target is crossed at segment 30 (1240 chars),
		// but only the 35th segment ends a sentence.
		plain := strings.Repeat("x", 39)
		segments := make([]model.TranscriptSegment, 40)
		for i := range segments {
			text := plain
			if i == 34 {
				text = strings.Repeat("x", 38) + "."
			}
			segments[i] = model.TranscriptSegment{Start: float64(i) * 2, Duration: 2, Text: text}
		}

		chunks := Split(segments, DefaultOptions())

		require.Len(t, chunks, 2)
		assert.True(t, strings.HasSuffix(chunks[0].Text, "."))
		assert.Equal(t, 70.0, chunks[0].EndTime)
		assert.Equal(t, 70.0, chunks[1].StartTime)
	})

	t.Run("closes at silence gap after target size", func(t *testing.T) {
		// No punctuation anywhere, but a 2-second gap after segment 32.
		segments := make([]model.TranscriptSegment, 40)
		start := 0.0
		for i := range segments {
			segments[i] = model.TranscriptSegment{Start: start, Duration: 2, Text: strings.Repeat("y", 39)}
			start += 2
			if i == 32 {
				start += 2
			}
		}

		chunks := Split(segments, DefaultOptions())

		require.Len(t, chunks, 2)
		assert.Equal(t, 33*40-1, len(chunks[0].Text))
		assert.Equal(t, 66.0, chunks[0].EndTime)
		assert.Equal(t, 68.0, chunks[1].StartTime)
	})

	t.Run("forces boundary at hard max without any break", func(t *testing.T) {
		// 100 contiguous unpunctuated segments of 39 chars each
		segments := makeSegments(100, strings.Repeat("z", 39), 2)

		chunks := Split(segments, DefaultOptions())

		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c.Text), DefaultOptions().HardMax+40)
		}
	})

	t.Run("chunks cover all text in order", func(t *testing.T) {
		segments := make([]model.TranscriptSegment, 200)
		for i := range segments {
			segments[i] = model.TranscriptSegment{
				Start:    float64(i) * 3,
				Duration: 3,
				Text:     fmt.Sprintf("segment %d of the talk.", i),
			}
		}

		chunks := Split(segments, DefaultOptions())

		var joined strings.Builder
		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			if i > 0 {
				assert.GreaterOrEqual(t, c.StartTime, chunks[i-1].EndTime)
				joined.WriteString(" ")
			}
			assert.Less(t, c.StartTime, c.EndTime)
			joined.WriteString(c.Text)
		}

		var want strings.Builder
		for i := range segments {
			if i > 0 {
				want.WriteString(" ")
			}
			want.WriteString(segments[i].Text)
		}
		assert.Equal(t, want.String(), joined.String())
	})

	t.Run("deterministic across runs", func(t *testing.T) {
		segments := make([]model.TranscriptSegment, 150)
		for i := range segments {
			segments[i] = model.TranscriptSegment{
				Start:    float64(i) * 4,
				Duration: 4,
				Text:     fmt.Sprintf("words number %d", i),
			}
		}

		first := Split(segments, DefaultOptions())
		second := Split(segments, DefaultOptions())

		assert.Equal(t, first, second)
	})

	t.Run("collapses whitespace and drops empty segments", func(t *testing.T) {
		segments := []model.TranscriptSegment{
			{Start: 0, Duration: 2, Text: "  hello\n\tworld  "},
			{Start: 2, Duration: 2, Text: "   "},
			{Start: 4, Duration: 2, Text: "again"},
		}

		chunks := Split(segments, DefaultOptions())

		require.Len(t, chunks, 1)
		assert.Equal(t, "hello world again", chunks[0].Text)
	})

	t.Run("zero options fall back to defaults", func(t *testing.T) {
		segments := makeSegments(5, "some text here.", 2)

		chunks := Split(segments, Options{})

		require.Len(t, chunks, 1)
	})
}
