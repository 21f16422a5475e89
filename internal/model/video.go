package model

// Channel represents YouTube channel information
type Channel struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	URL  string `json:"url" db:"url"`
}

// Video represents YouTube video information and its ingestion state
type Video struct {
	ID               string  `json:"id" db:"id"`
	ChannelID        string  `json:"channel_id" db:"channel_id"`
	Title            string  `json:"title" db:"title"`
	URL              string  `json:"url" db:"url"`
	Duration         float64 `json:"duration" db:"duration"` // duration in seconds
	TranscriptCached bool    `json:"transcript_cached" db:"transcript_cached"`
	ChunksProcessed  bool    `json:"chunks_processed" db:"chunks_processed"`
}

// TranscriptSegment is a single timestamped caption line as returned by the
// captions provider. Segments are transient: they feed the chunker and are
// never persisted as-is.
type TranscriptSegment struct {
	Start    float64 `json:"start"`    // start time in seconds
	Duration float64 `json:"duration"` // duration in seconds
	Text     string  `json:"text"`
}

// End returns the segment end time in seconds
func (s TranscriptSegment) End() float64 {
	return s.Start + s.Duration
}
