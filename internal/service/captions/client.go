package captions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mindsift/mindsift/internal/errors"
	"github.com/mindsift/mindsift/internal/model"
)

const (
	defaultBaseURL   = "https://www.youtube.com"
	defaultOEmbedURL = "https://www.youtube.com/oembed"
)

// videoIDPattern matches canonical 11-character YouTube video IDs
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Client fetches caption tracks and video metadata from YouTube
type Client struct {
	baseURL    string
	oembedURL  string
	language   string
	httpClient *http.Client
}

// NewClient creates a captions client for the given caption language
func NewClient(language string) *Client {
	return NewClientWithBaseURL(defaultBaseURL, defaultOEmbedURL, language)
}

// NewClientWithBaseURL creates a captions client with custom endpoints (for testing)
func NewClientWithBaseURL(baseURL, oembedURL, language string) *Client {
	if language == "" {
		language = "en"
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		oembedURL: oembedURL,
		language:  language,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// timedtext json3 wire format
type timedTextResponse struct {
	Events []timedTextEvent `json:"events"`
}

type timedTextEvent struct {
	StartMs    int64          `json:"tStartMs"`
	DurationMs int64          `json:"dDurationMs"`
	Segs       []timedTextSeg `json:"segs"`
}

type timedTextSeg struct {
	UTF8 string `json:"utf8"`
}

// FetchTranscript retrieves the caption track for a video as timed segments.
// Segments are returned in start-time order as served by the track.
func (c *Client) FetchTranscript(ctx context.Context, videoID string) ([]model.TranscriptSegment, error) {
	if !videoIDPattern.MatchString(videoID) {
		return nil, errors.New(errors.CodeInvalidArg, fmt.Sprintf("invalid video ID: %q", videoID))
	}

	u, err := url.Parse(c.baseURL + "/api/timedtext")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to build timedtext URL")
	}
	q := u.Query()
	q.Set("v", videoID)
	q.Set("lang", c.language)
	q.Set("fmt", "json3")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create timedtext request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnavailable, "failed to reach caption service")
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "caption service"); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnavailable, "failed to read caption response")
	}

	// YouTube returns 200 with an empty body when no track exists for the language
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("no %s captions available for video %s", c.language, videoID))
	}

	var tt timedTextResponse
	if err := json.Unmarshal(body, &tt); err != nil {
		return nil, errors.Wrap(err, errors.CodeExternal, "failed to parse caption response")
	}

	segments := make([]model.TranscriptSegment, 0, len(tt.Events))
	for _, ev := range tt.Events {
		var sb strings.Builder
		for _, seg := range ev.Segs {
			sb.WriteString(seg.UTF8)
		}
		text := strings.TrimSpace(sb.String())
		if text == "" {
			continue
		}
		segments = append(segments, model.TranscriptSegment{
			Start:    float64(ev.StartMs) / 1000.0,
			Duration: float64(ev.DurationMs) / 1000.0,
			Text:     text,
		})
	}

	if len(segments) == 0 {
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("no %s captions available for video %s", c.language, videoID))
	}

	return segments, nil
}

// VideoMetadata holds the oEmbed fields used when registering a video
type VideoMetadata struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
	AuthorURL  string `json:"author_url"`
}

// FetchMetadata retrieves video title and channel info via the oEmbed endpoint
func (c *Client) FetchMetadata(ctx context.Context, videoID string) (*VideoMetadata, error) {
	if !videoIDPattern.MatchString(videoID) {
		return nil, errors.New(errors.CodeInvalidArg, fmt.Sprintf("invalid video ID: %q", videoID))
	}

	u, err := url.Parse(c.oembedURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to build oembed URL")
	}
	q := u.Query()
	q.Set("url", "https://www.youtube.com/watch?v="+videoID)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create oembed request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnavailable, "failed to reach oembed service")
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "oembed service"); err != nil {
		return nil, err
	}

	var meta VideoMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, errors.Wrap(err, errors.CodeExternal, "failed to parse oembed response")
	}

	return &meta, nil
}

// checkStatus maps HTTP status codes onto application error codes.
// 404 means the video or track does not exist, 429 and 5xx are retryable.
func checkStatus(resp *http.Response, service string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.CodeNotFound, fmt.Sprintf("%s returned not found", service))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errors.New(errors.CodeTransient, fmt.Sprintf("%s returned status %d", service, resp.StatusCode))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
		return errors.New(errors.CodeExternal, fmt.Sprintf("%s returned status %d: %s", service, resp.StatusCode, strings.TrimSpace(string(body))))
	}
}

// ExtractVideoID pulls the 11-character video ID out of common YouTube URL
// forms, or validates a bare ID.
func ExtractVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if videoIDPattern.MatchString(input) {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil || u.Host == "" {
		return "", errors.New(errors.CodeInvalidArg, fmt.Sprintf("invalid video URL or ID: %q", input))
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	var candidate string
	switch host {
	case "youtu.be":
		candidate = strings.Trim(strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)[0], "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			candidate = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			candidate = strings.TrimPrefix(u.Path, "/shorts/")
		case strings.HasPrefix(u.Path, "/embed/"):
			candidate = strings.TrimPrefix(u.Path, "/embed/")
		case strings.HasPrefix(u.Path, "/live/"):
			candidate = strings.TrimPrefix(u.Path, "/live/")
		}
	}

	candidate = strings.Trim(candidate, "/")
	if i := strings.IndexAny(candidate, "?&"); i >= 0 {
		candidate = candidate[:i]
	}
	if !videoIDPattern.MatchString(candidate) {
		return "", errors.New(errors.CodeInvalidArg, fmt.Sprintf("invalid video URL or ID: %q", input))
	}
	return candidate, nil
}
