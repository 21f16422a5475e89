package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mindsift/mindsift/internal/errors"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client talks to the OpenAI REST API for embeddings and chat completions
type Client struct {
	apiKey         string
	baseURL        string
	embeddingModel string
	httpClient     *http.Client
}

// NewClient creates an API client. baseURL may be empty to use the
// public endpoint.
func NewClient(apiKey, baseURL, embeddingModel string) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:         apiKey,
		baseURL:        strings.TrimRight(baseURL, "/"),
		embeddingModel: embeddingModel,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedText returns the embedding vector for a single text
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New(errors.CodeInvalidArg, "cannot embed empty text")
	}

	var out embeddingResponse
	err := c.post(ctx, "/embeddings", embeddingRequest{
		Model: c.embeddingModel,
		Input: []string{text},
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, errors.New(errors.CodeExternal, "embedding response contained no data")
	}
	return out.Data[0].Embedding, nil
}

// Message is a single chat turn sent to or received from the model
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// ChatCompletion sends a conversation to the given model and returns
// the assistant reply text.
func (c *Client) ChatCompletion(ctx context.Context, model string, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New(errors.CodeInvalidArg, "chat completion requires at least one message")
	}

	var out chatResponse
	err := c.post(ctx, "/chat/completions", chatRequest{
		Model:    model,
		Messages: messages,
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New(errors.CodeExternal, "chat response contained no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CodeUnavailable, "failed to reach OpenAI API")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.CodeExternal, "failed to parse OpenAI response")
	}
	return nil
}

// apiError maps HTTP status codes onto application error codes.
// 429 and 5xx are retryable, 4xx are caller mistakes.
func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errors.New(errors.CodeTransient, fmt.Sprintf("OpenAI API returned status %d: %s", resp.StatusCode, msg))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.New(errors.CodeExternal, fmt.Sprintf("OpenAI API rejected credentials: %s", msg))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return errors.New(errors.CodeInvalidArg, fmt.Sprintf("OpenAI API rejected request: %s", msg))
	default:
		return errors.New(errors.CodeExternal, fmt.Sprintf("OpenAI API returned status %d: %s", resp.StatusCode, msg))
	}
}
