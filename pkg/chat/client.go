package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/gpchat/pkg/session"
)

// Request is one outbound chat-completions call: the full accumulated
// conversation, oldest first.
type Request struct {
	Model       string
	Temperature float64
	Messages    []session.Message
}

// Completer performs one synchronous exchange with a chat-completions API.
type Completer interface {
	Complete(ctx context.Context, req Request) (session.Message, error)
}

// Client calls an OpenAI-compatible chat-completions endpoint over HTTP.
//
// Messages are marshaled and parsed as raw JSON rather than through an SDK's
// typed structs so that provider-specific fields on assistant replies survive
// the round trip untouched.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient builds a client for the given API base URL (e.g.
// "https://api.openai.com/v1") and bearer token. The underlying HTTP call is
// blocking with no timeout; cancellation comes from the caller's context.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type completionBody struct {
	Model       string            `json:"model"`
	Temperature float64           `json:"temperature"`
	Messages    []session.Message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message session.Message `json:"message"`
	} `json:"choices"`
}

// Complete posts the conversation and returns the first choice's message
// verbatim, extra fields included.
func (c *Client) Complete(ctx context.Context, req Request) (session.Message, error) {
	body, err := json.Marshal(completionBody{
		Model:       req.Model,
		Temperature: req.Temperature,
		Messages:    req.Messages,
	})
	if err != nil {
		return session.Message{}, &APIError{Message: "encode request body", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return session.Message{}, &APIError{Message: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return session.Message{}, &APIError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return session.Message{}, &APIError{
			StatusCode: resp.StatusCode,
			Message:    bodySnippet(resp.Body),
		}
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return session.Message{}, &APIError{
			StatusCode: resp.StatusCode,
			Message:    "decode response body",
			Err:        err,
		}
	}
	if len(parsed.Choices) == 0 {
		return session.Message{}, &APIError{
			StatusCode: resp.StatusCode,
			Message:    "response contains no choices",
		}
	}

	log.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Dur("elapsed", time.Since(start)).
		Msg("Chat completion received")

	return parsed.Choices[0].Message, nil
}

// bodySnippet reads up to 1 KiB of an error response for diagnostics.
func bodySnippet(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 1024))
	if err != nil || len(data) == 0 {
		return "no response body"
	}
	return string(data)
}
