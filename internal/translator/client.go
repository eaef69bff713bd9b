package translator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"vntransl/internal/faults"
)

const defaultClientTimeout = 30 * time.Second

// ClientConfig captures the runtime settings required to talk to one
// OpenAI-compatible chat-completion endpoint.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Proxy   string
	Stream  bool
	// StreamSink receives content increments as they arrive when streaming
	// is active, so the user watches the translation being produced.
	// Defaults to stdout.
	StreamSink io.Writer
}

// Message is one chat message on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Sampling carries the generation parameters of one request.
type Sampling struct {
	Temperature      float64
	TopP             float64
	PresencePenalty  float64
	FrequencyPenalty float64
}

// Client wraps one chat-completion endpoint. It performs exactly one request
// per call; bounded retry is the dispatcher's concern.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	// OnDelta, when set and streaming is active, receives each content
	// increment as it arrives.
	OnDelta func(string)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client (used in tests).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a chat client using the supplied configuration.
func NewClient(cfg ClientConfig, opts ...Option) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultClientTimeout
	}
	if cfg.Stream && cfg.StreamSink == nil {
		cfg.StreamSink = os.Stdout
	}

	transport := http.DefaultTransport
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		base, ok := http.DefaultTransport.(*http.Transport)
		if !ok {
			base = &http.Transport{}
		}
		cloned := base.Clone()
		cloned.Proxy = http.ProxyURL(proxyURL)
		transport = cloned
	}

	client := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Streaming reports whether responses are consumed incrementally.
func (c *Client) Streaming() bool { return c.cfg.Stream }

type chatCompletionRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Stream           bool      `json:"stream"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	PresencePenalty  float64   `json:"presence_penalty"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	N                int       `json:"n"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		// Some providers return the streaming schema even when stream=false.
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one chat-completion request and returns the full response
// text. Network failures, timeouts, and non-2xx statuses come back tagged as
// request errors for the dispatcher's retry policy.
func (c *Client) Complete(ctx context.Context, messages []Message, sampling Sampling) (string, error) {
	payload := chatCompletionRequest{
		Model:            c.cfg.Model,
		Messages:         messages,
		Stream:           c.cfg.Stream,
		Temperature:      sampling.Temperature,
		TopP:             sampling.TopP,
		PresencePenalty:  sampling.PresencePenalty,
		FrequencyPenalty: sampling.FrequencyPenalty,
		N:                1,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", faults.Wrap(faults.ErrRequest, "translator", "http", fmt.Sprintf("timeout=%s", c.cfg.Timeout), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", faults.Wrap(faults.ErrRequest, "translator", "http",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	if c.cfg.Stream {
		return c.readStream(resp.Body)
	}
	return c.readComplete(resp.Body)
}

func (c *Client) readComplete(body io.Reader) (string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", faults.Wrap(faults.ErrRequest, "translator", "read body", "", err)
	}
	var completion chatCompletionResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return "", faults.Wrap(faults.ErrRequest, "translator", "decode response", "", err)
	}
	if completion.Error != nil {
		return "", faults.Wrap(faults.ErrRequest, "translator", "api error", completion.Error.Message, nil)
	}
	if len(completion.Choices) == 0 {
		return "", faults.Wrap(faults.ErrRequest, "translator", "decode response", "empty choices", nil)
	}
	choice := completion.Choices[0]
	if choice.Message.Content != "" {
		return choice.Message.Content, nil
	}
	return choice.Delta.Content, nil
}

// readStream consumes a server-sent-event response, concatenating content
// deltas until the finish marker.
func (c *Client) readStream(body io.Reader) (string, error) {
	var out strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var chunk chatCompletionResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", faults.Wrap(faults.ErrRequest, "translator", "decode stream chunk", "", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if delta := choice.Delta.Content; delta != "" {
			out.WriteString(delta)
			if c.cfg.StreamSink != nil {
				fmt.Fprint(c.cfg.StreamSink, delta)
			}
			if c.OnDelta != nil {
				c.OnDelta(delta)
			}
		}
		if choice.FinishReason != "" {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", faults.Wrap(faults.ErrRequest, "translator", "read stream", "", err)
	}
	if out.Len() > 0 && c.cfg.StreamSink != nil {
		fmt.Fprintln(c.cfg.StreamSink)
	}
	return out.String(), nil
}
