package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"newstrader/internal/logger"
	"newstrader/internal/types"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultTimeout   = 20 * time.Second
	defaultRetries   = 2
	maxRetryWait     = 8 * time.Second
	retryBaseBackoff = 800 * time.Millisecond
)

// APIError is a non-2xx answer from the completion endpoint.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat completion status=%d: %s", e.Status, e.Message)
}

// OpenAIChatClient calls /chat/completions, retrying 429 and 5xx answers.
type OpenAIChatClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int

	http *resty.Client
}

func NewOpenAIChatClient(baseURL, apiKey, model string, timeout time.Duration) *OpenAIChatClient {
	c := &OpenAIChatClient{BaseURL: baseURL, APIKey: apiKey, Model: model, Timeout: timeout}
	c.init()
	return c
}

func (c *OpenAIChatClient) init() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultRetries
	}
	c.http = resty.New().
		SetBaseURL(endpointBase(c.BaseURL)).
		SetTimeout(c.Timeout).
		SetHeader("Content-Type", "application/json")
	if c.APIKey != "" {
		c.http.SetAuthToken(c.APIKey)
	}
}

func (c *OpenAIChatClient) ID() string { return "openai:" + c.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIChatClient) Call(ctx context.Context, payload ChatPayload) (string, error) {
	if c.http == nil {
		c.init()
	}
	body := chatRequest{Model: c.Model, Temperature: 0.2, MaxTokens: payload.MaxTokens}
	if payload.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: payload.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: payload.User})
	if payload.ExpectJSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		var out chatResponse
		var apiErr chatError
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&out).
			SetError(&apiErr).
			Post("/chat/completions")
		if err != nil {
			return "", &types.NetworkError{Op: "chat completion", Err: err}
		}
		if resp.IsSuccess() {
			if len(out.Choices) == 0 {
				return "", fmt.Errorf("chat completion: empty choices")
			}
			return out.Choices[0].Message.Content, nil
		}
		msg := strings.TrimSpace(apiErr.Error.Message)
		if msg == "" {
			msg = resp.Status()
		}
		lastErr = &APIError{Status: resp.StatusCode(), Message: msg}
		if !retryable(resp.StatusCode()) || attempt == c.MaxRetries {
			break
		}
		wait := retryAfter(resp.Header().Get("Retry-After"), attempt)
		logger.Debugf("chat completion status=%d, retry in %s", resp.StatusCode(), wait)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

func endpointBase(raw string) string {
	url := strings.TrimRight(strings.TrimSpace(raw), "/")
	if url == "" {
		url = defaultBaseURL
	}
	return strings.TrimSuffix(url, "/chat/completions")
}

func retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryAfter(header string, attempt int) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	wait := retryBaseBackoff << attempt
	if wait > maxRetryWait {
		wait = maxRetryWait
	}
	return wait
}
