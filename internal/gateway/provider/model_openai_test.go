package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallSendsJSONModeAndReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, "json_object", req.ResponseFormat["type"])
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"score\":0.5}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIChatClient(srv.URL+"/v1/chat/completions", "sk-test", "gpt-4o-mini", time.Second)
	out, err := c.Call(context.Background(), ChatPayload{System: "sys", User: "news", ExpectJSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"score":0.5}`, out)
}

func TestCallRetriesThrottledThenGivesUpOnClientError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIChatClient(srv.URL, "", "m", time.Second)
	_, err := c.Call(context.Background(), ChatPayload{User: "x"})
	var rej *APIError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, http.StatusBadRequest, rej.Status)
	assert.Equal(t, "bad model", rej.Message)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}
