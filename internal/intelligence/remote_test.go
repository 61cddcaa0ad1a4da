package intelligence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/redactd/internal/breaker"
)

func TestRemoteGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("posts request and decodes response", func(t *testing.T) {
		var gotAuth, gotContentType string
		var gotReq Request
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotContentType = r.Header.Get("Content-Type")
			_ = json.NewDecoder(r.Body).Decode(&gotReq)
			json.NewEncoder(w).Encode(Response{
				Intelligence:     map[string]any{"summary": "two people"},
				Confidence:       0.9,
				IntelligenceType: "llm",
			})
		}))
		defer srv.Close()

		gen := NewRemoteGenerator(srv.URL, "sekret")
		resp, err := gen.Generate(ctx, &Request{
			SessionID: "s1",
			Text:      "[PERSON_001] met [PERSON_002]",
			Relationships: map[string]map[string]string{
				"PERSON_001": {"EMAIL_001": "has_email"},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, "Bearer sekret", gotAuth)
		assert.Equal(t, "application/json", gotContentType)
		assert.Equal(t, "s1", gotReq.SessionID)
		assert.Equal(t, "[PERSON_001] met [PERSON_002]", gotReq.Text)
		assert.Equal(t, "has_email", gotReq.Relationships["PERSON_001"]["EMAIL_001"])

		assert.Equal(t, "llm", resp.IntelligenceType)
		assert.Equal(t, 0.9, resp.Confidence)
		assert.Equal(t, "two people", resp.Intelligence["summary"])
	})

	t.Run("no api key sends no authorization header", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(Response{Confidence: 0.5})
		}))
		defer srv.Close()

		gen := NewRemoteGenerator(srv.URL, "")
		resp, err := gen.Generate(ctx, &Request{SessionID: "s1", Text: "[PERSON_001]"})
		require.NoError(t, err)
		assert.Empty(t, gotAuth)

		// Missing fields get usable defaults.
		assert.Equal(t, "external", resp.IntelligenceType)
		assert.NotNil(t, resp.Intelligence)
	})

	t.Run("non-200 status is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		gen := NewRemoteGenerator(srv.URL, "")
		_, err := gen.Generate(ctx, &Request{SessionID: "s1", Text: "[PERSON_001]"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("malformed body is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer srv.Close()

		gen := NewRemoteGenerator(srv.URL, "")
		_, err := gen.Generate(ctx, &Request{SessionID: "s1", Text: "[PERSON_001]"})
		assert.Error(t, err)
	})

	t.Run("canceled context aborts the call", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		gen := NewRemoteGenerator(srv.URL, "")
		_, err := gen.Generate(canceled, &Request{SessionID: "s1", Text: "[PERSON_001]"})
		assert.Error(t, err)
	})
}

// TestBridge_RemoteGenerator exercises the remote generator behind the
// bridge, covering the timeout and breaker path an external endpoint rides.
func TestBridge_RemoteGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("remote success flows through", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(Response{
				Intelligence:     map[string]any{"summary": "ok"},
				Confidence:       0.8,
				IntelligenceType: "llm",
			})
		}))
		defer srv.Close()

		b := NewBridge(nil, NewRemoteGenerator(srv.URL, ""), nil, nil)
		resp := b.GenerateIntelligence(ctx, &Request{SessionID: "s1", Text: "[PERSON_001]"})
		require.NotNil(t, resp)
		assert.Equal(t, "llm", resp.IntelligenceType)
		assert.Equal(t, 0.8, resp.Confidence)
	})

	t.Run("slow endpoint trips the timeout then the breaker", func(t *testing.T) {
		var requests atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			select {
			case <-time.After(5 * time.Second):
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()

		registry := breaker.NewRegistry(&breaker.Config{
			FailureThreshold: 2,
			ResetTimeout:     time.Hour,
		})
		b := NewBridge(&Config{Timeout: 20 * time.Millisecond}, NewRemoteGenerator(srv.URL, ""), registry, nil)

		req := &Request{SessionID: "s1", Text: "[PERSON_001]"}
		for i := 0; i < 2; i++ {
			resp := b.GenerateIntelligence(ctx, req)
			assert.Equal(t, "fallback", resp.IntelligenceType)
		}
		assert.Equal(t, breaker.StateOpen, registry.Get(BreakerName).Status().State)

		// The open circuit no longer reaches the endpoint.
		resp := b.GenerateIntelligence(ctx, req)
		assert.Equal(t, "fallback", resp.IntelligenceType)
		assert.EqualValues(t, 2, requests.Load())
	})
}
