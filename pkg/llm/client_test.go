package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"doc-organizer-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInsight(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"plain", `{"summary":"Pharmacy receipt","keywords":["Pharmacy","receipt"],"intent":"reimbursement"}`},
		{"fenced", "```json\n{\"summary\":\"Pharmacy receipt\",\"keywords\":[\"pharmacy\",\"receipt\"],\"intent\":\"reimbursement\"}\n```"},
		{"trailing comma", `{"summary":"Pharmacy receipt","keywords":["pharmacy","receipt",],"intent":"reimbursement",}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInsight(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, "Pharmacy receipt", got.Summary)
			assert.Equal(t, []string{"pharmacy", "receipt"}, got.Keywords)
			assert.Equal(t, "reimbursement", got.Intent)
		})
	}
}

func TestParseInsight_Empty(t *testing.T) {
	_, err := ParseInsight("   ")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAnalyzeDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"summary\":\"TV warranty\",\"keywords\":[\"warranty\"],\"intent\":\"repair claim\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient(config.LLMConfig{APIKey: "k", BaseURL: srv.URL, Model: "m", MaxInputChars: 10})
	require.NotNil(t, c)

	insight, err := c.AnalyzeDocument(context.Background(), "tv.pdf", "a very long warranty text")
	require.NoError(t, err)
	assert.Equal(t, "TV warranty", insight.Summary)
	assert.Equal(t, "repair claim", insight.Intent)
}

func TestNewClient_NoKey(t *testing.T) {
	assert.Nil(t, NewClient(config.LLMConfig{}))
}
