package httpx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/kmoai/kmoai/config"
)

func fastConfig() *config.HTTPConfig {
	return &config.HTTPConfig{
		TimeoutMs:              500,
		Retry:                  2,
		BackoffMinMs:           1,
		BackoffMaxMs:           2,
		MaxConsecutiveFailures: 2,
		CircuitOpenSeconds:     60,
	}
}

func TestDoRetriesServerErrorsAndReplaysBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"q":"x"}`, string(body))
		if calls.Inc() == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewFromConfig(fastConfig())
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL, strings.NewReader(`{"q":"x"}`))
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDoBlocksHostsOutsideAllowlist(t *testing.T) {
	cfg := fastConfig()
	cfg.HostAllowlist = []string{"*.bing.microsoft.com"}
	c := NewFromConfig(cfg)

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/search", nil)
	_, err := c.Do(req)
	assert.ErrorIs(t, err, ErrHostNotAllowed)

	assert.True(t, matchHost("*.bing.microsoft.com", "api.bing.microsoft.com"))
	assert.True(t, matchHost("*.bing.microsoft.com", "bing.microsoft.com"))
	assert.False(t, matchHost("*.bing.microsoft.com", "evilbing.microsoft.com.example"))
}

func TestDoOpensCircuitAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Inc()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewFromConfig(fastConfig())
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		_, err := c.Do(req)
		require.Error(t, err)
	}
	before := calls.Load()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := c.Do(req)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, before, calls.Load())
}
