package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/config"
)

func memoryConfig(url string) *config.MemoryConfig {
	return &config.MemoryConfig{
		ServiceURL:            url,
		ServiceKey:            "test-key",
		Channels:              []string{ChannelTrader},
		RequestTimeoutSeconds: 5,
		RetryAttempts:         0,
		RequestsPerSecond:     100,
	}
}

func TestHTTPChannelDeliversLessons(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody addSituationsRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channels := NewHTTPChannels(memoryConfig(server.URL), quietLogger())
	require.Len(t, channels, 1)

	err := channels[0].AddSituations(context.Background(), []Lesson{
		{Situation: "s", Recommendation: "r"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/memory/trader_memory/situations", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, ChannelTrader, gotBody.Collection)
	require.Len(t, gotBody.Lessons, 1)
	assert.Equal(t, "s", gotBody.Lessons[0].Situation)
}

func TestHTTPChannelOmitsAuthWithoutKey(t *testing.T) {
	var sawAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization") != ""
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := memoryConfig(server.URL)
	cfg.ServiceKey = ""
	channels := NewHTTPChannels(cfg, quietLogger())

	err := channels[0].AddSituations(context.Background(), []Lesson{{Situation: "s", Recommendation: "r"}})
	require.NoError(t, err)
	assert.False(t, sawAuth)
}

func TestHTTPChannelReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	channels := NewHTTPChannels(memoryConfig(server.URL), quietLogger())

	err := channels[0].AddSituations(context.Background(), []Lesson{{Situation: "s", Recommendation: "r"}})
	assert.Error(t, err)
}
