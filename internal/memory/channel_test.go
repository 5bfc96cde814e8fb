package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryResolvesKnownRoles(t *testing.T) {
	ch := &recordingChannel{role: ChannelTrader}
	r := NewRegistry(ch)

	assert.Same(t, ch, r.Get(ChannelTrader))
	assert.ElementsMatch(t, []string{ChannelTrader}, r.Names())
}

func TestRegistryFallsBackToNullChannel(t *testing.T) {
	r := NewRegistry()

	ch := r.Get("unconfigured_memory")
	assert.Equal(t, "unconfigured_memory", ch.Name())
	assert.NoError(t, ch.AddSituations(context.Background(), []Lesson{{Situation: "s", Recommendation: "r"}}))
}
