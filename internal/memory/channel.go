// Package memory delivers pattern lessons into the reasoning service's
// per-role memory channels.
package memory

import "context"

// Memory channel roles. Each maps to one collection in the reasoning service.
const (
	ChannelTrader      = "trader_memory"
	ChannelBull        = "bull_memory"
	ChannelBear        = "bear_memory"
	ChannelRiskManager = "risk_manager_memory"
	ChannelInvestJudge = "invest_judge_memory"
)

// AllChannels lists every known role, in delivery order.
func AllChannels() []string {
	return []string{
		ChannelTrader,
		ChannelBull,
		ChannelBear,
		ChannelRiskManager,
		ChannelInvestJudge,
	}
}

// Lesson is one situation/recommendation pair delivered to a channel.
type Lesson struct {
	Situation      string `json:"situation"`
	Recommendation string `json:"recommendation"`
}

// Channel is one memory destination. Implementations must be safe for
// concurrent use.
type Channel interface {
	// Name returns the channel role identifier.
	Name() string
	// AddSituations delivers a batch of lessons. A failure affects only
	// this channel; callers continue with the remaining channels.
	AddSituations(ctx context.Context, lessons []Lesson) error
}

// Registry resolves channel roles to their transports. Unknown roles
// resolve to a null channel so delivery loops never nil-check.
type Registry struct {
	channels map[string]Channel
}

// NewRegistry builds a registry over the given channels.
func NewRegistry(channels ...Channel) *Registry {
	r := &Registry{channels: make(map[string]Channel, len(channels))}
	for _, ch := range channels {
		r.channels[ch.Name()] = ch
	}
	return r
}

// Get returns the channel for a role, or a null channel when unknown.
func (r *Registry) Get(role string) Channel {
	if ch, ok := r.channels[role]; ok {
		return ch
	}
	return NullChannel{Role: role}
}

// Names returns the registered role names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}

// NullChannel accepts and discards lessons. Used when the reasoning
// service is unavailable or a role is not configured.
type NullChannel struct {
	Role string
}

func (n NullChannel) Name() string { return n.Role }

func (n NullChannel) AddSituations(ctx context.Context, lessons []Lesson) error {
	return nil
}
