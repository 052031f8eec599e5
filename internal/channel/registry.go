// Package channel connects operator messaging integrations to the case
// lifecycle: case events are announced to every channel, and operators can
// look cases up and move them along from the channel.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/soyeahso/hotline/internal/logging"
)

// Channel is an operator messaging integration.
type Channel interface {
	ID() string

	// Start connects and blocks until ctx is cancelled or the connection
	// ends.
	Start(ctx context.Context) error

	// Stop disconnects.
	Stop(ctx context.Context) error

	// Announce posts text to the channel's operator rooms.
	Announce(ctx context.Context, text string) error

	// OnCommand installs the handler for operator commands.
	OnCommand(handler CommandHandler)
}

// Status is the runtime state of a channel.
type Status struct {
	ChannelID string `json:"channelId"`
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// Registry manages a set of messaging channels.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	log      *logging.Logger
}

// NewRegistry creates a channel registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		channels: make(map[string]Channel),
		log:      log.Sub("channels"),
	}
}

// Register adds a channel to the registry.
func (r *Registry) Register(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.ID()] = ch
	r.log.Info().Str("channel", ch.ID()).Msg("channel registered")
}

// Get returns a channel by ID.
func (r *Registry) Get(id string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// List returns all channel IDs.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	return ids
}

// Status returns the status of all registered channels.
func (r *Registry) Status() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	statuses := make([]Status, 0, len(r.channels))
	for _, ch := range r.channels {
		if sc, ok := ch.(interface{ Status() Status }); ok {
			statuses = append(statuses, sc.Status())
		} else {
			statuses = append(statuses, Status{ChannelID: ch.ID(), Running: true})
		}
	}
	return statuses
}

// Route installs one command handler on every registered channel.
func (r *Registry) Route(handler CommandHandler) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.channels {
		ch.OnCommand(handler)
	}
}

// StartAll starts all registered channels in background goroutines.
// Channel Start methods block (e.g. IRC's Connect), so each is launched
// concurrently.
func (r *Registry) StartAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, ch := range r.channels {
		r.log.Info().Str("channel", id).Msg("starting channel")
		go func(id string, ch Channel) {
			if err := ch.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error().Err(err).Str("channel", id).Msg("channel exited with error")
			}
		}(id, ch)
	}
}

// StopAll stops all registered channels.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, ch := range r.channels {
		r.log.Info().Str("channel", id).Msg("stopping channel")
		if err := ch.Stop(ctx); err != nil {
			r.log.Error().Err(err).Str("channel", id).Msg("failed to stop channel")
		}
	}
}

// Announce posts text to every channel. It returns the joined errors of the
// channels that failed.
func (r *Registry) Announce(ctx context.Context, text string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for id, ch := range r.channels {
		if err := ch.Announce(ctx, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of registered channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
