// Package plugin provides the plugin interface and lifecycle management for the hotline service.
package plugin

import (
	"context"

	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/hooks"
	"github.com/soyeahso/hotline/internal/logging"
)

// Plugin is the interface that all hotline plugins must implement.
type Plugin interface {
	// ID returns a unique identifier for the plugin (e.g., "my-plugin").
	ID() string

	// Name returns a human-readable name.
	Name() string

	// Version returns the plugin version string.
	Version() string

	// Init initializes the plugin with the given context.
	// Plugins should register hooks and set up resources here.
	Init(ctx context.Context, api API) error

	// Close shuts down the plugin and releases resources.
	Close() error
}

// API is the interface exposed to plugins for interacting with the service.
type API struct {
	Hooks *hooks.Manager
	// Cases is the case store; nil when the service runs without one.
	Cases domain.CaseStore
	Log   *logging.Logger
}
