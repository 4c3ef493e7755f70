// Package store declares the interface the core consumes from the external
// configuration store (spec §6). Persistence format and schema are that
// store's concern; kftray-core only calls these methods.
package store

import (
	"context"

	"github.com/kftray/kftray-core/internal/model"
)

// ConfigStore is implemented by the external collaborator that owns durable
// Configuration state (a relational store fronted by CRUD calls, per spec §1).
type ConfigStore interface {
	// ListActive returns configurations whose ConfigState row is owned by
	// owningPID.
	ListActive(ctx context.Context, owningPID int) ([]model.Configuration, error)
	// Get returns a single configuration by id.
	Get(ctx context.Context, id int64) (model.Configuration, error)
	// UpdateState writes the (running, pid) tuple for a configuration.
	UpdateState(ctx context.Context, id int64, running bool, pid int) error
	// LoadHTTPLogsFlag returns whether HTTP observation is enabled for id.
	LoadHTTPLogsFlag(ctx context.Context, id int64) (bool, error)
}
