// SPDX-License-Identifier: LGPL-3.0-or-later

package node

import (
	"context"
	"fmt"

	"github.com/ember-net/ember/config"
	"github.com/ember-net/ember/storage"
	"github.com/ember-net/ember/storage/memory"
	"github.com/ember-net/ember/storage/postgres"
)

// OpenStorage picks the persistence backend named by cfg.Type (spec.md §6
// treats the store as an opaque collaborator; "memory" and "postgres" are
// the two this tree ships).
func OpenStorage(ctx context.Context, cfg *config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.NewStore(), nil
	case "postgres":
		return postgres.NewStoreFromDSN(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("node: unknown storage.type %q", cfg.Type)
	}
}
