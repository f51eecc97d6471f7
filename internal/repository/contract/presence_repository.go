package contract

import (
	"context"

	"classlive-be/internal/entity"
)

type PresenceRepository interface {
	// Upsert creates or overwrites the user's presence record.
	Upsert(ctx context.Context, presence *entity.Presence) error

	// Get returns the stored record, or the offline default when the user
	// has never written one. Absence is a valid state, not an error.
	Get(ctx context.Context, userId string) (*entity.Presence, error)

	// GetMany defaults every requested id to offline, then overlays any
	// records actually found.
	GetMany(ctx context.Context, userIds []string) ([]*entity.Presence, error)
}
