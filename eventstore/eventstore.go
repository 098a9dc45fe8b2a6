package eventstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/models"
)

// EventStore is the interface for the hash-chained ledger
type EventStore interface {
	// Append chains an aggregate's pending events onto the ledger inside tx
	Append(tx *gorm.DB, aggregate domain.Aggregate, actor string, at time.Time) ([]models.LedgerEntry, error)

	// Load rebuilds an aggregate by replaying its ledger entries
	Load(ctx context.Context, aggregate domain.Aggregate) error

	// Exists checks if an aggregate has any ledger entries
	Exists(ctx context.Context, aggregateType, aggregateID string) (bool, error)

	// GetEvents gets all decoded events for an aggregate
	GetEvents(ctx context.Context, aggregateType, aggregateID string) ([]domain.Event, error)

	// GetUnprocessedEvents gets entries not yet seen by the projections
	GetUnprocessedEvents(ctx context.Context, limit int) ([]domain.Event, error)

	// MarkEventAsProcessed marks an entry as projected
	MarkEventAsProcessed(ctx context.Context, sequence uint64) error

	// MarkEventAsFailed records a projection failure on an entry
	MarkEventAsFailed(ctx context.Context, sequence uint64, cause error) error
}
