package eventstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/models"
)

// GormEventStore implements EventStore using GORM
type GormEventStore struct {
	db *gorm.DB
}

// NewGormEventStore creates a new GORM event store
func NewGormEventStore(db *gorm.DB) *GormEventStore {
	return &GormEventStore{db: db}
}

// Append chains an aggregate's pending events onto the ledger. It must run
// inside the same transaction as the state rows the events describe.
func (s *GormEventStore) Append(tx *gorm.DB, aggregate domain.Aggregate, actor string, at time.Time) ([]models.LedgerEntry, error) {
	events := aggregate.GetEvents()
	if len(events) == 0 {
		return nil, nil
	}

	entries := make([]models.LedgerEntry, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event.Data)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal event data")
		}

		// The ledger counter row stays locked until commit, which also
		// serializes the chain tail.
		sequence, err := NextSequence(tx, models.CounterLedger)
		if err != nil {
			return nil, err
		}

		previousHash := GenesisHash
		if sequence > 1 {
			var previous models.LedgerEntry
			if err := tx.Select("entry_hash").Where("sequence = ?", sequence-1).Take(&previous).Error; err != nil {
				return nil, errors.Wrapf(err, "failed to read ledger entry %d", sequence-1)
			}
			previousHash = previous.EntryHash
		}

		entry := models.LedgerEntry{
			Sequence:      sequence,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Version:       event.Version,
			EventType:     event.Type,
			Actor:         actor,
			Payload:       data,
			PreviousHash:  previousHash,
			RecordedAt:    at,
		}
		entry.EntryHash = ComputeEntryHash(entry)

		if err := tx.Create(&entry).Error; err != nil {
			return nil, errors.Wrap(err, "failed to save ledger entry")
		}

		log.Info().
			Uint64("sequence", entry.Sequence).
			Str("aggregateID", entry.AggregateID).
			Str("eventType", entry.EventType).
			Int("version", entry.Version).
			Msg("Ledger entry appended")

		entries = append(entries, entry)
	}

	aggregate.ClearEvents()
	return entries, nil
}

// Load rebuilds an aggregate by replaying its ledger entries
func (s *GormEventStore) Load(ctx context.Context, aggregate domain.Aggregate) error {
	aggregateID := aggregate.GetID()
	if aggregateID == "" {
		return errors.New("aggregate ID is empty")
	}

	var entries []models.LedgerEntry
	if err := s.db.WithContext(ctx).
		Where("aggregate_type = ? AND aggregate_id = ?", aggregate.GetType(), aggregateID).
		Order("version ASC").
		Find(&entries).Error; err != nil {
		return errors.Wrap(err, "failed to load ledger entries")
	}

	for _, entry := range entries {
		data, err := DecodeEvent(entry.EventType, entry.Payload)
		if err != nil {
			return errors.Wrapf(err, "ledger entry %d", entry.Sequence)
		}
		if err := aggregate.Apply(data); err != nil {
			return errors.Wrapf(err, "ledger entry %d", entry.Sequence)
		}
	}

	aggregate.ClearEvents()
	return nil
}

// Exists checks if an aggregate has any ledger entries
func (s *GormEventStore) Exists(ctx context.Context, aggregateType, aggregateID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("aggregate_type = ? AND aggregate_id = ?", aggregateType, aggregateID).
		Count(&count).Error; err != nil {
		return false, errors.Wrap(err, "failed to check if aggregate exists")
	}

	return count > 0, nil
}

// GetEvents gets all decoded events for an aggregate
func (s *GormEventStore) GetEvents(ctx context.Context, aggregateType, aggregateID string) ([]domain.Event, error) {
	var entries []models.LedgerEntry
	if err := s.db.WithContext(ctx).
		Where("aggregate_type = ? AND aggregate_id = ?", aggregateType, aggregateID).
		Order("version ASC").
		Find(&entries).Error; err != nil {
		return nil, errors.Wrap(err, "failed to get events")
	}

	return toDomainEvents(entries)
}

// GetUnprocessedEvents gets entries not yet seen by the projections, oldest first
func (s *GormEventStore) GetUnprocessedEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	var entries []models.LedgerEntry
	if err := s.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("sequence ASC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, errors.Wrap(err, "failed to get unprocessed events")
	}

	return toDomainEvents(entries)
}

// MarkEventAsProcessed marks an entry as projected
func (s *GormEventStore) MarkEventAsProcessed(ctx context.Context, sequence uint64) error {
	if err := s.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("sequence = ?", sequence).
		Updates(map[string]interface{}{"processed": true, "error": nil}).
		Error; err != nil {
		return errors.Wrap(err, "failed to mark event as processed")
	}

	return nil
}

// MarkEventAsFailed records a projection failure; the entry stays unprocessed
func (s *GormEventStore) MarkEventAsFailed(ctx context.Context, sequence uint64, cause error) error {
	msg := cause.Error()
	if err := s.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("sequence = ?", sequence).
		Update("error", &msg).
		Error; err != nil {
		return errors.Wrap(err, "failed to record projection error")
	}

	return nil
}

func toDomainEvents(entries []models.LedgerEntry) ([]domain.Event, error) {
	events := make([]domain.Event, len(entries))
	for i, entry := range entries {
		data, err := DecodeEvent(entry.EventType, entry.Payload)
		if err != nil {
			return nil, errors.Wrapf(err, "ledger entry %d", entry.Sequence)
		}
		events[i] = domain.Event{
			Sequence:      entry.Sequence,
			AggregateID:   entry.AggregateID,
			AggregateType: entry.AggregateType,
			Type:          entry.EventType,
			Version:       entry.Version,
			Actor:         entry.Actor,
			Timestamp:     entry.RecordedAt,
			Data:          data,
		}
	}
	return events, nil
}
