package models

import (
	"time"
)

// LedgerEntry is one link of the hash chain. Rows are never updated except
// for the projection bookkeeping columns, which are outside the hash.
type LedgerEntry struct {
	Sequence      uint64    `gorm:"primaryKey;autoIncrement:false" json:"sequence"`
	AggregateType string    `gorm:"size:32;uniqueIndex:idx_ledger_aggregate_version" json:"aggregate_type"`
	AggregateID   string    `gorm:"size:256;uniqueIndex:idx_ledger_aggregate_version" json:"aggregate_id"`
	Version       int       `gorm:"uniqueIndex:idx_ledger_aggregate_version" json:"version"`
	EventType     string    `gorm:"size:64;index" json:"event_type"`
	Actor         string    `gorm:"size:64" json:"actor"`
	Payload       []byte    `json:"payload"`
	PreviousHash  string    `gorm:"size:64" json:"previous_hash"`
	EntryHash     string    `gorm:"size:64;uniqueIndex" json:"entry_hash"`
	RecordedAt    time.Time `json:"recorded_at"`
	Processed     bool      `gorm:"index" json:"-"`
	Error         *string   `json:"-"`
}

// Anchor is a signed Merkle digest over a contiguous range of ledger entries
type Anchor struct {
	AnchorID           uint64     `gorm:"primaryKey;autoIncrement:false" json:"anchor_id"`
	FromSequence       uint64     `gorm:"index" json:"from_sequence"`
	ToSequence         uint64     `gorm:"uniqueIndex" json:"to_sequence"`
	EntryCount         int        `json:"entry_count"`
	MerkleRoot         string     `gorm:"size:64" json:"merkle_root"`
	ChainHead          string     `gorm:"size:64" json:"chain_head"`
	PreviousAnchorRoot string     `gorm:"size:64" json:"previous_anchor_root"`
	Digest             string     `gorm:"size:64" json:"digest"`
	Signature          string     `json:"signature"`
	KeyID              string     `gorm:"size:64" json:"key_id"`
	CreatedAt          time.Time  `json:"created_at"`
	Published          bool       `gorm:"index" json:"published"`
	PublishedAt        *time.Time `json:"published_at,omitempty"`
}

// Counter is a named global sequence
type Counter struct {
	Name  string `gorm:"primaryKey;size:32"`
	Value uint64
}

// Counter names
const (
	CounterLedger              = "ledger"
	CounterEvent               = "event"
	CounterCheck               = "check"
	CounterLocation            = "location"
	CounterTransfer            = "transfer"
	CounterVerification        = "verification"
	CounterAnchor              = "anchor"
	CounterCertificatesIssued  = "certificates_issued"
	CounterCertificatesRevoked = "certificates_revoked"
	CounterVerifications       = "verifications"
)

// CounterNames lists every counter seeded at migration time
var CounterNames = []string{
	CounterLedger,
	CounterEvent,
	CounterCheck,
	CounterLocation,
	CounterTransfer,
	CounterVerification,
	CounterAnchor,
	CounterCertificatesIssued,
	CounterCertificatesRevoked,
	CounterVerifications,
}
