package models

import (
	"time"
)

// Product is the current-state row of a product
type Product struct {
	ProductID         string    `gorm:"primaryKey;size:64" json:"product_id"`
	Version           int       `json:"version"`
	Manufacturer      string    `gorm:"size:64;index" json:"manufacturer"`
	ProductType       string    `gorm:"size:128" json:"product_type"`
	BatchID           string    `gorm:"size:64;index" json:"batch_id"`
	ManufacturingDate string    `gorm:"size:64" json:"manufacturing_date"`
	Origin            string    `gorm:"size:256" json:"origin"`
	CurrentLocation   string    `gorm:"size:256" json:"current_location"`
	Metadata          string    `gorm:"size:512" json:"metadata"`
	CurrentStatus     uint8     `json:"current_status"`
	CurrentOwner      string    `gorm:"size:64;index" json:"current_owner"`
	RegisteredAt      time.Time `json:"registered_at"`
	LastUpdated       time.Time `json:"last_updated"`
	TotalEvents       uint64    `json:"total_events"`
	IsActive          bool      `json:"is_active"`
}

// ProductEvent is one row of a product's event stream
type ProductEvent struct {
	EventID                 uint64    `gorm:"primaryKey;autoIncrement:false" json:"event_id"`
	ProductID               string    `gorm:"size:64;index" json:"product_id"`
	EventType               uint8     `json:"event_type"`
	Location                string    `gorm:"size:256" json:"location"`
	Timestamp               time.Time `json:"timestamp"`
	Actor                   string    `gorm:"size:64" json:"actor"`
	Status                  uint8     `json:"status"`
	Metadata                string    `gorm:"size:512" json:"metadata"`
	PreviousOwner           string    `gorm:"size:64" json:"previous_owner,omitempty"`
	NewOwner                string    `gorm:"size:64" json:"new_owner,omitempty"`
	QualityScore            *uint8    `json:"quality_score,omitempty"`
	EnvironmentalConditions string    `gorm:"size:256" json:"environmental_conditions,omitempty"`
}

// QualityCheck is an immutable inspection result
type QualityCheck struct {
	CheckID             uint64    `gorm:"primaryKey;autoIncrement:false" json:"check_id"`
	ProductID           string    `gorm:"size:64;index" json:"product_id"`
	Inspector           string    `gorm:"size:64" json:"inspector"`
	CheckType           string    `gorm:"size:128" json:"check_type"`
	Result              bool      `json:"result"`
	Score               uint8     `json:"score"`
	Notes               string    `gorm:"size:256" json:"notes"`
	Timestamp           time.Time `json:"timestamp"`
	CertificationLevel  string    `gorm:"size:64" json:"certification_level"`
	ComplianceStandards string    `gorm:"size:512" json:"compliance_standards"`
}

// LocationUpdate is an immutable location report
type LocationUpdate struct {
	LocationID    uint64    `gorm:"primaryKey;autoIncrement:false" json:"location_id"`
	ProductID     string    `gorm:"size:64;index" json:"product_id"`
	Latitude      string    `gorm:"size:64" json:"latitude"`
	Longitude     string    `gorm:"size:64" json:"longitude"`
	Address       string    `gorm:"size:256" json:"address"`
	Facility      string    `gorm:"size:128" json:"facility"`
	Timestamp     time.Time `json:"timestamp"`
	Temperature   *float64  `json:"temperature,omitempty"`
	Humidity      *float64  `json:"humidity,omitempty"`
	Handler       string    `gorm:"size:64" json:"handler"`
	TransportMode string    `gorm:"size:64" json:"transport_mode"`
}

// CustodyRecord is the sole authority for ownership history
type CustodyRecord struct {
	TransferID       uint64    `gorm:"primaryKey;autoIncrement:false" json:"transfer_id"`
	ProductID        string    `gorm:"size:64;index" json:"product_id"`
	FromOwner        string    `gorm:"size:64" json:"from_owner"`
	ToOwner          string    `gorm:"size:64" json:"to_owner"`
	Timestamp        time.Time `json:"timestamp"`
	Location         string    `gorm:"size:256" json:"location"`
	Reason           string    `gorm:"size:256" json:"reason"`
	VerificationCode string    `gorm:"size:64" json:"verification_code"`
	Verified         bool      `json:"verified"`
}
