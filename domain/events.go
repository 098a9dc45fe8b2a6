package domain

import (
	"time"
)

// EventType constants
const (
	// Authorization events
	RoleGranted = "V1_ROLE_GRANTED"

	// Product events
	ProductRegistered         = "V1_PRODUCT_REGISTERED"
	ProductLocationUpdated    = "V1_PRODUCT_LOCATION_UPDATED"
	ProductCustodyTransferred = "V1_PRODUCT_CUSTODY_TRANSFERRED"
	ProductQualityChecked     = "V1_PRODUCT_QUALITY_CHECKED"
	ProductStatusUpdated      = "V1_PRODUCT_STATUS_UPDATED"
	ProductDeactivated        = "V1_PRODUCT_DEACTIVATED"

	// Authority and standard events
	AuthorityRegistered          = "V1_AUTHORITY_REGISTERED"
	AuthorityActivationChanged   = "V1_AUTHORITY_ACTIVATION_CHANGED"
	ComplianceStandardRegistered = "V1_COMPLIANCE_STANDARD_REGISTERED"

	// Certificate events
	CertificateIssued   = "V1_CERTIFICATE_ISSUED"
	CertificateVerified = "V1_CERTIFICATE_VERIFIED"
	CertificateRevoked  = "V1_CERTIFICATE_REVOKED"
)

// Event represents a domain event
type Event struct {
	Sequence      uint64      `json:"sequence"`
	AggregateID   string      `json:"aggregate_id"`
	AggregateType string      `json:"aggregate_type"`
	Type          string      `json:"type"`
	Version       int         `json:"version"`
	Actor         string      `json:"actor"`
	Timestamp     time.Time   `json:"timestamp"`
	Data          interface{} `json:"data"`
}

// RoleGrantedEvent records a grant overwrite
type RoleGrantedEvent struct {
	Principal    string    `json:"principal"`
	Role         string    `json:"role"`
	IsAuthorized bool      `json:"is_authorized"`
	GrantedBy    string    `json:"granted_by"`
	Time         time.Time `json:"time"`
}

// Product Events

// ProductRegisteredEvent represents a product registration
type ProductRegisteredEvent struct {
	ProductID         string    `json:"product_id"`
	EventID           uint64    `json:"event_id"`
	Manufacturer      string    `json:"manufacturer"`
	ProductType       string    `json:"product_type"`
	BatchID           string    `json:"batch_id"`
	ManufacturingDate string    `json:"manufacturing_date"`
	Origin            string    `json:"origin"`
	Location          string    `json:"location"`
	Metadata          string    `json:"metadata"`
	Time              time.Time `json:"time"`
}

// ProductLocationUpdatedEvent represents a recorded location update
type ProductLocationUpdatedEvent struct {
	ProductID     string    `json:"product_id"`
	LocationID    uint64    `json:"location_id"`
	Latitude      string    `json:"latitude"`
	Longitude     string    `json:"longitude"`
	Address       string    `json:"address"`
	Facility      string    `json:"facility"`
	Temperature   *float64  `json:"temperature,omitempty"`
	Humidity      *float64  `json:"humidity,omitempty"`
	Handler       string    `json:"handler"`
	TransportMode string    `json:"transport_mode"`
	Time          time.Time `json:"time"`
}

// ProductCustodyTransferredEvent represents a custody transfer
type ProductCustodyTransferredEvent struct {
	ProductID        string    `json:"product_id"`
	TransferID       uint64    `json:"transfer_id"`
	EventID          uint64    `json:"event_id"`
	FromOwner        string    `json:"from_owner"`
	ToOwner          string    `json:"to_owner"`
	Location         string    `json:"location"`
	Reason           string    `json:"reason"`
	VerificationCode string    `json:"verification_code"`
	Time             time.Time `json:"time"`
}

// ProductQualityCheckedEvent represents a quality check
type ProductQualityCheckedEvent struct {
	ProductID           string    `json:"product_id"`
	CheckID             uint64    `json:"check_id"`
	EventID             uint64    `json:"event_id"`
	Inspector           string    `json:"inspector"`
	CheckType           string    `json:"check_type"`
	Result              bool      `json:"result"`
	Score               uint8     `json:"score"`
	Notes               string    `json:"notes"`
	CertificationLevel  string    `json:"certification_level"`
	ComplianceStandards string    `json:"compliance_standards"`
	Time                time.Time `json:"time"`
}

// ProductStatusUpdatedEvent represents a status overwrite
type ProductStatusUpdatedEvent struct {
	ProductID string        `json:"product_id"`
	EventID   uint64        `json:"event_id"`
	Previous  ProductStatus `json:"previous"`
	Status    ProductStatus `json:"status"`
	Metadata  string        `json:"metadata"`
	Time      time.Time     `json:"time"`
}

// ProductDeactivatedEvent represents a product being taken out of service
type ProductDeactivatedEvent struct {
	ProductID string    `json:"product_id"`
	Time      time.Time `json:"time"`
}

// Authority Events

// AuthorityRegisteredEvent represents an authority registration or overwrite
type AuthorityRegisteredEvent struct {
	Principal      string         `json:"principal"`
	Name           string         `json:"name"`
	Level          AuthorityLevel `json:"level"`
	Specialization string         `json:"specialization"`
	ContactInfo    string         `json:"contact_info"`
	Time           time.Time      `json:"time"`
}

// AuthorityActivationChangedEvent represents an activation toggle
type AuthorityActivationChangedEvent struct {
	Principal string    `json:"principal"`
	IsActive  bool      `json:"is_active"`
	Time      time.Time `json:"time"`
}

// ComplianceStandardRegisteredEvent represents a standard upsert
type ComplianceStandardRegisteredEvent struct {
	StandardID               string            `json:"standard_id"`
	Name                     string            `json:"name"`
	Description              string            `json:"description"`
	IssuingBody              string            `json:"issuing_body"`
	RequiredCertificateTypes []CertificateType `json:"required_certificate_types"`
	IsActive                 bool              `json:"is_active"`
	Time                     time.Time         `json:"time"`
}

// Certificate Events

// CertificateIssuedEvent represents a certificate issuance
type CertificateIssuedEvent struct {
	CertificateID       string          `json:"certificate_id"`
	ProductID           string          `json:"product_id"`
	Type                CertificateType `json:"type"`
	IssuingAuthority    string          `json:"issuing_authority"`
	AuthorityLevel      AuthorityLevel  `json:"authority_level"`
	ValidUntil          time.Time       `json:"valid_until"`
	VerificationHash    string          `json:"verification_hash"`
	ComplianceStandards string          `json:"compliance_standards"`
	CertificateData     string          `json:"certificate_data"`
	Time                time.Time       `json:"time"`
}

// CertificateVerifiedEvent represents one validation attempt
type CertificateVerifiedEvent struct {
	CertificateID  string    `json:"certificate_id"`
	VerificationID uint64    `json:"verification_id"`
	Verifier       string    `json:"verifier"`
	Result         bool      `json:"result"`
	Notes          string    `json:"notes"`
	Method         string    `json:"method"`
	TrustLevel     uint8     `json:"trust_level"`
	Time           time.Time `json:"time"`
}

// CertificateRevokedEvent represents a revocation
type CertificateRevokedEvent struct {
	CertificateID          string    `json:"certificate_id"`
	RevokedBy              string    `json:"revoked_by"`
	Reason                 string    `json:"reason"`
	IsPermanent            bool      `json:"is_permanent"`
	ReinstatementAuthority string    `json:"reinstatement_authority,omitempty"`
	Time                   time.Time `json:"time"`
}
