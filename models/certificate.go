package models

import (
	"time"
)

// Certificate is the current-state row of a certificate
type Certificate struct {
	CertificateID       string     `gorm:"primaryKey;size:64" json:"certificate_id"`
	Version             int        `json:"version"`
	ProductID           string     `gorm:"size:64;index" json:"product_id"`
	CertificateType     uint8      `json:"certificate_type"`
	IssuingAuthority    string     `gorm:"size:64;index" json:"issuing_authority"`
	AuthorityLevel      uint8      `json:"authority_level"`
	IssuedAt            time.Time  `json:"issued_at"`
	ValidUntil          time.Time  `json:"valid_until"`
	IsValid             bool       `json:"is_valid"`
	IsRevoked           bool       `json:"is_revoked"`
	VerificationHash    string     `gorm:"size:256" json:"verification_hash"`
	ComplianceStandards string     `gorm:"size:512" json:"compliance_standards"`
	CertificateData     string     `gorm:"size:512" json:"certificate_data"`
	VerificationCount   uint64     `json:"verification_count"`
	LastVerified        *time.Time `json:"last_verified,omitempty"`
}

// CertificateAuthority is an identity allowed to issue certificates
type CertificateAuthority struct {
	Principal          string    `gorm:"primaryKey;size:64" json:"principal"`
	Name               string    `gorm:"size:128" json:"name"`
	AuthorityLevel     uint8     `json:"authority_level"`
	Specialization     string    `gorm:"size:128" json:"specialization"`
	IsActive           bool      `json:"is_active"`
	RegisteredAt       time.Time `json:"registered_at"`
	CertificatesIssued uint64    `json:"certificates_issued"`
	TrustScore         uint8     `json:"trust_score"`
	ContactInfo        string    `gorm:"size:256" json:"contact_info"`
}

// VerificationRecord logs one validation attempt
type VerificationRecord struct {
	VerificationID uint64    `gorm:"primaryKey;autoIncrement:false" json:"verification_id"`
	CertificateID  string    `gorm:"size:64;index" json:"certificate_id"`
	Verifier       string    `gorm:"size:64" json:"verifier"`
	Timestamp      time.Time `json:"timestamp"`
	Result         bool      `json:"result"`
	Notes          string    `gorm:"size:256" json:"notes"`
	Method         string    `gorm:"size:64" json:"method"`
	TrustLevel     uint8     `json:"trust_level"`
}

// RevocationRecord is the single revocation of a certificate
type RevocationRecord struct {
	CertificateID          string    `gorm:"primaryKey;size:64" json:"certificate_id"`
	RevokedBy              string    `gorm:"size:64" json:"revoked_by"`
	Timestamp              time.Time `json:"timestamp"`
	Reason                 string    `gorm:"size:256" json:"reason"`
	IsPermanent            bool      `json:"is_permanent"`
	ReinstatementAuthority string    `gorm:"size:64" json:"reinstatement_authority,omitempty"`
}

// ComplianceStandard is a named external specification certificates can claim
type ComplianceStandard struct {
	StandardID               string    `gorm:"primaryKey;size:64" json:"standard_id"`
	Name                     string    `gorm:"size:128" json:"name"`
	Description              string    `gorm:"size:512" json:"description"`
	IssuingBody              string    `gorm:"size:128" json:"issuing_body"`
	RequiredCertificateTypes string    `gorm:"size:128" json:"required_certificate_types"`
	IsActive                 bool      `json:"is_active"`
	RegisteredBy             string    `gorm:"size:64" json:"registered_by"`
	RegisteredAt             time.Time `json:"registered_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}
