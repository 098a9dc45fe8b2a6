package domain

import (
	"time"
)

// CertificateState represents the current state of a certificate
type CertificateState struct {
	CertificateID       string
	Version             int
	ProductID           string
	Type                CertificateType
	IssuingAuthority    string
	AuthorityLevel      AuthorityLevel
	IssuedAt            time.Time
	ValidUntil          time.Time
	IsValid             bool
	IsRevoked           bool
	VerificationHash    string
	ComplianceStandards string
	CertificateData     string
	VerificationCount   uint64
	LastVerified        *time.Time
}

// ValidAt reports whether the certificate is usable at now. Expiry is
// computed here and never stored.
func (s CertificateState) ValidAt(now time.Time) bool {
	return s.IsValid && !s.IsRevoked && !s.ValidUntil.Before(now)
}

// Expired reports whether valid-until has passed at now
func (s CertificateState) Expired(now time.Time) bool {
	return s.ValidUntil.Before(now)
}

// CertificateAggregate is the aggregate for a certificate
type CertificateAggregate struct {
	*AggregateBase
	State CertificateState
}

// NewCertificateAggregate creates an empty certificate aggregate
func NewCertificateAggregate(id string) *CertificateAggregate {
	aggregate := &CertificateAggregate{
		State: CertificateState{CertificateID: id},
	}
	aggregate.AggregateBase = NewAggregateBase(CertificateAggregateType, id, aggregate.applyEvent)
	return aggregate
}

// LoadCertificateAggregate positions an aggregate at a stored state
func LoadCertificateAggregate(state CertificateState) *CertificateAggregate {
	aggregate := NewCertificateAggregate(state.CertificateID)
	aggregate.State = state
	aggregate.SetVersion(state.Version)
	return aggregate
}

// applyEvent applies an event to the certificate aggregate
func (a *CertificateAggregate) applyEvent(event interface{}) error {
	switch e := event.(type) {
	case CertificateIssuedEvent:
		a.State.CertificateID = e.CertificateID
		a.State.ProductID = e.ProductID
		a.State.Type = e.Type
		a.State.IssuingAuthority = e.IssuingAuthority
		a.State.AuthorityLevel = e.AuthorityLevel
		a.State.IssuedAt = e.Time
		a.State.ValidUntil = e.ValidUntil
		a.State.IsValid = true
		a.State.IsRevoked = false
		a.State.VerificationHash = e.VerificationHash
		a.State.ComplianceStandards = e.ComplianceStandards
		a.State.CertificateData = e.CertificateData
		a.State.VerificationCount = 0

	case CertificateVerifiedEvent:
		verified := e.Time
		a.State.VerificationCount++
		a.State.LastVerified = &verified

	case CertificateRevokedEvent:
		// One-way: nothing ever sets IsRevoked back to false.
		a.State.IsRevoked = true
		a.State.IsValid = false
	}

	a.State.Version = a.version + 1
	return nil
}
