package domain

import (
	"github.com/pkg/errors"
)

// Aggregate types
const (
	ProductAggregateType       = "product"
	CertificateAggregateType   = "certificate"
	AuthorityAggregateType     = "authority"
	StandardAggregateType      = "standard"
	AuthorizationAggregateType = "authorization"
)

// AggregateBase provides common aggregate functionality
type AggregateBase struct {
	id            string
	aggregateType string
	version       int
	events        []Event
	applier       func(event interface{}) error
}

// Aggregate is the interface for all aggregates
type Aggregate interface {
	GetID() string
	GetType() string
	GetVersion() int
	GetEvents() []Event
	ClearEvents()
	Apply(event interface{}) error
}

// NewAggregateBase creates a new aggregate base
func NewAggregateBase(aggregateType, id string, applier func(interface{}) error) *AggregateBase {
	return &AggregateBase{
		id:            id,
		aggregateType: aggregateType,
		events:        []Event{},
		applier:       applier,
	}
}

func (a *AggregateBase) GetID() string {
	return a.id
}

func (a *AggregateBase) GetType() string {
	return a.aggregateType
}

func (a *AggregateBase) GetVersion() int {
	return a.version
}

// SetVersion positions the aggregate at a version loaded from storage
func (a *AggregateBase) SetVersion(version int) {
	a.version = version
}

func (a *AggregateBase) GetEvents() []Event {
	return a.events
}

func (a *AggregateBase) ClearEvents() {
	a.events = []Event{}
}

// Apply applies an event to the aggregate state and records it as pending
func (a *AggregateBase) Apply(event interface{}) error {
	if a.applier == nil {
		return errors.New("applier is not set")
	}

	eventType, err := EventTypeOf(event)
	if err != nil {
		return err
	}

	if err := a.applier(event); err != nil {
		return errors.Wrap(err, "failed to apply event")
	}

	a.events = append(a.events, Event{
		AggregateID:   a.id,
		AggregateType: a.aggregateType,
		Type:          eventType,
		Version:       a.version + 1,
		Data:          event,
	})
	a.version++

	return nil
}

// EventTypeOf returns the stored type name for an event payload
func EventTypeOf(event interface{}) (string, error) {
	switch event.(type) {
	case RoleGrantedEvent:
		return RoleGranted, nil

	case ProductRegisteredEvent:
		return ProductRegistered, nil
	case ProductLocationUpdatedEvent:
		return ProductLocationUpdated, nil
	case ProductCustodyTransferredEvent:
		return ProductCustodyTransferred, nil
	case ProductQualityCheckedEvent:
		return ProductQualityChecked, nil
	case ProductStatusUpdatedEvent:
		return ProductStatusUpdated, nil
	case ProductDeactivatedEvent:
		return ProductDeactivated, nil

	case AuthorityRegisteredEvent:
		return AuthorityRegistered, nil
	case AuthorityActivationChangedEvent:
		return AuthorityActivationChanged, nil
	case ComplianceStandardRegisteredEvent:
		return ComplianceStandardRegistered, nil

	case CertificateIssuedEvent:
		return CertificateIssued, nil
	case CertificateVerifiedEvent:
		return CertificateVerified, nil
	case CertificateRevokedEvent:
		return CertificateRevoked, nil
	default:
		return "", errors.Errorf("unknown event type: %T", event)
	}
}

// RecordAggregate is an aggregate without derived state. Grants, authorities
// and standards are stored as rows; the aggregate only carries their events
// onto the ledger.
type RecordAggregate struct {
	*AggregateBase
}

// NewRecordAggregate creates a record aggregate
func NewRecordAggregate(aggregateType, id string) *RecordAggregate {
	return &RecordAggregate{
		AggregateBase: NewAggregateBase(aggregateType, id, func(interface{}) error { return nil }),
	}
}
