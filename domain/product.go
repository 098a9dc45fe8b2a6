package domain

import (
	"time"
)

// ProductState represents the current state of a product
type ProductState struct {
	ProductID         string
	Version           int
	Manufacturer      string
	ProductType       string
	BatchID           string
	ManufacturingDate string
	Origin            string
	CurrentLocation   string
	Metadata          string
	Status            ProductStatus
	Owner             string
	RegisteredAt      time.Time
	LastUpdated       time.Time
	TotalEvents       uint64
	IsActive          bool
}

// ProductAggregate is the aggregate for a product
type ProductAggregate struct {
	*AggregateBase
	State ProductState
}

// NewProductAggregate creates an empty product aggregate
func NewProductAggregate(id string) *ProductAggregate {
	aggregate := &ProductAggregate{
		State: ProductState{ProductID: id},
	}
	aggregate.AggregateBase = NewAggregateBase(ProductAggregateType, id, aggregate.applyEvent)
	return aggregate
}

// LoadProductAggregate positions an aggregate at a stored state
func LoadProductAggregate(state ProductState) *ProductAggregate {
	aggregate := NewProductAggregate(state.ProductID)
	aggregate.State = state
	aggregate.SetVersion(state.Version)
	return aggregate
}

// Exists reports whether the product has been registered
func (a *ProductAggregate) Exists() bool {
	return a.State.Manufacturer != ""
}

// applyEvent applies an event to the product aggregate
func (a *ProductAggregate) applyEvent(event interface{}) error {
	switch e := event.(type) {
	case ProductRegisteredEvent:
		a.State.ProductID = e.ProductID
		a.State.Manufacturer = e.Manufacturer
		a.State.ProductType = e.ProductType
		a.State.BatchID = e.BatchID
		a.State.ManufacturingDate = e.ManufacturingDate
		a.State.Origin = e.Origin
		a.State.CurrentLocation = e.Location
		a.State.Metadata = e.Metadata
		a.State.Status = StatusRegistered
		a.State.Owner = e.Manufacturer
		a.State.RegisteredAt = e.Time
		a.State.LastUpdated = e.Time
		a.State.TotalEvents = 1
		a.State.IsActive = true

	case ProductLocationUpdatedEvent:
		// Location rows are not product events; total-events is untouched.
		a.State.CurrentLocation = e.Address
		a.State.LastUpdated = e.Time

	case ProductCustodyTransferredEvent:
		a.State.Owner = e.ToOwner
		if e.Location != "" {
			a.State.CurrentLocation = e.Location
		}
		a.State.LastUpdated = e.Time
		a.State.TotalEvents++

	case ProductQualityCheckedEvent:
		if e.Result {
			a.State.Status = StatusQualityChecked
		}
		a.State.LastUpdated = e.Time
		a.State.TotalEvents++

	case ProductStatusUpdatedEvent:
		a.State.Status = e.Status
		a.State.LastUpdated = e.Time
		a.State.TotalEvents++

	case ProductDeactivatedEvent:
		a.State.IsActive = false
		a.State.LastUpdated = e.Time
	}

	a.State.Version = a.version + 1
	return nil
}
