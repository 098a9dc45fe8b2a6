package handlers

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/eventstore"
	"example.com/backstage/services/provenance/internal/clock"
	"example.com/backstage/services/provenance/internal/metrics"
	"example.com/backstage/services/provenance/models"
	"example.com/backstage/services/provenance/utils"
)

// RegisterProductCommand registers a new product
type RegisterProductCommand struct {
	Actor             string `json:"-" validate:"required,max=64,principal"`
	ProductID         string `json:"product_id" validate:"required,max=64,ledger_id"`
	ProductType       string `json:"product_type" validate:"max=128"`
	BatchID           string `json:"batch_id" validate:"max=64"`
	ManufacturingDate string `json:"manufacturing_date" validate:"max=64"`
	Origin            string `json:"origin" validate:"max=256"`
	InitialLocation   string `json:"initial_location" validate:"max=256"`
	Metadata          string `json:"metadata" validate:"max=512"`
}

// UpdateLocationCommand reports where a product is
type UpdateLocationCommand struct {
	Actor         string   `json:"-" validate:"required,max=64,principal"`
	ProductID     string   `json:"-" validate:"required,max=64,ledger_id"`
	Latitude      string   `json:"latitude" validate:"max=64"`
	Longitude     string   `json:"longitude" validate:"max=64"`
	Address       string   `json:"address" validate:"max=256"`
	Facility      string   `json:"facility" validate:"max=128"`
	Temperature   *float64 `json:"temperature,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty"`
	TransportMode string   `json:"transport_mode" validate:"max=64"`
}

// TransferCustodyCommand hands a product to a new owner
type TransferCustodyCommand struct {
	Actor            string `json:"-" validate:"required,max=64,principal"`
	ProductID        string `json:"-" validate:"required,max=64,ledger_id"`
	NewOwner         string `json:"new_owner" validate:"required,max=64,principal"`
	Location         string `json:"location" validate:"max=256"`
	Reason           string `json:"reason" validate:"max=256"`
	VerificationCode string `json:"verification_code" validate:"max=64"`
}

// AddQualityCheckCommand records an inspection
type AddQualityCheckCommand struct {
	Actor               string `json:"-" validate:"required,max=64,principal"`
	ProductID           string `json:"-" validate:"required,max=64,ledger_id"`
	CheckType           string `json:"check_type" validate:"max=128"`
	Result              bool   `json:"result"`
	Score               uint8  `json:"score" validate:"lte=100"`
	Notes               string `json:"notes" validate:"max=256"`
	CertificationLevel  string `json:"certification_level" validate:"max=64"`
	ComplianceStandards string `json:"compliance_standards" validate:"max=512"`
}

// UpdateStatusCommand overwrites a product's status
type UpdateStatusCommand struct {
	Actor     string               `json:"-" validate:"required,max=64,principal"`
	ProductID string               `json:"-" validate:"required,max=64,ledger_id"`
	Status    domain.ProductStatus `json:"status"`
	Metadata  string               `json:"metadata" validate:"max=512"`
}

// DeactivateProductCommand retires a product from further mutation
type DeactivateProductCommand struct {
	Actor     string `json:"-" validate:"required,max=64,principal"`
	ProductID string `json:"-" validate:"required,max=64,ledger_id"`
}

// ProductHandler handles product ledger commands
type ProductHandler struct {
	db      *gorm.DB
	store   eventstore.EventStore
	auth    *AuthorizationHandler
	clock   clock.Clock
	locks   *KeyedMutex
	metrics *metrics.Metrics
}

// NewProductHandler creates a new product handler
func NewProductHandler(db *gorm.DB, store eventstore.EventStore, auth *AuthorizationHandler, clk clock.Clock, locks *KeyedMutex, m *metrics.Metrics) *ProductHandler {
	return &ProductHandler{
		db:      db,
		store:   store,
		auth:    auth,
		clock:   clk,
		locks:   locks,
		metrics: m,
	}
}

// HandleRegisterProduct registers a product owned by the caller
func (h *ProductHandler) HandleRegisterProduct(ctx context.Context, cmd RegisterProductCommand) (productID string, err error) {
	defer func(start time.Time) { h.metrics.ObserveOperation("register_product", start, err) }(time.Now())

	if err := utils.ValidateStruct(cmd); err != nil {
		return "", err
	}

	log.Info().
		Str("productID", cmd.ProductID).
		Str("actor", cmd.Actor).
		Msg("Handling register product command")

	unlock := h.locks.Lock(productKey(cmd.ProductID))
	defer unlock()

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Product{}).Where("product_id = ?", cmd.ProductID).Count(&count).Error; err != nil {
			return errors.Wrap(err, "failed to check product")
		}
		if count > 0 {
			return errors.Wrap(domain.ErrProductExists, cmd.ProductID)
		}

		ok, err := h.auth.CanAct(tx, cmd.Actor, "", domain.RoleManufacturer)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(domain.ErrNotAuthorized, "%s may not register products", cmd.Actor)
		}

		eventID, err := eventstore.NextSequence(tx, models.CounterEvent)
		if err != nil {
			return err
		}

		now := h.clock.Now()
		aggregate := domain.NewProductAggregate(cmd.ProductID)
		if err := aggregate.Apply(domain.ProductRegisteredEvent{
			ProductID:         cmd.ProductID,
			EventID:           eventID,
			Manufacturer:      cmd.Actor,
			ProductType:       cmd.ProductType,
			BatchID:           cmd.BatchID,
			ManufacturingDate: cmd.ManufacturingDate,
			Origin:            cmd.Origin,
			Location:          cmd.InitialLocation,
			Metadata:          cmd.Metadata,
			Time:              now,
		}); err != nil {
			return err
		}

		row := productRow(aggregate.State)
		if err := tx.Create(&row).Error; err != nil {
			return translateInsert(errors.Wrap(err, "failed to create product"), domain.ErrProductExists, cmd.ProductID)
		}

		if err := tx.Create(&models.ProductEvent{
			EventID:   eventID,
			ProductID: cmd.ProductID,
			EventType: uint8(domain.EventRegistration),
			Location:  cmd.InitialLocation,
			Timestamp: now,
			Actor:     cmd.Actor,
			Status:    uint8(aggregate.State.Status),
			Metadata:  cmd.Metadata,
		}).Error; err != nil {
			return errors.Wrap(err, "failed to create product event")
		}

		_, err = h.store.Append(tx, aggregate, cmd.Actor, now)
		return err
	})
	if err != nil {
		return "", err
	}

	return cmd.ProductID, nil
}

// HandleUpdateLocation records a location report. It does not add a product event.
func (h *ProductHandler) HandleUpdateLocation(ctx context.Context, cmd UpdateLocationCommand) (locationID uint64, err error) {
	defer func(start time.Time) { h.metrics.ObserveOperation("update_location", start, err) }(time.Now())

	if err := utils.ValidateStruct(cmd); err != nil {
		return 0, err
	}

	unlock := h.locks.Lock(productKey(cmd.ProductID))
	defer unlock()

	err = h.mutate(ctx, cmd.ProductID, cmd.Actor, domain.RoleLogistics, ownerOf, func(tx *gorm.DB, aggregate *domain.ProductAggregate, now time.Time) error {
		id, err := eventstore.NextSequence(tx, models.CounterLocation)
		if err != nil {
			return err
		}
		locationID = id

		if err := aggregate.Apply(domain.ProductLocationUpdatedEvent{
			ProductID:     cmd.ProductID,
			LocationID:    id,
			Latitude:      cmd.Latitude,
			Longitude:     cmd.Longitude,
			Address:       cmd.Address,
			Facility:      cmd.Facility,
			Temperature:   cmd.Temperature,
			Humidity:      cmd.Humidity,
			Handler:       cmd.Actor,
			TransportMode: cmd.TransportMode,
			Time:          now,
		}); err != nil {
			return err
		}

		return tx.Create(&models.LocationUpdate{
			LocationID:    id,
			ProductID:     cmd.ProductID,
			Latitude:      cmd.Latitude,
			Longitude:     cmd.Longitude,
			Address:       cmd.Address,
			Facility:      cmd.Facility,
			Timestamp:     now,
			Temperature:   cmd.Temperature,
			Humidity:      cmd.Humidity,
			Handler:       cmd.Actor,
			TransportMode: cmd.TransportMode,
		}).Error
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Str("productID", cmd.ProductID).
		Uint64("locationID", locationID).
		Msg("Location updated")

	return locationID, nil
}

// HandleTransferCustody moves ownership of a product to a new principal
func (h *ProductHandler) HandleTransferCustody(ctx context.Context, cmd TransferCustodyCommand) (transferID uint64, err error) {
	defer func(start time.Time) { h.metrics.ObserveOperation("transfer_custody", start, err) }(time.Now())

	if err := utils.ValidateStruct(cmd); err != nil {
		return 0, err
	}

	unlock := h.locks.Lock(productKey(cmd.ProductID))
	defer unlock()

	err = h.mutate(ctx, cmd.ProductID, cmd.Actor, domain.RoleLogistics, ownerOf, func(tx *gorm.DB, aggregate *domain.ProductAggregate, now time.Time) error {
		id, err := eventstore.NextSequence(tx, models.CounterTransfer)
		if err != nil {
			return err
		}
		eventID, err := eventstore.NextSequence(tx, models.CounterEvent)
		if err != nil {
			return err
		}
		transferID = id

		previousOwner := aggregate.State.Owner
		if err := aggregate.Apply(domain.ProductCustodyTransferredEvent{
			ProductID:        cmd.ProductID,
			TransferID:       id,
			EventID:          eventID,
			FromOwner:        previousOwner,
			ToOwner:          cmd.NewOwner,
			Location:         cmd.Location,
			Reason:           cmd.Reason,
			VerificationCode: cmd.VerificationCode,
			Time:             now,
		}); err != nil {
			return err
		}

		// Custody records carry no independent verification step.
		if err := tx.Create(&models.CustodyRecord{
			TransferID:       id,
			ProductID:        cmd.ProductID,
			FromOwner:        previousOwner,
			ToOwner:          cmd.NewOwner,
			Timestamp:        now,
			Location:         cmd.Location,
			Reason:           cmd.Reason,
			VerificationCode: cmd.VerificationCode,
			Verified:         true,
		}).Error; err != nil {
			return errors.Wrap(err, "failed to create custody record")
		}

		return tx.Create(&models.ProductEvent{
			EventID:       eventID,
			ProductID:     cmd.ProductID,
			EventType:     uint8(domain.EventCustodyTransfer),
			Location:      cmd.Location,
			Timestamp:     now,
			Actor:         cmd.Actor,
			Status:        uint8(aggregate.State.Status),
			Metadata:      cmd.Reason,
			PreviousOwner: previousOwner,
			NewOwner:      cmd.NewOwner,
		}).Error
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Str("productID", cmd.ProductID).
		Str("newOwner", cmd.NewOwner).
		Uint64("transferID", transferID).
		Msg("Custody transferred")

	return transferID, nil
}

// HandleAddQualityCheck records an inspection. A passing check moves the
// product to QualityChecked; a failing one leaves the status alone.
func (h *ProductHandler) HandleAddQualityCheck(ctx context.Context, cmd AddQualityCheckCommand) (checkID uint64, err error) {
	defer func(start time.Time) { h.metrics.ObserveOperation("add_quality_check", start, err) }(time.Now())

	if err := utils.ValidateStruct(cmd); err != nil {
		return 0, err
	}

	unlock := h.locks.Lock(productKey(cmd.ProductID))
	defer unlock()

	err = h.mutate(ctx, cmd.ProductID, cmd.Actor, domain.RoleQualityInspector, manufacturerOf, func(tx *gorm.DB, aggregate *domain.ProductAggregate, now time.Time) error {
		id, err := eventstore.NextSequence(tx, models.CounterCheck)
		if err != nil {
			return err
		}
		eventID, err := eventstore.NextSequence(tx, models.CounterEvent)
		if err != nil {
			return err
		}
		checkID = id

		if err := aggregate.Apply(domain.ProductQualityCheckedEvent{
			ProductID:           cmd.ProductID,
			CheckID:             id,
			EventID:             eventID,
			Inspector:           cmd.Actor,
			CheckType:           cmd.CheckType,
			Result:              cmd.Result,
			Score:               cmd.Score,
			Notes:               cmd.Notes,
			CertificationLevel:  cmd.CertificationLevel,
			ComplianceStandards: cmd.ComplianceStandards,
			Time:                now,
		}); err != nil {
			return err
		}

		if err := tx.Create(&models.QualityCheck{
			CheckID:             id,
			ProductID:           cmd.ProductID,
			Inspector:           cmd.Actor,
			CheckType:           cmd.CheckType,
			Result:              cmd.Result,
			Score:               cmd.Score,
			Notes:               cmd.Notes,
			Timestamp:           now,
			CertificationLevel:  cmd.CertificationLevel,
			ComplianceStandards: cmd.ComplianceStandards,
		}).Error; err != nil {
			return errors.Wrap(err, "failed to create quality check")
		}

		score := cmd.Score
		return tx.Create(&models.ProductEvent{
			EventID:      eventID,
			ProductID:    cmd.ProductID,
			EventType:    uint8(domain.EventQualityCheck),
			Location:     aggregate.State.CurrentLocation,
			Timestamp:    now,
			Actor:        cmd.Actor,
			Status:       uint8(aggregate.State.Status),
			Metadata:     cmd.Notes,
			QualityScore: &score,
		}).Error
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Str("productID", cmd.ProductID).
		Uint64("checkID", checkID).
		Bool("result", cmd.Result).
		Msg("Quality check recorded")

	return checkID, nil
}

// HandleUpdateStatus overwrites the product's status. Any status may follow any other.
func (h *ProductHandler) HandleUpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (eventID uint64, err error) {
	defer func(start time.Time) { h.metrics.ObserveOperation("update_status", start, err) }(time.Now())

	if err := utils.ValidateStruct(cmd); err != nil {
		return 0, err
	}
	if !cmd.Status.Valid() {
		return 0, errors.Wrapf(domain.ErrInvalidStatus, "status %d", uint8(cmd.Status))
	}

	unlock := h.locks.Lock(productKey(cmd.ProductID))
	defer unlock()

	err = h.mutate(ctx, cmd.ProductID, cmd.Actor, domain.RoleStatusUpdater, ownerOf, func(tx *gorm.DB, aggregate *domain.ProductAggregate, now time.Time) error {
		id, err := eventstore.NextSequence(tx, models.CounterEvent)
		if err != nil {
			return err
		}
		eventID = id

		if err := aggregate.Apply(domain.ProductStatusUpdatedEvent{
			ProductID: cmd.ProductID,
			EventID:   id,
			Previous:  aggregate.State.Status,
			Status:    cmd.Status,
			Metadata:  cmd.Metadata,
			Time:      now,
		}); err != nil {
			return err
		}

		return tx.Create(&models.ProductEvent{
			EventID:   id,
			ProductID: cmd.ProductID,
			EventType: uint8(domain.EventStatusUpdate),
			Location:  aggregate.State.CurrentLocation,
			Timestamp: now,
			Actor:     cmd.Actor,
			Status:    uint8(cmd.Status),
			Metadata:  cmd.Metadata,
		}).Error
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Str("productID", cmd.ProductID).
		Str("status", cmd.Status.String()).
		Msg("Status updated")

	return eventID, nil
}

// HandleDeactivateProduct marks a product inactive. Later mutations fail with InvalidStatus.
func (h *ProductHandler) HandleDeactivateProduct(ctx context.Context, cmd DeactivateProductCommand) (err error) {
	defer func(start time.Time) { h.metrics.ObserveOperation("deactivate_product", start, err) }(time.Now())

	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}

	unlock := h.locks.Lock(productKey(cmd.ProductID))
	defer unlock()

	// Only the manufacturer of record or the owner; no role unlocks this.
	return h.mutate(ctx, cmd.ProductID, cmd.Actor, "", manufacturerOf, func(tx *gorm.DB, aggregate *domain.ProductAggregate, now time.Time) error {
		return aggregate.Apply(domain.ProductDeactivatedEvent{
			ProductID: cmd.ProductID,
			Time:      now,
		})
	})
}

func ownerOf(state domain.ProductState) string        { return state.Owner }
func manufacturerOf(state domain.ProductState) string { return state.Manufacturer }

// mutate runs the shared read-authorize-write-append cycle for an existing product
func (h *ProductHandler) mutate(
	ctx context.Context,
	productID, actor, role string,
	resourceOwner func(domain.ProductState) string,
	apply func(tx *gorm.DB, aggregate *domain.ProductAggregate, now time.Time) error,
) error {
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		aggregate, err := lockProduct(tx, productID)
		if err != nil {
			return err
		}
		loadedVersion := aggregate.GetVersion()

		ok, err := h.canAct(tx, actor, resourceOwner(aggregate.State), role)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(domain.ErrNotAuthorized, "%s on product %s", actor, productID)
		}
		if !aggregate.State.IsActive {
			return errors.Wrapf(domain.ErrInvalidStatus, "product %s is inactive", productID)
		}

		now := h.clock.Now()
		if err := apply(tx, aggregate, now); err != nil {
			return err
		}

		if err := saveProduct(tx, aggregate, loadedVersion); err != nil {
			return err
		}

		_, err = h.store.Append(tx, aggregate, actor, now)
		return err
	})
}

func (h *ProductHandler) canAct(tx *gorm.DB, actor, resourceOwner, role string) (bool, error) {
	if role == "" {
		return h.auth.IsOwner(actor) || actor == resourceOwner, nil
	}
	return h.auth.CanAct(tx, actor, resourceOwner, role)
}
