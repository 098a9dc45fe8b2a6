package handlers

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/eventstore"
	"example.com/backstage/services/provenance/internal/clock"
	"example.com/backstage/services/provenance/internal/metrics"
	"example.com/backstage/services/provenance/models"
	"example.com/backstage/services/provenance/utils"
)

// GrantRoleCommand sets or clears a role for a principal
type GrantRoleCommand struct {
	Actor        string `json:"-" validate:"required,max=64,principal"`
	Principal    string `json:"principal" validate:"required,max=64,principal"`
	Role         string `json:"role" validate:"required,max=64,ledger_id"`
	IsAuthorized bool   `json:"is_authorized"`
}

// AuthorizationHandler owns the role registry and the owner identity
type AuthorizationHandler struct {
	db      *gorm.DB
	store   eventstore.EventStore
	clock   clock.Clock
	locks   *KeyedMutex
	metrics *metrics.Metrics
	owner   string
}

// NewAuthorizationHandler creates a new authorization handler
func NewAuthorizationHandler(db *gorm.DB, store eventstore.EventStore, clk clock.Clock, locks *KeyedMutex, m *metrics.Metrics, owner string) *AuthorizationHandler {
	return &AuthorizationHandler{
		db:      db,
		store:   store,
		clock:   clk,
		locks:   locks,
		metrics: m,
		owner:   owner,
	}
}

// Owner returns the system owner principal
func (h *AuthorizationHandler) Owner() string {
	return h.owner
}

// IsOwner reports whether principal is the system owner
func (h *AuthorizationHandler) IsOwner(principal string) bool {
	return principal != "" && principal == h.owner
}

// HandleGrantRole overwrites a grant. Owner only.
func (h *AuthorizationHandler) HandleGrantRole(ctx context.Context, cmd GrantRoleCommand) (err error) {
	defer func(start time.Time) { h.metrics.ObserveOperation("grant_role", start, err) }(time.Now())

	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}
	if !h.IsOwner(cmd.Actor) {
		return errors.Wrapf(domain.ErrNotAuthorized, "%s may not grant roles", cmd.Actor)
	}
	if !domain.IsKnownRole(cmd.Role) {
		log.Warn().Str("role", cmd.Role).Msg("Granting role outside the built-in set")
	}

	log.Info().
		Str("principal", cmd.Principal).
		Str("role", cmd.Role).
		Bool("authorized", cmd.IsAuthorized).
		Msg("Handling grant role command")

	unlock := h.locks.Lock(grantKey(cmd.Principal, cmd.Role))
	defer unlock()

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := h.clock.Now()

		grant := models.AuthorizationGrant{
			Principal:    cmd.Principal,
			Role:         cmd.Role,
			IsAuthorized: cmd.IsAuthorized,
			GrantedBy:    cmd.Actor,
			GrantedAt:    now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "principal"}, {Name: "role"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_authorized", "granted_by", "granted_at"}),
		}).Create(&grant).Error; err != nil {
			return errors.Wrap(err, "failed to save grant")
		}

		aggregate := domain.NewRecordAggregate(domain.AuthorizationAggregateType, cmd.Principal+"/"+cmd.Role)
		if err := positionRecordAggregate(tx, aggregate); err != nil {
			return err
		}
		if err := aggregate.Apply(domain.RoleGrantedEvent{
			Principal:    cmd.Principal,
			Role:         cmd.Role,
			IsAuthorized: cmd.IsAuthorized,
			GrantedBy:    cmd.Actor,
			Time:         now,
		}); err != nil {
			return err
		}

		_, err := h.store.Append(tx, aggregate, cmd.Actor, now)
		return err
	})
}

// IsAuthorized reports whether principal currently holds role. Absent grants are false.
func (h *AuthorizationHandler) IsAuthorized(ctx context.Context, principal, role string) (bool, error) {
	return h.isAuthorized(h.db.WithContext(ctx), principal, role)
}

// GetGrant returns the stored grant, or nil if none was ever written
func (h *AuthorizationHandler) GetGrant(ctx context.Context, principal, role string) (*models.AuthorizationGrant, error) {
	var grant models.AuthorizationGrant
	err := h.db.WithContext(ctx).
		Where("principal = ? AND role = ?", principal, role).
		Take(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load grant")
	}
	return &grant, nil
}

// ListGrants returns every grant written for principal
func (h *AuthorizationHandler) ListGrants(ctx context.Context, principal string) ([]models.AuthorizationGrant, error) {
	var grants []models.AuthorizationGrant
	if err := h.db.WithContext(ctx).
		Where("principal = ?", principal).
		Order("role ASC").
		Find(&grants).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list grants")
	}
	return grants, nil
}

// CanAct is the check every mutation runs inside its transaction: the
// actor must be the resource owner, the system owner, or hold role.
func (h *AuthorizationHandler) CanAct(tx *gorm.DB, actor, resourceOwner, role string) (bool, error) {
	if actor == "" {
		return false, nil
	}
	if h.IsOwner(actor) || (resourceOwner != "" && actor == resourceOwner) {
		return true, nil
	}
	return h.isAuthorized(tx, actor, role)
}

func (h *AuthorizationHandler) isAuthorized(db *gorm.DB, principal, role string) (bool, error) {
	var grant models.AuthorizationGrant
	err := db.Where("principal = ? AND role = ?", principal, role).Take(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to load grant")
	}
	return grant.IsAuthorized, nil
}

// positionRecordAggregate moves a record aggregate to its last version on the
// ledger. Callers hold the aggregate's key in KeyedMutex.
func positionRecordAggregate(tx *gorm.DB, aggregate *domain.RecordAggregate) error {
	var version int
	if err := tx.Model(&models.LedgerEntry{}).
		Where("aggregate_type = ? AND aggregate_id = ?", aggregate.GetType(), aggregate.GetID()).
		Select("COALESCE(MAX(version), 0)").
		Scan(&version).Error; err != nil {
		return errors.Wrap(err, "failed to read aggregate version")
	}
	aggregate.SetVersion(version)
	return nil
}
