package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/milltrack-erp/milltrack/internal/composition"
	"github.com/milltrack-erp/milltrack/internal/shared"
)

// AuditPort records master-data mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service guards master-data mutations. Interactive creation of master rows
// is a manager action; the bulk importer goes through the Catalog directly.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService constructs the catalog service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// List returns the active entities of one kind.
func (s *Service) List(ctx context.Context, kind Kind) ([]Entity, error) {
	return s.repo.ListActive(ctx, kind)
}

// ListBrands returns the active brands of one yarn type.
func (s *Service) ListBrands(ctx context.Context, yarnTypeID int64) ([]Brand, error) {
	return s.repo.ListBrands(ctx, yarnTypeID)
}

// Create adds a master entity. Manager only.
func (s *Service) Create(ctx context.Context, kind Kind, name string, actor shared.Identity) (Entity, error) {
	if !actor.Manager {
		return Entity{}, shared.ErrForbidden
	}
	created, err := s.repo.Create(ctx, kind, name)
	if err != nil {
		return Entity{}, err
	}
	s.recordAudit(ctx, actor, "MASTER_CREATE", string(kind), created.ID, map[string]any{"name": name})
	return created, nil
}

// CreateBrand adds a yarn brand under a yarn type. Manager only.
func (s *Service) CreateBrand(ctx context.Context, yarnTypeID int64, name string, actor shared.Identity) (Brand, error) {
	if !actor.Manager {
		return Brand{}, shared.ErrForbidden
	}
	created, err := s.repo.CreateBrand(ctx, yarnTypeID, name)
	if err != nil {
		return Brand{}, err
	}
	s.recordAudit(ctx, actor, "MASTER_CREATE", "yarn_brand", created.ID, map[string]any{
		"name":         name,
		"yarn_type_id": yarnTypeID,
	})
	return created, nil
}

// CreateGreigeType persists a greige type with its recipe. The 100% total
// and per-component checks run before anything is written. Manager only.
func (s *Service) CreateGreigeType(ctx context.Context, name string, components []composition.Component, actor shared.Identity) (Entity, error) {
	if !actor.Manager {
		return Entity{}, shared.ErrForbidden
	}
	if len(components) == 0 {
		return Entity{}, fmt.Errorf("catalog: %w: recipe requires at least one component", shared.ErrValidation)
	}
	if err := composition.ValidateRecipe(composition.Recipe{Components: components}); err != nil {
		return Entity{}, fmt.Errorf("catalog: %w: %v", shared.ErrValidation, err)
	}
	created, err := s.repo.CreateGreigeType(ctx, name, components)
	if err != nil {
		return Entity{}, err
	}
	s.recordAudit(ctx, actor, "MASTER_CREATE", "greige_type", created.ID, map[string]any{
		"name":       name,
		"components": len(components),
	})
	return created, nil
}

// Deactivate toggles an entity off. Manager only.
func (s *Service) Deactivate(ctx context.Context, kind Kind, id int64, actor shared.Identity) error {
	if !actor.Manager {
		return shared.ErrForbidden
	}
	if err := s.repo.Deactivate(ctx, kind, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "MASTER_DEACTIVATE", string(kind), id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Identity, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{ActorID: actor.UserID, Action: action, Entity: entity, EntityID: strconv.FormatInt(id, 10), Meta: meta}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("record audit", slog.Any("error", err))
	}
}
