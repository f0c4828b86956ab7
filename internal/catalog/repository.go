package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/milltrack-erp/milltrack/internal/composition"
	"github.com/milltrack-erp/milltrack/internal/platform/db"
	"github.com/milltrack-erp/milltrack/internal/shared"
)

// RepositoryPort describes persistence operations used by the catalog.
type RepositoryPort interface {
	ListActive(ctx context.Context, kind Kind) ([]Entity, error)
	LookupByName(ctx context.Context, kind Kind, name string) ([]Entity, error)
	Create(ctx context.Context, kind Kind, name string) (Entity, error)
	Deactivate(ctx context.Context, kind Kind, id int64) error
	ListBrands(ctx context.Context, yarnTypeID int64) ([]Brand, error)
	LookupBrand(ctx context.Context, yarnTypeID int64, name string) ([]Brand, error)
	CreateBrand(ctx context.Context, yarnTypeID int64, name string) (Brand, error)
	ListRecipes(ctx context.Context) (map[int64]composition.Recipe, error)
	CreateGreigeType(ctx context.Context, name string, components []composition.Component) (Entity, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActive returns active entities of one kind ordered by name.
func (r *Repository) ListActive(ctx context.Context, kind Kind) ([]Entity, error) {
	table, err := kind.Table()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, name, is_active FROM %s WHERE is_active ORDER BY name`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

// LookupByName performs a case-insensitive lookup, returning up to five hits.
func (r *Repository) LookupByName(ctx context.Context, kind Kind, name string) ([]Entity, error) {
	table, err := kind.Table()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, name, is_active FROM %s WHERE name ILIKE $1 LIMIT 5`, table), name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

// Create inserts a new active entity.
func (r *Repository) Create(ctx context.Context, kind Kind, name string) (Entity, error) {
	table, err := kind.Table()
	if err != nil {
		return Entity{}, err
	}
	if name == "" {
		return Entity{}, fmt.Errorf("catalog: %w: name required", shared.ErrValidation)
	}
	var id int64
	err = r.pool.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %s (name, is_active) VALUES ($1, true) RETURNING id`, table), name).Scan(&id)
	if err != nil {
		return Entity{}, err
	}
	return Entity{ID: id, Name: name, IsActive: true}, nil
}

// Deactivate toggles an entity off; master rows are never hard-deleted.
func (r *Repository) Deactivate(ctx context.Context, kind Kind, id int64) error {
	table, err := kind.Table()
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET is_active = false WHERE id = $1`, table), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListBrands returns active brands of one yarn type ordered by name.
func (r *Repository) ListBrands(ctx context.Context, yarnTypeID int64) ([]Brand, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, yarn_type_id, name, is_active FROM yarn_brands
WHERE yarn_type_id = $1 AND is_active ORDER BY name`, yarnTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBrands(rows)
}

// LookupBrand performs a case-insensitive brand lookup within one yarn type.
func (r *Repository) LookupBrand(ctx context.Context, yarnTypeID int64, name string) ([]Brand, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, yarn_type_id, name, is_active FROM yarn_brands
WHERE yarn_type_id = $1 AND name ILIKE $2 LIMIT 10`, yarnTypeID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBrands(rows)
}

// CreateBrand inserts a new active brand under the given yarn type.
func (r *Repository) CreateBrand(ctx context.Context, yarnTypeID int64, name string) (Brand, error) {
	if yarnTypeID == 0 || name == "" {
		return Brand{}, fmt.Errorf("catalog: %w: yarn type and name required", shared.ErrValidation)
	}
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO yarn_brands (yarn_type_id, name, is_active) VALUES ($1, $2, true) RETURNING id`,
		yarnTypeID, name).Scan(&id)
	if err != nil {
		return Brand{}, err
	}
	return Brand{ID: id, YarnTypeID: yarnTypeID, Name: name, IsActive: true}, nil
}

// ListRecipes loads every greige type recipe, components in insertion order.
func (r *Repository) ListRecipes(ctx context.Context) (map[int64]composition.Recipe, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT greige_type_id, yarn_type_id, pct FROM greige_type_components ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipes := make(map[int64]composition.Recipe)
	for rows.Next() {
		var (
			greigeTypeID int64
			yarnTypeID   int64
			pct          decimal.Decimal
		)
		if err := rows.Scan(&greigeTypeID, &yarnTypeID, &pct); err != nil {
			return nil, err
		}
		recipe := recipes[greigeTypeID]
		recipe.GreigeTypeID = greigeTypeID
		recipe.Components = append(recipe.Components, composition.Component{YarnTypeID: yarnTypeID, Pct: pct})
		recipes[greigeTypeID] = recipe
	}
	return recipes, rows.Err()
}

// CreateGreigeType inserts a greige type together with its recipe in one
// transaction. Callers validate the recipe beforehand.
func (r *Repository) CreateGreigeType(ctx context.Context, name string, components []composition.Component) (Entity, error) {
	if name == "" {
		return Entity{}, fmt.Errorf("catalog: %w: name required", shared.ErrValidation)
	}
	created := Entity{Name: name, IsActive: true}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO greige_types (name, is_active) VALUES ($1, true) RETURNING id`, name).Scan(&created.ID); err != nil {
			return err
		}
		for _, c := range components {
			if _, err := tx.Exec(ctx,
				`INSERT INTO greige_type_components (greige_type_id, yarn_type_id, pct) VALUES ($1, $2, $3)`,
				created.ID, c.YarnTypeID, c.Pct); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Entity{}, err
	}
	return created, nil
}

func scanEntities(rows pgx.Rows) ([]Entity, error) {
	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.IsActive); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func scanBrands(rows pgx.Rows) ([]Brand, error) {
	var out []Brand
	for rows.Next() {
		var b Brand
		if err := rows.Scan(&b.ID, &b.YarnTypeID, &b.Name, &b.IsActive); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
