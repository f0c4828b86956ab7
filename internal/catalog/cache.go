package catalog

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/milltrack-erp/milltrack/internal/composition"
	"github.com/milltrack-erp/milltrack/internal/shared"
)

// Catalog is a reference cache scoped to one workflow or import run. It must
// be refreshed explicitly for a new run; it is never trusted to stay fresh
// across runs. Entities resolved or created through it are memoized so the
// same name never creates duplicates within a run.
type Catalog struct {
	repo RepositoryPort

	active  map[Kind][]Entity
	byID    map[Kind]map[int64]Entity
	byName  map[Kind]map[string]Entity
	recipes map[int64]composition.Recipe

	brandsByType map[int64][]Brand
	brandByKey   map[string]Brand
}

// NewCatalog constructs an empty catalog; call Refresh before use.
func NewCatalog(repo RepositoryPort) *Catalog {
	c := &Catalog{repo: repo}
	c.reset()
	return c
}

func (c *Catalog) reset() {
	c.active = make(map[Kind][]Entity)
	c.byID = make(map[Kind]map[int64]Entity)
	c.byName = make(map[Kind]map[string]Entity)
	c.recipes = make(map[int64]composition.Recipe)
	c.brandsByType = make(map[int64][]Brand)
	c.brandByKey = make(map[string]Brand)
	for _, k := range Kinds {
		c.byID[k] = make(map[int64]Entity)
		c.byName[k] = make(map[string]Entity)
	}
}

// Refresh reloads every entity family. Families populate disjoint caches so
// the loads run concurrently and are joined before returning.
func (c *Catalog) Refresh(ctx context.Context) error {
	c.reset()

	loaded := make([][]Entity, len(Kinds))
	var recipes map[int64]composition.Recipe

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range Kinds {
		g.Go(func() error {
			entities, err := c.repo.ListActive(gctx, kind)
			if err != nil {
				return fmt.Errorf("catalog: load %s: %w", kind, err)
			}
			loaded[i] = entities
			return nil
		})
	}
	g.Go(func() error {
		var err error
		recipes, err = c.repo.ListRecipes(gctx)
		if err != nil {
			return fmt.Errorf("catalog: load recipes: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for i, kind := range Kinds {
		for _, e := range loaded[i] {
			c.memo(kind, e)
		}
		c.active[kind] = loaded[i]
	}
	c.recipes = recipes
	if c.recipes == nil {
		c.recipes = make(map[int64]composition.Recipe)
	}
	return nil
}

// Active returns the cached active entities of one kind, name-ordered.
func (c *Catalog) Active(kind Kind) []Entity {
	return c.active[kind]
}

// Get returns a cached entity by id.
func (c *Catalog) Get(kind Kind, id int64) (Entity, bool) {
	e, ok := c.byID[kind][id]
	return e, ok
}

// Recipe returns the cached recipe of a greige type.
func (c *Catalog) Recipe(greigeTypeID int64) (composition.Recipe, bool) {
	r, ok := c.recipes[greigeTypeID]
	return r, ok
}

// BrandsForType returns active brands of a yarn type, loading them lazily
// on first access.
func (c *Catalog) BrandsForType(ctx context.Context, yarnTypeID int64) ([]Brand, error) {
	if brands, ok := c.brandsByType[yarnTypeID]; ok {
		return brands, nil
	}
	brands, err := c.repo.ListBrands(ctx, yarnTypeID)
	if err != nil {
		return nil, err
	}
	c.brandsByType[yarnTypeID] = brands
	for _, b := range brands {
		c.brandByKey[brandKey(b.YarnTypeID, b.Name)] = b
	}
	return brands, nil
}

// GetOrCreateByName resolves a textual reference: cache first, then a
// case-insensitive repository lookup preferring the exact normalized match,
// then creation. Every resolution is memoized immediately.
func (c *Catalog) GetOrCreateByName(ctx context.Context, kind Kind, name string) (Entity, error) {
	key := shared.NormKey(name)
	if key == "" {
		return Entity{}, fmt.Errorf("catalog: %w: %s name required", shared.ErrValidation, kind)
	}
	if e, ok := c.byName[kind][key]; ok {
		return e, nil
	}

	hits, err := c.repo.LookupByName(ctx, kind, name)
	if err == nil && len(hits) > 0 {
		match := hits[0]
		for _, h := range hits {
			if shared.NormKey(h.Name) == key {
				match = h
				break
			}
		}
		c.memo(kind, match)
		return match, nil
	}

	created, err := c.repo.Create(ctx, kind, name)
	if err != nil {
		return Entity{}, err
	}
	c.memo(kind, created)
	return created, nil
}

// GetOrCreateBrand resolves a brand by (yarn type, name). An empty name
// resolves to nil because the brand is optional.
func (c *Catalog) GetOrCreateBrand(ctx context.Context, yarnTypeID int64, name string) (*Brand, error) {
	if yarnTypeID == 0 {
		return nil, fmt.Errorf("catalog: %w: yarn type required for brand", shared.ErrValidation)
	}
	key := shared.NormKey(name)
	if key == "" {
		return nil, nil
	}
	if b, ok := c.brandByKey[brandKey(yarnTypeID, name)]; ok {
		return &b, nil
	}

	hits, err := c.repo.LookupBrand(ctx, yarnTypeID, name)
	if err == nil && len(hits) > 0 {
		match := hits[0]
		for _, h := range hits {
			if shared.NormKey(h.Name) == key {
				match = h
				break
			}
		}
		c.memoBrand(match)
		return &match, nil
	}

	created, err := c.repo.CreateBrand(ctx, yarnTypeID, name)
	if err != nil {
		return nil, err
	}
	c.memoBrand(created)
	return &created, nil
}

func (c *Catalog) memo(kind Kind, e Entity) {
	c.byID[kind][e.ID] = e
	c.byName[kind][shared.NormKey(e.Name)] = e
}

func (c *Catalog) memoBrand(b Brand) {
	c.brandByKey[brandKey(b.YarnTypeID, b.Name)] = b
	c.brandsByType[b.YarnTypeID] = append(c.brandsByType[b.YarnTypeID], b)
}

func brandKey(yarnTypeID int64, name string) string {
	return fmt.Sprintf("%d|%s", yarnTypeID, shared.NormKey(name))
}
