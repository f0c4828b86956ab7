// Package catalog manages the master reference entities: suppliers,
// factories, yarn types, yarn brands, greige types and dye houses.
package catalog

import "fmt"

// Kind identifies one master entity family.
type Kind string

const (
	KindSupplier   Kind = "supplier"
	KindFactory    Kind = "factory"
	KindYarnType   Kind = "yarn_type"
	KindGreigeType Kind = "greige_type"
	KindDyeHouse   Kind = "dye_house"
)

// Kinds lists every entity family handled uniformly by the repository.
var Kinds = []Kind{KindSupplier, KindFactory, KindYarnType, KindGreigeType, KindDyeHouse}

// table maps kinds onto their backing collections.
var tables = map[Kind]string{
	KindSupplier:   "suppliers",
	KindFactory:    "factories",
	KindYarnType:   "yarn_types",
	KindGreigeType: "greige_types",
	KindDyeHouse:   "dye_houses",
}

// Table returns the collection name for a kind.
func (k Kind) Table() (string, error) {
	t, ok := tables[k]
	if !ok {
		return "", fmt.Errorf("catalog: unknown kind %q", k)
	}
	return t, nil
}

// Entity is one master record. Entities referenced by documents are never
// hard-deleted; they are only deactivated.
type Entity struct {
	ID       int64
	Name     string
	IsActive bool
}

// Brand is a yarn brand, owned by one yarn type.
type Brand struct {
	ID         int64
	YarnTypeID int64
	Name       string
	IsActive   bool
}
