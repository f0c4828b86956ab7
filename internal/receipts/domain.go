// Package receipts assembles material-intake documents (yarn purchases and
// greige receipts) into normalized payloads and runs them through the
// change-request workflow.
package receipts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Family identifies a document family.
type Family string

const (
	FamilyYarnPurchase  Family = "yarn_purchase"
	FamilyGreigeReceipt Family = "greige_receipt"
)

// DocumentSummary is one row of a listing view.
type DocumentSummary struct {
	ID               int64           `json:"id"`
	NoteNo           string          `json:"note_no"`
	NoteDate         time.Time       `json:"note_date"`
	CounterpartyName string          `json:"counterparty_name"`
	RecipientName    string          `json:"recipient_name"`
	Status           string          `json:"status"`
	ItemCount        int             `json:"item_count"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
}

// Allocation is the derived requirement of one yarn component of a greige
// line. RequiredQty is computed from the recipe, never entered.
type Allocation struct {
	YarnTypeID  int64           `json:"yarn_type_id"`
	RequiredQty decimal.Decimal `json:"required_qty"`
	BrandID     *int64          `json:"brand_id,omitempty"`
	LotNo       string          `json:"lot_no,omitempty"`
}

// YarnItem is one line of a yarn purchase.
type YarnItem struct {
	YarnTypeID int64           `json:"yarn_type_id"`
	BrandID    *int64          `json:"brand_id,omitempty"`
	LotNo      string          `json:"lot_no,omitempty"`
	Qty        decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	LineTotal  decimal.Decimal `json:"line_total"`
}

// GreigeItem is one line of a greige receipt.
type GreigeItem struct {
	GreigeTypeID int64           `json:"greige_type_id"`
	Qty          decimal.Decimal `json:"qty"`
	Rolls        int             `json:"rolls,omitempty"`
	Specs        string          `json:"specs,omitempty"`
	Allocations  []Allocation    `json:"allocations,omitempty"`
}

// YarnPurchaseInput is the normalized interactive input for one yarn
// purchase document.
type YarnPurchaseInput struct {
	SupplierID int64
	FactoryID  int64
	NoteNo     string
	NoteDate   time.Time
	ImagePath  string
	Items      []YarnItemInput
}

// YarnItemInput is one raw yarn purchase line before totals are derived.
type YarnItemInput struct {
	YarnTypeID int64
	BrandID    *int64
	LotNo      string
	Qty        decimal.Decimal
	Price      decimal.Decimal
}

// GreigeReceiptInput is the normalized interactive input for one greige
// receipt document.
type GreigeReceiptInput struct {
	FactoryID  int64
	DyeHouseID int64
	NoteNo     string
	NoteDate   time.Time
	ImagePath  string
	Items      []GreigeItemInput
}

// GreigeItemInput is one raw greige line. Brand and lot details per yarn
// component may be supplied; required quantities never are.
type GreigeItemInput struct {
	GreigeTypeID int64
	Qty          decimal.Decimal
	Rolls        int
	Specs        string
	Details      []AllocationDetail
}

// AllocationDetail carries the user-supplied brand and lot of one recipe
// component.
type AllocationDetail struct {
	YarnTypeID int64
	BrandID    *int64
	LotNo      string
}
