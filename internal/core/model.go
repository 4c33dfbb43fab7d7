package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// SystemActor is recorded as the acting user when a caller supplies none.
const SystemActor = "system"

// TaxType classifies a product (or a resolved sale) for VAT reporting.
type TaxType string

const (
	TaxTypeTaxable TaxType = "과세"
	TaxTypeExempt  TaxType = "면세"
	TaxTypeMixed   TaxType = "복합"
)

func (t TaxType) IsValid() bool {
	switch t {
	case TaxTypeTaxable, TaxTypeExempt, TaxTypeMixed:
		return true
	}
	return false
}

// ItemType distinguishes sellable goods from the materials they consume.
type ItemType string

const (
	ItemTypeFinished ItemType = "finished"
	ItemTypeMaterial ItemType = "material"
	ItemTypeHarvest  ItemType = "harvest_item"
)

func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeFinished, ItemTypeMaterial, ItemTypeHarvest:
		return true
	}
	return false
}

// Product is a catalog item. StockQuantity is materialized and always equals the
// sum of the stock-affecting inventory log deltas for the product.
// Identity is (Name, Specification) with a nil specification treated as its own value.
type Product struct {
	ID            int       `json:"product_id"`
	Name          string    `json:"product_name"`
	Specification *string   `json:"specification,omitempty"`
	UnitPrice     int64     `json:"unit_price"`
	CostPrice     int64     `json:"cost_price"`
	StockQuantity int       `json:"stock_quantity"`
	SafetyStock   int       `json:"safety_stock"`
	TaxType       TaxType   `json:"tax_type"`
	ItemType      ItemType  `json:"item_type"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewProduct is the input for CatalogService.CreateProduct.
// A positive InitialStock is booked as an opening 입고 log row.
type NewProduct struct {
	Name          string
	Specification *string
	UnitPrice     int64
	CostPrice     int64
	SafetyStock   int
	TaxType       TaxType
	ItemType      ItemType
	InitialStock  int
}

// BOMEdge is one material consumed by a product, with the material's own tax data.
type BOMEdge struct {
	MaterialID   int             `json:"material_id"`
	MaterialName string          `json:"material_name"`
	Ratio        decimal.Decimal `json:"ratio"`
	TaxType      TaxType         `json:"tax_type"`
	UnitPrice    int64           `json:"unit_price"`
}

// BOMEdgeInput is one edge passed to CatalogService.SaveBOM.
type BOMEdgeInput struct {
	MaterialID int
	Ratio      decimal.Decimal
}

// BOMGraph is a product's tax type and its single-level material edges.
// Legacy is set when the edges came from the products.material_id / aux_material_id
// columns because no product_bom rows exist.
type BOMGraph struct {
	ProductID int
	TaxType   TaxType
	Edges     []BOMEdge
	Legacy    bool
}

// ChangeEvent describes a committed engine mutation.
type ChangeEvent struct {
	Entity string    `json:"entity"` // sale, claim, ledger, harvest, purchase, stock, product
	Kind   string    `json:"kind"`   // created, updated, deleted, shipped, ...
	ID     string    `json:"id"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}
