package app

import (
	"farm-ledger/internal/core"

	"github.com/shopspring/decimal"
)

// CreateProductRequest is the input for creating a catalog product.
type CreateProductRequest struct {
	Actor         string
	Name          string
	Specification *string
	UnitPrice     int64
	CostPrice     int64
	SafetyStock   int
	TaxType       string // 과세, 면세 or 복합; empty means 면세
	ItemType      string // finished, material or harvest_item; empty means finished
	InitialStock  int
}

// SaveBOMRequest replaces all material edges of ProductID.
type SaveBOMRequest struct {
	Actor     string
	ProductID int
	Materials []BOMLineInput
}

// BOMLineInput is one material edge within a SaveBOMRequest.
type BOMLineInput struct {
	MaterialID int
	Ratio      decimal.Decimal
}

// CreateSaleRequest is the input for creating a sale.
type CreateSaleRequest struct {
	Actor string
	core.SaleInput
}

// UpdateSaleRequest overwrites every field of an existing sale.
type UpdateSaleRequest struct {
	Actor   string
	SalesID string
	core.SaleInput
}

// CompleteShipmentRequest records carrier details and moves the sale to 배송중.
type CompleteShipmentRequest struct {
	Actor          string
	SalesID        string
	Memo           *string
	Carrier        *string
	TrackingNumber *string
	ShippingDate   string // YYYY-MM-DD; empty means today
}

// CreateClaimRequest opens a claim against a sale.
type CreateClaimRequest struct {
	Actor string
	core.ClaimInput
}

// UpdateClaimRequest changes reason, quantity and memo of an open claim.
type UpdateClaimRequest struct {
	Actor          string
	ClaimID        int
	ReasonCategory string
	Quantity       int
	Memo           string
}

// ProcessClaimRequest records a claim resolution.
type ProcessClaimRequest struct {
	Actor                string
	ClaimID              int
	ClaimStatus          string
	IsInventoryRecovered bool
	RefundAmount         int64
}

// CreateBatchRequest opens a production batch for a product.
type CreateBatchRequest struct {
	Actor     string
	BatchCode string
	ProductID int
	StartDate string
}

// SaveHarvestRequest saves one harvest; CompleteBatch also closes its batch.
type SaveHarvestRequest struct {
	Actor         string
	Record        core.HarvestRecord
	CompleteBatch bool
}

// SavePurchaseRequest saves a purchase and books InventorySyncData as stock receipts.
type SavePurchaseRequest struct {
	Actor             string
	Purchase          core.Purchase
	InventorySyncData []core.SyncItem
}

// CreateCustomerRequest registers a customer, optionally with an opening balance.
type CreateCustomerRequest struct {
	Actor          string
	CustomerID     string
	Name           string
	MobileNumber   *string
	OpeningBalance int64
}

// LedgerEntryRequest creates (LedgerID = 0) or updates a customer ledger entry.
type LedgerEntryRequest struct {
	Actor           string
	LedgerID        int64
	CustomerID      string
	TransactionType string
	Amount          int64
	TransactionDate string // YYYY-MM-DD; empty means today
	Description     string
}

// AdjustStockRequest is a manual signed stock correction.
type AdjustStockRequest struct {
	Actor          string
	ProductID      int
	ChangeQty      int
	Memo           string
	ReasonCategory string // empty or 단순오차 for the default log type
}

// ConvertStockRequest books a manual production run.
type ConvertStockRequest struct {
	Actor       string
	ProductID   int
	ProducedQty int
	Materials   []core.MaterialDeduction
	Memo        string
}
