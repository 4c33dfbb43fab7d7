package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// HarvestRecord is one harvest from a production batch. Quantity is the standard
// (sellable) yield; defective and loss quantities are logged but not stocked.
type HarvestRecord struct {
	ID                int             `json:"harvest_id"`
	BatchID           int             `json:"batch_id"`
	HarvestDate       string          `json:"harvest_date"` // YYYY-MM-DD
	Quantity          decimal.Decimal `json:"quantity"`
	DefectiveQuantity decimal.Decimal `json:"defective_quantity"`
	LossQuantity      decimal.Decimal `json:"loss_quantity"`
	Unit              string          `json:"unit"`
	Grade             string          `json:"grade,omitempty"`
	Memo              string          `json:"memo,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// BatchStatus values for production_batches.
const (
	BatchInProgress = "in_progress"
	BatchCompleted  = "completed"
)

// ProductionBatch groups the harvests of one growing cycle of a product.
type ProductionBatch struct {
	ID        int     `json:"batch_id"`
	BatchCode string  `json:"batch_code"`
	ProductID *int    `json:"product_id,omitempty"`
	StartDate string  `json:"start_date"`
	EndDate   *string `json:"end_date,omitempty"`
	Status    string  `json:"status"`
}

// Purchase is a procurement record. Stock is only injected through SyncItems.
type Purchase struct {
	ID              int       `json:"purchase_id"`
	VendorID        *int      `json:"vendor_id,omitempty"`
	PurchaseDate    string    `json:"purchase_date"` // YYYY-MM-DD
	ItemName        string    `json:"item_name"`
	Specification   *string   `json:"specification,omitempty"`
	Quantity        int       `json:"quantity"`
	UnitPrice       int64     `json:"unit_price"`
	TotalAmount     int64     `json:"total_amount"`
	PaymentStatus   string    `json:"payment_status,omitempty"`
	Memo            string    `json:"memo,omitempty"`
	InventorySynced bool      `json:"inventory_synced"`
	MaterialItemID  *int      `json:"material_item_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// SyncItem is one (product, quantity) receipt booked by SavePurchase.
type SyncItem struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}
