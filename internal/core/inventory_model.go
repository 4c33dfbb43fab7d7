package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChangeType is the kind of an inventory log row.
type ChangeType string

const (
	ChangeIn        ChangeType = "입고"
	ChangeOut       ChangeType = "출고"
	ChangeAdjust    ChangeType = "조정"
	ChangeDefective ChangeType = "비상품"
	ChangeLoss      ChangeType = "손실"
)

// reasonSimpleError is the adjustment reason that falls back to the default log type.
const reasonSimpleError = "단순오차"

// CascadeDirection says whether BOM materials are consumed or given back.
type CascadeDirection int

const (
	CascadeConsume CascadeDirection = -1
	CascadeRestore CascadeDirection = 1
)

// StockMovement is one signed stock change to apply and log.
type StockMovement struct {
	ProductID   int
	Quantity    int // signed
	ChangeType  ChangeType
	ReferenceID string
	Memo        string
}

// InventoryLog is an append-only stock history row.
// CurrentStock is the product's stock right after the row was written.
// Rows with AffectsStock = false are informational and excluded from the stock sum.
type InventoryLog struct {
	ID             int64      `json:"log_id"`
	ProductID      int        `json:"product_id"`
	ProductName    string     `json:"product_name,omitempty"`
	ChangeType     ChangeType `json:"change_type"`
	ChangeQuantity int        `json:"change_quantity"`
	CurrentStock   int        `json:"current_stock"`
	AffectsStock   bool       `json:"affects_stock"`
	ReferenceID    string     `json:"reference_id,omitempty"`
	Memo           string     `json:"memo,omitempty"`
	CreatedBy      string     `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// LogFilter narrows GetInventoryLogs. Zero values mean no filter; Limit defaults to 100.
type LogFilter struct {
	ProductID   int
	ReferenceID string
	ChangeType  ChangeType
	Limit       int
}

// StockDrift reports a product whose stock disagrees with its log sum.
type StockDrift struct {
	ProductID     int    `json:"product_id"`
	ProductName   string `json:"product_name"`
	StockQuantity int    `json:"stock_quantity"`
	LoggedTotal   int64  `json:"logged_total"`
}

// MaterialDeduction is one material consumed by a manual BOM conversion.
type MaterialDeduction struct {
	MaterialID int
	Quantity   int
}

// MaterialRequirement returns how many units of a material producing or selling qty
// units of the parent consumes: ceil(qty * ratio).
func MaterialRequirement(qty, ratio decimal.Decimal) int {
	return int(qty.Mul(ratio).Ceil().IntPart())
}
