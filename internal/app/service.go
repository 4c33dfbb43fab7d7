package app

import (
	"context"

	"farm-ledger/internal/core"
)

// ApplicationService is the single interface all adapters (CLI, watchers, an HTTP
// layer) call. Requests carry the acting user; an empty actor falls back to the
// configured default. Implementations contain no display logic of any kind.
type ApplicationService interface {
	// ── Catalog ──

	CreateProduct(ctx context.Context, req CreateProductRequest) (*core.Product, error)
	GetProduct(ctx context.Context, productID int) (*core.Product, error)
	// SaveBOM replaces the material edges of a product.
	SaveBOM(ctx context.Context, req SaveBOMRequest) (*core.BOMGraph, error)

	// ── Sales ──

	// CreateSale stores a sale and books its stock cascade; returns the new sale id in the result.
	CreateSale(ctx context.Context, req CreateSaleRequest) (*SaleResult, error)
	UpdateSale(ctx context.Context, req UpdateSaleRequest) (*SaleResult, error)
	DeleteSale(ctx context.Context, actor, salesID string) error
	CancelSale(ctx context.Context, actor, salesID string) error
	UpdateSaleStatus(ctx context.Context, actor, salesID, status string) error
	CompleteShipment(ctx context.Context, req CompleteShipmentRequest) (*SaleResult, error)
	GetSale(ctx context.Context, salesID string) (*SaleResult, error)

	// ── Claims ──

	CreateClaim(ctx context.Context, req CreateClaimRequest) (*core.SalesClaim, error)
	UpdateClaim(ctx context.Context, req UpdateClaimRequest) (*core.SalesClaim, error)
	DeleteClaim(ctx context.Context, actor string, claimID int) error
	ProcessSalesClaim(ctx context.Context, req ProcessClaimRequest) (*core.SalesClaim, error)

	// ── Production and purchases ──

	CreateBatch(ctx context.Context, req CreateBatchRequest) (*core.ProductionBatch, error)
	SaveHarvestRecord(ctx context.Context, req SaveHarvestRequest) (*core.HarvestRecord, error)
	SaveHarvestBatch(ctx context.Context, actor string, records []core.HarvestRecord) ([]core.HarvestRecord, error)
	DeleteHarvestRecord(ctx context.Context, actor string, harvestID int) error
	SavePurchase(ctx context.Context, req SavePurchaseRequest) (*core.Purchase, error)
	DeletePurchase(ctx context.Context, actor string, purchaseID int) error

	// ── Customer ledger ──

	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*core.Customer, error)
	CreateLedgerEntry(ctx context.Context, req LedgerEntryRequest) (*core.LedgerEntry, error)
	UpdateLedgerEntry(ctx context.Context, req LedgerEntryRequest) (*core.LedgerEntry, error)
	DeleteLedgerEntry(ctx context.Context, actor string, ledgerID int64) error
	// GetCustomerLedger returns a customer with entries in [fromDate, toDate]; empty bounds are open.
	GetCustomerLedger(ctx context.Context, customerID, fromDate, toDate string) (*CustomerLedgerResult, error)
	// GetCustomersWithDebt reconciles balances against the ledger before listing debtors.
	GetCustomersWithDebt(ctx context.Context) (*DebtorReport, error)

	// ── Stock ──

	AdjustStock(ctx context.Context, req AdjustStockRequest) (*core.InventoryLog, error)
	SetStock(ctx context.Context, actor string, productID, quantity int, memo string) (*core.InventoryLog, error)
	ConvertStock(ctx context.Context, req ConvertStockRequest) (string, error)
	GetInventoryLogs(ctx context.Context, filter core.LogFilter) (*InventoryLogResult, error)
	VerifyStock(ctx context.Context) (*StockVerification, error)
}
