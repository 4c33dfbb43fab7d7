package app

import (
	"context"
	"strings"

	"farm-ledger/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
)

type appService struct {
	defaultActor string
	catalog      core.CatalogService
	stock        core.StockLedger
	ledger       core.CustomerLedger
	sales        core.SalesService
	claims       core.ClaimService
	harvest      core.HarvestService
	purchases    core.PurchaseService
}

// NewAppService wires the engine services over pool. opts (notifier, logger) apply
// to every service. defaultActor is recorded for requests that carry no actor.
func NewAppService(pool *pgxpool.Pool, defaultActor string, opts ...core.Option) ApplicationService {
	stock := core.NewStockLedger(pool, opts...)
	ledger := core.NewCustomerLedger(pool, opts...)
	return &appService{
		defaultActor: defaultActor,
		catalog:      core.NewCatalogService(pool, stock, opts...),
		stock:        stock,
		ledger:       ledger,
		sales:        core.NewSalesService(pool, stock, ledger, opts...),
		claims:       core.NewClaimService(pool, stock, opts...),
		harvest:      core.NewHarvestService(pool, stock, opts...),
		purchases:    core.NewPurchaseService(pool, stock, opts...),
	}
}

func (s *appService) actor(a string) string {
	if strings.TrimSpace(a) == "" {
		return s.defaultActor
	}
	return a
}

// ── Catalog ──────────────────────────────────────────────────────────────────

func (s *appService) CreateProduct(ctx context.Context, req CreateProductRequest) (*core.Product, error) {
	return s.catalog.CreateProduct(ctx, s.actor(req.Actor), core.NewProduct{
		Name:          req.Name,
		Specification: req.Specification,
		UnitPrice:     req.UnitPrice,
		CostPrice:     req.CostPrice,
		SafetyStock:   req.SafetyStock,
		TaxType:       core.TaxType(req.TaxType),
		ItemType:      core.ItemType(req.ItemType),
		InitialStock:  req.InitialStock,
	})
}

func (s *appService) GetProduct(ctx context.Context, productID int) (*core.Product, error) {
	return s.catalog.GetProduct(ctx, productID)
}

// SaveBOM replaces the edges and returns the resolved graph.
func (s *appService) SaveBOM(ctx context.Context, req SaveBOMRequest) (*core.BOMGraph, error) {
	edges := make([]core.BOMEdgeInput, len(req.Materials))
	for i, m := range req.Materials {
		edges[i] = core.BOMEdgeInput{MaterialID: m.MaterialID, Ratio: m.Ratio}
	}
	if err := s.catalog.SaveBOM(ctx, s.actor(req.Actor), req.ProductID, edges); err != nil {
		return nil, err
	}
	return s.catalog.GetBOM(ctx, req.ProductID)
}

// ── Sales ────────────────────────────────────────────────────────────────────

func (s *appService) CreateSale(ctx context.Context, req CreateSaleRequest) (*SaleResult, error) {
	sale, err := s.sales.CreateSale(ctx, s.actor(req.Actor), req.SaleInput)
	if err != nil {
		return nil, err
	}
	return &SaleResult{Sale: sale}, nil
}

func (s *appService) UpdateSale(ctx context.Context, req UpdateSaleRequest) (*SaleResult, error) {
	sale, err := s.sales.UpdateSale(ctx, s.actor(req.Actor), req.SalesID, req.SaleInput)
	if err != nil {
		return nil, err
	}
	return &SaleResult{Sale: sale}, nil
}

func (s *appService) DeleteSale(ctx context.Context, actor, salesID string) error {
	return s.sales.DeleteSale(ctx, s.actor(actor), salesID)
}

func (s *appService) CancelSale(ctx context.Context, actor, salesID string) error {
	return s.sales.CancelSale(ctx, s.actor(actor), salesID)
}

func (s *appService) UpdateSaleStatus(ctx context.Context, actor, salesID, status string) error {
	return s.sales.UpdateSaleStatus(ctx, s.actor(actor), salesID, core.SaleStatus(status))
}

func (s *appService) CompleteShipment(ctx context.Context, req CompleteShipmentRequest) (*SaleResult, error) {
	sale, err := s.sales.CompleteShipment(ctx, s.actor(req.Actor), req.SalesID, core.ShipmentInput{
		Memo:           req.Memo,
		CourierName:    req.Carrier,
		TrackingNumber: req.TrackingNumber,
		ShippingDate:   req.ShippingDate,
	})
	if err != nil {
		return nil, err
	}
	return &SaleResult{Sale: sale}, nil
}

func (s *appService) GetSale(ctx context.Context, salesID string) (*SaleResult, error) {
	sale, err := s.sales.GetSale(ctx, salesID)
	if err != nil {
		return nil, err
	}
	return &SaleResult{Sale: sale}, nil
}

// ── Claims ───────────────────────────────────────────────────────────────────

func (s *appService) CreateClaim(ctx context.Context, req CreateClaimRequest) (*core.SalesClaim, error) {
	return s.claims.CreateClaim(ctx, s.actor(req.Actor), req.ClaimInput)
}

func (s *appService) UpdateClaim(ctx context.Context, req UpdateClaimRequest) (*core.SalesClaim, error) {
	return s.claims.UpdateClaim(ctx, s.actor(req.Actor), req.ClaimID, core.ClaimInput{
		ReasonCategory: req.ReasonCategory,
		Quantity:       req.Quantity,
		Memo:           req.Memo,
	})
}

func (s *appService) DeleteClaim(ctx context.Context, actor string, claimID int) error {
	return s.claims.DeleteClaim(ctx, s.actor(actor), claimID)
}

func (s *appService) ProcessSalesClaim(ctx context.Context, req ProcessClaimRequest) (*core.SalesClaim, error) {
	return s.claims.ProcessClaim(ctx, s.actor(req.Actor), req.ClaimID, core.ClaimResolution{
		Status:               core.ClaimStatus(req.ClaimStatus),
		IsInventoryRecovered: req.IsInventoryRecovered,
		RefundAmount:         req.RefundAmount,
	})
}

// ── Production and purchases ─────────────────────────────────────────────────

func (s *appService) CreateBatch(ctx context.Context, req CreateBatchRequest) (*core.ProductionBatch, error) {
	return s.harvest.CreateBatch(ctx, s.actor(req.Actor), req.BatchCode, req.ProductID, req.StartDate)
}

func (s *appService) SaveHarvestRecord(ctx context.Context, req SaveHarvestRequest) (*core.HarvestRecord, error) {
	return s.harvest.SaveHarvestRecord(ctx, s.actor(req.Actor), req.Record, req.CompleteBatch)
}

func (s *appService) SaveHarvestBatch(ctx context.Context, actor string, records []core.HarvestRecord) ([]core.HarvestRecord, error) {
	return s.harvest.SaveHarvestBatch(ctx, s.actor(actor), records)
}

func (s *appService) DeleteHarvestRecord(ctx context.Context, actor string, harvestID int) error {
	return s.harvest.DeleteHarvestRecord(ctx, s.actor(actor), harvestID)
}

func (s *appService) SavePurchase(ctx context.Context, req SavePurchaseRequest) (*core.Purchase, error) {
	return s.purchases.SavePurchase(ctx, s.actor(req.Actor), req.Purchase, req.InventorySyncData)
}

func (s *appService) DeletePurchase(ctx context.Context, actor string, purchaseID int) error {
	return s.purchases.DeletePurchase(ctx, s.actor(actor), purchaseID)
}

// ── Customer ledger ──────────────────────────────────────────────────────────

func (s *appService) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*core.Customer, error) {
	return s.ledger.CreateCustomer(ctx, s.actor(req.Actor), core.NewCustomer{
		ID:             req.CustomerID,
		Name:           req.Name,
		MobileNumber:   req.MobileNumber,
		OpeningBalance: req.OpeningBalance,
	})
}

func ledgerInput(req LedgerEntryRequest) core.LedgerEntryInput {
	return core.LedgerEntryInput{
		CustomerID:      req.CustomerID,
		TransactionDate: req.TransactionDate,
		TransactionType: core.LedgerType(req.TransactionType),
		Amount:          req.Amount,
		Description:     req.Description,
	}
}

func (s *appService) CreateLedgerEntry(ctx context.Context, req LedgerEntryRequest) (*core.LedgerEntry, error) {
	return s.ledger.CreateEntry(ctx, s.actor(req.Actor), ledgerInput(req))
}

func (s *appService) UpdateLedgerEntry(ctx context.Context, req LedgerEntryRequest) (*core.LedgerEntry, error) {
	return s.ledger.UpdateEntry(ctx, s.actor(req.Actor), req.LedgerID, ledgerInput(req))
}

func (s *appService) DeleteLedgerEntry(ctx context.Context, actor string, ledgerID int64) error {
	return s.ledger.DeleteEntry(ctx, s.actor(actor), ledgerID)
}

func (s *appService) GetCustomerLedger(ctx context.Context, customerID, fromDate, toDate string) (*CustomerLedgerResult, error) {
	c, err := s.ledger.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.GetEntries(ctx, customerID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	return &CustomerLedgerResult{Customer: c, Entries: entries}, nil
}

func (s *appService) GetCustomersWithDebt(ctx context.Context) (*DebtorReport, error) {
	customers, err := s.ledger.GetCustomersWithDebt(ctx)
	if err != nil {
		return nil, err
	}
	report := &DebtorReport{Customers: customers}
	for _, c := range customers {
		report.TotalOutstanding += c.CurrentBalance
	}
	return report, nil
}

// ── Stock ────────────────────────────────────────────────────────────────────

func (s *appService) AdjustStock(ctx context.Context, req AdjustStockRequest) (*core.InventoryLog, error) {
	return s.stock.AdjustStock(ctx, s.actor(req.Actor), req.ProductID, req.ChangeQty, req.Memo, req.ReasonCategory)
}

func (s *appService) SetStock(ctx context.Context, actor string, productID, quantity int, memo string) (*core.InventoryLog, error) {
	return s.stock.SetStock(ctx, s.actor(actor), productID, quantity, memo)
}

func (s *appService) ConvertStock(ctx context.Context, req ConvertStockRequest) (string, error) {
	return s.stock.ConvertStock(ctx, s.actor(req.Actor), req.ProductID, req.ProducedQty, req.Materials, req.Memo)
}

func (s *appService) GetInventoryLogs(ctx context.Context, filter core.LogFilter) (*InventoryLogResult, error) {
	logs, err := s.stock.GetInventoryLogs(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &InventoryLogResult{Logs: logs}, nil
}

func (s *appService) VerifyStock(ctx context.Context) (*StockVerification, error) {
	drifts, err := s.stock.VerifyStock(ctx)
	if err != nil {
		return nil, err
	}
	return &StockVerification{Drifts: drifts, Consistent: len(drifts) == 0}, nil
}
