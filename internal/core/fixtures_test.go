package core_test

import (
	"context"
	"sync"
	"testing"

	"farm-ledger/internal/core"
	"farm-ledger/internal/pgtest"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testActor = "tester"

type recorder struct {
	mu     sync.Mutex
	events []core.ChangeEvent
}

func (r *recorder) NotifyChange(_ context.Context, ev core.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Entity + ":" + ev.Kind
	}
	return out
}

type engine struct {
	pool      *pgxpool.Pool
	events    *recorder
	catalog   core.CatalogService
	stock     core.StockLedger
	ledger    core.CustomerLedger
	sales     core.SalesService
	claims    core.ClaimService
	harvest   core.HarvestService
	purchases core.PurchaseService
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	pool := pgtest.Pool(t)
	rec := &recorder{}
	opts := []core.Option{core.WithNotifier(rec)}

	stock := core.NewStockLedger(pool, opts...)
	ledger := core.NewCustomerLedger(pool, opts...)
	return &engine{
		pool:      pool,
		events:    rec,
		catalog:   core.NewCatalogService(pool, stock, opts...),
		stock:     stock,
		ledger:    ledger,
		sales:     core.NewSalesService(pool, stock, ledger, opts...),
		claims:    core.NewClaimService(pool, stock, opts...),
		harvest:   core.NewHarvestService(pool, stock, opts...),
		purchases: core.NewPurchaseService(pool, stock, opts...),
	}
}

func (e *engine) product(t *testing.T, name string, tax core.TaxType, stock int) *core.Product {
	t.Helper()
	p, err := e.catalog.CreateProduct(context.Background(), testActor, core.NewProduct{
		Name:         name,
		UnitPrice:    1000,
		TaxType:      tax,
		InitialStock: stock,
	})
	require.NoError(t, err)
	return p
}

func (e *engine) bom(t *testing.T, productID, materialID int, ratio string) {
	t.Helper()
	err := e.catalog.SaveBOM(context.Background(), testActor, productID, []core.BOMEdgeInput{
		{MaterialID: materialID, Ratio: decimal.RequireFromString(ratio)},
	})
	require.NoError(t, err)
}

func (e *engine) customer(t *testing.T, id string) *core.Customer {
	t.Helper()
	c, err := e.ledger.CreateCustomer(context.Background(), testActor, core.NewCustomer{ID: id, Name: "고객 " + id})
	require.NoError(t, err)
	return c
}

func (e *engine) stockOf(t *testing.T, productID int) int {
	t.Helper()
	var n int
	err := e.pool.QueryRow(context.Background(),
		"SELECT stock_quantity FROM products WHERE product_id = $1", productID).Scan(&n)
	require.NoError(t, err)
	return n
}

func (e *engine) balanceOf(t *testing.T, customerID string) int64 {
	t.Helper()
	var n int64
	err := e.pool.QueryRow(context.Background(),
		"SELECT current_balance FROM customers WHERE customer_id = $1", customerID).Scan(&n)
	require.NoError(t, err)
	return n
}

// requireConsistent checks that every stock equals its stock-affecting log sum and
// every balance equals its ledger sum.
func (e *engine) requireConsistent(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	drifts, err := e.stock.VerifyStock(ctx)
	require.NoError(t, err)
	require.Empty(t, drifts, "stock drifted from inventory log")

	var drifted int
	err = e.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM customers c
		WHERE c.current_balance <> COALESCE((SELECT SUM(amount) FROM customer_ledger l WHERE l.customer_id = c.customer_id), 0)
	`).Scan(&drifted)
	require.NoError(t, err)
	require.Zero(t, drifted, "customer balance drifted from ledger")
}

func strPtr(s string) *string { return &s }

func mustDecimal(s string) decimal.Decimal { return decimal.RequireFromString(s) }
