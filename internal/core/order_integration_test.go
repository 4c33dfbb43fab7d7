package core_test

import (
	"context"
	"testing"

	"farm-ledger/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSales_CascadeAndDeleteRestores(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	product := e.product(t, "표고버섯 선물세트", core.TaxTypeExempt, 100)
	material := e.product(t, "선물 상자", core.TaxTypeTaxable, 100)
	e.bom(t, product.ID, material.ID, "2.5")

	sale, err := e.sales.CreateSale(ctx, testActor, core.SaleInput{
		ProductName: product.Name,
		Quantity:    4,
		UnitPrice:   10000,
		OrderDate:   "2024-03-01",
	})
	require.NoError(t, err)
	require.Regexp(t, `^S-[0-9A-F]{8}$`, sale.ID)
	require.NotNil(t, sale.ProductID)
	assert.Equal(t, product.ID, *sale.ProductID)
	assert.Equal(t, int64(40000), sale.TotalAmount)
	assert.Equal(t, core.SaleReceived, sale.Status)

	assert.Equal(t, 96, e.stockOf(t, product.ID))
	assert.Equal(t, 90, e.stockOf(t, material.ID), "ceil(4 * 2.5) = 10 units of material")

	logs, err := e.stock.GetInventoryLogs(ctx, core.LogFilter{ReferenceID: sale.ID})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, core.ChangeOut, l.ChangeType)
		assert.Equal(t, testActor, l.CreatedBy)
	}
	e.requireConsistent(t)

	require.NoError(t, e.sales.DeleteSale(ctx, testActor, sale.ID))

	assert.Equal(t, 100, e.stockOf(t, product.ID))
	assert.Equal(t, 100, e.stockOf(t, material.ID))
	e.requireConsistent(t)

	_, err = e.sales.GetSale(ctx, sale.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Reversal rows carry the same reference so the net effect under the sale id is zero.
	var net int
	require.NoError(t, e.pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(change_quantity), 0) FROM inventory_logs WHERE reference_id = $1", sale.ID).Scan(&net))
	assert.Zero(t, net)
}

func TestSales_TaxDecomposition(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	taxable := e.product(t, "버섯 재배키트", core.TaxTypeTaxable, 10)
	sale, err := e.sales.CreateSale(ctx, testActor, core.SaleInput{
		ProductName: taxable.Name, Quantity: 1, TotalAmount: 11000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), sale.SupplyValue)
	assert.Equal(t, int64(1000), sale.VATAmount)
	assert.Zero(t, sale.TaxExemptValue)
	assert.Equal(t, core.TaxTypeTaxable, sale.TaxType)

	mixed := e.product(t, "혼합 세트", core.TaxTypeMixed, 10)
	box := e.product(t, "포장 상자", core.TaxTypeTaxable, 10)
	mushroom := e.product(t, "생표고", core.TaxTypeExempt, 10)
	require.NoError(t, e.catalog.SaveBOM(ctx, testActor, mixed.ID, []core.BOMEdgeInput{
		{MaterialID: box.ID, Ratio: mustDecimal("1")},
		{MaterialID: mushroom.ID, Ratio: mustDecimal("1")},
	}))
	sale, err = e.sales.CreateSale(ctx, testActor, core.SaleInput{
		ProductName: mixed.Name, Quantity: 1, TotalAmount: 22000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), sale.SupplyValue)
	assert.Equal(t, int64(1000), sale.VATAmount)
	assert.Equal(t, int64(11000), sale.TaxExemptValue)
	assert.Equal(t, core.TaxTypeMixed, sale.TaxType)

	unknown, err := e.sales.CreateSale(ctx, testActor, core.SaleInput{
		ProductName: "등록되지 않은 상품", Quantity: 2, TotalAmount: 5000, OrderDate: "not-a-date",
	})
	require.NoError(t, err)
	assert.Nil(t, unknown.ProductID)
	assert.Equal(t, core.TaxTypeExempt, unknown.TaxType)
	assert.Equal(t, int64(5000), unknown.TaxExemptValue)
	assert.NotEmpty(t, unknown.OrderDate, "an invalid order date falls back to today on create")
	e.requireConsistent(t)
}

func TestSales_SpecificationIdentity(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	plain := e.product(t, "건표고", core.TaxTypeExempt, 50)
	sized, err := e.catalog.CreateProduct(ctx, testActor, core.NewProduct{
		Name: "건표고", Specification: strPtr("500g"), InitialStock: 50,
	})
	require.NoError(t, err)

	sale, err := e.sales.CreateSale(ctx, testActor, core.SaleInput{
		ProductName: "건표고", Specification: strPtr("500g"), Quantity: 5,
	})
	require.NoError(t, err)
	require.NotNil(t, sale.ProductID)
	assert.Equal(t, sized.ID, *sale.ProductID)
	assert.Equal(t, 50, e.stockOf(t, plain.ID))
	assert.Equal(t, 45, e.stockOf(t, sized.ID))

	_, err = e.catalog.CreateProduct(ctx, testActor, core.NewProduct{Name: "건표고"})
	assert.ErrorIs(t, err, core.ErrValidation, "duplicate (name, NULL spec)")
}

func TestSales_UpdateDoesNotReplayCascade(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	product := e.product(t, "느타리", core.TaxTypeTaxable, 100)
	sale, err := e.sales.CreateSale(ctx, testActor, core.SaleInput{
		ProductName: product.Name, Quantity: 10, TotalAmount: 11000,
	})
	require.NoError(t, err)
	require.Equal(t, 90, e.stockOf(t, product.ID))

	updated, err := e.sales.UpdateSale(ctx, testActor, sale.ID, core.SaleInput{
		ProductName: product.Name,
		Quantity:    20,
		TotalAmount: 22000,
		OrderDate:   "20240315",
		Status:      core.SalePaid,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.Quantity)
	assert.Equal(t, "2024-03-15", updated.OrderDate)
	assert.Equal(t, int64(20000), updated.SupplyValue)
	assert.Equal(t, int64(2000), updated.VATAmount)
	assert.Equal(t, 90, e.stockOf(t, product.ID), "update leaves stock to explicit adjustments")

	_, err = e.sales.UpdateSale(ctx, testActor, sale.ID, core.SaleInput{
		ProductName: product.Name, Quantity: 1, OrderDate: "2024/03/15",
	})
	assert.ErrorIs(t, err, core.ErrValidation, "update rejects malformed dates")

	_, err = e.sales.UpdateSale(ctx, testActor, "S-MISSING0", core.SaleInput{
		ProductName: product.Name, Quantity: 1, OrderDate: "2024-03-15",
	})
	assert.ErrorIs(t, err, core.ErrNotFound)
	e.requireConsistent(t)
}

func TestSales_CompleteShipmentCreatesReceivable(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	product := e.product(t, "표고 1kg", core.TaxTypeExempt, 10)
	customer := e.customer(t, "C001")

	sale, err := e.sales.CreateSale(ctx, testActor, core.SaleInput{
		CustomerID: &customer.ID, ProductName: product.Name, Quantity: 1, TotalAmount: 30000,
	})
	require.NoError(t, err)

	shipped, err := e.sales.CompleteShipment(ctx, testActor, sale.ID, core.ShipmentInput{
		CourierName:    strPtr("우체국택배"),
		TrackingNumber: strPtr("1234-5678"),
		ShippingDate:   "2024-04-02",
	})
	require.NoError(t, err)
	assert.Equal(t, core.SaleShipping, shipped.Status)
	require.NotNil(t, shipped.ShippingDate)
	assert.Equal(t, "2024-04-02", *shipped.ShippingDate)
	require.NotNil(t, shipped.CourierName)
	assert.Equal(t, "우체국택배", *shipped.CourierName)

	assert.Equal(t, int64(30000), e.balanceOf(t, customer.ID))
	entries, err := e.ledger.GetEntries(ctx, customer.ID, "", "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, core.LedgerReceivable, entries[0].TransactionType)
	assert.Equal(t, sale.ID, entries[0].ReferenceID)

	_, err = e.sales.CompleteShipment(ctx, testActor, sale.ID, core.ShipmentInput{})
	assert.ErrorIs(t, err, core.ErrInvalidState, "a shipped sale cannot ship again")
	assert.Equal(t, int64(30000), e.balanceOf(t, customer.ID))

	// Deleting the sale also compensates the receivable.
	require.NoError(t, e.sales.DeleteSale(ctx, testActor, sale.ID))
	assert.Zero(t, e.balanceOf(t, customer.ID))
	assert.Equal(t, 10, e.stockOf(t, product.ID))
	e.requireConsistent(t)
}

func TestSales_CompleteShipmentPaidSaleNoReceivable(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	product := e.product(t, "목이버섯", core.TaxTypeExempt, 10)
	customer := e.customer(t, "C002")

	sale, err := e.sales.CreateSale(ctx, testActor, core.SaleInput{
		CustomerID: &customer.ID, ProductName: product.Name, Quantity: 1, TotalAmount: 15000, Status: core.SalePaid,
	})
	require.NoError(t, err)

	_, err = e.sales.CompleteShipment(ctx, testActor, sale.ID, core.ShipmentInput{})
	require.NoError(t, err)
	assert.Zero(t, e.balanceOf(t, customer.ID))
}

func TestSales_CancelAndStatus(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	product := e.product(t, "새송이", core.TaxTypeExempt, 10)
	sale, err := e.sales.CreateSale(ctx, testActor, core.SaleInput{ProductName: product.Name, Quantity: 2})
	require.NoError(t, err)

	require.NoError(t, e.sales.CancelSale(ctx, testActor, sale.ID))
	got, err := e.sales.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, core.SaleCancelled, got.Status)
	assert.Equal(t, 8, e.stockOf(t, product.ID), "cancel sets status only")

	assert.ErrorIs(t, e.sales.CancelSale(ctx, testActor, sale.ID), core.ErrInvalidState)
	assert.ErrorIs(t, e.sales.CancelSale(ctx, testActor, "S-NOPE0000"), core.ErrNotFound)

	assert.ErrorIs(t, e.sales.UpdateSaleStatus(ctx, testActor, sale.ID, "배송대기"), core.ErrValidation)
	require.NoError(t, e.sales.UpdateSaleStatus(ctx, testActor, sale.ID, core.SaleReceived))
	_, err = e.sales.CompleteShipment(ctx, testActor, sale.ID, core.ShipmentInput{})
	require.NoError(t, err)
}

func TestSales_Validation(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.sales.CreateSale(ctx, testActor, core.SaleInput{ProductName: "", Quantity: 1})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = e.sales.CreateSale(ctx, testActor, core.SaleInput{ProductName: "x", Quantity: 0})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = e.sales.CreateSale(ctx, testActor, core.SaleInput{ProductName: "x", Quantity: 1, Status: "보류"})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = e.sales.CreateSale(ctx, testActor, core.SaleInput{
		ProductName: "x", Quantity: 1, CustomerID: strPtr("NO-SUCH-CUSTOMER"),
	})
	assert.ErrorIs(t, err, core.ErrValidation, "unknown customer is an unresolved reference")
}

func TestSales_FailureRollsBackEverything(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	product := e.product(t, "노루궁뎅이", core.TaxTypeExempt, 10)
	before := len(e.events.kinds())

	// The FK failure happens on the sale insert after product resolution; nothing may persist.
	_, err := e.sales.CreateSale(ctx, testActor, core.SaleInput{
		ProductName: product.Name, Quantity: 3, CustomerID: strPtr("GHOST"),
	})
	require.Error(t, err)

	assert.Equal(t, 10, e.stockOf(t, product.ID))
	var sales int
	require.NoError(t, e.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sales").Scan(&sales))
	assert.Zero(t, sales)
	assert.Len(t, e.events.kinds(), before, "rolled-back operations emit no events")
	e.requireConsistent(t)
}

func TestSales_ActorAttributionAndDeletionLog(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	product := e.product(t, "팽이버섯", core.TaxTypeExempt, 10)
	sale, err := e.sales.CreateSale(ctx, "kim", core.SaleInput{ProductName: product.Name, Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, e.sales.DeleteSale(ctx, "lee", sale.ID))

	var deletedBy string
	err = e.pool.QueryRow(ctx,
		"SELECT deleted_by FROM deletion_log WHERE table_name = 'sales' AND record_id = $1", sale.ID,
	).Scan(&deletedBy)
	require.NoError(t, err)
	assert.Equal(t, "lee", deletedBy)

	logs, err := e.stock.GetInventoryLogs(ctx, core.LogFilter{ReferenceID: sale.ID})
	require.NoError(t, err)
	byActor := map[string]int{}
	for _, l := range logs {
		byActor[l.CreatedBy]++
	}
	assert.Equal(t, map[string]int{"kim": 1, "lee": 1}, byActor)

	kinds := e.events.kinds()
	assert.Contains(t, kinds, "sale:created")
	assert.Contains(t, kinds, "sale:deleted")
}

func TestSales_ProductIdentityAndCustomerListing(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	plain := e.product(t, "건표고", core.TaxTypeExempt, 10)
	sized, err := e.catalog.CreateProduct(ctx, testActor, core.NewProduct{Name: "건표고", Specification: strPtr("500g")})
	require.NoError(t, err)

	got, err := e.catalog.FindProduct(ctx, "건표고", nil)
	require.NoError(t, err)
	assert.Equal(t, plain.ID, got.ID, "nil specification matches only the unspecified product")
	got, err = e.catalog.FindProduct(ctx, "건표고", strPtr("500g"))
	require.NoError(t, err)
	assert.Equal(t, sized.ID, got.ID)
	_, err = e.catalog.FindProduct(ctx, "건표고", strPtr("1kg"))
	assert.ErrorIs(t, err, core.ErrNotFound)

	c := e.customer(t, "C900")
	for _, d := range []string{"2024-05-01", "2024-05-03"} {
		_, err := e.sales.CreateSale(ctx, testActor, core.SaleInput{
			CustomerID: &c.ID, ProductName: "건표고", Specification: strPtr("500g"), Quantity: 1, OrderDate: d,
		})
		require.NoError(t, err)
	}
	_, err = e.sales.CreateSale(ctx, testActor, core.SaleInput{ProductName: "건표고", Quantity: 1})
	require.NoError(t, err)

	sales, err := e.sales.GetSalesByCustomer(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	for _, s := range sales {
		require.NotNil(t, s.ProductID)
		assert.Equal(t, sized.ID, *s.ProductID)
	}
	assert.Equal(t, 9, e.stockOf(t, plain.ID))
	e.requireConsistent(t)
}
