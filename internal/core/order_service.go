package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SalesService coordinates the sale lifecycle with the stock and customer ledgers.
// Every operation runs in a single transaction; a failure at any step rolls back
// the sale row together with its stock and ledger rows.
type SalesService interface {
	// CreateSale resolves the product, splits tax, stores the sale and books the
	// product 출고 plus the BOM material cascade under the new sale id.
	CreateSale(ctx context.Context, actor string, in SaleInput) (*Sale, error)
	// UpdateSale overwrites all fields and recomputes tax. Stock is not touched;
	// quantity corrections go through StockLedger.AdjustStock.
	UpdateSale(ctx context.Context, actor, salesID string, in SaleInput) (*Sale, error)
	// DeleteSale reverses every stock and ledger effect recorded under the sale id, then removes it.
	DeleteSale(ctx context.Context, actor, salesID string) error
	// CancelSale only sets the status to 취소.
	CancelSale(ctx context.Context, actor, salesID string) error
	// UpdateSaleStatus sets any valid status without transition checks.
	UpdateSaleStatus(ctx context.Context, actor, salesID string, status SaleStatus) error
	// CompleteShipment moves 접수 or 입금완료 to 배송중. An unpaid sale with a customer
	// gets a 매출(미수) ledger entry for its total.
	CompleteShipment(ctx context.Context, actor, salesID string, in ShipmentInput) (*Sale, error)
	GetSale(ctx context.Context, salesID string) (*Sale, error)
	GetSalesByCustomer(ctx context.Context, customerID string) ([]Sale, error)
}

type salesService struct {
	serviceBase
	stock  StockLedger
	ledger CustomerLedger
}

func NewSalesService(pool *pgxpool.Pool, stock StockLedger, ledger CustomerLedger, opts ...Option) SalesService {
	return &salesService{
		serviceBase: newServiceBase(pool, "sales", opts),
		stock:       stock,
		ledger:      ledger,
	}
}

const saleColumns = `sales_id, customer_id, product_id, product_name, specification, unit_price, quantity,
	total_amount, discount_rate, supply_value, vat_amount, tax_exempt_value, tax_type, status,
	order_date::text, memo, shipping_name, shipping_zip_code, shipping_address_primary,
	shipping_address_detail, shipping_mobile_number, shipping_date::text, courier_name, tracking_number,
	payment_status, paid_amount, created_at, updated_at`

func scanSale(row pgx.Row, s *Sale) error {
	return row.Scan(&s.ID, &s.CustomerID, &s.ProductID, &s.ProductName, &s.Specification, &s.UnitPrice, &s.Quantity,
		&s.TotalAmount, &s.DiscountRate, &s.SupplyValue, &s.VATAmount, &s.TaxExemptValue, &s.TaxType, &s.Status,
		&s.OrderDate, &s.Memo, &s.ShippingName, &s.ShippingZipCode, &s.ShippingAddressPrimary,
		&s.ShippingAddressDetail, &s.ShippingMobileNumber, &s.ShippingDate, &s.CourierName, &s.TrackingNumber,
		&s.PaymentStatus, &s.PaidAmount, &s.CreatedAt, &s.UpdatedAt)
}

// lockSaleTx reads the sale row FOR UPDATE.
func lockSaleTx(ctx context.Context, tx pgx.Tx, salesID string) (*Sale, error) {
	var s Sale
	err := scanSale(tx.QueryRow(ctx, "SELECT "+saleColumns+" FROM sales WHERE sales_id = $1 FOR UPDATE", salesID), &s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr("sale %s", salesID)
		}
		return nil, fmt.Errorf("failed to lock sale %s: %w", salesID, err)
	}
	return &s, nil
}

// normalizeSaleInput validates in and fills the defaults shared by create and update.
func normalizeSaleInput(in *SaleInput) error {
	in.ProductName = strings.TrimSpace(in.ProductName)
	if in.ProductName == "" {
		return validationErr("product name is required")
	}
	if in.Quantity <= 0 {
		return validationErr("quantity must be positive, got %d", in.Quantity)
	}
	if in.TotalAmount < 0 {
		return validationErr("total amount cannot be negative, got %d", in.TotalAmount)
	}
	if in.TotalAmount == 0 {
		in.TotalAmount = in.UnitPrice * int64(in.Quantity)
	}
	if in.DiscountRate < 0 || in.DiscountRate > 100 {
		return validationErr("discount rate must be between 0 and 100, got %d", in.DiscountRate)
	}
	if in.Status == "" {
		in.Status = SaleReceived
	}
	if !in.Status.IsValid() {
		return validationErr("invalid sale status %q", in.Status)
	}
	in.CustomerID = blankToNil(in.CustomerID)
	in.Specification = blankToNil(in.Specification)
	d, err := optionalDate(in.ShippingDate)
	if err != nil {
		return err
	}
	in.ShippingDate = d
	return nil
}

func (s *salesService) CreateSale(ctx context.Context, actor string, in SaleInput) (*Sale, error) {
	if err := normalizeSaleInput(&in); err != nil {
		return nil, err
	}
	orderDate := dateOrToday(in.OrderDate)
	salesID := newShortID("S-")

	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	productID, err := findProductID(ctx, tx, in.ProductName, in.Specification)
	if err != nil {
		return nil, err
	}
	dist, err := taxForProduct(ctx, tx, productID, in.TotalAmount)
	if err != nil {
		return nil, err
	}

	var sale Sale
	err = scanSale(tx.QueryRow(ctx, `
		INSERT INTO sales (
			sales_id, customer_id, product_id, product_name, specification, unit_price, quantity, total_amount,
			discount_rate, supply_value, vat_amount, tax_exempt_value, tax_type, status, order_date, memo,
			shipping_name, shipping_zip_code, shipping_address_primary, shipping_address_detail,
			shipping_mobile_number, shipping_date, payment_status, paid_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24)
		RETURNING `+saleColumns,
		salesID, in.CustomerID, productID, in.ProductName, in.Specification, in.UnitPrice, in.Quantity, in.TotalAmount,
		in.DiscountRate, dist.SupplyValue, dist.VATAmount, dist.TaxExemptValue, string(dist.TaxType), string(in.Status),
		orderDate, in.Memo, in.ShippingName, in.ShippingZipCode, in.ShippingAddressPrimary, in.ShippingAddressDetail,
		in.ShippingMobileNumber, in.ShippingDate, in.PaymentStatus, in.PaidAmount,
	), &sale)
	if err != nil {
		return nil, dbErr("create sale "+salesID, err)
	}

	if productID != nil {
		memo := "판매 출고: " + in.ProductName
		if _, err := s.stock.ApplyTx(ctx, tx, StockMovement{
			ProductID:   *productID,
			Quantity:    -in.Quantity,
			ChangeType:  ChangeOut,
			ReferenceID: salesID,
			Memo:        memo,
		}); err != nil {
			return nil, err
		}
		if err := s.stock.CascadeTx(ctx, tx, *productID, decimal.NewFromInt(int64(in.Quantity)),
			CascadeConsume, salesID, memo+" (자재 차감)"); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit sale %s: %w", salesID, err)
	}
	s.committed(ctx, "sale", "created", salesID, actor,
		zap.Int64("total", sale.TotalAmount), zap.String("tax_type", string(sale.TaxType)))
	return &sale, nil
}

func (s *salesService) UpdateSale(ctx context.Context, actor, salesID string, in SaleInput) (*Sale, error) {
	if err := normalizeSaleInput(&in); err != nil {
		return nil, err
	}
	orderDate, err := ParseDate(in.OrderDate)
	if err != nil {
		return nil, err
	}

	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := lockSaleTx(ctx, tx, salesID); err != nil {
		return nil, err
	}

	productID, err := findProductID(ctx, tx, in.ProductName, in.Specification)
	if err != nil {
		return nil, err
	}
	dist, err := taxForProduct(ctx, tx, productID, in.TotalAmount)
	if err != nil {
		return nil, err
	}

	var sale Sale
	err = scanSale(tx.QueryRow(ctx, `
		UPDATE sales SET
			customer_id = $1, product_id = $2, product_name = $3, specification = $4, unit_price = $5,
			quantity = $6, total_amount = $7, discount_rate = $8, supply_value = $9, vat_amount = $10,
			tax_exempt_value = $11, tax_type = $12, status = $13, order_date = $14, memo = $15,
			shipping_name = $16, shipping_zip_code = $17, shipping_address_primary = $18,
			shipping_address_detail = $19, shipping_mobile_number = $20, shipping_date = $21,
			payment_status = $22, paid_amount = $23, updated_at = NOW()
		WHERE sales_id = $24
		RETURNING `+saleColumns,
		in.CustomerID, productID, in.ProductName, in.Specification, in.UnitPrice,
		in.Quantity, in.TotalAmount, in.DiscountRate, dist.SupplyValue, dist.VATAmount,
		dist.TaxExemptValue, string(dist.TaxType), string(in.Status), orderDate, in.Memo,
		in.ShippingName, in.ShippingZipCode, in.ShippingAddressPrimary,
		in.ShippingAddressDetail, in.ShippingMobileNumber, in.ShippingDate,
		in.PaymentStatus, in.PaidAmount, salesID,
	), &sale)
	if err != nil {
		return nil, dbErr("update sale "+salesID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit sale %s: %w", salesID, err)
	}
	s.committed(ctx, "sale", "updated", salesID, actor)
	return &sale, nil
}

func (s *salesService) DeleteSale(ctx context.Context, actor, salesID string) error {
	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	sale, err := lockSaleTx(ctx, tx, salesID)
	if err != nil {
		return err
	}

	restored, err := s.stock.ReverseReferenceTx(ctx, tx, salesID, "판매 삭제 복원: "+sale.ProductName)
	if err != nil {
		return err
	}
	reversed, err := s.ledger.ReverseReferenceTx(ctx, tx, salesID, "판매 삭제")
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM sales WHERE sales_id = $1", salesID); err != nil {
		return fmt.Errorf("failed to delete sale %s: %w", salesID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit deletion of sale %s: %w", salesID, err)
	}
	s.committed(ctx, "sale", "deleted", salesID, actor,
		zap.Int("stock_rows", len(restored)), zap.Int("ledger_rows", len(reversed)))
	return nil
}

func (s *salesService) CancelSale(ctx context.Context, actor, salesID string) error {
	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	sale, err := lockSaleTx(ctx, tx, salesID)
	if err != nil {
		return err
	}
	if sale.Status.IsTerminal() {
		return invalidStateErr("sale %s is %s and cannot be cancelled", salesID, sale.Status)
	}
	if err := setSaleStatusTx(ctx, tx, salesID, SaleCancelled); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cancellation of sale %s: %w", salesID, err)
	}
	s.committed(ctx, "sale", "cancelled", salesID, actor)
	return nil
}

func (s *salesService) UpdateSaleStatus(ctx context.Context, actor, salesID string, status SaleStatus) error {
	if !status.IsValid() {
		return validationErr("invalid sale status %q", status)
	}

	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := setSaleStatusTx(ctx, tx, salesID, status); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit status of sale %s: %w", salesID, err)
	}
	s.committed(ctx, "sale", "status_changed", salesID, actor, zap.String("status", string(status)))
	return nil
}

func setSaleStatusTx(ctx context.Context, tx pgx.Tx, salesID string, status SaleStatus) error {
	tag, err := tx.Exec(ctx,
		"UPDATE sales SET status = $1, updated_at = NOW() WHERE sales_id = $2",
		string(status), salesID)
	if err != nil {
		return fmt.Errorf("failed to set status of sale %s: %w", salesID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundErr("sale %s", salesID)
	}
	return nil
}

func (s *salesService) CompleteShipment(ctx context.Context, actor, salesID string, in ShipmentInput) (*Sale, error) {
	shippingDate := today()
	if strings.TrimSpace(in.ShippingDate) != "" {
		d, err := ParseDate(in.ShippingDate)
		if err != nil {
			return nil, err
		}
		shippingDate = d
	}

	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sale, err := lockSaleTx(ctx, tx, salesID)
	if err != nil {
		return nil, err
	}
	if sale.Status != SaleReceived && sale.Status != SalePaid {
		return nil, invalidStateErr("sale %s is %s; only %s or %s sales can be shipped",
			salesID, sale.Status, SaleReceived, SalePaid)
	}

	var receivable *LedgerEntry
	if sale.Status != SalePaid && sale.CustomerID != nil && sale.TotalAmount > 0 {
		receivable, err = s.ledger.CreateEntryTx(ctx, tx, LedgerEntryInput{
			CustomerID:      *sale.CustomerID,
			TransactionDate: shippingDate,
			TransactionType: LedgerReceivable,
			Amount:          sale.TotalAmount,
			Description:     "배송 완료 (미수금 발생)",
			ReferenceID:     salesID,
		})
		if err != nil {
			return nil, err
		}
	}

	var shipped Sale
	err = scanSale(tx.QueryRow(ctx, `
		UPDATE sales SET
			status = $1, memo = COALESCE($2, memo), courier_name = $3, tracking_number = $4,
			shipping_date = $5, updated_at = NOW()
		WHERE sales_id = $6
		RETURNING `+saleColumns,
		string(SaleShipping), blankToNil(in.Memo), blankToNil(in.CourierName), blankToNil(in.TrackingNumber),
		shippingDate, salesID,
	), &shipped)
	if err != nil {
		return nil, fmt.Errorf("failed to mark sale %s shipped: %w", salesID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit shipment of sale %s: %w", salesID, err)
	}
	fields := []zap.Field{zap.String("shipping_date", shippingDate)}
	if receivable != nil {
		fields = append(fields, zap.Int64("receivable", receivable.Amount))
	}
	s.committed(ctx, "sale", "shipped", salesID, actor, fields...)
	return &shipped, nil
}

func (s *salesService) GetSale(ctx context.Context, salesID string) (*Sale, error) {
	var sale Sale
	err := scanSale(s.pool.QueryRow(ctx, "SELECT "+saleColumns+" FROM sales WHERE sales_id = $1", salesID), &sale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr("sale %s", salesID)
		}
		return nil, fmt.Errorf("failed to fetch sale %s: %w", salesID, err)
	}
	return &sale, nil
}

func (s *salesService) GetSalesByCustomer(ctx context.Context, customerID string) ([]Sale, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+saleColumns+" FROM sales WHERE customer_id = $1 ORDER BY order_date DESC, created_at DESC",
		customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales of customer %s: %w", customerID, err)
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		var sale Sale
		if err := scanSale(rows, &sale); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}
