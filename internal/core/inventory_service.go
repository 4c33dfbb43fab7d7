package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reference ids stamped on stock rows that are not caused by a sale, harvest or purchase.
const (
	ReferenceManual  = "MANUAL"
	ReferenceInitial = "INITIAL"
)

// StockLedger keeps products.stock_quantity and the inventory log in step.
// Every stock change is an in-place UPDATE plus one appended log row carrying the
// post-update stock.
type StockLedger interface {
	// TX-scoped operations: work within a caller-provided transaction.

	// ApplyTx adds m.Quantity to the product's stock and appends the log row.
	// It is not idempotent; callers guarantee exactly-once invocation per cause.
	ApplyTx(ctx context.Context, tx pgx.Tx, m StockMovement) (*InventoryLog, error)
	// CascadeTx applies ceil(qty * ratio) to every BOM material of productID, as 출고
	// when consuming and 입고 when restoring.
	CascadeTx(ctx context.Context, tx pgx.Tx, productID int, qty decimal.Decimal, dir CascadeDirection, referenceID, memo string) error
	// RecordInformationalTx appends a log row that does not move stock.
	RecordInformationalTx(ctx context.Context, tx pgx.Tx, m StockMovement) (*InventoryLog, error)
	// ReverseReferenceTx applies the inverse of the net stock effect recorded under
	// referenceID, per product. Calling it again is a no-op.
	ReverseReferenceTx(ctx context.Context, tx pgx.Tx, referenceID, memo string) ([]InventoryLog, error)

	// Standalone operations (manage their own transactions).

	AdjustStock(ctx context.Context, actor string, productID, changeQty int, memo, reasonCategory string) (*InventoryLog, error)
	// SetStock sets an absolute quantity and logs the difference as 조정. A nil log means no change.
	SetStock(ctx context.Context, actor string, productID, newQty int, memo string) (*InventoryLog, error)
	// ConvertStock books producedQty of productID as 입고 and the listed material
	// deductions as 출고 under one CONVERT reference. Materials may not go negative.
	ConvertStock(ctx context.Context, actor string, productID, producedQty int, deductions []MaterialDeduction, memo string) (string, error)
	GetInventoryLogs(ctx context.Context, filter LogFilter) ([]InventoryLog, error)
	// VerifyStock lists products whose stock differs from the sum of their stock-affecting logs.
	VerifyStock(ctx context.Context) ([]StockDrift, error)
}

type stockLedger struct {
	serviceBase
}

func NewStockLedger(pool *pgxpool.Pool, opts ...Option) StockLedger {
	return &stockLedger{serviceBase: newServiceBase(pool, "stock", opts)}
}

// ── TX-scoped operations ──────────────────────────────────────────────────────

func (s *stockLedger) ApplyTx(ctx context.Context, tx pgx.Tx, m StockMovement) (*InventoryLog, error) {
	if m.Quantity == 0 {
		return nil, validationErr("stock change for product %d must be non-zero", m.ProductID)
	}
	if m.ChangeType == "" {
		return nil, validationErr("stock change for product %d has no change type", m.ProductID)
	}

	var newStock int
	err := tx.QueryRow(ctx, `
		UPDATE products SET stock_quantity = stock_quantity + $1, updated_at = NOW()
		WHERE product_id = $2
		RETURNING stock_quantity
	`, m.Quantity, m.ProductID).Scan(&newStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr("product %d", m.ProductID)
		}
		return nil, fmt.Errorf("failed to update stock for product %d: %w", m.ProductID, err)
	}

	return s.insertLogTx(ctx, tx, m, newStock, true)
}

func (s *stockLedger) RecordInformationalTx(ctx context.Context, tx pgx.Tx, m StockMovement) (*InventoryLog, error) {
	var stock int
	err := tx.QueryRow(ctx, "SELECT stock_quantity FROM products WHERE product_id = $1", m.ProductID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr("product %d", m.ProductID)
		}
		return nil, fmt.Errorf("failed to read stock for product %d: %w", m.ProductID, err)
	}
	return s.insertLogTx(ctx, tx, m, stock, false)
}

func (s *stockLedger) insertLogTx(ctx context.Context, tx pgx.Tx, m StockMovement, stock int, affectsStock bool) (*InventoryLog, error) {
	l := InventoryLog{
		ProductID:      m.ProductID,
		ChangeType:     m.ChangeType,
		ChangeQuantity: m.Quantity,
		CurrentStock:   stock,
		AffectsStock:   affectsStock,
		ReferenceID:    m.ReferenceID,
		Memo:           m.Memo,
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO inventory_logs (product_id, change_type, change_quantity, current_stock, affects_stock, reference_id, memo)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
		RETURNING log_id, COALESCE(created_by, ''), created_at
	`, m.ProductID, string(m.ChangeType), m.Quantity, stock, affectsStock, m.ReferenceID, m.Memo,
	).Scan(&l.ID, &l.CreatedBy, &l.CreatedAt)
	if err != nil {
		return nil, dbErr(fmt.Sprintf("insert inventory log for product %d", m.ProductID), err)
	}
	return &l, nil
}

func (s *stockLedger) CascadeTx(ctx context.Context, tx pgx.Tx, productID int, qty decimal.Decimal, dir CascadeDirection,
	referenceID, memo string) error {

	if !qty.IsPositive() {
		return nil
	}
	g, err := ResolveBOM(ctx, tx, productID)
	if err != nil {
		return err
	}
	for _, e := range g.Edges {
		n := MaterialRequirement(qty, e.Ratio)
		if n == 0 {
			continue
		}
		m := StockMovement{
			ProductID:   e.MaterialID,
			Quantity:    -n,
			ChangeType:  ChangeOut,
			ReferenceID: referenceID,
			Memo:        memo,
		}
		if dir == CascadeRestore {
			m.Quantity = n
			m.ChangeType = ChangeIn
		}
		if _, err := s.ApplyTx(ctx, tx, m); err != nil {
			return fmt.Errorf("failed to cascade to material %d of product %d: %w", e.MaterialID, productID, err)
		}
	}
	return nil
}

func (s *stockLedger) ReverseReferenceTx(ctx context.Context, tx pgx.Tx, referenceID, memo string) ([]InventoryLog, error) {
	if referenceID == "" {
		return nil, validationErr("reference id is required for reversal")
	}

	// Product order keeps row locks acquired in a stable order across concurrent reversals.
	rows, err := tx.Query(ctx, `
		SELECT product_id, SUM(change_quantity)
		FROM inventory_logs
		WHERE reference_id = $1 AND affects_stock
		GROUP BY product_id
		HAVING SUM(change_quantity) <> 0
		ORDER BY product_id
	`, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock effects of %s: %w", referenceID, err)
	}
	type netEffect struct {
		productID int
		net       int64
	}
	var effects []netEffect
	for rows.Next() {
		var e netEffect
		if err := rows.Scan(&e.productID, &e.net); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan stock effect: %w", err)
		}
		effects = append(effects, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock effects of %s: %w", referenceID, err)
	}

	var logs []InventoryLog
	for _, e := range effects {
		m := StockMovement{
			ProductID:   e.productID,
			Quantity:    int(-e.net),
			ChangeType:  ChangeIn,
			ReferenceID: referenceID,
			Memo:        memo,
		}
		if m.Quantity < 0 {
			m.ChangeType = ChangeOut
		}
		l, err := s.ApplyTx(ctx, tx, m)
		if err != nil {
			return nil, fmt.Errorf("failed to reverse %s for product %d: %w", referenceID, e.productID, err)
		}
		logs = append(logs, *l)
	}
	return logs, nil
}

// ── Standalone operations ─────────────────────────────────────────────────────

// adjustmentChangeType picks the log type for a manual adjustment: an explicit reason
// category is used as-is unless it is the generic 단순오차.
func adjustmentChangeType(changeQty int, reasonCategory string) ChangeType {
	if reasonCategory != "" && reasonCategory != reasonSimpleError {
		return ChangeType(reasonCategory)
	}
	if changeQty > 0 {
		return ChangeIn
	}
	return ChangeAdjust
}

func (s *stockLedger) AdjustStock(ctx context.Context, actor string, productID, changeQty int, memo, reasonCategory string) (*InventoryLog, error) {
	if changeQty == 0 {
		return nil, validationErr("adjustment quantity must be non-zero")
	}

	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	l, err := s.ApplyTx(ctx, tx, StockMovement{
		ProductID:   productID,
		Quantity:    changeQty,
		ChangeType:  adjustmentChangeType(changeQty, reasonCategory),
		ReferenceID: ReferenceManual,
		Memo:        memo,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit stock adjustment: %w", err)
	}
	s.committed(ctx, "stock", "adjusted", strconv.Itoa(productID), actor,
		zap.Int("delta", changeQty), zap.Int("stock", l.CurrentStock))
	return l, nil
}

func (s *stockLedger) SetStock(ctx context.Context, actor string, productID, newQty int, memo string) (*InventoryLog, error) {
	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var current int
	err = tx.QueryRow(ctx, "SELECT stock_quantity FROM products WHERE product_id = $1 FOR UPDATE", productID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr("product %d", productID)
		}
		return nil, fmt.Errorf("failed to lock product %d: %w", productID, err)
	}
	if newQty == current {
		return nil, nil
	}

	l, err := s.ApplyTx(ctx, tx, StockMovement{
		ProductID:   productID,
		Quantity:    newQty - current,
		ChangeType:  ChangeAdjust,
		ReferenceID: ReferenceManual,
		Memo:        memo,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit stock update: %w", err)
	}
	s.committed(ctx, "stock", "set", strconv.Itoa(productID), actor, zap.Int("stock", newQty))
	return l, nil
}

func (s *stockLedger) ConvertStock(ctx context.Context, actor string, productID, producedQty int,
	deductions []MaterialDeduction, memo string) (string, error) {

	if producedQty <= 0 {
		return "", validationErr("produced quantity must be positive, got %d", producedQty)
	}
	ref := newShortID("CONVERT-")

	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	for _, d := range deductions {
		if d.Quantity <= 0 {
			return "", validationErr("deduction for material %d must be positive, got %d", d.MaterialID, d.Quantity)
		}
		if d.MaterialID == productID {
			return "", validationErr("product %d cannot consume itself", productID)
		}
		var name string
		var stock int
		err := tx.QueryRow(ctx,
			"SELECT product_name, stock_quantity FROM products WHERE product_id = $1 FOR UPDATE",
			d.MaterialID,
		).Scan(&name, &stock)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return "", notFoundErr("material %d", d.MaterialID)
			}
			return "", fmt.Errorf("failed to lock material %d: %w", d.MaterialID, err)
		}
		if stock < d.Quantity {
			return "", validationErr("insufficient stock for %s: have %d, need %d", name, stock, d.Quantity)
		}
		if _, err := s.ApplyTx(ctx, tx, StockMovement{
			ProductID:   d.MaterialID,
			Quantity:    -d.Quantity,
			ChangeType:  ChangeOut,
			ReferenceID: ref,
			Memo:        memo,
		}); err != nil {
			return "", err
		}
	}

	if _, err := s.ApplyTx(ctx, tx, StockMovement{
		ProductID:   productID,
		Quantity:    producedQty,
		ChangeType:  ChangeIn,
		ReferenceID: ref,
		Memo:        memo,
	}); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit stock conversion: %w", err)
	}
	s.committed(ctx, "stock", "converted", ref, actor, zap.Int("product_id", productID), zap.Int("quantity", producedQty))
	return ref, nil
}

func (s *stockLedger) GetInventoryLogs(ctx context.Context, filter LogFilter) ([]InventoryLog, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var productID *int
	if filter.ProductID > 0 {
		productID = &filter.ProductID
	}
	var ref, changeType *string
	if filter.ReferenceID != "" {
		ref = &filter.ReferenceID
	}
	if filter.ChangeType != "" {
		ct := string(filter.ChangeType)
		changeType = &ct
	}

	rows, err := s.pool.Query(ctx, `
		SELECT l.log_id, l.product_id, p.product_name, l.change_type, l.change_quantity, l.current_stock,
		       l.affects_stock, COALESCE(l.reference_id, ''), COALESCE(l.memo, ''), COALESCE(l.created_by, ''),
		       l.created_at
		FROM inventory_logs l
		JOIN products p ON p.product_id = l.product_id
		WHERE ($1::int IS NULL OR l.product_id = $1)
		  AND ($2::text IS NULL OR l.reference_id = $2)
		  AND ($3::text IS NULL OR l.change_type = $3)
		ORDER BY l.log_id DESC
		LIMIT $4
	`, productID, ref, changeType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory logs: %w", err)
	}
	defer rows.Close()

	var logs []InventoryLog
	for rows.Next() {
		var l InventoryLog
		if err := rows.Scan(&l.ID, &l.ProductID, &l.ProductName, &l.ChangeType, &l.ChangeQuantity, &l.CurrentStock,
			&l.AffectsStock, &l.ReferenceID, &l.Memo, &l.CreatedBy, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inventory log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *stockLedger) VerifyStock(ctx context.Context) ([]StockDrift, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.product_id, p.product_name, p.stock_quantity,
		       COALESCE(SUM(l.change_quantity) FILTER (WHERE l.affects_stock), 0) AS logged
		FROM products p
		LEFT JOIN inventory_logs l ON l.product_id = p.product_id
		GROUP BY p.product_id, p.product_name, p.stock_quantity
		HAVING p.stock_quantity <> COALESCE(SUM(l.change_quantity) FILTER (WHERE l.affects_stock), 0)
		ORDER BY p.product_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to verify stock: %w", err)
	}
	defer rows.Close()

	var drifts []StockDrift
	for rows.Next() {
		var d StockDrift
		if err := rows.Scan(&d.ProductID, &d.ProductName, &d.StockQuantity, &d.LoggedTotal); err != nil {
			return nil, fmt.Errorf("failed to scan stock drift: %w", err)
		}
		drifts = append(drifts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(drifts) > 0 {
		s.log.Warn("stock drift detected", zap.Int("products", len(drifts)))
	}
	return drifts, nil
}
