package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PurchaseService stores procurement records. Purchases inject raw stock only;
// no BOM cascade is run for them.
type PurchaseService interface {
	// SavePurchase inserts p when p.ID is 0 and updates it otherwise, then books each
	// sync item as 입고 under PURCHASE-<id>. Any sync item marks the purchase synced.
	SavePurchase(ctx context.Context, actor string, p Purchase, items []SyncItem) (*Purchase, error)
	// DeletePurchase reverses the stock booked under the purchase and removes it.
	DeletePurchase(ctx context.Context, actor string, purchaseID int) error
	GetPurchase(ctx context.Context, purchaseID int) (*Purchase, error)
}

type purchaseService struct {
	serviceBase
	stock StockLedger
}

func NewPurchaseService(pool *pgxpool.Pool, stock StockLedger, opts ...Option) PurchaseService {
	return &purchaseService{serviceBase: newServiceBase(pool, "purchases", opts), stock: stock}
}

// PurchaseReference is the reference id stamped on stock rows booked by a purchase.
func PurchaseReference(purchaseID int) string {
	return "PURCHASE-" + strconv.Itoa(purchaseID)
}

const purchaseColumns = `purchase_id, vendor_id, purchase_date::text, item_name, specification, quantity,
	unit_price, total_amount, COALESCE(payment_status, ''), COALESCE(memo, ''), inventory_synced,
	material_item_id, created_at`

func scanPurchase(row pgx.Row, p *Purchase) error {
	return row.Scan(&p.ID, &p.VendorID, &p.PurchaseDate, &p.ItemName, &p.Specification, &p.Quantity,
		&p.UnitPrice, &p.TotalAmount, &p.PaymentStatus, &p.Memo, &p.InventorySynced,
		&p.MaterialItemID, &p.CreatedAt)
}

func (s *purchaseService) SavePurchase(ctx context.Context, actor string, p Purchase, items []SyncItem) (*Purchase, error) {
	p.ItemName = strings.TrimSpace(p.ItemName)
	if p.ItemName == "" {
		return nil, validationErr("item name is required")
	}
	if p.Quantity < 0 {
		return nil, validationErr("purchase quantity cannot be negative, got %d", p.Quantity)
	}
	if strings.TrimSpace(p.PurchaseDate) == "" {
		p.PurchaseDate = today()
	} else {
		d, err := ParseDate(p.PurchaseDate)
		if err != nil {
			return nil, err
		}
		p.PurchaseDate = d
	}
	if p.TotalAmount == 0 {
		p.TotalAmount = p.UnitPrice * int64(p.Quantity)
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, validationErr("sync quantity for product %d must be positive, got %d", it.ProductID, it.Quantity)
		}
	}
	synced := p.InventorySynced || len(items) > 0

	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var saved Purchase
	kind := "created"
	if p.ID > 0 {
		kind = "updated"
		err = scanPurchase(tx.QueryRow(ctx, `
			UPDATE purchases SET
				vendor_id = $1, purchase_date = $2, item_name = $3, specification = $4, quantity = $5,
				unit_price = $6, total_amount = $7, payment_status = NULLIF($8, ''), memo = NULLIF($9, ''),
				inventory_synced = $10, material_item_id = $11
			WHERE purchase_id = $12
			RETURNING `+purchaseColumns,
			p.VendorID, p.PurchaseDate, p.ItemName, blankToNil(p.Specification), p.Quantity,
			p.UnitPrice, p.TotalAmount, p.PaymentStatus, p.Memo, synced, p.MaterialItemID, p.ID,
		), &saved)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr("purchase %d", p.ID)
		}
	} else {
		err = scanPurchase(tx.QueryRow(ctx, `
			INSERT INTO purchases (vendor_id, purchase_date, item_name, specification, quantity, unit_price,
				total_amount, payment_status, memo, inventory_synced, material_item_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11)
			RETURNING `+purchaseColumns,
			p.VendorID, p.PurchaseDate, p.ItemName, blankToNil(p.Specification), p.Quantity, p.UnitPrice,
			p.TotalAmount, p.PaymentStatus, p.Memo, synced, p.MaterialItemID,
		), &saved)
	}
	if err != nil {
		return nil, dbErr("save purchase "+p.ItemName, err)
	}

	ref := PurchaseReference(saved.ID)
	for _, it := range items {
		if _, err := s.stock.ApplyTx(ctx, tx, StockMovement{
			ProductID:   it.ProductID,
			Quantity:    it.Quantity,
			ChangeType:  ChangeIn,
			ReferenceID: ref,
			Memo:        "매입 연동 입고: " + saved.ItemName,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}
	s.committed(ctx, "purchase", kind, strconv.Itoa(saved.ID), actor, zap.Int("synced_items", len(items)))
	return &saved, nil
}

func (s *purchaseService) DeletePurchase(ctx context.Context, actor string, purchaseID int) error {
	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var itemName string
	err = tx.QueryRow(ctx, "SELECT item_name FROM purchases WHERE purchase_id = $1 FOR UPDATE", purchaseID).Scan(&itemName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFoundErr("purchase %d", purchaseID)
		}
		return fmt.Errorf("failed to lock purchase %d: %w", purchaseID, err)
	}

	if _, err := s.stock.ReverseReferenceTx(ctx, tx, PurchaseReference(purchaseID), "매입 삭제 복원: "+itemName); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM purchases WHERE purchase_id = $1", purchaseID); err != nil {
		return fmt.Errorf("failed to delete purchase %d: %w", purchaseID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit purchase deletion: %w", err)
	}
	s.committed(ctx, "purchase", "deleted", strconv.Itoa(purchaseID), actor)
	return nil
}

func (s *purchaseService) GetPurchase(ctx context.Context, purchaseID int) (*Purchase, error) {
	var p Purchase
	err := scanPurchase(s.pool.QueryRow(ctx, "SELECT "+purchaseColumns+" FROM purchases WHERE purchase_id = $1", purchaseID), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr("purchase %d", purchaseID)
		}
		return nil, fmt.Errorf("failed to fetch purchase %d: %w", purchaseID, err)
	}
	return &p, nil
}
