package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ClaimService records cancel, return and exchange requests against sales.
type ClaimService interface {
	CreateClaim(ctx context.Context, actor string, in ClaimInput) (*SalesClaim, error)
	// UpdateClaim changes reason, quantity and memo of a claim that is not yet completed.
	UpdateClaim(ctx context.Context, actor string, claimID int, in ClaimInput) (*SalesClaim, error)
	DeleteClaim(ctx context.Context, actor string, claimID int) error
	// ProcessClaim records the resolution. Completing a claim sets the sale's terminal
	// status; a completed 취소 or 반품 with recovered inventory puts its share of the goods
	// and their materials back in stock under the sale id, once per claim.
	ProcessClaim(ctx context.Context, actor string, claimID int, res ClaimResolution) (*SalesClaim, error)
	GetClaim(ctx context.Context, claimID int) (*SalesClaim, error)
	GetClaimsBySale(ctx context.Context, salesID string) ([]SalesClaim, error)
}

type claimService struct {
	serviceBase
	stock StockLedger
}

func NewClaimService(pool *pgxpool.Pool, stock StockLedger, opts ...Option) ClaimService {
	return &claimService{serviceBase: newServiceBase(pool, "claims", opts), stock: stock}
}

const claimColumns = `claim_id, sales_id, customer_id, claim_type, claim_status, COALESCE(reason_category, ''),
	quantity, refund_amount, is_inventory_recovered, stock_recovered, COALESCE(memo, ''), created_at, updated_at`

func scanClaim(row pgx.Row, c *SalesClaim) error {
	return row.Scan(&c.ID, &c.SalesID, &c.CustomerID, &c.ClaimType, &c.ClaimStatus, &c.ReasonCategory,
		&c.Quantity, &c.RefundAmount, &c.IsInventoryRecovered, &c.StockRecovered, &c.Memo, &c.CreatedAt, &c.UpdatedAt)
}

func lockClaimTx(ctx context.Context, tx pgx.Tx, claimID int) (*SalesClaim, error) {
	var c SalesClaim
	err := scanClaim(tx.QueryRow(ctx, "SELECT "+claimColumns+" FROM sales_claims WHERE claim_id = $1 FOR UPDATE", claimID), &c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr("claim %d", claimID)
		}
		return nil, fmt.Errorf("failed to lock claim %d: %w", claimID, err)
	}
	return &c, nil
}

func (s *claimService) CreateClaim(ctx context.Context, actor string, in ClaimInput) (*SalesClaim, error) {
	in.SalesID = strings.TrimSpace(in.SalesID)
	if in.SalesID == "" {
		return nil, validationErr("sales id is required")
	}
	if !in.ClaimType.IsValid() {
		return nil, validationErr("invalid claim type %q", in.ClaimType)
	}
	if in.Quantity < 0 {
		return nil, validationErr("claim quantity cannot be negative, got %d", in.Quantity)
	}

	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var saleCustomer *string
	err = tx.QueryRow(ctx, "SELECT customer_id FROM sales WHERE sales_id = $1", in.SalesID).Scan(&saleCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, validationErr("sale %s does not exist", in.SalesID)
		}
		return nil, fmt.Errorf("failed to fetch sale %s: %w", in.SalesID, err)
	}
	customerID := blankToNil(in.CustomerID)
	if customerID == nil {
		customerID = saleCustomer
	}

	var c SalesClaim
	err = scanClaim(tx.QueryRow(ctx, `
		INSERT INTO sales_claims (sales_id, customer_id, claim_type, reason_category, quantity, memo)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''))
		RETURNING `+claimColumns,
		in.SalesID, customerID, string(in.ClaimType), in.ReasonCategory, in.Quantity, in.Memo,
	), &c)
	if err != nil {
		return nil, dbErr("create claim for sale "+in.SalesID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	s.committed(ctx, "claim", "created", strconv.Itoa(c.ID), actor,
		zap.String("sales_id", c.SalesID), zap.String("claim_type", string(c.ClaimType)))
	return &c, nil
}

func (s *claimService) UpdateClaim(ctx context.Context, actor string, claimID int, in ClaimInput) (*SalesClaim, error) {
	if in.Quantity < 0 {
		return nil, validationErr("claim quantity cannot be negative, got %d", in.Quantity)
	}

	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cur, err := lockClaimTx(ctx, tx, claimID)
	if err != nil {
		return nil, err
	}
	if cur.ClaimStatus == ClaimCompleted {
		return nil, invalidStateErr("claim %d is already completed", claimID)
	}

	var c SalesClaim
	err = scanClaim(tx.QueryRow(ctx, `
		UPDATE sales_claims
		SET reason_category = NULLIF($1, ''), quantity = $2, memo = NULLIF($3, ''), updated_at = NOW()
		WHERE claim_id = $4
		RETURNING `+claimColumns,
		in.ReasonCategory, in.Quantity, in.Memo, claimID,
	), &c)
	if err != nil {
		return nil, dbErr(fmt.Sprintf("update claim %d", claimID), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim update: %w", err)
	}
	s.committed(ctx, "claim", "updated", strconv.Itoa(claimID), actor)
	return &c, nil
}

func (s *claimService) DeleteClaim(ctx context.Context, actor string, claimID int) error {
	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, "DELETE FROM sales_claims WHERE claim_id = $1", claimID)
	if err != nil {
		return fmt.Errorf("failed to delete claim %d: %w", claimID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundErr("claim %d", claimID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit claim deletion: %w", err)
	}
	s.committed(ctx, "claim", "deleted", strconv.Itoa(claimID), actor)
	return nil
}

func (s *claimService) ProcessClaim(ctx context.Context, actor string, claimID int, res ClaimResolution) (*SalesClaim, error) {
	if !res.Status.IsValid() {
		return nil, validationErr("invalid claim status %q", res.Status)
	}
	if res.RefundAmount < 0 {
		return nil, validationErr("refund amount cannot be negative, got %d", res.RefundAmount)
	}

	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	prev, err := lockClaimTx(ctx, tx, claimID)
	if err != nil {
		return nil, err
	}
	sale, err := lockSaleTx(ctx, tx, prev.SalesID)
	if err != nil {
		return nil, err
	}

	var c SalesClaim
	err = scanClaim(tx.QueryRow(ctx, `
		UPDATE sales_claims
		SET claim_status = $1, is_inventory_recovered = $2, refund_amount = $3, updated_at = NOW()
		WHERE claim_id = $4
		RETURNING `+claimColumns,
		string(res.Status), res.IsInventoryRecovered, res.RefundAmount, claimID,
	), &c)
	if err != nil {
		return nil, dbErr(fmt.Sprintf("process claim %d", claimID), err)
	}

	recovered := false
	if res.Status == ClaimCompleted {
		if err := setSaleStatusTx(ctx, tx, sale.ID, c.ClaimType.CompletedSaleStatus()); err != nil {
			return nil, err
		}
		if res.IsInventoryRecovered && c.ClaimType.RecoversStock() && !prev.StockRecovered {
			if err := s.recoverStockTx(ctx, tx, sale.ID, &c); err != nil {
				return nil, err
			}
			if _, err := tx.Exec(ctx, "UPDATE sales_claims SET stock_recovered = TRUE WHERE claim_id = $1", claimID); err != nil {
				return nil, fmt.Errorf("failed to mark claim %d recovered: %w", claimID, err)
			}
			c.StockRecovered = true
			recovered = true
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim %d: %w", claimID, err)
	}
	s.committed(ctx, "claim", "processed", strconv.Itoa(claimID), actor,
		zap.String("status", string(c.ClaimStatus)), zap.Bool("stock_recovered", recovered))
	return &c, nil
}

// saleStockEffect is what a sale did to one product's stock under its sale id.
type saleStockEffect struct {
	productID int
	taken     int64 // units deducted by the sale and its material cascade
	returned  int64 // units already put back under the sale id
}

// saleStockEffectsTx reads the stock effects recorded under salesID. The sold product
// is the first one logged, since the sale's own 출고 precedes its material cascade.
func saleStockEffectsTx(ctx context.Context, tx pgx.Tx, salesID string) ([]saleStockEffect, error) {
	rows, err := tx.Query(ctx, `
		SELECT product_id,
		       COALESCE(-SUM(change_quantity) FILTER (WHERE change_quantity < 0), 0),
		       COALESCE(SUM(change_quantity) FILTER (WHERE change_quantity > 0), 0)
		FROM inventory_logs
		WHERE reference_id = $1 AND affects_stock
		GROUP BY product_id
		ORDER BY MIN(log_id)
	`, salesID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock effects of sale %s: %w", salesID, err)
	}
	defer rows.Close()

	var effects []saleStockEffect
	for rows.Next() {
		var e saleStockEffect
		if err := rows.Scan(&e.productID, &e.taken, &e.returned); err != nil {
			return nil, fmt.Errorf("failed to scan stock effect: %w", err)
		}
		effects = append(effects, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock effects of sale %s: %w", salesID, err)
	}
	return effects, nil
}

// recoverStockTx puts a claim's share of the sale back in stock under the sale id.
// Products and amounts come from the sale's own log rows, not the current sale row.
// With C the units recovered so far plus this claim's quantity (capped at the sold
// units), every product ends at floor(taken * C / sold) returned, so a run of claims
// never returns more than the sale took and a whole-sale claim returns exactly that.
func (s *claimService) recoverStockTx(ctx context.Context, tx pgx.Tx, salesID string, c *SalesClaim) error {
	effects, err := saleStockEffectsTx(ctx, tx, salesID)
	if err != nil {
		return err
	}
	if len(effects) == 0 || effects[0].taken == 0 {
		return nil
	}
	sold := effects[0]
	recovered := sold.returned + int64(c.Quantity)
	if c.Quantity == 0 || recovered > sold.taken {
		recovered = sold.taken
	}

	// Product order keeps row locks stable across concurrent recoveries.
	sort.Slice(effects, func(i, j int) bool { return effects[i].productID < effects[j].productID })

	memo := fmt.Sprintf("클레임 #%d 재고 회수 (%s)", c.ID, c.ClaimType)
	for _, e := range effects {
		target := e.taken * recovered / sold.taken
		qty := min(target-e.returned, e.taken-e.returned)
		if qty <= 0 {
			continue
		}
		if _, err := s.stock.ApplyTx(ctx, tx, StockMovement{
			ProductID:   e.productID,
			Quantity:    int(qty),
			ChangeType:  ChangeIn,
			ReferenceID: salesID,
			Memo:        memo,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *claimService) GetClaim(ctx context.Context, claimID int) (*SalesClaim, error) {
	var c SalesClaim
	err := scanClaim(s.pool.QueryRow(ctx, "SELECT "+claimColumns+" FROM sales_claims WHERE claim_id = $1", claimID), &c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr("claim %d", claimID)
		}
		return nil, fmt.Errorf("failed to fetch claim %d: %w", claimID, err)
	}
	return &c, nil
}

func (s *claimService) GetClaimsBySale(ctx context.Context, salesID string) ([]SalesClaim, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+claimColumns+" FROM sales_claims WHERE sales_id = $1 ORDER BY claim_id", salesID)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims of sale %s: %w", salesID, err)
	}
	defer rows.Close()

	var claims []SalesClaim
	for rows.Next() {
		var c SalesClaim
		if err := scanClaim(rows, &c); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}
