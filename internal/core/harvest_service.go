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

// HarvestService records production batches and their harvests.
//
// A new harvest books three log rows for the batch product: the standard yield as
// 입고, the defective yield as informational 비상품 and the loss as informational
// 손실. Only the standard yield moves stock. The product's BOM materials are then
// consumed for the standard yield. Editing an existing harvest never touches stock.
type HarvestService interface {
	CreateBatch(ctx context.Context, actor, batchCode string, productID int, startDate string) (*ProductionBatch, error)
	GetBatch(ctx context.Context, batchID int) (*ProductionBatch, error)

	// SaveHarvestRecord inserts rec when rec.ID is 0 and updates it otherwise.
	// completeBatch closes the batch with end_date = harvest date.
	SaveHarvestRecord(ctx context.Context, actor string, rec HarvestRecord, completeBatch bool) (*HarvestRecord, error)
	// SaveHarvestBatch inserts all records in one transaction. Records with an id are rejected.
	SaveHarvestBatch(ctx context.Context, actor string, recs []HarvestRecord) ([]HarvestRecord, error)
	// DeleteHarvestRecord reverses the harvest's stock effects and removes it.
	DeleteHarvestRecord(ctx context.Context, actor string, harvestID int) error
	GetHarvestRecord(ctx context.Context, harvestID int) (*HarvestRecord, error)
	GetHarvestRecords(ctx context.Context, batchID int) ([]HarvestRecord, error)
}

type harvestService struct {
	serviceBase
	stock StockLedger
}

func NewHarvestService(pool *pgxpool.Pool, stock StockLedger, opts ...Option) HarvestService {
	return &harvestService{serviceBase: newServiceBase(pool, "harvest", opts), stock: stock}
}

// HarvestReference is the reference id stamped on every log row caused by a harvest.
func HarvestReference(harvestID int) string {
	return "HARVEST-" + strconv.Itoa(harvestID)
}

const harvestColumns = `harvest_id, batch_id, harvest_date::text, quantity, defective_quantity, loss_quantity,
	unit, COALESCE(grade, ''), COALESCE(memo, ''), created_at`

func scanHarvest(row pgx.Row, h *HarvestRecord) error {
	return row.Scan(&h.ID, &h.BatchID, &h.HarvestDate, &h.Quantity, &h.DefectiveQuantity, &h.LossQuantity,
		&h.Unit, &h.Grade, &h.Memo, &h.CreatedAt)
}

const batchColumns = "batch_id, batch_code, product_id, start_date::text, end_date::text, status"

func scanBatch(row pgx.Row, b *ProductionBatch) error {
	return row.Scan(&b.ID, &b.BatchCode, &b.ProductID, &b.StartDate, &b.EndDate, &b.Status)
}

func (s *harvestService) CreateBatch(ctx context.Context, actor, batchCode string, productID int, startDate string) (*ProductionBatch, error) {
	batchCode = strings.TrimSpace(batchCode)
	if batchCode == "" {
		return nil, validationErr("batch code is required")
	}
	start := today()
	if strings.TrimSpace(startDate) != "" {
		d, err := ParseDate(startDate)
		if err != nil {
			return nil, err
		}
		start = d
	}

	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var b ProductionBatch
	err = scanBatch(tx.QueryRow(ctx, `
		INSERT INTO production_batches (batch_code, product_id, start_date, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+batchColumns,
		batchCode, productID, start, BatchInProgress,
	), &b)
	if err != nil {
		return nil, dbErr("create batch "+batchCode, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit batch %s: %w", batchCode, err)
	}
	s.committed(ctx, "batch", "created", strconv.Itoa(b.ID), actor, zap.String("batch_code", batchCode))
	return &b, nil
}

func (s *harvestService) GetBatch(ctx context.Context, batchID int) (*ProductionBatch, error) {
	var b ProductionBatch
	err := scanBatch(s.pool.QueryRow(ctx, "SELECT "+batchColumns+" FROM production_batches WHERE batch_id = $1", batchID), &b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr("batch %d", batchID)
		}
		return nil, fmt.Errorf("failed to fetch batch %d: %w", batchID, err)
	}
	return &b, nil
}

func normalizeHarvest(rec *HarvestRecord) error {
	if rec.BatchID <= 0 {
		return validationErr("batch id is required")
	}
	if rec.Quantity.IsNegative() || rec.DefectiveQuantity.IsNegative() || rec.LossQuantity.IsNegative() {
		return validationErr("harvest quantities cannot be negative")
	}
	if strings.TrimSpace(rec.HarvestDate) == "" {
		rec.HarvestDate = today()
	} else {
		d, err := ParseDate(rec.HarvestDate)
		if err != nil {
			return err
		}
		rec.HarvestDate = d
	}
	if strings.TrimSpace(rec.Unit) == "" {
		rec.Unit = "kg"
	}
	return nil
}

// batchProductTx returns the product and code of a batch.
func batchProductTx(ctx context.Context, tx pgx.Tx, batchID int) (int, string, error) {
	var productID *int
	var code string
	err := tx.QueryRow(ctx, "SELECT product_id, batch_code FROM production_batches WHERE batch_id = $1", batchID).Scan(&productID, &code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", validationErr("batch %d does not exist", batchID)
		}
		return 0, "", fmt.Errorf("failed to fetch batch %d: %w", batchID, err)
	}
	if productID == nil {
		return 0, "", validationErr("batch %s has no product", code)
	}
	return *productID, code, nil
}

// insertHarvestTx stores a new harvest and books its stock effects.
func (s *harvestService) insertHarvestTx(ctx context.Context, tx pgx.Tx, rec HarvestRecord) (*HarvestRecord, error) {
	if rec.ID > 0 {
		return nil, validationErr("harvest %d already exists; batch saves only insert", rec.ID)
	}
	if err := normalizeHarvest(&rec); err != nil {
		return nil, err
	}
	productID, code, err := batchProductTx(ctx, tx, rec.BatchID)
	if err != nil {
		return nil, err
	}

	var h HarvestRecord
	err = scanHarvest(tx.QueryRow(ctx, `
		INSERT INTO harvest_records (batch_id, harvest_date, quantity, defective_quantity, loss_quantity, unit, grade, memo)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
		RETURNING `+harvestColumns,
		rec.BatchID, rec.HarvestDate, rec.Quantity, rec.DefectiveQuantity, rec.LossQuantity, rec.Unit, rec.Grade, rec.Memo,
	), &h)
	if err != nil {
		return nil, dbErr("insert harvest for batch "+code, err)
	}

	ref := HarvestReference(h.ID)
	if qty := int(h.Quantity.IntPart()); qty > 0 {
		if _, err := s.stock.ApplyTx(ctx, tx, StockMovement{
			ProductID:   productID,
			Quantity:    qty,
			ChangeType:  ChangeIn,
			ReferenceID: ref,
			Memo:        fmt.Sprintf("수확 입고 [정품] (배치: %s)", code),
		}); err != nil {
			return nil, err
		}
	}
	if def := int(h.DefectiveQuantity.IntPart()); def > 0 {
		if _, err := s.stock.RecordInformationalTx(ctx, tx, StockMovement{
			ProductID:   productID,
			Quantity:    def,
			ChangeType:  ChangeDefective,
			ReferenceID: ref,
			Memo:        fmt.Sprintf("수확 발생 [비상품/파지] (배치: %s)", code),
		}); err != nil {
			return nil, err
		}
	}
	if loss := int(h.LossQuantity.IntPart()); loss > 0 {
		if _, err := s.stock.RecordInformationalTx(ctx, tx, StockMovement{
			ProductID:   productID,
			Quantity:    -loss,
			ChangeType:  ChangeLoss,
			ReferenceID: ref,
			Memo:        fmt.Sprintf("수확 중 손실 발생 (배치: %s)", code),
		}); err != nil {
			return nil, err
		}
	}
	if err := s.stock.CascadeTx(ctx, tx, productID, h.Quantity, CascadeConsume, ref,
		fmt.Sprintf("수확 자재 차감 (배치: %s)", code)); err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *harvestService) SaveHarvestRecord(ctx context.Context, actor string, rec HarvestRecord, completeBatch bool) (*HarvestRecord, error) {
	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var h *HarvestRecord
	kind := "created"
	if rec.ID > 0 {
		kind = "updated"
		if err := normalizeHarvest(&rec); err != nil {
			return nil, err
		}
		var updated HarvestRecord
		err = scanHarvest(tx.QueryRow(ctx, `
			UPDATE harvest_records
			SET batch_id = $1, harvest_date = $2, quantity = $3, defective_quantity = $4, loss_quantity = $5,
			    unit = $6, grade = NULLIF($7, ''), memo = NULLIF($8, '')
			WHERE harvest_id = $9
			RETURNING `+harvestColumns,
			rec.BatchID, rec.HarvestDate, rec.Quantity, rec.DefectiveQuantity, rec.LossQuantity,
			rec.Unit, rec.Grade, rec.Memo, rec.ID,
		), &updated)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, notFoundErr("harvest %d", rec.ID)
			}
			return nil, dbErr(fmt.Sprintf("update harvest %d", rec.ID), err)
		}
		h = &updated
	} else {
		h, err = s.insertHarvestTx(ctx, tx, rec)
		if err != nil {
			return nil, err
		}
	}

	if completeBatch {
		if _, err := tx.Exec(ctx,
			"UPDATE production_batches SET status = $1, end_date = $2 WHERE batch_id = $3",
			BatchCompleted, h.HarvestDate, h.BatchID,
		); err != nil {
			return nil, fmt.Errorf("failed to complete batch %d: %w", h.BatchID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit harvest: %w", err)
	}
	s.committed(ctx, "harvest", kind, strconv.Itoa(h.ID), actor,
		zap.Int("batch_id", h.BatchID), zap.String("quantity", h.Quantity.String()), zap.Bool("batch_completed", completeBatch))
	return h, nil
}

func (s *harvestService) SaveHarvestBatch(ctx context.Context, actor string, recs []HarvestRecord) ([]HarvestRecord, error) {
	if len(recs) == 0 {
		return nil, validationErr("no harvest records to save")
	}

	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	saved := make([]HarvestRecord, 0, len(recs))
	for i, rec := range recs {
		h, err := s.insertHarvestTx(ctx, tx, rec)
		if err != nil {
			return nil, fmt.Errorf("harvest record %d: %w", i+1, err)
		}
		saved = append(saved, *h)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit harvest batch: %w", err)
	}
	for _, h := range saved {
		s.committed(ctx, "harvest", "created", strconv.Itoa(h.ID), actor, zap.Int("batch_id", h.BatchID))
	}
	return saved, nil
}

func (s *harvestService) DeleteHarvestRecord(ctx context.Context, actor string, harvestID int) error {
	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var batchID int
	err = tx.QueryRow(ctx, "SELECT batch_id FROM harvest_records WHERE harvest_id = $1 FOR UPDATE", harvestID).Scan(&batchID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFoundErr("harvest %d", harvestID)
		}
		return fmt.Errorf("failed to lock harvest %d: %w", harvestID, err)
	}

	if _, err := s.stock.ReverseReferenceTx(ctx, tx, HarvestReference(harvestID),
		fmt.Sprintf("수확 기록 삭제 복원 (#%d)", harvestID)); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM harvest_records WHERE harvest_id = $1", harvestID); err != nil {
		return fmt.Errorf("failed to delete harvest %d: %w", harvestID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit harvest deletion: %w", err)
	}
	s.committed(ctx, "harvest", "deleted", strconv.Itoa(harvestID), actor, zap.Int("batch_id", batchID))
	return nil
}

func (s *harvestService) GetHarvestRecord(ctx context.Context, harvestID int) (*HarvestRecord, error) {
	var h HarvestRecord
	err := scanHarvest(s.pool.QueryRow(ctx, "SELECT "+harvestColumns+" FROM harvest_records WHERE harvest_id = $1", harvestID), &h)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr("harvest %d", harvestID)
		}
		return nil, fmt.Errorf("failed to fetch harvest %d: %w", harvestID, err)
	}
	return &h, nil
}

func (s *harvestService) GetHarvestRecords(ctx context.Context, batchID int) ([]HarvestRecord, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+harvestColumns+" FROM harvest_records WHERE batch_id = $1 ORDER BY harvest_date DESC, harvest_id DESC",
		batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query harvests of batch %d: %w", batchID, err)
	}
	defer rows.Close()

	var recs []HarvestRecord
	for rows.Next() {
		var h HarvestRecord
		if err := scanHarvest(rows, &h); err != nil {
			return nil, fmt.Errorf("failed to scan harvest: %w", err)
		}
		recs = append(recs, h)
	}
	return recs, rows.Err()
}
