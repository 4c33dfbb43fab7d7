package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogService manages products and their bill of materials.
type CatalogService interface {
	CreateProduct(ctx context.Context, actor string, in NewProduct) (*Product, error)
	GetProduct(ctx context.Context, productID int) (*Product, error)
	// FindProduct resolves a product by name and specification; a nil spec matches only NULL.
	FindProduct(ctx context.Context, name string, spec *string) (*Product, error)
	GetBOM(ctx context.Context, productID int) (*BOMGraph, error)
	// SaveBOM replaces all BOM rows of productID.
	SaveBOM(ctx context.Context, actor string, productID int, edges []BOMEdgeInput) error
}

type catalogService struct {
	serviceBase
	stock StockLedger
}

func NewCatalogService(pool *pgxpool.Pool, stock StockLedger, opts ...Option) CatalogService {
	return &catalogService{serviceBase: newServiceBase(pool, "catalog", opts), stock: stock}
}

const productColumns = `product_id, product_name, specification, unit_price, cost_price,
	stock_quantity, safety_stock, tax_type, item_type, created_at`

func scanProduct(row pgx.Row, p *Product) error {
	return row.Scan(&p.ID, &p.Name, &p.Specification, &p.UnitPrice, &p.CostPrice,
		&p.StockQuantity, &p.SafetyStock, &p.TaxType, &p.ItemType, &p.CreatedAt)
}

func (s *catalogService) CreateProduct(ctx context.Context, actor string, in NewProduct) (*Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, validationErr("product name is required")
	}
	if in.TaxType == "" {
		in.TaxType = TaxTypeExempt
	}
	if !in.TaxType.IsValid() {
		return nil, validationErr("invalid tax type %q", in.TaxType)
	}
	if in.ItemType == "" {
		in.ItemType = ItemTypeFinished
	}
	if !in.ItemType.IsValid() {
		return nil, validationErr("invalid item type %q", in.ItemType)
	}
	if in.InitialStock < 0 {
		return nil, validationErr("initial stock cannot be negative, got %d", in.InitialStock)
	}

	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var p Product
	err = scanProduct(tx.QueryRow(ctx, `
		INSERT INTO products (product_name, specification, unit_price, cost_price, safety_stock, tax_type, item_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+productColumns,
		in.Name, blankToNil(in.Specification), in.UnitPrice, in.CostPrice, in.SafetyStock,
		string(in.TaxType), string(in.ItemType),
	), &p)
	if err != nil {
		return nil, dbErr("create product "+in.Name, err)
	}

	if in.InitialStock > 0 {
		l, err := s.stock.ApplyTx(ctx, tx, StockMovement{
			ProductID:   p.ID,
			Quantity:    in.InitialStock,
			ChangeType:  ChangeIn,
			ReferenceID: ReferenceInitial,
			Memo:        "초기 재고",
		})
		if err != nil {
			return nil, err
		}
		p.StockQuantity = l.CurrentStock
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit product creation: %w", err)
	}
	s.committed(ctx, "product", "created", strconv.Itoa(p.ID), actor)
	return &p, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID int) (*Product, error) {
	var p Product
	err := scanProduct(s.pool.QueryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE product_id = $1", productID), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr("product %d", productID)
		}
		return nil, fmt.Errorf("failed to fetch product %d: %w", productID, err)
	}
	return &p, nil
}

func (s *catalogService) FindProduct(ctx context.Context, name string, spec *string) (*Product, error) {
	id, err := findProductID(ctx, s.pool, strings.TrimSpace(name), blankToNil(spec))
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, notFoundErr("product %q", name)
	}
	return s.GetProduct(ctx, *id)
}

func (s *catalogService) GetBOM(ctx context.Context, productID int) (*BOMGraph, error) {
	return ResolveBOM(ctx, s.pool, productID)
}

func (s *catalogService) SaveBOM(ctx context.Context, actor string, productID int, edges []BOMEdgeInput) error {
	seen := make(map[int]bool, len(edges))
	for _, e := range edges {
		if e.MaterialID == productID {
			return validationErr("product %d cannot list itself as a material", productID)
		}
		if !e.Ratio.IsPositive() {
			return validationErr("ratio for material %d must be positive, got %s", e.MaterialID, e.Ratio)
		}
		if seen[e.MaterialID] {
			return validationErr("material %d listed twice", e.MaterialID)
		}
		seen[e.MaterialID] = true
	}

	tx, err := beginAs(ctx, s.pool, actor)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM products WHERE product_id = $1)", productID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check product %d: %w", productID, err)
	}
	if !exists {
		return notFoundErr("product %d", productID)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM product_bom WHERE product_id = $1", productID); err != nil {
		return fmt.Errorf("failed to clear BOM of product %d: %w", productID, err)
	}
	for _, e := range edges {
		if _, err := tx.Exec(ctx,
			"INSERT INTO product_bom (product_id, material_id, ratio) VALUES ($1, $2, $3)",
			productID, e.MaterialID, e.Ratio,
		); err != nil {
			return dbErr(fmt.Sprintf("add material %d to product %d", e.MaterialID, productID), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit BOM for product %d: %w", productID, err)
	}
	s.committed(ctx, "product", "bom_saved", strconv.Itoa(productID), actor)
	return nil
}
