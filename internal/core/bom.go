package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ResolveBOM loads a product's tax type and material edges. product_bom rows win;
// only when there are none are the legacy material_id and aux_material_id columns
// used, with a missing or non-positive ratio read as 1.
func ResolveBOM(ctx context.Context, q dbQuerier, productID int) (*BOMGraph, error) {
	g := &BOMGraph{ProductID: productID}

	var legacyID, auxID *int
	var legacyRatio, auxRatio decimal.NullDecimal
	err := q.QueryRow(ctx, `
		SELECT tax_type, material_id, material_ratio, aux_material_id, aux_material_ratio
		FROM products
		WHERE product_id = $1
	`, productID).Scan(&g.TaxType, &legacyID, &legacyRatio, &auxID, &auxRatio)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr("product %d", productID)
		}
		return nil, fmt.Errorf("failed to fetch product %d: %w", productID, err)
	}

	rows, err := q.Query(ctx, `
		SELECT b.material_id, m.product_name, b.ratio, m.tax_type, m.unit_price
		FROM product_bom b
		JOIN products m ON m.product_id = b.material_id
		WHERE b.product_id = $1
		ORDER BY b.material_id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query BOM for product %d: %w", productID, err)
	}
	for rows.Next() {
		var e BOMEdge
		if err := rows.Scan(&e.MaterialID, &e.MaterialName, &e.Ratio, &e.TaxType, &e.UnitPrice); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan BOM edge: %w", err)
		}
		g.Edges = append(g.Edges, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating BOM rows for product %d: %w", productID, err)
	}
	if len(g.Edges) > 0 {
		return g, nil
	}

	legacy := []struct {
		id    *int
		ratio decimal.NullDecimal
	}{{legacyID, legacyRatio}, {auxID, auxRatio}}
	for _, l := range legacy {
		if l.id == nil || *l.id == productID {
			continue
		}
		e := BOMEdge{MaterialID: *l.id, Ratio: decimal.NewFromInt(1)}
		if l.ratio.Valid && l.ratio.Decimal.IsPositive() {
			e.Ratio = l.ratio.Decimal
		}
		err := q.QueryRow(ctx,
			"SELECT product_name, tax_type, unit_price FROM products WHERE product_id = $1",
			e.MaterialID,
		).Scan(&e.MaterialName, &e.TaxType, &e.UnitPrice)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("failed to fetch legacy material %d: %w", e.MaterialID, err)
		}
		g.Edges = append(g.Edges, e)
	}
	g.Legacy = len(g.Edges) > 0
	return g, nil
}

// findProductID resolves a product by its (name, specification) identity, treating a
// nil specification as equal only to NULL. It returns nil when nothing matches.
func findProductID(ctx context.Context, q pgxQuerier, name string, spec *string) (*int, error) {
	var id int
	err := q.QueryRow(ctx, `
		SELECT product_id FROM products
		WHERE product_name = $1 AND specification IS NOT DISTINCT FROM $2
	`, name, spec).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve product %q: %w", name, err)
	}
	return &id, nil
}

// taxForProduct runs the tax split for a possibly unresolved product.
func taxForProduct(ctx context.Context, q dbQuerier, productID *int, total int64) (TaxDistribution, error) {
	if productID == nil {
		return DistributeTax(total, nil), nil
	}
	g, err := ResolveBOM(ctx, q, *productID)
	if err != nil {
		return TaxDistribution{}, err
	}
	return DistributeTax(total, g), nil
}
