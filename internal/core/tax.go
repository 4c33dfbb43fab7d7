package core

import "github.com/shopspring/decimal"

var (
	vatDivisor = decimal.RequireFromString("1.1")
	vatRate    = decimal.RequireFromString("0.1")
)

// TaxDistribution is the VAT split of a sale total.
type TaxDistribution struct {
	SupplyValue    int64
	VATAmount      int64
	TaxExemptValue int64
	TaxType        TaxType
}

// DistributeTax splits total into supply value, VAT and tax-exempt value.
//
// A product with BOM rows is split by the value share (ratio × material unit price) of
// its taxable materials; the taxable share is then divided at 1.1 like a taxable-only
// product. Without BOM rows the product's own tax type decides. A nil graph means the
// product could not be resolved and the whole total is tax-exempt.
//
// Amounts are rounded half away from zero.
func DistributeTax(total int64, g *BOMGraph) TaxDistribution {
	if g == nil {
		return exemptOnly(total)
	}
	if d, ok := distributeByBOM(total, g); ok {
		return d
	}
	if g.TaxType == TaxTypeTaxable {
		return taxableOnly(total)
	}
	return exemptOnly(total)
}

func taxableOnly(total int64) TaxDistribution {
	supply := decimal.NewFromInt(total).Div(vatDivisor).Round(0).IntPart()
	return TaxDistribution{
		SupplyValue: supply,
		VATAmount:   total - supply,
		TaxType:     TaxTypeTaxable,
	}
}

// exemptOnly reports the whole total as both supply value and exempt value, which is
// how a tax-free invoice states it.
func exemptOnly(total int64) TaxDistribution {
	return TaxDistribution{
		SupplyValue:    total,
		TaxExemptValue: total,
		TaxType:        TaxTypeExempt,
	}
}

// distributeByBOM returns ok=false when the graph has no weighable BOM rows
// (legacy edges, no edges, or a zero total material value).
func distributeByBOM(total int64, g *BOMGraph) (TaxDistribution, bool) {
	if g.Legacy || len(g.Edges) == 0 {
		return TaxDistribution{}, false
	}

	var bomValue, taxableValue decimal.Decimal
	for _, e := range g.Edges {
		v := e.Ratio.Mul(decimal.NewFromInt(e.UnitPrice))
		bomValue = bomValue.Add(v)
		if e.TaxType == TaxTypeTaxable {
			taxableValue = taxableValue.Add(v)
		}
	}
	if !bomValue.IsPositive() {
		return TaxDistribution{}, false
	}

	totalDec := decimal.NewFromInt(total)
	taxableTotal := totalDec.Mul(taxableValue).Div(bomValue)
	vat := taxableTotal.Div(vatDivisor).Mul(vatRate).Round(0)
	supply := taxableTotal.Sub(vat).Round(0)

	d := TaxDistribution{
		SupplyValue: supply.IntPart(),
		VATAmount:   vat.IntPart(),
	}
	d.TaxExemptValue = total - d.VATAmount - d.SupplyValue

	switch {
	case d.TaxExemptValue > 0 && d.SupplyValue+d.VATAmount > 0:
		d.TaxType = TaxTypeMixed
	case d.TaxExemptValue > 0:
		d.TaxType = TaxTypeExempt
	default:
		d.TaxType = TaxTypeTaxable
	}
	return d, true
}
