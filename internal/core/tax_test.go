package core_test

import (
	"testing"

	"farm-ledger/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func edge(id int, ratio string, tax core.TaxType, price int64) core.BOMEdge {
	return core.BOMEdge{MaterialID: id, Ratio: decimal.RequireFromString(ratio), TaxType: tax, UnitPrice: price}
}

func TestDistributeTax_NoBOM(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		graph *core.BOMGraph
		want  core.TaxDistribution
	}{
		{
			name:  "taxable exact",
			total: 11000,
			graph: &core.BOMGraph{TaxType: core.TaxTypeTaxable},
			want:  core.TaxDistribution{SupplyValue: 10000, VATAmount: 1000, TaxType: core.TaxTypeTaxable},
		},
		{
			name:  "taxable rounds supply half up",
			total: 10000,
			graph: &core.BOMGraph{TaxType: core.TaxTypeTaxable},
			want:  core.TaxDistribution{SupplyValue: 9091, VATAmount: 909, TaxType: core.TaxTypeTaxable},
		},
		{
			name:  "exempt product",
			total: 25000,
			graph: &core.BOMGraph{TaxType: core.TaxTypeExempt},
			want:  core.TaxDistribution{SupplyValue: 25000, TaxExemptValue: 25000, TaxType: core.TaxTypeExempt},
		},
		{
			name:  "unresolved product defaults to exempt",
			total: 7000,
			graph: nil,
			want:  core.TaxDistribution{SupplyValue: 7000, TaxExemptValue: 7000, TaxType: core.TaxTypeExempt},
		},
		{
			name:  "legacy edges fall back to product tax type",
			total: 11000,
			graph: &core.BOMGraph{
				TaxType: core.TaxTypeTaxable,
				Legacy:  true,
				Edges:   []core.BOMEdge{edge(2, "1", core.TaxTypeExempt, 1000)},
			},
			want: core.TaxDistribution{SupplyValue: 10000, VATAmount: 1000, TaxType: core.TaxTypeTaxable},
		},
		{
			name:  "zero valued BOM falls back",
			total: 11000,
			graph: &core.BOMGraph{
				TaxType: core.TaxTypeExempt,
				Edges:   []core.BOMEdge{edge(2, "2", core.TaxTypeTaxable, 0)},
			},
			want: core.TaxDistribution{SupplyValue: 11000, TaxExemptValue: 11000, TaxType: core.TaxTypeExempt},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.DistributeTax(tt.total, tt.graph))
		})
	}
}

func TestDistributeTax_WithBOM(t *testing.T) {
	t.Run("half taxable by value is mixed", func(t *testing.T) {
		g := &core.BOMGraph{
			TaxType: core.TaxTypeExempt,
			Edges: []core.BOMEdge{
				edge(2, "1", core.TaxTypeTaxable, 1000),
				edge(3, "2", core.TaxTypeExempt, 500),
			},
		}
		d := core.DistributeTax(22000, g)
		assert.Equal(t, int64(10000), d.SupplyValue)
		assert.Equal(t, int64(1000), d.VATAmount)
		assert.Equal(t, int64(11000), d.TaxExemptValue)
		assert.Equal(t, core.TaxTypeMixed, d.TaxType)
	})

	t.Run("all taxable materials", func(t *testing.T) {
		g := &core.BOMGraph{Edges: []core.BOMEdge{edge(2, "1.5", core.TaxTypeTaxable, 300)}}
		d := core.DistributeTax(11000, g)
		assert.Equal(t, core.TaxDistribution{SupplyValue: 10000, VATAmount: 1000, TaxType: core.TaxTypeTaxable}, d)
	})

	t.Run("all exempt materials", func(t *testing.T) {
		g := &core.BOMGraph{
			TaxType: core.TaxTypeTaxable,
			Edges:   []core.BOMEdge{edge(2, "1", core.TaxTypeExempt, 300)},
		}
		d := core.DistributeTax(9000, g)
		assert.Equal(t, core.TaxDistribution{TaxExemptValue: 9000, TaxType: core.TaxTypeExempt}, d)
	})

	t.Run("components always sum to total", func(t *testing.T) {
		g := &core.BOMGraph{
			Edges: []core.BOMEdge{
				edge(2, "1", core.TaxTypeTaxable, 1000),
				edge(3, "2", core.TaxTypeExempt, 1000),
			},
		}
		for _, total := range []int64{1, 999, 10000, 12345, 1000003} {
			d := core.DistributeTax(total, g)
			assert.Equal(t, total, d.SupplyValue+d.VATAmount+d.TaxExemptValue, "total %d", total)
		}
	})
}

func TestDistributeTax_TaxableSplitIsExact(t *testing.T) {
	g := &core.BOMGraph{TaxType: core.TaxTypeTaxable}
	for _, total := range []int64{0, 1, 5, 110, 9999, 10000, 33333, 1234567} {
		d := core.DistributeTax(total, g)
		want := decimal.NewFromInt(total).Div(decimal.RequireFromString("1.1")).Round(0).IntPart()
		assert.Equal(t, want, d.SupplyValue, "total %d", total)
		assert.Equal(t, total, d.SupplyValue+d.VATAmount, "total %d", total)
	}
}
