package reclass

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
)

func uniformGrid(width, height int, value uint16) model.Grid {
	g := model.NewGrid(width, height)
	for i := range g.Pix {
		g.Pix[i] = value
	}
	return g
}

func TestApply_EveryPixelFollowsTable(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	table := DefaultTable()

	bands := make([]model.Grid, 4)
	for b := range bands {
		g := model.NewGrid(17, 13)
		for i := range g.Pix {
			g.Pix[i] = uint16(rng.Intn(80))
		}
		bands[b] = g
	}

	out, err := Apply(model.Stack{Bands: bands, StartYear: 2000}, table, Options{Workers: 2})
	require.NoError(t, err)
	require.Len(t, out.Bands, 4)

	allowed := map[uint8]bool{Unclassified: true}
	for _, c := range table.Range() {
		allowed[c] = true
	}

	for b, band := range bands {
		for i, raw := range band.Pix {
			want := table.Lookup(raw)
			got := out.Bands[b].Pix[i]
			assert.Equal(t, want, got, "band %d pixel %d raw %d", b, i, raw)
			assert.True(t, allowed[got])
		}
	}
}

func TestApply_DefaultTableScenario(t *testing.T) {
	stack := model.Stack{
		StartYear: 2001,
		Bands:     []model.Grid{uniformGrid(3, 3, 3), uniformGrid(3, 3, 9)},
	}

	out, err := Apply(stack, DefaultTable(), Options{})
	require.NoError(t, err)

	for _, v := range out.Bands[0].Pix {
		assert.Equal(t, Forest, v)
	}
	for _, v := range out.Bands[1].Pix {
		assert.Equal(t, Anthropic, v)
	}
	assert.Equal(t, 2001, out.StartYear)
}

func TestApply_UnmappedCodeBecomesZero(t *testing.T) {
	out, err := Apply(model.Stack{Bands: []model.Grid{uniformGrid(4, 2, 999)}}, DefaultTable(), Options{})
	require.NoError(t, err)

	for _, v := range out.Bands[0].Pix {
		assert.Equal(t, Unclassified, v)
	}
}

func TestApply_IdentityIsIdempotentOnReducedStack(t *testing.T) {
	reduced := model.ClassStack{
		StartYear: 1990,
		Bands: []model.CodeGrid{
			{Width: 3, Height: 2, Pix: []uint8{0, 1, 2, 3, 3, 0}},
			{Width: 3, Height: 2, Pix: []uint8{1, 1, 2, 2, 3, 3}},
		},
	}

	out, err := Apply(reduced.Widen(), IdentityTable(), Options{})
	require.NoError(t, err)
	assert.Equal(t, reduced.Bands, out.Bands)
}

func TestApply_NoDataHandling(t *testing.T) {
	nd := uint16(0)
	table := NewTable(map[uint16]uint8{0: 2, 3: 1})
	stack := model.Stack{
		NoData: &nd,
		Bands:  []model.Grid{{Width: 3, Height: 1, Pix: []uint16{0, 3, 7}}},
	}

	t.Run("reclassified like any other value by default", func(t *testing.T) {
		out, err := Apply(stack, table, Options{})
		require.NoError(t, err)
		assert.Equal(t, []uint8{2, 1, 0}, out.Bands[0].Pix)
		require.NotNil(t, out.NoData)
		assert.Equal(t, uint8(0), *out.NoData)
	})

	t.Run("passed through when preserving", func(t *testing.T) {
		out, err := Apply(stack, table, Options{PreserveNoData: true})
		require.NoError(t, err)
		assert.Equal(t, []uint8{0, 1, 0}, out.Bands[0].Pix)
	})

	t.Run("wide nodata is dropped", func(t *testing.T) {
		wide := uint16(65535)
		s := model.Stack{NoData: &wide, Bands: []model.Grid{uniformGrid(1, 1, 3)}}
		out, err := Apply(s, table, Options{})
		require.NoError(t, err)
		assert.Nil(t, out.NoData)

		_, err = Apply(s, table, Options{PreserveNoData: true})
		require.ErrorIs(t, err, common.ErrInvalidConfig)
	})
}

func TestApply_RejectsBadStacks(t *testing.T) {
	tests := []struct {
		wantErr error
		name    string
		stack   model.Stack
	}{
		{
			name:    "no bands",
			stack:   model.Stack{},
			wantErr: model.ErrEmptyStack,
		},
		{
			name:    "mismatched dimensions",
			stack:   model.Stack{Bands: []model.Grid{model.NewGrid(2, 2), model.NewGrid(3, 2)}},
			wantErr: model.ErrDimensionMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(tt.stack, DefaultTable(), Options{})
			require.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestParseTable(t *testing.T) {
	tests := []struct {
		raw     map[string]string
		check   func(t *testing.T, tbl Table)
		name    string
		wantErr bool
	}{
		{
			name: "valid entries",
			raw:  map[string]string{"3": "1", " 21 ": "3"},
			check: func(t *testing.T, tbl Table) {
				t.Helper()
				assert.Equal(t, uint8(1), tbl.Lookup(3))
				assert.Equal(t, uint8(3), tbl.Lookup(21))
				assert.Equal(t, uint8(0), tbl.Lookup(4))
				assert.Equal(t, 2, tbl.Len())
			},
		},
		{
			name:    "negative key",
			raw:     map[string]string{"-1": "1"},
			wantErr: true,
		},
		{
			name:    "value out of range",
			raw:     map[string]string{"3": "300"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := ParseTable(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			tt.check(t, tbl)
		})
	}
}

func TestDefaultTable(t *testing.T) {
	tbl := DefaultTable()
	assert.Equal(t, 17, tbl.Len())
	assert.Equal(t, []uint8{Forest, NaturalNonForest, Anthropic}, tbl.Range())
	assert.Equal(t, Forest, tbl.Lookup(6))
	assert.Equal(t, NaturalNonForest, tbl.Lookup(68))
	assert.Equal(t, Anthropic, tbl.Lookup(35))
	assert.Equal(t, Unclassified, tbl.Lookup(15))
	assert.Equal(t, Unclassified, tbl.Lookup(65535))
}
