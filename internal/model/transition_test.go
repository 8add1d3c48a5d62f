package model

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_PreservesInsertionOrder(t *testing.T) {
	reg := NewRegistry()
	for _, years := range [][2]int{{2001, 2002}, {2000, 2001}, {2002, 2003}} {
		require.NoError(t, reg.Add(TransitionGrid{
			Label:    IntervalLabel(years[0], years[1]),
			FromYear: years[0],
			ToYear:   years[1],
			Grid:     NewCodeGrid(1, 1),
		}))
	}

	assert.Equal(t, []string{"2001_to_2002", "2000_to_2001", "2002_to_2003"}, reg.Labels())
	assert.Equal(t, 3, reg.Len())

	yg := reg.YearGrids()
	require.Len(t, yg, 3)
	assert.Equal(t, 2002, yg[0].Year)
	assert.Equal(t, "2001_to_2002", yg[0].Label)
}

func TestRegistry_RejectsDuplicateLabel(t *testing.T) {
	reg := NewRegistry()
	grid := TransitionGrid{Label: "2000_to_2001", Grid: NewCodeGrid(1, 1)}

	require.NoError(t, reg.Add(grid))
	err := reg.Add(grid)
	require.ErrorIs(t, err, ErrDuplicateLabel)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_ConcurrentAddWritesEachLabelOnce(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	errs := make([]error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Two writers race for each of 20 labels.
			label := IntervalLabel(2000+i%20, 2001+i%20)
			errs[i] = reg.Add(TransitionGrid{Label: label, Grid: NewCodeGrid(1, 1)})
		}(i)
	}
	wg.Wait()

	dupes := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrDuplicateLabel)
			dupes++
		}
	}
	assert.Equal(t, 20, dupes)
	assert.Equal(t, 20, reg.Len())
}

func TestRegistry_Get(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(TransitionGrid{Label: "1990_to_1991", ToYear: 1991, Grid: NewCodeGrid(2, 1)}))

	got, ok := reg.Get("1990_to_1991")
	require.True(t, ok)
	assert.Equal(t, 1991, got.ToYear)

	_, ok = reg.Get("1991_to_1992")
	assert.False(t, ok)
}

func TestTransitionCode_String(t *testing.T) {
	tests := []struct {
		want string
		code TransitionCode
	}{
		{code: NoChange, want: "no change"},
		{code: Deforestation, want: "deforestation"},
		{code: Regeneration, want: "regeneration"},
		{code: Degradation, want: "degradation"},
		{code: OtherTransition, want: "other"},
		{code: TransitionCode(9), want: "transition(9)"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(uint8(tt.code)), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.String())
		})
	}
}
