package sheets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
)

func TestSeriesValues(t *testing.T) {
	report := Report{
		Title: "caqueta",
		Series: []NamedSeries{
			{
				Title: "Transitions",
				Series: model.TimeSeries{
					Classes: model.DefaultTransitionLabels(),
					Rows:    []model.SeriesRow{{Year: 2001, Areas: []float64{1.5, 0, 0.5}}},
				},
			},
			{
				Title: "Reduced classes",
				Series: model.TimeSeries{
					Classes: model.DefaultReducedLabels(),
					Rows:    []model.SeriesRow{{Year: 2000, Areas: []float64{3, 2, 1}}},
				},
			},
		},
	}

	values := seriesValues(report)

	assert.Equal(t, [][]any{
		{"caqueta"},
		{},
		{"Transitions"},
		{"Year", "Deforestation", "Regeneration", "Degradation", "Total"},
		{2001, 1.5, 0.0, 0.5, 2.0},
		{},
		{"Reduced classes"},
		{"Year", "Forest", "Natural non-forest", "Anthropic use", "Total"},
		{2000, 3.0, 2.0, 1.0, 6.0},
	}, values)
}

func TestZonalValues(t *testing.T) {
	values := zonalValues([]model.ZoneStat{
		{Year: 2001, ZoneType: "PNN", ZoneName: "Chiribiquete", ClassLabel: "Deforestation", PixelCount: 4, Area: 0.36},
	})

	require.Len(t, values, 2)
	assert.Equal(t, []any{"Year", "Zone Type", "Zone", "Class", "Pixels", "Area"}, values[0])
	assert.Equal(t, []any{2001, "PNN", "Chiribiquete", "Deforestation", int64(4), 0.36}, values[1])
}

func TestMissingTabs(t *testing.T) {
	tests := []struct {
		name   string
		sheets []*sheets.Sheet
		want   []string
	}{
		{name: "empty spreadsheet", want: []string{SeriesTab, ZonalTab}},
		{
			name:   "only series",
			sheets: []*sheets.Sheet{{Properties: &sheets.SheetProperties{Title: SeriesTab}}},
			want:   []string{ZonalTab},
		},
		{
			name: "both present",
			sheets: []*sheets.Sheet{
				{Properties: &sheets.SheetProperties{Title: ZonalTab}},
				{Properties: &sheets.SheetProperties{Title: SeriesTab}},
				{Properties: &sheets.SheetProperties{Title: "Notes"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, missingTabs(&sheets.Spreadsheet{Sheets: tt.sheets}))
		})
	}
}

func TestTabRange(t *testing.T) {
	assert.Equal(t, "'Time Series'!A:Z", tabRange(SeriesTab, "A:Z"))
}

func TestMockWriter(t *testing.T) {
	var w ReportWriter = NewMockWriter()
	mock := w.(*MockWriter)

	require.NoError(t, w.Write(context.Background(), Report{Title: "first"}))
	mock.SetWriteError(errors.New("quota"))
	require.Error(t, w.Write(context.Background(), Report{Title: "second"}))

	calls := mock.GetWriteCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "first", calls[0].Report.Title)
	assert.Error(t, calls[1].Error)
	assert.Equal(t, "second", mock.LastReport.Title)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err       error
		name      string
		retryable bool
		rateLimit bool
	}{
		{name: "rate limited", err: &googleapi.Error{Code: 429}, retryable: true, rateLimit: true},
		{name: "server error", err: &googleapi.Error{Code: 503}, retryable: true},
		{name: "not found", err: &googleapi.Error{Code: 404}},
		{name: "transport", err: errors.New("connection reset"), retryable: true},
		{name: "canceled", err: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.retryable, common.IsRetryable(got))
			assert.Equal(t, tt.rateLimit, errors.Is(got, common.ErrRateLimit))
			assert.ErrorIs(t, got, tt.err)
		})
	}
	assert.NoError(t, classify(nil))
}
