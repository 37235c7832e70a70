package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/models"
)

func TestDetectChart_PieForSmallCategoryBreakdown(t *testing.T) {
	rows := []map[string]any{}
	for i, c := range []string{"books", "games", "music", "toys", "tools"} {
		rows = append(rows, map[string]any{"category": c, "sales": float64(100 * (i + 1))})
	}

	cfg, err := DetectChart([]string{"category", "sales"}, rows)
	require.NoError(t, err)

	assert.Equal(t, models.ChartPie, cfg.Type)
	assert.Equal(t, "category", cfg.XKey)
	assert.Equal(t, []string{"sales"}, cfg.YKeys)
	assert.Equal(t, "sales by category", cfg.Title)
}

func TestDetectChart_LineForDateColumn(t *testing.T) {
	rows := []map[string]any{
		{"order_date": "2024-01-01", "revenue": int64(10)},
		{"order_date": "2024-01-02", "revenue": int64(12)},
	}

	cfg, err := DetectChart([]string{"order_date", "revenue"}, rows)
	require.NoError(t, err)

	assert.Equal(t, models.ChartLine, cfg.Type)
	assert.Equal(t, "order_date", cfg.XKey)
	assert.Equal(t, []string{"revenue"}, cfg.YKeys)
}

func TestDetectChart_BarForManyRowsAndSeries(t *testing.T) {
	rows := []map[string]any{}
	for i := 0; i < 20; i++ {
		rows = append(rows, map[string]any{"region": fmt.Sprintf("r%d", i), "q1": float64(i), "q2": float64(i * 2)})
	}

	cfg, err := DetectChart([]string{"region", "q1", "q2"}, rows)
	require.NoError(t, err)

	assert.Equal(t, models.ChartBar, cfg.Type)
	assert.Equal(t, "region", cfg.XKey)
	assert.Equal(t, []string{"q1", "q2"}, cfg.YKeys)
	assert.Equal(t, "q1, q2 by region", cfg.Title)
}

func TestDetectChart_PieNeedsFewRows(t *testing.T) {
	rows := []map[string]any{}
	for i := 0; i < 9; i++ {
		rows = append(rows, map[string]any{"name": fmt.Sprintf("n%d", i), "total": int64(i)})
	}

	cfg, err := DetectChart([]string{"name", "total"}, rows)
	require.NoError(t, err)
	assert.Equal(t, models.ChartBar, cfg.Type)
}

func TestDetectChart_NoNumericColumns(t *testing.T) {
	rows := []map[string]any{{"a": "x", "b": "y"}}

	cfg, err := DetectChart([]string{"a", "b"}, rows)
	require.NoError(t, err)
	assert.Equal(t, "a", cfg.XKey)
	assert.Equal(t, []string{"b"}, cfg.YKeys)
}

func TestDetectChart_EmptyResult(t *testing.T) {
	_, err := DetectChart([]string{"a"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestApplyChartIntent(t *testing.T) {
	tests := []struct {
		request string
		want    models.ChartType
	}{
		{"show the distribution", models.ChartPie},
		{"as a percentage please", models.ChartPie},
		{"plot the trend", models.ChartLine},
		{"how does it change over time", models.ChartLine},
		{"filled chart", models.ChartArea},
		{"side by side comparison", models.ChartBar},
		{"pie or line?", models.ChartPie},
		{"make it pretty", models.ChartArea},
	}

	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			cfg := &models.ChartConfig{Type: models.ChartArea}
			ApplyChartIntent(cfg, tt.request)
			assert.Equal(t, tt.want, cfg.Type)
		})
	}
}

func TestSuggestAlternatives(t *testing.T) {
	columns := []string{"category", "sales"}
	rows := []map[string]any{{"category": "a", "sales": 1.0}}

	alts := SuggestAlternatives(&models.ChartConfig{Type: models.ChartPie}, columns, rows)
	assert.Equal(t, []models.ChartType{models.ChartBar, models.ChartLine, models.ChartArea}, alts)

	alts = SuggestAlternatives(&models.ChartConfig{Type: models.ChartBar}, columns, rows)
	assert.Equal(t, []models.ChartType{models.ChartLine, models.ChartArea, models.ChartPie}, alts)

	wide := []string{"region", "q1", "q2"}
	wideRows := []map[string]any{{"region": "n", "q1": 1.0, "q2": 2.0}}
	alts = SuggestAlternatives(&models.ChartConfig{Type: models.ChartBar}, wide, wideRows)
	assert.Equal(t, []models.ChartType{models.ChartLine, models.ChartArea}, alts)
}

func TestChartTitle(t *testing.T) {
	assert.Equal(t, "Data Visualization", ChartTitle("x", nil))
	assert.Equal(t, "a by x", ChartTitle("x", []string{"a"}))
}
