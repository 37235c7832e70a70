package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/models"
)

// maxPieRows is the largest result still auto-detected as a pie chart.
const maxPieRows = 8

var dateColumnHints = []string{"date", "time", "year", "month"}

// columnProfile splits result columns by the type of their first-row value.
type columnProfile struct {
	numeric    []string
	nonNumeric []string
	dateLike   []string
}

func profileColumns(columns []string, rows []map[string]any) columnProfile {
	var p columnProfile
	for _, col := range columns {
		if len(rows) > 0 && isNumeric(rows[0][col]) {
			p.numeric = append(p.numeric, col)
		} else {
			p.nonNumeric = append(p.nonNumeric, col)
		}
		if isDateLike(col) {
			p.dateLike = append(p.dateLike, col)
		}
	}
	return p
}

// DetectChart derives a chart configuration from a tabular result.
//
// The category axis is the first non-numeric column (else the first column)
// and the series are the numeric columns (else the second column). A column
// named like a date switches to a line chart on that column; otherwise one
// numeric and one non-numeric column over at most 8 rows makes a pie.
func DetectChart(columns []string, rows []map[string]any) (*models.ChartConfig, error) {
	if len(columns) == 0 || len(rows) == 0 {
		return nil, fmt.Errorf("result has no rows to chart: %w", apperrors.ErrInvalidInput)
	}

	p := profileColumns(columns, rows)

	cfg := &models.ChartConfig{Type: models.ChartBar, XKey: columns[0]}
	if len(p.nonNumeric) > 0 {
		cfg.XKey = p.nonNumeric[0]
	}
	switch {
	case len(p.numeric) > 0:
		cfg.YKeys = append([]string(nil), p.numeric...)
	case len(columns) > 1:
		cfg.YKeys = []string{columns[1]}
	default:
		cfg.YKeys = []string{columns[0]}
	}

	if len(p.dateLike) > 0 {
		cfg.Type = models.ChartLine
		cfg.XKey = p.dateLike[0]
	} else if len(p.numeric) == 1 && len(p.nonNumeric) == 1 && len(rows) <= maxPieRows {
		cfg.Type = models.ChartPie
	}

	cfg.Title = ChartTitle(cfg.XKey, cfg.YKeys)
	return cfg, nil
}

// ApplyChartIntent overrides the chart type from keywords in a free-text request.
func ApplyChartIntent(cfg *models.ChartConfig, request string) {
	r := strings.ToLower(request)
	switch {
	case containsAny(r, "pie", "percentage", "distribution"):
		cfg.Type = models.ChartPie
	case containsAny(r, "line", "trend", "over time"):
		cfg.Type = models.ChartLine
	case containsAny(r, "area", "filled"):
		cfg.Type = models.ChartArea
	case containsAny(r, "bar", "comparison"):
		cfg.Type = models.ChartBar
	}
}

// SuggestAlternatives lists other chart types that suit the result.
func SuggestAlternatives(cfg *models.ChartConfig, columns []string, rows []map[string]any) []models.ChartType {
	p := profileColumns(columns, rows)
	series := len(p.dateLike) > 0 || len(p.nonNumeric) == 1

	alternatives := []models.ChartType{}
	if cfg.Type != models.ChartBar {
		alternatives = append(alternatives, models.ChartBar)
	}
	if cfg.Type != models.ChartLine && series {
		alternatives = append(alternatives, models.ChartLine)
	}
	if cfg.Type != models.ChartArea && series {
		alternatives = append(alternatives, models.ChartArea)
	}
	if cfg.Type != models.ChartPie && len(p.numeric) == 1 && len(p.nonNumeric) == 1 {
		alternatives = append(alternatives, models.ChartPie)
	}
	return alternatives
}

// ChartTitle renders "y1, y2 by x".
func ChartTitle(xKey string, yKeys []string) string {
	if len(yKeys) == 0 {
		return "Data Visualization"
	}
	return fmt.Sprintf("%s by %s", strings.Join(yKeys, ", "), xKey)
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	}
	return false
}

func isDateLike(column string) bool {
	return containsAny(strings.ToLower(column), dateColumnHints...)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
