package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ChartType is the kind of chart rendered for a tabular result.
type ChartType string

const (
	ChartBar  ChartType = "bar"
	ChartLine ChartType = "line"
	ChartPie  ChartType = "pie"
	ChartArea ChartType = "area"
)

// Valid reports whether t is one of the supported chart kinds.
func (t ChartType) Valid() bool {
	switch t {
	case ChartBar, ChartLine, ChartPie, ChartArea:
		return true
	}
	return false
}

// ChartConfig describes how to plot a tabular result.
type ChartConfig struct {
	Type  ChartType `json:"type"`
	XKey  string    `json:"xKey"`
	YKeys []string  `json:"yKeys"`
	Title string    `json:"title"`
}

// Validate checks the chart kind and axis keys.
func (c *ChartConfig) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("invalid chart type %q", c.Type)
	}
	if c.XKey == "" {
		return fmt.Errorf("chart xKey is required")
	}
	if len(c.YKeys) == 0 {
		return fmt.Errorf("chart yKeys must not be empty")
	}
	return nil
}

func (c ChartConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *ChartConfig) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("cannot scan %T into ChartConfig", src)
	}
}
