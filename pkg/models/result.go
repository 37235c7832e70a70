package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Result is one of the four result shapes a query can produce.
// Only the types in this file implement it.
type Result interface {
	resultShape() string
}

// TabularResult holds an ordered column list and row mappings.
type TabularResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// JSONResult holds a single JSON document or value.
type JSONResult struct {
	Value any `json:"json_result"`
}

// ErrorResult holds an execution failure surfaced as data.
type ErrorResult struct {
	Message string `json:"error"`
}

// AckResult acknowledges a statement that returned no rows.
type AckResult struct {
	Message      string `json:"message"`
	RowsAffected int64  `json:"rows_affected"`
}

func (TabularResult) resultShape() string { return "tabular" }
func (JSONResult) resultShape() string    { return "json" }
func (ErrorResult) resultShape() string   { return "error" }
func (AckResult) resultShape() string     { return "ack" }

// AckMessage is the message of every successful statement without a result set.
const AckMessage = "Query executed successfully."

var ErrInvalidEnvelope = errors.New("result envelope must contain exactly one of rows+columns, json_result, error, or message+rows_affected")

// ResultEnvelope is the persisted and wire form of a Result.
// A nil Result marshals to JSON null.
type ResultEnvelope struct {
	Result Result
}

// NewTabular builds an envelope holding rows and columns.
func NewTabular(columns []string, rows []map[string]any) *ResultEnvelope {
	if rows == nil {
		rows = []map[string]any{}
	}
	return &ResultEnvelope{Result: TabularResult{Columns: columns, Rows: rows}}
}

// NewJSON builds an envelope holding a JSON value.
func NewJSON(v any) *ResultEnvelope {
	return &ResultEnvelope{Result: JSONResult{Value: v}}
}

// NewError builds an envelope holding an error message.
func NewError(msg string) *ResultEnvelope {
	return &ResultEnvelope{Result: ErrorResult{Message: msg}}
}

// NewErrorf builds an error envelope from a format string.
func NewErrorf(format string, args ...any) *ResultEnvelope {
	return NewError(fmt.Sprintf(format, args...))
}

// NewAck builds an envelope acknowledging a statement without rows.
func NewAck(msg string, rowsAffected int64) *ResultEnvelope {
	return &ResultEnvelope{Result: AckResult{Message: msg, RowsAffected: rowsAffected}}
}

// Shape returns "tabular", "json", "error", "ack", or "" for an empty envelope.
func (e *ResultEnvelope) Shape() string {
	if e == nil || e.Result == nil {
		return ""
	}
	return e.Result.resultShape()
}

// Tabular returns the tabular result if that is the populated shape.
func (e *ResultEnvelope) Tabular() (TabularResult, bool) {
	if e == nil {
		return TabularResult{}, false
	}
	t, ok := e.Result.(TabularResult)
	return t, ok
}

// ErrorMessage returns the error text if the envelope holds an error.
func (e *ResultEnvelope) ErrorMessage() (string, bool) {
	if e == nil {
		return "", false
	}
	r, ok := e.Result.(ErrorResult)
	return r.Message, ok
}

// RowCount returns the number of rows or documents carried by the envelope.
func (e *ResultEnvelope) RowCount() int {
	if e == nil {
		return 0
	}
	switch r := e.Result.(type) {
	case TabularResult:
		return len(r.Rows)
	case JSONResult:
		if docs, ok := r.Value.([]any); ok {
			return len(docs)
		}
		if r.Value != nil {
			return 1
		}
	}
	return 0
}

func (e ResultEnvelope) MarshalJSON() ([]byte, error) {
	switch r := e.Result.(type) {
	case nil:
		return []byte("null"), nil
	case TabularResult:
		if r.Columns == nil {
			r.Columns = []string{}
		}
		if r.Rows == nil {
			r.Rows = []map[string]any{}
		}
		return json.Marshal(r)
	case JSONResult:
		return json.Marshal(r)
	case ErrorResult:
		return json.Marshal(r)
	case AckResult:
		return json.Marshal(r)
	default:
		return nil, fmt.Errorf("unknown result type %T", r)
	}
}

// rawEnvelope detects which shape keys are present.
type rawEnvelope struct {
	Columns      json.RawMessage `json:"columns"`
	Rows         json.RawMessage `json:"rows"`
	JSONResult   json.RawMessage `json:"json_result"`
	Error        json.RawMessage `json:"error"`
	Message      json.RawMessage `json:"message"`
	RowsAffected json.RawMessage `json:"rows_affected"`
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// UnmarshalJSON accepts exactly one populated shape and rejects anything else.
func (e *ResultEnvelope) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		e.Result = nil
		return nil
	}

	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	tabular := present(raw.Columns) || present(raw.Rows)
	jsonShape := raw.JSONResult != nil
	errShape := present(raw.Error)
	ack := present(raw.Message) || present(raw.RowsAffected)

	count := 0
	for _, p := range []bool{tabular, jsonShape, errShape, ack} {
		if p {
			count++
		}
	}
	if count != 1 {
		return ErrInvalidEnvelope
	}

	switch {
	case tabular:
		if !present(raw.Columns) || !present(raw.Rows) {
			return fmt.Errorf("%w: tabular results need both columns and rows", ErrInvalidEnvelope)
		}
		var t TabularResult
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
		e.Result = t
	case jsonShape:
		var v any
		if err := json.Unmarshal(raw.JSONResult, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
		e.Result = JSONResult{Value: v}
	case errShape:
		var msg string
		if err := json.Unmarshal(raw.Error, &msg); err != nil {
			return fmt.Errorf("%w: error must be a string", ErrInvalidEnvelope)
		}
		e.Result = ErrorResult{Message: msg}
	case ack:
		var a AckResult
		if err := json.Unmarshal(data, &a); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
		e.Result = a
	}
	return nil
}

// Value stores the envelope as JSONB.
func (e ResultEnvelope) Value() (driver.Value, error) {
	if e.Result == nil {
		return nil, nil
	}
	return json.Marshal(e)
}

// Scan reads a JSONB column into the envelope.
func (e *ResultEnvelope) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		e.Result = nil
		return nil
	case []byte:
		return e.UnmarshalJSON(v)
	case string:
		return e.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("cannot scan %T into ResultEnvelope", src)
	}
}
