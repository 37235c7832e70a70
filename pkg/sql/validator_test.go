package sql

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"trailing semicolon", "SELECT 1;", "SELECT 1", nil},
		{"whitespace and semicolon", "  SELECT 1 ;  \n", "SELECT 1", nil},
		{"semicolon in literal", "SELECT ';' AS sep", "SELECT ';' AS sep", nil},
		{"semicolon in identifier", `SELECT 1 AS "a;b"`, `SELECT 1 AS "a;b"`, nil},
		{"doubled quote", "SELECT 'it''s;' FROM t", "SELECT 'it''s;' FROM t", nil},
		{"semicolon in line comment", "SELECT 1 -- a; b\nFROM t", "SELECT 1 -- a; b\nFROM t", nil},
		{"semicolon in block comment", "SELECT /* ; */ 1", "SELECT /* ; */ 1", nil},
		{"two statements", "SELECT 1; DROP TABLE users", "", ErrMultipleStatements},
		{"two statements trailing", "SELECT 1; SELECT 2;", "", ErrMultipleStatements},
		{"empty", "  ; ", "", ErrEmptyQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Normalize(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
