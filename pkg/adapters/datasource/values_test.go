package datasource

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeValue(t *testing.T) {
	id := uuid.MustParse("8d1b1f0e-3b5c-4d7f-9a10-2b3c4d5e6f70")
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"time in UTC", ts, "2024-03-01T11:30:00Z"},
		{"text bytes", []byte("north"), "north"},
		{"binary bytes", []byte{0xff, 0x00}, "\\xff00"},
		{"uuid", id, id.String()},
		{"raw uuid", [16]byte(id), id.String()},
		{"int32", int32(7), int64(7)},
		{"uint8", uint8(3), int64(3)},
		{"float32", float32(1.5), float64(1.5)},
		{"huge uint64", uint64(1<<63 + 1), "9223372036854775809"},
		{"big int", big.NewInt(42), int64(42)},
		{"string passthrough", "x", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeValue(tt.in))
		})
	}
}

func TestConvertTextValue(t *testing.T) {
	assert.Equal(t, int64(12), ConvertTextValue("INT", []byte("12")))
	assert.Equal(t, int64(12), ConvertTextValue("UNSIGNED BIGINT", []byte("12")))
	assert.Equal(t, 19.99, ConvertTextValue("DECIMAL", []byte("19.99")))
	assert.Equal(t, true, ConvertTextValue("BIT", []byte{1}))
	assert.Equal(t, "abc", ConvertTextValue("VARCHAR", []byte("abc")))
	// unparsable numbers fall back to text
	assert.Equal(t, "n/a", ConvertTextValue("INT", []byte("n/a")))
}
