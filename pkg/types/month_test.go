package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2024-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), m)

	for _, bad := range []string{"", "2024", "2024-13", "24-01", "2024/01"} {
		_, err := ParseMonth(bad)
		assert.ErrorIs(t, err, ErrInvalidMonth, bad)
	}
}

func TestMonthRange(t *testing.T) {
	months, err := MonthRange("2023-11", "2024-02")
	require.NoError(t, err)
	assert.Equal(t, []string{"2023-11", "2023-12", "2024-01", "2024-02"}, months)

	months, err = MonthRange("2024-03", "2024-01")
	require.NoError(t, err)
	assert.Empty(t, months)

	_, err = MonthRange("bad", "2024-01")
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestDay(t *testing.T) {
	in := time.Date(2024, 5, 17, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), Day(in))
}

func TestValidCurrency(t *testing.T) {
	assert.True(t, ValidCurrency("KRW"))
	assert.True(t, ValidCurrency("usd"))
	assert.False(t, ValidCurrency(""))
	assert.False(t, ValidCurrency("XYZQ"))
}
