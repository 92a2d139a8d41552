package payment

import (
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSettle_Deterministic(t *testing.T) {
	tests := []struct {
		amount   string
		approved bool
	}{
		{"19.98", true},
		{"9999.99", true},
		{"10000.00", true},  // exactly at the limit is approved
		{"10000.01", false}, // one cent over is declined
		{"15000.00", false},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			// The check is a pure function of the amount: repeated
			// settlements of equal amounts always agree.
			for i := 0; i < 3; i++ {
				p := New("o1", "c1", dec(tt.amount), "AUTO")
				assert.Equal(t, tt.approved, p.Settle("declined"))
			}
		})
	}
}

func TestSettle_Approved(t *testing.T) {
	p := New("o1", "c1", dec("100.00"), "CARD")
	require.Equal(t, StatusProcessing, p.Status)

	require.True(t, p.Settle("declined"))
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Regexp(t, regexp.MustCompile(`^TXN-[0-9A-F]{8}$`), p.TransactionID)
	assert.Empty(t, p.FailureReason)
	require.NotNil(t, p.ProcessedAt)
}

func TestSettle_Declined(t *testing.T) {
	p := New("o1", "c1", dec("10000.01"), "CARD")

	require.False(t, p.Settle("Insufficient funds"))
	assert.Equal(t, StatusFailed, p.Status)
	assert.Empty(t, p.TransactionID)
	assert.Equal(t, "Insufficient funds", p.FailureReason)
	require.NotNil(t, p.ProcessedAt)
}
