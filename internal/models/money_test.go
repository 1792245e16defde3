package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestComputeFeeSplit(t *testing.T) {
	tests := []struct {
		name       string
		amount     string
		feePercent string
		wantFee    string
		wantPayee  string
	}{
		{"целая сумма", "10000.00", "2.0", "200.00", "9800.00"},
		{"минимальная сумма", "1000.00", "2.0", "20.00", "980.00"},
		{"копейки в комиссии", "1050.55", "2.0", "21.01", "1029.54"},
		{"сумма с копейками без округления", "1012.50", "2.0", "20.25", "992.25"},
		{"нулевая комиссия", "5000.00", "0", "0.00", "5000.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, payee := ComputeFeeSplit(d(tt.amount), d(tt.feePercent))
			assert.True(t, d(tt.wantFee).Equal(fee), "fee: ожидали %s, получили %s", tt.wantFee, fee)
			assert.True(t, d(tt.wantPayee).Equal(payee), "payee: ожидали %s, получили %s", tt.wantPayee, payee)
		})
	}
}

func TestComputeFeeSplit_Conservation(t *testing.T) {
	// Ни одна копейка не теряется на любых суммах.
	amounts := []string{"1000.00", "1234.56", "99999.99", "500000.00", "1000.01"}
	for _, a := range amounts {
		amount := d(a)
		fee, payee := ComputeFeeSplit(amount, d("2.0"))
		assert.True(t, amount.Equal(fee.Add(payee)), "сумма частей должна быть равна %s", a)
	}
}

func TestSplitAmount(t *testing.T) {
	tests := []struct {
		name      string
		amount    string
		pct       int
		wantRef   string
		wantPayee string
	}{
		{"полный возврат", "10000.00", 100, "10000.00", "0.00"},
		{"без возврата", "10000.00", 0, "0.00", "10000.00"},
		{"поровну", "10000.00", 50, "5000.00", "5000.00"},
		{"треть с округлением", "10000.00", 33, "3300.00", "6700.00"},
		{"нечётная сумма", "1000.01", 50, "500.01", "500.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refund, payee := SplitAmount(d(tt.amount), tt.pct)
			assert.True(t, d(tt.wantRef).Equal(refund), "refund: ожидали %s, получили %s", tt.wantRef, refund)
			assert.True(t, d(tt.wantPayee).Equal(payee), "payee: ожидали %s, получили %s", tt.wantPayee, payee)
		})
	}
}

func TestSplitAmount_Conservation(t *testing.T) {
	amount := d("1234.57")
	for pct := 0; pct <= 100; pct++ {
		refund, payee := SplitAmount(amount, pct)
		assert.True(t, amount.Equal(refund.Add(payee)), "pct=%d: refund+payee != amount", pct)
		assert.False(t, refund.IsNegative(), "pct=%d: отрицательный возврат", pct)
		assert.False(t, payee.IsNegative(), "pct=%d: отрицательная доля исполнителя", pct)
	}
}

func TestNewReference(t *testing.T) {
	ref := NewReference()
	assert.Len(t, ref, 12)
	assert.Equal(t, "TXN-", ref[:4])

	// Две подряд сгенерированные ссылки не совпадают.
	assert.NotEqual(t, ref, NewReference())
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus(StatusReleased))
	assert.True(t, IsTerminalStatus(StatusRefunded))
	assert.True(t, IsTerminalStatus(StatusCancelled))
	assert.False(t, IsTerminalStatus(StatusPending))
	assert.False(t, IsTerminalStatus(StatusDisputed))
	assert.False(t, IsTerminalStatus(StatusApproved))
}
