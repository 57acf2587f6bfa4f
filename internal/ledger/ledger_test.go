package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		before  int64
		amount  int64
		typ     TxType
		want    int64
		wantErr error
	}{
		{"deposit credits", 0, 50_000, TypeDeposit, 50_000, nil},
		{"refund credits", 100, 50, TypeRefund, 150, nil},
		{"commission credits", 0, 10, TypeCommission, 10, nil},
		{"purchase debits", 10_000, 4_000, TypePurchase, 6_000, nil},
		{"withdraw to zero", 500, 500, TypeWithdraw, 0, nil},
		{"withdrawal debits", 900, 100, TypeWithdrawal, 800, nil},
		{"overdraft rejected", 10_000, 20_000, TypePurchase, 10_000, ErrInsufficientFunds},
		{"zero amount rejected", 10, 0, TypeDeposit, 10, ErrInvalidAmount},
		{"unknown type rejected", 10, 1, TxType("gift"), 10, ErrUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(decimal.NewFromInt(tt.before), decimal.NewFromInt(tt.amount), tt.typ)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.NewFromInt(tt.want)) {
				t.Fatalf("expected %d, got %s", tt.want, got)
			}
		})
	}
}

func TestApplyKeepsCents(t *testing.T) {
	got, err := Apply(decimal.RequireFromString("0.10"), decimal.RequireFromString("0.20"), TypeDeposit)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(decimal.RequireFromString("0.30")) {
		t.Fatalf("expected exact 0.30, got %s", got)
	}
}

func TestPageClamp(t *testing.T) {
	tests := []struct {
		in, want Page
	}{
		{Page{Limit: 0, Offset: 0}, Page{Limit: 1, Offset: 0}},
		{Page{Limit: -4, Offset: -1}, Page{Limit: 1, Offset: 0}},
		{Page{Limit: 20, Offset: 40}, Page{Limit: 20, Offset: 40}},
		{Page{Limit: 1_000_000, Offset: 3}, Page{Limit: MaxPageSize, Offset: 3}},
	}
	for _, tt := range tests {
		if got := tt.in.Clamp(); got != tt.want {
			t.Fatalf("Clamp(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestFoldSkipsNonCompleted(t *testing.T) {
	entries := []Transaction{
		{Type: TypeDeposit, Amount: decimal.NewFromInt(100), Status: StatusCompleted},
		{Type: TypePurchase, Amount: decimal.NewFromInt(30), Status: StatusCompleted},
		{Type: TypeDeposit, Amount: decimal.NewFromInt(999), Status: StatusFailed},
		{Type: TypeRefund, Amount: decimal.NewFromInt(10), Status: StatusCompleted},
	}
	if got := Fold(entries); !got.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("expected 80, got %s", got)
	}
}
