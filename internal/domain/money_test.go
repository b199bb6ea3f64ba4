package domain

import "testing"

func TestApplyRate(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		bps    int64
		want   int64
	}{
		{name: "zero amount", amount: 0, bps: 800, want: 0},
		{name: "zero rate", amount: 2000, bps: 0, want: 0},
		{name: "eight percent", amount: 2000, bps: 800, want: 160},
		{name: "rounds up at half cent", amount: 1031, bps: 825, want: 85},
		{name: "rounds down below half cent", amount: 1030, bps: 825, want: 85},
		{name: "single cent", amount: 1, bps: 800, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ApplyRate(tc.amount, tc.bps); got != tc.want {
				t.Fatalf("ApplyRate(%d, %d) = %d, want %d", tc.amount, tc.bps, got, tc.want)
			}
		})
	}
}

func TestItemSubtotal(t *testing.T) {
	mods := []ItemCustomization{
		{Name: "extra cheese", PriceDelta: 150},
		{Name: "no onions", PriceDelta: 0},
	}
	if got := ItemSubtotal(1000, mods, 2); got != 2300 {
		t.Fatalf("expected 2300 got %d", got)
	}
	if got := ItemSubtotal(1000, nil, 3); got != 3000 {
		t.Fatalf("expected 3000 got %d", got)
	}
}

func TestOrderTotals(t *testing.T) {
	items := []OrderItem{
		{Subtotal: 2000},
	}
	subtotal, tax, total := OrderTotals(items, 800, 0)
	if subtotal != 2000 || tax != 160 || total != 2160 {
		t.Fatalf("unexpected totals subtotal=%d tax=%d total=%d", subtotal, tax, total)
	}

	subtotal, tax, total = OrderTotals(items, 800, 300)
	if total != subtotal+tax+300 {
		t.Fatalf("total %d does not equal subtotal+tax+tip", total)
	}
}
