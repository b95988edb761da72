package inventory

import (
	"testing"

	"pgregory.net/rapid"
)

func checkInvariants(t *rapid.T, l *Ledger) {
	if l.QuantityOnHand < 0 || l.QuantityReserved < 0 || l.QuantityLocked < 0 {
		t.Fatalf("negative counter: %+v", *l)
	}
	if l.TotalStock() > l.MaxStockLevel {
		t.Fatalf("total %d above max %d", l.TotalStock(), l.MaxStockLevel)
	}
	want := max(0, l.QuantityOnHand-l.QuantityReserved-l.QuantityLocked)
	if l.AvailableForSale() != want {
		t.Fatalf("available %d, want %d", l.AvailableForSale(), want)
	}
}

func TestLedgerInvariantsHold(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxStock := rapid.IntRange(1, 500).Draw(t, "max")
		onHand := rapid.IntRange(0, maxStock).Draw(t, "onHand")
		l, err := NewLedger("sku", onHand, rapid.IntRange(0, 20).Draw(t, "reorder"), maxStock)
		if err != nil {
			t.Fatalf("new ledger: %v", err)
		}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			qty := rapid.IntRange(-5, 40).Draw(t, "qty")
			switch rapid.IntRange(0, 7).Draw(t, "op") {
			case 0:
				_ = l.Reserve(qty)
			case 1:
				_, _ = l.Release(qty)
			case 2:
				_ = l.Confirm(qty)
			case 3:
				_ = l.Restock(qty)
			case 4:
				_ = l.AdjustOnHand(qty-20, "audit")
			case 5:
				_ = l.Lock(qty)
			case 6:
				_, _ = l.Unlock(qty)
			case 7:
				_ = l.Unconfirm(qty)
			}
			checkInvariants(t, l)
		}
	})
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, err := NewLedger("sku", rapid.IntRange(0, 100).Draw(t, "onHand"), 0, 1000)
		if err != nil {
			t.Fatalf("new ledger: %v", err)
		}
		_ = l.Reserve(rapid.IntRange(1, 30).Draw(t, "prior"))
		before := *l

		qty := rapid.IntRange(1, 50).Draw(t, "qty")
		if err := l.Reserve(qty); err != nil {
			if *l != before {
				t.Fatalf("failed reserve mutated ledger")
			}
			return
		}
		if _, err := l.Release(qty); err != nil {
			t.Fatalf("release: %v", err)
		}
		if l.QuantityOnHand != before.QuantityOnHand || l.QuantityReserved != before.QuantityReserved || l.QuantityLocked != before.QuantityLocked {
			t.Fatalf("round trip changed counters: before %+v after %+v", before, *l)
		}
	})
}

func TestReserveConfirmNetEffect(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, err := NewLedger("sku", rapid.IntRange(1, 100).Draw(t, "onHand"), 0, 1000)
		if err != nil {
			t.Fatalf("new ledger: %v", err)
		}
		before := *l
		qty := rapid.IntRange(1, before.QuantityOnHand).Draw(t, "qty")
		if err := l.Reserve(qty); err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if err := l.Confirm(qty); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if l.QuantityReserved != before.QuantityReserved {
			t.Fatalf("reserved %d, want %d", l.QuantityReserved, before.QuantityReserved)
		}
		if l.QuantityOnHand != before.QuantityOnHand-qty {
			t.Fatalf("onHand %d, want %d", l.QuantityOnHand, before.QuantityOnHand-qty)
		}
	})
}
