package orders

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/trancheworks/pool-engine/internal/pool"
)

var cur = pool.TrancheCurrency{PoolID: 1, TrancheID: 0}

func one() decimal.Decimal { return decimal.New(1, 0) }

func TestAddAndProcessInvestOrders(t *testing.T) {
	b := NewBook()
	if err := b.AddInvestOrder(cur, 300); err != nil {
		t.Fatalf("AddInvestOrder: %v", err)
	}
	if err := b.AddInvestOrder(cur, 200); err != nil {
		t.Fatalf("AddInvestOrder: %v", err)
	}

	invest, redeem := b.PendingOrders(cur)
	if invest != 500 || redeem != 0 {
		t.Fatalf("pending: invest=%d redeem=%d", invest, redeem)
	}

	total, err := b.ProcessInvestOrders(cur)
	if err != nil {
		t.Fatalf("ProcessInvestOrders: %v", err)
	}
	if total != 500 {
		t.Fatalf("processing total: %d", total)
	}
	if invest, _ := b.PendingOrders(cur); invest != 0 {
		t.Fatalf("pending after processing: %d", invest)
	}
}

func TestProcessFoldsNewPendingOrders(t *testing.T) {
	b := NewBook()
	b.AddInvestOrder(cur, 300)
	if _, err := b.ProcessInvestOrders(cur); err != nil {
		t.Fatalf("ProcessInvestOrders: %v", err)
	}

	// Orders placed after a failed close fold into the same total on
	// the retry.
	b.AddInvestOrder(cur, 200)
	total, err := b.ProcessInvestOrders(cur)
	if err != nil {
		t.Fatalf("ProcessInvestOrders: %v", err)
	}
	if total != 500 {
		t.Fatalf("processing total after retry: %d", total)
	}
}

func TestInvestFulfillmentMintsTokens(t *testing.T) {
	b := NewBook()
	b.AddInvestOrder(cur, 1_000)
	b.ProcessInvestOrders(cur)

	half := decimal.RequireFromString("0.5")
	price := decimal.RequireFromString("1.25")
	if err := b.InvestFulfillment(cur, pool.Fulfillment{OfAmount: half, Price: price}); err != nil {
		t.Fatalf("InvestFulfillment: %v", err)
	}

	// 500 currency at price 1.25 mints 400 tokens.
	if got := b.TotalIssuance(cur); got != 400 {
		t.Fatalf("issuance: %d", got)
	}
	// The unfilled 500 returns to pending.
	if invest, _ := b.PendingOrders(cur); invest != 500 {
		t.Fatalf("pending remainder: %d", invest)
	}
}

func TestInvestMintRoundsDown(t *testing.T) {
	b := NewBook()
	b.AddInvestOrder(cur, 100)
	b.ProcessInvestOrders(cur)

	price := decimal.RequireFromString("3")
	if err := b.InvestFulfillment(cur, pool.Fulfillment{OfAmount: one(), Price: price}); err != nil {
		t.Fatalf("InvestFulfillment: %v", err)
	}

	// 100 currency at price 3 mints 33 tokens, not 34; the fractional
	// remainder stays with the pool.
	if got := b.TotalIssuance(cur); got != 33 {
		t.Fatalf("issuance: %d", got)
	}
}

func TestRedeemRequiresIssuance(t *testing.T) {
	b := NewBook()
	if err := b.AddRedeemOrder(cur, 1); !errors.Is(err, ErrInsufficientTokens) {
		t.Fatalf("expected ErrInsufficientTokens, got %v", err)
	}

	b.AddInvestOrder(cur, 100)
	b.ProcessInvestOrders(cur)
	if err := b.InvestFulfillment(cur, pool.Fulfillment{OfAmount: one(), Price: one()}); err != nil {
		t.Fatalf("InvestFulfillment: %v", err)
	}

	if err := b.AddRedeemOrder(cur, 100); err != nil {
		t.Fatalf("AddRedeemOrder: %v", err)
	}
	// Queueing beyond the outstanding supply is rejected.
	if err := b.AddRedeemOrder(cur, 1); !errors.Is(err, ErrInsufficientTokens) {
		t.Fatalf("over-redeem: %v", err)
	}
}

func TestRedeemFulfillmentBurnsAndPaysOut(t *testing.T) {
	b := NewBook()
	b.AddInvestOrder(cur, 1_000)
	b.ProcessInvestOrders(cur)
	if err := b.InvestFulfillment(cur, pool.Fulfillment{OfAmount: one(), Price: one()}); err != nil {
		t.Fatalf("InvestFulfillment: %v", err)
	}

	b.AddRedeemOrder(cur, 800)
	b.ProcessRedeemOrders(cur)

	half := decimal.RequireFromString("0.5")
	price := decimal.RequireFromString("1.5")
	if err := b.RedeemFulfillment(cur, pool.Fulfillment{OfAmount: half, Price: price}); err != nil {
		t.Fatalf("RedeemFulfillment: %v", err)
	}

	// 400 tokens burn at price 1.5 for a 600 currency payout.
	if got := b.TotalIssuance(cur); got != 600 {
		t.Fatalf("issuance after burn: %d", got)
	}
	if got := b.Payouts(cur); got != 600 {
		t.Fatalf("payouts: %d", got)
	}
	if _, redeem := b.PendingOrders(cur); redeem != 400 {
		t.Fatalf("pending remainder: %d", redeem)
	}
}

func TestZeroFulfillmentReturnsEverything(t *testing.T) {
	b := NewBook()
	b.AddInvestOrder(cur, 500)
	b.ProcessInvestOrders(cur)

	if err := b.InvestFulfillment(cur, pool.Fulfillment{Price: one()}); err != nil {
		t.Fatalf("InvestFulfillment: %v", err)
	}
	if got := b.TotalIssuance(cur); got != 0 {
		t.Fatalf("issuance: %d", got)
	}
	if invest, _ := b.PendingOrders(cur); invest != 500 {
		t.Fatalf("pending: %d", invest)
	}
}

func TestCurrenciesAreIsolated(t *testing.T) {
	b := NewBook()
	other := pool.TrancheCurrency{PoolID: 1, TrancheID: 1}
	b.AddInvestOrder(cur, 100)
	b.AddInvestOrder(other, 200)

	if invest, _ := b.PendingOrders(cur); invest != 100 {
		t.Fatalf("first currency pending: %d", invest)
	}
	if invest, _ := b.PendingOrders(other); invest != 200 {
		t.Fatalf("second currency pending: %d", invest)
	}
}
