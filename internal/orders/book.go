// Package orders implements the in-memory order book and tranche
// token ledger backing the epoch engine.
package orders

import (
	"errors"
	"sync"

	"github.com/trancheworks/pool-engine/internal/fixed"
	"github.com/trancheworks/pool-engine/internal/pool"
)

var ErrInsufficientTokens = errors.New("insufficient tranche tokens")

// account tracks one tranche token. Pending orders wait for the next
// epoch close; processing orders belong to the closed epoch and are
// consumed by its fulfillment.
type account struct {
	pendingInvest    uint64 // pool currency
	pendingRedeem    uint64 // tranche tokens
	processingInvest uint64
	processingRedeem uint64
	issuance         uint64 // tranche tokens outstanding
	payouts          uint64 // pool currency owed to redeemers
}

// Book is the order book for all tranche tokens. It implements
// pool.OrderBook.
type Book struct {
	mu       sync.Mutex
	accounts map[pool.TrancheCurrency]*account
}

func NewBook() *Book {
	return &Book{accounts: make(map[pool.TrancheCurrency]*account)}
}

func (b *Book) account(cur pool.TrancheCurrency) *account {
	acc, ok := b.accounts[cur]
	if !ok {
		acc = &account{}
		b.accounts[cur] = acc
	}
	return acc
}

// AddInvestOrder queues pool currency for investment into a tranche
// at the next epoch close.
func (b *Book) AddInvestOrder(cur pool.TrancheCurrency, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.account(cur)
	pending, err := fixed.Add(acc.pendingInvest, amount)
	if err != nil {
		return err
	}
	acc.pendingInvest = pending
	return nil
}

// AddRedeemOrder queues tranche tokens for redemption at the next
// epoch close. The queued tokens may not exceed the outstanding
// supply.
func (b *Book) AddRedeemOrder(cur pool.TrancheCurrency, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.account(cur)
	pending, err := fixed.Add(acc.pendingRedeem, amount)
	if err != nil {
		return err
	}
	queued, err := fixed.Add(pending, acc.processingRedeem)
	if err != nil {
		return err
	}
	if queued > acc.issuance {
		return ErrInsufficientTokens
	}
	acc.pendingRedeem = pending
	return nil
}

// TotalIssuance returns the outstanding tranche token supply.
func (b *Book) TotalIssuance(cur pool.TrancheCurrency) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.account(cur).issuance
}

// PendingOrders returns the queued invest currency and redeem tokens.
func (b *Book) PendingOrders(cur pool.TrancheCurrency) (invest, redeem uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.account(cur)
	return acc.pendingInvest, acc.pendingRedeem
}

// Payouts returns the pool currency owed to redeemers so far.
func (b *Book) Payouts(cur pool.TrancheCurrency) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.account(cur).payouts
}

// ProcessInvestOrders moves pending invest orders into the closing
// epoch and returns the total amount under processing. Re-processing
// before fulfillment folds newly pending orders into the same total,
// so a retried close sees a consistent sum.
func (b *Book) ProcessInvestOrders(cur pool.TrancheCurrency) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.account(cur)
	processing, err := fixed.Add(acc.processingInvest, acc.pendingInvest)
	if err != nil {
		return 0, err
	}
	acc.processingInvest = processing
	acc.pendingInvest = 0
	return processing, nil
}

// ProcessRedeemOrders moves pending redeem orders into the closing
// epoch and returns the total token amount under processing.
func (b *Book) ProcessRedeemOrders(cur pool.TrancheCurrency) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.account(cur)
	processing, err := fixed.Add(acc.processingRedeem, acc.pendingRedeem)
	if err != nil {
		return 0, err
	}
	acc.processingRedeem = processing
	acc.pendingRedeem = 0
	return processing, nil
}

// InvestFulfillment executes a fraction of the processing invest
// orders at the given token price, minting tranche tokens for the
// executed currency. The unfilled remainder returns to pending.
func (b *Book) InvestFulfillment(cur pool.TrancheCurrency, f pool.Fulfillment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.account(cur)
	if acc.processingInvest == 0 {
		return nil
	}
	executedAmount, err := fixed.MulFloor(f.OfAmount, acc.processingInvest)
	if err != nil {
		return err
	}
	remainder := acc.processingInvest - executedAmount

	if executedAmount > 0 {
		// Minting rounds down so the issued tokens are never worth
		// more than the currency paid in.
		minted, err := fixed.DivFloor(executedAmount, f.Price)
		if err != nil {
			return err
		}
		if acc.issuance, err = fixed.Add(acc.issuance, minted); err != nil {
			return err
		}
	}
	acc.processingInvest = 0
	if acc.pendingInvest, err = fixed.Add(acc.pendingInvest, remainder); err != nil {
		return err
	}
	return nil
}

// RedeemFulfillment executes a fraction of the processing redeem
// orders at the given token price, burning the executed tokens and
// accruing the currency payout. The unfilled remainder returns to
// pending.
func (b *Book) RedeemFulfillment(cur pool.TrancheCurrency, f pool.Fulfillment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.account(cur)
	if acc.processingRedeem == 0 {
		return nil
	}
	executedTokens, err := fixed.MulFloor(f.OfAmount, acc.processingRedeem)
	if err != nil {
		return err
	}
	remainder := acc.processingRedeem - executedTokens

	if executedTokens > 0 {
		if acc.issuance, err = fixed.Sub(acc.issuance, executedTokens); err != nil {
			return err
		}
		payout, err := fixed.MulFloor(f.Price, executedTokens)
		if err != nil {
			return err
		}
		if acc.payouts, err = fixed.Add(acc.payouts, payout); err != nil {
			return err
		}
	}
	acc.processingRedeem = 0
	if acc.pendingRedeem, err = fixed.Add(acc.pendingRedeem, remainder); err != nil {
		return err
	}
	return nil
}
