package pool

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/trancheworks/pool-engine/internal/fixed"
)

// TrancheCurrency identifies the token of one tranche of a pool.
type TrancheCurrency struct {
	PoolID    PoolID
	TrancheID uint32
}

// Fulfillment applies a fulfillment fraction to an order at a fixed
// token price.
type Fulfillment struct {
	OfAmount decimal.Decimal
	Price    decimal.Decimal
}

// OrderBook collects invest and redeem orders per tranche token and
// tracks the outstanding token supply. Redeem orders are denominated
// in tranche tokens, invest orders in pool currency.
type OrderBook interface {
	TotalIssuance(cur TrancheCurrency) uint64
	ProcessInvestOrders(cur TrancheCurrency) (uint64, error)
	ProcessRedeemOrders(cur TrancheCurrency) (uint64, error)
	InvestFulfillment(cur TrancheCurrency, f Fulfillment) error
	RedeemFulfillment(cur TrancheCurrency, f Fulfillment) error
}

// NAVSource values the pool's portfolio. ok is false when no
// valuation has ever been published for the pool.
type NAVSource interface {
	NAV(id PoolID) (value uint64, lastUpdated uint64, ok bool)
}

// Clock provides pool time in unix seconds and the block counter
// that gates challenge periods.
type Clock interface {
	NowSeconds() uint64
	BlockNumber() uint64
}

// Role gates administrative operations on a pool.
type Role uint8

const (
	RolePoolAdmin Role = iota
	RoleLiquidityAdmin
)

// Permissions answers whether an account holds a role on a pool.
type Permissions interface {
	Has(id PoolID, account string, role Role) bool
}

// Engine runs the epoch lifecycle over the pool store. All operations
// mutate deep copies and persist them only on success.
type Engine struct {
	mu    sync.Mutex
	store *Store
	book  OrderBook
	nav   NAVSource
	perms Permissions
	clock Clock

	// challengeBlocks is the number of blocks a best submission must
	// survive unchallenged before the epoch may execute.
	challengeBlocks uint64
}

func NewEngine(store *Store, book OrderBook, nav NAVSource, perms Permissions, clock Clock, challengeBlocks uint64) *Engine {
	return &Engine{
		store:           store,
		book:            book,
		nav:             nav,
		perms:           perms,
		clock:           clock,
		challengeBlocks: challengeBlocks,
	}
}

func (e *Engine) currency(id PoolID, tranche int) TrancheCurrency {
	return TrancheCurrency{PoolID: id, TrancheID: uint32(tranche)}
}

// CreatePool validates the tranche structure and registers a new
// pool. The epoch counter starts at one.
func (e *Engine) CreatePool(id PoolID, inputs []TrancheInput, maxReserve uint64, params PoolParameters) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.store.Pool(id); exists {
		return ErrPoolExists
	}
	now := e.clock.NowSeconds()
	tranches, err := NewTranches(inputs, now)
	if err != nil {
		return err
	}
	e.store.PutPool(&Pool{
		ID:         id,
		Tranches:   tranches,
		Parameters: params,
		Epoch:      EpochState{Current: 1, LastClosed: now},
		Reserve:    ReserveDetails{Max: maxReserve},
	})
	return nil
}

// CloseResult reports what happened to a closed epoch.
type CloseResult struct {
	Epoch uint32
	// Executed is true when the epoch was executed immediately,
	// either because no orders were pending or because fulfilling
	// everything kept the pool healthy. Otherwise a submission
	// period has opened.
	Executed bool
}

// CloseEpoch closes the current epoch of a pool. The epoch executes
// immediately when possible; otherwise a submission period opens,
// seeded with the scored zero solution as the best submission.
func (e *Engine) CloseEpoch(id PoolID) (CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var res CloseResult
	if _, open := e.store.EpochExecution(id); open {
		return res, ErrInSubmissionPeriod
	}
	p, ok := e.store.Pool(id)
	if !ok {
		return res, ErrNoSuchPool
	}

	now := e.clock.NowSeconds()
	if elapsed(p.Epoch.LastClosed, now) < p.Parameters.MinEpochTime {
		return res, ErrMinEpochTimeHasNotPassed
	}
	nav, navUpdated, ok := e.nav.NAV(id)
	if !ok {
		return res, ErrNoNAV
	}
	if elapsed(navUpdated, now) > p.Parameters.MaxNAVAge {
		return res, ErrNAVTooOld
	}

	res.Epoch = p.Epoch.Current
	totalAssets, err := fixed.Add(nav, p.Reserve.Total)
	if err != nil {
		return res, err
	}
	p.StartNextEpoch(now)

	supplies := make([]uint64, len(p.Tranches))
	for i := range p.Tranches {
		supplies[i] = e.book.TotalIssuance(e.currency(id, i))
	}
	prices, err := p.Tranches.CalculatePrices(totalAssets, supplies, now)
	if err != nil {
		return res, err
	}
	// A zero price means closing would wipe out a tranche.
	for _, price := range prices {
		if price.IsZero() {
			return res, ErrWipedOut
		}
	}

	// Summarize orders. Redeem orders arrive in tranche tokens and
	// are converted to pool currency at the closing price.
	epochTranches := make(EpochExecutionTranches, len(p.Tranches))
	allZero := true
	for i := range p.Tranches {
		cur := e.currency(id, i)
		invest, err := e.book.ProcessInvestOrders(cur)
		if err != nil {
			return res, err
		}
		redeemTokens, err := e.book.ProcessRedeemOrders(cur)
		if err != nil {
			return res, err
		}
		redeem, err := fixed.MulFloor(prices[i], redeemTokens)
		if err != nil {
			return res, err
		}
		if invest != 0 || redeem != 0 {
			allZero = false
		}
		supply, err := p.Tranches[i].Balance()
		if err != nil {
			return res, err
		}
		epochTranches[i] = EpochExecutionTranche{
			Supply:        supply,
			Price:         prices[i],
			Invest:        invest,
			Redeem:        redeem,
			MinRiskBuffer: p.Tranches[i].minRiskBuffer(),
			Seniority:     p.Tranches[i].Seniority,
		}
	}

	if allZero {
		for i := range p.Tranches {
			cur := e.currency(id, i)
			zero := Fulfillment{Price: prices[i]}
			if err := e.book.InvestFulfillment(cur, zero); err != nil {
				return res, err
			}
			if err := e.book.RedeemFulfillment(cur, zero); err != nil {
				return res, err
			}
		}
		p.ExecutePreviousEpoch()
		e.store.Swap(p, nil)
		res.Executed = true
		return res, nil
	}

	info := &EpochExecutionInfo{
		Epoch:      res.Epoch,
		NAV:        nav,
		Reserve:    p.Reserve.Total,
		MaxReserve: p.Reserve.Max,
		Tranches:   epochTranches,
	}

	full := FullSolution(len(p.Tranches))
	if state, err := info.Inspect(full); err == nil && len(state) == 0 {
		if err := e.executeEpoch(p, info, full, now); err != nil {
			return res, err
		}
		e.store.Swap(p, nil)
		res.Executed = true
		return res, nil
	}

	// Any submission needs to improve on the existing state, which is
	// a total fulfillment of zero.
	baseline, err := info.Score(ZeroSolution(len(p.Tranches)))
	if err != nil {
		return res, err
	}
	info.BestSubmission = &baseline
	e.store.Swap(p, info)
	return res, nil
}

// SubmitSolution scores a solution for a closed epoch and records it
// when it is at least as good as the current best. The challenge
// period starts with the first accepted submission and is not
// extended by later ones.
func (e *Engine) SubmitSolution(id PoolID, solution []TrancheSolution) (EpochSolution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, ok := e.store.EpochExecution(id)
	if !ok {
		return EpochSolution{}, ErrNotInSubmissionPeriod
	}
	if _, ok := e.store.Pool(id); !ok {
		return EpochSolution{}, ErrNoSuchPool
	}

	scored, err := info.Score(solution)
	if err != nil {
		return EpochSolution{}, err
	}
	if best := info.BestSubmission; best != nil && scored.Compare(best) < 0 {
		return EpochSolution{}, ErrNotNewBestSubmission
	}
	info.BestSubmission = &scored
	if info.ChallengePeriodEnd == nil {
		end := e.clock.BlockNumber() + e.challengeBlocks
		info.ChallengePeriodEnd = &end
	}
	e.store.PutEpochExecution(id, info)
	return scored.Clone(), nil
}

// ExecuteEpoch applies the best submission of a closed epoch once the
// challenge period has passed and ends the submission period.
func (e *Engine) ExecuteEpoch(id PoolID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, ok := e.store.EpochExecution(id)
	if !ok {
		return ErrNotInSubmissionPeriod
	}
	// The challenge period end is only set once a solution beside the
	// seeded zero solution has been submitted.
	if info.BestSubmission == nil || info.ChallengePeriodEnd == nil {
		return ErrNoSolutionAvailable
	}
	if e.clock.BlockNumber() < *info.ChallengePeriodEnd {
		return ErrChallengeTimeHasNotPassed
	}
	p, ok := e.store.Pool(id)
	if !ok {
		return ErrNoSuchPool
	}
	if err := e.executeEpoch(p, info, info.BestSubmission.Solution, e.clock.NowSeconds()); err != nil {
		return err
	}
	e.store.Swap(p, nil)
	return nil
}

func (e *Engine) executeEpoch(p *Pool, info *EpochExecutionInfo, solution []TrancheSolution, now uint64) error {
	executed := make([]ExecutedAmounts, len(info.Tranches))
	var accInvest, accRedeem uint64
	for i := range info.Tranches {
		invest, err := fixed.MulFloor(solution[i].InvestFulfillment, info.Tranches[i].Invest)
		if err != nil {
			return err
		}
		redeem, err := fixed.MulFloor(solution[i].RedeemFulfillment, info.Tranches[i].Redeem)
		if err != nil {
			return err
		}
		executed[i] = ExecutedAmounts{Invest: invest, Redeem: redeem}
		if accInvest, err = fixed.Add(accInvest, invest); err != nil {
			return err
		}
		if accRedeem, err = fixed.Add(accRedeem, redeem); err != nil {
			return err
		}
	}
	if err := p.DepositFromEpoch(accInvest, accRedeem); err != nil {
		return err
	}

	p.ExecutePreviousEpoch()

	totalAssets, err := fixed.Add(p.Reserve.Total, info.NAV)
	if err != nil {
		return err
	}
	ratios := make([]decimal.Decimal, len(info.Tranches))
	for i := range info.Tranches {
		supply, err := fixed.Add(info.Tranches[i].Supply, executed[i].Invest)
		if err != nil {
			return err
		}
		if supply, err = fixed.Sub(supply, executed[i].Redeem); err != nil {
			return err
		}
		ratios[i] = fixed.Ratio(supply, totalAssets)
	}
	if err := p.Tranches.Rebalance(now, p.Reserve.Total, info.NAV, ratios, executed); err != nil {
		return err
	}

	// All fallible arithmetic has happened on the pool copy by now.
	// Order book settlement comes last so that an aborted execution
	// never leaves minted or burned tokens behind an unswapped pool.
	for i := range info.Tranches {
		cur := e.currency(p.ID, i)
		err := e.book.InvestFulfillment(cur, Fulfillment{
			OfAmount: solution[i].InvestFulfillment,
			Price:    info.Tranches[i].Price,
		})
		if err != nil {
			return err
		}
		err = e.book.RedeemFulfillment(cur, Fulfillment{
			OfAmount: solution[i].RedeemFulfillment,
			Price:    info.Tranches[i].Price,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SetMaxReserve updates the reserve ceiling. Requires the liquidity
// admin role.
func (e *Engine) SetMaxReserve(id PoolID, account string, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.perms.Has(id, account, RoleLiquidityAdmin) {
		return ErrNotAuthorized
	}
	p, ok := e.store.Pool(id)
	if !ok {
		return ErrNoSuchPool
	}
	p.Reserve.Max = amount
	e.store.PutPool(p)
	return nil
}

// UpdatePoolParameters changes the closing constraints of a pool.
// Requires the pool admin role.
func (e *Engine) UpdatePoolParameters(id PoolID, account string, params PoolParameters) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.perms.Has(id, account, RolePoolAdmin) {
		return ErrNotAuthorized
	}
	p, ok := e.store.Pool(id)
	if !ok {
		return ErrNoSuchPool
	}
	p.Parameters = params
	e.store.PutPool(p)
	return nil
}

// Deposit pays currency back into the pool through the waterfall.
func (e *Engine) Deposit(id PoolID, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.store.Pool(id)
	if !ok {
		return ErrNoSuchPool
	}
	if err := p.Deposit(amount, e.clock.NowSeconds()); err != nil {
		return err
	}
	e.store.PutPool(p)
	return nil
}

// Withdraw takes released reserve currency out of the pool through
// the waterfall.
func (e *Engine) Withdraw(id PoolID, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.store.Pool(id)
	if !ok {
		return ErrNoSuchPool
	}
	if err := p.Withdraw(amount, e.clock.NowSeconds()); err != nil {
		return err
	}
	e.store.PutPool(p)
	return nil
}

func elapsed(since, now uint64) uint64 {
	if now <= since {
		return 0
	}
	return now - since
}
