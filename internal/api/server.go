// Package api exposes the pool engine over a small HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trancheworks/pool-engine/internal/orders"
	"github.com/trancheworks/pool-engine/internal/pool"
	"github.com/trancheworks/pool-engine/internal/recorder"
)

// PoolService is the mutating surface the API needs from the engine.
type PoolService interface {
	CloseEpoch(id pool.PoolID) (pool.CloseResult, error)
	SubmitSolution(id pool.PoolID, solution []pool.TrancheSolution) (pool.EpochSolution, error)
	ExecuteEpoch(id pool.PoolID) error
	SetMaxReserve(id pool.PoolID, account string, amount uint64) error
	UpdatePoolParameters(id pool.PoolID, account string, params pool.PoolParameters) error
	Deposit(id pool.PoolID, amount uint64) error
	Withdraw(id pool.PoolID, amount uint64) error
}

// NAVUpdater publishes portfolio valuations.
type NAVUpdater interface {
	Update(id pool.PoolID, value uint64)
}

// Server is a lightweight HTTP API over the pool store and engine.
type Server struct {
	httpServer *http.Server
	engine     PoolService
	store      *pool.Store
	book       *orders.Book
	oracle     NAVUpdater
	rec        recorder.Recorder
	log        *zap.Logger
	startedAt  time.Time
}

// NewServer creates a new API server bound to addr.
func NewServer(addr string, engine PoolService, store *pool.Store, book *orders.Book, oracle NAVUpdater, rec recorder.Recorder, log *zap.Logger) *Server {
	s := &Server{
		engine:    engine,
		store:     store,
		book:      book,
		oracle:    oracle,
		rec:       rec,
		log:       log,
		startedAt: time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/pools", s.handlePools).Methods(http.MethodGet)
	r.HandleFunc("/api/pools/{id}", s.handlePool).Methods(http.MethodGet)
	r.HandleFunc("/api/pools/{id}/epoch", s.handleEpoch).Methods(http.MethodGet)
	r.HandleFunc("/api/pools/{id}/close", s.handleClose).Methods(http.MethodPost)
	r.HandleFunc("/api/pools/{id}/solutions", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/api/pools/{id}/execute", s.handleExecute).Methods(http.MethodPost)
	r.HandleFunc("/api/pools/{id}/max-reserve", s.handleMaxReserve).Methods(http.MethodPut)
	r.HandleFunc("/api/pools/{id}/parameters", s.handleParameters).Methods(http.MethodPut)
	r.HandleFunc("/api/pools/{id}/orders", s.handleOrder).Methods(http.MethodPost)
	r.HandleFunc("/api/pools/{id}/nav", s.handleNAV).Methods(http.MethodPut)
	r.HandleFunc("/api/pools/{id}/deposit", s.handleDeposit).Methods(http.MethodPost)
	r.HandleFunc("/api/pools/{id}/withdraw", s.handleWithdraw).Methods(http.MethodPost)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.log.Info("api server listening", zap.String("addr", s.httpServer.Addr))
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("api server", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pool.ErrNoSuchPool):
		status = http.StatusNotFound
	case errors.Is(err, pool.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, pool.ErrInvalidSolution),
		errors.Is(err, pool.ErrInvalidTrancheStructure):
		status = http.StatusBadRequest
	case errors.Is(err, pool.ErrMinEpochTimeHasNotPassed),
		errors.Is(err, pool.ErrChallengeTimeHasNotPassed),
		errors.Is(err, pool.ErrInSubmissionPeriod),
		errors.Is(err, pool.ErrNotInSubmissionPeriod),
		errors.Is(err, pool.ErrNotNewBestSubmission),
		errors.Is(err, pool.ErrNoSolutionAvailable),
		errors.Is(err, pool.ErrNoNAV),
		errors.Is(err, pool.ErrNAVTooOld),
		errors.Is(err, pool.ErrWipedOut),
		errors.Is(err, pool.ErrInsufficientCurrency),
		errors.Is(err, pool.ErrInsufficientReserve),
		errors.Is(err, orders.ErrInsufficientTokens):
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *Server) poolID(w http.ResponseWriter, r *http.Request) (pool.PoolID, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid pool id", http.StatusBadRequest)
		return 0, false
	}
	return pool.PoolID(id), true
}

// GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"ok":       true,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

// GET /api/pools
func (s *Server) handlePools(w http.ResponseWriter, _ *http.Request) {
	ids := s.store.PoolIDs()
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		out = append(out, uint64(id))
	}
	s.writeJSON(w, map[string]interface{}{"pools": out})
}

type trancheView struct {
	Seniority     uint32 `json:"seniority"`
	Type          string `json:"type"`
	Debt          uint64 `json:"debt"`
	Reserve       uint64 `json:"reserve"`
	Ratio         string `json:"ratio"`
	TokenIssuance uint64 `json:"token_issuance"`
}

// GET /api/pools/{id}
func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	p, ok := s.store.Pool(id)
	if !ok {
		s.writeError(w, pool.ErrNoSuchPool)
		return
	}

	tranches := make([]trancheView, 0, len(p.Tranches))
	for i, t := range p.Tranches {
		typ := "non_residual"
		if t.Type == pool.Residual {
			typ = "residual"
		}
		tranches = append(tranches, trancheView{
			Seniority:     t.Seniority,
			Type:          typ,
			Debt:          t.Debt,
			Reserve:       t.Reserve,
			Ratio:         t.Ratio.String(),
			TokenIssuance: s.book.TotalIssuance(pool.TrancheCurrency{PoolID: id, TrancheID: uint32(i)}),
		})
	}
	_, inSubmission := s.store.EpochExecution(id)
	s.writeJSON(w, map[string]interface{}{
		"id":                   uint64(p.ID),
		"current_epoch":        p.Epoch.Current,
		"last_executed_epoch":  p.Epoch.LastExecuted,
		"last_closed_at":       p.Epoch.LastClosed,
		"in_submission_period": inSubmission,
		"reserve": map[string]uint64{
			"max":       p.Reserve.Max,
			"total":     p.Reserve.Total,
			"available": p.Reserve.Available,
		},
		"tranches": tranches,
	})
}

type epochTrancheView struct {
	Seniority uint32 `json:"seniority"`
	Supply    uint64 `json:"supply"`
	Price     string `json:"price"`
	Invest    uint64 `json:"invest"`
	Redeem    uint64 `json:"redeem"`
}

type solutionView struct {
	Tranches []trancheSolutionBody `json:"tranches"`
	Healthy  bool                  `json:"healthy"`
	Score    string                `json:"score"`
}

// GET /api/pools/{id}/epoch
func (s *Server) handleEpoch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	info, ok := s.store.EpochExecution(id)
	if !ok {
		s.writeError(w, pool.ErrNotInSubmissionPeriod)
		return
	}

	tranches := make([]epochTrancheView, 0, len(info.Tranches))
	for _, t := range info.Tranches {
		tranches = append(tranches, epochTrancheView{
			Seniority: t.Seniority,
			Supply:    t.Supply,
			Price:     t.Price.String(),
			Invest:    t.Invest,
			Redeem:    t.Redeem,
		})
	}
	resp := map[string]interface{}{
		"epoch":       info.Epoch,
		"nav":         info.NAV,
		"reserve":     info.Reserve,
		"max_reserve": info.MaxReserve,
		"tranches":    tranches,
	}
	if info.BestSubmission != nil {
		best := solutionView{
			Tranches: make([]trancheSolutionBody, 0, len(info.BestSubmission.Solution)),
			Healthy:  info.BestSubmission.Healthy,
			Score:    info.BestSubmission.Score.String(),
		}
		for _, ts := range info.BestSubmission.Solution {
			best.Tranches = append(best.Tranches, trancheSolutionBody{
				Invest: ts.InvestFulfillment.String(),
				Redeem: ts.RedeemFulfillment.String(),
			})
		}
		resp["best_submission"] = best
	}
	if info.ChallengePeriodEnd != nil {
		resp["challenge_period_end"] = *info.ChallengePeriodEnd
	}
	s.writeJSON(w, resp)
}

// POST /api/pools/{id}/close
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	res, err := s.engine.CloseEpoch(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"epoch":    res.Epoch,
		"executed": res.Executed,
	})
}

type trancheSolutionBody struct {
	Invest string `json:"invest"`
	Redeem string `json:"redeem"`
}

type submitBody struct {
	Tranches []trancheSolutionBody `json:"tranches"`
}

// POST /api/pools/{id}/solutions
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	var body submitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	solution := make([]pool.TrancheSolution, 0, len(body.Tranches))
	for _, ts := range body.Tranches {
		invest, err := decimal.NewFromString(ts.Invest)
		if err != nil {
			http.Error(w, "invalid invest fulfillment", http.StatusBadRequest)
			return
		}
		redeem, err := decimal.NewFromString(ts.Redeem)
		if err != nil {
			http.Error(w, "invalid redeem fulfillment", http.StatusBadRequest)
			return
		}
		solution = append(solution, pool.TrancheSolution{
			InvestFulfillment: invest,
			RedeemFulfillment: redeem,
		})
	}

	scored, err := s.engine.SubmitSolution(id, solution)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ev := recorder.EpochEvent{
		PoolID:    uint64(id),
		Kind:      recorder.KindSolutionSubmitted,
		Detail:    scored.Score.String(),
		Timestamp: time.Now(),
	}
	if info, open := s.store.EpochExecution(id); open {
		ev.Epoch = info.Epoch
	}
	if err := s.rec.Record(ev); err != nil {
		s.log.Error("record epoch event", zap.Error(err))
	}
	s.writeJSON(w, map[string]interface{}{
		"healthy": scored.Healthy,
		"score":   scored.Score.String(),
	})
}

// POST /api/pools/{id}/execute
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	if err := s.engine.ExecuteEpoch(id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"executed": true})
}

type maxReserveBody struct {
	MaxReserve uint64 `json:"max_reserve"`
}

// PUT /api/pools/{id}/max-reserve
func (s *Server) handleMaxReserve(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	account := r.Header.Get("X-Account")
	var body maxReserveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := s.engine.SetMaxReserve(id, account, body.MaxReserve); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"max_reserve": body.MaxReserve})
}

type parametersBody struct {
	MinEpochTimeSeconds uint64 `json:"min_epoch_time_s"`
	MaxNAVAgeSeconds    uint64 `json:"max_nav_age_s"`
}

// PUT /api/pools/{id}/parameters
func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	account := r.Header.Get("X-Account")
	var body parametersBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	params := pool.PoolParameters{
		MinEpochTime: body.MinEpochTimeSeconds,
		MaxNAVAge:    body.MaxNAVAgeSeconds,
	}
	if err := s.engine.UpdatePoolParameters(id, account, params); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"updated": true})
}

type orderBody struct {
	Tranche uint32 `json:"tranche"`
	Side    string `json:"side"` // invest | redeem
	Amount  uint64 `json:"amount"`
}

// POST /api/pools/{id}/orders
func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	p, ok := s.store.Pool(id)
	if !ok {
		s.writeError(w, pool.ErrNoSuchPool)
		return
	}
	var body orderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if int(body.Tranche) >= len(p.Tranches) {
		http.Error(w, "unknown tranche", http.StatusBadRequest)
		return
	}
	cur := pool.TrancheCurrency{PoolID: id, TrancheID: body.Tranche}
	var err error
	switch body.Side {
	case "invest":
		err = s.book.AddInvestOrder(cur, body.Amount)
	case "redeem":
		err = s.book.AddRedeemOrder(cur, body.Amount)
	default:
		http.Error(w, "side must be invest or redeem", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	invest, redeem := s.book.PendingOrders(cur)
	s.writeJSON(w, map[string]interface{}{
		"pending_invest": invest,
		"pending_redeem": redeem,
	})
}

type navBody struct {
	Value uint64 `json:"value"`
}

// PUT /api/pools/{id}/nav
func (s *Server) handleNAV(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	if _, ok := s.store.Pool(id); !ok {
		s.writeError(w, pool.ErrNoSuchPool)
		return
	}
	var body navBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	s.oracle.Update(id, body.Value)
	s.writeJSON(w, map[string]interface{}{"nav": body.Value})
}

type amountBody struct {
	Amount uint64 `json:"amount"`
}

// POST /api/pools/{id}/deposit
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	var body amountBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := s.engine.Deposit(id, body.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"deposited": body.Amount})
}

// POST /api/pools/{id}/withdraw
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	var body amountBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := s.engine.Withdraw(id, body.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"withdrawn": body.Amount})
}
