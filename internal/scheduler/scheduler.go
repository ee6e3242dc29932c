// Package scheduler implements the core event loop from spec §4.4: it
// multiplexes a gas-event stream and a transaction-request stream, keeps
// the pending and submitted sets, and emits Submit/Reprice/Drop decisions.
//
// The loop runs in a single goroutine (spec §5): pending and submitted
// are touched only from that goroutine, so neither needs a lock. External
// feedback (a downstream broadcaster reporting "nonce too low") comes in
// over its own internal channel rather than a direct method call on the
// maps, preserving that single-owner discipline — the same select-driven
// multiplexing idiom the teacher repo's minis/20-select-fanin-fanout uses
// for fan-in.
package scheduler

import (
	"context"
	"encoding/binary"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/example/gassaver/internal/config"
	"github.com/example/gassaver/internal/feemodel"
	"github.com/example/gassaver/internal/metrics"
	"github.com/example/gassaver/internal/nonce"
	"github.com/example/gassaver/internal/ratelimit"
	"github.com/example/gassaver/internal/types"
)

// submittedTx is the internal record created when a request transitions
// from pending to submitted (spec §3). Hash is the correlation hash
// extension §3/SPEC_FULL uses to close the confirmation lifecycle.
type submittedTx struct {
	req          types.TransactionRequest
	nonce        uint64
	lastGasPrice uint64
	lastActionAt time.Time
	hash         common.Hash
}

// RejectionKind discriminates the feedback ReportRejection accepts.
type RejectionKind uint8

const (
	// RejectionNonceTooLow indicates the local nonce counter has drifted;
	// the caller supplies the corrected next nonce to seed the allocator.
	RejectionNonceTooLow RejectionKind = iota
	// RejectionUnderpriced indicates a replacement was rejected as
	// underpriced; the entry is simply requeued for repricing/resubmission.
	RejectionUnderpriced
)

type rejection struct {
	txID           uint64
	kind           RejectionKind
	correctedNonce uint64
}

// Scheduler owns the pending/submitted sets and runs the single
// cooperative event loop described in spec §4.4/§5.
type Scheduler struct {
	cfg       config.SchedulerConfig
	model     *feemodel.Model
	nonces    *nonce.Allocator
	limiter   *ratelimit.Bucket
	decisions chan<- types.Decision
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	pending    []types.TransactionRequest
	submitted  map[uint64]*submittedTx
	idToHash   map[uint64]common.Hash
	hashToID   map[common.Hash]uint64
	rejections chan rejection
}

// New constructs a Scheduler. decisions is the outbound decision channel;
// metrics may be nil to disable instrumentation (e.g. in tests that don't
// care about it).
func New(
	cfg config.SchedulerConfig,
	model *feemodel.Model,
	nonces *nonce.Allocator,
	limiter *ratelimit.Bucket,
	decisions chan<- types.Decision,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		model:      model,
		nonces:     nonces,
		limiter:    limiter,
		decisions:  decisions,
		metrics:    m,
		logger:     logger,
		submitted:  make(map[uint64]*submittedTx),
		idToHash:   make(map[uint64]common.Hash),
		hashToID:   make(map[common.Hash]uint64),
		rejections: make(chan rejection, 16),
	}
}

// ReportRejection lets a downstream broadcaster feed back that a
// submission was rejected, per SPEC_FULL §3 extension 3. correctedNonce
// is only consulted for RejectionNonceTooLow. Unknown tx ids are a no-op:
// the entry may already have been confirmed by a racing TxConfirmed.
func (s *Scheduler) ReportRejection(ctx context.Context, txID uint64, kind RejectionKind, correctedNonce uint64) error {
	select {
	case s.rejections <- rejection{txID: txID, kind: kind, correctedNonce: correctedNonce}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run multiplexes gasEvents and txRequests until both are closed (or ctx
// is cancelled). Fee updates, new blocks, transaction requests and
// rejection reports each trigger a re-evaluation pass; confirmations and
// observed mempool transactions do not.
func (s *Scheduler) Run(ctx context.Context, gasEvents <-chan types.GasEvent, txRequests <-chan types.TransactionRequest) {
	for {
		select {
		case ev, ok := <-gasEvents:
			if !ok {
				gasEvents = nil
				if gasEvents == nil && txRequests == nil {
					return
				}
				continue
			}
			s.handleGasEvent(ctx, ev)

		case req, ok := <-txRequests:
			if !ok {
				txRequests = nil
				if gasEvents == nil && txRequests == nil {
					return
				}
				continue
			}
			s.handleTxRequest(ctx, req)

		case rej := <-s.rejections:
			s.handleRejection(ctx, rej)

		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleGasEvent(ctx context.Context, ev types.GasEvent) {
	switch ev.Kind {
	case types.GasEventBaseFeeUpdate, types.GasEventNewBlock:
		s.model.Update(ev.BaseFee)
		s.reevaluate(ctx)
	case types.GasEventTxConfirmed:
		s.handleConfirmation(ev)
	case types.GasEventMempoolTx:
		s.logger.Debug().Str("tx_hash", ev.TxHash.Hex()).Msg("observed mempool tx, ignored")
	}
}

func (s *Scheduler) handleTxRequest(ctx context.Context, req types.TransactionRequest) {
	s.pending = append(s.pending, req)
	s.reevaluate(ctx)
}

func (s *Scheduler) handleConfirmation(ev types.GasEvent) {
	txID, ok := s.hashToID[ev.TxHash]
	if !ok {
		s.logger.Debug().Str("tx_hash", ev.TxHash.Hex()).Msg("confirmation for unknown tx hash")
		return
	}
	delete(s.submitted, txID)
	delete(s.idToHash, txID)
	delete(s.hashToID, ev.TxHash)
	if s.metrics != nil {
		s.metrics.ConfirmedTotal.Inc()
	}
	s.logger.Info().Uint64("tx_id", txID).Uint64("block_number", ev.ConfirmedBlock).Msg("transaction confirmed")
}

func (s *Scheduler) handleRejection(ctx context.Context, rej rejection) {
	sub, ok := s.submitted[rej.txID]
	if !ok {
		s.logger.Debug().Uint64("tx_id", rej.txID).Msg("rejection for unknown or already-confirmed tx")
		return
	}

	delete(s.submitted, rej.txID)
	delete(s.idToHash, rej.txID)
	delete(s.hashToID, sub.hash)

	switch rej.kind {
	case RejectionNonceTooLow:
		s.nonces.UpdateNonce(sub.req.From, rej.correctedNonce)
		s.logger.Warn().Uint64("tx_id", rej.txID).Uint64("corrected_nonce", rej.correctedNonce).Msg("nonce too low, requeueing")
	case RejectionUnderpriced:
		s.logger.Warn().Uint64("tx_id", rej.txID).Msg("replacement underpriced, requeueing")
	}
	s.pending = append(s.pending, sub.req)
	s.reevaluate(ctx)
}

// reevaluate is the re-evaluation pass described in spec §4.4: compute a
// fee-model snapshot, then run repricing (Phase 1) and admission (Phase 2)
// in that order.
func (s *Scheduler) reevaluate(ctx context.Context) {
	currentFee := s.model.CurrentFee()
	trend := s.model.Trend()
	volatility := s.model.Volatility()
	isSpike := volatility > s.cfg.SpikeThreshold

	s.repriceSubmitted(ctx, currentFee, volatility)
	s.admitPending(ctx, currentFee, trend, isSpike)

	if s.metrics != nil {
		s.metrics.PendingGauge.Set(float64(len(s.pending)))
		s.metrics.SubmittedGauge.Set(float64(len(s.submitted)))
		s.metrics.CurrentFeeGauge.Set(float64(currentFee))
		s.metrics.VolatilityGauge.Set(volatility)
		s.metrics.TokensGauge.Set(float64(s.limiter.Tokens()))
	}
}

// repriceSubmitted is Phase 1: chase inclusion on already-submitted
// transactions, subject to a cooldown and a mandatory 10% bump floor.
func (s *Scheduler) repriceSubmitted(ctx context.Context, currentFee uint64, volatility float64) {
	for txID, sub := range s.submitted {
		if time.Since(sub.lastActionAt) < s.cfg.RepriceCooldown {
			continue
		}

		minNewPrice := (sub.lastGasPrice * 110) / 100
		desiredPrice := currentFee + sub.req.MaxPriorityFeePerGas

		if desiredPrice > minNewPrice && desiredPrice <= sub.req.MaxFeePerGas {
			s.logger.Warn().
				Uint64("tx_id", txID).
				Uint64("old_price", sub.lastGasPrice).
				Uint64("new_price", desiredPrice).
				Float64("volatility", volatility).
				Msg("repricing")

			newHash := correlationHash(txID, sub.nonce, desiredPrice)
			delete(s.hashToID, sub.hash)
			s.hashToID[newHash] = txID
			s.idToHash[txID] = newHash
			sub.hash = newHash
			sub.lastGasPrice = desiredPrice
			sub.lastActionAt = time.Now()

			s.emit(ctx, types.Reprice(txID, sub.nonce, desiredPrice))
		}
	}
}

// admitPending is Phase 2: deterministic FIFO-by-id admission of pending
// requests, gated by the rate limiter and the fee/spike/trend policy.
func (s *Scheduler) admitPending(ctx context.Context, currentFee uint64, trend float64, isSpike bool) {
	sort.Slice(s.pending, func(i, j int) bool { return s.pending[i].ID < s.pending[j].ID })

	now := time.Now().Unix()
	var toRemove []int

loop:
	for idx := range s.pending {
		tx := s.pending[idx]

		if tx.Deadline != nil && now >= int64(*tx.Deadline) {
			s.emit(ctx, types.Drop(tx.ID, "deadline exceeded"))
			toRemove = append(toRemove, idx)
			continue
		}

		if !s.limiter.CheckAndConsume() {
			break loop
		}

		var submit bool
		var gasPrice uint64

		switch {
		case isSpike:
			s.logger.Info().
				Uint64("tx_id", tx.ID).
				Uint64("current_fee", currentFee).
				Uint64("max_fee", tx.MaxFeePerGas).
				Msg("degradation mode, bypassing max fee cap")
			gasPrice = currentFee + tx.MaxPriorityFeePerGas
			submit = true
		case currentFee <= tx.MaxFeePerGas:
			gasPrice = currentFee + tx.MaxPriorityFeePerGas
			submit = true
		case trend < s.cfg.DeferTrendThreshold:
			// Defer silently: entry remains pending for a later pass.
			s.logger.Debug().
				Uint64("tx_id", tx.ID).
				Uint64("current_fee", currentFee).
				Uint64("max_fee", tx.MaxFeePerGas).
				Float64("trend", trend).
				Msg("fee high but trending down, deferring")
		default:
			// Fee too high, trend not favorable: leave pending.
		}

		if !submit {
			continue
		}

		nonceVal := s.nonces.NextNonce(tx.From)
		hash := correlationHash(tx.ID, nonceVal, gasPrice)

		s.submitted[tx.ID] = &submittedTx{
			req:          tx,
			nonce:        nonceVal,
			lastGasPrice: gasPrice,
			lastActionAt: time.Now(),
			hash:         hash,
		}
		s.idToHash[tx.ID] = hash
		s.hashToID[hash] = tx.ID

		s.emit(ctx, types.Submit(tx.ID, nonceVal, gasPrice))
		toRemove = append(toRemove, idx)
	}

	for i := len(toRemove) - 1; i >= 0; i-- {
		idx := toRemove[i]
		s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
	}
}

// emit records and sends a decision downstream. A full decision channel
// suspends emission (spec §5 backpressure); a cancelled context abandons
// the send, which is the "consumer absent" best-effort case from spec §7.
func (s *Scheduler) emit(ctx context.Context, d types.Decision) {
	if s.metrics != nil {
		s.metrics.DecisionsTotal.WithLabelValues(d.Kind.String()).Inc()
	}
	switch d.Kind {
	case types.DecisionSubmit:
		s.logger.Info().Uint64("tx_id", d.TxID).Uint64("nonce", d.Nonce).Uint64("gas_price", d.GasPrice).Msg("submit")
	case types.DecisionDrop:
		s.logger.Info().Uint64("tx_id", d.TxID).Str("reason", d.Reason).Msg("drop")
	}

	select {
	case s.decisions <- d:
	case <-ctx.Done():
	}
}

// correlationHash stands in for the hash a downstream signer would
// produce once it signs and broadcasts the transaction described by the
// given id/nonce/gas price, per SPEC_FULL §3 extension 1.
func correlationHash(txID, nonceVal, gasPrice uint64) common.Hash {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], txID)
	binary.BigEndian.PutUint64(buf[8:16], nonceVal)
	binary.BigEndian.PutUint64(buf[16:24], gasPrice)
	return crypto.Keccak256Hash(buf[:])
}

// PendingLen and SubmittedLen expose set sizes for tests and metrics
// without leaking the underlying slices/maps.
func (s *Scheduler) PendingLen() int   { return len(s.pending) }
func (s *Scheduler) SubmittedLen() int { return len(s.submitted) }
