package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/example/gassaver/internal/config"
	"github.com/example/gassaver/internal/feemodel"
	"github.com/example/gassaver/internal/nonce"
	"github.com/example/gassaver/internal/ratelimit"
	"github.com/example/gassaver/internal/types"
)

// newTestScheduler builds a Scheduler with unbuffered input channels, so a
// test driving it step by step via send() gets a deterministic rendezvous:
// a send only completes once Run's select loop is ready to receive it,
// which only happens after Run finishes processing whatever came before.
func newTestScheduler(cfg config.SchedulerConfig, bucketRate, bucketMax int64) (*Scheduler, chan types.GasEvent, chan types.TransactionRequest, chan types.Decision) {
	model := feemodel.New(100)
	nonces := nonce.New()
	limiter := ratelimit.New(bucketRate, bucketMax)
	decisions := make(chan types.Decision, 256)
	s := New(cfg, model, nonces, limiter, decisions, nil, zerolog.Nop())
	gasEvents := make(chan types.GasEvent)
	txRequests := make(chan types.TransactionRequest)
	return s, gasEvents, txRequests, decisions
}

// runScheduler starts Run in the background, lets send drive the two input
// channels in whatever order it chooses, then closes both channels and
// waits for Run to return.
func runScheduler(t *testing.T, s *Scheduler, gasEvents chan types.GasEvent, txRequests chan types.TransactionRequest, send func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx, gasEvents, txRequests)
		close(done)
	}()

	send()
	close(gasEvents)
	close(txRequests)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not terminate after input channels closed")
	}
}

func drain(decisions chan types.Decision) []types.Decision {
	var out []types.Decision
	for {
		select {
		case d := <-decisions:
			out = append(out, d)
		default:
			return out
		}
	}
}

func txReq(id uint64, maxFee, tip uint64) types.TransactionRequest {
	return types.TransactionRequest{
		ID:                   id,
		From:                 common.HexToAddress("0x1"),
		To:                   common.HexToAddress("0x2"),
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: tip,
	}
}

// Scenario 1: a stable fee admits a single request at current fee + tip.
func TestScenario1_StableFeeSingleSubmit(t *testing.T) {
	cfg := config.SchedulerConfig{SpikeThreshold: 1000, DeferTrendThreshold: -1.0}
	s, gasEvents, txRequests, decisions := newTestScheduler(cfg, 100, 100)

	runScheduler(t, s, gasEvents, txRequests, func() {
		gasEvents <- types.NewBaseFeeUpdate(50, 1)
		txRequests <- txReq(1, 100, 2)
	})

	got := drain(decisions)
	want := types.Submit(1, 0, 52)
	if len(got) != 1 || got[0] != want {
		t.Fatalf("decisions = %+v, want [%v]", got, want)
	}
}

// Scenario 2: a fee rise past the cooldown triggers a reprice above the bump floor.
func TestScenario2_FeeRiseTriggersReprice(t *testing.T) {
	cfg := config.SchedulerConfig{SpikeThreshold: 1000, DeferTrendThreshold: -1.0, RepriceCooldown: 0}
	s, gasEvents, txRequests, decisions := newTestScheduler(cfg, 100, 100)

	runScheduler(t, s, gasEvents, txRequests, func() {
		gasEvents <- types.NewBaseFeeUpdate(50, 1)
		txRequests <- txReq(1, 100, 2)
		gasEvents <- types.NewBaseFeeUpdate(70, 2)
	})

	got := drain(decisions)
	if len(got) != 2 {
		t.Fatalf("decisions = %+v, want 2 entries", got)
	}
	if got[0] != types.Submit(1, 0, 52) {
		t.Errorf("first decision = %v, want Submit{1,0,52}", got[0])
	}
	want := types.Reprice(1, 0, 72)
	if got[1] != want {
		t.Errorf("second decision = %v, want %v", got[1], want)
	}
}

// Scenario 3: a desired reprice above max_fee is suppressed.
func TestScenario3_RepriceSuppressedByCap(t *testing.T) {
	cfg := config.SchedulerConfig{SpikeThreshold: 1000, DeferTrendThreshold: -1.0, RepriceCooldown: 0}
	s, gasEvents, txRequests, decisions := newTestScheduler(cfg, 100, 100)

	runScheduler(t, s, gasEvents, txRequests, func() {
		gasEvents <- types.NewBaseFeeUpdate(50, 1)
		txRequests <- txReq(1, 100, 2)
		gasEvents <- types.NewBaseFeeUpdate(99, 2)
	})

	got := drain(decisions)
	if len(got) != 1 {
		t.Fatalf("decisions = %+v, want exactly the initial Submit and no Reprice", got)
	}
	if got[0] != types.Submit(1, 0, 52) {
		t.Errorf("decision = %v, want Submit{1,0,52}", got[0])
	}
	if s.SubmittedLen() != 1 {
		t.Errorf("SubmittedLen() = %d, want 1 (still submitted at the original price)", s.SubmittedLen())
	}
}

// Scenario 4: spike mode bypasses the user's max fee cap.
func TestScenario4_SpikeModeBypassesCap(t *testing.T) {
	cfg := config.SchedulerConfig{SpikeThreshold: 1.0, DeferTrendThreshold: -1.0}
	s, gasEvents, txRequests, decisions := newTestScheduler(cfg, 100, 100)

	runScheduler(t, s, gasEvents, txRequests, func() {
		gasEvents <- types.NewBaseFeeUpdate(10, 1)
		gasEvents <- types.NewBaseFeeUpdate(100, 2)
		txRequests <- txReq(1, 50, 2)
	})

	got := drain(decisions)
	want := types.Submit(1, 0, 102)
	if len(got) != 1 || got[0] != want {
		t.Fatalf("decisions = %+v, want [%v] (spike bypasses the 50 cap)", got, want)
	}
}

// Scenario 5: a fee above the cap with a strongly negative trend defers
// silently; once fee conditions improve, the same request submits.
func TestScenario5_DeferThenSubmit(t *testing.T) {
	cfg := config.SchedulerConfig{SpikeThreshold: 1000, DeferTrendThreshold: -1.0}
	s, gasEvents, txRequests, decisions := newTestScheduler(cfg, 100, 100)

	runScheduler(t, s, gasEvents, txRequests, func() {
		gasEvents <- types.NewBaseFeeUpdate(100, 1)
		txRequests <- txReq(1, 60, 2)
		gasEvents <- types.NewBaseFeeUpdate(70, 2)
		gasEvents <- types.NewBaseFeeUpdate(50, 3)
	})

	got := drain(decisions)
	if len(got) != 1 {
		t.Fatalf("decisions = %+v, want exactly one Submit once fee improved", got)
	}
	want := types.Submit(1, 0, 52)
	if got[0] != want {
		t.Errorf("decision = %v, want %v", got[0], want)
	}
}

// Scenario 6: rate-limit exhaustion admits exactly capacity-many requests
// and leaves the remainder pending, preserving FIFO-by-id order.
func TestScenario6_RateLimitExhaustion(t *testing.T) {
	cfg := config.SchedulerConfig{SpikeThreshold: 1000, DeferTrendThreshold: -1.0}
	s, gasEvents, txRequests, decisions := newTestScheduler(cfg, 0, 3)

	runScheduler(t, s, gasEvents, txRequests, func() {
		gasEvents <- types.NewBaseFeeUpdate(50, 1)
		for id := uint64(1); id <= 5; id++ {
			txRequests <- txReq(id, 100, 2)
		}
	})

	got := drain(decisions)
	if len(got) != 3 {
		t.Fatalf("got %d Submit decisions, want 3 (bucket capacity)", len(got))
	}
	for i, d := range got {
		wantID := uint64(i + 1)
		if d.Kind != types.DecisionSubmit || d.TxID != wantID {
			t.Errorf("decision[%d] = %v, want Submit for tx_id=%d", i, d, wantID)
		}
	}
	if s.PendingLen() != 2 {
		t.Errorf("PendingLen() = %d, want 2 (ids 4 and 5 left pending)", s.PendingLen())
	}
}

// Extension property: a pending request past its deadline is dropped and
// never submitted, even once fee conditions would otherwise allow it.
func TestDeadlineDrop(t *testing.T) {
	cfg := config.SchedulerConfig{SpikeThreshold: 1000, DeferTrendThreshold: -1.0}
	s, gasEvents, txRequests, decisions := newTestScheduler(cfg, 100, 100)

	past := uint64(time.Now().Add(-time.Hour).Unix())
	req := txReq(1, 100, 2)
	req.Deadline = &past

	runScheduler(t, s, gasEvents, txRequests, func() {
		gasEvents <- types.NewBaseFeeUpdate(50, 1)
		txRequests <- req
	})

	got := drain(decisions)
	want := types.Drop(1, "deadline exceeded")
	if len(got) != 1 || got[0] != want {
		t.Fatalf("decisions = %+v, want [%v]", got, want)
	}
	if s.PendingLen() != 0 || s.SubmittedLen() != 0 {
		t.Errorf("PendingLen=%d SubmittedLen=%d, want both 0 after a drop", s.PendingLen(), s.SubmittedLen())
	}
}

// Extension property: a TxConfirmed event correlated by hash closes the
// lifecycle, and a repeat confirmation for the same hash is a no-op.
func TestConfirmationClosesLifecycle(t *testing.T) {
	cfg := config.SchedulerConfig{SpikeThreshold: 1000, DeferTrendThreshold: -1.0}
	s, gasEvents, txRequests, _ := newTestScheduler(cfg, 100, 100)

	runScheduler(t, s, gasEvents, txRequests, func() {
		gasEvents <- types.NewBaseFeeUpdate(50, 1)
		txRequests <- txReq(1, 100, 2)

		hash := correlationHash(1, 0, 52)
		gasEvents <- types.NewTxConfirmed(hash, 10)
		gasEvents <- types.NewTxConfirmed(hash, 11) // repeat: no-op
	})

	if s.SubmittedLen() != 0 {
		t.Errorf("SubmittedLen() = %d, want 0 after confirmation", s.SubmittedLen())
	}
	if len(s.idToHash) != 0 || len(s.hashToID) != 0 {
		t.Errorf("correlation maps not cleared: idToHash=%v hashToID=%v", s.idToHash, s.hashToID)
	}
}

// Extension property: nonce-too-low rejection feedback requeues the entry
// and seeds the allocator with the corrected nonce for the next submit.
func TestNonceTooLowRequeue(t *testing.T) {
	cfg := config.SchedulerConfig{SpikeThreshold: 1000, DeferTrendThreshold: -1.0}
	s, gasEvents, txRequests, decisions := newTestScheduler(cfg, 100, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx, gasEvents, txRequests)
		close(done)
	}()

	gasEvents <- types.NewBaseFeeUpdate(50, 1)
	txRequests <- txReq(1, 100, 2)

	first := <-decisions
	if first != types.Submit(1, 0, 52) {
		t.Fatalf("initial decision = %v, want Submit{1,0,52}", first)
	}

	if err := s.ReportRejection(ctx, 1, RejectionNonceTooLow, 5); err != nil {
		t.Fatalf("ReportRejection: %v", err)
	}

	second := <-decisions
	if second.Kind != types.DecisionSubmit || second.TxID != 1 {
		t.Fatalf("requeued decision = %v, want a Submit for tx_id=1", second)
	}
	if second.Nonce != 5 {
		t.Errorf("requeued Submit nonce = %d, want 5 (seeded by ReportRejection)", second.Nonce)
	}

	close(gasEvents)
	close(txRequests)
	<-done
}
