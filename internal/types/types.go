// Package types holds the wire-level data model the scheduler core speaks:
// gas-market events flowing in, transaction requests flowing in, and
// scheduler decisions flowing out.
package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// GasEventKind discriminates the GasEvent tagged variant.
type GasEventKind uint8

const (
	GasEventBaseFeeUpdate GasEventKind = iota
	GasEventNewBlock
	GasEventMempoolTx
	GasEventTxConfirmed
)

func (k GasEventKind) String() string {
	switch k {
	case GasEventBaseFeeUpdate:
		return "BaseFeeUpdate"
	case GasEventNewBlock:
		return "NewBlock"
	case GasEventMempoolTx:
		return "MempoolTx"
	case GasEventTxConfirmed:
		return "TxConfirmed"
	default:
		return fmt.Sprintf("GasEventKind(%d)", uint8(k))
	}
}

// GasEvent is the tagged variant described in spec §3. Only the fields
// relevant to Kind are populated; the zero value of the rest is ignored.
type GasEvent struct {
	Kind GasEventKind

	// BaseFeeUpdate
	BaseFee   uint64
	Timestamp uint64

	// NewBlock (BaseFee shared with BaseFeeUpdate above)
	Number   uint64
	GasUsed  uint64
	GasLimit uint64

	// MempoolTx / TxConfirmed
	TxHash         common.Hash
	MaxFee         uint64
	MaxPriorityFee uint64
	ConfirmedBlock uint64
}

// NewBaseFeeUpdate builds a BaseFeeUpdate gas event.
func NewBaseFeeUpdate(baseFee, timestamp uint64) GasEvent {
	return GasEvent{Kind: GasEventBaseFeeUpdate, BaseFee: baseFee, Timestamp: timestamp}
}

// NewBlockEvent builds a NewBlock gas event.
func NewBlockEvent(number, baseFee, gasUsed, gasLimit uint64) GasEvent {
	return GasEvent{Kind: GasEventNewBlock, Number: number, BaseFee: baseFee, GasUsed: gasUsed, GasLimit: gasLimit}
}

// NewMempoolTx builds an observed (not submitted by us) mempool transaction event.
func NewMempoolTx(hash common.Hash, maxFee, maxPriorityFee, gasLimit uint64) GasEvent {
	return GasEvent{Kind: GasEventMempoolTx, TxHash: hash, MaxFee: maxFee, MaxPriorityFee: maxPriorityFee, GasLimit: gasLimit}
}

// NewTxConfirmed builds a confirmation event keyed by the broadcast tx hash.
func NewTxConfirmed(hash common.Hash, blockNumber uint64) GasEvent {
	return GasEvent{Kind: GasEventTxConfirmed, TxHash: hash, ConfirmedBlock: blockNumber}
}

// TransactionRequest is a user-submitted intent to move value/call data
// under a max total fee and a priority tip, per spec §3.
type TransactionRequest struct {
	ID                   uint64
	From                 common.Address
	To                   common.Address
	Data                 []byte
	Value                *uint256.Int
	MaxFeePerGas         uint64
	MaxPriorityFeePerGas uint64
	Deadline             *uint64 // unix seconds, optional
}

// DecisionKind discriminates the SchedulerDecision tagged variant.
type DecisionKind uint8

const (
	DecisionSubmit DecisionKind = iota
	DecisionReprice
	DecisionDefer
	DecisionDrop
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionSubmit:
		return "Submit"
	case DecisionReprice:
		return "Reprice"
	case DecisionDefer:
		return "Defer"
	case DecisionDrop:
		return "Drop"
	default:
		return fmt.Sprintf("DecisionKind(%d)", uint8(k))
	}
}

// Decision is the tagged variant the scheduler emits outward, per spec §3.
type Decision struct {
	Kind DecisionKind
	TxID uint64

	// Submit
	Nonce    uint64
	GasPrice uint64

	// Reprice
	OldNonce    uint64
	NewGasPrice uint64

	// Defer / Drop
	Reason string
}

// Submit builds a Submit decision.
func Submit(txID, nonce, gasPrice uint64) Decision {
	return Decision{Kind: DecisionSubmit, TxID: txID, Nonce: nonce, GasPrice: gasPrice}
}

// Reprice builds a Reprice decision.
func Reprice(txID, oldNonce, newGasPrice uint64) Decision {
	return Decision{Kind: DecisionReprice, TxID: txID, OldNonce: oldNonce, NewGasPrice: newGasPrice}
}

// Defer builds a Defer decision with a human-readable reason.
func Defer(txID uint64, reason string) Decision {
	return Decision{Kind: DecisionDefer, TxID: txID, Reason: reason}
}

// Drop builds a Drop decision with a human-readable reason.
func Drop(txID uint64, reason string) Decision {
	return Decision{Kind: DecisionDrop, TxID: txID, Reason: reason}
}

func (d Decision) String() string {
	switch d.Kind {
	case DecisionSubmit:
		return fmt.Sprintf("Submit{tx_id=%d, nonce=%d, gas_price=%d}", d.TxID, d.Nonce, d.GasPrice)
	case DecisionReprice:
		return fmt.Sprintf("Reprice{tx_id=%d, old_nonce=%d, new_gas_price=%d}", d.TxID, d.OldNonce, d.NewGasPrice)
	case DecisionDefer:
		return fmt.Sprintf("Defer{tx_id=%d, reason=%q}", d.TxID, d.Reason)
	case DecisionDrop:
		return fmt.Sprintf("Drop{tx_id=%d, reason=%q}", d.TxID, d.Reason)
	default:
		return fmt.Sprintf("Decision{kind=%s, tx_id=%d}", d.Kind, d.TxID)
	}
}
