// Package codec implements the stable, self-describing binary wire format
// for the two inbound streams (gas events, transaction requests) and the
// outbound decision stream described in spec §6.
//
// Every tagged variant starts with a one-byte discriminant. All integers
// are fixed-width and little-endian, except TransactionRequest.Value,
// which spec §6 calls out as big-endian (account-model convention). This
// rules out go-ethereum's rlp codec (variable-length, big-endian byte
// strings) for the wire shape spec.md actually specifies; the original
// Rust implementation used borsh, whose tagged-discriminant-plus-
// fixed-width-fields shape this package mirrors directly with
// encoding/binary.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/example/gassaver/internal/types"
)

var errShortRead = errors.New("codec: short read")

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return errShortRead
		}
		return err
	}
	return nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func writeU64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readHash(r io.Reader) (common.Hash, error) {
	var h common.Hash
	if err := readFull(r, h[:]); err != nil {
		return h, err
	}
	return h, nil
}

// EncodeGasEvent writes e to w in the wire format described above.
func EncodeGasEvent(w io.Writer, e types.GasEvent) error {
	if _, err := w.Write([]byte{byte(e.Kind)}); err != nil {
		return err
	}
	switch e.Kind {
	case types.GasEventBaseFeeUpdate:
		if err := writeU64(w, e.BaseFee); err != nil {
			return err
		}
		return writeU64(w, e.Timestamp)
	case types.GasEventNewBlock:
		for _, v := range []uint64{e.Number, e.BaseFee, e.GasUsed, e.GasLimit} {
			if err := writeU64(w, v); err != nil {
				return err
			}
		}
		return nil
	case types.GasEventMempoolTx:
		if _, err := w.Write(e.TxHash[:]); err != nil {
			return err
		}
		for _, v := range []uint64{e.MaxFee, e.MaxPriorityFee, e.GasLimit} {
			if err := writeU64(w, v); err != nil {
				return err
			}
		}
		return nil
	case types.GasEventTxConfirmed:
		if _, err := w.Write(e.TxHash[:]); err != nil {
			return err
		}
		return writeU64(w, e.ConfirmedBlock)
	default:
		return fmt.Errorf("codec: unknown gas event kind %d", e.Kind)
	}
}

// DecodeGasEvent reads a single GasEvent from r.
func DecodeGasEvent(r io.Reader) (types.GasEvent, error) {
	var tag [1]byte
	if err := readFull(r, tag[:]); err != nil {
		return types.GasEvent{}, err
	}
	kind := types.GasEventKind(tag[0])
	switch kind {
	case types.GasEventBaseFeeUpdate:
		baseFee, err := readU64(r)
		if err != nil {
			return types.GasEvent{}, err
		}
		ts, err := readU64(r)
		if err != nil {
			return types.GasEvent{}, err
		}
		return types.NewBaseFeeUpdate(baseFee, ts), nil
	case types.GasEventNewBlock:
		vals := make([]uint64, 4)
		for i := range vals {
			v, err := readU64(r)
			if err != nil {
				return types.GasEvent{}, err
			}
			vals[i] = v
		}
		return types.NewBlockEvent(vals[0], vals[1], vals[2], vals[3]), nil
	case types.GasEventMempoolTx:
		hash, err := readHash(r)
		if err != nil {
			return types.GasEvent{}, err
		}
		vals := make([]uint64, 3)
		for i := range vals {
			v, err := readU64(r)
			if err != nil {
				return types.GasEvent{}, err
			}
			vals[i] = v
		}
		return types.NewMempoolTx(hash, vals[0], vals[1], vals[2]), nil
	case types.GasEventTxConfirmed:
		hash, err := readHash(r)
		if err != nil {
			return types.GasEvent{}, err
		}
		block, err := readU64(r)
		if err != nil {
			return types.GasEvent{}, err
		}
		return types.NewTxConfirmed(hash, block), nil
	default:
		return types.GasEvent{}, fmt.Errorf("codec: unknown gas event tag %d", tag[0])
	}
}

// EncodeTransactionRequest writes req to w.
//
// Layout: id(8) from(20) to(20) data_len(4) data(data_len) value(32, big
// endian) max_fee(8) max_priority_fee(8) has_deadline(1) deadline(8).
func EncodeTransactionRequest(w io.Writer, req types.TransactionRequest) error {
	if err := writeU64(w, req.ID); err != nil {
		return err
	}
	if _, err := w.Write(req.From[:]); err != nil {
		return err
	}
	if _, err := w.Write(req.To[:]); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(req.Data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(req.Data) > 0 {
		if _, err := w.Write(req.Data); err != nil {
			return err
		}
	}
	value := req.Value
	if value == nil {
		value = uint256.NewInt(0)
	}
	valBytes := value.Bytes32() // big-endian, per spec §6
	if _, err := w.Write(valBytes[:]); err != nil {
		return err
	}
	if err := writeU64(w, req.MaxFeePerGas); err != nil {
		return err
	}
	if err := writeU64(w, req.MaxPriorityFeePerGas); err != nil {
		return err
	}
	if req.Deadline != nil {
		if _, err := w.Write([]byte{1}); err != nil {
			return err
		}
		return writeU64(w, *req.Deadline)
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return err
	}
	return writeU64(w, 0)
}

// DecodeTransactionRequest reads a single TransactionRequest from r.
func DecodeTransactionRequest(r io.Reader) (types.TransactionRequest, error) {
	var req types.TransactionRequest

	id, err := readU64(r)
	if err != nil {
		return req, err
	}
	req.ID = id

	if err := readFull(r, req.From[:]); err != nil {
		return req, err
	}
	if err := readFull(r, req.To[:]); err != nil {
		return req, err
	}

	var lenBuf [4]byte
	if err := readFull(r, lenBuf[:]); err != nil {
		return req, err
	}
	dataLen := binary.LittleEndian.Uint32(lenBuf[:])
	if dataLen > 0 {
		data := make([]byte, dataLen)
		if err := readFull(r, data); err != nil {
			return req, err
		}
		req.Data = data
	}

	var valBuf [32]byte
	if err := readFull(r, valBuf[:]); err != nil {
		return req, err
	}
	req.Value = new(uint256.Int).SetBytes(valBuf[:])

	maxFee, err := readU64(r)
	if err != nil {
		return req, err
	}
	req.MaxFeePerGas = maxFee

	maxTip, err := readU64(r)
	if err != nil {
		return req, err
	}
	req.MaxPriorityFeePerGas = maxTip

	var hasDeadline [1]byte
	if err := readFull(r, hasDeadline[:]); err != nil {
		return req, err
	}
	deadline, err := readU64(r)
	if err != nil {
		return req, err
	}
	if hasDeadline[0] != 0 {
		req.Deadline = &deadline
	}

	return req, nil
}

// EncodeDecision writes d to w.
func EncodeDecision(w io.Writer, d types.Decision) error {
	if _, err := w.Write([]byte{byte(d.Kind)}); err != nil {
		return err
	}
	if err := writeU64(w, d.TxID); err != nil {
		return err
	}
	switch d.Kind {
	case types.DecisionSubmit:
		if err := writeU64(w, d.Nonce); err != nil {
			return err
		}
		return writeU64(w, d.GasPrice)
	case types.DecisionReprice:
		if err := writeU64(w, d.OldNonce); err != nil {
			return err
		}
		return writeU64(w, d.NewGasPrice)
	case types.DecisionDefer, types.DecisionDrop:
		reason := []byte(d.Reason)
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(reason)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		_, err := w.Write(reason)
		return err
	default:
		return fmt.Errorf("codec: unknown decision kind %d", d.Kind)
	}
}

// DecodeDecision reads a single Decision from r.
func DecodeDecision(r io.Reader) (types.Decision, error) {
	var tag [1]byte
	if err := readFull(r, tag[:]); err != nil {
		return types.Decision{}, err
	}
	txID, err := readU64(r)
	if err != nil {
		return types.Decision{}, err
	}
	kind := types.DecisionKind(tag[0])
	switch kind {
	case types.DecisionSubmit:
		nonce, err := readU64(r)
		if err != nil {
			return types.Decision{}, err
		}
		gasPrice, err := readU64(r)
		if err != nil {
			return types.Decision{}, err
		}
		return types.Submit(txID, nonce, gasPrice), nil
	case types.DecisionReprice:
		oldNonce, err := readU64(r)
		if err != nil {
			return types.Decision{}, err
		}
		newPrice, err := readU64(r)
		if err != nil {
			return types.Decision{}, err
		}
		return types.Reprice(txID, oldNonce, newPrice), nil
	case types.DecisionDefer, types.DecisionDrop:
		var lenBuf [4]byte
		if err := readFull(r, lenBuf[:]); err != nil {
			return types.Decision{}, err
		}
		reasonLen := binary.LittleEndian.Uint32(lenBuf[:])
		reason := make([]byte, reasonLen)
		if reasonLen > 0 {
			if err := readFull(r, reason); err != nil {
				return types.Decision{}, err
			}
		}
		if kind == types.DecisionDefer {
			return types.Defer(txID, string(reason)), nil
		}
		return types.Drop(txID, string(reason)), nil
	default:
		return types.Decision{}, fmt.Errorf("codec: unknown decision tag %d", tag[0])
	}
}
