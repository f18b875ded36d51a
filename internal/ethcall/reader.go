// Package ethcall reads contract storage words from a remote execution node.
// Each batch is a single eth_call against a read-only accessor contract whose
// bytecode is supplied as a code override, so nothing is deployed on chain.
package ethcall

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const wordBytes = 32

// Client is the subset of the RPC client the reader needs. Narrow so tests
// inject a fake.
type Client interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// overrideAccount is the state-override entry for one address.
type overrideAccount struct {
	Code hexutil.Bytes `json:"code"`
}

// Reader batches storage reads through eth_call. Transport retries live
// entirely inside ReadSlots and are invisible to callers.
type Reader struct {
	client   Client
	contract common.Address
	accessor hexutil.Bytes
	timeout  time.Duration
	retries  uint64
}

// Options configure a Reader.
type Options struct {
	// Timeout bounds each remote call, retries included. Zero means the
	// caller's context is the only bound.
	Timeout time.Duration
	// Retries is the number of transport retries per batch. Defaults to 3.
	Retries uint64
}

// New builds a reader against a connected client. accessorCode is the
// bytecode of the batch accessor contract, overlaid on the contract address
// for the duration of each call.
func New(client Client, contract common.Address, accessorCode []byte, opts Options) *Reader {
	if opts.Retries == 0 {
		opts.Retries = 3
	}
	return &Reader{
		client:   client,
		contract: contract,
		accessor: accessorCode,
		timeout:  opts.Timeout,
		retries:  opts.Retries,
	}
}

// Dial connects to an RPC endpoint and builds a reader over it.
func Dial(url string, contract common.Address, accessorCode []byte, opts Options) (*Reader, error) {
	client, err := rpc.Dial(url)
	if err != nil {
		return nil, &Error{Kind: Transport, Err: fmt.Errorf("dialing %s: %w", url, err)}
	}
	return New(client, contract, accessorCode, opts), nil
}

// ReadSlots fetches the words stored at the given absolute slots, in order.
// The call payload is the concatenation of the raw slots; the accessor echoes
// the stored words back as one concatenated blob, sliced here in the same
// order. Either every word is returned or the batch fails.
func (r *Reader) ReadSlots(ctx context.Context, slots []string) ([]string, error) {
	payload := make([]byte, 0, len(slots)*wordBytes)
	for _, s := range slots {
		raw, err := hex.DecodeString(s)
		if err != nil || len(raw) != wordBytes {
			return nil, &Error{Kind: Malformed, Err: fmt.Errorf("slot %q is not a 32-byte hex word", s)}
		}
		payload = append(payload, raw...)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	call := map[string]any{
		"to":   r.contract,
		"data": hexutil.Bytes(payload),
	}
	overrides := map[common.Address]overrideAccount{
		r.contract: {Code: r.accessor},
	}

	var out hexutil.Bytes
	op := func() error {
		out = nil
		return r.client.CallContext(ctx, &out, "eth_call", call, "latest", overrides)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.retries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, classify(ctx, err)
	}

	if len(out) != len(slots)*wordBytes {
		return nil, &Error{
			Kind: Malformed,
			Err:  fmt.Errorf("response is %d bytes, want %d for %d slots", len(out), len(slots)*wordBytes, len(slots)),
		}
	}
	words := make([]string, len(slots))
	for i := range slots {
		words[i] = hex.EncodeToString(out[i*wordBytes : (i+1)*wordBytes])
	}
	return words, nil
}

func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: Timeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: Cancelled, Err: err}
	default:
		return &Error{Kind: Transport, Err: err}
	}
}
