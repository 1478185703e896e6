package stub

import (
	"context"
	"errors"

	"solana-counter-indexer/internal/solana"
)

// ErrUnavailable simulates an RPC transport failure for configured keys.
var ErrUnavailable = errors.New("rpc unavailable")

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	Accounts     map[string]*solana.AccountInfo
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo

	// FailAccounts lists pubkeys whose lookups return ErrUnavailable.
	FailAccounts map[string]bool
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts:     make(map[string]*solana.AccountInfo),
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		FailAccounts: make(map[string]bool),
	}
}

// GetAccountInfo retrieves account info from the stub store.
// Returns nil for unknown pubkeys, mirroring the RPC not-found behavior.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	if c.FailAccounts[pubkey] {
		return nil, ErrUnavailable
	}
	return c.Accounts[pubkey], nil
}

// GetTransaction retrieves a transaction by signature from the stub store.
// Returns nil for unknown signatures.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	return c.Transactions[signature], nil
}

// GetSignaturesForAddress retrieves signatures for an address from the
// stub store, honoring Before/Limit pagination like the real RPC.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	sigs := c.Signatures[address]

	if opts != nil && opts.Before != "" {
		start := len(sigs)
		for i, sig := range sigs {
			if sig.Signature == opts.Before {
				start = i + 1
				break
			}
		}
		sigs = sigs[start:]
	}

	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		return sigs[:opts.Limit], nil
	}

	return sigs, nil
}

// AddAccount adds an account to the stub store.
func (c *RPCClient) AddAccount(pubkey string, info *solana.AccountInfo) {
	c.Accounts[pubkey] = info
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.Transactions[tx.Signature] = tx
}

// AddSignatures adds signatures for an address to the stub store.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.Signatures[address] = sigs
}
