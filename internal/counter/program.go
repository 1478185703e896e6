// Package counter holds the on-chain counter program knowledge: its
// identity, instruction discriminator table, account layout, and the
// state reconciler that reads authoritative counter values from chain.
package counter

import (
	"encoding/hex"

	"github.com/mr-tron/base58"

	"solana-counter-indexer/internal/domain"
	"solana-counter-indexer/internal/solana"
)

// ProgramID is the deployed counter program.
const ProgramID = "FVrsAkavtKsAV6KHwRpMCmZonqC2XckWZmcpuLcm9n5E"

// PDASeed is the constant seed for the per-authority counter account.
const PDASeed = "counter"

// DiscriminatorLen is the Anchor instruction discriminator width.
const DiscriminatorLen = 8

// Instruction discriminators observed on the wire, keyed by hex.
// The increment value is confirmed from live traffic.
// TODO: confirm the initialize and decrement values against the program's
// build artifacts before trusting events classified by them.
var discriminators = map[string]domain.EventType{
	"af6fd31375989975": domain.EventInitialized,
	"dab42b70d1cbdd58": domain.EventIncremented,
	"6ae3a83bf81b9665": domain.EventDecremented,
}

// Classify maps a raw instruction payload to its event type by
// discriminator lookup. ok is false when the discriminator is not in the
// table (or the payload is too short); callers must treat that as an
// unknown instruction and skip it, never substitute a guessed kind.
func Classify(data []byte) (eventType domain.EventType, ok bool) {
	if len(data) < DiscriminatorLen {
		return "", false
	}
	eventType, ok = discriminators[hex.EncodeToString(data[:DiscriminatorLen])]
	return eventType, ok
}

// DeriveCounterAddress derives the counter PDA for an authority:
// seeds ["counter", authority] under the counter program.
func DeriveCounterAddress(authority, programID string) (string, error) {
	authorityBytes, err := base58.Decode(authority)
	if err != nil {
		return "", err
	}
	return solana.DeriveProgramAddress([][]byte{[]byte(PDASeed), authorityBytes}, programID)
}
