package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrNoValidBump is returned when no bump seed produces an off-curve address.
// Probability is negligible for real seeds; surfaced for completeness.
var ErrNoValidBump = errors.New("no valid bump seed found")

const pdaMarker = "ProgramDerivedAddress"

// DeriveProgramAddress derives a Program Derived Address from the given
// seeds and a base58 program ID, searching bump seeds from 255 downward
// until the resulting point is off the ed25519 curve.
func DeriveProgramAddress(seeds [][]byte, programID string) (string, error) {
	programBytes, err := base58.Decode(programID)
	if err != nil {
		return "", fmt.Errorf("decode program id: %w", err)
	}
	if len(programBytes) != 32 {
		return "", fmt.Errorf("program id must be 32 bytes, got %d", len(programBytes))
	}

	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, 128)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programBytes...)
		data = append(data, []byte(pdaMarker)...)

		hash := sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), nil
		}
	}

	return "", ErrNoValidBump
}

// isOnCurve reports whether a 32-byte point decodes as a valid ed25519
// curve point. PDAs must be off-curve so no private key can exist for them.
func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
