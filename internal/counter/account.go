package counter

import (
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"

	"solana-counter-indexer/internal/domain"
)

// Counter account layout: 8-byte account discriminator, 8-byte little
// endian count, 32-byte authority pubkey.
const (
	accountDiscriminatorLen = 8
	countLen                = 8
	authorityLen            = 32

	// AccountDataSize is the full serialized counter account size.
	AccountDataSize = accountDiscriminatorLen + countLen + authorityLen
)

// DecodeAccount decodes raw counter account bytes into a snapshot.
// Data shorter than the fixed layout is a decode failure.
func DecodeAccount(data []byte) (*domain.CounterAccount, error) {
	if len(data) < AccountDataSize {
		return nil, fmt.Errorf("counter account data too short: %d bytes, need %d", len(data), AccountDataSize)
	}

	count := binary.LittleEndian.Uint64(data[accountDiscriminatorLen : accountDiscriminatorLen+countLen])
	authority := base58.Encode(data[accountDiscriminatorLen+countLen : AccountDataSize])

	return &domain.CounterAccount{
		Count:     count,
		Authority: authority,
	}, nil
}
