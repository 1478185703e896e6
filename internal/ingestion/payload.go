// Package ingestion turns webhook deliveries and RPC history into stored
// counter events: payload parsing, relevance filtering, event building,
// asynchronous batch processing, and historical backfill.
package ingestion

import (
	"encoding/json"
	"fmt"
)

// Instruction is a single instruction inside a notified transaction.
// Data is base64-encoded raw instruction bytes; Accounts are base58
// pubkeys in positional order.
type Instruction struct {
	Accounts  []string `json:"accounts"`
	Data      string   `json:"data"`
	ProgramID string   `json:"programId"`
}

// Transaction is one notified transaction record from a webhook batch.
type Transaction struct {
	Signature        string        `json:"signature"`
	Slot             int64         `json:"slot"`
	Timestamp        int64         `json:"timestamp"`
	Instructions     []Instruction `json:"instructions"`
	TransactionError interface{}   `json:"transactionError"`
}

// ParsePayload extracts transaction records from a raw webhook body.
//
// The sender ships a JSON object mapping arbitrary batch keys to
// transaction records, and mixes in non-transaction entries (delivery
// metadata such as a top-level timestamp). An entry counts as a
// transaction when it decodes as an object carrying a signature;
// everything else is ignored. Iteration order over the map is
// meaningless and callers must not derive event ordering from it.
func ParsePayload(body []byte) ([]Transaction, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		// Some senders deliver a bare array of transaction records.
		var list []Transaction
		if arrErr := json.Unmarshal(body, &list); arrErr == nil {
			return withSignatures(list), nil
		}
		return nil, fmt.Errorf("parse webhook payload: %w", err)
	}

	txs := make([]Transaction, 0, len(entries))
	for _, raw := range entries {
		var tx Transaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			continue
		}
		if tx.Signature == "" {
			continue
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

func withSignatures(list []Transaction) []Transaction {
	out := make([]Transaction, 0, len(list))
	for _, tx := range list {
		if tx.Signature != "" {
			out = append(out, tx)
		}
	}
	return out
}
