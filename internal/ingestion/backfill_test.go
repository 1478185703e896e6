package ingestion

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/mr-tron/base58"

	"solana-counter-indexer/internal/solana"
	"solana-counter-indexer/internal/solana/stub"
	"solana-counter-indexer/internal/storage/memory"
)

func compiledData(t *testing.T, discriminatorHex string) string {
	t.Helper()
	b, err := hex.DecodeString(discriminatorHex)
	if err != nil {
		t.Fatalf("bad discriminator hex: %v", err)
	}
	return base58.Encode(b)
}

func rpcCounterTx(t *testing.T, signature string, slot int64) *solana.Transaction {
	t.Helper()
	return &solana.Transaction{
		Slot:      slot,
		Signature: signature,
		BlockTime: 1704067200 + slot,
		Message: &solana.TransactionMessage{
			AccountKeys: []string{"pdaX", "authX", testProgram},
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 2, Accounts: []int{0, 1}, Data: compiledData(t, "dab42b70d1cbdd58")},
			},
		},
	}
}

func newTestBackfiller(rpc solana.RPCClient, store *memory.EventStore) *Backfiller {
	states := &fakeStates{counts: map[string]uint64{"authX": 4}}
	builder := NewEventBuilder(states, testProgram, quietLogger())

	return NewBackfiller(BackfillOptions{
		RPC:       rpc,
		Builder:   builder,
		Store:     store,
		ProgramID: testProgram,
		PageSize:  2,
		Logger:    quietLogger(),
	})
}

func TestBackfiller_Run(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(testProgram, []solana.SignatureInfo{
		{Signature: "bfSig1", Slot: 102},
		{Signature: "bfSig2", Slot: 101},
		{Signature: "bfSig3", Slot: 100},
	})
	for i, sig := range []string{"bfSig1", "bfSig2", "bfSig3"} {
		rpc.AddTransaction(rpcCounterTx(t, sig, int64(102-i)))
	}

	store := memory.NewEventStore()
	bf := newTestBackfiller(rpc, store)

	result, err := bf.Run(context.Background(), 3)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.SignaturesScanned != 3 {
		t.Errorf("SignaturesScanned mismatch: %d", result.SignaturesScanned)
	}
	if result.EventsStored != 3 {
		t.Errorf("EventsStored mismatch: %d", result.EventsStored)
	}

	events, err := store.GetRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("Expected 3 stored events, got %d", len(events))
	}
}

func TestBackfiller_RerunSkipsDuplicates(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(testProgram, []solana.SignatureInfo{
		{Signature: "bfSig1", Slot: 100},
	})
	rpc.AddTransaction(rpcCounterTx(t, "bfSig1", 100))

	store := memory.NewEventStore()
	bf := newTestBackfiller(rpc, store)

	if _, err := bf.Run(context.Background(), 1); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	result, err := bf.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if result.EventsStored != 0 {
		t.Errorf("Expected no new events on rerun, got %d", result.EventsStored)
	}
	if result.DuplicatesSkipped != 1 {
		t.Errorf("Expected 1 duplicate skipped, got %d", result.DuplicatesSkipped)
	}
}

func TestBackfiller_SkipsFailedSignatures(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(testProgram, []solana.SignatureInfo{
		{Signature: "failedSig", Slot: 100, Err: map[string]interface{}{"InstructionError": "Custom"}},
	})

	store := memory.NewEventStore()
	bf := newTestBackfiller(rpc, store)

	result, err := bf.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.EventsStored != 0 {
		t.Errorf("Expected no events from failed transaction, got %d", result.EventsStored)
	}
}

func TestBackfiller_MissingTransactionSkipped(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(testProgram, []solana.SignatureInfo{
		{Signature: "ghostSig", Slot: 100},
	})

	store := memory.NewEventStore()
	bf := newTestBackfiller(rpc, store)

	result, err := bf.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.EventsStored != 0 || result.Errors != 0 {
		t.Errorf("Expected missing transaction to be skipped cleanly, got %+v", result)
	}
}

func TestBackfiller_ZeroLimitScansEverything(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(testProgram, []solana.SignatureInfo{
		{Signature: "bfSig1", Slot: 101},
		{Signature: "bfSig2", Slot: 100},
	})
	rpc.AddTransaction(rpcCounterTx(t, "bfSig1", 101))
	rpc.AddTransaction(rpcCounterTx(t, "bfSig2", 100))

	store := memory.NewEventStore()
	bf := newTestBackfiller(rpc, store)

	result, err := bf.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.EventsStored != 2 {
		t.Errorf("Expected 2 events stored, got %d", result.EventsStored)
	}
}
