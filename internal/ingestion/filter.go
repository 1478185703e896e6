package ingestion

// FilterTransactions keeps the transactions worth classifying: those
// with a signature, no recorded execution error, and at least one
// instruction addressed to the given program.
func FilterTransactions(txs []Transaction, programID string) []Transaction {
	kept := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Signature == "" || tx.TransactionError != nil {
			continue
		}
		if !touchesProgram(tx, programID) {
			continue
		}
		kept = append(kept, tx)
	}
	return kept
}

func touchesProgram(tx Transaction, programID string) bool {
	for _, ins := range tx.Instructions {
		if ins.ProgramID == programID {
			return true
		}
	}
	return false
}
