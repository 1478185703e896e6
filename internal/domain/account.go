package domain

// CounterAccount is a point-in-time snapshot of the on-chain counter
// account for one authority. It is fetched per reconciliation and never
// cached: a stale snapshot would corrupt old/new count derivation under
// out-of-order webhook delivery.
type CounterAccount struct {
	Count     uint64
	Authority string
}
