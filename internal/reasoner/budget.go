package reasoner

import "sync/atomic"

// Budget caps the number of reasoner calls for one run. Acquisition is
// atomic so parallel hunk workers cannot overdraw it, and a consumed slot
// is never returned, even when the call it paid for fails.
type Budget struct {
	remaining atomic.Int64
}

// NewBudget creates a budget allowing n calls. n <= 0 means no calls.
func NewBudget(n int) *Budget {
	b := &Budget{}
	b.remaining.Store(int64(n))
	return b
}

// Acquire consumes one call slot. It returns false once the budget is
// exhausted.
func (b *Budget) Acquire() bool {
	for {
		cur := b.remaining.Load()
		if cur <= 0 {
			return false
		}
		if b.remaining.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Remaining reports the call slots still available.
func (b *Budget) Remaining() int {
	n := b.remaining.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}
