package engine

import (
	"sync"

	"github.com/shopspring/decimal"
)

// lockTable serializes operations per order. Entries are reference
// counted so the table does not grow with the order count.
type lockTable struct {
	mu           sync.Mutex
	locks        map[string]*orderLock
	reservations map[string]decimal.Decimal
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{
		locks:        make(map[string]*orderLock),
		reservations: make(map[string]decimal.Decimal),
	}
}

func (t *lockTable) acquire(orderID string) *orderLock {
	t.mu.Lock()
	l, ok := t.locks[orderID]
	if !ok {
		l = &orderLock{}
		t.locks[orderID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return l
}

func (t *lockTable) release(orderID string, l *orderLock) {
	l.mu.Unlock()

	t.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, orderID)
	}
	t.mu.Unlock()
}

// reserve records capture intent while the gateway call is in flight
// and the per-order lock is not held. Validation counts reservations
// against the order total so parallel intents cannot oversubscribe it.
func (t *lockTable) reserve(orderID string, amount decimal.Decimal) {
	t.mu.Lock()
	t.reservations[orderID] = t.reserved(orderID).Add(amount)
	t.mu.Unlock()
}

func (t *lockTable) unreserve(orderID string, amount decimal.Decimal) {
	t.mu.Lock()
	rest := t.reservations[orderID].Sub(amount)
	if rest.IsPositive() {
		t.reservations[orderID] = rest
	} else {
		delete(t.reservations, orderID)
	}
	t.mu.Unlock()
}

// reserved must be called with t.mu held or from within reserve.
func (t *lockTable) reserved(orderID string) decimal.Decimal {
	if r, ok := t.reservations[orderID]; ok {
		return r
	}
	return decimal.Zero
}

func (t *lockTable) reservedFor(orderID string) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reserved(orderID)
}
