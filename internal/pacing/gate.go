package pacing

import "sync"

// AccountGate serializes work per account. Different accounts proceed in
// parallel; two jobs touching the same account take turns.
type AccountGate struct {
	mu    sync.Mutex
	locks map[string]*gateEntry
}

type gateEntry struct {
	mu   sync.Mutex
	refs int
}

// NewAccountGate creates an empty gate
func NewAccountGate() *AccountGate {
	return &AccountGate{locks: make(map[string]*gateEntry)}
}

// Lock blocks until the account is free and returns the matching unlock
func (g *AccountGate) Lock(accountID string) (unlock func()) {
	g.mu.Lock()
	entry, ok := g.locks[accountID]
	if !ok {
		entry = &gateEntry{}
		g.locks[accountID] = entry
	}
	entry.refs++
	g.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		g.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(g.locks, accountID)
		}
		g.mu.Unlock()
	}
}
