// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credentials

import "sync"

// emailLocks hands out one mutex per email. Entries are dropped once no
// goroutine holds or waits for them.
type emailLocks struct {
	mu    sync.Mutex
	locks map[string]*emailLock
}

type emailLock struct {
	sync.Mutex
	refs int
}

func newEmailLocks() *emailLocks {
	return &emailLocks{locks: make(map[string]*emailLock)}
}

// lock blocks until email is free and returns the matching unlock func.
func (l *emailLocks) lock(email string) func() {
	l.mu.Lock()
	el, ok := l.locks[email]
	if !ok {
		el = &emailLock{}
		l.locks[email] = el
	}
	el.refs++
	l.mu.Unlock()

	el.Lock()

	return func() {
		el.Unlock()

		l.mu.Lock()
		el.refs--
		if el.refs == 0 {
			delete(l.locks, email)
		}
		l.mu.Unlock()
	}
}
