package bank

import (
	"context"
	"sync"
	"sync/atomic"
)

// Token identifies the owner of an account lock.
type Token uint64

// LockTable hands out one mutual-exclusion lock per account number. Locks
// are created on first use and never replaced, so every caller contending
// for an account meets the same instance.
type LockTable struct {
	locks     sync.Map // int -> *accountLock
	nextToken atomic.Uint64
}

type accountLock struct {
	sem   chan struct{}
	owner atomic.Uint64
}

func NewLockTable() *LockTable {
	return &LockTable{}
}

func (t *LockTable) lockFor(number int) *accountLock {
	if v, ok := t.locks.Load(number); ok {
		return v.(*accountLock)
	}
	v, _ := t.locks.LoadOrStore(number, &accountLock{sem: make(chan struct{}, 1)})
	return v.(*accountLock)
}

// Lock blocks until the account's lock is held or ctx is done.
func (t *LockTable) Lock(ctx context.Context, number int) (Token, error) {
	l := t.lockFor(number)
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	tok := Token(t.nextToken.Add(1))
	l.owner.Store(uint64(tok))
	return tok, nil
}

// Unlock releases the lock only if tok currently owns it.
func (t *LockTable) Unlock(number int, tok Token) bool {
	l := t.lockFor(number)
	if tok == 0 || !l.owner.CompareAndSwap(uint64(tok), 0) {
		return false
	}
	<-l.sem
	return true
}

// LockPair locks two accounts in ascending number order. Locking the same
// account twice takes it once; the returned tokens are then equal.
func (t *LockTable) LockPair(ctx context.Context, a, b int) (Token, Token, error) {
	if a == b {
		tok, err := t.Lock(ctx, a)
		return tok, tok, err
	}
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	loTok, err := t.Lock(ctx, lo)
	if err != nil {
		return 0, 0, err
	}
	hiTok, err := t.Lock(ctx, hi)
	if err != nil {
		t.Unlock(lo, loTok)
		return 0, 0, err
	}
	if a == lo {
		return loTok, hiTok, nil
	}
	return hiTok, loTok, nil
}

// UnlockPair releases what LockPair acquired.
func (t *LockTable) UnlockPair(a int, aTok Token, b int, bTok Token) {
	t.Unlock(a, aTok)
	if a != b {
		t.Unlock(b, bTok)
	}
}
