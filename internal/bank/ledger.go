package bank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/auctionctl/internal/observability"
	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound = errors.New("bank: account not found")
	ErrHolderRequired  = errors.New("bank: holder name required")
)

// Ledger owns every account for the life of the bank process. Agent and
// auction-house accounts live in separate sub-lists; the holder name decides
// which one a lookup searches.
type Ledger struct {
	mu         sync.RWMutex
	agents     []*Account
	houses     []*Account
	byNumber   map[int]*Account
	lastNumber int

	locks *LockTable
}

func NewLedger() *Ledger {
	return &Ledger{
		byNumber: make(map[int]*Account),
		locks:    NewLockTable(),
	}
}

func (l *Ledger) Locks() *LockTable {
	return l.locks
}

// Create returns the account registered for holder, or opens a new one with
// the next sequential number. created reports which happened.
func (l *Ledger) Create(holder string, initial decimal.Decimal) (acct *Account, created bool, err error) {
	if holder == "" {
		return nil, false, ErrHolderRequired
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing := l.lookupLocked(holder); existing != nil {
		return existing, false, nil
	}
	acct = l.openLocked(holder, initial)
	log.Info().Int("account", acct.number).Str("holder", holder).Str("balance", initial.String()).Msg("bank.Ledger opened account")
	return acct, true, nil
}

// CreateHouse re-uses a known auction-house account number or opens a new
// house account named AuctionHouse-<number>.
func (l *Ledger) CreateHouse(account int) (acct *Account, created bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if account > 0 {
		if existing, ok := l.byNumber[account]; ok && protocol.IsHouseHolder(existing.Holder()) {
			return existing, false
		}
	}
	acct = l.openLocked(protocol.HouseHolderName(l.lastNumber+1), decimal.Zero)
	log.Info().Int("account", acct.number).Str("holder", acct.holder).Msg("bank.Ledger opened house account")
	return acct, true
}

func (l *Ledger) openLocked(holder string, initial decimal.Decimal) *Account {
	l.lastNumber++
	acct := newAccount(l.lastNumber, holder, initial)
	if protocol.IsHouseHolder(holder) {
		l.houses = append(l.houses, acct)
	} else {
		l.agents = append(l.agents, acct)
	}
	l.byNumber[acct.number] = acct
	return acct
}

// Lookup finds an account by exact holder name.
func (l *Ledger) Lookup(holder string) (*Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct := l.lookupLocked(holder)
	return acct, acct != nil
}

func (l *Ledger) lookupLocked(holder string) *Account {
	list := l.agents
	if protocol.IsHouseHolder(holder) {
		list = l.houses
	}
	for _, acct := range list {
		if acct.Holder() == holder {
			return acct
		}
	}
	return nil
}

// Account finds an account by number.
func (l *Ledger) Account(number int) (*Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.byNumber[number]
	return acct, ok
}

// Snapshot copies every account, ordered by number.
func (l *Ledger) Snapshot() []AccountSnapshot {
	l.mu.RLock()
	out := make([]AccountSnapshot, 0, len(l.byNumber))
	for _, acct := range l.byNumber {
		out = append(out, acct.Snapshot())
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Hold blocks amount on the account under its lock.
func (l *Ledger) Hold(ctx context.Context, number int, amount decimal.Decimal) (bool, error) {
	return l.withAccount(ctx, "hold", number, func(a *Account) bool {
		return a.BlockFunds(amount)
	})
}

// Release unblocks amount on the account under its lock.
func (l *Ledger) Release(ctx context.Context, number int, amount decimal.Decimal) (bool, error) {
	return l.withAccount(ctx, "release", number, func(a *Account) bool {
		return a.UnblockFunds(amount)
	})
}

// Settle removes blocked money from the account under its lock.
func (l *Ledger) Settle(ctx context.Context, number int, amount decimal.Decimal) (bool, error) {
	return l.withAccount(ctx, "settle", number, func(a *Account) bool {
		return a.Settle(amount)
	})
}

// Deposit credits the account under its lock.
func (l *Ledger) Deposit(ctx context.Context, number int, amount decimal.Decimal) (bool, error) {
	return l.withAccount(ctx, "deposit", number, func(a *Account) bool {
		return a.Deposit(amount)
	})
}

// Transfer moves blocked money between two accounts holding both locks,
// acquired in account-number order.
func (l *Ledger) Transfer(ctx context.Context, from, to int, amount decimal.Decimal) (bool, error) {
	src, ok := l.Account(from)
	if !ok {
		observability.RecordLedgerOp("transfer", false)
		return false, fmt.Errorf("%w: #%d", ErrAccountNotFound, from)
	}
	dst, ok := l.Account(to)
	if !ok {
		observability.RecordLedgerOp("transfer", false)
		return false, fmt.Errorf("%w: #%d", ErrAccountNotFound, to)
	}
	fromTok, toTok, err := l.locks.LockPair(ctx, from, to)
	if err != nil {
		return false, err
	}
	defer l.locks.UnlockPair(from, fromTok, to, toTok)

	done := src.TransferTo(dst, amount)
	observability.RecordLedgerOp("transfer", done)
	return done, nil
}

func (l *Ledger) withAccount(ctx context.Context, op string, number int, fn func(*Account) bool) (bool, error) {
	acct, ok := l.Account(number)
	if !ok {
		observability.RecordLedgerOp(op, false)
		return false, fmt.Errorf("%w: #%d", ErrAccountNotFound, number)
	}
	tok, err := l.locks.Lock(ctx, number)
	if err != nil {
		return false, err
	}
	defer l.locks.Unlock(number, tok)

	done := fn(acct)
	observability.RecordLedgerOp(op, done)
	return done, nil
}
