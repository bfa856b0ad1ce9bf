package bank

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Account is one ledger entry. 0 <= blocked <= total always holds.
//
// The field mutex only keeps reads consistent; request handling additionally
// serializes on the account's entry in the LockTable.
type Account struct {
	number int
	holder string

	mu      sync.RWMutex
	total   decimal.Decimal
	blocked decimal.Decimal
}

// AccountSnapshot is a point-in-time copy of an account.
type AccountSnapshot struct {
	Number    int             `json:"number"`
	Holder    string          `json:"holder"`
	Total     decimal.Decimal `json:"total"`
	Blocked   decimal.Decimal `json:"blocked"`
	Available decimal.Decimal `json:"available"`
}

func newAccount(number int, holder string, initial decimal.Decimal) *Account {
	if initial.IsNegative() {
		initial = decimal.Zero
	}
	return &Account{number: number, holder: holder, total: initial, blocked: decimal.Zero}
}

func (a *Account) Number() int {
	return a.number
}

func (a *Account) Holder() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.holder
}

func (a *Account) Total() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.total
}

func (a *Account) Blocked() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.blocked
}

func (a *Account) Available() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.total.Sub(a.blocked)
}

func (a *Account) Snapshot() AccountSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return AccountSnapshot{
		Number:    a.number,
		Holder:    a.holder,
		Total:     a.total,
		Blocked:   a.blocked,
		Available: a.total.Sub(a.blocked),
	}
}

// BlockFunds reserves amount against a pending bid. It succeeds iff
// amount <= available.
func (a *Account) BlockFunds(amount decimal.Decimal) bool {
	if amount.IsNegative() {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount.GreaterThan(a.total.Sub(a.blocked)) {
		return false
	}
	a.blocked = a.blocked.Add(amount)
	return true
}

// UnblockFunds returns a previous reservation. It succeeds iff amount <= blocked.
func (a *Account) UnblockFunds(amount decimal.Decimal) bool {
	if amount.IsNegative() {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount.GreaterThan(a.blocked) {
		return false
	}
	a.blocked = a.blocked.Sub(amount)
	return true
}

// Settle moves blocked money out of the account without a destination.
func (a *Account) Settle(amount decimal.Decimal) bool {
	if amount.IsNegative() {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount.GreaterThan(a.blocked) {
		return false
	}
	a.blocked = a.blocked.Sub(amount)
	a.total = a.total.Sub(amount)
	return true
}

// TransferTo moves blocked money from a into to. It succeeds iff
// amount <= a.blocked.
func (a *Account) TransferTo(to *Account, amount decimal.Decimal) bool {
	if to == nil || amount.IsNegative() {
		return false
	}
	if to == a {
		return a.UnblockFunds(amount)
	}
	first, second := a, to
	if second.number < first.number {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if amount.GreaterThan(a.blocked) {
		return false
	}
	a.blocked = a.blocked.Sub(amount)
	a.total = a.total.Sub(amount)
	to.total = to.total.Add(amount)
	return true
}

// Deposit adds money to the account.
func (a *Account) Deposit(amount decimal.Decimal) bool {
	if amount.IsNegative() {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total = a.total.Add(amount)
	return true
}
