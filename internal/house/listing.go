package house

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/shopspring/decimal"
)

var (
	ErrItemNotListed = errors.New("house: item not listed")
	ErrItemSettling  = errors.New("house: item is settling")
	ErrBidTooLow     = errors.New("house: bid below minimum")
)

var minBidStep = decimal.RequireFromString("1.05")

// Listing is the active/backlog split of a house's items. Only active items
// take bids; selling one promotes the oldest backlog item.
type Listing struct {
	slots        int
	active       []protocol.Item
	backlog      []protocol.Item
	settling     map[int]bool
	houseAccount int
}

// NewListing fills up to slots active items from items, in order, and keeps
// the rest as backlog.
func NewListing(items []protocol.Item, slots int) *Listing {
	if slots <= 0 {
		slots = 1
	}
	l := &Listing{
		slots:    slots,
		settling: make(map[int]bool),
	}
	for _, it := range items {
		if len(l.active) < slots {
			l.active = append(l.active, it)
		} else {
			l.backlog = append(l.backlog, it)
		}
	}
	return l
}

// SetHouseAccount stamps every item with the house's bank account.
func (l *Listing) SetHouseAccount(account int) {
	l.houseAccount = account
	for i := range l.active {
		l.active[i].HouseAccount = account
	}
	for i := range l.backlog {
		l.backlog[i].HouseAccount = account
	}
}

// Items copies the active items.
func (l *Listing) Items() []protocol.Item {
	out := make([]protocol.Item, len(l.active))
	copy(out, l.active)
	return out
}

func (l *Listing) Backlog() int {
	return len(l.backlog)
}

func (l *Listing) index(number int) int {
	for i, it := range l.active {
		if it.Number == number {
			return i
		}
	}
	return -1
}

func (l *Listing) Find(number int) (protocol.Item, bool) {
	if i := l.index(number); i >= 0 {
		return l.active[i], true
	}
	return protocol.Item{}, false
}

func (l *Listing) Settling(number int) bool {
	return l.settling[number]
}

// Qualifies reports why bid cannot currently be taken, or nil.
func (l *Listing) Qualifies(bid protocol.Bid) error {
	it, ok := l.Find(bid.Item)
	if !ok {
		return fmt.Errorf("%w: #%d", ErrItemNotListed, bid.Item)
	}
	if l.settling[bid.Item] {
		return fmt.Errorf("%w: #%d", ErrItemSettling, bid.Item)
	}
	if bid.Amount.LessThan(it.MinBid) {
		return fmt.Errorf("%w: %s < %s", ErrBidTooLow, bid.Amount, it.MinBid)
	}
	return nil
}

// Accept records bid as the item's high bid and raises the minimum. It
// returns the item as it was before and after.
func (l *Listing) Accept(bid protocol.Bid, bidder string, at time.Time) (prev, next protocol.Item, err error) {
	if err := l.Qualifies(bid); err != nil {
		return protocol.Item{}, protocol.Item{}, err
	}
	i := l.index(bid.Item)
	prev = l.active[i]
	next = prev
	next.CurrentBid = bid.Amount
	next.Bidder = bidder
	next.BidderAccount = bid.Account
	start := at
	next.BidTime = &start
	next.MinBid = raiseMinBid(bid.Amount)
	l.active[i] = next
	return prev, next, nil
}

// raiseMinBid is round(cur * 1.05), or the next whole unit above cur when
// rounding does not move past it.
func raiseMinBid(cur decimal.Decimal) decimal.Decimal {
	next := cur.Mul(minBidStep).Round(0)
	if next.GreaterThan(cur) {
		return next
	}
	return cur.Floor().Add(decimal.NewFromInt(1))
}

// BeginSettlement closes the item to further bids.
func (l *Listing) BeginSettlement(number int) (protocol.Item, bool) {
	it, ok := l.Find(number)
	if !ok {
		return protocol.Item{}, false
	}
	l.settling[number] = true
	return it, true
}

// Sold removes the item and promotes one backlog item into its place.
func (l *Listing) Sold(number int) (protocol.Item, bool) {
	i := l.index(number)
	if i < 0 {
		return protocol.Item{}, false
	}
	it := l.active[i]
	delete(l.settling, number)
	if len(l.backlog) > 0 {
		next := l.backlog[0]
		l.backlog = l.backlog[1:]
		next.HouseAccount = l.houseAccount
		l.active[i] = next
		return it, true
	}
	l.active = append(l.active[:i], l.active[i+1:]...)
	return it, true
}

// Reset clears the item's bid and reopens it. The minimum bid stays where
// the last accepted bid left it.
func (l *Listing) Reset(number int) (protocol.Item, bool) {
	i := l.index(number)
	if i < 0 {
		return protocol.Item{}, false
	}
	it := &l.active[i]
	it.CurrentBid = decimal.Zero
	it.Bidder = ""
	it.BidderAccount = 0
	it.BidTime = nil
	delete(l.settling, number)
	return *it, true
}

func (l *Listing) ClearBacklog() {
	l.backlog = nil
}

func (l *Listing) HasActiveBids() bool {
	for _, it := range l.active {
		if it.HasBid() {
			return true
		}
	}
	return false
}

// PruneUnbid drops active items nobody is bidding on.
func (l *Listing) PruneUnbid() {
	kept := l.active[:0]
	for _, it := range l.active {
		if it.HasBid() {
			kept = append(kept, it)
		}
	}
	l.active = kept
}
