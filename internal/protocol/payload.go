package protocol

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HouseHolderPrefix marks ledger holder names that belong to auction houses.
const HouseHolderPrefix = "AuctionHouse"

// Bid is one bid as it travels agent -> house -> bank and back. Status is an
// advisory label for presentation only.
type Bid struct {
	Account int             `json:"account"`
	Item    int             `json:"item"`
	Amount  decimal.Decimal `json:"amount"`
	Status  string          `json:"status,omitempty"`
}

// WithStatus returns a copy of b carrying a new status label.
func (b Bid) WithStatus(status string) Bid {
	b.Status = status
	return b
}

// AgentInfo identifies an agent to houses and the bank.
type AgentInfo struct {
	Name    string `json:"name"`
	Account int    `json:"account"`
}

// AccountInfo is the account registration request/response shape.
type AccountInfo struct {
	Name    string          `json:"name"`
	Account int             `json:"account"`
	Balance decimal.Decimal `json:"balance"`
}

// HouseInfo describes an auction house endpoint and its bank account.
// Account is zero until the bank assigns one.
type HouseInfo struct {
	Host    string          `json:"host"`
	Port    int             `json:"port"`
	Account int             `json:"account"`
	Balance decimal.Decimal `json:"balance"`
}

// Name is the ledger holder name for the house.
func (h HouseInfo) Name() string {
	return HouseHolderName(h.Account)
}

// Addr is the dialable host:port, also used as the registry key.
func (h HouseInfo) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

func HouseHolderName(account int) string {
	return fmt.Sprintf("%s-%d", HouseHolderPrefix, account)
}

// IsHouseHolder reports whether a ledger holder name belongs to a house.
func IsHouseHolder(name string) bool {
	return strings.Contains(name, HouseHolderPrefix)
}

// Item is one listing entry as owned by an auction house.
type Item struct {
	Number        int             `json:"number"`
	Description   string          `json:"description"`
	MinBid        decimal.Decimal `json:"min_bid"`
	CurrentBid    decimal.Decimal `json:"current_bid"`
	Bidder        string          `json:"bidder,omitempty"`
	BidderAccount int             `json:"bidder_account,omitempty"`
	BidTime       *time.Time      `json:"bid_time,omitempty"`
	HouseAccount  int             `json:"house_account"`
}

// HasBid reports whether the item has an active high bid.
func (i Item) HasBid() bool {
	return i.BidTime != nil
}

// Transfer asks the bank to settle a won item.
type Transfer struct {
	From   int             `json:"from"`
	To     int             `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	Item   Item            `json:"item"`
}

// Listing is the set of items a house currently offers.
type Listing struct {
	Items []Item `json:"items"`
}

// Find returns the listed item with the given number.
func (l Listing) Find(number int) (Item, bool) {
	for _, it := range l.Items {
		if it.Number == number {
			return it, true
		}
	}
	return Item{}, false
}
