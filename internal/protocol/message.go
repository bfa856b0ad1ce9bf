package protocol

import "github.com/shopspring/decimal"

// Payload carries at most one variant per message; which one is expected
// depends on the message type (see Validate).
type Payload struct {
	Bid      *Bid             `json:"bid,omitempty"`
	Agent    *AgentInfo       `json:"agent,omitempty"`
	Account  *AccountInfo     `json:"account,omitempty"`
	House    *HouseInfo       `json:"house,omitempty"`
	Houses   []HouseInfo      `json:"houses,omitempty"`
	Transfer *Transfer        `json:"transfer,omitempty"`
	Item     *Item            `json:"item,omitempty"`
	Listing  *Listing         `json:"listing,omitempty"`
	Balance  *decimal.Decimal `json:"balance,omitempty"`
	Holder   string           `json:"holder,omitempty"`
}

// Message is one decoded protocol message.
type Message struct {
	ID      uint64
	Type    MessageType
	Payload Payload
}

// Waiting is the sentinel a dispatcher returns when no reply is due.
func Waiting() Message {
	return Message{Type: TypeWaiting}
}

func (m Message) IsWaiting() bool {
	return m.Type == TypeWaiting
}

func BidMessage(t MessageType, b Bid) Message {
	return Message{Type: t, Payload: Payload{Bid: &b}}
}

func AgentMessage(t MessageType, a AgentInfo) Message {
	return Message{Type: t, Payload: Payload{Agent: &a}}
}

func AccountMessage(t MessageType, a AccountInfo) Message {
	return Message{Type: t, Payload: Payload{Account: &a}}
}

func HouseMessage(t MessageType, h HouseInfo) Message {
	return Message{Type: t, Payload: Payload{House: &h}}
}

func HousesMessage(houses []HouseInfo) Message {
	out := make([]HouseInfo, len(houses))
	copy(out, houses)
	return Message{Type: TypeListAuctionHouses, Payload: Payload{Houses: out}}
}

func TransferMessage(t MessageType, tr Transfer) Message {
	return Message{Type: t, Payload: Payload{Transfer: &tr}}
}

func ItemMessage(t MessageType, it Item) Message {
	return Message{Type: t, Payload: Payload{Item: &it}}
}

func ListingMessage(items []Item) Message {
	out := make([]Item, len(items))
	copy(out, items)
	return Message{Type: TypeListing, Payload: Payload{Listing: &Listing{Items: out}}}
}

func BalanceMessage(amount decimal.Decimal) Message {
	return Message{Type: TypeBalance, Payload: Payload{Balance: &amount}}
}

// HolderMessage addresses a ledger holder by name, e.g. a house balance query.
func HolderMessage(t MessageType, holder string) Message {
	return Message{Type: t, Payload: Payload{Holder: holder}}
}
