package agent

import (
	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// EventKind names what happened to the agent.
type EventKind string

const (
	EventRegistered     EventKind = "registered"
	EventBalance        EventKind = "balance"
	EventAccountTotal   EventKind = "account_total"
	EventHouses         EventKind = "houses"
	EventListing        EventKind = "listing"
	EventBidAccepted    EventKind = "bid_accepted"
	EventBidRejected    EventKind = "bid_rejected"
	EventOutbid         EventKind = "outbid"
	EventWon            EventKind = "won"
	EventTransferred    EventKind = "transferred"
	EventTransferFailed EventKind = "transfer_failed"
	EventHouseLeft      EventKind = "house_left"
)

// Event is one notification for the presentation layer.
type Event struct {
	Kind    EventKind
	House   string
	Bid     *protocol.Bid
	Item    *protocol.Item
	Items   []protocol.Item
	Houses  []protocol.HouseInfo
	Balance decimal.Decimal
}

// Notifier receives agent events. Notify is called outside the agent's locks
// and must not block for long.
type Notifier interface {
	Notify(Event)
}

type NotifierFunc func(Event)

func (f NotifierFunc) Notify(ev Event) {
	f(ev)
}

type NopNotifier struct{}

func (NopNotifier) Notify(Event) {}

// LogNotifier writes every event as a structured log line.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) LogNotifier {
	return LogNotifier{logger: logger}
}

func (n LogNotifier) Notify(ev Event) {
	e := n.logger.Info().Str("event", string(ev.Kind))
	if ev.House != "" {
		e = e.Str("house", ev.House)
	}
	if ev.Bid != nil {
		e = e.Int("item", ev.Bid.Item).Str("amount", ev.Bid.Amount.String())
		if ev.Bid.Status != "" {
			e = e.Str("status", ev.Bid.Status)
		}
	}
	if ev.Item != nil {
		e = e.Int("item", ev.Item.Number).Str("description", ev.Item.Description).Str("price", ev.Item.CurrentBid.String())
	}
	switch ev.Kind {
	case EventListing:
		e = e.Int("items", len(ev.Items))
	case EventHouses:
		e = e.Int("houses", len(ev.Houses))
	case EventRegistered, EventBalance, EventAccountTotal:
		e = e.Str("balance", ev.Balance.String())
	}
	e.Msg("agent.notify")
}
