package protocol

import "fmt"

// MessageType is the closed set of message kinds exchanged between bank,
// auction houses and agents.
type MessageType uint32

const (
	TypeWaiting MessageType = iota
	TypeNewAccount
	TypeNewAuctionHouse
	TypeHoldFunds
	TypeReleaseFunds
	TypeFundsUnblocked
	TypeFundsNotUnblocked
	TypeTransferFunds
	TypeFundsHeld
	TypeFundsNotHeld
	TypeFundsTransferred
	TypeFundsNotTransferred
	TypeBid
	TypeBidAccepted
	TypeBidRejected
	TypeOutbid
	TypeWinner
	TypeListing
	TypeRegister
	TypeDisconnect
	TypeAuctionHouseRemoved
	TypeListAuctionHouses
	TypeBalance
	TypeAccountBalance

	typeSentinel
)

var typeNames = [...]string{
	TypeWaiting:             "WAITING",
	TypeNewAccount:          "NEW_ACCOUNT",
	TypeNewAuctionHouse:     "NEW_AUCTION_HOUSE",
	TypeHoldFunds:           "HOLD_FUNDS",
	TypeReleaseFunds:        "RELEASE_FUNDS",
	TypeFundsUnblocked:      "FUNDS_UNBLOCKED",
	TypeFundsNotUnblocked:   "FUNDS_NOT_UNBLOCKED",
	TypeTransferFunds:       "TRANSFER_FUNDS",
	TypeFundsHeld:           "FUNDS_HELD",
	TypeFundsNotHeld:        "FUNDS_NOT_HELD",
	TypeFundsTransferred:    "FUNDS_TRANSFERRED",
	TypeFundsNotTransferred: "FUNDS_NOT_TRANSFERRED",
	TypeBid:                 "BID",
	TypeBidAccepted:         "BID_ACCEPTED",
	TypeBidRejected:         "BID_REJECTED",
	TypeOutbid:              "OUTBID",
	TypeWinner:              "WINNER",
	TypeListing:             "LISTING",
	TypeRegister:            "REGISTER",
	TypeDisconnect:          "DISCONNECT",
	TypeAuctionHouseRemoved: "AUCTION_HOUSE_REMOVED",
	TypeListAuctionHouses:   "LIST_AUCTION_HOUSES",
	TypeBalance:             "BALANCE",
	TypeAccountBalance:      "ACCOUNT_BALANCE",
}

func (t MessageType) Valid() bool {
	return t < typeSentinel
}

func (t MessageType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("MessageType(%d)", uint32(t))
	}
	return typeNames[t]
}
