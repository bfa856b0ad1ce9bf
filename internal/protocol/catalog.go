package protocol

import "fmt"

// Variant names one payload member.
type Variant uint8

const (
	VariantBid Variant = iota + 1
	VariantAgent
	VariantAccount
	VariantHouse
	VariantTransfer
	VariantItem
	VariantListing
	VariantBalance
	VariantHolder
)

func (v Variant) String() string {
	switch v {
	case VariantBid:
		return "bid"
	case VariantAgent:
		return "agent"
	case VariantAccount:
		return "account"
	case VariantHouse:
		return "house"
	case VariantTransfer:
		return "transfer"
	case VariantItem:
		return "item"
	case VariantListing:
		return "listing"
	case VariantBalance:
		return "balance"
	case VariantHolder:
		return "holder"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// ValidationError reports a message whose payload does not match its type.
type ValidationError struct {
	Type   MessageType
	Reason string
	err    error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("protocol: message_type=%s: %s", e.Type, e.Reason)
}

func (e ValidationError) Unwrap() error {
	return e.err
}

// accepts lists the payload variants each type may carry; any one suffices.
// Types absent from the table carry no payload.
var accepts = map[MessageType][]Variant{
	TypeNewAccount:          {VariantAccount},
	TypeNewAuctionHouse:     {VariantHouse},
	TypeHoldFunds:           {VariantBid},
	TypeReleaseFunds:        {VariantBid},
	TypeFundsUnblocked:      {VariantBid},
	TypeFundsNotUnblocked:   {VariantBid},
	TypeTransferFunds:       {VariantTransfer},
	TypeFundsHeld:           {VariantBid},
	TypeFundsNotHeld:        {VariantBid},
	TypeFundsTransferred:    {VariantBid},
	TypeFundsNotTransferred: {VariantBid, VariantTransfer},
	TypeBid:                 {VariantBid},
	TypeBidAccepted:         {VariantBid},
	TypeBidRejected:         {VariantBid},
	TypeOutbid:              {VariantBid},
	TypeWinner:              {VariantItem},
	TypeListing:             {VariantListing},
	TypeRegister:            {VariantAgent},
	TypeDisconnect:          {VariantAgent, VariantHouse},
	TypeAuctionHouseRemoved: {VariantHouse},
	TypeBalance:             {VariantAgent, VariantHolder, VariantBalance},
	TypeAccountBalance:      {VariantAgent, VariantAccount},
}

// Validate checks that msg carries a payload variant its type accepts.
func Validate(msg Message) error {
	if !msg.Type.Valid() {
		return ValidationError{Type: msg.Type, Reason: "unknown message type", err: ErrUnknownMessageType}
	}
	want, ok := accepts[msg.Type]
	if !ok {
		return nil
	}
	for _, v := range want {
		if msg.Payload.has(v) {
			return nil
		}
	}
	return ValidationError{
		Type:   msg.Type,
		Reason: fmt.Sprintf("expected one of %v", want),
		err:    ErrMissingVariant,
	}
}

func (p Payload) has(v Variant) bool {
	switch v {
	case VariantBid:
		return p.Bid != nil
	case VariantAgent:
		return p.Agent != nil
	case VariantAccount:
		return p.Account != nil
	case VariantHouse:
		return p.House != nil
	case VariantTransfer:
		return p.Transfer != nil
	case VariantItem:
		return p.Item != nil
	case VariantListing:
		return p.Listing != nil
	case VariantBalance:
		return p.Balance != nil
	case VariantHolder:
		return p.Holder != ""
	default:
		return false
	}
}
