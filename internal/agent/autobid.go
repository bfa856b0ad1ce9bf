package agent

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// AutoBidder periodically bids the minimum on a random listed item the agent
// does not already lead, when the cached balance covers it.
type AutoBidder struct {
	agent   *Agent
	limiter *rate.Limiter
	rng     *rand.Rand
}

func NewAutoBidder(a *Agent, every time.Duration, rng *rand.Rand) *AutoBidder {
	if every <= 0 {
		every = 5 * time.Second
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &AutoBidder{
		agent:   a,
		limiter: rate.NewLimiter(rate.Every(every), 1),
		rng:     rng,
	}
}

// Run bids until ctx is done.
func (b *AutoBidder) Run(ctx context.Context) error {
	for {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil
		}
		if _, _, err := b.Step(); err != nil {
			log.Debug().Err(err).Str("agent", b.agent.Name()).Msg("agent.AutoBidder step skipped")
		}
	}
}

type candidate struct {
	house string
	item  protocol.Item
}

// Step places at most one bid and reports which.
func (b *AutoBidder) Step() (house string, item protocol.Item, err error) {
	account := b.agent.Account()
	balance := b.agent.Balance()
	listings := b.agent.Listings()

	houses := make([]string, 0, len(listings))
	for addr := range listings {
		houses = append(houses, addr)
	}
	sort.Strings(houses)

	var picks []candidate
	for _, addr := range houses {
		for _, it := range listings[addr] {
			if it.HasBid() && it.BidderAccount == account {
				continue
			}
			if it.MinBid.GreaterThan(balance) {
				continue
			}
			picks = append(picks, candidate{house: addr, item: it})
		}
	}
	if len(picks) == 0 {
		return "", protocol.Item{}, ErrUnknownItem
	}
	pick := picks[b.rng.Intn(len(picks))]
	if err := b.agent.BidOnItem(pick.house, pick.item.Number, pick.item.MinBid); err != nil {
		return "", protocol.Item{}, err
	}
	return pick.house, pick.item, nil
}
