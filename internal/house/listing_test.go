package house

import (
	"testing"
	"time"

	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/danmuck/auctionctl/internal/testutil/testlog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRaiseMinBid(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		cur, want string
	}{
		{"10", "11"},
		{"100", "105"},
		{"1", "2"},
		{"0.5", "1"},
		{"20", "21"},
		{"7.2", "8"},
	}
	for _, tc := range cases {
		got := raiseMinBid(decimal.RequireFromString(tc.cur))
		require.Equal(t, tc.want, got.String(), "cur=%s", tc.cur)
		require.True(t, got.GreaterThan(decimal.RequireFromString(tc.cur)))
	}
}

func TestListingAcceptAndQualify(t *testing.T) {
	testlog.Start(t)
	l := NewListing(testItems(2), 5)
	require.Len(t, l.Items(), 2)

	err := l.Qualifies(protocol.Bid{Item: 1, Amount: dec(9)})
	require.ErrorIs(t, err, ErrBidTooLow)
	err = l.Qualifies(protocol.Bid{Item: 7, Amount: dec(90)})
	require.ErrorIs(t, err, ErrItemNotListed)

	at := time.Now()
	prev, next, err := l.Accept(protocol.Bid{Account: 4, Item: 1, Amount: dec(10)}, "dora", at)
	require.NoError(t, err)
	require.False(t, prev.HasBid())
	require.True(t, next.HasBid())
	require.Equal(t, "11", next.MinBid.String())

	_, ok := l.BeginSettlement(1)
	require.True(t, ok)
	require.True(t, l.Settling(1))
	require.ErrorIs(t, l.Qualifies(protocol.Bid{Item: 1, Amount: dec(90)}), ErrItemSettling)

	reset, ok := l.Reset(1)
	require.True(t, ok)
	require.False(t, l.Settling(1))
	require.False(t, reset.HasBid())
	require.Equal(t, "11", reset.MinBid.String())
}

func TestListingSoldPromotesBacklog(t *testing.T) {
	testlog.Start(t)
	l := NewListing(testItems(5), 2)
	l.SetHouseAccount(3)
	require.Len(t, l.Items(), 2)
	require.Equal(t, 3, l.Backlog())

	_, ok := l.Sold(1)
	require.True(t, ok)
	items := l.Items()
	require.Len(t, items, 2)
	require.Equal(t, 3, items[0].Number)
	require.Equal(t, 3, items[0].HouseAccount)
	require.Equal(t, 2, items[1].Number)
	require.Equal(t, 2, l.Backlog())

	_, ok = l.Sold(2)
	require.True(t, ok)
	items = l.Items()
	require.Equal(t, []int{3, 4}, []int{items[0].Number, items[1].Number})
	require.Equal(t, 1, l.Backlog())

	_, ok = l.Sold(1)
	require.False(t, ok)

	l.ClearBacklog()
	_, ok = l.Sold(3)
	require.True(t, ok)
	require.Len(t, l.Items(), 1)
	require.Equal(t, 4, l.Items()[0].Number)
}
