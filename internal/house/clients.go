package house

import (
	"sort"

	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Peer is one connection as the house sees it.
type Peer interface {
	ID() string
	Send(protocol.Message) error
	Stop()
}

type client struct {
	agent protocol.AgentInfo
	peer  Peer
}

// Clients is the registry of agents registered with the house, keyed by
// account number. Callers hold the house lock.
type Clients struct {
	byAccount map[int]client
}

func NewClients() *Clients {
	return &Clients{byAccount: make(map[int]client)}
}

func (c *Clients) Add(agent protocol.AgentInfo, peer Peer) {
	c.byAccount[agent.Account] = client{agent: agent, peer: peer}
}

func (c *Clients) Remove(account int) bool {
	if _, ok := c.byAccount[account]; !ok {
		return false
	}
	delete(c.byAccount, account)
	return true
}

// RemovePeer drops every registration made over the given connection.
func (c *Clients) RemovePeer(id string) int {
	n := 0
	for account, cl := range c.byAccount {
		if cl.peer.ID() == id {
			delete(c.byAccount, account)
			n++
		}
	}
	return n
}

func (c *Clients) Get(account int) (protocol.AgentInfo, Peer, bool) {
	cl, ok := c.byAccount[account]
	return cl.agent, cl.peer, ok
}

func (c *Clients) Len() int {
	return len(c.byAccount)
}

// Broadcast sends msg to every registered client. A failed send only
// affects that client.
func (c *Clients) Broadcast(msg protocol.Message) {
	for account, cl := range c.byAccount {
		if err := cl.peer.Send(msg); err != nil {
			log.Debug().Err(err).Int("account", account).Str("type", msg.Type.String()).Msg("house.Clients broadcast send failed")
		}
	}
}

// Snapshot lists registered agents by account number.
func (c *Clients) Snapshot() []protocol.AgentInfo {
	out := make([]protocol.AgentInfo, 0, len(c.byAccount))
	for _, cl := range c.byAccount {
		out = append(out, cl.agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}
