package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/auctionctl/internal/agent"
	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/shopspring/decimal"
)

var (
	ErrAgentRefused = errors.New("agent refused request")
	ErrNotFound     = errors.New("not found")
)

// RemoteAgentAdmin talks to one agent's admin HTTP API.
type RemoteAgentAdmin struct {
	addr string
	http *http.Client
}

func NewRemoteAgentAdmin(addr string) *RemoteAgentAdmin {
	return &RemoteAgentAdmin{
		addr: strings.TrimSpace(addr),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *RemoteAgentAdmin) Address() string {
	return c.addr
}

func (c *RemoteAgentAdmin) Status() (agent.Status, error) {
	var out agent.Status
	err := c.call(http.MethodGet, "/status", nil, &out)
	return out, err
}

func (c *RemoteAgentAdmin) Listings() (map[string][]protocol.Item, error) {
	var out struct {
		Listings map[string][]protocol.Item `json:"listings"`
	}
	err := c.call(http.MethodGet, "/listings", nil, &out)
	return out.Listings, err
}

func (c *RemoteAgentAdmin) Inventory() ([]agent.Won, error) {
	var out struct {
		Inventory []agent.Won `json:"inventory"`
	}
	err := c.call(http.MethodGet, "/inventory", nil, &out)
	return out.Inventory, err
}

func (c *RemoteAgentAdmin) Bid(house string, item int, amount decimal.Decimal) error {
	req := struct {
		House  string          `json:"house"`
		Item   int             `json:"item"`
		Amount decimal.Decimal `json:"amount"`
	}{house, item, amount}
	return c.call(http.MethodPost, "/bids", req, nil)
}

func (c *RemoteAgentAdmin) RefreshBalance() error {
	return c.call(http.MethodPost, "/balance", nil, nil)
}

func (c *RemoteAgentAdmin) Leave() error {
	return c.call(http.MethodPost, "/leave", nil, nil)
}

func (c *RemoteAgentAdmin) call(method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL()+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		kind := ErrAgentRefused
		if resp.StatusCode == http.StatusNotFound {
			kind = ErrNotFound
		}
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("%w: %s", kind, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *RemoteAgentAdmin) baseURL() string {
	if strings.HasPrefix(c.addr, "http://") || strings.HasPrefix(c.addr, "https://") {
		return strings.TrimRight(c.addr, "/")
	}
	return "http://" + c.addr
}
