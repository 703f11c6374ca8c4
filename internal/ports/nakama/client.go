// Package nakama speaks the Nakama realtime protocol over a websocket:
// protojson-encoded rtapi envelopes, match data keyed by op code with JSON
// payloads. It exposes the authoritative server as a ports.GameService and
// feeds row-level change events and heartbeats to the realtime adapter.
package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/heroiclabs/nakama-common/rtapi"
	"google.golang.org/protobuf/encoding/protojson"

	"dominoclient/internal/ports"
)

// DefaultPingInterval keeps the socket (and the liveness heartbeat) warm.
const DefaultPingInterval = 5 * time.Second

// ErrClosed is returned for calls after the connection went away.
var ErrClosed = errors.New("connection closed")

// Client is a realtime connection to one Nakama server session.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	closed  bool
	cid     int64
	pending map[string]chan *rtapi.Envelope // cid-correlated replies
	acks    map[string]chan actionAck      // op-id-correlated action acks

	// OnEvent receives decoded row-level change events. OnHeartbeat fires
	// for any traffic that carries no state. Set both before JoinMatch.
	OnEvent     func(ports.ChangeEvent)
	OnHeartbeat func()

	pingInterval time.Duration
	stop         chan struct{}
	stopOnce     sync.Once

	logger ports.Logger
}

// Dial opens the realtime socket. The session token rides the query string,
// the way Nakama's own clients connect.
func Dial(ctx context.Context, rawURL, token string, logger ports.Logger) (*Client, error) {
	if logger == nil {
		logger = ports.NopLogger{}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}

	c := &Client{
		conn:         conn,
		pending:      make(map[string]chan *rtapi.Envelope),
		acks:         make(map[string]chan actionAck),
		pingInterval: DefaultPingInterval,
		stop:         make(chan struct{}),
		logger:       logger,
	}
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// Close tears the connection down and fails all waiters.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	c.mu.Lock()
	c.closed = true
	for cid, ch := range c.pending {
		close(ch)
		delete(c.pending, cid)
	}
	for id, ch := range c.acks {
		close(ch)
		delete(c.acks, id)
	}
	c.mu.Unlock()
	return c.conn.Close()
}

// JoinMatch joins the given match. The server replies with the match record
// (or an error) on the same cid, then streams the full snapshot as match
// data.
func (c *Client) JoinMatch(ctx context.Context, matchID string) error {
	env := &rtapi.Envelope{
		Message: &rtapi.Envelope_MatchJoin{
			MatchJoin: &rtapi.MatchJoin{
				Id: &rtapi.MatchJoin_MatchId{MatchId: matchID},
			},
		},
	}
	reply, err := c.call(ctx, env)
	if err != nil {
		return fmt.Errorf("join match %s: %w", matchID, err)
	}
	if rerr := reply.GetError(); rerr != nil {
		return fmt.Errorf("join match %s: %s", matchID, rerr.Message)
	}
	c.logger.Info("nakama: joined match %s", matchID)
	return nil
}

// SendAction submits one action as match data and waits for the
// op-id-correlated ack.
func (c *Client) SendAction(ctx context.Context, matchID string, opCode int64, payload movePayload) (actionAck, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return actionAck{}, ErrClosed
	}
	ch := make(chan actionAck, 1)
	c.acks[payload.OpID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.acks, payload.OpID)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(payload)
	if err != nil {
		return actionAck{}, err
	}
	env := &rtapi.Envelope{
		Message: &rtapi.Envelope_MatchDataSend{
			MatchDataSend: &rtapi.MatchDataSend{
				MatchId:  matchID,
				OpCode:   opCode,
				Data:     data,
				Reliable: true,
			},
		},
	}
	if err := c.send(env); err != nil {
		return actionAck{}, err
	}

	select {
	case ack, ok := <-ch:
		if !ok {
			return actionAck{}, ErrClosed
		}
		return ack, nil
	case <-ctx.Done():
		return actionAck{}, ctx.Err()
	}
}

// call sends an envelope with a fresh cid and waits for the reply.
func (c *Client) call(ctx context.Context, env *rtapi.Envelope) (*rtapi.Envelope, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.cid++
	cid := strconv.FormatInt(c.cid, 10)
	ch := make(chan *rtapi.Envelope, 1)
	c.pending[cid] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, cid)
		c.mu.Unlock()
	}()

	env.Cid = cid
	if err := c.send(env); err != nil {
		return nil, err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) send(env *rtapi.Envelope) error {
	data, err := protojson.Marshal(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stop:
			default:
				c.logger.Warn("nakama: read loop ended: %v", err)
			}
			c.Close()
			return
		}
		var env rtapi.Envelope
		if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(data, &env); err != nil {
			c.logger.Warn("nakama: dropping undecodable envelope: %v", err)
			continue
		}
		c.dispatch(&env)
	}
}

func (c *Client) dispatch(env *rtapi.Envelope) {
	if cid := env.Cid; cid != "" {
		c.mu.Lock()
		ch, ok := c.pending[cid]
		if ok {
			delete(c.pending, cid)
		}
		c.mu.Unlock()
		if ok {
			ch <- env
		}
		return
	}

	if md := env.GetMatchData(); md != nil {
		c.handleMatchData(md)
		return
	}
	// Pongs, presence churn and anything else unrecognized still prove the
	// link is alive.
	c.heartbeat()
}

func (c *Client) handleMatchData(md *rtapi.MatchData) {
	now := time.Now()
	switch md.OpCode {
	case OpActionAck:
		var ack actionAck
		if err := json.Unmarshal(md.Data, &ack); err != nil {
			c.logger.Warn("nakama: bad action ack: %v", err)
			return
		}
		c.mu.Lock()
		ch, ok := c.acks[ack.OpID]
		c.mu.Unlock()
		if ok {
			ch <- ack
		} else {
			c.logger.Debug("nakama: ack for unknown op %s dropped", ack.OpID)
		}
		c.heartbeat()

	case OpMatchUpdated:
		var w wireMatch
		if err := json.Unmarshal(md.Data, &w); err != nil {
			c.logger.Warn("nakama: bad match row: %v", err)
			return
		}
		match, err := toDomainMatch(w)
		if err != nil {
			c.logger.Warn("nakama: unusable match row: %v", err)
			return
		}
		c.emit(ports.ChangeEvent{Kind: ports.ChangeUpdate, Table: ports.TableMatch, Match: match, ReceivedAt: now})

	case OpPlayerUpdated:
		var ev playerEvent
		if err := json.Unmarshal(md.Data, &ev); err != nil {
			c.logger.Warn("nakama: bad player row: %v", err)
			return
		}
		player, err := toDomainPlayer(ev.Player)
		if err != nil {
			c.logger.Warn("nakama: unusable player row: %v", err)
			return
		}
		c.emit(ports.ChangeEvent{Kind: changeKind(ev.Kind), Table: ports.TablePlayer, Player: player, ReceivedAt: now})

	case OpMatchSnapshot:
		var w wireSnapshot
		if err := json.Unmarshal(md.Data, &w); err != nil {
			c.logger.Warn("nakama: bad snapshot: %v", err)
			return
		}
		snap, err := toDomainSnapshot(w)
		if err != nil {
			c.logger.Warn("nakama: unusable snapshot: %v", err)
			return
		}
		// A full snapshot is the match row plus every player row.
		c.emit(ports.ChangeEvent{Kind: ports.ChangeUpdate, Table: ports.TableMatch, Match: &snap.Match, ReceivedAt: now})
		for _, p := range snap.Players {
			c.emit(ports.ChangeEvent{Kind: ports.ChangeUpdate, Table: ports.TablePlayer, Player: p, ReceivedAt: now})
		}

	default:
		c.logger.Debug("nakama: ignoring op code %d", md.OpCode)
		c.heartbeat()
	}
}

func (c *Client) emit(ev ports.ChangeEvent) {
	if c.OnEvent != nil {
		c.OnEvent(ev)
	}
}

func (c *Client) heartbeat() {
	if c.OnHeartbeat != nil {
		c.OnHeartbeat()
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			env := &rtapi.Envelope{Message: &rtapi.Envelope_Ping{Ping: &rtapi.Ping{}}}
			if err := c.send(env); err != nil {
				return
			}
		case <-c.stop:
			return
		}
	}
}
