package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/heroiclabs/nakama-common/rtapi"
	"google.golang.org/protobuf/encoding/protojson"

	"dominoclient/internal/domain"
	"dominoclient/internal/ports"
)

// fakeServer upgrades one websocket connection and hands decoded envelopes
// to the handler, which writes replies on the same connection.
func fakeServer(t *testing.T, handle func(conn *websocket.Conn, env *rtapi.Envelope)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env rtapi.Envelope
			if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(data, &env); err != nil {
				continue
			}
			handle(conn, &env)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeEnv(t *testing.T, conn *websocket.Conn, env *rtapi.Envelope) {
	t.Helper()
	data, err := protojson.Marshal(env)
	if err != nil {
		t.Error(err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Error(err)
	}
}

func dialTest(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, "session-token", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestJoinMatch(t *testing.T) {
	var wmu sync.Mutex
	url := fakeServer(t, func(conn *websocket.Conn, env *rtapi.Envelope) {
		join := env.GetMatchJoin()
		if join == nil {
			return
		}
		wmu.Lock()
		defer wmu.Unlock()
		writeEnv(t, conn, &rtapi.Envelope{
			Cid:     env.Cid,
			Message: &rtapi.Envelope_Match{Match: &rtapi.Match{MatchId: join.GetMatchId()}},
		})
	})
	c := dialTest(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.JoinMatch(ctx, "m1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
}

func TestJoinMatchServerError(t *testing.T) {
	var wmu sync.Mutex
	url := fakeServer(t, func(conn *websocket.Conn, env *rtapi.Envelope) {
		if env.GetMatchJoin() == nil {
			return
		}
		wmu.Lock()
		defer wmu.Unlock()
		writeEnv(t, conn, &rtapi.Envelope{
			Cid:     env.Cid,
			Message: &rtapi.Envelope_Error{Error: &rtapi.Error{Code: 4, Message: "match not found"}},
		})
	})
	c := dialTest(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.JoinMatch(ctx, "nope"); err == nil {
		t.Fatal("expected join error")
	}
}

func TestSubmitMoveRoundTrip(t *testing.T) {
	var wmu sync.Mutex
	url := fakeServer(t, func(conn *websocket.Conn, env *rtapi.Envelope) {
		send := env.GetMatchDataSend()
		if send == nil || send.OpCode != OpPlayPiece {
			return
		}
		var payload movePayload
		if err := json.Unmarshal(send.Data, &payload); err != nil {
			t.Error(err)
			return
		}
		ack := actionAck{
			OpID:   payload.OpID,
			Status: "ok",
			Snapshot: &wireSnapshot{
				Match: wireMatch{
					ID:            send.MatchId,
					Status:        "active",
					Board:         []any{[]any{float64(payload.Piece.Primary), float64(payload.Piece.Secondary)}},
					CurrentTurnID: "bob",
				},
				Players: []wirePlayer{{UserID: "alice", Seat: 0, Hand: []any{}}},
			},
		}
		data, err := json.Marshal(ack)
		if err != nil {
			t.Error(err)
			return
		}
		wmu.Lock()
		defer wmu.Unlock()
		writeEnv(t, conn, &rtapi.Envelope{
			Message: &rtapi.Envelope_MatchData{
				MatchData: &rtapi.MatchData{MatchId: send.MatchId, OpCode: OpActionAck, Data: data},
			},
		})
	})
	svc := NewService(dialTest(t, url))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := svc.SubmitMove(ctx, "m1", domain.NewPiece(3, 5), domain.SideLeft)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if snap == nil {
		t.Fatal("expected authoritative snapshot")
	}
	if snap.Match.CurrentTurnID != "bob" {
		t.Errorf("unexpected turn: %q", snap.Match.CurrentTurnID)
	}
	if len(snap.Match.Board.Pieces) != 1 || !snap.Match.Board.Pieces[0].Equals(domain.NewPiece(3, 5)) {
		t.Errorf("unexpected board: %v", snap.Match.Board.Pieces)
	}
}

func TestSubmitMoveRejection(t *testing.T) {
	var wmu sync.Mutex
	url := fakeServer(t, func(conn *websocket.Conn, env *rtapi.Envelope) {
		send := env.GetMatchDataSend()
		if send == nil {
			return
		}
		var payload movePayload
		if err := json.Unmarshal(send.Data, &payload); err != nil {
			return
		}
		data, _ := json.Marshal(actionAck{OpID: payload.OpID, Status: "rejected", Code: "not_your_turn", Message: "wait for your turn"})
		wmu.Lock()
		defer wmu.Unlock()
		writeEnv(t, conn, &rtapi.Envelope{
			Message: &rtapi.Envelope_MatchData{
				MatchData: &rtapi.MatchData{MatchId: send.MatchId, OpCode: OpActionAck, Data: data},
			},
		})
	})
	svc := NewService(dialTest(t, url))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := svc.SubmitPass(ctx, "m1")
	var rej *ports.RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if rej.Code != "not_your_turn" {
		t.Errorf("unexpected code %q", rej.Code)
	}
}

func TestSubmitMoveContextTimeout(t *testing.T) {
	url := fakeServer(t, func(conn *websocket.Conn, env *rtapi.Envelope) {
		// Never ack.
	})
	svc := NewService(dialTest(t, url))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := svc.SubmitPass(ctx, "m1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestServerPushBecomesChangeEvents(t *testing.T) {
	connCh := make(chan *websocket.Conn, 1)
	url := fakeServer(t, func(conn *websocket.Conn, env *rtapi.Envelope) {
		select {
		case connCh <- conn:
		default:
		}
	})
	c := dialTest(t, url)

	var mu sync.Mutex
	var events []ports.ChangeEvent
	c.OnEvent = func(ev ports.ChangeEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	// Provoke any message so the handler can capture the connection, then
	// push a match row and a player row from the server side.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, _ = c.SendAction(ctx, "m1", OpPassTurn, movePayload{OpID: "probe"})

	conn := <-connCh
	matchData, _ := json.Marshal(wireMatch{ID: "m1", Status: "active", CurrentTurnID: "alice"})
	writeEnv(t, conn, &rtapi.Envelope{
		Message: &rtapi.Envelope_MatchData{
			MatchData: &rtapi.MatchData{MatchId: "m1", OpCode: OpMatchUpdated, Data: matchData},
		},
	})
	playerData, _ := json.Marshal(playerEvent{Kind: "update", Player: wirePlayer{UserID: "alice", Seat: 0, Hand: []any{[]any{float64(1), float64(2)}}}})
	writeEnv(t, conn, &rtapi.Envelope{
		Message: &rtapi.Envelope_MatchData{
			MatchData: &rtapi.MatchData{MatchId: "m1", OpCode: OpPlayerUpdated, Data: playerData},
		},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(events)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) < 2 {
		t.Fatalf("expected 2 change events, got %d", len(events))
	}
	if events[0].Table != ports.TableMatch || events[0].Match == nil {
		t.Errorf("expected match row first, got %+v", events[0])
	}
	if events[1].Table != ports.TablePlayer || events[1].Player == nil || events[1].Player.UserID != "alice" {
		t.Errorf("expected alice's player row, got %+v", events[1])
	}
}
