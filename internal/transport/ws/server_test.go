package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tycoonsim.dev/internal/protocol"
	"tycoonsim.dev/internal/sim/catalogs"
	"tycoonsim.dev/internal/sim/world"
)

func startWorld(t *testing.T) *world.World {
	t.Helper()
	th, err := catalogs.LoadTheme("../../../configs", "shop")
	if err != nil {
		t.Fatalf("theme: %v", err)
	}
	w, err := world.New(world.WorldConfig{TickRateHz: 50, Seed: 1, EventLogLines: 20}, th)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	t.Cleanup(cancel)
	return w
}

func dial(t *testing.T, url string, viewer bool) (*websocket.Conn, protocol.WelcomeMsg) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "test", Viewer: viewer}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("hello: %v", err)
	}
	var welcome protocol.WelcomeMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	return conn, welcome
}

// next reads until a message of the wanted type arrives.
func next(t *testing.T, conn *websocket.Conn, typ string) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type == typ {
			return msg
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestServer_HelloFramesAndCommands(t *testing.T) {
	w := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).Handler())
	defer srv.Close()

	conn, welcome := dial(t, wsURL(srv), false)
	if welcome.Type != protocol.TypeWelcome || welcome.SessionID == "" {
		t.Fatalf("welcome=%+v", welcome)
	}
	if welcome.Theme.ID != "shop" || welcome.Theme.Digest == "" {
		t.Fatalf("theme=%+v", welcome.Theme)
	}

	var frame protocol.FrameMsg
	if err := json.Unmarshal(next(t, conn, protocol.TypeFrame), &frame); err != nil {
		t.Fatalf("frame: %v", err)
	}
	if len(frame.Stations) == 0 || len(frame.Resources) == 0 {
		t.Fatalf("empty frame: %+v", frame)
	}

	c := protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Ref: "r1", Cmd: protocol.CmdRestock, Resource: "snack"}
	if err := conn.WriteJSON(c); err != nil {
		t.Fatalf("cmd: %v", err)
	}
	var res protocol.ResultMsg
	if err := json.Unmarshal(next(t, conn, protocol.TypeResult), &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if !res.OK || res.Ref != "r1" {
		t.Fatalf("result=%+v", res)
	}

	c.Ref = "r2"
	c.Cmd = "teleport"
	_ = conn.WriteJSON(c)
	res = protocol.ResultMsg{}
	_ = json.Unmarshal(next(t, conn, protocol.TypeResult), &res)
	if res.OK || res.Code != protocol.ErrUnknownCommand || res.Ref != "r2" {
		t.Fatalf("unknown cmd result=%+v", res)
	}

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"JUMP"}`))
	res = protocol.ResultMsg{}
	_ = json.Unmarshal(next(t, conn, protocol.TypeResult), &res)
	if res.OK || res.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("bad type result=%+v", res)
	}
}

func TestServer_ViewerCannotCommand(t *testing.T) {
	w := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).Handler())
	defer srv.Close()

	conn, _ := dial(t, wsURL(srv), true)
	c := protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Ref: "v1", Cmd: protocol.CmdCampaign}
	if err := conn.WriteJSON(c); err != nil {
		t.Fatalf("cmd: %v", err)
	}
	var res protocol.ResultMsg
	_ = json.Unmarshal(next(t, conn, protocol.TypeResult), &res)
	if res.OK || res.Code != protocol.ErrBadRequest {
		t.Fatalf("viewer result=%+v", res)
	}
}

func TestServer_RejectsMissingHello(t *testing.T) {
	w := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Cmd: "save"})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close without HELLO")
	}
}
