package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tycoonsim.dev/internal/protocol"
	"tycoonsim.dev/internal/sim/world"
)

const readTimeout = 60 * time.Second

// Sim is the part of the world the websocket collaborator talks to.
type Sim interface {
	Subscribe() chan<- world.SubscribeRequest
	Unsubscribe() chan<- string
	Submit(ctx context.Context, cmd protocol.CmdMsg) (protocol.Result, error)
	CurrentTick() uint64
}

type Server struct {
	sim Sim
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(sim Sim, logger *log.Logger) *Server {
	return &Server{
		sim: sim,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		welcome, viewer, out := s.handshake(conn)
		if welcome.SessionID == "" {
			return
		}
		if s.log != nil {
			s.log.Printf("session %s connected (viewer=%v)", welcome.SessionID, viewer)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Results share the single writer with frames; gorilla conns allow one writer.
		results := make(chan []byte, 16)

		// Viewers never send, so pongs keep the read deadline alive.
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})

		go func() {
			ping := time.NewTicker(readTimeout / 3)
			defer ping.Stop()
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						cancel()
						return
					}
					continue
				case b = <-results:
				case fb, ok := <-out:
					if !ok {
						return
					}
					b = fb
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			res, ref, ok := s.handleMessage(ctx, msg, viewer)
			if !ok {
				continue
			}
			b, err := json.Marshal(protocol.ResultMsg{
				Type:            protocol.TypeResult,
				ProtocolVersion: protocol.Version,
				Ref:             ref,
				Tick:            s.sim.CurrentTick(),
				Result:          res,
			})
			if err != nil {
				continue
			}
			select {
			case results <- b:
			case <-ctx.Done():
			}
		}

		select {
		case s.sim.Unsubscribe() <- welcome.SessionID:
		case <-time.After(time.Second):
		}
		if s.log != nil {
			s.log.Printf("session %s closed", welcome.SessionID)
		}
	}
}

// handleMessage decodes one client message. ok=false means nothing should be sent back.
func (s *Server) handleMessage(ctx context.Context, msg []byte, viewer bool) (res protocol.Result, ref string, ok bool) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.Fail(protocol.ErrProtoBadRequest, "bad message: %v", err), "", true
	}
	if base.Type != protocol.TypeCmd {
		return protocol.Fail(protocol.ErrProtoBadRequest, "unexpected message type %q", base.Type), "", true
	}
	var cmd protocol.CmdMsg
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return protocol.Fail(protocol.ErrProtoBadRequest, "bad CMD: %v", err), "", true
	}
	if cmd.ProtocolVersion != protocol.Version {
		return protocol.Fail(protocol.ErrProtoBadRequest, "bad protocol_version %q", cmd.ProtocolVersion), cmd.Ref, true
	}
	if viewer {
		return protocol.Fail(protocol.ErrBadRequest, "viewer sessions cannot send commands"), cmd.Ref, true
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	r, err := s.sim.Submit(cctx, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return protocol.Result{}, "", false
		}
		return protocol.Fail(protocol.ErrInternal, "command not applied: %v", err), cmd.Ref, true
	}
	return r, cmd.Ref, true
}

func (s *Server) handshake(conn *websocket.Conn) (welcome protocol.WelcomeMsg, viewer bool, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return welcome, false, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return welcome, false, nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return welcome, false, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return welcome, false, nil
	}

	out = make(chan []byte, 4)
	resp := make(chan protocol.WelcomeMsg, 1)
	select {
	case s.sim.Subscribe() <- world.SubscribeRequest{Out: out, Resp: resp}:
	case <-time.After(5 * time.Second):
		return welcome, false, nil
	}
	select {
	case welcome = <-resp:
	case <-time.After(5 * time.Second):
		return protocol.WelcomeMsg{}, false, nil
	}

	if err := writeJSON(conn, welcome); err != nil {
		select {
		case s.sim.Unsubscribe() <- welcome.SessionID:
		case <-time.After(time.Second):
		}
		return protocol.WelcomeMsg{}, false, nil
	}
	return welcome, hello.Viewer, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
