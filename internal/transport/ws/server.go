package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"archivum.ai/internal/protocol"
	"archivum.ai/internal/sim/engine"
)

type Server struct {
	engine *engine.Engine
	log    *zap.Logger

	upgrader websocket.Upgrader
}

func NewServer(e *engine.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine: e,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

type session struct {
	id       string
	playerID string
	guildID  string
	out      chan []byte
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		log := s.log.With(zap.String("session", sess.id), zap.String("player", sess.playerID))
		log.Info("session open")
		defer log.Info("session closed")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handleMessage(ctx, sess, msg)
		}
		cancel()
		<-writerDone
	}
}

func (s *Server) handleMessage(ctx context.Context, sess *session, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeAct {
		return
	}
	var act protocol.ActMsg
	if err := json.Unmarshal(msg, &act); err != nil {
		return
	}
	if err := protocol.ValidateAct(msg); err != nil {
		s.reply(sess, protocol.NewResult(s.engine.CurrentTick(), act, false, protocol.ErrProtoBadRequest, err.Error(), nil))
		return
	}
	if act.ProtocolVersion != protocol.Version {
		s.reply(sess, protocol.NewResult(s.engine.CurrentTick(), act, false, protocol.ErrProtoBadRequest, "bad protocol_version", nil))
		return
	}
	// The session guild is the default for guild-scoped ops.
	if act.GuildID == "" && (act.Op == protocol.OpStartResearch || act.Op == protocol.OpActiveResearch) {
		act.GuildID = sess.guildID
	}

	switch {
	case protocol.IsMutation(act.Op):
		select {
		case s.engine.Inbox() <- engine.ActionEnvelope{PlayerID: sess.playerID, Act: act, Out: sess.out}:
		default:
			s.reply(sess, protocol.NewResult(s.engine.CurrentTick(), act, false, protocol.ErrBusy, "inbox full", nil))
		}
	case protocol.IsQuery(act.Op):
		qctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		res, err := s.engine.Query(qctx, sess.playerID, act)
		if err != nil {
			s.reply(sess, protocol.NewResult(s.engine.CurrentTick(), act, false, protocol.ErrBusy, err.Error(), nil))
			return
		}
		s.reply(sess, res)
	}
}

// reply drops the oldest queued message when the session is backed up.
func (s *Server) reply(sess *session, res protocol.ResultMsg) {
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	select {
	case sess.out <- b:
		return
	default:
	}
	select {
	case <-sess.out:
	default:
	}
	select {
	case sess.out <- b:
	default:
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil
	}
	if err := protocol.ValidateHello(msg); err != nil {
		closeWith(conn, "invalid HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	sess := &session{
		id:       uuid.New().String(),
		playerID: PlayerID(hello.PlayerName),
		guildID:  strings.TrimSpace(hello.GuildID),
		out:      make(chan []byte, maxQ),
	}

	digests := s.engine.CatalogDigests()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		PlayerID:        sess.playerID,
		GuildID:         sess.guildID,
		ArchiveParams: protocol.ArchiveParams{
			ArchiveID:  s.engine.ArchiveID(),
			TickRateHz: s.engine.TickRateHz(),
			Tick:       s.engine.CurrentTick(),
		},
		Catalogs: protocol.CatalogDigests{
			Relics:           digests["relics"],
			Sites:            digests["sites"],
			ResearchProjects: digests["research_projects"],
			ArchivistRanks:   digests["archivist_ranks"],
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	return sess
}

// PlayerID maps a display name to a stable archive identity: lower case,
// runs of other characters collapsed to '_', at most 32 bytes. Reconnecting
// with the same name resumes the same archive.
func PlayerID(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
			underscore = false
		default:
			if !underscore && b.Len() > 0 {
				b.WriteByte('_')
				underscore = true
			}
		}
		if b.Len() >= 32 {
			break
		}
	}
	id := strings.TrimRight(b.String(), "_")
	if id == "" {
		return "player"
	}
	return id
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
