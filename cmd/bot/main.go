package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"archivum.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "player name")
		guild    = flag.String("guild", "", "guild id for research")
		site     = flag.String("site", "wilds_ruins", "site to excavate")
		project  = flag.String("project", "origin_mystery", "research project to fund")
		interval = flag.Duration("interval", 2*time.Second, "delay between acts")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("bot")

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatal("dial", zap.Error(err))
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		GuildID:         *guild,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatal("send HELLO", zap.Error(err))
	}

	results := make(chan protocol.ResultMsg, 16)
	go readLoop(conn, logger, results)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	b := &bot{conn: conn, site: *site, project: *project, guild: *guild}
	t := time.NewTicker(*interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			b.observe(res)
			logger.Info("result",
				zap.Uint64("tick", res.Tick),
				zap.String("act_id", res.ActID),
				zap.String("op", res.Op),
				zap.Bool("ok", res.OK),
				zap.String("code", res.Code),
				zap.String("message", res.Message),
				zap.ByteString("data", res.Data))
		case <-t.C:
			if err := conn.WriteJSON(b.next()); err != nil {
				logger.Error("send ACT", zap.Error(err))
				return
			}
		}
	}
}

func readLoop(conn *websocket.Conn, logger *zap.Logger, out chan<- protocol.ResultMsg) {
	defer close(out)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Info("WELCOME",
				zap.String("player_id", w.PlayerID),
				zap.String("archive", w.ArchiveParams.ArchiveID),
				zap.Int("tick_rate", w.ArchiveParams.TickRateHz),
				zap.Uint64("tick", w.ArchiveParams.Tick))
		case protocol.TypeResult:
			var r protocol.ResultMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			out <- r
		}
	}
}

// bot cycles through digging, funding research, and checking its rank.
type bot struct {
	conn    *websocket.Conn
	site    string
	project string
	guild   string

	seq       int
	lastRelic string
}

func (b *bot) observe(res protocol.ResultMsg) {
	if !res.OK || res.Op != protocol.OpExcavate {
		return
	}
	var dig struct {
		Relic *struct {
			ID string `json:"id"`
		} `json:"relic"`
	}
	if err := json.Unmarshal(res.Data, &dig); err == nil && dig.Relic != nil {
		b.lastRelic = dig.Relic.ID
	}
}

func (b *bot) next() protocol.ActMsg {
	b.seq++
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		ActID:           fmt.Sprintf("A%06d", b.seq),
	}
	switch b.seq % 4 {
	case 1:
		act.Op = protocol.OpExcavate
		act.SiteID = b.site
	case 2:
		if b.guild == "" {
			act.Op = protocol.OpPlayerRelics
			break
		}
		act.Op = protocol.OpStartResearch
		act.ProjectID = b.project
	case 3:
		if b.guild == "" {
			act.Op = protocol.OpRelicCollection
			break
		}
		act.Op = protocol.OpContributeResearch
		act.ProjectID = b.project
		act.Amount = 10
		if b.lastRelic != "" {
			act.RelicID = b.lastRelic
			b.lastRelic = ""
		}
	default:
		act.Op = protocol.OpArchivistRank
	}
	return act
}
