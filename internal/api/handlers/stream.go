package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/zxcvny/capstone/internal/realtime/cache"
	"github.com/zxcvny/capstone/internal/realtime/stream"
	"github.com/zxcvny/capstone/pkg/logger"
)

const (
	// RankingPushInterval is how often the ranking socket re-sends the combined ranking
	RankingPushInterval = 2 * time.Second

	clientWriteTimeout = 5 * time.Second
	clientReadLimit    = 4096
)

// StreamHub is the tick fan-out the stock socket registers with
type StreamHub interface {
	Subscribe(h stream.Handle, symbol string)
	Unsubscribe(h stream.Handle, symbol string)
	Stats() stream.Stats
}

// wsClient is one downstream websocket; writes are serialized because the
// stream manager, the snapshot goroutine and the ranking loop may send concurrently
type wsClient struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSClient(conn *websocket.Conn) *wsClient {
	conn.SetReadLimit(clientReadLimit)
	return &wsClient{id: uuid.NewString(), conn: conn}
}

func (c *wsClient) ID() string { return c.id }

// Send writes one text frame
func (c *wsClient) Send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsClient) sendJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(payload)
}

// drain reads until the peer goes away; client messages are ignored
func (c *wsClient) drain() error {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

// StreamHandler serves the realtime websocket endpoints
// ⭐ SSOT: 다운스트림 웹소켓은 이 핸들러에서만
type StreamHandler struct {
	hub      StreamHub
	rankings RankingSource
	ticks    *cache.TickCache
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewStreamHandler creates a stream handler. allowedOrigin "" accepts every origin.
func NewStreamHandler(hub StreamHub, rankings RankingSource, ticks *cache.TickCache, allowedOrigin string, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		hub:      hub,
		rankings: rankings,
		ticks:    ticks,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigin),
		},
		logger: log.WithComponent("ws"),
	}
}

func originChecker(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if allowed == "" || origin == "" {
			return true
		}
		return strings.EqualFold(origin, allowed)
	}
}

// StockTicks streams live trade ticks for one symbol
// GET /realtime/stocks/{code} (websocket)
func (h *StreamHandler) StockTicks(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["code"]))
	if code == "" {
		respondError(w, http.StatusBadRequest, "stock code is required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.WithError(err).WithField("code", code).Warn("Websocket upgrade failed")
		return
	}
	client := newWSClient(conn)
	defer conn.Close()

	h.hub.Subscribe(client, code)
	h.logger.WithFields(map[string]interface{}{
		"code":   code,
		"handle": client.ID(),
	}).Info("Tick socket connected")

	// 읽기 루프 종료가 구독 해제의 유일한 기준
	err = client.drain()
	h.hub.Unsubscribe(client, code)

	h.logger.WithFields(map[string]interface{}{
		"code":   code,
		"handle": client.ID(),
		"reason": err.Error(),
	}).Info("Tick socket disconnected")
}

// Rankings pushes the combined ranking every RankingPushInterval
// GET /realtime/rankings?rank_type=volume&market_type=ALL (websocket)
func (h *StreamHandler) Rankings(w http.ResponseWriter, r *http.Request) {
	rankType, scope, err := parseRankingQuery(r.URL.Query().Get("rank_type"), r.URL.Query().Get("market_type"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	client := newWSClient(conn)
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		_ = client.drain()
		cancel()
	}()

	log := h.logger.WithFields(map[string]interface{}{
		"handle":    client.ID(),
		"rank_type": rankType,
		"scope":     scope,
	})
	log.Info("Ranking socket connected")

	ticker := time.NewTicker(RankingPushInterval)
	defer ticker.Stop()
	for {
		entries := h.rankings.GetRanking(ctx, rankType, scope)
		if err := client.sendJSON(entries); err != nil {
			log.WithError(err).Info("Ranking socket closed")
			return
		}

		select {
		case <-ctx.Done():
			log.Info("Ranking socket disconnected")
			return
		case <-ticker.C:
		}
	}
}

// RealtimeStats reports the push-feed state and the tick cache
// GET /realtime/stats
func (h *StreamHandler) RealtimeStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"stream": h.hub.Stats(),
	}
	if h.ticks != nil {
		resp["tick_cache"] = h.ticks.Stats()
	}
	respondJSON(w, http.StatusOK, resp)
}

// LastTick returns the most recent cached tick of a symbol
// GET /realtime/ticks/{code}
func (h *StreamHandler) LastTick(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["code"]))
	if h.ticks == nil {
		respondError(w, http.StatusNotFound, "no tick for "+code)
		return
	}

	tick, stale, ok := h.ticks.Get(code)
	if !ok {
		respondError(w, http.StatusNotFound, "no tick for "+code)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tick":  tick,
		"stale": stale,
	})
}
