package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zxcvny/capstone/internal/external/kis"
	"github.com/zxcvny/capstone/internal/fx"
	"github.com/zxcvny/capstone/internal/realtime"
	"github.com/zxcvny/capstone/internal/realtime/cache"
	"github.com/zxcvny/capstone/pkg/config"
	"github.com/zxcvny/capstone/pkg/logger"
)

// Timing
const (
	DefaultReconnectDelay   = 3 * time.Second
	DefaultResubscribeDelay = 100 * time.Millisecond

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	snapshotTimeout  = 5 * time.Second
)

// State is the upstream connection state
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ApprovalKeyProvider issues the push-feed approval key
type ApprovalKeyProvider interface {
	ApprovalKey(ctx context.Context) (string, error)
}

// QuoteSource supplies the one-shot snapshot sent on subscribe
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string, market kis.Market) *kis.Quote
}

// RateProvider supplies the USD→KRW rate for foreign ticks.
// Rate may refresh over the network; Snapshot never blocks.
type RateProvider interface {
	Rate(ctx context.Context) float64
	Snapshot() fx.Rate
}

// NameResolver maps a symbol to its display name
type NameResolver interface {
	Name(symbol string) string
}

// Options configures a Manager
type Options struct {
	URL              string
	ForeignMarket    kis.Market
	ReconnectDelay   time.Duration
	ResubscribeDelay time.Duration
}

// OptionsFromConfig builds Options from application config
func OptionsFromConfig(kisCfg config.KISConfig, streamCfg config.StreamConfig, foreign kis.Market) Options {
	return Options{
		URL:              kisCfg.WSURL,
		ForeignMarket:    foreign,
		ReconnectDelay:   streamCfg.ReconnectDelay,
		ResubscribeDelay: streamCfg.ResubscribeDelay,
	}
}

// Stats is a point-in-time view of the manager
type Stats struct {
	State          string   `json:"state"`
	Symbols        []string `json:"symbols"`
	Subscribers    int      `json:"subscribers"`
	Generation     uint64   `json:"generation"`
	Reconnects     int64    `json:"reconnects"`
	TicksReceived  int64    `json:"ticks_received"`
	TicksDelivered int64    `json:"ticks_delivered"`
	DroppedHandles int64    `json:"dropped_handles"`
}

// upstream is one live push-feed socket
type upstream struct {
	ws          *websocket.Conn
	approvalKey string

	writeMu    sync.Mutex
	subscribed map[string]struct{} // symbols sent on this socket, guarded by writeMu
}

func (u *upstream) writeJSON(v interface{}) error {
	_ = u.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return u.ws.WriteJSON(v)
}

// Manager owns the single upstream push-feed connection and fans ticks out to handles.
// The connection lives while the registry is non-empty; it is torn down when the last
// handle leaves and started again by the next Subscribe.
// ⭐ SSOT: KIS 실시간 웹소켓 연결은 이 매니저에서만
type Manager struct {
	opts      Options
	approvals ApprovalKeyProvider
	quotes    QuoteSource
	rates     RateProvider
	names     NameResolver
	ticks     *cache.TickCache
	logger    *logger.Logger
	registry  *Registry
	dialer    *websocket.Dialer
	now       func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	cancel     context.CancelFunc
	conn       *upstream
	closed     bool

	wg sync.WaitGroup

	reconnects     atomic.Int64
	ticksReceived  atomic.Int64
	ticksDelivered atomic.Int64
	droppedHandles atomic.Int64
}

// NewManager creates a stream manager. names and ticks may be nil.
func NewManager(opts Options, approvals ApprovalKeyProvider, quotes QuoteSource, rates RateProvider, names NameResolver, ticks *cache.TickCache, log *logger.Logger) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.ResubscribeDelay <= 0 {
		opts.ResubscribeDelay = DefaultResubscribeDelay
	}
	if opts.ForeignMarket == "" {
		opts.ForeignMarket = kis.MarketNASDAQ
	}

	return &Manager{
		opts:      opts,
		approvals: approvals,
		quotes:    quotes,
		rates:     rates,
		names:     names,
		ticks:     ticks,
		logger:    log.WithComponent("stream"),
		registry:  NewRegistry(),
		dialer:    &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		now:       time.Now,
	}
}

// Registry exposes the subscriber registry (read-mostly; use Subscribe/Unsubscribe to mutate)
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Subscribe registers h for symbol, starts the upstream connection if needed,
// subscribes upstream on the first handle, and sends a snapshot asynchronously.
func (m *Manager) Subscribe(h Handle, symbol string) {
	first := m.registry.Add(symbol, h)

	m.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"handle": h.ID(),
		"first":  first,
	}).Debug("Subscribed")

	m.ensureRunning()
	if first {
		m.subscribeUpstream(symbol)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.sendSnapshot(h, symbol)
	}()
}

// Unsubscribe removes h from symbol. The upstream subscription is released when
// symbol has no handles left, and the connection is stopped when none remain at all.
func (m *Manager) Unsubscribe(h Handle, symbol string) {
	removed, emptied := m.registry.Remove(symbol, h)
	if !removed {
		return
	}

	m.logger.WithFields(map[string]interface{}{
		"symbol":  symbol,
		"handle":  h.ID(),
		"emptied": emptied,
	}).Debug("Unsubscribed")

	if emptied {
		m.unsubscribeUpstream(symbol)
	}
	m.stopIfIdle()
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns counters and the current registry view
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	state, gen := m.state, m.generation
	m.mu.Unlock()

	return Stats{
		State:          state.String(),
		Symbols:        m.registry.Symbols(),
		Subscribers:    m.registry.HandleCount(),
		Generation:     gen,
		Reconnects:     m.reconnects.Load(),
		TicksReceived:  m.ticksReceived.Load(),
		TicksDelivered: m.ticksDelivered.Load(),
		DroppedHandles: m.droppedHandles.Load(),
	}
}

// Close stops the connection and waits for background work
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Stream manager closed")
}

// ============================================================
// Connection lifecycle
// ============================================================

// ensureRunning starts a connection generation unless one is live
func (m *Manager) ensureRunning() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.generation++
	m.cancel = cancel
	m.state = StateConnecting

	m.wg.Add(1)
	go m.run(ctx, m.generation)
}

// stopIfIdle cancels the live generation when no symbol is registered.
// The registry check runs under mu so a concurrent Subscribe either sees the
// stopped generation and starts a new one, or keeps this one alive.
func (m *Manager) stopIfIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil || m.registry.Len() > 0 {
		return
	}
	m.cancel()
	m.cancel = nil
	m.conn = nil
	m.state = StateDisconnected
	m.logger.Info("No subscribers left, upstream stream stopped")
}

// run reconnects until its generation is cancelled
func (m *Manager) run(ctx context.Context, gen uint64) {
	defer m.wg.Done()

	for {
		err := m.session(ctx, gen)
		m.detach(gen)

		if ctx.Err() != nil {
			return
		}

		m.reconnects.Add(1)
		m.logger.WithError(err).WithFields(map[string]interface{}{
			"generation": gen,
			"delay":      m.opts.ReconnectDelay.String(),
		}).Warn("Upstream stream lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.opts.ReconnectDelay):
		}
	}
}

// session dials, resubscribes every registered symbol and reads until the socket fails
func (m *Manager) session(ctx context.Context, gen uint64) error {
	if !m.setState(gen, StateConnecting) {
		return context.Canceled
	}

	key, err := m.approvals.ApprovalKey(ctx)
	if err != nil {
		return fmt.Errorf("approval key: %w", err)
	}

	ws, _, err := m.dialer.DialContext(ctx, m.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.opts.URL, err)
	}
	defer ws.Close()

	// ReadMessage has no context; closing the socket unblocks it
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	up := &upstream{ws: ws, approvalKey: key, subscribed: make(map[string]struct{})}
	if !m.attach(gen, up) {
		return context.Canceled
	}
	m.logger.WithField("generation", gen).Info("KIS push feed connected")

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go m.resubscribeAll(sessionCtx, up)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		m.handleFrame(up, data)
	}
}

// attach publishes up as the live connection of gen
func (m *Manager) attach(gen uint64, up *upstream) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen || m.cancel == nil {
		return false
	}
	m.conn = up
	m.state = StateConnected
	return true
}

// detach clears the live connection if it still belongs to gen
func (m *Manager) detach(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return
	}
	m.conn = nil
	m.state = StateDisconnected
}

func (m *Manager) setState(gen uint64, s State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen || m.cancel == nil {
		return false
	}
	m.state = s
	return true
}

func (m *Manager) current() *upstream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// ============================================================
// Upstream subscriptions
// ============================================================

// resubscribeAll subscribes every registered symbol on a fresh socket, spaced by ResubscribeDelay
func (m *Manager) resubscribeAll(ctx context.Context, up *upstream) {
	for i, symbol := range m.registry.Symbols() {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.opts.ResubscribeDelay):
			}
		}
		if !m.registry.Has(symbol) {
			continue
		}
		if err := m.sendSubscribe(up, symbol); err != nil {
			m.logger.WithError(err).WithField("symbol", symbol).Warn("Resubscribe failed")
			return
		}
	}
}

func (m *Manager) subscribeUpstream(symbol string) {
	up := m.current()
	if up == nil {
		// 연결 수립 후 resubscribeAll 이 처리
		return
	}
	if err := m.sendSubscribe(up, symbol); err != nil {
		m.logger.WithError(err).WithField("symbol", symbol).Warn("Upstream subscribe failed")
	}
}

// sendSubscribe sends a subscribe for symbol at most once per socket
func (m *Manager) sendSubscribe(up *upstream, symbol string) error {
	up.writeMu.Lock()
	defer up.writeMu.Unlock()

	if _, ok := up.subscribed[symbol]; ok {
		return nil
	}

	sub := SubscriptionFor(symbol, m.opts.ForeignMarket)
	if err := up.writeJSON(newControlMessage(up.approvalKey, trTypeSubscribe, sub)); err != nil {
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}
	up.subscribed[symbol] = struct{}{}

	m.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"tr_id":  sub.TrID,
		"tr_key": sub.TrKey,
	}).Debug("Upstream subscribed")
	return nil
}

// unsubscribeUpstream is best-effort; failures only log.
// A Subscribe that re-added symbol after Remove found it still subscribed on this
// socket and sent nothing, so the registry is checked again under writeMu.
func (m *Manager) unsubscribeUpstream(symbol string) {
	up := m.current()
	if up == nil {
		return
	}

	up.writeMu.Lock()
	defer up.writeMu.Unlock()

	if _, ok := up.subscribed[symbol]; !ok {
		return
	}
	if m.registry.Has(symbol) {
		return
	}
	delete(up.subscribed, symbol)

	sub := SubscriptionFor(symbol, m.opts.ForeignMarket)
	if err := up.writeJSON(newControlMessage(up.approvalKey, trTypeUnsubscribe, sub)); err != nil {
		m.logger.WithError(err).WithField("symbol", symbol).Debug("Upstream unsubscribe failed")
	}
}

// ============================================================
// Receive path
// ============================================================

func (m *Manager) handleFrame(up *upstream, data []byte) {
	if isControlFrame(data) {
		m.handleControl(up, data)
		return
	}

	frame, err := ParseDataFrame(data)
	if err != nil {
		m.logger.WithError(err).Warn("Dropped malformed frame")
		return
	}
	if frame.Encrypted {
		m.logger.WithField("tr_id", frame.TrID).Debug("Ignored encrypted frame")
		return
	}

	receivedAt := m.now()
	// 읽기 루프에서는 네트워크 갱신 없이 캐시된 환율만 사용 (fx_refresh 잡이 갱신)
	rate := m.rates.Snapshot().Value
	for _, rec := range frame.Records {
		var (
			tick realtime.Tick
			ok   bool
		)
		switch frame.TrID {
		case TrDomesticTick:
			tick, ok = DecodeDomesticTick(rec, receivedAt)
		case TrForeignTick:
			tick, ok = DecodeForeignTick(rec, rate, receivedAt)
		default:
			m.logger.WithField("tr_id", frame.TrID).Debug("Ignored frame of unknown TR")
			return
		}
		if !ok {
			continue
		}
		m.ticksReceived.Add(1)
		m.publish(tick)
	}
}

func (m *Manager) handleControl(up *upstream, data []byte) {
	reply, err := decodeControl(data)
	if err != nil {
		m.logger.WithError(err).Warn("Dropped malformed control frame")
		return
	}

	if reply.Header.TrID == TrPingPong {
		up.writeMu.Lock()
		_ = up.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := up.ws.WriteMessage(websocket.TextMessage, data)
		up.writeMu.Unlock()
		if err != nil {
			m.logger.WithError(err).Warn("PINGPONG echo failed")
		}
		return
	}

	log := m.logger.WithFields(map[string]interface{}{
		"tr_id":  reply.Header.TrID,
		"tr_key": reply.Header.TrKey,
		"msg_cd": reply.Body.MsgCd,
		"msg":    reply.Body.Msg1,
	})
	if reply.Body.RtCd != "" && reply.Body.RtCd != "0" {
		log.Warn("Upstream rejected control message")
		return
	}
	log.Debug("Upstream control ack")
}

// publish records tick and sends it to every handle of its symbol in receive order
func (m *Manager) publish(tick realtime.Tick) {
	if m.names != nil {
		tick.Name = m.names.Name(tick.Code)
	}
	if m.ticks != nil {
		m.ticks.Update(tick)
	}

	handles := m.registry.Handles(tick.Code)
	if len(handles) == 0 {
		return
	}

	payload, err := json.Marshal(tick)
	if err != nil {
		m.logger.WithError(err).Error("Failed to encode tick")
		return
	}
	m.broadcast(tick.Code, handles, payload)
}

// broadcast sends payload to handles; a failed send drops only that handle
func (m *Manager) broadcast(symbol string, handles []Handle, payload []byte) {
	for _, h := range handles {
		if err := h.Send(payload); err != nil {
			m.dropHandle(h, symbol, err)
			continue
		}
		m.ticksDelivered.Add(1)
	}
}

func (m *Manager) dropHandle(h Handle, symbol string, err error) {
	m.droppedHandles.Add(1)
	m.logger.WithError(err).WithFields(map[string]interface{}{
		"symbol": symbol,
		"handle": h.ID(),
	}).Warn("Send failed, dropping subscriber")
	m.Unsubscribe(h, symbol)
}

// ============================================================
// Snapshot
// ============================================================

// sendSnapshot pushes a one-shot REST quote to h. Foreign prices are converted to KRW.
func (m *Manager) sendSnapshot(h Handle, symbol string) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	market := kis.InferMarket(symbol, m.opts.ForeignMarket)
	q := m.quotes.GetQuote(ctx, symbol, market)
	if q == nil {
		return
	}

	tick := snapshotTick(q, m.now(), func() float64 { return m.rates.Rate(ctx) })
	if m.names != nil {
		tick.Name = m.names.Name(symbol)
	}
	if m.ticks != nil {
		m.ticks.Update(tick)
	}

	// 스냅샷 도착 전에 h 가 구독을 해제했으면 보내지 않음
	if !m.registry.Contains(symbol, h) {
		return
	}

	payload, err := json.Marshal(tick)
	if err != nil {
		m.logger.WithError(err).Error("Failed to encode snapshot")
		return
	}
	if err := h.Send(payload); err != nil {
		m.dropHandle(h, symbol, err)
	}
}

func snapshotTick(q *kis.Quote, now time.Time, rate func() float64) realtime.Tick {
	price, change := q.Price, q.Change
	if !q.Market.IsDomestic() {
		r := rate()
		price, change = fx.ToKRW(price, r), fx.ToKRW(change, r)
	}

	return realtime.Tick{
		Type:       realtime.TickType,
		Code:       q.Symbol,
		Time:       now.In(kis.KST).Format("150405"),
		Price:      formatNumber(price),
		Change:     formatNumber(change),
		Rate:       strconv.FormatFloat(q.ChangeRate, 'f', 2, 64),
		Volume:     formatNumber(q.Volume),
		AcmlVol:    formatNumber(q.Volume),
		Power:      "0.00",
		Source:     realtime.SourceSnapshot,
		ReceivedAt: now,
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ErrClosed is returned by handles whose transport is gone
var ErrClosed = errors.New("stream handle closed")
