// Package monitor maintains the push-event channel to the NapCat-QCE
// service: connection management with automatic reconnect, ordered event
// dispatch, task snapshot tracking and event-driven task waits.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shuakami/napcat-qce-go/internal/common/config"
	"github.com/shuakami/napcat-qce-go/internal/common/errors"
	"github.com/shuakami/napcat-qce-go/internal/common/logger"
	v1 "github.com/shuakami/napcat-qce-go/pkg/api/v1"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1024 * 1024
)

// Handler receives the raw data payload of one event.
type Handler func(data json.RawMessage)

// Subscription identifies a registered handler for removal.
type Subscription uint64

type handlerEntry struct {
	id Subscription
	fn Handler
}

// Options configures a Monitor.
type Options struct {
	Host                 string
	Port                 int
	Token                string
	AutoReconnect        bool
	ReconnectInitial     time.Duration
	ReconnectMax         time.Duration
	MaxReconnectAttempts uint64
}

// DefaultOptions returns options matching the service defaults.
func DefaultOptions() Options {
	return Options{
		Host:                 "localhost",
		Port:                 40653,
		AutoReconnect:        true,
		ReconnectInitial:     time.Second,
		ReconnectMax:         30 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

// OptionsFromConfig builds monitor options from the loaded configuration.
func OptionsFromConfig(svc config.ServiceConfig, mon config.MonitorConfig) Options {
	return Options{
		Host:                 svc.Host,
		Port:                 svc.Port,
		Token:                svc.Token,
		AutoReconnect:        mon.AutoReconnect,
		ReconnectInitial:     time.Duration(mon.ReconnectInitialMS) * time.Millisecond,
		ReconnectMax:         time.Duration(mon.ReconnectMaxMS) * time.Millisecond,
		MaxReconnectAttempts: uint64(mon.MaxReconnectAttempts),
	}
}

// Monitor is a client for the service's push-event channel.
//
// Handlers for the same event run sequentially in registration order on
// the read goroutine; a panicking handler is isolated and does not take
// down the connection or skip later handlers.
type Monitor struct {
	opts   Options
	dialer *websocket.Dialer
	logger *logger.Logger
	cache  *taskCache

	mu       sync.Mutex
	conn     *websocket.Conn
	writeMu  sync.Mutex
	closing  bool
	dialing  bool
	nextSub  Subscription
	handlers map[string][]handlerEntry
	pumpDone chan struct{}
}

// New creates a monitor. Connect must be called before events arrive.
func New(opts Options) *Monitor {
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.Port == 0 {
		opts.Port = 40653
	}
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}

	return &Monitor{
		opts:     opts,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:   logger.Default().WithFields(zap.String("component", "event-monitor")),
		cache:    newTaskCache(),
		handlers: make(map[string][]handlerEntry),
	}
}

// URL returns the push-event channel address.
func (m *Monitor) URL() string {
	return fmt.Sprintf("ws://%s:%d", m.opts.Host, m.opts.Port)
}

// On registers a handler for an event type and returns its subscription.
func (m *Monitor) On(event string, fn Handler) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	id := m.nextSub
	m.handlers[event] = append(m.handlers[event], handlerEntry{id: id, fn: fn})
	return id
}

// Off removes a previously registered handler.
func (m *Monitor) Off(event string, sub Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.handlers[event]
	for i, e := range entries {
		if e.id == sub {
			m.handlers[event] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// OnExportProgress registers a typed handler for export progress events.
func (m *Monitor) OnExportProgress(fn func(ev *v1.ExportProgressEvent)) Subscription {
	return m.On(v1.EventExportProgress, func(data json.RawMessage) {
		var ev v1.ExportProgressEvent
		if json.Unmarshal(data, &ev) == nil {
			fn(&ev)
		}
	})
}

// OnExportComplete registers a typed handler for export completion events.
func (m *Monitor) OnExportComplete(fn func(ev *v1.ExportCompleteEvent)) Subscription {
	return m.On(v1.EventExportComplete, func(data json.RawMessage) {
		var ev v1.ExportCompleteEvent
		if json.Unmarshal(data, &ev) == nil {
			fn(&ev)
		}
	})
}

// OnExportError registers a typed handler for export error events.
func (m *Monitor) OnExportError(fn func(ev *v1.ExportErrorEvent)) Subscription {
	return m.On(v1.EventExportError, func(data json.RawMessage) {
		var ev v1.ExportErrorEvent
		if json.Unmarshal(data, &ev) == nil {
			fn(&ev)
		}
	})
}

// Connect establishes the channel and starts the read pump. It returns
// once the connection is up; event delivery happens in the background.
func (m *Monitor) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.conn != nil || m.dialing {
		m.mu.Unlock()
		return nil
	}
	m.dialing = true
	m.closing = false
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		m.dialing = false
		m.mu.Unlock()
		return errors.Connection(fmt.Sprintf("failed to connect to %s", m.URL()), err)
	}
	m.adopt(conn)
	return nil
}

// ConnectAsync establishes the channel on a background goroutine and
// returns immediately. The outcome is surfaced to handlers as a
// connected or disconnected event; with AutoReconnect set, a failed
// first dial is retried under the same backoff policy as a drop.
func (m *Monitor) ConnectAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.Connect(ctx); err != nil {
			payload, _ := json.Marshal(v1.DisconnectedEvent{Message: err.Error()})
			m.dispatch(v1.EventDisconnected, payload)
			if m.opts.AutoReconnect {
				m.reconnect()
			}
		}
	}()
}

func (m *Monitor) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if m.opts.Token != "" {
		header.Set("Authorization", "Bearer "+m.opts.Token)
	}
	conn, _, err := m.dialer.DialContext(ctx, m.URL(), header)
	return conn, err
}

// adopt installs a fresh connection and starts its pumps. If another
// connection won the race, or Disconnect ran while dialing, the
// newcomer is closed without starting pumps.
func (m *Monitor) adopt(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	m.mu.Lock()
	if m.conn != nil || m.closing {
		m.dialing = false
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.pumpDone = done
	m.dialing = false
	m.mu.Unlock()

	m.logger.Info("event channel connected", zap.String("url", m.URL()))
	m.dispatch(v1.EventConnected, nil)

	go m.pingLoop(conn, done)
	go m.readPump(conn, done)
}

func (m *Monitor) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			m.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readPump is the sole reader of the connection. All handlers run here.
func (m *Monitor) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.handleDrop(conn, err)
			return
		}

		var env v1.EventEnvelope
		if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil {
			m.logger.Warn("undecodable event frame dropped", zap.Error(jsonErr))
			continue
		}
		m.dispatch(env.Type, env.Data)
	}
}

// dispatch updates the task snapshot cache, then invokes handlers in
// registration order. Malformed payloads never reach typed state.
func (m *Monitor) dispatch(event string, data json.RawMessage) {
	m.cache.observeEvent(event, data)

	m.mu.Lock()
	entries := make([]handlerEntry, len(m.handlers[event]))
	copy(entries, m.handlers[event])
	m.mu.Unlock()

	for _, e := range entries {
		m.invoke(event, e, data)
	}
}

func (m *Monitor) invoke(event string, e handlerEntry, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event handler panicked",
				zap.String("event", event), zap.Any("panic", r))
		}
	}()
	e.fn(data)
}

// handleDrop reports a lost connection and drives reconnection.
func (m *Monitor) handleDrop(conn *websocket.Conn, err error) {
	conn.Close()

	m.mu.Lock()
	closing := m.closing
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()

	payload, _ := json.Marshal(v1.DisconnectedEvent{Message: err.Error()})
	m.dispatch(v1.EventDisconnected, payload)

	if closing || !m.opts.AutoReconnect {
		return
	}

	m.logger.Warn("event channel lost, reconnecting", zap.Error(err))
	go m.reconnect()
}

func (m *Monitor) reconnect() {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.opts.ReconnectInitial
	bo.MaxInterval = m.opts.ReconnectMax
	bo.MaxElapsedTime = 0

	var policy backoff.BackOff = bo
	if m.opts.MaxReconnectAttempts > 0 {
		policy = backoff.WithMaxRetries(bo, m.opts.MaxReconnectAttempts)
	}

	attempt := 0
	err := backoff.Retry(func() error {
		m.mu.Lock()
		closing := m.closing
		m.mu.Unlock()
		if closing {
			return backoff.Permanent(errors.Connection("monitor closed", nil))
		}

		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		conn, dialErr := m.dial(ctx)
		if dialErr != nil {
			m.logger.Warn("reconnect attempt failed",
				zap.Int("attempt", attempt), zap.Error(dialErr))
			return dialErr
		}
		m.adopt(conn)
		return nil
	}, policy)

	if err != nil {
		m.logger.Error("event channel reconnect gave up",
			zap.Int("attempts", attempt), zap.Error(err))
	}
}

// Send writes an envelope to the service.
func (m *Monitor) Send(env v1.EventEnvelope) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return errors.Connection("event channel not connected", nil)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(env); err != nil {
		return errors.Connection("failed to send event", err)
	}
	return nil
}

// StartStreamSearch begins a streaming message search and returns the
// generated search id. Results arrive as search_* events.
func (m *Monitor) StartStreamSearch(peer v1.Peer, query string, filter *v1.MessageFilter) (string, error) {
	searchID := uuid.NewString()
	data, err := json.Marshal(v1.StreamSearchRequest{
		SearchID:    searchID,
		Peer:        peer,
		SearchQuery: query,
		Filter:      filter,
	})
	if err != nil {
		return "", errors.Validation("filter", err.Error())
	}
	if err := m.Send(v1.EventEnvelope{Type: "start_stream_search", Data: data}); err != nil {
		return "", err
	}
	return searchID, nil
}

// CancelSearch cancels a running streaming search.
func (m *Monitor) CancelSearch(searchID string) error {
	data, _ := json.Marshal(map[string]string{"searchId": searchID})
	return m.Send(v1.EventEnvelope{Type: "cancel_search", Data: data})
}

// IsConnected reports whether the channel is currently up.
func (m *Monitor) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Disconnect closes the channel and disables reconnection. Idempotent.
func (m *Monitor) Disconnect() {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return
	}
	m.closing = true
	conn := m.conn
	m.conn = nil
	done := m.pumpDone
	m.mu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		conn.Close()
		if done != nil {
			<-done
		}
	}
	m.logger.Info("event channel closed")
}
