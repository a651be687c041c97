package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/parthd4/hubspot-cli/internal/devsync"
)

// Sentinel errors for the socket bridge.
var (
	ErrNotStarted   = errors.New("devserver: bridge not started")
	ErrRejected     = errors.New("devserver: dev server rejected request")
	ErrDisconnected = errors.New("devserver: connection to dev server lost")
)

const (
	defaultRequestTimeout = 5 * time.Second
	maxMessageBytes       = 1 << 20
)

// Message types sent to the dev server.
const (
	msgStart   = "start"
	msgNotify  = "notify"
	msgExecute = "execute"
	msgCleanup = "cleanup"
)

// request is one JSON message to the dev server. Replies carry the same ID.
type request struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Config *startPayload  `json:"config,omitempty"`
	Change *changePayload `json:"change,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

type startPayload struct {
	AccountID   int64  `json:"accountId"`
	ProjectName string `json:"projectName"`
	ProjectDir  string `json:"projectDir"`
	SourceDir   string `json:"sourceDir"`
}

type changePayload struct {
	Event      string `json:"event"`
	Path       string `json:"path"`
	RemotePath string `json:"remotePath"`
}

type reply struct {
	ID             string         `json:"id"`
	OK             bool           `json:"ok"`
	Error          string         `json:"error,omitempty"`
	UploadRequired bool           `json:"uploadRequired"`
	Detail         map[string]any `json:"detail,omitempty"`
}

// SocketBridge talks to an external dev server over a websocket. Requests
// are serialized: one is in flight at a time. A single reader goroutine owns
// the connection's read side and hands each reply to the request with the
// same ID; messages nobody waits for, including replies that arrive after
// their request timed out, are logged and skipped.
type SocketBridge struct {
	url            string
	logger         *slog.Logger
	requestTimeout time.Duration

	// reqMu serializes requests.
	reqMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	waiting map[string]chan reply
	// readDone is closed when the reader goroutine exits; readErr is set
	// before that.
	readDone chan struct{}
	readErr  error
	closing  bool
}

// NewSocketBridge creates a bridge for a ws:// or wss:// URL. Nothing is
// dialed until Start.
func NewSocketBridge(url string, logger *slog.Logger) *SocketBridge {
	if logger == nil {
		logger = slog.Default()
	}

	return &SocketBridge{url: url, logger: logger, requestTimeout: defaultRequestTimeout}
}

// Start dials the dev server and sends the session configuration.
func (b *SocketBridge) Start(ctx context.Context, cfg devsync.DevServerConfig) error {
	dialCtx, cancel := context.WithTimeout(ctx, b.requestTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, b.url, nil)
	if err != nil {
		return fmt.Errorf("devserver: dialing %s: %w", b.url, err)
	}

	conn.SetReadLimit(maxMessageBytes)

	done := make(chan struct{})

	b.mu.Lock()
	b.conn = conn
	b.waiting = make(map[string]chan reply)
	b.readDone = done
	b.readErr = nil
	b.closing = false
	b.mu.Unlock()

	go b.readLoop(conn, done)

	b.logger.Info("connected to dev server", slog.String("url", b.url))

	_, err = b.roundTrip(ctx, request{
		Type: msgStart,
		Config: &startPayload{
			AccountID:   cfg.AccountID,
			ProjectName: cfg.ProjectName,
			ProjectDir:  cfg.ProjectDir,
			SourceDir:   cfg.SourceDir,
		},
	})
	if err != nil {
		b.closeConn(websocket.StatusInternalError, "start failed")

		return err
	}

	return nil
}

// Notify asks the dev server whether it can apply ev without an upload.
func (b *SocketBridge) Notify(ctx context.Context, ev devsync.ChangeEvent) (devsync.NotifyResult, error) {
	rep, err := b.roundTrip(ctx, request{Type: msgNotify, Change: toPayload(ev)})
	if err != nil {
		return devsync.NotifyResult{}, err
	}

	return devsync.NotifyResult{UploadRequired: rep.UploadRequired, Detail: rep.Detail}, nil
}

// Execute tells the dev server to apply ev, passing back Notify's detail.
func (b *SocketBridge) Execute(ctx context.Context, ev devsync.ChangeEvent, res devsync.NotifyResult) error {
	_, err := b.roundTrip(ctx, request{Type: msgExecute, Change: toPayload(ev), Detail: res.Detail})

	return err
}

// Cleanup sends the cleanup request and closes the connection. It is a
// no-op if the bridge was never started, and only closes the connection
// if it was already lost.
func (b *SocketBridge) Cleanup(ctx context.Context) error {
	b.mu.Lock()
	started := b.conn != nil
	lost := false

	if started {
		select {
		case <-b.readDone:
			lost = true
		default:
		}
	}
	b.mu.Unlock()

	if !started {
		return nil
	}

	if lost {
		b.closeConn(websocket.StatusNormalClosure, "session ended")

		return nil
	}

	_, err := b.roundTrip(ctx, request{Type: msgCleanup})

	b.closeConn(websocket.StatusNormalClosure, "session ended")

	return err
}

func (b *SocketBridge) roundTrip(ctx context.Context, req request) (reply, error) {
	b.reqMu.Lock()
	defer b.reqMu.Unlock()

	b.mu.Lock()
	conn, done := b.conn, b.readDone

	if conn == nil {
		b.mu.Unlock()

		return reply{}, ErrNotStarted
	}

	select {
	case <-done:
		err := b.readErr
		b.mu.Unlock()

		return reply{}, fmt.Errorf("%w: %w", ErrDisconnected, err)
	default:
	}

	req.ID = uuid.NewString()
	ch := make(chan reply, 1)
	b.waiting[req.ID] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.waiting, req.ID)
		b.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, b.requestTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, conn, req); err != nil {
		return reply{}, fmt.Errorf("devserver: sending %s: %w", req.Type, err)
	}

	// Only the wait is bounded; an expired read context would close the
	// connection.
	select {
	case rep := <-ch:
		if !rep.OK {
			return rep, fmt.Errorf("%w: %s: %s", ErrRejected, req.Type, rep.Error)
		}

		return rep, nil

	case <-done:
		b.mu.Lock()
		err := b.readErr
		b.mu.Unlock()

		return reply{}, fmt.Errorf("%w: awaiting %s reply: %w", ErrDisconnected, req.Type, err)

	case <-ctx.Done():
		return reply{}, fmt.Errorf("devserver: awaiting %s reply: %w", req.Type, ctx.Err())
	}
}

// readLoop routes replies to waiting requests until the connection fails
// or is closed.
func (b *SocketBridge) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		var rep reply
		if err := wsjson.Read(context.Background(), conn, &rep); err != nil {
			b.mu.Lock()
			b.readErr = err
			closing := b.closing
			b.mu.Unlock()

			if !closing {
				b.logger.Warn("lost connection to dev server", slog.String("error", err.Error()))
			}

			return
		}

		b.mu.Lock()
		ch, ok := b.waiting[rep.ID]
		delete(b.waiting, rep.ID)
		b.mu.Unlock()

		if !ok {
			b.logger.Debug("skipping unrelated dev server message", slog.String("id", rep.ID))

			continue
		}

		ch <- rep
	}
}

func (b *SocketBridge) closeConn(code websocket.StatusCode, reason string) {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.closing = true
	b.mu.Unlock()

	if conn == nil {
		return
	}

	if err := conn.Close(code, reason); err != nil {
		b.logger.Debug("closing dev server connection", slog.String("error", err.Error()))
	}
}

func toPayload(ev devsync.ChangeEvent) *changePayload {
	return &changePayload{
		Event:      eventName(ev.Kind),
		Path:       ev.AbsolutePath,
		RemotePath: ev.RemotePath,
	}
}

// eventName maps a change kind to the watcher event names dev servers
// expect.
func eventName(k devsync.ChangeKind) string {
	switch k {
	case devsync.ChangeAdded:
		return "add"
	case devsync.ChangeModified:
		return "change"
	case devsync.ChangeRemoved:
		return "unlink"
	case devsync.ChangeDirectoryRemoved:
		return "unlinkDir"
	default:
		return k.String()
	}
}
