package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const streamKeepAlive = 25 * time.Second

// updateBroker fans board change signals out to SSE subscribers of that
// board. Signals coalesce: a subscriber that has not caught up yet sees a
// single pending update.
type updateBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func newUpdateBroker() *updateBroker {
	return &updateBroker{subs: make(map[string]map[chan struct{}]struct{})}
}

func (b *updateBroker) subscribe(boardID string) chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	set, ok := b.subs[boardID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		b.subs[boardID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *updateBroker) unsubscribe(boardID string, ch chan struct{}) {
	b.mu.Lock()
	if set, ok := b.subs[boardID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(b.subs, boardID)
		}
	}
	b.mu.Unlock()
}

func (b *updateBroker) notify(boardID string) {
	b.mu.Lock()
	for ch := range b.subs[boardID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *updateBroker) subscribers(boardID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[boardID])
}

func (h *handler) streamBoard(c echo.Context) error {
	boardID := c.Param("board")
	metrics, ctx := newBoardRequestMetrics(c.Request().Context(), h.logger, streamRoute, boardID)
	c.SetRequest(c.Request().WithContext(ctx))
	status := http.StatusOK
	var streamErr error
	defer func() { metrics.Log(status, streamErr) }()

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		status = http.StatusInternalServerError
		return c.String(status, "stream unsupported")
	}
	c.Response().WriteHeader(status)

	ch := h.broker.subscribe(boardID)
	defer h.broker.unsubscribe(boardID, ch)
	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	logger := h.logger.WithFields(log.Fields{"board": boardID, "user": UserID(c)})
	logger.Debug("board stream opened")
	defer logger.Debug("board stream closed")

	for {
		loadStart := time.Now()
		board, loadErr := h.Boards.Board(ctx, boardID)
		metrics.ObserveLoad(time.Since(loadStart))
		if loadErr != nil {
			logger.WithError(loadErr).Error("stream load board")
			metrics.SetErrorStage("load")
			streamErr = loadErr
			return nil
		}
		metrics.SetTasksReturned(len(board.Tasks))
		data, encErr := sonic.Marshal(newBoardResponse(board))
		if encErr != nil {
			logger.WithError(encErr).Error("stream encode board")
			metrics.SetErrorStage("encode")
			streamErr = encErr
			return nil
		}
		if writeEvent(c.Response(), "board", data) != nil {
			return nil
		}
		flusher.Flush()

		// A closed client ends the stream normally.
		if awaitChange(c, ch, keepAlive.C, flusher) != nil {
			return nil
		}
	}
}

// awaitChange blocks until the board changes, writing keep-alive comments in
// the meantime. It returns an error once the client is gone.
func awaitChange(c echo.Context, ch <-chan struct{}, tick <-chan time.Time, flusher http.Flusher) error {
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
			return nil
		case <-tick:
			if _, err := c.Response().Write([]byte(": keep-alive\n\n")); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, data []byte) error {
	if _, err := w.Write([]byte("event: " + event + "\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
