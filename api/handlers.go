package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"repricelab/domain"
	"repricelab/notify"
)

const (
	boardRoute   = "/admin/api/boards/:board"
	columnRoute  = "/admin/api/boards/:board/columns/:status"
	commandRoute = "/admin/api/boards/:board/commands"
	streamRoute  = "/admin/api/boards/:board/stream"
)

// Options holds the collaborators of the board API. Deduper, Notifier and
// Health are optional.
type Options struct {
	Boards   Boards
	Auth     Authenticator
	Deduper  Deduper
	Notifier Notifier
	Logger   *log.Logger
	Health   func(ctx context.Context) error
}

type handler struct {
	Options
	logger *log.Logger
	broker *updateBroker
}

type errorResponse struct {
	Error string `json:"error"`
}

type columnResponse struct {
	Status domain.Status `json:"status"`
	Title  string        `json:"title"`
	Tasks  []domain.Task `json:"tasks"`
}

// Register wires up all board API routes on the provided Echo instance.
func Register(e *echo.Echo, opts Options) {
	h := &handler{Options: opts, logger: opts.Logger, broker: newUpdateBroker()}
	if h.logger == nil {
		h.logger = log.StandardLogger()
	}

	g := e.Group("/admin/api/boards/:board", validBoardID)
	g.GET("", h.getBoard)
	g.GET("/columns/:status", h.getColumn)
	g.POST("/commands", h.postCommands, GzipRequestMiddleware(postCommandMaxSize))
	g.GET("/stream", h.streamBoard, RequireAuth(opts.Auth, FromCookie|FromQuery, nil))
	e.GET("/healthz", h.healthz)
}

func validBoardID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !domain.ValidBoardID(c.Param("board")) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid board id"})
		}
		return next(c)
	}
}

func (h *handler) healthz(c echo.Context) error {
	if h.Health == nil {
		return c.NoContent(http.StatusOK)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.Health(ctx); err != nil {
		h.logger.WithError(err).Warn("health check failed")
		return c.String(http.StatusServiceUnavailable, "unhealthy")
	}
	return c.NoContent(http.StatusOK)
}

// begin starts request metrics and authenticates the caller.
func (h *handler) begin(c echo.Context, route string) (*boardRequestMetrics, context.Context, error) {
	metrics, ctx := newBoardRequestMetrics(c.Request().Context(), h.logger, route, c.Param("board"))
	c.SetRequest(c.Request().WithContext(ctx))

	authStart := time.Now()
	userID, err := h.Auth.UserIDFromAuthHeader(requestAuthHeader(c, FromCookie))
	metrics.ObserveAuth(time.Since(authStart))
	if err != nil {
		metrics.SetErrorStage("auth")
		return metrics, ctx, err
	}
	c.Set(userIDKey, userID)
	return metrics, ctx, nil
}

func (h *handler) getBoard(c echo.Context) (err error) {
	metrics, ctx, authErr := h.begin(c, boardRoute)
	defer func() { metrics.Log(c.Response().Status, err) }()
	if authErr != nil {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
	}

	loadStart := time.Now()
	board, loadErr := h.Boards.Board(ctx, c.Param("board"))
	metrics.ObserveLoad(time.Since(loadStart))
	if loadErr != nil {
		metrics.SetErrorStage("storage")
		return h.fail(c, loadErr)
	}
	metrics.SetTasksReturned(len(board.Tasks))
	return c.JSON(http.StatusOK, newBoardResponse(board))
}

func (h *handler) getColumn(c echo.Context) (err error) {
	metrics, ctx, authErr := h.begin(c, columnRoute)
	defer func() { metrics.Log(c.Response().Status, err) }()
	if authErr != nil {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
	}

	status, parseErr := domain.ParseStatus(c.Param("status"))
	if parseErr != nil {
		metrics.SetErrorStage("invalid_status")
		return h.fail(c, parseErr)
	}
	loadStart := time.Now()
	board, loadErr := h.Boards.Board(ctx, c.Param("board"))
	metrics.ObserveLoad(time.Since(loadStart))
	if loadErr != nil {
		metrics.SetErrorStage("storage")
		return h.fail(c, loadErr)
	}
	tasks := board.Column(status)
	metrics.SetTasksReturned(len(tasks))
	return c.JSON(http.StatusOK, columnResponse{Status: status, Title: status.Title(), Tasks: tasks})
}

func (h *handler) postCommands(c echo.Context) (err error) {
	metrics, ctx, authErr := h.begin(c, commandRoute)
	defer func() { metrics.Log(c.Response().Status, err) }()
	if authErr != nil {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
	}
	boardID := c.Param("board")

	cmds, decodeErr := decodeCommands(c.Request().Body)
	if decodeErr != nil {
		metrics.SetErrorStage("decode")
		if errors.Is(decodeErr, errBodyTooLarge) {
			return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: decodeErr.Error()})
		}
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	if len(cmds) == 0 {
		metrics.SetErrorStage("decode")
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "no commands"})
	}

	keys := finalizeCommands(cmds)
	fresh, skipped, dedupeErr := h.dedupe(ctx, boardID, cmds)
	metrics.SetCommands(len(cmds), len(skipped))
	if dedupeErr != nil {
		metrics.SetErrorStage("dedupe")
		h.logger.WithError(dedupeErr).WithField("board", boardID).Error("dedupe commands")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to record commands"})
	}
	if len(fresh) == 0 {
		board, loadErr := h.Boards.Board(ctx, boardID)
		if loadErr != nil {
			metrics.SetErrorStage("storage")
			return h.fail(c, loadErr)
		}
		return c.JSON(http.StatusOK, postCommandResponse{Board: &board, IdempotencyKeys: keys, Skipped: skipped})
	}

	applyStart := time.Now()
	board, events, applyErr := h.Boards.Apply(ctx, boardID, fresh)
	metrics.ObserveApply(time.Since(applyStart))
	if applyErr != nil {
		metrics.SetErrorStage("apply")
		h.forget(boardID, fresh)
		return h.fail(c, applyErr)
	}
	metrics.SetTasksReturned(len(board.Tasks))

	h.broker.notify(boardID)
	h.publish(boardID, events)

	return c.JSON(http.StatusOK, postCommandResponse{
		Board:           &board,
		Events:          events,
		IdempotencyKeys: keys,
		Skipped:         skipped,
	})
}

// decodeCommands reads a JSON array of commands, rejecting unknown fields
// and bodies over postCommandMaxSize.
func decodeCommands(body io.Reader) ([]domain.Command, error) {
	buf, err := io.ReadAll(io.LimitReader(body, postCommandMaxSize+1))
	if err != nil {
		return nil, err
	}
	if len(buf) > postCommandMaxSize {
		return nil, errBodyTooLarge
	}
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()

	cmds := make([]domain.Command, 0, 4)
	if err := dec.Decode(&cmds); err != nil {
		return nil, err
	}
	return cmds, nil
}

// dedupe drops commands whose idempotency key was already recorded for the
// board. Without a deduper every command is fresh.
func (h *handler) dedupe(ctx context.Context, boardID string, cmds []domain.Command) ([]domain.Command, []string, error) {
	if h.Deduper == nil {
		return cmds, nil, nil
	}
	keys := make([]string, len(cmds))
	for i := range cmds {
		keys[i] = cmds[i].IdempotencyKey
	}
	added, err := h.Deduper.AddMany(ctx, boardID, keys)
	if err != nil {
		var recorded []string
		for i, ok := range added {
			if ok {
				recorded = append(recorded, keys[i])
			}
		}
		if rmErr := h.Deduper.Remove(context.WithoutCancel(ctx), boardID, recorded...); rmErr != nil {
			h.logger.WithError(rmErr).Warn("rollback dedupe keys")
		}
		return nil, nil, err
	}

	fresh := make([]domain.Command, 0, len(cmds))
	var skipped []string
	for i, cmd := range cmds {
		if added[i] {
			fresh = append(fresh, cmd)
		} else {
			skipped = append(skipped, cmd.IdempotencyKey)
		}
	}
	return fresh, skipped, nil
}

// forget releases the idempotency keys of a batch that was not applied so a
// retry is processed.
func (h *handler) forget(boardID string, cmds []domain.Command) {
	if h.Deduper == nil {
		return
	}
	keys := make([]string, len(cmds))
	for i := range cmds {
		keys[i] = cmds[i].IdempotencyKey
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.Deduper.Remove(ctx, boardID, keys...); err != nil {
		h.logger.WithError(err).WithField("board", boardID).Warn("release dedupe keys")
	}
}

func (h *handler) publish(boardID string, events []domain.Event) {
	if h.Notifier == nil {
		return
	}
	for _, ev := range events {
		if n, ok := notify.FromEvent(ev); ok {
			h.Notifier.Dispatch(notify.BoardTopic(boardID), n)
		}
	}
}

func (h *handler) fail(c echo.Context, err error) error {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("board", c.Param("board")).Error("board request failed")
		return c.JSON(status, errorResponse{Error: "internal error"})
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrBoardNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateTask), errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidTask),
		errors.Is(err, domain.ErrEmptyPatch),
		errors.Is(err, domain.ErrUnknownCommand):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
