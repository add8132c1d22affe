package api

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"repricelab/domain"
	"repricelab/notify"
	"repricelab/storage"
)

type mockAuth struct{}

func (mockAuth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	return "user", nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []notify.Notification
	topic []string
}

func (r *recordingNotifier) Dispatch(topic string, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topic = append(r.topic, topic)
	r.sent = append(r.sent, n)
}

type failingBoards struct{ err error }

func (f failingBoards) Board(context.Context, string) (domain.Board, error) {
	return domain.Board{}, f.err
}

func (f failingBoards) Apply(context.Context, string, []domain.Command) (domain.Board, []domain.Event, error) {
	return domain.Board{}, nil, f.err
}

type testServer struct {
	e        *echo.Echo
	notifier *recordingNotifier
	deduper  *MemoryDeduper
	hook     *test.Hook
}

func newTestServer(t *testing.T, boards Boards) *testServer {
	t.Helper()
	if boards == nil {
		boards = domain.NewBoardService(storage.NewMemoryStore())
	}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	ts := &testServer{
		e:        echo.New(),
		notifier: &recordingNotifier{},
		deduper:  NewMemoryDeduper(time.Minute),
		hook:     hook,
	}
	Register(ts.e, Options{
		Boards:   boards,
		Auth:     mockAuth{},
		Deduper:  ts.deduper,
		Notifier: ts.notifier,
		Logger:   logger,
	})
	return ts
}

func (ts *testServer) do(method, target, body string, hdr ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer a.b.c")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := sonic.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestGetBoardReturnsSeed(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/admin/api/boards/acme", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[boardResponse](t, rec)
	if resp.Board.ID != "acme" || len(resp.Board.Tasks) != 6 {
		t.Fatalf("unexpected board %+v", resp.Board)
	}
	if len(resp.Columns) != 5 || resp.Columns[0].Status != domain.StatusPending || resp.Columns[0].Count != 2 {
		t.Fatalf("unexpected columns %+v", resp.Columns)
	}
}

func TestGetBoardRequiresAuth(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/admin/api/boards/acme", nil)
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	entry := ts.hook.LastEntry()
	if entry == nil || entry.Message != "observability.event" || entry.Level != log.WarnLevel {
		t.Fatalf("expected warn observability event, got %#v", entry)
	}
}

func TestGetBoardRejectsInvalidID(t *testing.T) {
	ts := newTestServer(t, nil)
	if rec := ts.do(http.MethodGet, "/admin/api/boards/Not_Valid", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetBoardStorageFailure(t *testing.T) {
	ts := newTestServer(t, failingBoards{err: errors.New("table unavailable")})
	rec := ts.do(http.MethodGet, "/admin/api/boards/acme", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "table unavailable") {
		t.Fatalf("internal error leaked to client: %s", rec.Body.String())
	}
}

func TestGetColumn(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/admin/api/boards/acme/columns/in_review", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	resp := decodeBody[columnResponse](t, rec)
	if resp.Title != "In Review" || len(resp.Tasks) != 1 || resp.Tasks[0].ID != "task-4" {
		t.Fatalf("unexpected column %+v", resp)
	}

	if rec := ts.do(http.MethodGet, "/admin/api/boards/acme/columns/archived", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestPostCommandsMovesTaskAndNotifies(t *testing.T) {
	ts := newTestServer(t, nil)

	body := `[{"idempotencyKey":"k1","type":"move-task","taskId":"task-1","data":{"status":"in_review"}}]`
	rec := ts.do(http.MethodPost, "/admin/api/boards/acme/commands", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[postCommandResponse](t, rec)
	if resp.Board == nil || resp.Board.Version != 1 {
		t.Fatalf("expected saved board, got %+v", resp.Board)
	}
	task, _ := resp.Board.Find("task-1")
	if task.Status != domain.StatusInReview {
		t.Fatalf("expected task-1 in review, got %s", task.Status)
	}
	if len(resp.Events) != 1 || resp.Events[0].Type != domain.TaskMoved {
		t.Fatalf("unexpected events %+v", resp.Events)
	}
	if len(resp.IdempotencyKeys) != 1 || resp.IdempotencyKeys[0] != "k1" {
		t.Fatalf("unexpected keys %v", resp.IdempotencyKeys)
	}

	if len(ts.notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(ts.notifier.sent))
	}
	if ts.notifier.topic[0] != "board:acme" {
		t.Fatalf("unexpected topic %q", ts.notifier.topic[0])
	}
	if want := "Audit competitor pricing for top 50 ASINs moved to In Review (Priya Shah)"; ts.notifier.sent[0].Body != want {
		t.Fatalf("unexpected body %q", ts.notifier.sent[0].Body)
	}
}

func TestPostCommandsSkipsDuplicates(t *testing.T) {
	ts := newTestServer(t, nil)
	body := `[{"idempotencyKey":"same","type":"delete-task","taskId":"task-6"}]`

	if rec := ts.do(http.MethodPost, "/admin/api/boards/acme/commands", body); rec.Code != http.StatusOK {
		t.Fatalf("first post: %d %s", rec.Code, rec.Body.String())
	}
	rec := ts.do(http.MethodPost, "/admin/api/boards/acme/commands", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("second post: %d %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[postCommandResponse](t, rec)
	if len(resp.Skipped) != 1 || resp.Skipped[0] != "same" {
		t.Fatalf("expected duplicate to be skipped, got %v", resp.Skipped)
	}
	if resp.Board == nil || resp.Board.Version != 1 || len(resp.Board.Tasks) != 5 {
		t.Fatalf("expected unchanged board after duplicate, got %+v", resp.Board)
	}
	if len(resp.Events) != 0 {
		t.Fatalf("expected no events for duplicate, got %+v", resp.Events)
	}
}

func TestPostCommandsGeneratesKeys(t *testing.T) {
	ts := newTestServer(t, nil)
	body := `[{"type":"create-task","data":{"title":"Review Q4 floor prices"}}]`
	rec := ts.do(http.MethodPost, "/admin/api/boards/acme/commands", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[postCommandResponse](t, rec)
	if len(resp.IdempotencyKeys) != 1 || resp.IdempotencyKeys[0] == "" {
		t.Fatalf("expected generated key, got %v", resp.IdempotencyKeys)
	}
	if len(resp.Board.Column(domain.StatusPending)) != 3 {
		t.Fatalf("expected new pending task, got %+v", resp.Board.Column(domain.StatusPending))
	}
}

func TestPostCommandsDomainErrorReleasesKeys(t *testing.T) {
	ts := newTestServer(t, nil)
	body := `[{"idempotencyKey":"retry-me","type":"move-task","taskId":"missing","data":{"status":"active"}}]`

	for i := 0; i < 2; i++ {
		rec := ts.do(http.MethodPost, "/admin/api/boards/acme/commands", body)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("attempt %d: expected 404, got %d %s", i, rec.Code, rec.Body.String())
		}
	}
	if len(ts.notifier.sent) != 0 {
		t.Fatalf("expected no notifications, got %d", len(ts.notifier.sent))
	}
}

func TestPostCommandsRejectsBadBodies(t *testing.T) {
	ts := newTestServer(t, nil)
	cases := map[string]struct {
		body string
		want int
	}{
		"unknown field": {body: `[{"type":"delete-task","taskId":"task-1","extra":1}]`, want: http.StatusBadRequest},
		"not an array":  {body: `{"type":"delete-task"}`, want: http.StatusBadRequest},
		"empty":         {body: `[]`, want: http.StatusBadRequest},
		"unknown type":  {body: `[{"type":"archive-task","taskId":"task-1"}]`, want: http.StatusBadRequest},
		"bad status":    {body: `[{"type":"move-task","taskId":"task-1","data":{"status":"done"}}]`, want: http.StatusBadRequest},
		"too large":     {body: "[" + strings.Repeat(" ", postCommandMaxSize) + "]", want: http.StatusRequestEntityTooLarge},
	}
	for name, tc := range cases {
		rec := ts.do(http.MethodPost, "/admin/api/boards/acme/commands", tc.body)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d %s", name, tc.want, rec.Code, rec.Body.String())
		}
	}
}

func TestPostCommandsGzipBody(t *testing.T) {
	ts := newTestServer(t, nil)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(`[{"type":"reorder-task","taskId":"task-2","data":{"overId":"task-1"}}]`)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/api/boards/acme/commands", &buf)
	req.Header.Set(echo.HeaderAuthorization, "Bearer a.b.c")
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[postCommandResponse](t, rec)
	if got := resp.Board.Column(domain.StatusPending); got[0].ID != "task-2" {
		t.Fatalf("expected task-2 first, got %+v", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/api/boards/acme/commands", strings.NewReader("not gzip"))
	req.Header.Set(echo.HeaderAuthorization, "Bearer a.b.c")
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec = httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid gzip, got %d", rec.Code)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", domain.ErrTaskNotFound), http.StatusNotFound},
		{domain.ErrBoardNotFound, http.StatusNotFound},
		{domain.ErrDuplicateTask, http.StatusConflict},
		{fmt.Errorf("board acme: %w", domain.ErrConcurrencyConflict), http.StatusConflict},
		{domain.ErrInvalidStatus, http.StatusBadRequest},
		{domain.ErrInvalidTask, http.StatusBadRequest},
		{domain.ErrEmptyPatch, http.StatusBadRequest},
		{domain.ErrUnknownCommand, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Fatalf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHealthz(t *testing.T) {
	e := echo.New()
	Register(e, Options{Boards: failingBoards{}, Auth: mockAuth{}, Health: func(context.Context) error {
		return errors.New("redis down")
	}})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestStreamBoardSendsUpdates(t *testing.T) {
	ts := newTestServer(t, nil)
	srv := httptest.NewServer(ts.e)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/admin/api/boards/acme/stream?token=a.b.c", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	first := readBoardEvent(t, reader)
	if len(first.Board.Tasks) != 6 {
		t.Fatalf("expected seed board first, got %+v", first.Board)
	}

	body := `[{"idempotencyKey":"s1","type":"delete-task","taskId":"task-3"}]`
	if rec := ts.do(http.MethodPost, "/admin/api/boards/acme/commands", body); rec.Code != http.StatusOK {
		t.Fatalf("post: %d %s", rec.Code, rec.Body.String())
	}
	second := readBoardEvent(t, reader)
	if len(second.Board.Tasks) != 5 || second.Board.Version != 1 {
		t.Fatalf("expected updated board, got %+v", second.Board)
	}
}

func TestStreamBoardLogsRequestOnClose(t *testing.T) {
	ts := newTestServer(t, nil)
	srv := httptest.NewServer(ts.e)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/admin/api/boards/acme/stream?token=a.b.c", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	readBoardEvent(t, bufio.NewReader(resp.Body))
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		for _, entry := range ts.hook.AllEntries() {
			attrs, ok := entry.Data["attributes"].(map[string]any)
			if !ok || attrs["http.route"] != streamRoute {
				continue
			}
			if attrs["repricelab.board.tasks_returned"] != int64(6) {
				t.Fatalf("expected 6 tasks returned, got %v", attrs["repricelab.board.tasks_returned"])
			}
			if entry.Level != log.InfoLevel {
				t.Fatalf("expected info level for a normal close, got %s", entry.Level)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("expected a stream request record after the client left")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStreamBoardRequiresToken(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/admin/api/boards/acme/stream", nil)
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func readBoardEvent(t *testing.T, r *bufio.Reader) boardResponse {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			if event != "board" {
				t.Fatalf("unexpected event %q", event)
			}
			var out boardResponse
			if err := sonic.UnmarshalString(data, &out); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			return out
		}
	}
}

func TestUpdateBrokerPerBoard(t *testing.T) {
	b := newUpdateBroker()
	a := b.subscribe("a")
	other := b.subscribe("b")

	b.notify("a")
	b.notify("a")
	select {
	case <-a:
	default:
		t.Fatal("expected signal for board a")
	}
	select {
	case <-a:
		t.Fatal("expected signals to coalesce")
	default:
	}
	select {
	case <-other:
		t.Fatal("unexpected signal for board b")
	default:
	}

	b.unsubscribe("a", a)
	if n := b.subscribers("a"); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}
