package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"repricelab/api"
	"repricelab/domain"
	"repricelab/i18n"
	"repricelab/internal/httpclient"
	"repricelab/internal/testutil"
	"repricelab/notify"
	"repricelab/storage"
	"repricelab/web"
)

const smokeSecret = "smoke-secret"

type discardNotifier struct{}

func (discardNotifier) Dispatch(string, notify.Notification) {}

func newInstance(t *testing.T) *httptest.Server {
	t.Helper()
	messages, err := i18n.Load("en")
	if err != nil {
		t.Fatalf("load messages: %v", err)
	}
	auth, err := api.NewAuth(api.AuthConfig{TestSecret: []byte(smokeSecret)})
	if err != nil {
		t.Fatalf("new auth: %v", err)
	}
	logger, _ := test.NewNullLogger()
	boards := domain.NewBoardService(storage.NewMemoryStore())

	e := echo.New()
	api.Register(e, api.Options{
		Boards:   boards,
		Auth:     auth,
		Deduper:  api.NewMemoryDeduper(time.Minute),
		Notifier: discardNotifier{},
		Logger:   logger,
	})
	if err := web.Register(e, web.Options{
		Messages: messages,
		Auth:     auth,
		Boards:   boards,
		Notifier: discardNotifier{},
		Logger:   logger,
	}); err != nil {
		t.Fatalf("register web: %v", err)
	}
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, baseURL, secret string) *httpclient.Client {
	t.Helper()
	tok, err := testutil.TestToken(secret, "smoke", testutil.DefaultTTL)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	c := httpclient.New(baseURL, tok, 5*time.Second)
	c.Cookies = []*http.Cookie{{Name: "access_token", Value: tok}}
	return c
}

func TestSmokeChecksPassAgainstFullServer(t *testing.T) {
	srv := newInstance(t)
	logger, hook := test.NewNullLogger()

	if failures := run(context.Background(), newClient(t, srv.URL, smokeSecret), true, logger); failures != 0 {
		for _, entry := range hook.AllEntries() {
			t.Logf("%s: %v", entry.Message, entry.Data)
		}
		t.Fatalf("expected no failures, got %d", failures)
	}
}

func TestSmokeChecksReportWrongToken(t *testing.T) {
	srv := newInstance(t)
	logger, hook := test.NewNullLogger()

	failures := run(context.Background(), newClient(t, srv.URL, "other-secret"), false, logger)
	signed := 0
	for _, ch := range pageChecks() {
		if ch.signed {
			signed++
		}
	}
	if failures != signed {
		t.Fatalf("expected %d failures, got %d", signed, failures)
	}
	if len(hook.AllEntries()) == 0 {
		t.Fatal("expected failures to be logged")
	}
}
