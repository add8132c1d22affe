// Command smoke requests every page of a running instance and checks the
// status code and visible text of each response.
//
//	smoke --base-url http://localhost:8080 --secret "$TEST_JWT_SECRET"
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"repricelab/internal/httpclient"
	"repricelab/internal/testutil"
)

type check struct {
	path   string
	signed bool
	status int
	text   []string
}

var dashboardSlugs = []string{"orders", "competitors", "feedback", "reports", "automations", "app-store", "import", "multichannel"}

func pageChecks() []check {
	checks := []check{
		{path: "/", status: http.StatusOK, text: []string{"Win the Buy Box", "Start your 14-day free trial"}},
		{path: "/features", status: http.StatusOK, text: []string{"Everything you need to stay competitive"}},
		{path: "/pricing", status: http.StatusOK, text: []string{"Simple pricing", "Most popular"}},
		{path: "/contact", status: http.StatusOK, text: []string{"Talk to our team", "Send message"}},
		{path: "/privacy", status: http.StatusOK, text: []string{"Privacy Policy"}},
		{path: "/terms", status: http.StatusOK, text: []string{"Terms of Service"}},
		{path: "/accessibility", status: http.StatusOK, text: []string{"Accessibility Statement"}},
		{path: "/login", status: http.StatusOK, text: []string{"Sign in to RepriceLab"}},
		{path: "/?lang=es", status: http.StatusOK, text: []string{`lang="es"`}},
		{path: "/sw.js", status: http.StatusOK, text: []string{"push", "notificationclick"}},
		{path: "/static/css/site.css", status: http.StatusOK},
		{path: "/dashboard", status: http.StatusSeeOther},
		{path: "/dashboard", signed: true, status: http.StatusOK, text: []string{"Welcome back"}},
		{path: "/dashboard/unknown", signed: true, status: http.StatusNotFound},
		{path: "/admin/kanban", signed: true, status: http.StatusOK, text: []string{"Client task board", "In Review"}},
		{path: "/admin/api/boards/demo", signed: true, status: http.StatusOK, text: []string{`"tasks"`, `"columns"`}},
		{path: "/admin/api/boards/demo", status: http.StatusUnauthorized},
		{path: "/healthz", status: http.StatusOK},
	}
	for _, slug := range dashboardSlugs {
		checks = append(checks, check{path: "/dashboard/" + slug, signed: true, status: http.StatusOK, text: []string{"Coming soon"}})
	}
	return checks
}

func main() {
	var (
		baseURL = flag.String("base-url", "http://localhost:8080", "address of the running instance")
		token   = flag.String("token", "", "access token for signed-in checks")
		secret  = flag.String("secret", os.Getenv("TEST_JWT_SECRET"), "sign a test token with this secret when --token is empty")
		writes  = flag.Bool("writes", false, "also create a task on a scratch board")
		timeout = flag.Duration("timeout", 10*time.Second, "per-request timeout")
	)
	flag.Parse()

	if *token == "" && *secret != "" {
		tok, err := testutil.TestToken(*secret, "smoke", testutil.DefaultTTL)
		if err != nil {
			log.Fatalf("sign token: %v", err)
		}
		*token = tok
	}
	if *token == "" {
		log.Fatal("either --token or --secret is required")
	}

	client := httpclient.New(strings.TrimRight(*baseURL, "/"), *token, *timeout)
	client.Cookies = []*http.Cookie{{Name: "access_token", Value: *token}}

	failures := run(context.Background(), client, *writes, log.StandardLogger())
	if failures > 0 {
		log.Fatalf("%d smoke checks failed", failures)
	}
	log.Info("all smoke checks passed")
}

// run executes every check and returns the number of failures.
func run(ctx context.Context, client *httpclient.Client, writes bool, logger *log.Logger) int {
	failures := 0
	for _, ch := range pageChecks() {
		if err := runCheck(ctx, client, ch); err != nil {
			failures++
			logger.WithFields(log.Fields{"path": ch.path, "signed": ch.signed}).Error(err)
			continue
		}
		logger.WithField("path", ch.path).Debug("ok")
	}
	if writes {
		if err := checkCreateTask(ctx, client); err != nil {
			failures++
			logger.WithField("check", "create-task").Error(err)
		}
	}
	return failures
}

func runCheck(ctx context.Context, client *httpclient.Client, ch check) error {
	resp, err := client.Get(ctx, ch.path, ch.signed)
	if err != nil {
		return err
	}
	if resp.Status != ch.status {
		return fmt.Errorf("expected status %d, got %d", ch.status, resp.Status)
	}
	body := string(resp.Body)
	for _, want := range ch.text {
		if !strings.Contains(body, want) {
			return fmt.Errorf("response does not contain %q", want)
		}
	}
	return nil
}

type commandResponse struct {
	Board struct {
		Tasks []struct {
			ID     string `json:"id"`
			Title  string `json:"title"`
			Status string `json:"status"`
		} `json:"tasks"`
	} `json:"board"`
	IdempotencyKeys []string `json:"idempotencyKeys"`
}

// checkCreateTask adds a task to a fresh board so repeated runs never touch
// the demo board.
func checkCreateTask(ctx context.Context, client *httpclient.Client) error {
	board := "smoke-" + uuid.NewString()[:8]
	title := "Smoke check " + board
	cmds := []map[string]any{{
		"type": "create-task",
		"data": map[string]any{"title": title, "status": "active"},
	}}
	var out commandResponse
	resp, err := client.PostJSON(ctx, "/admin/api/boards/"+board+"/commands", cmds, &out)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("expected status 200, got %d: %s", resp.Status, resp.Body)
	}
	if len(out.IdempotencyKeys) != 1 {
		return fmt.Errorf("expected one idempotency key, got %v", out.IdempotencyKeys)
	}
	for _, task := range out.Board.Tasks {
		if task.Title == title && task.Status == "active" {
			return nil
		}
	}
	return fmt.Errorf("created task %q missing from board", title)
}
