package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestTaskMarshalKeepsStatus(t *testing.T) {
	task := Task{ID: "t1", Title: "Title", Status: StatusInReview}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}

	if !strings.Contains(string(payload), "\"status\":\"in_review\"") {
		t.Fatalf("expected status field to be present, got %s", payload)
	}
	if strings.Contains(string(payload), "dueDate") {
		t.Fatalf("expected empty due date to be omitted, got %s", payload)
	}
}

func TestParseStatus(t *testing.T) {
	got, err := ParseStatus(" In_Review ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != StatusInReview {
		t.Fatalf("unexpected status %q", got)
	}

	if _, err := ParseStatus("done"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestColumnsOrder(t *testing.T) {
	cols := Columns()
	want := []string{"Pending", "Active", "In Review", "Revision", "Completed"}
	if len(cols) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(cols))
	}
	for i, c := range cols {
		if c.Title != want[i] || c.Position != i {
			t.Fatalf("column %d: got %+v", i, c)
		}
	}
}

func TestTaskOverdue(t *testing.T) {
	now := time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		task Task
		want bool
	}{
		{"past", Task{DueDate: "2026-10-13", Status: StatusActive}, true},
		{"today", Task{DueDate: "2026-10-14", Status: StatusActive}, false},
		{"completed", Task{DueDate: "2026-01-01", Status: StatusCompleted}, false},
		{"no date", Task{Status: StatusPending}, false},
		{"bad date", Task{DueDate: "soon", Status: StatusPending}, false},
	}
	for _, tc := range cases {
		if got := tc.task.Overdue(now); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
