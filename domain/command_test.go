package domain

import (
	"errors"
	"testing"

	"github.com/bytedance/sonic"
)

func mustData(t *testing.T, v any) sonic.NoCopyRawMessage {
	t.Helper()
	data, err := sonic.Marshal(v)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	return data
}

func ptrInt(i int) *int          { return &i }
func ptrString(s string) *string { return &s }

func TestApplyCreate(t *testing.T) {
	cmd := Command{ID: "k1", Type: CreateTask, TaskID: "new", Timestamp: 7, Data: mustData(t, CreateTaskData{
		Title: "Write listing copy", Category: "Copy", Assignee: "Sam", Status: StatusActive, Index: ptrInt(0),
	})}

	out, ev, err := Apply(testBoard(), cmd)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if ev.Type != TaskCreated || ev.Task.ID != "new" || ev.To != StatusActive || ev.Timestamp != 7 || ev.CommandID != "k1" {
		t.Fatalf("unexpected event %#v", ev)
	}
	col := out.Column(StatusActive)
	if len(col) != 2 || col[0].ID != "new" {
		t.Fatalf("expected new task at head of active column, got %v", ids(col))
	}
}

func TestApplyCreateWithoutData(t *testing.T) {
	if _, _, err := Apply(testBoard(), Command{Type: CreateTask}); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
}

func TestApplyUpdate(t *testing.T) {
	cmd := Command{Type: UpdateTask, TaskID: "a", Data: mustData(t, TaskPatch{Category: ptrString("Design")})}
	out, ev, err := Apply(testBoard(), cmd)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if ev.Type != TaskUpdated || ev.StatusChanged() {
		t.Fatalf("unexpected event %#v", ev)
	}
	if got, _ := out.Find("a"); got.Category != "Design" {
		t.Fatalf("category not applied: %+v", got)
	}

	if _, _, err := Apply(testBoard(), Command{Type: UpdateTask, TaskID: "a"}); !errors.Is(err, ErrEmptyPatch) {
		t.Fatalf("expected ErrEmptyPatch, got %v", err)
	}
}

func TestApplyMove(t *testing.T) {
	cmd := Command{Type: MoveTask, TaskID: "a", Data: mustData(t, MoveTaskData{Status: StatusInReview})}
	out, ev, err := Apply(testBoard(), cmd)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if ev.Type != TaskMoved || ev.From != StatusPending || ev.To != StatusInReview || !ev.StatusChanged() {
		t.Fatalf("unexpected event %#v", ev)
	}
	if got := out.Column(StatusInReview); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("unexpected in review column %v", ids(got))
	}

	missing := Command{Type: MoveTask, TaskID: "zz", Data: mustData(t, MoveTaskData{Status: StatusActive})}
	if _, _, err := Apply(testBoard(), missing); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestApplyReorder(t *testing.T) {
	cmd := Command{Type: ReorderTask, TaskID: "e", Data: mustData(t, ReorderTaskData{OverID: "d"})}
	out, ev, err := Apply(testBoard(), cmd)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if ev.Type != TaskReordered || ev.From != StatusPending || ev.To != StatusCompleted {
		t.Fatalf("unexpected event %#v", ev)
	}
	if got, _ := out.Find("e"); got.Status != StatusCompleted {
		t.Fatalf("expected e to join completed column, got %s", got.Status)
	}
}

func TestApplyDelete(t *testing.T) {
	out, ev, err := Apply(testBoard(), Command{Type: DeleteTask, TaskID: "d"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if ev.Type != TaskDeleted || ev.From != StatusCompleted {
		t.Fatalf("unexpected event %#v", ev)
	}
	if _, ok := out.Find("d"); ok {
		t.Fatalf("task still present")
	}
}

func TestApplyUnknownCommand(t *testing.T) {
	if _, _, err := Apply(testBoard(), Command{Type: "archive-task", TaskID: "a"}); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestApplyMalformedData(t *testing.T) {
	cmd := Command{Type: MoveTask, TaskID: "a", Data: sonic.NoCopyRawMessage(`{"status":`)}
	if _, _, err := Apply(testBoard(), cmd); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
}
