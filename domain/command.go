package domain

import (
	"fmt"

	"github.com/bytedance/sonic"
)

const (
	CreateTask  = "create-task"
	UpdateTask  = "update-task"
	MoveTask    = "move-task"
	ReorderTask = "reorder-task"
	DeleteTask  = "delete-task"
)

// Command represents a write request against a board.
type Command struct {
	// ID carries the idempotency key once the command has been accepted.
	ID             string                 `json:"id,omitempty"`
	IdempotencyKey string                 `json:"idempotencyKey"`
	Type           string                 `json:"type"`
	TaskID         string                 `json:"taskId,omitempty"`
	Data           sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp      int64                  `json:"timestamp"`
}

// CreateTaskData is the payload of a create-task command.
type CreateTaskData struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Assignee string `json:"assignee"`
	DueDate  string `json:"dueDate"`
	Status   Status `json:"status"`
	Index    *int   `json:"index"`
}

// MoveTaskData is the payload of a move-task command.
type MoveTaskData struct {
	Status Status `json:"status"`
	Index  *int   `json:"index"`
}

// ReorderTaskData is the payload of a reorder-task command.
type ReorderTaskData struct {
	OverID string `json:"overId"`
}

// Apply runs a single command against b and returns the resulting board and
// the event describing the change. b is never modified.
func Apply(b Board, cmd Command) (Board, Event, error) {
	ev := Event{BoardID: b.ID, Timestamp: cmd.Timestamp, CommandID: cmd.ID}
	switch cmd.Type {
	case CreateTask:
		var data CreateTaskData
		if err := decodeData(cmd, &data); err != nil {
			return b, Event{}, err
		}
		task := Task{
			ID:       cmd.TaskID,
			Title:    data.Title,
			Category: data.Category,
			Assignee: data.Assignee,
			DueDate:  data.DueDate,
			Status:   data.Status,
		}
		out, t, err := b.Add(task, indexOrAppend(data.Index))
		if err != nil {
			return b, Event{}, err
		}
		ev.Type, ev.Task, ev.To = TaskCreated, t, t.Status
		return out, ev, nil
	case UpdateTask:
		var patch TaskPatch
		if err := decodeData(cmd, &patch); err != nil {
			return b, Event{}, err
		}
		out, t, err := b.Update(cmd.TaskID, patch)
		if err != nil {
			return b, Event{}, err
		}
		ev.Type, ev.Task = TaskUpdated, t
		return out, ev, nil
	case MoveTask:
		var data MoveTaskData
		if err := decodeData(cmd, &data); err != nil {
			return b, Event{}, err
		}
		prev, ok := b.Find(cmd.TaskID)
		if !ok {
			return b, Event{}, fmt.Errorf("%w: %s", ErrTaskNotFound, cmd.TaskID)
		}
		out, t, err := b.Move(cmd.TaskID, data.Status, indexOrAppend(data.Index))
		if err != nil {
			return b, Event{}, err
		}
		ev.Type, ev.Task, ev.From, ev.To = TaskMoved, t, prev.Status, t.Status
		return out, ev, nil
	case ReorderTask:
		var data ReorderTaskData
		if err := decodeData(cmd, &data); err != nil {
			return b, Event{}, err
		}
		prev, ok := b.Find(cmd.TaskID)
		if !ok {
			return b, Event{}, fmt.Errorf("%w: %s", ErrTaskNotFound, cmd.TaskID)
		}
		out, t, err := b.Reorder(cmd.TaskID, data.OverID)
		if err != nil {
			return b, Event{}, err
		}
		ev.Type, ev.Task, ev.From, ev.To = TaskReordered, t, prev.Status, t.Status
		return out, ev, nil
	case DeleteTask:
		out, t, err := b.Remove(cmd.TaskID)
		if err != nil {
			return b, Event{}, err
		}
		ev.Type, ev.Task, ev.From = TaskDeleted, t, t.Status
		return out, ev, nil
	default:
		return b, Event{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
}

func decodeData(cmd Command, v any) error {
	if len(cmd.Data) == 0 {
		if cmd.Type == UpdateTask {
			return fmt.Errorf("task %s: %w", cmd.TaskID, ErrEmptyPatch)
		}
		if cmd.Type != CreateTask {
			return fmt.Errorf("%w: %s requires data", ErrInvalidTask, cmd.Type)
		}
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if err := sonic.Unmarshal(cmd.Data, v); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrInvalidTask, cmd.Type, err)
	}
	return nil
}

func indexOrAppend(i *int) int {
	if i == nil {
		return -1
	}
	return *i
}
