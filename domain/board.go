package domain

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

var boardIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidBoardID reports whether id can be used as a board key in every backend.
func ValidBoardID(id string) bool {
	return boardIDPattern.MatchString(id)
}

// Board is an ordered list of tasks. A column is the sub-sequence of tasks
// sharing a status, in list order.
type Board struct {
	ID        string    `json:"id"`
	Tasks     []Task    `json:"tasks"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ColumnSummary is a column together with the number of tasks in it.
type ColumnSummary struct {
	Column
	Count int `json:"count"`
}

// Clone returns a copy that shares no task storage with b.
func (b Board) Clone() Board {
	out := b
	out.Tasks = make([]Task, len(b.Tasks))
	copy(out.Tasks, b.Tasks)
	return out
}

// Validate checks that every task has a unique id and a known status.
func (b Board) Validate() error {
	seen := make(map[string]struct{}, len(b.Tasks))
	for i, t := range b.Tasks {
		if t.ID == "" {
			return fmt.Errorf("%w: task at position %d has no id", ErrInvalidTask, i)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
		}
		seen[t.ID] = struct{}{}
		if !t.Status.Valid() {
			return fmt.Errorf("%w: task %s has status %q", ErrInvalidStatus, t.ID, t.Status)
		}
	}
	return nil
}

func (b Board) indexOf(id string) int {
	for i := range b.Tasks {
		if b.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Find returns the task with the given id.
func (b Board) Find(id string) (Task, bool) {
	if i := b.indexOf(id); i >= 0 {
		return b.Tasks[i], true
	}
	return Task{}, false
}

// Column returns the tasks in status s in board order.
func (b Board) Column(s Status) []Task {
	out := []Task{}
	for _, t := range b.Tasks {
		if t.Status == s {
			out = append(out, t)
		}
	}
	return out
}

// Summary returns every column with its task count, in column order.
func (b Board) Summary() []ColumnSummary {
	counts := make(map[Status]int, len(statusOrder))
	for _, t := range b.Tasks {
		counts[t.Status]++
	}
	cols := Columns()
	out := make([]ColumnSummary, len(cols))
	for i, c := range cols {
		out[i] = ColumnSummary{Column: c, Count: counts[c.Status]}
	}
	return out
}

// Add inserts task at index within its column. A negative or out of range
// index appends to the column. Missing ids are generated and a missing status
// defaults to pending.
func (b Board) Add(task Task, index int) (Board, Task, error) {
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return b, Task{}, fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = StatusPending
	}
	if !task.Status.Valid() {
		return b, Task{}, fmt.Errorf("%w: %q", ErrInvalidStatus, task.Status)
	}
	if err := validDueDate(task.DueDate); err != nil {
		return b, Task{}, err
	}
	if b.indexOf(task.ID) >= 0 {
		return b, Task{}, fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}

	out := b.Clone()
	pos := columnInsertIndex(out.Tasks, task.Status, index)
	out.Tasks = slices.Insert(out.Tasks, pos, task)
	return out, task, nil
}

// Update applies a partial change to the task's details. Status and position
// are changed through Move and Reorder.
func (b Board) Update(id string, patch TaskPatch) (Board, Task, error) {
	if patch.Empty() {
		return b, Task{}, fmt.Errorf("task %s: %w", id, ErrEmptyPatch)
	}
	i := b.indexOf(id)
	if i < 0 {
		return b, Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	out := b.Clone()
	t := out.Tasks[i]
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return b, Task{}, fmt.Errorf("%w: title is required", ErrInvalidTask)
		}
		t.Title = title
	}
	if patch.Category != nil {
		t.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Assignee != nil {
		t.Assignee = strings.TrimSpace(*patch.Assignee)
	}
	if patch.DueDate != nil {
		if err := validDueDate(*patch.DueDate); err != nil {
			return b, Task{}, err
		}
		t.DueDate = *patch.DueDate
	}
	out.Tasks[i] = t
	return out, t, nil
}

// Move drops the task into column s at index within that column. An index
// past the end of the column, or a negative one, appends.
func (b Board) Move(id string, s Status, index int) (Board, Task, error) {
	if !s.Valid() {
		return b, Task{}, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	i := b.indexOf(id)
	if i < 0 {
		return b, Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	out := b.Clone()
	t := out.Tasks[i]
	out.Tasks = slices.Delete(out.Tasks, i, i+1)
	t.Status = s
	pos := columnInsertIndex(out.Tasks, s, index)
	out.Tasks = slices.Insert(out.Tasks, pos, t)
	return out, t, nil
}

// Reorder handles a task dropped onto another task: the active task takes
// over's status and moves to over's position in the list.
func (b Board) Reorder(activeID, overID string) (Board, Task, error) {
	from := b.indexOf(activeID)
	if from < 0 {
		return b, Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, activeID)
	}
	if activeID == overID {
		return b.Clone(), b.Tasks[from], nil
	}
	to := b.indexOf(overID)
	if to < 0 {
		return b, Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, overID)
	}

	out := b.Clone()
	t := out.Tasks[from]
	t.Status = out.Tasks[to].Status
	out.Tasks = slices.Delete(out.Tasks, from, from+1)
	out.Tasks = slices.Insert(out.Tasks, to, t)
	return out, t, nil
}

// Remove deletes the task from the board.
func (b Board) Remove(id string) (Board, Task, error) {
	i := b.indexOf(id)
	if i < 0 {
		return b, Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	out := b.Clone()
	t := out.Tasks[i]
	out.Tasks = slices.Delete(out.Tasks, i, i+1)
	return out, t, nil
}

// columnInsertIndex maps a position within column s to a position in tasks.
func columnInsertIndex(tasks []Task, s Status, index int) int {
	seen := 0
	last := -1
	for i, t := range tasks {
		if t.Status != s {
			continue
		}
		if index >= 0 && seen == index {
			return i
		}
		seen++
		last = i
	}
	if last >= 0 {
		return last + 1
	}
	return len(tasks)
}
