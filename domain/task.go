package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of a task due date.
const DateLayout = "2006-01-02"

// Status is the kanban column a task sits in.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusInReview  Status = "in_review"
	StatusRevision  Status = "revision"
	StatusCompleted Status = "completed"
)

var statusOrder = []Status{StatusPending, StatusActive, StatusInReview, StatusRevision, StatusCompleted}

var statusTitles = map[Status]string{
	StatusPending:   "Pending",
	StatusActive:    "Active",
	StatusInReview:  "In Review",
	StatusRevision:  "Revision",
	StatusCompleted: "Completed",
}

// Valid reports whether s is one of the board statuses.
func (s Status) Valid() bool {
	_, ok := statusTitles[s]
	return ok
}

// Title is the human readable column name.
func (s Status) Title() string {
	if t, ok := statusTitles[s]; ok {
		return t
	}
	return string(s)
}

// ParseStatus accepts the wire value of a status, ignoring surrounding space
// and case.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Statuses returns every status in column order.
func Statuses() []Status {
	out := make([]Status, len(statusOrder))
	copy(out, statusOrder)
	return out
}

// Column describes one lane of the board.
type Column struct {
	Status   Status `json:"status"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

// Columns returns the board lanes in display order.
func Columns() []Column {
	cols := make([]Column, len(statusOrder))
	for i, s := range statusOrder {
		cols[i] = Column{Status: s, Title: s.Title(), Position: i}
	}
	return cols
}

// Task represents a single card on the board.
type Task struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
	Assignee string `json:"assignee,omitempty"`
	DueDate  string `json:"dueDate,omitempty"`
	Status   Status `json:"status"`
}

// Due parses the due date. The zero time is returned when no date is set.
func (t Task) Due() (time.Time, error) {
	if t.DueDate == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateLayout, t.DueDate)
}

// Overdue reports whether the task is past its due date and not completed.
func (t Task) Overdue(now time.Time) bool {
	if t.Status == StatusCompleted {
		return false
	}
	due, err := t.Due()
	if err != nil || due.IsZero() {
		return false
	}
	y, m, d := now.Date()
	return due.Before(time.Date(y, m, d, 0, 0, 0, 0, due.Location()))
}

// TaskPatch carries partial updates for a task.
type TaskPatch struct {
	Title    *string `json:"title,omitempty"`
	Category *string `json:"category,omitempty"`
	Assignee *string `json:"assignee,omitempty"`
	DueDate  *string `json:"dueDate,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Category == nil && p.Assignee == nil && p.DueDate == nil
}

func validDueDate(raw string) error {
	if raw == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, raw); err != nil {
		return fmt.Errorf("%w: due date %q", ErrInvalidTask, raw)
	}
	return nil
}
