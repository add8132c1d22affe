package domain

const (
	TaskCreated   = "task-created"
	TaskUpdated   = "task-updated"
	TaskMoved     = "task-moved"
	TaskReordered = "task-reordered"
	TaskDeleted   = "task-deleted"
)

// Event describes a change applied to a board.
type Event struct {
	Type      string `json:"type"`
	BoardID   string `json:"boardId"`
	CommandID string `json:"commandId,omitempty"`
	Task      Task   `json:"task"`
	From      Status `json:"from,omitempty"`
	To        Status `json:"to,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// StatusChanged reports whether the event moved a task between columns.
func (e Event) StatusChanged() bool {
	return e.From != "" && e.To != "" && e.From != e.To
}
