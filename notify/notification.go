// Package notify builds push notification payloads and hands them to the
// delivery sinks off the request path.
package notify

import (
	"fmt"
	"net/url"

	"repricelab/domain"
)

// Notification is the payload the service worker reads from a push event.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// Envelope routes a notification to its audience.
type Envelope struct {
	Topic        string       `json:"topic"`
	Notification Notification `json:"notification"`
	Timestamp    int64        `json:"timestamp"`
}

const defaultIcon = "/static/icon.svg"

// BoardTopic is the audience of notifications about one board.
func BoardTopic(boardID string) string {
	return "board:" + boardID
}

// FromEvent describes a board change for people watching the board. Detail
// edits do not produce a notification.
func FromEvent(ev domain.Event) (Notification, bool) {
	n := Notification{
		URL:  "/admin/kanban?board=" + url.QueryEscape(ev.BoardID),
		Tag:  fmt.Sprintf("board-%s-%s", ev.BoardID, ev.Task.ID),
		Icon: defaultIcon,
	}
	switch ev.Type {
	case domain.TaskCreated:
		n.Title = "New task"
		n.Body = fmt.Sprintf("%s was added to %s", ev.Task.Title, ev.To.Title())
	case domain.TaskMoved, domain.TaskReordered:
		if !ev.StatusChanged() {
			return Notification{}, false
		}
		n.Title = "Task moved"
		n.Body = fmt.Sprintf("%s moved to %s", ev.Task.Title, ev.To.Title())
	case domain.TaskDeleted:
		n.Title = "Task removed"
		n.Body = fmt.Sprintf("%s was removed from %s", ev.Task.Title, ev.From.Title())
	default:
		return Notification{}, false
	}
	if ev.Task.Assignee != "" {
		n.Body += " (" + ev.Task.Assignee + ")"
	}
	return n, true
}
