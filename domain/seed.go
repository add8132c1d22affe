package domain

// SeedBoard returns the starter board shown before any change is saved.
func SeedBoard(id string) Board {
	return Board{
		ID: id,
		Tasks: []Task{
			{ID: "task-1", Title: "Audit competitor pricing for top 50 ASINs", Category: "Research", Assignee: "Priya Shah", DueDate: "2026-11-03", Status: StatusPending},
			{ID: "task-2", Title: "Set min/max price rules for summer catalog", Category: "Repricing", Assignee: "Marcus Lee", DueDate: "2026-11-05", Status: StatusPending},
			{ID: "task-3", Title: "Connect Walmart marketplace listing feed", Category: "Multichannel", Assignee: "Elena Ortiz", DueDate: "2026-10-28", Status: StatusActive},
			{ID: "task-4", Title: "Draft monthly Buy Box win-rate report", Category: "Reports", Assignee: "Priya Shah", DueDate: "2026-10-31", Status: StatusInReview},
			{ID: "task-5", Title: "Rework feedback request email copy", Category: "Feedback", Assignee: "Sam Carter", DueDate: "2026-10-24", Status: StatusRevision},
			{ID: "task-6", Title: "Import Q3 cost sheet", Category: "Import", Assignee: "Marcus Lee", DueDate: "2026-10-15", Status: StatusCompleted},
		},
	}
}
