package reindex

import "time"

// Task is the persisted record of an in-flight index migration for one
// tenant and environment. Its presence is the single source of truth for
// "is this tenant currently dual-writing".
type Task struct {
	Tenant      string    `json:"tenant"`
	Env         string    `json:"env"`
	SourceIndex string    `json:"source_index"`
	DestIndex   string    `json:"dest_index"`
	ESTaskID    string    `json:"es_task_id"`
	Attribute   string    `json:"attribute"`
	Origin      string    `json:"origin"`
	StartedAt   time.Time `json:"started_at"`
}
