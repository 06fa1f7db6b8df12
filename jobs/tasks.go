package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRoleChangeNotify tells a user that their store role changed.
	TaskRoleChangeNotify = "staff:role_change"
	// TaskSessionPurge deletes expired login session records.
	TaskSessionPurge = "auth:sessions_purge"
)

// RoleChangePayload describes one committed assignment or dismissal.
type RoleChangePayload struct {
	Action    string    `json:"action"`
	ActorID   int64     `json:"actor_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	RoleKey   string    `json:"role_key"`
	RoleName  string    `json:"role_name"`
	Bootstrap bool      `json:"bootstrap,omitempty"`
	At        time.Time `json:"at"`
}

// NewRoleChangeTask constructs an Asynq task.
func NewRoleChangeTask(payload RoleChangePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRoleChangeNotify, data), nil
}

// SessionPurgePayload configures the expired session sweep.
type SessionPurgePayload struct {
	// Grace keeps sessions this long past expiry for auditing.
	Grace time.Duration `json:"grace"`
}

// NewSessionPurgeTask constructs an Asynq task.
func NewSessionPurgeTask(grace time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(SessionPurgePayload{Grace: grace})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPurge, data), nil
}
