package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"text/template"

	"github.com/hibiken/asynq"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	jobmetrics "github.com/shoeshop/shoeshop/internal/jobs"
)

// NotificationObserver counts processed notifications by status.
type NotificationObserver interface {
	ObserveNotification(status string)
}

var roleChangeBody = template.Must(template.New("role_change").Parse(`Hello {{.Username}},

{{if .Bootstrap}}You are now the first store owner and can appoint the rest of the staff.
{{else if eq .Action "dismiss"}}You have been dismissed from your role as {{.RoleName}}.
{{else}}You have been assigned the role of {{.RoleName}}.
{{end}}
This change was recorded on {{.At.Format "02 Jan 2006 15:04 MST"}}.
`))

// RoleChangeNotifyJob emails users about their role changes.
type RoleChangeNotifyJob struct {
	Mailer   Mailer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Observer NotificationObserver
}

// NewRoleChangeNotifyJob wires dependencies for the notification handler.
func NewRoleChangeNotifyJob(mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics, observer NotificationObserver) *RoleChangeNotifyJob {
	return &RoleChangeNotifyJob{Mailer: mailer, Logger: logger, Metrics: metrics, Observer: observer}
}

// Handle processes TaskRoleChangeNotify tasks.
func (j *RoleChangeNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Mailer == nil {
		return errors.New("role change notify: handler not configured")
	}
	var payload RoleChangePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.observe("invalid")
		return asynq.SkipRetry
	}
	logger := j.logger().With(slog.Int64("user_id", payload.UserID), slog.String("role", payload.RoleKey))
	if payload.Email == "" {
		logger.Info("no email on file, skipping notification")
		j.observe("skipped")
		return nil
	}

	tracker := j.Metrics.Track(TaskRoleChangeNotify)
	msg, err := RenderRoleChange(payload)
	if err != nil {
		j.observe("invalid")
		return tracker.End(errors.Join(err, asynq.SkipRetry))
	}
	if err := j.Mailer.Send(ctx, msg); err != nil {
		logger.Error("send role change mail", slog.Any("error", err))
		j.observe("failed")
		return tracker.End(err)
	}
	j.observe("sent")
	return tracker.End(nil)
}

// RenderRoleChange builds the notification email for payload.
func RenderRoleChange(payload RoleChangePayload) (Message, error) {
	title := cases.Title(language.English)
	payload.RoleName = title.String(payload.RoleName)
	var body bytes.Buffer
	if err := roleChangeBody.Execute(&body, payload); err != nil {
		return Message{}, err
	}
	subject := "Your store role has changed"
	if payload.Action == "assign" {
		subject = "You are now " + payload.RoleName
	}
	return Message{To: payload.Email, Subject: subject, Body: body.String()}, nil
}

func (j *RoleChangeNotifyJob) observe(status string) {
	if j.Observer != nil {
		j.Observer.ObserveNotification(status)
	}
}

func (j *RoleChangeNotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRoleChangeNotify))
	}
	return slog.Default().With(slog.String("job", TaskRoleChangeNotify))
}
