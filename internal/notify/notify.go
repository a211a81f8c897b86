// Package notify delivers operational alerts via an external mailer
// executable, run through the same Job Runner every step uses. Delivery is
// synchronous: there is no queue. Notifier failures are logged but never
// fail the step that triggered them.
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/runner"
)

// Kind enumerates the alert kinds the Notifier can enqueue.
type Kind string

const (
	StartupNotice Kind = "startup_notice"
	StepCompleted Kind = "step_completed"
	StepFailed    Kind = "step_failed"
	DailyReport   Kind = "daily_report"
	Heartbeat     Kind = "heartbeat"
)

// Dedup decides whether alertKey has already fired today; it is satisfied
// by state.Store.MarkAlertSent so the Notifier never has to know about the
// Journal directly.
type Dedup interface {
	MarkAlertSent(alertKey string) (bool, error)
}

// Notifier runs mail deliveries through mailerExecutable, expanding
// mailerArgsTemplate's {{kind}}/{{subject}}/{{body}} placeholders.
type Notifier struct {
	Runner             *runner.Runner
	MailerExecutable   string
	MailerArgsTemplate []string
	WorkDir            string
	LogFile            string
	Dedup              Dedup
	Log                *logrus.Entry
}

// New returns a Notifier. argsTemplate elements containing {{kind}},
// {{subject}}, or {{body}} are expanded per-message. logFile is where the
// mailer's own stdout/stderr is captured.
func New(r *runner.Runner, mailerExecutable string, argsTemplate []string, workDir, logFile string, dedup Dedup, log *logrus.Entry) *Notifier {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Notifier{
		Runner:             r,
		MailerExecutable:   mailerExecutable,
		MailerArgsTemplate: argsTemplate,
		WorkDir:            workDir,
		LogFile:            logFile,
		Dedup:              dedup,
		Log:                log,
	}
}

// Send delivers one alert by running the mailer and returns once the mailer
// exits or its 30s timeout expires; nothing is queued, so the caller waits
// for delivery. alertKey identifies this alert for today's deduplication; a
// repeat within the same day is silently suppressed.
func (n *Notifier) Send(ctx context.Context, kind Kind, alertKey, subject, body string) {
	isNew, err := n.Dedup.MarkAlertSent(alertKey)
	if err != nil {
		n.Log.WithError(err).WithField("alert_key", alertKey).Warn("notify: dedup check failed, sending anyway")
	} else if !isNew {
		n.Log.WithField("alert_key", alertKey).Debug("notify: alert already sent today, suppressing")
		return
	}

	args := make([]string, len(n.MailerArgsTemplate))
	for i, arg := range n.MailerArgsTemplate {
		arg = strings.ReplaceAll(arg, "{{kind}}", string(kind))
		arg = strings.ReplaceAll(arg, "{{subject}}", subject)
		arg = strings.ReplaceAll(arg, "{{body}}", body)
		args[i] = arg
	}

	result, err := n.Runner.Run(ctx, runner.Spec{
		StepName:   "notify:" + string(kind),
		Executable: n.MailerExecutable,
		Arguments:  args,
		WorkDir:    n.WorkDir,
		Timeout:    30 * time.Second,
		LogFile:    n.LogFile,
	})
	if err != nil {
		n.Log.WithError(err).WithField("kind", kind).Warn("notify: mailer failed to launch")
		return
	}
	if result.ExitCode != 0 {
		n.Log.WithField("kind", kind).WithField("exit_code", result.ExitCode).Warn("notify: mailer exited non-zero")
	}
}
