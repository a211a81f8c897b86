// Package supervisor is the Supervisor Loop: it owns startup (lock
// acquisition, Journal load, restart reconciliation), the tick cadence, the
// once-daily heartbeat alert, midnight rollover, and graceful shutdown. It
// holds the instance lock for as long as the daemon runs and is the only
// caller of the Pipeline Engine's Tick.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/clock"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/config"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/hygiene"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/lock"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/notify"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/pipeline"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/probe"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/runner"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/state"
)

// Supervisor wires every other component together and drives the daily
// loop. Construct one with Open, then call Run until ctx is cancelled.
type Supervisor struct {
	Config *config.Config
	Clock  clock.Clock
	Log    *logrus.Entry

	lock   *lock.Lock
	store  *state.Store
	audit  *state.AuditLog
	engine *pipeline.Engine
}

// Open acquires the instance lock, opens the audit log and today's Journal,
// and builds the Pipeline Engine. On error, Open releases whatever it had
// acquired and returns a nil Supervisor; on success, callers must call Close.
func Open(cfg *config.Config, clk clock.Clock, log *logrus.Entry) (*Supervisor, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if clk == nil {
		clk = clock.NewRealClock(nil)
	}

	l, err := lock.Acquire(cfg.Paths.InstanceLockFile())
	if err != nil {
		return nil, err
	}

	audit, err := state.OpenAuditLog(cfg.Paths.AuditDBFile())
	if err != nil {
		_ = l.Release()
		return nil, err
	}

	now := clk.Now()
	names := pipeline.Names(cfg.Steps)
	skipped := skippedToday(cfg.Steps, now)
	newFn := func() *state.Journal {
		return state.NewJournal(now.Format("2006-01-02"), names, skipped, cfg.Fingerprint)
	}

	store, err := state.Open(cfg.Paths, now, newFn, audit, log)
	if err != nil {
		_ = audit.Close()
		_ = l.Release()
		return nil, err
	}

	pr := probe.NewProbe(log)
	rn := runner.New(log)
	hy := hygiene.New(cfg.HygienePatterns, cfg.HygieneGrace, log)

	var notifier *notify.Notifier
	if cfg.MailerExecutable != "" {
		notifier = notify.New(rn, cfg.MailerExecutable, cfg.MailerArgsTemplate, cfg.Paths.Root,
			cfg.Paths.StepLogFile(now, "notifier", 1), store, log)
	}

	eng := pipeline.New(cfg.Steps, cfg.Paths, clk, store, pr, rn, notifier, hy, log, cfg.GlobalParallelism)
	eng.SetDay(now)
	// A Journal left over from an earlier day is adopted as-is by
	// state.Open; pointing the engine at that day makes the first tick roll
	// it over.
	if journalDay, err := time.ParseInLocation("2006-01-02", store.Journal().Date, now.Location()); err == nil && !clock.SameDay(journalDay, now) {
		eng.SetDay(journalDay)
	}

	s := &Supervisor{
		Config: cfg,
		Clock:  clk,
		Log:    log,
		lock:   l,
		store:  store,
		audit:  audit,
		engine: eng,
	}
	return s, nil
}

func skippedToday(steps []pipeline.Step, now time.Time) map[string]bool {
	skipped := make(map[string]bool)
	for _, s := range steps {
		if len(s.RequiredDaysOfWeek) == 0 {
			continue
		}
		allowed := false
		for _, d := range s.RequiredDaysOfWeek {
			if d == now.Weekday() {
				allowed = true
				break
			}
		}
		if !allowed {
			skipped[s.Name] = true
		}
	}
	return skipped
}

// Close releases the instance lock and closes the audit database. Safe to
// call more than once.
func (s *Supervisor) Close() {
	if s.audit != nil {
		if err := s.audit.Close(); err != nil {
			s.Log.WithError(err).Warn("supervisor: failed to close audit database")
		}
	}
	if err := s.lock.Release(); err != nil {
		s.Log.WithError(err).Warn("supervisor: failed to release instance lock")
	}
}

// Run is the supervisor's timed loop: it reconciles any orphaned Running
// steps left by a prior crash, then ticks on cfg.TickInterval or an
// immediate wake signal until ctx is cancelled, at which point it persists
// final state and returns.
func (s *Supervisor) Run(ctx context.Context) error {
	s.engine.ReconcileAfterRestart(s.Clock.Now())

	ticker := time.NewTicker(s.Config.TickInterval)
	defer ticker.Stop()

	s.Log.WithField("tick_interval", s.Config.TickInterval).Info("supervisor: entering run loop")

	for {
		select {
		case <-ctx.Done():
			s.Log.Info("supervisor: shutdown requested, persisting state and exiting")
			return nil
		case <-ticker.C:
			s.runTick(ctx)
		case <-s.engine.Wake():
			s.runTick(ctx)
		}
	}
}

func (s *Supervisor) runTick(ctx context.Context) {
	now := s.Clock.Now()

	if !clock.SameDay(now, s.engine.Day) {
		if err := s.rollover(now); err != nil {
			s.Log.WithError(err).Error("supervisor: midnight rollover failed")
			return
		}
	}

	s.engine.Tick(ctx, now)
	s.maybeHeartbeat(now)
}

// rollover is triggered when the local date no longer matches the Journal's
// date: it writes a final snapshot of the outgoing day, starts a fresh
// Journal for the new day, and resets the Engine's per-day bookkeeping.
// Per invariant 5, the old day's snapshot is durable on disk before the new
// Journal is ever written.
func (s *Supervisor) rollover(now time.Time) error {
	today := clock.LocalDate(now)
	names := pipeline.Names(s.Config.Steps)
	skipped := skippedToday(s.Config.Steps, today)
	newJournal := state.NewJournal(today.Format("2006-01-02"), names, skipped, s.Config.Fingerprint)

	if err := s.store.Rollover(newJournal); err != nil {
		return err
	}
	s.engine.SetDay(today)
	s.Log.WithField("day", today.Format("2006-01-02")).Info("supervisor: rolled over to new day")
	return nil
}

// maybeHeartbeat fires the once-daily Heartbeat alert once now has passed
// the configured heartbeat time, but only if no other alert has gone out
// yet today — a StepFailed or StartupNotice already told the operator the
// process is alive, so the heartbeat would be noise on top of it.
func (s *Supervisor) maybeHeartbeat(now time.Time) {
	notifier := s.engine.Notifier
	if notifier == nil {
		return
	}
	if clock.MinuteOfDay(now) < s.Config.HeartbeatMinute {
		return
	}
	if s.store.AnyAlertSentToday() {
		return
	}
	day := clock.LocalDate(now).Format("2006-01-02")
	alertKey := fmt.Sprintf("heartbeat:%s", day)
	notifier.Send(context.Background(), notify.Heartbeat, alertKey,
		"orchestrator heartbeat",
		fmt.Sprintf("orchestrator is alive on %s", day))
}

// StartupNotice sends the startup alert, deduplicated per day like any
// other notification.
func (s *Supervisor) StartupNotice(now time.Time) {
	notifier := s.engine.Notifier
	if notifier == nil {
		return
	}
	day := clock.LocalDate(now).Format("2006-01-02")
	alertKey := fmt.Sprintf("startup:%s", day)
	pid := os.Getpid()
	notifier.Send(context.Background(), notify.StartupNotice, alertKey,
		"orchestrator started",
		fmt.Sprintf("orchestrator (pid %d) started on %s", pid, day))
}

// Journal exposes a read-only snapshot of today's state for the status CLI.
func (s *Supervisor) Journal() state.Journal {
	return s.store.Journal()
}

// Audit exposes the supplementary audit log for the status --history flag.
func (s *Supervisor) Audit() *state.AuditLog {
	return s.audit
}
