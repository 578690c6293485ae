package usecases

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/infrastructure"
	"tracker_suite/internal/interfaces"
)

const trialMonitorLock = "tracker:trial-monitor"

type TrialMonitorConfig struct {
	Schedule      string
	WarningWindow time.Duration
	AppURL        string
}

// CycleResult summarizes one trial monitor pass.
type CycleResult struct {
	Skipped  bool `json:"skipped"`
	Warned   int  `json:"warned"`
	Expired  int  `json:"expired"`
	Failures int  `json:"failures"`
}

// TrialMonitor warns users whose trial is about to end and expires finished trials.
type TrialMonitor struct {
	users    interfaces.UserStore
	locker   interfaces.Locker
	mailer   interfaces.Mailer
	notifier interfaces.Notifier
	cfg      TrialMonitorConfig
	clock    clock.Clock
	metrics  *infrastructure.TrialMetrics
	log      *zap.Logger

	cron *cron.Cron
}

func NewTrialMonitor(
	users interfaces.UserStore,
	locker interfaces.Locker,
	mailer interfaces.Mailer,
	notifier interfaces.Notifier,
	cfg TrialMonitorConfig,
	clk clock.Clock,
	metrics *infrastructure.TrialMetrics,
	log *zap.Logger,
) *TrialMonitor {
	if cfg.WarningWindow <= 0 {
		cfg.WarningWindow = 48 * time.Hour
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 6h"
	}
	if metrics == nil {
		metrics = infrastructure.NewTrialMetrics(nil)
	}
	return &TrialMonitor{
		users:    users,
		locker:   locker,
		mailer:   mailer,
		notifier: notifier,
		cfg:      cfg,
		clock:    clk,
		metrics:  metrics,
		log:      log.With(zap.String("component", "trial_monitor")),
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Start schedules RunCycle. Cycles use ctx, so cancelling it aborts a running cycle.
func (m *TrialMonitor) Start(ctx context.Context) error {
	logger := cronLogger{s: m.log.Sugar()}
	m.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	_, err := m.cron.AddFunc(m.cfg.Schedule, func() {
		res, err := m.RunCycle(ctx)
		if err != nil {
			m.log.Warn("Trial monitor cycle finished with errors", zap.Int("failures", res.Failures), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid trial check schedule %q: %w", m.cfg.Schedule, err)
	}
	m.cron.Start()
	m.log.Info("Trial monitor scheduled", zap.String("schedule", m.cfg.Schedule))
	return nil
}

// Stop waits for a running cycle to return.
func (m *TrialMonitor) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
	m.log.Info("Trial monitor stopped")
}

// RunCycle runs one pass under the cluster-wide lock. A per-user failure is collected
// in the returned error and does not stop the pass.
func (m *TrialMonitor) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	var errs error

	ok, err := m.locker.TryWithLock(ctx, trialMonitorLock, func(ctx context.Context) error {
		now := m.clock.Now()
		errs = multierr.Append(m.sendWarnings(ctx, now, &res), m.expireTrials(ctx, now, &res))
		return nil
	})
	if err != nil {
		m.metrics.Cycles.WithLabelValues("error").Inc()
		return res, err
	}
	if !ok {
		res.Skipped = true
		m.metrics.Cycles.WithLabelValues("skipped").Inc()
		m.log.Debug("Trial monitor lock held elsewhere, skipping cycle")
		return res, nil
	}

	res.Failures = len(multierr.Errors(errs))
	m.metrics.Failures.Add(float64(res.Failures))
	if res.Failures > 0 {
		m.metrics.Cycles.WithLabelValues("partial").Inc()
	} else {
		m.metrics.Cycles.WithLabelValues("ok").Inc()
	}
	m.log.Info("Trial monitor cycle complete",
		zap.Int("warned", res.Warned), zap.Int("expired", res.Expired), zap.Int("failures", res.Failures))
	return res, errs
}

func (m *TrialMonitor) sendWarnings(ctx context.Context, now time.Time, res *CycleResult) error {
	users, err := m.users.TrialsEndingBetween(ctx, now, now.Add(m.cfg.WarningWindow))
	if err != nil {
		return fmt.Errorf("load expiring trials: %w", err)
	}

	var errs error
	for i := range users {
		u := &users[i]
		subject, body := trialWarningEmail(u, now, m.cfg.AppURL)
		if err := m.mailer.Send(ctx, u.Email, subject, body); err != nil {
			m.log.Warn("Failed to send trial warning", zap.Int64("user_id", u.ID), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("warn user %d: %w", u.ID, err))
			continue
		}
		if err := m.users.MarkTrialWarningSent(ctx, u.ID); err != nil {
			m.log.Warn("Failed to mark trial warning", zap.Int64("user_id", u.ID), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("mark user %d warned: %w", u.ID, err))
			continue
		}
		res.Warned++
		m.metrics.Warnings.Inc()
	}
	return errs
}

func (m *TrialMonitor) expireTrials(ctx context.Context, now time.Time, res *CycleResult) error {
	users, err := m.users.TrialsEndedBefore(ctx, now)
	if err != nil {
		return fmt.Errorf("load ended trials: %w", err)
	}

	var errs error
	for i := range users {
		u := &users[i]
		flipped, err := m.users.ExpireTrial(ctx, u.ID)
		if err != nil {
			m.log.Warn("Failed to expire trial", zap.Int64("user_id", u.ID), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("expire user %d: %w", u.ID, err))
			continue
		}
		if !flipped {
			continue
		}
		res.Expired++
		m.metrics.Expired.Inc()

		subject, body := trialExpiredEmail(u, m.cfg.AppURL)
		if err := m.mailer.Send(ctx, u.Email, subject, body); err != nil {
			m.log.Warn("Failed to send trial expiration email", zap.Int64("user_id", u.ID), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("notify user %d of expiry: %w", u.ID, err))
		}
		if err := m.notifier.Notify(ctx, fmt.Sprintf("Trial expired: %s (user %d)", u.Email, u.ID)); err != nil {
			m.log.Debug("Admin notification failed", zap.Error(err))
		}
	}
	return errs
}

func trialWarningEmail(u *entities.User, now time.Time, appURL string) (string, string) {
	hours := int(u.TrialEndsAt.Sub(now).Hours())
	left := fmt.Sprintf("%d hours", hours)
	if hours >= 24 {
		left = fmt.Sprintf("%d days", hours/24)
	}
	subject := "Your Tracker Suite trial ends in " + left
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Your Tracker Suite trial ends on <strong>%s</strong> (%s from now).</p>
<p>Upgrade to keep access to your clients, follow-ups and reports.</p>
<p><a href="%s/billing">Upgrade now</a></p>`, displayName(u), u.TrialEndsAt.UTC().Format("January 2, 2006 15:04 MST"), left, appURL)
	return subject, body
}

func trialExpiredEmail(u *entities.User, appURL string) (string, string) {
	subject := "Your Tracker Suite trial has ended"
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Your Tracker Suite trial has ended. Your data is safe and will be waiting for you.</p>
<p><a href="%s/billing">Subscribe to continue</a></p>`, displayName(u), appURL)
	return subject, body
}

func displayName(u *entities.User) string {
	if u.Name != "" {
		return html.EscapeString(u.Name)
	}
	return html.EscapeString(u.Email)
}
