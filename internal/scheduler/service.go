package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/palma21/linkedin-outreach-bot/internal/config"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

// jobTimeout bounds one tick of any job
const jobTimeout = 2 * time.Hour

// Service handles scheduling of the periodic jobs
type Service struct {
	config *config.Config
	jobs   *Jobs
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, jobs *Jobs) (*Service, error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.TimeZone, err)
	}

	logger := cronLogger{entry: logrus.WithField("component", "cron")}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		config: cfg,
		jobs:   jobs,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Schedules returns the cron spec of every enabled job. Intervals come from
// the settings at startup; a non-positive interval leaves the job unscheduled.
func Schedules(settings models.Settings, digestSpec string) map[string]string {
	specs := make(map[string]string)
	every := func(job string, mins int) {
		if mins > 0 {
			specs[job] = fmt.Sprintf("@every %dm", mins)
		}
	}
	every(JobReplyBotPoll, settings.ReplyBotIntervalMins)
	every(JobCommentBotCheck, settings.CommentBotIntervalMins)
	every(JobConnectionChecker, settings.ConnectionCheckMins)
	every(JobPendingDMSender, settings.PendingDMIntervalMins)
	if digestSpec != "" {
		specs[JobDailyDigest] = digestSpec
	}
	return specs
}

// Start registers the jobs and begins the schedule
func (s *Service) Start() error {
	settings := s.jobs.Settings(s.ctx)

	for job, spec := range Schedules(settings, s.config.DigestSchedule) {
		job := job
		if _, err := s.cron.AddFunc(spec, func() { s.tick(job) }); err != nil {
			return fmt.Errorf("failed to schedule %s (%s): %w", job, spec, err)
		}
		logrus.WithFields(logrus.Fields{"job": job, "spec": spec}).Info("Scheduled job")
	}

	s.cron.Start()
	logrus.Info("Scheduler started")
	return nil
}

// tick runs one job invocation; errors are logged and the next tick still runs
func (s *Service) tick(job string) {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	if _, err := s.jobs.Run(ctx, job); err != nil {
		logrus.WithError(err).WithField("job", job).Error("Scheduled job failed")
	}
}

// Stop stops the scheduler, cancels running jobs and waits for them to return
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-time.After(30 * time.Second):
		logrus.Warn("Timed out waiting for running jobs")
	}
	logrus.Info("Scheduler stopped")
}

// cronLogger adapts logrus to cron.Logger
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
