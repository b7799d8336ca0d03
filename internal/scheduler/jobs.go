package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/palma21/linkedin-outreach-bot/internal/activity"
	"github.com/palma21/linkedin-outreach-bot/internal/commentbot"
	"github.com/palma21/linkedin-outreach-bot/internal/dispatch"
	"github.com/palma21/linkedin-outreach-bot/internal/leads"
	"github.com/palma21/linkedin-outreach-bot/internal/linkedapi"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/notifications"
	"github.com/palma21/linkedin-outreach-bot/internal/pacing"
	"github.com/palma21/linkedin-outreach-bot/internal/poller"
	"github.com/palma21/linkedin-outreach-bot/internal/ratelimit"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
)

// Job names, also used in ActivityLog actions and the manual trigger route
const (
	JobReplyBotPoll      = "reply_bot_poll"
	JobCommentBotCheck   = "comment_bot_check"
	JobConnectionChecker = "connection_checker"
	JobPendingDMSender   = "pending_dm_sender"
	JobDailyDigest       = "daily_digest"
)

// JobNames lists every job in registration order
var JobNames = []string{JobReplyBotPoll, JobCommentBotCheck, JobConnectionChecker, JobPendingDMSender, JobDailyDigest}

// IsJob reports whether name is a known job
func IsJob(name string) bool {
	for _, n := range JobNames {
		if n == name {
			return true
		}
	}
	return false
}

// LeadBatch bounds how many leads one pass of a lead job looks at
const LeadBatch = 100

// ErrUnknownJob is returned when a job name is not registered
var ErrUnknownJob = errors.New("unknown job")

// Deps groups the collaborators of the scheduled jobs
type Deps struct {
	Store       storage.Store
	Clients     linkedapi.ClientSource
	Poller      *poller.Poller
	Engager     *commentbot.Engager
	Dispatcher  *dispatch.Dispatcher
	Leads       *leads.Service
	Limiter     *ratelimit.Limiter
	Delayer     pacing.Delayer
	Activity    *activity.Logger
	Notifier    notifications.Notifier // optional
	Archive     storage.Archive        // optional
	Metrics     *Metrics
	Concurrency int
}

// Jobs holds the bodies of the periodic jobs. Each run reads the settings
// once, fans out across accounts and isolates failures per unit.
type Jobs struct {
	Deps
	now func() time.Time
}

// NewJobs creates the job set
func NewJobs(deps Deps) *Jobs {
	if deps.Delayer == nil {
		deps.Delayer = pacing.NoDelay{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Concurrency <= 0 {
		deps.Concurrency = 1
	}
	return &Jobs{Deps: deps, now: func() time.Time { return time.Now().UTC() }}
}

// Run executes a job by name
func (j *Jobs) Run(ctx context.Context, name string) (models.JobRun, error) {
	switch name {
	case JobReplyBotPoll:
		return j.RunReplyBotPoll(ctx)
	case JobCommentBotCheck:
		return j.RunCommentBotCheck(ctx)
	case JobConnectionChecker:
		return j.RunConnectionChecker(ctx)
	case JobPendingDMSender:
		return j.RunPendingDMSender(ctx)
	case JobDailyDigest:
		return j.RunDailyDigest(ctx)
	default:
		return models.JobRun{}, fmt.Errorf("%q: %w", name, ErrUnknownJob)
	}
}

// tally accumulates a run's unit outcomes across account goroutines
type tally struct {
	mu       sync.Mutex
	units    int
	failures int
	counters map[string]int
}

func (t *tally) unit() {
	t.mu.Lock()
	t.units++
	t.mu.Unlock()
}

func (t *tally) fail() {
	t.mu.Lock()
	t.failures++
	t.mu.Unlock()
}

func (t *tally) add(counter string, n int) {
	if n == 0 {
		return
	}
	t.mu.Lock()
	if t.counters == nil {
		t.counters = make(map[string]int)
	}
	t.counters[counter] += n
	t.mu.Unlock()
}

// Settings returns the current settings snapshot, or the defaults when the row is missing or unreadable
func (j *Jobs) Settings(ctx context.Context) models.Settings {
	settings, err := j.Store.GetSettings(ctx)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			logrus.WithError(err).Warn("Failed to read settings, using defaults")
		}
		return models.DefaultSettings()
	}
	return *settings
}

// run wraps a job body with settings, timing, metrics and archiving
func (j *Jobs) run(ctx context.Context, name string, enabled func(models.Settings) bool,
	body func(ctx context.Context, settings models.Settings, t *tally) error) (models.JobRun, error) {
	started := j.now()
	logger := logrus.WithField("job", name)
	settings := j.Settings(ctx)

	run := models.JobRun{Job: name, StartedAt: started}
	if !enabled(settings) {
		run.Skipped = true
		logger.Debug("Job disabled in settings")
		return run, nil
	}

	logger.Info("Starting job")
	t := &tally{}
	err := body(ctx, settings, t)

	run.Duration = time.Since(started).Round(time.Millisecond).String()
	run.Units = t.units
	run.Failures = t.failures
	run.Counters = t.counters
	if err != nil {
		run.FatalError = err.Error()
		logger.WithError(err).Error("Job aborted")
	} else {
		logger.WithFields(logrus.Fields{"units": run.Units, "failures": run.Failures, "duration": run.Duration}).Info("Job finished")
	}

	j.Metrics.record(run)
	j.archive(fmt.Sprintf("runs/%s/%s.json", name, started.Format("20060102T150405Z")), run)
	return run, err
}

func (j *Jobs) archive(filename string, v interface{}) {
	if j.Archive == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logrus.WithError(err).Error("Failed to encode archive entry")
		return
	}
	if err := j.Archive.Store(filename, data); err != nil {
		logrus.WithError(err).WithField("file", filename).Error("Failed to archive")
	}
}

// forEachAccount runs fn once per account, accounts in parallel up to limit.
// Work within one account stays sequential inside fn.
func forEachAccount[T any](ctx context.Context, limit int, items []T, accountOf func(T) string,
	fn func(ctx context.Context, accountID string, items []T) error) error {
	var order []string
	grouped := make(map[string][]T)
	for _, item := range items {
		id := accountOf(item)
		if _, ok := grouped[id]; !ok {
			order = append(order, id)
		}
		grouped[id] = append(grouped[id], item)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, id := range order {
		id := id
		g.Go(func() error {
			return fn(gctx, id, grouped[id])
		})
	}
	return g.Wait()
}

// pace waits between sequential units; the first unit goes immediately
func (j *Jobs) pace(ctx context.Context, i int, r pacing.Range) error {
	if i == 0 {
		return nil
	}
	return j.Delayer.Delay(ctx, r)
}

// failUnit records a unit failure in the audit trail and the tally
func (j *Jobs) failUnit(ctx context.Context, t *tally, accountID, action string, err error, details activity.Details) {
	t.fail()
	if models.IsRetryable(err) {
		if details == nil {
			details = activity.Details{}
		}
		details["retryable"] = true
	}
	j.Activity.Failure(ctx, accountID, action, err, details)
}

// RunReplyBotPoll polls every active monitored post
func (j *Jobs) RunReplyBotPoll(ctx context.Context) (models.JobRun, error) {
	return j.run(ctx, JobReplyBotPoll, func(s models.Settings) bool { return s.ReplyBotEnabled },
		func(ctx context.Context, settings models.Settings, t *tally) error {
			posts, err := j.Store.ListActivePosts(ctx)
			if err != nil {
				return fmt.Errorf("failed to list posts: %w", err)
			}

			return forEachAccount(ctx, j.Concurrency, posts, func(p models.MonitoredPost) string { return p.AccountID },
				func(ctx context.Context, accountID string, posts []models.MonitoredPost) error {
					for i, post := range posts {
						if err := j.pace(ctx, i, pacing.BetweenPosts); err != nil {
							return err
						}
						t.unit()
						result, err := j.Poller.PollPost(ctx, settings, post)
						t.add("comments", result.CommentsFound)
						t.add("matches", result.MatchesFound)
						t.add("replies", result.Replied)
						t.add("replies_queued", result.Queued)
						if err == nil {
							continue
						}
						if ctx.Err() != nil {
							return ctx.Err()
						}
						j.failUnit(ctx, t, accountID, "poll_error", err, activity.Details{"post_id": post.ID})
						if errors.Is(err, models.ErrAuth) || errors.Is(err, models.ErrNoCredential) {
							// Nothing else for this account can succeed this tick
							return nil
						}
					}
					return nil
				})
		})
}

// RunCommentBotCheck engages with new posts of every active watched target
func (j *Jobs) RunCommentBotCheck(ctx context.Context) (models.JobRun, error) {
	return j.run(ctx, JobCommentBotCheck, func(s models.Settings) bool { return s.CommentBotEnabled },
		func(ctx context.Context, settings models.Settings, t *tally) error {
			targets, err := j.Store.ListActiveWatchedAccounts(ctx)
			if err != nil {
				return fmt.Errorf("failed to list watched accounts: %w", err)
			}

			return forEachAccount(ctx, j.Concurrency, targets, func(w models.WatchedAccount) string { return w.AccountID },
				func(ctx context.Context, accountID string, targets []models.WatchedAccount) error {
					for i, target := range targets {
						if err := j.pace(ctx, i, pacing.BetweenTargets); err != nil {
							return err
						}
						t.unit()
						result, err := j.Engager.CheckAndEngage(ctx, settings, target)
						t.add("posts", result.PostsFound)
						t.add("engagements", result.Engaged)
						if err == nil {
							continue
						}
						if ctx.Err() != nil {
							return ctx.Err()
						}
						j.failUnit(ctx, t, accountID, "comment_bot_error", err, activity.Details{"target_id": target.ID})
						if errors.Is(err, models.ErrAuth) || errors.Is(err, models.ErrNoCredential) {
							return nil
						}
					}
					return nil
				})
		})
}

// RunConnectionChecker re-checks unknown, pending and not connected leads, least
// recently checked first, and dispatches whatever the new status calls for
func (j *Jobs) RunConnectionChecker(ctx context.Context) (models.JobRun, error) {
	return j.run(ctx, JobConnectionChecker, func(s models.Settings) bool { return s.ConnectionCheckMins > 0 },
		func(ctx context.Context, settings models.Settings, t *tally) error {
			unknown, err := j.Store.ListLeadsByStatus(ctx, models.ConnectionUnknown, "", LeadBatch)
			if err != nil {
				return fmt.Errorf("failed to list unknown leads: %w", err)
			}
			pending, err := j.Store.ListLeadsByStatus(ctx, models.ConnectionPending, "", LeadBatch)
			if err != nil {
				return fmt.Errorf("failed to list pending leads: %w", err)
			}
			// notConnected leads land here when their request failed or was skipped
			notConnected, err := j.Store.ListLeadsByStatus(ctx, models.ConnectionNotConnected, "", LeadBatch)
			if err != nil {
				return fmt.Errorf("failed to list not connected leads: %w", err)
			}
			work := append(append(unknown, pending...), notConnected...)

			return forEachAccount(ctx, j.Concurrency, work, func(l models.Lead) string { return l.AccountID },
				func(ctx context.Context, accountID string, batch []models.Lead) error {
					client, err := j.Clients.ClientFor(ctx, accountID)
					if err != nil {
						j.failUnit(ctx, t, accountID, "connection_check_error", err, activity.Details{"leads": len(batch)})
						return nil
					}
					for i := range batch {
						if err := j.pace(ctx, i, pacing.BetweenLeadChecks); err != nil {
							return err
						}
						t.unit()
						err := j.checkLead(ctx, settings, client, &batch[i], t)
						if err == nil || models.IsSkip(err) {
							continue
						}
						if ctx.Err() != nil {
							return ctx.Err()
						}
						j.failUnit(ctx, t, accountID, "connection_check_error", err, activity.Details{"lead_id": batch[i].ID})
						if errors.Is(err, models.ErrAuth) {
							return nil
						}
					}
					return nil
				})
		})
}

func (j *Jobs) checkLead(ctx context.Context, settings models.Settings, client linkedapi.Automation, lead *models.Lead, t *tally) error {
	status, err := client.CheckConnection(ctx, lead.LinkedInURL)
	if stampErr := j.Store.TouchLeadCheck(ctx, lead.ID, j.now()); stampErr != nil {
		logrus.WithError(stampErr).WithField("lead_id", lead.ID).Warn("Failed to stamp lead check")
	}
	if err != nil {
		return fmt.Errorf("failed to check connection of lead %s: %w", lead.ID, err)
	}
	updated, changed, err := j.Leads.UpdateConnectionStatus(ctx, lead, status)
	if err != nil {
		return err
	}
	if changed && updated.ConnectionStatus == models.ConnectionConnected {
		t.add("connected", 1)
	}

	var outcome dispatch.Outcome
	switch updated.ConnectionStatus {
	case models.ConnectionConnected:
		outcome, err = j.Dispatcher.SendDM(ctx, settings, client, updated.ID)
		if outcome == dispatch.OutcomeSent {
			t.add("dms_sent", 1)
		}
	case models.ConnectionNotConnected:
		outcome, err = j.Dispatcher.SendConnectionRequest(ctx, settings, client, updated.ID)
		if outcome == dispatch.OutcomeSent {
			t.add("connection_requests", 1)
		}
	}
	return err
}

// dmWork is one lead the DM sender will try to message
type dmWork struct {
	accountID string
	leadID    string
}

// RunPendingDMSender drains the DM queue and sweeps connected leads from
// call-to-action posts that were never queued
func (j *Jobs) RunPendingDMSender(ctx context.Context) (models.JobRun, error) {
	return j.run(ctx, JobPendingDMSender, func(s models.Settings) bool { return s.PendingDMIntervalMins > 0 },
		func(ctx context.Context, settings models.Settings, t *tally) error {
			work, err := j.collectDMWork(ctx)
			if err != nil {
				return err
			}

			return forEachAccount(ctx, j.Concurrency, work, func(w dmWork) string { return w.accountID },
				func(ctx context.Context, accountID string, batch []dmWork) error {
					client, err := j.Clients.ClientFor(ctx, accountID)
					if err != nil {
						j.failUnit(ctx, t, accountID, "dm_error", err, activity.Details{"leads": len(batch)})
						return nil
					}
					for i, w := range batch {
						if err := j.pace(ctx, i, pacing.BetweenDMs); err != nil {
							return err
						}
						t.unit()
						outcome, err := j.Dispatcher.SendDM(ctx, settings, client, w.leadID)
						if outcome == dispatch.OutcomeSent {
							t.add("dms_sent", 1)
						}
						if err == nil {
							continue
						}
						if models.IsSkip(err) {
							t.add("skipped", 1)
							if errors.Is(err, models.ErrQuotaExhausted) {
								return nil
							}
							continue
						}
						if ctx.Err() != nil {
							return ctx.Err()
						}
						j.failUnit(ctx, t, accountID, "dm_error", err, activity.Details{"lead_id": w.leadID})
						if errors.Is(err, models.ErrAuth) {
							return nil
						}
					}
					return nil
				})
		})
}

func (j *Jobs) collectDMWork(ctx context.Context) ([]dmWork, error) {
	seen := make(map[string]struct{})
	var work []dmWork

	queued, err := j.Store.ListSendablePendingDMs(ctx, LeadBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending dms: %w", err)
	}
	for _, dm := range queued {
		if _, dup := seen[dm.LeadID]; dup {
			continue
		}
		lead, err := j.Store.GetLead(ctx, dm.LeadID)
		if err != nil {
			logrus.WithError(err).WithField("lead_id", dm.LeadID).Warn("Skipping pending DM")
			continue
		}
		seen[lead.ID] = struct{}{}
		work = append(work, dmWork{accountID: lead.AccountID, leadID: lead.ID})
	}

	awaiting, err := j.Store.ListLeadsAwaitingFirstDM(ctx, LeadBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads awaiting a dm: %w", err)
	}
	posts := make(map[string]*models.MonitoredPost)
	for _, lead := range awaiting {
		if _, dup := seen[lead.ID]; dup || lead.PostID == nil {
			continue
		}
		post, ok := posts[*lead.PostID]
		if !ok {
			post, err = j.Store.GetPost(ctx, *lead.PostID)
			if err != nil {
				logrus.WithError(err).WithField("post_id", *lead.PostID).Warn("Skipping leads of unreadable post")
				post = nil
			}
			posts[*lead.PostID] = post
		}
		if post == nil || !post.HasCTA() {
			continue
		}
		seen[lead.ID] = struct{}{}
		work = append(work, dmWork{accountID: lead.AccountID, leadID: lead.ID})
	}
	return work, nil
}

// RunDailyDigest sends per-account usage, lead and failure counts to operators
func (j *Jobs) RunDailyDigest(ctx context.Context) (models.JobRun, error) {
	return j.run(ctx, JobDailyDigest, func(s models.Settings) bool { return s.DigestEnabled },
		func(ctx context.Context, settings models.Settings, t *tally) error {
			report, err := j.BuildReport(ctx, settings)
			if err != nil {
				return err
			}
			t.add("accounts", len(report.Accounts))
			j.archive(fmt.Sprintf("digests/%s.json", report.GeneratedAt.Format("2006-01-02")), report)

			if j.Notifier == nil {
				logrus.Info("No notification channel configured, digest archived only")
				return nil
			}
			if err := j.Notifier.SendReport(report); err != nil {
				t.fail()
				logrus.WithError(err).Error("Failed to send daily digest")
			}
			return nil
		})
}

// BuildReport assembles the digest for every active account
func (j *Jobs) BuildReport(ctx context.Context, settings models.Settings) (*models.Report, error) {
	accounts, err := j.Store.ListActiveAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	now := j.now()
	since := now.Add(-24 * time.Hour)
	limits := ratelimit.LimitsFrom(settings)
	report := &models.Report{GeneratedAt: now, Period: "daily", Jobs: j.Metrics.Recent(since)}

	for _, account := range accounts {
		usage, err := j.Limiter.GetUsage(ctx, limits, account.ID)
		if err != nil {
			return nil, err
		}
		counts, err := j.Store.CountLeadsByStatus(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		failures, err := j.Store.CountFailures(ctx, account.ID, since)
		if err != nil {
			return nil, err
		}
		report.Accounts = append(report.Accounts, models.AccountDigest{
			AccountID:   account.ID,
			AccountName: account.Name,
			Usage:       usage,
			Leads:       counts,
			Failures:    failures,
		})
	}
	return report, nil
}
