// Package pacing spaces automated actions out like a person would and keeps
// one account's actions from interleaving.
package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Range is an inclusive wait window
type Range struct {
	Name string
	Min  time.Duration
	Max  time.Duration
}

// Wait windows between automated actions. Tightening these raises the chance
// of the platform flagging the account.
var (
	BetweenPosts          = Range{Name: "between_posts", Min: 30 * time.Second, Max: 120 * time.Second}
	BetweenTargets        = Range{Name: "between_targets", Min: 120 * time.Second, Max: 300 * time.Second}
	BeforeAction          = Range{Name: "before_action", Min: 60 * time.Second, Max: 180 * time.Second}
	BeforeConnectionCheck = Range{Name: "before_connection_check", Min: 30 * time.Second, Max: 90 * time.Second}
	BetweenLeadChecks     = Range{Name: "between_lead_checks", Min: 30 * time.Second, Max: 60 * time.Second}
	BetweenDMs            = Range{Name: "between_dms", Min: 120 * time.Second, Max: 300 * time.Second}
	BetweenEngagements    = Range{Name: "between_engagements", Min: 60 * time.Second, Max: 240 * time.Second}
)

// Delayer suspends the calling unit of work
type Delayer interface {
	Delay(ctx context.Context, r Range) error
}

// RandomDelayer waits a uniformly drawn duration within the range.
// Only the calling goroutine is suspended.
type RandomDelayer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomDelayer creates a delayer with its own random source
func NewRandomDelayer() *RandomDelayer {
	return &RandomDelayer{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Draw picks a duration in [r.Min, r.Max]
func (d *RandomDelayer) Draw(r Range) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return r.Min + time.Duration(d.rng.Int63n(int64(r.Max-r.Min)+1))
}

// Delay sleeps for a drawn duration or until ctx is done
func (d *RandomDelayer) Delay(ctx context.Context, r Range) error {
	wait := d.Draw(r)
	logrus.WithFields(logrus.Fields{"range": r.Name, "wait": wait.String()}).Debug("Pacing delay")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoDelay skips pacing; used by manual triggers and tests
type NoDelay struct{}

// Delay returns immediately unless ctx is already done
func (NoDelay) Delay(ctx context.Context, _ Range) error {
	return ctx.Err()
}
