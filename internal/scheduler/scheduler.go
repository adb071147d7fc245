// Package scheduler reloads the chart source on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"candleview/internal/model"
	"candleview/internal/source"

	"github.com/robfig/cron/v3"
)

// Loader is the part of the chart session the scheduler drives.
type Loader interface {
	Load(ctx context.Context, src source.Source) (model.LoadStats, error)
}

// Scheduler owns the cron runner. Specs take a leading seconds field, e.g.
// "0 */5 * * * *" for every five minutes. A reload still running when the
// next one is due is skipped.
type Scheduler struct {
	Cron    *cron.Cron
	Loader  Loader
	Source  source.Source
	Ctx     context.Context
	Timeout time.Duration

	runs     atomic.Int64
	failures atomic.Int64
}

// New returns a scheduler that loads src into loader. Reloads give up after
// 30s.
func New(ctx context.Context, loader Loader, src source.Source) *Scheduler {
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		Loader:  loader,
		Source:  src,
		Ctx:     ctx,
		Timeout: 30 * time.Second,
	}
}

// Register adds the reload job.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.reload); err != nil {
		return fmt.Errorf("register reload %q: %w", spec, err)
	}
	log.Printf("[scheduler] reload of %s registered (%s)", s.Source.Name(), spec)
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[scheduler] started")
}

// Stop stops the scheduler and waits for a running reload to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[scheduler] stopped")
}

// RunNow performs one reload immediately.
func (s *Scheduler) RunNow() (model.LoadStats, error) {
	ctx, cancel := context.WithTimeout(s.Ctx, s.Timeout)
	defer cancel()

	s.runs.Add(1)
	stats, err := s.Loader.Load(ctx, s.Source)
	if err != nil {
		s.failures.Add(1)
	}
	return stats, err
}

// Runs returns how many reloads were attempted and how many failed.
func (s *Scheduler) Runs() (total, failed int64) {
	return s.runs.Load(), s.failures.Load()
}

func (s *Scheduler) reload() {
	stats, err := s.RunNow()
	switch {
	case errors.Is(err, model.ErrSuperseded):
		log.Printf("[scheduler] reload of %s superseded by a newer load", s.Source.Name())
	case err != nil:
		log.Printf("[scheduler] ERROR reload of %s: %v", s.Source.Name(), err)
	default:
		log.Printf("[scheduler] reloaded %s: %d accepted, %d skipped", s.Source.Name(), stats.Accepted, stats.Skipped)
	}
}
