package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"watch-deal-finder/internal/models"
)

// Runner is the part of Pipeline the scheduler drives.
type Runner interface {
	Run(ctx context.Context, opts RunOptions) (*models.RunReport, error)
}

// Scheduler runs the pipeline immediately and then every interval until
// stopped.
type Scheduler struct {
	runner   Runner
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewScheduler(runner Runner, interval time.Duration) *Scheduler {
	return &Scheduler{runner: runner, interval: interval}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		log.Println("Scheduler already running")
		return
	}
	if s.interval <= 0 {
		log.Println("Scheduler disabled: RUN_INTERVAL is 0")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true
	log.Printf("Scheduler started with interval: %v", s.interval)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)
		for {
			select {
			case <-ticker.C:
				s.runOnce(ctx)
			case <-ctx.Done():
				log.Println("Scheduler stopped")
				return
			}
		}
	}()
}

// Stop cancels an in-flight run and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runOnce(ctx context.Context) {
	log.Println("Starting scheduled run...")
	if _, err := s.runner.Run(ctx, RunOptions{}); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			log.Println("Scheduled run skipped: a run is already in progress")
			return
		}
		log.Printf("Scheduled run failed: %v", err)
	}
}
