package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/a11ylint/a11ylint-server/internal/observability"
	"github.com/a11ylint/a11ylint-server/internal/repository"
)

const sweepTimeout = 30 * time.Second

// SweepJob periodically removes expired sessions from a stateful store.
// A sweep runs on its own goroutine and never holds request handlers up
// beyond the store's own locking.
type SweepJob struct {
	sessionRepo repository.SessionRepository
	interval    time.Duration
	done        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewSweepJob(sessionRepo repository.SessionRepository, interval time.Duration) *SweepJob {
	return &SweepJob{
		sessionRepo: sessionRepo,
		interval:    interval,
		done:        make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	j.wg.Add(1)
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("session sweep started")
}

// Stop halts the ticker and waits for an in-flight sweep to finish. It is
// safe to call more than once.
func (j *SweepJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
		log.Info().Msg("session sweep stopped")
	})
}

// RunOnce performs a single sweep and returns the number of sessions removed.
func (j *SweepJob) RunOnce(ctx context.Context) (int64, error) {
	return j.runCleanup(ctx, "sessions", j.sessionRepo.DeleteExpired)
}

func (j *SweepJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	// Stop cancels an in-flight sweep.
	go func() {
		select {
		case <-j.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	_, _ = j.RunOnce(ctx)
}

func (j *SweepJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) (int64, error) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to sweep expired %s", name)
		return count, err
	}
	if count > 0 {
		observability.SessionsSwept.Add(float64(count))
		log.Info().Int64("count", count).Msgf("swept expired %s", name)
	}
	return count, nil
}
