package jobs

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/referly/backend/internal/database"
)

// TokenCleanupJob purges expired password reset tokens on a schedule.
// Referral codes are deliberately not purged: expiry is evaluated at read
// time and the rows stay in place.
type TokenCleanupJob struct {
	tokens    *database.TokenStore
	scheduler *gocron.Scheduler
}

// NewTokenCleanupJob creates the cleanup job.
func NewTokenCleanupJob(tokens *database.TokenStore) *TokenCleanupJob {
	return &TokenCleanupJob{
		tokens:    tokens,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start schedules the hourly purge and runs the scheduler in the
// background.
func (j *TokenCleanupJob) Start() error {
	if _, err := j.scheduler.Every(1).Hour().Do(j.run); err != nil {
		return err
	}
	j.scheduler.StartAsync()
	return nil
}

// Stop halts the scheduler.
func (j *TokenCleanupJob) Stop() {
	j.scheduler.Stop()
}

func (j *TokenCleanupJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := j.tokens.DeleteExpiredResetTokens(ctx, time.Now())
	if err != nil {
		log.Printf("token cleanup: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("token cleanup: removed %d expired reset tokens", removed)
	}
}
