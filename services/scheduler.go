package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartScheduler wires the time-based workflows: the midnight streak reset
// (in the reference timezone) and the hourly leaderboard refresh and
// tournament end sweep. Job failures are logged and left for the next tick;
// every job is idempotent.
func StartScheduler(ctx context.Context, steps *StepService, tournaments *TournamentService) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(steps.loc))
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.CronJob("0 0 * * *", false),
		gocron.NewTask(func() {
			if err := steps.RunDailyReset(ctx); err != nil {
				log.Printf("[SCHEDULER] daily reset failed: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			if err := tournaments.RefreshLeaderboards(ctx); err != nil {
				log.Printf("[SCHEDULER] leaderboard refresh failed: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			if err := tournaments.EndDueTournaments(ctx); err != nil {
				log.Printf("[SCHEDULER] tournament end sweep failed: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}
