package workers

import (
	"context"
	"log"
	"time"

	"step-rewards-system/services"
)

// PollCashoutIntake picks up freshly created cashout requests and runs the
// intake workflow on them (minimum check, premium auto-approval, operator
// notification). The intake_at claim inside the service makes redelivered
// requests a no-op.
func PollCashoutIntake(ctx context.Context, cashouts *services.CashoutService, pollInterval time.Duration) {
	log.Println("Starting cashout intake worker...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Cashout intake worker stopped.")
			return
		case <-ticker.C:
			if err := cashouts.ProcessNewRequests(ctx); err != nil {
				log.Printf("[WORKER] cashout intake sweep failed: %v", err)
			}
		}
	}
}
