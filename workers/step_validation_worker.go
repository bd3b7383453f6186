package workers

import (
	"context"
	"log"
	"time"

	"step-rewards-system/services"
)

// PollStepValidation drives the step validation workflow: every tick it
// sweeps unvalidated step records with activity and validates them.
// Delivery is at-least-once by construction; validation itself is
// idempotent, so overlap with other replicas is harmless.
func PollStepValidation(ctx context.Context, steps *services.StepService, pollInterval time.Duration) {
	log.Println("Starting step validation worker...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Step validation worker stopped.")
			return
		case <-ticker.C:
			if err := steps.ValidatePending(ctx); err != nil {
				log.Printf("[WORKER] step validation sweep failed: %v", err)
			}
		}
	}
}
