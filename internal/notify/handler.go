package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gather-app/gather/internal/jobs"
)

// JobTypeRSVPConfirmation is the queue type for confirmation messages. The
// payload is a JSON-encoded ConfirmationParams.
const JobTypeRSVPConfirmation = "notify.rsvp_confirmation"

// Handler returns the jobs handler that renders and delivers confirmation
// messages through sender. Delivery errors surface to the queue so the job
// is retried.
func Handler(sender Sender) jobs.Handler {
	return func(ctx context.Context, j *jobs.Job) error {
		var p ConfirmationParams
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return fmt.Errorf("decode confirmation payload: %w", err)
		}
		if p.To == "" {
			return fmt.Errorf("confirmation payload has no recipient")
		}
		if err := sender.Send(ctx, Confirmation(p)); err != nil {
			return fmt.Errorf("send confirmation: %w", err)
		}
		return nil
	}
}
