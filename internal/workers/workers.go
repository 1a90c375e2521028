package workers

import (
	"github.com/rs/zerolog/log"

	"crmcore/internal/engine/webhooks"
)

// RetryFailedWebhooks is the batch delivery sweep. Invoked on a fixed
// interval by cmd/worker; redelivery latency is therefore capped by that
// interval, not by per-attempt backoff.
func RetryFailedWebhooks(dispatcher *webhooks.Dispatcher, lookbackHours int) {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	if err := dispatcher.RetryFailedDeliveries(lookbackHours); err != nil {
		log.Error().Err(err).Msg("webhook retry sweep failed")
	}
}
