/*
Package log provides structured logging for dispatchd using zerolog.

The package wraps a single global zerolog.Logger, configured once via
Init, with helpers for attaching request-scoped context (subscription
location, event channel, event ID) to child loggers.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	log.Info("dispatcher starting")

	loc := log.WithLocation("/subscriptions/billing")
	loc.Info().Msg("subscription set registered")

	ev := log.WithEventID(event.ID)
	ev.Warn().Err(err).Msg("delivery failed")

# Fields

  - WithComponent: generic component name (e.g. "dispatch", "queue")
  - WithLocation: the subscription-set location a log line concerns
  - WithChannel: the event channel URI a log line concerns
  - WithEventID: the event ID a log line concerns

Never log recipient cookies or full event bodies; log the event ID and
channel instead.
*/
package log
