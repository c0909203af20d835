package sync

import (
	"github.com/sirupsen/logrus"

	"github.com/tradewatch/agent/internal/logging"
)

// Reporter receives structured sync outcomes for presentation. Calls are
// fire-and-forget and must never block the sync cycle.
type Reporter interface {
	// SyncSucceeded reports a delivered batch of count events.
	SyncSucceeded(count int)

	// SyncQueuedOffline reports count events held locally because no
	// valid session exists.
	SyncQueuedOffline(count int)

	// RateLimited reports a collector cooldown.
	RateLimited(retryAfterSeconds int)

	// AuthExpired reports that the session was cleared and a new login
	// is required.
	AuthExpired()

	// StorageFailure reports a failed durable write.
	StorageFailure(err error)

	// ConnectivityError reports a transport failure; consecutive is the
	// shared run of failed cycles.
	ConnectivityError(consecutive int)

	// ServerError reports a collector error response; consecutive is the
	// shared run of failed cycles.
	ServerError(status, consecutive int)
}

// failureAlertThreshold is the consecutive-failure count at which the log
// reporter escalates to a repeated-failure message.
const failureAlertThreshold = 5

// LogReporter is the default Reporter; it writes structured log lines.
// Hosts with a UI replace it with their own implementation.
type LogReporter struct{}

func (LogReporter) SyncSucceeded(count int) {
	logging.Info("synced trades", logrus.Fields{"count": count})
}

func (LogReporter) SyncQueuedOffline(count int) {
	logging.Info("trades queued locally, not signed in", logrus.Fields{"count": count})
}

func (LogReporter) RateLimited(retryAfterSeconds int) {
	logging.Warn("collector rate limited, backing off", logrus.Fields{
		"retry_after_seconds": retryAfterSeconds,
	})
}

func (LogReporter) AuthExpired() {
	logging.Warn("session expired, sign in again to resume syncing")
}

func (LogReporter) StorageFailure(err error) {
	logging.Error("local storage failure", err)
}

func (LogReporter) ConnectivityError(consecutive int) {
	if consecutive >= failureAlertThreshold {
		logging.Error("unable to reach collector after repeated attempts", nil,
			logrus.Fields{"consecutive_failures": consecutive})
		return
	}
	logging.Warn("could not reach collector, will retry", logrus.Fields{
		"consecutive_failures": consecutive,
	})
}

func (LogReporter) ServerError(status, consecutive int) {
	fields := logrus.Fields{
		"status":               status,
		"consecutive_failures": consecutive,
	}
	if consecutive >= failureAlertThreshold {
		logging.Error("collector failing repeatedly", nil, fields)
		return
	}
	logging.Warn("collector error, trades will be retried", fields)
}
