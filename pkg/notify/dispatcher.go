package notify

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned when the delivery buffer has no room. Callers
// treat it as a delivery delay, not a request failure.
var ErrQueueFull = errors.New("notification queue full")

// LogDispatcher records deliveries through logrus. It stands in for a real
// mail transport and is also what runs in development and tests.
type LogDispatcher struct {
	log *logrus.Logger
}

// NewLogDispatcher creates a dispatcher logging at info level
func NewLogDispatcher(log *logrus.Logger) *LogDispatcher {
	if log == nil {
		log = logrus.New()
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return &LogDispatcher{log: log}
}

// Dispatch logs the outbound message. Token values are redacted.
func (d *LogDispatcher) Dispatch(_ context.Context, msg Message) error {
	fields := logrus.Fields{
		"message_id": msg.ID,
		"type":       msg.Type,
		"recipient":  msg.Recipient,
	}
	for k := range msg.Data {
		if k == "token" {
			fields["token"] = "[redacted]"
			continue
		}
		fields[k] = msg.Data[k]
	}
	d.log.WithFields(fields).Info("notification dispatched")
	return nil
}
