package eventstream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	connectAttempts = 5
	connectDelay    = 200 * time.Millisecond
	flushTimeout    = 5 * time.Second
)

type NatsEventStream struct {
	subject string
	conn    *nats.Conn
}

// NewNatsEventStream connects to url, retrying a few times since the broker is often started alongside the sweep.
func NewNatsEventStream(url, subject string) (*NatsEventStream, error) {
	var conn *nats.Conn
	err := retry.Do(
		func() error {
			var err error
			conn, err = nats.Connect(url, nats.Name("scalebench"))
			return err
		},
		retry.Attempts(connectAttempts),
		retry.Delay(connectDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debugf("Connecting to NATS at %s failed (attempt %d): %s", url, n+1, err)
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to NATS at %s", url)
	}
	return &NatsEventStream{subject: subject, conn: conn}, nil
}

func (c *NatsEventStream) Publish(events []*Event) []error {
	var errs []error
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			errs = append(errs, fmt.Errorf("error while marshalling event: %v", err))
			continue
		}
		if err := c.conn.Publish(c.subject, data); err != nil {
			errs = append(errs, fmt.Errorf("error when publishing to subject %q: %v", c.subject, err))
		}
	}
	return errs
}

// Close flushes pending messages before closing the connection.
func (c *NatsEventStream) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.FlushTimeout(flushTimeout)
	c.conn.Close()
	return errors.WithStack(err)
}
