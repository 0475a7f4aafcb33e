// Package bus publishes job lifecycle events over NATS so external monitors
// can follow computation progress without polling the registry.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/maxbates/molecular-design-toolkit/pkg/jobs"
)

// subjectPrefix namespaces job events: mdtk.jobs.<state>.
const subjectPrefix = "mdtk.jobs"

// Client wraps a NATS connection as a jobs.Notifier.
type Client struct {
	nc *nats.Conn
}

// Connect dials NATS with indefinite reconnects.
func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Client{nc: nc}, nil
}

// Close drains the connection.
func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

// JobTransition implements jobs.Notifier: one JSON message per transition
// on mdtk.jobs.<state>.
func (c *Client) JobTransition(_ context.Context, rec jobs.Record) error {
	subject := fmt.Sprintf("%s.%s", subjectPrefix, rec.State)
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}
