// Package nats publishes settlement events to NATS subjects.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"solana-intent-settlement/internal/config"
	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/events"
)

// Client publishes event envelopes to <prefix>.<EventName>.
type Client struct {
	nc     *nats.Conn
	prefix string
	log    *log.Logger
}

// Connect dials the configured server.
func Connect(cfg *config.NATSConfig, logger *log.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	name := cfg.Name
	if name == "" {
		name = "intent-settlement"
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Printf("connected to NATS url=%s", cfg.URL)

	return &Client{
		nc:     nc,
		prefix: strings.TrimSuffix(cfg.SubjectPrefix, "."),
		log:    logger,
	}, nil
}

// Subject returns the subject an event named name is published on.
func (c *Client) Subject(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + "." + name
}

// Publish implements events.Sink.
func (c *Client) Publish(ctx context.Context, ev domain.Event) error {
	if c.nc == nil {
		return errors.New("nats connection is not established")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(events.NewEnvelope(ev, time.Now()))
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.EventName(), err)
	}
	if err := c.nc.Publish(c.Subject(ev.EventName()), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.EventName(), err)
	}
	return nil
}

// Ready reports whether the connection is usable.
func (c *Client) Ready() bool {
	if c.nc == nil {
		return false
	}
	return c.nc.Status() == nats.CONNECTED
}

// Status returns the connection status.
func (c *Client) Status() nats.Status {
	if c.nc == nil {
		return nats.DISCONNECTED
	}
	return c.nc.Status()
}

// Close drains pending messages and closes the connection. It is safe to call
// more than once.
func (c *Client) Close() error {
	if c.nc == nil {
		return nil
	}
	if c.nc.Status() == nats.CLOSED {
		return nil
	}

	if err := c.nc.Drain(); err != nil {
		c.log.Printf("failed to drain NATS connection: %v", err)
		c.nc.Close()
		return fmt.Errorf("failed to drain connection to NATS: %w", err)
	}

	c.nc.Close()
	c.log.Printf("NATS connection closed")
	return nil
}
