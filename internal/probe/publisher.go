// Package probe moves captured frames between a lightweight capture agent
// and a remote analysis engine over NATS.
package probe

import (
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"netlens/internal/config"
	"netlens/internal/model"
)

// Publisher publishes raw frames to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to NATS and returns a Publisher.
func NewPublisher(cfg config.ProbeConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	log.WithField("url", cfg.NATSURL).Info("connected to NATS")
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish sends one frame to the configured subject.
func (p *Publisher) Publish(frame model.RawFrame) error {
	data, err := encodeFrame(frame)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Info("NATS connection drained and closed")
	}
}
