package probe

import (
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"netlens/internal/config"
	"netlens/internal/model"
)

// FrameHandler processes one received frame.
type FrameHandler func(frame model.RawFrame)

// Subscriber consumes frames from a NATS subject and hands them to a
// handler, usually the analysis pipeline's Feed.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber connects to NATS and returns a Subscriber.
func NewSubscriber(cfg config.ProbeConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	log.WithField("url", cfg.NATSURL).Info("connected to NATS")
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Start subscribes and begins delivering frames to the handler. Messages
// that fail to decode are logged and skipped.
func (s *Subscriber) Start(handler FrameHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		frame, err := decodeFrame(msg.Data)
		if err != nil {
			log.WithError(err).Warn("dropping undecodable frame message")
			return
		}
		handler(frame)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.WithField("subject", s.subject).Info("subscribed, waiting for frames")
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Info("NATS connection closed")
	}
}
