package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"classifieds_ad_publisher/adform"
)

const ListingCreatedSubject = "listing.created"

// Events announces published listings to the rest of the marketplace.
type Events interface {
	ListingCreated(ctx context.Context, listing *adform.Listing) error
}

// NopEvents drops every event.
type NopEvents struct{}

func (NopEvents) ListingCreated(context.Context, *adform.Listing) error { return nil }

// NATSEvents publishes listing events on a NATS connection.
type NATSEvents struct {
	nc     *nats.Conn
	logger *zap.Logger
}

func NewNATSEvents(url string, connectTimeout time.Duration, logger *zap.Logger) (*NATSEvents, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []nats.Option{
		nats.Name("classifieds_ad_publisher"),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("NATS connection closed")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
	}
	if connectTimeout > 0 {
		opts = append(opts, nats.Timeout(connectTimeout))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	logger.Info("connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return &NATSEvents{nc: nc, logger: logger}, nil
}

func (e *NATSEvents) ListingCreated(_ context.Context, listing *adform.Listing) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ListingCreatedSubject, err)
	}
	if err := e.nc.Publish(ListingCreatedSubject, data); err != nil {
		return fmt.Errorf("publish %s: %w", ListingCreatedSubject, err)
	}
	e.logger.Debug("published NATS message",
		zap.String("subject", ListingCreatedSubject),
		zap.String("listing_id", listing.ID),
	)
	return nil
}

// Close drains buffered messages before closing.
func (e *NATSEvents) Close() {
	if e.nc == nil || e.nc.IsClosed() {
		return
	}
	if err := e.nc.Drain(); err != nil {
		e.logger.Error("draining NATS connection", zap.Error(err))
	}
}
