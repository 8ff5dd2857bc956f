package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"classifieds_ad_publisher/adform"
)

// ErrInvalidListingData is returned for drafts the store refuses to publish.
var ErrInvalidListingData = errors.New("invalid listing data")

// Config holds the publishing knobs.
type Config struct {
	Currency         string
	SimulatedLatency time.Duration
}

// Publisher turns accepted drafts into listings. It is the adform.Persister
// used by the server.
type Publisher struct {
	cfg    Config
	store  Store
	events Events
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Publisher. A nil events sink publishes nothing.
func New(cfg Config, store Store, events Events, logger *zap.Logger) (*Publisher, error) {
	if store == nil {
		return nil, errors.New("listing store is required")
	}
	if cfg.Currency == "" {
		cfg.Currency = "GHS"
	}
	if events == nil {
		events = NopEvents{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{cfg: cfg, store: store, events: events, logger: logger, now: time.Now}, nil
}

// Persist validates and stores the draft, then announces the new listing.
func (p *Publisher) Persist(ctx context.Context, sellerID string, draft adform.Draft) (*adform.Listing, error) {
	if strings.TrimSpace(sellerID) == "" {
		return nil, fmt.Errorf("%w: seller id is empty", ErrInvalidListingData)
	}
	if !draft.Complete() {
		return nil, fmt.Errorf("%w: missing required fields", ErrInvalidListingData)
	}
	if _, err := parsePrice(draft.Price); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidListingData, err)
	}

	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	html, err := mdToHTML(draft.Description)
	if err != nil {
		return nil, fmt.Errorf("render description: %w", err)
	}

	listing := &adform.Listing{
		ID:              uuid.NewString(),
		SellerID:        sellerID,
		PostedAt:        p.now().UTC(),
		Currency:        p.cfg.Currency,
		DescriptionHTML: html,
		Draft:           draft,
	}
	if err := p.store.Save(ctx, listing); err != nil {
		return nil, fmt.Errorf("save listing: %w", err)
	}
	p.logger.Info("listing stored",
		zap.String("listing_id", listing.ID),
		zap.String("seller_id", sellerID),
		zap.String("category", draft.Category),
	)

	// 列表已经落库，事件发送失败只记录日志，不回滚。
	if err := p.events.ListingCreated(ctx, listing); err != nil {
		p.logger.Warn("listing.created event not published", zap.String("listing_id", listing.ID), zap.Error(err))
	}
	return listing, nil
}

// Get reads a published listing back.
func (p *Publisher) Get(ctx context.Context, id string) (*adform.Listing, error) {
	return p.store.Get(ctx, id)
}

func (p *Publisher) wait(ctx context.Context) error {
	if p.cfg.SimulatedLatency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.cfg.SimulatedLatency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var priceRe = regexp.MustCompile(`^\d+(\.\d+)?$`)

// parsePrice accepts plain decimal amounts with optional thousands separators.
// Signs, exponents, hex and NaN/Inf spellings are refused.
func parsePrice(raw string) (float64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if !priceRe.MatchString(s) {
		return 0, fmt.Errorf("price %q is not a decimal amount", raw)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", raw, err)
	}
	return v, nil
}

func mdToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
