// Package webpush delivers browser notifications to stored push subscriptions.
package webpush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/metrics"
)

const channel = "web_push"

// SubscriptionStore is the part of the registration directory the
// dispatcher reads from and prunes.
type SubscriptionStore interface {
	ListSubscriptionsByCustomer(ctx context.Context, customerID string) ([]domain.PushSubscription, error)
	ListSubscriptionsByOwner(ctx context.Context, ownerID string) ([]domain.PushSubscription, error)
	Unsubscribe(ctx context.Context, endpoint string) error
}

type Options struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	// Subscriber is the VAPID contact, a mailto: or https: URL.
	Subscriber  string
	TTL         int
	Concurrency int
	HTTPClient  *http.Client
}

type Dispatcher struct {
	store  SubscriptionStore
	opts   Options
	logger zerolog.Logger
}

func NewDispatcher(store SubscriptionStore, opts Options, logger zerolog.Logger) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.TTL <= 0 {
		opts.TTL = 86400
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Dispatcher{
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "webpush").Logger(),
	}
}

func (d *Dispatcher) Configured() bool {
	return d != nil && d.opts.VAPIDPublicKey != "" && d.opts.VAPIDPrivateKey != ""
}

// PublicKey is the application server key browsers subscribe with.
func (d *Dispatcher) PublicKey() string {
	if d == nil {
		return ""
	}
	return d.opts.VAPIDPublicKey
}

func (d *Dispatcher) SendToCustomer(ctx context.Context, customerID string, payload domain.PushPayload) domain.ChannelReport {
	if !d.Configured() {
		return domain.SkippedReport()
	}
	subs, err := d.store.ListSubscriptionsByCustomer(ctx, customerID)
	if err != nil {
		d.logger.Error().Err(err).Str("customer_id", customerID).Msg("failed to list push subscriptions")
		return domain.FailedReport(fmt.Errorf("%w: %v", domain.ErrPushDispatch, err))
	}
	return d.send(ctx, subs, payload)
}

// SendToOwner notifies every subscription registered under a business.
func (d *Dispatcher) SendToOwner(ctx context.Context, ownerID string, payload domain.PushPayload) domain.ChannelReport {
	if !d.Configured() {
		return domain.SkippedReport()
	}
	subs, err := d.store.ListSubscriptionsByOwner(ctx, ownerID)
	if err != nil {
		d.logger.Error().Err(err).Str("owner_id", ownerID).Msg("failed to list push subscriptions")
		return domain.FailedReport(fmt.Errorf("%w: %v", domain.ErrPushDispatch, err))
	}
	return d.send(ctx, subs, payload)
}

func (d *Dispatcher) send(ctx context.Context, subs []domain.PushSubscription, payload domain.PushPayload) domain.ChannelReport {
	if len(subs) == 0 {
		return domain.NewChannelReport(nil)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.FailedReport(fmt.Errorf("%w: %v", domain.ErrPushDispatch, err))
	}

	outcomes := make([]domain.Outcome, len(subs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for i, sub := range subs {
		g.Go(func() error {
			outcomes[i] = d.deliver(gctx, sub, body)
			return nil
		})
	}
	_ = g.Wait()

	return domain.NewChannelReport(outcomes)
}

func (d *Dispatcher) deliver(ctx context.Context, sub domain.PushSubscription, body []byte) domain.Outcome {
	outcome := domain.Outcome{Target: sub.Endpoint, Platform: channel}

	err := d.post(ctx, sub, body)
	switch {
	case err == nil:
		outcome.Success = true
	case errors.Is(err, domain.ErrTargetGone):
		outcome.Error = err.Error()
		if rmErr := d.store.Unsubscribe(ctx, sub.Endpoint); rmErr != nil {
			d.logger.Warn().Err(rmErr).Str("endpoint", sub.Endpoint).Msg("failed to remove expired subscription")
		} else {
			outcome.Removed = true
			metrics.TargetsRemoved.WithLabelValues(channel).Inc()
		}
	default:
		outcome.Error = err.Error()
		d.logger.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("push delivery failed")
	}

	metrics.DispatchOutcomes.WithLabelValues(channel, channel, metrics.Result(outcome.Success)).Inc()
	return outcome
}

func (d *Dispatcher) post(ctx context.Context, sub domain.PushSubscription, body []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		HTTPClient:      d.opts.HTTPClient,
		Subscriber:      d.opts.Subscriber,
		VAPIDPublicKey:  d.opts.VAPIDPublicKey,
		VAPIDPrivateKey: d.opts.VAPIDPrivateKey,
		TTL:             d.opts.TTL,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("push service %d: %w", resp.StatusCode, domain.ErrTargetGone)
	default:
		return fmt.Errorf("push service %d", resp.StatusCode)
	}
}
