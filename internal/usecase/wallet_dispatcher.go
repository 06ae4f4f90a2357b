package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/metrics"
	"github.com/azizikri/loyalty-wallet/internal/repository"
	"github.com/azizikri/loyalty-wallet/internal/wallet"
)

const walletChannel = "wallet"

type WalletDispatcherConfig struct {
	// Apple is nil when APNs is not configured.
	Apple APNsNotifier
	// Google is nil when Google Wallet is not configured.
	Google      GoogleWallet
	Concurrency int
}

// WalletDispatcher tells every registered wallet that a card changed. Apple
// devices get an empty push and fetch the pass again; Google objects are
// patched in place.
type WalletDispatcher struct {
	store       repository.Store
	directory   *DirectoryService
	apple       APNsNotifier
	google      GoogleWallet
	concurrency int
	logger      zerolog.Logger
}

func NewWalletDispatcher(store repository.Store, directory *DirectoryService, cfg WalletDispatcherConfig, logger zerolog.Logger) *WalletDispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	d := &WalletDispatcher{
		store:       store,
		directory:   directory,
		apple:       cfg.Apple,
		concurrency: cfg.Concurrency,
		logger:      logger.With().Str("component", "wallet_dispatcher").Logger(),
	}
	if cfg.Google != nil && cfg.Google.Configured() {
		d.google = cfg.Google
	}
	return d
}

func (d *WalletDispatcher) configured(p domain.Platform) bool {
	switch p {
	case domain.PlatformApple:
		return d.apple != nil
	case domain.PlatformGoogle:
		return d.google != nil
	default:
		return false
	}
}

// Dispatch never returns an error; failures are recorded in the report.
func (d *WalletDispatcher) Dispatch(ctx context.Context, customer domain.Customer) domain.ChannelReport {
	if d.apple == nil && d.google == nil {
		return domain.SkippedReport()
	}
	if customer.CardID == "" {
		return domain.NewChannelReport(nil)
	}

	card, err := d.store.GetCard(ctx, customer.CardID)
	if err != nil {
		return d.failed(customer, fmt.Errorf("load card: %w", notFound(err)))
	}
	regs, err := d.directory.ListRegistrationsBySerial(ctx, card.ID)
	if err != nil {
		return d.failed(customer, fmt.Errorf("list registrations: %w", err))
	}

	var targets []domain.WalletRegistration
	for _, r := range regs {
		if d.configured(r.Platform) {
			targets = append(targets, r)
		}
	}
	if len(targets) == 0 {
		return domain.NewChannelReport(nil)
	}

	tmpl, err := loadTemplate(ctx, d.store, customer.TemplateID, card.TemplateID.String)
	if err != nil {
		return d.failed(customer, fmt.Errorf("load template: %w", err))
	}
	pass := wallet.NewPassData(toCard(card), customer, tmpl)

	outcomes := make([]domain.Outcome, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, reg := range targets {
		g.Go(func() error {
			outcomes[i] = d.deliver(gctx, reg, pass)
			return nil
		})
	}
	_ = g.Wait()

	return domain.NewChannelReport(outcomes)
}

func (d *WalletDispatcher) failed(customer domain.Customer, err error) domain.ChannelReport {
	d.logger.Error().Err(err).Str("customer_id", customer.ID).Msg("wallet dispatch aborted")
	return domain.FailedReport(fmt.Errorf("%w: %v", domain.ErrWalletDispatch, err))
}

func (d *WalletDispatcher) deliver(ctx context.Context, reg domain.WalletRegistration, pass wallet.PassData) domain.Outcome {
	outcome := domain.Outcome{Target: reg.Target(), Platform: string(reg.Platform)}

	var err error
	switch reg.Platform {
	case domain.PlatformApple:
		err = d.apple.Notify(ctx, reg.PassTypeID, reg.PushToken)
	case domain.PlatformGoogle:
		err = d.google.PatchBalance(ctx, reg.ObjectID, pass)
	}

	switch {
	case err == nil:
		outcome.Success = true
	case errors.Is(err, domain.ErrTargetGone):
		outcome.Error = err.Error()
		outcome.Removed = d.remove(ctx, reg)
	default:
		outcome.Error = err.Error()
		d.logger.Warn().Err(err).Str("target", reg.Target()).Str("serial", reg.Serial).Msg("wallet update failed")
	}

	metrics.DispatchOutcomes.WithLabelValues(walletChannel, string(reg.Platform), metrics.Result(outcome.Success)).Inc()
	return outcome
}

func (d *WalletDispatcher) remove(ctx context.Context, reg domain.WalletRegistration) bool {
	var (
		removed bool
		err     error
	)
	if reg.Platform == domain.PlatformGoogle {
		removed, err = d.directory.RemoveGoogleRegistration(ctx, reg.ObjectID)
	} else {
		removed, err = d.directory.RemoveAppleRegistration(ctx, reg)
	}
	if err != nil {
		d.logger.Warn().Err(err).Str("target", reg.Target()).Msg("failed to remove stale registration")
		return false
	}
	if removed {
		metrics.TargetsRemoved.WithLabelValues(walletChannel).Inc()
		d.logger.Info().Str("target", reg.Target()).Str("serial", reg.Serial).Msg("stale registration removed")
	}
	return removed
}
