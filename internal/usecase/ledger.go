package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/im7mortal/kmutex"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	db "github.com/azizikri/loyalty-wallet/db/gen"
	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/metrics"
	"github.com/azizikri/loyalty-wallet/internal/repository"
)

const (
	MaxDelta  = 1000
	MaxRedeem = 100000

	defaultHistoryLimit = 50
	maxListLimit        = 500
)

// MutationResult is returned by every committed ledger mutation. Customer is
// the post-commit record; the channel reports never affect the commit.
type MutationResult struct {
	Customer         domain.Customer      `json:"customer"`
	Entry            domain.LedgerEntry   `json:"entry"`
	WalletUpdate     domain.ChannelReport `json:"walletUpdate"`
	PushNotification domain.ChannelReport `json:"pushNotification"`
}

type EnrollParams struct {
	OwnerID    string
	FullName   string
	Phone      string
	Email      string
	TemplateID string
}

type LedgerService struct {
	store     repository.Store
	locks     *kmutex.Kmutex
	wallet    WalletNotifier
	push      PushNotifier
	listeners []BalanceListener
	timeout   time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

type LedgerOption func(*LedgerService)

func WithWalletNotifier(n WalletNotifier) LedgerOption {
	return func(s *LedgerService) { s.wallet = n }
}

func WithPushNotifier(n PushNotifier) LedgerOption {
	return func(s *LedgerService) { s.push = n }
}

// WithListeners registers listeners called synchronously after each commit.
func WithListeners(l ...BalanceListener) LedgerOption {
	return func(s *LedgerService) { s.listeners = append(s.listeners, l...) }
}

func WithDispatchTimeout(d time.Duration) LedgerOption {
	return func(s *LedgerService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewLedgerService(store repository.Store, logger zerolog.Logger, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		store:   store,
		locks:   kmutex.New(),
		timeout: 10 * time.Second,
		logger:  logger.With().Str("component", "ledger").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddListener registers l for subsequent commits. It must be called before
// the service starts serving.
func (s *LedgerService) AddListener(l BalanceListener) {
	s.listeners = append(s.listeners, l)
}

func (s *LedgerService) Earn(ctx context.Context, customerID string, delta int) (*MutationResult, error) {
	if delta < 1 || delta > MaxDelta {
		return nil, fmt.Errorf("%w: earn delta must be between 1 and %d", domain.ErrValidation, MaxDelta)
	}
	return s.apply(ctx, customerID, delta, domain.ReasonEarn, "")
}

func (s *LedgerService) Redeem(ctx context.Context, customerID string, amount int) (*MutationResult, error) {
	if amount < 1 || amount > MaxRedeem {
		return nil, fmt.Errorf("%w: redeem amount must be between 1 and %d", domain.ErrValidation, MaxRedeem)
	}
	return s.apply(ctx, customerID, -amount, domain.ReasonRedeem, "")
}

// Adjust applies a manual correction. The resulting balance may not go
// below zero.
func (s *LedgerService) Adjust(ctx context.Context, customerID string, delta int, note string) (*MutationResult, error) {
	if delta == 0 || delta > MaxDelta || delta < -MaxDelta {
		return nil, fmt.Errorf("%w: adjust delta must be non-zero and within ±%d", domain.ErrValidation, MaxDelta)
	}
	return s.apply(ctx, customerID, delta, domain.ReasonAdjust, strings.TrimSpace(note))
}

func (s *LedgerService) apply(ctx context.Context, customerID string, delta int, reason domain.Reason, note string) (*MutationResult, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, fmt.Errorf("%w: customer id is required", domain.ErrValidation)
	}

	s.locks.Lock(customerID)
	customer, entry, err := s.commit(ctx, customerID, delta, reason, note)
	if err != nil {
		s.locks.Unlock(customerID)
		metrics.LedgerMutations.WithLabelValues(string(reason), domain.Code(err)).Inc()
		return nil, err
	}

	event := domain.BalanceEvent{
		CustomerID: customer.ID,
		OwnerID:    customer.OwnerID,
		FullName:   customer.FullName,
		Delta:      entry.Delta,
		Reason:     reason,
		Balance:    customer.Points,
		EntryID:    entry.ID,
		At:         entry.CreatedAt,
	}
	for _, l := range s.listeners {
		l.OnBalanceChanged(ctx, event)
	}
	s.locks.Unlock(customerID)

	metrics.LedgerMutations.WithLabelValues(string(reason), "OK").Inc()
	s.logger.Info().
		Str("customer_id", customer.ID).
		Str("reason", string(reason)).
		Int("delta", delta).
		Int("balance", customer.Points).
		Msg("ledger mutation committed")

	result := &MutationResult{Customer: customer, Entry: entry}
	result.WalletUpdate, result.PushNotification = s.propagate(ctx, customer, entry)
	return result, nil
}

func (s *LedgerService) commit(ctx context.Context, customerID string, delta int, reason domain.Reason, note string) (domain.Customer, domain.LedgerEntry, error) {
	var (
		updated db.Customer
		entry   db.LedgerEntry
	)
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		current, err := q.GetCustomerForUpdate(ctx, customerID)
		if err != nil {
			return notFound(err)
		}

		next := int(current.Points) + delta
		if next < 0 {
			return fmt.Errorf("%w: balance %d, requested %d", domain.ErrInsufficientBalance, current.Points, -delta)
		}
		if next > math.MaxInt32 {
			return fmt.Errorf("%w: balance would exceed %d", domain.ErrValidation, math.MaxInt32)
		}

		updated, err = q.UpdateCustomerPoints(ctx, db.UpdateCustomerPointsParams{ID: customerID, Points: int32(next)})
		if err != nil {
			return err
		}
		entry, err = q.InsertLedgerEntry(ctx, db.InsertLedgerEntryParams{
			CustomerID:       customerID,
			Delta:            int32(delta),
			Reason:           string(reason),
			ResultingBalance: int32(next),
			Note:             note,
		})
		if err != nil {
			return err
		}
		if updated.CardID.Valid {
			return q.TouchCard(ctx, updated.CardID.String)
		}
		return nil
	})
	if err != nil {
		return domain.Customer{}, domain.LedgerEntry{}, commitError(err)
	}
	return toCustomer(updated), toEntry(entry), nil
}

func commitError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrValidation):
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23514" {
		return fmt.Errorf("%w: %s", domain.ErrInsufficientBalance, pgErr.Message)
	}
	return fmt.Errorf("%w: %v", domain.ErrLedgerCommit, err)
}

// propagate runs wallet and web push delivery for a committed mutation. It
// outlives a cancelled request so in-flight sends are not cut short.
func (s *LedgerService) propagate(ctx context.Context, customer domain.Customer, entry domain.LedgerEntry) (walletReport, pushReport domain.ChannelReport) {
	walletReport, pushReport = domain.SkippedReport(), domain.SkippedReport()
	if s.wallet == nil && s.push == nil {
		return walletReport, pushReport
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var g errgroup.Group
	if s.wallet != nil {
		g.Go(func() error {
			walletReport = s.wallet.Dispatch(dctx, customer)
			return nil
		})
	}
	if s.push != nil {
		g.Go(func() error {
			pushReport = s.push.SendToCustomer(dctx, customer.ID, balancePayload(customer, entry))
			return nil
		})
	}
	_ = g.Wait()

	if !walletReport.Success {
		s.logger.Warn().Str("customer_id", customer.ID).Strs("errors", walletReport.Errors).Msg("wallet update incomplete")
	}
	if !pushReport.Success {
		s.logger.Warn().Str("customer_id", customer.ID).Strs("errors", pushReport.Errors).Msg("push notification incomplete")
	}
	return walletReport, pushReport
}

func balancePayload(c domain.Customer, e domain.LedgerEntry) domain.PushPayload {
	var body string
	switch e.Reason {
	case domain.ReasonEarn:
		body = fmt.Sprintf("You earned %d points.", e.Delta)
	case domain.ReasonRedeem:
		body = fmt.Sprintf("You redeemed %d points.", -e.Delta)
	default:
		body = fmt.Sprintf("Your balance was adjusted by %+d points.", e.Delta)
	}
	return domain.PushPayload{
		Title: "Points updated",
		Body:  fmt.Sprintf("%s Balance: %d", body, c.Points),
	}
}

// Enroll creates a customer with a zero balance.
func (s *LedgerService) Enroll(ctx context.Context, p EnrollParams) (domain.Customer, error) {
	p.OwnerID = strings.TrimSpace(p.OwnerID)
	p.FullName = strings.TrimSpace(p.FullName)
	if p.OwnerID == "" || p.FullName == "" {
		return domain.Customer{}, fmt.Errorf("%w: owner id and full name are required", domain.ErrValidation)
	}

	id := uuid.NewString()
	c, err := s.store.CreateCustomer(ctx, db.CreateCustomerParams{
		ID:         id,
		OwnerID:    p.OwnerID,
		FullName:   p.FullName,
		Phone:      repository.Text(p.Phone),
		Email:      repository.Text(p.Email),
		MemberID:   memberID(id),
		TemplateID: repository.Text(p.TemplateID),
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return domain.Customer{}, fmt.Errorf("%w: unknown template %q", domain.ErrValidation, p.TemplateID)
	}
	if err != nil {
		return domain.Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return toCustomer(c), nil
}

func memberID(id string) string {
	return "M-" + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:10])
}

func (s *LedgerService) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, notFound(err)
	}
	return toCustomer(c), nil
}

// History returns the newest entries first.
func (s *LedgerService) History(ctx context.Context, customerID string, limit int) ([]domain.LedgerEntry, error) {
	if _, err := s.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	rows, err := s.store.ListLedgerEntries(ctx, db.ListLedgerEntriesParams{
		CustomerID: customerID,
		Limit:      clampLimit(limit),
	})
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LedgerEntry, len(rows))
	for i, r := range rows {
		entries[i] = toEntry(r)
	}
	return entries, nil
}

func (s *LedgerService) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Customer, error) {
	rows, err := s.store.ListCustomersByOwner(ctx, db.ListCustomersByOwnerParams{
		OwnerID: ownerID,
		Limit:   clampLimit(limit),
	})
	if err != nil {
		return nil, err
	}
	customers := make([]domain.Customer, len(rows))
	for i, r := range rows {
		customers[i] = toCustomer(r)
	}
	return customers, nil
}

func clampLimit(limit int) int32 {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return int32(limit)
	}
}
