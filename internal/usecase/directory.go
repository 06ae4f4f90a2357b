package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	db "github.com/azizikri/loyalty-wallet/db/gen"
	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/repository"
)

// DirectoryService records which devices, wallet objects and browsers hold
// a card. Every write is an upsert or delete on the record's natural key.
type DirectoryService struct {
	store  repository.Store
	logger zerolog.Logger
}

func NewDirectoryService(store repository.Store, logger zerolog.Logger) *DirectoryService {
	return &DirectoryService{
		store:  store,
		logger: logger.With().Str("component", "directory").Logger(),
	}
}

// AuthorizeCard checks the pass authentication token. Unknown serials are
// reported as unauthorized too.
func (s *DirectoryService) AuthorizeCard(ctx context.Context, serial, authToken string) (domain.Card, error) {
	if serial == "" || authToken == "" {
		return domain.Card{}, domain.ErrUnauthorized
	}
	card, err := s.store.GetCard(ctx, serial)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Card{}, domain.ErrUnauthorized
	}
	if err != nil {
		return domain.Card{}, err
	}
	if subtle.ConstantTimeCompare([]byte(card.AuthToken), []byte(authToken)) != 1 {
		return domain.Card{}, domain.ErrUnauthorized
	}
	return toCard(card), nil
}

// RegisterDevice reports created=false when the device already held the pass;
// its push token is refreshed either way.
func (s *DirectoryService) RegisterDevice(ctx context.Context, deviceID, passTypeID, serial, pushToken, authToken string) (bool, error) {
	if deviceID == "" || passTypeID == "" || pushToken == "" {
		return false, fmt.Errorf("%w: device id, pass type id and push token are required", domain.ErrValidation)
	}
	if _, err := s.AuthorizeCard(ctx, serial, authToken); err != nil {
		return false, err
	}

	created, err := s.store.UpsertAppleRegistration(ctx, db.UpsertAppleRegistrationParams{
		Serial:     serial,
		PassTypeID: passTypeID,
		DeviceID:   deviceID,
		PushToken:  pushToken,
	})
	if err != nil {
		return false, fmt.Errorf("upsert registration: %w", err)
	}
	s.logger.Debug().Str("device_id", deviceID).Str("serial", serial).Bool("created", created).Msg("device registered")
	return created, nil
}

func (s *DirectoryService) UnregisterDevice(ctx context.Context, deviceID, passTypeID, serial, authToken string) error {
	if _, err := s.AuthorizeCard(ctx, serial, authToken); err != nil {
		return err
	}
	_, err := s.store.DeleteAppleRegistration(ctx, db.DeleteAppleRegistrationParams{
		DeviceID:   deviceID,
		PassTypeID: passTypeID,
		Serial:     serial,
	})
	return err
}

// UpdatedSerials lists the serials a device holds that changed after since.
// A zero since returns every serial.
func (s *DirectoryService) UpdatedSerials(ctx context.Context, deviceID, passTypeID string, since time.Time) ([]string, time.Time, error) {
	rows, err := s.store.ListUpdatedSerials(ctx, db.ListUpdatedSerialsParams{
		DeviceID:   deviceID,
		PassTypeID: passTypeID,
		UpdatedAt:  pgtype.Timestamptz{Time: since, Valid: true},
	})
	if err != nil {
		return nil, time.Time{}, err
	}

	serials := make([]string, 0, len(rows))
	var last time.Time
	for _, r := range rows {
		serials = append(serials, r.ID)
		if r.UpdatedAt.Time.After(last) {
			last = r.UpdatedAt.Time
		}
	}
	return serials, last, nil
}

func (s *DirectoryService) RegisterGoogleObject(ctx context.Context, serial, objectID string) (bool, error) {
	if serial == "" || objectID == "" {
		return false, fmt.Errorf("%w: serial and object id are required", domain.ErrValidation)
	}
	return s.store.UpsertGoogleRegistration(ctx, db.UpsertGoogleRegistrationParams{Serial: serial, ObjectID: objectID})
}

// RemoveAppleRegistration deletes reg only while it still carries the push
// token that was rejected, so a concurrent re-registration survives.
func (s *DirectoryService) RemoveAppleRegistration(ctx context.Context, reg domain.WalletRegistration) (bool, error) {
	n, err := s.store.DeleteAppleRegistrationByToken(ctx, db.DeleteAppleRegistrationByTokenParams{
		DeviceID:   reg.DeviceID,
		PassTypeID: reg.PassTypeID,
		Serial:     reg.Serial,
		PushToken:  reg.PushToken,
	})
	return n > 0, err
}

func (s *DirectoryService) RemoveGoogleRegistration(ctx context.Context, objectID string) (bool, error) {
	n, err := s.store.DeleteGoogleRegistration(ctx, objectID)
	return n > 0, err
}

func (s *DirectoryService) ListRegistrationsBySerial(ctx context.Context, serial string) ([]domain.WalletRegistration, error) {
	rows, err := s.store.ListRegistrationsBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	return mapRegistrations(rows), nil
}

func (s *DirectoryService) ListRegistrationsByDevice(ctx context.Context, deviceID, passTypeID string) ([]domain.WalletRegistration, error) {
	rows, err := s.store.ListRegistrationsByDevice(ctx, db.ListRegistrationsByDeviceParams{DeviceID: deviceID, PassTypeID: passTypeID})
	if err != nil {
		return nil, err
	}
	return mapRegistrations(rows), nil
}

func mapRegistrations(rows []db.WalletRegistration) []domain.WalletRegistration {
	regs := make([]domain.WalletRegistration, len(rows))
	for i, r := range rows {
		regs[i] = toRegistration(r)
	}
	return regs
}

// Subscribe stores a browser subscription. A subscription naming a customer
// inherits the customer's business so owner broadcasts reach it.
func (s *DirectoryService) Subscribe(ctx context.Context, sub domain.PushSubscription) error {
	u, err := url.Parse(sub.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: endpoint must be an absolute URL", domain.ErrValidation)
	}
	if strings.TrimSpace(sub.P256dh) == "" || strings.TrimSpace(sub.Auth) == "" {
		return fmt.Errorf("%w: p256dh and auth keys are required", domain.ErrValidation)
	}

	if sub.CustomerID != "" {
		c, err := s.store.GetCustomer(ctx, sub.CustomerID)
		if err != nil {
			return notFound(err)
		}
		if sub.OwnerID == "" {
			sub.OwnerID = c.OwnerID
		}
	}

	return s.store.UpsertPushSubscription(ctx, db.UpsertPushSubscriptionParams{
		Endpoint:   sub.Endpoint,
		P256dh:     sub.P256dh,
		Auth:       sub.Auth,
		OwnerID:    repository.Text(sub.OwnerID),
		CustomerID: repository.Text(sub.CustomerID),
	})
}

func (s *DirectoryService) Unsubscribe(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", domain.ErrValidation)
	}
	_, err := s.store.DeletePushSubscription(ctx, endpoint)
	return err
}

func (s *DirectoryService) ListSubscriptionsByCustomer(ctx context.Context, customerID string) ([]domain.PushSubscription, error) {
	rows, err := s.store.ListPushSubscriptionsByCustomer(ctx, repository.Text(customerID))
	if err != nil {
		return nil, err
	}
	return mapSubscriptions(rows), nil
}

func (s *DirectoryService) ListSubscriptionsByOwner(ctx context.Context, ownerID string) ([]domain.PushSubscription, error) {
	rows, err := s.store.ListPushSubscriptionsByOwner(ctx, repository.Text(ownerID))
	if err != nil {
		return nil, err
	}
	return mapSubscriptions(rows), nil
}

func mapSubscriptions(rows []db.PushSubscription) []domain.PushSubscription {
	subs := make([]domain.PushSubscription, len(rows))
	for i, r := range rows {
		subs[i] = toSubscription(r)
	}
	return subs
}
