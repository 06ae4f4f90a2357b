package webpush

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azizikri/loyalty-wallet/internal/domain"
)

type fakeStore struct {
	mu      sync.Mutex
	subs    []domain.PushSubscription
	removed []string
	listErr error
}

func (f *fakeStore) ListSubscriptionsByCustomer(ctx context.Context, customerID string) ([]domain.PushSubscription, error) {
	return f.list(func(s domain.PushSubscription) bool { return s.CustomerID == customerID })
}

func (f *fakeStore) ListSubscriptionsByOwner(ctx context.Context, ownerID string) ([]domain.PushSubscription, error) {
	return f.list(func(s domain.PushSubscription) bool { return s.OwnerID == ownerID })
}

func (f *fakeStore) list(match func(domain.PushSubscription) bool) ([]domain.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.PushSubscription
	for _, s := range f.subs {
		if match(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) Unsubscribe(ctx context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, endpoint)
	kept := f.subs[:0]
	for _, s := range f.subs {
		if s.Endpoint != endpoint {
			kept = append(kept, s)
		}
	}
	f.subs = kept
	return nil
}

func browserSubscription(t *testing.T, endpoint, ownerID, customerID string) domain.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	return domain.PushSubscription{
		Endpoint:   endpoint,
		P256dh:     base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		Auth:       base64.RawURLEncoding.EncodeToString(auth),
		OwnerID:    ownerID,
		CustomerID: customerID,
	}
}

func newPushService(t *testing.T, statusByPath map[string]int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "vapid "))
		status, ok := statusByPath[r.URL.Path]
		if !ok {
			status = http.StatusCreated
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestDispatcher(t *testing.T, store SubscriptionStore, client *http.Client) *Dispatcher {
	t.Helper()
	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return NewDispatcher(store, Options{
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		Subscriber:      "mailto:ops@example.com",
		TTL:             60,
		Concurrency:     2,
		HTTPClient:      client,
	}, zerolog.Nop())
}

func TestSendToOwner_RemovesOnlyGoneSubscription(t *testing.T) {
	srv := newPushService(t, map[string]int{"/gone": http.StatusGone})
	store := &fakeStore{subs: []domain.PushSubscription{
		browserSubscription(t, srv.URL+"/ok-1", "owner-1", "c1"),
		browserSubscription(t, srv.URL+"/gone", "owner-1", "c2"),
		browserSubscription(t, srv.URL+"/ok-2", "owner-1", "c3"),
		browserSubscription(t, srv.URL+"/other", "owner-2", "c4"),
	}}
	d := newTestDispatcher(t, store, srv.Client())

	report := d.SendToOwner(context.Background(), "owner-1", domain.PushPayload{Title: "Sale", Body: "Double points today"})

	assert.Equal(t, 3, report.Attempted)
	assert.False(t, report.Success)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, []string{srv.URL + "/gone"}, store.removed)
	assert.Len(t, store.subs, 3)

	for _, o := range report.Outcomes {
		if o.Target == srv.URL+"/gone" {
			assert.True(t, o.Removed)
			assert.False(t, o.Success)
		} else {
			assert.True(t, o.Success, o.Target)
		}
	}
}

func TestSendToCustomer_FailureKeepsSubscription(t *testing.T) {
	srv := newPushService(t, map[string]int{"/flaky": http.StatusInternalServerError})
	store := &fakeStore{subs: []domain.PushSubscription{
		browserSubscription(t, srv.URL+"/flaky", "owner-1", "c1"),
		browserSubscription(t, srv.URL+"/ok", "owner-1", "c1"),
	}}
	d := newTestDispatcher(t, store, srv.Client())

	report := d.SendToCustomer(context.Background(), "c1", domain.PushPayload{Title: "Points", Body: "+10"})

	assert.Equal(t, 2, report.Attempted)
	assert.False(t, report.Success)
	assert.Empty(t, store.removed)
}

func TestSend_NoSubscriptions(t *testing.T) {
	d := newTestDispatcher(t, &fakeStore{}, http.DefaultClient)

	report := d.SendToCustomer(context.Background(), "nobody", domain.PushPayload{Title: "x"})
	assert.True(t, report.Success)
	assert.Zero(t, report.Attempted)
}

func TestSend_ListFailure(t *testing.T) {
	d := newTestDispatcher(t, &fakeStore{listErr: errors.New("db down")}, http.DefaultClient)

	report := d.SendToOwner(context.Background(), "owner-1", domain.PushPayload{Title: "x"})
	assert.False(t, report.Success)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "db down")
}

func TestSend_NotConfigured(t *testing.T) {
	d := NewDispatcher(&fakeStore{}, Options{}, zerolog.Nop())

	report := d.SendToCustomer(context.Background(), "c1", domain.PushPayload{Title: "x"})
	assert.True(t, report.Skipped)
	assert.True(t, report.Success)
	assert.Empty(t, d.PublicKey())
}
