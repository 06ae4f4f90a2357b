package apple

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"

	"github.com/azizikri/loyalty-wallet/internal/domain"
)

const (
	ProductionHost = "https://api.push.apple.com"
	SandboxHost    = "https://api.sandbox.push.apple.com"
)

// NewAPNsClient returns an HTTP/2 client that authenticates with the pass
// type certificate.
func NewAPNsClient(creds *Credentials, timeout time.Duration) *http.Client {
	transport := &http2.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{creds.TLS},
			MinVersion:   tls.VersionTLS12,
		},
		ReadIdleTimeout: 30 * time.Second,
		PingTimeout:     10 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Pusher sends the empty pass update notification. The device answers it by
// calling the web service for the updated serials.
type Pusher struct {
	client *http.Client
	host   string
	logger zerolog.Logger
}

func NewPusher(client *http.Client, host string, logger zerolog.Logger) *Pusher {
	if host == "" {
		host = ProductionHost
	}
	return &Pusher{
		client: client,
		host:   strings.TrimRight(host, "/"),
		logger: logger.With().Str("component", "apns").Logger(),
	}
}

type apnsError struct {
	Reason string `json:"reason"`
}

// Notify returns domain.ErrTargetGone when APNs reports the token is no
// longer valid.
func (p *Pusher) Notify(ctx context.Context, passTypeID, pushToken string) error {
	url := p.host + "/3/device/" + pushToken
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte("{}")))
	if err != nil {
		return fmt.Errorf("build apns request: %w", err)
	}
	req.Header.Set("apns-topic", passTypeID)
	req.Header.Set("apns-push-type", "background")
	req.Header.Set("apns-priority", "5")
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("apns request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var apnsErr apnsError
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(body, &apnsErr)

	switch {
	case resp.StatusCode == http.StatusGone,
		resp.StatusCode == http.StatusBadRequest && (apnsErr.Reason == "BadDeviceToken" || apnsErr.Reason == "Unregistered"):
		return fmt.Errorf("apns %d %s: %w", resp.StatusCode, apnsErr.Reason, domain.ErrTargetGone)
	default:
		p.logger.Debug().Int("status", resp.StatusCode).Str("reason", apnsErr.Reason).Msg("apns rejected notification")
		return fmt.Errorf("apns %d %s", resp.StatusCode, apnsErr.Reason)
	}
}
