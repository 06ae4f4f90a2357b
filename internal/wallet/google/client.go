// Package google issues Google Wallet loyalty objects and keeps their balance
// in sync through the Wallet Objects REST API.
package google

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/walletobjects/v1"

	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/wallet"
)

const (
	Scope       = "https://www.googleapis.com/auth/wallet_object.issuer"
	SaveURLBase = "https://pay.google.com/gp/v/save/"
)

func init() {
	// Google rejects an audience encoded as a single element array.
	jwt.Settings(jwt.WithFlattenAudience(true))
}

type Config struct {
	ServiceAccountJSON []byte
	IssuerID           string
	ClassSuffix        string
	// Origins are the sites allowed to render the save button.
	Origins []string
}

type Client struct {
	cfg   Config
	email string
	key   *rsa.PrivateKey
	svc   *walletobjects.Service
	now   func() time.Time
}

// NewClient parses the service account and builds the REST service. Extra
// options are applied after the service account credentials.
func NewClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if len(cfg.ServiceAccountJSON) == 0 || cfg.IssuerID == "" {
		return nil, domain.ErrWalletConfigMissing
	}

	jwtConf, err := google.JWTConfigFromJSON(cfg.ServiceAccountJSON, Scope)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	key, err := parseRSAKey(jwtConf.PrivateKey)
	if err != nil {
		return nil, err
	}

	clientOpts := append([]option.ClientOption{option.WithHTTPClient(jwtConf.Client(ctx))}, opts...)
	svc, err := walletobjects.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create wallet objects service: %w", err)
	}

	return &Client{
		cfg:   cfg,
		email: jwtConf.Email,
		key:   key,
		svc:   svc,
		now:   time.Now,
	}, nil
}

func parseRSAKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("service account private key is not PEM encoded")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse service account private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("service account private key is not RSA")
	}
	return key, nil
}

func (c *Client) Configured() bool {
	return c != nil
}

// ObjectID returns the loyalty object id for a card serial.
func (c *Client) ObjectID(serial string) string {
	return c.cfg.IssuerID + "." + serial
}

func (c *Client) ClassID() string {
	return c.cfg.IssuerID + "." + c.cfg.ClassSuffix
}

// LoyaltyObject builds the object for the current balance in p.
func (c *Client) LoyaltyObject(p wallet.PassData) *walletobjects.LoyaltyObject {
	t := p.Template
	return &walletobjects.LoyaltyObject{
		Id:          c.ObjectID(p.Serial),
		ClassId:     c.ClassID(),
		State:       "ACTIVE",
		AccountId:   p.Customer.MemberID,
		AccountName: p.Customer.FullName,
		Barcode: &walletobjects.Barcode{
			Type:          "QR_CODE",
			Value:         p.Customer.MemberID,
			AlternateText: p.Customer.MemberID,
		},
		HexBackgroundColor: hexColor(t.BackgroundColor),
		LoyaltyPoints:      balancePoints(p),
	}
}

func balancePoints(p wallet.PassData) *walletobjects.LoyaltyPoints {
	return &walletobjects.LoyaltyPoints{
		Label: p.Template.PointsLabel,
		Balance: &walletobjects.LoyaltyPointsBalance{
			Int:             int64(p.Balance()),
			ForceSendFields: []string{"Int"},
		},
	}
}

// SaveURL returns the "Add to Google Wallet" link with the object embedded in
// a signed JWT.
func (c *Client) SaveURL(ctx context.Context, p wallet.PassData) (string, error) {
	if c == nil {
		return "", domain.ErrWalletConfigMissing
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	origins := c.cfg.Origins
	if origins == nil {
		origins = []string{}
	}
	tok, err := jwt.NewBuilder().
		Issuer(c.email).
		Audience([]string{"google"}).
		IssuedAt(c.now()).
		Claim("typ", "savetowallet").
		Claim("origins", origins).
		Claim("payload", map[string]any{
			"loyaltyObjects": []*walletobjects.LoyaltyObject{c.LoyaltyObject(p)},
		}).
		Build()
	if err != nil {
		return "", fmt.Errorf("build save token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, c.key))
	if err != nil {
		return "", fmt.Errorf("sign save token: %w", err)
	}
	return SaveURLBase + string(signed), nil
}

// PatchBalance updates the points on an already saved object. A missing
// object yields domain.ErrTargetGone.
func (c *Client) PatchBalance(ctx context.Context, objectID string, p wallet.PassData) error {
	if c == nil {
		return domain.ErrWalletConfigMissing
	}
	patch := &walletobjects.LoyaltyObject{LoyaltyPoints: balancePoints(p)}
	_, err := c.svc.Loyaltyobject.Patch(objectID, patch).Context(ctx).Do()
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("loyalty object %s: %w", objectID, domain.ErrTargetGone)
	}
	return fmt.Errorf("patch loyalty object %s: %w", objectID, err)
}

// hexColor converts "rgb(r,g,b)" template colors; hex colors pass through.
func hexColor(c string) string {
	var r, g, b int
	if _, err := fmt.Sscanf(c, "rgb(%d,%d,%d)", &r, &g, &b); err == nil {
		return fmt.Sprintf("#%02x%02x%02x", r, g, b)
	}
	if len(c) == 7 && c[0] == '#' {
		return c
	}
	return ""
}
