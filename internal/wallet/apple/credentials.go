package apple

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/azizikri/loyalty-wallet/internal/domain"
)

// Credentials holds the pass type certificate used both to sign passes and to
// authenticate against APNs, plus the Apple WWDR intermediate.
type Credentials struct {
	Cert *x509.Certificate
	Key  crypto.PrivateKey
	WWDR *x509.Certificate
	TLS  tls.Certificate
}

// LoadCredentials reads PEM encoded certificate, key and WWDR files. Any empty
// path yields domain.ErrWalletConfigMissing.
func LoadCredentials(certPath, keyPath, wwdrPath string) (*Credentials, error) {
	if certPath == "" || keyPath == "" || wwdrPath == "" {
		return nil, domain.ErrWalletConfigMissing
	}

	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("read pass certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read pass key: %w", err)
	}
	wwdrPEM, err := os.ReadFile(wwdrPath)
	if err != nil {
		return nil, fmt.Errorf("read wwdr certificate: %w", err)
	}
	return ParseCredentials(certPEM, keyPEM, wwdrPEM)
}

func ParseCredentials(certPEM, keyPEM, wwdrPEM []byte) (*Credentials, error) {
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse pass key pair: %w", err)
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parse pass certificate: %w", err)
	}
	wwdr, err := parseCertificate(wwdrPEM)
	if err != nil {
		return nil, fmt.Errorf("parse wwdr certificate: %w", err)
	}
	return &Credentials{
		Cert: cert,
		Key:  pair.PrivateKey,
		WWDR: wwdr,
		TLS:  pair,
	}, nil
}

func parseCertificate(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		// WWDR is distributed as DER by Apple.
		return x509.ParseCertificate(data)
	}
	if block.Type != "CERTIFICATE" {
		return nil, errors.New("unexpected PEM block " + block.Type)
	}
	return x509.ParseCertificate(block.Bytes)
}
