package apple

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"time"

	"github.com/smallstep/pkcs7"

	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/wallet"
)

const ContentType = "application/vnd.apple.pkpass"

var passImages = []string{
	"icon.png", "icon@2x.png", "icon@3x.png",
	"logo.png", "logo@2x.png", "logo@3x.png",
	"strip.png", "strip@2x.png", "strip@3x.png",
}

type RendererConfig struct {
	PassTypeID       string
	TeamID           string
	OrganizationName string
	// WebServiceURL is the base the device appends /v1/... to.
	WebServiceURL string
	// Assets holds default images at its root and per-template images under
	// the template's ImageDir.
	Assets fs.FS
}

// Renderer builds signed .pkpass archives.
type Renderer struct {
	creds *Credentials
	cfg   RendererConfig
}

// NewRenderer returns a renderer. A nil creds is allowed; Render then fails
// with domain.ErrWalletConfigMissing.
func NewRenderer(creds *Credentials, cfg RendererConfig) *Renderer {
	return &Renderer{creds: creds, cfg: cfg}
}

func (r *Renderer) Configured() bool {
	return r != nil && r.creds != nil && r.cfg.PassTypeID != ""
}

func (r *Renderer) PassTypeID() string {
	return r.cfg.PassTypeID
}

// Render produces the archive for the current balance in p.
func (r *Renderer) Render(ctx context.Context, p wallet.PassData) ([]byte, error) {
	if !r.Configured() {
		return nil, domain.ErrWalletConfigMissing
	}

	files := make(map[string][]byte)

	passJSON, err := json.Marshal(r.passDocument(p))
	if err != nil {
		return nil, fmt.Errorf("marshal pass.json: %w", err)
	}
	files["pass.json"] = passJSON

	if err := r.collectImages(p.Template.ImageDir, files); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	manifest, err := buildManifest(files)
	if err != nil {
		return nil, err
	}
	signature, err := r.sign(manifest)
	if err != nil {
		return nil, err
	}
	files["manifest.json"] = manifest
	files["signature"] = signature

	return zipFiles(files)
}

type passField struct {
	Key           string `json:"key"`
	Label         string `json:"label,omitempty"`
	Value         any    `json:"value"`
	ChangeMessage string `json:"changeMessage,omitempty"`
}

type passBarcode struct {
	Format          string `json:"format"`
	Message         string `json:"message"`
	MessageEncoding string `json:"messageEncoding"`
	AltText         string `json:"altText,omitempty"`
}

type passStructure struct {
	PrimaryFields   []passField `json:"primaryFields"`
	SecondaryFields []passField `json:"secondaryFields,omitempty"`
	AuxiliaryFields []passField `json:"auxiliaryFields,omitempty"`
	BackFields      []passField `json:"backFields,omitempty"`
}

type passDocument struct {
	FormatVersion       int           `json:"formatVersion"`
	PassTypeIdentifier  string        `json:"passTypeIdentifier"`
	SerialNumber        string        `json:"serialNumber"`
	TeamIdentifier      string        `json:"teamIdentifier"`
	OrganizationName    string        `json:"organizationName"`
	Description         string        `json:"description"`
	LogoText            string        `json:"logoText,omitempty"`
	ForegroundColor     string        `json:"foregroundColor,omitempty"`
	BackgroundColor     string        `json:"backgroundColor,omitempty"`
	LabelColor          string        `json:"labelColor,omitempty"`
	AuthenticationToken string        `json:"authenticationToken,omitempty"`
	WebServiceURL       string        `json:"webServiceURL,omitempty"`
	Barcodes            []passBarcode `json:"barcodes"`
	StoreCard           passStructure `json:"storeCard"`
}

func (r *Renderer) passDocument(p wallet.PassData) passDocument {
	t := p.Template
	doc := passDocument{
		FormatVersion:      1,
		PassTypeIdentifier: r.cfg.PassTypeID,
		SerialNumber:       p.Serial,
		TeamIdentifier:     r.cfg.TeamID,
		OrganizationName:   r.cfg.OrganizationName,
		Description:        t.Description,
		LogoText:           p.Title(),
		ForegroundColor:    t.ForegroundColor,
		BackgroundColor:    t.BackgroundColor,
		LabelColor:         t.LabelColor,
		Barcodes: []passBarcode{{
			Format:          barcodeFormat(t.BarcodeFormat),
			Message:         p.Customer.MemberID,
			MessageEncoding: "iso-8859-1",
			AltText:         p.Customer.MemberID,
		}},
		StoreCard: passStructure{
			PrimaryFields: []passField{{
				Key:           "points",
				Label:         t.PointsLabel,
				Value:         p.Balance(),
				ChangeMessage: "Your balance is now %@",
			}},
			SecondaryFields: []passField{{Key: "name", Label: t.NameLabel, Value: p.Customer.FullName}},
			AuxiliaryFields: []passField{{Key: "member", Label: t.MemberLabel, Value: p.Customer.MemberID}},
			BackFields: []passField{{
				Key:   "updated",
				Label: "Last updated",
				Value: p.UpdatedAt.UTC().Format(time.RFC3339),
			}},
		},
	}
	if r.cfg.WebServiceURL != "" && p.AuthToken != "" {
		doc.AuthenticationToken = p.AuthToken
		doc.WebServiceURL = r.cfg.WebServiceURL
	}
	if doc.Description == "" {
		doc.Description = "Loyalty card"
	}
	return doc
}

func barcodeFormat(f string) string {
	switch f {
	case "PKBarcodeFormatQR", "PKBarcodeFormatPDF417", "PKBarcodeFormatAztec", "PKBarcodeFormatCode128":
		return f
	default:
		return "PKBarcodeFormatQR"
	}
}

// collectImages prefers the template's own image over the default one.
func (r *Renderer) collectImages(dir string, files map[string][]byte) error {
	if r.cfg.Assets == nil {
		return errors.New("pass assets are not configured")
	}
	for _, name := range passImages {
		var candidates []string
		if dir != "" {
			candidates = append(candidates, path.Join(dir, name))
		}
		candidates = append(candidates, name)

		for _, c := range candidates {
			data, err := fs.ReadFile(r.cfg.Assets, c)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return fmt.Errorf("read pass image %s: %w", c, err)
			}
			files[name] = data
			break
		}
	}
	if _, ok := files["icon.png"]; !ok {
		return errors.New("pass assets are missing icon.png")
	}
	return nil
}

func buildManifest(files map[string][]byte) ([]byte, error) {
	manifest := make(map[string]string, len(files))
	for name, data := range files {
		sum := sha1.Sum(data)
		manifest[name] = hex.EncodeToString(sum[:])
	}
	return json.Marshal(manifest)
}

func (r *Renderer) sign(manifest []byte) ([]byte, error) {
	sd, err := pkcs7.NewSignedData(manifest)
	if err != nil {
		return nil, fmt.Errorf("init signature: %w", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(r.creds.Cert, r.creds.Key, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("add signer: %w", err)
	}
	sd.AddCertificate(r.creds.WWDR)
	sd.Detach()
	return sd.Finish()
}

func zipFiles(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("zip %s: %w", name, err)
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, fmt.Errorf("zip %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}
