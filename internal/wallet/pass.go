// Package wallet holds the platform-neutral view of an issued pass that the
// Apple and Google renderers build their payloads from.
package wallet

import (
	"time"

	"github.com/azizikri/loyalty-wallet/internal/domain"
)

// PassData is everything a renderer needs. It is assembled from the
// post-commit customer record and is never cached between renders.
type PassData struct {
	Serial    string
	AuthToken string
	Customer  domain.Customer
	Template  domain.CardTemplate
	UpdatedAt time.Time
}

func NewPassData(card domain.Card, customer domain.Customer, tmpl domain.CardTemplate) PassData {
	updated := card.UpdatedAt
	if customer.UpdatedAt.After(updated) {
		updated = customer.UpdatedAt
	}
	return PassData{
		Serial:    card.ID,
		AuthToken: card.AuthToken,
		Customer:  customer,
		Template:  tmpl,
		UpdatedAt: updated,
	}
}

func (p PassData) Balance() int {
	return p.Customer.Points
}

func (p PassData) Title() string {
	if p.Template.LogoText != "" {
		return p.Template.LogoText
	}
	return p.Template.Name
}
