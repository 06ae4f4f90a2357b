package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/azizikri/loyalty-wallet/internal/domain"
)

var validate = validator.New()

type EnrollRequest struct {
	OwnerID    string `json:"ownerId" validate:"required,max=128"`
	FullName   string `json:"fullName" validate:"required,max=200"`
	Phone      string `json:"phone" validate:"omitempty,max=32"`
	Email      string `json:"email" validate:"omitempty,email"`
	TemplateID string `json:"templateId" validate:"omitempty,max=128"`
}

type EarnRequest struct {
	Delta int `json:"delta" validate:"required,gt=0"`
}

type RedeemRequest struct {
	Amount int `json:"amount" validate:"required,gt=0"`
}

type AdjustRequest struct {
	Delta int    `json:"delta" validate:"required"`
	Note  string `json:"note" validate:"max=500"`
}

type RegisterDeviceRequest struct {
	PushToken string `json:"pushToken" validate:"required"`
}

type SubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
	OwnerID    string `json:"ownerId"`
	CustomerID string `json:"customerId"`
}

type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

type BroadcastRequest struct {
	OwnerID string `json:"ownerId" validate:"required"`
	Title   string `json:"title" validate:"required,max=120"`
	Body    string `json:"body" validate:"required,max=500"`
	URL     string `json:"url" validate:"omitempty,url"`
	IconURL string `json:"iconUrl" validate:"omitempty,url"`
}

// Decode reads a JSON body into v and validates it. Both failures wrap
// domain.ErrValidation.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", domain.ErrValidation, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}
