package domain

import "time"

type Reason string

const (
	ReasonEarn   Reason = "earn"
	ReasonRedeem Reason = "redeem"
	ReasonAdjust Reason = "adjust"
)

type Platform string

const (
	PlatformApple  Platform = "apple"
	PlatformGoogle Platform = "google"
)

type Customer struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	FullName   string    `json:"full_name"`
	Phone      string    `json:"phone,omitempty"`
	Email      string    `json:"email,omitempty"`
	Points     int       `json:"points"`
	MemberID   string    `json:"member_id"`
	CardID     string    `json:"card_id,omitempty"`
	TemplateID string    `json:"template_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LedgerEntry records one committed balance mutation.
// ResultingBalance always equals the previous balance plus Delta.
type LedgerEntry struct {
	ID               int64     `json:"id"`
	CustomerID       string    `json:"customer_id"`
	Delta            int       `json:"delta"`
	Reason           Reason    `json:"reason"`
	ResultingBalance int       `json:"resulting_balance"`
	Note             string    `json:"note,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Card is an issued pass. Its ID is the serial number handed to wallet platforms.
type Card struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	TemplateID string    `json:"template_id,omitempty"`
	AuthToken  string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type CardTemplate struct {
	ID              string
	OwnerID         string
	Name            string
	BackgroundColor string
	ForegroundColor string
	LabelColor      string
	LogoText        string
	BarcodeFormat   string
	PointsLabel     string
	NameLabel       string
	MemberLabel     string
	Description     string
	ImageDir        string
}

// DefaultTemplate is used for cards issued without a business template.
func DefaultTemplate() CardTemplate {
	return CardTemplate{
		Name:            "Loyalty card",
		BackgroundColor: "rgb(255,255,255)",
		ForegroundColor: "rgb(0,0,0)",
		LabelColor:      "rgb(90,90,90)",
		BarcodeFormat:   "PKBarcodeFormatQR",
		PointsLabel:     "Points",
		NameLabel:       "Member",
		MemberLabel:     "Member ID",
		Description:     "Loyalty card",
	}
}

type WalletRegistration struct {
	ID         int64     `json:"id"`
	Platform   Platform  `json:"platform"`
	Serial     string    `json:"serial"`
	PassTypeID string    `json:"pass_type_id,omitempty"`
	DeviceID   string    `json:"device_id,omitempty"`
	PushToken  string    `json:"-"`
	ObjectID   string    `json:"object_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Target names the delivery target in logs and reports without leaking push tokens.
func (r WalletRegistration) Target() string {
	if r.Platform == PlatformGoogle {
		return "google:" + r.ObjectID
	}
	return "apple:" + r.DeviceID
}

type PushSubscription struct {
	Endpoint   string    `json:"endpoint"`
	P256dh     string    `json:"p256dh"`
	Auth       string    `json:"auth"`
	OwnerID    string    `json:"owner_id,omitempty"`
	CustomerID string    `json:"customer_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// PushPayload is the JSON body delivered to browsers.
type PushPayload struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"iconUrl,omitempty"`
}

// BalanceEvent describes a committed balance change.
type BalanceEvent struct {
	CustomerID string    `json:"customer_id"`
	OwnerID    string    `json:"owner_id"`
	FullName   string    `json:"full_name"`
	Delta      int       `json:"delta"`
	Reason     Reason    `json:"reason"`
	Balance    int       `json:"balance"`
	EntryID    int64     `json:"entry_id"`
	At         time.Time `json:"at"`
}
