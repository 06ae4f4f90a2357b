package kafka

import "github.com/azizikri/loyalty-wallet/internal/domain"

// EventPayload is the relay record value. Origin names the replica that
// committed the change.
type EventPayload struct {
	SchemaVersion int                 `json:"schema_version"`
	Origin        string              `json:"origin"`
	Event         domain.BalanceEvent `json:"event"`
}
