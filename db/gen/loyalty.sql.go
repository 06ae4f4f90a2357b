package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createCard = `-- name: CreateCard :one
INSERT INTO cards (id, customer_id, template_id, auth_token)
VALUES ($1, $2, $3, $4)
RETURNING id, customer_id, template_id, auth_token, created_at, updated_at
`

type CreateCardParams struct {
	ID         string
	CustomerID string
	TemplateID pgtype.Text
	AuthToken  string
}

func (q *Queries) CreateCard(ctx context.Context, arg CreateCardParams) (Card, error) {
	row := q.db.QueryRow(ctx, createCard,
		arg.ID,
		arg.CustomerID,
		arg.TemplateID,
		arg.AuthToken,
	)
	var i Card
	err := row.Scan(
		&i.ID,
		&i.CustomerID,
		&i.TemplateID,
		&i.AuthToken,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createCustomer = `-- name: CreateCustomer :one
INSERT INTO customers (id, owner_id, full_name, phone, email, member_id, template_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, owner_id, full_name, phone, email, points, member_id, card_id, template_id, created_at, updated_at
`

type CreateCustomerParams struct {
	ID         string
	OwnerID    string
	FullName   string
	Phone      pgtype.Text
	Email      pgtype.Text
	MemberID   string
	TemplateID pgtype.Text
}

func (q *Queries) CreateCustomer(ctx context.Context, arg CreateCustomerParams) (Customer, error) {
	row := q.db.QueryRow(ctx, createCustomer,
		arg.ID,
		arg.OwnerID,
		arg.FullName,
		arg.Phone,
		arg.Email,
		arg.MemberID,
		arg.TemplateID,
	)
	var i Customer
	err := scanCustomer(row, &i)
	return i, err
}

const deleteAppleRegistration = `-- name: DeleteAppleRegistration :execrows
DELETE FROM wallet_registrations
WHERE platform = 'apple' AND device_id = $1 AND pass_type_id = $2 AND serial = $3
`

type DeleteAppleRegistrationParams struct {
	DeviceID   string
	PassTypeID string
	Serial     string
}

func (q *Queries) DeleteAppleRegistration(ctx context.Context, arg DeleteAppleRegistrationParams) (int64, error) {
	result, err := q.db.Exec(ctx, deleteAppleRegistration, arg.DeviceID, arg.PassTypeID, arg.Serial)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteAppleRegistrationByToken = `-- name: DeleteAppleRegistrationByToken :execrows
DELETE FROM wallet_registrations
WHERE platform = 'apple' AND device_id = $1 AND pass_type_id = $2 AND serial = $3 AND push_token = $4
`

type DeleteAppleRegistrationByTokenParams struct {
	DeviceID   string
	PassTypeID string
	Serial     string
	PushToken  string
}

func (q *Queries) DeleteAppleRegistrationByToken(ctx context.Context, arg DeleteAppleRegistrationByTokenParams) (int64, error) {
	result, err := q.db.Exec(ctx, deleteAppleRegistrationByToken,
		arg.DeviceID,
		arg.PassTypeID,
		arg.Serial,
		arg.PushToken,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteGoogleRegistration = `-- name: DeleteGoogleRegistration :execrows
DELETE FROM wallet_registrations WHERE platform = 'google' AND object_id = $1
`

func (q *Queries) DeleteGoogleRegistration(ctx context.Context, objectID string) (int64, error) {
	result, err := q.db.Exec(ctx, deleteGoogleRegistration, objectID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deletePushSubscription = `-- name: DeletePushSubscription :execrows
DELETE FROM push_subscriptions WHERE endpoint = $1
`

func (q *Queries) DeletePushSubscription(ctx context.Context, endpoint string) (int64, error) {
	result, err := q.db.Exec(ctx, deletePushSubscription, endpoint)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getCard = `-- name: GetCard :one
SELECT id, customer_id, template_id, auth_token, created_at, updated_at FROM cards WHERE id = $1
`

func (q *Queries) GetCard(ctx context.Context, id string) (Card, error) {
	row := q.db.QueryRow(ctx, getCard, id)
	var i Card
	err := row.Scan(
		&i.ID,
		&i.CustomerID,
		&i.TemplateID,
		&i.AuthToken,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getCardByCustomer = `-- name: GetCardByCustomer :one
SELECT id, customer_id, template_id, auth_token, created_at, updated_at FROM cards WHERE customer_id = $1
`

func (q *Queries) GetCardByCustomer(ctx context.Context, customerID string) (Card, error) {
	row := q.db.QueryRow(ctx, getCardByCustomer, customerID)
	var i Card
	err := row.Scan(
		&i.ID,
		&i.CustomerID,
		&i.TemplateID,
		&i.AuthToken,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getCardTemplate = `-- name: GetCardTemplate :one
SELECT id, owner_id, name, background_color, foreground_color, label_color, logo_text, barcode_format, points_label, name_label, member_label, description, image_dir, created_at FROM card_templates WHERE id = $1
`

func (q *Queries) GetCardTemplate(ctx context.Context, id string) (CardTemplate, error) {
	row := q.db.QueryRow(ctx, getCardTemplate, id)
	var i CardTemplate
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.Name,
		&i.BackgroundColor,
		&i.ForegroundColor,
		&i.LabelColor,
		&i.LogoText,
		&i.BarcodeFormat,
		&i.PointsLabel,
		&i.NameLabel,
		&i.MemberLabel,
		&i.Description,
		&i.ImageDir,
		&i.CreatedAt,
	)
	return i, err
}

const getCustomer = `-- name: GetCustomer :one
SELECT id, owner_id, full_name, phone, email, points, member_id, card_id, template_id, created_at, updated_at FROM customers WHERE id = $1
`

func (q *Queries) GetCustomer(ctx context.Context, id string) (Customer, error) {
	row := q.db.QueryRow(ctx, getCustomer, id)
	var i Customer
	err := scanCustomer(row, &i)
	return i, err
}

const getCustomerForUpdate = `-- name: GetCustomerForUpdate :one
SELECT id, owner_id, full_name, phone, email, points, member_id, card_id, template_id, created_at, updated_at FROM customers WHERE id = $1 FOR UPDATE
`

func (q *Queries) GetCustomerForUpdate(ctx context.Context, id string) (Customer, error) {
	row := q.db.QueryRow(ctx, getCustomerForUpdate, id)
	var i Customer
	err := scanCustomer(row, &i)
	return i, err
}

const insertLedgerEntry = `-- name: InsertLedgerEntry :one
INSERT INTO ledger_entries (customer_id, delta, reason, resulting_balance, note)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, customer_id, delta, reason, resulting_balance, note, created_at
`

type InsertLedgerEntryParams struct {
	CustomerID       string
	Delta            int32
	Reason           string
	ResultingBalance int32
	Note             string
}

func (q *Queries) InsertLedgerEntry(ctx context.Context, arg InsertLedgerEntryParams) (LedgerEntry, error) {
	row := q.db.QueryRow(ctx, insertLedgerEntry,
		arg.CustomerID,
		arg.Delta,
		arg.Reason,
		arg.ResultingBalance,
		arg.Note,
	)
	var i LedgerEntry
	err := row.Scan(
		&i.ID,
		&i.CustomerID,
		&i.Delta,
		&i.Reason,
		&i.ResultingBalance,
		&i.Note,
		&i.CreatedAt,
	)
	return i, err
}

const listCustomersByOwner = `-- name: ListCustomersByOwner :many
SELECT id, owner_id, full_name, phone, email, points, member_id, card_id, template_id, created_at, updated_at FROM customers WHERE owner_id = $1 ORDER BY full_name LIMIT $2
`

type ListCustomersByOwnerParams struct {
	OwnerID string
	Limit   int32
}

func (q *Queries) ListCustomersByOwner(ctx context.Context, arg ListCustomersByOwnerParams) ([]Customer, error) {
	rows, err := q.db.Query(ctx, listCustomersByOwner, arg.OwnerID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Customer
	for rows.Next() {
		var i Customer
		if err := scanCustomer(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listLedgerEntries = `-- name: ListLedgerEntries :many
SELECT id, customer_id, delta, reason, resulting_balance, note, created_at FROM ledger_entries WHERE customer_id = $1 ORDER BY id DESC LIMIT $2
`

type ListLedgerEntriesParams struct {
	CustomerID string
	Limit      int32
}

func (q *Queries) ListLedgerEntries(ctx context.Context, arg ListLedgerEntriesParams) ([]LedgerEntry, error) {
	rows, err := q.db.Query(ctx, listLedgerEntries, arg.CustomerID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LedgerEntry
	for rows.Next() {
		var i LedgerEntry
		if err := rows.Scan(
			&i.ID,
			&i.CustomerID,
			&i.Delta,
			&i.Reason,
			&i.ResultingBalance,
			&i.Note,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listPushSubscriptionsByCustomer = `-- name: ListPushSubscriptionsByCustomer :many
SELECT endpoint, p256dh, auth, owner_id, customer_id, created_at FROM push_subscriptions WHERE customer_id = $1 ORDER BY created_at
`

func (q *Queries) ListPushSubscriptionsByCustomer(ctx context.Context, customerID pgtype.Text) ([]PushSubscription, error) {
	rows, err := q.db.Query(ctx, listPushSubscriptionsByCustomer, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPushSubscriptions(rows)
}

const listPushSubscriptionsByOwner = `-- name: ListPushSubscriptionsByOwner :many
SELECT endpoint, p256dh, auth, owner_id, customer_id, created_at FROM push_subscriptions WHERE owner_id = $1 ORDER BY created_at
`

func (q *Queries) ListPushSubscriptionsByOwner(ctx context.Context, ownerID pgtype.Text) ([]PushSubscription, error) {
	rows, err := q.db.Query(ctx, listPushSubscriptionsByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPushSubscriptions(rows)
}

const listRegistrationsByDevice = `-- name: ListRegistrationsByDevice :many
SELECT id, platform, serial, pass_type_id, device_id, push_token, object_id, created_at, updated_at FROM wallet_registrations
WHERE platform = 'apple' AND device_id = $1 AND pass_type_id = $2
ORDER BY id
`

type ListRegistrationsByDeviceParams struct {
	DeviceID   string
	PassTypeID string
}

func (q *Queries) ListRegistrationsByDevice(ctx context.Context, arg ListRegistrationsByDeviceParams) ([]WalletRegistration, error) {
	rows, err := q.db.Query(ctx, listRegistrationsByDevice, arg.DeviceID, arg.PassTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWalletRegistrations(rows)
}

const listRegistrationsBySerial = `-- name: ListRegistrationsBySerial :many
SELECT id, platform, serial, pass_type_id, device_id, push_token, object_id, created_at, updated_at FROM wallet_registrations WHERE serial = $1 ORDER BY id
`

func (q *Queries) ListRegistrationsBySerial(ctx context.Context, serial string) ([]WalletRegistration, error) {
	rows, err := q.db.Query(ctx, listRegistrationsBySerial, serial)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWalletRegistrations(rows)
}

const listUpdatedSerials = `-- name: ListUpdatedSerials :many
SELECT c.id, c.updated_at
FROM wallet_registrations r
JOIN cards c ON c.id = r.serial
WHERE r.platform = 'apple' AND r.device_id = $1 AND r.pass_type_id = $2 AND c.updated_at > $3
ORDER BY c.updated_at
`

type ListUpdatedSerialsParams struct {
	DeviceID   string
	PassTypeID string
	UpdatedAt  pgtype.Timestamptz
}

type ListUpdatedSerialsRow struct {
	ID        string
	UpdatedAt pgtype.Timestamptz
}

func (q *Queries) ListUpdatedSerials(ctx context.Context, arg ListUpdatedSerialsParams) ([]ListUpdatedSerialsRow, error) {
	rows, err := q.db.Query(ctx, listUpdatedSerials, arg.DeviceID, arg.PassTypeID, arg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListUpdatedSerialsRow
	for rows.Next() {
		var i ListUpdatedSerialsRow
		if err := rows.Scan(&i.ID, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setCustomerCard = `-- name: SetCustomerCard :exec
UPDATE customers SET card_id = $2, updated_at = now() WHERE id = $1
`

type SetCustomerCardParams struct {
	ID     string
	CardID pgtype.Text
}

func (q *Queries) SetCustomerCard(ctx context.Context, arg SetCustomerCardParams) error {
	_, err := q.db.Exec(ctx, setCustomerCard, arg.ID, arg.CardID)
	return err
}

const touchCard = `-- name: TouchCard :exec
UPDATE cards SET updated_at = now() WHERE id = $1
`

func (q *Queries) TouchCard(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, touchCard, id)
	return err
}

const updateCustomerPoints = `-- name: UpdateCustomerPoints :one
UPDATE customers SET points = $2, updated_at = now()
WHERE id = $1
RETURNING id, owner_id, full_name, phone, email, points, member_id, card_id, template_id, created_at, updated_at
`

type UpdateCustomerPointsParams struct {
	ID     string
	Points int32
}

func (q *Queries) UpdateCustomerPoints(ctx context.Context, arg UpdateCustomerPointsParams) (Customer, error) {
	row := q.db.QueryRow(ctx, updateCustomerPoints, arg.ID, arg.Points)
	var i Customer
	err := scanCustomer(row, &i)
	return i, err
}

const upsertAppleRegistration = `-- name: UpsertAppleRegistration :one
INSERT INTO wallet_registrations (platform, serial, pass_type_id, device_id, push_token)
VALUES ('apple', $1, $2, $3, $4)
ON CONFLICT (device_id, pass_type_id, serial) WHERE platform = 'apple'
DO UPDATE SET push_token = EXCLUDED.push_token, updated_at = now()
RETURNING (xmax = 0) AS inserted
`

type UpsertAppleRegistrationParams struct {
	Serial     string
	PassTypeID string
	DeviceID   string
	PushToken  string
}

func (q *Queries) UpsertAppleRegistration(ctx context.Context, arg UpsertAppleRegistrationParams) (bool, error) {
	row := q.db.QueryRow(ctx, upsertAppleRegistration,
		arg.Serial,
		arg.PassTypeID,
		arg.DeviceID,
		arg.PushToken,
	)
	var inserted bool
	err := row.Scan(&inserted)
	return inserted, err
}

const upsertGoogleRegistration = `-- name: UpsertGoogleRegistration :one
INSERT INTO wallet_registrations (platform, serial, object_id)
VALUES ('google', $1, $2)
ON CONFLICT (object_id) WHERE platform = 'google'
DO UPDATE SET serial = EXCLUDED.serial, updated_at = now()
RETURNING (xmax = 0) AS inserted
`

type UpsertGoogleRegistrationParams struct {
	Serial   string
	ObjectID string
}

func (q *Queries) UpsertGoogleRegistration(ctx context.Context, arg UpsertGoogleRegistrationParams) (bool, error) {
	row := q.db.QueryRow(ctx, upsertGoogleRegistration, arg.Serial, arg.ObjectID)
	var inserted bool
	err := row.Scan(&inserted)
	return inserted, err
}

const upsertPushSubscription = `-- name: UpsertPushSubscription :exec
INSERT INTO push_subscriptions (endpoint, p256dh, auth, owner_id, customer_id)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (endpoint)
DO UPDATE SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth,
              owner_id = EXCLUDED.owner_id, customer_id = EXCLUDED.customer_id
`

type UpsertPushSubscriptionParams struct {
	Endpoint   string
	P256dh     string
	Auth       string
	OwnerID    pgtype.Text
	CustomerID pgtype.Text
}

func (q *Queries) UpsertPushSubscription(ctx context.Context, arg UpsertPushSubscriptionParams) error {
	_, err := q.db.Exec(ctx, upsertPushSubscription,
		arg.Endpoint,
		arg.P256dh,
		arg.Auth,
		arg.OwnerID,
		arg.CustomerID,
	)
	return err
}
