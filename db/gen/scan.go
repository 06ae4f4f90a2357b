package db

import "github.com/jackc/pgx/v5"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner, i *Customer) error {
	return row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.FullName,
		&i.Phone,
		&i.Email,
		&i.Points,
		&i.MemberID,
		&i.CardID,
		&i.TemplateID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
}

func collectPushSubscriptions(rows pgx.Rows) ([]PushSubscription, error) {
	var items []PushSubscription
	for rows.Next() {
		var i PushSubscription
		if err := rows.Scan(
			&i.Endpoint,
			&i.P256dh,
			&i.Auth,
			&i.OwnerID,
			&i.CustomerID,
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

func collectWalletRegistrations(rows pgx.Rows) ([]WalletRegistration, error) {
	var items []WalletRegistration
	for rows.Next() {
		var i WalletRegistration
		if err := rows.Scan(
			&i.ID,
			&i.Platform,
			&i.Serial,
			&i.PassTypeID,
			&i.DeviceID,
			&i.PushToken,
			&i.ObjectID,
			&i.CreatedAt,
			&i.UpdatedAt,
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
