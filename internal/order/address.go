package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrAddressNotFound = errors.New("address not found")

// AddressBook resolves a user's saved address into the snapshot copied onto
// an order. The address book itself (CRUD) is owned elsewhere.
type AddressBook interface {
	Get(ctx context.Context, userID, addressID string) (*ShippingAddress, error)
}

type PGAddressBook struct{ db *pgxpool.Pool }

func NewPGAddressBook(db *pgxpool.Pool) *PGAddressBook { return &PGAddressBook{db: db} }

func (b *PGAddressBook) Get(ctx context.Context, userID, addressID string) (*ShippingAddress, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var a ShippingAddress
	err := b.db.QueryRow(ctx, `
    SELECT name, phone, line1, line2, city, state, pincode
    FROM addresses WHERE id=$1 AND user_id=$2
  `, addressID, userID).Scan(&a.Name, &a.Phone, &a.Line1, &a.Line2, &a.City, &a.State, &a.Pincode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}
	return &a, nil
}
