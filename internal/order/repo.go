package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrDuplicate         = errors.New("order already exists for gateway order")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrBadTransition     = errors.New("invalid status transition")
)

type Repository interface {
	// CreatePending inserts a COD order in PENDING/PENDING state and
	// decrements stock for every line item in the same transaction.
	CreatePending(ctx context.Context, o *Order, items []Item) error

	// CreateConfirmed inserts a confirmed prepaid order and decrements stock
	// atomically. The unique constraint on gateway_order_id makes concurrent
	// deliveries of the same capture event collapse into one row; the loser
	// gets ErrDuplicate.
	CreateConfirmed(ctx context.Context, o *Order, items []Item) error

	GetByID(ctx context.Context, id string) (*Order, []Item, error)
	GetByNumber(ctx context.Context, number string) (*Order, []Item, error)
	GetByGatewayOrderID(ctx context.Context, ref string) (*Order, error)
	GetItems(ctx context.Context, orderID string) ([]Item, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error)

	UpdateStatus(ctx context.Context, id string, from, to Status) error
	// Cancel flips a non-terminal order to CANCELLED and restocks its items.
	Cancel(ctx context.Context, id string) error

	SetShipment(ctx context.Context, id, shipmentOrderID, trackingID string) error
	MarkShipmentFailed(ctx context.Context, id, note string) error
	AddNote(ctx context.Context, id, note string) error

	// FindMissingShipments returns confirmed paid prepaid orders whose
	// shipment was never created or failed.
	FindMissingShipments(ctx context.Context, limit int) ([]Order, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const orderColumns = `
  id, order_number, user_id, payment_method, payment_status, status,
  amount_paise, currency, gateway_order_id, gateway_payment_id,
  shipment_order_id, tracking_id, shipment_status,
  ship_name, ship_phone, ship_line1, ship_line2, ship_city, ship_state, ship_pincode,
  notes, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.PaymentMethod, &o.PaymentStatus, &o.Status,
		&o.AmountPaise, &o.Currency, &o.GatewayOrderID, &o.GatewayPaymentID,
		&o.ShipmentOrderID, &o.TrackingID, &o.ShipmentStatus,
		&o.Address.Name, &o.Address.Phone, &o.Address.Line1, &o.Address.Line2,
		&o.Address.City, &o.Address.State, &o.Address.Pincode,
		&o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PGRepo) create(ctx context.Context, o *Order, items []Item) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
    INSERT INTO orders (
      id, order_number, user_id, payment_method, payment_status, status,
      amount_paise, currency, gateway_order_id, gateway_payment_id,
      ship_name, ship_phone, ship_line1, ship_line2, ship_city, ship_state, ship_pincode,
      notes, created_at, updated_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,NOW(),NOW())
  `, o.ID, o.OrderNumber, o.UserID, o.PaymentMethod, o.PaymentStatus, o.Status,
		o.AmountPaise, o.Currency, o.GatewayOrderID, o.GatewayPaymentID,
		o.Address.Name, o.Address.Phone, o.Address.Line1, o.Address.Line2,
		o.Address.City, o.Address.State, o.Address.Pincode, o.Notes); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return err
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
      INSERT INTO order_items (id, order_id, product_id, quantity, size, price, price_paise)
      VALUES ($1,$2,$3,$4,$5,$6,$7)
    `, it.ID, o.ID, it.ProductID, it.Quantity, it.Size, it.Price, it.PricePaise); err != nil {
			return err
		}
		if err := decrementStock(ctx, tx, it); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// decrementStock is the authoritative stock check: the guarded UPDATE only
// succeeds while enough stock remains, so stock can never go negative even
// under racing confirmations.
func decrementStock(ctx context.Context, tx pgx.Tx, it Item) error {
	if it.Size != nil {
		tag, err := tx.Exec(ctx, `
      UPDATE product_sizes SET stock = stock - $3
      WHERE product_id=$1 AND size=$2 AND stock >= $3
    `, it.ProductID, *it.Size, it.Quantity)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrInsufficientStock
		}
	}
	tag, err := tx.Exec(ctx, `
    UPDATE products SET stock = stock - $2, updated_at = NOW()
    WHERE id=$1 AND stock >= $2
  `, it.ProductID, it.Quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *PGRepo) CreatePending(ctx context.Context, o *Order, items []Item) error {
	return r.create(ctx, o, items)
}

func (r *PGRepo) CreateConfirmed(ctx context.Context, o *Order, items []Item) error {
	return r.create(ctx, o, items)
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, []Item, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	items, err := r.GetItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return o, items, nil
}

func (r *PGRepo) GetByNumber(ctx context.Context, number string) (*Order, []Item, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number=$1`, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	items, err := r.GetItems(ctx, o.ID)
	if err != nil {
		return nil, nil, err
	}
	return o, items, nil
}

func (r *PGRepo) GetByGatewayOrderID(ctx context.Context, ref string) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE gateway_order_id=$1`, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *PGRepo) GetItems(ctx context.Context, orderID string) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
    SELECT id, order_id, product_id, quantity, size, price::text, price_paise
    FROM order_items WHERE order_id=$1
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Size, &it.Price, &it.PricePaise); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
    SELECT `+orderColumns+` FROM orders WHERE user_id=$1
    ORDER BY created_at DESC LIMIT $2 OFFSET $3
  `, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PGRepo) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// The WHERE clause re-checks the source status so a racing writer cannot
	// push an order backwards.
	tag, err := r.db.Exec(ctx, `
    UPDATE orders SET status = $3, updated_at = NOW()
    WHERE id = $1 AND status = $2
  `, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBadTransition
	}
	return nil
}

func (r *PGRepo) Cancel(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
    UPDATE orders SET status = 'CANCELLED', updated_at = NOW()
    WHERE id = $1 AND status NOT IN ('DELIVERED','CANCELLED')
  `, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBadTransition
	}

	items, err := txItems(ctx, tx, id)
	if err != nil {
		return err
	}
	for _, it := range items {
		if _, err := tx.Exec(ctx, `
      UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id=$1
    `, it.ProductID, it.Quantity); err != nil {
			return err
		}
		if it.Size != nil {
			if _, err := tx.Exec(ctx, `
        UPDATE product_sizes SET stock = stock + $3 WHERE product_id=$1 AND size=$2
      `, it.ProductID, *it.Size, it.Quantity); err != nil {
				return err
			}
		}
	}
	return tx.Commit(ctx)
}

func txItems(ctx context.Context, tx pgx.Tx, orderID string) ([]Item, error) {
	rows, err := tx.Query(ctx, `
    SELECT id, order_id, product_id, quantity, size, price::text, price_paise
    FROM order_items WHERE order_id=$1
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Size, &it.Price, &it.PricePaise); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SetShipment records a created shipment. The guard keeps a reconciliation
// pass racing a live webhook from overwriting an already-created shipment.
func (r *PGRepo) SetShipment(ctx context.Context, id, shipmentOrderID, trackingID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
    UPDATE orders
    SET shipment_order_id = $2, tracking_id = $3, shipment_status = 'ORDER_CREATED', updated_at = NOW()
    WHERE id = $1 AND (shipment_status IS NULL OR shipment_status <> 'ORDER_CREATED')
  `, id, shipmentOrderID, trackingID)
	return err
}

func (r *PGRepo) MarkShipmentFailed(ctx context.Context, id, note string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	line := noteLine(note)
	_, err := r.db.Exec(ctx, `
    UPDATE orders
    SET shipment_status = 'FAILED',
        notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
        updated_at = NOW()
    WHERE id = $1 AND (shipment_status IS NULL OR shipment_status <> 'ORDER_CREATED')
  `, id, line)
	return err
}

func (r *PGRepo) AddNote(ctx context.Context, id, note string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	line := noteLine(note)
	_, err := r.db.Exec(ctx, `
    UPDATE orders
    SET notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
        updated_at = NOW()
    WHERE id = $1
  `, id, line)
	return err
}

func noteLine(note string) string {
	return AppendNote("", note, time.Now())
}

func (r *PGRepo) FindMissingShipments(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
    SELECT `+orderColumns+` FROM orders
    WHERE payment_method = 'PREPAID' AND payment_status = 'COMPLETED'
      AND status = 'CONFIRMED'
      AND (shipment_status IS NULL OR shipment_status = 'FAILED')
    ORDER BY created_at ASC LIMIT $1
  `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}
