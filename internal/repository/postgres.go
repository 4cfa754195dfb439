// Package repository implements PostgreSQL data access for the storefront.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/rgo-organic/storefront-system/internal/model"
	"github.com/rgo-organic/storefront-system/internal/validation"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists is returned when registering an email that is already taken.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrOrderNotFound is returned when no order matches the lookup.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderOwnedByAnother is returned when an order belongs to a different user.
	ErrOrderOwnedByAnother = errors.New("order belongs to another user")
	// ErrOrderFinalized is returned on an attempt to transition an order out of a terminal status.
	ErrOrderFinalized = errors.New("order is in a terminal status")
	// ErrResetTokenInvalid is returned when a password reset token is unknown or expired.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
)

// PostgresRepository provides access to the storefront data in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository and initializes the schema
// through migrations.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser creates a new user account.
func (r *PostgresRepository) CreateUser(ctx context.Context, email, name string, passwordHash []byte, role model.Role) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, name, password_hash, role) VALUES ($1, $2, $3, $4) RETURNING id`,
		email, name, passwordHash, string(role),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

const userColumns = `id, email, name, password_hash, role, phone, address, created_at`

// GetUserByEmail returns the user registered with the given email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetUserByID returns the user with the given id.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) getUser(ctx context.Context, query string, args ...any) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, query, args...))
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		role     string
		addrJSON []byte
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.Phone, &addrJSON, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)

	if len(addrJSON) > 0 {
		var addr model.Address
		if err := json.Unmarshal(addrJSON, &addr); err != nil {
			return nil, fmt.Errorf("unmarshal user address: %w", err)
		}
		u.Address = &addr
	}
	return &u, nil
}

// UpdateUserProfile overwrites the user's profile fields and returns the
// updated account.
func (r *PostgresRepository) UpdateUserProfile(ctx context.Context, id int64, name, phone string, address *model.Address) (*model.User, error) {
	addrJSON, err := marshalNullable(address)
	if err != nil {
		return nil, fmt.Errorf("marshal user address: %w", err)
	}

	u, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET name = $2, phone = $3, address = $4 WHERE id = $1
		 RETURNING `+userColumns,
		id, name, phone, addrJSON,
	))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user profile: %w", err)
	}
	return u, nil
}

// UpdateUserPassword replaces the user's password hash.
func (r *PostgresRepository) UpdateUserPassword(ctx context.Context, id int64, passwordHash []byte) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetPasswordResetToken stores a reset token for the account registered with
// the given email and returns the account.
func (r *PostgresRepository) SetPasswordResetToken(ctx context.Context, email, token string, expires time.Time) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET reset_token = $2, reset_token_expires = $3 WHERE email = $1
		 RETURNING `+userColumns,
		email, token, expires,
	))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("set reset token: %w", err)
	}
	return u, nil
}

// ResetUserPassword consumes an unexpired reset token, replacing the password
// hash and clearing the token in one statement.
func (r *PostgresRepository) ResetUserPassword(ctx context.Context, token string, passwordHash []byte) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, reset_token = NULL, reset_token_expires = NULL
		 WHERE reset_token = $1 AND reset_token_expires > now()`,
		token, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("reset user password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrResetTokenInvalid
	}
	return nil
}

// CreateOrder persists a new order with its items and assigns the next
// daily order number. The sequence comes from an atomic per-day counter;
// a uniqueness conflict on the number is retried with a fresh sequence.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	backoff := retry.WithMaxRetries(3, retry.NewConstant(25*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := r.insertOrder(ctx, o)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (r *PostgresRepository) insertOrder(ctx context.Context, o *model.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	day, datePart := orderDate(time.Now())

	var seq int64
	err = tx.QueryRow(ctx,
		`INSERT INTO order_counters (day, value) VALUES ($1, 1)
		 ON CONFLICT (day) DO UPDATE SET value = order_counters.value + 1
		 RETURNING value`,
		day,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next order sequence: %w", err)
	}

	number := fmt.Sprintf("%s%s%04d", validation.OrderNumberPrefix, datePart, seq)

	addrJSON, err := marshalNullable(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	payJSON, err := marshalNullable(o.Payment)
	if err != nil {
		return fmt.Errorf("marshal payment: %w", err)
	}

	var id int64
	var createdAt time.Time
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (number, user_id, payment_method, payment_status, order_status,
		                     subtotal, tax, shipping_cost, discount, total, currency,
		                     customer_note, shipping_address, payment)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id, created_at`,
		number, o.UserID, o.PaymentMethod, string(o.PaymentStatus), string(o.OrderStatus),
		o.SubtotalCents, o.TaxCents, o.ShippingCents, o.DiscountCents, o.TotalCents, o.Currency,
		o.CustomerNote, addrJSON, payJSON,
	).Scan(&id, &createdAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (order_id, product_ref, name, grade, quantity, price, unit, total, image)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			id, it.ProductRef, it.Name, it.Grade, it.Quantity, it.PriceCents, it.Unit, it.TotalCents, it.Image,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	o.ID = id
	o.Number = number
	o.CreatedAt = createdAt
	o.UpdatedAt = createdAt
	return nil
}

// orderDate derives the counter day key and the printed date fragment of the
// order number from one clock reading. The key goes over the wire as a plain
// date string, so the counter row and the number always name the same day
// regardless of the database session time zone.
func orderDate(now time.Time) (day, yymmdd string) {
	return now.Format("2006-01-02"), now.Format("060102")
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

const orderColumns = `id, number, user_id, payment_method, payment_status, order_status,
	subtotal, tax, shipping_cost, discount, total, currency, customer_note,
	shipping_address, payment, created_at, updated_at, delivered_at,
	cancelled_at, cancelled_by, cancellation_reason, refund_amount, refund_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o             model.Order
		paymentStatus string
		orderStatus   string
		addrJSON      []byte
		payJSON       []byte
	)

	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.PaymentMethod, &paymentStatus, &orderStatus,
		&o.SubtotalCents, &o.TaxCents, &o.ShippingCents, &o.DiscountCents, &o.TotalCents,
		&o.Currency, &o.CustomerNote, &addrJSON, &payJSON, &o.CreatedAt, &o.UpdatedAt,
		&o.DeliveredAt, &o.CancelledAt, &o.CancelledBy, &o.CancellationReason,
		&o.RefundAmountCents, &o.RefundReason,
	)
	if err != nil {
		return nil, err
	}

	o.PaymentStatus = model.PaymentStatus(paymentStatus)
	o.OrderStatus = model.OrderStatus(orderStatus)

	if len(addrJSON) > 0 {
		var addr model.Address
		if err := json.Unmarshal(addrJSON, &addr); err != nil {
			return nil, fmt.Errorf("unmarshal shipping address: %w", err)
		}
		o.ShippingAddress = &addr
	}
	if len(payJSON) > 0 {
		var pay model.PaymentInfo
		if err := json.Unmarshal(payJSON, &pay); err != nil {
			return nil, fmt.Errorf("unmarshal payment: %w", err)
		}
		o.Payment = &pay
	}

	return &o, nil
}

func (r *PostgresRepository) loadItems(ctx context.Context, orders []*model.Order) error {
	for _, o := range orders {
		rows, err := r.pool.Query(ctx,
			`SELECT product_ref, name, grade, quantity, price, unit, total, image
			 FROM order_items WHERE order_id = $1 ORDER BY id`,
			o.ID,
		)
		if err != nil {
			return fmt.Errorf("select order items: %w", err)
		}

		for rows.Next() {
			var it model.OrderItem
			if err := rows.Scan(&it.ProductRef, &it.Name, &it.Grade, &it.Quantity,
				&it.PriceCents, &it.Unit, &it.TotalCents, &it.Image); err != nil {
				rows.Close()
				return fmt.Errorf("scan order item: %w", err)
			}
			o.Items = append(o.Items, it)
		}
		rows.Close()

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
	}
	return nil
}

// GetOrderByID returns the order with the given internal id, with items.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, id int64) (*model.Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetOrderByNumber returns the order with the given order number, with items.
func (r *PostgresRepository) GetOrderByNumber(ctx context.Context, number string) (*model.Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE number = $1`, number)
}

func (r *PostgresRepository) getOrder(ctx context.Context, query string, arg any) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := r.loadItems(ctx, []*model.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// GetOrdersByUser returns the user's orders, newest first.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
}

// GetAllOrders returns every order, newest first.
func (r *PostgresRepository) GetAllOrders(ctx context.Context) ([]model.Order, error) {
	return r.listOrders(ctx, `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`)
}

func (r *PostgresRepository) listOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}

	res := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		res = append(res, *o)
	}
	return res, nil
}

// UpdateOrderStatus transitions an order to a new fulfillment status,
// stamping delivered/cancelled metadata. Transitions out of a terminal
// status are rejected inside the row-locked transaction.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, actorID int64, reason string) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `SELECT order_status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	if model.OrderStatus(current).Terminal() {
		return nil, ErrOrderFinalized
	}

	switch status {
	case model.OrderStatusDelivered:
		_, err = tx.Exec(ctx,
			`UPDATE orders SET order_status = $2, delivered_at = now(), updated_at = now() WHERE id = $1`,
			orderID, string(status),
		)
	case model.OrderStatusCancelled:
		_, err = tx.Exec(ctx,
			`UPDATE orders SET order_status = $2, cancelled_at = now(), cancelled_by = $3,
			        cancellation_reason = $4, updated_at = now() WHERE id = $1`,
			orderID, string(status), actorID, reason,
		)
	default:
		_, err = tx.Exec(ctx,
			`UPDATE orders SET order_status = $2, updated_at = now() WHERE id = $1`,
			orderID, string(status),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return r.GetOrderByID(ctx, orderID)
}

// MarkOrderPaid applies a payment confirmation to the order with the given
// number and reports whether this confirmation was the first one observed
// for the payment intent. The update is idempotent: repeated confirmations
// leave the order in the same state. When ownerID is non-nil the order must
// belong to that user.
func (r *PostgresRepository) MarkOrderPaid(ctx context.Context, number string, ownerID *int64, pay model.PaymentInfo) (*model.Order, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE number = $1 FOR UPDATE`, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrOrderNotFound
		}
		return nil, false, fmt.Errorf("lock order: %w", err)
	}

	if ownerID != nil && *ownerID != current.UserID {
		return nil, false, ErrOrderOwnedByAnother
	}

	updated := model.ReconcilePayment(*current, pay)

	payJSON, err := json.Marshal(updated.Payment)
	if err != nil {
		return nil, false, fmt.Errorf("marshal payment: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE orders SET payment_status = $2, order_status = $3, payment = $4, updated_at = now()
		 WHERE id = $1`,
		current.ID, string(updated.PaymentStatus), string(updated.OrderStatus), payJSON,
	)
	if err != nil {
		return nil, false, fmt.Errorf("update order payment: %w", err)
	}

	// Confirmations without an intent id are keyed by order number so that
	// retries of the same call remain a single logical confirmation.
	key := pay.IntentID
	if key == "" {
		key = "order:" + number
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO payment_confirmations (intent_id, order_number) VALUES ($1, $2)
		 ON CONFLICT (intent_id) DO NOTHING`,
		key, number,
	)
	if err != nil {
		return nil, false, fmt.Errorf("record confirmation: %w", err)
	}
	first := tag.RowsAffected() == 1

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit tx: %w", err)
	}

	if err := r.loadItems(ctx, []*model.Order{&updated}); err != nil {
		return nil, false, err
	}
	return &updated, first, nil
}

// UpsertReview creates a review or overwrites the user's previous review of
// the same product.
func (r *PostgresRepository) UpsertReview(ctx context.Context, rev *model.Review) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO reviews (product_ref, user_id, user_name, rating, comment)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (product_ref, user_id)
		 DO UPDATE SET rating = EXCLUDED.rating, comment = EXCLUDED.comment, updated_at = now()
		 RETURNING id, created_at, updated_at`,
		rev.ProductRef, rev.UserID, rev.UserName, rev.Rating, rev.Comment,
	).Scan(&rev.ID, &rev.CreatedAt, &rev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert review: %w", err)
	}
	return nil
}

// GetReviewsByProduct returns the reviews of a product, newest first.
func (r *PostgresRepository) GetReviewsByProduct(ctx context.Context, productRef string) ([]model.Review, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, product_ref, user_id, user_name, rating, comment, created_at, updated_at
		 FROM reviews WHERE product_ref = $1 ORDER BY created_at DESC`,
		productRef,
	)
	if err != nil {
		return nil, fmt.Errorf("select reviews: %w", err)
	}
	defer rows.Close()

	var res []model.Review
	for rows.Next() {
		var rev model.Review
		if err := rows.Scan(&rev.ID, &rev.ProductRef, &rev.UserID, &rev.UserName,
			&rev.Rating, &rev.Comment, &rev.CreatedAt, &rev.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		res = append(res, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetOrderStats returns per-status order counts and revenue totals.
func (r *PostgresRepository) GetOrderStats(ctx context.Context) (map[model.OrderStatus]model.StatusStat, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT order_status, COUNT(*), COALESCE(SUM(total), 0) FROM orders GROUP BY order_status`,
	)
	if err != nil {
		return nil, fmt.Errorf("select order stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[model.OrderStatus]model.StatusStat)
	for rows.Next() {
		var (
			status string
			stat   model.StatusStat
		)
		if err := rows.Scan(&status, &stat.Count, &stat.TotalCents); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[model.OrderStatus(status)] = stat
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stats, nil
}
