// Package service implements the business logic of the storefront.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rgo-organic/storefront-system/internal/model"
	"github.com/rgo-organic/storefront-system/internal/notification"
	"github.com/rgo-organic/storefront-system/internal/payment"
	"github.com/rgo-organic/storefront-system/internal/repository"
)

// ErrNoItems is returned when an order is created without line items.
var (
	ErrNoItems = errors.New("order must contain at least one item")
	// ErrInvalidQuantity is returned when a line item quantity is below one.
	ErrInvalidQuantity = errors.New("item quantity must be at least 1")
	// ErrInvalidPrice is returned when a monetary field is negative.
	ErrInvalidPrice = errors.New("price cannot be negative")
	// ErrInvalidStatus is returned for an unknown fulfillment status.
	ErrInvalidStatus = errors.New("unknown order status")
	// ErrInvalidCredentials is returned when authentication fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWrongPassword is returned when the current password does not match on a change.
	ErrWrongPassword = errors.New("current password is incorrect")
	// ErrInvalidAmount is returned when a payment amount is not positive.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrProcessorUnavailable is returned when the payment processor is not configured.
	ErrProcessorUnavailable = errors.New("payment processor not configured")
)

// Repository describes the data access contract used by the service.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, email, name string, passwordHash []byte, role model.Role) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	UpdateUserProfile(ctx context.Context, id int64, name, phone string, address *model.Address) (*model.User, error)
	UpdateUserPassword(ctx context.Context, id int64, passwordHash []byte) error
	SetPasswordResetToken(ctx context.Context, email, token string, expires time.Time) (*model.User, error)
	ResetUserPassword(ctx context.Context, token string, passwordHash []byte) error
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrderByID(ctx context.Context, id int64) (*model.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetAllOrders(ctx context.Context) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, actorID int64, reason string) (*model.Order, error)
	MarkOrderPaid(ctx context.Context, number string, ownerID *int64, pay model.PaymentInfo) (*model.Order, bool, error)
	UpsertReview(ctx context.Context, rev *model.Review) error
	GetReviewsByProduct(ctx context.Context, productRef string) ([]model.Review, error)
	GetOrderStats(ctx context.Context) (map[model.OrderStatus]model.StatusStat, error)
}

// Service contains the business logic of the storefront.
type Service struct {
	repo      Repository
	processor *payment.Client
	sender    notification.Sender
	logger    *zap.Logger
}

// NewService creates a service with the given repository, payment processor
// client and notification sender. The sender must not be nil; use
// notification.NopSender when mail is not configured.
func NewService(repo Repository, processor *payment.Client, sender notification.Sender, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		processor: processor,
		sender:    sender,
		logger:    logger,
	}
}

// Close releases the service resources.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser creates a new account and returns it.
func (s *Service) RegisterUser(ctx context.Context, email, name, password string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	email = strings.ToLower(strings.TrimSpace(email))

	id, err := s.repo.CreateUser(ctx, email, name, hash, model.RoleUser)
	if err != nil {
		return nil, err
	}

	return &model.User{ID: id, Email: email, Name: name, Role: model.RoleUser}, nil
}

// AuthenticateUser verifies the credentials and returns the account.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// resetTokenTTL bounds how long a password reset token stays usable.
const resetTokenTTL = 10 * time.Minute

// GetProfile returns the account of the given user.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// ProfileInput carries the updatable profile fields. Empty name and phone
// leave the stored values untouched, matching the partial-update contract of
// the profile endpoint.
type ProfileInput struct {
	Name    string
	Phone   string
	Address *model.Address
}

// UpdateProfile overwrites the user's profile fields and returns the account.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, input ProfileInput) (*model.User, error) {
	current, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	name := current.Name
	if input.Name != "" {
		name = input.Name
	}
	phone := current.Phone
	if input.Phone != "" {
		phone = input.Phone
	}
	address := current.Address
	if input.Address != nil {
		address = input.Address
	}

	return s.repo.UpdateUserProfile(ctx, userID, name, phone, address)
}

// ChangePassword replaces the user's password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(currentPassword)); err != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return s.repo.UpdateUserPassword(ctx, userID, hash)
}

// ForgotPassword issues a short-lived reset token for the account and mails
// it to the address on file.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return err
	}
	token := hex.EncodeToString(buf)

	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.repo.SetPasswordResetToken(ctx, email, token, time.Now().Add(resetTokenTTL))
	if err != nil {
		return err
	}

	if err := s.sender.SendPasswordReset(u, token); err != nil {
		s.logger.Warn("send password reset", zap.Error(err), zap.String("email", email))
	}

	return nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.ResetUserPassword(ctx, token, hash)
}

// ItemInput is a line item as supplied by the client. Price is in minor
// currency units.
type ItemInput struct {
	ProductRef string
	Name       string
	Grade      string
	Quantity   int32
	PriceCents int64
	Unit       string
	Image      string
}

// OrderInput is the client-supplied part of a new order. All totals are
// recomputed server-side; any client-supplied total is ignored.
type OrderInput struct {
	Items           []ItemInput
	ShippingAddress *model.Address
	PaymentMethod   string
	TaxCents        int64
	ShippingCents   int64
	DiscountCents   int64
	Currency        string
	CustomerNote    string
	Payment         *model.PaymentInfo
}

func (s *Service) buildOrder(userID int64, input OrderInput) (*model.Order, error) {
	if len(input.Items) == 0 {
		return nil, ErrNoItems
	}
	if input.TaxCents < 0 || input.ShippingCents < 0 || input.DiscountCents < 0 {
		return nil, ErrInvalidPrice
	}

	items := make([]model.OrderItem, 0, len(input.Items))
	for _, in := range input.Items {
		if in.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		if in.PriceCents < 0 {
			return nil, ErrInvalidPrice
		}
		items = append(items, model.OrderItem{
			ProductRef: in.ProductRef,
			Name:       in.Name,
			Grade:      in.Grade,
			Quantity:   in.Quantity,
			PriceCents: in.PriceCents,
			Unit:       in.Unit,
			Image:      in.Image,
		})
	}

	currency := input.Currency
	if currency == "" {
		currency = "INR"
	}

	o := &model.Order{
		UserID:          userID,
		Items:           items,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   model.PaymentStatusPending,
		OrderStatus:     model.OrderStatusPending,
		TaxCents:        input.TaxCents,
		ShippingCents:   input.ShippingCents,
		DiscountCents:   input.DiscountCents,
		Currency:        currency,
		CustomerNote:    input.CustomerNote,
	}
	o.RecomputeTotals()

	return o, nil
}

// PrepareOrder reserves an order number and persists the order in the
// pending state, before payment is attempted.
func (s *Service) PrepareOrder(ctx context.Context, userID int64, input OrderInput) (*model.Order, error) {
	o, err := s.buildOrder(userID, input)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return nil, err
	}

	return o, nil
}

// SubmitOrder creates an order and, when the attached card payment already
// reports processor success, confirms it immediately. A receipt is sent
// best-effort.
func (s *Service) SubmitOrder(ctx context.Context, userID int64, input OrderInput) (*model.Order, error) {
	o, err := s.buildOrder(userID, input)
	if err != nil {
		return nil, err
	}

	if input.PaymentMethod == "card" && input.Payment != nil && input.Payment.ProcessorStatus == "succeeded" {
		o.PaymentStatus = model.PaymentStatusCompleted
		o.OrderStatus = model.OrderStatusConfirmed
		o.Payment = input.Payment
	}

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return nil, err
	}

	s.notify(ctx, o, s.sender.SendOrderReceipt)

	return o, nil
}

// GetOrder returns an order to its owner, or to an admin.
func (s *Service) GetOrder(ctx context.Context, user model.User, orderID int64) (*model.Order, error) {
	o, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if o.UserID != user.ID && user.Role != model.RoleAdmin {
		return nil, repository.ErrOrderOwnedByAnother
	}

	return o, nil
}

// GetOrdersByUser returns the user's orders, newest first.
func (s *Service) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, userID)
}

// GetAllOrders returns every order. Admin only; the handler gates access.
func (s *Service) GetAllOrders(ctx context.Context) ([]model.Order, error) {
	return s.repo.GetAllOrders(ctx)
}

// TransitionOrderStatus moves an order to a new fulfillment status on
// behalf of an operator. Terminal orders reject further transitions.
func (s *Service) TransitionOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, actorID int64, reason string) (*model.Order, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.repo.UpdateOrderStatus(ctx, orderID, status, actorID, reason)
}

// MarkPaid records a client-side payment confirmation for the caller's own
// order. Repeated confirmations for the same intent are no-ops and the
// confirmation mail is sent at most once per intent.
func (s *Service) MarkPaid(ctx context.Context, userID int64, orderNumber string, pay model.PaymentInfo) (*model.Order, error) {
	o, first, err := s.repo.MarkOrderPaid(ctx, orderNumber, &userID, pay)
	if err != nil {
		return nil, err
	}

	if first {
		s.notify(ctx, o, s.sender.SendPaymentConfirmation)
	}

	return o, nil
}

// CreatePaymentIntent asks the processor for a payment handle. The order
// number travels in the intent metadata so the webhook can reconcile the
// confirmation later.
func (s *Service) CreatePaymentIntent(ctx context.Context, user model.User, amountCents int64, currency, description, orderNumber string) (*payment.Intent, error) {
	if !s.processor.Configured() {
		return nil, ErrProcessorUnavailable
	}
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if currency == "" {
		currency = "inr"
	}

	return s.processor.CreateIntent(ctx, amountCents, currency, description, map[string]string{
		"userId":      strconv.FormatInt(user.ID, 10),
		"email":       user.Email,
		"orderNumber": orderNumber,
	})
}

// HandlePaymentEvent applies a verified webhook event. Success events for
// known order numbers reconcile the order; everything else is acknowledged
// without effect. The handler verifies the signature before calling this.
func (s *Service) HandlePaymentEvent(ctx context.Context, event *payment.Event) error {
	if event.Type != payment.EventPaymentSucceeded {
		return nil
	}

	intent := event.Data.Object
	orderNumber := intent.Metadata["orderNumber"]
	if orderNumber == "" {
		return nil
	}

	pay := model.PaymentInfo{
		Provider:        "stripe",
		IntentID:        intent.ID,
		AmountCents:     intent.Amount,
		Currency:        intent.Currency,
		ProcessorStatus: intent.Status,
	}

	o, first, err := s.repo.MarkOrderPaid(ctx, orderNumber, nil, pay)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			s.logger.Warn("webhook for unknown order", zap.String("orderNumber", orderNumber))
			return nil
		}
		return err
	}

	if first {
		s.notify(ctx, o, s.sender.SendPaymentConfirmation)
	}

	return nil
}

// notify delivers a notification best-effort: failures are logged, never
// propagated, and never roll back order state.
func (s *Service) notify(ctx context.Context, o *model.Order, send func(*model.User, *model.Order) error) {
	user, err := s.repo.GetUserByID(ctx, o.UserID)
	if err != nil {
		s.logger.Warn("load user for notification", zap.Error(err), zap.String("order", o.Number))
		return
	}

	if err := send(user, o); err != nil {
		s.logger.Warn("send notification", zap.Error(err), zap.String("order", o.Number))
	}
}

// SubmitReview creates or overwrites the user's review of a product.
func (s *Service) SubmitReview(ctx context.Context, user model.User, productRef string, rating int32, comment string) (*model.Review, error) {
	rev := &model.Review{
		ProductRef: productRef,
		UserID:     user.ID,
		UserName:   user.Name,
		Rating:     rating,
		Comment:    comment,
	}
	if rev.UserName == "" {
		rev.UserName = user.Email
	}

	if err := s.repo.UpsertReview(ctx, rev); err != nil {
		return nil, err
	}
	return rev, nil
}

// GetReviews returns the reviews of a product, newest first.
func (s *Service) GetReviews(ctx context.Context, productRef string) ([]model.Review, error) {
	return s.repo.GetReviewsByProduct(ctx, productRef)
}

// GetOrderStats returns per-status order counts and totals for the admin
// dashboard.
func (s *Service) GetOrderStats(ctx context.Context) (map[model.OrderStatus]model.StatusStat, error) {
	return s.repo.GetOrderStats(ctx)
}
