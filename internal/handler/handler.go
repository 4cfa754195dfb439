// Package handler contains the HTTP handlers of the storefront API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rgo-organic/storefront-system/internal/middleware"
	"github.com/rgo-organic/storefront-system/internal/model"
	"github.com/rgo-organic/storefront-system/internal/payment"
	"github.com/rgo-organic/storefront-system/internal/repository"
	"github.com/rgo-organic/storefront-system/internal/service"
	"github.com/rgo-organic/storefront-system/internal/validation"
)

// Service defines the business logic contract used by the HTTP handlers.
type Service interface {
	RegisterUser(ctx context.Context, email, name, password string) (*model.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	GetProfile(ctx context.Context, userID int64) (*model.User, error)
	UpdateProfile(ctx context.Context, userID int64, input service.ProfileInput) (*model.User, error)
	ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	PrepareOrder(ctx context.Context, userID int64, input service.OrderInput) (*model.Order, error)
	SubmitOrder(ctx context.Context, userID int64, input service.OrderInput) (*model.Order, error)
	GetOrder(ctx context.Context, user model.User, orderID int64) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetAllOrders(ctx context.Context) ([]model.Order, error)
	TransitionOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, actorID int64, reason string) (*model.Order, error)
	MarkPaid(ctx context.Context, userID int64, orderNumber string, pay model.PaymentInfo) (*model.Order, error)
	CreatePaymentIntent(ctx context.Context, user model.User, amountCents int64, currency, description, orderNumber string) (*payment.Intent, error)
	HandlePaymentEvent(ctx context.Context, event *payment.Event) error
	SubmitReview(ctx context.Context, user model.User, productRef string, rating int32, comment string) (*model.Review, error)
	GetReviews(ctx context.Context, productRef string) ([]model.Review, error)
	GetOrderStats(ctx context.Context) (map[model.OrderStatus]model.StatusStat, error)
}

// Handler implements the HTTP handlers of the storefront API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	validate       *validator.Validate
	webhookSecret  string
}

// NewHandler creates a new HTTP handler instance.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, webhookSecret string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		validate:       validator.New(),
		webhookSecret:  webhookSecret,
	}
}

// envelope is the JSON response wrapper used by every endpoint except the
// processor webhook.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, resp envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, envelope{Success: false, Message: message})
}

// writeValidationError responds with the offending field names.
func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		h.writeJSON(w, http.StatusBadRequest, envelope{
			Success: false,
			Message: "validation failed",
			Data:    map[string]any{"fields": fields},
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, "validation failed")
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrNoItems),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrWrongPassword):
		h.writeError(w, http.StatusBadRequest, "current password is incorrect")
	case errors.Is(err, repository.ErrResetTokenInvalid):
		h.writeError(w, http.StatusBadRequest, "invalid or expired reset token")
	case errors.Is(err, service.ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, repository.ErrUserExists):
		h.writeError(w, http.StatusConflict, "an account with this email already exists")
	case errors.Is(err, repository.ErrUserNotFound), errors.Is(err, repository.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrOrderOwnedByAnother):
		h.writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, repository.ErrOrderFinalized):
		h.writeError(w, http.StatusConflict, "order is in a terminal status")
	case errors.Is(err, service.ErrProcessorUnavailable):
		h.writeError(w, http.StatusInternalServerError, "payment processor is not configured")
	default:
		h.logger.Error(op, zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func cents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func rupees(c int64) float64 {
	return float64(c) / 100
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name"`
	Password string `json:"password" validate:"required,min=6"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID      int64          `json:"id"`
	Email   string         `json:"email"`
	Name    string         `json:"name"`
	Role    string         `json:"role"`
	Phone   string         `json:"phone,omitempty"`
	Address *model.Address `json:"address,omitempty"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:      u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Role:    string(u.Role),
		Phone:   u.Phone,
		Address: u.Address,
	}
}

// Register handles new account registration and issues an access token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	user, err := h.service.RegisterUser(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		h.writeServiceError(w, err, "register user")
		return
	}

	h.respondWithToken(w, user, "account created")
}

// Login authenticates a user and issues an access token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, err, "login user")
		return
	}

	h.respondWithToken(w, user, "login successful")
}

func (h *Handler) respondWithToken(w http.ResponseWriter, user *model.User, message string) {
	token, err := h.authMiddleware.IssueToken(user)
	if err != nil {
		h.logger.Error("issue token", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: message,
		Data: authResponse{
			Token: token,
			User:  toUserResponse(user),
		},
	})
}

// GetProfile returns the authenticated user's account.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	u, err := h.service.GetProfile(r.Context(), user.ID)
	if err != nil {
		h.writeServiceError(w, err, "get profile")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: toUserResponse(u)})
}

type profileRequest struct {
	Name    string         `json:"name"`
	Phone   string         `json:"phone"`
	Address *model.Address `json:"address"`
}

// UpdateProfile updates the authenticated user's profile fields. Omitted
// fields keep their stored values.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), user.ID, service.ProfileInput{
		Name:    req.Name,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		h.writeServiceError(w, err, "update profile")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "profile updated",
		Data:    toUserResponse(u),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

// ChangePassword replaces the authenticated user's password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeServiceError(w, err, "change password")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "password changed"})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ForgotPassword issues a short-lived reset token and mails it to the
// account holder.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.writeServiceError(w, err, "forgot password")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "password reset email sent",
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

// ResetPassword consumes a reset token and sets the new password.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.writeServiceError(w, err, "reset password")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "password reset"})
}

type orderItemRequest struct {
	ProductID     string  `json:"productId" validate:"required"`
	Name          string  `json:"name" validate:"required"`
	SelectedGrade string  `json:"selectedGrade"`
	Quantity      int32   `json:"quantity" validate:"gte=1"`
	Price         float64 `json:"price" validate:"gte=0"`
	Unit          string  `json:"unit"`
	Image         string  `json:"image"`
}

type paymentRequest struct {
	Provider   string  `json:"provider"`
	IntentID   string  `json:"intentId"`
	MethodID   string  `json:"methodId"`
	Amount     float64 `json:"amount" validate:"gte=0"`
	Currency   string  `json:"currency"`
	Status     string  `json:"status"`
	CardBrand  string  `json:"cardBrand"`
	CardLast4  string  `json:"cardLast4"`
	ReceiptURL string  `json:"receiptUrl"`
}

func (p *paymentRequest) toModel() *model.PaymentInfo {
	if p == nil {
		return nil
	}
	return &model.PaymentInfo{
		Provider:        p.Provider,
		IntentID:        p.IntentID,
		MethodID:        p.MethodID,
		AmountCents:     cents(p.Amount),
		Currency:        p.Currency,
		ProcessorStatus: p.Status,
		CardBrand:       p.CardBrand,
		CardLast4:       p.CardLast4,
		ReceiptURL:      p.ReceiptURL,
	}
}

type orderRequest struct {
	Items           []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddress *model.Address     `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
	Tax             float64            `json:"tax" validate:"gte=0"`
	ShippingCost    float64            `json:"shippingCost" validate:"gte=0"`
	Discount        float64            `json:"discount" validate:"gte=0"`
	Currency        string             `json:"currency"`
	CustomerNote    string             `json:"customerNote"`
	Payment         *paymentRequest    `json:"payment"`
}

func (req *orderRequest) toInput() service.OrderInput {
	items := make([]service.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.ItemInput{
			ProductRef: it.ProductID,
			Name:       it.Name,
			Grade:      it.SelectedGrade,
			Quantity:   it.Quantity,
			PriceCents: cents(it.Price),
			Unit:       it.Unit,
			Image:      it.Image,
		})
	}

	return service.OrderInput{
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		TaxCents:        cents(req.Tax),
		ShippingCents:   cents(req.ShippingCost),
		DiscountCents:   cents(req.Discount),
		Currency:        req.Currency,
		CustomerNote:    req.CustomerNote,
		Payment:         req.Payment.toModel(),
	}
}

type orderItemResponse struct {
	ProductID     string  `json:"productId"`
	Name          string  `json:"name"`
	SelectedGrade string  `json:"selectedGrade,omitempty"`
	Quantity      int32   `json:"quantity"`
	Price         float64 `json:"price"`
	Unit          string  `json:"unit,omitempty"`
	Total         float64 `json:"total"`
	Image         string  `json:"image,omitempty"`
}

type orderResponse struct {
	ID              int64               `json:"id"`
	OrderNumber     string              `json:"orderNumber"`
	Items           []orderItemResponse `json:"items"`
	ShippingAddress *model.Address      `json:"shippingAddress,omitempty"`
	PaymentMethod   string              `json:"paymentMethod,omitempty"`
	PaymentStatus   string              `json:"paymentStatus"`
	OrderStatus     string              `json:"orderStatus"`
	Subtotal        float64             `json:"subtotal"`
	Tax             float64             `json:"tax"`
	ShippingCost    float64             `json:"shippingCost"`
	Discount        float64             `json:"discount"`
	Total           float64             `json:"total"`
	Currency        string              `json:"currency"`
	CustomerNote    string              `json:"customerNote,omitempty"`
	Payment         *model.PaymentInfo  `json:"payment,omitempty"`
	CreatedAt       string              `json:"createdAt"`
	UpdatedAt       string              `json:"updatedAt"`
	DeliveredAt     *string             `json:"deliveredAt,omitempty"`
	CancelledAt     *string             `json:"cancelledAt,omitempty"`
	CancelledBy     *int64              `json:"cancelledBy,omitempty"`
}

func toOrderResponse(o *model.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID:     it.ProductRef,
			Name:          it.Name,
			SelectedGrade: it.Grade,
			Quantity:      it.Quantity,
			Price:         rupees(it.PriceCents),
			Unit:          it.Unit,
			Total:         rupees(it.TotalCents),
			Image:         it.Image,
		})
	}

	resp := orderResponse{
		ID:              o.ID,
		OrderNumber:     o.Number,
		Items:           items,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   string(o.PaymentStatus),
		OrderStatus:     string(o.OrderStatus),
		Subtotal:        rupees(o.SubtotalCents),
		Tax:             rupees(o.TaxCents),
		ShippingCost:    rupees(o.ShippingCents),
		Discount:        rupees(o.DiscountCents),
		Total:           rupees(o.TotalCents),
		Currency:        o.Currency,
		CustomerNote:    o.CustomerNote,
		Payment:         o.Payment,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       o.UpdatedAt.Format(time.RFC3339),
		CancelledBy:     o.CancelledBy,
	}
	if o.DeliveredAt != nil {
		v := o.DeliveredAt.Format(time.RFC3339)
		resp.DeliveredAt = &v
	}
	if o.CancelledAt != nil {
		v := o.CancelledAt.Format(time.RFC3339)
		resp.CancelledAt = &v
	}
	return resp
}

func toOrderListResponse(orders []model.Order) []orderResponse {
	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}
	return resp
}

func (h *Handler) decodeOrderRequest(w http.ResponseWriter, r *http.Request) (*orderRequest, bool) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeValidationError(w, err)
		return nil, false
	}
	return &req, true
}

// PrepareOrder reserves an order number and creates the order in the
// pending state, before the client attempts payment.
func (h *Handler) PrepareOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	req, ok := h.decodeOrderRequest(w, r)
	if !ok {
		return
	}

	order, err := h.service.PrepareOrder(r.Context(), user.ID, req.toInput())
	if err != nil {
		h.writeServiceError(w, err, "prepare order")
		return
	}

	h.writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "order prepared",
		Data:    toOrderResponse(order),
	})
}

// CreateOrder submits a new order. A card payment that already reports
// processor success confirms the order immediately.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	req, ok := h.decodeOrderRequest(w, r)
	if !ok {
		return
	}

	order, err := h.service.SubmitOrder(r.Context(), user.ID, req.toInput())
	if err != nil {
		h.writeServiceError(w, err, "create order")
		return
	}

	h.writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "order created",
		Data:    toOrderResponse(order),
	})
}

// GetOrders returns the current user's orders.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), user.ID)
	if err != nil {
		h.writeServiceError(w, err, "get orders")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: toOrderListResponse(orders)})
}

// GetOrder returns a single order to its owner or an admin.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.service.GetOrder(r.Context(), model.User{ID: user.ID, Email: user.Email, Role: user.Role}, id)
	if err != nil {
		h.writeServiceError(w, err, "get order")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: toOrderResponse(order)})
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason"`
}

// UpdateOrderStatus transitions an order's fulfillment status. Admin only.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	order, err := h.service.TransitionOrderStatus(r.Context(), id, model.OrderStatus(req.Status), user.ID, req.Reason)
	if err != nil {
		h.writeServiceError(w, err, "update order status")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "order status updated",
		Data:    toOrderResponse(order),
	})
}

// MarkPaid records a client-side payment confirmation for the caller's own
// order, addressed by order number.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orderNumber := chi.URLParam(r, "id")
	if !validation.IsValidOrderNumber(orderNumber) {
		h.writeError(w, http.StatusBadRequest, "invalid order number")
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	order, err := h.service.MarkPaid(r.Context(), user.ID, orderNumber, *req.toModel())
	if err != nil {
		h.writeServiceError(w, err, "mark order paid")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "payment recorded",
		Data:    toOrderResponse(order),
	})
}

type createIntentRequest struct {
	Amount      int64  `json:"amount" validate:"gt=0"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	OrderNumber string `json:"orderNumber"`
}

// CreateIntent asks the payment processor for a payment handle. The amount
// is in the smallest currency unit.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	intent, err := h.service.CreatePaymentIntent(r.Context(),
		model.User{ID: user.ID, Email: user.Email, Role: user.Role},
		req.Amount, req.Currency, req.Description, req.OrderNumber)
	if err != nil {
		h.writeServiceError(w, err, "create payment intent")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    map[string]string{"clientSecret": intent.ClientSecret},
	})
}

// Webhook handles signed processor events. It is mounted on the raw body,
// verifies the signature before trusting anything, and answers plain text
// on failure as the processor expects.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Webhook Error: cannot read body", http.StatusBadRequest)
		return
	}

	event, err := payment.ParseEvent(body, r.Header.Get(payment.SignatureHeader), h.webhookSecret, payment.DefaultTolerance)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", zap.Error(err))
		http.Error(w, "Webhook Error: invalid signature", http.StatusBadRequest)
		return
	}

	if err := h.service.HandlePaymentEvent(r.Context(), event); err != nil {
		h.logger.Error("handle payment event", zap.Error(err), zap.String("event", event.ID))
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"received":true}`))
}

type reviewRequest struct {
	ProductClientID string `json:"productClientId" validate:"required"`
	Rating          int32  `json:"rating" validate:"required,gte=1,lte=5"`
	Comment         string `json:"comment" validate:"required"`
}

type reviewResponse struct {
	ID              int64  `json:"id"`
	ProductClientID string `json:"productClientId"`
	UserName        string `json:"userName"`
	Rating          int32  `json:"rating"`
	Comment         string `json:"comment"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

func toReviewResponse(rev *model.Review) reviewResponse {
	return reviewResponse{
		ID:              rev.ID,
		ProductClientID: rev.ProductRef,
		UserName:        rev.UserName,
		Rating:          rev.Rating,
		Comment:         rev.Comment,
		CreatedAt:       rev.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       rev.UpdatedAt.Format(time.RFC3339),
	}
}

// CreateReview creates or overwrites the user's review of a product.
func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	rev, err := h.service.SubmitReview(r.Context(),
		model.User{ID: user.ID, Email: user.Email, Role: user.Role},
		req.ProductClientID, req.Rating, req.Comment)
	if err != nil {
		h.writeServiceError(w, err, "submit review")
		return
	}

	h.writeJSON(w, http.StatusCreated, envelope{Success: true, Data: toReviewResponse(rev)})
}

// GetReviews returns the reviews of a product. Public.
func (h *Handler) GetReviews(w http.ResponseWriter, r *http.Request) {
	productRef := r.URL.Query().Get("productClientId")
	if productRef == "" {
		h.writeError(w, http.StatusBadRequest, "productClientId is required")
		return
	}

	reviews, err := h.service.GetReviews(r.Context(), productRef)
	if err != nil {
		h.writeServiceError(w, err, "get reviews")
		return
	}

	resp := make([]reviewResponse, 0, len(reviews))
	for i := range reviews {
		resp = append(resp, toReviewResponse(&reviews[i]))
	}

	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: resp})
}

// AdminOrders returns every order. Admin only.
func (h *Handler) AdminOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.GetAllOrders(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "get all orders")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: toOrderListResponse(orders)})
}

type statusStatResponse struct {
	Count       int64   `json:"count"`
	TotalAmount float64 `json:"totalAmount"`
}

// AdminDashboard returns per-status order counts and totals. Admin only.
func (h *Handler) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetOrderStats(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "get order stats")
		return
	}

	resp := make(map[string]statusStatResponse, len(stats))
	for status, stat := range stats {
		resp[string(status)] = statusStatResponse{
			Count:       stat.Count,
			TotalAmount: rupees(stat.TotalCents),
		}
	}

	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: resp})
}

// Health reports service liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "RGO storefront API is running",
		Data:    map[string]string{"timestamp": time.Now().Format(time.RFC3339)},
	})
}
