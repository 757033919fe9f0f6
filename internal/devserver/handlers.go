package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

var errAlreadyPaid = errors.New("booking already paid")

type loginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /api/customers/login
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || validate.Struct(req) != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Username and password are required"})
		return
	}

	c, ok := s.data.authenticate(req.Username, req.Password)
	if !ok {
		logger.Info().Str("username", req.Username).Msg("login rejected")
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid credentials"})
		return
	}

	access, err := s.IssueAccessToken(c.ID, s.cfg.TokenTTL)
	if err != nil {
		logger.Error().Err(err).Msg("failed to sign access token")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Internal server error"})
		return
	}
	refresh := s.refresh.Issue(c.ID)

	logger.Info().Str("userId", c.ID).Msg("login succeeded")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Login successful",
		"user":         c,
		"token":        access,
		"refreshToken": refresh.Token,
	})
}

// RefreshToken handles POST /api/auth/token/refresh/
func (s *Server) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"refresh": {"This field is required."}})
		return
	}

	sess, ok := s.refresh.Lookup(req.Refresh)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}

	access, err := s.IssueAccessToken(sess.UserID, s.cfg.TokenTTL)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Could not issue token.")
		return
	}

	log.Ctx(r.Context()).Debug().Str("userId", sess.UserID).Msg("access token refreshed")
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

// MyShops handles GET /api/barbershops/my-shops/
func (s *Server) MyShops(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	shops := s.data.shopsFor(userID)
	if shops == nil {
		shops = []shopView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "barbershops": shops})
}

// Availability handles GET /api/booking/availability?barberId=&date=YYYY-MM-DD
func (s *Server) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	barberID, date := q.Get("barberId"), q.Get("date")
	if barberID == "" || date == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required fields"})
		return
	}

	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid date"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"availableSlots": s.data.availableSlots(barberID, day)})
}

type createBookingReq struct {
	ServiceID     string `json:"serviceId" validate:"required"`
	BarberID      string `json:"barberId" validate:"required"`
	CustomerID    string `json:"customerId" validate:"required"`
	BookingTime   string `json:"bookingTime" validate:"required"`
	CustomerNotes string `json:"customerNotes"`
	PaymentStatus string `json:"paymentStatus" validate:"required"`
}

// CreateBooking handles POST /api/booking/create. A repeated Idempotency-Key
// returns the booking created by the first request.
func (s *Server) CreateBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)
	userID := UserID(ctx)

	var req createBookingReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON.")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Missing required fields.")
		return
	}
	if req.CustomerID != userID {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}

	start, err := time.Parse(time.RFC3339, req.BookingTime)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid bookingTime.")
		return
	}

	var shopID int
	if shop, ok := activeShop(ctx); ok {
		shopID = shop.ID
	}

	key := r.Header.Get("Idempotency-Key")
	b, replay, err := s.data.createBooking(key, createInput{
		ServiceID:     req.ServiceID,
		BarberID:      req.BarberID,
		CustomerID:    req.CustomerID,
		BarbershopID:  shopID,
		Start:         start,
		PaymentStatus: req.PaymentStatus,
		Notes:         req.CustomerNotes,
	})

	var conflict *SlotConflictError
	var notFound *NotFoundError
	switch {
	case errors.As(err, &conflict):
		logger.Info().Err(err).Str("barberId", req.BarberID).Msg("booking conflict")
		writeDetail(w, http.StatusConflict, "This time slot is no longer available.")
		return
	case errors.As(err, &notFound):
		writeDetail(w, http.StatusNotFound, notFound.Error())
		return
	case err != nil:
		logger.Error().Err(err).Msg("create booking failed")
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	logger.Info().
		Str("bookingId", b.ID).
		Str("idempotencyKey", key).
		Bool("replay", replay).
		Msg("booking created")
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "booking": b})
}

type paymentReq struct {
	BookingID   string  `json:"bookingId" validate:"required"`
	TotalAmount float64 `json:"totalAmount" validate:"gt=0"`
}

// CreatePayment handles POST /api/booking/payments
func (s *Server) CreatePayment(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	var req paymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || validate.Struct(req) != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Missing required fields"})
		return
	}

	resp, err := s.data.initiatePayment(r.Header.Get("Idempotency-Key"), req.BookingID, req.TotalAmount)
	var notFound *NotFoundError
	switch {
	case errors.Is(err, errAlreadyPaid):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Duplicate payment detected. This booking has already been paid.",
		})
		return
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Booking not found"})
		return
	case err != nil:
		logger.Error().Err(err).Msg("payment failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Internal server error"})
		return
	}

	logger.Info().Str("bookingId", req.BookingID).Float64("amount", req.TotalAmount).Msg("payment initiated")
	writeJSON(w, http.StatusOK, resp)
}
