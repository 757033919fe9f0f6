package devserver

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Subscription statuses
const (
	SubscriptionActive  = "active"
	SubscriptionTrial   = "trial"
	SubscriptionExpired = "expired"
)

// Customer is a user that can log in
type Customer struct {
	ID       string `json:"id"`
	Username string `json:"-"`
	Password string `json:"-"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
}

// Shop is a barbershop tenant
type Shop struct {
	ID                 int               `json:"id"`
	Name               string            `json:"name"`
	Slug               string            `json:"slug"`
	Subdomain          string            `json:"subdomain"`
	SubscriptionStatus string            `json:"subscription_status"`
	IsActive           bool              `json:"is_active"`
	OwnerID            string            `json:"-"`
	Staff              map[string]string `json:"-"` // userID -> role
}

// Service is something a barber can be booked for
type Service struct {
	ID       string
	Name     string
	Duration time.Duration
	Price    float64
}

// Booking is a created appointment
type Booking struct {
	ID            string    `json:"id"`
	ServiceID     string    `json:"serviceId"`
	BarberID      string    `json:"barberId"`
	CustomerID    string    `json:"customerId"`
	BarbershopID  int       `json:"barbershopId,omitempty"`
	BookingTime   time.Time `json:"bookingTime"`
	EndTime       time.Time `json:"endTime"`
	PaymentStatus string    `json:"paymentStatus"`
	CustomerNotes string    `json:"customerNotes,omitempty"`
	Status        string    `json:"bookingStatus"`
}

// SlotConflictError is returned when the requested time overlaps a booking
type SlotConflictError struct {
	Start time.Time
	End   time.Time
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot from %s to %s overlaps with the selected time", e.Start.Format("15:04"), e.End.Format("15:04"))
}

// NotFoundError is returned for unknown ids
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Opening hours (UTC)
const (
	OpenHour  = 9
	CloseHour = 17
	SlotSize  = 30 * time.Minute
)

// store is the in-memory backend state
type store struct {
	mu        sync.RWMutex
	customers map[string]Customer // key: id
	shops     map[int]Shop
	services  map[string]Service
	bookings  map[string]Booking
	idem      map[string]string // idempotency key -> booking id
	payments  map[string]map[string]any
}

func newStore() *store {
	return &store{
		customers: make(map[string]Customer),
		shops:     make(map[int]Shop),
		services:  make(map[string]Service),
		bookings:  make(map[string]Booking),
		idem:      make(map[string]string),
		payments:  make(map[string]map[string]any),
	}
}

func (s *store) addCustomer(c Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

func (s *store) addShop(sh Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shops[sh.ID] = sh
}

func (s *store) addService(svc Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

func (s *store) authenticate(username, password string) (Customer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.customers {
		if c.Username == username && c.Password == password {
			return c, true
		}
	}
	return Customer{}, false
}

func (s *store) customer(id string) (Customer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	return c, ok
}

func (s *store) shop(id int) (Shop, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shops[id]
	return sh, ok
}

func (s *store) setSubscription(id int, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shops[id]
	if !ok {
		return false
	}
	sh.SubscriptionStatus = status
	s.shops[id] = sh
	return true
}

// shopsFor returns active shops the user owns or works at, with the role
// the user holds there, ordered by name.
func (s *store) shopsFor(userID string) []shopView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []shopView
	for _, sh := range s.shops {
		if !sh.IsActive {
			continue
		}
		role, staff := sh.Staff[userID]
		if !staff && sh.OwnerID == userID {
			role = "Admin"
		}
		if role == "" {
			continue
		}
		out = append(out, shopView{Shop: sh, OwnerRole: role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type shopView struct {
	Shop
	OwnerRole string `json:"owner_role"`
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

type createInput struct {
	ServiceID     string
	BarberID      string
	CustomerID    string
	BarbershopID  int
	Start         time.Time
	PaymentStatus string
	Notes         string
}

// createBooking creates a booking unless the key was already used, in which
// case the original booking is returned with replay=true. Failed attempts
// leave no record so the same key may be retried.
func (s *store) createBooking(key string, in createInput) (Booking, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		if id, ok := s.idem[key]; ok {
			return s.bookings[id], true, nil
		}
	}

	svc, ok := s.services[in.ServiceID]
	if !ok {
		return Booking{}, false, &NotFoundError{Kind: "service", ID: in.ServiceID}
	}
	if barber, ok := s.customers[in.BarberID]; !ok || barber.Role != "Barber" {
		return Booking{}, false, &NotFoundError{Kind: "barber", ID: in.BarberID}
	}

	end := in.Start.Add(svc.Duration)
	for _, b := range s.bookings {
		if b.BarberID == in.BarberID && overlaps(in.Start, end, b.BookingTime, b.EndTime) {
			return Booking{}, false, &SlotConflictError{Start: b.BookingTime, End: b.EndTime}
		}
	}

	b := Booking{
		ID:            uuid.New().String(),
		ServiceID:     in.ServiceID,
		BarberID:      in.BarberID,
		CustomerID:    in.CustomerID,
		BarbershopID:  in.BarbershopID,
		BookingTime:   in.Start.UTC(),
		EndTime:       end.UTC(),
		PaymentStatus: in.PaymentStatus,
		CustomerNotes: in.Notes,
		Status:        "Confirmed",
	}
	s.bookings[b.ID] = b
	if key != "" {
		s.idem[key] = b.ID
	}
	return b, false, nil
}

func (s *store) bookingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bookings)
}

// availableSlots lists open SlotSize slots for barberID on day
func (s *store) availableSlots(barberID string, day time.Time) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	open := time.Date(day.Year(), day.Month(), day.Day(), OpenHour, 0, 0, 0, time.UTC)
	closing := time.Date(day.Year(), day.Month(), day.Day(), CloseHour, 0, 0, 0, time.UTC)

	slots := make([]map[string]any, 0)
	for start := open; start.Before(closing); start = start.Add(SlotSize) {
		end := start.Add(SlotSize)
		taken := false
		for _, b := range s.bookings {
			if b.BarberID == barberID && overlaps(start, end, b.BookingTime, b.EndTime) {
				taken = true
				break
			}
		}
		if taken {
			continue
		}
		slots = append(slots, map[string]any{
			"id":         barberID + "-" + strconv.FormatInt(start.Unix(), 10),
			"start_time": start.Format(time.RFC3339),
			"end_time":   end.Format(time.RFC3339),
			"is_booked":  false,
		})
	}
	return slots
}

// initiatePayment records a payment for bookingID. A repeated key returns
// the first response.
func (s *store) initiatePayment(key, bookingID string, amount float64) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		if resp, ok := s.payments[key]; ok {
			return resp, nil
		}
	}

	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, &NotFoundError{Kind: "booking", ID: bookingID}
	}
	if b.PaymentStatus == "Online Paid" {
		return nil, errAlreadyPaid
	}

	cents := int(amount * 100)
	secret := fmt.Sprintf("test_%s_%d", bookingID, cents)
	b.PaymentStatus = "Online Paid"
	s.bookings[bookingID] = b

	resp := map[string]any{
		"success":       true,
		"client_secret": secret,
		"checkout_url":  "https://checkout.invalid/pay/" + secret,
	}
	if key != "" {
		s.payments[key] = resp
	}
	return resp, nil
}
