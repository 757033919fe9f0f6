package booking

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/erauner12/shopbook/internal/apiclient"
)

// AvailabilityPath lists open slots for a barber on a date
const AvailabilityPath = "/booking/availability"

// Slot is an open time slot
type Slot struct {
	ID    string
	Start time.Time
	End   time.Time
}

type availabilityQuery struct {
	BarberID string `validate:"required"`
	Date     string `validate:"required,datetime=2006-01-02"`
}

// Availability fetches open slots. Only the most recent Fetch delivers a
// result; earlier ones still in flight return ErrSuperseded.
type Availability struct {
	api      Pipeline
	validate *validator.Validate

	mu  sync.Mutex
	gen uint64
}

// NewAvailability creates a slot fetcher
func NewAvailability(api Pipeline) *Availability {
	return &Availability{api: api, validate: validator.New()}
}

// Fetch returns the open slots for barberID on date (YYYY-MM-DD)
func (a *Availability) Fetch(ctx context.Context, barberID, date string) ([]Slot, error) {
	if err := a.validate.Struct(availabilityQuery{BarberID: barberID, Date: date}); err != nil {
		return nil, fmt.Errorf("invalid availability query: %w", err)
	}

	a.mu.Lock()
	a.gen++
	gen := a.gen
	a.mu.Unlock()

	resp, err := a.api.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   AvailabilityPath,
		Query:  url.Values{"barberId": {barberID}, "date": {date}},
	})

	a.mu.Lock()
	stale := a.gen != gen
	a.mu.Unlock()
	if stale {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}

	var slots []Slot
	gjson.GetBytes(resp.Body, "availableSlots").ForEach(func(_, v gjson.Result) bool {
		slot := Slot{ID: firstString(v, "id", "_id")}
		slot.Start, _ = time.Parse(time.RFC3339, firstString(v, "start_time", "startTime"))
		slot.End, _ = time.Parse(time.RFC3339, firstString(v, "end_time", "endTime"))
		slots = append(slots, slot)
		return true
	})
	return slots, nil
}
