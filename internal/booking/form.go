// Package booking submits appointment bookings exactly once and hands off to
// payment or confirmation.
package booking

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Selection is what the customer picked on the booking form
type Selection struct {
	ServiceID   string
	ServiceName string
	Price       float64
	BarberID    string
	Date        string // YYYY-MM-DD
	Time        time.Time
	Notes       string
}

// Form holds one booking intent. The idempotency key is created on the first
// submit and reused by every retry of that intent until it succeeds or the
// form is reset.
type Form struct {
	mu  sync.Mutex
	sel Selection
	key string
	gen uint64
}

// NewForm returns an empty form
func NewForm() *Form {
	return &Form{}
}

// Selection returns a copy of the current selection
func (f *Form) Selection() Selection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sel
}

// Update edits the selection. Editing does not start a new intent.
func (f *Form) Update(fn func(*Selection)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.sel)
}

// Reset clears the selection and starts a new intent. Submits still in flight
// for the old intent are discarded when they resolve.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sel = Selection{}
	f.key = ""
	f.gen++
}

// Key returns the idempotency key of the current intent ("" before the first submit)
func (f *Form) Key() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key
}

// begin snapshots the selection and returns the intent's key, creating it
// on first use. An incomplete selection returns ErrIncompleteSelection and
// leaves the key unset.
func (f *Form) begin() (Selection, string, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sel.BarberID == "" || f.sel.Time.IsZero() {
		return Selection{}, "", 0, ErrIncompleteSelection
	}
	if f.key == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return Selection{}, "", 0, err
		}
		f.key = id.String()
	}
	return f.sel, f.key, f.gen, nil
}

func (f *Form) current(gen uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen == gen
}

// clearTime drops the selected time after a conflict so it cannot be resent
func (f *Form) clearTime(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen == gen {
		f.sel.Time = time.Time{}
	}
}

// complete ends the intent after the booking was created
func (f *Form) complete(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen == gen {
		f.key = ""
		f.gen++
	}
}
