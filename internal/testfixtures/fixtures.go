package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/event-board/internal/application"
	"github.com/example/event-board/internal/persistence"
)

var (
	userCounter  uint64
	eventCounter uint64
)

var referenceTime = time.Date(2024, time.December, 2, 9, 0, 0, 0, time.UTC)

// ReferenceTime is the baseline instant fixtures are stamped with.
func ReferenceTime() time.Time {
	return referenceTime
}

// UserFixture is an account that can be stored or handed to services.
type UserFixture struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

type UserOption func(*UserFixture)

func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	fixture := UserFixture{
		ID:           id,
		Email:        id + "@example.com",
		DisplayName:  fmt.Sprintf("User %03d", idx),
		PasswordHash: "hash-" + id,
		CreatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

func WithUserID(id string) UserOption {
	return func(f *UserFixture) { f.ID = id }
}

func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) { f.Email = email }
}

func WithUserAdmin(isAdmin bool) UserOption {
	return func(f *UserFixture) { f.IsAdmin = isAdmin }
}

func (f UserFixture) Application() application.User {
	return application.User{
		ID:          f.ID,
		Email:       f.Email,
		DisplayName: f.DisplayName,
		IsAdmin:     f.IsAdmin,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.CreatedAt,
	}
}

func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, SessionID: "session-" + f.ID, IsAdmin: f.IsAdmin}
}

func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:           f.ID,
		Email:        f.Email,
		DisplayName:  f.DisplayName,
		PasswordHash: f.PasswordHash,
		IsAdmin:      f.IsAdmin,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.CreatedAt,
	}
}

// EventFixture builds a stored event: one header with daily lines, each
// carrying a single admission rate. Line i starts at Start plus i days.
type EventFixture struct {
	HeaderID  string
	OwnerID   string
	Title     string
	Latitude  float64
	Longitude float64
	Address   string
	Start     time.Time
	Duration  time.Duration
	Lines     int
	Private   map[int]bool
	Capacity  int
	Amount    float64
	Currency  string
}

type EventOption func(*EventFixture)

// NewEventFixture returns a two line event at Tokyo Station owned by ownerID.
func NewEventFixture(ownerID string, opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	fixture := EventFixture{
		HeaderID:  fmt.Sprintf("event-%03d", idx),
		OwnerID:   ownerID,
		Title:     fmt.Sprintf("Event %03d", idx),
		Latitude:  35.681236,
		Longitude: 139.767125,
		Address:   "Tokyo Station, Chiyoda",
		Start:     referenceTime.Add(24 * time.Hour),
		Duration:  2 * time.Hour,
		Lines:     2,
		Private:   map[int]bool{},
		Capacity:  10,
		Amount:    500,
		Currency:  "JPY",
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

func WithEventID(id string) EventOption {
	return func(f *EventFixture) { f.HeaderID = id }
}

func WithEventTitle(title string) EventOption {
	return func(f *EventFixture) { f.Title = title }
}

func WithEventPoint(lat, lon float64) EventOption {
	return func(f *EventFixture) { f.Latitude, f.Longitude = lat, lon }
}

func WithEventStart(start time.Time) EventOption {
	return func(f *EventFixture) { f.Start = start }
}

func WithEventLines(n int) EventOption {
	return func(f *EventFixture) { f.Lines = n }
}

// WithPrivateLine hides line i from anyone but the owner.
func WithPrivateLine(i int) EventOption {
	return func(f *EventFixture) { f.Private[i] = true }
}

// LineID names line i of the fixture.
func (f EventFixture) LineID(i int) string {
	return fmt.Sprintf("%s-line-%d", f.HeaderID, i)
}

// RateID names the rate of line i.
func (f EventFixture) RateID(i int) string {
	return fmt.Sprintf("%s-rate-%d", f.HeaderID, i)
}

func (f EventFixture) Persistence() persistence.Event {
	event := persistence.Event{
		Header: persistence.EventHeader{
			ID:        f.HeaderID,
			OwnerID:   f.OwnerID,
			Title:     f.Title,
			Latitude:  f.Latitude,
			Longitude: f.Longitude,
			Address:   f.Address,
			CreatedAt: referenceTime,
			UpdatedAt: referenceTime,
		},
	}
	for i := 0; i < f.Lines; i++ {
		start := f.Start.AddDate(0, 0, i)
		event.Lines = append(event.Lines, persistence.EventLine{
			ID:        f.LineID(i),
			HeaderID:  f.HeaderID,
			Start:     start,
			End:       start.Add(f.Duration),
			IsPublic:  !f.Private[i],
			Capacity:  f.Capacity,
			CreatedAt: referenceTime,
			UpdatedAt: referenceTime,
		})
		event.Rates = append(event.Rates, persistence.EventRate{
			ID:        f.RateID(i),
			LineID:    f.LineID(i),
			Title:     "Admission",
			Amount:    f.Amount,
			Currency:  f.Currency,
			CreatedAt: referenceTime,
			UpdatedAt: referenceTime,
		})
	}
	return event
}
