package application

import (
	"time"

	"github.com/example/event-board/internal/materialize"
	"github.com/example/event-board/internal/persistence"
	"github.com/example/event-board/internal/recurrence"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID    string
	SessionID string
	IsAdmin   bool
}

// User represents a registered account exposed by the application services.
type User struct {
	ID          string
	Email       string
	DisplayName string
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// RegisterUserParams captures a self-registration request.
type RegisterUserParams struct {
	Email       string
	DisplayName string
	Password    string
}

// Session represents an authenticated session issued to a user. Token is the
// id embedded in the access token.
type Session struct {
	ID          string
	UserID      string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}

// AuthenticateParams captures the data required to authenticate a user.
type AuthenticateParams struct {
	Email       string
	Password    string
	Fingerprint string
}

// AuthenticateResult captures the outcome of a successful authentication attempt.
type AuthenticateResult struct {
	User        User
	Session     Session
	AccessToken string
}

// LocationInput is either a coordinate pair or a free-form address.
type LocationInput struct {
	Latitude  *float64
	Longitude *float64
	Address   string
}

// ScheduleInput describes the slots of a new event before expansion.
//
// Ranges holds one range in the simple modes. In the custom per-weekday mode
// the first range is aligned to every entry of Weekdays; in the per-day mode
// each range is one explicit day. IsPublic and Capacity hold one value per
// output index or a single value broadcast to all of them.
type ScheduleInput struct {
	Ranges        []recurrence.Range
	IsPublic      []bool
	Capacity      []int
	Rates         []materialize.Rate
	RatesPerIndex [][]materialize.Rate

	Repeat       bool
	Every        int
	Occurrences  int
	Custom       bool
	CustomPerDay bool
	Weekdays     []int
}

// CreateEventParams wraps the data required to post an event.
type CreateEventParams struct {
	Principal   Principal
	Title       string
	Description string
	Category    string
	Img         string
	Img2        string
	Location    LocationInput
	Schedule    ScheduleInput
}

// NearbyParams selects public lines around a point.
type NearbyParams struct {
	Latitude  float64
	Longitude float64
	RadiusKm  float64
	From      time.Time
	Limit     int
}

// NearbyResult is one public line with its header and distance from the query point.
type NearbyResult struct {
	Header     persistence.EventHeader
	Line       persistence.EventLine
	DistanceKm float64
}
