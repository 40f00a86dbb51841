package persistence

import "time"

// User represents a registered account that can post events.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session represents an authentication session persisted for a user. Token
// holds the JWT id the session was issued under.
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

// EventHeader is the identity, location and category of a posted event.
type EventHeader struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Category    string
	Latitude    float64
	Longitude   float64
	Address     string
	Img         string
	Img2        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EventLine is one scheduled time slot of a header.
type EventLine struct {
	ID        string
	HeaderID  string
	Start     time.Time
	End       time.Time
	IsPublic  bool
	Capacity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventRate is one priced offering attached to a line.
type EventRate struct {
	ID        string
	LineID    string
	Title     string
	Amount    float64
	Currency  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Event groups a header with every line and rate it owns.
type Event struct {
	Header EventHeader
	Lines  []EventLine
	Rates  []EventRate
}

// ChangeProposal stores a tracked but unconfirmed change list. Records holds
// the JSON encoded change records.
type ChangeProposal struct {
	ID         string
	HeaderID   string
	OwnerID    string
	State      string
	Records    []byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ResolvedAt *time.Time
}

// NearbyQuery selects lines inside a latitude/longitude bounding box.
type NearbyQuery struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
	EndsAfter    time.Time
	PublicOnly   bool
	Limit        int
}

// NearbyLine pairs a matching line with its header.
type NearbyLine struct {
	Header EventHeader
	Line   EventLine
}

// EventChanges is the unit written when a proposal is confirmed. Proposal
// must still be in its previous state for the write to succeed.
type EventChanges struct {
	Header        *EventHeader
	Lines         []EventLine
	Rates         []EventRate
	Proposal      ChangeProposal
	PreviousState string
}
