// Package changes diffs proposed field updates of an event against its stored
// header, lines and rates, and carries the resulting change list through the
// propose and confirm phases.
package changes

import (
	"strconv"
	"time"
)

// Status is the outcome of one tracked field.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Table names the record family a change belongs to.
type Table string

const (
	TableHeader Table = "header"
	TableLines  Table = "lines"
	TableRates  Table = "rates"
)

// Messages carried by error records.
const (
	MsgUnchangedLocation  = "Unchanged location"
	MsgInvalidCoordinates = "Invalid coordinates"
	MsgInvalidValue       = "Invalid value"
	MsgInvalidDate        = "Invalid date"
	MsgRecordNotFound     = "Record not found"
	MsgAddressSuperseded  = "Address superseded by coordinates"
	MsgDuplicateRecord    = "Duplicate record"
)

// Record is one tracked field change. Old and New hold canonical text:
// RFC3339 for dates, "lat,lon" with six decimals for coordinates and strconv
// formatting for numbers and booleans. LineID is the line itself for line
// records and the owning line for rate records.
type Record struct {
	Status   Status  `json:"status"`
	Table    Table   `json:"table"`
	Message  *string `json:"message"`
	HeaderID string  `json:"header_id"`
	LineID   string  `json:"line_id,omitempty"`
	RecordID string  `json:"record_id"`
	Field    string  `json:"field"`
	Old      string  `json:"old"`
	New      string  `json:"new"`
}

// Succeeded reports whether the record may be applied.
func (r Record) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Successes returns the records that may be applied, in order.
func Successes(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

// Failures returns the error records, in order.
func Failures(records []Record) []Record {
	out := make([]Record, 0)
	for _, r := range records {
		if !r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

func message(text string) *string {
	return &text
}

// FormatPoint renders a coordinate pair the way coordinate records store it.
func FormatPoint(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', 6, 64) + "," + strconv.FormatFloat(lon, 'f', 6, 64)
}

func formatTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.RFC3339)
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

func formatInt(n int) string {
	return strconv.Itoa(n)
}
