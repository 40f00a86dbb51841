package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/event-board/internal/application"
	"github.com/example/event-board/internal/export"
	"github.com/example/event-board/internal/materialize"
	"github.com/example/event-board/internal/persistence"
	"github.com/example/event-board/internal/recurrence"
)

type eventService interface {
	CreateEvent(ctx context.Context, params application.CreateEventParams) (persistence.Event, error)
	GetEvent(ctx context.Context, principal application.Principal, headerID string) (persistence.Event, error)
	ListMine(ctx context.Context, principal application.Principal) ([]persistence.EventHeader, error)
	Nearby(ctx context.Context, params application.NearbyParams) ([]application.NearbyResult, error)
	DeleteEvent(ctx context.Context, principal application.Principal, headerID string) error
	WriteCalendar(ctx context.Context, headerID string, w io.Writer) (persistence.EventHeader, error)
	WriteWorkbook(ctx context.Context, principal application.Principal, headerID string, w io.Writer) (persistence.EventHeader, error)
}

// EventHandler serves event postings, nearby search and exports. Naive
// timestamps in requests are read in location and responses are rendered in
// it.
type EventHandler struct {
	service   eventService
	location  *time.Location
	responder responder
	logger    *slog.Logger
}

func NewEventHandler(service eventService, location *time.Location, logger *slog.Logger) *EventHandler {
	if location == nil {
		location = time.UTC
	}
	base := defaultLogger(logger)
	return &EventHandler{service: service, location: location, responder: newResponder(base), logger: base}
}

func (h *EventHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

func (h *EventHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// Create handles POST /events.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)

	var req createEventRequest
	if err := decodeRequest(w, r, &req); err != nil {
		logger.WarnContext(r.Context(), "invalid event request", "error", err)
		writeDecodeError(h.responder, w, r, err)
		return
	}
	params, err := req.toParams(principal, h.location)
	if err != nil {
		logger.WarnContext(r.Context(), "invalid event schedule", "error", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	event, err := h.service.CreateEvent(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "event creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("event_id", event.Header.ID, "lines", len(event.Lines)).InfoContext(r.Context(), "event created")
	w.Header().Set("Location", "/events/"+event.Header.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toEventDTO(event, h.location))
}

// Get handles GET /events/{id}.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	id := r.PathValue("id")
	event, err := h.service.GetEvent(r.Context(), principal, id)
	if err != nil {
		h.log(r.Context(), "Get", "event_id", id).ErrorContext(r.Context(), "failed to load event", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEventDTO(event, h.location))
}

// Mine handles GET /users/me/events.
func (h *EventHandler) Mine(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	headers, err := h.service.ListMine(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "Mine", "principal_id", principal.UserID).ErrorContext(r.Context(), "failed to list events", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := headerListResponse{Events: make([]headerDTO, 0, len(headers))}
	for _, header := range headers {
		resp.Events = append(resp.Events, toHeaderDTO(header, h.location))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// Nearby handles GET /events?lat=&lon=&radius_km=&from=&limit=.
func (h *EventHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	params, err := parseNearbyQuery(r, h.location)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	results, err := h.service.Nearby(r.Context(), params)
	if err != nil {
		h.log(r.Context(), "Nearby").ErrorContext(r.Context(), "nearby search failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := nearbyResponse{Results: make([]nearbyDTO, 0, len(results))}
	for _, result := range results {
		resp.Results = append(resp.Results, nearbyDTO{
			Event:      toHeaderDTO(result.Header, h.location),
			Line:       toLineDTO(result.Line, nil, h.location),
			DistanceKm: result.DistanceKm,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// Delete handles DELETE /events/{id}.
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	id := r.PathValue("id")
	if err := h.service.DeleteEvent(r.Context(), principal, id); err != nil {
		h.log(r.Context(), "Delete", "principal_id", principal.UserID, "event_id", id).ErrorContext(r.Context(), "failed to delete event", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Calendar handles GET /events/{id}/calendar.ics.
func (h *EventHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	id := r.PathValue("id")
	var buf bytes.Buffer
	header, err := h.service.WriteCalendar(r.Context(), id, &buf)
	if err != nil {
		h.log(r.Context(), "Calendar", "event_id", id).ErrorContext(r.Context(), "calendar export failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.writeFile(r.Context(), w, "text/calendar; charset=utf-8", export.CalendarFilename(header), buf.Bytes())
}

// Workbook handles GET /events/{id}/export.xlsx.
func (h *EventHandler) Workbook(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	id := r.PathValue("id")
	var buf bytes.Buffer
	header, err := h.service.WriteWorkbook(r.Context(), principal, id, &buf)
	if err != nil {
		h.log(r.Context(), "Workbook", "principal_id", principal.UserID, "event_id", id).ErrorContext(r.Context(), "workbook export failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.writeFile(r.Context(), w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.WorkbookFilename(header), buf.Bytes())
}

func (h *EventHandler) writeFile(ctx context.Context, w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.responder.loggerFor(ctx).WarnContext(ctx, "failed to write file response", "error", err)
	}
}

type createEventRequest struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=5000"`
	Category    string          `json:"category" validate:"max=100"`
	Img         string          `json:"img" validate:"omitempty,url"`
	Img2        string          `json:"img2" validate:"omitempty,url"`
	Location    locationRequest `json:"location"`
	Schedule    scheduleRequest `json:"schedule"`
}

type locationRequest struct {
	Coordinates []float64 `json:"coordinates" validate:"omitempty,len=2"`
	Address     string    `json:"address" validate:"max=500"`
}

type scheduleRequest struct {
	Ranges        []rangeRequest  `json:"ranges" validate:"required,min=1,dive"`
	IsPublic      []bool          `json:"is_public"`
	Capacity      []int           `json:"capacity" validate:"omitempty,dive,gte=0"`
	Rates         []rateRequest   `json:"rates" validate:"omitempty,dive"`
	RatesPerIndex [][]rateRequest `json:"rates_per_index" validate:"omitempty,dive,dive"`
	Repeat        bool            `json:"repeat"`
	Every         int             `json:"every"`
	Occurrences   int             `json:"occurrences"`
	Custom        bool            `json:"custom"`
	CustomPerDay  bool            `json:"custom_per_day"`
	Weekdays      []int           `json:"weekdays" validate:"omitempty,dive,gte=0,lte=6"`
}

type rangeRequest struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

type rateRequest struct {
	Title    string  `json:"title" validate:"required,max=100"`
	Amount   float64 `json:"amount" validate:"gte=0"`
	Currency string  `json:"currency" validate:"required,len=3"`
}

func (r createEventRequest) toParams(principal application.Principal, loc *time.Location) (application.CreateEventParams, error) {
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}

	ranges := make([]recurrence.Range, 0, len(r.Schedule.Ranges))
	for i, rr := range r.Schedule.Ranges {
		start, err := parseRequestTime(rr.Start, loc)
		if err != nil {
			vErr.FieldErrors[fmt.Sprintf("schedule.ranges[%d].start", i)] = err.Error()
		}
		end, err := parseRequestTime(rr.End, loc)
		if err != nil {
			vErr.FieldErrors[fmt.Sprintf("schedule.ranges[%d].end", i)] = err.Error()
		}
		ranges = append(ranges, recurrence.Range{Start: start, End: end})
	}
	if vErr.HasErrors() {
		return application.CreateEventParams{}, vErr
	}

	location := application.LocationInput{Address: r.Location.Address}
	if len(r.Location.Coordinates) == 2 {
		lat, lon := r.Location.Coordinates[0], r.Location.Coordinates[1]
		location.Latitude, location.Longitude = &lat, &lon
	}

	perIndex := make([][]materialize.Rate, 0, len(r.Schedule.RatesPerIndex))
	for _, list := range r.Schedule.RatesPerIndex {
		perIndex = append(perIndex, toRates(list))
	}

	return application.CreateEventParams{
		Principal:   principal,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Img:         r.Img,
		Img2:        r.Img2,
		Location:    location,
		Schedule: application.ScheduleInput{
			Ranges:        ranges,
			IsPublic:      r.Schedule.IsPublic,
			Capacity:      r.Schedule.Capacity,
			Rates:         toRates(r.Schedule.Rates),
			RatesPerIndex: perIndex,
			Repeat:        r.Schedule.Repeat,
			Every:         r.Schedule.Every,
			Occurrences:   r.Schedule.Occurrences,
			Custom:        r.Schedule.Custom,
			CustomPerDay:  r.Schedule.CustomPerDay,
			Weekdays:      r.Schedule.Weekdays,
		},
	}, nil
}

func toRates(list []rateRequest) []materialize.Rate {
	rates := make([]materialize.Rate, 0, len(list))
	for _, r := range list {
		rates = append(rates, materialize.Rate{
			Title:    strings.TrimSpace(r.Title),
			Amount:   r.Amount,
			Currency: strings.ToUpper(strings.TrimSpace(r.Currency)),
		})
	}
	return rates
}

var naiveLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05"}

// parseRequestTime accepts RFC3339 or a naive local time read in loc.
func parseRequestTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("must be an RFC3339 or YYYY-MM-DDTHH:MM timestamp")
}

func parseNearbyQuery(r *http.Request, loc *time.Location) (application.NearbyParams, error) {
	query := r.URL.Query()
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}

	number := func(name string, required bool) float64 {
		raw := strings.TrimSpace(query.Get(name))
		if raw == "" {
			if required {
				vErr.FieldErrors[name] = "is required"
			}
			return 0
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			vErr.FieldErrors[name] = "must be a number"
			return 0
		}
		return f
	}

	params := application.NearbyParams{
		Latitude:  number("lat", true),
		Longitude: number("lon", true),
		RadiusKm:  number("radius_km", false),
	}
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		from, err := parseRequestTime(raw, loc)
		if err != nil {
			vErr.FieldErrors["from"] = err.Error()
		}
		params.From = from
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			vErr.FieldErrors["limit"] = "must be a non-negative integer"
		}
		params.Limit = n
	}
	if vErr.HasErrors() {
		return application.NearbyParams{}, vErr
	}
	return params, nil
}

type headerDTO struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Coordinates [2]float64 `json:"coordinates"`
	Address     string     `json:"address"`
	Img         string     `json:"img,omitempty"`
	Img2        string     `json:"img2,omitempty"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
}

type lineDTO struct {
	ID       string    `json:"id"`
	Start    string    `json:"start"`
	End      string    `json:"end"`
	IsPublic bool      `json:"is_public"`
	Capacity int       `json:"capacity"`
	Rates    []rateDTO `json:"rates,omitempty"`
}

type rateDTO struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type eventDTO struct {
	headerDTO
	Lines []lineDTO `json:"lines"`
}

type headerListResponse struct {
	Events []headerDTO `json:"events"`
}

type nearbyDTO struct {
	Event      headerDTO `json:"event"`
	Line       lineDTO   `json:"line"`
	DistanceKm float64   `json:"distance_km"`
}

type nearbyResponse struct {
	Results []nearbyDTO `json:"results"`
}

func formatInstant(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.RFC3339)
}

func toHeaderDTO(h persistence.EventHeader, loc *time.Location) headerDTO {
	return headerDTO{
		ID:          h.ID,
		OwnerID:     h.OwnerID,
		Title:       h.Title,
		Description: h.Description,
		Category:    h.Category,
		Coordinates: [2]float64{h.Latitude, h.Longitude},
		Address:     h.Address,
		Img:         h.Img,
		Img2:        h.Img2,
		CreatedAt:   formatInstant(h.CreatedAt, loc),
		UpdatedAt:   formatInstant(h.UpdatedAt, loc),
	}
}

func toLineDTO(l persistence.EventLine, rates []persistence.EventRate, loc *time.Location) lineDTO {
	dto := lineDTO{
		ID:       l.ID,
		Start:    formatInstant(l.Start, loc),
		End:      formatInstant(l.End, loc),
		IsPublic: l.IsPublic,
		Capacity: l.Capacity,
	}
	for _, r := range rates {
		if r.LineID == l.ID {
			dto.Rates = append(dto.Rates, rateDTO{ID: r.ID, Title: r.Title, Amount: r.Amount, Currency: r.Currency})
		}
	}
	return dto
}

func toEventDTO(event persistence.Event, loc *time.Location) eventDTO {
	dto := eventDTO{headerDTO: toHeaderDTO(event.Header, loc), Lines: make([]lineDTO, 0, len(event.Lines))}
	for _, l := range event.Lines {
		dto.Lines = append(dto.Lines, toLineDTO(l, event.Rates, loc))
	}
	return dto
}
