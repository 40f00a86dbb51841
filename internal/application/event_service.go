package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/example/event-board/internal/export"
	"github.com/example/event-board/internal/geocode"
	"github.com/example/event-board/internal/materialize"
	"github.com/example/event-board/internal/persistence"
	"github.com/example/event-board/internal/recurrence"
)

// EventRepository captures the persistence operations needed by the event service.
type EventRepository interface {
	CreateEvent(ctx context.Context, event persistence.Event) error
	GetEvent(ctx context.Context, headerID string) (persistence.Event, error)
	ListHeadersByOwner(ctx context.Context, ownerID string) ([]persistence.EventHeader, error)
	SearchLines(ctx context.Context, query persistence.NearbyQuery) ([]persistence.NearbyLine, error)
	DeleteEvent(ctx context.Context, headerID string) error
}

// Geocoder resolves addresses and coordinates.
type Geocoder interface {
	Forward(ctx context.Context, address string) (geocode.Result, error)
	Reverse(ctx context.Context, lat, lon float64) (geocode.Result, error)
}

// EventConfig bounds what a single posting or search may request.
type EventConfig struct {
	Location        *time.Location
	MaxOccurrences  int
	DefaultRadiusKm float64
	MaxRadiusKm     float64
	NearbyLimit     int
}

func (c EventConfig) withDefaults() EventConfig {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = 366
	}
	if c.DefaultRadiusKm <= 0 {
		c.DefaultRadiusKm = 10
	}
	if c.MaxRadiusKm <= 0 {
		c.MaxRadiusKm = 200
	}
	if c.NearbyLimit <= 0 {
		c.NearbyLimit = 100
	}
	return c
}

const earthRadiusKm = 6371.0

// EventService posts, reads, searches and exports events.
type EventService struct {
	events      EventRepository
	geocoder    Geocoder
	idGenerator func() string
	now         func() time.Time
	cfg         EventConfig
	logger      *slog.Logger
}

// NewEventService wires dependencies for the event service.
func NewEventService(events EventRepository, geocoder Geocoder, idGenerator func() string, now func() time.Time, cfg EventConfig) *EventService {
	return NewEventServiceWithLogger(events, geocoder, idGenerator, now, cfg, nil)
}

// NewEventServiceWithLogger wires dependencies for the event service with a logger.
func NewEventServiceWithLogger(events EventRepository, geocoder Geocoder, idGenerator func() string, now func() time.Time, cfg EventConfig, logger *slog.Logger) *EventService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &EventService{
		events:      events,
		geocoder:    geocoder,
		idGenerator: idGenerator,
		now:         now,
		cfg:         cfg.withDefaults(),
		logger:      defaultLogger(logger),
	}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

// CreateEvent validates a posting, expands its schedule and stores the header
// together with every generated line and rate in one write.
func (s *EventService) CreateEvent(ctx context.Context, params CreateEventParams) (event persistence.Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"event_id", event.Header.ID,
			"lines", len(event.Lines),
			"rates", len(event.Rates),
		).InfoContext(ctx, "event created")
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		vErr.add("title", "title is required")
	}
	loc := params.Location
	hasPoint := loc.Latitude != nil || loc.Longitude != nil
	switch {
	case hasPoint && (loc.Latitude == nil || loc.Longitude == nil):
		vErr.add("location.coordinates", "latitude and longitude are both required")
	case hasPoint && !validPoint(*loc.Latitude, *loc.Longitude):
		vErr.add("location.coordinates", "coordinates are out of range")
	case !hasPoint && strings.TrimSpace(loc.Address) == "":
		vErr.add("location", "coordinates or an address is required")
	}

	var packed []materialize.Packed
	packed, scheduleErr := s.pack(params.Schedule)
	vErr.merge(scheduleErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var place geocode.Result
	place, err = s.locate(ctx, loc)
	if err != nil {
		return
	}

	now := s.now()
	header := persistence.EventHeader{
		ID:          s.idGenerator(),
		OwnerID:     params.Principal.UserID,
		Title:       title,
		Description: strings.TrimSpace(params.Description),
		Category:    strings.TrimSpace(params.Category),
		Latitude:    place.Point.Lat,
		Longitude:   place.Point.Lon,
		Address:     place.DisplayAddress,
		Img:         strings.TrimSpace(params.Img),
		Img2:        strings.TrimSpace(params.Img2),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	lines, rates := materialize.Records(header.ID, packed, s.idGenerator, now)

	candidate := persistence.Event{Header: header, Lines: lines, Rates: rates}
	if err = s.events.CreateEvent(ctx, candidate); err != nil {
		return
	}
	event = candidate
	return
}

// pack turns a schedule into slots, reporting problems as field errors.
func (s *EventService) pack(input ScheduleInput) ([]materialize.Packed, *ValidationError) {
	plan := materialize.SelectPlan(input.Repeat, input.Custom, input.CustomPerDay)

	ranges := input.Ranges
	if len(ranges) == 0 {
		return nil, fieldError("schedule.ranges", "at least one date range is required")
	}
	if input.Custom && !input.CustomPerDay {
		if len(ranges) != 1 {
			return nil, fieldError("schedule.ranges", "weekday schedules take exactly one base range")
		}
		built, err := recurrence.BuildWeekdayRanges(ranges[0], input.Weekdays)
		if err != nil {
			return nil, scheduleError(err)
		}
		ranges = built
	}

	var (
		groups recurrence.Groups
		err    error
	)
	if input.Repeat {
		if input.Occurrences > s.cfg.MaxOccurrences {
			return nil, fieldError("schedule.occurrences", fmt.Sprintf("at most %d occurrences are allowed", s.cfg.MaxOccurrences))
		}
		var mode recurrence.Mode
		if input.Custom {
			mode, err = recurrence.CustomMode(input.Every)
		} else {
			mode, err = recurrence.SimpleMode(input.Every)
		}
		if err != nil {
			return nil, scheduleError(err)
		}
		groups, err = recurrence.Expand(mode, ranges, input.Occurrences)
	} else {
		groups, err = recurrence.Single(ranges)
	}
	if err != nil {
		return nil, scheduleError(err)
	}

	payload := materialize.Payload{
		IsPublic:      input.IsPublic,
		Capacity:      input.Capacity,
		Rates:         input.Rates,
		RatesPerIndex: input.RatesPerIndex,
	}
	if len(payload.IsPublic) == 0 {
		payload.IsPublic = []bool{true}
	}

	vErr := &ValidationError{}
	for i, c := range payload.Capacity {
		if c < 0 {
			vErr.add(fmt.Sprintf("schedule.capacity[%d]", i), "capacity must not be negative")
		}
	}
	for i, r := range payload.Rates {
		validateRate(vErr, fmt.Sprintf("schedule.rates[%d]", i), r)
	}
	for i, list := range payload.RatesPerIndex {
		for j, r := range list {
			validateRate(vErr, fmt.Sprintf("schedule.rates_per_index[%d][%d]", i, j), r)
		}
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	packed, err := materialize.Pack(plan, groups, payload)
	if err != nil {
		return nil, scheduleError(err)
	}
	return packed, nil
}

func validateRate(vErr *ValidationError, field string, r materialize.Rate) {
	if strings.TrimSpace(r.Title) == "" {
		vErr.add(field+".title", "title is required")
	}
	if r.Amount < 0 || math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
		vErr.add(field+".amount", "amount must be a non-negative number")
	}
	if len(strings.TrimSpace(r.Currency)) != 3 {
		vErr.add(field+".currency", "currency must be a three letter code")
	}
}

// scheduleError maps expansion and packing failures onto the request field they concern.
func scheduleError(err error) *ValidationError {
	var (
		shapeErr *recurrence.ShapeError
		modeErr  *recurrence.ModeError
	)
	switch {
	case errors.As(err, &modeErr):
		return fieldError("schedule.every", modeErr.Error())
	case errors.As(err, &shapeErr):
		return fieldError("schedule.ranges", shapeErr.Error())
	case errors.Is(err, recurrence.ErrInvalidRange):
		return fieldError("schedule.ranges", "start must be before end")
	case errors.Is(err, recurrence.ErrInvalidOccurrences):
		return fieldError("schedule.occurrences", "occurrences must be at least 1")
	case errors.Is(err, recurrence.ErrNoWeekdays), errors.Is(err, recurrence.ErrInvalidWeekday):
		return fieldError("schedule.weekdays", err.Error())
	case errors.Is(err, materialize.ErrIndexOutOfRange):
		return fieldError("schedule", err.Error())
	default:
		return fieldError("schedule", err.Error())
	}
}

func (s *EventService) locate(ctx context.Context, loc LocationInput) (geocode.Result, error) {
	if s.geocoder == nil {
		return geocode.Result{}, fmt.Errorf("geocoder not configured")
	}
	if loc.Latitude != nil && loc.Longitude != nil {
		place, err := s.geocoder.Reverse(ctx, *loc.Latitude, *loc.Longitude)
		if err != nil {
			return geocode.Result{}, geocodeError("location.coordinates", err)
		}
		place.Point = geocode.Point{Lat: *loc.Latitude, Lon: *loc.Longitude}
		return place, nil
	}
	place, err := s.geocoder.Forward(ctx, strings.TrimSpace(loc.Address))
	if err != nil {
		return geocode.Result{}, geocodeError("location.address", err)
	}
	return place, nil
}

func geocodeError(field string, err error) error {
	if errors.Is(err, geocode.ErrNoResult) {
		return fieldError(field, "location could not be resolved")
	}
	return fmt.Errorf("geocode %s: %w", field, err)
}

// GetEvent returns an event. Callers other than the owner see public lines only.
func (s *EventService) GetEvent(ctx context.Context, principal Principal, headerID string) (persistence.Event, error) {
	if s == nil {
		return persistence.Event{}, fmt.Errorf("EventService is nil")
	}
	event, err := s.load(ctx, headerID)
	if err != nil {
		return persistence.Event{}, err
	}
	if canManage(principal, event.Header) {
		return event, nil
	}
	return publicView(event), nil
}

// ListMine returns the headers owned by the principal, newest first.
func (s *EventService) ListMine(ctx context.Context, principal Principal) ([]persistence.EventHeader, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	headers, err := s.events.ListHeadersByOwner(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(headers, func(i, j int) bool {
		return headers[i].CreatedAt.After(headers[j].CreatedAt)
	})
	return headers, nil
}

// Nearby returns public lines within the radius that have not ended before
// From, closest first and then by start time.
func (s *EventService) Nearby(ctx context.Context, params NearbyParams) (results []NearbyResult, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Nearby", "lat", params.Latitude, "lon", params.Longitude, "radius_km", params.RadiusKm)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "nearby search failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "nearby search", "results", len(results))
	}()

	vErr := &ValidationError{}
	if !validPoint(params.Latitude, params.Longitude) {
		vErr.add("lat", "coordinates are out of range")
	}
	radius := params.RadiusKm
	if radius == 0 {
		radius = s.cfg.DefaultRadiusKm
	}
	if radius < 0 || radius > s.cfg.MaxRadiusKm {
		vErr.add("radius_km", fmt.Sprintf("radius must be between 0 and %g km", s.cfg.MaxRadiusKm))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	limit := params.Limit
	if limit <= 0 || limit > s.cfg.NearbyLimit {
		limit = s.cfg.NearbyLimit
	}
	from := params.From
	if from.IsZero() {
		from = s.now()
	}

	query := boundingBox(params.Latitude, params.Longitude, radius)
	query.EndsAfter = from
	query.PublicOnly = true

	var rows []persistence.NearbyLine
	rows, err = s.events.SearchLines(ctx, query)
	if err != nil {
		return
	}

	results = make([]NearbyResult, 0, len(rows))
	for _, row := range rows {
		d := haversineKm(params.Latitude, params.Longitude, row.Header.Latitude, row.Header.Longitude)
		if d > radius {
			continue
		}
		results = append(results, NearbyResult{Header: row.Header, Line: row.Line, DistanceKm: d})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].DistanceKm != results[j].DistanceKm {
			return results[i].DistanceKm < results[j].DistanceKm
		}
		return results[i].Line.Start.Before(results[j].Line.Start)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return
}

// DeleteEvent removes an event with all its lines and rates.
func (s *EventService) DeleteEvent(ctx context.Context, principal Principal, headerID string) (err error) {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteEvent", "principal_id", principal.UserID, "event_id", headerID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event deleted")
	}()

	var event persistence.Event
	event, err = s.load(ctx, headerID)
	if err != nil {
		return
	}
	if !canManage(principal, event.Header) {
		err = ErrForbidden
		return
	}
	err = s.events.DeleteEvent(ctx, headerID)
	if isNotFound(err) {
		err = ErrNotFound
	}
	return
}

// WriteCalendar writes the public lines of an event as an iCalendar feed.
func (s *EventService) WriteCalendar(ctx context.Context, headerID string, w io.Writer) (persistence.EventHeader, error) {
	if s == nil {
		return persistence.EventHeader{}, fmt.Errorf("EventService is nil")
	}
	event, err := s.load(ctx, headerID)
	if err != nil {
		return persistence.EventHeader{}, err
	}
	if err := export.WriteCalendar(w, publicView(event), s.now()); err != nil {
		return persistence.EventHeader{}, err
	}
	return event.Header, nil
}

// WriteWorkbook writes every line and rate of an event as an XLSX workbook. Only the owner may export.
func (s *EventService) WriteWorkbook(ctx context.Context, principal Principal, headerID string, w io.Writer) (persistence.EventHeader, error) {
	if s == nil {
		return persistence.EventHeader{}, fmt.Errorf("EventService is nil")
	}
	event, err := s.load(ctx, headerID)
	if err != nil {
		return persistence.EventHeader{}, err
	}
	if !canManage(principal, event.Header) {
		return persistence.EventHeader{}, ErrForbidden
	}
	if err := export.WriteWorkbook(w, event, s.cfg.Location); err != nil {
		return persistence.EventHeader{}, err
	}
	return event.Header, nil
}

func (s *EventService) load(ctx context.Context, headerID string) (persistence.Event, error) {
	if s.events == nil {
		return persistence.Event{}, fmt.Errorf("event repository not configured")
	}
	if strings.TrimSpace(headerID) == "" {
		return persistence.Event{}, ErrNotFound
	}
	event, err := s.events.GetEvent(ctx, headerID)
	if err != nil {
		if isNotFound(err) {
			return persistence.Event{}, ErrNotFound
		}
		return persistence.Event{}, err
	}
	return event, nil
}

func canManage(principal Principal, header persistence.EventHeader) bool {
	return principal.UserID != "" && (principal.UserID == header.OwnerID || principal.IsAdmin)
}

// publicView drops private lines and the rates attached to them.
func publicView(event persistence.Event) persistence.Event {
	view := persistence.Event{Header: event.Header}
	visible := make(map[string]struct{}, len(event.Lines))
	for _, line := range event.Lines {
		if line.IsPublic {
			view.Lines = append(view.Lines, line)
			visible[line.ID] = struct{}{}
		}
	}
	for _, rate := range event.Rates {
		if _, ok := visible[rate.LineID]; ok {
			view.Rates = append(view.Rates, rate)
		}
	}
	return view
}

func validPoint(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// boundingBox returns the latitude/longitude box enclosing the circle. Near
// the poles, or when the circle crosses the antimeridian, every longitude is
// included and the distance filter does the rest.
func boundingBox(lat, lon, radiusKm float64) persistence.NearbyQuery {
	dLat := radiusKm / earthRadiusKm * 180 / math.Pi
	q := persistence.NearbyQuery{
		MinLatitude:  math.Max(lat-dLat, -90),
		MaxLatitude:  math.Min(lat+dLat, 90),
		MinLongitude: -180,
		MaxLongitude: 180,
	}
	cos := math.Cos(lat * math.Pi / 180)
	if cos < 1e-6 {
		return q
	}
	dLon := dLat / cos
	if lon-dLon >= -180 && lon+dLon <= 180 {
		q.MinLongitude, q.MaxLongitude = lon-dLon, lon+dLon
	}
	return q
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}
