package testfixtures

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/event-board/internal/application"
	"github.com/example/event-board/internal/changes"
	"github.com/example/event-board/internal/geocode"
	"github.com/example/event-board/internal/notify"
)

// ServiceFactory builds application services with a shared test clock and
// id sequence.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
}

type ServiceFactoryOption func(*ServiceFactory)

func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Location:    time.UTC,
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

func WithClock(clock *Clock) ServiceFactoryOption {
	return func(f *ServiceFactory) { f.Clock = clock }
}

func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(f *ServiceFactory) { f.IDGenerator = generator }
}

// WithLocation sets the zone naive request times are read in.
func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(f *ServiceFactory) { f.Location = loc }
}

// EventServiceDeps lists the collaborators of an event service. A nil
// Geocoder is replaced with an empty StaticGeocoder.
type EventServiceDeps struct {
	Events   application.EventRepository
	Geocoder application.Geocoder
	Logger   *slog.Logger
}

func (f *ServiceFactory) NewEventService(deps EventServiceDeps) *application.EventService {
	geocoder := deps.Geocoder
	if geocoder == nil {
		geocoder = &StaticGeocoder{}
	}
	return application.NewEventServiceWithLogger(
		deps.Events,
		geocoder,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		application.EventConfig{Location: f.Location},
		deps.Logger,
	)
}

// ChangeServiceDeps lists the collaborators of a change service.
type ChangeServiceDeps struct {
	Events      application.ChangeRepository
	Proposals   application.ProposalRepository
	Users       application.UserDirectory
	Geocoder    changes.Geocoder
	Notifier    application.ChangeNotifier
	ProposalTTL time.Duration
	Logger      *slog.Logger
}

func (f *ServiceFactory) NewChangeService(deps ChangeServiceDeps) *application.ChangeService {
	geocoder := deps.Geocoder
	if geocoder == nil {
		geocoder = &StaticGeocoder{}
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = &RecordingNotifier{}
	}
	tracker := changes.NewTrackerWithLogger(deps.Events, geocoder, changes.Config{Location: f.Location}, deps.Logger)
	return application.NewChangeServiceWithLogger(
		deps.Events,
		deps.Proposals,
		tracker,
		deps.Users,
		notifier,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		application.ChangeConfig{ProposalTTL: deps.ProposalTTL},
		deps.Logger,
	)
}

// StaticGeocoder answers from fixed tables. Unknown addresses report
// geocode.ErrNoResult; unknown points resolve to "lat,lon".
type StaticGeocoder struct {
	mu        sync.Mutex
	Addresses map[string]geocode.Result
	Places    map[geocode.Point]string
	Calls     int
}

func (g *StaticGeocoder) Forward(ctx context.Context, address string) (geocode.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls++
	if result, ok := g.Addresses[address]; ok {
		return result, nil
	}
	return geocode.Result{}, fmt.Errorf("%w for %q", geocode.ErrNoResult, address)
}

func (g *StaticGeocoder) Reverse(ctx context.Context, lat, lon float64) (geocode.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls++
	point := geocode.Point{Lat: lat, Lon: lon}
	if name, ok := g.Places[point]; ok {
		return geocode.Result{Point: point, DisplayAddress: name}, nil
	}
	return geocode.Result{Point: point, DisplayAddress: changes.FormatPoint(lat, lon)}, nil
}

// SentNotification is one call captured by RecordingNotifier.
type SentNotification struct {
	To      notify.Recipient
	Title   string
	Summary changes.Summary
}

// RecordingNotifier keeps every notification instead of sending it.
type RecordingNotifier struct {
	mu   sync.Mutex
	Sent []SentNotification
	Err  error
}

func (n *RecordingNotifier) NotifyEventChanged(ctx context.Context, to notify.Recipient, eventTitle string, summary changes.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, SentNotification{To: to, Title: eventTitle, Summary: summary})
	return n.Err
}

// Notifications returns a copy of the captured calls.
func (n *RecordingNotifier) Notifications() []SentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SentNotification(nil), n.Sent...)
}
