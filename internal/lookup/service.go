package lookup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/appointment-lookup/internal/meevo"
	"github.com/wolfman30/appointment-lookup/internal/observability/metrics"
	"github.com/wolfman30/appointment-lookup/internal/phone"
	"github.com/wolfman30/appointment-lookup/pkg/logging"
)

var tracer = otel.Tracer("appointment-lookup/internal/lookup")

// ErrMissingContact is returned when a query has neither phone nor email.
var ErrMissingContact = errors.New("lookup: phone or email required")

// Directory is the slice of the Meevo API the lookup needs.
type Directory interface {
	Authenticate(ctx context.Context) error
	ListClients(ctx context.Context, page, perPage int) ([]meevo.ClientSummary, error)
	GetClient(ctx context.Context, clientID string) (*meevo.ClientDetail, error)
	GetBookedServices(ctx context.Context, clientID string) ([]meevo.BookedService, error)
}

// PageRange is a half-open span of listing pages, [Start, End).
type PageRange struct {
	Start int
	End   int
}

// Options tunes the search budget and fan-out widths.
type Options struct {
	PagesPerBatch     int
	ItemsPerPage      int
	MaxBatches        int
	SearchPageTimeout time.Duration // zero leaves only the HTTP client timeout
	PageConcurrency   int

	// LinkedRanges is searched in order; discovery stops after the first
	// range that yields a linked profile.
	LinkedRanges      []PageRange
	LinkedPageBatch   int
	EmptyPageStreak   int
	LinkedPageTimeout time.Duration
	DetailBatch       int
	DetailTimeout     time.Duration
	DetailConcurrency int

	AppointmentTimeout time.Duration
	// Location decides where "today" starts and how zone-less times are read.
	Location *time.Location

	// IsCandidate picks listing entries worth a detail lookup during
	// discovery. Defaults to entries without a phone number.
	IsCandidate func(meevo.ClientSummary) bool
}

// DefaultOptions mirrors the production search budget: 20 batches of 10
// pages of 100 clients, recent pages first for linked profiles.
func DefaultOptions() Options {
	return Options{
		PagesPerBatch:   10,
		ItemsPerPage:    100,
		MaxBatches:      20,
		PageConcurrency: 10,
		LinkedRanges: []PageRange{
			{Start: 150, End: 200},
			{Start: 100, End: 150},
			{Start: 50, End: 100},
			{Start: 1, End: 50},
		},
		LinkedPageBatch:    10,
		EmptyPageStreak:    10,
		LinkedPageTimeout:  3 * time.Second,
		DetailBatch:        50,
		DetailTimeout:      2 * time.Second,
		DetailConcurrency:  50,
		AppointmentTimeout: 5 * time.Second,
		Location:           time.Local,
		IsCandidate:        WithoutPhone,
	}
}

// WithoutPhone treats phone-less clients as likely dependents. Clients who
// register themselves carry their own number.
func WithoutPhone(c meevo.ClientSummary) bool {
	return strings.TrimSpace(c.PrimaryPhoneNumber) == ""
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PagesPerBatch <= 0 {
		o.PagesPerBatch = d.PagesPerBatch
	}
	if o.ItemsPerPage <= 0 {
		o.ItemsPerPage = d.ItemsPerPage
	}
	if o.MaxBatches <= 0 {
		o.MaxBatches = d.MaxBatches
	}
	if o.PageConcurrency <= 0 {
		o.PageConcurrency = d.PageConcurrency
	}
	if len(o.LinkedRanges) == 0 {
		o.LinkedRanges = d.LinkedRanges
	}
	if o.LinkedPageBatch <= 0 {
		o.LinkedPageBatch = d.LinkedPageBatch
	}
	if o.EmptyPageStreak <= 0 {
		o.EmptyPageStreak = d.EmptyPageStreak
	}
	if o.DetailBatch <= 0 {
		o.DetailBatch = d.DetailBatch
	}
	if o.DetailConcurrency <= 0 {
		o.DetailConcurrency = d.DetailConcurrency
	}
	if o.Location == nil {
		o.Location = d.Location
	}
	if o.IsCandidate == nil {
		o.IsCandidate = d.IsCandidate
	}
	return o
}

// Query is what the caller gave us to identify themselves.
type Query struct {
	Phone string
	Email string
}

// empty is true only when both fields are absent. Whitespace counts as given.
func (q Query) empty() bool {
	return q.Phone == "" && q.Email == ""
}

// Result is the assembled answer for one lookup.
type Result struct {
	Found              bool
	ClientID           string
	ClientName         string
	Appointments       []Appointment
	LinkedProfiles     []LinkedProfile
	LinkedAppointments int
	Search             SearchReport
	Linked             LinkedReport
}

// Message is the sentence read back to the caller.
func (r *Result) Message() string {
	if !r.Found {
		return "No client found with that phone number or email"
	}
	msg := fmt.Sprintf("Found %d upcoming appointment(s)", len(r.Appointments))
	if len(r.LinkedProfiles) > 0 {
		msg += fmt.Sprintf(" (including %d for linked profiles)", r.LinkedAppointments)
	}
	return msg
}

// Service finds a caller in Meevo and gathers their upcoming appointments
// together with those of their linked profiles.
type Service struct {
	dir     Directory
	opts    Options
	logger  *logging.Logger
	metrics *metrics.LookupMetrics
	now     func() time.Time
}

// NewService wires a lookup service. Zero-valued options take defaults.
func NewService(dir Directory, opts Options, m *metrics.LookupMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		dir:     dir,
		opts:    opts.withDefaults(),
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Lookup runs the full flow: authenticate, find the caller, collect their
// appointments, discover linked profiles and collect theirs.
func (s *Service) Lookup(ctx context.Context, q Query) (*Result, error) {
	if q.empty() {
		return nil, ErrMissingContact
	}

	ctx, span := tracer.Start(ctx, "lookup.lookup")
	defer span.End()

	if err := s.dir.Authenticate(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	match, search := s.FindClient(ctx, q)
	if search.Stop == StopCancelled {
		return nil, ctx.Err()
	}
	if match == nil {
		s.logger.Info("lookup: no client matched",
			"pages_scanned", search.PagesScanned,
			"failed_pages", search.FailedPages,
			"stop", string(search.Stop),
		)
		span.SetAttributes(attribute.Bool("lookup.found", false))
		return &Result{Found: false, Search: search}, nil
	}

	name := match.FullName()
	s.logger.Info("lookup: client found", "client_id", match.ClientID, "client_name", name)
	span.SetAttributes(attribute.Bool("lookup.found", true), attribute.String("lookup.client_id", match.ClientID))

	own := s.Appointments(ctx, match.ClientID, name)

	linked, linkedReport := s.FindLinked(ctx, match.ClientID)
	perProfile := fanOut(ctx, s.opts.PageConcurrency, len(linked), func(ctx context.Context, i int) []Appointment {
		return s.Appointments(ctx, linked[i].ClientID, linked[i].Name)
	})

	all := make([]Appointment, 0, len(own))
	all = append(all, own...)
	linkedCount := 0
	for _, appts := range perProfile {
		linkedCount += len(appts)
		all = append(all, appts...)
	}
	slices.SortStableFunc(all, func(a, b Appointment) int {
		return a.StartsAt.Compare(b.StartsAt)
	})

	s.logger.Info("lookup: appointments assembled",
		"client_id", match.ClientID,
		"caller_appointments", len(own),
		"linked_appointments", linkedCount,
		"linked_profiles", len(linked),
	)
	span.SetAttributes(
		attribute.Int("lookup.appointments", len(all)),
		attribute.Int("lookup.linked_profiles", len(linked)),
	)

	return &Result{
		Found:              true,
		ClientID:           match.ClientID,
		ClientName:         name,
		Appointments:       all,
		LinkedProfiles:     linked,
		LinkedAppointments: linkedCount,
		Search:             search,
		Linked:             linkedReport,
	}, nil
}

// pageResult keeps "the page was empty" apart from "the page failed".
type pageResult struct {
	page    int
	clients []meevo.ClientSummary
	err     error
}

func (s *Service) fetchPages(ctx context.Context, phase string, pages []int, timeout time.Duration) []pageResult {
	return fanOut(ctx, s.opts.PageConcurrency, len(pages), func(ctx context.Context, i int) pageResult {
		page := pages[i]
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		clients, err := s.dir.ListClients(ctx, page, s.opts.ItemsPerPage)
		switch {
		case err != nil:
			s.metrics.ObservePage(phase, "error")
			s.logger.Debug("lookup: listing page failed", "phase", phase, "page", page, "error", err)
			return pageResult{page: page, err: err}
		case len(clients) == 0:
			s.metrics.ObservePage(phase, "empty")
		default:
			s.metrics.ObservePage(phase, "ok")
		}
		return pageResult{page: page, clients: clients}
	})
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// matcher compares listing entries against a normalized query.
type matcher struct {
	phone string
	email string
}

func newMatcher(q Query) matcher {
	return matcher{
		phone: phone.Normalize(q.Phone),
		email: strings.ToLower(strings.TrimSpace(q.Email)),
	}
}

// usable is false when nothing in the query can ever match, e.g. a phone
// string without digits.
func (m matcher) usable() bool {
	return m.phone != "" || m.email != ""
}

func (m matcher) matches(c meevo.ClientSummary) bool {
	if m.phone != "" && phone.Equal(m.phone, c.PrimaryPhoneNumber) {
		return true
	}
	if m.email != "" && strings.ToLower(strings.TrimSpace(c.EmailAddress)) == m.email {
		return true
	}
	return false
}
