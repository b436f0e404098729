package lookup

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/appointment-lookup/internal/meevo"
	"github.com/wolfman30/appointment-lookup/pkg/logging"
)

// fakeDirectory is an in-memory Meevo stand-in that records every call.
type fakeDirectory struct {
	mu sync.Mutex

	// pageFunc, when set, serves pages not present in pages.
	pageFunc    func(page int) []meevo.ClientSummary
	pages       map[int][]meevo.ClientSummary
	pageErr     map[int]error
	details     map[string]*meevo.ClientDetail
	detailErr   map[string]error
	services    map[string][]meevo.BookedService
	servicesErr map[string]error
	authErr     error

	listCalls    []int
	detailCalls  []string
	serviceCalls []string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		pages:       map[int][]meevo.ClientSummary{},
		pageErr:     map[int]error{},
		details:     map[string]*meevo.ClientDetail{},
		detailErr:   map[string]error{},
		services:    map[string][]meevo.BookedService{},
		servicesErr: map[string]error{},
	}
}

func (f *fakeDirectory) Authenticate(context.Context) error {
	return f.authErr
}

func (f *fakeDirectory) ListClients(ctx context.Context, page, perPage int) ([]meevo.ClientSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, page)
	if err := f.pageErr[page]; err != nil {
		return nil, err
	}
	if clients, ok := f.pages[page]; ok {
		return clients, nil
	}
	if f.pageFunc != nil {
		return f.pageFunc(page), nil
	}
	return nil, nil
}

func (f *fakeDirectory) GetClient(ctx context.Context, clientID string) (*meevo.ClientDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls = append(f.detailCalls, clientID)
	if err := f.detailErr[clientID]; err != nil {
		return nil, err
	}
	if d, ok := f.details[clientID]; ok {
		return d, nil
	}
	return &meevo.ClientDetail{ClientID: clientID}, nil
}

func (f *fakeDirectory) GetBookedServices(ctx context.Context, clientID string) ([]meevo.BookedService, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serviceCalls = append(f.serviceCalls, clientID)
	if err := f.servicesErr[clientID]; err != nil {
		return nil, err
	}
	return f.services[clientID], nil
}

func (f *fakeDirectory) listedPages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]int(nil), f.listCalls...)
	sort.Ints(out)
	return out
}

func (f *fakeDirectory) detailCount(clientID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.detailCalls {
		if id == clientID {
			n++
		}
	}
	return n
}

// fillPages gives pages [from, to] n adult clients each, all with phones.
func (f *fakeDirectory) fillPages(from, to, n int) {
	for p := from; p <= to; p++ {
		f.pages[p] = adults(p, n)
	}
}

func adults(page, n int) []meevo.ClientSummary {
	out := make([]meevo.ClientSummary, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, meevo.ClientSummary{
			ClientID:           fmt.Sprintf("p%d-c%d", page, i),
			FirstName:          "Client",
			LastName:           fmt.Sprintf("%d-%d", page, i),
			PrimaryPhoneNumber: fmt.Sprintf("480%03d%04d", page, i),
			EmailAddress:       fmt.Sprintf("client%d.%d@example.com", page, i),
		})
	}
	return out
}

var phoenix = time.FixedZone("MST", -7*60*60)

func testNow() time.Time {
	return time.Date(2026, 10, 18, 14, 0, 0, 0, phoenix)
}

func newTestService(dir Directory, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = phoenix
	}
	svc := NewService(dir, opts, nil, logging.NewWithWriter("error", io.Discard))
	svc.now = testNow
	return svc
}
