package listview

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"pumpconsole/pkg/domain"
	"pumpconsole/services/console/internal/apiclient"
)

var ErrDeleteUnsupported = errors.New("delete not supported on this list")

// Fetcher loads one page of a remote collection.
type Fetcher[T any] func(ctx context.Context, p domain.ListParams) (domain.Page[T], error)

// Deleter removes one record by id.
type Deleter func(ctx context.Context, id string) error

// ConfirmFunc asks the operator to confirm deleting id.
type ConfirmFunc func(id string) bool

// Notifier receives non-blocking failure notifications.
type Notifier func(screen string, err error)

type Query struct {
	Page      int    `json:"page"`
	PageSize  int    `json:"pageSize"`
	SortField string `json:"sortField"`
	SortOrder string `json:"sortOrder"`
	Search    string `json:"search,omitempty"`
}

func defaultQuery() Query {
	return Query{
		Page:      domain.DefaultPage,
		PageSize:  domain.DefaultLimit,
		SortField: domain.DefaultSortBy,
		SortOrder: domain.DefaultSortOrder,
	}
}

func (q Query) params() domain.ListParams {
	return domain.ListParams{
		Page:      q.Page,
		Limit:     q.PageSize,
		SortBy:    q.SortField,
		SortOrder: q.SortOrder,
		Search:    q.Search,
	}.Normalize()
}

func (q Query) normalize() Query {
	p := q.params()
	return Query{Page: p.Page, PageSize: p.Limit, SortField: p.SortBy, SortOrder: p.SortOrder, Search: p.Search}
}

// View is what a list screen renders.
type View[T any] struct {
	Screen     string            `json:"screen"`
	Items      []T               `json:"items"`
	Pagination domain.Pagination `json:"pagination"`
	Query      Query             `json:"query"`
	Loading    bool              `json:"loading"`
	Error      string            `json:"error,omitempty"`
}

type Option func(*options)

type options struct {
	deleter  Deleter
	notifier Notifier
	pageSize int
}

func WithDelete(d Deleter) Option {
	return func(o *options) { o.deleter = d }
}

func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

func WithPageSize(n int) Option {
	return func(o *options) { o.pageSize = n }
}

// Screen is a searchable, sortable, paginated view over a remote collection.
// A failed load keeps the last good page. Overlapping loads are not
// coalesced; whichever response arrives last is shown.
type Screen[T any] struct {
	name     string
	fetch    Fetcher[T]
	deleter  Deleter
	notifier Notifier

	mu       sync.Mutex
	query    Query
	items    []T
	total    int
	inflight int
	lastErr  error
}

func New[T any](name string, fetch Fetcher[T], opts ...Option) *Screen[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	q := defaultQuery()
	if o.pageSize > 0 {
		q.PageSize = o.pageSize
	}
	return &Screen[T]{
		name:     name,
		fetch:    fetch,
		deleter:  o.deleter,
		notifier: o.notifier,
		query:    q,
		items:    []T{},
	}
}

func (s *Screen[T]) Name() string { return s.name }

// Load fetches the page described by the current query.
func (s *Screen[T]) Load(ctx context.Context) error {
	s.mu.Lock()
	q := s.query
	s.inflight++
	s.mu.Unlock()

	page, err := s.fetch(ctx, q.params())

	s.mu.Lock()
	s.inflight--
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		s.notify(err)
		return err
	}
	s.items = page.Items
	if s.items == nil {
		s.items = []T{}
	}
	s.total = page.Total
	s.lastErr = nil
	s.mu.Unlock()
	return nil
}

// Search filters by text and goes back to the first page.
func (s *Screen[T]) Search(ctx context.Context, text string) error {
	s.mu.Lock()
	s.query.Search = strings.TrimSpace(text)
	s.query.Page = 1
	s.mu.Unlock()
	return s.Load(ctx)
}

func (s *Screen[T]) Sort(ctx context.Context, field, order string) error {
	s.mu.Lock()
	q := s.query
	q.SortField = field
	q.SortOrder = order
	s.query = q.normalize()
	s.mu.Unlock()
	return s.Load(ctx)
}

func (s *Screen[T]) Paginate(ctx context.Context, page, pageSize int) error {
	s.mu.Lock()
	q := s.query
	q.Page = page
	if pageSize > 0 {
		q.PageSize = pageSize
	}
	s.query = q.normalize()
	s.mu.Unlock()
	return s.Load(ctx)
}

// Apply replaces the whole query and reloads. A changed search text resets
// the page to 1.
func (s *Screen[T]) Apply(ctx context.Context, q Query) error {
	q = q.normalize()
	s.mu.Lock()
	if q.Search != s.query.Search {
		q.Page = 1
	}
	s.query = q
	s.mu.Unlock()
	return s.Load(ctx)
}

// Delete removes id after confirm approves it, then reloads. It reports
// whether the delete was carried out.
func (s *Screen[T]) Delete(ctx context.Context, id string, confirm ConfirmFunc) (bool, error) {
	if s.deleter == nil {
		return false, ErrDeleteUnsupported
	}
	if confirm == nil || !confirm(id) {
		return false, nil
	}
	if err := s.deleter(ctx, id); err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.notify(err)
		return false, err
	}
	slog.Info("record deleted", "screen", s.name, "id", id)
	if err := s.Load(ctx); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Screen[T]) Query() Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Snapshot returns the current view state.
func (s *Screen[T]) Snapshot() View[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]T, len(s.items))
	copy(items, s.items)
	v := View[T]{
		Screen: s.name,
		Items:  items,
		Pagination: domain.Pagination{
			Current:  s.query.Page,
			PageSize: s.query.PageSize,
			Total:    s.total,
		},
		Query:   s.query,
		Loading: s.inflight > 0,
	}
	if s.lastErr != nil {
		v.Error = apiclient.Message(s.lastErr, "Failed to load data")
	}
	return v
}

// View is Snapshot without the type parameter.
func (s *Screen[T]) View() any {
	return s.Snapshot()
}

func (s *Screen[T]) notify(err error) {
	if s.notifier != nil {
		s.notifier(s.name, err)
		return
	}
	slog.Warn("list load failed", "screen", s.name, "err", err)
}

// Controller is a Screen with its item type erased.
type Controller interface {
	Name() string
	Load(ctx context.Context) error
	Search(ctx context.Context, text string) error
	Sort(ctx context.Context, field, order string) error
	Paginate(ctx context.Context, page, pageSize int) error
	Apply(ctx context.Context, q Query) error
	Delete(ctx context.Context, id string, confirm ConfirmFunc) (bool, error)
	Query() Query
	View() any
}

var _ Controller = (*Screen[domain.Machine])(nil)
