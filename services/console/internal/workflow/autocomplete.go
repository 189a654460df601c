package workflow

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"pumpconsole/pkg/domain"
	"pumpconsole/services/console/internal/debounce"
)

const (
	MinQueryLength        = 2
	DefaultSearchDebounce = 300 * time.Millisecond
	searchTimeout         = 10 * time.Second
)

// LookupFunc runs one remote search.
type LookupFunc[T any] func(ctx context.Context, query string) ([]T, error)

// Suggestions is the latest result set of an Autocomplete.
type Suggestions[T any] struct {
	Query   string `json:"query"`
	Results []T    `json:"results"`
	Pending bool   `json:"pending"`
}

// Autocomplete is a debounced search-as-you-type box. Queries shorter than
// MinQueryLength clear the results without a remote call, and a failed
// search yields no results rather than an error.
type Autocomplete[T any] struct {
	name     string
	lookup   LookupFunc[T]
	debounce *debounce.Debouncer

	mu      sync.Mutex
	query   string
	results []T
}

func NewAutocomplete[T any](name string, lookup LookupFunc[T], d *debounce.Debouncer) *Autocomplete[T] {
	if d == nil {
		d = debounce.New(DefaultSearchDebounce)
	}
	return &Autocomplete[T]{name: name, lookup: lookup, debounce: d, results: []T{}}
}

// NewPartSearch builds the part picker used on the parts step.
func NewPartSearch(search func(ctx context.Context, q string) ([]domain.PartOption, error), d *debounce.Debouncer) *Autocomplete[domain.PartOption] {
	return NewAutocomplete[domain.PartOption]("parts", search, d)
}

// Input records a keystroke. Only the last input within the debounce window
// reaches the backend.
func (a *Autocomplete[T]) Input(query string) {
	query = strings.TrimSpace(query)
	a.mu.Lock()
	a.query = query
	a.mu.Unlock()

	if utf8.RuneCountInString(query) < MinQueryLength {
		a.debounce.Cancel()
		a.mu.Lock()
		a.results = []T{}
		a.mu.Unlock()
		return
	}
	a.debounce.Trigger(func() { a.run(query) })
}

func (a *Autocomplete[T]) run(query string) {
	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()
	results, err := a.lookup(ctx, query)
	if err != nil {
		slog.Debug("autocomplete search failed", "box", a.name, "query", query, "err", err)
		results = nil
	}
	if results == nil {
		results = []T{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.query != query {
		return
	}
	a.results = results
}

// Flush issues the pending search immediately.
func (a *Autocomplete[T]) Flush() {
	a.debounce.Flush()
}

// Suggestions reports Pending while a search is either waiting out the
// debounce window or still running.
func (a *Autocomplete[T]) Suggestions() Suggestions[T] {
	pending := a.debounce.Pending()
	a.mu.Lock()
	defer a.mu.Unlock()
	return Suggestions[T]{
		Query:   a.query,
		Results: append([]T{}, a.results...),
		Pending: pending,
	}
}

// Close drops any pending search.
func (a *Autocomplete[T]) Close() {
	a.debounce.Cancel()
}
