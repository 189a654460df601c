package app

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"pumpconsole/pkg/domain"
	"pumpconsole/pkg/events"
	"pumpconsole/pkg/storage"
	"pumpconsole/services/console/internal/apiclient"
	"pumpconsole/services/console/internal/authstate"
	"pumpconsole/services/console/internal/debounce"
	"pumpconsole/services/console/internal/listview"
	"pumpconsole/services/console/internal/workflow"
)

// List screen names.
const (
	ScreenPumps            = "pumps"
	ScreenParts            = "parts"
	ScreenSoldPumps        = "sold-pumps"
	ScreenAdmins           = "admins"
	ScreenDistributors     = "distributors"
	ScreenServiceReports   = "service-reports"
	ScreenRecentActivities = "recent-activities"
)

const defaultArchiveURLExpiry = 15 * time.Minute

// Config holds runtime dependencies for the console core.
type Config struct {
	Client *apiclient.Client
	Auth   *authstate.Context
	// Archive is optional; without it report PDFs are streamed back directly.
	Archive          storage.ObjectStore
	ArchiveURLExpiry time.Duration
	Events           events.Publisher
	MaxUploadBytes   int64
	SearchDebounce   time.Duration
	AfterFunc        debounce.AfterFunc
	Notifier         listview.Notifier
}

// App wires the list screens, the report wizards and the remaining console
// operations onto one backend client.
type App struct {
	client  *apiclient.Client
	auth    *authstate.Context
	archive storage.ObjectStore
	expiry  time.Duration
	events  events.Publisher
	cfg     Config

	screens   map[string]listview.Controller
	customers *workflow.Autocomplete[domain.Customer]

	mu             sync.Mutex
	machineReports map[string]*listview.Screen[domain.ServiceReport]
	wizards        map[string]*workflow.Wizard

	stopWatch func()
	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) (*App, error) {
	if cfg.Client == nil {
		return nil, errors.New("backend client required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("auth context required")
	}
	if cfg.Events == nil {
		cfg.Events = events.Nop{}
	}
	if cfg.ArchiveURLExpiry <= 0 {
		cfg.ArchiveURLExpiry = defaultArchiveURLExpiry
	}
	if cfg.SearchDebounce <= 0 {
		cfg.SearchDebounce = workflow.DefaultSearchDebounce
	}
	a := &App{
		client:         cfg.Client,
		auth:           cfg.Auth,
		archive:        cfg.Archive,
		expiry:         cfg.ArchiveURLExpiry,
		events:         cfg.Events,
		cfg:            cfg,
		machineReports: make(map[string]*listview.Screen[domain.ServiceReport]),
		wizards:        make(map[string]*workflow.Wizard),
		done:           make(chan struct{}),
	}
	a.screens = a.buildScreens()
	a.customers = workflow.NewAutocomplete[domain.Customer]("customers", cfg.Client.SearchCustomers,
		debounce.NewWithTimer(cfg.SearchDebounce, cfg.AfterFunc))

	changes, cancel := cfg.Auth.Subscribe()
	a.stopWatch = cancel
	go a.watchAuth(changes)
	return a, nil
}

func (a *App) buildScreens() map[string]listview.Controller {
	c := a.client
	notify := listview.WithNotifier(a.cfg.Notifier)
	deleteMachine := listview.WithDelete(c.DeleteMachine)
	deleteUser := listview.WithDelete(c.DeleteUser)
	screens := []listview.Controller{
		listview.New[domain.Machine](ScreenPumps, c.ListPumps, deleteMachine, notify),
		listview.New[domain.Machine](ScreenParts, c.ListParts, deleteMachine, notify),
		listview.New[domain.Machine](ScreenSoldPumps, c.ListSoldPumps, deleteMachine, notify),
		listview.New[domain.User](ScreenAdmins, c.ListAdmins, deleteUser, notify),
		listview.New[domain.User](ScreenDistributors, c.ListDistributors, deleteUser, notify),
		listview.New[domain.ServiceReport](ScreenServiceReports, c.ListServiceReports, notify),
		listview.New[domain.Activity](ScreenRecentActivities, c.RecentActivities, notify),
	}
	out := make(map[string]listview.Controller, len(screens))
	for _, s := range screens {
		out[s.Name()] = s
	}
	return out
}

// watchAuth discards per-operator state once nobody is signed in.
func (a *App) watchAuth(changes <-chan struct{}) {
	for {
		select {
		case <-a.done:
			return
		case <-changes:
			if !a.auth.Loading() && !a.auth.IsAuthenticated() {
				a.dropOperatorState()
			}
		}
	}
}

func (a *App) dropOperatorState() {
	a.mu.Lock()
	wizards := a.wizards
	a.wizards = make(map[string]*workflow.Wizard)
	a.machineReports = make(map[string]*listview.Screen[domain.ServiceReport])
	a.mu.Unlock()
	for _, w := range wizards {
		w.Reset()
	}
	a.customers.Close()
	if len(wizards) > 0 {
		slog.Info("discarded report drafts after sign-out", "count", len(wizards))
	}
}

func (a *App) Auth() *authstate.Context {
	return a.auth
}

// Screen returns the list screen registered under name.
func (a *App) Screen(name string) (listview.Controller, error) {
	s, ok := a.screens[name]
	if !ok {
		return nil, ErrUnknownScreen
	}
	return s, nil
}

func (a *App) ScreenNames() []string {
	names := make([]string, 0, len(a.screens))
	for name := range a.screens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MachineReports returns the service report history screen of one machine.
func (a *App) MachineReports(machineID string) (*listview.Screen[domain.ServiceReport], error) {
	if machineID == "" {
		return nil, ErrIDRequired
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.machineReports[machineID]; ok {
		return s, nil
	}
	fetch := func(ctx context.Context, p domain.ListParams) (domain.Page[domain.ServiceReport], error) {
		return a.client.MachineServiceReports(ctx, machineID, p)
	}
	s := listview.New[domain.ServiceReport]("machine-service-reports", fetch, listview.WithNotifier(a.cfg.Notifier))
	a.machineReports[machineID] = s
	return s, nil
}

// reload refreshes a list after a mutation. Failures are reported through
// the screen's notifier and otherwise ignored.
func (a *App) reload(ctx context.Context, name string) {
	if s, ok := a.screens[name]; ok {
		_ = s.Load(ctx)
	}
}

func (a *App) publish(ctx context.Context, eventType string, payload any) {
	ev := events.New(eventType, payload)
	if err := a.events.Publish(ctx, ev); err != nil {
		slog.Warn("event publish failed", "type", eventType, "event_id", ev.ID, "err", err)
	}
}

// Close drops every wizard and stops watching the auth context.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)
		a.stopWatch()
		a.dropOperatorState()
		err = a.events.Close()
	})
	return err
}
