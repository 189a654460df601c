package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"pumpconsole/pkg/domain"
	"pumpconsole/services/console/internal/apiclient"
	"pumpconsole/services/console/internal/debounce"
)

var ErrCustomerRequired = errors.New("register the customer before continuing")

// Backend is the remote API surface the wizard drives.
type Backend interface {
	MachineBySerial(ctx context.Context, serial string) (*domain.Machine, error)
	RegisterCustomer(ctx context.Context, machineID string, c domain.Customer) (*domain.Machine, error)
	ServiceTypes(ctx context.Context) []domain.ServiceType
	CreateServiceReport(ctx context.Context, in apiclient.ServiceReportInput) (*domain.ServiceReport, error)
	SearchParts(ctx context.Context, query string) ([]domain.PartOption, error)
}

type Config struct {
	Backend        Backend
	MaxUploadBytes int64
	SearchDebounce time.Duration
	// AfterFunc overrides the timer used by the part search debounce.
	AfterFunc            debounce.AfterFunc
	OnSubmitted          func(ctx context.Context, report domain.ServiceReport, draft Draft)
	OnCustomerRegistered func(ctx context.Context, machine domain.Machine)
}

// Wizard drives the creation of one service report. Remote calls made by a
// transition hold the wizard, so a second submit waits for the first.
type Wizard struct {
	id    string
	cfg   Config
	parts *Autocomplete[domain.PartOption]

	mu           sync.Mutex
	state        State
	draft        Draft
	serviceTypes []domain.ServiceType
}

func New(cfg Config) *Wizard {
	window := cfg.SearchDebounce
	if window <= 0 {
		window = DefaultSearchDebounce
	}
	w := &Wizard{
		id:    uuid.NewString(),
		cfg:   cfg,
		state: FindMachine{},
		draft: newDraft(),
	}
	w.parts = NewPartSearch(cfg.Backend.SearchParts, debounce.NewWithTimer(window, cfg.AfterFunc))
	return w
}

func newDraft() Draft {
	return Draft{ID: uuid.NewString(), Parts: []PartItem{}, Files: []Attachment{}}
}

// Start loads the service type choices.
func (w *Wizard) Start(ctx context.Context) {
	types := w.cfg.Backend.ServiceTypes(ctx)
	w.mu.Lock()
	w.serviceTypes = types
	w.mu.Unlock()
}

// ID identifies the wizard for its whole life. Draft ids change after a
// submit or reset.
func (w *Wizard) ID() string {
	return w.id
}

func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// PartSearch is the debounced part picker.
func (w *Wizard) PartSearch() *Autocomplete[domain.PartOption] {
	return w.parts
}

// LookupMachine resolves serial to a machine. A machine without a customer
// leads to customer registration; otherwise the wizard moves on to the
// service details. An unknown serial leaves the wizard where it is.
func (w *Wizard) LookupMachine(ctx context.Context, serial string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.state.(FindMachine); !ok {
		return invalidTransition("lookup", w.state.Step())
	}
	serial = strings.TrimSpace(serial)
	if serial == "" {
		v := &ValidationError{}
		v.add("serial_no", "Please enter a serial number")
		return v
	}
	machine, err := w.cfg.Backend.MachineBySerial(ctx, serial)
	if err != nil {
		w.draft.Serial = ""
		w.draft.Machine = nil
		if apiclient.IsNotFound(err) {
			slog.Info("machine lookup miss", "serial", serial)
		} else {
			slog.Warn("machine lookup failed", "serial", serial, "err", err)
		}
		return err
	}
	w.draft.Serial = serial
	w.draft.Machine = machine
	w.state = w.afterMachine()
	return nil
}

func (w *Wizard) afterMachine() State {
	if !w.draft.Machine.HasCustomer() {
		return CustomerRegistration{Machine: *w.draft.Machine}
	}
	return ServiceDetails{}
}

// RegisterCustomer attaches c to the found machine and unblocks the wizard.
// On failure the registration form stays up with its data.
func (w *Wizard) RegisterCustomer(ctx context.Context, c domain.Customer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	reg, ok := w.state.(CustomerRegistration)
	if !ok {
		return invalidTransition("register customer", w.state.Step())
	}
	c = trimCustomer(c)
	if err := ValidateCustomer(c); err != nil {
		return err
	}
	sold, err := w.cfg.Backend.RegisterCustomer(ctx, reg.Machine.Key(), c)
	if err != nil {
		slog.Warn("customer registration failed", "machine_id", reg.Machine.Key(), "err", err)
		return err
	}
	machine := reg.Machine
	if sold != nil && sold.HasCustomer() {
		machine = *sold
		if machine.Key() == "" {
			machine.ID = reg.Machine.Key()
		}
	} else {
		machine.AttachCustomer(c)
	}
	w.draft.Machine = &machine
	w.state = ServiceDetails{}
	slog.Info("customer registered", "machine_id", machine.Key())
	if w.cfg.OnCustomerRegistered != nil {
		w.cfg.OnCustomerRegistered(ctx, machine)
	}
	return nil
}

// CancelRegistration discards the found machine and returns to the lookup.
func (w *Wizard) CancelRegistration() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.state.(CustomerRegistration); !ok {
		return invalidTransition("cancel registration", w.state.Step())
	}
	w.cancelRegistrationLocked()
	return nil
}

func (w *Wizard) cancelRegistrationLocked() {
	w.draft.Machine = nil
	w.draft.Serial = ""
	w.state = FindMachine{}
}

func (w *Wizard) SetServiceDetails(serviceTypeID, personName string) error {
	return w.edit(func(d *Draft) {
		d.ServiceTypeID = strings.TrimSpace(serviceTypeID)
		d.ServicePersonName = strings.TrimSpace(personName)
	})
}

func (w *Wizard) SetProblemSolution(problem, solution string) error {
	return w.edit(func(d *Draft) {
		d.Problem = strings.TrimSpace(problem)
		d.Solution = strings.TrimSpace(solution)
	})
}

// SetParts replaces all part lines.
func (w *Wizard) SetParts(parts []PartItem) error {
	return w.edit(func(d *Draft) {
		d.Parts = append([]PartItem{}, parts...)
	})
}

func (w *Wizard) AddPart(p PartItem) error {
	return w.edit(func(d *Draft) {
		d.Parts = append(d.Parts, p)
	})
}

func (w *Wizard) RemovePart(index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.state.(Submitted); ok {
		return invalidTransition("remove part", StepSubmitted)
	}
	if index < 0 || index >= len(w.draft.Parts) {
		return fmt.Errorf("part line %d does not exist", index)
	}
	w.draft.Parts = append(w.draft.Parts[:index:index], w.draft.Parts[index+1:]...)
	return nil
}

// AttachFile validates and stages a file for upload.
func (w *Wizard) AttachFile(filename, contentType string, data []byte) (Attachment, error) {
	att, err := ValidateAttachment(filename, contentType, data, w.cfg.MaxUploadBytes)
	if err != nil {
		return Attachment{}, err
	}
	att.ID = uuid.NewString()
	if err := w.edit(func(d *Draft) { d.Files = append(d.Files, att) }); err != nil {
		return Attachment{}, err
	}
	return att, nil
}

func (w *Wizard) RemoveFile(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.state.(Submitted); ok {
		return invalidTransition("remove file", StepSubmitted)
	}
	for i, f := range w.draft.Files {
		if f.ID == id {
			w.draft.Files = append(w.draft.Files[:i:i], w.draft.Files[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("attachment %s not found", id)
}

func (w *Wizard) edit(fn func(*Draft)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.state.(Submitted); ok {
		return invalidTransition("edit", StepSubmitted)
	}
	fn(&w.draft)
	return nil
}

// Next advances one step after validating the fields of the step being
// left. Rejected moves keep all entered data.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state.(type) {
	case FindMachine:
		if w.draft.Machine == nil {
			return ErrMachineRequired
		}
		w.state = w.afterMachine()
	case CustomerRegistration:
		return ErrCustomerRequired
	case ServiceDetails:
		if err := validateServiceDetails(w.draft); err != nil {
			return err
		}
		w.state = ProblemSolution{}
	case ProblemSolution:
		if err := validateProblemSolution(w.draft); err != nil {
			return err
		}
		w.state = PartsAndFiles{}
	default:
		return invalidTransition("next", w.state.Step())
	}
	return nil
}

// Back revisits the previous step. Completed lookups and registrations are
// not repeated; backing out of registration cancels it.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state.(type) {
	case CustomerRegistration:
		w.cancelRegistrationLocked()
	case ServiceDetails:
		w.state = FindMachine{}
	case ProblemSolution:
		w.state = ServiceDetails{}
	case PartsAndFiles:
		w.state = ProblemSolution{}
	default:
		return invalidTransition("back", w.state.Step())
	}
	return nil
}

// Submit posts the report in a single multipart request. On success the
// draft is cleared and the wizard is Submitted; on failure nothing changes
// so the operator can retry.
func (w *Wizard) Submit(ctx context.Context) (*domain.ServiceReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.state.(PartsAndFiles); !ok {
		return nil, invalidTransition("submit", w.state.Step())
	}
	if w.draft.Machine == nil {
		return nil, ErrMachineRequired
	}
	if err := validateDraft(w.draft); err != nil {
		return nil, err
	}

	in := buildInput(w.draft)
	report, err := w.cfg.Backend.CreateServiceReport(ctx, in)
	if err != nil {
		slog.Warn("service report submit failed", "draft_id", w.draft.ID, "machine_id", in.MachineID, "err", err)
		return nil, err
	}
	if report == nil {
		report = &domain.ServiceReport{}
	}
	if report.MachineID == "" {
		report.MachineID = in.MachineID
	}
	submitted := w.draft.clone()
	w.state = Submitted{Report: *report}
	w.draft = newDraft()
	w.parts.Close()
	slog.Info("service report created", "report_id", report.ID, "machine_id", in.MachineID, "files", len(in.Files))
	if w.cfg.OnSubmitted != nil {
		w.cfg.OnSubmitted(ctx, *report, submitted)
	}
	return report, nil
}

func validateDraft(d Draft) error {
	all := &ValidationError{}
	for _, check := range []func(Draft) error{validateServiceDetails, validateProblemSolution, validatePartsAndFiles} {
		var v *ValidationError
		if err := check(d); errors.As(err, &v) {
			for field, msg := range v.Fields {
				all.add(field, msg)
			}
		}
	}
	return all.orNil()
}

func buildInput(d Draft) apiclient.ServiceReportInput {
	serial := d.Serial
	if serial == "" {
		serial = d.Machine.SerialNo
	}
	in := apiclient.ServiceReportInput{
		MachineID:         d.Machine.Key(),
		MachineSerialNo:   serial,
		ServiceTypeID:     d.ServiceTypeID,
		ServicePersonName: d.ServicePersonName,
		Problem:           d.Problem,
		Solution:          d.Solution,
		IdempotencyKey:    d.ID,
	}
	for _, p := range d.Parts {
		in.Parts = append(in.Parts, domain.PartLine{PartID: p.PartID, Quantity: p.Quantity})
	}
	for _, f := range d.Files {
		in.Files = append(in.Files, apiclient.FormFile{Filename: f.Filename, ContentType: f.ContentType, Data: f.data})
	}
	return in
}

// Reset abandons the draft and starts over.
func (w *Wizard) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = FindMachine{}
	w.draft = newDraft()
	w.parts.Close()
}

// Snapshot is the renderable state of the wizard.
type Snapshot struct {
	ID           string                         `json:"id"`
	Step         Step                           `json:"step"`
	Draft        Draft                          `json:"draft"`
	ServiceTypes []domain.ServiceType           `json:"service_types"`
	Report       *domain.ServiceReport          `json:"report,omitempty"`
	PartSearch   Suggestions[domain.PartOption] `json:"part_search"`
}

func (w *Wizard) Snapshot() Snapshot {
	suggestions := w.parts.Suggestions()
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Snapshot{
		ID:           w.id,
		Step:         w.state.Step(),
		Draft:        w.draft.clone(),
		ServiceTypes: append([]domain.ServiceType{}, w.serviceTypes...),
		PartSearch:   suggestions,
	}
	if sub, ok := w.state.(Submitted); ok {
		r := sub.Report
		s.Report = &r
	}
	return s
}

func trimCustomer(c domain.Customer) domain.Customer {
	return domain.Customer{
		CustomerName:    strings.TrimSpace(c.CustomerName),
		CustomerCompany: strings.TrimSpace(c.CustomerCompany),
		CustomerContact: strings.TrimSpace(c.CustomerContact),
		CustomerEmail:   strings.TrimSpace(c.CustomerEmail),
		CustomerAddress: strings.TrimSpace(c.CustomerAddress),
	}
}
