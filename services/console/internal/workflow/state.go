package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"pumpconsole/pkg/domain"
)

var (
	ErrMachineRequired   = errors.New("find a machine before continuing")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAttachmentType    = errors.New("only image files or PDF documents can be uploaded")
	ErrAttachmentTooBig  = errors.New("attachment exceeds the upload limit")
	ErrAttachmentInvalid = errors.New("invalid attachment")
)

type Step string

const (
	StepFindMachine          Step = "find_machine"
	StepCustomerRegistration Step = "customer_registration"
	StepServiceDetails       Step = "service_details"
	StepProblemSolution      Step = "problem_solution"
	StepPartsAndFiles        Step = "parts_and_files"
	StepSubmitted            Step = "submitted"
)

// State is the current position of the wizard. Each step is its own type so
// that step-specific data only exists where it is meaningful.
type State interface {
	Step() Step
	isState()
}

// FindMachine waits for a serial number lookup.
type FindMachine struct{}

// CustomerRegistration blocks the wizard until the found machine has a
// customer.
type CustomerRegistration struct {
	Machine domain.Machine
}

type ServiceDetails struct{}

type ProblemSolution struct{}

type PartsAndFiles struct{}

// Submitted is terminal; only Reset leaves it.
type Submitted struct {
	Report domain.ServiceReport
}

func (FindMachine) Step() Step          { return StepFindMachine }
func (CustomerRegistration) Step() Step { return StepCustomerRegistration }
func (ServiceDetails) Step() Step       { return StepServiceDetails }
func (ProblemSolution) Step() Step      { return StepProblemSolution }
func (PartsAndFiles) Step() Step        { return StepPartsAndFiles }
func (Submitted) Step() Step            { return StepSubmitted }

func (FindMachine) isState()          {}
func (CustomerRegistration) isState() {}
func (ServiceDetails) isState()       {}
func (ProblemSolution) isState()      {}
func (PartsAndFiles) isState()        {}
func (Submitted) isState()            {}

// PartItem is one parts-used line of the draft.
type PartItem struct {
	PartID   string `json:"part_id"`
	PartNo   string `json:"part_no,omitempty"`
	Quantity int    `json:"quantity"`
}

// Attachment is a file staged for upload.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	data        []byte
}

// Draft is everything collected so far.
type Draft struct {
	ID                string          `json:"id"`
	Serial            string          `json:"serial_no,omitempty"`
	Machine           *domain.Machine `json:"machine,omitempty"`
	ServiceTypeID     string          `json:"service_type_id,omitempty"`
	ServicePersonName string          `json:"service_person_name,omitempty"`
	Problem           string          `json:"problem,omitempty"`
	Solution          string          `json:"solution,omitempty"`
	Parts             []PartItem      `json:"parts"`
	Files             []Attachment    `json:"files"`
}

func (d Draft) clone() Draft {
	out := d
	if d.Machine != nil {
		m := *d.Machine
		out.Machine = &m
	}
	out.Parts = append([]PartItem{}, d.Parts...)
	out.Files = append([]Attachment{}, d.Files...)
	return out
}

// ValidationError lists per-field messages for a rejected step.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, ", ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalidTransition(op string, from Step) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, from)
}
