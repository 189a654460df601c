package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pumpconsole/pkg/domain"
	"pumpconsole/pkg/events"
	"pumpconsole/services/console/internal/apiclient"
	"pumpconsole/services/console/internal/workflow"
)

// Machine kinds accepted by CreateMachine.
const (
	KindPump = "pumps"
	KindPart = "parts"
)

// CreateMachine creates a pump or a part. Attached files must be images or
// PDF documents.
func (a *App) CreateMachine(ctx context.Context, kind string, in apiclient.MachineInput) (*domain.Machine, error) {
	in.SerialNo = strings.TrimSpace(in.SerialNo)
	in.PartNo = strings.TrimSpace(in.PartNo)
	in.ModelNo = strings.TrimSpace(in.ModelNo)
	if err := requireMachineFields(in.PartNo, in.ModelNo); err != nil {
		return nil, err
	}
	if err := a.checkFiles(in.Files); err != nil {
		return nil, err
	}
	var (
		machine *domain.Machine
		err     error
		screen  string
	)
	switch kind {
	case KindPump:
		machine, err = a.client.CreatePump(ctx, in)
		screen = ScreenPumps
	case KindPart:
		machine, err = a.client.CreatePart(ctx, in)
		screen = ScreenParts
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMachineKind, kind)
	}
	if err != nil {
		slog.Warn("machine create failed", "kind", kind, "part_no", in.PartNo, "err", err)
		return nil, err
	}
	slog.Info("machine created", "kind", kind, "machine_id", machine.Key())
	a.reload(ctx, screen)
	return machine, nil
}

// CreateSoldPump creates a pump already sold to a customer. A missing model
// number is filled in from the part number; when none is registered the
// pump is not created.
func (a *App) CreateSoldPump(ctx context.Context, in apiclient.SoldPumpInput) (*domain.Machine, error) {
	in.SerialNo = strings.TrimSpace(in.SerialNo)
	in.PartNo = strings.TrimSpace(in.PartNo)
	in.ModelNo = strings.TrimSpace(in.ModelNo)
	if in.PartNo != "" && in.ModelNo == "" {
		model, err := a.client.ModelFromPart(ctx, in.PartNo)
		if err != nil {
			return nil, err
		}
		in.ModelNo = model
	}
	if err := requireMachineFields(in.PartNo, in.ModelNo); err != nil {
		return nil, err
	}
	if err := workflow.ValidateCustomer(in.Customer); err != nil {
		return nil, err
	}
	machine, err := a.client.CreateSoldPump(ctx, in)
	if err != nil {
		slog.Warn("sold pump create failed", "part_no", in.PartNo, "err", err)
		return nil, err
	}
	slog.Info("sold pump created", "machine_id", machine.Key())
	a.publish(ctx, events.TypeCustomerRegistered, customerEvent(*machine))
	a.reload(ctx, ScreenSoldPumps)
	return machine, nil
}

func (a *App) MachineDetails(ctx context.Context, id string) (*domain.Machine, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrIDRequired
	}
	return a.client.MachineDetails(ctx, id)
}

// UpdateMachine sends only the changed fields.
func (a *App) UpdateMachine(ctx context.Context, id string, upd apiclient.MachineUpdate) (*domain.Machine, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrIDRequired
	}
	if upd.Empty() {
		return nil, ErrNothingToUpdate
	}
	if upd.File != nil {
		if err := a.checkFiles([]apiclient.FormFile{*upd.File}); err != nil {
			return nil, err
		}
	}
	machine, err := a.client.UpdateMachine(ctx, id, upd)
	if err != nil {
		slog.Warn("machine update failed", "machine_id", id, "err", err)
		return nil, err
	}
	slog.Info("machine updated", "machine_id", id)
	return machine, nil
}

// ModelFromPart backs the model auto-fill of the sold pump form.
func (a *App) ModelFromPart(ctx context.Context, partNo string) (string, error) {
	partNo = strings.TrimSpace(partNo)
	if partNo == "" {
		v := &workflow.ValidationError{Fields: map[string]string{"part_no": "Please enter the part number"}}
		return "", v
	}
	return a.client.ModelFromPart(ctx, partNo)
}

// SearchCustomers records a keystroke in the customer company box and
// returns its current suggestions. Results arrive after the debounce window.
func (a *App) SearchCustomers(query string) workflow.Suggestions[domain.Customer] {
	a.customers.Input(query)
	return a.customers.Suggestions()
}

// CustomerSuggestions returns the customer box state without a new keystroke.
func (a *App) CustomerSuggestions() workflow.Suggestions[domain.Customer] {
	return a.customers.Suggestions()
}

// RegisterUser creates an admin or distributor account.
func (a *App) RegisterUser(ctx context.Context, req apiclient.RegisterRequest) (apiclient.RegisterResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	switch req.Role {
	case domain.RoleAdmin, domain.RoleDistributor:
	default:
		return apiclient.RegisterResponse{}, ErrInvalidRole
	}
	v := &workflow.ValidationError{Fields: map[string]string{}}
	if req.Name == "" {
		v.Fields["name"] = "Please enter the name"
	}
	if req.Email == "" {
		v.Fields["email"] = "Please enter email address"
	}
	if len(req.Password) < 6 {
		v.Fields["password"] = "Password must be at least 6 characters"
	}
	if len(v.Fields) > 0 {
		return apiclient.RegisterResponse{}, v
	}
	resp, err := a.auth.Register(ctx, req)
	if err != nil {
		return apiclient.RegisterResponse{}, err
	}
	if req.Role == domain.RoleAdmin {
		a.reload(ctx, ScreenAdmins)
	} else {
		a.reload(ctx, ScreenDistributors)
	}
	return resp, nil
}

func (a *App) checkFiles(files []apiclient.FormFile) error {
	for i, f := range files {
		att, err := workflow.ValidateAttachment(f.Filename, f.ContentType, f.Data, a.cfg.MaxUploadBytes)
		if err != nil {
			return err
		}
		files[i].Filename = att.Filename
		files[i].ContentType = att.ContentType
	}
	return nil
}

func requireMachineFields(partNo, modelNo string) error {
	v := &workflow.ValidationError{Fields: map[string]string{}}
	if partNo == "" {
		v.Fields["part_no"] = "Please enter the part number"
	}
	if modelNo == "" {
		v.Fields["model_no"] = "Please enter the model number"
	}
	if len(v.Fields) > 0 {
		return v
	}
	return nil
}

type customerPayload struct {
	MachineID string          `json:"machine_id"`
	SerialNo  string          `json:"serial_no,omitempty"`
	Customer  domain.Customer `json:"customer"`
}

func customerEvent(m domain.Machine) customerPayload {
	p := customerPayload{MachineID: m.Key(), SerialNo: m.SerialNo}
	if m.SoldInfo != nil {
		p.Customer = m.SoldInfo.Customer
	} else {
		p.Customer = domain.Customer{
			CustomerName:    m.CustomerName,
			CustomerContact: m.CustomerContact,
			CustomerEmail:   m.CustomerEmail,
			CustomerAddress: m.CustomerAddress,
		}
	}
	return p
}
