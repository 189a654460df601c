package app

import (
	"context"
	"log/slog"

	"pumpconsole/pkg/domain"
	"pumpconsole/pkg/events"
	"pumpconsole/services/console/internal/workflow"
)

// StartWizard opens a new service report wizard with the service types loaded.
func (a *App) StartWizard(ctx context.Context) *workflow.Wizard {
	w := workflow.New(workflow.Config{
		Backend:              a.client,
		MaxUploadBytes:       a.cfg.MaxUploadBytes,
		SearchDebounce:       a.cfg.SearchDebounce,
		AfterFunc:            a.cfg.AfterFunc,
		OnSubmitted:          a.reportSubmitted,
		OnCustomerRegistered: a.customerRegistered,
	})
	w.Start(ctx)
	a.mu.Lock()
	a.wizards[w.ID()] = w
	a.mu.Unlock()
	slog.Info("service report wizard started", "wizard_id", w.ID())
	return w
}

func (a *App) Wizard(id string) (*workflow.Wizard, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.wizards[id]
	if !ok {
		return nil, ErrWizardNotFound
	}
	return w, nil
}

// CloseWizard abandons a wizard and its draft.
func (a *App) CloseWizard(id string) error {
	a.mu.Lock()
	w, ok := a.wizards[id]
	delete(a.wizards, id)
	a.mu.Unlock()
	if !ok {
		return ErrWizardNotFound
	}
	w.Reset()
	return nil
}

type reportPayload struct {
	ReportID      string            `json:"report_id"`
	MachineID     string            `json:"machine_id"`
	SerialNo      string            `json:"serial_no,omitempty"`
	ServiceTypeID string            `json:"service_type_id"`
	Parts         []domain.PartLine `json:"parts,omitempty"`
	Files         int               `json:"files"`
}

func (a *App) reportSubmitted(ctx context.Context, report domain.ServiceReport, draft workflow.Draft) {
	payload := reportPayload{
		ReportID:      report.ID,
		MachineID:     report.MachineID,
		SerialNo:      draft.Serial,
		ServiceTypeID: draft.ServiceTypeID,
		Files:         len(draft.Files),
	}
	for _, p := range draft.Parts {
		payload.Parts = append(payload.Parts, domain.PartLine{PartID: p.PartID, Quantity: p.Quantity})
	}
	a.publish(ctx, events.TypeServiceReportCreated, payload)
	a.reload(ctx, ScreenServiceReports)
	if report.MachineID != "" {
		a.mu.Lock()
		s, ok := a.machineReports[report.MachineID]
		a.mu.Unlock()
		if ok {
			_ = s.Load(ctx)
		}
	}
}

func (a *App) customerRegistered(ctx context.Context, machine domain.Machine) {
	a.publish(ctx, events.TypeCustomerRegistered, customerEvent(machine))
	a.reload(ctx, ScreenSoldPumps)
}
