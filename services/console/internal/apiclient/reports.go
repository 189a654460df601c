package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"pumpconsole/pkg/domain"
)

// DefaultServiceTypes is used when the backend enumeration is unavailable.
var DefaultServiceTypes = []domain.ServiceType{
	{ID: "1", ServiceType: "Maintenance"},
	{ID: "2", ServiceType: "Repair"},
	{ID: "3", ServiceType: "Installation"},
}

// ServiceReportInput is everything submitted for one new service report.
type ServiceReportInput struct {
	MachineID         string
	MachineSerialNo   string
	ServiceTypeID     string
	ServicePersonName string
	Problem           string
	Solution          string
	Parts             []domain.PartLine
	Files             []FormFile
	// IdempotencyKey is sent as X-Idempotency-Key when set.
	IdempotencyKey string
}

type customerRequest struct {
	MachineID string `json:"machine_id"`
	domain.Customer
}

func (c *Client) ListServiceReports(ctx context.Context, p domain.ListParams) (domain.Page[domain.ServiceReport], error) {
	return listPage[domain.ServiceReport](ctx, c, "/service-reports", "/service-reports", p)
}

// CreateServiceReport posts the report as a single multipart request.
func (c *Client) CreateServiceReport(ctx context.Context, in ServiceReportInput) (*domain.ServiceReport, error) {
	form := NewForm().
		Set("machine_id", in.MachineID).
		SetIfNotEmpty("machine_serial_no", in.MachineSerialNo).
		Set("service_type_id", in.ServiceTypeID).
		Set("service_person_name", in.ServicePersonName).
		Set("problem", in.Problem).
		Set("solution", in.Solution)
	if len(in.Parts) > 0 {
		parts, err := json.Marshal(in.Parts)
		if err != nil {
			return nil, fmt.Errorf("encode parts: %w", err)
		}
		form.Set("parts", string(parts))
	}
	for _, f := range in.Files {
		form.AddFile("files", f)
	}
	var header http.Header
	if in.IdempotencyKey != "" {
		header = http.Header{"X-Idempotency-Key": []string{in.IdempotencyKey}}
	}
	var resp struct {
		Success       bool                  `json:"success"`
		Message       string                `json:"message,omitempty"`
		ServiceReport *domain.ServiceReport `json:"service_report"`
		ID            string                `json:"id"`
	}
	if err := c.doMultipart(ctx, http.MethodPost, "/service-reports", "/service-reports", form, header, &resp); err != nil {
		return nil, err
	}
	if resp.ServiceReport != nil {
		return resp.ServiceReport, nil
	}
	return &domain.ServiceReport{
		ID:                resp.ID,
		MachineID:         in.MachineID,
		ServiceTypeID:     in.ServiceTypeID,
		ServicePersonName: in.ServicePersonName,
		Problem:           in.Problem,
		Solution:          in.Solution,
		Parts:             in.Parts,
	}, nil
}

// ServiceTypes loads the service type enumeration. It never fails: when the
// backend cannot be reached the built-in list is returned.
func (c *Client) ServiceTypes(ctx context.Context) []domain.ServiceType {
	var resp struct {
		Success      bool                 `json:"success"`
		ServiceTypes []domain.ServiceType `json:"service_types"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/service-reports/types", "/service-reports/types", nil, nil, &resp)
	if err != nil || len(resp.ServiceTypes) == 0 {
		slog.Warn("service types unavailable, using defaults", "err", err)
		return append([]domain.ServiceType(nil), DefaultServiceTypes...)
	}
	return resp.ServiceTypes
}

// MachineBySerial resolves a machine by serial number for the report form.
func (c *Client) MachineBySerial(ctx context.Context, serial string) (*domain.Machine, error) {
	var resp machineResponse
	err := c.doJSON(ctx, http.MethodGet, "/service-reports/machine/{serial}",
		"/service-reports/machine/"+url.PathEscape(strings.TrimSpace(serial)), nil, nil, &resp)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}
	if err != nil || !resp.Success || resp.Machine == nil {
		return nil, &APIError{Status: http.StatusNotFound, Kind: KindNotFound, Message: MsgMachineNotFound, Err: err}
	}
	return resp.Machine, nil
}

// RegisterCustomer attaches a customer to an unsold machine and returns the
// updated machine.
func (c *Client) RegisterCustomer(ctx context.Context, machineID string, cust domain.Customer) (*domain.Machine, error) {
	var resp struct {
		Success     bool            `json:"success"`
		Message     string          `json:"message,omitempty"`
		SoldMachine *domain.Machine `json:"sold_machine"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/service-reports/customer", "/service-reports/customer", nil,
		customerRequest{MachineID: machineID, Customer: cust}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = "Failed to register customer"
		}
		return nil, &APIError{Status: http.StatusOK, Kind: KindRemote, Message: msg}
	}
	return resp.SoldMachine, nil
}

// ServiceReportDetails fetches one report with its machine and customer info.
func (c *Client) ServiceReportDetails(ctx context.Context, id string) (*domain.ServiceReport, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/service-reports/{id}/details",
		"/service-reports/"+url.PathEscape(id)+"/details", nil, nil, &raw); err != nil {
		return nil, err
	}
	var wrapped struct {
		Report        *domain.ServiceReport `json:"report"`
		ServiceReport *domain.ServiceReport `json:"service_report"`
		Data          *domain.ServiceReport `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode service report details: %w", err)
	}
	for _, r := range []*domain.ServiceReport{wrapped.Report, wrapped.ServiceReport, wrapped.Data} {
		if r != nil {
			return r, nil
		}
	}
	var report domain.ServiceReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode service report details: %w", err)
	}
	return &report, nil
}

// ServiceReportPDF downloads the rendered report.
func (c *Client) ServiceReportPDF(ctx context.Context, id string) (domain.PDFDocument, error) {
	resp, err := c.send(ctx, request{
		method: http.MethodGet,
		route:  "/service-reports/{id}/pdf",
		path:   "/service-reports/" + url.PathEscape(id) + "/pdf",
		header: http.Header{"Accept": []string{"application/pdf"}},
	})
	if err != nil {
		return domain.PDFDocument{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.PDFDocument{}, networkError(err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	return domain.PDFDocument{
		Filename:    pdfFilename(resp.Header.Get("Content-Disposition"), id),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func pdfFilename(disposition, id string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := strings.TrimSpace(params["filename"]); name != "" {
				return name
			}
		}
	}
	return "service_report_" + id + ".pdf"
}
