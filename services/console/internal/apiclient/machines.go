package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"pumpconsole/pkg/domain"
)

const (
	MsgMachineNotFound = "Machine not found"
	MsgModelNotFound   = "Model not found for the entered Part Number"
)

// MachineInput is the multipart payload for creating a pump or a part.
type MachineInput struct {
	SerialNo            string
	PartNo              string
	ModelNo             string
	DateOfManufacturing string
	Files               []FormFile
}

// SoldPumpInput creates a pump together with its sale record.
type SoldPumpInput struct {
	SerialNo            string `json:"serial_no,omitempty"`
	PartNo              string `json:"part_no"`
	ModelNo             string `json:"model_no"`
	DateOfManufacturing string `json:"date_of_manufacturing,omitempty"`
	domain.Customer
}

// MachineUpdate carries the fields to change on a machine. Empty fields are
// not sent.
type MachineUpdate struct {
	SerialNo            string
	PartNo              string
	ModelNo             string
	DateOfManufacturing string
	Customer            domain.Customer
	File                *FormFile
}

// Empty reports whether the update would send nothing.
func (u MachineUpdate) Empty() bool {
	return u.SerialNo == "" && u.PartNo == "" && u.ModelNo == "" && u.DateOfManufacturing == "" &&
		u.Customer == (domain.Customer{}) && u.File == nil
}

type machineResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	ID      string          `json:"id,omitempty"`
	Machine *domain.Machine `json:"machine"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (c *Client) ListPumps(ctx context.Context, p domain.ListParams) (domain.Page[domain.Machine], error) {
	return listPage[domain.Machine](ctx, c, "/machines/pumps", "/machines/pumps", p)
}

func (c *Client) ListParts(ctx context.Context, p domain.ListParams) (domain.Page[domain.Machine], error) {
	return listPage[domain.Machine](ctx, c, "/machines/parts", "/machines/parts", p)
}

func (c *Client) ListSoldPumps(ctx context.Context, p domain.ListParams) (domain.Page[domain.Machine], error) {
	return listPage[domain.Machine](ctx, c, "/machines/sold_pumps", "/machines/sold_pumps", p)
}

func (c *Client) CreatePump(ctx context.Context, in MachineInput) (*domain.Machine, error) {
	return c.createMachine(ctx, "/machines/pumps/create", domain.MachinePump, in)
}

func (c *Client) CreatePart(ctx context.Context, in MachineInput) (*domain.Machine, error) {
	return c.createMachine(ctx, "/machines/parts/create", domain.MachinePart, in)
}

// Create endpoints may answer with only a success flag; the returned machine
// is then built from the input.
func (c *Client) createMachine(ctx context.Context, path string, kind domain.MachineType, in MachineInput) (*domain.Machine, error) {
	form := NewForm().
		SetIfNotEmpty("serial_no", in.SerialNo).
		Set("part_no", in.PartNo).
		Set("model_no", in.ModelNo).
		SetIfNotEmpty("date_of_manufacturing", in.DateOfManufacturing)
	for _, f := range in.Files {
		form.AddFile("files", f)
	}
	var resp machineResponse
	if err := c.doMultipart(ctx, http.MethodPost, path, path, form, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Machine != nil {
		return resp.Machine, nil
	}
	return &domain.Machine{
		ID:                  resp.ID,
		SerialNo:            in.SerialNo,
		PartNo:              in.PartNo,
		ModelNo:             in.ModelNo,
		Type:                kind,
		DateOfManufacturing: in.DateOfManufacturing,
	}, nil
}

func (c *Client) CreateSoldPump(ctx context.Context, in SoldPumpInput) (*domain.Machine, error) {
	var resp machineResponse
	if err := c.doJSON(ctx, http.MethodPost, "/machines/sold_pumps/create", "/machines/sold_pumps/create", nil, in, &resp); err != nil {
		return nil, err
	}
	if resp.Machine != nil {
		return resp.Machine, nil
	}
	m := &domain.Machine{
		ID:                  resp.ID,
		SerialNo:            in.SerialNo,
		PartNo:              in.PartNo,
		ModelNo:             in.ModelNo,
		Type:                domain.MachinePump,
		DateOfManufacturing: in.DateOfManufacturing,
	}
	m.AttachCustomer(in.Customer)
	return m, nil
}

// MachineDetails fetches one machine including its sale record.
func (c *Client) MachineDetails(ctx context.Context, id string) (*domain.Machine, error) {
	var resp machineResponse
	if err := c.doJSON(ctx, http.MethodGet, "/machines/details/{id}", "/machines/details/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Machine == nil {
		return nil, &APIError{Status: http.StatusNotFound, Kind: KindNotFound, Message: MsgMachineNotFound}
	}
	return resp.Machine, nil
}

// UpdateMachine sends the non-empty fields of upd as a multipart update.
func (c *Client) UpdateMachine(ctx context.Context, id string, upd MachineUpdate) (*domain.Machine, error) {
	form := NewForm().
		SetIfNotEmpty("serial_no", upd.SerialNo).
		SetIfNotEmpty("model_no", upd.ModelNo).
		SetIfNotEmpty("part_no", upd.PartNo).
		SetIfNotEmpty("date_of_manufacturing", upd.DateOfManufacturing).
		SetIfNotEmpty("customer_name", upd.Customer.CustomerName).
		SetIfNotEmpty("customer_contact", upd.Customer.CustomerContact).
		SetIfNotEmpty("customer_email", upd.Customer.CustomerEmail).
		SetIfNotEmpty("customer_address", upd.Customer.CustomerAddress)
	if upd.File != nil {
		form.AddFile("file", *upd.File)
	}
	var resp machineResponse
	if err := c.doMultipart(ctx, http.MethodPut, "/machines/{id}/update", "/machines/"+url.PathEscape(id)+"/update", form, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Machine, nil
}

func (c *Client) DeleteMachine(ctx context.Context, id string) error {
	var resp messageResponse
	return c.doJSON(ctx, http.MethodDelete, "/machines/{id}/delete", "/machines/"+url.PathEscape(id)+"/delete", nil, nil, &resp)
}

// ModelFromPart resolves the model number registered for a part number.
func (c *Client) ModelFromPart(ctx context.Context, partNo string) (string, error) {
	q := url.Values{}
	q.Set("part_no", strings.TrimSpace(partNo))
	var resp struct {
		ModelNo string `json:"model_no"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/machines/model-from-part", "/machines/model-from-part", q, nil, &resp)
	if err != nil && !IsNotFound(err) {
		return "", err
	}
	if err != nil || strings.TrimSpace(resp.ModelNo) == "" {
		return "", &APIError{Status: http.StatusNotFound, Kind: KindNotFound, Message: MsgModelNotFound, Err: err}
	}
	return resp.ModelNo, nil
}

// SearchCustomers returns known customers whose company matches search.
func (c *Client) SearchCustomers(ctx context.Context, search string) ([]domain.Customer, error) {
	q := url.Values{}
	q.Set("search", search)
	var resp struct {
		Customers []domain.Customer `json:"customers"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/machines/customers", "/machines/customers", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Customers, nil
}

func (c *Client) MachineServiceReports(ctx context.Context, machineID string, p domain.ListParams) (domain.Page[domain.ServiceReport], error) {
	return listPage[domain.ServiceReport](ctx, c, "/machines/{id}/service-reports",
		"/machines/"+url.PathEscape(machineID)+"/service-reports", p)
}

const partSearchLimit = 10

// SearchParts backs the part picker of the service report form.
func (c *Client) SearchParts(ctx context.Context, query string) ([]domain.PartOption, error) {
	page, err := c.ListParts(ctx, domain.ListParams{Page: 1, Limit: partSearchLimit, Search: query})
	if err != nil {
		return nil, err
	}
	out := make([]domain.PartOption, 0, len(page.Items))
	for _, m := range page.Items {
		out = append(out, domain.PartOption{ID: m.Key(), PartNo: m.PartNo, ModelNo: m.ModelNo})
	}
	return out, nil
}

func listPage[T any](ctx context.Context, c *Client, route, path string, p domain.ListParams) (domain.Page[T], error) {
	p = p.Normalize()
	var page domain.Page[T]
	if err := c.doJSON(ctx, http.MethodGet, route, path, listQuery(p), nil, &page); err != nil {
		return domain.Page[T]{}, err
	}
	if page.Page == 0 {
		page.Page = p.Page
	}
	if page.Limit == 0 {
		page.Limit = p.Limit
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page, nil
}
