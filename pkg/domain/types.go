package domain

import (
	"strings"
)

type UserRole string

const (
	RoleAdmin       UserRole = "admin"
	RoleDistributor UserRole = "distributor"
)

type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Role  UserRole `json:"role"`
}

// Session is the credential pair issued by the remote auth endpoints.
// ExpiresAt is in epoch seconds.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

type Customer struct {
	CustomerName    string `json:"customer_name"`
	CustomerCompany string `json:"customer_company,omitempty"`
	CustomerContact string `json:"customer_contact"`
	CustomerEmail   string `json:"customer_email"`
	CustomerAddress string `json:"customer_address"`
}

// SoldInfo is the sale record attached to a sold machine.
type SoldInfo struct {
	Customer
	SoldDate string `json:"sold_date,omitempty"`
	User     *User  `json:"user,omitempty"`
}

type MachineType string

const (
	MachinePump MachineType = "pump"
	MachinePart MachineType = "part"
)

type Machine struct {
	ID                  string      `json:"id"`
	MachineID           string      `json:"machine_id,omitempty"`
	SerialNo            string      `json:"serial_no,omitempty"`
	PartNo              string      `json:"part_no"`
	ModelNo             string      `json:"model_no"`
	Type                MachineType `json:"type,omitempty"`
	DateOfManufacturing string      `json:"date_of_manufacturing,omitempty"`
	IsSold              bool        `json:"is_sold"`
	SoldInfo            *SoldInfo   `json:"sold_info,omitempty"`
	FileURL             string      `json:"file_url,omitempty"`

	// The serial lookup endpoint returns customer fields flattened onto the machine.
	CustomerName    string `json:"customer_name,omitempty"`
	CustomerContact string `json:"customer_contact,omitempty"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	CustomerAddress string `json:"customer_address,omitempty"`
}

// Key returns the identifier used when talking to the remote API about this machine.
func (m Machine) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.MachineID
}

// HasCustomer reports whether a customer is attached to the machine.
func (m Machine) HasCustomer() bool {
	if m.SoldInfo != nil && strings.TrimSpace(m.SoldInfo.CustomerName) != "" {
		return true
	}
	return strings.TrimSpace(m.CustomerName) != ""
}

// AttachCustomer records a freshly registered customer on the machine.
func (m *Machine) AttachCustomer(c Customer) {
	m.IsSold = true
	m.SoldInfo = &SoldInfo{Customer: c}
	m.CustomerName = c.CustomerName
	m.CustomerContact = c.CustomerContact
	m.CustomerEmail = c.CustomerEmail
	m.CustomerAddress = c.CustomerAddress
}

type ServiceType struct {
	ID          string `json:"id"`
	ServiceType string `json:"service_type"`
}

type PartLine struct {
	PartID   string `json:"part_id"`
	Quantity int    `json:"quantity"`
}

type ServiceReport struct {
	ID                string       `json:"id"`
	MachineID         string       `json:"machine_id"`
	ServiceTypeID     string       `json:"service_type_id"`
	ServiceType       string       `json:"service_type,omitempty"`
	ServicePersonName string       `json:"service_person_name"`
	Problem           string       `json:"problem"`
	Solution          string       `json:"solution"`
	Parts             []PartLine   `json:"parts,omitempty"`
	Files             []ReportFile `json:"files,omitempty"`
	MachineInfo       *Machine     `json:"machine_info,omitempty"`
	CustomerInfo      *SoldInfo    `json:"customer_info,omitempty"`
	CreatedAt         string       `json:"created_at,omitempty"`
}

type ReportFile struct {
	ID       string `json:"id,omitempty"`
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name,omitempty"`
}

// PartOption is one hit of the part search-as-you-type lookup.
type PartOption struct {
	ID      string `json:"id"`
	PartNo  string `json:"part_no"`
	ModelNo string `json:"model_no"`
}

type ListParams struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
	Search    string
}

const (
	DefaultPage      = 1
	DefaultLimit     = 10
	DefaultSortBy    = "created_at"
	DefaultSortOrder = "desc"
)

// Normalize fills in the list defaults used by every collection endpoint.
func (p ListParams) Normalize() ListParams {
	if p.Page <= 0 {
		p.Page = DefaultPage
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if strings.TrimSpace(p.SortBy) == "" {
		p.SortBy = DefaultSortBy
	}
	switch strings.ToLower(strings.TrimSpace(p.SortOrder)) {
	case "asc", "ascend":
		p.SortOrder = "asc"
	default:
		p.SortOrder = DefaultSortOrder
	}
	p.Search = strings.TrimSpace(p.Search)
	return p
}

// Page is one page of a remote collection.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type Pagination struct {
	Current  int `json:"current"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

// DashboardStatistics is passed through as returned by the backend; its
// counters differ between the admin and distributor dashboards.
type DashboardStatistics map[string]any

type Activity struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

type ServiceTypeStat struct {
	ServiceType string `json:"service_type"`
	Count       int    `json:"count"`
}

type PartNumberStat struct {
	PartNo       string `json:"part_no"`
	ModelNo      string `json:"model_no"`
	ServiceCount int    `json:"service_count"`
}

type PDFDocument struct {
	Filename    string
	ContentType string
	Data        []byte
}
