package workflow

import (
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"pumpconsole/pkg/domain"
)

var contactPattern = regexp.MustCompile(`^[0-9+\-\s()]+$`)

// ValidateCustomer checks a customer registration form.
func ValidateCustomer(c domain.Customer) error {
	v := &ValidationError{}
	name := strings.TrimSpace(c.CustomerName)
	switch {
	case name == "":
		v.add("customer_name", "Please enter customer name")
	case utf8.RuneCountInString(name) < 2:
		v.add("customer_name", "Customer name must be at least 2 characters")
	}
	contact := strings.TrimSpace(c.CustomerContact)
	switch {
	case contact == "":
		v.add("customer_contact", "Please enter contact number")
	case !contactPattern.MatchString(contact):
		v.add("customer_contact", "Please enter a valid contact number")
	}
	email := strings.TrimSpace(c.CustomerEmail)
	switch {
	case email == "":
		v.add("customer_email", "Please enter email address")
	case !validEmail(email):
		v.add("customer_email", "Please enter a valid email address")
	}
	address := strings.TrimSpace(c.CustomerAddress)
	switch {
	case address == "":
		v.add("customer_address", "Please enter customer address")
	case utf8.RuneCountInString(address) < 10:
		v.add("customer_address", "Address must be at least 10 characters")
	}
	return v.orNil()
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	// ParseAddress accepts "Name <a@b>"; only a bare address is valid here.
	return err == nil && addr.Address == email && addr.Name == ""
}

func validateServiceDetails(d Draft) error {
	v := &ValidationError{}
	if strings.TrimSpace(d.ServiceTypeID) == "" {
		v.add("service_type_id", "Please select the service type")
	}
	if strings.TrimSpace(d.ServicePersonName) == "" {
		v.add("service_person_name", "Please enter the service person name")
	}
	return v.orNil()
}

func validateProblemSolution(d Draft) error {
	v := &ValidationError{}
	if strings.TrimSpace(d.Problem) == "" {
		v.add("problem", "Please describe the problem")
	}
	if strings.TrimSpace(d.Solution) == "" {
		v.add("solution", "Please describe the solution")
	}
	return v.orNil()
}

func validatePartsAndFiles(d Draft) error {
	v := &ValidationError{}
	for i, p := range d.Parts {
		if strings.TrimSpace(p.PartID) == "" {
			v.add(partField(i, "part_id"), "Part name is required")
		}
		if p.Quantity < 1 {
			v.add(partField(i, "quantity"), "Quantity is required")
		}
	}
	return v.orNil()
}

func partField(i int, name string) string {
	return "parts." + strconv.Itoa(i) + "." + name
}
