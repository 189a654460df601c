package app

import "errors"

var (
	ErrUnknownScreen      = errors.New("unknown list screen")
	ErrWizardNotFound     = errors.New("service report wizard not found")
	ErrUnknownMachineKind = errors.New("unknown machine kind")
	ErrNothingToUpdate    = errors.New("no changes to save")
	ErrInvalidRole        = errors.New("role must be admin or distributor")
	ErrIDRequired         = errors.New("id is required")
)
