package leads

import "errors"

var (
	// ErrMissingLeadID is returned when the lead id is absent
	ErrMissingLeadID = errors.New("lead id is required")

	// ErrInvalidName is returned when the name is shorter than two characters
	ErrInvalidName = errors.New("name must be at least 2 characters")

	// ErrInvalidPhone is returned when the phone number is shorter than ten digits
	ErrInvalidPhone = errors.New("phone must be at least 10 digits")

	// ErrNotConfigured is returned when the spreadsheet endpoint is unset or
	// still a placeholder; submission short-circuits without a network call
	ErrNotConfigured = errors.New("lead submission endpoint not configured")

	// ErrSubmissionFailed is returned when the spreadsheet service rejects
	// the lead or the request fails
	ErrSubmissionFailed = errors.New("lead submission failed")
)
