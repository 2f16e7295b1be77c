// Package validate holds the checks applied to user input before any network
// call is made.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FieldError is a validation failure on one input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Errors collects field errors. A nil or empty Errors is not an error.
type Errors []*FieldError

func (es Errors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Add records err against field when err is non-nil.
func (es *Errors) Add(field string, err error) {
	if err == nil {
		return
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		*es = append(*es, fe)
		return
	}
	*es = append(*es, &FieldError{Field: field, Message: err.Error()})
}

// Err returns es as an error, or nil when empty.
func (es Errors) Err() error {
	if len(es) == 0 {
		return nil
	}
	return es
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Email checks the local@domain.tld shape. Deliverability is the backend's
// problem.
func Email(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &FieldError{Field: "email", Message: "email address is required"}
	}
	if len(email) > 254 {
		return &FieldError{Field: "email", Message: "email address is too long (max 254 characters)"}
	}
	if !emailPattern.MatchString(email) {
		return &FieldError{Field: "email", Message: "please enter a valid email address"}
	}
	return nil
}

// ISODate is the wire format for link expiry dates.
const ISODate = "2006-01-02"

var digitsPattern = regexp.MustCompile(`^[0-9]+$`)

// ParseExpiryDate accepts YY/MM/DD or YYYY/MM/DD. Two-digit years below 50
// are 20xx, the rest 19xx. The date must exist on the calendar. Past dates
// are accepted; the backend decides whether they are usable.
func ParseExpiryDate(s string) (time.Time, error) {
	invalid := &FieldError{Field: "expires_at", Message: "enter the date as YY/MM/DD or YYYY/MM/DD"}

	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return time.Time{}, invalid
	}
	if l := len(parts[0]); l != 2 && l != 4 {
		return time.Time{}, invalid
	}
	if l := len(parts[1]); l < 1 || l > 2 {
		return time.Time{}, invalid
	}
	if l := len(parts[2]); l < 1 || l > 2 {
		return time.Time{}, invalid
	}

	nums := make([]int, 3)
	for i, p := range parts {
		if !digitsPattern.MatchString(p) {
			return time.Time{}, invalid
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, invalid
		}
		nums[i] = n
	}
	year, month, day := ExpandYear(nums[0], len(parts[0])), nums[1], nums[2]

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, &FieldError{Field: "expires_at", Message: fmt.Sprintf("%s is not a valid calendar date", s)}
	}
	return t, nil
}

// ExpandYear maps a two-digit year onto 1950-2049. Other widths pass through.
func ExpandYear(year, digits int) int {
	if digits != 2 {
		return year
	}
	if year < 50 {
		return 2000 + year
	}
	return 1900 + year
}

// ExpiryISO parses s with ParseExpiryDate and formats it as an ISO date.
// An empty input yields "" and no error.
func ExpiryISO(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	t, err := ParseExpiryDate(s)
	if err != nil {
		return "", err
	}
	return t.Format(ISODate), nil
}

// MaxDownloads parses an optional download limit. Empty means unlimited.
func MaxDownloads(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return nil, &FieldError{Field: "max_downloads", Message: "must be a whole number of at least 1"}
	}
	return &n, nil
}

var codePattern = regexp.MustCompile(`^\d{6}$`)

// Code checks a six-digit TOTP or passcode.
func Code(code string) error {
	if !codePattern.MatchString(strings.TrimSpace(code)) {
		return &FieldError{Field: "code", Message: "enter the 6-digit code"}
	}
	return nil
}

// Password enforces the minimum length the backends accept.
func Password(pw string) error {
	if len(pw) < 8 {
		return &FieldError{Field: "password", Message: "password must be at least 8 characters"}
	}
	if len(pw) > 128 {
		return &FieldError{Field: "password", Message: "password is too long (max 128 characters)"}
	}
	return nil
}
