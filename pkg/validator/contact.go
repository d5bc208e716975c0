package validator

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	playground "github.com/go-playground/validator/v10"
)

var (
	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")

	// ErrInvalidPhoneFormat indicates phone number contains invalid characters
	ErrInvalidPhoneFormat = errors.New("phone number can only contain digits and a leading +")

	// ErrInvalidPhoneLength indicates phone number is not 10 to 15 characters long
	ErrInvalidPhoneLength = errors.New("phone number must be between 10 and 15 characters")

	// ErrInvalidEmail indicates the email address is malformed or too long
	ErrInvalidEmail = errors.New("email must be a valid address of at most 100 characters")

	// ErrInvalidName indicates the customer name is too short or too long
	ErrInvalidName = errors.New("name must be between 2 and 100 characters")
)

const (
	MinPhoneLength = 10
	MaxPhoneLength = 15
	MinNameLength  = 2
	MaxNameLength  = 100
	MaxEmailLength = 100
)

// phoneRegex matches an optional leading + followed by digits
var phoneRegex = regexp.MustCompile(`^\+?\d+$`)

// Contact is the customer contact block attached to a booking
type Contact struct {
	Name  string
	Email string
	Phone string
}

// ContactValidator validates and normalizes booking contact details
type ContactValidator struct {
	validate *playground.Validate
}

// NewContactValidator creates a new contact validator instance
func NewContactValidator() *ContactValidator {
	return &ContactValidator{validate: playground.New()}
}

// Validate checks every field and returns the normalized contact together
// with one error per invalid field
func (v *ContactValidator) Validate(c Contact) (Contact, map[string]error) {
	problems := map[string]error{}
	normalized := Contact{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
	}

	if n := utf8.RuneCountInString(normalized.Name); n < MinNameLength || n > MaxNameLength {
		problems["customer_name"] = ErrInvalidName
	}

	if err := v.ValidateEmail(normalized.Email); err != nil {
		problems["customer_email"] = err
	}

	phone, err := v.ValidatePhone(c.Phone)
	if err != nil {
		problems["customer_phone"] = err
	}
	normalized.Phone = phone

	if len(problems) == 0 {
		return normalized, nil
	}
	return normalized, problems
}

// ValidateEmail checks that the address is well formed and within length
func (v *ContactValidator) ValidateEmail(email string) error {
	if len(email) > MaxEmailLength {
		return ErrInvalidEmail
	}
	if err := v.validate.Var(email, "required,email"); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePhone returns the sanitized phone number or an error
// Accepts format: +919876543210, 98765 43210 or 987-654-3210
func (v *ContactValidator) ValidatePhone(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)

	if !phoneRegex.MatchString(sanitized) {
		return "", ErrInvalidPhoneFormat
	}

	if len(sanitized) < MinPhoneLength || len(sanitized) > MaxPhoneLength {
		return "", ErrInvalidPhoneLength
	}

	return sanitized, nil
}

// Sanitize removes common separators from a phone number
func (v *ContactValidator) Sanitize(phone string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	return replacer.Replace(strings.TrimSpace(phone))
}
