// src/security/validation/field_validator.go
package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/username/conciliador/src/utils"
)

var ErrValidationFailed = errors.New("validation failed")

const (
	DefaultMaxStringLength = 255
	MaxUsernameLength      = 64
	MinUsernameLength      = 3
	MinPasswordLength      = 8
	MaxPasswordLength      = 72 // bcrypt ignores anything longer
	CNPJLength             = 14
	// MaxQueryRange bounds the period requested from the REST sources.
	MaxQueryRange = 366 * 24 * time.Hour
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// --- String Validators ---

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateStringRegex checks if a string matches a given regex pattern.
func ValidateStringRegex(s string, pattern *regexp.Regexp, fieldName, formatDescription string) error {
	if !pattern.MatchString(s) {
		return fmt.Errorf("%w: %s ('%s') is not in the expected format (%s)", ErrValidationFailed, fieldName, s, formatDescription)
	}
	return nil
}

// --- Account Validators ---

func ValidateUsername(s string) error {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, "username"); err != nil {
		return err
	}
	if utf8.RuneCountInString(trimmed) < MinUsernameLength {
		return fmt.Errorf("%w: username must have at least %d characters", ErrValidationFailed, MinUsernameLength)
	}
	if err := ValidateStringMaxLength(trimmed, MaxUsernameLength, "username"); err != nil {
		return err
	}
	return ValidateStringRegex(trimmed, usernameRegex, "username", "letters, digits, dot, underscore or hyphen")
}

func ValidatePassword(s string) error {
	n := len(s)
	if n < MinPasswordLength {
		return fmt.Errorf("%w: password must have at least %d characters", ErrValidationFailed, MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return fmt.Errorf("%w: password must have at most %d bytes", ErrValidationFailed, MaxPasswordLength)
	}
	return nil
}

// ValidateEmail accepts an empty value; e-mail is optional for dashboard users.
func ValidateEmail(s string) error {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if err := ValidateStringMaxLength(trimmed, DefaultMaxStringLength, "email"); err != nil {
		return err
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return fmt.Errorf("%w: email ('%s') is not a valid address", ErrValidationFailed, s)
	}
	return nil
}

// --- Domain Validators ---

// ValidateCNPJ checks length and both check digits of a tax id. Punctuation is ignored.
func ValidateCNPJ(s string) error {
	digits := utils.NormalizeCNPJ(s)
	if len(digits) != CNPJLength {
		return fmt.Errorf("%w: cnpj ('%s') must have %d digits", ErrValidationFailed, s, CNPJLength)
	}
	if strings.Count(digits, digits[:1]) == CNPJLength {
		return fmt.Errorf("%w: cnpj ('%s') is a repeated digit sequence", ErrValidationFailed, s)
	}
	if cnpjCheckDigit(digits[:12]) != digits[12] || cnpjCheckDigit(digits[:13]) != digits[13] {
		return fmt.Errorf("%w: cnpj ('%s') has invalid check digits", ErrValidationFailed, s)
	}
	return nil
}

func cnpjCheckDigit(base string) byte {
	weight := len(base) - 7
	sum := 0
	for i := 0; i < len(base); i++ {
		sum += int(base[i]-'0') * weight
		weight--
		if weight < 2 {
			weight = 9
		}
	}
	rest := sum % 11
	if rest < 2 {
		return '0'
	}
	return byte('0' + 11 - rest)
}

// ValidateDateRange parses a dd/mm/yyyy period and checks its bounds.
func ValidateDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from, err := ValidateDateString(fromStr, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := ValidateDateString(toStr, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: 'to' (%s) is before 'from' (%s)", ErrValidationFailed, toStr, fromStr)
	}
	if to.Sub(from) > MaxQueryRange {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: period longer than %d days", ErrValidationFailed, int(MaxQueryRange.Hours()/24))
	}
	return from, to, nil
}

// ValidateDateString checks if a string is a valid date in "DD/MM/YYYY" format.
func ValidateDateString(s, fieldName string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, fieldName); err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(utils.DefaultDateFormat, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s ('%s') is not a valid date (expected DD/MM/YYYY): %v", ErrValidationFailed, fieldName, s, err)
	}
	return t, nil
}
