package auth

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/jrsteele09/go-logistics-auth/identity"
	"github.com/jrsteele09/go-logistics-auth/users"
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{3,50}$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{9,15}$`)
)

// Validator holds the field rules for registration and password reset input.
type Validator struct {
	minPasswordLength int
}

func NewValidator(minPasswordLength int) *Validator {
	if minPasswordLength < users.MinPasswordLength {
		minPasswordLength = users.MinPasswordLength
	}
	return &Validator{minPasswordLength: minPasswordLength}
}

// ValidateRegistration checks the shape of every field. Uniqueness and company
// existence need storage and are checked by the service.
func (v *Validator) ValidateRegistration(d identity.RegistrationDetails) *identity.ValidationError {
	verr := identity.NewValidationError("registration rejected")

	if !usernamePattern.MatchString(d.Username) {
		verr.Add("username", "username must be 3-50 letters, digits, dots, dashes or underscores")
	}
	if strings.TrimSpace(d.FullName) == "" {
		verr.Add("fullName", "full name is required")
	}
	if !phonePattern.MatchString(NormalizePhone(d.Phone)) {
		verr.Add("phone", "phone number must contain 9 to 15 digits")
	}
	if d.Email != "" {
		if err := ValidateEmail(d.Email); err != nil {
			verr.Add("email", err.Error())
		}
	}
	v.validateNewPassword(verr, "password", d.Password, d.ConfirmPassword)
	if _, ok := identity.RoleFromID(d.RoleID); !ok {
		verr.Add("roleId", ErrUnknownRole.Error())
	}
	if d.CompanyID != nil && strings.TrimSpace(*d.CompanyID) == "" {
		verr.Add("companyId", "company id must not be blank")
	}
	return verr
}

func (v *Validator) ValidatePasswordReset(req identity.ResetPasswordRequest) *identity.ValidationError {
	verr := identity.NewValidationError("password reset rejected")
	if strings.TrimSpace(req.Token) == "" {
		verr.Add("token", "reset token is required")
	}
	v.validateNewPassword(verr, "newPassword", req.NewPassword, req.ConfirmPassword)
	return verr
}

func (v *Validator) validateNewPassword(verr *identity.ValidationError, field, password, confirm string) {
	if err := users.ValidatePasswordStrength(password, v.minPasswordLength); err != nil {
		verr.Add(field, err.Error())
	}
	if password != confirm {
		verr.Add("confirmPassword", ErrPasswordsDontMatch.Error())
	}
}

// ValidateEmail accepts a bare address only, without a display name.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// NormalizePhone strips the separators people type into phone fields.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}
