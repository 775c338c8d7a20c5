package auth

import (
	"strings"

	"github.com/jrsteele09/go-logistics-auth/identity"
)

// LoginResult is what a successful login hands back to the transport.
type LoginResult struct {
	Tokens   identity.TokenPair
	Identity identity.Record
}

// Response flattens the result into the login wire shape.
func (r *LoginResult) Response() identity.LoginResponse {
	return identity.LoginResponse{TokenPair: r.Tokens, Record: r.Identity}
}

// normalizeRegistration trims what users commonly pad and canonicalises the phone.
func normalizeRegistration(d identity.RegistrationDetails) identity.RegistrationDetails {
	d.Username = strings.TrimSpace(d.Username)
	d.FullName = strings.TrimSpace(d.FullName)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Phone = NormalizePhone(d.Phone)
	if d.CompanyID != nil {
		companyID := strings.TrimSpace(*d.CompanyID)
		d.CompanyID = &companyID
	}
	return d
}
