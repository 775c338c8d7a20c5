package users

import (
	"fmt"
	"time"
	"unicode"

	"github.com/jrsteele09/go-logistics-auth/identity"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the floor applied when no stricter configuration is given.
const MinPasswordLength = 6

type User struct {
	ID           string        `json:"id,omitempty"`
	Username     string        `json:"username,omitempty"`
	Email        string        `json:"email,omitempty"`
	Phone        string        `json:"phone,omitempty"`
	FullName     string        `json:"fullName,omitempty"`
	PasswordHash string        `json:"-"` // never serialize
	Role         identity.Role `json:"role,omitempty"`
	CompanyID    *string       `json:"companyId,omitempty"`
	Active       bool          `json:"active"`
	DateJoined   time.Time     `json:"dateJoined,omitempty"`
	LastLogin    time.Time     `json:"lastLogin,omitempty"`
}

// Identity projects the account onto the record handed to clients and policies.
func (u *User) Identity() identity.Record {
	rec := identity.Record{
		UserID:   u.ID,
		Username: u.Username,
		FullName: u.FullName,
		RoleName: u.Role,
		IsActive: u.Active,
	}
	if u.CompanyID != nil {
		companyID := *u.CompanyID
		rec.CompanyID = &companyID
	}
	return rec
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least minLength characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string, minLength int) error {
	if minLength < MinPasswordLength {
		minLength = MinPasswordLength
	}
	if len(password) < minLength {
		return fmt.Errorf("password must be at least %d characters long", minLength)
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CheckPassword compares password against the stored hash.
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}
