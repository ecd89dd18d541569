package models

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Role enum
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole normalizes a stored role. Anything other than admin is a plain user.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleUser
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

type User struct {
	ID              string `bson:"_id,omitempty" json:"-"`
	UserID          string `bson:"userId" json:"userId"`
	UserName        string `bson:"userName" json:"userName"`
	Email           string `bson:"email" json:"email"`
	Phone           string `bson:"phone" json:"phone"`
	NID             string `bson:"nid" json:"nid"`
	ProfileImageURL string `bson:"profileImageUrl,omitempty" json:"profileImageUrl,omitempty"`
	Role            Role   `bson:"role" json:"role"`
	CreatedAt       int64  `bson:"createdAt" json:"createdAt"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// User field names as persisted in the document store.
const (
	FieldUserName         = "userName"
	FieldUserEmail        = "email"
	FieldUserPhone        = "phone"
	FieldUserNID          = "nid"
	FieldUserProfileImage = "profileImageUrl"
	FieldUserRole         = "role"
)

// Credential holds the password hash for a user. It lives in its own collection so the
// user document keeps the field set other clients expect.
type Credential struct {
	UserID       string `bson:"_id" json:"-"`
	Email        string `bson:"email" json:"-"`
	PasswordHash string `bson:"passwordHash" json:"-"`
}

func (c *Credential) SetPassword(password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	c.PasswordHash = string(hashed)
	return nil
}

func (c *Credential) ComparePassword(candidate string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(candidate))
	return err == nil
}
