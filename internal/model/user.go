// Package model defines the data structures used throughout the application.
package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// Provider names an external OAuth identity provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// Providers lists every supported provider in a stable order.
var Providers = []Provider{ProviderGoogle, ProviderGitHub}

// ParseProvider maps a path segment such as "google" to a Provider.
func ParseProvider(s string) (Provider, bool) {
	for _, p := range Providers {
		if string(p) == strings.ToLower(s) {
			return p, true
		}
	}
	return "", false
}

func (p Provider) String() string { return string(p) }

// StringList is a set-like list of short tokens (roles, permissions)
// stored as a single comma-separated column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	return l.Join(), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = StringList{}
	case string:
		*l = ParseStringList(v)
	case []byte:
		*l = ParseStringList(string(v))
	default:
		return fmt.Errorf("model: cannot scan %T into StringList", src)
	}
	return nil
}

// Join renders the list in its column form.
func (l StringList) Join() string {
	return strings.Join(l, ",")
}

// ParseStringList splits a comma-separated column value, dropping blanks.
func ParseStringList(s string) StringList {
	out := StringList{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// User is the local identity record.
//
// A user authenticates with a password hash, one or more provider links, or
// both. Email is unique as stored (no case folding). Each provider's external
// ID is unique when present.
type User struct {
	ID           string     `json:"id"                 db:"id"`
	Email        string     `json:"email"              db:"email"`
	PasswordHash *string    `json:"-"                  db:"password_hash"` // nil for OAuth-only accounts
	GoogleID     *string    `json:"googleId,omitempty" db:"google_id"`
	GitHubID     *string    `json:"githubId,omitempty" db:"github_id"`
	Active       bool       `json:"active"             db:"is_active"`
	TenantID     *string    `json:"tenantId,omitempty" db:"tenant_id"`
	Roles        StringList `json:"roles"              db:"roles"`
	Permissions  StringList `json:"permissions"        db:"permissions"`
	CreatedAt    time.Time  `json:"createdAt"          db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt"          db:"updated_at"`
}

// HasPassword reports whether the user can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// ExternalID returns the user's ID at provider p, or "" when unlinked.
func (u *User) ExternalID(p Provider) string {
	var id *string
	switch p {
	case ProviderGoogle:
		id = u.GoogleID
	case ProviderGitHub:
		id = u.GitHubID
	}
	if id == nil {
		return ""
	}
	return *id
}

// SetExternalID links the user to provider p.
func (u *User) SetExternalID(p Provider, externalID string) {
	id := externalID
	switch p {
	case ProviderGoogle:
		u.GoogleID = &id
	case ProviderGitHub:
		u.GitHubID = &id
	}
}

// AuthUser projects the record onto the claims carried in tokens.
func (u *User) AuthUser() AuthUser {
	a := AuthUser{
		ID:          u.ID,
		Roles:       append([]string{}, u.Roles...),
		Permissions: append([]string{}, u.Permissions...),
	}
	if u.TenantID != nil {
		a.TenantID = *u.TenantID
	}
	return a
}
