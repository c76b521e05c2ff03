// Package users supplies the pool of virtual-user identities a load run
// drives, authenticating them before the run starts.
package users

import (
	"time"
)

// Credential is the token material obtained when a user authenticates.
type Credential struct {
	AccessToken  string    `json:"accessToken" yaml:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty" yaml:"refreshToken,omitempty"`
	Scope        string    `json:"scope,omitempty" yaml:"scope,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty" yaml:"expiry,omitempty"`
}

// User is a virtual-user identity.
//
// Users are passed by value and treated as immutable once authenticated:
// authentication returns a new User carrying the Credential.
type User struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"-" yaml:"password,omitempty"`
	ID       string `json:"id" yaml:"id,omitempty"`
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`

	Credential *Credential `json:"credential,omitempty" yaml:"credential,omitempty"`
}

// Authenticated reports whether the user carries an access token.
func (u User) Authenticated() bool {
	return u.Credential != nil && u.Credential.AccessToken != ""
}

// AccessToken returns the user's access token, or "" when unauthenticated.
func (u User) AccessToken() string {
	if u.Credential == nil {
		return ""
	}
	return u.Credential.AccessToken
}

// WithCredential returns a copy of u carrying cred.
func (u User) WithCredential(cred *Credential) User {
	u.Credential = cred
	return u
}

// InRegion reports whether the user belongs to region. An empty region
// matches every user.
func (u User) InRegion(region string) bool {
	return region == "" || u.Region == region
}
