package session

import "fmt"

// Provenance identifies which login path produced a credential.
type Provenance int

const (
	PasswordLogin Provenance = iota
	OAuthLogin
)

func (p Provenance) String() string {
	switch p {
	case PasswordLogin:
		return "password"
	case OAuthLogin:
		return "oauth"
	default:
		return fmt.Sprintf("provenance(%d)", int(p))
	}
}

// Credential is the bundle returned by a successful login or sign-up.
type Credential struct {
	AccessToken     string     // Bearer token from a password login
	RefreshToken    string     // Stored for callers, never exchanged
	Provenance      Provenance // Which login path produced the credential
	OAuthIdentifier string     // Provider-supplied bearer used instead of AccessToken for OAuth logins
}

// authoritativeToken returns the token whose exp decides the credential's lifetime.
func (c Credential) authoritativeToken() string {
	if c.Provenance == OAuthLogin {
		return c.OAuthIdentifier
	}
	return c.AccessToken
}

// State is the derived authentication state of the current user.
type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Profile is display data cached alongside the credential for the signed-in user.
// The JSON keys match the dataUser cookie written by the existing web client.
type Profile struct {
	Name  string `json:"nama"`
	Email string `json:"email"`
	Image string `json:"img"`
}
