package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the JWT claims carried by a relay identity token.
// It includes the standard claims plus the fields the relay needs to attach a
// logical user identity to transport sessions.
type Payload struct {
	// StandardClaims embeds the JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer), used for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the stable identifier for the participant, a guest id issued by
	// this server or an external account id.
	ID string `json:"id"`

	// Nickname is the display name shown in rooms and typing indicators.
	Nickname string `json:"nickname"`

	// UserType defines the role of the participant (e.g., "guest", "registered").
	UserType string `json:"user_type"`
}
