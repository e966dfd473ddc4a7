package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/rifa-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a staff JWT.
type AccessTokenPayload struct {
	Subject string
	Role    enums.StaffRole
	JTI     string
}

// AccessTokenClaims represents the typed JWT presented to the admin routes.
type AccessTokenClaims struct {
	Role enums.StaffRole `json:"role"`
	jwt.RegisteredClaims
}
