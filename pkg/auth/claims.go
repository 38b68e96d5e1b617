package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims is the JWT body. Buyer and seller are per-deal
// relationships, so the token only carries the platform role. The JTI names
// the access session that logout revokes.
type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered-claim checks during parsing.
func (c AccessTokenClaims) Validate() error {
	switch {
	case c.UserID == uuid.Nil:
		return errors.New("user id is required")
	case !c.Role.IsValid():
		return fmt.Errorf("invalid role %q", c.Role)
	case c.ID == "":
		return errors.New("session id (jti) is required")
	}
	return nil
}
