package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Role names carried in the roles claim.
const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

// ErrInvalidToken is returned for any token that fails signature or claim checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the identity extracted from a verified access token.
type Claims struct {
	Subject string
	Email   string
	Roles   []string
}

// Verifier checks HS256 access tokens issued by the identity service. This
// service only consumes tokens; it never mints them.
type Verifier struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

// Parse verifies raw and returns its claims.
func (v Verifier) Parse(raw string) (Claims, error) {
	if len(v.Secret) == 0 {
		return Claims{}, errors.New("auth: verifier secret not configured")
	}
	tok, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256, v.Secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := jwt.Validate(tok, v.validateOptions()...); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(tok.Subject()) == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	claims := Claims{Subject: tok.Subject()}
	if email, ok := tok.PrivateClaims()["email"].(string); ok {
		claims.Email = email
	}
	claims.Roles = rolesClaim(tok.PrivateClaims()["roles"])
	return claims, nil
}

func (v Verifier) validateOptions() []jwt.ValidateOption {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(now)),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	return options
}

// rolesClaim accepts either a JSON array or a space separated string.
func rolesClaim(raw any) []string {
	switch val := raw.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, r := range val {
			if s, ok := r.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	case string:
		return strings.Fields(val)
	}
	return nil
}
