package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTTL is the fixed access-token lifetime existing mobile
// clients were built against.
const DefaultAccessTTL = 30 * time.Minute

// TokenClass separates access from refresh credentials. A token minted for
// one class never verifies as the other, even under the correct secret.
type TokenClass string

const (
	TokenClassAccess  TokenClass = "access"
	TokenClassRefresh TokenClass = "refresh"
)

// Claims are the signed token claims used across the service.
type Claims struct {
	TokenClass string `json:"token_class"`
	jwt.RegisteredClaims
}

// Codec signs and verifies bearer tokens. It is stateless: refresh-token
// revocation is a store-membership concern and lives in the Session Manager.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	now           func() time.Time
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec) error

// WithAccessTTL overrides the access-token lifetime.
func WithAccessTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) error {
		if ttl <= 0 {
			return errors.New("auth: access ttl must be positive")
		}
		c.accessTTL = ttl
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) error {
		c.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithCodecClock overrides the time source (useful for expiry tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) error {
		if fn != nil {
			c.now = fn
		}
		return nil
	}
}

// NewCodec constructs a Codec. The two secrets must be non-empty and
// distinct so a refresh token can never double as an access token.
func NewCodec(accessSecret, refreshSecret string, opts ...CodecOption) (*Codec, error) {
	accessSecret = strings.TrimSpace(accessSecret)
	refreshSecret = strings.TrimSpace(refreshSecret)
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("auth: both token secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	c := &Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        "wayfarer",
		accessTTL:     DefaultAccessTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AccessTTL reports the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

// IssueAccessToken signs a short-lived access token for the account.
func (c *Codec) IssueAccessToken(accountID string) (string, time.Time, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", time.Time{}, errors.New("auth: account id is required")
	}
	now := c.now().UTC()
	exp := now.Add(c.accessTTL)
	claims := Claims{
		TokenClass: string(TokenClassAccess),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefreshToken signs a refresh token for the account. Refresh tokens
// carry no expiry claim; they stay valid until removed from the account's
// persisted set.
func (c *Codec) IssueRefreshToken(accountID string) (string, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", errors.New("auth: account id is required")
	}
	now := c.now().UTC()
	claims := Claims{
		TokenClass: string(TokenClassRefresh),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   c.issuer,
			Subject:  accountID,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
}

// Verify checks signature and claims for the given token class and returns
// the decoded claims. Expiry is reported as ErrTokenExpired; every other
// failure collapses into ErrInvalidToken. Verifying a refresh token says
// nothing about revocation: callers must still check set membership.
func (c *Codec) Verify(token string, class TokenClass) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	secret := c.accessSecret
	if class == TokenClassRefresh {
		secret = c.refreshSecret
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.now),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenClass != string(class) {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
