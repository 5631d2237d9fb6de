package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default lifetimes per token kind.
const (
	AccessTTL        = 60 * time.Minute
	RefreshTTL       = 48 * time.Hour
	VerificationTTL  = 24 * time.Hour
	PasswordResetTTL = 15 * time.Minute
	DownloadTTL      = 60 * time.Minute
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingJTI   = errors.New("token is missing the jti claim")
)

// UserSummary is the identity slice embedded in every token.
type UserSummary struct {
	Email string `json:"email"`
	UID   string `json:"user_uid"`
	Role  string `json:"role,omitempty"`
}

// Claims is the single claims shape for every token kind. The kind is a
// tagged variant: Refresh marks refresh tokens, Verification marks
// email-verification tokens, BookUID marks download tokens.
type Claims struct {
	User         UserSummary `json:"user"`
	Refresh      bool        `json:"refresh"`
	Verification bool        `json:"verification,omitempty"`
	BookUID      string      `json:"book_uid,omitempty"`
	jwt.RegisteredClaims
}

type Codec struct {
	Secret []byte
}

func NewCodec(secret []byte) *Codec {
	return &Codec{Secret: secret}
}

func (c *Codec) sign(claims Claims, ttl time.Duration) (string, error) {
	claims.ID = uuid.NewString()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	claims.IssuedAt = jwt.NewNumericDate(time.Now())

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.Secret)
}

func (c *Codec) IssueAccess(user UserSummary) (string, error) {
	return c.sign(Claims{User: user}, AccessTTL)
}

func (c *Codec) IssueRefresh(user UserSummary) (string, error) {
	return c.sign(Claims{User: user, Refresh: true}, RefreshTTL)
}

func (c *Codec) IssueVerification(user UserSummary) (string, error) {
	return c.sign(Claims{User: user, Verification: true}, VerificationTTL)
}

func (c *Codec) IssuePasswordReset(user UserSummary) (string, error) {
	return c.sign(Claims{User: user}, PasswordResetTTL)
}

func (c *Codec) IssueDownload(user UserSummary, bookUID string) (string, error) {
	return c.sign(Claims{User: user, BookUID: bookUID}, DownloadTTL)
}

// Decode validates the signature and expiry and returns the claims. A token
// without a jti is treated the same as a malformed one: the jti is the
// revocation key, so a token we cannot revoke is a token we do not accept.
func (c *Codec) Decode(raw string) (*Claims, error) {
	var claims Claims
	tkn, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return c.Secret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" {
		return nil, ErrMissingJTI
	}
	return &claims, nil
}

// RemainingTTL reports how long the token is still valid for, floored at zero.
// Used to size the revocation entry on logout.
func (cl *Claims) RemainingTTL(now time.Time) time.Duration {
	if cl.ExpiresAt == nil {
		return 0
	}
	d := cl.ExpiresAt.Time.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
