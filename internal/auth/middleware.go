package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/elibrary/internal/blocklist"
	"github.com/Skotchmaster/elibrary/internal/logging"
	"github.com/Skotchmaster/elibrary/internal/models"
	"github.com/Skotchmaster/elibrary/internal/service"
	"github.com/Skotchmaster/elibrary/internal/tokens"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"

	userKey   = "auth.user"
	claimsKey = "auth.claims"
)

// Middleware resolves the bearer credential on each request and enforces
// the per-route capability table.
type Middleware struct {
	Codec     *tokens.Codec
	Blocklist *blocklist.Blocklist
	Users     *service.UserService
}

// ExtractToken pulls the bearer string from the access-token cookie (which
// may carry a literal "Bearer " prefix) or, failing that, from the
// Authorization header. Cookie wins when both are present.
func ExtractToken(c echo.Context) (string, bool) {
	if cookie, err := c.Cookie(AccessCookie); err == nil && cookie.Value != "" {
		return strings.TrimPrefix(cookie.Value, "Bearer "), true
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer "), true
	}
	return "", false
}

// resolve walks the request through decode, kind-check, revocation-check and
// identity lookup. The revocation check fails open when the registry is
// down: reads favor availability, logout is the one path that must not.
func (m *Middleware) resolve(c echo.Context, raw string) (*models.User, *tokens.Claims, error) {
	claims, err := m.Codec.Decode(raw)
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}

	if claims.Refresh {
		return nil, nil, echo.NewHTTPError(http.StatusForbidden, "provide a valid access token")
	}

	ctx := c.Request().Context()
	if revoked, err := m.Blocklist.IsRevoked(ctx, claims.ID); err != nil {
		logging.FromContext(ctx).Warn("revocation registry unreachable, skipping check", "error", err)
	} else if revoked {
		return nil, nil, echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
	}

	user, err := m.Users.GetByEmail(claims.User.Email)
	if err != nil {
		// Account deleted after the token was issued.
		return nil, nil, echo.NewHTTPError(http.StatusUnauthorized, "user not found")
	}

	return user, claims, nil
}

// Authenticate is the required-identity resolver: no credential is a 401.
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := ExtractToken(c)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}

		user, claims, err := m.resolve(c, raw)
		if err != nil {
			return err
		}

		c.Set(userKey, user)
		c.Set(claimsKey, claims)
		return next(c)
	}
}

// OptionalAuthenticate resolves an identity when a credential is present and
// lets the request through anonymously when none is.
func (m *Middleware) OptionalAuthenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := ExtractToken(c)
		if !ok {
			return next(c)
		}

		user, claims, err := m.resolve(c, raw)
		if err != nil {
			return err
		}

		c.Set(userKey, user)
		c.Set(claimsKey, claims)
		return next(c)
	}
}

// RequireRefresh guards the token-refresh endpoint: only a refresh-kind
// token is accepted there, from the refresh cookie or the header.
func (m *Middleware) RequireRefresh(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := ""
		if cookie, err := c.Cookie(RefreshCookie); err == nil && cookie.Value != "" {
			raw = cookie.Value
		} else if header := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(header, "Bearer ") {
			raw = strings.TrimPrefix(header, "Bearer ")
		}
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "refresh token required")
		}

		claims, err := m.Codec.Decode(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}
		if !claims.Refresh {
			return echo.NewHTTPError(http.StatusForbidden, "refresh token required")
		}

		ctx := c.Request().Context()
		if revoked, err := m.Blocklist.IsRevoked(ctx, claims.ID); err != nil {
			logging.FromContext(ctx).Warn("revocation registry unreachable, skipping check", "error", err)
		} else if revoked {
			return echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
		}

		c.Set(claimsKey, claims)
		return next(c)
	}
}

// RequireVerified rejects accounts that have not confirmed their email.
// Applied after Authenticate.
func RequireVerified(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := CurrentUser(c)
		if user == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		if !user.IsVerified {
			return echo.NewHTTPError(http.StatusForbidden, "please verify your email address to perform this action")
		}
		return next(c)
	}
}

func CurrentUser(c echo.Context) *models.User {
	if u, ok := c.Get(userKey).(*models.User); ok {
		return u
	}
	return nil
}

func CurrentClaims(c echo.Context) *tokens.Claims {
	if cl, ok := c.Get(claimsKey).(*tokens.Claims); ok {
		return cl
	}
	return nil
}
