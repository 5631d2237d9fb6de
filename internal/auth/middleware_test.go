package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/elibrary/internal/blocklist"
	"github.com/Skotchmaster/elibrary/internal/mail"
	"github.com/Skotchmaster/elibrary/internal/models"
	"github.com/Skotchmaster/elibrary/internal/mykafka"
	"github.com/Skotchmaster/elibrary/internal/service"
	"github.com/Skotchmaster/elibrary/internal/tokens"
)

type authFixture struct {
	mw    *Middleware
	users *service.UserService
	mr    *miniredis.Miniredis
	e     *echo.Echo
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Book{}, &models.Download{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	mr := miniredis.RunT(t)
	registry := blocklist.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { registry.Close() })

	codec := tokens.NewCodec([]byte("test_secret"))
	producer := &mykafka.Producer{}
	users := &service.UserService{
		DB:        db,
		Codec:     codec,
		Blocklist: registry,
		Mailer:    &mail.Mailer{Producer: producer},
		Producer:  producer,
	}

	return &authFixture{
		mw:    &Middleware{Codec: codec, Blocklist: registry, Users: users},
		users: users,
		mr:    mr,
		e:     echo.New(),
	}
}

func (f *authFixture) createUser(t *testing.T, email, role string) *models.User {
	t.Helper()

	user := &models.User{
		Username:     "test_user",
		Email:        email,
		PasswordHash: "irrelevant",
		Role:         role,
	}
	require.NoError(t, f.users.DB.Create(user).Error)
	return user
}

func (f *authFixture) accessToken(t *testing.T, user *models.User) string {
	t.Helper()

	raw, err := f.mw.Codec.IssueAccess(tokens.UserSummary{Email: user.Email, UID: user.UID, Role: user.Role})
	require.NoError(t, err)
	return raw
}

// newContext builds an echo context; the setup callback attaches the
// credential to the request before it is dispatched.
func (f *authFixture) newContext(setup func(*http.Request)) echo.Context {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if setup != nil {
		setup(req)
	}
	return f.e.NewContext(req, httptest.NewRecorder())
}

func okHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func requireHTTPError(t *testing.T, err error, code int) {
	t.Helper()

	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, code, he.Code)
}

func TestAuthenticateWithCookie(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "a@x.com", models.RoleUser)
	token := f.accessToken(t, user)

	c := f.newContext(func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "Bearer " + token})
	})

	err := f.mw.Authenticate(func(c echo.Context) error {
		require.Equal(t, user.UID, CurrentUser(c).UID)
		require.NotEmpty(t, CurrentClaims(c).ID)
		return okHandler(c)
	})(c)
	require.NoError(t, err)
}

func TestAuthenticateWithHeader(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "a@x.com", models.RoleUser)
	token := f.accessToken(t, user)

	c := f.newContext(func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	})

	require.NoError(t, f.mw.Authenticate(okHandler)(c))
}

func TestAuthenticateMissingToken(t *testing.T) {
	f := newAuthFixture(t)

	err := f.mw.Authenticate(okHandler)(f.newContext(nil))
	requireHTTPError(t, err, http.StatusUnauthorized)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	f := newAuthFixture(t)

	c := f.newContext(func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer not.a.token")
	})
	requireHTTPError(t, f.mw.Authenticate(okHandler)(c), http.StatusUnauthorized)
}

func TestAuthenticateRejectsRefreshToken(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "a@x.com", models.RoleUser)

	refresh, err := f.mw.Codec.IssueRefresh(tokens.UserSummary{Email: user.Email, UID: user.UID, Role: user.Role})
	require.NoError(t, err)

	c := f.newContext(func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+refresh)
	})
	requireHTTPError(t, f.mw.Authenticate(okHandler)(c), http.StatusForbidden)
}

func TestAuthenticateRejectsRevokedToken(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "a@x.com", models.RoleUser)
	token := f.accessToken(t, user)

	claims, err := f.mw.Codec.Decode(token)
	require.NoError(t, err)
	require.NoError(t, f.mw.Blocklist.Revoke(context.Background(), claims.ID, claims.RemainingTTL(time.Now())))

	c := f.newContext(func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	})
	requireHTTPError(t, f.mw.Authenticate(okHandler)(c), http.StatusUnauthorized)
}

func TestAuthenticateFailsOpenWhenRegistryDown(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "a@x.com", models.RoleUser)
	token := f.accessToken(t, user)

	f.mr.Close()

	c := f.newContext(func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	})
	require.NoError(t, f.mw.Authenticate(okHandler)(c))
}

func TestAuthenticateRejectsDeletedAccount(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "a@x.com", models.RoleUser)
	token := f.accessToken(t, user)

	require.NoError(t, f.users.DB.Delete(&models.User{}, "uid = ?", user.UID).Error)

	c := f.newContext(func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	})
	requireHTTPError(t, f.mw.Authenticate(okHandler)(c), http.StatusUnauthorized)
}

func TestOptionalAuthenticate(t *testing.T) {
	f := newAuthFixture(t)

	// Anonymous requests go through without an identity.
	err := f.mw.OptionalAuthenticate(func(c echo.Context) error {
		require.Nil(t, CurrentUser(c))
		return okHandler(c)
	})(f.newContext(nil))
	require.NoError(t, err)

	// A bad credential is still rejected, not ignored.
	c := f.newContext(func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer not.a.token")
	})
	requireHTTPError(t, f.mw.OptionalAuthenticate(okHandler)(c), http.StatusUnauthorized)
}

func TestRequireRefresh(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "a@x.com", models.RoleUser)

	refresh, err := f.mw.Codec.IssueRefresh(tokens.UserSummary{Email: user.Email, UID: user.UID, Role: user.Role})
	require.NoError(t, err)

	c := f.newContext(func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: RefreshCookie, Value: refresh})
	})
	err = f.mw.RequireRefresh(func(c echo.Context) error {
		require.True(t, CurrentClaims(c).Refresh)
		return okHandler(c)
	})(c)
	require.NoError(t, err)

	// An access token cannot mint new access tokens.
	access := f.accessToken(t, user)
	c = f.newContext(func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+access)
	})
	requireHTTPError(t, f.mw.RequireRefresh(okHandler)(c), http.StatusForbidden)

	requireHTTPError(t, f.mw.RequireRefresh(okHandler)(f.newContext(nil)), http.StatusUnauthorized)
}

func TestRequireVerified(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "a@x.com", models.RoleUser)
	token := f.accessToken(t, user)

	c := f.newContext(func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	})
	requireHTTPError(t, f.mw.Authenticate(RequireVerified(okHandler))(c), http.StatusForbidden)

	require.NoError(t, f.users.DB.Model(user).Update("is_verified", true).Error)

	c = f.newContext(func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	})
	require.NoError(t, f.mw.Authenticate(RequireVerified(okHandler))(c))
}

func TestRequireCapability(t *testing.T) {
	f := newAuthFixture(t)

	cases := []struct {
		role       string
		capability string
		wantCode   int // 0 means allowed
	}{
		{models.RoleUser, "authenticated", 0},
		{models.RoleUser, "catalog:write", http.StatusForbidden},
		{models.RoleAdmin, "catalog:write", 0},
		{models.RoleSuperadmin, "catalog:write", 0},
		{models.RoleAdmin, "roles:write", http.StatusForbidden},
		{models.RoleSuperadmin, "roles:write", 0},
		{models.RoleSuperadmin, "no-such-capability", http.StatusForbidden},
	}

	for i, tc := range cases {
		user := f.createUser(t, userEmail(i), tc.role)
		token := f.accessToken(t, user)

		c := f.newContext(func(r *http.Request) {
			r.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		})
		err := f.mw.Require(tc.capability)(okHandler)(c)

		if tc.wantCode == 0 {
			require.NoError(t, err, "role %s capability %s", tc.role, tc.capability)
		} else {
			requireHTTPError(t, err, tc.wantCode)
		}
	}
}

func userEmail(i int) string {
	return string(rune('a'+i)) + "@x.com"
}
