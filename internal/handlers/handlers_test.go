package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/elibrary/internal/apperr"
	"github.com/Skotchmaster/elibrary/internal/auth"
	"github.com/Skotchmaster/elibrary/internal/blocklist"
	"github.com/Skotchmaster/elibrary/internal/es"
	"github.com/Skotchmaster/elibrary/internal/handlers"
	"github.com/Skotchmaster/elibrary/internal/mail"
	"github.com/Skotchmaster/elibrary/internal/models"
	"github.com/Skotchmaster/elibrary/internal/mykafka"
	"github.com/Skotchmaster/elibrary/internal/service"
	"github.com/Skotchmaster/elibrary/internal/storage"
	"github.com/Skotchmaster/elibrary/internal/tokens"
	httpserver "github.com/Skotchmaster/elibrary/internal/transport/http"
)

// fixture wires the whole HTTP surface against in-memory backends: sqlite
// for the database, miniredis for the revocation registry, a temp dir for
// file storage and no kafka broker behind the producer.
type fixture struct {
	t     *testing.T
	e     *echo.Echo
	db    *gorm.DB
	mr    *miniredis.Miniredis
	users *service.UserService
	books *service.BookService
	codec *tokens.Codec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Book{}, &models.Download{}))

	mr := miniredis.RunT(t)
	registry := blocklist.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { registry.Close() })

	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	codec := tokens.NewCodec([]byte("test_secret"))
	producer := &mykafka.Producer{}
	mailer := &mail.Mailer{Producer: producer}

	users := &service.UserService{
		DB:        db,
		Codec:     codec,
		Blocklist: registry,
		Mailer:    mailer,
		Producer:  producer,
	}
	books := &service.BookService{
		DB:       db,
		Storage:  local,
		Producer: producer,
		Mailer:   mailer,
	}

	e := echo.New()
	e.HTTPErrorHandler = apperr.ErrorHandler

	httpserver.Register(e, &httpserver.Deps{
		DB:        db,
		Blocklist: registry,
		Auth:      &auth.Middleware{Codec: codec, Blocklist: registry, Users: users},

		AuthHandler:   &handlers.AuthHandler{Users: users, Codec: codec},
		BookHandler:   &handlers.BookHandler{Books: books, Users: users, Codec: codec, Storage: local},
		AdminHandler:  &handlers.AdminHandler{Users: users, Books: books, Blocklist: registry},
		SearchHandler: &handlers.SearchHandler{Index: es.BookIndex},
	})

	return &fixture{t: t, e: e, db: db, mr: mr, users: users, books: books, codec: codec}
}

// do runs one request through the router. A JSON body may be any
// marshallable value; cookies are attached as-is.
func (f *fixture) do(method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	f.t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}

	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) doMultipart(path string, fields map[string]string, filename, content string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	f.t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(f.t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(f.t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(f.t, err)
	require.NoError(f.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	for _, ck := range cookies {
		req.AddCookie(ck)
	}

	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// signup creates an account through the API and returns the stored user.
func (f *fixture) signup(email string) *models.User {
	f.t.Helper()

	rec := f.do(http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"username":   "test_user",
		"first_name": "Test",
		"last_name":  "User",
		"email":      email,
		"password":   "pw12345678",
	})
	require.Equal(f.t, http.StatusCreated, rec.Code)

	user, err := f.users.GetByEmail(email)
	require.NoError(f.t, err)
	return user
}

func (f *fixture) setRole(user *models.User, role string) {
	f.t.Helper()
	require.NoError(f.t, f.db.Model(user).Update("role", role).Error)
	user.Role = role
}

// login signs in through the API and returns the session cookies.
func (f *fixture) login(email string) (access, refresh *http.Cookie) {
	f.t.Helper()

	rec := f.do(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": "pw12345678",
	})
	require.Equal(f.t, http.StatusOK, rec.Code)

	for _, ck := range rec.Result().Cookies() {
		switch ck.Name {
		case auth.AccessCookie:
			access = ck
		case auth.RefreshCookie:
			refresh = ck
		}
	}
	require.NotNil(f.t, access)
	require.NotNil(f.t, refresh)
	return access, refresh
}

func (f *fixture) loginAs(email, role string) (access, refresh *http.Cookie) {
	f.t.Helper()

	user := f.signup(email)
	f.setRole(user, role)
	return f.login(email)
}
