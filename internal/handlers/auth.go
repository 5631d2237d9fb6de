package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/elibrary/internal/apperr"
	"github.com/Skotchmaster/elibrary/internal/auth"
	"github.com/Skotchmaster/elibrary/internal/service"
	"github.com/Skotchmaster/elibrary/internal/tokens"
)

type AuthHandler struct {
	Users *service.UserService
	Codec *tokens.Codec
}

func CreateCookie(name string, value string, path string, expTime time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expTime,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func DeleteCookie(name, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *AuthHandler) Signup(c echo.Context) error {
	var req service.SignupData
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	user, err := h.Users.Create(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTPError(err)
	}

	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	result, err := h.Users.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return apperr.HTTPError(err)
	}

	// The access cookie carries the "Bearer " prefix; the resolver strips it.
	c.SetCookie(CreateCookie(auth.AccessCookie, "Bearer "+result.AccessToken, "/", time.Now().Add(tokens.AccessTTL)))
	c.SetCookie(CreateCookie(auth.RefreshCookie, result.RefreshToken, "/", time.Now().Add(tokens.RefreshTTL)))

	return c.JSON(http.StatusOK, echo.Map{
		"message":       "Login Successful",
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user":          result.User,
	})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	claims := auth.CurrentClaims(c)
	if claims == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token required")
	}

	accessToken, err := h.Codec.IssueAccess(claims.User)
	if err != nil {
		return apperr.HTTPError(err)
	}

	c.SetCookie(CreateCookie(auth.AccessCookie, "Bearer "+accessToken, "/", time.Now().Add(tokens.AccessTTL)))
	return c.JSON(http.StatusOK, echo.Map{"access_token": accessToken})
}

// Logout revokes the presented tokens and clears the cookies. With no valid
// credential there is nothing to revoke and the call still succeeds, so a
// second logout with the same cookie is a no-op, not an error. When the
// revocation registry is down the handler returns 503 and leaves the
// cookies in place: the server-side guarantee could not be made.
func (h *AuthHandler) Logout(c echo.Context) error {
	clearAndRespond := func() error {
		c.SetCookie(DeleteCookie(auth.AccessCookie, "/"))
		c.SetCookie(DeleteCookie(auth.RefreshCookie, "/"))
		return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
	}

	raw, ok := auth.ExtractToken(c)
	if !ok {
		return clearAndRespond()
	}

	claims, err := h.Codec.Decode(raw)
	if err != nil {
		return clearAndRespond()
	}

	refreshRaw := ""
	if cookie, cerr := c.Cookie(auth.RefreshCookie); cerr == nil {
		refreshRaw = cookie.Value
	}

	if err := h.Users.RevokeSession(c.Request().Context(), claims, refreshRaw); err != nil {
		return apperr.HTTPError(err)
	}

	return clearAndRespond()
}

func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}

	user, err := h.Users.VerifyEmail(c.Request().Context(), token)
	if err != nil {
		return apperr.HTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Your email has been successfully verified. You can now log in.",
		"user":    user,
	})
}

// ForgotPassword answers the same way whether or not the account exists.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}

	h.Users.ForgotPassword(c.Request().Context(), req.Email)

	return c.JSON(http.StatusOK, echo.Map{
		"message": "If an account with that email exists, a password reset link has been sent.",
	})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	if err := h.Users.ResetPassword(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Password has been reset, you can now log in."})
}

func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, auth.CurrentUser(c))
}

func (h *AuthHandler) UpdateMe(c echo.Context) error {
	var req service.ProfileUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	user, err := h.Users.UpdateProfile(c.Request().Context(), auth.CurrentUser(c), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	if err := h.Users.ChangePassword(c.Request().Context(), auth.CurrentUser(c), req.OldPassword, req.NewPassword); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}
