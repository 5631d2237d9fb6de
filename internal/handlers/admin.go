package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/elibrary/internal/apperr"
	"github.com/Skotchmaster/elibrary/internal/blocklist"
	"github.com/Skotchmaster/elibrary/internal/service"
)

type AdminHandler struct {
	Users     *service.UserService
	Books     *service.BookService
	Blocklist *blocklist.Blocklist
}

func (h *AdminHandler) ListUsers(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))

	users, total, err := h.Users.ListUsers(page, size)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "users": users})
}

func (h *AdminHandler) UserDownloads(c echo.Context) error {
	user, err := h.Users.GetByUID(c.Param("uid"))
	if err != nil {
		return apperr.HTTPError(err)
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	downloads, total, err := h.Books.ListDownloads(user.UID, page, size)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "downloads": downloads})
}

func (h *AdminHandler) bindEmail(c echo.Context) (string, error) {
	var req struct {
		Email string `json:"email" form:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}
	return req.Email, nil
}

// MakeAdmin grants the admin role to the named account. Superadmin-only.
func (h *AdminHandler) MakeAdmin(c echo.Context) error {
	email, err := h.bindEmail(c)
	if err != nil {
		return err
	}

	user, uerr := h.Users.MakeAdmin(c.Request().Context(), email)
	if uerr != nil {
		return apperr.HTTPError(uerr)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *AdminHandler) RevokeAdmin(c echo.Context) error {
	email, err := h.bindEmail(c)
	if err != nil {
		return err
	}

	user, uerr := h.Users.RevokeAdmin(c.Request().Context(), email)
	if uerr != nil {
		return apperr.HTTPError(uerr)
	}
	return c.JSON(http.StatusOK, user)
}

// ClearBlocklist drops every revocation entry. Ops utility, superadmin-only.
func (h *AdminHandler) ClearBlocklist(c echo.Context) error {
	if err := h.Blocklist.ClearAll(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "revocation registry unreachable")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "blocklist cleared"})
}
