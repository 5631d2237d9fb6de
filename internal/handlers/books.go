package handlers

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/elibrary/internal/apperr"
	"github.com/Skotchmaster/elibrary/internal/auth"
	"github.com/Skotchmaster/elibrary/internal/service"
	"github.com/Skotchmaster/elibrary/internal/storage"
	"github.com/Skotchmaster/elibrary/internal/tokens"
)

type BookHandler struct {
	Books   *service.BookService
	Users   *service.UserService
	Codec   *tokens.Codec
	Storage storage.Backend
}

// Create takes a multipart form: the book file plus title/author/description
// fields. Admin-only at the route level.
func (h *BookHandler) Create(c echo.Context) error {
	data := service.BookCreate{
		Title:       c.FormValue("title"),
		Author:      c.FormValue("author"),
		Description: c.FormValue("description"),
		CoverImage:  c.FormValue("cover_image"),
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "book file is required")
	}
	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	defer src.Close()

	user := auth.CurrentUser(c)
	book, err := h.Books.SaveBook(c.Request().Context(), data, fileHeader.Filename, src, user.UID)
	if err != nil {
		return apperr.HTTPError(err)
	}

	return c.JSON(http.StatusCreated, book)
}

func (h *BookHandler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))

	books, total, err := h.Books.ListBooks(page, size)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "books": books})
}

func (h *BookHandler) Get(c echo.Context) error {
	book, err := h.Books.GetBook(c.Param("uid"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, book)
}

// SearchDB is the plain title/author lookup against the database. The
// full-text endpoint backed by the search index lives on SearchHandler.
func (h *BookHandler) SearchDB(c echo.Context) error {
	books, err := h.Books.SearchBooks(c.QueryParam("title"), c.QueryParam("author"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"books": books})
}

func (h *BookHandler) Delete(c echo.Context) error {
	if err := h.Books.DeleteBook(c.Request().Context(), c.Param("uid")); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RequestDownload hands the caller a short-lived download token bound to
// this book. The token, not the session, is what the download endpoint
// redeems, so the link can be passed to a download manager.
func (h *BookHandler) RequestDownload(c echo.Context) error {
	book, err := h.Books.GetBook(c.Param("uid"))
	if err != nil {
		return apperr.HTTPError(err)
	}

	user := auth.CurrentUser(c)
	token, err := h.Codec.IssueDownload(tokens.UserSummary{Email: user.Email, UID: user.UID, Role: user.Role}, book.UID)
	if err != nil {
		return apperr.HTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"download_token": token,
		"expires_in":     int(tokens.DownloadTTL.Seconds()),
	})
}

// Download redeems a download token: records the ledger entry and answers
// with the file (a stream for local storage, a redirect for object storage).
func (h *BookHandler) Download(c echo.Context) error {
	raw := c.QueryParam("token")
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}

	claims, err := h.Codec.Decode(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}
	if claims.Refresh || claims.BookUID == "" {
		return echo.NewHTTPError(http.StatusForbidden, "provide a valid download token")
	}

	book, err := h.Books.GetBook(claims.BookUID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	user, err := h.Users.GetByEmail(claims.User.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "user not found")
	}

	if _, err := h.Books.RecordDownload(c.Request().Context(), user, book); err != nil {
		return apperr.HTTPError(err)
	}

	displayName := book.Title + filepath.Ext(book.FileURL)
	return h.Storage.DownloadResponse(c, book.FileURL, displayName)
}

func (h *BookHandler) MyDownloads(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))

	user := auth.CurrentUser(c)
	downloads, total, err := h.Books.ListDownloads(user.UID, page, size)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "downloads": downloads})
}
