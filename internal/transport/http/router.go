package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/elibrary/internal/auth"
	"github.com/Skotchmaster/elibrary/internal/blocklist"
	"github.com/Skotchmaster/elibrary/internal/handlers"
)

type Deps struct {
	DB        *gorm.DB
	Blocklist *blocklist.Blocklist
	Auth      *auth.Middleware

	AuthHandler   *handlers.AuthHandler
	BookHandler   *handlers.BookHandler
	AdminHandler  *handlers.AdminHandler
	SearchHandler *handlers.SearchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		ctx := c.Request().Context()
		if sqlDB, err := d.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"database": "down"})
		}
		if err := d.Blocklist.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"redis": "down"})
		}
		return c.NoContent(http.StatusOK)
	})

	v1 := e.Group("/api/v1")

	authg := v1.Group("/auth")
	authg.POST("/signup", d.AuthHandler.Signup)
	authg.POST("/login", d.AuthHandler.Login)
	authg.POST("/logout", d.AuthHandler.Logout)
	authg.GET("/refresh", d.AuthHandler.Refresh, d.Auth.RequireRefresh)
	authg.GET("/verify", d.AuthHandler.VerifyEmail)
	authg.POST("/forgot-password", d.AuthHandler.ForgotPassword)
	authg.POST("/reset-password", d.AuthHandler.ResetPassword)
	authg.GET("/me", d.AuthHandler.Me, d.Auth.Require("authenticated"))
	authg.PATCH("/me", d.AuthHandler.UpdateMe, d.Auth.Require("authenticated"))
	authg.POST("/change-password", d.AuthHandler.ChangePassword, d.Auth.Require("authenticated"))

	books := v1.Group("/books")
	books.GET("", d.BookHandler.List)
	books.GET("/search", d.BookHandler.SearchDB)
	books.GET("/download", d.BookHandler.Download)
	books.GET("/:uid", d.BookHandler.Get)
	books.POST("", d.BookHandler.Create, d.Auth.Require("catalog:write"))
	books.DELETE("/:uid", d.BookHandler.Delete, d.Auth.Require("catalog:write"))
	books.POST("/:uid/download", d.BookHandler.RequestDownload, d.Auth.Require("authenticated"), auth.RequireVerified)

	v1.GET("/search", d.SearchHandler.Search)
	v1.GET("/me/downloads", d.BookHandler.MyDownloads, d.Auth.Require("authenticated"))

	admin := v1.Group("/admin")
	admin.GET("/users", d.AdminHandler.ListUsers, d.Auth.Require("users:read"))
	admin.GET("/users/:uid/downloads", d.AdminHandler.UserDownloads, d.Auth.Require("users:read"))
	admin.POST("/users/promote", d.AdminHandler.MakeAdmin, d.Auth.Require("roles:write"))
	admin.POST("/users/demote", d.AdminHandler.RevokeAdmin, d.Auth.Require("roles:write"))
	admin.DELETE("/blocklist", d.AdminHandler.ClearBlocklist, d.Auth.Require("roles:write"))
}
