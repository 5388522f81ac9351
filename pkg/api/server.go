// Package api exposes the HTTP surface of the character list service:
// the two legs of the login redirect dance and the aggregated character
// listing, all mounted below /api behind the CDN.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wowdash/charlist/pkg/auth"
	"github.com/wowdash/charlist/pkg/battlenet"
	"github.com/wowdash/charlist/pkg/roster"
	"github.com/wowdash/charlist/pkg/secrets"
	"github.com/wowdash/charlist/pkg/session"
)

const (
	contextCookieName = "authContext"
	sessionCookieName = "session"

	sessionContextKey = "charlist.session"

	// short client cache, longer shared cache at the CDN
	charactersCacheControl = "max-age=300, s-maxage=3600"
)

type Option func(*Server)

// WithOriginCheck requires the CDN origin secret header on every API
// request. Leave it off for local development without a CDN in front.
func WithOriginCheck() Option {
	return func(s *Server) {
		s.checkOrigin = true
	}
}

type Server struct {
	auth        *auth.Manager
	aggregator  *roster.Aggregator
	secrets     secrets.Provider
	checkOrigin bool
}

func NewServer(authManager *auth.Manager, aggregator *roster.Aggregator, secretsProvider secrets.Provider, opts ...Option) *Server {
	s := &Server{
		auth:       authManager,
		aggregator: aggregator,
		secrets:    secretsProvider,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func ErrorLogMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err != nil {
			slog.Error("request failed", "error", err, "path", c.Path(), "remote_addr", c.RealIP())
		}
		return err
	}
}

// MountRoutes mounts the API below the given group, which is expected to
// be rooted at /api.
func (s *Server) MountRoutes(group *echo.Group) {
	group.Use(ErrorLogMiddleware)
	if s.checkOrigin {
		group.Use(s.RequireOriginSecret)
	}

	group.GET("/auth/start", s.StartAuth)
	group.GET("/auth/callback", s.AuthCallback)
	group.GET("/characters/:region", s.ListCharacters, s.RequireSession)
}

// StartAuth begins the redirect dance: the sealed authorization context
// goes into a short-lived cookie scoped to the auth path, the client goes
// to the provider.
func (s *Server) StartAuth(c echo.Context) error {
	redirect, err := s.auth.BeginAuthorization(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "unable to start authorization").SetInternal(err)
	}

	c.SetCookie(&http.Cookie{
		Name:     contextCookieName,
		Value:    redirect.SealedContext,
		Path:     "/api/auth",
		MaxAge:   int(redirect.ContextTTL.Seconds()),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	})

	return c.Redirect(http.StatusFound, redirect.RedirectURL)
}

// AuthCallback finishes the dance: consumes the context cookie, exchanges
// the code and hands the sealed session back as the API cookie.
func (s *Server) AuthCallback(c echo.Context) error {
	contextCookie, err := c.Cookie(contextCookieName)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing authContext cookie")
	}

	// the context is single-use, expire it regardless of outcome
	c.SetCookie(&http.Cookie{
		Name:     contextCookieName,
		Value:    "deleted",
		Path:     "/api/auth",
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	})

	grant, err := s.auth.CompleteAuthorization(c.Request().Context(), c.QueryString(), contextCookie.Value)
	if errors.Is(err, auth.ErrInvalidContext) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid authContext cookie").SetInternal(err)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "login failed").SetInternal(err)
	}

	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    grant.SealedSession,
		Path:     "/api",
		MaxAge:   grant.ExpiresIn,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	return c.Redirect(http.StatusFound, "/")
}

// RequireSession validates the session cookie and stashes the claims for
// the handler. Every failure is a 401; the frontend reacts by restarting
// the login flow.
func (s *Server) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(sessionCookieName)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "no session cookie")
		}

		sess, err := s.auth.ValidateSession(c.Request().Context(), cookie.Value)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid session").SetInternal(err)
		}

		c.Set(sessionContextKey, sess)
		return next(c)
	}
}

func (s *Server) ListCharacters(c echo.Context) error {
	region, err := battlenet.ParseRegion(c.Param("region"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid region")
	}

	sess, ok := c.Get(sessionContextKey).(*session.Session)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no session")
	}

	list, err := s.aggregator.List(c.Request().Context(), region, sess.AccessToken)
	if errors.Is(err, battlenet.ErrUnauthorized) {
		return echo.NewHTTPError(http.StatusUnauthorized, "access token rejected")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream unavailable").SetInternal(err)
	}

	c.Response().Header().Set("Cache-Control", charactersCacheControl)
	return c.JSON(http.StatusOK, list)
}
