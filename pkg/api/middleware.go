package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wowdash/charlist/pkg/secrets"
)

// OriginSecretHeader is the shared-secret header the CDN adds on the
// origin hop. Requests without it bypassed the CDN and are rejected.
const OriginSecretHeader = "X-Origin-Secret"

func (s *Server) RequireOriginSecret(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		value := c.Request().Header.Get(OriginSecretHeader)
		if value == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}

		secret, err := s.secrets.Get(c.Request().Context(), secrets.NameOriginSecret)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "origin secret unavailable").SetInternal(err)
		}

		if subtle.ConstantTimeCompare([]byte(value), []byte(secret)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}

		return next(c)
	}
}
