package rest

import (
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"roombooking/backend/internal/domain"
)

const identityKey = "identity"

// Identify attaches the requester identity carried by a bearer token. A
// missing or unverifiable token leaves the request anonymous; handlers that
// need a caller let the engine reject the zero identity.
func Identify(tokens tokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if tokens == nil {
				return next(c)
			}
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return next(c)
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			who, err := tokens.Verify(raw)
			if err == nil {
				c.Set(identityKey, who)
			}
			return next(c)
		}
	}
}

func identityFrom(c echo.Context) domain.Identity {
	who, _ := c.Get(identityKey).(domain.Identity)
	return who
}

func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			}
			if who := identityFrom(c); !who.IsZero() {
				attrs = append(attrs, slog.String("user_id", who.UserID))
			}
			level := slog.LevelInfo
			if v.Status >= 500 {
				level = slog.LevelError
				if v.Error != nil {
					attrs = append(attrs, slog.Any("err", v.Error))
				}
			}
			log.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}
