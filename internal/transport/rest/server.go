// Package rest exposes the reservation engine, the calendar queries and the
// account directory over HTTP.
package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"roombooking/backend/internal/domain"
	"roombooking/backend/internal/service/accounts"
	"roombooking/backend/internal/service/calendar"
	"roombooking/backend/internal/service/reservations"
)

type reservationEngine interface {
	Create(ctx context.Context, who domain.Identity, in reservations.CreateInput) (domain.Reservation, error)
	Cancel(ctx context.Context, who domain.Identity, reservationID string) error
}

type calendarQueries interface {
	Rooms(ctx context.Context) ([]domain.Room, error)
	BookingsForRoom(ctx context.Context, roomID string) ([]domain.Reservation, error)
	Feed(ctx context.Context, rangeStart, rangeEnd string, viewer domain.Identity) ([]calendar.FeedEntry, error)
}

type accountDirectory interface {
	Register(ctx context.Context, firstName, lastName, email string) (accounts.Session, error)
	Login(ctx context.Context, email string) (accounts.Session, error)
}

type tokenVerifier interface {
	Verify(raw string) (domain.Identity, error)
}

type Deps struct {
	Engine    reservationEngine
	Calendar  calendarQueries
	Accounts  accountDirectory
	Tokens    tokenVerifier
	RateLimit echo.MiddlewareFunc
	Log       *slog.Logger

	// RequestTimeout bounds each request's context. Zero disables it.
	RequestTimeout time.Duration
}

type Server struct {
	engine   reservationEngine
	calendar calendarQueries
	accounts accountDirectory
	log      *slog.Logger
}

// New builds the echo instance with every route registered.
func New(d Deps) *echo.Echo {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "http"))

	s := &Server{
		engine:   d.Engine,
		calendar: d.Calendar,
		accounts: d.Accounts,
		log:      log,
	}

	limit := d.RateLimit
	if limit == nil {
		limit = passThrough
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleHTTPError

	e.Use(middleware.Recover())
	e.Use(requestLogger(log))
	if d.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeout(d.RequestTimeout))
	}
	e.Use(Identify(d.Tokens))

	e.GET("/healthz", s.health)

	api := e.Group("/api")
	api.POST("/auth/register", s.register, limit)
	api.POST("/auth/login", s.login, limit)
	api.GET("/rooms", s.listRooms)
	api.GET("/rooms/:id/bookings", s.listRoomBookings)
	api.GET("/bookings", s.feed)
	api.POST("/bookings", s.createBooking, limit)
	api.DELETE("/bookings/:id", s.cancelBooking, limit)

	return e
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc {
	return next
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (s *Server) handleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := "internal error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	} else {
		s.log.Error("unhandled error", slog.Any("err", err), slog.String("path", c.Path()))
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, echo.Map{"error": msg})
}
