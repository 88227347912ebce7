package rest

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"roombooking/backend/internal/domain"
	"roombooking/backend/internal/service/accounts"
	"roombooking/backend/internal/service/reservations"
)

type createBookingRequest struct {
	RoomID string `json:"roomId"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

type loginRequest struct {
	Email string `json:"email"`
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	sess, err := s.accounts.Register(c.Request().Context(), req.FirstName, req.LastName, req.Email)
	if err != nil {
		return s.accountError(c, "register", err)
	}
	s.log.Info("user registered", slog.String("user_id", sess.User.ID))
	return c.JSON(http.StatusCreated, sess)
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	sess, err := s.accounts.Login(c.Request().Context(), req.Email)
	if err != nil {
		return s.accountError(c, "login", err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) accountError(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, accounts.ErrMissingField), errors.Is(err, accounts.ErrInvalidEmail):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, accounts.ErrEmailTaken):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, accounts.ErrUnknownEmail):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	default:
		s.log.Error("account "+op+" failed", slog.Any("err", err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

func (s *Server) listRooms(c echo.Context) error {
	rooms, err := s.calendar.Rooms(c.Request().Context())
	if err != nil {
		s.log.Error("rooms list failed", slog.Any("err", err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	return c.JSON(http.StatusOK, echo.Map{"rooms": rooms})
}

func (s *Server) listRoomBookings(c echo.Context) error {
	roomID := c.Param("id")
	rs, err := s.calendar.BookingsForRoom(c.Request().Context(), roomID)
	if err != nil {
		if errors.Is(err, reservations.ErrRoomNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
		}
		s.log.Error("room bookings list failed", slog.Any("err", err), slog.String("room_id", roomID))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if rs == nil {
		rs = []domain.Reservation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": rs})
}

func (s *Server) feed(c echo.Context) error {
	entries, err := s.calendar.Feed(c.Request().Context(), c.QueryParam("start"), c.QueryParam("end"), identityFrom(c))
	if err != nil {
		s.log.Error("calendar feed failed", slog.Any("err", err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": entries})
}

func (s *Server) createBooking(c echo.Context) error {
	who := identityFrom(c)
	if who.IsZero() {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": reservations.ErrUnauthenticated.Error()})
	}
	var req createBookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	r, err := s.engine.Create(c.Request().Context(), who, reservations.CreateInput{
		RoomID: req.RoomID,
		Start:  req.Start,
		End:    req.End,
	})
	if err != nil {
		if errors.Is(err, reservations.ErrConflict) {
			s.log.Info(
				"booking conflict",
				slog.String("user_id", who.UserID),
				slog.String("room_id", req.RoomID),
				slog.String("start", req.Start),
				slog.String("end", req.End),
			)
		}
		return s.engineError(c, "create", err)
	}

	s.log.Info(
		"booking created",
		slog.String("reservation_id", r.ID.String()),
		slog.String("user_id", r.UserID),
		slog.String("room_id", r.RoomID.String()),
		slog.Time("start", r.StartTime),
		slog.Time("end", r.EndTime),
	)
	return c.JSON(http.StatusCreated, echo.Map{"reservation": r})
}

func (s *Server) cancelBooking(c echo.Context) error {
	who := identityFrom(c)
	id := c.Param("id")
	if err := s.engine.Cancel(c.Request().Context(), who, id); err != nil {
		return s.engineError(c, "cancel", err)
	}
	s.log.Info("booking cancelled", slog.String("reservation_id", id), slog.String("user_id", who.UserID))
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func (s *Server) engineError(c echo.Context, op string, err error) error {
	code := engineStatus(err)
	if code == http.StatusInternalServerError {
		s.log.Error("booking "+op+" failed", slog.Any("err", err))
		return c.JSON(code, echo.Map{"error": "internal error"})
	}
	if code == http.StatusBadRequest {
		s.log.Warn("invalid request", slog.String("op", op), slog.Any("err", err))
	}
	return c.JSON(code, echo.Map{"error": err.Error()})
}

func engineStatus(err error) int {
	switch {
	case errors.Is(err, reservations.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, reservations.ErrRoomNotFound), errors.Is(err, reservations.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, reservations.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, reservations.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, reservations.ErrMissingField),
		errors.Is(err, reservations.ErrInvalidTimestamp),
		errors.Is(err, reservations.ErrInThePast),
		errors.Is(err, reservations.ErrInvalidRange),
		errors.Is(err, reservations.ErrDurationTooShort),
		errors.Is(err, reservations.ErrDurationTooLong):
		return http.StatusBadRequest
	}
	var vErr *reservations.ValidationError
	if errors.As(err, &vErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
