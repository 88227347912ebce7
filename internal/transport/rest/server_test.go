package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roombooking/backend/internal/domain"
	"roombooking/backend/internal/service/accounts"
	"roombooking/backend/internal/service/calendar"
	"roombooking/backend/internal/service/reservations"
)

type fakeEngine struct {
	createFn func(ctx context.Context, who domain.Identity, in reservations.CreateInput) (domain.Reservation, error)
	cancelFn func(ctx context.Context, who domain.Identity, reservationID string) error
}

func (f *fakeEngine) Create(ctx context.Context, who domain.Identity, in reservations.CreateInput) (domain.Reservation, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, who, in)
}

func (f *fakeEngine) Cancel(ctx context.Context, who domain.Identity, reservationID string) error {
	if f.cancelFn == nil {
		panic("Cancel not configured")
	}
	return f.cancelFn(ctx, who, reservationID)
}

type fakeCalendar struct {
	roomsFn    func(ctx context.Context) ([]domain.Room, error)
	bookingsFn func(ctx context.Context, roomID string) ([]domain.Reservation, error)
	feedFn     func(ctx context.Context, rangeStart, rangeEnd string, viewer domain.Identity) ([]calendar.FeedEntry, error)
}

func (f *fakeCalendar) Rooms(ctx context.Context) ([]domain.Room, error) {
	if f.roomsFn == nil {
		panic("Rooms not configured")
	}
	return f.roomsFn(ctx)
}

func (f *fakeCalendar) BookingsForRoom(ctx context.Context, roomID string) ([]domain.Reservation, error) {
	if f.bookingsFn == nil {
		panic("BookingsForRoom not configured")
	}
	return f.bookingsFn(ctx, roomID)
}

func (f *fakeCalendar) Feed(ctx context.Context, rangeStart, rangeEnd string, viewer domain.Identity) ([]calendar.FeedEntry, error) {
	if f.feedFn == nil {
		panic("Feed not configured")
	}
	return f.feedFn(ctx, rangeStart, rangeEnd, viewer)
}

type fakeAccounts struct {
	registerFn func(ctx context.Context, firstName, lastName, email string) (accounts.Session, error)
	loginFn    func(ctx context.Context, email string) (accounts.Session, error)
}

func (f *fakeAccounts) Register(ctx context.Context, firstName, lastName, email string) (accounts.Session, error) {
	if f.registerFn == nil {
		panic("Register not configured")
	}
	return f.registerFn(ctx, firstName, lastName, email)
}

func (f *fakeAccounts) Login(ctx context.Context, email string) (accounts.Session, error) {
	if f.loginFn == nil {
		panic("Login not configured")
	}
	return f.loginFn(ctx, email)
}

// staticTokens accepts "Bearer <user id>" for the identities it knows.
type staticTokens map[string]domain.Identity

func (s staticTokens) Verify(raw string) (domain.Identity, error) {
	who, ok := s[raw]
	if !ok {
		return domain.Identity{}, errors.New("invalid token")
	}
	return who, nil
}

var (
	john   = domain.Identity{UserID: "u-john", DisplayName: "John Doe"}
	tokens = staticTokens{"john-token": john}
)

func do(t *testing.T, e *echo.Echo, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	e := New(Deps{})
	rec := do(t, e, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestCreateBooking_Success(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	var gotWho domain.Identity
	var gotIn reservations.CreateInput
	engine := &fakeEngine{createFn: func(ctx context.Context, who domain.Identity, in reservations.CreateInput) (domain.Reservation, error) {
		gotWho, gotIn = who, in
		return domain.Reservation{
			ID:        uuid.New(),
			UserID:    who.UserID,
			Label:     who.DisplayName,
			RoomID:    domain.RoomID("Conference Room A"),
			StartTime: start,
			EndTime:   start.Add(time.Hour),
			CreatedAt: start.Add(-time.Hour),
		}, nil
	}}
	e := New(Deps{Engine: engine, Tokens: tokens})

	body := `{"roomId":"r1","start":"2026-03-02T10:00:00Z","end":"2026-03-02T11:00:00Z"}`
	rec := do(t, e, http.MethodPost, "/api/bookings", body, "john-token")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, john, gotWho)
	assert.Equal(t, reservations.CreateInput{RoomID: "r1", Start: "2026-03-02T10:00:00Z", End: "2026-03-02T11:00:00Z"}, gotIn)

	res, ok := decode(t, rec)["reservation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "u-john", res["userId"])
	assert.Equal(t, "John Doe", res["label"])
	assert.Equal(t, "2026-03-02T10:00:00Z", res["start"])
	assert.Equal(t, "2026-03-02T11:00:00Z", res["end"])
	assert.Contains(t, res, "createdAt")
	assert.Contains(t, res, "roomId")
}

func TestCreateBooking_InvalidTokenIsAnonymous(t *testing.T) {
	engine := &fakeEngine{createFn: func(ctx context.Context, who domain.Identity, in reservations.CreateInput) (domain.Reservation, error) {
		if who.IsZero() {
			return domain.Reservation{}, reservations.ErrUnauthenticated
		}
		return domain.Reservation{}, nil
	}}
	e := New(Deps{Engine: engine, Tokens: tokens})

	rec := do(t, e, http.MethodPost, "/api/bookings", `{}`, "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, reservations.ErrUnauthenticated.Error(), decode(t, rec)["error"])
}

func TestEngineErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthenticated", reservations.ErrUnauthenticated, http.StatusUnauthorized},
		{"missing field", reservations.ErrMissingField, http.StatusBadRequest},
		{"bad timestamp", reservations.ErrInvalidTimestamp, http.StatusBadRequest},
		{"in the past", reservations.ErrInThePast, http.StatusBadRequest},
		{"too long", reservations.ErrDurationTooLong, http.StatusBadRequest},
		{"room not found", reservations.ErrRoomNotFound, http.StatusNotFound},
		{"conflict", reservations.ErrConflict, http.StatusConflict},
		{"not found", reservations.ErrNotFound, http.StatusNotFound},
		{"forbidden", reservations.ErrForbidden, http.StatusForbidden},
		{"short", reservations.ErrDurationTooShort, http.StatusBadRequest},
		{"range", reservations.ErrInvalidRange, http.StatusBadRequest},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engineStatus(tt.err))
		})
	}
}

func TestCreateBooking_InternalErrorIsNotLeaked(t *testing.T) {
	engine := &fakeEngine{createFn: func(ctx context.Context, who domain.Identity, in reservations.CreateInput) (domain.Reservation, error) {
		return domain.Reservation{}, errors.New("pq: connection refused")
	}}
	e := New(Deps{Engine: engine, Tokens: tokens})

	rec := do(t, e, http.MethodPost, "/api/bookings", `{"roomId":"x"}`, "john-token")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode(t, rec)["error"])
}

func TestCreateBooking_MalformedBody(t *testing.T) {
	e := New(Deps{Engine: &fakeEngine{}, Tokens: tokens})
	rec := do(t, e, http.MethodPost, "/api/bookings", `{"roomId":`, "john-token")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBooking_AnonymousMalformedBodyIsUnauthorized(t *testing.T) {
	e := New(Deps{Engine: &fakeEngine{}, Tokens: tokens})
	for _, token := range []string{"", "forged-token"} {
		rec := do(t, e, http.MethodPost, "/api/bookings", `{"roomId":`, token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, reservations.ErrUnauthenticated.Error(), decode(t, rec)["error"])
	}
}

func TestCancelBooking(t *testing.T) {
	var gotID string
	engine := &fakeEngine{cancelFn: func(ctx context.Context, who domain.Identity, id string) error {
		gotID = id
		switch who.UserID {
		case "":
			return reservations.ErrUnauthenticated
		case john.UserID:
			return nil
		}
		return reservations.ErrForbidden
	}}
	e := New(Deps{Engine: engine, Tokens: tokens})

	rec := do(t, e, http.MethodDelete, "/api/bookings/abc", "", "john-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])
	assert.Equal(t, "abc", gotID)

	rec = do(t, e, http.MethodDelete, "/api/bookings/abc", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListRoomBookings(t *testing.T) {
	known := domain.RoomID("Quiet Room C")
	cal := &fakeCalendar{bookingsFn: func(ctx context.Context, roomID string) ([]domain.Reservation, error) {
		if roomID != known.String() {
			return nil, reservations.ErrRoomNotFound
		}
		return nil, nil
	}}
	e := New(Deps{Calendar: cal})

	rec := do(t, e, http.MethodGet, "/api/rooms/"+known.String()+"/bookings", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bookings":[]}`, rec.Body.String())

	rec = do(t, e, http.MethodGet, "/api/rooms/nope/bookings", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, reservations.ErrRoomNotFound.Error(), decode(t, rec)["error"])
}

func TestListRooms(t *testing.T) {
	room, err := domain.NewRoom("Conference Room A")
	require.NoError(t, err)
	e := New(Deps{Calendar: &fakeCalendar{roomsFn: func(ctx context.Context) ([]domain.Room, error) {
		return []domain.Room{room}, nil
	}}})

	rec := do(t, e, http.MethodGet, "/api/rooms", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rooms, ok := decode(t, rec)["rooms"].([]any)
	require.True(t, ok)
	require.Len(t, rooms, 1)
	assert.Equal(t, "Conference Room A", rooms[0].(map[string]any)["name"])
}

func TestFeed_PassesRangeAndViewer(t *testing.T) {
	var gotStart, gotEnd string
	var gotViewer domain.Identity
	cal := &fakeCalendar{feedFn: func(ctx context.Context, rangeStart, rangeEnd string, viewer domain.Identity) ([]calendar.FeedEntry, error) {
		gotStart, gotEnd, gotViewer = rangeStart, rangeEnd, viewer
		return []calendar.FeedEntry{{ID: uuid.New(), Label: "John Doe", Cancellable: !viewer.IsZero()}}, nil
	}}
	e := New(Deps{Calendar: cal, Tokens: tokens})

	rec := do(t, e, http.MethodGet, "/api/bookings?start=2026-03-01T00:00:00Z&end=bogus", "", "john-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-03-01T00:00:00Z", gotStart)
	assert.Equal(t, "bogus", gotEnd)
	assert.Equal(t, john, gotViewer)

	entries, ok := decode(t, rec)["bookings"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].(map[string]any)["cancellable"])
}

func TestAuthRoutes(t *testing.T) {
	exp := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)
	acc := &fakeAccounts{
		loginFn: func(ctx context.Context, email string) (accounts.Session, error) {
			if email != "john@test.com" {
				return accounts.Session{}, accounts.ErrUnknownEmail
			}
			return accounts.Session{Token: "t", ExpiresAt: exp, User: accounts.User{ID: "u-john", Email: email}}, nil
		},
		registerFn: func(ctx context.Context, firstName, lastName, email string) (accounts.Session, error) {
			if email == "john@test.com" {
				return accounts.Session{}, accounts.ErrEmailTaken
			}
			if firstName == "" {
				return accounts.Session{}, accounts.ErrMissingField
			}
			return accounts.Session{Token: "t2", ExpiresAt: exp, User: accounts.User{ID: "u-new", Email: email}}, nil
		},
	}
	e := New(Deps{Accounts: acc})

	rec := do(t, e, http.MethodPost, "/api/auth/login", `{"email":"john@test.com"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "t", body["token"])
	assert.Equal(t, "2026-03-02T20:00:00Z", body["expiresAt"])

	rec = do(t, e, http.MethodPost, "/api/auth/login", `{"email":"x@test.com"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/auth/register", `{"firstName":"A","lastName":"B","email":"a@b.c"}`, "")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/auth/register", `{"firstName":"A","lastName":"B","email":"john@test.com"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/auth/register", `{"lastName":"B","email":"z@b.c"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRouteUsesErrorBody(t *testing.T) {
	e := New(Deps{})
	rec := do(t, e, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode(t, rec), "error")
}
