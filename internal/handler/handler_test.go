package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/queueease/internal/broker"
	"github.com/iliyamo/queueease/internal/config"
	"github.com/iliyamo/queueease/internal/engine"
	"github.com/iliyamo/queueease/internal/logging"
	"github.com/iliyamo/queueease/internal/middleware"
	"github.com/iliyamo/queueease/internal/model"
	"github.com/iliyamo/queueease/internal/notify"
	"github.com/iliyamo/queueease/internal/repository"
	"github.com/iliyamo/queueease/internal/utils"
)

const testSecret = "handler-test-secret"

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Output: io.Discard})
	os.Exit(m.Run())
}

type fakeEvents struct {
	mu     sync.Mutex
	events []broker.TicketEvent
	err    error
}

func (f *fakeEvents) Publish(_ context.Context, ev broker.TicketEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeEvents) ofType(typ string) []broker.TicketEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []broker.TicketEvent
	for _, ev := range f.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type pingerFunc func(context.Context) error

func (p pingerFunc) PingContext(ctx context.Context) error { return p(ctx) }

type harness struct {
	t        *testing.T
	e        *echo.Echo
	eng      *engine.Engine
	store    *repository.MemoryStore
	accounts *repository.MemoryAccounts
	audit    *repository.MemoryAudit
	events   *fakeEvents
	cfg      config.Config
}

func newHarness(t *testing.T, autoPromote bool) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		store:    repository.NewMemoryStore(model.Service{ID: 1, Name: "General"}, model.Service{ID: 2, Name: "Payments"}),
		accounts: repository.NewMemoryAccounts(),
		audit:    &repository.MemoryAudit{},
		events:   &fakeEvents{},
		cfg: config.Config{
			JWTSecret:      testSecret,
			AccessTTLMin:   15,
			RefreshTTLDays: 7,
			BcryptCost:     bcrypt.MinCost,
		},
	}
	dispatcher := notify.NewDispatcher(h.store, notify.NewRegistry())
	h.eng = engine.New(engine.Deps{Store: h.store, Notifier: dispatcher, Events: h.events}, engine.Config{AutoPromote: autoPromote})

	auth := NewAuthHandler(h.cfg, h.accounts, h.accounts)
	q := NewQueueHandler(h.eng, h.store, 50)
	notes := NewNotificationHandler(dispatcher, 50)
	admin := &AdminHandler{
		Engine:     h.eng,
		Dispatcher: dispatcher,
		Users:      h.accounts,
		Audit:      h.audit,
		Limit:      50,
	}

	e := echo.New()
	e.Validator = NewValidator()
	e.GET("/healthz", Health(nil))
	e.POST("/auth/register", auth.Register)
	e.POST("/auth/login", auth.Login)
	e.POST("/auth/refresh", auth.Refresh)
	e.POST("/auth/refresh-access", auth.RefreshAccess)
	e.POST("/auth/logout", auth.Logout)
	e.GET("/services", q.ListServices)
	e.GET("/queue", q.Live)

	u := e.Group("", middleware.JWTAuth(testSecret))
	u.GET("/me", auth.Me)
	u.POST("/queue/tickets", q.Join)
	u.GET("/queue/tickets/mine", q.Mine)
	u.GET("/queue/position", q.Position)
	u.DELETE("/queue/tickets/:id", q.Cancel)
	u.GET("/notifications", notes.Mine)

	a := e.Group("/admin", middleware.JWTAuth(testSecret), middleware.RequireRole(model.RoleAdmin))
	a.GET("/queue", admin.Queue)
	a.GET("/queue/current", admin.Current)
	a.GET("/queue/history", admin.History)
	a.GET("/queue/stats", admin.Stats)
	a.POST("/queue/notify-next", admin.NotifyNext)
	a.POST("/tickets", admin.CreateTicket)
	a.PUT("/tickets/:id/status", admin.SetStatus)
	a.POST("/tickets/:id/:action", admin.Action)
	a.POST("/notifications", admin.Notify)
	a.POST("/notifications/broadcast", admin.Broadcast)
	a.GET("/notifications", admin.Notifications)
	a.GET("/audit", admin.AuditTrail)
	h.e = e
	return h
}

// user creates an account and returns its id and a valid access token.
func (h *harness) user(email, role string) (uint64, string) {
	h.t.Helper()
	id, err := h.accounts.Create(context.Background(), email, "password1", role, bcrypt.MinCost)
	require.NoError(h.t, err)
	tok, err := utils.NewAccessToken(testSecret, id, role, 15)
	require.NoError(h.t, err)
	return id, tok.Token
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type joinResp struct {
	Ticket    model.Ticket `json:"ticket"`
	QueueSize int          `json:"queue_size"`
	AheadOfMe int          `json:"ahead_of_me"`
}

func (h *harness) join(token string, service uint64) joinResp {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/queue/tickets", token, echo.Map{"service_id": service})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[joinResp](h.t, rec)
}

func TestJoin_AssignsPositions(t *testing.T) {
	h := newHarness(t, true)
	_, alice := h.user("alice@example.com", model.RoleUser)
	_, bob := h.user("bob@example.com", model.RoleUser)

	first := h.join(alice, 1)
	second := h.join(bob, 2)

	assert.Equal(t, 1, first.Ticket.Position)
	assert.Equal(t, model.StatusWaiting, first.Ticket.Status)
	assert.Equal(t, 0, first.AheadOfMe)
	assert.Equal(t, 2, second.Ticket.Position)
	assert.Equal(t, 2, second.QueueSize)
	assert.Equal(t, 1, second.AheadOfMe)
}

func TestJoin_Conflict(t *testing.T) {
	h := newHarness(t, true)
	_, alice := h.user("alice@example.com", model.RoleUser)
	first := h.join(alice, 1)

	rec := h.do(http.MethodPost, "/queue/tickets", alice, echo.Map{"service_id": 2})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, first.Ticket.ID, body["ticket_id"])
}

func TestJoin_Rejections(t *testing.T) {
	h := newHarness(t, true)
	aliceID, alice := h.user("alice@example.com", model.RoleUser)

	rec := h.do(http.MethodPost, "/queue/tickets", alice, echo.Map{"service_id": 1, "user_id": aliceID + 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/queue/tickets", alice, echo.Map{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "service_id")

	rec = h.do(http.MethodPost, "/queue/tickets", alice, echo.Map{"service_id": 99})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodPost, "/queue/tickets", "", echo.Map{"service_id": 1})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPositionAndCancel(t *testing.T) {
	h := newHarness(t, true)
	_, alice := h.user("alice@example.com", model.RoleUser)
	_, bob := h.user("bob@example.com", model.RoleUser)
	a := h.join(alice, 1)
	b := h.join(bob, 1)

	rec := h.do(http.MethodGet, "/queue/position", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pos := decode[map[string]any](t, rec)
	assert.EqualValues(t, 2, pos["position"])
	assert.EqualValues(t, 1, pos["ahead"])

	// bob may not cancel alice's ticket
	rec = h.do(http.MethodDelete, "/queue/tickets/"+itoa(a.Ticket.ID), bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodDelete, "/queue/tickets/"+itoa(a.Ticket.ID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusCanceled, decode[model.Ticket](t, rec).Status)

	// with auto-promote bob is now being served at position 1
	rec = h.do(http.MethodGet, "/queue/position", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pos = decode[map[string]any](t, rec)
	assert.EqualValues(t, b.Ticket.ID, pos["ticket_id"])
	assert.EqualValues(t, 1, pos["position"])
	assert.Equal(t, model.StatusInProgress, pos["status"])

	rec = h.do(http.MethodGet, "/queue/position", alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodDelete, "/queue/tickets/abc", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMineAndNotifications(t *testing.T) {
	h := newHarness(t, true)
	_, alice := h.user("alice@example.com", model.RoleUser)
	h.join(alice, 1)

	rec := h.do(http.MethodGet, "/queue/tickets/mine", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Ticket](t, rec), 1)

	rec = h.do(http.MethodGet, "/notifications", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode[[]model.Notification](t, rec)
	require.Len(t, notes, 1)
	assert.Equal(t, "You are now in the queue, please wait for your turn.", notes[0].Message)
}

func TestLiveHidesOwners(t *testing.T) {
	h := newHarness(t, true)
	_, alice := h.user("alice@example.com", model.RoleUser)
	h.join(alice, 1)

	rec := h.do(http.MethodGet, "/queue", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "owner_id")
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, body["size"])

	rec = h.do(http.MethodGet, "/services", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Service](t, rec), 2)
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	h := newHarness(t, true)
	_, alice := h.user("alice@example.com", model.RoleUser)

	rec := h.do(http.MethodGet, "/admin/queue", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdmin_TransitionsAndPromotion(t *testing.T) {
	h := newHarness(t, true)
	_, admin := h.user("admin@example.com", model.RoleAdmin)
	_, alice := h.user("alice@example.com", model.RoleUser)
	_, bob := h.user("bob@example.com", model.RoleUser)
	a := h.join(alice, 1)
	b := h.join(bob, 1)

	// only the head may be prioritized
	rec := h.do(http.MethodPost, "/admin/tickets/"+itoa(b.Ticket.ID)+"/prioritize", admin, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, model.StatusWaiting, body["current"])
	assert.Equal(t, model.StatusInProgress, body["attempted"])
	assert.EqualValues(t, b.Ticket.ID, body["ticket_id"])

	rec = h.do(http.MethodPost, "/admin/tickets/"+itoa(a.Ticket.ID)+"/prioritize", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/admin/queue/current", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, a.Ticket.ID, decode[model.Ticket](t, rec).ID)

	rec = h.do(http.MethodPut, "/admin/tickets/"+itoa(a.Ticket.ID)+"/status", admin, echo.Map{"status": model.StatusCompleted})
	require.Equal(t, http.StatusOK, rec.Code)
	tr := decode[struct {
		Ticket   model.Ticket   `json:"ticket"`
		From     string         `json:"from"`
		Promoted *model.Ticket  `json:"promoted"`
		Queue    []model.Ticket `json:"queue"`
	}](t, rec)
	assert.Equal(t, model.StatusInProgress, tr.From)
	assert.Equal(t, model.StatusCompleted, tr.Ticket.Status)
	require.NotNil(t, tr.Promoted)
	assert.Equal(t, b.Ticket.ID, tr.Promoted.ID)
	require.Len(t, tr.Queue, 1)
	assert.Equal(t, 1, tr.Queue[0].Position)

	// terminal tickets accept nothing
	rec = h.do(http.MethodPost, "/admin/tickets/"+itoa(a.Ticket.ID)+"/cancel", admin, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, model.StatusCompleted, decode[map[string]any](t, rec)["current"])

	rec = h.do(http.MethodGet, "/admin/queue/history", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decode[[]model.Ticket](t, rec)
	require.Len(t, hist, 1)
	assert.Equal(t, a.Ticket.ID, hist[0].ID)
}

func TestAdmin_SetStatusValidation(t *testing.T) {
	h := newHarness(t, true)
	_, admin := h.user("admin@example.com", model.RoleAdmin)

	rec := h.do(http.MethodPut, "/admin/tickets/1/status", admin, echo.Map{"status": "paused"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPut, "/admin/tickets/42/status", admin, echo.Map{"status": model.StatusCanceled})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodPost, "/admin/tickets/1/pause", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_CreateTicketAndNotifyNext(t *testing.T) {
	h := newHarness(t, false)
	_, admin := h.user("admin@example.com", model.RoleAdmin)
	aliceID, alice := h.user("alice@example.com", model.RoleUser)

	rec := h.do(http.MethodPost, "/admin/queue/notify-next", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodPost, "/admin/tickets", admin, echo.Map{"user_id": 999, "service_id": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodPost, "/admin/tickets", admin, echo.Map{"user_id": aliceID, "service_id": 1})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodPost, "/admin/queue/notify-next", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, aliceID, body["notified_user_id"])

	rec = h.do(http.MethodGet, "/notifications", alice, nil)
	notes := decode[[]model.Notification](t, rec)
	require.Len(t, notes, 2)
	assert.Equal(t, "You are next in line. Please be prepared for queue #1.", notes[0].Message)
}

func TestAdmin_NotifyAndBroadcast(t *testing.T) {
	h := newHarness(t, true)
	adminID, admin := h.user("admin@example.com", model.RoleAdmin)
	aliceID, alice := h.user("alice@example.com", model.RoleUser)
	_, bob := h.user("bob@example.com", model.RoleUser)

	rec := h.do(http.MethodPost, "/admin/notifications", admin, echo.Map{"user_id": aliceID, "message": "Counter 3 please"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodPost, "/admin/notifications", admin, echo.Map{"user_id": aliceID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/admin/notifications/broadcast", admin, echo.Map{"message": "Closing in 10 minutes"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, decode[model.Notification](t, rec).TargetUserID)

	h.eng.Wait()
	broadcasts := h.events.ofType(broker.EventBroadcast)
	require.Len(t, broadcasts, 1)
	assert.Equal(t, adminID, broadcasts[0].ActorID)
	assert.Equal(t, "Closing in 10 minutes", broadcasts[0].Message)

	assert.Len(t, decode[[]model.Notification](t, h.do(http.MethodGet, "/notifications", alice, nil)), 2)
	assert.Len(t, decode[[]model.Notification](t, h.do(http.MethodGet, "/notifications", bob, nil)), 1)
	assert.Len(t, decode[[]model.Notification](t, h.do(http.MethodGet, "/admin/notifications", admin, nil)), 2)
}

func TestAdmin_BroadcastSurvivesPublishFailure(t *testing.T) {
	h := newHarness(t, true)
	_, admin := h.user("admin@example.com", model.RoleAdmin)
	h.events.mu.Lock()
	h.events.err = errors.New("broker down")
	h.events.mu.Unlock()

	rec := h.do(http.MethodPost, "/admin/notifications/broadcast", admin, echo.Map{"message": "hello"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	h.eng.Wait()
	assert.Len(t, h.events.ofType(broker.EventBroadcast), 1)
}

func TestAdmin_StatsAndAudit(t *testing.T) {
	h := newHarness(t, true)
	_, admin := h.user("admin@example.com", model.RoleAdmin)
	_, alice := h.user("alice@example.com", model.RoleUser)
	h.join(alice, 1)
	require.NoError(t, h.audit.Record(context.Background(), 1, 1, "ticket #1 joined", h.store.Now()))

	rec := h.do(http.MethodGet, "/admin/queue/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[engine.Stats](t, rec)
	assert.Equal(t, 1, stats.ByStatus[model.StatusWaiting])

	rec = h.do(http.MethodGet, "/admin/audit", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.AuditLog](t, rec), 1)

	rec = h.do(http.MethodGet, "/admin/queue", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "owner_id")
}

type authBody struct {
	User struct {
		ID   uint64 `json:"id"`
		Role string `json:"role"`
	} `json:"user"`
	Access struct {
		Token string `json:"token"`
	} `json:"access"`
	Refresh struct {
		Token string `json:"token"`
	} `json:"refresh"`
}

func TestAuth_RegisterLoginRefreshLogout(t *testing.T) {
	h := newHarness(t, true)

	rec := h.do(http.MethodPost, "/auth/register", "", echo.Map{"email": "Ada@Example.com", "password": "secret123", "role": "ADMIN"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode[authBody](t, rec)
	assert.Equal(t, model.RoleUser, reg.User.Role, "admin signup is disabled")

	rec = h.do(http.MethodPost, "/auth/register", "", echo.Map{"email": "ada@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodPost, "/auth/register", "", echo.Map{"email": "not-an-email", "password": "secret123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/auth/login", "", echo.Map{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/auth/login", "", echo.Map{"email": "ada@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[authBody](t, rec)

	rec = h.do(http.MethodGet, "/me", login.Access.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, reg.User.ID, decode[map[string]any](t, rec)["user_id"])

	// rotation revokes the presented token
	rec = h.do(http.MethodPost, "/auth/refresh", "", echo.Map{"refresh_token": login.Refresh.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decode[authBody](t, rec)
	rec = h.do(http.MethodPost, "/auth/refresh", "", echo.Map{"refresh_token": login.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/auth/refresh-access", "", echo.Map{"refresh_token": rotated.Refresh.Token})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/auth/logout", "", echo.Map{"refresh_token": rotated.Refresh.Token})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(http.MethodPost, "/auth/refresh-access", "", echo.Map{"refresh_token": rotated.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// bearer logout revokes every refresh token of the user
	rec = h.do(http.MethodPost, "/auth/logout", reg.Access.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(http.MethodPost, "/auth/refresh", "", echo.Map{"refresh_token": reg.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuth_AdminSignupWhenEnabled(t *testing.T) {
	h := newHarness(t, true)
	h.cfg.AdminSignup = true
	auth := NewAuthHandler(h.cfg, h.accounts, h.accounts)
	h.e.POST("/auth/register-admin", auth.Register)

	rec := h.do(http.MethodPost, "/auth/register-admin", "", echo.Map{"email": "boss@example.com", "password": "secret123", "role": "admin"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, model.RoleAdmin, decode[authBody](t, rec).User.Role)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, true)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", "", nil).Code)

	h.e.GET("/healthz-down", Health(pingerFunc(func(context.Context) error { return errors.New("down") })))
	assert.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodGet, "/healthz-down", "", nil).Code)
}

func TestWriteEngineError_Storage(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, writeEngineError(c, &engine.StorageError{Op: "commit", Err: errors.New("deadlock")}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "deadlock")
}

func itoa(id uint64) string { return strconv.FormatUint(id, 10) }
