package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"admissions-go/internal/config"
	"admissions-go/internal/models"
	"admissions-go/internal/repository"
	"admissions-go/internal/services"
	"admissions-go/internal/testdb"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const operatorPassword = "Sup3r$ecret"

type harness struct {
	server        *httptest.Server
	attendees     *repository.AttendeeRepository
	notifications *repository.NotificationRepository
	settings      *repository.SettingsRepository
	users         *repository.UserRepository
	dialStatus    int32
	dials         int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testdb.Open(t)
	log := zap.NewNop()
	h := &harness{
		attendees:     repository.NewAttendeeRepository(db),
		notifications: repository.NewNotificationRepository(db),
		settings:      repository.NewSettingsRepository(db),
		users:         repository.NewUserRepository(db),
		dialStatus:    http.StatusAccepted,
	}

	pbx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&h.dials, 1)
		w.WriteHeader(int(atomic.LoadInt32(&h.dialStatus)))
	}))
	t.Cleanup(pbx.Close)

	conf := config.Default()
	conf.Telephony.WebhookURL = pbx.URL

	drafter, _, err := services.NewDrafter(context.Background(), conf.LLM, log)
	require.NoError(t, err)
	mailer := services.NewConsoleMailer(log, io.Discard)
	notifier := services.NewNotifier(h.notifications, nil, log)
	catalog := models.DefaultCatalog()

	engine := Setup(log, conf, Dependencies{
		DB:            db,
		Users:         h.users,
		Attendees:     h.attendees,
		Notifications: h.notifications,
		Settings:      h.settings,
		Reports:       repository.NewReportRepository(db),
		Submissions:   services.NewSubmissionService(config.Static(conf), h.attendees, h.settings, notifier, mailer, catalog, log),
		Orchestrator: services.NewOrchestrator(config.Static(conf), h.attendees, h.settings, notifier, drafter, mailer,
			services.ClickToChat{}, services.NewWebhookDialer(conf.Telephony, log), log),
		Notifier: notifier,
	})
	h.server = httptest.NewServer(engine)
	t.Cleanup(h.server.Close)
	return h
}

// client is an HTTP client with its own cookie jar and optional bearer token.
type client struct {
	t      *testing.T
	base   string
	http   *http.Client
	bearer string
	csrf   string
}

func (h *harness) client(t *testing.T) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: h.server.URL, http: &http.Client{Jar: jar}}
}

func (c *client) do(method, path string, body interface{}, headers ...string) (int, map[string]interface{}, http.Header) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.csrf != "" {
		req.Header.Set(csrfTokenHeaderKey, c.csrf)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(c.t, json.Unmarshal(raw, &out))
	} else if len(raw) > 0 && raw[0] == '[' {
		var list []interface{}
		require.NoError(c.t, json.Unmarshal(raw, &list))
		out["items"] = list
	}
	return resp.StatusCode, out, resp.Header
}

// operator creates a user holding perms and logs the client in.
func (h *harness) operator(t *testing.T, email string, perms ...string) *client {
	t.Helper()
	ctx := context.Background()
	role, err := h.users.EnsureRole(ctx, "role_"+email, perms)
	require.NoError(t, err)
	_, err = h.users.CreateUser(ctx, "Operator", email, operatorPassword, role.ID)
	require.NoError(t, err)

	c := h.client(t)
	status, body, _ := c.do(http.MethodPost, "/auth/login", gin.H{"email": email, "password": operatorPassword})
	require.Equal(t, http.StatusOK, status, body)
	c.bearer, _ = body["token"].(string)
	require.NotEmpty(t, c.bearer)
	return c
}

func (h *harness) admin(t *testing.T) *client {
	return h.operator(t, "admin@example.com", models.AllPermissions...)
}

func submission(email string) gin.H {
	return gin.H{
		"email":    email,
		"name":     "Asha Rao",
		"phone":    "9876543210",
		"status":   "passed",
		"score":    "38",
		"discount": 25,
		"planName": "Foundation",
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	status, body, _ := c.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, _, _ = c.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestSubmissions_Preflight(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	status, _, headers := c.do(http.MethodOptions, "/submissions", nil,
		"Origin", "https://test.example.com",
		"Access-Control-Request-Method", "POST",
	)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, "*", headers.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, headers.Get("Access-Control-Allow-Methods"), "POST")
}

func TestSubmissions_CoercesFieldsAndIssuesCoupon(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	status, body, headers := c.do(http.MethodPost, "/submissions", submission("Asha@Example.com"), "Origin", "https://test.example.com")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["coupon"])
	assert.Equal(t, "*", headers.Get("Access-Control-Allow-Origin"))

	stored, err := h.attendees.FindByEmail(context.Background(), "asha@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", stored.FullName)
	assert.Equal(t, 38, stored.Score)
	assert.Equal(t, 25, stored.DiscountPercent)
	assert.Equal(t, body["coupon"], stored.Coupon())

	status, again, _ := c.do(http.MethodPost, "/scholarship-submit", submission("asha@example.com"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, body["coupon"], again["coupon"])
}

func TestSubmissions_BlankEmailIsRejected(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	status, body, _ := c.do(http.MethodPost, "/submissions", gin.H{"email": "  ", "status": "passed"})
	assert.Equal(t, http.StatusBadRequest, status)
	fields, _ := body["fields"].(map[string]interface{})
	assert.Contains(t, fields, "email")

	all, err := h.attendees.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSubmissions_MalformedFieldsFallBackToDefaults(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		payload gin.H
		check   func(t *testing.T, a *models.Attendee)
	}{
		{
			name:    "non-numeric score",
			payload: gin.H{"email": "a@example.com", "score": "lots", "status": "passed"},
			check: func(t *testing.T, a *models.Attendee) {
				assert.Zero(t, a.Score)
				assert.Equal(t, models.StatusPassed, a.Status)
			},
		},
		{
			name:    "boolean cheat warnings",
			payload: gin.H{"email": "b@example.com", "cheatWarnings": true},
			check: func(t *testing.T, a *models.Attendee) {
				assert.Equal(t, 1, a.CheatWarnings)
				assert.Equal(t, models.StatusPending, a.Status)
			},
		},
		{
			name:    "huge score",
			payload: gin.H{"email": "c@example.com", "score": 1e19, "discount": 25},
			check: func(t *testing.T, a *models.Attendee) {
				assert.Equal(t, math.MaxInt32, a.Score)
				assert.Equal(t, 25, a.DiscountPercent)
			},
		},
		{
			name:    "testResponses not an array",
			payload: gin.H{"email": "d@example.com", "testResponses": "none"},
			check: func(t *testing.T, a *models.Attendee) {
				assert.Empty(t, a.TestResponses)
			},
		},
		{
			name: "malformed testResponses entry",
			payload: gin.H{"email": "e@example.com", "testResponses": []interface{}{
				gin.H{"question": "2+2", "userAnswer": "4", "correctAnswer": "4", "isCorrect": true},
				"junk",
			}},
			check: func(t *testing.T, a *models.Attendee) {
				require.Len(t, a.TestResponses, 1)
				assert.Equal(t, "2+2", a.TestResponses[0].Question)
			},
		},
		{
			name:    "numeric name and object phone",
			payload: gin.H{"email": "f@example.com", "fullName": 42, "phone": gin.H{"n": 1}},
			check: func(t *testing.T, a *models.Attendee) {
				assert.Equal(t, "42", a.FullName)
				assert.Empty(t, a.Phone)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := c.do(http.MethodPost, "/submissions", tt.payload)
			require.Equal(t, http.StatusOK, status, body)

			a, err := h.attendees.FindByEmail(ctx, tt.payload["email"].(string))
			require.NoError(t, err)
			tt.check(t, a)
		})
	}
}

func TestLeads_ServerSideDiscount(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	status, body, _ := c.do(http.MethodPost, "/leads", gin.H{"email": "lead@example.com", "fullName": "Lead", "score": 40})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(26), body["discountPercent"])
	assert.NotEmpty(t, body["coupon"])
}

func TestMonitoringAlert_RecordsWarning(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	status, _, _ := c.do(http.MethodPost, "/monitoring/alert", gin.H{"studentName": "Ravi", "action": "switch tabs"})
	require.Equal(t, http.StatusOK, status)

	notes, err := h.notifications.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Cheating Attempt Detected", notes[0].Title)
	assert.Equal(t, "Ravi is attempting to switch tabs during the test.", notes[0].Desc)
	assert.Equal(t, models.NotificationWarning, notes[0].Type)
}

func TestOperatorRoutes_RequireAuthentication(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	for _, path := range []string{"/attendees", "/notifications", "/settings", "/reports/overview", "/auth/me"} {
		status, _, _ := c.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
	}

	c.bearer = "not-a-token"
	status, _, _ := c.do(http.MethodGet, "/attendees", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(t)
	h.admin(t)
	c := h.client(t)

	status, body, _ := c.do(http.MethodPost, "/auth/login", gin.H{"email": "admin@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid email or password.", body["error"])
}

func TestPermissions(t *testing.T) {
	h := newHarness(t)
	nurturer := h.operator(t, "nurture@example.com", models.PermTriggerNurture)

	status, _, _ := nurturer.do(http.MethodGet, "/attendees", nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _, _ = nurturer.do(http.MethodDelete, "/clear-data", nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _, _ = nurturer.do(http.MethodPost, "/settings", gin.H{"emailAlerts": false})
	assert.Equal(t, http.StatusForbidden, status)

	status, _, _ = nurturer.do(http.MethodGet, "/settings", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestSessionRequestsNeedCSRFToken(t *testing.T) {
	h := newHarness(t)
	c := h.admin(t)
	c.bearer = ""

	status, _, _ := c.do(http.MethodPatch, "/notifications", gin.H{"action": "markAllRead"})
	assert.Equal(t, http.StatusForbidden, status)

	status, me, _ := c.do(http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, status)
	c.csrf, _ = me["csrfToken"].(string)
	require.NotEmpty(t, c.csrf)
	assert.Len(t, me["permissions"], len(models.AllPermissions))

	status, _, _ = c.do(http.MethodPatch, "/notifications", gin.H{"action": "markAllRead"})
	assert.Equal(t, http.StatusOK, status)

	status, _, _ = c.do(http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _, _ = c.do(http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAttendees_ListFilterAndClear(t *testing.T) {
	h := newHarness(t)
	admin := h.admin(t)
	public := h.client(t)

	_, _, _ = public.do(http.MethodPost, "/submissions", submission("s1@example.com"))
	apt := submission("a1@example.com")
	apt["testType"] = "aptitude"
	_, _, _ = public.do(http.MethodPost, "/submissions", apt)

	status, body, _ := admin.do(http.MethodGet, "/attendees", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["items"], 2)

	status, body, _ = admin.do(http.MethodGet, "/attendees?testType=aptitude", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["items"], 1)
	assert.Equal(t, "a1@example.com", body["items"].([]interface{})[0].(map[string]interface{})["email"])

	status, body, _ = admin.do(http.MethodDelete, "/attendees:clear", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["deleted"])

	status, body, _ = admin.do(http.MethodDelete, "/clear-data", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["deleted"])
}

func TestNurture(t *testing.T) {
	h := newHarness(t)
	admin := h.admin(t)
	public := h.client(t)

	_, _, _ = public.do(http.MethodPost, "/submissions", submission("asha@example.com"))
	a, err := h.attendees.FindByEmail(context.Background(), "asha@example.com")
	require.NoError(t, err)

	t.Run("generate falls back to template", func(t *testing.T) {
		status, body, _ := admin.do(http.MethodPost, "/nurture", gin.H{"id": a.ID, "type": "email", "action": "generate"})
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, true, body["degraded"])
		draft := body["draft"].(map[string]interface{})
		assert.NotEmpty(t, draft["content"])
	})

	t.Run("whatsapp send returns link", func(t *testing.T) {
		status, body, _ := admin.do(http.MethodPost, "/nurture", gin.H{"id": a.ID, "type": "whatsapp", "action": "send", "content": "Hello Asha"})
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, "https://wa.me/919876543210?text=Hello%20Asha", body["link"])
	})

	t.Run("failed call is a 502", func(t *testing.T) {
		atomic.StoreInt32(&h.dialStatus, http.StatusInternalServerError)
		defer atomic.StoreInt32(&h.dialStatus, http.StatusAccepted)

		status, body, _ := admin.do(http.MethodPost, "/nurture", gin.H{"id": a.ID, "type": "call", "content": "script"})
		assert.Equal(t, http.StatusBadGateway, status)
		assert.Equal(t, "dispatch failed, please retry", body["error"])
	})

	t.Run("auto call once", func(t *testing.T) {
		before := atomic.LoadInt32(&h.dials)
		status, body, _ := admin.do(http.MethodPost, "/nurture", gin.H{"id": a.ID, "action": "auto_call"})
		require.Equal(t, http.StatusOK, status, body)
		status, body, _ = admin.do(http.MethodPost, "/nurture", gin.H{"id": a.ID, "action": "auto_call"})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["alreadyCalled"])
		assert.Equal(t, before+1, atomic.LoadInt32(&h.dials))
	})

	t.Run("bad requests", func(t *testing.T) {
		status, _, _ := admin.do(http.MethodPost, "/nurture", gin.H{"id": "missing", "type": "email", "action": "generate"})
		assert.Equal(t, http.StatusNotFound, status)
		status, _, _ = admin.do(http.MethodPost, "/nurture", gin.H{"id": a.ID, "type": "fax"})
		assert.Equal(t, http.StatusBadRequest, status)
		status, _, _ = admin.do(http.MethodPost, "/nurture", gin.H{"id": a.ID, "type": "email", "action": "shout"})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	got, err := h.attendees.FindByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.WhatsappSent)
	assert.Equal(t, 1, got.VoiceCallCount)
}

func TestNotifications_Endpoints(t *testing.T) {
	h := newHarness(t)
	admin := h.admin(t)
	ctx := context.Background()
	for _, title := range []string{"one", "two"} {
		require.NoError(t, h.notifications.Create(ctx, &models.Notification{Title: title, Type: models.NotificationInfo}))
	}
	notes, err := h.notifications.List(ctx, 10)
	require.NoError(t, err)

	status, body, headers := admin.do(http.MethodGet, "/notifications", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["items"], 2)
	assert.Equal(t, "2", headers.Get("X-Unread-Count"))

	status, _, _ = admin.do(http.MethodPatch, "/notifications", gin.H{"id": notes[0].ID})
	assert.Equal(t, http.StatusOK, status)
	status, _, _ = admin.do(http.MethodPatch, "/notifications", gin.H{"id": 9999})
	assert.Equal(t, http.StatusNotFound, status)
	status, _, _ = admin.do(http.MethodPatch, "/notifications", gin.H{"action": "explode"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = admin.do(http.MethodDelete, "/notifications", gin.H{"action": "everything"})
	assert.Equal(t, http.StatusBadRequest, status)
	status, body, _ = admin.do(http.MethodDelete, "/notifications", gin.H{"action": "clearRead"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["deleted"])
}

func TestSettings_PartialUpdate(t *testing.T) {
	h := newHarness(t)
	admin := h.admin(t)

	status, body, _ := admin.do(http.MethodGet, "/settings", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["emailAlerts"])

	status, _, _ = admin.do(http.MethodPost, "/settings", gin.H{"webhookUrl": "ftp://nope"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body, _ = admin.do(http.MethodPost, "/settings", gin.H{"fallbackNumber": "+911234567890", "whatsappAlerts": true})
	require.Equal(t, http.StatusOK, status, body)

	s, err := h.settings.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "+911234567890", s.FallbackNumber)
	assert.True(t, s.WhatsappAlerts)
	assert.True(t, s.EmailAlerts, "absent fields are left alone")
}

func TestReportsOverview(t *testing.T) {
	h := newHarness(t)
	admin := h.admin(t)
	public := h.client(t)
	_, _, _ = public.do(http.MethodPost, "/submissions", submission("r@example.com"))

	status, body, _ := admin.do(http.MethodGet, "/reports/overview?days=7", nil)
	require.Equal(t, http.StatusOK, status, body)
	charts, _ := body["charts"].(map[string]interface{})
	assert.Contains(t, charts, "funnel")
	assert.Contains(t, charts, "nurture")
	assert.Contains(t, charts, "daily")
	assert.Len(t, body["statuses"], 1)
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	admin := h.admin(t)

	status, _, _ := admin.do(http.MethodPost, "/auth/change-password", gin.H{"currentPassword": "wrong", "newPassword": "N3w$ecret!"})
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _, _ = admin.do(http.MethodPost, "/auth/change-password", gin.H{"currentPassword": operatorPassword, "newPassword": "weak"})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _, _ = admin.do(http.MethodPost, "/auth/change-password", gin.H{"currentPassword": operatorPassword, "newPassword": "N3w$ecret!"})
	require.Equal(t, http.StatusOK, status)

	fresh := h.client(t)
	status, _, _ = fresh.do(http.MethodPost, "/auth/login", gin.H{"email": "admin@example.com", "password": "N3w$ecret!"})
	assert.Equal(t, http.StatusOK, status)
}
