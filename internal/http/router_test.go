package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dugtong/internal/apiclient"
	"dugtong/internal/chatbot"
	"dugtong/internal/domain"
	"dugtong/internal/navigation"
	"dugtong/internal/repository"
	"dugtong/internal/service"
	"dugtong/internal/sqlstore/sqlstoretest"
	"dugtong/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const adminContact = "09170000001"
const adminPassword = "admin-pass-1"

type testServer struct {
	srv   *httptest.Server
	repos *repository.Set
	auth  service.AuthService
	users service.UserService
}

type staticBot struct{}

func (staticBot) Reply(_ context.Context, history []domain.ChatbotMessage, text string) chatbot.Reply {
	return chatbot.Reply{Text: "echo: " + text, Source: chatbot.SourceRules, Intent: "test"}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	repos := repository.NewSQLSet(sqlstoretest.NewSQLite(t))
	notifications := service.NewNotificationService(repos.Notifications, repos.Preferences, logger)
	users := service.NewUserService(repos.Users, repos.Preferences, logger)
	auth := service.NewAuthService(repos.Users, service.AuthConfig{Secret: "http-test"}, logger)

	router := NewRouter(auth, navigation.DefaultPolicy(), logger)
	router.RegisterRoutes(Services{
		Auth:          auth,
		Donors:        service.NewDonorService(repos.Donors, logger),
		Registrations: service.NewRegistrationService(repos.Registrations, notifications, logger),
		Users:         users,
		Notifications: notifications,
		Alerts:        service.NewAlertService(repos.Alerts, repos.Donors, notifications, nil, logger),
		Reports:       service.NewReportService(repos.Donors, logger),
		ChatHistory:   service.NewChatHistoryService(repos.Chat),
		Bot:           staticBot{},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	_, err := users.Create(context.Background(), service.CreateUserRequest{
		Role: "admin", FullName: "Registry Admin", ContactNumber: adminContact, Password: adminPassword,
	})
	require.NoError(t, err)
	return &testServer{srv: srv, repos: repos, auth: auth, users: users}
}

func (ts *testServer) login(t *testing.T, contact, password string) string {
	t.Helper()
	resp, err := ts.auth.Login(context.Background(), service.LoginRequest{ContactNumber: contact, Password: password})
	require.NoError(t, err)
	return resp.AccessToken
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, Result[json.RawMessage]) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env Result[json.RawMessage]
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp, env
}

func (ts *testServer) restClient(t *testing.T, token string) (*apiclient.Client, apiclient.TokenStore) {
	t.Helper()
	tokens := apiclient.NewKVTokenStore(store.NewMemoryKV(), "")
	require.NoError(t, tokens.Set(context.Background(), apiclient.Tokens{AccessToken: token}))
	return apiclient.New(ts.srv.URL, tokens, zap.NewNop(), apiclient.WithTimeout(5*time.Second)), tokens
}

func validDonor(name, contact string) map[string]any {
	return map[string]any{
		"fullName": name, "age": 31, "sex": "Female", "bloodType": "O+",
		"contactNumber": contact, "municipality": "Gubat",
	}
}

func TestRouter_HealthzEnvelope(t *testing.T) {
	ts := newTestServer(t)
	resp, env := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ResultSuccess, env.Code)
	assert.Equal(t, "success", env.Type)
	assert.JSONEq(t, `{"status":"ok"}`, string(env.Result))
}

func TestRouter_AuthAndCapabilities(t *testing.T) {
	ts := newTestServer(t)

	t.Run("missing token", func(t *testing.T) {
		resp, env := ts.do(t, http.MethodGet, "/donors", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, ResultTokenExpired, env.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		resp, env := ts.do(t, http.MethodGet, "/donors", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, ResultTokenExpired, env.Code)
	})

	t.Run("login endpoint", func(t *testing.T) {
		resp, env := ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{
			"contactNumber": adminContact, "password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, ResultError, env.Code)

		resp, env = ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{
			"contactNumber": adminContact, "password": adminPassword,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var login service.LoginResponse
		require.NoError(t, json.Unmarshal(env.Result, &login))
		assert.NotEmpty(t, login.AccessToken)
		assert.Equal(t, domain.RoleAdmin, login.User.Role)

		resp, env = ts.do(t, http.MethodGet, "/auth/me", login.AccessToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var me domain.User
		require.NoError(t, json.Unmarshal(env.Result, &me))
		assert.Equal(t, adminContact, me.ContactNumber)
	})

	t.Run("donor role is forbidden from staff routes", func(t *testing.T) {
		admin := ts.login(t, adminContact, adminPassword)
		resp, env := ts.do(t, http.MethodPost, "/registrations", "", map[string]any{
			"fullName": "Lito Reyes", "age": 28, "sex": "Male", "bloodType": "A+",
			"contactNumber": "09170000022", "municipality": "Irosin",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var reg domain.DonorRegistration
		require.NoError(t, json.Unmarshal(env.Result, &reg))

		resp, env = ts.do(t, http.MethodPost, "/registrations/"+reg.ID+"/approve", admin, map[string]any{})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var approval service.ApprovalResponse
		require.NoError(t, json.Unmarshal(env.Result, &approval))
		require.NotEmpty(t, approval.TemporaryPassword)

		donor := ts.login(t, "09170000022", approval.TemporaryPassword)
		resp, _ = ts.do(t, http.MethodGet, "/donors", donor, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp, _ = ts.do(t, http.MethodGet, "/users", donor, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, env = ts.do(t, http.MethodGet, "/notifications/unread-count", donor, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"count":1}`, string(env.Result))

		resp, env = ts.do(t, http.MethodGet, "/navigation/menu", donor, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var menu []navigation.MenuItem
		require.NoError(t, json.Unmarshal(env.Result, &menu))
		assert.NotEmpty(t, menu)
		for _, item := range menu {
			assert.NotEqual(t, navigation.CapUsersManage, item.Capability)
			assert.NotEqual(t, navigation.CapDonorsManage, item.Capability)
		}

		resp, _ = ts.do(t, http.MethodPost, "/registrations/"+reg.ID+"/approve", admin, map[string]any{})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestRouter_LogoutRevokesRefreshToken(t *testing.T) {
	ts := newTestServer(t)
	login, err := ts.auth.Login(context.Background(), service.LoginRequest{ContactNumber: adminContact, Password: adminPassword})
	require.NoError(t, err)

	resp, _ := ts.do(t, http.MethodPost, "/auth/logout", "", map[string]string{"refreshToken": login.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := ts.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, ResultError, env.Code)

	resp, _ = ts.do(t, http.MethodPost, "/auth/logout", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_ValidationErrors(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, adminContact, adminPassword)

	bad := validDonor("Ana", "0917")
	bad["bloodType"] = "Q+"
	resp, env := ts.do(t, http.MethodPost, "/donors", admin, bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ResultError, env.Code)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(env.Result, &fields))
	assert.Equal(t, "bloodtype", fields["bloodType"])

	resp, _ = ts.do(t, http.MethodGet, "/donors?blood_type=nope", admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, env = ts.do(t, http.MethodGet, "/donors/does-not-exist", admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not found", env.Message)
}

func TestRouter_LimitOffsetPaging(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, adminContact, adminPassword)
	for i, c := range []string{"09175550001", "09175550002", "09175550003"} {
		resp, _ := ts.do(t, http.MethodPost, "/donors", admin, validDonor([]string{"Ana", "Ben", "Cora"}[i], c))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, env := ts.do(t, http.MethodGet, "/donors?limit=2&offset=2", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Items []json.RawMessage `json:"items"`
		Total int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &page))
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 1)

	resp, env = ts.do(t, http.MethodGet, "/donors?limit=5&offset=7", admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(env.Result, &fields))
	assert.Contains(t, fields, "offset")

	resp, _ = ts.do(t, http.MethodGet, "/reports/donors.xlsx?limit=2&offset=1", admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_RESTBackendRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	api, _ := ts.restClient(t, ts.login(t, adminContact, adminPassword))
	remote := repository.NewRESTSet(api)

	created, err := remote.Donors.Create(ctx, &domain.Donor{
		FullName: "Maria Lopez", Age: 40, Sex: "Female", BloodType: domain.BloodTypeABNeg,
		ContactNumber: "09171112222", Municipality: "Gubat",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := remote.Donors.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maria Lopez", got.FullName)
	assert.Equal(t, domain.AvailabilityAvailable, got.Availability)

	require.NoError(t, remote.Donors.SetAvailability(ctx, created.ID, domain.AvailabilityUnavailable))
	local, err := ts.repos.Donors.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityUnavailable, local.Availability)

	page, err := remote.Donors.List(ctx, repository.DonorFilter{BloodType: "AB-"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	_, err = remote.Donors.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	counts, err := remote.Donors.CountByBloodType(ctx)
	require.NoError(t, err)
	var total int
	for _, c := range counts {
		total += c.Total
	}
	assert.Equal(t, 1, total)

	u, err := remote.Users.GetByContact(ctx, adminContact)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)
	_, err = remote.Users.GetByContact(ctx, "00000000000")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	n, err := remote.Notifications.UnreadCount(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRouter_ChatHistory(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	api, _ := ts.restClient(t, ts.login(t, adminContact, adminPassword))
	remote := repository.NewRESTSet(api)

	_, err := remote.Chat.CurrentSession(ctx, "")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, remote.Chat.UpsertSession(ctx, &domain.ChatbotSession{ID: "s-1", LastActivityAt: now, CreatedAt: now}))
	msg := &domain.ChatbotMessage{ID: "m-1", SessionID: "s-1", Role: domain.ChatRoleUser, Content: "hello", CreatedAt: now}
	require.NoError(t, remote.Chat.UpsertMessage(ctx, msg))
	// replay is idempotent
	require.NoError(t, remote.Chat.UpsertMessage(ctx, msg))

	sess, err := remote.Chat.CurrentSession(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "s-1", sess.ID)

	msgs, err := remote.Chat.ListMessages(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.True(t, msgs[0].IsSynced)

	var reply chatbot.Reply
	require.NoError(t, api.Post(ctx, "/chatbot/reply", map[string]any{"message": "hi"}, &reply))
	assert.Equal(t, "echo: hi", reply.Text)
	assert.Equal(t, chatbot.SourceRules, reply.Source)
}

func TestRouter_ReportExport(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, adminContact, adminPassword)
	resp, _ := ts.do(t, http.MethodPost, "/donors", admin, validDonor("Ana Cruz", "09173334444"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/reports/donors.xlsx", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")
}

func TestClient_UnauthorizedClearsTokens(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	tokens := apiclient.NewKVTokenStore(store.NewMemoryKV(), "")
	require.NoError(t, tokens.Set(ctx, apiclient.Tokens{AccessToken: "stale"}))
	calls := 0
	api := apiclient.New(ts.srv.URL, tokens, zap.NewNop(), apiclient.WithOnUnauthorized(func() { calls++ }))

	_, err := repository.NewRESTSet(api).Donors.List(ctx, repository.DonorFilter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apiclient.ErrUnauthorized))
	assert.Equal(t, 1, calls)

	left, err := tokens.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, left.AccessToken)
}
