package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dugtong/internal/chatbot"
	"dugtong/internal/chatsync"
	"dugtong/internal/domain"
	"dugtong/internal/repository"
	"dugtong/internal/sqlstore/sqlstoretest"
	"dugtong/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	repos         *repository.Set
	notifications NotificationService
	registrations *registrationService
	donors        DonorService
	users         UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := repository.NewSQLSet(sqlstoretest.NewSQLite(t))
	logger := zap.NewNop()
	notifications := NewNotificationService(repos.Notifications, repos.Preferences, logger)
	regs := NewRegistrationService(repos.Registrations, notifications, logger).(*registrationService)
	regs.genPassword = func() (string, error) { return "TempPass123", nil }
	return &fixture{
		repos:         repos,
		notifications: notifications,
		registrations: regs,
		donors:        NewDonorService(repos.Donors, logger),
		users:         NewUserService(repos.Users, repos.Preferences, logger),
	}
}

func registration(name, contact string, bt domain.BloodType, town string) *domain.DonorRegistration {
	return &domain.DonorRegistration{
		FullName: name, Age: 30, Sex: "Male", BloodType: bt,
		ContactNumber: contact, Municipality: town,
	}
}

// approvedDonor submits and approves a registration, returning the new account.
func (f *fixture) approvedDonor(t *testing.T, name, contact string, bt domain.BloodType, town string) *ApprovalResponse {
	t.Helper()
	ctx := context.Background()
	reg, err := f.registrations.Submit(ctx, registration(name, contact, bt, town))
	require.NoError(t, err)
	res, err := f.registrations.Approve(ctx, reg.ID, "admin-1")
	require.NoError(t, err)
	return res
}

func TestRegistrationService_SubmitValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registrations.Submit(ctx, registration("Ana", "0917", "Z+", "Atlantis"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "bloodtype", ve.Fields["bloodType"])
	assert.Equal(t, "municipality", ve.Fields["municipality"])

	reg := registration("  Ana Cruz ", "09171234567", "o+", "Gubat")
	reg.Status = domain.RegistrationApproved
	out, err := f.registrations.Submit(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, "Ana Cruz", out.FullName)
	assert.Equal(t, domain.BloodTypeOPos, out.BloodType)
	assert.Equal(t, domain.RegistrationPending, out.Status)
	assert.Equal(t, domain.AvailabilityAvailable, out.Availability)

	_, err = f.registrations.List(ctx, repository.RegistrationFilter{Status: "archived"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegistrationService_ApproveThenLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.approvedDonor(t, "Ben Santos", "09170000009", domain.BloodTypeBNeg, "Irosin")
	assert.Equal(t, "TempPass123", res.TemporaryPassword)
	assert.Equal(t, domain.RoleDonor, res.User.Role)

	u, err := f.repos.Users.GetByContact(ctx, "09170000009")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("TempPass123")))

	unread, err := f.notifications.UnreadCount(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	auth := NewAuthService(f.repos.Users, AuthConfig{Secret: "test-secret"}, zap.NewNop())
	_, err = auth.Login(ctx, LoginRequest{ContactNumber: "09170000009", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(ctx, LoginRequest{ContactNumber: "09999999999", Password: "TempPass123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	login, err := auth.Login(ctx, LoginRequest{ContactNumber: " 09170000009 ", Password: "TempPass123"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, login.User.ID)

	claims, err := auth.Verify(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)
	assert.Equal(t, domain.RoleDonor, claims.Role)

	_, err = auth.Verify(login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Verify(login.AccessToken + "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	refreshed, err := auth.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	other := NewAuthService(f.repos.Users, AuthConfig{Secret: "another-secret"}, zap.NewNop())
	_, err = other.Verify(login.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_RefreshRotationAndLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.users.Create(ctx, CreateUserRequest{
		Role: "admin", FullName: "Admin", ContactNumber: "09170000042", Password: "admin-pass-1",
	})
	require.NoError(t, err)

	revoked := store.NewMemoryKV()
	auth := NewAuthService(f.repos.Users, AuthConfig{Secret: "test-secret", Revoked: revoked}, zap.NewNop())
	login, err := auth.Login(ctx, LoginRequest{ContactNumber: "09170000042", Password: "admin-pass-1"})
	require.NoError(t, err)

	rotated, err := auth.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	// a refresh token is single use
	_, err = auth.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, auth.Logout(ctx, rotated.RefreshToken))
	_, err = auth.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// revocations are shared through the store, not held by one instance
	peer := NewAuthService(f.repos.Users, AuthConfig{Secret: "test-secret", Revoked: revoked}, zap.NewNop())
	_, err = peer.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.ErrorIs(t, auth.Logout(ctx, rotated.AccessToken), ErrInvalidCredentials)
}

func TestRegistrationService_Reject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg, err := f.registrations.Submit(ctx, registration("Cora", "09170000010", domain.BloodTypeAPos, "Pilar"))
	require.NoError(t, err)

	_, err = f.registrations.Reject(ctx, reg.ID, "admin-1", "  ")
	assert.ErrorIs(t, err, ErrValidation)

	out, err := f.registrations.Reject(ctx, reg.ID, "admin-1", "incomplete form")
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationRejected, out.Status)

	_, err = f.registrations.Approve(ctx, reg.ID, "admin-1")
	assert.ErrorIs(t, err, repository.ErrRegistrationReviewed)
}

func TestDonorService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.donors.Create(ctx, &domain.Donor{FullName: "X", Age: 12, Sex: "Other", BloodType: "Q", Municipality: "Nowhere"})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "age")
	assert.Contains(t, ve.Fields, "sex")
	assert.Contains(t, ve.Fields, "contactNumber")

	d, err := f.donors.Create(ctx, &domain.Donor{
		FullName: "Dina", Age: 33, Sex: "Female", BloodType: "ab-",
		ContactNumber: "09170000011", Municipality: "Bulan",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BloodTypeABNeg, d.BloodType)

	_, err = f.donors.List(ctx, repository.DonorFilter{BloodType: "C+"})
	assert.ErrorIs(t, err, ErrValidation)

	page, err := f.donors.List(ctx, repository.DonorFilter{BloodType: "ab-", PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	assert.ErrorIs(t, f.donors.SetAvailability(ctx, d.ID, "sleeping"), ErrValidation)
	require.NoError(t, f.donors.SetAvailability(ctx, d.ID, string(domain.AvailabilityUnavailable)))

	sum, err := f.donors.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalDonors)
	assert.Equal(t, 0, sum.Available)
	assert.Len(t, sum.ByBloodType, len(domain.BloodTypes))

	require.NoError(t, f.donors.Delete(ctx, d.ID))
	_, err = f.donors.Get(ctx, d.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserService_ProfileAndPreferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.approvedDonor(t, "Elmer", "09170000012", domain.BloodTypeOPos, "Donsol")

	blank := " "
	_, err := f.users.UpdateProfile(ctx, res.User.ID, ProfileUpdate{FullName: &blank})
	assert.ErrorIs(t, err, ErrValidation)

	name, email := "Elmer Dizon", "elmer@example.ph"
	u, err := f.users.UpdateProfile(ctx, res.User.ID, ProfileUpdate{FullName: &name, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "Elmer Dizon", u.FullName)
	require.NotNil(t, u.Email)
	assert.Equal(t, "09170000012", u.ContactNumber)

	prefs, err := f.users.Preferences(ctx, res.User.ID)
	require.NoError(t, err)
	prefs.ThemeMode = "neon"
	prefs.Language = ""
	prefs.ReminderNotifications = false
	updated, err := f.users.UpdatePreferences(ctx, res.User.ID, prefs)
	require.NoError(t, err)
	assert.Equal(t, domain.ThemeSystem, updated.ThemeMode)
	assert.Equal(t, "en", updated.Language)
	assert.False(t, updated.ReminderNotifications)

	_, err = f.users.List(ctx, repository.UserFilter{Role: "wizard"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNotificationService_NotifyHonorsPreferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.approvedDonor(t, "Fe", "09170000013", domain.BloodTypeOPos, "Bulan")
	b := f.approvedDonor(t, "Gil", "09170000014", domain.BloodTypeOPos, "Bulan")

	prefs, err := f.repos.Preferences.Get(ctx, b.User.ID)
	require.NoError(t, err)
	prefs.ReminderNotifications = false
	_, err = f.repos.Preferences.Update(ctx, prefs)
	require.NoError(t, err)

	n, err := f.notifications.Notify(ctx, []string{a.User.ID, b.User.ID, a.User.ID, ""}, "warning", "Donate soon", "It has been 3 months", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	page, err := f.notifications.List(ctx, repository.NotificationFilter{UserID: a.User.ID, Type: "reminder"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, domain.NotificationReminder, page.Items[0].Type)

	_, err = f.notifications.Create(ctx, &domain.Notification{UserID: a.User.ID})
	assert.ErrorIs(t, err, ErrValidation)
	created, err := f.notifications.Create(ctx, &domain.Notification{UserID: a.User.ID, Title: "Hi", Type: "blood_request"})
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationEmergency, created.Type)

	marked, err := f.notifications.MarkAllRead(ctx, a.User.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, marked) // approval + reminder + created
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	alerts []*domain.Alert
	err    error
}

func (r *recordingBroadcaster) Broadcast(_ context.Context, a *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestAlertService_CreateBroadcastsAndFansOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := f.approvedDonor(t, "Hana", "09170000015", domain.BloodTypeOPos, "Bulan")
	muted := f.approvedDonor(t, "Ivan", "09170000016", domain.BloodTypeOPos, "Bulan")
	elsewhere := f.approvedDonor(t, "Jun", "09170000017", domain.BloodTypeOPos, "Gubat")
	_, err := f.donors.Create(ctx, &domain.Donor{
		FullName: "No Account", Age: 40, Sex: "Male", BloodType: domain.BloodTypeOPos,
		ContactNumber: "09170000018", Municipality: "Bulan",
	})
	require.NoError(t, err)

	prefs, err := f.repos.Preferences.Get(ctx, muted.User.ID)
	require.NoError(t, err)
	prefs.EmergencyNotifications = false
	_, err = f.repos.Preferences.Update(ctx, prefs)
	require.NoError(t, err)

	first := &recordingBroadcaster{}
	second := &recordingBroadcaster{err: errors.New("broker down")}
	svc := NewAlertService(f.repos.Alerts, f.repos.Donors, f.notifications, Broadcasters{first, second}, zap.NewNop())

	bt := domain.BloodType("o+")
	town := "Bulan"
	alert, err := svc.Create(ctx, "officer-1", &domain.Alert{
		Title: "Need O+ in Bulan", Message: "Two units needed", Urgency: "critical",
		BloodType: &bt, Municipality: &town,
	})
	require.NoError(t, err)
	assert.True(t, alert.IsActive)
	assert.Equal(t, "officer-1", alert.CreatedBy)
	assert.Equal(t, domain.BloodTypeOPos, *alert.BloodType)
	assert.Len(t, first.alerts, 1)
	assert.Len(t, second.alerts, 1)

	countEmergency := func(userID string) int {
		page, err := f.notifications.List(ctx, repository.NotificationFilter{UserID: userID, Type: "Emergency"})
		require.NoError(t, err)
		return page.Total
	}
	assert.Equal(t, 1, countEmergency(target.User.ID))
	assert.Equal(t, 0, countEmergency(muted.User.ID))
	assert.Equal(t, 0, countEmergency(elsewhere.User.ID))

	_, err = svc.Create(ctx, "officer-1", &domain.Alert{Title: "Drive", Message: "Blood drive on Saturday", Urgency: "low"})
	require.NoError(t, err)
	assert.Equal(t, 1, countEmergency(target.User.ID))

	past := time.Now().Add(-time.Hour)
	_, err = svc.Create(ctx, "officer-1", &domain.Alert{Title: "Old", Message: "m", ExpiresAt: &past})
	assert.ErrorIs(t, err, ErrValidation)
	bad := "Atlantis"
	_, err = svc.Create(ctx, "officer-1", &domain.Alert{Title: "Bad", Message: "m", Municipality: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	live, err := svc.ListActive(ctx, repository.AlertFilter{BloodType: "O+", Municipality: "Bulan"})
	require.NoError(t, err)
	assert.Equal(t, 2, live.Total)

	require.NoError(t, svc.Deactivate(ctx, alert.ID))
	live, err = svc.ListActive(ctx, repository.AlertFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, live.Total)
}

func TestReportService_ExportDonors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, bt := range []domain.BloodType{domain.BloodTypeAPos, domain.BloodTypeAPos, domain.BloodTypeONeg} {
		_, err := f.donors.Create(ctx, &domain.Donor{
			FullName: "Donor", Age: 20 + i, Sex: "Female", BloodType: bt,
			ContactNumber: "0917000002" + string(rune('0'+i)), Municipality: "Juban",
		})
		require.NoError(t, err)
	}

	reports := NewReportService(f.repos.Donors, zap.NewNop())
	data, err := reports.ExportDonors(ctx, repository.DonorFilter{BloodType: "A+"})
	require.NoError(t, err)

	x, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer x.Close()

	rows, err := x.GetRows(donorSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, donorExportHeaders, rows[0])
	assert.Equal(t, "A+", rows[1][3])

	summary, err := x.GetRows(summarySheet)
	require.NoError(t, err)
	require.Len(t, summary, len(domain.BloodTypes)+2)
	assert.Equal(t, []string{"All", "3", "3"}, summary[len(summary)-1])
}

type chatFixture struct {
	svc    ChatService
	conn   *chatsync.StaticMonitor
	remote repository.ChatRepository
}

func newChatFixture(t *testing.T, online bool, llm chatbot.Generator) *chatFixture {
	t.Helper()
	ctx := context.Background()
	remote := repository.NewSQLChatRepository(sqlstoretest.NewSQLite(t))
	local, err := chatsync.NewLocalCache(ctx, sqlstoretest.NewSQLite(t))
	require.NoError(t, err)
	conn := chatsync.NewStaticMonitor(online)
	syncer := chatsync.NewSyncer(local, remote, chatsync.NewQueue(store.NewMemoryKV(), ""), conn, zap.NewNop())
	rules, err := chatbot.NewRuleEngine(chatbot.DefaultIntents())
	require.NoError(t, err)
	return &chatFixture{
		svc:    NewChatService(syncer, chatbot.NewResponder(rules, llm, zap.NewNop()), zap.NewNop()),
		conn:   conn,
		remote: remote,
	}
}

type stubGenerator struct {
	history []domain.ChatbotMessage
}

func (s *stubGenerator) Generate(_ context.Context, history []domain.ChatbotMessage, _ string) (string, error) {
	s.history = history
	return "Rest well and hydrate.", nil
}

func TestChatService_OnlineSend(t *testing.T) {
	gen := &stubGenerator{}
	cf := newChatFixture(t, true, gen)
	ctx := context.Background()

	_, err := cf.svc.Send(ctx, "user-1", "   ")
	assert.ErrorIs(t, err, ErrValidation)

	ex, err := cf.svc.Send(ctx, "user-1", "Am I eligible?")
	require.NoError(t, err)
	assert.Equal(t, chatbot.SourceRules, ex.Source)
	assert.Equal(t, "eligibility", ex.Intent)
	assert.Equal(t, domain.ChatRoleBot, ex.Reply.Role)
	assert.True(t, ex.Reply.CreatedAt.After(ex.Message.CreatedAt))

	ex2, err := cf.svc.Send(ctx, "user-1", "what should I eat tonight")
	require.NoError(t, err)
	assert.Equal(t, chatbot.SourceLLM, ex2.Source)
	assert.Equal(t, ex.SessionID, ex2.SessionID)
	assert.Len(t, gen.history, 2)

	remote, err := cf.remote.ListMessages(ctx, ex.SessionID)
	require.NoError(t, err)
	assert.Len(t, remote, 4)

	conv, err := cf.svc.Conversation(ctx, "user-1", "")
	require.NoError(t, err)
	require.Len(t, conv, 4)
	assert.Equal(t, "Am I eligible?", conv[0].Content)

	pending, err := cf.svc.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestChatService_OfflineThenSync(t *testing.T) {
	cf := newChatFixture(t, false, nil)
	ctx := context.Background()

	ex, err := cf.svc.Send(ctx, "user-2", "hello")
	require.NoError(t, err)
	assert.Equal(t, chatbot.SourceRules, ex.Source)
	assert.False(t, ex.Message.IsSynced)

	pending, err := cf.svc.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, pending) // session + two messages

	cf.conn.SetOnline(true)
	res, err := cf.svc.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Replayed)
	assert.Zero(t, res.Failed)

	remote, err := cf.remote.ListMessages(ctx, ex.SessionID)
	require.NoError(t, err)
	assert.Len(t, remote, 2)
	sess, err := cf.remote.CurrentSession(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, ex.SessionID, sess.ID)
}
