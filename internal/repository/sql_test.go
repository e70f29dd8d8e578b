package repository

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"dugtong/internal/domain"
	"dugtong/internal/sqlstore/sqlstoretest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickingClock returns strictly increasing instants so created_at ordering is deterministic.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newDonor(name string, bt domain.BloodType, town string) *domain.Donor {
	return &domain.Donor{
		FullName:      name,
		Age:           30,
		Sex:           "Female",
		BloodType:     bt,
		ContactNumber: "0917" + strings.Repeat("1", 7),
		Municipality:  town,
		Availability:  domain.AvailabilityAvailable,
	}
}

func TestSQLDonorRepository_FilterAndPaginate(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLDonorRepository(sqlstoretest.NewSQLite(t))
	repo.now = tickingClock()

	for i := 0; i < 7; i++ {
		_, err := repo.Create(ctx, newDonor("Match", domain.BloodTypeOPos, "Bulan"))
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, newDonor("Other type", domain.BloodTypeAPos, "Bulan"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newDonor("Other town", domain.BloodTypeOPos, "Gubat"))
	require.NoError(t, err)
	deleted, err := repo.Create(ctx, newDonor("Deleted", domain.BloodTypeOPos, "Bulan"))
	require.NoError(t, err)
	require.NoError(t, repo.SoftDelete(ctx, deleted.ID))

	f := DonorFilter{BloodType: "O+", Municipality: "Bulan", PageSize: 5}
	first, err := repo.List(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 7, first.Total)
	assert.Len(t, first.Items, 5)

	f.Page = 1
	second, err := repo.List(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 7, second.Total)
	assert.Len(t, second.Items, 2)

	seen := map[string]bool{}
	for _, d := range append(first.Items, second.Items...) {
		assert.Equal(t, domain.BloodTypeOPos, d.BloodType)
		assert.Equal(t, "Bulan", d.Municipality)
		assert.False(t, seen[d.ID], "duplicate %s", d.ID)
		seen[d.ID] = true
	}

	// newest first
	assert.True(t, first.Items[0].CreatedAt.After(first.Items[4].CreatedAt))
}

func TestSQLDonorRepository_SearchAndMutations(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLDonorRepository(sqlstoretest.NewSQLite(t))

	d, err := repo.Create(ctx, newDonor("Rosa Lim", domain.BloodTypeBNeg, "Irosin"))
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	_, err = repo.Create(ctx, newDonor("Pedro Cruz", domain.BloodTypeAPos, "Juban"))
	require.NoError(t, err)

	page, err := repo.List(ctx, DonorFilter{Search: "iros"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "Rosa Lim", page.Items[0].FullName)

	notes := "prefers weekends"
	d.Notes = &notes
	d.Age = 31
	updated, err := repo.Update(ctx, d.ID, d)
	require.NoError(t, err)
	assert.Equal(t, 31, updated.Age)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, notes, *updated.Notes)

	require.NoError(t, repo.SetAvailability(ctx, d.ID, domain.AvailabilityUnavailable))
	got, err := repo.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityUnavailable, got.Availability)

	counts, err := repo.CountByBloodType(ctx)
	require.NoError(t, err)
	require.Len(t, counts, len(domain.BloodTypes))
	byType := map[domain.BloodType]domain.BloodTypeCount{}
	for _, c := range counts {
		byType[c.BloodType] = c
	}
	assert.Equal(t, 1, byType[domain.BloodTypeBNeg].Total)
	assert.Equal(t, 0, byType[domain.BloodTypeBNeg].Available)
	assert.Equal(t, 1, byType[domain.BloodTypeAPos].Available)
	assert.Equal(t, 0, byType[domain.BloodTypeONeg].Total)

	require.NoError(t, repo.SoftDelete(ctx, d.ID))
	_, err = repo.Get(ctx, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.SoftDelete(ctx, d.ID), ErrNotFound)
	_, err = repo.Get(ctx, "not-a-number")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLRegistrationRepository_ApproveAndReject(t *testing.T) {
	ctx := context.Background()
	exec := sqlstoretest.NewSQLite(t)
	regs := NewSQLRegistrationRepository(exec)
	email := "ana@example.ph"

	reg, err := regs.Create(ctx, &domain.DonorRegistration{
		FullName: "Ana Reyes", Age: 25, Sex: "Female", BloodType: domain.BloodTypeABPos,
		ContactNumber: "09170000001", Email: &email, Municipality: "Matnog",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationPending, reg.Status)

	res, err := regs.Approve(ctx, reg.ID, "admin-1", "hash")
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationApproved, res.Registration.Status)
	assert.Equal(t, domain.RoleDonor, res.User.Role)
	assert.NotEmpty(t, res.Donor.ID)
	require.NotNil(t, res.Donor.UserID)
	assert.Equal(t, res.User.ID, *res.Donor.UserID)
	assert.Equal(t, reg.ID, res.Profile.RegistrationID)

	users := NewSQLUserRepository(exec)
	u, err := users.GetByContact(ctx, "09170000001")
	require.NoError(t, err)
	assert.Equal(t, "hash", u.PasswordHash)

	prefs, err := NewSQLPreferencesRepository(exec).Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ThemeSystem, prefs.ThemeMode)

	stored, err := regs.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationApproved, stored.Status)
	require.NotNil(t, stored.ReviewedBy)
	assert.Equal(t, "admin-1", *stored.ReviewedBy)

	_, err = regs.Approve(ctx, reg.ID, "admin-1", "hash")
	assert.ErrorIs(t, err, ErrRegistrationReviewed)
	_, err = regs.Reject(ctx, reg.ID, "admin-1", "late")
	assert.ErrorIs(t, err, ErrRegistrationReviewed)

	other, err := regs.Create(ctx, &domain.DonorRegistration{
		FullName: "Ben", Age: 40, Sex: "Male", BloodType: domain.BloodTypeONeg,
		ContactNumber: "09170000002", Municipality: "Pilar",
	})
	require.NoError(t, err)
	rejected, err := regs.Reject(ctx, other.ID, "admin-1", "incomplete")
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationRejected, rejected.Status)
	require.NotNil(t, rejected.ReviewReason)
	assert.Equal(t, "incomplete", *rejected.ReviewReason)

	pending, err := regs.List(ctx, RegistrationFilter{Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, 0, pending.Total)

	_, err = regs.Approve(ctx, "missing", "admin-1", "hash")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLApprove_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	exec := sqlstoretest.NewSQLite(t)
	users := NewSQLUserRepository(exec)
	regs := NewSQLRegistrationRepository(exec)

	// existing account with the same contact number makes the user insert fail
	_, err := users.Create(ctx, &domain.User{Role: domain.RoleDonor, FullName: "Taken", ContactNumber: "09179999999"})
	require.NoError(t, err)
	reg, err := regs.Create(ctx, &domain.DonorRegistration{
		FullName: "Dup", Age: 30, Sex: "Male", BloodType: domain.BloodTypeAPos,
		ContactNumber: "09179999999", Municipality: "Gubat",
	})
	require.NoError(t, err)

	_, err = regs.Approve(ctx, reg.ID, "admin", "hash")
	require.Error(t, err)

	stored, err := regs.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationPending, stored.Status)

	donors, err := NewSQLDonorRepository(exec).List(ctx, DonorFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, donors.Total)
}

func TestSQLUserAndPreferences(t *testing.T) {
	ctx := context.Background()
	exec := sqlstoretest.NewSQLite(t)
	users := NewSQLUserRepository(exec)
	prefs := NewSQLPreferencesRepository(exec)

	u, err := users.Create(ctx, &domain.User{Role: domain.RoleHospitalStaff, FullName: "Nurse Joy", ContactNumber: "0918"})
	require.NoError(t, err)

	p, err := prefs.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, *domain.DefaultPreferences(u.ID), *p)

	p.ThemeMode = domain.ThemeDark
	p.ReminderNotifications = false
	p, err = prefs.Update(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, domain.ThemeDark, p.ThemeMode)
	assert.False(t, p.ReminderNotifications)

	// a second read must not reset stored values
	p, err = prefs.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ThemeDark, p.ThemeMode)

	avatar := "https://cdn.example/a.png"
	u.AvatarURL = &avatar
	u.FullName = "Nurse Joy R."
	u, err = users.Update(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, "Nurse Joy R.", u.FullName)
	require.NotNil(t, u.AvatarURL)

	list, err := users.List(ctx, UserFilter{Role: "hospital_staff"})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)

	_, err = users.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = users.Update(ctx, &domain.User{ID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLNotificationRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLNotificationRepository(sqlstoretest.NewSQLite(t))
	repo.now = tickingClock()

	n, err := repo.Create(ctx, &domain.Notification{UserID: "u1", Title: "Blood needed", Message: "O+ needed", Type: "blood_request",
		Metadata: []byte(`{"alertId":"a1"}`)})
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationEmergency, n.Type)

	require.NoError(t, repo.CreateMany(ctx, []*domain.Notification{
		{UserID: "u1", Title: "t2", Message: "m", Type: domain.NotificationUpdate},
		{UserID: "u1", Title: "t3", Message: "m", Type: "warning"},
		{UserID: "u2", Title: "t4", Message: "m"},
	}))

	count, err := repo.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	reminders, err := repo.List(ctx, NotificationFilter{UserID: "u1", Type: "Reminder"})
	require.NoError(t, err)
	assert.Equal(t, 1, reminders.Total)

	require.NoError(t, repo.MarkRead(ctx, "u1", n.ID))
	assert.ErrorIs(t, repo.MarkRead(ctx, "u2", n.ID), ErrNotFound)

	unread, err := repo.List(ctx, NotificationFilter{UserID: "u1", UnreadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, unread.Total)

	all, err := repo.List(ctx, NotificationFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, 3, all.Total)
	assert.JSONEq(t, `{"alertId":"a1"}`, string(all.Items[2].Metadata))

	updated, err := repo.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)
	count, _ = repo.UnreadCount(ctx, "u1")
	assert.Equal(t, 0, count)
}

func TestSQLAlertRepository_ListActive(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLAlertRepository(sqlstoretest.NewSQLite(t))
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Hour), now.Add(time.Hour)
	oPos := domain.BloodTypeOPos
	bulan := "Bulan"

	open, err := repo.Create(ctx, &domain.Alert{Title: "Any", Message: "m", Urgency: "high"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &domain.Alert{Title: "O+ Bulan", Message: "m", BloodType: &oPos, Municipality: &bulan, ExpiresAt: &future})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &domain.Alert{Title: "Expired", Message: "m", ExpiresAt: &past})
	require.NoError(t, err)
	off, err := repo.Create(ctx, &domain.Alert{Title: "Off", Message: "m"})
	require.NoError(t, err)
	require.NoError(t, repo.Deactivate(ctx, off.ID))

	live, err := repo.ListActive(ctx, AlertFilter{}, now)
	require.NoError(t, err)
	assert.Equal(t, 2, live.Total)

	forDonor, err := repo.ListActive(ctx, AlertFilter{BloodType: "A+", Municipality: "Bulan"}, now)
	require.NoError(t, err)
	require.Equal(t, 1, forDonor.Total)
	assert.Equal(t, open.ID, forDonor.Items[0].ID)

	got, err := repo.Get(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UrgencyHigh, got.Urgency)
	assert.True(t, got.Live(now))

	assert.ErrorIs(t, repo.Deactivate(ctx, "missing"), ErrNotFound)
}

func TestSQLChatRepository_Upserts(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLChatRepository(sqlstoretest.NewSQLite(t))
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_, err := repo.CurrentSession(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	s := &domain.ChatbotSession{ID: "s1", UserID: "u1", Status: domain.SessionActive, LastActivityAt: t0, CreatedAt: t0}
	require.NoError(t, repo.UpsertSession(ctx, s))
	s.LastActivityAt = t0.Add(time.Minute)
	require.NoError(t, repo.UpsertSession(ctx, s))

	for i, content := range []string{"hello", "how do I donate?"} {
		m := &domain.ChatbotMessage{ID: "m" + string(rune('1'+i)), SessionID: "s1", UserID: "u1", Role: domain.ChatRoleUser,
			Content: content, CreatedAt: t0.Add(time.Duration(i) * time.Second)}
		require.NoError(t, repo.UpsertMessage(ctx, m))
		require.NoError(t, repo.UpsertMessage(ctx, m))
	}

	msgs, err := repo.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.True(t, msgs[0].IsSynced)

	cur, err := repo.CurrentSession(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "s1", cur.ID)
	assert.Equal(t, t0.Add(time.Minute), cur.LastActivityAt)
}
