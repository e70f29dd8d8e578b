package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"dugtong/internal/apiclient"
	"dugtong/internal/domain"
)

// restError maps API statuses back onto repository errors.
func restError(err error) error {
	if err == nil {
		return nil
	}
	switch apiclient.StatusOf(err) {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case http.StatusConflict:
		return fmt.Errorf("%w: %v", ErrRegistrationReviewed, err)
	}
	return err
}

func pageValues(v url.Values, page, pageSize int) url.Values {
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		v.Set("page_size", strconv.Itoa(pageSize))
	}
	return v
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func esc(id string) string { return url.PathEscape(id) }

// --- donors ---

type RESTDonorRepository struct {
	api *apiclient.Client
}

func NewRESTDonorRepository(api *apiclient.Client) *RESTDonorRepository {
	return &RESTDonorRepository{api: api}
}

// 确保实现了接口
var _ DonorRepository = (*RESTDonorRepository)(nil)

func (r *RESTDonorRepository) List(ctx context.Context, f DonorFilter) (*Page[*domain.Donor], error) {
	q := url.Values{}
	setIf(q, "blood_type", f.BloodType)
	setIf(q, "municipality", f.Municipality)
	setIf(q, "availability", f.Availability)
	setIf(q, "search", f.Search)
	var out Page[*domain.Donor]
	if err := r.api.Get(ctx, "/donors", &out, apiclient.WithQuery(pageValues(q, f.Page, f.PageSize))); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

func (r *RESTDonorRepository) Get(ctx context.Context, id string) (*domain.Donor, error) {
	var out domain.Donor
	if err := r.api.Get(ctx, "/donors/"+esc(id), &out); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

func (r *RESTDonorRepository) Create(ctx context.Context, d *domain.Donor) (*domain.Donor, error) {
	var out domain.Donor
	if err := r.api.Post(ctx, "/donors", d, &out); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

func (r *RESTDonorRepository) Update(ctx context.Context, id string, d *domain.Donor) (*domain.Donor, error) {
	var out domain.Donor
	if err := r.api.Put(ctx, "/donors/"+esc(id), d, &out); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

func (r *RESTDonorRepository) SoftDelete(ctx context.Context, id string) error {
	return restError(r.api.Delete(ctx, "/donors/"+esc(id), nil))
}

func (r *RESTDonorRepository) SetAvailability(ctx context.Context, id string, a domain.Availability) error {
	body := map[string]any{"availabilityStatus": a}
	return restError(r.api.Patch(ctx, "/donors/"+esc(id)+"/availability", body, nil))
}

func (r *RESTDonorRepository) CountByBloodType(ctx context.Context) ([]domain.BloodTypeCount, error) {
	var out domain.DonorSummary
	if err := r.api.Get(ctx, "/reports/summary", &out); err != nil {
		return nil, restError(err)
	}
	return out.ByBloodType, nil
}

// --- registrations ---

type RESTRegistrationRepository struct {
	api *apiclient.Client
}

func NewRESTRegistrationRepository(api *apiclient.Client) *RESTRegistrationRepository {
	return &RESTRegistrationRepository{api: api}
}

// 确保实现了接口
var _ RegistrationRepository = (*RESTRegistrationRepository)(nil)

// Create submits the public registration form; no session is needed.
func (r *RESTRegistrationRepository) Create(ctx context.Context, reg *domain.DonorRegistration) (*domain.DonorRegistration, error) {
	var out domain.DonorRegistration
	if err := r.api.Post(ctx, "/registrations", reg, &out, apiclient.NoAuth()); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

func (r *RESTRegistrationRepository) Get(ctx context.Context, id string) (*domain.DonorRegistration, error) {
	var out domain.DonorRegistration
	if err := r.api.Get(ctx, "/registrations/"+esc(id), &out); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

func (r *RESTRegistrationRepository) List(ctx context.Context, f RegistrationFilter) (*Page[*domain.DonorRegistration], error) {
	q := url.Values{}
	setIf(q, "status", f.Status)
	setIf(q, "search", f.Search)
	var out Page[*domain.DonorRegistration]
	if err := r.api.Get(ctx, "/registrations", &out, apiclient.WithQuery(pageValues(q, f.Page, f.PageSize))); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

// Approve the server takes the reviewer from the session and sets the initial password itself.
func (r *RESTRegistrationRepository) Approve(ctx context.Context, id, _, _ string) (*domain.ApprovalResult, error) {
	var out domain.ApprovalResult
	if err := r.api.Post(ctx, "/registrations/"+esc(id)+"/approve", map[string]any{}, &out); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

func (r *RESTRegistrationRepository) Reject(ctx context.Context, id, _, reason string) (*domain.DonorRegistration, error) {
	var out domain.DonorRegistration
	if err := r.api.Post(ctx, "/registrations/"+esc(id)+"/reject", map[string]any{"reason": reason}, &out); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

// --- users ---

type RESTUserRepository struct {
	api *apiclient.Client
}

func NewRESTUserRepository(api *apiclient.Client) *RESTUserRepository {
	return &RESTUserRepository{api: api}
}

// 确保实现了接口
var _ UserRepository = (*RESTUserRepository)(nil)

func (r *RESTUserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	var out domain.User
	if err := r.api.Get(ctx, "/users/"+esc(id), &out); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

func (r *RESTUserRepository) GetByContact(ctx context.Context, contact string) (*domain.User, error) {
	var out Page[*domain.User]
	q := url.Values{"contact": {contact}, "page_size": {"1"}}
	if err := r.api.Get(ctx, "/users", &out, apiclient.WithQuery(q)); err != nil {
		return nil, restError(err)
	}
	if len(out.Items) == 0 {
		return nil, ErrNotFound
	}
	return out.Items[0], nil
}

func (r *RESTUserRepository) List(ctx context.Context, f UserFilter) (*Page[*domain.User], error) {
	q := url.Values{}
	setIf(q, "role", f.Role)
	setIf(q, "search", f.Search)
	var out Page[*domain.User]
	if err := r.api.Get(ctx, "/users", &out, apiclient.WithQuery(pageValues(q, f.Page, f.PageSize))); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

// Create is not available remotely: password hashes never leave the server.
func (r *RESTUserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	return nil, ErrUnsupported
}

func (r *RESTUserRepository) Update(ctx context.Context, u *domain.User) (*domain.User, error) {
	var out domain.User
	if err := r.api.Put(ctx, "/users/"+esc(u.ID), u, &out); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

// --- preferences ---

// RESTPreferencesRepository the API scopes preferences to the session user; userID is not sent.
type RESTPreferencesRepository struct {
	api *apiclient.Client
}

func NewRESTPreferencesRepository(api *apiclient.Client) *RESTPreferencesRepository {
	return &RESTPreferencesRepository{api: api}
}

// 确保实现了接口
var _ PreferencesRepository = (*RESTPreferencesRepository)(nil)

func (r *RESTPreferencesRepository) Get(ctx context.Context, _ string) (*domain.UserPreferences, error) {
	var out domain.UserPreferences
	if err := r.api.Get(ctx, "/users/me/preferences", &out); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

func (r *RESTPreferencesRepository) Update(ctx context.Context, p *domain.UserPreferences) (*domain.UserPreferences, error) {
	var out domain.UserPreferences
	if err := r.api.Put(ctx, "/users/me/preferences", p, &out); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

// --- notifications ---

type RESTNotificationRepository struct {
	api *apiclient.Client
}

func NewRESTNotificationRepository(api *apiclient.Client) *RESTNotificationRepository {
	return &RESTNotificationRepository{api: api}
}

// 确保实现了接口
var _ NotificationRepository = (*RESTNotificationRepository)(nil)

func (r *RESTNotificationRepository) List(ctx context.Context, f NotificationFilter) (*Page[*domain.Notification], error) {
	q := url.Values{}
	if f.UnreadOnly {
		q.Set("unread_only", "true")
	}
	setIf(q, "type", f.Type)
	var out Page[*domain.Notification]
	if err := r.api.Get(ctx, "/notifications", &out, apiclient.WithQuery(pageValues(q, f.Page, f.PageSize))); err != nil {
		return nil, restError(err)
	}
	for _, n := range out.Items {
		n.Type = domain.NormalizeNotificationType(string(n.Type))
	}
	return &out, nil
}

func (r *RESTNotificationRepository) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	var out domain.Notification
	if err := r.api.Post(ctx, "/notifications", n, &out); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

func (r *RESTNotificationRepository) CreateMany(ctx context.Context, ns []*domain.Notification) error {
	for _, n := range ns {
		if _, err := r.Create(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (r *RESTNotificationRepository) MarkRead(ctx context.Context, _, id string) error {
	return restError(r.api.Post(ctx, "/notifications/"+esc(id)+"/read", map[string]any{}, nil))
}

func (r *RESTNotificationRepository) MarkAllRead(ctx context.Context, _ string) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	if err := r.api.Post(ctx, "/notifications/read-all", map[string]any{}, &out); err != nil {
		return 0, restError(err)
	}
	return out.Updated, nil
}

func (r *RESTNotificationRepository) UnreadCount(ctx context.Context, _ string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := r.api.Get(ctx, "/notifications/unread-count", &out); err != nil {
		return 0, restError(err)
	}
	return out.Count, nil
}

// --- alerts ---

type RESTAlertRepository struct {
	api *apiclient.Client
}

func NewRESTAlertRepository(api *apiclient.Client) *RESTAlertRepository {
	return &RESTAlertRepository{api: api}
}

// 确保实现了接口
var _ AlertRepository = (*RESTAlertRepository)(nil)

// ListActive liveness is evaluated by the server clock.
func (r *RESTAlertRepository) ListActive(ctx context.Context, f AlertFilter, _ time.Time) (*Page[*domain.Alert], error) {
	q := url.Values{}
	setIf(q, "blood_type", f.BloodType)
	setIf(q, "municipality", f.Municipality)
	setIf(q, "urgency", f.Urgency)
	var out Page[*domain.Alert]
	if err := r.api.Get(ctx, "/alerts", &out, apiclient.WithQuery(pageValues(q, f.Page, f.PageSize))); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

func (r *RESTAlertRepository) Get(ctx context.Context, id string) (*domain.Alert, error) {
	var out domain.Alert
	if err := r.api.Get(ctx, "/alerts/"+esc(id), &out); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

func (r *RESTAlertRepository) Create(ctx context.Context, a *domain.Alert) (*domain.Alert, error) {
	var out domain.Alert
	if err := r.api.Post(ctx, "/alerts", a, &out); err != nil {
		return nil, restError(err)
	}
	return &out, nil
}

func (r *RESTAlertRepository) Deactivate(ctx context.Context, id string) error {
	return restError(r.api.Post(ctx, "/alerts/"+esc(id)+"/deactivate", map[string]any{}, nil))
}

// --- chat ---

type RESTChatRepository struct {
	api *apiclient.Client
}

func NewRESTChatRepository(api *apiclient.Client) *RESTChatRepository {
	return &RESTChatRepository{api: api}
}

// 确保实现了接口
var _ ChatRepository = (*RESTChatRepository)(nil)

func (r *RESTChatRepository) UpsertSession(ctx context.Context, s *domain.ChatbotSession) error {
	return restError(r.api.Put(ctx, "/chat/sessions/"+esc(s.ID), s, nil))
}

func (r *RESTChatRepository) UpsertMessage(ctx context.Context, m *domain.ChatbotMessage) error {
	return restError(r.api.Put(ctx, "/messages/"+esc(m.ID), m, nil))
}

func (r *RESTChatRepository) ListMessages(ctx context.Context, sessionID string) ([]*domain.ChatbotMessage, error) {
	var out []*domain.ChatbotMessage
	q := url.Values{"session_id": {sessionID}}
	if err := r.api.Get(ctx, "/messages", &out, apiclient.WithQuery(q)); err != nil {
		return nil, restError(err)
	}
	for _, m := range out {
		m.IsSynced = true
	}
	return out, nil
}

func (r *RESTChatRepository) CurrentSession(ctx context.Context, _ string) (*domain.ChatbotSession, error) {
	var out *domain.ChatbotSession
	if err := r.api.Get(ctx, "/chat/sessions/current", &out); err != nil {
		return nil, restError(err)
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}
