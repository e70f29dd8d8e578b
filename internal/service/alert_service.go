package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dugtong/common/mqtt"
	commonredis "dugtong/common/redis"
	"dugtong/internal/domain"
	"dugtong/internal/repository"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	// AlertTopic MQTT topic alerts are published on.
	AlertTopic = "dugtong/alerts"
	// AlertStream Redis stream alerts are appended to.
	AlertStream = "dugtong:alerts"
)

// Broadcaster pushes a newly created alert to external listeners.
type Broadcaster interface {
	Broadcast(ctx context.Context, a *domain.Alert) error
}

// MQTTBroadcaster publishes alerts as JSON on topic.
type MQTTBroadcaster struct {
	client *mqtt.Client
	topic  string
}

func NewMQTTBroadcaster(client *mqtt.Client, topic string) *MQTTBroadcaster {
	if topic == "" {
		topic = AlertTopic
	}
	return &MQTTBroadcaster{client: client, topic: topic}
}

func (b *MQTTBroadcaster) Broadcast(_ context.Context, a *domain.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return b.client.Publish(b.topic, b.client.QoS(), false, payload)
}

// StreamBroadcaster appends alerts to a Redis stream.
type StreamBroadcaster struct {
	publisher *commonredis.StreamPublisher
	stream    string
}

func NewStreamBroadcaster(publisher *commonredis.StreamPublisher, stream string) *StreamBroadcaster {
	if stream == "" {
		stream = AlertStream
	}
	return &StreamBroadcaster{publisher: publisher, stream: stream}
}

func (b *StreamBroadcaster) Broadcast(ctx context.Context, a *domain.Alert) error {
	_, err := b.publisher.PublishJSON(ctx, b.stream, a)
	return err
}

// Broadcasters fans out to every member and reports the first error.
type Broadcasters []Broadcaster

func (bs Broadcasters) Broadcast(ctx context.Context, a *domain.Alert) error {
	var first error
	for _, b := range bs {
		if err := b.Broadcast(ctx, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// AlertService 血液警报服务
type AlertService interface {
	Create(ctx context.Context, creatorID string, a *domain.Alert) (*domain.Alert, error)
	ListActive(ctx context.Context, f repository.AlertFilter) (*repository.Page[*domain.Alert], error)
	Get(ctx context.Context, id string) (*domain.Alert, error)
	Deactivate(ctx context.Context, id string) error
}

type alertService struct {
	alerts        repository.AlertRepository
	donors        repository.DonorRepository
	notifications NotificationService
	broadcaster   Broadcaster
	validate      *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewAlertService broadcaster may be nil.
func NewAlertService(alerts repository.AlertRepository, donors repository.DonorRepository, notifications NotificationService, broadcaster Broadcaster, logger *zap.Logger) AlertService {
	return &alertService{
		alerts:        alerts,
		donors:        donors,
		notifications: notifications,
		broadcaster:   broadcaster,
		validate:      newValidator(),
		logger:        logger,
		now:           time.Now,
	}
}

func (s *alertService) Create(ctx context.Context, creatorID string, a *domain.Alert) (*domain.Alert, error) {
	if a == nil {
		return nil, invalid("body", "required")
	}
	a.Title = strings.TrimSpace(a.Title)
	a.Message = strings.TrimSpace(a.Message)
	a.Urgency = domain.ParseUrgency(string(a.Urgency))
	a.CreatedBy = creatorID
	a.IsActive = true
	if err := validateStruct(s.validate, a); err != nil {
		return nil, err
	}
	if a.BloodType != nil {
		bt, ok := domain.ParseBloodType(string(*a.BloodType))
		if !ok {
			return nil, invalid("bloodType", "bloodtype")
		}
		a.BloodType = &bt
	}
	if a.Municipality != nil {
		m := strings.TrimSpace(*a.Municipality)
		if m == "" {
			a.Municipality = nil
		} else if !domain.IsValidMunicipality(m) {
			return nil, invalid("municipality", "municipality")
		} else {
			a.Municipality = &m
		}
	}
	if a.ExpiresAt != nil && !a.ExpiresAt.After(s.now()) {
		return nil, invalid("expiresAt", "future")
	}

	out, err := s.alerts.Create(ctx, a)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Alert created",
		zap.String("alert_id", out.ID),
		zap.String("urgency", string(out.Urgency)),
		zap.String("created_by", creatorID),
	)

	if s.broadcaster != nil {
		if err := s.broadcaster.Broadcast(ctx, out); err != nil {
			s.logger.Warn("Alert broadcast failed", zap.String("alert_id", out.ID), zap.Error(err))
		}
	}
	if isEmergency(out.Urgency) {
		if n, err := s.fanOut(ctx, out); err != nil {
			s.logger.Warn("Emergency fan-out failed", zap.String("alert_id", out.ID), zap.Error(err))
		} else {
			s.logger.Info("Emergency fan-out done", zap.String("alert_id", out.ID), zap.Int("notified", n))
		}
	}
	return out, nil
}

func isEmergency(u domain.Urgency) bool {
	return u == domain.UrgencyHigh || u == domain.UrgencyCritical
}

// fanOut notifies the accounts of every available donor the alert targets.
func (s *alertService) fanOut(ctx context.Context, a *domain.Alert) (int, error) {
	if s.notifications == nil || s.donors == nil {
		return 0, nil
	}
	f := repository.DonorFilter{Availability: string(domain.AvailabilityAvailable), PageSize: MaxPageSize}
	if a.BloodType != nil {
		f.BloodType = string(*a.BloodType)
	}
	if a.Municipality != nil {
		f.Municipality = *a.Municipality
	}

	var userIDs []string
	for {
		page, err := s.donors.List(ctx, f)
		if err != nil {
			return 0, fmt.Errorf("list target donors: %w", err)
		}
		for _, d := range page.Items {
			if d.UserID != nil && a.Targets(d) {
				userIDs = append(userIDs, *d.UserID)
			}
		}
		if len(page.Items) < f.PageSize || (f.Page+1)*f.PageSize >= page.Total {
			break
		}
		f.Page++
	}
	return s.notifications.Notify(ctx, userIDs, domain.NotificationEmergency, a.Title, a.Message,
		map[string]string{"alertId": a.ID, "urgency": string(a.Urgency)})
}

func (s *alertService) ListActive(ctx context.Context, f repository.AlertFilter) (*repository.Page[*domain.Alert], error) {
	if f.BloodType != "" {
		bt, ok := domain.ParseBloodType(f.BloodType)
		if !ok {
			return nil, invalid("blood_type", "bloodtype")
		}
		f.BloodType = string(bt)
	}
	f.Page, f.PageSize = clampPage(f.Page, f.PageSize)
	return s.alerts.ListActive(ctx, f, s.now())
}

func (s *alertService) Get(ctx context.Context, id string) (*domain.Alert, error) {
	return s.alerts.Get(ctx, id)
}

func (s *alertService) Deactivate(ctx context.Context, id string) error {
	if err := s.alerts.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Alert deactivated", zap.String("alert_id", id))
	return nil
}
