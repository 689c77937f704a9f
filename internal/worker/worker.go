// Package worker turns file ledger events into staff notifications, keeps the reminder schedule
// in step with the files and relays every event to the external event stream.
package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/webdoc-rokib/visa-track-sub000/internal/events"
	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/reminders"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
)

const DefaultConsumer = "notifier"

var notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "visatrack_notifications_total",
	Help: "Notifications by template and delivery outcome.",
}, []string{"template", "status"})

type Store interface {
	store.EventStore
	store.NotificationStore
	GetFile(ctx context.Context, fileID string) (models.File, bool, error)
}

// ReminderSchedule is satisfied by *reminders.Schedule.
type ReminderSchedule interface {
	Set(ctx context.Context, fileID, date string) error
	Cancel(ctx context.Context, fileID string) error
	Claim(ctx context.Context, now time.Time, limit int) ([]reminders.Reminder, error)
}

type Config struct {
	Consumer     string
	BatchSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
	Channel      string
	Location     *time.Location
	Clock        func() time.Time
}

type Worker struct {
	store        Store
	provider     Provider
	publisher    events.Publisher
	schedule     ReminderSchedule
	consumer     string
	batchSize    int
	maxAttempts  int
	retryBackoff time.Duration
	channel      string
	loc          *time.Location
	clock        func() time.Time
}

// New wires a worker. publisher and schedule may be nil when Kafka or Redis are not configured.
func New(st Store, provider Provider, publisher events.Publisher, schedule ReminderSchedule, cfg Config) *Worker {
	w := &Worker{
		store:        st,
		provider:     provider,
		publisher:    publisher,
		schedule:     schedule,
		consumer:     cfg.Consumer,
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
		channel:      cfg.Channel,
		loc:          cfg.Location,
		clock:        cfg.Clock,
	}
	if w.consumer == "" {
		w.consumer = DefaultConsumer
	}
	if w.batchSize <= 0 {
		w.batchSize = 50
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = 3
	}
	if w.channel == "" {
		w.channel = "inapp"
	}
	if w.loc == nil {
		w.loc = time.UTC
	}
	if w.clock == nil {
		w.clock = time.Now
	}
	if w.provider == nil {
		w.provider = logProvider{channel: w.channel}
	}
	if w.publisher == nil {
		w.publisher = events.NoopPublisher{}
	}
	return w
}

// Run processes one batch of ledger events after the stored offset, then dispatches due reminders.
// The offset only advances once the batch has been relayed.
func (w *Worker) Run(ctx context.Context) error {
	last, err := w.store.GetOffset(ctx, w.consumer)
	if err != nil {
		return err
	}

	batch, err := w.store.ListEventsAfter(ctx, last, w.batchSize)
	if err != nil {
		return err
	}

	if len(batch) > 0 {
		if err := w.publisher.Publish(ctx, batch); err != nil {
			return err
		}
		for _, event := range batch {
			if err := w.processEvent(ctx, event); err != nil {
				log.WithError(err).WithFields(log.Fields{
					"file_id":  event.FileID,
					"position": event.Position,
				}).Warn("notifier process error")
			}
			last = event.Position
		}
		if err := w.store.UpdateOffset(ctx, w.consumer, last); err != nil {
			return err
		}
	}

	return w.dispatchReminders(ctx)
}

func (w *Worker) processEvent(ctx context.Context, event store.FileEvent) error {
	payload, err := event.DecodePayload()
	if err != nil {
		return err
	}

	if err := w.syncReminder(ctx, event.Type, payload); err != nil {
		log.WithError(err).WithField("file_id", event.FileID).Warn("reminder schedule update failed")
	}

	template := templateForEvent(event.Type, payload)
	if template == "" {
		return nil
	}
	message := renderTemplate(defaultTemplates[template], payload)
	var errs []error
	for _, recipient := range recipientsFor(template, payload) {
		if err := w.deliver(ctx, template, recipient, message, payload.FileID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *Worker) syncReminder(ctx context.Context, eventType string, payload store.EventPayload) error {
	if w.schedule == nil {
		return nil
	}
	if eventType == store.EventFileDeleted || payload.Status == models.StatusDone {
		return w.schedule.Cancel(ctx, payload.FileID)
	}
	if !reminderTouched(eventType, payload) {
		return nil
	}
	today := w.clock().In(w.loc).Format(models.DateLayout)
	if payload.ReminderDate == "" || payload.ReminderDate < today {
		return w.schedule.Cancel(ctx, payload.FileID)
	}
	return w.schedule.Set(ctx, payload.FileID, payload.ReminderDate)
}

// reminderTouched reports whether the event may have set or moved the reminder date. Other
// events leave the schedule alone so an already dispatched reminder is not queued again.
func reminderTouched(eventType string, payload store.EventPayload) bool {
	switch eventType {
	case store.EventFileCreated, store.EventFileEdited:
		return true
	case store.EventFileStatus:
		return payload.Entry != nil && strings.Contains(payload.Entry.Action, "(Reminder: ")
	default:
		return false
	}
}

func (w *Worker) dispatchReminders(ctx context.Context) error {
	if w.schedule == nil {
		return nil
	}
	due, err := w.schedule.Claim(ctx, w.clock(), w.batchSize)
	if err != nil {
		return err
	}
	for _, reminder := range due {
		file, ok, err := w.store.GetFile(ctx, reminder.FileID)
		if err != nil && !errors.Is(err, store.ErrFileNotFound) {
			log.WithError(err).WithField("file_id", reminder.FileID).Warn("load reminder file failed")
			continue
		}
		if !ok || file.Status == models.StatusDone {
			continue
		}
		// A reminder moved after it was scheduled is stale; the newer date has its own entry.
		if file.ReminderDate != reminder.DueAt.In(w.loc).Format(models.DateLayout) {
			continue
		}
		payload := store.NewEventPayload(file, false)
		message := renderTemplate(defaultTemplates[TemplateReminder], payload)
		recipient := file.AssignedTo
		if recipient == "" || recipient == models.ProcessingTeam {
			recipient = file.CreatedBy
		}
		if err := w.deliver(ctx, TemplateReminder, recipient, message, file.FileID); err != nil {
			log.WithError(err).WithField("file_id", file.FileID).Warn("reminder delivery failed")
		}
	}
	return nil
}

// deliver stores the notification, then tries the provider up to maxAttempts times before
// dead-lettering it.
func (w *Worker) deliver(ctx context.Context, template, recipient, message, fileID string) error {
	notification := models.Notification{
		NotificationID: uuid.NewString(),
		Recipient:      recipient,
		Channel:        w.channel,
		Template:       template,
		Message:        message,
		FileID:         fileID,
		Status:         models.NotificationPending,
	}
	if err := w.store.InsertNotification(ctx, notification); err != nil {
		return err
	}

	for {
		providerErr := w.provider.Send(ctx, message, recipient)
		if providerErr == nil {
			notificationsTotal.WithLabelValues(template, models.NotificationSent).Inc()
			return w.store.MarkNotificationSent(ctx, notification.NotificationID)
		}

		attempts, err := w.store.MarkNotificationFailed(ctx, notification.NotificationID, providerErr.Error())
		if err != nil {
			return err
		}
		if attempts >= w.maxAttempts {
			notificationsTotal.WithLabelValues(template, models.NotificationFailed).Inc()
			if err := w.store.InsertDLQ(ctx, notification.NotificationID, "max attempts reached: "+providerErr.Error()); err != nil {
				return err
			}
			return providerErr
		}
		if w.retryBackoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.retryBackoff * time.Duration(attempts)):
			}
		}
	}
}

func Start(ctx context.Context, interval time.Duration, w *Worker) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Run(ctx); err != nil {
				log.WithError(err).Warn("notifier worker error")
			}
		}
	}
}
