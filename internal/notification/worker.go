package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"

	"clinic-queue-backend/internal/bus"
	"clinic-queue-backend/internal/model"
	"clinic-queue-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// job is one patient-topic event waiting to be pushed.
type job struct {
	patientID string
	event     bus.Event
}

// Message is the JSON payload delivered to the patient's service worker.
type Message struct {
	Title         string       `json:"title"`
	Body          string       `json:"body"`
	Type          string       `json:"type"`
	AppointmentID string       `json:"appointmentId"`
	Status        model.Status `json:"status"`
}

// WorkerPool pushes patient-topic bus events to the patient's registered
// devices. It is a bus.Publisher; events on other topics are ignored.
type WorkerPool struct {
	size    int
	jobs    chan job
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	log     zerolog.Logger
	pending sync.WaitGroup
}

var _ bus.Publisher = (*WorkerPool)(nil)

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, st store.Store, webpushOptions *webpush.Options, log zerolog.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan job, size*16), // Buffered channel
		store:   st,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
		log:     log.With().Str("component", "push").Logger(),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug().Int("worker", id).Msg("push worker started")
	for {
		select {
		case j := <-wp.jobs:
			wp.sendNotificationsForPatient(ctx, j)
			wp.pending.Done()
		case <-ctx.Done():
			wp.log.Debug().Int("worker", id).Msg("push worker shutting down")
			return
		}
	}
}

// Publish queues a push for patient topics. It never blocks: when the queue
// is full the push is dropped, as with any other slow bus subscriber.
func (wp *WorkerPool) Publish(_ context.Context, topic string, event bus.Event) error {
	kind, patientID, ok := bus.SplitTopic(topic)
	if !ok || kind != bus.KindPatient {
		return nil
	}
	event.Topic = topic
	wp.pending.Add(1)
	select {
	case wp.jobs <- job{patientID: patientID, event: event}:
		return nil
	default:
		wp.pending.Done()
		return fmt.Errorf("push queue full, dropping %s for %s", event.Type, topic)
	}
}

// Flush waits until every queued push has been attempted or ctx is done.
// Workers must be running and no Publish may race with it.
func (wp *WorkerPool) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		wp.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendNotificationsForPatient fetches the patient's subscriptions and pushes to each.
func (wp *WorkerPool) sendNotificationsForPatient(ctx context.Context, j job) {
	subscriptions, err := wp.store.PushSubscriptions(ctx, j.patientID)
	if err != nil {
		wp.log.Error().Err(err).Str("patient_id", j.patientID).Msg("error fetching push subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(buildMessage(j.event))
	if err != nil {
		wp.log.Error().Err(err).Msg("error encoding push payload")
		return
	}

	wp.log.Debug().Int("count", len(subscriptions)).Str("patient_id", j.patientID).Msg("sending push notifications")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func buildMessage(ev bus.Event) Message {
	msg := Message{
		Title:         "Appointment update",
		Type:          ev.Type,
		AppointmentID: ev.AppointmentID,
		Status:        ev.Status,
	}

	var a model.Appointment
	when := "your appointment"
	if len(ev.Data) > 0 && json.Unmarshal(ev.Data, &a) == nil && a.AppointmentDate != "" {
		when = fmt.Sprintf("your appointment on %s at %s", a.AppointmentDate, a.AppointmentTime)
	}

	switch ev.Type {
	case bus.EventCancelled:
		msg.Title = "Appointment cancelled"
		msg.Body = fmt.Sprintf("%s was cancelled.", capitalize(when))
		if a.CancellationReason != "" {
			msg.Body += " Reason: " + a.CancellationReason
		}
	case bus.EventMissed:
		msg.Title = "Appointment missed"
		msg.Body = fmt.Sprintf("%s was marked as missed. Please book a new slot.", capitalize(when))
	default:
		msg.Body = fmt.Sprintf("%s is now %s.", capitalize(when), ev.Status)
	}
	return msg
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	// Manually construct the webpush.Subscription object
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("error sending push notification")
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.log.Info().Str("endpoint", sub.Endpoint).Msg("push subscription expired, deleting")
		if err := wp.store.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
	}
}
