package metrics

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

const jobName = "chat_notifier"

// Metrics holds the counters updated by the trigger handlers. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	eventsReceived     *prometheus.CounterVec
	notificationsSent  prometheus.Counter
	sendFailures       *prometheus.CounterVec
	requestsSkipped    *prometheus.CounterVec
	requestsDeleted    prometheus.Counter
	deleteFailures     prometheus.Counter
	deviceTokenChanges prometheus.Counter
}

// New registers the collectors in reg. Pass prometheus.DefaultRegisterer to
// expose them on the gin /metrics endpoint.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,
		eventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_notifier_events_received_total",
			Help: "Total number of document events dispatched to a trigger.",
		}, []string{"trigger"}),
		notificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_notifier_notifications_sent_total",
			Help: "Total number of push messages accepted by the gateway.",
		}),
		sendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_notifier_send_failures_total",
			Help: "Total number of push messages rejected by the gateway, partitioned by reason.",
		}, []string{"reason"}),
		requestsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_notifier_requests_skipped_total",
			Help: "Total number of notification requests not sent, partitioned by reason.",
		}, []string{"reason"}),
		requestsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_notifier_requests_deleted_total",
			Help: "Total number of consumed notification request documents deleted.",
		}),
		deleteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_notifier_delete_failures_total",
			Help: "Total number of failed deletes of notification request documents.",
		}),
		deviceTokenChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_notifier_device_token_changes_total",
			Help: "Total number of user profile updates that changed the device token.",
		}),
	}
}

func (m *Metrics) EventReceived(trigger string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(trigger).Inc()
}

func (m *Metrics) NotificationSent() {
	if m == nil {
		return
	}
	m.notificationsSent.Inc()
}

func (m *Metrics) SendFailed(reason string) {
	if m == nil {
		return
	}
	m.sendFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) RequestSkipped(reason string) {
	if m == nil {
		return
	}
	m.requestsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RequestDeleted() {
	if m == nil {
		return
	}
	m.requestsDeleted.Inc()
}

func (m *Metrics) DeleteFailed() {
	if m == nil {
		return
	}
	m.deleteFailures.Inc()
}

func (m *Metrics) DeviceTokenChanged() {
	if m == nil {
		return
	}
	m.deviceTokenChanges.Inc()
}

// Pusher отправляет метрики в Pushgateway. Нужен для короткоживущих инстансов,
// которые не успевают попасть под scrape.
type Pusher struct {
	pusher *push.Pusher
	logger *zap.Logger
}

// NewPusher returns nil when url is empty.
func (m *Metrics) NewPusher(url string, logger *zap.Logger) *Pusher {
	if m == nil || url == "" {
		return nil
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	instanceID := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	return &Pusher{
		pusher: push.New(url, jobName).Gatherer(m.gatherer).Grouping("instance", instanceID),
		logger: logger.Named("metrics_pusher").With(zap.String("instance", instanceID)),
	}
}

// Push sends the current values. Failures are logged, not returned.
func (p *Pusher) Push() {
	if p == nil {
		return
	}
	if err := p.pusher.Push(); err != nil {
		p.logger.Warn("Failed to push metrics to Pushgateway", zap.Error(err))
	}
}

// Run pushes every interval until ctx is cancelled, then pushes once more.
func (p *Pusher) Run(ctx context.Context, interval time.Duration) {
	if p == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.Push()
			return
		case <-ticker.C:
			p.Push()
		}
	}
}

// Delete removes this instance's group from the Pushgateway on shutdown.
func (p *Pusher) Delete() {
	if p == nil {
		return
	}
	if err := p.pusher.Delete(); err != nil {
		p.logger.Warn("Failed to delete metrics from Pushgateway", zap.Error(err))
	}
}
