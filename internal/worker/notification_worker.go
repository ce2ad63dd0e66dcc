package worker

import (
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/service"
)

// StartNotificationWorker subscribes the notification handlers and, when
// configured, the Kafka forwarder to the dispatcher.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, forwarder *events.KafkaForwarder) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if dispatcher != nil {
		forwarder.Register(dispatcher)
	}
}
