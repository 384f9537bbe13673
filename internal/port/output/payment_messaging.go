package output

import (
	"github.com/tasca/payment-gateway/internal/core"
)

// PaymentMessaging is an output port (secondary port) for payment messaging
// Secondary adapters (RabbitMQ implementations) will implement this
type PaymentMessaging interface {
	// PublishPaymentCreated announces a new pending session to the monitors
	PublishPaymentCreated(reference string) error
	// PublishStatusChanged announces a status transition
	PublishStatusChanged(t core.Transition) error
	// Close closes the messaging connection
	Close() error
}
