package chat

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for the messages counter.
const (
	OutcomeDelivered = "delivered"
	OutcomeDenied    = "denied"
	OutcomeEmpty     = "empty"
	OutcomeLimited   = "rate_limited"
	OutcomeFiltered  = "filtered"
	OutcomeCost      = "cost"
)

// Metrics counts chat traffic.
type Metrics struct {
	messages   *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	charged    *prometheus.CounterVec
}

// NewMetrics creates the chat metrics and registers them with reg. A nil
// reg leaves them unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nightchat_messages_total",
			Help: "Messages submitted, by channel and outcome.",
		}, []string{"channel", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nightchat_deliveries_total",
			Help: "Rendered messages handed to the sink, by kind.",
		}, []string{"kind"}),
		charged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nightchat_currency_charged_total",
			Help: "Currency debited for channel messages.",
		}, []string{"currency"}),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.deliveries, m.charged)
	}
	return m
}

func (m *Metrics) message(channel, outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) delivered(k Kind) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(k.String()).Inc()
}

func (m *Metrics) charge(currency string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.charged.WithLabelValues(currency).Add(amount)
}
