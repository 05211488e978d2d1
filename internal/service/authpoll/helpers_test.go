package authpoll

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/gateway"
	"github.com/vladislavdragonenkov/sveapay/internal/service/reconcile"
	"github.com/vladislavdragonenkov/sveapay/internal/storage/memory"
)

func newTestEngine(orders domain.OrderRepository) *reconcile.Engine {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	country := gateway.CountrySettings{Username: "u", Password: "p", ClientNumber: "79021", Testmode: true}
	settings := gateway.Settings{Methods: map[domain.PaymentMethod]gateway.MethodSettings{
		domain.PaymentMethodInvoice: {
			Enabled:      true,
			Testmode:     true,
			StrongAuthSE: true,
			Countries:    map[string]gateway.CountrySettings{"SE": country},
		},
	}}

	return reconcile.NewEngine(reconcile.Dependencies{
		Orders:   orders,
		Timeline: memory.NewTimelineRepository(),
		Outbox:   memory.NewOutboxRepository(),
		Vendor:   gateway.NewMockClient(),
		Settings: settings,
		Links:    reconcile.NewLinks("https://shop.example"),
		Logger:   logger.WithField("test", "engine"),
	})
}
