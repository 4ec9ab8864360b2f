package delivery

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/events"
)

const dispatchTimeout = 10 * time.Second

// AutoDispatcher listens for orders becoming ready for pickup and creates a
// delivery with the best available provider. It satisfies events.Handler.
type AutoDispatcher struct {
	service Service
	logger  *logrus.Logger
}

func NewAutoDispatcher(service Service, logger *logrus.Logger) *AutoDispatcher {
	return &AutoDispatcher{service: service, logger: logger}
}

func (d *AutoDispatcher) Name() string { return "delivery-auto-dispatch" }

func (d *AutoDispatcher) Handle(evt events.Event) {
	if evt.Type != events.TypeOrderReadyForPickup {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	del, err := d.service.CreateForOrder(ctx, CreateRequest{OrderID: evt.Key})
	if err != nil {
		d.logger.WithError(err).WithField("order_id", evt.Key).Error("auto dispatch failed")
		return
	}
	d.logger.WithFields(logrus.Fields{
		"order_id":    evt.Key,
		"delivery_id": del.ID,
		"provider":    del.ProviderName,
		"cost":        del.Cost,
	}).Info("order auto-dispatched")
}
