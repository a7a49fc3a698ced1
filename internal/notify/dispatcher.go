package notify

import (
	"context"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/internal/metrics"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
)

const publishTimeout = 5 * time.Second

// Dispatcher publishes notifications on a bounded worker pool so that a slow
// subscriber backend never holds up the importer. Failures are logged and counted.
type Dispatcher struct {
	publisher Publisher
	pool      pond.Pool
	log       *logger.Logger
}

// NewDispatcher creates a Dispatcher with at most workers in-flight publishes.
func NewDispatcher(publisher Publisher, workers int, log *logger.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}

	return &Dispatcher{
		publisher: publisher,
		pool:      pond.NewPool(workers),
		log:       log.WithComponent(common.ComponentNotifier),
	}
}

// NotifyBalanceChanged queues one notification per account.
func (d *Dispatcher) NotifyBalanceChanged(accounts []types.AccountAddress) {
	for _, account := range accounts {
		d.pool.Submit(func() {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()

			if err := d.publisher.PublishAccountBalanceChanged(ctx, account); err != nil {
				metrics.NotificationFailedInc(d.publisher.Backend())
				d.log.Warnw("failed to publish balance changed notification",
					"account", account.String(),
					"backend", d.publisher.Backend(),
					"error", err,
				)
				return
			}
			metrics.NotificationPublishedInc(d.publisher.Backend())
		})
	}
}

// Close drains queued notifications and closes the publisher.
func (d *Dispatcher) Close() error {
	d.pool.StopAndWait()
	return d.publisher.Close()
}
