package report

import (
	"context"
	"time"

	"go.uber.org/zap"

	"catalog-api/internal/bucketing"
	"catalog-api/internal/client"
	"catalog-api/internal/util"
)

// Collector is the external error-reporting collaborator. Capture is
// fire-and-forget: the result is ignored by callers and a sink outage never
// affects the request that reported the error.
type Collector interface {
	Capture(ctx context.Context, category string, err error)
}

// ClickHouseCollector writes captured errors to the app_errors table.
type ClickHouseCollector struct {
	client    *client.ClickHouseClient
	bucketing *bucketing.Manager
	logger    *zap.Logger
}

func NewClickHouseCollector(ch *client.ClickHouseClient, bm *bucketing.Manager, logger *zap.Logger) *ClickHouseCollector {
	return &ClickHouseCollector{
		client:    ch,
		bucketing: bm,
		logger:    logger,
	}
}

func (c *ClickHouseCollector) Capture(ctx context.Context, category string, err error) {
	if err == nil {
		return
	}

	detail := err.Error()
	now := time.Now().UTC()
	eventBucket := c.bucketing.GetEventBucket(category)
	dateBucket := c.bucketing.GetDateBucket()

	// Detach from the request context so cancellation does not drop the
	// report; the insert itself stays bounded.
	go func() {
		insertCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		insertErr := c.client.Exec(insertCtx,
			`INSERT INTO app_errors (event_bucket, event_date, event_time, category, detail) VALUES (?, ?, ?, ?, ?)`,
			eventBucket, dateBucket, now, category, detail)
		if insertErr != nil {
			c.logger.Warn("Failed to capture error report",
				util.String("category", category),
				util.ErrorField(insertErr),
			)
		}
	}()
}

// Nop discards all reports. Used in tests and when ClickHouse is disabled.
type Nop struct{}

func (Nop) Capture(ctx context.Context, category string, err error) {}
