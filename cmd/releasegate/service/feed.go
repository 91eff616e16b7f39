package service

import (
	"context"
	"encoding/json"

	"github.com/initcodes20/releasegate/common/logger"
	rediscommon "github.com/initcodes20/releasegate/common/redis"
)

// ChangeFeed listens on the Redis change channel and refreshes local
// subscribers whenever any instance mutates the catalog. Events carry
// no data beyond the touched key; the feed always reloads a full
// snapshot, so a dropped event is healed by the next one.
type ChangeFeed struct {
	events  *rediscommon.Client
	catalog *CatalogService
	log     *logger.Logger
}

// NewChangeFeed creates a change feed
func NewChangeFeed(events *rediscommon.Client, catalog *CatalogService, log *logger.Logger) *ChangeFeed {
	return &ChangeFeed{
		events:  events,
		catalog: catalog,
		log:     log,
	}
}

// Start blocks consuming change events until ctx is cancelled
func (f *ChangeFeed) Start(ctx context.Context) {
	pubsub := f.events.Subscribe(ctx, ChangeChannel)
	defer pubsub.Close()

	// Wait for confirmation that the subscription is live
	if _, err := pubsub.Receive(ctx); err != nil {
		f.log.Error("change feed subscription failed", "channel", ChangeChannel, "error", err)
		return
	}

	f.log.Info("change feed started", "channel", ChangeChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			f.log.Info("change feed stopping")
			return

		case msg := <-ch:
			if msg == nil {
				continue
			}

			var event ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				f.log.Warn("malformed change event", "payload", msg.Payload, "error", err)
				continue
			}

			f.log.Debug("change event received", "key", event.Key, "version_code", event.VersionCode)

			if err := f.catalog.Refresh(ctx); err != nil {
				f.log.Warn("catalog refresh failed", "error", err)
			}
		}
	}
}
