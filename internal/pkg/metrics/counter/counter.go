package counter

import (
	"context"

	"github.com/billflowhq/billflow/internal/pkg/cache"
)

const (
	webhookReceivedKey  = "billing:counters:webhook:received"
	webhookFailedKey    = "billing:counters:webhook:failed"
	webhookDuplicateKey = "billing:counters:webhook:duplicate"
)

// AddWebhookReceived increments the delivery counter for an event type in Redis
func AddWebhookReceived(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookReceivedKey, eventType, 1).Err()
}

// AddWebhookFailed increments the failed-processing counter for an event type in Redis
func AddWebhookFailed(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookFailedKey, eventType, 1).Err()
}

// AddWebhookDuplicate increments the deduplicated-redelivery counter for an event type in Redis
func AddWebhookDuplicate(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookDuplicateKey, eventType, 1).Err()
}

// Snapshot reads all webhook counters grouped by outcome. Counters are
// best-effort operational data; a cold Redis just yields empty maps.
func Snapshot() (map[string]map[string]string, error) {
	ctx := context.Background()
	rdb := cache.GetClient()

	out := make(map[string]map[string]string, 3)
	for name, key := range map[string]string{
		"received":  webhookReceivedKey,
		"failed":    webhookFailedKey,
		"duplicate": webhookDuplicateKey,
	} {
		data, err := rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		out[name] = data
	}
	return out, nil
}
