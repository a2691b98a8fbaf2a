package controllers

import (
	"log"

	"github.com/billflowhq/billflow/internal/pkg/metrics/counter"
	"github.com/billflowhq/billflow/internal/pkg/statistics"
	"github.com/gofiber/fiber/v2"
)

// HandleBillingStats serves aggregated billing figures plus the webhook
// delivery counters for operators.
func HandleBillingStats(c *fiber.Ctx) error {
	stats := statistics.GetStatistics()

	counters, err := counter.Snapshot()
	if err != nil {
		log.Printf("webhook counter snapshot failed: %v", err)
		counters = nil
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"statistics":       stats,
		"webhook_counters": counters,
	})
}
