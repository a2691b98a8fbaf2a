package statistics

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/billflowhq/billflow/app/models"
	"github.com/billflowhq/billflow/internal/pkg/cache"
	"github.com/billflowhq/billflow/internal/pkg/database"
)

const (
	CacheKeyPaymentsTotal      = "statistics:payments:total"
	CacheKeyPaymentsDaily      = "statistics:payments:daily:%s" // Format with date YYYY-MM-DD
	CacheKeyRevenueTotal       = "statistics:revenue:total"
	CacheKeySubscriptionActive = "statistics:subscriptions:active"
	CacheExpiration            = 30 * time.Minute
)

// StatisticsData holds the aggregated billing figures served to operators.
type StatisticsData struct {
	TodayPayments       int     `json:"today_payments"`
	TotalPayments       int     `json:"total_payments"`
	TotalRevenue        float64 `json:"total_revenue"`
	ActiveSubscriptions int     `json:"active_subscriptions"`
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the cached figures are stale.
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the statistics cache when the interval passed.
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("error updating statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// UpdateStatisticsCache recomputes the billing aggregates from the database
// and stores them in Redis.
func UpdateStatisticsCache() error {
	db := database.GetDB()

	var totalPayments int64
	if err := db.Model(&models.Payment{}).
		Where("status = ?", models.PaymentStatusCaptured).
		Count(&totalPayments).Error; err != nil {
		return err
	}

	today := time.Now().Format("2006-01-02")
	var todayPayments int64
	if err := db.Model(&models.Payment{}).
		Where("status = ? AND DATE(created_at) = ?", models.PaymentStatusCaptured, today).
		Count(&todayPayments).Error; err != nil {
		return err
	}

	var totalRevenue float64
	if err := db.Model(&models.Payment{}).
		Where("status = ?", models.PaymentStatusCaptured).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&totalRevenue).Error; err != nil {
		return err
	}

	var activeSubscriptions int64
	if err := db.Model(&models.Subscription{}).
		Where("status = ?", models.SubscriptionStatusActive).
		Count(&activeSubscriptions).Error; err != nil {
		return err
	}

	if err := cache.Set(CacheKeyPaymentsTotal, strconv.FormatInt(totalPayments, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(fmt.Sprintf(CacheKeyPaymentsDaily, today), strconv.FormatInt(todayPayments, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(CacheKeyRevenueTotal, strconv.FormatFloat(totalRevenue, 'f', 2, 64), CacheExpiration); err != nil {
		return err
	}
	return cache.Set(CacheKeySubscriptionActive, strconv.FormatInt(activeSubscriptions, 10), CacheExpiration)
}

// GetStatistics returns the cached billing aggregates, refreshing them first
// when stale. Missing cache entries read as zero.
func GetStatistics() StatisticsData {
	UpdateCacheIfNeeded()

	data := StatisticsData{}
	if v, err := cache.Get(CacheKeyPaymentsTotal); err == nil {
		data.TotalPayments, _ = strconv.Atoi(v)
	}
	today := time.Now().Format("2006-01-02")
	if v, err := cache.Get(fmt.Sprintf(CacheKeyPaymentsDaily, today)); err == nil {
		data.TodayPayments, _ = strconv.Atoi(v)
	}
	if v, err := cache.Get(CacheKeyRevenueTotal); err == nil {
		data.TotalRevenue, _ = strconv.ParseFloat(v, 64)
	}
	if v, err := cache.Get(CacheKeySubscriptionActive); err == nil {
		data.ActiveSubscriptions, _ = strconv.Atoi(v)
	}
	return data
}
