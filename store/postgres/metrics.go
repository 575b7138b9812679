package postgres

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/r3e-network/lottery-core/internal/errors"
)

// ListActiveCampaignIDs returns every campaign the hourly rollup job should
// consider, regardless of status — paused/ended campaigns may still have a
// final hour bucket to reconcile.
func (s *Store) ListActiveCampaignIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `SELECT id FROM campaigns`)
	if err != nil {
		return nil, errors.TransientStoreError("list_campaign_ids", err)
	}
	return ids, nil
}

// UpsertHourlyMetrics folds a Redis hourly counter snapshot (field names per
// internal/redisstore.RecordDraw's key conventions) into the relational
// hourly_metrics table.
func (s *Store) UpsertHourlyMetrics(ctx context.Context, campaignID, hourBucket string, counters map[string]string, uniqueUsers int64) error {
	totalDraws := parseCounter(counters, "total_draws")
	budgetSpent := parseCounter(counters, "total_budget_consumed")
	prizeValue := parseCounter(counters, "total_prize_value_points")

	var corrections int64
	for key, v := range counters {
		if strings.HasSuffix(key, "_triggered") {
			corrections += parseInt(v)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hourly_metrics (campaign_id, hour_bucket, total_draws, unique_users, total_budget_spent, total_prize_value, corrections_triggered)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (campaign_id, hour_bucket) DO UPDATE SET
			total_draws = $3, unique_users = $4, total_budget_spent = $5, total_prize_value = $6, corrections_triggered = $7`,
		campaignID, hourBucket, totalDraws, uniqueUsers, budgetSpent, prizeValue, corrections)
	if err != nil {
		return errors.TransientStoreError("upsert_hourly_metrics", err)
	}
	return nil
}

func parseCounter(counters map[string]string, key string) int64 {
	return parseInt(counters[key])
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// RecentSpendRate estimates a campaign's actual-vs-expected spend ratio from
// up to the six most recent hourly_metrics rows (the latest hour's spend
// divided by the mean of the earlier rows), for the pressure controller's
// PressureTier classification. Falls back to 1.0 (neutral) with fewer than
// two rows of history.
func (s *Store) RecentSpendRate(ctx context.Context, campaignID string) (float64, error) {
	var spends []int64
	err := s.db.SelectContext(ctx, &spends, `
		SELECT total_budget_spent FROM hourly_metrics
		WHERE campaign_id = $1 ORDER BY hour_bucket DESC LIMIT 6`, campaignID)
	if err != nil {
		return 1.0, errors.TransientStoreError("recent_spend_rate", err)
	}
	if len(spends) < 2 {
		return 1.0, nil
	}
	latest := float64(spends[0])
	var priorSum float64
	for _, v := range spends[1:] {
		priorSum += float64(v)
	}
	priorAvg := priorSum / float64(len(spends)-1)
	if priorAvg <= 0 {
		return 1.0, nil
	}
	return latest / priorAvg, nil
}

// ListUsersWithDrawsInHour returns the distinct users who drew against a
// campaign within the given hour bucket, for the luck-debt EMA refresh.
func (s *Store) ListUsersWithDrawsInHour(ctx context.Context, campaignID, hourBucket string) ([]string, error) {
	windowStart, err := time.Parse("2006010215", hourBucket)
	if err != nil {
		return nil, errors.Internal("parse hour bucket", err)
	}
	windowEnd := windowStart.Add(time.Hour)

	var ids []string
	err = s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT user_id FROM draws
		WHERE campaign_id = $1 AND created_at >= $2 AND created_at < $3`, campaignID, windowStart, windowEnd)
	if err != nil {
		return nil, errors.TransientStoreError("list_users_with_draws_in_hour", err)
	}
	return ids, nil
}
