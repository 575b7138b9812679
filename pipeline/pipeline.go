// Package pipeline implements the Decision Pipeline's decide(ctx) operation
// (spec §4.1): Load → Admission → Idempotency check → Corrections →
// Selection → Execute → Emit. Everything through Selection is read-mostly
// and side-effect free; Execute hands off to executor.Executor, the only
// place that mutates authoritative state.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/r3e-network/lottery-core/assetclient"
	"github.com/r3e-network/lottery-core/domain/correction"
	"github.com/r3e-network/lottery-core/domain/pressure"
	"github.com/r3e-network/lottery-core/domain/prize"
	"github.com/r3e-network/lottery-core/domain/selector"
	"github.com/r3e-network/lottery-core/executor"
	"github.com/r3e-network/lottery-core/internal/errors"
	"github.com/r3e-network/lottery-core/internal/logging"
	"github.com/r3e-network/lottery-core/internal/metrics"
	"github.com/r3e-network/lottery-core/internal/redisstore"
	"github.com/r3e-network/lottery-core/store/postgres"
)

// Config controls deadlines and thresholds not carried on the campaign row
// itself (spec §5, §4.5's default pity threshold).
type Config struct {
	DecisionDeadline        time.Duration
	IdempotencyInFlightTTL  time.Duration
	IdempotencyCommittedTTL time.Duration
	DefaultPityThreshold    int64
	AntiEmptyThreshold      int64
	AntiHighThreshold       int64
	AntiHighCooldownRounds  int64
}

// Pipeline is the entry point request handlers call.
type Pipeline struct {
	store      *postgres.Store
	redis      *redisstore.Store
	asset      assetclient.Client
	exec       *executor.Executor
	logger     *logging.Logger
	metrics    *metrics.Metrics
	cfg        Config
	rngForProd func() selector.RNG
}

// New constructs a Pipeline. rngForProd lets tests substitute a deterministic
// seeded RNG while production wires selector.CryptoRNG{}.
func New(store *postgres.Store, redis *redisstore.Store, asset assetclient.Client, exec *executor.Executor, logger *logging.Logger, m *metrics.Metrics, cfg Config, rngForProd func() selector.RNG) *Pipeline {
	if rngForProd == nil {
		rngForProd = func() selector.RNG { return selector.CryptoRNG{} }
	}
	return &Pipeline{store: store, redis: redis, asset: asset, exec: exec, logger: logger, metrics: m, cfg: cfg, rngForProd: rngForProd}
}

// Request is the Draw RPC input (spec §6).
type Request struct {
	UserID          string
	CampaignID      string
	DrawType        string // "single" | "multi10"
	ClientRequestID string
	Role            string // for role-scoped quota rules; optional
}

// Decide runs the full pipeline for one draw request.
func (p *Pipeline) Decide(ctx context.Context, req Request) (executor.DrawResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.DecisionDeadline)
	defer cancel()

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.RecordDrawStage(req.CampaignID, "decide", time.Since(start))
		}
	}()

	// --- 1. Load ---
	campaignRow, err := p.store.GetCampaign(ctx, req.CampaignID)
	if err != nil {
		return executor.DrawResponse{}, err
	}
	if !campaignRow.Active() {
		return executor.DrawResponse{}, errors.CampaignInactive(req.CampaignID, string(campaignRow.Status))
	}

	pricingCfg, err := p.store.GetActivePricing(ctx, req.CampaignID)
	if err != nil {
		return executor.DrawResponse{}, err
	}
	cost := pricingCfg.CostFor(req.DrawType)

	now := time.Now().UTC()
	dayBucket := prize.DayBucket(now)

	// user-experience-state and global-state are read-only here for the
	// Corrections stage; the Executor re-reads them FOR UPDATE inside its
	// transaction before mutating (spec §4.2 "apply is invoked only inside
	// the Executor's transaction").
	state, err := p.store.PeekExperienceState(ctx, req.UserID, req.CampaignID)
	if err != nil {
		return executor.DrawResponse{}, err
	}
	global, err := p.store.PeekGlobalState(ctx, req.UserID)
	if err != nil {
		return executor.DrawResponse{}, err
	}

	pressureCell := p.loadPressure(ctx, campaignRow.ID, campaignRow.RemainingBudget, campaignRow.TotalBudget)

	// --- 2. Admission ---
	quotaRules, err := p.store.ListApplicableQuotaRules(ctx, req.CampaignID, req.Role, req.UserID)
	if err != nil {
		return executor.DrawResponse{}, err
	}
	if winner := prize.ResolveQuota(now, quotaRules); winner != nil {
		scopeKey := winner.ScopeKey
		if winner.Scope == prize.QuotaScopeUser {
			scopeKey = req.UserID
		}
		count, err := p.store.CountDrawsToday(ctx, winner.Scope, scopeKey, dayBucket)
		if err != nil {
			return executor.DrawResponse{}, err
		}
		if count >= winner.DailyLimit {
			return executor.DrawResponse{}, errors.QuotaExceeded(string(winner.Scope), int(winner.DailyLimit))
		}
	}

	balance, err := p.asset.Balance(ctx, req.UserID)
	if err != nil {
		return executor.DrawResponse{}, errors.TransientStoreError("asset_balance_check", err)
	}
	if balance < cost {
		return executor.DrawResponse{}, errors.InsufficientPoints(cost, balance)
	}

	// --- 3. Idempotency check ---
	fingerprint := fmt.Sprintf("%s:%s:%s:%d", req.UserID, req.CampaignID, req.DrawType, cost)
	existing, alreadySeen, err := p.redis.ReserveInFlight(ctx, req.ClientRequestID, fingerprint, p.cfg.IdempotencyInFlightTTL)
	if err != nil {
		return executor.DrawResponse{}, err
	}
	if alreadySeen {
		switch existing.Status {
		case redisstore.StatusCommitted:
			var resp executor.DrawResponse
			if err := json.Unmarshal(existing.StoredResponse, &resp); err != nil {
				return executor.DrawResponse{}, errors.Internal("unmarshal replayed idempotency response", err)
			}
			return resp, nil
		default:
			return executor.DrawResponse{}, errors.InProgress(req.ClientRequestID)
		}
	}

	// --- 4. Corrections ---
	tierRules, err := p.store.ListTierRules(ctx, req.CampaignID, "")
	if err != nil {
		_ = p.redis.ReleaseInFlight(ctx, req.ClientRequestID)
		return executor.DrawResponse{}, err
	}

	correctionCtx := correction.Context{
		Campaign: correction.CampaignView{
			GuaranteeEnabled:   campaignRow.Guarantee.Enabled,
			GuaranteeThreshold: int64(campaignRow.Guarantee.ThresholdDraws),
			GuaranteePrizeID:   campaignRow.Guarantee.GuaranteePrizeID,
		},
		State: state, Global: global, PressureCell: pressureCell,
		PityThreshold:          p.cfg.DefaultPityThreshold,
		AntiEmptyThreshold:     p.cfg.AntiEmptyThreshold,
		AntiHighThreshold:      p.cfg.AntiHighThreshold,
		AntiHighCooldownRounds: p.cfg.AntiHighCooldownRounds,
	}
	override, composed, trace := correction.Evaluate(correctionCtx)

	// --- 5. Selection ---
	prizesByTier, err := p.prizesByTier(ctx, req.CampaignID)
	if err != nil {
		_ = p.redis.ReleaseInFlight(ctx, req.ClientRequestID)
		return executor.DrawResponse{}, err
	}
	dayCounts, err := p.store.ListDayCapCounters(ctx, req.CampaignID, dayBucket)
	if err != nil {
		_ = p.redis.ReleaseInFlight(ctx, req.ClientRequestID)
		return executor.DrawResponse{}, err
	}

	rng := p.rngForProd()
	var selectedTier prize.Tier
	var selectedPrize *prize.Prize
	var weights []selector.WeightedTier

	if override != nil {
		selectedTier = override.Tier
		if override.PrizeID != "" {
			selectedPrize = findPrize(prizesByTier[override.Tier], override.PrizeID, dayCounts)
		}
		if selectedPrize == nil {
			selectedPrize = selector.SelectPrize(rng, prizesByTier[override.Tier], dayCounts)
		}
		if selectedPrize == nil {
			selectedTier, selectedPrize, err = selector.Select(rng, baseWeights(tierRules), prizesByTier, dayCounts)
			if err != nil {
				_ = p.redis.ReleaseInFlight(ctx, req.ClientRequestID)
				return executor.DrawResponse{}, err
			}
		}
	} else {
		base := baseWeights(tierRules)
		weights = selector.EffectiveTierWeights(base, composed)
		selectedTier, selectedPrize, err = selector.Select(rng, weights, prizesByTier, dayCounts)
		if err != nil {
			_ = p.redis.ReleaseInFlight(ctx, req.ClientRequestID)
			return executor.DrawResponse{}, err
		}
	}

	pipelineType := "normal"
	if override != nil {
		pipelineType = override.Name
	}

	// --- 6. Execute ---
	resp, err := p.exec.Execute(ctx, executor.Input{
		ClientRequestID: req.ClientRequestID, CampaignID: req.CampaignID, UserID: req.UserID,
		DrawType: req.DrawType, CostPoints: cost,
		SelectedTier: selectedTier, SelectedPrize: selectedPrize, PrizesByTier: prizesByTier, DayCounts: dayCounts, RNG: rng,
		PityTriggered:          correctionTriggered(trace, "pity") || correctionTriggered(trace, "guarantee"),
		AntiHighThreshold:      p.cfg.AntiHighThreshold,
		AntiHighCooldownRounds: p.cfg.AntiHighCooldownRounds,
		BudgetTier:             string(pressureCell.BudgetTier),
		PressureTier:           string(pressureCell.PressureTier),
		PipelineType:           pipelineType,
		CorrectionTrace:        trace,
		CandidateWeights:       weights,
		BudgetPool:             campaignRow.BudgetMode == "budget_pool",
	})
	if err != nil {
		return executor.DrawResponse{}, err
	}

	// --- 7. Emit --- (hourly counters / metrics already recorded inside
	// Execute, immediately after its transaction commits, per spec §4.7
	// "writes happen after T commits").
	return resp, nil
}

func (p *Pipeline) loadPressure(ctx context.Context, campaignID string, remaining, total int64) pressure.Cell {
	if snap, err := p.redis.GetPressureSnapshot(ctx, campaignID); err == nil && snap != nil {
		return pressure.Lookup(pressure.BudgetTier(snap.BudgetTier), pressure.PressureTier(snap.PressureTier))
	}
	// No cached snapshot (or Redis miss): compute synchronously from the
	// authoritative budget ratio with a neutral 1.0 expected spend rate —
	// staleness never threatens correctness per spec §5, only freshness.
	return pressure.Classify(pressure.Inputs{
		CampaignID: campaignID, RemainingBudget: remaining, TotalBudget: total,
		ActualSpendRate: 1.0, ExpectedSpendRate: 1.0,
	})
}

func (p *Pipeline) prizesByTier(ctx context.Context, campaignID string) (map[prize.Tier][]prize.Prize, error) {
	all, err := p.store.ListPrizes(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	byTier := make(map[prize.Tier][]prize.Prize)
	for _, pr := range all {
		byTier[pr.Tier] = append(byTier[pr.Tier], pr)
	}
	return byTier, nil
}

func baseWeights(rules []prize.TierRule) []selector.WeightedTier {
	out := make([]selector.WeightedTier, 0, len(rules))
	for _, r := range rules {
		out = append(out, selector.WeightedTier{Tier: r.TierName, Weight: r.TierWeight})
	}
	return out
}

func findPrize(prizes []prize.Prize, id string, dayCounts map[string]int64) *prize.Prize {
	for i := range prizes {
		if prizes[i].ID == id && prizes[i].Eligible(dayCounts[prizes[i].ID]) {
			return &prizes[i]
		}
	}
	return nil
}

func correctionTriggered(trace []correction.Outcome, name string) bool {
	for _, o := range trace {
		if o.Name == name && o.Triggered {
			return true
		}
	}
	return false
}
