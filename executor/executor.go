// Package executor implements the Draw Executor (spec §4.6): the single
// serialized, transactional choke point where asset debit, stock decrement,
// state commit, and prize issuance happen atomically per (user, campaign).
// Everything upstream (Pipeline's Load/Admission/Corrections/Selection) is
// advisory; the Executor re-validates the invariants that matter under
// concurrency inside its own transaction, per spec §9's "never trust a
// pre-lock read for a mutation".
package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/lottery-core/assetclient"
	"github.com/r3e-network/lottery-core/domain/correction"
	"github.com/r3e-network/lottery-core/domain/experience"
	"github.com/r3e-network/lottery-core/domain/outbox"
	"github.com/r3e-network/lottery-core/domain/prize"
	"github.com/r3e-network/lottery-core/domain/selector"
	"github.com/r3e-network/lottery-core/internal/errors"
	"github.com/r3e-network/lottery-core/internal/lock"
	"github.com/r3e-network/lottery-core/internal/logging"
	"github.com/r3e-network/lottery-core/internal/metrics"
	"github.com/r3e-network/lottery-core/internal/redisstore"
	"github.com/r3e-network/lottery-core/store/postgres"
)

// Config controls lock and idempotency timing (spec §5).
type Config struct {
	LockAcquireTimeout      time.Duration
	LockTTL                 time.Duration
	IdempotencyCommittedTTL time.Duration
}

// Executor wires together every collaborator the transactional draw needs.
type Executor struct {
	store       *postgres.Store
	redis       *redisstore.Store
	locks       *lock.Service
	assetClient assetclient.Client
	metrics     *metrics.Metrics
	logger      *logging.Logger
	cfg         Config
}

// New constructs an Executor.
func New(store *postgres.Store, redis *redisstore.Store, locks *lock.Service, assetClient assetclient.Client, m *metrics.Metrics, logger *logging.Logger, cfg Config) *Executor {
	return &Executor{store: store, redis: redis, locks: locks, assetClient: assetClient, metrics: m, logger: logger, cfg: cfg}
}

// PrizeView is the minimal prize projection returned to the caller.
type PrizeView struct {
	ID    string     `json:"id,omitempty"`
	Name  string     `json:"name,omitempty"`
	Tier  prize.Tier `json:"tier"`
	Value int64      `json:"value"`
}

// DrawResponse is the canonical Draw RPC output (spec §6) — also the exact
// payload persisted as the idempotency record's stored response, so a
// replayed duplicate is byte-identical to the original (spec §8).
type DrawResponse struct {
	RequestID      string                 `json:"request_id"`
	Prize          PrizeView              `json:"prize"`
	Trace          map[string]interface{} `json:"trace"`
	NewBalance     int64                  `json:"new_balance"`
	PendingIssue   bool                   `json:"pending_issue,omitempty"`
	FallbackReason string                 `json:"fallback_reason,omitempty"`
}

// Input carries everything the Pipeline resolved before handing off to the
// Executor: the chosen tier/prize plus enough of the candidate pool to
// perform one in-transaction demotion retry if stock turns out exhausted.
type Input struct {
	ClientRequestID string
	CampaignID      string
	UserID          string
	DrawType        string
	CostPoints      int64

	SelectedTier  prize.Tier
	SelectedPrize *prize.Prize // nil for a fallback tier with no item

	PrizesByTier map[prize.Tier][]prize.Prize
	DayCounts    map[string]int64 // prize ID -> pre-fetched win count for today's day bucket
	RNG          selector.RNG

	PityTriggered          bool
	AntiHighThreshold      int64
	AntiHighCooldownRounds int64

	BudgetTier   string
	PressureTier string
	PipelineType string

	CorrectionTrace  []correction.Outcome
	CandidateWeights []selector.WeightedTier

	BudgetPool bool // campaign.BudgetMode == budget_pool
}

// Execute runs spec §4.6 steps 1-10 under the per-(user,campaign) lock.
func (e *Executor) Execute(ctx context.Context, in Input) (DrawResponse, error) {
	idemKey := in.ClientRequestID

	lease, err := e.locks.Acquire(ctx, in.UserID, in.CampaignID, e.cfg.LockTTL, e.cfg.LockAcquireTimeout)
	if err != nil {
		_ = e.redis.ReleaseInFlight(ctx, idemKey)
		return DrawResponse{}, err
	}
	defer func() { _ = lease.Release(context.Background()) }()

	var resp DrawResponse
	var fallbackExhaustion bool
	var issueDeferred bool

	txErr := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		campaignRow, err := e.store.GetCampaignForUpdate(ctx, tx, in.CampaignID)
		if err != nil {
			return err
		}
		if !campaignRow.Active() {
			return errors.CampaignInactive(in.CampaignID, string(campaignRow.Status))
		}

		debit, err := e.assetClient.Debit(ctx, in.UserID, in.CostPoints, idemKey+":debit")
		if err != nil {
			return err
		}

		dayBucket := prize.DayBucket(time.Now().UTC())

		committedTier := in.SelectedTier
		committedPrize := in.SelectedPrize

		if committedPrize != nil {
			ok, err := e.commitPrizeCounters(ctx, tx, committedPrize, dayBucket)
			if err != nil {
				return err
			}
			if !ok {
				next, retryPrize := e.retryDemotion(in, committedTier)
				if retryPrize == nil {
					fallbackExhaustion = true
					committedTier = prize.TierFallback
					committedPrize = nil
				} else {
					ok2, err := e.commitPrizeCounters(ctx, tx, retryPrize, dayBucket)
					if err != nil {
						return err
					}
					if !ok2 {
						fallbackExhaustion = true
						committedTier = prize.TierFallback
						committedPrize = nil
					} else {
						committedTier = next
						committedPrize = retryPrize
					}
				}
			}
		}

		prizeValue := int64(0)
		prizeID := ""
		prizeName := ""
		if committedPrize != nil {
			prizeValue = committedPrize.ValuePoints
			prizeID = committedPrize.ID
			prizeName = committedPrize.Name
		}

		if in.BudgetPool {
			if err := campaignRow.ConsumeBudget(prizeValue); err != nil {
				// Budget exhausted by a concurrent draw since Admission ran:
				// degrade to a fallback-exhaustion outcome rather than fail the
				// whole request, matching the stock-exhaustion handling above.
				fallbackExhaustion = true
				committedTier = prize.TierFallback
				committedPrize = nil
				prizeValue = 0
				prizeID = ""
				prizeName = ""
			} else if err := e.store.UpdateCampaignBudget(ctx, tx, in.CampaignID, campaignRow.RemainingBudget); err != nil {
				return err
			}
		}

		drawID := uuid.New().String()

		trace := buildTrace(in, committedTier, fallbackExhaustion)
		traceJSON, err := json.Marshal(trace)
		if err != nil {
			return errors.Internal("marshal correction trace", err)
		}
		weightsJSON, err := json.Marshal(in.CandidateWeights)
		if err != nil {
			return errors.Internal("marshal candidate weights", err)
		}

		rec := postgres.DrawRecord{
			ID: drawID, CampaignID: in.CampaignID, UserID: in.UserID, DrawType: in.DrawType,
			CostPoints: in.CostPoints, RewardTier: committedTier, PrizeID: prizeID,
			PrizeValuePoints: prizeValue, IdempotencyKey: idemKey, DayBucket: dayBucket,
		}
		dec := postgres.DrawDecision{
			ID: uuid.New().String(), BudgetTier: in.BudgetTier, PressureTier: in.PressureTier,
			EffectiveBudget: campaignRow.RemainingBudget, PipelineType: in.PipelineType,
			SelectedTier: committedTier, CorrectionTrace: traceJSON, CandidateWeights: weightsJSON,
		}
		if err := e.store.InsertDraw(ctx, tx, rec, dec); err != nil {
			return err
		}

		state, err := e.store.GetOrCreateExperienceState(ctx, tx, in.UserID, in.CampaignID)
		if err != nil {
			return err
		}
		diff := experience.Derive(committedTier, in.PityTriggered, in.AntiHighThreshold, in.AntiHighCooldownRounds)
		experience.Apply(state, diff)
		if err := e.store.SaveExperienceState(ctx, tx, state); err != nil {
			return err
		}

		global, err := e.store.GetOrCreateGlobalState(ctx, tx, in.UserID)
		if err != nil {
			return err
		}
		experience.ApplyGlobal(global, committedTier)
		if err := e.store.SaveGlobalState(ctx, tx, global); err != nil {
			return err
		}

		if committedPrize != nil {
			if _, issueErr := e.assetClient.Issue(ctx, in.UserID, committedPrize.ID, idemKey+":issue"); issueErr != nil {
				issueDeferred = true
				if err := e.store.EnqueueTx(ctx, tx, outbox.Entry{
					ID: uuid.New().String(), DrawID: drawID, UserID: in.UserID,
					CampaignID: in.CampaignID, PrizeID: committedPrize.ID, IdempotencyKey: idemKey + ":issue",
				}); err != nil {
					return err
				}
			}
		}

		resp = DrawResponse{
			RequestID:    in.ClientRequestID,
			Prize:        PrizeView{ID: prizeID, Name: prizeName, Tier: committedTier, Value: prizeValue},
			Trace:        trace,
			NewBalance:   debit.BalanceAfter,
			PendingIssue: issueDeferred,
		}
		if fallbackExhaustion {
			resp.FallbackReason = "fallback_exhaustion"
		}
		responseJSON, err := json.Marshal(resp)
		if err != nil {
			return errors.Internal("marshal draw response", err)
		}
		if err := e.store.RecordIdempotencyCommit(ctx, tx, idemKey, drawID, responseJSON); err != nil {
			return err
		}

		return nil
	})

	if txErr != nil {
		_ = e.redis.ReleaseInFlight(ctx, idemKey)
		if e.metrics != nil {
			e.metrics.RecordError("executor", string(errors.Code(txErr)), "execute")
		}
		return DrawResponse{}, txErr
	}

	responseJSON, _ := json.Marshal(resp)
	if err := e.redis.CommitIdempotency(ctx, idemKey, responseJSON, e.cfg.IdempotencyCommittedTTL); err != nil {
		e.logger.WithError(err).Warn("commit idempotency to redis failed after durable commit")
	}

	now := time.Now().UTC()
	hourBucket := now.Format("2006010215")
	dateBucket := prize.DayBucket(now)
	pityHit, antiEmptyHit, antiHighHit, luckDebtHit := correctionFlags(in.CorrectionTrace)
	if err := e.redis.RecordDraw(ctx, in.CampaignID, hourBucket, dateBucket, in.UserID, string(resp.Prize.Tier),
		in.BudgetTier, resp.Prize.Value, in.CostPoints, pityHit, antiEmptyHit, antiHighHit, luckDebtHit); err != nil {
		e.logger.WithError(err).Warn("record hourly metrics failed")
	}

	if e.metrics != nil {
		e.metrics.RecordDraw(in.CampaignID, string(resp.Prize.Tier), in.BudgetTier, in.PressureTier, in.PipelineType)
		e.metrics.RecordBudgetConsumed(in.CampaignID, resp.Prize.Value)
		e.metrics.RecordPrizeValue(in.CampaignID, string(resp.Prize.Tier), resp.Prize.Value)
		for _, outcome := range in.CorrectionTrace {
			if outcome.Triggered {
				e.metrics.RecordCorrection(in.CampaignID, outcome.Name)
			}
		}
	}

	e.logger.LogDraw(ctx, map[string]interface{}{
		"campaign_id": in.CampaignID, "user_id": in.UserID, "draw_id": resp.RequestID,
		"tier": resp.Prize.Tier, "pending_issue": resp.PendingIssue,
	})

	return resp, nil
}

// commitPrizeCounters re-validates and applies a committed prize's two
// per-draw invariants inside the draw transaction, under the row lock,
// rather than trusting the Pipeline's advisory pre-lock read (spec §9
// "never trust a pre-lock read for a mutation"). The day cap is checked
// before stock is decremented: an over-counted day-cap attempt on an
// abandoned candidate is a harmless rate-limit artifact, but an
// unaccounted-for stock decrement on an abandoned candidate is not.
// Returns false if either invariant is violated — the caller must treat
// that as a trigger to demote or fall back, exactly like stock exhaustion.
func (e *Executor) commitPrizeCounters(ctx context.Context, tx *sql.Tx, pz *prize.Prize, dayBucket string) (bool, error) {
	if pz.PerDayCap != nil {
		ok, err := e.store.IncrementDayCapCounter(ctx, tx, pz.ID, dayBucket, *pz.PerDayCap)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	if pz.StockQuantity != nil {
		ok, err := e.store.DecrementStock(ctx, tx, pz.ID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// retryDemotion performs the single in-transaction demotion retry from spec
// §4.6 step 5: pick a fresh prize from the next-lower tier.
func (e *Executor) retryDemotion(in Input, from prize.Tier) (prize.Tier, *prize.Prize) {
	next, ok := from.Demote()
	if !ok {
		return "", nil
	}
	selected := selector.SelectPrize(in.RNG, in.PrizesByTier[next], in.DayCounts)
	return next, selected
}

func buildTrace(in Input, committedTier prize.Tier, fallbackExhaustion bool) map[string]interface{} {
	modules := make(map[string]interface{}, len(in.CorrectionTrace))
	for _, outcome := range in.CorrectionTrace {
		modules[outcome.Name] = map[string]interface{}{
			"triggered": outcome.Triggered,
			"kind":      outcome.Kind,
			"trace":     outcome.Trace,
		}
	}
	return map[string]interface{}{
		"committed_tier":      committedTier,
		"fallback_exhaustion": fallbackExhaustion,
		"corrections":         modules,
	}
}

func correctionFlags(trace []correction.Outcome) (pity, antiEmpty, antiHigh, luckDebt bool) {
	for _, outcome := range trace {
		if !outcome.Triggered {
			continue
		}
		switch outcome.Name {
		case "pity", "guarantee":
			pity = true
		case "anti_empty":
			antiEmpty = true
		case "anti_high":
			antiHigh = true
		case "luck_debt":
			luckDebt = true
		}
	}
	return
}
