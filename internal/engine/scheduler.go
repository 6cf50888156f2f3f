package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RealZimboGuy/courseflow/internal/config"
	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/pkg/courseflow/core"
)

type SchedulerConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	PoolSize       int
	ClaimTimeout   time.Duration
	RepairInterval time.Duration
	WorkerName     string
}

// SchedulerConfigFromSettings reads the CFLOW_ENGINE_* settings.
func SchedulerConfigFromSettings() SchedulerConfig {
	return SchedulerConfig{
		PollInterval:   config.GetSystemSettingDuration(config.ENGINE_CHECK_DB_INTERVAL),
		BatchSize:      config.GetSystemSettingInteger(config.ENGINE_BATCH_SIZE),
		PoolSize:       config.GetSystemSettingInteger(config.ENGINE_WORKER_POOL_SIZE),
		ClaimTimeout:   config.GetSystemSettingDuration(config.ENGINE_CLAIM_TIMEOUT),
		RepairInterval: config.GetSystemSettingDuration(config.ENGINE_REPAIR_INTERVAL),
		WorkerName:     config.GetSystemSettingString(config.WORKER_NAME),
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 1
	}
	if c.ClaimTimeout <= 0 {
		c.ClaimTimeout = 10 * time.Minute
	}
	if c.RepairInterval <= 0 {
		c.RepairInterval = time.Minute
	}
	if c.WorkerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "courseflow"
		}
		c.WorkerName = hostname
	}
	return c
}

// Scheduler finds due records, claims them per subject in execution order and
// runs them on a fixed pool of workers.
type Scheduler struct {
	repos      Repositories
	dispatcher Dispatcher
	retry      *RetryManager
	clock      core.Clock
	cfg        SchedulerConfig
	logger     *slog.Logger

	// workerName goes into claimed_by; it is unique per process.
	workerName string
	workerID   int64
	wakeup     chan struct{}
	queue      chan []*domain.ExecutionRecord
}

func NewScheduler(repos Repositories, dispatcher Dispatcher, retry *RetryManager, clock core.Clock, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Scheduler{
		repos:      repos,
		dispatcher: dispatcher,
		retry:      retry,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
		workerName: cfg.WorkerName + "-" + uuid.NewString()[:8],
		wakeup:     make(chan struct{}, 1),
		queue:      make(chan []*domain.ExecutionRecord, cfg.BatchSize),
	}
}

func (s *Scheduler) WorkerName() string { return s.workerName }

// Run polls the ledger until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.registerWorker(ctx)
	go s.repairLoop(ctx)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.PoolSize; i++ {
		wg.Add(1)
		workerCtx := context.WithValue(ctx, core.CtxKeyWorkerID, i)
		go func(id int) {
			defer wg.Done()
			s.worker(workerCtx, id)
		}(i)
	}
	s.logger.InfoContext(ctx, "Scheduler started", "worker", s.workerName, "pool_size", s.cfg.PoolSize,
		"batch_size", s.cfg.BatchSize, "poll_interval", s.cfg.PollInterval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Scheduler stopping due to context cancel")
			wg.Wait()
			return
		case <-ticker.C:
			s.poll(ctx)
		case <-s.wakeup:
			s.poll(ctx)
		}
	}
}

// worker takes claimed groups off the queue and runs them.
func (s *Scheduler) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case group := <-s.queue:
			s.logger.DebugContext(ctx, "Worker starting group", "worker_id", id, "subject_id", group[0].Subject.Key(), "size", len(group))
			s.runGroup(ctx, group)
		}
	}
}

// poll claims due groups and hands them to the pool without waiting.
func (s *Scheduler) poll(ctx context.Context) {
	if len(s.queue) >= cap(s.queue) {
		s.logger.WarnContext(ctx, "Dispatch queue full, skipping poll")
		return
	}
	for _, group := range s.claimDue(ctx, cap(s.queue)-len(s.queue)) {
		select {
		case s.queue <- group:
		case <-ctx.Done():
			s.release(context.WithoutCancel(ctx), group)
			return
		}
	}
}

// RunOnce performs one poll and waits for every claimed group to finish. It
// returns the number of records claimed.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	groups, err := s.claimDueGroups(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	sem := make(chan struct{}, s.cfg.PoolSize)
	var wg sync.WaitGroup
	claimed := 0
	for _, group := range groups {
		claimed += len(group)
		wg.Add(1)
		sem <- struct{}{}
		go func(group []*domain.ExecutionRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			s.runGroup(ctx, group)
		}(group)
	}
	wg.Wait()
	return claimed, nil
}

func (s *Scheduler) claimDue(ctx context.Context, maxGroups int) [][]*domain.ExecutionRecord {
	groups, err := s.claimDueGroups(ctx, maxGroups)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error fetching due records", "error", err)
	}
	return groups
}

// claimDueGroups claims each subject's due records in order, stopping a
// subject at its first lost claim so that no later action overtakes it.
func (s *Scheduler) claimDueGroups(ctx context.Context, maxGroups int) ([][]*domain.ExecutionRecord, error) {
	due, err := s.repos.Executions.FindDue(ctx, s.clock.Now(), s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	var groups [][]*domain.ExecutionRecord
	for _, candidates := range groupBySubject(due) {
		if len(groups) >= maxGroups {
			break
		}
		var claimed []*domain.ExecutionRecord
		for _, rec := range candidates {
			now := s.clock.Now()
			ok, err := s.repos.Executions.Claim(ctx, rec.ID, s.workerName, now)
			if err != nil {
				s.logger.ErrorContext(ctx, "Error claiming record", "record_id", rec.ID, "error", err)
				break
			}
			if !ok {
				s.logger.InfoContext(ctx, "Unable to claim record, possibly picked up by another worker", "record_id", rec.ID, "subject_id", rec.Subject.Key())
				audit(ctx, s.repos.Events, s.workerID, rec.ID, rec.AttemptCount, domain.EventLockFailed, "Failed to acquire the claim on the record", now)
				break
			}
			rec.Status = domain.StatusClaimed
			rec.ClaimedBy.String, rec.ClaimedBy.Valid = s.workerName, true
			rec.ClaimedAt.Time, rec.ClaimedAt.Valid = now, true
			audit(ctx, s.repos.Events, s.workerID, rec.ID, rec.AttemptCount, domain.EventClaimed, "Claimed by "+s.workerName, now)
			claimed = append(claimed, rec)
		}
		if len(claimed) > 0 {
			groups = append(groups, claimed)
		}
	}
	return groups, nil
}

// groupBySubject splits the due list, which arrives ordered by owner and
// subject, into runs that share owner and subject.
func groupBySubject(due []*domain.ExecutionRecord) [][]*domain.ExecutionRecord {
	var groups [][]*domain.ExecutionRecord
	var key string
	for _, rec := range due {
		k := fmt.Sprintf("%s|%s|%s", rec.OwnerType, rec.OwnerID, rec.Subject.Key())
		if len(groups) == 0 || k != key {
			groups = append(groups, nil)
			key = k
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], rec)
	}
	return groups
}

// release hands claimed records that will not run now back to the ledger.
func (s *Scheduler) release(ctx context.Context, records []*domain.ExecutionRecord) {
	for _, rec := range records {
		now := s.clock.Now()
		ok, err := s.repos.Executions.ReleaseClaim(ctx, rec.ID, s.workerName, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to release claim", "record_id", rec.ID, "error", err)
			continue
		}
		if ok {
			audit(ctx, s.repos.Events, s.workerID, rec.ID, rec.AttemptCount, domain.EventReleased, "Released, an earlier action of the subject is not done", now)
		}
	}
}

// Wakeup triggers a poll without waiting for the ticker.
func (s *Scheduler) Wakeup() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

func (s *Scheduler) registerWorker(ctx context.Context) {
	if s.repos.Workers == nil {
		return
	}
	now := s.clock.Now()
	id, err := s.repos.Workers.Save(ctx, &domain.Worker{Name: s.workerName, Started: now, LastActive: now})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to register worker", "error", err)
		return
	}
	s.workerID = id
	s.logger.InfoContext(ctx, "Registered worker", "worker_id", id, "name", s.workerName)

	go func() {
		hb := time.NewTicker(30 * time.Second)
		defer hb.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-hb.C:
				if err := s.repos.Workers.UpdateLastActive(ctx, id, s.clock.Now()); err != nil {
					s.logger.ErrorContext(ctx, "Failed to update worker last_active", "worker_id", id, "error", err)
				}
			}
		}
	}()
}

func (s *Scheduler) repairLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RepairInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Repair loop stopping due to context cancel")
			return
		case <-ticker.C:
			if _, err := s.RepairStale(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Error repairing stale claims", "error", err)
			}
		}
	}
}

// RepairStale hands records whose claim is older than the claim timeout back
// to the ledger. Their worker is presumed dead; the idempotency key stops a
// second effect if it was in fact mid-dispatch.
func (s *Scheduler) RepairStale(ctx context.Context) (int, error) {
	now := s.clock.Now()
	stale, err := s.repos.Executions.FindStaleClaims(ctx, now.Add(-s.cfg.ClaimTimeout), 100)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, rec := range stale {
		ok, err := s.repos.Executions.ResetStaleClaim(ctx, rec, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to reset stale claim", "record_id", rec.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		repaired++
		s.logger.WarnContext(ctx, "Repaired stale claim", "record_id", rec.ID, "status", rec.Status, "previous_worker", rec.ClaimedBy.String)
		audit(ctx, s.repos.Events, s.workerID, rec.ID, rec.AttemptCount, domain.EventRepaired,
			fmt.Sprintf("Rescheduled from %s, previous worker was: %s", rec.Status, rec.ClaimedBy.String), now)
	}
	if repaired > 0 {
		s.Wakeup()
	}
	return repaired, nil
}
