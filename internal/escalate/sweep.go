package escalate

import (
	"context"
	"errors"
	"log"
	"time"

	"smartfactory/api/internal/roles"
	"smartfactory/api/internal/store"
)

type sweepStore interface {
	ActiveSLAConfigs(ctx context.Context) ([]store.SLAConfig, error)
	SweepCandidates(ctx context.Context) ([]store.SweepCandidate, error)
	SystemActor(ctx context.Context) (*store.User, error)
}

// Sweeper periodically escalates items that sat past their SLA deadline.
type Sweeper struct {
	store  sweepStore
	engine *Engine
	now    func() time.Time
}

func NewSweeper(s sweepStore, engine *Engine) *Sweeper {
	return &Sweeper{store: s, engine: engine, now: time.Now}
}

// Run sweeps on the given interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. Every overdue item is escalated independently, a
// failure on one item is logged and the pass moves on.
func (s *Sweeper) Sweep(ctx context.Context) {
	configs, err := s.store.ActiveSLAConfigs(ctx)
	if err != nil {
		log.Printf("sweep: load sla configs: %v", err)
		return
	}
	if len(configs) == 0 {
		return
	}

	type threshold struct {
		duration   time.Duration
		fromCreate bool
	}
	thresholds := map[string]threshold{}
	for _, config := range configs {
		thresholds[config.EntityType+"|"+config.Priority] = threshold{
			duration:   time.Duration(config.EscalationTime) * time.Minute,
			fromCreate: config.ConfigType != "response",
		}
	}

	candidates, err := s.store.SweepCandidates(ctx)
	if err != nil {
		log.Printf("sweep: load candidates: %v", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	actorID := ""
	if actor, err := s.store.SystemActor(ctx); err != nil {
		log.Printf("sweep: resolve system actor: %v", err)
	} else if actor != nil {
		actorID = actor.ID
	}

	now := s.now()
	escalated := 0
	for _, candidate := range candidates {
		config, ok := thresholds[candidate.Kind+"|"+candidate.Priority]
		if !ok {
			continue
		}

		// Response-based SLAs measure from first response when one exists,
		// otherwise from creation.
		basis := candidate.CreatedAt
		if !config.fromCreate && candidate.FirstResponseAt != nil {
			basis = *candidate.FirstResponseAt
		}
		if now.Sub(basis) <= config.duration {
			continue
		}

		_, err := s.engine.Escalate(ctx, roles.ItemKind(candidate.Kind), candidate.ID, actorID, "SLA deadline exceeded", true)
		if err != nil {
			if errors.Is(err, ErrMaxEscalation) {
				log.Printf("sweep: %s %s already at max level, skipping", candidate.Kind, candidate.ID)
			} else {
				log.Printf("sweep: escalate %s %s: %v", candidate.Kind, candidate.ID, err)
			}
			continue
		}
		escalated++
	}

	if escalated > 0 {
		log.Printf("sweep: escalated %d overdue items", escalated)
	}
}
