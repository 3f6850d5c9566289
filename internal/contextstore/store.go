package contextstore

import (
	"sync"

	"github.com/varuny677/RequirementGath-feature2.1/internal/logger"
)

// Store maps run ids to their RunContext. The store lock only guards the map;
// each RunContext is handed out for exclusive use by that run's orchestrator.
type Store struct {
	mu       sync.Mutex
	cfg      Config
	log      *logger.Logger
	contexts map[string]*RunContext
}

func NewStore(cfg Config, log *logger.Logger) *Store {
	if cfg.CharBudget <= 0 {
		cfg = DefaultConfig()
	}
	if log != nil {
		log = log.With("component", "ContextStore")
	}
	return &Store{cfg: cfg, log: log, contexts: make(map[string]*RunContext)}
}

// GetOrCreate returns the context for runID, creating it on first use.
func (s *Store) GetOrCreate(runID string) *RunContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.contexts[runID]
	if !ok {
		rc = NewRunContext(runID, s.cfg, s.log)
		s.contexts[runID] = rc
		if s.log != nil {
			s.log.Debug("Created run context", "run_id", runID)
		}
	}
	return rc
}

// Discard drops a run's context once the run has completed or failed.
func (s *Store) Discard(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, runID)
}

// ActiveRuns lists run ids with a live context.
func (s *Store) ActiveRuns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.contexts))
	for id := range s.contexts {
		ids = append(ids, id)
	}
	return ids
}
