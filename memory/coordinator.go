package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Coordinator composes the crew, session and vector tiers behind one contract.
// This is the main type the orchestrator uses.
//
// Two API shapes are offered over the same logic:
//   - Initialize/Write/Read/Synchronize return errors (sentinels in errors.go)
//   - InitializeMemory/WriteMemory/ReadMemory/SynchronizeMemory absorb every
//     failure into false or ok=false and log it, so memory problems never
//     abort task execution
//
// Readiness is tracked per tier. In strict mode a failing tier fails the
// whole initialization instead.
type Coordinator struct {
	cfg    Config
	logger *log.Logger
	opener VectorOpener
	mirror Mirror
	now    func() time.Time

	crews    *CrewStore
	sessions *SessionStore

	// mu guards the lifecycle fields below. Operations hold it shared for
	// their whole duration so Close never releases a handle mid-call.
	mu          sync.RWMutex
	initialized bool
	ready       TierStatus
	vector      VectorStore
	recall      *RecallCache
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithVectorOpener sets how the vector tier is opened. Without an opener the
// vector tier is not configured and vector reads return no data.
func WithVectorOpener(o VectorOpener) Option {
	return func(c *Coordinator) {
		c.opener = o
	}
}

// WithMirror uploads every crew file to m during synchronization.
func WithMirror(m Mirror) Option {
	return func(c *Coordinator) {
		c.mirror = m
	}
}

// WithClock overrides time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// New creates an uninitialized Coordinator. Absent config values take defaults.
func New(cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:    cfg.WithDefaults(),
		logger: log.Default().WithPrefix("memory"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.crews = NewCrewStore(c.cfg.CrewMemory, c.logger)
	c.sessions = NewSessionStore(c.cfg.SessionMemory.MaxEntries)
	return c
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Initialize brings the tiers up in order: vector, crew, session.
// Calling it again after success is a no-op. Failures are not retried.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	c.logger.Info("initializing memory system", "strict", c.cfg.Strict)

	var (
		ready TierStatus
		errs  []error
	)

	// === VECTOR TIER ===
	if c.opener != nil && c.cfg.VectorDB.Provider != ProviderNone {
		vctx, cancel := context.WithTimeout(ctx, c.cfg.VectorDB.Timeout)
		store, err := c.opener(vctx, c.cfg.VectorDB)
		cancel()
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
			c.logger.Error("failed to initialize vector database", "err", err)
			if c.cfg.Strict {
				return err
			}
			errs = append(errs, err)
		} else {
			c.vector = store
			ready.Vector = true
			c.logger.Info("vector database initialized", "collection", store.Name())
		}
	} else {
		c.logger.Info("vector database not configured")
	}

	// === CREW TIER ===
	if err := c.crews.Load(); err != nil {
		c.logger.Error("failed to initialize crew memory", "err", err)
		if c.cfg.Strict {
			c.releaseVector()
			return err
		}
		errs = append(errs, err)
	} else {
		ready.Crew = true
	}

	// === SESSION TIER ===
	c.sessions.Reset()
	if c.cfg.SessionMemory.IsEnabled() {
		ready.Session = true
		c.logger.Info("session memory initialized", "max_entries", c.sessions.Capacity())
	} else {
		c.logger.Info("session memory disabled")
	}

	if !ready.Any() {
		c.releaseVector()
		return errors.Join(append([]error{ErrTierUnavailable}, errs...)...)
	}

	if ready.Vector {
		recall, err := NewRecallCache(c.cfg.VectorDB.CacheTTL)
		if err != nil {
			c.logger.Warn("recall cache disabled", "err", err)
		}
		c.recall = recall
	}

	c.ready = ready
	c.initialized = true
	c.logger.Info("memory system initialized",
		"crew", ready.Crew, "session", ready.Session, "vector", ready.Vector)
	return nil
}

// InitializeMemory is Initialize reporting only success.
func (c *Coordinator) InitializeMemory(ctx context.Context) bool {
	if err := c.Initialize(ctx); err != nil {
		c.logger.Error("failed to initialize memory system", "err", err)
		return false
	}
	return true
}

// Write stores content for crew in tier.
func (c *Coordinator) Write(ctx context.Context, crew string, tier Tier, content string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return ErrNotInitialized
	}
	if !tier.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidTier, tier)
	}
	if !c.ready.Ready(tier) {
		return fmt.Errorf("%w: %s", ErrTierUnavailable, tier)
	}
	if err := ValidateCrewName(crew); err != nil {
		return err
	}

	switch tier {
	case TierCrew:
		if err := c.crews.Append(crew, NewEntry(content, c.now())); err != nil {
			return err
		}
	case TierSession:
		if evicted := c.sessions.Append(crew, NewEntry(content, c.now())); evicted > 0 {
			c.logger.Debug("session memory evicted oldest entries", "crew", crew, "evicted", evicted)
		}
	case TierVector:
		if err := c.writeVector(ctx, crew, content); err != nil {
			return err
		}
	}

	c.logger.Debug("wrote memory", "crew", crew, "tier", tier, "content", truncate(content, 50))
	return nil
}

// WriteMemory is Write reporting only success. It returns false before
// initialization, for an invalid or unavailable tier, and on any backend error.
func (c *Coordinator) WriteMemory(ctx context.Context, crew string, tier Tier, content string) bool {
	if err := c.Write(ctx, crew, tier, content); err != nil {
		c.logger.Error("failed to write memory", "crew", crew, "tier", tier, "err", err)
		return false
	}
	return true
}

// writeVector submits one document. Caller holds c.mu shared.
func (c *Coordinator) writeVector(ctx context.Context, crew, content string) error {
	at := c.now()
	doc := VectorDocument{
		ID:      fmt.Sprintf("%s-%d-%s", crew, at.UnixNano(), uuid.NewString()),
		Content: content,
		Metadata: map[string]string{
			"crew_name":   crew,
			"timestamp":   at.Format(TimestampLayout),
			"memory_type": TierVector.String(),
		},
	}

	vctx, cancel := context.WithTimeout(ctx, c.cfg.VectorDB.Timeout)
	defer cancel()
	if err := c.vector.Add(vctx, doc); err != nil {
		return c.vectorError("add document", err)
	}
	c.recall.Invalidate()
	return nil
}

// Read renders crew's memory in tier. Crew and session reads return every
// entry in insertion order, one "[timestamp] content" line each. Vector reads
// need a query and return the top matches for the crew in rank order.
//
// ErrNotFound is returned when the crew has no data in the tier.
func (c *Coordinator) Read(ctx context.Context, crew string, tier Tier, query string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return "", ErrNotInitialized
	}
	if !tier.Valid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidTier, tier)
	}
	if !c.ready.Ready(tier) {
		return "", fmt.Errorf("%w: %s", ErrTierUnavailable, tier)
	}

	var (
		entries []Entry
		err     error
	)
	switch tier {
	case TierCrew:
		entries, err = c.crews.Entries(crew)
	case TierSession:
		entries, err = c.sessions.Entries(crew)
	case TierVector:
		return c.readVector(ctx, crew, query)
	}
	if err != nil {
		return "", err
	}
	return FormatEntries(entries), nil
}

// ReadMemory is Read with failures folded into ok=false. Note that "no data"
// and "failed" look the same here; use Read to tell them apart.
func (c *Coordinator) ReadMemory(ctx context.Context, crew string, tier Tier, query string) (string, bool) {
	out, err := c.Read(ctx, crew, tier, query)
	switch {
	case err == nil:
		return out, true
	case errors.Is(err, ErrNotFound):
		c.logger.Debug("no memory found", "crew", crew, "tier", tier)
	case errors.Is(err, ErrEmptyQuery):
		c.logger.Warn("no query provided for vector memory search", "crew", crew)
	default:
		c.logger.Error("failed to read memory", "crew", crew, "tier", tier, "err", err)
	}
	return "", false
}

// readVector runs a similarity search. Caller holds c.mu shared.
func (c *Coordinator) readVector(ctx context.Context, crew, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	k := c.cfg.VectorDB.TopK

	cached, gen, ok := c.recall.Lookup(crew, query, k)
	if ok {
		c.logger.Debug("vector memory served from cache", "crew", crew, "query", truncate(query, 50))
		return cached, nil
	}

	vctx, cancel := context.WithTimeout(ctx, c.cfg.VectorDB.Timeout)
	defer cancel()
	matches, err := c.vector.Query(vctx, query, map[string]string{"crew_name": crew}, k)
	if err != nil {
		return "", c.vectorError("query", err)
	}
	c.logger.Debug("retrieved vector memories", "crew", crew, "count", len(matches), "query", truncate(query, 50))
	if len(matches) == 0 {
		return "", ErrNotFound
	}

	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		entries = append(entries, Entry{Timestamp: m.Metadata["timestamp"], Content: m.Content})
	}
	rendered := FormatEntries(entries)
	c.recall.Store(gen, crew, query, k, rendered)
	return rendered, nil
}

func (c *Coordinator) vectorError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("vector %s timed out after %s: %w", op, c.cfg.VectorDB.Timeout, err)
	}
	return fmt.Errorf("vector %s: %w", op, err)
}

// Synchronize rewrites every crew file, mirrors it when a Mirror is set and
// persists the vector store. One failing crew does not stop the others; all
// failures are joined into the returned error.
func (c *Coordinator) Synchronize(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return ErrNotInitialized
	}
	c.logger.Info("synchronizing memory across crews")

	var errs []error
	if c.ready.Crew {
		for _, crew := range c.crews.Crews() {
			data, err := c.crews.saveAndRender(crew)
			if err != nil {
				c.logger.Error("failed to save crew memory", "crew", crew, "err", err)
				errs = append(errs, err)
				continue
			}
			if data == nil || c.mirror == nil {
				continue
			}
			if err := c.mirror.Upload(ctx, crew, data); err != nil {
				err = fmt.Errorf("mirror %s: %w", crew, err)
				c.logger.Error("failed to mirror crew memory", "crew", crew, "err", err)
				errs = append(errs, err)
			}
		}
	}

	if c.vector != nil {
		vctx, cancel := context.WithTimeout(ctx, c.cfg.VectorDB.Timeout)
		err := c.vector.Persist(vctx)
		cancel()
		if err != nil {
			err = c.vectorError("persist", err)
			c.logger.Error("failed to persist vector database", "err", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	c.logger.Info("memory synchronization completed")
	return nil
}

// SynchronizeMemory is Synchronize reporting only success.
func (c *Coordinator) SynchronizeMemory(ctx context.Context) bool {
	if err := c.Synchronize(ctx); err != nil {
		c.logger.Error("memory synchronization failed", "err", err)
		return false
	}
	return true
}

// MemoryStatus returns a snapshot. It never fails: a missing or failing
// vector handle yields a nil VectorDB section.
func (c *Coordinator) MemoryStatus(ctx context.Context) Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{
		Initialized:   c.initialized,
		Strict:        c.cfg.Strict,
		Tiers:         c.ready,
		CrewMemory:    map[string]CrewStats{},
		SessionMemory: map[string]SessionStats{},
	}
	if !c.initialized {
		return st
	}
	if c.ready.Crew {
		st.CrewMemory = c.crews.Stats()
	}
	if c.ready.Session {
		st.SessionMemory = c.sessions.Stats()
	}
	if c.vector != nil {
		vctx, cancel := context.WithTimeout(ctx, c.cfg.VectorDB.Timeout)
		n, err := c.vector.Count(vctx)
		cancel()
		if err != nil {
			c.logger.Warn("failed to count vector documents", "err", err)
		} else {
			st.VectorDB = &VectorStatus{CollectionName: c.vector.Name(), DocumentCount: n}
		}
	}
	return st
}

// Close releases the vector handle and drops in-memory state. Crew files stay
// on disk; call Synchronize first at shutdown. The Coordinator can be
// initialized again afterwards.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil
	}
	err := c.releaseVector()
	c.crews.Reset()
	c.sessions.Reset()
	c.ready = TierStatus{}
	c.initialized = false
	c.logger.Info("memory system closed")
	return err
}

// releaseVector closes the vector handle and recall cache. Caller holds c.mu.
func (c *Coordinator) releaseVector() error {
	c.recall.Close()
	c.recall = nil
	if c.vector == nil {
		return nil
	}
	err := c.vector.Close()
	c.vector = nil
	if err != nil {
		return fmt.Errorf("close vector store: %w", err)
	}
	return nil
}
