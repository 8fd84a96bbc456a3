// Package chromem implements memory.VectorStore on chromem-go, a pure Go,
// embedded vector database.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	chromem "github.com/philippgille/chromem-go"

	"github.com/mshafei721/ADOS-sub001/memory"
)

// Store wraps one chromem-go collection.
//
// With provider "chromem" the database is persistent: every document is
// written to PersistDirectory as it is added and Persist has nothing to do.
// With provider "memory" the database lives in process; Open imports the last
// snapshot and Persist exports a new one.
type Store struct {
	db       *chromem.DB
	col      *chromem.Collection
	name     string
	snapshot string // empty for the persistent provider
	compress bool
	logger   *log.Logger

	mu     sync.RWMutex
	closed bool
}

var _ memory.VectorStore = (*Store)(nil)

// Opener returns a memory.VectorOpener that embeds with e.
func Opener(e memory.Embedder, logger *log.Logger) memory.VectorOpener {
	return func(ctx context.Context, cfg memory.VectorDBConfig) (memory.VectorStore, error) {
		return Open(ctx, cfg, e, logger)
	}
}

// Open opens or creates the configured collection.
func Open(ctx context.Context, cfg memory.VectorDBConfig, e memory.Embedder, logger *log.Logger) (*Store, error) {
	if e == nil {
		return nil, errors.New("chromem: embedder is required")
	}
	if logger == nil {
		logger = log.Default().WithPrefix("chromem")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &Store{
		name:     cfg.CollectionName,
		compress: cfg.Compress,
		logger:   logger,
	}

	switch cfg.Provider {
	case memory.ProviderChromem:
		db, err := chromem.NewPersistentDB(cfg.PersistDirectory, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open persistent db %s: %w", cfg.PersistDirectory, err)
		}
		s.db = db
	case memory.ProviderMemory:
		s.db = chromem.NewDB()
		s.snapshot = snapshotPath(cfg)
		if err := s.importSnapshot(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("chromem: unsupported provider %q", cfg.Provider)
	}

	col, err := s.db.GetOrCreateCollection(cfg.CollectionName, nil, e.Embed)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %s: %w", cfg.CollectionName, err)
	}
	s.col = col

	logger.Debug("opened collection", "collection", s.name, "provider", cfg.Provider, "documents", col.Count())
	return s, nil
}

// Name returns the collection name.
func (s *Store) Name() string {
	return s.name
}

// Add embeds and stores one document.
func (s *Store) Add(ctx context.Context, doc memory.VectorDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return memory.ErrBackendUnavailable
	}

	err := s.col.AddDocument(ctx, chromem.Document{
		ID:       doc.ID,
		Content:  doc.Content,
		Metadata: doc.Metadata,
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query returns up to limit documents matching where, most similar first.
func (s *Store) Query(ctx context.Context, text string, where map[string]string, limit int) ([]memory.VectorMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, memory.ErrBackendUnavailable
	}

	// chromem-go requires nResults <= collection size
	if n := s.col.Count(); limit > n {
		limit = n
	}
	if limit <= 0 {
		return nil, nil
	}

	// Retry with smaller limits if a concurrent change shrank the collection
	var results []chromem.Result
	for current := limit; current >= 1; current-- {
		var err error
		results, err = s.col.Query(ctx, text, current, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if current == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]memory.VectorMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, memory.VectorMatch{
			ID:         r.ID,
			Content:    r.Content,
			Metadata:   r.Metadata,
			Similarity: r.Similarity,
		})
	}
	return matches, nil
}

// Count returns the number of documents in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, memory.ErrBackendUnavailable
	}
	return s.col.Count(), nil
}

// Persist writes a snapshot for the in-process provider.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return memory.ErrBackendUnavailable
	}
	if s.snapshot == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.snapshot), 0o750); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := s.db.ExportToFile(s.snapshot, s.compress, ""); err != nil {
		return fmt.Errorf("export snapshot %s: %w", s.snapshot, err)
	}
	s.logger.Debug("exported snapshot", "path", s.snapshot, "documents", s.col.Count())
	return nil
}

// Close marks the store closed. chromem-go holds no OS resources.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) importSnapshot() error {
	if _, err := os.Stat(s.snapshot); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := s.db.ImportFromFile(s.snapshot, ""); err != nil {
		return fmt.Errorf("import snapshot %s: %w", s.snapshot, err)
	}
	s.logger.Debug("imported snapshot", "path", s.snapshot)
	return nil
}

func snapshotPath(cfg memory.VectorDBConfig) string {
	path := filepath.Join(cfg.PersistDirectory, cfg.CollectionName+".gob")
	if cfg.Compress {
		path += ".gz"
	}
	return path
}

// isInsufficientDocsError checks if error is due to insufficient documents.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
