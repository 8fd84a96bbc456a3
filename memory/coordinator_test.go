package memory_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/mshafei721/ADOS-sub001/memory"
	"github.com/mshafei721/ADOS-sub001/memory/embedder/hashed"
	"github.com/mshafei721/ADOS-sub001/memory/store/chromem"
)

// stubVector is an in-test VectorStore with switchable failures.
type stubVector struct {
	mu        sync.Mutex
	docs      []memory.VectorDocument
	queries   int
	persisted int
	closed    bool
	block     bool // Add waits for ctx to end
	countErr  error
}

func (s *stubVector) Name() string { return "stub" }

func (s *stubVector) Add(ctx context.Context, doc memory.VectorDocument) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	return nil
}

func (s *stubVector) Query(ctx context.Context, text string, where map[string]string, limit int) ([]memory.VectorMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	var out []memory.VectorMatch
	for i := len(s.docs) - 1; i >= 0 && len(out) < limit; i-- {
		d := s.docs[i]
		if d.Metadata["crew_name"] != where["crew_name"] {
			continue
		}
		out = append(out, memory.VectorMatch{ID: d.ID, Content: d.Content, Metadata: d.Metadata})
	}
	return out, nil
}

func (s *stubVector) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	return len(s.docs), nil
}

func (s *stubVector) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted++
	return nil
}

func (s *stubVector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func stubOpener(s *stubVector) memory.VectorOpener {
	return func(context.Context, memory.VectorDBConfig) (memory.VectorStore, error) {
		return s, nil
	}
}

func failingOpener(context.Context, memory.VectorDBConfig) (memory.VectorStore, error) {
	return nil, errors.New("connection refused")
}

// recordingMirror collects uploads.
type recordingMirror struct {
	mu      sync.Mutex
	uploads map[string][]byte
}

func (m *recordingMirror) Upload(ctx context.Context, crew string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploads == nil {
		m.uploads = make(map[string][]byte)
	}
	m.uploads[crew] = append([]byte(nil), data...)
	return nil
}

// testConfig roots every tier under a fresh temp dir with the vector tier off.
func testConfig(t *testing.T) memory.Config {
	dir := t.TempDir()
	cfg := memory.DefaultConfig()
	cfg.CrewMemory.Directory = filepath.Join(dir, "crew_memory")
	cfg.VectorDB.PersistDirectory = filepath.Join(dir, "chroma")
	cfg.VectorDB.Provider = memory.ProviderMemory
	return cfg
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Level: log.FatalLevel})
}

func newCoordinator(cfg memory.Config, opts ...memory.Option) *memory.Coordinator {
	opts = append([]memory.Option{memory.WithLogger(quietLogger()), memory.WithClock(stepClock())}, opts...)
	return memory.New(cfg, opts...)
}

func TestCoordinatorUninitialized(t *testing.T) {
	Convey("Given a coordinator that was never initialized", t, func() {
		ctx := context.Background()
		c := newCoordinator(testConfig(t))

		Convey("Every operation reports failure", func() {
			So(c.WriteMemory(ctx, "alpha", memory.TierCrew, "x"), ShouldBeFalse)
			_, ok := c.ReadMemory(ctx, "alpha", memory.TierCrew, "")
			So(ok, ShouldBeFalse)
			So(c.SynchronizeMemory(ctx), ShouldBeFalse)
		})

		Convey("The error API names the cause", func() {
			So(errors.Is(c.Write(ctx, "alpha", memory.TierSession, "x"), memory.ErrNotInitialized), ShouldBeTrue)
			_, err := c.Read(ctx, "alpha", memory.TierSession, "")
			So(errors.Is(err, memory.ErrNotInitialized), ShouldBeTrue)
			So(errors.Is(c.Synchronize(ctx), memory.ErrNotInitialized), ShouldBeTrue)
		})

		Convey("Status still answers", func() {
			st := c.MemoryStatus(ctx)
			So(st.Initialized, ShouldBeFalse)
			So(st.VectorDB, ShouldBeNil)
			So(st.CrewMemory, ShouldBeEmpty)
		})
	})
}

func TestCoordinatorCrewTier(t *testing.T) {
	Convey("Given an initialized coordinator", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		c := newCoordinator(cfg)
		So(c.InitializeMemory(ctx), ShouldBeTrue)
		Reset(func() { c.Close() })

		Convey("Crew entries come back in write order", func() {
			So(c.WriteMemory(ctx, "alpha", memory.TierCrew, "first"), ShouldBeTrue)
			So(c.WriteMemory(ctx, "alpha", memory.TierCrew, "second"), ShouldBeTrue)

			out, ok := c.ReadMemory(ctx, "alpha", memory.TierCrew, "")
			So(ok, ShouldBeTrue)
			lines := strings.Split(out, "\n")
			So(lines, ShouldHaveLength, 2)
			So(lines[0], ShouldEndWith, "] first")
			So(lines[1], ShouldEndWith, "] second")
			So(lines[0], ShouldStartWith, "[2025-01-01T12:00:")
		})

		Convey("Crew entries survive a restart", func() {
			So(c.WriteMemory(ctx, "alpha", memory.TierCrew, "durable"), ShouldBeTrue)
			So(c.Close(), ShouldBeNil)

			again := newCoordinator(cfg)
			So(again.InitializeMemory(ctx), ShouldBeTrue)
			defer again.Close()

			out, ok := again.ReadMemory(ctx, "alpha", memory.TierCrew, "")
			So(ok, ShouldBeTrue)
			So(out, ShouldContainSubstring, "durable")
		})

		Convey("Reading an unknown crew finds nothing", func() {
			_, ok := c.ReadMemory(ctx, "nobody", memory.TierCrew, "")
			So(ok, ShouldBeFalse)
			_, err := c.Read(ctx, "nobody", memory.TierCrew, "")
			So(errors.Is(err, memory.ErrNotFound), ShouldBeTrue)
		})

		Convey("Synchronizing twice leaves byte-identical files", func() {
			So(c.WriteMemory(ctx, "alpha", memory.TierCrew, "one"), ShouldBeTrue)
			So(c.WriteMemory(ctx, "beta", memory.TierCrew, "two"), ShouldBeTrue)

			So(c.SynchronizeMemory(ctx), ShouldBeTrue)
			first, err := os.ReadFile(filepath.Join(cfg.CrewMemory.Directory, "alpha.json"))
			So(err, ShouldBeNil)

			So(c.SynchronizeMemory(ctx), ShouldBeTrue)
			second, err := os.ReadFile(filepath.Join(cfg.CrewMemory.Directory, "alpha.json"))
			So(err, ShouldBeNil)
			So(string(second), ShouldEqual, string(first))
		})

		Convey("A crew that cannot be saved does not stop the others", func() {
			stub := &stubVector{}
			So(c.Close(), ShouldBeNil)
			c = newCoordinator(cfg, memory.WithVectorOpener(stubOpener(stub)))
			So(c.InitializeMemory(ctx), ShouldBeTrue)

			So(c.WriteMemory(ctx, "alpha", memory.TierCrew, "one"), ShouldBeTrue)
			So(c.WriteMemory(ctx, "beta", memory.TierCrew, "two"), ShouldBeTrue)

			beta := filepath.Join(cfg.CrewMemory.Directory, "beta.json")
			So(os.Remove(beta), ShouldBeNil)
			// A directory where alpha's temp file should go makes its save fail.
			So(os.Mkdir(filepath.Join(cfg.CrewMemory.Directory, "alpha.json.tmp"), 0o750), ShouldBeNil)

			So(c.SynchronizeMemory(ctx), ShouldBeFalse)
			err := c.Synchronize(ctx)
			So(errors.Is(err, memory.ErrPersistence), ShouldBeTrue)

			data, err := os.ReadFile(beta)
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, `"content": "two"`)
			So(stub.persisted, ShouldEqual, 2)

			out, ok := c.ReadMemory(ctx, "alpha", memory.TierCrew, "")
			So(ok, ShouldBeTrue)
			So(out, ShouldEndWith, "] one")
		})

		Convey("Status reports per-crew counts", func() {
			So(c.WriteMemory(ctx, "alpha", memory.TierCrew, "one"), ShouldBeTrue)
			So(c.WriteMemory(ctx, "alpha", memory.TierCrew, "two"), ShouldBeTrue)

			st := c.MemoryStatus(ctx)
			So(st.Initialized, ShouldBeTrue)
			So(st.CrewMemory["alpha"].EntriesCount, ShouldEqual, 2)
			So(st.CrewMemory["alpha"].SizeBytes, ShouldBeGreaterThan, 0)
		})

		Convey("Unsafe crew names are rejected", func() {
			So(c.WriteMemory(ctx, "../escape", memory.TierCrew, "x"), ShouldBeFalse)
			So(errors.Is(c.Write(ctx, "", memory.TierCrew, "x"), memory.ErrInvalidCrew), ShouldBeTrue)
		})
	})
}

func TestCoordinatorInvalidTier(t *testing.T) {
	Convey("Given an initialized coordinator", t, func() {
		ctx := context.Background()
		c := newCoordinator(testConfig(t))
		So(c.InitializeMemory(ctx), ShouldBeTrue)
		Reset(func() { c.Close() })

		Convey("An out-of-range tier is refused", func() {
			bogus := memory.Tier(99)
			So(c.WriteMemory(ctx, "alpha", bogus, "x"), ShouldBeFalse)
			So(errors.Is(c.Write(ctx, "alpha", bogus, "x"), memory.ErrInvalidTier), ShouldBeTrue)
			_, err := c.Read(ctx, "alpha", bogus, "")
			So(errors.Is(err, memory.ErrInvalidTier), ShouldBeTrue)
		})
	})
}

func TestCoordinatorSessionTier(t *testing.T) {
	Convey("Given a session tier holding five entries", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.SessionMemory.MaxEntries = 5
		c := newCoordinator(cfg)
		So(c.InitializeMemory(ctx), ShouldBeTrue)
		Reset(func() { c.Close() })

		Convey("Writing seven entries keeps the last five", func() {
			for i := 1; i <= 7; i++ {
				So(c.WriteMemory(ctx, "alpha", memory.TierSession, fmt.Sprintf("content%d", i)), ShouldBeTrue)
			}

			out, ok := c.ReadMemory(ctx, "alpha", memory.TierSession, "")
			So(ok, ShouldBeTrue)
			lines := strings.Split(out, "\n")
			So(lines, ShouldHaveLength, 5)
			for i, line := range lines {
				So(line, ShouldEndWith, fmt.Sprintf("] content%d", i+3))
			}

			st := c.MemoryStatus(ctx)
			So(st.SessionMemory["alpha"], ShouldResemble, memory.SessionStats{EntriesCount: 5, MaxEntries: 5})
		})

		Convey("Session data is gone after a restart", func() {
			So(c.WriteMemory(ctx, "alpha", memory.TierSession, "volatile"), ShouldBeTrue)
			So(c.Close(), ShouldBeNil)
			So(c.InitializeMemory(ctx), ShouldBeTrue)

			_, ok := c.ReadMemory(ctx, "alpha", memory.TierSession, "")
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given session memory disabled", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		disabled := false
		cfg.SessionMemory.Enabled = &disabled
		c := newCoordinator(cfg)
		So(c.InitializeMemory(ctx), ShouldBeTrue)
		Reset(func() { c.Close() })

		Convey("Session writes report the tier unavailable", func() {
			So(errors.Is(c.Write(ctx, "alpha", memory.TierSession, "x"), memory.ErrTierUnavailable), ShouldBeTrue)
			So(c.WriteMemory(ctx, "alpha", memory.TierCrew, "x"), ShouldBeTrue)
		})
	})
}

func TestCoordinatorMalformedCrewFile(t *testing.T) {
	Convey("Given a crew directory with one broken file", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		So(os.MkdirAll(cfg.CrewMemory.Directory, 0o750), ShouldBeNil)
		So(os.WriteFile(filepath.Join(cfg.CrewMemory.Directory, "broken.json"), []byte("{not json"), 0o600), ShouldBeNil)
		So(os.WriteFile(filepath.Join(cfg.CrewMemory.Directory, "good.json"),
			[]byte(`{"entries":[{"timestamp":"2025-01-01T00:00:00Z","content":"kept"}]}`), 0o600), ShouldBeNil)

		c := newCoordinator(cfg)
		Reset(func() { c.Close() })

		Convey("Initialization skips it and loads the rest", func() {
			So(c.InitializeMemory(ctx), ShouldBeTrue)

			out, ok := c.ReadMemory(ctx, "good", memory.TierCrew, "")
			So(ok, ShouldBeTrue)
			So(out, ShouldEqual, "[2025-01-01T00:00:00Z] kept")

			_, ok = c.ReadMemory(ctx, "broken", memory.TierCrew, "")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestCoordinatorVectorOutage(t *testing.T) {
	Convey("Given a vector backend that cannot be opened", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)

		Convey("Non-strict initialization brings up the other tiers", func() {
			c := newCoordinator(cfg, memory.WithVectorOpener(failingOpener))
			defer c.Close()

			So(c.Initialize(ctx), ShouldBeNil)
			st := c.MemoryStatus(ctx)
			So(st.Tiers, ShouldResemble, memory.TierStatus{Crew: true, Session: true, Vector: false})
			So(st.VectorDB, ShouldBeNil)

			So(c.WriteMemory(ctx, "alpha", memory.TierCrew, "still works"), ShouldBeTrue)
			So(errors.Is(c.Write(ctx, "alpha", memory.TierVector, "x"), memory.ErrTierUnavailable), ShouldBeTrue)
		})

		Convey("Strict initialization fails as a whole", func() {
			cfg.Strict = true
			c := newCoordinator(cfg, memory.WithVectorOpener(failingOpener))

			err := c.Initialize(ctx)
			So(errors.Is(err, memory.ErrBackendUnavailable), ShouldBeTrue)
			So(c.InitializeMemory(ctx), ShouldBeFalse)
			So(c.WriteMemory(ctx, "alpha", memory.TierCrew, "x"), ShouldBeFalse)
			So(c.MemoryStatus(ctx).Initialized, ShouldBeFalse)
		})
	})

	Convey("Given a crew directory that cannot be created", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		So(os.MkdirAll(filepath.Dir(cfg.CrewMemory.Directory), 0o750), ShouldBeNil)
		So(os.WriteFile(cfg.CrewMemory.Directory, []byte("not a directory"), 0o600), ShouldBeNil)
		stub := &stubVector{}

		Convey("Strict initialization fails and releases the vector store", func() {
			cfg.Strict = true
			c := newCoordinator(cfg, memory.WithVectorOpener(stubOpener(stub)))

			err := c.Initialize(ctx)
			So(errors.Is(err, memory.ErrPersistence), ShouldBeTrue)
			So(stub.closed, ShouldBeTrue)
			So(c.MemoryStatus(ctx).Initialized, ShouldBeFalse)
			So(c.MemoryStatus(ctx).VectorDB, ShouldBeNil)
		})

		Convey("Non-strict initialization keeps the vector and session tiers", func() {
			c := newCoordinator(cfg, memory.WithVectorOpener(stubOpener(stub)))
			defer c.Close()

			So(c.Initialize(ctx), ShouldBeNil)
			So(c.MemoryStatus(ctx).Tiers, ShouldResemble, memory.TierStatus{Crew: false, Session: true, Vector: true})
			So(stub.closed, ShouldBeFalse)
			So(errors.Is(c.Write(ctx, "alpha", memory.TierCrew, "x"), memory.ErrTierUnavailable), ShouldBeTrue)
		})
	})

	Convey("Given no vector opener at all", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Strict = true
		c := newCoordinator(cfg)
		Reset(func() { c.Close() })

		Convey("Strict initialization still succeeds without the vector tier", func() {
			So(c.Initialize(ctx), ShouldBeNil)
			_, err := c.Read(ctx, "alpha", memory.TierVector, "anything")
			So(errors.Is(err, memory.ErrTierUnavailable), ShouldBeTrue)
		})
	})
}

func TestCoordinatorVectorTier(t *testing.T) {
	Convey("Given a chromem vector tier with the hashed embedder", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		opener := chromem.Opener(hashed.New(0), quietLogger())
		c := newCoordinator(cfg, memory.WithVectorOpener(opener))
		So(c.Initialize(ctx), ShouldBeNil)
		Reset(func() { c.Close() })

		So(c.WriteMemory(ctx, "alpha", memory.TierVector, "deploy the kubernetes cluster"), ShouldBeTrue)
		So(c.WriteMemory(ctx, "beta", memory.TierVector, "bake sourdough bread"), ShouldBeTrue)

		Convey("A read only returns the asking crew's documents", func() {
			out, ok := c.ReadMemory(ctx, "alpha", memory.TierVector, "kubernetes")
			So(ok, ShouldBeTrue)
			So(out, ShouldContainSubstring, "deploy the kubernetes cluster")
			So(out, ShouldNotContainSubstring, "sourdough")
			So(out, ShouldStartWith, "[2025-01-01T12:00:")
		})

		Convey("A vector read without a query is refused", func() {
			_, err := c.Read(ctx, "alpha", memory.TierVector, "   ")
			So(errors.Is(err, memory.ErrEmptyQuery), ShouldBeTrue)
		})

		Convey("A crew with no documents finds nothing", func() {
			_, err := c.Read(ctx, "gamma", memory.TierVector, "kubernetes")
			So(errors.Is(err, memory.ErrNotFound), ShouldBeTrue)
		})

		Convey("Status counts the collection", func() {
			st := c.MemoryStatus(ctx)
			So(st.VectorDB, ShouldNotBeNil)
			So(st.VectorDB.CollectionName, ShouldEqual, memory.DefaultCollectionName)
			So(st.VectorDB.DocumentCount, ShouldEqual, 2)
		})

		Convey("Synchronized documents survive a restart", func() {
			So(c.SynchronizeMemory(ctx), ShouldBeTrue)
			So(c.Close(), ShouldBeNil)

			again := newCoordinator(cfg, memory.WithVectorOpener(opener))
			So(again.Initialize(ctx), ShouldBeNil)
			defer again.Close()

			So(again.MemoryStatus(ctx).VectorDB.DocumentCount, ShouldEqual, 2)
			out, ok := again.ReadMemory(ctx, "beta", memory.TierVector, "bread")
			So(ok, ShouldBeTrue)
			So(out, ShouldContainSubstring, "sourdough")
		})
	})
}

func TestCoordinatorRecallCache(t *testing.T) {
	Convey("Given a vector tier behind the recall cache", t, func() {
		ctx := context.Background()
		store := &stubVector{}
		c := newCoordinator(testConfig(t), memory.WithVectorOpener(stubOpener(store)))
		So(c.Initialize(ctx), ShouldBeNil)
		Reset(func() { c.Close() })

		So(c.WriteMemory(ctx, "alpha", memory.TierVector, "first note"), ShouldBeTrue)

		Convey("Repeated reads are served from cache", func() {
			for i := 0; i < 20; i++ {
				_, ok := c.ReadMemory(ctx, "alpha", memory.TierVector, "note")
				So(ok, ShouldBeTrue)
				time.Sleep(time.Millisecond)
			}
			store.mu.Lock()
			queries := store.queries
			store.mu.Unlock()
			So(queries, ShouldBeLessThan, 20)
		})

		Convey("A write is visible to the next read", func() {
			out, ok := c.ReadMemory(ctx, "alpha", memory.TierVector, "note")
			So(ok, ShouldBeTrue)
			So(out, ShouldNotContainSubstring, "second note")

			So(c.WriteMemory(ctx, "alpha", memory.TierVector, "second note"), ShouldBeTrue)

			out, ok = c.ReadMemory(ctx, "alpha", memory.TierVector, "note")
			So(ok, ShouldBeTrue)
			So(out, ShouldContainSubstring, "second note")
		})

		Convey("Vector documents carry crew metadata", func() {
			store.mu.Lock()
			doc := store.docs[0]
			store.mu.Unlock()
			So(doc.ID, ShouldStartWith, "alpha-")
			So(doc.Metadata["crew_name"], ShouldEqual, "alpha")
			So(doc.Metadata["memory_type"], ShouldEqual, "vector")
			So(doc.Metadata["timestamp"], ShouldNotBeEmpty)
		})

		Convey("Synchronize persists and Close releases the store", func() {
			So(c.SynchronizeMemory(ctx), ShouldBeTrue)
			So(store.persisted, ShouldEqual, 1)
			So(c.Close(), ShouldBeNil)
			So(store.closed, ShouldBeTrue)
		})
	})
}

func TestCoordinatorVectorTimeout(t *testing.T) {
	Convey("Given a vector backend that never answers", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.VectorDB.Timeout = 20 * time.Millisecond
		store := &stubVector{block: true}
		c := newCoordinator(cfg, memory.WithVectorOpener(stubOpener(store)))
		So(c.Initialize(ctx), ShouldBeNil)
		Reset(func() { c.Close() })

		Convey("A write gives up after the configured timeout", func() {
			start := time.Now()
			err := c.Write(ctx, "alpha", memory.TierVector, "lost")
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(time.Since(start), ShouldBeLessThan, 2*time.Second)
			So(c.WriteMemory(ctx, "alpha", memory.TierVector, "lost"), ShouldBeFalse)
		})
	})

	Convey("Given a vector backend whose count fails", t, func() {
		ctx := context.Background()
		store := &stubVector{countErr: errors.New("boom")}
		c := newCoordinator(testConfig(t), memory.WithVectorOpener(stubOpener(store)))
		So(c.Initialize(ctx), ShouldBeNil)
		Reset(func() { c.Close() })

		Convey("Status omits the vector section", func() {
			st := c.MemoryStatus(ctx)
			So(st.Tiers.Vector, ShouldBeTrue)
			So(st.VectorDB, ShouldBeNil)
		})
	})
}

func TestCoordinatorMirror(t *testing.T) {
	Convey("Given a coordinator with a mirror", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		mirror := &recordingMirror{}
		c := newCoordinator(cfg, memory.WithMirror(mirror))
		So(c.Initialize(ctx), ShouldBeNil)
		Reset(func() { c.Close() })

		Convey("Synchronize uploads each crew file as written to disk", func() {
			So(c.WriteMemory(ctx, "alpha", memory.TierCrew, "one"), ShouldBeTrue)
			So(c.WriteMemory(ctx, "beta", memory.TierCrew, "two"), ShouldBeTrue)
			So(c.SynchronizeMemory(ctx), ShouldBeTrue)

			So(mirror.uploads, ShouldHaveLength, 2)
			onDisk, err := os.ReadFile(filepath.Join(cfg.CrewMemory.Directory, "alpha.json"))
			So(err, ShouldBeNil)
			So(string(mirror.uploads["alpha"]), ShouldEqual, string(onDisk))
		})
	})
}

func TestCoordinatorConcurrentCrews(t *testing.T) {
	Convey("Given many crews writing at once", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		c := newCoordinator(cfg)
		So(c.Initialize(ctx), ShouldBeNil)
		Reset(func() { c.Close() })

		const crews, writes = 8, 25
		var wg sync.WaitGroup
		failures := make(chan error, crews*writes*2)
		for i := 0; i < crews; i++ {
			crew := fmt.Sprintf("crew%d", i)
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < writes; j++ {
					if err := c.Write(ctx, crew, memory.TierCrew, fmt.Sprintf("entry %d", j)); err != nil {
						failures <- err
					}
					if err := c.Write(ctx, crew, memory.TierSession, fmt.Sprintf("entry %d", j)); err != nil {
						failures <- err
					}
				}
			}()
		}
		wg.Wait()
		close(failures)

		Convey("No write fails and every record is complete and ordered", func() {
			for err := range failures {
				So(err, ShouldBeNil)
			}
			for i := 0; i < crews; i++ {
				crew := fmt.Sprintf("crew%d", i)
				for _, tier := range []memory.Tier{memory.TierCrew, memory.TierSession} {
					out, err := c.Read(ctx, crew, tier, "")
					So(err, ShouldBeNil)
					lines := strings.Split(out, "\n")
					So(lines, ShouldHaveLength, writes)
					for j, line := range lines {
						So(line, ShouldEndWith, fmt.Sprintf("] entry %d", j))
					}
				}
			}
			So(c.SynchronizeMemory(ctx), ShouldBeTrue)
		})
	})
}
