package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mshafei721/ADOS-sub001/config"
	"github.com/mshafei721/ADOS-sub001/memory"
	"github.com/mshafei721/ADOS-sub001/memory/store/chromem"
	"github.com/mshafei721/ADOS-sub001/memory/store/objstore"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile  string
	logLevel string
	strict   bool

	memoryConfig memory.Config

	rootCmd = &cobra.Command{
		Use:           "memctl",
		Short:         "Operate the ADOS crew, session and vector memory tiers",
		Long:          longRoot,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}
)

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		log.Error(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "system settings file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "fail initialization if any tier fails")
	addEmbedderFlags(rootCmd)
}

// initConfig sets the log level and loads the memory settings.
func initConfig(cmd *cobra.Command) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	if memoryConfig, err = config.Load(cfgFile); err != nil {
		return err
	}
	if cmd.Flags().Changed("strict") {
		memoryConfig.Strict = strict
	}
	return nil
}

// newCoordinator wires the configured backends into a Coordinator.
func newCoordinator(cfg memory.Config) (*memory.Coordinator, error) {
	logger := log.Default().WithPrefix("memory")
	opts := []memory.Option{memory.WithLogger(logger)}

	if cfg.VectorDB.Provider != memory.ProviderNone {
		embedder, err := newEmbedder()
		if err != nil {
			return nil, err
		}
		opts = append(opts, memory.WithVectorOpener(chromem.Opener(embedder, log.Default().WithPrefix("chromem"))))
	}

	if cfg.CrewMemory.Mirror.Enabled() {
		mirror, err := objstore.New(cfg.CrewMemory.Mirror)
		if err != nil {
			return nil, err
		}
		opts = append(opts, memory.WithMirror(mirror))
	}

	return memory.New(cfg, opts...), nil
}

// withCoordinator builds a Coordinator from the loaded settings and hands it
// to runCoordinator.
func withCoordinator(ctx context.Context, persist bool, fn func(*memory.Coordinator) error) error {
	coord, err := newCoordinator(memoryConfig)
	if err != nil {
		return err
	}
	return runCoordinator(ctx, coord, persist, fn)
}

// runCoordinator initializes coord, runs fn, and closes it. When persist is
// set the Coordinator is synchronized after fn succeeds. A close error is
// joined into the result.
func runCoordinator(ctx context.Context, coord *memory.Coordinator, persist bool, fn func(*memory.Coordinator) error) (err error) {
	if err := coord.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize memory: %w", err)
	}
	defer func() {
		if cerr := coord.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close memory: %w", cerr))
		}
	}()

	if err := fn(coord); err != nil {
		return err
	}
	if persist {
		return coord.Synchronize(ctx)
	}
	return nil
}

var longRoot = `
memctl manages the three-tier memory system used by ADOS crews:

  crew     durable JSON history, one file per crew
  session  volatile bounded buffer, lost on restart
  vector   semantic recall over a chromem-go collection

Settings are read from the "memory" section of the system settings file and
can be overridden with ADOS_MEMORY_* environment variables.
`
