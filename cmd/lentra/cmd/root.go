// Package cmd provides the CLI commands for lentra.
package cmd

import (
	"context"
	"sync"

	"github.com/spf13/cobra"

	"github.com/lentra-ai/lentra/internal/config"
	"github.com/lentra-ai/lentra/internal/eval"
	"github.com/lentra-ai/lentra/internal/logging"
	"github.com/lentra-ai/lentra/internal/model"
	"github.com/lentra-ai/lentra/internal/rag"
	"github.com/lentra-ai/lentra/pkg/version"
)

// app carries the shared dependencies commands draw on. The engine and
// comparator come up lazily so cheap commands stay cheap.
type app struct {
	cfg *config.Config

	mu         sync.Mutex
	engine     *rag.Engine
	comparator *eval.Comparator
	runner     *model.OllamaRunner

	logCleanup func()
}

func (a *app) Engine() *rag.Engine {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.engine == nil {
		a.engine = rag.New(a.cfg)
	}
	return a.engine
}

func (a *app) Runner() *model.OllamaRunner {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runner == nil {
		a.runner = model.NewOllamaRunner(a.cfg.Embeddings.OllamaHost)
	}
	return a.runner
}

func (a *app) Comparator(ctx context.Context) (*eval.Comparator, error) {
	engine := a.Engine()
	runner := a.Runner()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.comparator == nil {
		embedder, err := engine.Embedder(ctx)
		if err != nil {
			return nil, err
		}
		a.comparator = eval.NewComparator(
			eval.Mode(a.cfg.Evaluation.Mode),
			a.cfg.Evaluation.JudgeModel,
			a.cfg.Evaluation.UseLLMJudge,
			embedder,
			runner,
		)
	}
	return a.comparator, nil
}

func (a *app) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.engine != nil {
		a.engine.Close()
		a.engine = nil
	}
	if a.logCleanup != nil {
		a.logCleanup()
		a.logCleanup = nil
	}
}

// NewRootCmd creates the root command for the lentra CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}
	var configPath string
	var debugMode bool

	root := &cobra.Command{
		Use:   "lentra",
		Short: "Local RAG and model comparison playground",
		Long: `Lentra indexes your documents into a local vector store, retrieves
relevant chunks for a query, and compares responses from multiple
local models with pluggable evaluation strategies.

Everything runs locally against an Ollama server.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath == "" {
				configPath = "lentra.yaml"
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if debugMode {
				cfg.Logging.Level = "debug"
			}
			a.cfg = cfg

			_, cleanup, err := logging.Setup(logging.Config{
				Level:         cfg.Logging.Level,
				FilePath:      cfg.Logging.File,
				WriteToStderr: debugMode,
			})
			if err != nil {
				return err
			}
			a.logCleanup = cleanup
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}

	root.SetVersionTemplate(version.String() + "\n")
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: lentra.yaml if present)")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr")

	root.AddCommand(
		newInitCmd(),
		newIndexCmd(a),
		newQueryCmd(a),
		newCompareCmd(a),
		newEvaluateCmd(a),
		newDocumentsCmd(a),
		newCollectionsCmd(a),
		newStatsCmd(a),
		newRebuildCmd(a),
		newWatchCmd(a),
		newHistoryCmd(a),
	)

	return root
}
