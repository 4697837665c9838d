// Command orchestratord starts the task orchestration core's HTTP server,
// wiring every package together: config, repositories, LLM provider,
// outbound clients, model selection, strategies, and the coordinator, with
// flags for process configuration, goa.design/clue/log for structured
// logging, and a signal-driven graceful shutdown sequence.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goa.design/clue/log"

	"github.com/coderun/orchestrator/abtest"
	"github.com/coderun/orchestrator/config"
	"github.com/coderun/orchestrator/coordinator"
	"github.com/coderun/orchestrator/feedback"
	"github.com/coderun/orchestrator/githubclient"
	"github.com/coderun/orchestrator/httpapi"
	"github.com/coderun/orchestrator/llm"
	"github.com/coderun/orchestrator/llm/anthropicprovider"
	"github.com/coderun/orchestrator/logstream"
	"github.com/coderun/orchestrator/mlclassifierclient"
	"github.com/coderun/orchestrator/modelperf"
	"github.com/coderun/orchestrator/modelregistry"
	"github.com/coderun/orchestrator/modelselector"
	"github.com/coderun/orchestrator/repo"
	"github.com/coderun/orchestrator/resilience"
	"github.com/coderun/orchestrator/strategy/iterative"
	"github.com/coderun/orchestrator/strategy/multiagent"
	"github.com/coderun/orchestrator/strategy/singleshot"
	"github.com/coderun/orchestrator/strategyselector"
	"github.com/coderun/orchestrator/taskservice"
	"github.com/coderun/orchestrator/telemetry"
)

func main() {
	var (
		httpPortF   = flag.String("http-port", "8090", "HTTP port to listen on")
		configF     = flag.String("config", "", "path to YAML config file (defaults applied when omitted)")
		dbgF        = flag.Bool("debug", false, "log request and response bodies")
		defaultModF = flag.String("default-model", "claude-sonnet-4-5", "default LLM model name")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}
	logger := telemetry.NewClueLogger()
	tracer := telemetry.NewOtelTracer("orchestratord")

	cfg := config.Default()
	if *configF != "" {
		loaded, err := config.Load(*configF)
		if err != nil {
			log.Fatal(ctx, fmt.Errorf("load config: %w", err))
		}
		cfg = loaded
	}

	llmClient, err := newLLMClient(*defaultModF)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("configure LLM client: %w", err))
	}
	llmClient = resilience.NewAdaptiveRateLimiter(cfg.LLM.InitialTPM, cfg.LLM.MaxTPM).Wrap(llmClient)

	mlClassifier := mlclassifierclient.New(http.DefaultClient, mlclassifierclient.Config{
		BaseURL: cfg.MLClassifier.BaseURL,
		Timeout: cfg.MLClassifierTimeout(),
	}, logger)

	var gh *githubclient.Client
	if cfg.GitHub.ServiceURL != "" {
		gh = githubclient.New(http.DefaultClient, githubclient.Config{
			ServiceURL: cfg.GitHub.ServiceURL,
			Timeout:    cfg.GitHubTimeout(),
		}, logger)
	}

	taskRepo := repo.NewInMemoryTaskRepository()
	execRepo := repo.NewInMemoryExecutionRepository()

	tasks := taskservice.New(taskRepo, nil, gh, cfg.GitHub.Owner, cfg.GitHub.Repo, logger)

	registry := strategyselector.Registry{
		"SingleShot": singleshot.New(llmClient, *defaultModF, logger),
		"Iterative": iterative.New(llmClient, *defaultModF, iterative.Config{
			MaxIterations: cfg.Orchestration.IterativeMaxIterations,
			Timeout:       cfg.IterativeTimeout(),
		}, logger),
		"MultiAgent": multiagent.New(llmClient, *defaultModF, multiagent.Config{
			MaxParallelCoders: cfg.Orchestration.MaxParallelSubagents,
		}, logger, tracer),
	}
	selector := strategyselector.New(mlClassifier, tasks, registry, logger)

	abEngine := abtest.New(abtest.Config{DefaultTrafficPercent: cfg.Orchestration.ABTest.DefaultTrafficPercent})
	perfTracker := modelperf.New(modelperf.Config{MinSamples: cfg.Orchestration.Performance.MinSamples})
	modelReg := modelregistry.New(modelregistry.Config{RefreshTTL: cfg.ModelRegistryRefreshTTL()}, nil, logger)
	modelSel := modelselector.New(abEngine, perfTracker, modelReg, logger)

	logs := logstream.New()

	coord := coordinator.New(coordinator.Config{
		Tasks:          tasks,
		Executions:     execRepo,
		TaskRepository: taskRepo,
		Selector:       selector,
		ModelSelector:  modelSel,
		Perf:           perfTracker,
		ABTests:        abEngine,
		Logs:           logs,
		Logger:         logger,
	})

	feedbackSvc := feedback.New(feedback.NewInMemoryRepository(), nil, mlClassifier, feedback.Config{}, logger)

	router := httpapi.NewRouter(httpapi.Deps{
		Tasks:       tasks,
		Coordinator: coord,
		Executions:  execRepo,
		Logs:        logs,
		ModelReg:    modelReg,
		ModelPerf:   perfTracker,
		ModelSel:    modelSel,
		ABTests:     abEngine,
		Feedback:    feedbackSvc,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:         ":" + *httpPortF,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE log streaming holds the connection open
	}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	go func() {
		logger.Info(ctx, "orchestratord listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "graceful HTTP shutdown failed", "error", err)
	}
	coord.Shutdown()
	log.Printf(ctx, "exited")
}

// newLLMClient builds the default LLM provider from environment
// credentials. ANTHROPIC_API_KEY must be set.
func newLLMClient(defaultModel string) (llm.Client, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	return anthropicprovider.NewFromAPIKey(apiKey, defaultModel)
}
