package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/bizmatters/cad-copilot/internal/auth"
	"github.com/bizmatters/cad-copilot/internal/codegen"
	"github.com/bizmatters/cad-copilot/internal/config"
	"github.com/bizmatters/cad-copilot/internal/diagnostics"
	"github.com/bizmatters/cad-copilot/internal/executor"
	"github.com/bizmatters/cad-copilot/internal/gateway"
	"github.com/bizmatters/cad-copilot/internal/host"
	"github.com/bizmatters/cad-copilot/internal/logging"
	"github.com/bizmatters/cad-copilot/internal/metrics"
	"github.com/bizmatters/cad-copilot/internal/orchestration"
	"github.com/bizmatters/cad-copilot/internal/project"
	"github.com/bizmatters/cad-copilot/internal/snapshot"
	"github.com/bizmatters/cad-copilot/internal/store"

	_ "github.com/bizmatters/cad-copilot/docs" // swagger docs
)

// @title CAD Copilot API
// @version 1.0
// @description Natural-language CAD scripting service.
// @description Generates host scripts from the active document's context, runs them inside one undoable transaction and diagnoses failures.

// @contact.name API Support
// @contact.email support@bizmatters.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT token.

func main() {
	configPath := os.Getenv("COPILOT_CONFIG")
	if configPath == "" {
		configPath = "copilot.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logCloser := logging.Setup(cfg.Logging)
	defer logCloser.Close()

	tp, err := initTracer()
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	mp, err := initMeter()
	if err != nil {
		log.Fatalf("Failed to initialize meter: %v", err)
	}

	// Connect to the run store with retry logic
	slog.Info("Opening run store", "driver", cfg.Store.Driver)
	var st store.Store
	for i := 0; i < 10; i++ {
		st, err = store.Open(context.Background(), cfg.Store)
		if err == nil {
			break
		}
		slog.Warn("Waiting for run store", "attempt", i+1, "max_attempts", 10, "error", err)
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		log.Fatalf("Failed to open run store after retries: %v", err)
	}
	defer st.Close()

	jwtManager, err := auth.NewJWTManager()
	if err != nil {
		log.Fatalf("Failed to initialize JWT manager: %v", err)
	}

	client, err := orchestration.NewClient(cfg.Model)
	if err != nil {
		log.Fatalf("Failed to initialize generation client: %v", err)
	}

	pipelineMetrics, err := metrics.NewPipelineMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	if !cfg.Execution.AutoTransaction {
		slog.Warn("execution.auto_transaction is off; runs are still wrapped in a transaction")
	}
	if !cfg.Execution.SandboxMode {
		slog.Warn("execution.sandbox_mode is off; it has no effect on execution")
	}

	// The add-in attaches over /api/host/connect; until then capture and execution report no document
	bridge := host.NewBridge()

	orchestrator := orchestration.NewOrchestrator(orchestration.Components{
		Snapshots: snapshot.NewBuilder(bridge),
		Assembler: codegen.NewAssembler(codegen.AssemblerOptions{
			MaxParameters:   cfg.Prompt.MaxParameters,
			MaxContextChars: cfg.Prompt.MaxContextChars(),
		}),
		Client: client,
		Runner: executor.New(bridge, executor.Options{
			Timeout:       cfg.Execution.Timeout(),
			CaptureOutput: cfg.Execution.CaptureOutput,
		}),
		Diagnoser: diagnostics.NewEngine(),
		Recorder:  st,
		Metrics:   pipelineMetrics,
	}, orchestration.Options{
		GenerationTimeout: cfg.GenerationTimeout(),
		MaxAttempts:       cfg.Execution.MaxAttempts(),
	})

	handler := gateway.NewHandler(orchestrator, st, jwtManager,
		project.NewScanner(cfg.Project.Root, cfg.Project.MaxFileSizeMB), cfg.Auth.TokenTTL)
	handler.SetMaxReadLines(cfg.Project.MaxReadLines)
	router := gateway.NewRouter(handler, gateway.NewHostConnector(bridge, jwtManager), jwtManager)

	// Every execute attempt plus one generation call must fit in a single response
	writeTimeout := time.Duration(cfg.Execution.MaxAttempts())*(cfg.Execution.Timeout()+host.CancelGrace) + cfg.GenerationTimeout() + 15*time.Second

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Starting CAD copilot API server",
			"port", cfg.Server.Port,
			"backend", orchestrator.Backend(),
			"store", cfg.Store.Driver,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if err := tp.Shutdown(ctx); err != nil {
		slog.Error("Failed to flush traces", "error", err)
	}
	if err := mp.Shutdown(ctx); err != nil {
		slog.Error("Failed to flush metrics", "error", err)
	}

	slog.Info("Server exited")
}

// initTracer initializes OpenTelemetry tracing
func initTracer() (*trace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp, nil
}

// initMeter initializes OpenTelemetry metrics with a periodic stdout export
func initMeter() (*sdkmetric.MeterProvider, error) {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(time.Minute))),
	)

	otel.SetMeterProvider(mp)

	return mp, nil
}
