// main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"oraclebackend/internal/catalog"
	"oraclebackend/internal/config"
	"oraclebackend/internal/data"
	"oraclebackend/internal/info"
	"oraclebackend/internal/logger"
	"oraclebackend/internal/middleware"
	"oraclebackend/internal/navigator"
	"oraclebackend/internal/redemption"
	"oraclebackend/internal/settlement"
	"oraclebackend/internal/source"
)

type App struct {
	addr          string
	mux           *http.ServeMux
	connections   sync.WaitGroup
	totalRequests int64
}

func init() {
	loc, err := time.LoadLocation("Africa/Lagos")
	if err == nil {
		time.Local = loc // This affects the standard log package
	}
}

func main() {
	// Step 1: Setup configuration first
	config.LoadEnv()
	config.ConfigurePaths()

	// Step 2: Setup logging
	loggerConfig := config.LoggerConfig()
	if err := logger.SetupLogger(loggerConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Only NOW is logging safe to use!
	logger.LogInfo("Environment and paths loaded. Logger ready.")

	// Step 3: Load settlement provider configuration
	if err := config.LoadSettlementConfig(); err != nil {
		logger.LogFatal("Failed to load settlement config: %v", err)
	}
	config.LoadCORSConfig()
	config.LogCurrentEnvironment()

	// Step 4: Open the database and apply the schema
	if err := data.InitDB(config.DatabaseFile); err != nil {
		logger.LogFatal("Failed to initialize database: %v", err)
	}
	defer data.CloseDB()

	if err := data.EnsureSchema(); err != nil {
		logger.LogFatal("Failed to apply database schema: %v", err)
	}

	// Step 5: Seed the store from the snapshot file when one exists
	catalogIndex := seedFromSnapshot(config.SnapshotFile)

	// Step 6: Wire services and handlers
	registry := redemption.NewRegistry()
	settler := settlement.NewClient(config.APIBase(), config.APIKey())
	catalogFn := func() *catalog.Index { return catalogIndex }

	redemption.Configure(registry, data.SQLSource{}, data.SQLSource{}, settler, data.SQLLedger{}, catalogFn)
	navigator.Configure(data.SQLSource{}, catalogFn)
	info.Configure(registry, catalogFn)

	// Step 7: Setup app
	app := &App{
		addr: serverAddress(),
		mux:  routes(),
	}

	// Step 8: Start background tasks
	janitorCtx, cancelJanitor := context.WithCancel(context.Background())
	defer cancelJanitor()
	registry.StartJanitor(janitorCtx)
	navigator.StartSessionJanitor(janitorCtx)

	// Step 9: Run server
	app.Run()
}

// seedFromSnapshot loads the snapshot file into the database and returns the
// catalog index. A missing snapshot is fine; the database keeps whatever it
// already holds.
func seedFromSnapshot(path string) *catalog.Index {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if _, err := os.Stat(path); err == nil {
		fs, err := source.LoadFile(path)
		if err != nil {
			logger.LogFatal("Failed to load snapshot %s: %v", path, err)
		}

		offerings, _ := fs.FetchOfferings(ctx)
		rubrics, _ := fs.FetchRubrics(ctx)
		choices, _ := fs.FetchConsultationChoices(ctx)

		if err := data.ReplaceOfferings(ctx, offerings); err != nil {
			logger.LogFatal("Failed to seed offerings: %v", err)
		}
		if err := data.ReplaceRubrics(ctx, rubrics); err != nil {
			logger.LogFatal("Failed to seed rubrics: %v", err)
		}
		if err := data.ReplaceChoices(ctx, choices); err != nil {
			logger.LogFatal("Failed to seed consultation choices: %v", err)
		}
		for userID, entries := range fs.Wallets() {
			if err := data.SetWallet(ctx, userID, entries); err != nil {
				logger.LogFatal("Failed to seed wallet for %s: %v", userID, err)
			}
		}
		logger.LogInfo("Seeded store from snapshot %s (%d offerings, %d rubrics, %d choices)",
			path, len(offerings), len(rubrics), len(choices))
	} else {
		logger.LogWarn("No snapshot file at %s, using existing database contents", path)
	}

	entries, err := data.GetOfferings(ctx)
	if err != nil {
		logger.LogFatal("Failed to load offering catalog: %v", err)
	}
	logger.LogInfo("Offering catalog loaded (%d entries)", len(entries))
	return catalog.BuildIndex(entries)
}

// serverAddress builds the server address from environment variables
func serverAddress() string {
	host := os.Getenv("SERVER_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "5061"
	}
	return host + ":" + port
}

// routes sets up all API routes
func routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/info", middleware.APIMiddleware(info.ServerInfoHandler))

	apiMux.HandleFunc("/flow/start", middleware.APIMiddleware(redemption.StartFlowHandler))
	apiMux.HandleFunc("/flow/view", middleware.APIMiddleware(redemption.FlowViewHandler))
	apiMux.HandleFunc("/flow/select-category", middleware.APIMiddleware(redemption.SelectCategoryHandler))
	apiMux.HandleFunc("/flow/select-offering", middleware.APIMiddleware(redemption.SelectOfferingHandler))
	apiMux.HandleFunc("/flow/submit", middleware.APIMiddleware(redemption.SubmitHandler))
	apiMux.HandleFunc("/flow/dismiss-notice", middleware.APIMiddleware(redemption.DismissNoticeHandler))
	apiMux.HandleFunc("/flow/refresh-wallet", middleware.APIMiddleware(redemption.RefreshWalletHandler))
	apiMux.HandleFunc("/flow/market", middleware.APIMiddleware(redemption.MarketHandler))
	apiMux.HandleFunc("/flow/back", middleware.APIMiddleware(redemption.BackHandler))
	apiMux.HandleFunc("/flow/exit-home", middleware.APIMiddleware(redemption.ExitHomeHandler))
	apiMux.HandleFunc("/flow/abandon", middleware.APIMiddleware(redemption.AbandonHandler))

	apiMux.HandleFunc("/browse/start", middleware.APIMiddleware(navigator.StartBrowseHandler))
	apiMux.HandleFunc("/browse/open-rubric", middleware.APIMiddleware(navigator.OpenRubricHandler))
	apiMux.HandleFunc("/browse/open-choice", middleware.APIMiddleware(navigator.OpenChoiceHandler))
	apiMux.HandleFunc("/browse/back", middleware.APIMiddleware(navigator.BackHandler))
	apiMux.HandleFunc("/browse/view", middleware.APIMiddleware(navigator.ViewHandler))
	apiMux.HandleFunc("/browse/end", middleware.APIMiddleware(navigator.EndBrowseHandler))

	// The webhook carries its own signature verification; the generic API
	// envelope does not apply to provider callbacks.
	apiMux.HandleFunc("/settlement-webhook", settlement.WebhookHandler)

	mux.Handle("/api/", http.StripPrefix("/api", apiMux))

	return mux
}

// Run starts the HTTP server

func (a *App) Run() {
	server := &http.Server{
		Addr:         a.addr,
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in a separate goroutine
	go func() {
		logger.LogInfo("Starting server on %s", a.addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogFatal("Server failed: %v", err)
		}
	}()

	// Wait for a shutdown signal
	<-stop
	logger.LogInfo("Shutdown signal received")

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown the server gracefully
	if err := server.Shutdown(ctx); err != nil {
		logger.LogError("Server shutdown error: %v", err)
	}

	// Wait for active connections to finish
	logger.LogInfo("Waiting for active connections to finish...")
	a.connections.Wait()
	logger.LogInfo("All connections closed. Total requests handled: %d", atomic.LoadInt64(&a.totalRequests))
	logger.LogInfo("Server shut down gracefully")
}

// Handler assembles all middleware around the main mux
func (a *App) Handler() http.Handler {
	var handler http.Handler = a.mux

	handler = a.trackConnections(handler)
	handler = logRequests(handler)
	handler = withTimeout(handler, 15*time.Second)

	return handler
}

// Middleware: timeout handler
func withTimeout(h http.Handler, timeout time.Duration) http.Handler {
	return http.TimeoutHandler(h, timeout, "Request timed out")
}

// Middleware: log requests
func logRequests(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		h.ServeHTTP(w, r)

		duration := time.Since(start)
		logger.LogInfo("%s %s took %v", r.Method, r.URL.Path, duration)
	})
}

// Middleware: track active connections and total requests
func (a *App) trackConnections(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.connections.Add(1)
		atomic.AddInt64(&a.totalRequests, 1)
		defer a.connections.Done()

		h.ServeHTTP(w, r)
	})
}
