// internal/info/info.go
package info

import (
	"net/http"
	"os"
	"time"

	"oraclebackend/internal/catalog"
	"oraclebackend/internal/logger"
	"oraclebackend/internal/middleware"
	"oraclebackend/internal/redemption"
)

var (
	startedAt = time.Now()

	registry  *redemption.Registry
	catalogFn func() *catalog.Index
)

// Configure wires the collaborators the info endpoint reports on.
func Configure(r *redemption.Registry, cat func() *catalog.Index) {
	registry = r
	catalogFn = cat
}

type serverInfo struct {
	Environment  string         `json:"environment"`
	StartedAt    time.Time      `json:"started_at"`
	Uptime       string         `json:"uptime"`
	CatalogSize  int            `json:"catalog_size"`
	ActiveFlows  int            `json:"active_flows"`
	FlowsByState map[string]int `json:"flows_by_state"`
}

// ServerInfoHandler reports operational counters: uptime, catalog size and
// the redemption registry's population.
func ServerInfoHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	out := serverInfo{
		Environment: env,
		StartedAt:   startedAt,
		Uptime:      time.Since(startedAt).Round(time.Second).String(),
	}
	if catalogFn != nil {
		out.CatalogSize = catalogFn().Len()
	}
	if registry != nil {
		out.ActiveFlows = registry.Len()
		out.FlowsByState = registry.Stats()
	}

	middleware.WriteAPISuccess(w, r, out)
}
