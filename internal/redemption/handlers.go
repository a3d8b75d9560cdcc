// internal/redemption/handlers.go
package redemption

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"oraclebackend/internal/catalog"
	"oraclebackend/internal/logger"
	"oraclebackend/internal/middleware"
	"oraclebackend/internal/offering"
)

// RequirementSource supplies the requirement set for a consultation. The
// ingestion boundary has already normalized and validated the data.
type RequirementSource interface {
	FetchRequiredAlternatives(ctx context.Context, consultationID string) ([]offering.Alternative, error)
}

// WalletSource supplies a user's current wallet snapshot.
type WalletSource interface {
	FetchWallet(ctx context.Context, userID string) ([]offering.WalletEntry, error)
}

// Ledger records settlement attempts and outcomes for reconciliation.
type Ledger interface {
	AppendSettlement(flowID, consultationID, offeringID string, quantity int, status, message string) error
}

// CatalogProvider returns the current catalog index snapshot.
type CatalogProvider func() *catalog.Index

// signalSink records the most recent navigation intent from a flow so the
// frontend picks it up on the next response. Routing itself happens
// client-side; the flow only reports intent.
type signalSink struct {
	mu      sync.Mutex
	pending string
}

func (s *signalSink) set(sig string) {
	s.mu.Lock()
	s.pending = sig
	s.mu.Unlock()
}

func (s *signalSink) GoToMarket() { s.set("market") }
func (s *signalSink) LeaveFlow()  { s.set("leave") }
func (s *signalSink) GoHome()     { s.set("home") }

// consume returns and clears the pending signal.
func (s *signalSink) consume() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig := s.pending
	s.pending = ""
	return sig
}

// Injected collaborators; wired from main before the server starts.
var (
	reg          *Registry
	requirements RequirementSource
	wallets      WalletSource
	settler      Settler
	ledger       Ledger
	catalogFn    CatalogProvider

	sinksMu sync.Mutex
	sinks   = make(map[string]*signalSink)
)

// Configure wires the handler collaborators. Ledger may be nil.
func Configure(r *Registry, req RequirementSource, w WalletSource, s Settler, l Ledger, cat CatalogProvider) {
	reg = r
	requirements = req
	wallets = w
	settler = s
	ledger = l
	catalogFn = cat
	// Sinks live beside the registry; whatever removes a flow (abandon or
	// the janitor) must release its sink too.
	reg.OnRemove(releaseSink)
}

// releaseSink drops the navigation sink of a flow that left the registry.
func releaseSink(id string) {
	sinksMu.Lock()
	delete(sinks, id)
	sinksMu.Unlock()
}

type startFlowRequest struct {
	ConsultationID string `json:"consultation_id"`
	UserID         string `json:"user_id"`
}

type flowResponse struct {
	View     View   `json:"view"`
	Navigate string `json:"navigate,omitempty"`
}

func respondFlow(w http.ResponseWriter, r *http.Request, f *Flow) {
	resp := flowResponse{View: f.View()}

	sinksMu.Lock()
	sink := sinks[f.ID]
	sinksMu.Unlock()
	if sink != nil {
		resp.Navigate = sink.consume()
	}

	middleware.WriteAPISuccess(w, r, resp)
}

// StartFlowHandler creates a redemption flow for one consultation: fetches
// the requirement set and the user's wallet snapshot, then registers the
// flow in StateSelecting.
func StartFlowHandler(w http.ResponseWriter, r *http.Request) {
	var req startFlowRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON request", err.Error())
		return
	}
	if req.ConsultationID == "" || req.UserID == "" {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "missing_field", "consultation_id and user_id are required", "")
		return
	}

	alts, err := requirements.FetchRequiredAlternatives(r.Context(), req.ConsultationID)
	if err != nil {
		logger.LogError("Failed to fetch requirement set for %s: %v", req.ConsultationID, err)
		middleware.WriteAPIError(w, r, http.StatusBadGateway, "requirements_unavailable", "Could not load the offering requirement", "")
		return
	}

	entries, err := wallets.FetchWallet(r.Context(), req.UserID)
	if err != nil {
		logger.LogError("Failed to fetch wallet for %s: %v", req.UserID, err)
		middleware.WriteAPIError(w, r, http.StatusBadGateway, "wallet_unavailable", "Could not load your offerings", "")
		return
	}

	sink := &signalSink{}
	sel := offering.NewSelector(alts, offering.BuildWallet(entries))
	f := NewFlow(req.ConsultationID, req.UserID, sel, settler, sink, catalogFn())
	f.OnTransition(func(st State) { recordTransition(f, st) })

	reg.Add(f)
	sinksMu.Lock()
	sinks[f.ID] = sink
	sinksMu.Unlock()

	logger.LogInfo("Started flow %s (consultation %s, user %s, %d alternatives)",
		f.ID, req.ConsultationID, req.UserID, len(alts))
	respondFlow(w, r, f)
}

// recordTransition appends ledger rows for submit/success/failure.
func recordTransition(f *Flow, st State) {
	if ledger == nil {
		return
	}

	v := f.View()
	var status, message string
	switch st {
	case StateProcessing:
		status = "submitted"
	case StateCompleted:
		status = "completed"
	case StateSelecting:
		status = "failed"
		if v.Notice != nil {
			message = v.Notice.Message
		}
	}

	alt, _ := f.selectorSelected()
	if err := ledger.AppendSettlement(f.ID, f.ConsultationID, alt.OfferingID, alt.Quantity, status, message); err != nil {
		logger.LogError("Failed to append settlement ledger row for flow %s: %v", f.ID, err)
	}
}

// selectorSelected exposes the current selection for ledger rows.
func (f *Flow) selectorSelected() (offering.Alternative, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selector.Selected()
}

func lookupFlow(w http.ResponseWriter, r *http.Request, flowID string) (*Flow, bool) {
	if flowID == "" {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "missing_field", "flow_id is required", "")
		return nil, false
	}
	f, ok := reg.Get(flowID)
	if !ok {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "flow_not_found", "No such redemption flow", "")
		return nil, false
	}
	return f, true
}

// FlowViewHandler returns the current flow snapshot.
func FlowViewHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := lookupFlow(w, r, r.URL.Query().Get("flow_id"))
	if !ok {
		return
	}
	respondFlow(w, r, f)
}

type flowActionRequest struct {
	FlowID     string            `json:"flow_id"`
	Category   offering.Category `json:"category,omitempty"`
	OfferingID string            `json:"offering_id,omitempty"`
}

func parseFlowAction(w http.ResponseWriter, r *http.Request) (*Flow, flowActionRequest, bool) {
	var req flowActionRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON request", err.Error())
		return nil, req, false
	}
	f, ok := lookupFlow(w, r, req.FlowID)
	return f, req, ok
}

func writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, offering.ErrUnknownAlternative):
		middleware.WriteAPIError(w, r, http.StatusUnprocessableEntity, "unknown_offering", "That offering is not part of this requirement", "")
	case errors.Is(err, ErrCannotProceed):
		middleware.WriteAPIError(w, r, http.StatusConflict, "cannot_proceed", "Select a sufficient offering first", "")
	case errors.Is(err, ErrNotSelecting), errors.Is(err, ErrNotCompleted):
		middleware.WriteAPIError(w, r, http.StatusConflict, "wrong_state", "The flow does not allow that action right now", "")
	case errors.Is(err, ErrFlowClosed):
		middleware.WriteAPIError(w, r, http.StatusGone, "flow_closed", "The redemption flow has ended", "")
	default:
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Unexpected flow error", err.Error())
	}
}

// SelectCategoryHandler switches the visible category tab.
func SelectCategoryHandler(w http.ResponseWriter, r *http.Request) {
	f, req, ok := parseFlowAction(w, r)
	if !ok {
		return
	}
	if !req.Category.Valid() {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_category", "Unknown offering category", string(req.Category))
		return
	}
	if err := f.SelectCategory(req.Category); err != nil {
		writeFlowError(w, r, err)
		return
	}
	respondFlow(w, r, f)
}

// SelectOfferingHandler records the user's offering choice.
func SelectOfferingHandler(w http.ResponseWriter, r *http.Request) {
	f, req, ok := parseFlowAction(w, r)
	if !ok {
		return
	}
	if err := f.Select(req.OfferingID); err != nil {
		writeFlowError(w, r, err)
		return
	}
	respondFlow(w, r, f)
}

// SubmitHandler submits the chosen offering for settlement. The settlement
// call runs in the background; the client polls the view for the outcome.
func SubmitHandler(w http.ResponseWriter, r *http.Request) {
	f, _, ok := parseFlowAction(w, r)
	if !ok {
		return
	}
	// The settlement call outlives this request; it must not be cancelled by
	// the response being written.
	if err := f.Submit(context.Background()); err != nil {
		writeFlowError(w, r, err)
		return
	}
	respondFlow(w, r, f)
}

// DismissNoticeHandler clears the settlement-failure notice.
func DismissNoticeHandler(w http.ResponseWriter, r *http.Request) {
	f, _, ok := parseFlowAction(w, r)
	if !ok {
		return
	}
	f.DismissNotice()
	respondFlow(w, r, f)
}

// RefreshWalletHandler re-fetches the user's wallet and re-derives
// sufficiency, e.g. after returning from the market.
func RefreshWalletHandler(w http.ResponseWriter, r *http.Request) {
	f, _, ok := parseFlowAction(w, r)
	if !ok {
		return
	}

	entries, err := wallets.FetchWallet(r.Context(), f.UserID)
	if err != nil {
		logger.LogError("Failed to refresh wallet for %s: %v", f.UserID, err)
		middleware.WriteAPIError(w, r, http.StatusBadGateway, "wallet_unavailable", "Could not refresh your offerings", "")
		return
	}
	if err := f.UpdateWallet(entries); err != nil {
		writeFlowError(w, r, err)
		return
	}
	respondFlow(w, r, f)
}

// MarketHandler signals the go-to-market escape hatch.
func MarketHandler(w http.ResponseWriter, r *http.Request) {
	f, _, ok := parseFlowAction(w, r)
	if !ok {
		return
	}
	if err := f.GoToMarket(); err != nil {
		writeFlowError(w, r, err)
		return
	}
	respondFlow(w, r, f)
}

// BackHandler leaves the flow from the selection screen.
func BackHandler(w http.ResponseWriter, r *http.Request) {
	f, _, ok := parseFlowAction(w, r)
	if !ok {
		return
	}
	if err := f.Back(); err != nil {
		writeFlowError(w, r, err)
		return
	}
	respondFlow(w, r, f)
}

// ExitHomeHandler is the single exit from the completion screen.
func ExitHomeHandler(w http.ResponseWriter, r *http.Request) {
	f, _, ok := parseFlowAction(w, r)
	if !ok {
		return
	}
	if err := f.ExitHome(); err != nil {
		writeFlowError(w, r, err)
		return
	}
	respondFlow(w, r, f)
}

// AbandonHandler drops a flow when the consultation session ends. A
// settlement still in flight finishes in the background and is discarded.
func AbandonHandler(w http.ResponseWriter, r *http.Request) {
	f, _, ok := parseFlowAction(w, r)
	if !ok {
		return
	}

	reg.Remove(f.ID)

	logger.LogInfo("Flow %s abandoned", f.ID)
	middleware.WriteAPISuccess(w, r, map[string]string{"flow_id": f.ID, "status": "closed"})
}
