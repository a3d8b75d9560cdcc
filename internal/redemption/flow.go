// internal/redemption/flow.go
package redemption

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"oraclebackend/internal/catalog"
	"oraclebackend/internal/logger"
	"oraclebackend/internal/offering"
)

// State is the redemption flow state. A flow starts in StateSelecting, moves
// to StateProcessing on submit and ends in StateCompleted; a settlement
// failure returns it to StateSelecting with the selection preserved.
type State string

const (
	StateSelecting  State = "selecting"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateCompleted }

// SettlementResult is the settlement provider's answer: consumed and
// unlocked, or declined with a user-facing message.
type SettlementResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Settler performs the external settlement: consuming the chosen offering
// and unlocking the consultation. It must be invoked at most once per
// accepted submission.
type Settler interface {
	Settle(ctx context.Context, consultationID string, alt offering.Alternative) (SettlementResult, error)
}

// NavSink receives fire-and-forget navigation signals. The flow never owns
// routing; it only reports the user's intent.
type NavSink interface {
	GoToMarket()
	LeaveFlow()
	GoHome()
}

// Notice is a transient, dismissible error message shown after a failed
// settlement. It self-dismisses once ExpiresAt passes.
type Notice struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// noticeTTL is how long a settlement-failure notice stays visible unless the
// user dismisses it first.
const noticeTTL = 8 * time.Second

var (
	// ErrNotSelecting is returned for actions that are only legal while the
	// flow is in StateSelecting. A repeat submit during StateProcessing lands
	// here, which is how the single-in-flight guarantee is enforced.
	ErrNotSelecting = errors.New("flow is not in the selecting state")

	// ErrNotCompleted guards the exit-home action.
	ErrNotCompleted = errors.New("flow is not completed")

	// ErrCannotProceed is returned by Submit when nothing redeemable is
	// selected.
	ErrCannotProceed = errors.New("no sufficient offering selected")

	// ErrFlowClosed is returned once the flow has been detached.
	ErrFlowClosed = errors.New("flow is closed")
)

// Flow drives one redemption: offering selection, settlement, completion. A
// flow owns its selection state exclusively; nothing is shared between flow
// instances, so a single mutex per flow is the only synchronization.
type Flow struct {
	ID             string
	ConsultationID string
	UserID         string
	CreatedAt      time.Time

	mu           sync.Mutex
	state        State
	selector     *offering.Selector
	settler      Settler
	nav          NavSink
	catalog      *catalog.Index
	notice       *Notice
	gen          uint64
	closed       bool
	lastActivity time.Time
	onTransition func(State)

	now func() time.Time
}

// NewFlow starts a redemption flow in StateSelecting.
func NewFlow(consultationID, userID string, sel *offering.Selector, settler Settler, nav NavSink, ix *catalog.Index) *Flow {
	now := time.Now()
	return &Flow{
		ID:             uuid.NewString(),
		ConsultationID: consultationID,
		UserID:         userID,
		CreatedAt:      now,
		state:          StateSelecting,
		selector:       sel,
		settler:        settler,
		nav:            nav,
		catalog:        ix,
		lastActivity:   now,
		now:            time.Now,
	}
}

// OnTransition registers an observer called after every state change, outside
// the flow lock. Used by the HTTP layer and tests; may be nil.
func (f *Flow) OnTransition(fn func(State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTransition = fn
}

// State returns the current flow state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Closed reports whether the flow has been detached.
func (f *Flow) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// LastActivity returns the time of the most recent user action or
// transition, used by the registry janitor.
func (f *Flow) LastActivity() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastActivity
}

func (f *Flow) touch() {
	f.lastActivity = f.now()
}

// SelectCategory switches the visible category tab. Legal in any live state;
// it is display-only and changes no selection.
func (f *Flow) SelectCategory(c offering.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFlowClosed
	}
	f.selector.SelectCategory(c)
	f.touch()
	return nil
}

// Select records the user's offering choice. Only legal while selecting.
func (f *Flow) Select(offeringID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFlowClosed
	}
	if f.state != StateSelecting {
		return ErrNotSelecting
	}
	if err := f.selector.Select(offeringID); err != nil {
		return err
	}
	f.touch()
	return nil
}

// UpdateWallet applies a refreshed wallet snapshot. Sufficiency is derived,
// never cached, so CanProceed reflects the new snapshot immediately.
func (f *Flow) UpdateWallet(entries []offering.WalletEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFlowClosed
	}
	f.selector.UpdateWallet(entries)
	f.touch()
	return nil
}

// CanProceed reports whether Submit would be accepted right now.
func (f *Flow) CanProceed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == StateSelecting && !f.closed && f.selector.CanProceed()
}

// Submit moves the flow to StateProcessing and invokes the settler exactly
// once, asynchronously. While processing, further submits return
// ErrNotSelecting without any side effect.
func (f *Flow) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	if f.state != StateSelecting {
		f.mu.Unlock()
		return ErrNotSelecting
	}
	alt, ok := f.selector.Selected()
	if !ok || !f.selector.CanProceed() {
		f.mu.Unlock()
		return ErrCannotProceed
	}

	f.state = StateProcessing
	f.notice = nil
	f.touch()
	gen := f.gen
	cb := f.onTransition
	f.mu.Unlock()

	logger.LogInfo("Flow %s: submitting %dx %s for consultation %s",
		f.ID, alt.Quantity, alt.OfferingID, f.ConsultationID)

	if cb != nil {
		cb(StateProcessing)
	}
	go f.settle(ctx, gen, alt)
	return nil
}

// settle performs the single outstanding settlement call for one accepted
// submission and applies its result.
func (f *Flow) settle(ctx context.Context, gen uint64, alt offering.Alternative) {
	res, err := f.settler.Settle(ctx, f.ConsultationID, alt)
	if err != nil {
		logger.LogError("Flow %s: settlement call failed: %v", f.ID, err)
		res = SettlementResult{OK: false, Message: "The offering could not be settled. Please try again."}
	}
	f.finish(gen, res)
}

// finish applies a settlement result. Results that arrive after Close, or
// for a superseded generation, are discarded: a late response must never
// force a transition on a flow the user has already left.
func (f *Flow) finish(gen uint64, res SettlementResult) {
	f.mu.Lock()
	if f.closed || gen != f.gen || f.state != StateProcessing {
		f.mu.Unlock()
		logger.LogWarn("Flow %s: discarding late settlement result (ok=%v)", f.ID, res.OK)
		return
	}

	if res.OK {
		f.state = StateCompleted
	} else {
		f.state = StateSelecting
		msg := res.Message
		if msg == "" {
			msg = "Settlement was declined."
		}
		f.notice = &Notice{Message: msg, ExpiresAt: f.now().Add(noticeTTL)}
	}
	f.touch()
	st := f.state
	cb := f.onTransition
	f.mu.Unlock()

	logger.LogInfo("Flow %s: settlement finished, state=%s", f.ID, st)
	if cb != nil {
		cb(st)
	}
}

// Notice returns the current failure notice, or nil once it has been
// dismissed or has expired.
func (f *Flow) Notice() *Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notice == nil {
		return nil
	}
	if !f.now().Before(f.notice.ExpiresAt) {
		f.notice = nil
		return nil
	}
	n := *f.notice
	return &n
}

// DismissNotice drops the failure notice on explicit user action.
func (f *Flow) DismissNotice() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notice = nil
	f.touch()
}

// GoToMarket signals the navigation sink that the user wants to acquire more
// offerings. No flow state changes; the wallet must be refreshed on return.
func (f *Flow) GoToMarket() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	sel, nav := f.selector, f.nav
	f.touch()
	f.mu.Unlock()

	sel.GoToMarket(nav)
	return nil
}

// Back leaves the flow. Only available while selecting; it delegates to the
// navigation sink and is not itself a state transition.
func (f *Flow) Back() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	if f.state != StateSelecting {
		f.mu.Unlock()
		return ErrNotSelecting
	}
	nav := f.nav
	f.touch()
	f.mu.Unlock()

	if nav != nil {
		nav.LeaveFlow()
	}
	return nil
}

// ExitHome is the single exit action offered on the completion screen.
func (f *Flow) ExitHome() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	if f.state != StateCompleted {
		f.mu.Unlock()
		return ErrNotCompleted
	}
	nav := f.nav
	f.touch()
	f.mu.Unlock()

	if nav != nil {
		nav.GoHome()
	}
	return nil
}

// Close detaches the flow when the surrounding consultation session ends.
// Any in-flight settlement result arriving afterwards is discarded.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.gen++
}
