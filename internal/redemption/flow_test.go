// internal/redemption/flow_test.go
package redemption

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oraclebackend/internal/catalog"
	"oraclebackend/internal/offering"
)

// stubSettler blocks each settlement call until a result is pushed onto the
// results channel, so tests control exactly when settlement resolves.
type stubSettler struct {
	mu      sync.Mutex
	calls   int
	results chan SettlementResult
	err     error
}

func newStubSettler() *stubSettler {
	return &stubSettler{results: make(chan SettlementResult, 4)}
}

func (s *stubSettler) Settle(_ context.Context, _ string, _ offering.Alternative) (SettlementResult, error) {
	s.mu.Lock()
	s.calls++
	err := s.err
	s.mu.Unlock()

	if err != nil {
		return SettlementResult{}, err
	}
	return <-s.results, nil
}

func (s *stubSettler) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubNav struct {
	mu     sync.Mutex
	market int
	leave  int
	home   int
}

func (n *stubNav) GoToMarket() { n.mu.Lock(); n.market++; n.mu.Unlock() }
func (n *stubNav) LeaveFlow()  { n.mu.Lock(); n.leave++; n.mu.Unlock() }
func (n *stubNav) GoHome()     { n.mu.Lock(); n.home++; n.mu.Unlock() }

func newTestFlow(t *testing.T, walletQty int) (*Flow, *stubSettler, *stubNav, chan State) {
	t.Helper()

	sel := offering.NewSelector(
		[]offering.Alternative{
			{Category: offering.CategoryAnimal, OfferingID: "chicken", Quantity: 2},
			{Category: offering.CategoryVegetal, OfferingID: "kola", Quantity: 4},
		},
		offering.BuildWallet([]offering.WalletEntry{{OfferingID: "chicken", Quantity: walletQty}}),
	)

	settler := newStubSettler()
	nav := &stubNav{}
	ix := catalog.BuildIndex([]catalog.Entry{{ID: "chicken", Name: "Chicken", Icon: "🐔", Price: 1500}})
	f := NewFlow("cons-7", "user-1", sel, settler, nav, ix)

	transitions := make(chan State, 8)
	f.OnTransition(func(st State) { transitions <- st })
	return f, settler, nav, transitions
}

func waitState(t *testing.T, ch chan State, want State) {
	t.Helper()
	select {
	case got := <-ch:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for transition to %s", want)
	}
}

func TestFlowStartsSelecting(t *testing.T) {
	f, _, _, _ := newTestFlow(t, 0)
	assert.Equal(t, StateSelecting, f.State())
	assert.False(t, f.CanProceed())
}

func TestSubmitRejectedWithoutSufficientSelection(t *testing.T) {
	f, settler, _, _ := newTestFlow(t, 1) // 1 of 2 chickens

	// Nothing selected.
	err := f.Submit(context.Background())
	require.ErrorIs(t, err, ErrCannotProceed)

	// Selected but insufficient.
	require.NoError(t, f.Select("chicken"))
	err = f.Submit(context.Background())
	require.ErrorIs(t, err, ErrCannotProceed)

	assert.Equal(t, StateSelecting, f.State())
	assert.Zero(t, settler.callCount(), "settlement must not be invoked")
}

func TestSubmitSuccessCompletes(t *testing.T) {
	f, settler, nav, transitions := newTestFlow(t, 3)
	require.NoError(t, f.Select("chicken"))
	require.True(t, f.CanProceed())

	require.NoError(t, f.Submit(context.Background()))
	waitState(t, transitions, StateProcessing)

	settler.results <- SettlementResult{OK: true}
	waitState(t, transitions, StateCompleted)

	assert.Equal(t, StateCompleted, f.State())
	assert.True(t, f.State().Terminal())
	assert.Nil(t, f.Notice())

	// Completion offers a single exit back home.
	require.NoError(t, f.ExitHome())
	assert.Equal(t, 1, nav.home)

	// No fresh submission from a completed flow.
	err := f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotSelecting)
}

func TestSubmitFailureReturnsToSelectingWithSelection(t *testing.T) {
	f, settler, _, transitions := newTestFlow(t, 3)
	require.NoError(t, f.Select("chicken"))

	require.NoError(t, f.Submit(context.Background()))
	waitState(t, transitions, StateProcessing)

	settler.results <- SettlementResult{OK: false, Message: "insufficient funds on re-validation"}
	waitState(t, transitions, StateSelecting)

	// The user retries without re-choosing.
	v := f.View()
	assert.Equal(t, StateSelecting, v.State)
	assert.Equal(t, "chicken", v.SelectedID)
	assert.True(t, v.CanProceed)

	n := f.Notice()
	require.NotNil(t, n)
	assert.Equal(t, "insufficient funds on re-validation", n.Message)

	// Retry succeeds and clears the notice on submit.
	require.NoError(t, f.Submit(context.Background()))
	waitState(t, transitions, StateProcessing)
	assert.Nil(t, f.Notice())
	settler.results <- SettlementResult{OK: true}
	waitState(t, transitions, StateCompleted)
	assert.Equal(t, 2, settler.callCount())
}

func TestSettlerErrorTreatedAsFailure(t *testing.T) {
	f, settler, _, transitions := newTestFlow(t, 3)
	settler.err = errors.New("connection reset")
	require.NoError(t, f.Select("chicken"))

	require.NoError(t, f.Submit(context.Background()))
	waitState(t, transitions, StateProcessing)
	waitState(t, transitions, StateSelecting)

	n := f.Notice()
	require.NotNil(t, n)
	assert.Contains(t, n.Message, "could not be settled")
	assert.Equal(t, "chicken", f.View().SelectedID)
}

func TestRepeatSubmitWhileProcessingIgnored(t *testing.T) {
	f, settler, _, transitions := newTestFlow(t, 3)
	require.NoError(t, f.Select("chicken"))

	require.NoError(t, f.Submit(context.Background()))
	waitState(t, transitions, StateProcessing)

	// Settlement has not resolved yet; the duplicate submit must not reach
	// the settler.
	err := f.Submit(context.Background())
	require.ErrorIs(t, err, ErrNotSelecting)
	assert.Equal(t, StateProcessing, f.State())

	settler.results <- SettlementResult{OK: true}
	waitState(t, transitions, StateCompleted)
	assert.Equal(t, 1, settler.callCount(), "exactly one settlement call per user action")
}

func TestLateresultAfterCloseDiscarded(t *testing.T) {
	f, settler, _, transitions := newTestFlow(t, 3)
	require.NoError(t, f.Select("chicken"))
	require.NoError(t, f.Submit(context.Background()))
	waitState(t, transitions, StateProcessing)

	// The user navigates away while settlement is in flight.
	f.Close()
	settler.results <- SettlementResult{OK: true}

	// The result is discarded: no transition to completed, ever.
	select {
	case st := <-transitions:
		t.Fatalf("unexpected transition to %s on a closed flow", st)
	case <-time.After(100 * time.Millisecond):
	}
	assert.True(t, f.Closed())

	err := f.Select("kola")
	assert.ErrorIs(t, err, ErrFlowClosed)
}

func TestNoticeSelfExpires(t *testing.T) {
	f, settler, _, transitions := newTestFlow(t, 3)

	current := time.Now()
	var clockMu sync.Mutex
	f.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return current
	}

	require.NoError(t, f.Select("chicken"))
	require.NoError(t, f.Submit(context.Background()))
	waitState(t, transitions, StateProcessing)
	settler.results <- SettlementResult{OK: false, Message: "server error"}
	waitState(t, transitions, StateSelecting)

	require.NotNil(t, f.Notice())

	clockMu.Lock()
	current = current.Add(noticeTTL + time.Second)
	clockMu.Unlock()
	assert.Nil(t, f.Notice(), "notice should self-dismiss after the delay")
}

func TestDismissNotice(t *testing.T) {
	f, settler, _, transitions := newTestFlow(t, 3)
	require.NoError(t, f.Select("chicken"))
	require.NoError(t, f.Submit(context.Background()))
	waitState(t, transitions, StateProcessing)
	settler.results <- SettlementResult{OK: false, Message: "declined"}
	waitState(t, transitions, StateSelecting)

	require.NotNil(t, f.Notice())
	f.DismissNotice()
	assert.Nil(t, f.Notice())
}

func TestBackOnlyWhileSelecting(t *testing.T) {
	f, settler, nav, transitions := newTestFlow(t, 3)

	require.NoError(t, f.Back())
	assert.Equal(t, 1, nav.leave)
	// Back is a delegation, not a transition.
	assert.Equal(t, StateSelecting, f.State())

	require.NoError(t, f.Select("chicken"))
	require.NoError(t, f.Submit(context.Background()))
	waitState(t, transitions, StateProcessing)

	err := f.Back()
	assert.ErrorIs(t, err, ErrNotSelecting)
	assert.Equal(t, 1, nav.leave)

	settler.results <- SettlementResult{OK: true}
	waitState(t, transitions, StateCompleted)
	err = f.Back()
	assert.ErrorIs(t, err, ErrNotSelecting)
}

func TestExitHomeOnlyWhenCompleted(t *testing.T) {
	f, _, nav, _ := newTestFlow(t, 3)
	err := f.ExitHome()
	assert.ErrorIs(t, err, ErrNotCompleted)
	assert.Zero(t, nav.home)
}

func TestGoToMarketKeepsFlowState(t *testing.T) {
	f, _, nav, _ := newTestFlow(t, 1)
	require.NoError(t, f.Select("chicken"))

	require.NoError(t, f.GoToMarket())
	assert.Equal(t, 1, nav.market)
	assert.Equal(t, StateSelecting, f.State())
	assert.Equal(t, "chicken", f.View().SelectedID)

	// Back from the market with a refreshed wallet: sufficiency re-derived.
	require.NoError(t, f.UpdateWallet([]offering.WalletEntry{{OfferingID: "chicken", Quantity: 5}}))
	assert.True(t, f.CanProceed())
}

func TestViewResolvesCatalogAndSufficiency(t *testing.T) {
	f, _, _, _ := newTestFlow(t, 1)
	require.NoError(t, f.Select("chicken"))

	v := f.View()
	require.Len(t, v.Groups, 3)

	animals := v.Groups[offering.CategoryAnimal]
	require.Len(t, animals, 1)
	assert.Equal(t, "Chicken", animals[0].Name)
	assert.True(t, animals[0].InCatalog)
	assert.Equal(t, 1, animals[0].Owned)
	assert.False(t, animals[0].Sufficient)
	assert.True(t, animals[0].Selected)

	// kola is not in the test catalog: fallback rendering, never an error.
	veg := v.Groups[offering.CategoryVegetal]
	require.Len(t, veg, 1)
	assert.Equal(t, "Offering kola", veg[0].Name)
	assert.False(t, veg[0].InCatalog)
	assert.Equal(t, offering.CategoryVegetal.Glyph(), veg[0].Icon)
}

func TestRegistrySweep(t *testing.T) {
	reg := NewRegistry()

	idle, _, _, _ := newTestFlow(t, 3)
	reg.Add(idle)

	done, doneSettler, _, doneTransitions := newTestFlow(t, 3)
	require.NoError(t, done.Select("chicken"))
	require.NoError(t, done.Submit(context.Background()))
	waitState(t, doneTransitions, StateProcessing)
	doneSettler.results <- SettlementResult{OK: true}
	waitState(t, doneTransitions, StateCompleted)
	reg.Add(done)

	inflight, _, _, inflightTransitions := newTestFlow(t, 3)
	require.NoError(t, inflight.Select("chicken"))
	require.NoError(t, inflight.Submit(context.Background()))
	waitState(t, inflightTransitions, StateProcessing)
	reg.Add(inflight)

	// Far future: the idle selecting flow and the old completed flow are
	// swept; the in-flight one is kept.
	removed := reg.Sweep(time.Now().Add(24 * time.Hour))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Get(inflight.ID)
	assert.True(t, ok, "processing flows are never swept")

	// Swept flows are closed.
	assert.True(t, idle.Closed())
	assert.True(t, done.Closed())
}

func TestRemoveReleasesFlowSink(t *testing.T) {
	reg := NewRegistry()
	reg.OnRemove(releaseSink)

	abandoned, _, _, _ := newTestFlow(t, 3)
	swept, _, _, _ := newTestFlow(t, 3)
	for _, f := range []*Flow{abandoned, swept} {
		reg.Add(f)
		sinksMu.Lock()
		sinks[f.ID] = &signalSink{}
		sinksMu.Unlock()
	}

	hasSink := func(id string) bool {
		sinksMu.Lock()
		defer sinksMu.Unlock()
		_, ok := sinks[id]
		return ok
	}

	// Explicit removal releases the sink.
	reg.Remove(abandoned.ID)
	assert.False(t, hasSink(abandoned.ID))

	// So does a janitor sweep; sinks must never outlive their flow.
	removed := reg.Sweep(time.Now().Add(24 * time.Hour))
	assert.Equal(t, 1, removed)
	assert.False(t, hasSink(swept.ID))
}
