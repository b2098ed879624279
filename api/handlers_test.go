package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilus/compliance-engine/api"
	"github.com/nautilus/compliance-engine/engine"
	"github.com/nautilus/compliance-engine/export"
	"github.com/nautilus/compliance-engine/policy"
	"github.com/nautilus/compliance-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	registry, err := policy.NewRegistry(policy.Default())
	require.NoError(t, err)

	store := memory.New()
	machine := engine.NewMachine(store, registry)

	// Decision ids derive from the clock, so it must move between calls.
	base := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	var ticks int64
	machine.Clock = func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&ticks, 1)))
	}

	exporter := export.NewExporter(store, store, "EUR")
	h := api.NewHandler(machine, store, registry, exporter, nil)
	return api.NewRouter(h)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// =============================================================================
// CALCULATOR ENDPOINTS
// =============================================================================

func TestEUACost_IntraEUVoyage(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/calc/eua-cost", map[string]any{
		"co2Tonnes":        "248.9",
		"coveredSharePct":  "100",
		"year":             2025,
		"euaPricePerTonne": "76",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cost := decodeBody[api.CostDTO](t, rec)
	assert.Equal(t, "7566.56", cost.Amount)
	assert.Equal(t, "EUR", cost.Currency)
}

func TestEUACost_WorstLegDerivesShare(t *testing.T) {
	router := newTestRouter(t)

	// extra (50%) and berth (100%): the worst leg wins.
	rec := doJSON(t, router, http.MethodPost, "/api/calc/eua-cost", map[string]any{
		"co2Tonnes":        "100",
		"legs":             []string{"extra", "berth"},
		"year":             2025,
		"euaPricePerTonne": "76",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cost := decodeBody[api.CostDTO](t, rec)
	assert.Equal(t, "3040", cost.Amount) // 100 x 100% x 40% x 76
}

func TestEUACost_UnrecognizedLegRejected(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/calc/eua-cost", map[string]any{
		"co2Tonnes":        "100",
		"legs":             []string{"coastal"},
		"year":             2025,
		"euaPricePerTonne": "76",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	errResp := decodeBody[api.ErrorResponse](t, rec)
	assert.Equal(t, "Invalid compliance facts", errResp.Error)
}

func TestEUACost_MissingShareAndLegs(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/calc/eua-cost", map[string]any{
		"co2Tonnes":        "100",
		"year":             2025,
		"euaPricePerTonne": "76",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFuelEUSettlement_DeficitWithCheaperPool(t *testing.T) {
	router := newTestRouter(t)

	pool := "58"
	rec := doJSON(t, router, http.MethodPost, "/api/calc/fueleu-settlement", map[string]any{
		"complianceBalanceGco2e": "-5000000",
		"energyGJ":               "8420",
		"poolPricePerTonne":      pool,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cost := decodeBody[api.CostDTO](t, rec)
	// Pool cost 5 t x 58 = 290 undercuts the 505200 penalty.
	assert.Equal(t, "290", cost.Amount)
}

func TestPenaltyVsPool_ClearWinnerAndBand(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/calc/penalty-vs-pool", map[string]any{
		"deficitEnergyGJ": "5000",
		"penaltyPerGJ":    "60",
		"poolOfferPerGJ":  "50",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeBody[api.RecommendationDTO](t, rec)
	assert.Equal(t, "POOL", out.Recommendation)
	assert.Equal(t, "300000", out.PenaltyCost)
	assert.Equal(t, "250000", out.PoolCost)

	// A 10000 saving on a 300000 penalty sits inside the 5% band.
	rec = doJSON(t, router, http.MethodPost, "/api/calc/penalty-vs-pool", map[string]any{
		"deficitEnergyGJ": "5000",
		"penaltyPerGJ":    "60",
		"poolOfferPerGJ":  "58",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	out = decodeBody[api.RecommendationDTO](t, rec)
	assert.Equal(t, "INDIFFERENT", out.Recommendation)
}

func TestTCC_VoyageScenario(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/calc/tcc", map[string]any{
		"fuelCost":         "540000",
		"etsCost":          "7566.56",
		"fueleuSettlement": "25480",
		"hedgePnl":         "-2500",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cost := decodeBody[api.CostDTO](t, rec)
	assert.Equal(t, "570546.56", cost.Amount)
}

func TestCalc_NoEffectivePolicy(t *testing.T) {
	// A registry whose only version takes effect in the future resolves
	// nothing for today's requests.
	future := policy.Default()
	future.EffectiveAt = time.Date(2099, time.January, 1, 0, 0, 0, 0, time.UTC)
	registry, err := policy.NewRegistry(future)
	require.NoError(t, err)

	store := memory.New()
	machine := engine.NewMachine(store, registry)
	h := api.NewHandler(machine, store, registry, export.NewExporter(store, store, "EUR"), nil)
	router := api.NewRouter(h)

	rec := doJSON(t, router, http.MethodPost, "/api/calc/tcc", map[string]any{
		"fuelCost":         "1",
		"etsCost":          "1",
		"fueleuSettlement": "1",
		"hedgePnl":         "1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// =============================================================================
// POSITION ENDPOINTS
// =============================================================================

func openPosition(t *testing.T, router http.Handler, ship string, net string) api.PositionDTO {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/ships/%s/positions/2025", ship), map[string]any{
		"netBalanceGco2e":       net,
		"annualObligationGco2e": "100000000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[api.PositionDTO](t, rec)
}

func TestOpenAndGetPosition(t *testing.T) {
	router := newTestRouter(t)

	created := openPosition(t, router, "imo-9811000", "-5200000")
	assert.Equal(t, "imo-9811000", created.ShipID)
	assert.Equal(t, 2025, created.Year)
	assert.Equal(t, "-5200000", created.NetBalanceGco2e)
	assert.Equal(t, "2000000", created.BorrowLimitGco2e) // 2% of the obligation
	assert.Equal(t, 1, created.Revision)

	rec := doJSON(t, router, http.MethodGet, "/api/ships/imo-9811000/positions/2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[api.PositionDTO](t, rec)
	assert.Equal(t, created, got)
}

func TestGetPosition_NotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/ships/ghost/positions/2025", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBank_SurplusThenOverdraw(t *testing.T) {
	router := newTestRouter(t)
	openPosition(t, router, "imo-1", "2000000")

	rec := doJSON(t, router, http.MethodPost, "/api/ships/imo-1/positions/2025/bank", map[string]any{
		"amountGco2e": "500000",
		"actingUser":  "ops@fleet",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeBody[api.TransitionResponse](t, rec)
	assert.Equal(t, "500000", out.Position.BankedGco2e)
	assert.Equal(t, "1500000", out.Position.NetBalanceGco2e)
	assert.Equal(t, "BANK", out.Decision.Type)
	assert.Equal(t, "ops@fleet", out.Decision.ActingUser)
	assert.NotEmpty(t, out.Decision.ID)

	// Banking more than the remaining surplus is a rejected transition.
	rec = doJSON(t, router, http.MethodPost, "/api/ships/imo-1/positions/2025/bank", map[string]any{
		"amountGco2e": "5000000",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	errResp := decodeBody[api.ErrorResponse](t, rec)
	assert.Equal(t, "Transition rejected", errResp.Error)
}

func TestTransition_MalformedAmount(t *testing.T) {
	router := newTestRouter(t)
	openPosition(t, router, "imo-1", "2000000")

	rec := doJSON(t, router, http.MethodPost, "/api/ships/imo-1/positions/2025/bank", map[string]any{
		"amountGco2e": "lots",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRollForward(t *testing.T) {
	router := newTestRouter(t)
	openPosition(t, router, "imo-1", "-1000000")

	rec := doJSON(t, router, http.MethodPost, "/api/ships/imo-1/positions/2025/roll-forward", map[string]any{
		"nextAnnualObligationGco2e": "120000000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	next := decodeBody[api.PositionDTO](t, rec)
	assert.Equal(t, 2026, next.Year)
	assert.Equal(t, "2400000", next.BorrowLimitGco2e)
}

// =============================================================================
// POOLING AND HEDGING ENDPOINTS
// =============================================================================

func TestPoolFlow_EndToEnd(t *testing.T) {
	router := newTestRouter(t)
	openPosition(t, router, "imo-1", "-5200000")

	rec := doJSON(t, router, http.MethodPost, "/api/pools/rfqs", map[string]any{
		"shipId":    "imo-1",
		"year":      2025,
		"needGco2e": "2000000",
		"notes":     "June deficit",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rfq := decodeBody[api.RFQDTO](t, rec)
	assert.Equal(t, "OPEN", rfq.Status)

	rec = doJSON(t, router, http.MethodPost, "/api/pools/rfqs/"+rfq.ID+"/offers", map[string]any{
		"counterparty":  "Meridian Shipping",
		"offeredGco2e":  "2000000",
		"pricePerTonne": "180",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	withOffer := decodeBody[api.RFQDTO](t, rec)
	require.Len(t, withOffer.Offers, 1)
	offerID := withOffer.Offers[0].ID

	rec = doJSON(t, router, http.MethodPost, "/api/pools/rfqs/"+rfq.ID+"/offers/"+offerID+"/accept", map[string]any{
		"actingUser": "ops@fleet",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody[api.TransitionResponse](t, rec)
	assert.True(t, out.Position.InPool)
	assert.Equal(t, "-3200000", out.Position.NetBalanceGco2e)
	assert.Equal(t, "POOL_ACCEPT", out.Decision.Type)

	// The decision detail exposes the ledger posting for the fill.
	rec = doJSON(t, router, http.MethodGet, "/api/decisions/"+out.Decision.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody[api.DecisionDetailDTO](t, rec)
	require.Len(t, detail.Entries, 1)
	assert.Equal(t, "-360", detail.Entries[0].Amount)

	// Listing surfaces the filled RFQ.
	rec = doJSON(t, router, http.MethodGet, "/api/pools/rfqs?shipId=imo-1&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rfqs := decodeBody[[]api.RFQDTO](t, rec)
	require.Len(t, rfqs, 1)
	assert.Equal(t, "FILLED", rfqs[0].Status)
}

func TestAcceptOffer_UnknownRFQ(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/pools/rfqs/rfq-ghost/offers/offer-1/accept", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteHedge(t *testing.T) {
	router := newTestRouter(t)
	openPosition(t, router, "imo-1", "-5200000")

	rec := doJSON(t, router, http.MethodPost, "/api/hedges", map[string]any{
		"shipId":        "imo-1",
		"year":          2025,
		"voyageId":      "voy-42",
		"side":          "BUY",
		"quantityTco2":  "100",
		"pricePerTonne": "76",
		"externalRef":   "ICE-20250701-001",
		"actingUser":    "trader@fleet",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	dec := decodeBody[api.DecisionDTO](t, rec)
	assert.Equal(t, "HEDGE_EXECUTE", dec.Type)

	rec = doJSON(t, router, http.MethodGet, "/api/decisions/"+dec.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody[api.DecisionDetailDTO](t, rec)
	require.Len(t, detail.Entries, 1)
	assert.Equal(t, "-7600", detail.Entries[0].Amount)
}

// =============================================================================
// AUDIT, REPORT, AND POLICY ENDPOINTS
// =============================================================================

func TestListDecisions_RangeFilter(t *testing.T) {
	router := newTestRouter(t)
	openPosition(t, router, "imo-1", "2000000")

	rec := doJSON(t, router, http.MethodPost, "/api/ships/imo-1/positions/2025/bank", map[string]any{
		"amountGco2e": "500000",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet,
		"/api/decisions?from=2025-07-01T00:00:00Z&to=2025-07-02T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decisions := decodeBody[[]api.DecisionDTO](t, rec)
	require.Len(t, decisions, 1)
	assert.Equal(t, "BANK", decisions[0].Type)

	// A range before the clock's epoch is empty.
	rec = doJSON(t, router, http.MethodGet,
		"/api/decisions?from=2024-01-01T00:00:00Z&to=2024-12-31T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]api.DecisionDTO](t, rec))
}

func TestListDecisions_InvalidRange(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/decisions?from=yesterday&to=today", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet,
		"/api/decisions?from=2025-07-02T00:00:00Z&to=2025-07-01T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComplianceReport_Formats(t *testing.T) {
	router := newTestRouter(t)
	openPosition(t, router, "imo-1", "2000000")
	rec := doJSON(t, router, http.MethodPost, "/api/ships/imo-1/positions/2025/bank", map[string]any{
		"amountGco2e": "500000",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	base := "/api/reports/compliance?from=2025-07-01T00:00:00Z&to=2025-07-02T00:00:00Z"

	rec = doJSON(t, router, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"BANK"`)

	rec = doJSON(t, router, http.MethodGet, base+"&format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	rec = doJSON(t, router, http.MethodGet, base+"&format=xml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<complianceReport>")

	rec = doJSON(t, router, http.MethodGet, base+"&format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPolicies(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/policies", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	policies := decodeBody[[]api.PolicyDTO](t, rec)
	require.Len(t, policies, 1)
	assert.Equal(t, "2025.1", policies[0].Version)
	assert.Equal(t, "40", policies[0].ETSRampByYear["2025"])
	assert.Equal(t, "EUR", policies[0].Currency)
}
