/*
handlers.go - HTTP API handlers for the compliance engine

PURPOSE:

	Exposes the calculator, state machine, audit log, and report exporter via
	REST. Handles HTTP request/response, JSON serialization, and delegates to
	domain logic.

ENDPOINTS:

	Calculator (pure, no state):
	  POST   /api/calc/eua-cost           Price ETS allowance exposure
	  POST   /api/calc/fueleu-settlement  Price a FuelEU compliance balance
	  POST   /api/calc/penalty-vs-pool    Penalty vs pool recommendation
	  POST   /api/calc/tcc                Total Cost of Compliance

	Positions and transitions:
	  POST   /api/ships/{shipId}/positions/{year}              Open position
	  GET    /api/ships/{shipId}/positions/{year}              Read position
	  POST   /api/ships/{shipId}/positions/{year}/bank         Bank surplus
	  POST   /api/ships/{shipId}/positions/{year}/use-bank     Draw banked
	  POST   /api/ships/{shipId}/positions/{year}/borrow       Borrow ahead
	  POST   /api/ships/{shipId}/positions/{year}/roll-forward Next year

	Pooling:
	  POST   /api/pools/rfqs                                  Open RFQ
	  GET    /api/pools/rfqs?shipId=&year=                    List RFQs
	  GET    /api/pools/rfqs/{rfqId}                          Read RFQ
	  POST   /api/pools/rfqs/{rfqId}/offers                   Submit offer
	  POST   /api/pools/rfqs/{rfqId}/offers/{offerId}/accept  Accept offer

	Hedging, audit, reporting:
	  POST   /api/hedges                  Record executed hedge
	  GET    /api/decisions?from=&to=     Decisions in range
	  GET    /api/decisions/{id}          One decision with postings
	  GET    /api/reports/compliance?from=&to=&format=  Regulator report
	  GET    /api/policies                Registered policy versions

ERROR HANDLING:

	Errors map to JSON bodies with appropriate HTTP status:
	- 400: Invalid facts, malformed input, decision validation
	- 404: Position or RFQ not found
	- 409: Rejected transition, store revision conflict
	- 422: No effective policy version
	- 500: Reconciliation mismatch, storage failure

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nautilus/compliance-engine/audit"
	"github.com/nautilus/compliance-engine/compliance"
	"github.com/nautilus/compliance-engine/engine"
	"github.com/nautilus/compliance-engine/export"
	"github.com/nautilus/compliance-engine/policy"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Machine  *engine.Machine
	Store    engine.Store
	Policies *policy.Registry
	Exporter *export.Exporter
	Log      *zap.Logger
}

// NewHandler creates a new handler over the given machine and store.
func NewHandler(machine *engine.Machine, store engine.Store, policies *policy.Registry, exporter *export.Exporter, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Machine:  machine,
		Store:    store,
		Policies: policies,
		Exporter: exporter,
		Log:      log,
	}
}

// calculator resolves the currently effective policy and binds a calculator
// to it.
func (h *Handler) calculator() (*compliance.Calculator, error) {
	cfg, err := h.Policies.Resolve(time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return compliance.NewCalculator(cfg), nil
}

// =============================================================================
// CALCULATOR HANDLERS
// =============================================================================

// EUACost prices ETS allowance exposure.
func (h *Handler) EUACost(w http.ResponseWriter, r *http.Request) {
	var req EUACostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	calc, err := h.calculator()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	co2, err := parseDecimal("co2Tonnes", req.CO2Tonnes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	price, err := parseDecimal("euaPricePerTonne", req.EUAPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = calc.Policy.Currency
	}

	// Covered share comes either directly or from the worst leg.
	var share decimal.Decimal
	switch {
	case req.CoveredSharePct != "":
		share, err = parseDecimal("coveredSharePct", req.CoveredSharePct)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	case len(req.Legs) > 0:
		for _, leg := range req.Legs {
			s, err := calc.ETSCoveredShare(compliance.LegType(leg))
			if err != nil {
				h.writeDomainError(w, err)
				return
			}
			if s.GreaterThan(share) {
				share = s
			}
		}
	default:
		writeError(w, http.StatusBadRequest, "either coveredSharePct or legs is required", nil)
		return
	}

	cost, err := calc.EUACost(co2, share, compliance.NewMoney(price, currency), req.Year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CostDTO{Amount: cost.Amount.String(), Currency: cost.Currency})
}

// FuelEUSettlement prices a compliance balance at settlement time.
func (h *Handler) FuelEUSettlement(w http.ResponseWriter, r *http.Request) {
	var req FuelEUSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	calc, err := h.calculator()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	balance, err := parseDecimal("complianceBalanceGco2e", req.BalanceGco2e)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	energy, err := parseDecimal("energyGJ", req.EnergyGJ)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	var quote *compliance.PriceQuote
	if req.PoolPrice != nil {
		price, err := parseDecimal("poolPricePerTonne", *req.PoolPrice)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		currency := req.Currency
		if currency == "" {
			currency = calc.Policy.Currency
		}
		quote = &compliance.PriceQuote{PricePerTonne: compliance.NewMoney(price, currency)}
	}

	cost, err := calc.FuelEUSettlementCost(balance, energy, quote)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CostDTO{Amount: cost.Amount.String(), Currency: cost.Currency})
}

// PenaltyVsPool compares penalty payment against pool purchase.
func (h *Handler) PenaltyVsPool(w http.ResponseWriter, r *http.Request) {
	var req PenaltyVsPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	calc, err := h.calculator()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	energy, err := parseDecimal("deficitEnergyGJ", req.DeficitEnergyGJ)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	penalty, err := parseDecimal("penaltyPerGJ", req.PenaltyPerGJ)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	pool, err := parseDecimal("poolOfferPerGJ", req.PoolOfferPerGJ)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	rec, err := calc.PenaltyVsPoolDecision(energy, penalty, pool)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecommendationDTO{
		Recommendation: string(rec),
		PenaltyCost:    energy.Mul(penalty).String(),
		PoolCost:       energy.Mul(pool).String(),
	})
}

// TCC aggregates the cost components of one voyage.
func (h *Handler) TCC(w http.ResponseWriter, r *http.Request) {
	var req TCCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	calc, err := h.calculator()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = calc.Policy.Currency
	}

	components := make([]compliance.Money, 0, 4)
	for _, in := range []struct {
		field string
		value string
	}{
		{"fuelCost", req.FuelCost},
		{"etsCost", req.ETSCost},
		{"fueleuSettlement", req.FuelEUSettlement},
		{"hedgePnl", req.HedgePnL},
	} {
		d, err := parseDecimal(in.field, in.value)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		components = append(components, compliance.NewMoney(d, currency))
	}

	total := calc.TotalCostOfCompliance(components[0], components[1], components[2], components[3])
	writeJSON(w, http.StatusOK, CostDTO{Amount: total.Amount.String(), Currency: total.Currency})
}

// =============================================================================
// POSITION HANDLERS
// =============================================================================

// OpenPosition creates the position for a ship/year.
func (h *Handler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	shipID, year, ok := h.positionKey(w, r)
	if !ok {
		return
	}

	var req OpenPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	net, err := parseDecimal("netBalanceGco2e", req.NetBalanceGco2e)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	obligation, err := parseDecimal("annualObligationGco2e", req.AnnualObligationGco2e)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	pos, err := h.Machine.OpenPosition(r.Context(), shipID, year, net, obligation)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPositionDTO(pos))
}

// GetPosition reads the current position for a ship/year.
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	shipID, year, ok := h.positionKey(w, r)
	if !ok {
		return
	}

	pos, err := h.Machine.Position(r.Context(), shipID, year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionDTO(pos))
}

// Bank moves current-year surplus into the bank.
func (h *Handler) Bank(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Machine.Bank)
}

// UseBank draws banked surplus against the current-year deficit.
func (h *Handler) UseBank(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Machine.UseBank)
}

// Borrow advances allowance from the next compliance year.
func (h *Handler) Borrow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Machine.Borrow)
}

type transitionFunc func(ctx context.Context, shipID compliance.ShipID, year int, amount decimal.Decimal, actor string) (compliance.Position, audit.Decision, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply transitionFunc) {
	shipID, year, ok := h.positionKey(w, r)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseDecimal("amountGco2e", req.AmountGco2e)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	pos, dec, err := apply(r.Context(), shipID, year, amount, req.ActingUser)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Log.Info("compliance transition applied",
		zap.String("ship_id", string(shipID)),
		zap.Int("year", year),
		zap.String("decision_id", dec.ID),
		zap.String("decision_type", string(dec.Type)))
	writeJSON(w, http.StatusOK, TransitionResponse{
		Position: toPositionDTO(pos),
		Decision: toDecisionDTO(dec),
	})
}

// RollForward supersedes a year's position with the next year's.
func (h *Handler) RollForward(w http.ResponseWriter, r *http.Request) {
	shipID, year, ok := h.positionKey(w, r)
	if !ok {
		return
	}

	var req RollForwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	obligation, err := parseDecimal("nextAnnualObligationGco2e", req.NextAnnualObligationGco2e)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	pos, err := h.Machine.RollForward(r.Context(), shipID, year, obligation)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionDTO(pos))
}

func (h *Handler) positionKey(w http.ResponseWriter, r *http.Request) (compliance.ShipID, int, bool) {
	shipID := chi.URLParam(r, "shipId")
	if shipID == "" {
		writeError(w, http.StatusBadRequest, "missing ship id", nil)
		return "", 0, false
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year", err)
		return "", 0, false
	}
	return compliance.ShipID(shipID), year, true
}

// =============================================================================
// POOLING HANDLERS
// =============================================================================

// CreateRFQ opens a pooling request.
func (h *Handler) CreateRFQ(w http.ResponseWriter, r *http.Request) {
	var req CreateRFQRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	need, err := parseDecimal("needGco2e", req.NeedGco2e)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	rfq, err := h.Machine.CreateRFQ(r.Context(), compliance.ShipID(req.ShipID), req.Year, need, req.Notes)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRFQDTO(rfq))
}

// ListRFQs lists pooling requests for a ship/year.
func (h *Handler) ListRFQs(w http.ResponseWriter, r *http.Request) {
	shipID := r.URL.Query().Get("shipId")
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if shipID == "" || err != nil {
		writeError(w, http.StatusBadRequest, "shipId and year query parameters are required", nil)
		return
	}

	rfqs, err := h.Store.ListRFQs(r.Context(), compliance.ShipID(shipID), year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]RFQDTO, len(rfqs))
	for i, rfq := range rfqs {
		dtos[i] = toRFQDTO(rfq)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRFQ reads one pooling request with its offers.
func (h *Handler) GetRFQ(w http.ResponseWriter, r *http.Request) {
	rfq, err := h.Store.GetRFQ(r.Context(), chi.URLParam(r, "rfqId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRFQDTO(rfq))
}

// SubmitOffer attaches a counterparty offer to an RFQ.
func (h *Handler) SubmitOffer(w http.ResponseWriter, r *http.Request) {
	rfqID := chi.URLParam(r, "rfqId")

	var req SubmitOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	offered, err := parseDecimal("offeredGco2e", req.OfferedGco2e)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	price, err := parseDecimal("pricePerTonne", req.PricePerTonne)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = "EUR"
	}

	offer := compliance.PoolOffer{
		Counterparty:  req.Counterparty,
		OfferedGco2e:  offered,
		PricePerTonne: compliance.NewMoney(price, currency),
	}
	if req.ValidUntil != "" {
		offer.ValidUntil, err = time.Parse(time.RFC3339, req.ValidUntil)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid validUntil timestamp", err)
			return
		}
	}

	rfq, err := h.Machine.SubmitOffer(r.Context(), rfqID, offer)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRFQDTO(rfq))
}

// AcceptOffer accepts one offer, declines the rest, and pools the ship.
func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	rfqID := chi.URLParam(r, "rfqId")
	offerID := chi.URLParam(r, "offerId")

	var req AcceptOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	pos, dec, err := h.Machine.AcceptOffer(r.Context(), rfqID, offerID, req.ActingUser)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Log.Info("pool offer accepted",
		zap.String("rfq_id", rfqID),
		zap.String("offer_id", offerID),
		zap.String("decision_id", dec.ID))
	writeJSON(w, http.StatusOK, TransitionResponse{
		Position: toPositionDTO(pos),
		Decision: toDecisionDTO(dec),
	})
}

// =============================================================================
// HEDGE HANDLERS
// =============================================================================

// ExecuteHedge records an executed EUA hedge with its ledger posting.
func (h *Handler) ExecuteHedge(w http.ResponseWriter, r *http.Request) {
	var req ExecuteHedgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	qty, err := parseDecimal("quantityTco2", req.QuantityTCO2)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	price, err := parseDecimal("pricePerTonne", req.PricePerTonne)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = "EUR"
	}

	payload := audit.HedgeExecutePayload{
		VoyageID:      compliance.VoyageID(req.VoyageID),
		Side:          audit.HedgeSide(req.Side),
		QuantityTCO2:  qty,
		PricePerTonne: compliance.NewMoney(price, currency),
		ExternalRef:   req.ExternalRef,
	}
	dec, err := h.Machine.ExecuteHedge(r.Context(), compliance.ShipID(req.ShipID), req.Year, payload, req.ActingUser)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDecisionDTO(dec))
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// ListDecisions returns decisions in a time range, oldest first.
func (h *Handler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	decisions, err := h.Store.DecisionsInRange(r.Context(), from, to)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]DecisionDTO, len(decisions))
	for i, d := range decisions {
		dtos[i] = toDecisionDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDecision returns one decision with its ledger postings.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dec, err := h.Store.GetDecision(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Decision not found", err)
		return
	}
	entries, err := h.Store.EntriesByReference(r.Context(), audit.RefDecision, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DecisionDetailDTO{
		Decision: toDecisionDTO(dec),
		Entries:  toEntryDTOs(entries),
	})
}

// =============================================================================
// REPORT AND POLICY HANDLERS
// =============================================================================

// ComplianceReport exports the regulator-facing report for a date range.
func (h *Handler) ComplianceReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	doc, err := h.Exporter.Export(r.Context(), from, to, format)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	switch format {
	case export.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	case export.FormatXML:
		w.Header().Set("Content-Type", "application/xml")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// ListPolicies returns all registered policy versions, oldest first.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	versions := h.Policies.Versions()
	dtos := make([]PolicyDTO, len(versions))
	for i, cfg := range versions {
		dtos[i] = toPolicyDTO(cfg)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("missing %s", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %q", field, s)
	}
	return d, nil
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid or missing from timestamp")
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid or missing to timestamp")
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to precedes from")
	}
	return from, to, nil
}

// writeDomainError maps domain errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var verr *audit.ValidationError

	switch {
	case errors.Is(err, compliance.ErrInvalidFacts):
		writeError(w, http.StatusBadRequest, "Invalid compliance facts", err)
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "Decision failed validation", err)
	case errors.Is(err, compliance.ErrPositionNotFound):
		writeError(w, http.StatusNotFound, "Position not found", err)
	case errors.Is(err, compliance.ErrRFQNotFound):
		writeError(w, http.StatusNotFound, "RFQ not found", err)
	case errors.Is(err, compliance.ErrTransitionRejected):
		writeError(w, http.StatusConflict, "Transition rejected", err)
	case errors.Is(err, compliance.ErrStoreConflict):
		writeError(w, http.StatusConflict, "Concurrent modification, retry", err)
	case errors.Is(err, policy.ErrNoEffectivePolicy):
		writeError(w, http.StatusUnprocessableEntity, "No effective policy version", err)
	default:
		h.Log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
