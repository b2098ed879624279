/*
Package export assembles regulator-facing compliance report packages.

PURPOSE:

	A report is a period's decisions, each with its ledger postings, its exact
	policy version, and a short narrative. JSON is the baseline; CSV and XML
	are lossless projections of the same fields.

DETERMINISM:

	Re-exporting the same date range against unchanged data yields
	byte-identical output. That means:
	- Stable ordering: decisions and entries sorted by (timestamp, id),
	  enforced by the store contracts
	- No generation timestamp, hostname, or any other run-varying field
	- All decimals rendered from their canonical string form

SEE ALSO:
  - audit/decision.go: The decision records being exported
  - audit/ledger.go:   The postings attached to each decision
*/
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/nautilus/compliance-engine/audit"
	"github.com/nautilus/compliance-engine/compliance"
)

// Format selects the report serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXML  Format = "xml"
)

// ParseFormat maps a request string onto a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatCSV, FormatXML:
		return Format(s), nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", s)
	}
}

// Exporter assembles compliance reports from the decision log and ledger.
// Read-only: it never writes to either store.
type Exporter struct {
	Decisions audit.DecisionLog
	Ledger    audit.LedgerStore
	Currency  string
}

func NewExporter(decisions audit.DecisionLog, ledger audit.LedgerStore, currency string) *Exporter {
	return &Exporter{Decisions: decisions, Ledger: ledger, Currency: currency}
}

// =============================================================================
// REPORT SHAPE - Shared by all three formats
// =============================================================================

const reportTimeLayout = time.RFC3339Nano

type Report struct {
	XMLName    xml.Name         `json:"-" xml:"complianceReport"`
	PeriodFrom string           `json:"periodFrom" xml:"periodFrom"`
	PeriodTo   string           `json:"periodTo" xml:"periodTo"`
	Currency   string           `json:"currency" xml:"currency"`
	Decisions  []ReportDecision `json:"decisions" xml:"decision"`

	// TotalPostedAmount is the signed sum of every ledger posting in the
	// period, across all decisions.
	TotalPostedAmount string `json:"totalPostedAmount" xml:"totalPostedAmount"`
}

type ReportDecision struct {
	ID              string          `json:"id" xml:"id"`
	Timestamp       string          `json:"timestamp" xml:"timestamp"`
	Type            string          `json:"type" xml:"type"`
	ShipID          string          `json:"shipId" xml:"shipId"`
	Year            int             `json:"year" xml:"year"`
	PolicyVersion   string          `json:"policyVersion" xml:"policyVersion"`
	ActingUser      string          `json:"actingUser,omitempty" xml:"actingUser,omitempty"`
	CorrectsID      string          `json:"correctsId,omitempty" xml:"correctsId,omitempty"`
	Narrative       string          `json:"narrative" xml:"narrative"`
	Payload         json.RawMessage `json:"payload" xml:"payload"`
	Warnings        []string        `json:"warnings,omitempty" xml:"warning,omitempty"`
	FinancialEffect string          `json:"financialEffect" xml:"financialEffect"`
	Entries         []ReportEntry   `json:"entries" xml:"entry"`
}

type ReportEntry struct {
	ID        string `json:"id" xml:"id"`
	Timestamp string `json:"timestamp" xml:"timestamp"`
	RefType   string `json:"refType" xml:"refType"`
	RefID     string `json:"refId" xml:"refId"`
	Amount    string `json:"amount" xml:"amount"`
	Currency  string `json:"currency" xml:"currency"`
	Memo      string `json:"memo,omitempty" xml:"memo,omitempty"`
}

// =============================================================================
// EXPORT
// =============================================================================

// Export assembles the report for [from, to] and serializes it in the
// requested format. Checks ctx between assembly sections.
func (e *Exporter) Export(ctx context.Context, from, to time.Time, format Format) ([]byte, error) {
	report, err := e.assemble(ctx, from, to)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON:
		return renderJSON(report)
	case FormatCSV:
		return renderCSV(report)
	case FormatXML:
		return renderXML(report)
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

func (e *Exporter) assemble(ctx context.Context, from, to time.Time) (Report, error) {
	decisions, err := e.Decisions.DecisionsInRange(ctx, from, to)
	if err != nil {
		return Report{}, fmt.Errorf("load decisions: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	report := Report{
		PeriodFrom: from.UTC().Format(reportTimeLayout),
		PeriodTo:   to.UTC().Format(reportTimeLayout),
		Currency:   e.Currency,
		Decisions:  make([]ReportDecision, 0, len(decisions)),
	}

	total := compliance.ZeroMoney(e.Currency)
	for _, d := range decisions {
		entries, err := e.Ledger.EntriesByReference(ctx, audit.RefDecision, d.ID)
		if err != nil {
			return Report{}, fmt.Errorf("load entries for %s: %w", d.ID, err)
		}
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}

		rd, err := projectDecision(d, entries, e.Currency)
		if err != nil {
			return Report{}, err
		}
		report.Decisions = append(report.Decisions, rd)
		total = total.Add(audit.SumEntries(entries, e.Currency))
	}

	report.TotalPostedAmount = total.Amount.String()
	return report, nil
}

func projectDecision(d audit.Decision, entries []audit.LedgerEntry, currency string) (ReportDecision, error) {
	payload, err := audit.MarshalPayload(d.Payload)
	if err != nil {
		return ReportDecision{}, fmt.Errorf("marshal payload for %s: %w", d.ID, err)
	}

	rd := ReportDecision{
		ID:              d.ID,
		Timestamp:       d.Timestamp.UTC().Format(reportTimeLayout),
		Type:            string(d.Type),
		ShipID:          string(d.ShipID),
		Year:            d.Year,
		PolicyVersion:   d.PolicyVersion,
		ActingUser:      d.ActingUser,
		CorrectsID:      d.CorrectsID,
		Narrative:       narrative(d),
		Payload:         payload,
		Warnings:        d.Warnings,
		FinancialEffect: d.Payload.FinancialEffect(currency).Amount.String(),
		Entries:         make([]ReportEntry, 0, len(entries)),
	}
	for _, e := range entries {
		rd.Entries = append(rd.Entries, ReportEntry{
			ID:        e.ID,
			Timestamp: e.Timestamp.UTC().Format(reportTimeLayout),
			RefType:   e.RefType,
			RefID:     e.RefID,
			Amount:    e.Amount.Amount.String(),
			Currency:  e.Amount.Currency,
			Memo:      e.Memo,
		})
	}
	return rd, nil
}

// narrative renders the one-line human summary regulators read first. Built
// only from persisted decision fields so re-export stays deterministic.
func narrative(d audit.Decision) string {
	switch p := d.Payload.(type) {
	case audit.BankPayload:
		return fmt.Sprintf("Ship %s banked %s gCO2e of %d surplus for future compliance years.",
			d.ShipID, p.AmountGco2e.String(), d.Year)
	case audit.UseBankPayload:
		return fmt.Sprintf("Ship %s applied %s gCO2e of banked surplus against its %d deficit.",
			d.ShipID, p.AmountGco2e.String(), d.Year)
	case audit.BorrowPayload:
		return fmt.Sprintf("Ship %s borrowed %s gCO2e from its %d allowance (period %d of consecutive borrowing).",
			d.ShipID, p.AmountGco2e.String(), d.Year+1, p.ConsecutivePeriods)
	case audit.PoolAcceptPayload:
		verb := "acquired"
		if p.Direction < 0 {
			verb = "transferred out"
		}
		return fmt.Sprintf("Ship %s %s %s gCO2e via pooling with %s at %s %s/tCO2e.",
			d.ShipID, verb, p.OfferedGco2e.String(), p.Counterparty,
			p.PricePerTonne.Amount.String(), p.PricePerTonne.Currency)
	case audit.HedgeExecutePayload:
		return fmt.Sprintf("Ship %s executed a %s hedge of %s tCO2 at %s %s/t for voyage %s.",
			d.ShipID, p.Side, p.QuantityTCO2.String(),
			p.PricePerTonne.Amount.String(), p.PricePerTonne.Currency, p.VoyageID)
	default:
		return fmt.Sprintf("Ship %s recorded a %s decision.", d.ShipID, d.Type)
	}
}

// =============================================================================
// RENDERERS
// =============================================================================

func renderJSON(r Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderCSV flattens the report to one row per ledger entry, with a single
// payload-carrying row for entry-less decisions. Lossless: every report
// field appears in some column.
func renderCSV(r Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"periodFrom", "periodTo", "currency",
		"decisionId", "decisionTimestamp", "decisionType", "shipId", "year",
		"policyVersion", "actingUser", "correctsId", "narrative", "payload",
		"warnings", "financialEffect",
		"entryId", "entryTimestamp", "entryRefType", "entryRefId",
		"entryAmount", "entryCurrency", "entryMemo",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, d := range r.Decisions {
		base := []string{
			r.PeriodFrom, r.PeriodTo, r.Currency,
			d.ID, d.Timestamp, d.Type, d.ShipID, strconv.Itoa(d.Year),
			d.PolicyVersion, d.ActingUser, d.CorrectsID, d.Narrative,
			string(d.Payload), joinWarnings(d.Warnings), d.FinancialEffect,
		}

		if len(d.Entries) == 0 {
			row := append(append([]string{}, base...), "", "", "", "", "", "", "")
			if err := w.Write(row); err != nil {
				return nil, err
			}
			continue
		}
		for _, e := range d.Entries {
			row := append(append([]string{}, base...),
				e.ID, e.Timestamp, e.RefType, e.RefID, e.Amount, e.Currency, e.Memo)
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func joinWarnings(warnings []string) string {
	out, _ := json.Marshal(warnings)
	if string(out) == "null" {
		return ""
	}
	return string(out)
}

func renderXML(r Report) ([]byte, error) {
	// json.RawMessage renders as a character-data payload element in XML.
	body, err := xml.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}
