// Package gate partitions canonical fields into trusted and needs-correction
// sets and groups the latter into fixed-membership batches.
package gate

import (
	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
)

// Batch is a bounded group of low-confidence fields dispatched together to a
// correction service call. Membership is fixed by field name, so two batches
// of the same pass are always disjoint.
type Batch struct {
	Name   string
	Fields []string
	// TextOnly batches are never routed to the vision client.
	TextOnly bool
}

// Gate applies the confidence threshold.
type Gate struct {
	threshold float64
}

func New(threshold float64) *Gate {
	if threshold <= 0 || threshold > 1 {
		threshold = constants.DefaultConfidenceThreshold
	}
	return &Gate{threshold: threshold}
}

// NeedsCorrection reports whether the named field should be sent for
// correction: its confidence is below threshold or missing entirely, or it is
// a blank critical field regardless of stated confidence.
func (g *Gate) NeedsCorrection(rec *entity.Record, field string) bool {
	if constants.IsCriticalField(field) && !rec.IsPopulated(field) {
		return true
	}
	conf, ok := rec.FieldConfidence(field)
	if !ok {
		return true
	}
	return conf < g.threshold
}

// LowConfidenceFields returns every canonical field that needs correction, in
// schema order. Fields absent from the record count as missing confidence.
func (g *Gate) LowConfidenceFields(rec *entity.Record) []string {
	var low []string
	for _, field := range constants.CanonicalFields {
		if g.NeedsCorrection(rec, field) {
			low = append(low, field)
		}
	}
	return low
}

// Batches groups the low-confidence fields into the fixed named batches, in
// dispatch order. Batches with no low-confidence members are omitted so each
// correction call carries only fields that need it.
func (g *Gate) Batches(rec *entity.Record) []Batch {
	low := make(map[string]struct{})
	for _, f := range g.LowConfidenceFields(rec) {
		low[f] = struct{}{}
	}

	var batches []Batch
	for _, name := range constants.BatchOrder {
		var fields []string
		for _, f := range constants.BatchFields[name] {
			if _, ok := low[f]; ok {
				fields = append(fields, f)
			}
		}
		if len(fields) == 0 {
			continue
		}
		_, textOnly := constants.TextOnlyBatches[name]
		batches = append(batches, Batch{Name: name, Fields: fields, TextOnly: textOnly})
	}
	return batches
}

// Satisfied returns the canonical fields that pass the gate.
func (g *Gate) Satisfied(rec *entity.Record) []string {
	var ok []string
	for _, field := range constants.CanonicalFields {
		if !g.NeedsCorrection(rec, field) {
			ok = append(ok, field)
		}
	}
	return ok
}

// Threshold exposes the configured cutoff.
func (g *Gate) Threshold() float64 { return g.threshold }
