// Package score computes post-correction field confidences and the record's
// overall confidence. Everything here is pure; no locks needed.
package score

import (
	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
)

// Context describes what the correction service did to a field. The assigned
// confidence depends on this, not on a flat constant.
type Context int

const (
	// BlankFill: field was previously empty, now filled.
	BlankFill Context = iota
	// Corrected: field had a value, corrected to a different one.
	Corrected
	// Confirmed: field had a value, returned unchanged.
	Confirmed
	// Nulled: field explicitly nulled by the correction service.
	Nulled
)

const (
	baseBlankFill = 0.90
	baseCorrected = 0.80
	baseConfirmed = 0.75
	baseNulled    = 0.70

	criticalBonus = 0.03
	blankFillCap  = 0.95

	weakPriorBonus    = 0.05 // prior < 0.5: a bigger improvement is worth more
	strongPriorMalus  = 0.05 // prior > 0.85: confirming a strong field adds little
	weakPriorCutoff   = 0.5
	strongPriorCutoff = 0.85
)

// Field returns the confidence for one accepted correction. prior is the
// field's confidence before the pass, nil when it had none.
func Field(ctx Context, field string, prior *float64) float64 {
	var base float64
	switch ctx {
	case BlankFill:
		base = baseBlankFill
		if constants.IsCriticalField(field) {
			base += criticalBonus
			if base > blankFillCap {
				base = blankFillCap
			}
		}
	case Corrected:
		base = baseCorrected
	case Confirmed:
		base = baseConfirmed
	case Nulled:
		base = baseNulled
	}

	if prior != nil {
		if *prior < weakPriorCutoff {
			base += weakPriorBonus
		} else if *prior > strongPriorCutoff {
			base -= strongPriorMalus
		}
	}

	return clamp(base)
}

// Overall recomputes the record-level confidence as the mean over all
// populated field confidences. Populated fields without a reported confidence
// count as zero so a half-scored record cannot look fully trusted.
func Overall(fields map[string]entity.FieldValue) float64 {
	var sum float64
	var n int
	for _, fv := range fields {
		if entity.IsBlank(fv.Value) {
			continue
		}
		n++
		if fv.Confidence != nil {
			sum += *fv.Confidence
		}
	}
	if n == 0 {
		return 0
	}
	return clamp(sum / float64(n))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
