package analysis

import (
	"fmt"
	"math"

	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
)

// IssueType classifies a vector problem.
type IssueType string

const (
	IssueNaN               IssueType = "NaN"
	IssueInfinity          IssueType = "Infinity"
	IssueZeroVector        IssueType = "ZeroVector"
	IssueDimensionMismatch IssueType = "DimensionMismatch"
	IssueNotNormalized     IssueType = "NotNormalized"
)

type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// ZeroNorm is the norm below which a vector is reported as zero.
const ZeroNorm = 1e-6

type ValidationIssue struct {
	ContentID   core.ID   `json:"content_id"`
	Kind        core.Kind `json:"content_type"`
	Type        IssueType `json:"issue_type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
}

type ValidationReport struct {
	Total                  int               `json:"total_embeddings"`
	Invalid                int               `json:"invalid_embeddings"`
	NaNCount               int               `json:"nan_count"`
	InfinityCount          int               `json:"infinity_count"`
	ZeroVectorCount        int               `json:"zero_vector_count"`
	DimensionMismatchCount int               `json:"dimension_mismatch_count"`
	AbnormalDistributions  []string          `json:"abnormal_distributions"`
	Issues                 []ValidationIssue `json:"issues"`
}

// Valid reports whether no entry had an issue.
func (r ValidationReport) Valid() bool {
	return r.Invalid == 0
}

// Validate sweeps entries for non-finite values, near-zero norms, lengths
// other than dims and norms away from 1. dims <= 0 skips the length check.
// Entries without a vector are not embeddings and are not counted.
func Validate(entries []cache.Entry, dims int) ValidationReport {
	r := ValidationReport{AbnormalDistributions: []string{}, Issues: []ValidationIssue{}}
	for _, e := range entries {
		if len(e.Vector) == 0 {
			continue
		}
		r.Total++
		before := len(r.Issues)
		issue := func(t IssueType, s Severity, format string, args ...any) {
			r.Issues = append(r.Issues, ValidationIssue{
				ContentID:   e.ContentID,
				Kind:        e.Kind,
				Type:        t,
				Severity:    s,
				Description: fmt.Sprintf(format, args...),
			})
		}

		var hasNaN, hasInf bool
		for _, x := range e.Vector {
			hasNaN = hasNaN || math.IsNaN(float64(x))
			hasInf = hasInf || math.IsInf(float64(x), 0)
		}
		if hasNaN {
			r.NaNCount++
			issue(IssueNaN, SeverityHigh, "Embedding contains NaN values")
		}
		if hasInf {
			r.InfinityCount++
			issue(IssueInfinity, SeverityHigh, "Embedding contains infinite values")
		}
		if dims > 0 && len(e.Vector) != dims {
			r.DimensionMismatchCount++
			issue(IssueDimensionMismatch, SeverityHigh, "Embedding has %d dimensions, encoder produces %d", len(e.Vector), dims)
		}
		if !hasNaN && !hasInf {
			norm := core.Norm(e.Vector)
			switch {
			case norm < ZeroNorm:
				r.ZeroVectorCount++
				issue(IssueZeroVector, SeverityMedium, "Embedding is zero or near-zero vector")
			case !core.IsUnit(e.Vector):
				issue(IssueNotNormalized, SeverityLow, "Embedding norm is %.6f", norm)
				r.AbnormalDistributions = append(r.AbnormalDistributions, fmt.Sprintf("%s:%s norm %.6f", e.Kind, e.ContentID, norm))
			}
		}
		if len(r.Issues) > before {
			r.Invalid++
		}
	}
	return r
}
