// Package kpi normalizes nested provider payloads into flat KPI records and
// assigns qualitative thresholds. Every extraction is defensive: provider
// payloads are not contractually stable, so any missing or malformed path
// yields an absent field, never an error.
package kpi

import (
	"strconv"
	"strings"
)

// MetricStatus is the qualitative bucket for a thresholded metric.
type MetricStatus string

const (
	StatusGood             MetricStatus = "good"
	StatusNeedsImprovement MetricStatus = "needs-improvement"
	StatusPoor             MetricStatus = "poor"
)

// Core Web Vitals cut points as published by Google.
const (
	lcpGoodMillis             = 2500.0
	lcpNeedsImprovementMillis = 4000.0
	inpGoodMillis             = 200.0
	inpNeedsImprovementMillis = 500.0
	clsGood                   = 0.1
	clsNeedsImprovement       = 0.25
)

// Distribution is a three-bucket histogram of user experiences; densities
// sum to roughly 1.0.
type Distribution struct {
	Good             float64 `json:"good"`
	NeedsImprovement float64 `json:"needsImprovement"`
	Poor             float64 `json:"poor"`
}

// Opportunity is one Lighthouse improvement suggestion with its estimated
// time savings.
type Opportunity struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	SavingsMilli float64 `json:"savingsMs"`
}

// Record is the flat, normalized KPI shape persisted with each cached
// result. Nil fields mean the provider had no data for that metric, which is
// not an error. Field metrics come from CrUX; scores, lab timings, and
// opportunities come from PageSpeed.
type Record struct {
	LCPMillis    *float64      `json:"lcpMs,omitempty"`
	LCPStatus    *MetricStatus `json:"lcpStatus,omitempty"`
	LCPHistogram *Distribution `json:"lcpHistogram,omitempty"`

	INPMillis    *float64      `json:"inpMs,omitempty"`
	INPStatus    *MetricStatus `json:"inpStatus,omitempty"`
	INPHistogram *Distribution `json:"inpHistogram,omitempty"`

	CLS          *float64      `json:"cls,omitempty"`
	CLSStatus    *MetricStatus `json:"clsStatus,omitempty"`
	CLSHistogram *Distribution `json:"clsHistogram,omitempty"`

	TTFBMillis    *float64      `json:"ttfbMs,omitempty"`
	TTFBHistogram *Distribution `json:"ttfbHistogram,omitempty"`

	FCPMillis    *float64      `json:"fcpMs,omitempty"`
	FCPHistogram *Distribution `json:"fcpHistogram,omitempty"`

	RTTMillis *float64 `json:"rttMs,omitempty"`

	PerformanceScore   *int `json:"performanceScore,omitempty"`
	SEOScore           *int `json:"seoScore,omitempty"`
	AccessibilityScore *int `json:"accessibilityScore,omitempty"`
	BestPracticesScore *int `json:"bestPracticesScore,omitempty"`

	LabFCPMillis        *float64 `json:"labFcpMs,omitempty"`
	LabLCPMillis        *float64 `json:"labLcpMs,omitempty"`
	LabTBTMillis        *float64 `json:"labTbtMs,omitempty"`
	LabSpeedIndexMillis *float64 `json:"labSpeedIndexMs,omitempty"`
	LabCLS              *float64 `json:"labCls,omitempty"`

	Opportunities []Opportunity `json:"opportunities,omitempty"`
}

// LCPStatusFor buckets a 75th-percentile LCP value in milliseconds.
func LCPStatusFor(p75 *float64) *MetricStatus {
	return statusFor(p75, lcpGoodMillis, lcpNeedsImprovementMillis)
}

// INPStatusFor buckets a 75th-percentile INP value in milliseconds.
func INPStatusFor(p75 *float64) *MetricStatus {
	return statusFor(p75, inpGoodMillis, inpNeedsImprovementMillis)
}

// CLSStatusFor buckets a 75th-percentile CLS value.
func CLSStatusFor(p75 *float64) *MetricStatus {
	return statusFor(p75, clsGood, clsNeedsImprovement)
}

// statusFor never defaults to a bucket: an absent percentile yields a nil
// status.
func statusFor(p75 *float64, good, needsImprovement float64) *MetricStatus {
	if p75 == nil {
		return nil
	}
	status := StatusPoor
	switch {
	case *p75 <= good:
		status = StatusGood
	case *p75 <= needsImprovement:
		status = StatusNeedsImprovement
	}
	return &status
}

// parseNumber coerces a provider value into a float. Strings may carry
// grouping separators ("1,234"); empty strings, nulls, and non-numeric
// values are absent, not errors.
func parseNumber(value any) *float64 {
	switch v := value.(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		trimmed = strings.ReplaceAll(trimmed, ",", "")
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil
		}
		return &parsed
	}
	return nil
}

// asMap narrows an any to a JSON object, nil when it is anything else.
func asMap(value any) map[string]any {
	m, _ := value.(map[string]any)
	return m
}

func intPtr(v int) *int {
	return &v
}
