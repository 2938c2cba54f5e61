package kpi

import (
	"math"
	"sort"
	"strings"
)

// maxOpportunities caps the exposed improvement list to the most impactful
// audits.
const maxOpportunities = 8

// Lighthouse audit IDs for lab timings.
const (
	auditFCP        = "first-contentful-paint"
	auditLCP        = "largest-contentful-paint"
	auditTBT        = "total-blocking-time"
	auditSpeedIndex = "speed-index"
	auditCLS        = "cumulative-layout-shift"
)

// NormalizePageSpeed flattens a PageSpeed Insights payload into a Record:
// 0-100 category scores, lab timings, and the top opportunity audits. Pure:
// the same payload always produces the same record.
func NormalizePageSpeed(body map[string]any) Record {
	var out Record

	lighthouse := asMap(body["lighthouseResult"])
	if lighthouse == nil {
		return out
	}

	categories := asMap(lighthouse["categories"])
	out.PerformanceScore = categoryScore(categories, "performance")
	out.SEOScore = categoryScore(categories, "seo")
	out.AccessibilityScore = categoryScore(categories, "accessibility")
	out.BestPracticesScore = categoryScore(categories, "best-practices")

	audits := asMap(lighthouse["audits"])
	out.LabFCPMillis = auditNumericValue(audits, auditFCP)
	out.LabLCPMillis = auditNumericValue(audits, auditLCP)
	out.LabTBTMillis = auditNumericValue(audits, auditTBT)
	out.LabSpeedIndexMillis = auditNumericValue(audits, auditSpeedIndex)
	out.LabCLS = auditNumericValue(audits, auditCLS)

	out.Opportunities = collectOpportunities(audits)

	return out
}

// categoryScore derives the 0-100 integer score for one Lighthouse category.
func categoryScore(categories map[string]any, name string) *int {
	score := parseNumber(asMap(categories[name])["score"])
	if score == nil {
		return nil
	}
	return intPtr(int(math.Round(*score * 100)))
}

func auditNumericValue(audits map[string]any, id string) *float64 {
	return parseNumber(asMap(audits[id])["numericValue"])
}

// collectOpportunities gathers every opportunity-type audit sorted by
// estimated savings, largest first. Audit maps are unordered in JSON, so
// ties are broken by audit ID to keep the output deterministic.
func collectOpportunities(audits map[string]any) []Opportunity {
	var found []Opportunity
	for id, raw := range audits {
		audit := asMap(raw)
		if audit == nil {
			continue
		}
		details := asMap(audit["details"])
		if detailType, _ := details["type"].(string); detailType != "opportunity" {
			continue
		}
		savings := parseNumber(details["overallSavingsMs"])
		if savings == nil {
			savings = parseNumber(audit["numericValue"])
		}
		opportunity := Opportunity{ID: id}
		if title, ok := audit["title"].(string); ok {
			opportunity.Title = strings.TrimSpace(title)
		}
		if savings != nil {
			opportunity.SavingsMilli = *savings
		}
		found = append(found, opportunity)
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].SavingsMilli != found[j].SavingsMilli {
			return found[i].SavingsMilli > found[j].SavingsMilli
		}
		return found[i].ID < found[j].ID
	})

	if len(found) > maxOpportunities {
		found = found[:maxOpportunities]
	}
	return found
}
