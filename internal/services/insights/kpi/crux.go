package kpi

// CrUX metric container keys.
const (
	cruxLCP  = "largest_contentful_paint"
	cruxINP  = "interaction_to_next_paint"
	cruxFID  = "first_input_delay"
	cruxCLS  = "cumulative_layout_shift"
	cruxTTFB = "experimental_time_to_first_byte"
	cruxFCP  = "first_contentful_paint"
	cruxRTT  = "round_trip_time"
)

// NormalizeCrUX flattens a CrUX queryRecord payload into a Record. The input
// is the full response body; metrics live under record.metrics. Pure: the
// same payload always produces the same record.
func NormalizeCrUX(body map[string]any) Record {
	var out Record

	metrics := asMap(asMap(body["record"])["metrics"])
	if metrics == nil {
		return out
	}

	out.LCPMillis, out.LCPHistogram = cruxMetric(metrics, cruxLCP)
	out.LCPStatus = LCPStatusFor(out.LCPMillis)

	// INP superseded FID; older records may only carry the legacy metric.
	out.INPMillis, out.INPHistogram = cruxMetric(metrics, cruxINP)
	if out.INPMillis == nil && out.INPHistogram == nil {
		out.INPMillis, out.INPHistogram = cruxMetric(metrics, cruxFID)
	}
	out.INPStatus = INPStatusFor(out.INPMillis)

	out.CLS, out.CLSHistogram = cruxMetric(metrics, cruxCLS)
	out.CLSStatus = CLSStatusFor(out.CLS)

	out.TTFBMillis, out.TTFBHistogram = cruxMetric(metrics, cruxTTFB)
	out.FCPMillis, out.FCPHistogram = cruxMetric(metrics, cruxFCP)
	out.RTTMillis, _ = cruxMetric(metrics, cruxRTT)

	return out
}

// cruxMetric extracts the p75 percentile and three-bucket histogram for one
// metric. Either part may be absent independently.
func cruxMetric(metrics map[string]any, name string) (*float64, *Distribution) {
	metric := asMap(metrics[name])
	if metric == nil {
		return nil, nil
	}

	p75 := parseNumber(asMap(metric["percentiles"])["p75"])

	bins, _ := metric["histogram"].([]any)
	if len(bins) < 3 {
		return p75, nil
	}
	dist := &Distribution{
		Good:             binDensity(bins[0]),
		NeedsImprovement: binDensity(bins[1]),
		Poor:             binDensity(bins[2]),
	}
	return p75, dist
}

func binDensity(bin any) float64 {
	if density := parseNumber(asMap(bin)["density"]); density != nil {
		return *density
	}
	return 0
}
