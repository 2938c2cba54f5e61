package kpi

import (
	"encoding/json"
	"reflect"
	"testing"
)

const cruxFixture = `{
  "record": {
    "key": {"origin": "https://example.com", "formFactor": "PHONE"},
    "metrics": {
      "largest_contentful_paint": {
        "histogram": [
          {"start": 0, "end": 2500, "density": 0.8234},
          {"start": 2500, "end": 4000, "density": 0.1266},
          {"start": 4000, "density": 0.05}
        ],
        "percentiles": {"p75": 2100}
      },
      "interaction_to_next_paint": {
        "histogram": [
          {"start": 0, "end": 200, "density": 0.9},
          {"start": 200, "end": 500, "density": 0.07},
          {"start": 500, "density": 0.03}
        ],
        "percentiles": {"p75": 250}
      },
      "cumulative_layout_shift": {
        "histogram": [
          {"start": "0.00", "end": "0.10", "density": 0.95},
          {"start": "0.10", "end": "0.25", "density": 0.04},
          {"start": "0.25", "density": 0.01}
        ],
        "percentiles": {"p75": "0.05"}
      },
      "experimental_time_to_first_byte": {
        "percentiles": {"p75": "1,234"}
      },
      "round_trip_time": {
        "percentiles": {"p75": 75}
      }
    }
  }
}`

func parseFixture(t *testing.T, raw string) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return body
}

func TestNormalizeCrUX(t *testing.T) {
	record := NormalizeCrUX(parseFixture(t, cruxFixture))

	if record.LCPMillis == nil || *record.LCPMillis != 2100 {
		t.Fatalf("lcp p75 = %v", record.LCPMillis)
	}
	if record.LCPStatus == nil || *record.LCPStatus != StatusGood {
		t.Fatalf("lcp status = %v", record.LCPStatus)
	}
	if record.LCPHistogram == nil || record.LCPHistogram.Good != 0.8234 {
		t.Fatalf("lcp histogram = %v", record.LCPHistogram)
	}

	if record.INPMillis == nil || *record.INPMillis != 250 {
		t.Fatalf("inp p75 = %v", record.INPMillis)
	}
	if record.INPStatus == nil || *record.INPStatus != StatusNeedsImprovement {
		t.Fatalf("inp status = %v", record.INPStatus)
	}

	// CLS percentiles arrive as strings.
	if record.CLS == nil || *record.CLS != 0.05 {
		t.Fatalf("cls p75 = %v", record.CLS)
	}
	if record.CLSStatus == nil || *record.CLSStatus != StatusGood {
		t.Fatalf("cls status = %v", record.CLSStatus)
	}

	// Grouped numerals are stripped before parsing.
	if record.TTFBMillis == nil || *record.TTFBMillis != 1234 {
		t.Fatalf("ttfb p75 = %v", record.TTFBMillis)
	}
	// TTFB has no histogram in the fixture; absence stays absent.
	if record.TTFBHistogram != nil {
		t.Fatalf("ttfb histogram = %v, want nil", record.TTFBHistogram)
	}

	if record.RTTMillis == nil || *record.RTTMillis != 75 {
		t.Fatalf("rtt p75 = %v", record.RTTMillis)
	}

	// FCP is absent from the fixture entirely.
	if record.FCPMillis != nil {
		t.Fatalf("fcp p75 = %v, want nil", record.FCPMillis)
	}
}

func TestNormalizeCrUXFallsBackToFID(t *testing.T) {
	body := parseFixture(t, `{
	  "record": {"metrics": {
	    "first_input_delay": {"percentiles": {"p75": 30}}
	  }}
	}`)
	record := NormalizeCrUX(body)
	if record.INPMillis == nil || *record.INPMillis != 30 {
		t.Fatalf("inp via fid fallback = %v", record.INPMillis)
	}
	if record.INPStatus == nil || *record.INPStatus != StatusGood {
		t.Fatalf("inp status = %v", record.INPStatus)
	}
}

func TestNormalizeCrUXToleratesGarbage(t *testing.T) {
	inputs := []string{
		`{}`,
		`{"record": null}`,
		`{"record": {"metrics": null}}`,
		`{"record": {"metrics": {"largest_contentful_paint": "broken"}}}`,
		`{"record": {"metrics": {"largest_contentful_paint": {"percentiles": {"p75": "abc"}, "histogram": [{}]}}}}`,
	}
	for _, raw := range inputs {
		record := NormalizeCrUX(parseFixture(t, raw))
		if record.LCPMillis != nil {
			t.Fatalf("fixture %s: lcp = %v, want nil", raw, record.LCPMillis)
		}
		if record.LCPStatus != nil {
			t.Fatalf("fixture %s: lcp status = %v, want nil", raw, record.LCPStatus)
		}
	}
}

func TestNormalizeCrUXIsPure(t *testing.T) {
	body := parseFixture(t, cruxFixture)
	first := NormalizeCrUX(body)
	second := NormalizeCrUX(body)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("normalization must be deterministic for the same payload")
	}
}
