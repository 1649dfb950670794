package affiliate

import (
	"bytes"
	"context"
	"testing"

	"github.com/hitoshi/lootsy/internal/model"
)

type stubProber struct {
	result ProbeResult
	calls  int
}

func (s *stubProber) Probe(context.Context) ProbeResult {
	s.calls++
	return s.result
}

func TestSource_FetchDeals_ReturnsProbedDeals(t *testing.T) {
	var buf bytes.Buffer
	probed := []model.RawDeal{{Source: model.SourceAdrevenue, SourceID: "1", Title: "A", LinkURL: "#"}}
	prober := &stubProber{result: ProbeResult{Deals: probed, AuthStyle: AuthBearer}}

	deals, result := NewSource(prober, newTestLogger(&buf)).FetchDeals(context.Background())

	if len(deals) != 1 || deals[0].Source != model.SourceAdrevenue {
		t.Errorf("unexpected deals: %+v", deals)
	}
	if result.AuthStyle != AuthBearer {
		t.Errorf("probe result not propagated: %+v", result)
	}
}

func TestSource_FetchDeals_FallsBackToSample(t *testing.T) {
	for _, reason := range []string{ReasonMissingKey, ReasonNoSuccess} {
		t.Run(reason, func(t *testing.T) {
			var buf bytes.Buffer
			prober := &stubProber{result: ProbeResult{Reason: reason}}

			deals, result := NewSource(prober, newTestLogger(&buf)).FetchDeals(context.Background())

			if len(deals) != len(sampleDeals) {
				t.Fatalf("len(deals) = %d, want %d", len(deals), len(sampleDeals))
			}
			for _, d := range deals {
				if d.Source != model.SourceSample {
					t.Errorf("Source = %q, want sample", d.Source)
				}
			}
			if result.Reason != reason {
				t.Errorf("Reason = %q, want %q", result.Reason, reason)
			}
		})
	}
}

func TestSampleDeals_AreIndependentCopies(t *testing.T) {
	a := SampleDeals()
	*a[0].Category = "changed"
	b := SampleDeals()
	if *b[0].Category != "Mode" {
		t.Errorf("SampleDeals shares state between calls: %q", *b[0].Category)
	}

	seen := map[string]bool{}
	for _, d := range b {
		if seen[d.SourceID] {
			t.Errorf("duplicate sample id %q", d.SourceID)
		}
		seen[d.SourceID] = true
	}
}
