package eval

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestStatsSummary(t *testing.T) {
	s := NewStats(4)
	s.Record(0, 0, 0.5)
	s.Record(1, 0, 0.25)
	s.Record(1, 1, 1)
	s.Record(0, 0, 0.5)

	sum := s.Summary()
	if sum.Steps != 4 || sum.Errors != 1 {
		t.Fatalf("steps=%d errors=%d, want 4 and 1", sum.Steps, sum.Errors)
	}
	if !approx(sum.ErrorRate, 0.25) {
		t.Fatalf("error rate %v, want 0.25", sum.ErrorRate)
	}
	if !approx(sum.TotalAccuracy, 2.25) || !approx(sum.MeanAccuracy, 0.5625) {
		t.Fatalf("accuracy %v/%v", sum.TotalAccuracy, sum.MeanAccuracy)
	}
	// bits: 1 + 2 + 0 + 1 = 4 over 4 steps
	if !approx(sum.BitsPerSymbol, 1) || !approx(sum.Perplexity, 2) {
		t.Fatalf("bps=%v perplexity=%v", sum.BitsPerSymbol, sum.Perplexity)
	}
}

func TestStatsEmptyAndReset(t *testing.T) {
	s := NewStats(0)
	if got := s.Summary(); got.Steps != 0 || got.Perplexity != 1 {
		t.Fatalf("empty summary %+v", got)
	}
	s.Record(0, 1, 0.1)
	s.Reset()
	if s.Steps() != 0 || s.Errors() != 0 {
		t.Fatalf("reset left %d steps", s.Steps())
	}
}

func TestStatsCopiesAreDetached(t *testing.T) {
	s := NewStats(1)
	s.Record(0, 0, 0.5)
	loss := s.Loss()
	loss[0] = 7
	if s.Loss()[0] != 0 {
		t.Fatal("Loss must return a copy")
	}
	if s.Bits()[0] != 1 || s.Accuracy()[0] != 0.5 {
		t.Fatalf("bits=%v accuracy=%v", s.Bits(), s.Accuracy())
	}
}

func TestZeroProbabilityIsInfiniteLoss(t *testing.T) {
	s := NewStats(1)
	s.Record(0, 1, 0)
	if !math.IsInf(s.Summary().BitsPerSymbol, 1) {
		t.Fatalf("expected +Inf bits, got %v", s.Summary().BitsPerSymbol)
	}
	res := NewEvalHarness(DefaultEvalConfig()).Run(s.Summary())
	if res.Passed {
		t.Fatal("expected fail on infinite log loss")
	}
}

func TestSummaryJSONKeepsInfiniteLoss(t *testing.T) {
	s := NewStats(2)
	s.Record(0, 0, 0.5)
	s.Record(0, 1, 0)

	data, err := json.Marshal(s.Summary())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Summary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal %s: %v", data, err)
	}
	if !math.IsInf(got.BitsPerSymbol, 1) || !math.IsInf(got.Perplexity, 1) {
		t.Fatalf("expected infinite loss after round trip, got %+v from %s", got, data)
	}
	if got.Steps != 2 || got.Errors != 1 || !approx(got.MeanAccuracy, 0.25) {
		t.Fatalf("finite fields lost: %+v", got)
	}

	var nan Summary
	if err := json.Unmarshal([]byte(`{"bits_per_symbol":"NaN","perplexity":1.5}`), &nan); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !math.IsNaN(nan.BitsPerSymbol) || nan.Perplexity != 1.5 {
		t.Fatalf("unexpected %+v", nan)
	}
	if err := json.Unmarshal([]byte(`{"perplexity":"lots"}`), &nan); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLossCurveAveragesRuns(t *testing.T) {
	a := NewStats(3)
	a.Record(0, 1, 0.2)
	a.Record(0, 0, 0.8)
	a.Record(1, 1, 0.9)
	b := NewStats(2)
	b.Record(0, 0, 0.6)
	b.Record(1, 0, 0.4)

	curve := LossCurve([]*Stats{a, b})
	want := []float64{0.5, 0.5, 0}
	for i := range want {
		if !approx(curve[i], want[i]) {
			t.Fatalf("curve[%d]=%v, want %v", i, curve[i], want[i])
		}
	}
	acc := AccuracyCurve([]*Stats{a, b})
	if !approx(acc[0], 0.4) || !approx(acc[2], 0.9) {
		t.Fatalf("accuracy curve %v", acc)
	}
	if len(LossCurve(nil)) != 0 {
		t.Fatal("expected empty curve")
	}
}

func TestEvalPassesOnGoodRun(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	result := h.Run(Summary{Steps: 10, Errors: 1, ErrorRate: 0.1, BitsPerSymbol: 0.4})

	if !result.Passed {
		t.Fatalf("expected pass, got fail: %s", result.Reason)
	}
	if len(result.Metrics) != 3 {
		t.Fatalf("expected 3 metrics, got %d", len(result.Metrics))
	}
}

func TestEvalFailsOnErrorRate(t *testing.T) {
	config := DefaultEvalConfig()
	config.MaxErrorRate = 0.2
	h := NewEvalHarness(config)

	result := h.Run(Summary{Steps: 10, Errors: 3, ErrorRate: 0.3, BitsPerSymbol: 0.4})
	if result.Passed {
		t.Fatal("expected fail on error rate")
	}
	foundFail := false
	for _, m := range result.Metrics {
		if m.Name == "error_rate" && !m.Pass {
			foundFail = true
		}
	}
	if !foundFail {
		t.Fatal("expected error_rate metric to fail")
	}
}

func TestEvalReportsMultipleFailures(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	result := h.Run(Summary{Steps: 10, ErrorRate: 0.9, BitsPerSymbol: 3})
	if result.Passed {
		t.Fatal("expected fail")
	}
	if !strings.Contains(result.Reason, "2 checks") {
		t.Fatalf("unexpected reason %q", result.Reason)
	}
}

func TestEvalStepCountIsInformational(t *testing.T) {
	config := DefaultEvalConfig()
	config.MinSteps = 100
	h := NewEvalHarness(config)

	result := h.Run(Summary{Steps: 5, ErrorRate: 0, BitsPerSymbol: 0})
	if !result.Passed {
		t.Fatalf("step count must not block: %s", result.Reason)
	}
	for _, m := range result.Metrics {
		if m.Name == "steps" && m.Pass {
			t.Fatal("steps metric should report below minimum")
		}
	}
}
