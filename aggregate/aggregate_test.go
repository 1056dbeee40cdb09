package aggregate

import (
	"math"
	"testing"

	"github.com/commercelabs/cuprof/collector"
)

func TestOperationsSingleGroup(t *testing.T) {
	data := []collector.Datum{
		{Operation: "Deposit", CUConsumed: 100, TxSize: 212},
		{Operation: "Deposit", CUConsumed: 300, TxSize: 212},
	}

	result, err := Operations(data)
	if err != nil {
		t.Fatalf("Operations failed: %v", err)
	}

	if len(result) != 1 {
		t.Fatalf("got %d groups, want 1", len(result))
	}

	s, ok := result["Deposit"]
	if !ok {
		t.Fatal("missing Deposit group")
	}

	if s.TotalCalls != 2 {
		t.Errorf("total_calls = %d, want 2", s.TotalCalls)
	}
	if s.TotalCU != 400 {
		t.Errorf("total_cu = %d, want 400", s.TotalCU)
	}
	if s.MeanCU != 200.0 {
		t.Errorf("mean_cu = %f, want 200.0", s.MeanCU)
	}
	if s.MinCU != 100 || s.MaxCU != 300 {
		t.Errorf("min/max cu = %d/%d, want 100/300", s.MinCU, s.MaxCU)
	}
	if s.TotalTxSize != 424 || s.MeanTxSize != 212.0 {
		t.Errorf("tx totals = %d/%f, want 424/212.0",
			s.TotalTxSize, s.MeanTxSize)
	}
	if s.MinTxSize != 212 || s.MaxTxSize != 212 {
		t.Errorf("min/max tx = %d/%d, want 212/212", s.MinTxSize, s.MaxTxSize)
	}
}

func TestOperationsPartitionsInput(t *testing.T) {
	data := []collector.Datum{
		{Operation: "Deposit", CUConsumed: 100, TxSize: 212},
		{Operation: "ClearPayment", CUConsumed: 9000, TxSize: 680},
		{Operation: "Deposit", CUConsumed: 150, TxSize: 212},
		{Operation: "RefundPayment", CUConsumed: 4000, TxSize: 616},
		{Operation: "ClearPayment", CUConsumed: 9500, TxSize: 680},
	}

	result, err := Operations(data)
	if err != nil {
		t.Fatalf("Operations failed: %v", err)
	}

	if len(result) != 3 {
		t.Fatalf("got %d groups, want 3", len(result))
	}

	total := 0
	for _, s := range result {
		total += s.TotalCalls
	}
	if total != len(data) {
		t.Errorf("group sizes sum to %d, want %d", total, len(data))
	}
}

func TestOperationsStatBounds(t *testing.T) {
	data := []collector.Datum{
		{Operation: "Op", CUConsumed: 7, TxSize: 200},
		{Operation: "Op", CUConsumed: 13, TxSize: 200},
		{Operation: "Op", CUConsumed: 29, TxSize: 200},
		{Operation: "Op", CUConsumed: 4, TxSize: 200},
	}

	result, err := Operations(data)
	if err != nil {
		t.Fatalf("Operations failed: %v", err)
	}

	s := result["Op"]

	if float64(s.MinCU) > s.MeanCU || s.MeanCU > float64(s.MaxCU) {
		t.Errorf("want min (%d) <= mean (%f) <= max (%d)",
			s.MinCU, s.MeanCU, s.MaxCU)
	}

	want := float64(s.TotalCU)
	got := float64(s.TotalCalls) * s.MeanCU
	if math.Abs(want-got) > 1e-9 {
		t.Errorf("sum (%f) != count x mean (%f)", want, got)
	}
}

func TestOperationsEmptyInput(t *testing.T) {
	if _, err := Operations(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}
