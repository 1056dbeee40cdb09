// Package aggregate groups profiling measurements by operation and
// derives descriptive statistics for compute units and transaction
// size.
package aggregate

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"github.com/commercelabs/cuprof/collector"
)

// OperationStats holds per-operation statistics. Statistics are
// recomputed in full on each run; there is no incremental update.
type OperationStats struct {
	Operation   string  `json:"operation"`
	TotalCalls  int     `json:"total_calls"`
	TotalCU     uint64  `json:"total_cu"`
	MeanCU      float64 `json:"mean_cu"`
	MinCU       uint64  `json:"min_cu"`
	MaxCU       uint64  `json:"max_cu"`
	TotalTxSize int     `json:"total_tx_size"`
	MeanTxSize  float64 `json:"mean_tx_size"`
	MinTxSize   int     `json:"min_tx_size"`
	MaxTxSize   int     `json:"max_tx_size"`
}

// Operations groups data by operation name and computes statistics per
// group. Grouping is by name identity, so every input datum lands in
// exactly one group. Empty input is an error; the mean of an empty
// group is undefined and never computed.
func Operations(data []collector.Datum) (map[string]OperationStats, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("no profiling data to aggregate")
	}

	cuByOp := make(map[string][]float64)
	sizeByOp := make(map[string][]float64)

	for _, d := range data {
		cuByOp[d.Operation] = append(cuByOp[d.Operation], float64(d.CUConsumed))
		sizeByOp[d.Operation] = append(sizeByOp[d.Operation], float64(d.TxSize))
	}

	result := make(map[string]OperationStats, len(cuByOp))

	for op, cus := range cuByOp {
		cu, err := describe(cus)
		if err != nil {
			return nil, fmt.Errorf("operation %s compute units: %w", op, err)
		}

		size, err := describe(sizeByOp[op])
		if err != nil {
			return nil, fmt.Errorf("operation %s transaction size: %w", op, err)
		}

		result[op] = OperationStats{
			Operation:   op,
			TotalCalls:  len(cus),
			TotalCU:     uint64(cu.sum),
			MeanCU:      cu.mean,
			MinCU:       uint64(cu.min),
			MaxCU:       uint64(cu.max),
			TotalTxSize: int(size.sum),
			MeanTxSize:  size.mean,
			MinTxSize:   int(size.min),
			MaxTxSize:   int(size.max),
		}
	}

	return result, nil
}

type summary struct {
	sum, mean, min, max float64
}

func describe(values stats.Float64Data) (summary, error) {
	var (
		s   summary
		err error
	)

	if s.sum, err = values.Sum(); err != nil {
		return s, fmt.Errorf("sum: %w", err)
	}
	if s.mean, err = values.Mean(); err != nil {
		return s, fmt.Errorf("mean: %w", err)
	}
	if s.min, err = values.Min(); err != nil {
		return s, fmt.Errorf("min: %w", err)
	}
	if s.max, err = values.Max(); err != nil {
		return s, fmt.Errorf("max: %w", err)
	}

	return s, nil
}
