package capital

import (
	"math"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: total == free + committed + banked after any interleaving of
// concurrent entries and exits.
func TestProperty_BookBalancedUnderConcurrentEntriesAndExits(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	type trade struct {
		Notional   float64
		Multiplier float64
	}

	tradeGen := gopter.CombineGens(
		gen.Float64Range(0.01, 1.0),
		gen.Float64Range(0, 3.0),
	).Map(func(vals []interface{}) trade {
		return trade{Notional: vals[0].(float64), Multiplier: vals[1].(float64)}
	})

	properties.Property("book stays balanced", prop.ForAll(
		func(trades []trade) bool {
			book := NewBook(100, Params{
				AllocationFraction: 0.2,
				MinPositionSOL:     0.01,
				ReinvestRatio:      0.5,
			})

			var wg sync.WaitGroup
			for _, tr := range trades {
				wg.Add(1)
				go func(tr trade) {
					defer wg.Done()
					if err := book.Commit(tr.Notional); err != nil {
						return
					}
					book.Absorb(tr.Notional, tr.Notional*tr.Multiplier)
				}(tr)
			}
			wg.Wait()

			return math.Abs(book.Imbalance()) < 1e-6
		},
		gen.SliceOf(tradeGen),
	))

	properties.TestingRun(t)
}

// Property: sizing never returns a notional above free capital or below the
// configured minimum.
func TestProperty_SizeWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("size bounded", prop.ForAll(
		func(free, advantage, confidence float64) bool {
			params := Params{
				AllocationFraction: 0.25,
				MaxPositionSOL:     2,
				MinPositionSOL:     0.05,
				AdvantageCap:       0.5,
			}
			book := NewBook(free, params)
			notional, err := book.Size(advantage, confidence)
			if err != nil {
				return free < params.MinPositionSOL || err == ErrInsufficientCapital
			}
			return notional >= params.MinPositionSOL && notional <= free
		},
		gen.Float64Range(0, 50),
		gen.Float64Range(0, 300),
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}
