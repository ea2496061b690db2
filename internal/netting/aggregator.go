// Package netting turns postings into scoped net balances and converts them
// into a minimal transfer set under a fixed+variable cost model.
package netting

import (
	"sort"

	"github.com/shopspring/decimal"

	"kyde/internal/core"
)

// Balances maps participant id to signed net EUR, quantized to 2 fraction
// digits. Positive means the scheme owes the participant.
type Balances map[uint64]decimal.Decimal

// ParticipantSum is one aggregation row handed over by the posting store.
type ParticipantSum struct {
	ParticipantID uint64
	TotalEUR      decimal.Decimal
}

// FromSums quantizes aggregation rows into a balances map, dropping exact
// zeros.
func FromSums(rows []ParticipantSum) Balances {
	out := make(Balances, len(rows))
	for _, r := range rows {
		net := r.TotalEUR.Round(2)
		if net.IsZero() {
			continue
		}
		out[r.ParticipantID] = net
	}
	return out
}

// ApplyOperatorFee skims pct (a fraction, e.g. 0.05) off every non-operator
// positive balance and credits it to the operator. Applied once, at day
// scope; month balances are sums of already-fee-adjusted day nets.
func ApplyOperatorFee(balances Balances, operatorID uint64, pct decimal.Decimal) Balances {
	if operatorID == 0 || pct.Sign() <= 0 {
		return balances
	}
	out := make(Balances, len(balances)+1)
	for pid, bal := range balances {
		out[pid] = bal
	}
	for _, pid := range sortedIDs(balances) {
		if pid == operatorID {
			continue
		}
		bal := out[pid]
		if bal.Sign() <= 0 {
			continue
		}
		fee := bal.Mul(pct).Round(2)
		if fee.IsZero() {
			continue
		}
		out[pid] = bal.Sub(fee)
		out[operatorID] = out[operatorID].Add(fee)
	}
	if op, ok := out[operatorID]; ok && op.IsZero() {
		delete(out, operatorID)
	}
	return out
}

// CheckConservation verifies signed-sum conservation: positive and negative
// totals agree within one minor unit.
func CheckConservation(balances Balances) error {
	pos, neg := decimal.Zero, decimal.Zero
	for _, bal := range balances {
		if bal.Sign() > 0 {
			pos = pos.Add(bal)
		} else {
			neg = neg.Add(bal)
		}
	}
	diff := pos.Add(neg).Abs()
	if diff.GreaterThan(decimal.New(1, -2)) {
		return core.Imbalancef("credit %s and debit %s differ by %s", pos, neg.Neg(), diff)
	}
	return nil
}

func sortedIDs(balances Balances) []uint64 {
	ids := make([]uint64, 0, len(balances))
	for pid := range balances {
		ids = append(ids, pid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
