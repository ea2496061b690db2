package netting

import (
	"sort"

	"github.com/shopspring/decimal"

	"kyde/internal/core"
)

// Transfer is one optimizer output edge: From pays To.
type Transfer struct {
	From      uint64
	To        uint64
	AmountEUR decimal.Decimal
}

// costScale converts EUR cost parameters to integer edge weights. Moving one
// minor unit at variable rate r costs r*0.01 EUR, so the per-unit weight is
// r*1e4 and the fixed activation weight is fixed*1e6.
const costScale = 1_000_000

// Optimize settles balances with the cheapest pairwise transfer set under
// the cost model: a fixed cost per distinct debtor/creditor pair used plus a
// variable rate on the amount moved. Amounts are converted to integer minor
// units (half-up) before the min-cost-flow solve; a debit/credit mismatch
// beyond one minor unit is fatal.
func Optimize(balances Balances, fixedCost, variableRate decimal.Decimal) ([]Transfer, error) {
	if len(balances) == 0 {
		return nil, nil
	}

	type side struct {
		id    uint64
		cents int64
	}
	var debtors, creditors []side
	for _, pid := range sortedIDs(balances) {
		cents := balances[pid].Mul(decimal.New(100, 0)).Round(0).IntPart()
		switch {
		case cents < 0:
			debtors = append(debtors, side{id: pid, cents: -cents})
		case cents > 0:
			creditors = append(creditors, side{id: pid, cents: cents})
		}
	}
	if len(debtors) == 0 && len(creditors) == 0 {
		return nil, nil
	}

	var totalDebt, totalCredit int64
	for _, d := range debtors {
		totalDebt += d.cents
	}
	for _, c := range creditors {
		totalCredit += c.cents
	}
	diff := totalDebt - totalCredit
	if diff < -1 || diff > 1 {
		return nil, core.Imbalancef("debit %d and credit %d minor units differ by more than one", totalDebt, totalCredit)
	}
	// One minor unit of rounding slack is absorbed by the largest entry on
	// the heavier side so the flow stays exactly feasible.
	shave := func(entries []side, by int64) {
		max := 0
		for i := range entries {
			if entries[i].cents > entries[max].cents {
				max = i
			}
		}
		entries[max].cents -= by
	}
	if diff > 0 {
		shave(debtors, diff)
		totalDebt -= diff
	} else if diff < 0 {
		shave(creditors, -diff)
	}
	// The shave can settle its entry outright; drop zero-cent entries so
	// every remaining pair has positive capacity.
	keep := func(entries []side) []side {
		out := entries[:0]
		for _, e := range entries {
			if e.cents > 0 {
				out = append(out, e)
			}
		}
		return out
	}
	debtors = keep(debtors)
	creditors = keep(creditors)
	if totalDebt == 0 || len(debtors) == 0 || len(creditors) == 0 {
		return nil, nil
	}

	fixedW := fixedCost.Mul(decimal.New(costScale, 0)).Round(0).IntPart()
	varW := variableRate.Mul(decimal.New(costScale/100, 0)).Round(0).IntPart()
	if fixedW < 0 || varW < 0 {
		return nil, core.Validationf("cost parameters must not be negative")
	}

	nd, nc := len(debtors), len(creditors)
	// Node layout: source, debtors, one node per (debtor, creditor) pair,
	// creditors, sink.
	src := 0
	debtorNode := func(i int) int { return 1 + i }
	pairNode := func(i, j int) int { return 1 + nd + i*nc + j }
	creditorNode := func(j int) int { return 1 + nd + nd*nc + j }
	sink := 1 + nd + nd*nc + nc

	g := newFlowGraph(sink + 1)
	for i, d := range debtors {
		g.addEdge(src, debtorNode(i), d.cents, 0)
	}
	for j, c := range creditors {
		g.addEdge(creditorNode(j), sink, c.cents, 0)
	}
	// Each pair routes through a two-edge chain: the activation edge carries
	// the fixed pair cost amortized over the pair's maximum capacity (a flat
	// fee on a single capacity-1 edge is not expressible in a linear flow
	// model: the solver would route around it), the second edge prices each
	// unit moved. Saturating a pair pays the full fixed cost; the amortized
	// weight still steers the solve toward fewer, larger transfers.
	pairEdge := make([][]int, nd)
	for i, d := range debtors {
		pairEdge[i] = make([]int, nc)
		for j, c := range creditors {
			pairCap := min64(d.cents, c.cents)
			activationW := (fixedW + pairCap - 1) / pairCap
			g.addEdge(debtorNode(i), pairNode(i, j), pairCap, activationW)
			pairEdge[i][j] = g.addEdge(pairNode(i, j), creditorNode(j), pairCap, varW)
		}
	}

	flow := g.minCostFlow(src, sink)
	if flow != totalDebt {
		return nil, core.Imbalancef("flow %d of %d minor units routed", flow, totalDebt)
	}

	transfers := make([]Transfer, 0, nd+nc)
	for i, d := range debtors {
		for j, c := range creditors {
			moved := g.flowOn(pairEdge[i][j])
			if moved <= 0 {
				continue
			}
			transfers = append(transfers, Transfer{
				From:      d.id,
				To:        c.id,
				AmountEUR: decimal.New(moved, -2),
			})
		}
	}
	SortTransfers(transfers)
	return transfers, nil
}

// SortTransfers orders transfers by (from, to, amount) so downstream hashes
// are independent of extraction order.
func SortTransfers(transfers []Transfer) {
	sort.Slice(transfers, func(i, j int) bool {
		if transfers[i].From != transfers[j].From {
			return transfers[i].From < transfers[j].From
		}
		if transfers[i].To != transfers[j].To {
			return transfers[i].To < transfers[j].To
		}
		return transfers[i].AmountEUR.LessThan(transfers[j].AmountEUR)
	})
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// --- successive shortest path min-cost flow ---------------------------------

type flowEdge struct {
	to   int
	cap  int64
	cost int64
}

type flowGraph struct {
	edges []flowEdge
	adj   [][]int
}

func newFlowGraph(n int) *flowGraph {
	return &flowGraph{adj: make([][]int, n)}
}

// addEdge inserts a directed edge and its residual twin, returning the index
// of the forward edge.
func (g *flowGraph) addEdge(from, to int, capacity, cost int64) int {
	idx := len(g.edges)
	g.edges = append(g.edges, flowEdge{to: to, cap: capacity, cost: cost})
	g.edges = append(g.edges, flowEdge{to: from, cap: 0, cost: -cost})
	g.adj[from] = append(g.adj[from], idx)
	g.adj[to] = append(g.adj[to], idx+1)
	return idx
}

// flowOn reports the units pushed through the forward edge at idx.
func (g *flowGraph) flowOn(idx int) int64 {
	return g.edges[idx^1].cap
}

const infCost = int64(1) << 62

// minCostFlow pushes as much flow as possible from s to t, always along a
// cheapest residual path (SPFA), and returns the total flow. With integral
// capacities and costs the result is an optimal integral flow.
func (g *flowGraph) minCostFlow(s, t int) int64 {
	n := len(g.adj)
	dist := make([]int64, n)
	inQueue := make([]bool, n)
	prevEdge := make([]int, n)
	var total int64

	for {
		for i := range dist {
			dist[i] = infCost
			prevEdge[i] = -1
		}
		dist[s] = 0
		queue := []int{s}
		inQueue[s] = true
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			inQueue[u] = false
			for _, idx := range g.adj[u] {
				e := g.edges[idx]
				if e.cap <= 0 || dist[u]+e.cost >= dist[e.to] {
					continue
				}
				dist[e.to] = dist[u] + e.cost
				prevEdge[e.to] = idx
				if !inQueue[e.to] {
					queue = append(queue, e.to)
					inQueue[e.to] = true
				}
			}
		}
		if prevEdge[t] == -1 {
			return total
		}

		bottleneck := infCost
		for v := t; v != s; {
			idx := prevEdge[v]
			if g.edges[idx].cap < bottleneck {
				bottleneck = g.edges[idx].cap
			}
			v = g.edges[idx^1].to
		}
		for v := t; v != s; {
			idx := prevEdge[v]
			g.edges[idx].cap -= bottleneck
			g.edges[idx^1].cap += bottleneck
			v = g.edges[idx^1].to
		}
		total += bottleneck
	}
}
