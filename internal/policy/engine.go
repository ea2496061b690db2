// Package policy parses versioned fee/tariff policy documents and evaluates
// them against metering events, producing signed account deltas and a full
// explain trace per evaluation.
package policy

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"kyde/internal/core"
	"kyde/internal/policy/expr"
)

// Supported rule kinds. Anything else is rejected when the document is
// parsed; a silently ignored rule could misstate a settlement.
const (
	KindRate                = "rate"
	KindTieredCap           = "tiered_cap"
	KindPercentOfAccount    = "percent_of_account"
	KindPercentOverAccounts = "percent_over_sum_accounts"
)

// Event is the engine-facing view of one metered/fee event.
type Event struct {
	Source    string
	AmountEUR decimal.Decimal
	Meta      map[string]any
	TS        time.Time
}

// Tags reads the event tag list out of meta.
func (e Event) Tags() []string {
	raw, ok := e.Meta["tags"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Quantity reads the metered quantity (kwh, with qty as fallback) out of meta.
func (e Event) Quantity() decimal.Decimal {
	for _, key := range []string{"kwh", "qty"} {
		if raw, ok := e.Meta[key]; ok {
			if d, err := toDecimal(raw); err == nil {
				return d
			}
		}
	}
	return decimal.Zero
}

// AppliesTo is the conjunction of applicability facets; a nil AppliesTo
// matches every event.
type AppliesTo struct {
	Source []string `json:"source"`
	Tags   []string `json:"tags"`
	Role   string   `json:"role"`
}

// Tier is one block of a tiered tariff: capped at UptoKWH, or open-ended
// when Above is set (only valid on the last tier).
type Tier struct {
	UptoKWH       json.Number `json:"upto_kwh"`
	Above         bool        `json:"above"`
	PriceCtPerKWH json.Number `json:"price_ct_per_kwh"`
}

// RuleOut names the running account a rule posts to and the posting sign.
type RuleOut struct {
	Account string `json:"account"`
	Sign    string `json:"sign"`
}

// Rule is one declarative fee/tariff computation.
type Rule struct {
	ID          string                 `json:"id"`
	Kind        string                 `json:"kind"`
	AppliesTo   *AppliesTo             `json:"applies_to"`
	DependsOn   []string               `json:"depends_on"`
	Out         RuleOut                `json:"out"`
	Params      map[string]json.Number `json:"params"`
	RateExpr    string                 `json:"rate_expr"`
	BaseAccount string                 `json:"base_account"`
	Accounts    []string               `json:"accounts"`
	Beneficiary *Beneficiary           `json:"beneficiary"`
	Tiers       []Tier                 `json:"tiers"`
}

// Beneficiary redirects a rule's postings to a designated role instead of
// the event's participant.
type Beneficiary struct {
	Role string `json:"role"`
}

type document struct {
	OperatorFeePct json.Number `json:"operator_fee_pct"`
	Rules          []Rule      `json:"rules"`
}

// Posting is one signed account delta derived from an evaluation. A zero
// BeneficiaryID means the event's own participant receives it.
type Posting struct {
	RuleID        string
	Account       string
	AmountEUR     decimal.Decimal
	BeneficiaryID uint64
}

// Evaluation is one rule's explain-trace entry.
type Evaluation struct {
	Order       int               `json:"order"`
	RuleID      string            `json:"rule_id"`
	Matched     bool              `json:"matched"`
	Inputs      map[string]string `json:"inputs,omitempty"`
	Formula     string            `json:"formula,omitempty"`
	ResultEUR   string            `json:"result_eur,omitempty"`
	Beneficiary string            `json:"beneficiary,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Trace is the full explain trace of one event evaluation.
type Trace struct {
	Evaluations []Evaluation      `json:"evaluations"`
	PerAccount  map[string]string `json:"per_account"`
	SumEventEUR string            `json:"sum_event_eur"`
}

// Engine evaluates one parsed policy version. It is immutable after Parse
// and safe for concurrent use; per-evaluation running state lives on the
// stack of EvaluateEvent.
type Engine struct {
	rules          []Rule
	compiled       map[string]*expr.Expr
	operatorFeePct decimal.Decimal
}

// Parse validates a policy document and returns an engine with rules in
// dependency order. Unknown kinds, unknown dependency ids and dependency
// cycles fail closed.
func Parse(data []byte) (*Engine, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, core.Validationf("malformed policy document: %v", err)
	}

	byID := make(map[string]int, len(doc.Rules))
	for i, r := range doc.Rules {
		if r.ID == "" {
			return nil, core.Validationf("rule at index %d has no id", i)
		}
		if _, dup := byID[r.ID]; dup {
			return nil, core.Validationf("duplicate rule id %q", r.ID)
		}
		switch r.Kind {
		case KindRate, KindTieredCap, KindPercentOfAccount, KindPercentOverAccounts:
		default:
			return nil, core.Validationf("rule %q has unknown kind %q", r.ID, r.Kind)
		}
		if r.Out.Account == "" {
			return nil, core.Validationf("rule %q has no output account", r.ID)
		}
		byID[r.ID] = i
	}

	ordered, err := sortRules(doc.Rules, byID)
	if err != nil {
		return nil, err
	}

	compiled := make(map[string]*expr.Expr)
	for _, r := range ordered {
		if r.Kind == KindRate {
			src := r.RateExpr
			if src == "" {
				src = "0"
			}
			ex, err := expr.Parse(src)
			if err != nil {
				return nil, core.Validationf("rule %q: %v", r.ID, err)
			}
			compiled[r.ID] = ex
		}
	}

	feePct := decimal.Zero
	if doc.OperatorFeePct.String() != "" {
		feePct, err = toDecimal(doc.OperatorFeePct)
		if err != nil {
			return nil, core.Validationf("operator_fee_pct is not numeric: %v", err)
		}
	}

	return &Engine{rules: ordered, compiled: compiled, operatorFeePct: feePct}, nil
}

// OperatorFeePct is the fraction of positive balances skimmed to the
// operator at day close, e.g. 0.05.
func (e *Engine) OperatorFeePct() decimal.Decimal {
	return e.operatorFeePct
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// sortRules is a cycle-detecting topological sort, stable in first-seen
// order among independent rules.
func sortRules(rules []Rule, byID map[string]int) ([]Rule, error) {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // done
	)
	color := make([]int, len(rules))
	ordered := make([]Rule, 0, len(rules))

	var visit func(i int) error
	visit = func(i int) error {
		switch color[i] {
		case black:
			return nil
		case gray:
			return core.Validationf("dependency cycle through rule %q", rules[i].ID)
		}
		color[i] = gray
		for _, dep := range rules[i].DependsOn {
			j, ok := byID[dep]
			if !ok {
				return core.Validationf("rule %q depends on unknown rule %q", rules[i].ID, dep)
			}
			if err := visit(j); err != nil {
				return err
			}
		}
		color[i] = black
		ordered = append(ordered, rules[i])
		return nil
	}

	for i := range rules {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

func (r Rule) applies(ev Event, participantRole string) bool {
	if r.AppliesTo == nil {
		return true
	}
	if len(r.AppliesTo.Source) > 0 && !contains(r.AppliesTo.Source, ev.Source) {
		return false
	}
	if len(r.AppliesTo.Tags) > 0 && !intersects(r.AppliesTo.Tags, ev.Tags()) {
		return false
	}
	if r.AppliesTo.Role != "" && r.AppliesTo.Role != participantRole {
		return false
	}
	return true
}

// accountDelta is one rule's signed contribution to a running account.
// Running sums are replayed from this list on demand instead of keeping
// hidden mutable per-account state.
type accountDelta struct {
	account string
	amount  decimal.Decimal
}

func runningSum(deltas []accountDelta, accounts ...string) decimal.Decimal {
	sum := decimal.Zero
	for _, d := range deltas {
		for _, a := range accounts {
			if d.account == a {
				sum = sum.Add(d.amount)
				break
			}
		}
	}
	return sum
}

// EvaluateEvent runs every rule against ev in dependency order and returns
// the derived postings plus the explain trace. A single rule's evaluation
// failure is recorded in its trace entry and skips only that rule; if every
// matched rule fails the whole evaluation is rejected.
func (e *Engine) EvaluateEvent(ev Event, participantRole string, operatorID uint64) ([]Posting, Trace, error) {
	var (
		deltas       []accountDelta
		postings     []Posting
		evals        = make([]Evaluation, 0, len(e.rules))
		matched      int
		completed    int
		firstFailure error
	)

	for order, rule := range e.rules {
		entry := Evaluation{Order: order, RuleID: rule.ID}
		if !rule.applies(ev, participantRole) {
			evals = append(evals, entry)
			continue
		}
		entry.Matched = true
		matched++

		amount, inputs, err := e.evalRule(rule, ev, deltas)
		if err != nil {
			entry.Error = err.Error()
			evals = append(evals, entry)
			if firstFailure == nil {
				firstFailure = err
			}
			continue
		}
		completed++

		signed := amount
		if rule.Out.Sign != "+" {
			signed = amount.Neg()
		}
		deltas = append(deltas, accountDelta{account: rule.Out.Account, amount: signed})

		var beneficiaryID uint64
		if rule.Beneficiary != nil && rule.Beneficiary.Role == core.RoleOperator && operatorID != 0 {
			beneficiaryID = operatorID
			entry.Beneficiary = core.RoleOperator
		}
		postings = append(postings, Posting{
			RuleID:        rule.ID,
			Account:       rule.Out.Account,
			AmountEUR:     signed.Round(4),
			BeneficiaryID: beneficiaryID,
		})

		entry.Inputs = stringifyInputs(inputs)
		entry.Formula = rule.RateExpr
		if entry.Formula == "" {
			entry.Formula = rule.Kind
		}
		entry.ResultEUR = signed.Round(2).StringFixed(2)
		evals = append(evals, entry)
	}

	if matched > 0 && completed == 0 {
		return nil, Trace{}, firstFailure
	}

	perAccount := make(map[string]string)
	sum := decimal.Zero
	for _, d := range deltas {
		sum = sum.Add(d.amount)
	}
	for _, d := range deltas {
		cur := runningSum(deltas, d.account)
		perAccount[d.account] = cur.Round(2).StringFixed(2)
	}

	trace := Trace{
		Evaluations: evals,
		PerAccount:  perAccount,
		SumEventEUR: sum.Round(2).StringFixed(2),
	}
	return postings, trace, nil
}

func (e *Engine) evalRule(rule Rule, ev Event, deltas []accountDelta) (decimal.Decimal, map[string]decimal.Decimal, error) {
	switch rule.Kind {
	case KindRate:
		vars := map[string]decimal.Decimal{"kwh": ev.Quantity(), "qty": ev.Quantity()}
		for k, v := range rule.Params {
			d, err := toDecimal(v)
			if err != nil {
				return decimal.Zero, nil, core.Validationf("rule %q: param %q is not numeric", rule.ID, k)
			}
			if _, ok := expr.AllowedNames[k]; ok {
				vars[k] = d
			}
		}
		amount, err := e.compiled[rule.ID].Eval(vars)
		if err != nil {
			return decimal.Zero, nil, err
		}
		return amount, vars, nil

	case KindTieredCap:
		qty := ev.Quantity()
		amount, err := evalTiers(rule.Tiers, qty)
		if err != nil {
			return decimal.Zero, nil, core.Validationf("rule %q: %v", rule.ID, err)
		}
		return amount, map[string]decimal.Decimal{"kwh": qty}, nil

	case KindPercentOfAccount:
		base := runningSum(deltas, rule.BaseAccount)
		pct, err := paramPercent(rule)
		if err != nil {
			return decimal.Zero, nil, err
		}
		amount := base.Abs().Mul(pct).Div(decimal.New(100, 0)).Round(4)
		return amount, map[string]decimal.Decimal{"base_sum": base, "percent": pct}, nil

	case KindPercentOverAccounts:
		base := runningSum(deltas, rule.Accounts...)
		pct, err := paramPercent(rule)
		if err != nil {
			return decimal.Zero, nil, err
		}
		amount := base.Abs().Mul(pct).Div(decimal.New(100, 0)).Round(4)
		return amount, map[string]decimal.Decimal{"base_sum": base, "percent": pct}, nil
	}
	// Parse already rejected unknown kinds.
	return decimal.Zero, nil, core.Validationf("rule %q has unknown kind %q", rule.ID, rule.Kind)
}

// evalTiers prices qty across ascending blocks, each capped at its upto_kwh
// bound except a final open-ended "above" tier, and converts ct to EUR.
func evalTiers(tiers []Tier, qty decimal.Decimal) (decimal.Decimal, error) {
	remaining := qty
	totalCt := decimal.Zero
	prevCap := decimal.Zero
	for i, t := range tiers {
		price, err := toDecimal(t.PriceCtPerKWH)
		if err != nil {
			return decimal.Zero, core.Validationf("tier %d: price_ct_per_kwh is not numeric", i)
		}
		var block decimal.Decimal
		if t.Above {
			block = remaining
		} else {
			upto, err := toDecimal(t.UptoKWH)
			if err != nil {
				return decimal.Zero, core.Validationf("tier %d: upto_kwh is not numeric", i)
			}
			block = decimal.Min(remaining, upto.Sub(prevCap))
			if block.IsNegative() {
				block = decimal.Zero
			}
			prevCap = upto
		}
		if block.Sign() <= 0 {
			continue
		}
		totalCt = totalCt.Add(block.Mul(price))
		remaining = remaining.Sub(block)
		if remaining.Sign() <= 0 {
			break
		}
	}
	return totalCt.Div(decimal.New(100, 0)).Round(4), nil
}

func paramPercent(rule Rule) (decimal.Decimal, error) {
	raw, ok := rule.Params["percent"]
	if !ok {
		return decimal.Zero, nil
	}
	pct, err := toDecimal(raw)
	if err != nil {
		return decimal.Zero, core.Validationf("rule %q: percent is not numeric", rule.ID)
	}
	return pct, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		return decimal.NewFromString(t)
	case float64:
		return decimal.NewFromFloat(t), nil
	case int:
		return decimal.New(int64(t), 0), nil
	case int64:
		return decimal.New(t, 0), nil
	case decimal.Decimal:
		return t, nil
	}
	return decimal.Zero, core.Validationf("value %v is not numeric", v)
}

func stringifyInputs(in map[string]decimal.Decimal) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v.String()
	}
	return out
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
