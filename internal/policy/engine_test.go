package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kyde/internal/core"
)

func mkEvent(source string, meta map[string]any) Event {
	return Event{Source: source, Meta: meta, TS: time.Date(2025, 8, 14, 12, 0, 0, 0, time.UTC)}
}

func amountOf(t *testing.T, postings []Posting, ruleID string) decimal.Decimal {
	t.Helper()
	for _, p := range postings {
		if p.RuleID == ruleID {
			return p.AmountEUR
		}
	}
	t.Fatalf("no posting for rule %q", ruleID)
	return decimal.Zero
}

func TestParse_RejectsUnknownKind(t *testing.T) {
	_, err := Parse([]byte(`{"rules":[{"id":"r1","kind":"quantum_levy","out":{"account":"fees"}}]}`))
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("err=%v, want ErrValidation", err)
	}
}

func TestParse_RejectsDependencyCycle(t *testing.T) {
	doc := `{"rules":[
		{"id":"a","kind":"rate","depends_on":["b"],"out":{"account":"x"}},
		{"id":"b","kind":"rate","depends_on":["a"],"out":{"account":"y"}}
	]}`
	_, err := Parse([]byte(doc))
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("err=%v, want ErrValidation", err)
	}
}

func TestParse_RejectsMissingDependency(t *testing.T) {
	doc := `{"rules":[{"id":"a","kind":"rate","depends_on":["ghost"],"out":{"account":"x"}}]}`
	_, err := Parse([]byte(doc))
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("err=%v, want ErrValidation", err)
	}
}

func TestParse_OrdersByDependency(t *testing.T) {
	doc := `{"rules":[
		{"id":"late","kind":"percent_of_account","depends_on":["early"],"base_account":"energy","params":{"percent":19},"out":{"account":"tax"}},
		{"id":"early","kind":"rate","rate_expr":"kwh * price_ct_per_kwh / 100","params":{"price_ct_per_kwh":30},"out":{"account":"energy"}}
	]}`
	eng, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	rules := eng.Rules()
	if rules[0].ID != "early" || rules[1].ID != "late" {
		t.Fatalf("order=%s,%s want early,late", rules[0].ID, rules[1].ID)
	}
}

func TestEvaluateEvent_RateRule(t *testing.T) {
	doc := `{"rules":[
		{"id":"energy","kind":"rate","rate_expr":"kwh * price_ct_per_kwh / 100",
		 "params":{"price_ct_per_kwh":8},"out":{"account":"energy","sign":"-"}}
	]}`
	eng, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	postings, trace, err := eng.EvaluateEvent(mkEvent("meter", map[string]any{"kwh": "100"}), core.RoleConsumer, 0)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if got := amountOf(t, postings, "energy"); !got.Equal(decimal.RequireFromString("-8")) {
		t.Fatalf("amount=%s want=-8", got)
	}
	if trace.Evaluations[0].ResultEUR != "-8.00" {
		t.Fatalf("trace result=%q want=-8.00", trace.Evaluations[0].ResultEUR)
	}
}

func TestEvaluateEvent_TieredCap(t *testing.T) {
	doc := `{"rules":[
		{"id":"grid","kind":"tiered_cap","out":{"account":"grid","sign":"-"},
		 "tiers":[{"upto_kwh":50,"price_ct_per_kwh":10},{"above":true,"price_ct_per_kwh":8}]}
	]}`
	eng, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	postings, _, err := eng.EvaluateEvent(mkEvent("meter", map[string]any{"kwh": 80}), core.RoleConsumer, 0)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	// (50*10 + 30*8) ct = 740 ct = 7.40 EUR, debited.
	if got := amountOf(t, postings, "grid"); !got.Equal(decimal.RequireFromString("-7.40")) {
		t.Fatalf("amount=%s want=-7.40", got)
	}
}

func TestEvaluateEvent_TieredCapShortQuantity(t *testing.T) {
	doc := `{"rules":[
		{"id":"grid","kind":"tiered_cap","out":{"account":"grid","sign":"-"},
		 "tiers":[{"upto_kwh":50,"price_ct_per_kwh":10},{"above":true,"price_ct_per_kwh":8}]}
	]}`
	eng, _ := Parse([]byte(doc))
	postings, _, err := eng.EvaluateEvent(mkEvent("meter", map[string]any{"kwh": 20}), core.RoleConsumer, 0)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	// Fully consumed by the first tier: 20*10 ct = 2.00 EUR.
	if got := amountOf(t, postings, "grid"); !got.Equal(decimal.RequireFromString("-2.00")) {
		t.Fatalf("amount=%s want=-2.00", got)
	}
}

func TestEvaluateEvent_PercentOfAccountAndBeneficiary(t *testing.T) {
	doc := `{"rules":[
		{"id":"energy","kind":"rate","rate_expr":"kwh * price_ct_per_kwh / 100",
		 "params":{"price_ct_per_kwh":30},"out":{"account":"energy","sign":"-"}},
		{"id":"vat","kind":"percent_of_account","depends_on":["energy"],"base_account":"energy",
		 "params":{"percent":19},"out":{"account":"tax","sign":"-"},
		 "beneficiary":{"role":"OPERATOR"}}
	]}`
	eng, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	postings, trace, err := eng.EvaluateEvent(mkEvent("meter", map[string]any{"kwh": 100}), core.RoleConsumer, 42)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	// energy = -30.00; vat = 19% of |−30| = 5.70, debited.
	if got := amountOf(t, postings, "vat"); !got.Equal(decimal.RequireFromString("-5.70")) {
		t.Fatalf("vat=%s want=-5.70", got)
	}
	for _, p := range postings {
		if p.RuleID == "vat" && p.BeneficiaryID != 42 {
			t.Fatalf("beneficiary=%d want=42", p.BeneficiaryID)
		}
	}
	var found bool
	for _, ev := range trace.Evaluations {
		if ev.RuleID == "vat" && ev.Beneficiary == core.RoleOperator {
			found = true
		}
	}
	if !found {
		t.Fatalf("trace missing operator beneficiary on vat")
	}
}

func TestEvaluateEvent_PercentOverSumAccounts(t *testing.T) {
	doc := `{"rules":[
		{"id":"a","kind":"rate","rate_expr":"10","out":{"account":"x","sign":"-"}},
		{"id":"b","kind":"rate","rate_expr":"20","out":{"account":"y","sign":"-"}},
		{"id":"levy","kind":"percent_over_sum_accounts","depends_on":["a","b"],
		 "accounts":["x","y"],"params":{"percent":10},"out":{"account":"levy","sign":"-"}}
	]}`
	eng, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	postings, _, err := eng.EvaluateEvent(mkEvent("meter", nil), core.RoleConsumer, 0)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	// 10% of |−30| = 3.00
	if got := amountOf(t, postings, "levy"); !got.Equal(decimal.RequireFromString("-3")) {
		t.Fatalf("levy=%s want=-3", got)
	}
}

func TestEvaluateEvent_AppliesToFacets(t *testing.T) {
	doc := `{"rules":[
		{"id":"feedin","kind":"rate","rate_expr":"kwh * feedin_ct_per_kwh / 100",
		 "params":{"feedin_ct_per_kwh":9},
		 "applies_to":{"source":["meter"],"tags":["solar"],"role":"PROSUMER"},
		 "out":{"account":"feedin","sign":"+"}}
	]}`
	eng, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	meta := map[string]any{"kwh": 10, "tags": []any{"solar"}}
	postings, _, err := eng.EvaluateEvent(mkEvent("meter", meta), core.RoleProsumer, 0)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if got := amountOf(t, postings, "feedin"); !got.Equal(decimal.RequireFromString("0.9")) {
		t.Fatalf("amount=%s want=0.9", got)
	}

	// Wrong role: the rule must not match.
	postings, trace, err := eng.EvaluateEvent(mkEvent("meter", meta), core.RoleConsumer, 0)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(postings) != 0 {
		t.Fatalf("postings=%d want=0", len(postings))
	}
	if trace.Evaluations[0].Matched {
		t.Fatalf("rule matched for wrong role")
	}

	// Wrong source.
	postings, _, _ = eng.EvaluateEvent(mkEvent("manual", meta), core.RoleProsumer, 0)
	if len(postings) != 0 {
		t.Fatalf("postings=%d want=0 for wrong source", len(postings))
	}

	// No tag intersection.
	postings, _, _ = eng.EvaluateEvent(mkEvent("meter", map[string]any{"kwh": 10, "tags": []any{"wind"}}), core.RoleProsumer, 0)
	if len(postings) != 0 {
		t.Fatalf("postings=%d want=0 for disjoint tags", len(postings))
	}
}

func TestEvaluateEvent_RunningStateIsPerCall(t *testing.T) {
	doc := `{"rules":[
		{"id":"energy","kind":"rate","rate_expr":"kwh * price_ct_per_kwh / 100",
		 "params":{"price_ct_per_kwh":30},"out":{"account":"energy","sign":"-"}},
		{"id":"vat","kind":"percent_of_account","depends_on":["energy"],"base_account":"energy",
		 "params":{"percent":19},"out":{"account":"tax","sign":"-"}}
	]}`
	eng, _ := Parse([]byte(doc))
	ev := mkEvent("meter", map[string]any{"kwh": 100})
	first, _, err := eng.EvaluateEvent(ev, core.RoleConsumer, 0)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	second, _, err := eng.EvaluateEvent(ev, core.RoleConsumer, 0)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !amountOf(t, first, "vat").Equal(amountOf(t, second, "vat")) {
		t.Fatalf("running state leaked across evaluations")
	}
}
