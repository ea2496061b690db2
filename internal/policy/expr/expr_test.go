package expr

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"kyde/internal/core"
)

func vars(kv map[string]string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(kv))
	for k, v := range kv {
		out[k] = decimal.RequireFromString(v)
	}
	return out
}

func TestEval_RateFormula(t *testing.T) {
	got, err := Eval("kwh * price_ct_per_kwh / 100", vars(map[string]string{
		"kwh":              "100",
		"price_ct_per_kwh": "8",
	}))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !got.Equal(decimal.RequireFromString("8")) {
		t.Fatalf("got=%s want=8", got)
	}
}

func TestEval_Arithmetic(t *testing.T) {
	cases := []struct {
		expr string
		env  map[string]string
		want string
	}{
		{"1 + 2 * 3", nil, "7"},
		{"(1 + 2) * 3", nil, "9"},
		{"-value + 10", map[string]string{"value": "4"}, "6"},
		{"--value", map[string]string{"value": "4"}, "4"},
		{"value / 0", map[string]string{"value": "12"}, "0"},
		{"min(3, 1, 2)", nil, "1"},
		{"max(3, 1, 2)", nil, "3"},
		{"round(2.345, 2)", nil, "2.35"},
		{"round(2.5)", nil, "3"},
		{"round(1.005 * 100) / 100", nil, "1.01"},
		{"min(kwh, 50) * percent / 100", map[string]string{"kwh": "80", "percent": "10"}, "5"},
	}
	for _, tc := range cases {
		got, err := Eval(tc.expr, vars(tc.env))
		if err != nil {
			t.Fatalf("%s: err=%v", tc.expr, err)
		}
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("%s: got=%s want=%s", tc.expr, got, tc.want)
		}
	}
}

func TestEval_MissingVariableIsZero(t *testing.T) {
	got, err := Eval("kwh * 2", nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !got.IsZero() {
		t.Fatalf("got=%s want=0", got)
	}
}

func TestParse_RejectsOutsideWhitelist(t *testing.T) {
	bad := []string{
		"evil",
		"kwh + secret",
		"os(1)",
		"pow(2, 3)",
		"kwh.attr",
		"kwh ** 2",
		"kwh % 3",
		"round(1, 2, 3)",
		"kwh +",
		"(kwh",
		"1 2",
		`"str"`,
	}
	for _, src := range bad {
		if _, err := Parse(src); err == nil {
			t.Fatalf("%q: expected validation error", src)
		} else if !errors.Is(err, core.ErrValidation) {
			t.Fatalf("%q: err=%v, want ErrValidation", src, err)
		}
	}
}

func TestParse_Reuse(t *testing.T) {
	ex, err := Parse("qty * value")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	for i := 1; i <= 3; i++ {
		got, err := ex.Eval(vars(map[string]string{"qty": "2", "value": "3"}))
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		if !got.Equal(decimal.RequireFromString("6")) {
			t.Fatalf("got=%s want=6", got)
		}
	}
}
