package core

import (
	"errors"
	"testing"
)

func TestCategoryValidate(t *testing.T) {
	cases := []struct {
		c  Category
		ok bool
	}{
		{"", true},
		{CategoryMeals, true},
		{CategoryTaxi, true},
		{"Groceries", false},
		{"meals", false},
	}
	for i, tc := range cases {
		err := tc.c.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidCategory) {
			t.Fatalf("case %d expected ErrInvalidCategory, got %v", i, err)
		}
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" business meals ")
	if err != nil || c != CategoryBusinessMeals {
		t.Fatalf("unexpected parse: %q err=%v", c, err)
	}
	if c, err := ParseCategory(""); err != nil || c != "" {
		t.Fatalf("empty category should be allowed: %q err=%v", c, err)
	}
	if _, err := ParseCategory("Snacks"); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestReportMetadataNormalize(t *testing.T) {
	m := ReportMetadata{ReportName: "  ", BaseCurrency: "XXX"}.Normalize()
	if m != DefaultReportMetadata() {
		t.Fatalf("expected defaults, got %+v", m)
	}

	m = ReportMetadata{ReportName: "Trip", BaseCurrency: "EUR"}.Normalize()
	if m.ReportName != "Trip" || m.BaseCurrency != "EUR" {
		t.Fatalf("valid metadata changed: %+v", m)
	}
}
