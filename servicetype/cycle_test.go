package servicetype

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 30, 0, 0, time.UTC)
}

func TestNextBillingDate(t *testing.T) {
	tests := []struct {
		name   string
		cycle  BillingCycle
		anchor time.Time
		want   time.Time
	}{
		{"monthly", CycleMonthly, date(2024, 3, 15), date(2024, 4, 15)},
		{"quarterly", CycleQuarterly, date(2024, 3, 15), date(2024, 6, 15)},
		{"yearly", CycleYearly, date(2024, 3, 15), date(2025, 3, 15)},
		{"unknown falls back to monthly", BillingCycle("weekly"), date(2024, 3, 15), date(2024, 4, 15)},
		{"empty falls back to monthly", BillingCycle(""), date(2024, 3, 15), date(2024, 4, 15)},
		{"monthly crosses year", CycleMonthly, date(2024, 12, 20), date(2025, 1, 20)},
		{"month end clamps to leap feb", CycleMonthly, date(2024, 1, 31), date(2024, 2, 29)},
		{"month end clamps to feb", CycleMonthly, date(2023, 1, 31), date(2023, 2, 28)},
		{"quarterly clamps to 30 day month", CycleQuarterly, date(2024, 1, 31), date(2024, 4, 30)},
		{"leap day yearly", CycleYearly, date(2024, 2, 29), date(2025, 2, 28)},
		{"quarterly crosses year", CycleQuarterly, date(2024, 11, 30), date(2025, 2, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextBillingDate(tt.cycle, tt.anchor)
			if !got.Equal(tt.want) {
				t.Errorf("NextBillingDate(%q, %s): got %s, want %s", tt.cycle, tt.anchor, got, tt.want)
			}
		})
	}
}

func TestNextBillingDateStrictlyIncreases(t *testing.T) {
	cycles := []BillingCycle{CycleMonthly, CycleQuarterly, CycleYearly, BillingCycle("bogus")}
	start := date(2023, 1, 1)

	for _, c := range cycles {
		for d := 0; d < 800; d++ {
			anchor := start.AddDate(0, 0, d)
			next := NextBillingDate(c, anchor)
			if !next.After(anchor) {
				t.Fatalf("%s: next %s not after anchor %s", c, next, anchor)
			}
			if again := NextBillingDate(c, anchor); !again.Equal(next) {
				t.Fatalf("%s: not deterministic for %s", c, anchor)
			}
		}
	}
}

func TestNextBillingDatePreservesClock(t *testing.T) {
	anchor := time.Date(2024, 5, 31, 23, 59, 59, 999, time.UTC)
	got := NextBillingDate(CycleMonthly, anchor)
	want := time.Date(2024, 6, 30, 23, 59, 59, 999, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestBillingCycleValid(t *testing.T) {
	for _, c := range []BillingCycle{CycleMonthly, CycleQuarterly, CycleYearly} {
		if !c.Valid() {
			t.Errorf("%q should be valid", c)
		}
	}
	if BillingCycle("weekly").Valid() {
		t.Error("weekly should not be valid")
	}
}

func TestTypeValid(t *testing.T) {
	for _, typ := range []Type{TypeHosting, TypeDomain, TypeSSL, TypeEmail} {
		if !typ.Valid() {
			t.Errorf("%q should be valid", typ)
		}
	}
	if Type("vps").Valid() {
		t.Error("vps should not be valid")
	}
}
