package device

import (
	"testing"
	"time"
)

func TestForHub(t *testing.T) {
	devices := testDevices()

	if got := ids(ForHub(devices, "h1")); !equalIDs(got, []string{"t1", "m1", "p1"}) {
		t.Errorf("ForHub(h1) = %v", got)
	}
	got := ForHub(devices, "")
	if got == nil || len(got) != 0 {
		t.Errorf("ForHub(\"\") = %#v, want empty non-nil slice", got)
	}
	if got := ForHub(devices, "nope"); len(got) != 0 {
		t.Errorf("ForHub(nope) = %v", ids(got))
	}
}

func TestForArea(t *testing.T) {
	if got := ids(ForArea(testDevices(), "a1")); !equalIDs(got, []string{"t1", "c1"}) {
		t.Errorf("ForArea(a1) = %v", got)
	}
}

func TestUnassignedForHub(t *testing.T) {
	devices := testDevices()
	if got := ids(UnassignedForHub(devices, "h1")); !equalIDs(got, []string{"p1"}) {
		t.Errorf("UnassignedForHub(h1) = %v", got)
	}
	if got := ids(UnassignedForHub(devices, "h2")); !equalIDs(got, []string{"x1"}) {
		t.Errorf("UnassignedForHub(h2) = %v", got)
	}
	if got := UnassignedForHub(devices, ""); len(got) != 0 {
		t.Errorf("UnassignedForHub(\"\") = %v", ids(got))
	}
}

func TestByID(t *testing.T) {
	d, ok := ByID(testDevices(), "m1")
	if !ok || d.Name != "Hall PIR" {
		t.Errorf("ByID(m1) = %+v, %v", d, ok)
	}
	if _, ok := ByID(testDevices(), "missing"); ok {
		t.Error("ByID(missing) should not be found")
	}
}

func TestSelectorsDoNotMutateInput(t *testing.T) {
	devices := testDevices()
	before := ids(devices)

	out := ForHub(devices, "h1")
	out[0].Name = "mutated"
	FilterDevices(devices, Filter{Category: CategoryControl})
	ComputeStats(devices)

	if devices[0].Name != "Lounge Temp" {
		t.Error("ForHub result aliases the input")
	}
	if !equalIDs(ids(devices), before) {
		t.Error("input order changed")
	}
}

func TestComputeStats(t *testing.T) {
	devices := testDevices()
	stats := ComputeStats(devices)

	if stats.Total != len(devices) {
		t.Errorf("Total = %d, want %d", stats.Total, len(devices))
	}

	sum := 0
	for _, n := range stats.ByCategory {
		sum += n
	}
	if sum != len(devices) {
		t.Errorf("sum(ByCategory) = %d, want %d", sum, len(devices))
	}

	want := map[Category]int{CategoryEnvironmental: 2, CategorySecurity: 2, CategoryControl: 1}
	for c, n := range want {
		if stats.ByCategory[c] != n {
			t.Errorf("ByCategory[%s] = %d, want %d", c, stats.ByCategory[c], n)
		}
	}

	if stats.ByArea["a1"] != 2 || stats.ByArea["a2"] != 1 || len(stats.ByArea) != 2 {
		t.Errorf("ByArea = %v", stats.ByArea)
	}

	wantLatest := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	if stats.LatestAt == nil || !stats.LatestAt.Equal(wantLatest) {
		t.Errorf("LatestAt = %v, want %v", stats.LatestAt, wantLatest)
	}
}

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil)
	if stats.Total != 0 || stats.LatestAt != nil {
		t.Errorf("empty stats = %+v", stats)
	}
	for _, c := range AllCategories() {
		if n, ok := stats.ByCategory[c]; !ok || n != 0 {
			t.Errorf("ByCategory[%s] = %d, %v; want 0, true", c, n, ok)
		}
	}
}
