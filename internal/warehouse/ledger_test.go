package warehouse

import (
	"testing"

	"fleetsim/internal/model"
)

func testLocations() map[string]model.Location {
	return map[string]model.Location{
		"010101": {Ubigeo: "010101", WarehouseCapacity: 100},
		"020202": {Ubigeo: "020202", WarehouseCapacity: 10},
	}
}

func TestLedgerReserveRelease(t *testing.T) {
	l := NewLedger(testLocations())

	l.Reserve("010101", 30)
	if got := l.Current("010101"); got != 70 {
		t.Fatalf("current = %d after reserve, want 70", got)
	}
	l.Release("010101", 30)
	if got := l.Current("010101"); got != 100 {
		t.Fatalf("current = %d after release, want 100", got)
	}
}

func TestLedgerClamps(t *testing.T) {
	l := NewLedger(testLocations())

	// Reserving past zero clamps, never goes negative.
	l.Reserve("020202", 15)
	if got := l.Current("020202"); got != 0 {
		t.Fatalf("current = %d, want clamp at 0", got)
	}
	// Releasing past the static capacity clamps at the capacity.
	l.Release("020202", 99)
	if got := l.Current("020202"); got != 10 {
		t.Fatalf("current = %d, want clamp at capacity 10", got)
	}
}

func TestLedgerUnknownWarehouse(t *testing.T) {
	l := NewLedger(testLocations())
	l.Reserve("999999", 5)
	l.Release("999999", 5)
	if got := l.Current("999999"); got != 0 {
		t.Fatalf("unknown warehouse current = %d, want 0", got)
	}
}

func TestLedgerSnapshotIsCopy(t *testing.T) {
	l := NewLedger(testLocations())
	snap := l.Snapshot()
	snap["010101"] = -1
	if got := l.Current("010101"); got != 100 {
		t.Fatalf("snapshot mutation leaked into ledger: %d", got)
	}
}
