package kernel

import (
	"sync"
	"testing"
)

func resetCPUs(t *testing.T) {
	t.Helper()
	usedCPUs.Store(ReservedCoreMask)
	for i := range coreFuncs {
		coreFuncs[i] = nil
	}
}

func TestSpawnClaimsLowestFreeBit(t *testing.T) {
	resetCPUs(t)

	done := make(chan struct{})
	Spawn(func() { close(done) })

	// secondaryEntry is a no-op off arm64 (psci.smc returns without
	// starting anything), so the bit reserved by Spawn's CAS is
	// asserted directly: with ReservedCoreMask = 0b11, the lowest free
	// bit is 2.
	if got := usedCPUs.Load(); got&(1<<2) == 0 {
		t.Fatalf("usedCPUs = %#b, want bit 2 set", got)
	}
}

// TestSpawnNeverGrantsSameBitTwice runs Spawn's search-and-CAS claim
// loop from several goroutines at once and checks that no core index
// is handed out twice. It replays the loop rather than calling Spawn,
// since Spawn does not report which core it claimed.
func TestSpawnNeverGrantsSameBitTwice(t *testing.T) {
	resetCPUs(t)

	const n = 8

	var wg sync.WaitGroup
	claimed := make(chan uint32, n)

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for {
				used := usedCPUs.Load()
				if used == 1<<MaxCores-1 {
					continue
				}

				core := lowestFreeBit(used)
				next := used | (1 << core)

				if usedCPUs.CompareAndSwap(used, next) {
					claimed <- core
					return
				}
			}
		}()
	}

	wg.Wait()
	close(claimed)

	seen := map[uint32]bool{}
	for core := range claimed {
		if seen[core] {
			t.Fatalf("core %d claimed twice", core)
		}

		seen[core] = true
	}

	if len(seen) != n {
		t.Fatalf("claimed %d distinct cores, want %d", len(seen), n)
	}
}

// TestRetireRunsClosureAndClearsBit exercises retire directly rather
// than secondaryMain, since secondaryMain also calls gic.Init, which on
// the arm64 build writes to the real GIC's fixed hardware addresses
// (see arm/gic's own tests for how Init is exercised against a fake
// instead).
func TestRetireRunsClosureAndClearsBit(t *testing.T) {
	resetCPUs(t)

	const core = 5

	usedCPUs.Store(usedCPUs.Load() | (1 << core))

	ran := false
	coreFuncs[core] = func() { ran = true }

	retire(core)

	if !ran {
		t.Fatalf("retire did not run the installed closure")
	}

	if usedCPUs.Load()&(1<<core) != 0 {
		t.Fatalf("retire did not clear bit %d", core)
	}
}

func TestLowestFreeBitSkipsReserved(t *testing.T) {
	if got := lowestFreeBit(ReservedCoreMask); got != 2 {
		t.Fatalf("lowestFreeBit(%#b) = %d, want 2", ReservedCoreMask, got)
	}
}
