package domain

import "testing"

func TestPhaseAdvancesForwardOnly(t *testing.T) {
	forward := []Phase{
		PhasePreLogin,
		PhaseLoginSuggested,
		PhaseSecured,
		PhaseConflictCheckComplete,
		PhaseDataGathering,
		PhaseCompleted,
	}
	for i := 0; i < len(forward)-1; i++ {
		if !forward[i].CanTransition(forward[i+1]) {
			t.Fatalf("expected %s -> %s to be legal", forward[i].Label(), forward[i+1].Label())
		}
	}

	// No skipping and no moving backwards.
	if PhasePreLogin.CanTransition(PhaseSecured) {
		t.Fatal("expected phase skip to be illegal")
	}
	if PhaseSecured.CanTransition(PhaseLoginSuggested) {
		t.Fatal("expected backwards transition to be illegal")
	}
}

func TestPhaseTerminatedReachableFromNonTerminal(t *testing.T) {
	nonTerminal := []Phase{
		PhasePreLogin,
		PhaseLoginSuggested,
		PhaseSecured,
		PhaseConflictCheckComplete,
		PhaseDataGathering,
	}
	for _, phase := range nonTerminal {
		if !phase.CanTransition(PhaseTerminated) {
			t.Fatalf("expected %s -> terminated to be legal", phase.Label())
		}
	}

	if PhaseCompleted.CanTransition(PhaseTerminated) {
		t.Fatal("expected completed to reject termination")
	}
	if PhaseTerminated.CanTransition(PhasePreLogin) {
		t.Fatal("expected terminated to reject any transition")
	}
}

func TestPhaseLabelRoundTrip(t *testing.T) {
	phases := []Phase{
		PhasePreLogin,
		PhaseLoginSuggested,
		PhaseSecured,
		PhaseConflictCheckComplete,
		PhaseDataGathering,
		PhaseCompleted,
		PhaseTerminated,
	}
	for _, phase := range phases {
		if got := PhaseFromLabel(phase.Label()); got != phase {
			t.Fatalf("round trip for %s returned %s", phase.Label(), got.Label())
		}
	}
	if got := PhaseFromLabel("no-such-phase"); got != PhaseUnspecified {
		t.Fatalf("expected unspecified for unknown label, got %s", got.Label())
	}
}
