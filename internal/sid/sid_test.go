package sid

import "testing"

func TestNewStableAcrossCalls(t *testing.T) {
	a := New("/tmp/atom.mm", 10, 4, "gate7/contract_violation")
	b := New("/tmp/atom.mm", 10, 4, "gate7/contract_violation")
	if a != b {
		t.Fatalf("expected stable SID, got %q and %q", a, b)
	}
}

func TestNewChangesWithPosition(t *testing.T) {
	a := New("/tmp/atom.mm", 10, 4, "gate7/contract_violation")
	b := New("/tmp/atom.mm", 11, 4, "gate7/contract_violation")
	if a == b {
		t.Fatalf("expected distinct SIDs for distinct lines")
	}
}

func TestNewChangesWithKind(t *testing.T) {
	a := New("/tmp/atom.mm", 10, 4, "gate7/contract_violation")
	b := New("/tmp/atom.mm", 10, 4, "gate9/law_violation")
	if a == b {
		t.Fatalf("expected distinct SIDs for distinct kinds")
	}
}

func TestNewIsRelativePathStable(t *testing.T) {
	a := New("./atom.mm", 1, 1, "gate0/parse")
	b := New("atom.mm", 1, 1, "gate0/parse")
	if a != b {
		t.Fatalf("expected canonicalization to make %q and %q equal", "./atom.mm", "atom.mm")
	}
}
