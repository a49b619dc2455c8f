package primitives

import "testing"

func TestSummaryIsSaneRejectsEmpty(t *testing.T) {
	s := NewSummary()
	if err := s.IsSane(); err == nil {
		t.Fatal("an empty summary must not be sane")
	}
}

func TestSummaryIsSaneRejectsNonZeroSum(t *testing.T) {
	_, addr := newWalletKey(t)
	s := NewSummary()
	s.AddItem(addr, 1, 100, 0)
	if err := s.IsSane(); err == nil {
		t.Fatal("a non-zero-sum summary must not be sane")
	}
}

func TestSummaryBalancedIsSane(t *testing.T) {
	_, a := newWalletKey(t)
	_, b := newWalletKey(t)
	s := NewSummary()
	s.AddItem(a, 1, -100, 0)
	s.AddItem(b, 1, 100, 0)
	if err := s.IsSane(); err != nil {
		t.Fatalf("balanced summary should be sane: %v", err)
	}
}

func TestSummaryCanonicalBytesOrderIndependent(t *testing.T) {
	_, a := newWalletKey(t)
	_, b := newWalletKey(t)

	s1 := NewSummary()
	s1.AddItem(a, 1, -50, 0)
	s1.AddItem(b, 1, 50, 0)

	s2 := NewSummary()
	s2.AddItem(b, 1, 50, 0)
	s2.AddItem(a, 1, -50, 0)

	if string(s1.CanonicalBytes()) != string(s2.CanonicalBytes()) {
		t.Fatal("canonical bytes must not depend on AddItem call order")
	}
}

func TestSummaryDelayedVsImmediateSeparation(t *testing.T) {
	_, a := newWalletKey(t)
	_, b := newWalletKey(t)
	s := NewSummary()
	s.AddItem(a, 1, -100, 0)
	s.AddItem(b, 1, 100, 99999) // delayed credit
	if err := s.IsSane(); err != nil {
		t.Fatalf("delayed and immediate entries must still sum to zero together: %v", err)
	}
	transfers := s.GetTransfers()
	var sawDelayed bool
	for _, tr := range transfers {
		if tr.Delay != 0 {
			sawDelayed = true
			if tr.Amount != 100 {
				t.Fatalf("delayed transfer amount = %d, want 100", tr.Amount)
			}
		}
	}
	if !sawDelayed {
		t.Fatal("GetTransfers lost the delayed entry")
	}
}

func TestSummaryRoundTrip(t *testing.T) {
	_, a := newWalletKey(t)
	_, b := newWalletKey(t)
	s := NewSummary()
	s.AddItem(a, 1, -100, 0)
	s.AddItem(b, 1, 80, 0)
	s.AddItem(b, 2, 20, 500)
	s.AddItem(a, 2, -20, 500)

	data := s.CanonicalBytes()
	parsed, n, err := ParseSummary(data)
	if err != nil {
		t.Fatalf("ParseSummary: %v", err)
	}
	if n != len(data) {
		t.Fatalf("consumed %d bytes, want %d", n, len(data))
	}
	if string(parsed.CanonicalBytes()) != string(data) {
		t.Fatal("summary did not round trip byte-for-byte")
	}
}

func TestSummaryMerge(t *testing.T) {
	_, a := newWalletKey(t)
	_, b := newWalletKey(t)

	s1 := NewSummary()
	s1.AddItem(a, 1, -30, 0)
	s1.AddItem(b, 1, 30, 0)

	s2 := NewSummary()
	s2.AddItem(a, 1, -70, 0)
	s2.AddItem(b, 1, 70, 0)

	merged := NewSummary()
	merged.Merge(s1)
	merged.Merge(s2)
	if err := merged.IsSane(); err != nil {
		t.Fatalf("merged summary should be sane: %v", err)
	}

	direct := NewSummary()
	direct.AddItem(a, 1, -100, 0)
	direct.AddItem(b, 1, 100, 0)
	if string(merged.CanonicalBytes()) != string(direct.CanonicalBytes()) {
		t.Fatal("Merge did not fold to the same aggregate as direct AddItem calls")
	}
}
