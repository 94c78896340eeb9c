package specmodel

import "testing"

func TestDigest_DeterministicForSameSpec(t *testing.T) {
	s1 := validSpec()
	s2 := validSpec()

	d1, err := s1.Digest()
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	d2, err := s2.Digest()
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	if d1 != d2 {
		t.Fatalf("digests differ for identical specs: %s != %s", d1, d2)
	}
}

func TestDigest_ChangesWithContent(t *testing.T) {
	s1 := validSpec()
	s2 := validSpec()
	s2.VersionID = "v2.0.0"

	d1, _ := s1.Digest()
	d2, _ := s2.Digest()
	if d1 == d2 {
		t.Fatal("expected different digests for different specs")
	}
}

func TestCanonicalJSON_StableAcrossCalls(t *testing.T) {
	s := validSpec()
	a, err := CanonicalJSON(&s)
	if err != nil {
		t.Fatalf("CanonicalJSON() error = %v", err)
	}
	b, err := CanonicalJSON(&s)
	if err != nil {
		t.Fatalf("CanonicalJSON() error = %v", err)
	}
	if string(a) != string(b) {
		t.Fatal("CanonicalJSON output is not stable across calls")
	}
}
