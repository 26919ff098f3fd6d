package sample

import "testing"

func TestPoolAcquireRelease(t *testing.T) {
	p := New(8, 4)

	out := make([]*Sample, 3)
	n := p.Acquire(out)
	if n != 3 {
		t.Fatalf("expected 3 acquired, got %d", n)
	}
	if avail := p.Available(); avail != 5 {
		t.Fatalf("expected 5 available, got %d", avail)
	}

	released, err := p.Release(out, n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released != 3 {
		t.Fatalf("expected 3 released, got %d", released)
	}
	if avail := p.Available(); avail != 8 {
		t.Fatalf("expected 8 available after release, got %d", avail)
	}
}

func TestPoolExhaustionReturnsFewer(t *testing.T) {
	p := New(2, 4)

	out := make([]*Sample, 5)
	n := p.Acquire(out)
	if n != 2 {
		t.Fatalf("expected pool exhaustion to cap acquire at 2, got %d", n)
	}
	if p.Available() != 0 {
		t.Fatalf("expected 0 available, got %d", p.Available())
	}

	// A further acquire never blocks; it just returns 0.
	more := make([]*Sample, 1)
	if k := p.Acquire(more); k != 0 {
		t.Fatalf("expected 0 from exhausted pool, got %d", k)
	}
}

func TestPoolForeignSampleRejected(t *testing.T) {
	a := New(2, 2)
	b := New(2, 2)

	out := make([]*Sample, 1)
	a.Acquire(out)

	if _, err := b.Release(out, 1); err != ErrForeignSample {
		t.Fatalf("expected ErrForeignSample, got %v", err)
	}
	// a's accounting must be untouched by the rejected call.
	if a.Available() != 1 {
		t.Fatalf("expected a's free count unaffected, got %d", a.Available())
	}
}

func TestPoolMultiRefcountReleasesOnLastReader(t *testing.T) {
	p := New(1, 2)

	out := make([]*Sample, 1)
	p.Acquire(out)
	s := out[0]

	// Two extra readers retain the sample beyond the producer's own ref.
	s.Get()
	s.Get()

	if released, _ := p.Release(out, 1); released != 0 {
		t.Fatalf("expected no release while refs remain, got %d", released)
	}
	if released, _ := p.Release(out, 1); released != 0 {
		t.Fatalf("expected no release with one ref remaining, got %d", released)
	}
	if released, _ := p.Release(out, 1); released != 1 {
		t.Fatalf("expected release on last reference, got %d", released)
	}
	if p.Available() != 1 {
		t.Fatalf("expected sample back on free-list, got %d available", p.Available())
	}
}

func TestPoolLeakInvariant(t *testing.T) {
	const n = 16
	p := New(n, 1)

	out := make([]*Sample, n)
	got := p.Acquire(out)
	if got != n {
		t.Fatalf("expected to acquire all %d samples, got %d", n, got)
	}
	if p.Available() != 0 {
		t.Fatalf("expected 0 available while all in flight")
	}

	released, err := p.Release(out, n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released != n {
		t.Fatalf("expected all %d released, got %d", n, released)
	}
	if p.Available() != n {
		t.Fatalf("free-list ∪ in-flight must equal pool capacity: got %d available", p.Available())
	}
}
