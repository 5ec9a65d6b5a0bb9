package sampler

import (
	"fmt"
	"math/rand"
	"testing"

	"proctorhub/internal/config"
)

func testSampler(seed int64) *Sampler {
	return New(config.ProctoringConfig{
		SampleRate:  0.15,
		MinObserved: 5,
		MaxObserved: 60,
	}, rand.New(rand.NewSource(seed)))
}

func TestSampler_ObservedCount(t *testing.T) {
	s := testSampler(1)

	tests := []struct {
		name  string
		total int
		want  int
	}{
		{"empty cohort", 0, 0},
		{"negative total", -3, 0},
		{"single student", 1, 1},
		{"below floor capped by total", 3, 3},
		{"floor applies", 10, 5},
		{"rate above floor", 40, 6},
		{"ceiling rounds up", 41, 7},
		{"large cohort hits cap", 1000, 60},
		{"exactly at cap boundary", 400, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.ObservedCount(tt.total); got != tt.want {
				t.Errorf("ObservedCount(%d) = %d, want %d", tt.total, got, tt.want)
			}
		})
	}
}

func TestSampler_SelectSize(t *testing.T) {
	s := testSampler(42)

	for _, total := range []int{1, 3, 10, 40, 100, 500} {
		ids := makeIDs(total)
		selected := s.Select(ids)
		want := s.ObservedCount(total)
		if len(selected) != want {
			t.Errorf("Select with %d students returned %d, want %d", total, len(selected), want)
		}
	}
}

func TestSampler_SelectEmpty(t *testing.T) {
	s := testSampler(1)
	if got := s.Select(nil); got != nil {
		t.Errorf("Select(nil) = %v, want nil", got)
	}
	if got := s.Select([]string{}); got != nil {
		t.Errorf("Select(empty) = %v, want nil", got)
	}
}

func TestSampler_SelectReturnsDistinctMembers(t *testing.T) {
	s := testSampler(7)
	ids := makeIDs(100)
	valid := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		valid[id] = struct{}{}
	}

	selected := s.Select(ids)
	seen := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		if _, ok := valid[id]; !ok {
			t.Errorf("Selected unknown student %s", id)
		}
		if _, dup := seen[id]; dup {
			t.Errorf("Student %s selected twice", id)
		}
		seen[id] = struct{}{}
	}
}

func TestSampler_SelectDoesNotMutateInput(t *testing.T) {
	s := testSampler(3)
	ids := makeIDs(50)
	original := make([]string, len(ids))
	copy(original, ids)

	s.Select(ids)

	for i := range ids {
		if ids[i] != original[i] {
			t.Fatalf("Select mutated input at index %d: %s != %s", i, ids[i], original[i])
		}
	}
}

func TestSampler_SelectDeterministicForFixedSeed(t *testing.T) {
	ids := makeIDs(100)

	first := testSampler(99).Select(ids)
	second := testSampler(99).Select(ids)

	if len(first) != len(second) {
		t.Fatalf("Fixed-seed selections differ in size: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Fixed-seed selections differ at %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestSampler_SelectionRotatesAcrossCalls(t *testing.T) {
	// With 100 students and 15 observed, two consecutive fresh shuffles from
	// one RNG producing identical sets is astronomically unlikely
	s := testSampler(5)
	ids := makeIDs(100)

	first := asSet(s.Select(ids))
	second := asSet(s.Select(ids))

	same := true
	for id := range first {
		if _, ok := second[id]; !ok {
			same = false
			break
		}
	}
	if same && len(first) == len(second) {
		t.Error("Consecutive selections should rotate membership")
	}
}

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("student-%03d", i)
	}
	return ids
}

func asSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
