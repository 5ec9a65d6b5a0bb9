package router

import (
	"sync"
	"testing"
)

func TestFrameLimiter_AllowsWithinBudget(t *testing.T) {
	fl := NewFrameLimiter(3)

	for i := 0; i < 3; i++ {
		if !fl.Allow("s1") {
			t.Errorf("Frame %d should be within budget", i+1)
		}
	}
	if fl.Allow("s1") {
		t.Error("Fourth frame in one window should be rejected")
	}
}

func TestFrameLimiter_PerStudentIsolation(t *testing.T) {
	fl := NewFrameLimiter(1)

	if !fl.Allow("s1") {
		t.Error("First frame from s1 should be allowed")
	}
	if fl.Allow("s1") {
		t.Error("Second frame from s1 should be rejected")
	}
	if !fl.Allow("s2") {
		t.Error("s2's budget should be independent of s1's")
	}
}

func TestFrameLimiter_ForgetResetsState(t *testing.T) {
	fl := NewFrameLimiter(1)

	fl.Allow("s1")
	if fl.Allow("s1") {
		t.Error("Over-budget frame should be rejected")
	}

	fl.Forget("s1")
	if !fl.Allow("s1") {
		t.Error("Budget should reset after Forget")
	}
}

func TestFrameLimiter_ConcurrentAccess(t *testing.T) {
	fl := NewFrameLimiter(1000)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				fl.Allow("shared")
			}
		}()
	}
	wg.Wait()

	// 500 frames under a 1000 budget, all should have been counted
	if fl.Allow("shared") != true {
		t.Error("Budget should not yet be exhausted")
	}
}
