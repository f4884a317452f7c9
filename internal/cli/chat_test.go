// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"sync/atomic"
	"testing"
)

// =============================================================================
// CANCEL HANDLING
// =============================================================================

func TestCancelInFlightCancelsContext(t *testing.T) {
	s := &ChatSession{}
	ctx, cancel := context.WithCancel(context.Background())
	s.setCancel(cancel)

	if !s.cancelInFlight() {
		t.Fatal("expected an in-flight request to be cancelled")
	}
	select {
	case <-ctx.Done():
	default:
		t.Error("context was not cancelled")
	}

	// The slot is cleared; a second signal does nothing.
	if s.cancelInFlight() {
		t.Error("second cancel reported another in-flight request")
	}
}

func TestCancelInFlightWithoutRequest(t *testing.T) {
	s := &ChatSession{}
	if s.cancelInFlight() {
		t.Error("cancel reported an in-flight request on a fresh session")
	}
}

func TestCancelRacesWithPromptLoop(t *testing.T) {
	// The signal handler goroutine fires cancelInFlight while the prompt
	// loop installs and clears cancel functions. Each installed function
	// must run at most once, and the race detector must stay quiet.
	s := &ChatSession{}
	var invoked int64

	const rounds = 1000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < rounds; i++ {
			s.cancelInFlight()
		}
	}()

	for i := 0; i < rounds; i++ {
		_, cancel := context.WithCancel(context.Background())
		s.setCancel(func() {
			atomic.AddInt64(&invoked, 1)
		})
		s.cancelInFlight()
		s.setCancel(nil)
		cancel()
	}
	<-done

	if n := atomic.LoadInt64(&invoked); n > rounds {
		t.Errorf("cancel invoked %d times for %d installed functions", n, rounds)
	}
}
