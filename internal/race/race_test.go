package race

import (
	"testing"

	"github.com/netstrand/p2pnode/pkg/neterr"
)

// TestSpeedScenarioS4 mirrors the four-completion scenario: codes
// [timeout, success, success, success] over race_speed<2,4> invoke
// success exactly twice, with the payloads of the second and third
// completions, and finish exactly once with Success.
func TestSpeedScenarioS4(t *testing.T) {
	var successes []int
	var finishCode neterr.Code
	var finishes int

	r := NewSpeed[int](4, 2,
		func(v int) { successes = append(successes, v) },
		func(c neterr.Code) { finishCode = c; finishes++ },
	)

	r.Complete(neterr.OperationTimeout, 1)
	r.Complete(neterr.Success, 2)
	r.Complete(neterr.Success, 3)
	r.Complete(neterr.Success, 4)

	if len(successes) != 2 {
		t.Fatalf("successes = %v, want 2 entries", successes)
	}
	if successes[0] != 2 || successes[1] != 3 {
		t.Errorf("successes = %v, want [2 3]", successes)
	}
	if finishes != 1 {
		t.Fatalf("finishes = %d, want 1", finishes)
	}
	if finishCode != neterr.Success {
		t.Errorf("finishCode = %v, want Success", finishCode)
	}
}

func TestSpeedAllFailuresFinishesWithFirstError(t *testing.T) {
	var finishCode neterr.Code
	r := NewSpeed[int](3, 1, func(int) {}, func(c neterr.Code) { finishCode = c })

	r.Complete(neterr.OperationTimeout, 0)
	r.Complete(neterr.ConnectFailed, 0)
	r.Complete(neterr.OperationTimeout, 0)

	if finishCode != neterr.OperationTimeout {
		t.Errorf("finishCode = %v, want OperationTimeout (first observed failure)", finishCode)
	}
}

func TestQualityPicksSmallest(t *testing.T) {
	var winner int
	r := NewQuality[int](3, func(a, b int) bool { return a < b }, func(v int) { winner = v })

	r.Complete(5)
	r.Complete(1)
	r.Complete(3)

	if winner != 1 {
		t.Errorf("winner = %d, want 1", winner)
	}
}

func TestVolumeFiresSufficientThenComplete(t *testing.T) {
	var sufficientAt, completeAt int
	r := NewVolume(3, 2,
		func(n int) { sufficientAt = n },
		func(n int) { completeAt = n },
	)

	r.Complete()
	if sufficientAt != 0 {
		t.Fatalf("sufficient fired early at n=%d", sufficientAt)
	}
	r.Complete()
	if sufficientAt != 2 {
		t.Errorf("sufficientAt = %d, want 2", sufficientAt)
	}
	r.Complete()
	if completeAt != 3 {
		t.Errorf("completeAt = %d, want 3", completeAt)
	}
}

func TestUnityFinishesOnFirstFailureWhenFailFast(t *testing.T) {
	var finishes int
	var code neterr.Code
	r := NewUnity(3, true, func(c neterr.Code) { code = c; finishes++ })

	r.Complete(neterr.Success)
	r.Complete(neterr.ConnectFailed)
	r.Complete(neterr.Success) // must be ignored: already finished

	if finishes != 1 {
		t.Fatalf("finishes = %d, want 1", finishes)
	}
	if code != neterr.ConnectFailed {
		t.Errorf("code = %v, want ConnectFailed", code)
	}
}

func TestUnityWaitsForAllWithoutFailFast(t *testing.T) {
	var finishes int
	var code neterr.Code
	r := NewUnity(3, false, func(c neterr.Code) { code = c; finishes++ })

	r.Complete(neterr.Success)
	r.Complete(neterr.ConnectFailed)
	if finishes != 0 {
		t.Fatalf("finished early after 2/3 completions")
	}
	r.Complete(neterr.Success)

	if finishes != 1 {
		t.Fatalf("finishes = %d, want 1", finishes)
	}
	if code != neterr.ConnectFailed {
		t.Errorf("code = %v, want ConnectFailed", code)
	}
}

func TestAllCollectsUntilClose(t *testing.T) {
	var collected []int
	var closes int
	r := NewAll[int](func(vs []int) { collected = append([]int(nil), vs...); closes++ })

	r.Complete(1)
	r.Complete(2)
	r.Close()
	r.Complete(3) // dropped: closed
	r.Close()     // no-op: already closed

	if closes != 1 {
		t.Fatalf("closes = %d, want 1", closes)
	}
	if len(collected) != 2 || collected[0] != 1 || collected[1] != 2 {
		t.Errorf("collected = %v, want [1 2]", collected)
	}
}
