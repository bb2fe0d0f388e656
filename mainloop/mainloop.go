// Package mainloop implements the cooperative scheduler of the flow
// runtime: a single-threaded loop driving timeouts and idlers with
// re-entrancy-safe deferred deletion.
//
// All callbacks run on the goroutine that called Run. Handlers may add and
// delete timeouts and idlers freely from within a processing pass; physical
// removal is deferred until the pass ends and an entry added mid-pass never
// fires within the pass that created it.
package mainloop

import (
	"fmt"
	"time"

	"github.com/loomengine/loom/pkg/flowerr"
	"github.com/loomengine/loom/pkg/vector"
	"go.uber.org/atomic"
)

// DefaultSleep bounds the loop's sleep when no timeout is pending.
const DefaultSleep = 10 * time.Millisecond

// Timeout is the handle of a scheduled callback. The callback fires at or
// after its expiry on the loop goroutine and repeats with its period while
// it keeps returning true.
type Timeout struct {
	period   time.Duration
	expire   time.Time
	cb       func() bool
	removeMe bool
}

type idlerStatus int

const (
	idlerReady idlerStatus = iota
	idlerReadyOnNextIteration
	idlerDeleted
)

// Idler is the handle of a callback run once per loop pass while it keeps
// returning true.
type Idler struct {
	cb     func() bool
	status idlerStatus
}

// loop is the process-wide scheduler state.
type loop struct {
	initialized bool
	running     atomic.Bool
	wake        chan struct{}

	timeouts          vector.PtrVector[Timeout]
	timeoutProcessing bool
	timeoutPendingDel int

	idlers          vector.PtrVector[Idler]
	idlerProcessing bool
	idlerPendingDel int
}

var ml loop

func timeoutCmp(a, b *Timeout) int {
	return a.expire.Compare(b.expire)
}

// Init prepares the loop singletons. It is idempotent and implied by the
// add functions and Run.
func Init() {
	if ml.initialized {
		return
	}
	ml.initialized = true
	ml.wake = make(chan struct{}, 1)
}

// Shutdown tears the loop down, freeing every remaining timeout and idler.
// Must not be called from within a processing pass.
func Shutdown() {
	if !ml.initialized {
		return
	}
	ml.running.Store(false)
	ml.timeouts.Clear()
	ml.idlers.Clear()
	ml.timeoutPendingDel = 0
	ml.idlerPendingDel = 0
	ml.initialized = false
	ml.wake = nil
}

// TimeoutAdd schedules cb to fire after d and then every d while it returns
// true. A timeout added from within a processing pass does not fire before
// its expiry regardless of pass timing.
func TimeoutAdd(d time.Duration, cb func() bool) (*Timeout, error) {
	if cb == nil {
		return nil, fmt.Errorf("timeout callback is nil: %w", flowerr.ErrInvalidArgument)
	}
	if d < 0 {
		return nil, fmt.Errorf("timeout period %v: %w", d, flowerr.ErrInvalidArgument)
	}
	Init()
	t := &Timeout{period: d, expire: time.Now().Add(d), cb: cb}
	if _, err := ml.timeouts.InsertSorted(t, timeoutCmp); err != nil {
		return nil, err
	}
	wakeup()
	return t, nil
}

// Del cancels the timeout. Called from within its own or another handler,
// the entry is only marked; the single physical removal happens after the
// pass completes and the callback is never invoked again.
func (t *Timeout) Del() error {
	if t == nil || t.removeMe {
		return fmt.Errorf("timeout already deleted: %w", flowerr.ErrNotFound)
	}
	t.removeMe = true
	if ml.timeoutProcessing {
		ml.timeoutPendingDel++
		return nil
	}
	return ml.timeouts.Remove(t)
}

// IdleAdd registers cb to run once per loop pass while it returns true. An
// idler added from within a pass is held back until the next pass.
func IdleAdd(cb func() bool) (*Idler, error) {
	if cb == nil {
		return nil, fmt.Errorf("idler callback is nil: %w", flowerr.ErrInvalidArgument)
	}
	Init()
	it := &Idler{cb: cb}
	if ml.idlerProcessing {
		it.status = idlerReadyOnNextIteration
	}
	if err := ml.idlers.Append(it); err != nil {
		return nil, err
	}
	wakeup()
	return it, nil
}

// Del cancels the idler with the same deferred-removal discipline as
// Timeout.Del.
func (it *Idler) Del() error {
	if it == nil || it.status == idlerDeleted {
		return fmt.Errorf("idler already deleted: %w", flowerr.ErrNotFound)
	}
	it.status = idlerDeleted
	if ml.idlerProcessing {
		ml.idlerPendingDel++
		return nil
	}
	return ml.idlers.Remove(it)
}

// timeoutProcess fires every expired timeout in expiry order. Renewed
// entries advance by their period and are re-sorted in place; entries that
// return false or were deleted mid-pass are reaped afterwards by a reverse
// walk so indices stay stable.
func timeoutProcess(cont func() bool) {
	wasProcessing := ml.timeoutProcessing
	ml.timeoutProcessing = true
	now := time.Now()
	for i := 0; i < ml.timeouts.Len() && cont(); i++ {
		t, _ := ml.timeouts.Get(i)
		if t.removeMe {
			continue
		}
		if t.expire.After(now) {
			break
		}
		if !t.cb() {
			if !t.removeMe {
				t.removeMe = true
				ml.timeoutPendingDel++
			}
			continue
		}
		if t.removeMe {
			continue
		}
		t.expire = t.expire.Add(t.period)
		// Renewal moves the entry right, shifting its successors down by
		// one. Re-examine index i in that case so no expired entry is
		// skipped; advance only when the entry kept its slot.
		if next, err := ml.timeouts.UpdateSorted(i, timeoutCmp); err == nil && next > i {
			i--
		}
	}
	ml.timeoutProcessing = wasProcessing
	if !ml.timeoutProcessing && ml.timeoutPendingDel > 0 {
		for i := ml.timeouts.Len() - 1; i >= 0 && ml.timeoutPendingDel > 0; i-- {
			t, _ := ml.timeouts.Get(i)
			if t.removeMe {
				ml.timeouts.Del(i)
				ml.timeoutPendingDel--
			}
		}
	}
}

// idlerProcess runs every ready idler once. Entries added during the pass
// were marked ReadyOnNextIteration and are merely promoted; expired
// timeouts are processed between idlers so long idler chains do not starve
// timers.
func idlerProcess(cont func() bool) {
	ml.idlerProcessing = true
	for i := 0; i < ml.idlers.Len() && cont(); i++ {
		it, _ := ml.idlers.Get(i)
		switch it.status {
		case idlerReadyOnNextIteration:
			it.status = idlerReady
			continue
		case idlerDeleted:
			continue
		}
		if !it.cb() && it.status != idlerDeleted {
			it.status = idlerDeleted
			ml.idlerPendingDel++
		}
		timeoutProcess(cont)
	}
	ml.idlerProcessing = false
	if ml.idlerPendingDel > 0 {
		for i := ml.idlers.Len() - 1; i >= 0 && ml.idlerPendingDel > 0; i-- {
			it, _ := ml.idlers.Get(i)
			if it.status == idlerDeleted {
				ml.idlers.Del(i)
				ml.idlerPendingDel--
			}
		}
	}
}

// Iterate runs one full scheduling pass without sleeping: expired timeouts,
// then ready idlers. Intended for callers driving the loop themselves.
func Iterate() {
	Init()
	always := func() bool { return true }
	timeoutProcess(always)
	idlerProcess(always)
}

func hasLiveIdlers() bool {
	for _, it := range ml.idlers.Slice() {
		if it.status != idlerDeleted {
			return true
		}
	}
	return false
}

// sleepFor returns how long the loop may sleep before the next pass.
func sleepFor(now time.Time) time.Duration {
	if hasLiveIdlers() {
		return 0
	}
	for _, t := range ml.timeouts.Slice() {
		if t.removeMe {
			continue
		}
		d := t.expire.Sub(now)
		if d < 0 {
			return 0
		}
		return d
	}
	return DefaultSleep
}

// Run drives the loop until Quit. It returns ErrInvalidState when the loop
// is already running.
func Run() error {
	Init()
	if !ml.running.CompareAndSwap(false, true) {
		return fmt.Errorf("main loop already running: %w", flowerr.ErrInvalidState)
	}
	cont := ml.running.Load
	for ml.running.Load() {
		timeoutProcess(cont)
		idlerProcess(cont)
		if !ml.running.Load() {
			break
		}
		if d := sleepFor(time.Now()); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-timer.C:
			case <-ml.wake:
				timer.Stop()
			}
		}
	}
	return nil
}

// Quit stops Run after the operation in flight. Safe to call from handlers
// and from other goroutines.
func Quit() {
	ml.running.Store(false)
	wakeup()
}

func wakeup() {
	if ml.wake == nil {
		return
	}
	select {
	case ml.wake <- struct{}{}:
	default:
	}
}
