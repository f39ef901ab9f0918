package features

import (
	"errors"
	"io/fs"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/multierr"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// RotationFailureMode selects what a sink does with the pending write when a
// rotation fails
type RotationFailureMode int

const (
	// RotationContinue writes the message to the original file and reports
	// the rotation error
	RotationContinue RotationFailureMode = iota
	// RotationPropagate reports the rotation error without writing
	RotationPropagate
)

// ParseRotationFailureMode parses "continue" or "propagate"
func ParseRotationFailureMode(s string) (RotationFailureMode, error) {
	switch s {
	case "", "continue":
		return RotationContinue, nil
	case "propagate":
		return RotationPropagate, nil
	}
	return RotationContinue, types.NewLogError(types.ErrInvalidConfig, "config", "", "unknown rotation failure mode "+s, nil)
}

// RotatableFile is the view the manager needs of a file-backed sink. The
// manager calls it with the sink's lock held.
type RotatableFile interface {
	// Path returns the log file path
	Path() string
	// CloseFile flushes buffered output and closes the handle
	CloseFile() error
	// OpenFile opens the file at Path for appending, creating it if needed
	OpenFile() error
}

// Defaults for archive retries
const (
	DefaultRotationRetries    = 3
	DefaultRotationRetryDelay = 10 * time.Millisecond
)

// RotationManager decides when a file rotates and carries out the rotation:
// close the file, archive it, open a fresh file at the same path, reset the
// policy.
type RotationManager struct {
	policy   types.RotationPolicy
	strategy types.RotationStrategy

	mu          sync.RWMutex
	retries     uint
	retryDelay  time.Duration
	failureMode RotationFailureMode
	clock       Clock
	hookID      uint64
	before      []beforeHook
	after       []afterHook

	rotations atomic.Uint64
	failures  atomic.Uint64
}

// NewRotationManager creates a rotation manager. A nil policy never rotates
// on its own and a nil strategy uses NewPatternStrategy("").
func NewRotationManager(policy types.RotationPolicy, strategy types.RotationStrategy) *RotationManager {
	if policy == nil {
		policy = DisabledPolicy{}
	}
	if strategy == nil {
		strategy = NewPatternStrategy("")
	}
	return &RotationManager{
		policy:     policy,
		strategy:   strategy,
		retries:    DefaultRotationRetries,
		retryDelay: DefaultRotationRetryDelay,
	}
}

// Policy returns the rotation policy
func (r *RotationManager) Policy() types.RotationPolicy { return r.policy }

// Strategy returns the rotation strategy
func (r *RotationManager) Strategy() types.RotationStrategy { return r.strategy }

// SetRetry sets how many times the archive step is attempted and the delay
// between attempts
func (r *RotationManager) SetRetry(attempts uint, delay time.Duration) {
	if attempts == 0 {
		attempts = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = attempts
	r.retryDelay = delay
}

// SetFailureMode sets what happens to the pending write when rotation fails
func (r *RotationManager) SetFailureMode(mode RotationFailureMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failureMode = mode
}

// FailureMode returns the configured failure mode
func (r *RotationManager) FailureMode() RotationFailureMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failureMode
}

// SetClock sets the time source for rotation contexts
func (r *RotationManager) SetClock(c Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = c
}

type beforeHook struct {
	id uint64
	fn func(path string)
}

type afterHook struct {
	id uint64
	fn func(path, archive string)
}

// OnBeforeRotation registers fn to run before each rotation. The returned
// function unregisters it.
func (r *RotationManager) OnBeforeRotation(fn func(path string)) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hookID++
	id := r.hookID
	r.before = append(r.before, beforeHook{id: id, fn: fn})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, h := range r.before {
			if h.id == id {
				r.before = append(r.before[:i:i], r.before[i+1:]...)
				return
			}
		}
	}
}

// OnAfterRotation registers fn to run after each successful rotation.
// archive is empty when the strategy discarded the file. The returned
// function unregisters it.
func (r *RotationManager) OnAfterRotation(fn func(path, archive string)) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hookID++
	id := r.hookID
	r.after = append(r.after, afterHook{id: id, fn: fn})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, h := range r.after {
			if h.id == id {
				r.after = append(r.after[:i:i], r.after[i+1:]...)
				return
			}
		}
	}
}

// Seed passes the existing file's info to the policy
func (r *RotationManager) Seed(info fs.FileInfo) {
	if s, ok := r.policy.(types.Seeder); ok {
		s.Seed(info)
	}
}

// Rotations returns the number of completed rotations
func (r *RotationManager) Rotations() uint64 { return r.rotations.Load() }

// Failures returns the number of failed rotations
func (r *RotationManager) Failures() uint64 { return r.failures.Load() }

// Check asks the policy about the pending write and rotates when it fires.
// It reports whether a rotation was attempted.
func (r *RotationManager) Check(f RotatableFile, args types.RotationPolicyArgs) (bool, error) {
	if !r.policy.NeedsRotation(args) {
		return false, nil
	}
	_, err := r.rotate(f)
	return true, err
}

// ForceRotate rotates f regardless of the policy and returns the archive path
func (r *RotationManager) ForceRotate(f RotatableFile) (string, error) {
	return r.rotate(f)
}

func (r *RotationManager) rotate(f RotatableFile) (string, error) {
	r.mu.RLock()
	attempts, delay, clock := r.retries, r.retryDelay, r.clock
	before := append([]beforeHook(nil), r.before...)
	after := append([]afterHook(nil), r.after...)
	r.mu.RUnlock()

	path := f.Path()
	for _, h := range before {
		h.fn(path)
	}

	// The policy is reset whatever the outcome so a failing rotation is
	// retried at the next trigger rather than on every write.
	defer r.policy.Reset()

	if err := f.CloseFile(); err != nil {
		r.failures.Add(1)
		// keep writing where we were; the file keeps what it could not flush
		err = multierr.Append(err, f.OpenFile())
		return "", types.NewLogError(types.ErrLogIO, "rotate", path, "closing log file", err)
	}

	rc := types.RotationContext{Path: path, Time: clock.now()}
	var archive string
	err := retry.New(
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return archive == "" && !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, types.ErrLogRotation)
		}),
	).Do(func() error {
		var err error
		archive, err = r.strategy.Archive(rc)
		return err
	})

	if err != nil && archive == "" {
		r.failures.Add(1)
		if openErr := f.OpenFile(); openErr != nil {
			return "", types.NewLogError(types.ErrLogIO, "rotate", path, "reopening log file after failed rotation", openErr)
		}
		var le *types.LogError
		if errors.As(err, &le) {
			return "", le
		}
		return "", types.NewLogError(types.ErrLogIO, "rotate", path, "archiving log file", err)
	}

	if openErr := f.OpenFile(); openErr != nil {
		r.failures.Add(1)
		return archive, types.NewLogError(types.ErrLogIO, "rotate", path, "opening fresh log file", openErr)
	}

	r.rotations.Add(1)
	for _, h := range after {
		h.fn(path, archive)
	}

	// A strategy may move the file and then fail a follow-up step such as
	// compression; the rotation itself succeeded.
	return archive, err
}
