package features

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// Clock returns the current time. Time-based policies take one so tests can
// move time forward.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// SizeLimitPolicy rotates once the bytes written since the last rotation
// reach MaxBytes. The check happens before the pending message is counted, so
// writing exactly MaxBytes makes the following write rotate.
type SizeLimitPolicy struct {
	MaxBytes int64

	// CountTriggering charges the message that triggered a rotation to the
	// fresh file instead of dropping it from the count.
	CountTriggering bool

	mu      sync.Mutex
	total   int64
	pending int64
}

// NewSizeLimitPolicy creates a size policy. maxBytes must be positive.
func NewSizeLimitPolicy(maxBytes int64) (*SizeLimitPolicy, error) {
	if maxBytes <= 0 {
		return nil, types.NewLogError(types.ErrLogRotation, "policy", "", fmt.Sprintf("size limit must be positive, got %d", maxBytes), nil)
	}
	return &SizeLimitPolicy{MaxBytes: maxBytes}, nil
}

// NeedsRotation implements types.RotationPolicy
func (p *SizeLimitPolicy) NeedsRotation(args types.RotationPolicyArgs) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := int64(len(args.Rendered)) + 1
	if p.total >= p.MaxBytes {
		p.pending = n
		return true
	}
	p.total += n
	return false
}

// Reset implements types.RotationPolicy
func (p *SizeLimitPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = 0
	if p.CountTriggering {
		p.total = p.pending
	}
	p.pending = 0
}

// Seed starts the count at the size of the existing file
func (p *SizeLimitPolicy) Seed(info os.FileInfo) {
	if info == nil {
		return
	}
	p.mu.Lock()
	p.total = info.Size()
	p.mu.Unlock()
}

// Written returns the byte count since the last rotation
func (p *SizeLimitPolicy) Written() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// SchedulePolicy rotates on the first write at or after the next time
// matched by a cron schedule. Nothing runs in the background: a boundary that
// passes while no one logs is noticed on the next write.
type SchedulePolicy struct {
	Clock Clock

	mu       sync.Mutex
	schedule cron.Schedule
	loc      *time.Location
	next     time.Time
}

// NewSchedulePolicy creates a policy from a standard five-field cron spec.
// A CRON_TZ= or TZ= prefix selects the zone; otherwise local time is used.
func NewSchedulePolicy(spec string) (*SchedulePolicy, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, types.NewLogError(types.ErrLogRotation, "policy", "", fmt.Sprintf("invalid schedule %q", spec), err)
	}
	return &SchedulePolicy{schedule: sched, loc: time.Local}, nil
}

// NewDailyPolicy rotates once per day when the wall clock passes hour:minute,
// in UTC or local time.
func NewDailyPolicy(hour, minute int, utc bool) (*SchedulePolicy, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, types.NewLogError(types.ErrLogRotation, "policy", "", fmt.Sprintf("invalid daily rotation time %02d:%02d", hour, minute), nil)
	}
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if utc {
		spec = "CRON_TZ=UTC " + spec
	}
	p, err := NewSchedulePolicy(spec)
	if err != nil {
		return nil, err
	}
	if utc {
		p.loc = time.UTC
	}
	return p, nil
}

// NeedsRotation implements types.RotationPolicy
func (p *SchedulePolicy) NeedsRotation(types.RotationPolicyArgs) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.Clock.now()
	if p.next.IsZero() {
		p.next = p.schedule.Next(now.In(p.loc))
		return false
	}
	return !now.Before(p.next)
}

// Reset schedules the next boundary after the current time
func (p *SchedulePolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = p.schedule.Next(p.Clock.now().In(p.loc))
}

// Seed computes the next boundary from the file's modification time, so a
// file last written before a boundary that has since passed is rotated on the
// first write.
func (p *SchedulePolicy) Seed(info os.FileInfo) {
	if info == nil {
		return
	}
	p.mu.Lock()
	p.next = p.schedule.Next(info.ModTime().In(p.loc))
	p.mu.Unlock()
}

// Next returns the boundary the policy is waiting for
func (p *SchedulePolicy) Next() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}

// PeriodicPolicy rotates once Interval has elapsed since the last rotation,
// or since the policy was created. The interval has whole-second resolution.
type PeriodicPolicy struct {
	Clock Clock

	// SeedFromFile starts the period at the existing file's modification time
	SeedFromFile bool

	mu       sync.Mutex
	schedule cron.ConstantDelaySchedule
	next     time.Time
}

// NewPeriodicPolicy creates a periodic policy. Intervals under one second are
// rejected.
func NewPeriodicPolicy(interval time.Duration) (*PeriodicPolicy, error) {
	if interval < time.Second {
		return nil, types.NewLogError(types.ErrLogRotation, "policy", "", fmt.Sprintf("rotation interval must be at least 1s, got %s", interval), nil)
	}
	return &PeriodicPolicy{schedule: cron.Every(interval)}, nil
}

// Interval returns the rotation period
func (p *PeriodicPolicy) Interval() time.Duration {
	return p.schedule.Delay
}

// NeedsRotation implements types.RotationPolicy
func (p *PeriodicPolicy) NeedsRotation(types.RotationPolicyArgs) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.Clock.now()
	if p.next.IsZero() {
		p.next = p.schedule.Next(now)
		return false
	}
	return !now.Before(p.next)
}

// Reset restarts the period at the current time
func (p *PeriodicPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = p.schedule.Next(p.Clock.now())
}

// Seed implements Seeder. It only has an effect with SeedFromFile set.
func (p *PeriodicPolicy) Seed(info os.FileInfo) {
	if info == nil || !p.SeedFromFile {
		return
	}
	p.mu.Lock()
	p.next = p.schedule.Next(info.ModTime())
	p.mu.Unlock()
}

// CombinedPolicy rotates when any sub-policy asks for it. Sub-policies are
// asked in order and evaluation stops at the first that fires, so one write
// produces at most one rotation. Reset resets every sub-policy.
type CombinedPolicy struct {
	Policies []types.RotationPolicy
}

// NewCombinedPolicy creates a combined policy
func NewCombinedPolicy(policies ...types.RotationPolicy) *CombinedPolicy {
	return &CombinedPolicy{Policies: policies}
}

// NeedsRotation implements types.RotationPolicy
func (p *CombinedPolicy) NeedsRotation(args types.RotationPolicyArgs) bool {
	for _, sub := range p.Policies {
		if sub.NeedsRotation(args) {
			return true
		}
	}
	return false
}

// Reset implements types.RotationPolicy
func (p *CombinedPolicy) Reset() {
	for _, sub := range p.Policies {
		sub.Reset()
	}
}

// Seed forwards to every sub-policy that can be seeded
func (p *CombinedPolicy) Seed(info os.FileInfo) {
	for _, sub := range p.Policies {
		if s, ok := sub.(types.Seeder); ok {
			s.Seed(info)
		}
	}
}

// DisabledPolicy never rotates
type DisabledPolicy struct{}

// NeedsRotation implements types.RotationPolicy
func (DisabledPolicy) NeedsRotation(types.RotationPolicyArgs) bool { return false }

// Reset implements types.RotationPolicy
func (DisabledPolicy) Reset() {}
