package sinklog

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/wayneeseguin/sinklog/internal/metrics"
	"github.com/wayneeseguin/sinklog/pkg/backends"
	"github.com/wayneeseguin/sinklog/pkg/features"
	"github.com/wayneeseguin/sinklog/pkg/types"
)

// Logger fans messages out to a set of sinks, either inline on the caller's
// goroutine or through a bounded queue drained by one worker goroutine.
type Logger struct {
	name         string
	level        atomic.Uint32
	isolated     atomic.Uint32
	formatter    types.Formatter
	clock        func() time.Time
	errorHandler ErrorHandler
	seq          atomic.Uint64
	metrics      *metrics.Collector

	// sinks is replaced, never modified. Dispatch holds the read lock for the
	// whole fan-out so a removed sink is closed only after its last write.
	sinksMu sync.RWMutex
	sinks   *sinkSet

	// Producers hold closeMu for reading while they dispatch or enqueue.
	closeMu   sync.RWMutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	queue  *queue
	unsync atomic.Bool // worker wrote since its last flush

	flushPolicy FlushPolicy
	lastFlush   atomic.Int64 // UnixNano of the last flush

	errMu    sync.Mutex
	pending  []error
	recorded int
	omitted  int
}

type attachment struct {
	sink      types.Sink
	name      string
	formatter types.Formatter
	excluded  types.SeverityMask
	slot      int    // render cache index; 0 is the logger formatter
	unhook    func() // removes the rotation counter from the sink's manager
}

type sinkSet struct {
	list  []attachment
	slots int
}

// New creates a logger named name and applies opts to DefaultConfig.
func New(name string, opts ...Option) (*Logger, error) {
	cfg := DefaultConfig()
	cfg.Name = name
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a logger from cfg. The configuration is validated and
// defaults are applied where necessary.
func NewWithConfig(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Logger{
		name:         cfg.Name,
		formatter:    cfg.Formatter,
		clock:        cfg.Clock,
		errorHandler: cfg.ErrorHandler,
		metrics:      metrics.NewCollector(),
		sinks:        &sinkSet{slots: 1},
		flushPolicy:  cfg.Flush,
	}
	l.lastFlush.Store(l.clock().UnixNano())
	l.level.Store(uint32(cfg.Level))
	l.isolated.Store(uint32(cfg.IsolatedLevels))

	for _, a := range cfg.Sinks {
		if err := l.attach(a); err != nil {
			return nil, err
		}
	}

	if cfg.Async {
		l.queue = newQueue(cfg)
		go l.queue.run(l.process, l.discard, l.idle)
	}
	return l, nil
}

// Name returns the logger's name
func (l *Logger) Name() string {
	return l.name
}

// Async reports whether the logger has a background worker
func (l *Logger) Async() bool {
	return l.queue != nil
}

// Log records text at level. Messages more verbose than the threshold are
// dropped before a LogMessage is built. In synchronous mode the returned
// error aggregates every sink failure; in asynchronous mode it reports only
// queue overflow.
func (l *Logger) Log(level types.Severity, text string) error {
	if l.closed.Load() {
		return types.ErrLoggerClosed
	}
	if !validLevel(level) {
		return fmt.Errorf("%w: invalid level %d", types.ErrInvalidConfig, uint32(level))
	}
	if !l.IsLevelEnabled(level) {
		l.metrics.TrackMessageFiltered()
		return nil
	}

	l.closeMu.RLock()
	defer l.closeMu.RUnlock()
	if l.closed.Load() {
		return types.ErrLoggerClosed
	}

	msg := types.LogMessage{
		Text:      text,
		Level:     level,
		Timestamp: l.clock(),
		Logger:    l.name,
		Seq:       l.seq.Add(1),
	}
	if l.queue == nil {
		return l.deliver(msg)
	}
	return l.enqueue(msg)
}

// Logf formats according to a format specifier and logs the result
func (l *Logger) Logf(level types.Severity, format string, args ...any) error {
	if validLevel(level) && !l.IsLevelEnabled(level) {
		l.metrics.TrackMessageFiltered()
		return nil
	}
	return l.Log(level, fmt.Sprintf(format, args...))
}

// Error logs at SeverityError
func (l *Logger) Error(text string) error { return l.Log(types.SeverityError, text) }

// Warning logs at SeverityWarning
func (l *Logger) Warning(text string) error { return l.Log(types.SeverityWarning, text) }

// Info logs at SeverityInfo
func (l *Logger) Info(text string) error { return l.Log(types.SeverityInfo, text) }

// Verbose logs at SeverityVerbose
func (l *Logger) Verbose(text string) error { return l.Log(types.SeverityVerbose, text) }

// Unformatted logs text at SeverityNone, which the pattern formatter emits
// verbatim
func (l *Logger) Unformatted(text string) error { return l.Log(types.SeverityNone, text) }

// Errorf logs a formatted message at SeverityError
func (l *Logger) Errorf(format string, args ...any) error {
	return l.Logf(types.SeverityError, format, args...)
}

// Warningf logs a formatted message at SeverityWarning
func (l *Logger) Warningf(format string, args ...any) error {
	return l.Logf(types.SeverityWarning, format, args...)
}

// Infof logs a formatted message at SeverityInfo
func (l *Logger) Infof(format string, args ...any) error {
	return l.Logf(types.SeverityInfo, format, args...)
}

// Verbosef logs a formatted message at SeverityVerbose
func (l *Logger) Verbosef(format string, args ...any) error {
	return l.Logf(types.SeverityVerbose, format, args...)
}

// LogError logs text followed by a line describing err
func (l *Logger) LogError(level types.Severity, text string, err error) error {
	if err == nil {
		return l.Log(level, text)
	}
	return l.Log(level, text+"\nAn error occurred: "+err.Error())
}

// SetLevel changes the severity threshold
func (l *Logger) SetLevel(level types.Severity) error {
	if !validLevel(level) {
		return fmt.Errorf("%w: invalid level %d", types.ErrInvalidConfig, uint32(level))
	}
	l.level.Store(uint32(level))
	return nil
}

// GetLevel returns the severity threshold
func (l *Logger) GetLevel() types.Severity {
	return types.Severity(l.level.Load())
}

// IsLevelEnabled reports whether a message at level would be dispatched
func (l *Logger) IsLevelEnabled(level types.Severity) bool {
	return validLevel(level) && l.GetLevel().Allows(level)
}

// SetIsolatedLevels replaces the set of levels surrounded by blank lines
func (l *Logger) SetIsolatedLevels(mask types.SeverityMask) {
	l.isolated.Store(uint32(mask))
}

func validLevel(level types.Severity) bool {
	return level != 0 && level&(level-1) == 0 && types.MaskAll.Has(level)
}

// AddSink attaches sink. Sinks shared through backends.Share are retained and
// released again when the logger closes or removes them.
func (l *Logger) AddSink(sink types.Sink, opts ...SinkOption) error {
	if sink == nil {
		return fmt.Errorf("%w: nil sink", types.ErrInvalidConfig)
	}
	if l.closed.Load() {
		return types.ErrLoggerClosed
	}
	a := SinkAttachment{Sink: sink}
	for _, opt := range opts {
		opt(&a)
	}
	return l.attach(a)
}

func (l *Logger) attach(a SinkAttachment) error {
	l.sinksMu.Lock()
	defer l.sinksMu.Unlock()

	// close sets the flag before it takes the sink set
	if l.closed.Load() {
		return types.ErrLoggerClosed
	}

	for _, cur := range l.sinks.list {
		if sameInstance(cur.sink, a.Sink) {
			return fmt.Errorf("%w: sink %s already attached", types.ErrInvalidConfig, sinkName(a.Sink))
		}
	}

	if r, ok := a.Sink.(interface{ Retain() }); ok {
		r.Retain()
	}
	unhook := func() {}
	if m := rotationManager(a.Sink); m != nil {
		unhook = m.OnAfterRotation(func(string, string) {
			l.metrics.TrackRotation()
		})
	}

	list := make([]attachment, 0, len(l.sinks.list)+1)
	list = append(list, l.sinks.list...)
	list = append(list, attachment{
		sink:      a.Sink,
		name:      sinkName(a.Sink),
		formatter: a.Formatter,
		excluded:  a.Excluded,
		unhook:    unhook,
	})
	l.sinks = newSinkSet(list)
	return nil
}

// RemoveSink detaches sink and closes it once no dispatch is using it.
func (l *Logger) RemoveSink(sink types.Sink) error {
	l.sinksMu.Lock()
	list := make([]attachment, 0, len(l.sinks.list))
	var removed *attachment
	for i, a := range l.sinks.list {
		if removed == nil && sameInstance(a.sink, sink) {
			removed = &l.sinks.list[i]
			continue
		}
		list = append(list, a)
	}
	if removed != nil {
		l.sinks = newSinkSet(list)
	}
	l.sinksMu.Unlock()

	if removed == nil {
		return fmt.Errorf("%w: sink %s is not attached", types.ErrInvalidConfig, sinkName(sink))
	}
	removed.unhook()
	if err := sink.Close(); err != nil {
		return types.NewLogError(types.ErrLogIO, "close", sinkName(sink), "", err)
	}
	return nil
}

// Sinks returns the attached sinks in dispatch order
func (l *Logger) Sinks() []types.Sink {
	l.sinksMu.RLock()
	defer l.sinksMu.RUnlock()
	out := make([]types.Sink, len(l.sinks.list))
	for i, a := range l.sinks.list {
		out[i] = a.sink
	}
	return out
}

// newSinkSet assigns render cache slots. Attachments sharing a formatter
// instance share a slot, so the message is rendered once for all of them.
func newSinkSet(list []attachment) *sinkSet {
	var seen []types.Formatter
	for i := range list {
		f := list[i].formatter
		if f == nil {
			list[i].slot = 0
			continue
		}
		slot := -1
		for j, g := range seen {
			if sameInstance(f, g) {
				slot = j
				break
			}
		}
		if slot < 0 {
			seen = append(seen, f)
			slot = len(seen) - 1
		}
		list[i].slot = slot + 1
	}
	return &sinkSet{list: list, slots: len(seen) + 1}
}

// sameInstance compares pointer-shaped values by identity and nothing else.
func sameInstance(a, b any) bool {
	ta := reflect.TypeOf(a)
	if ta == nil || ta != reflect.TypeOf(b) || ta.Kind() != reflect.Pointer {
		return false
	}
	return a == b
}

func sinkName(s types.Sink) string {
	if n, ok := s.(backends.Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

func rotationManager(s types.Sink) *features.RotationManager {
	for s != nil {
		if m, ok := s.(interface {
			Manager() *features.RotationManager
		}); ok {
			return m.Manager()
		}
		u, ok := s.(interface{ Unwrap() types.Sink })
		if !ok {
			return nil
		}
		s = u.Unwrap()
	}
	return nil
}

type rendering struct {
	done bool
	text string
	err  error
}

// dispatch renders msg lazily and writes it to every sink that accepts its
// level. A failing sink does not stop delivery to the others.
func (l *Logger) dispatch(msg types.LogMessage) error {
	l.sinksMu.RLock()
	defer l.sinksMu.RUnlock()

	set := l.sinks
	cache := make([]rendering, set.slots)
	var errs error
	for i := range set.list {
		a := &set.list[i]
		if a.excluded.Has(msg.Level) {
			continue
		}

		r := &cache[a.slot]
		if !r.done {
			f := a.formatter
			if f == nil {
				f = l.formatter
			}
			r.text, r.err = l.format(f, msg)
			r.done = true
		}
		if r.err != nil {
			errs = multierr.Append(errs, r.err)
			continue
		}

		start := time.Now()
		if err := l.print(a, msg, r.text); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		l.metrics.TrackWrite(len(r.text)+1, time.Since(start))
	}
	l.metrics.TrackMessageLogged(msg.Level)
	return errs
}

// deliver dispatches msg on the caller's goroutine and flushes when the
// flush policy asks for it.
func (l *Logger) deliver(msg types.LogMessage) error {
	err := l.dispatch(msg)
	if l.flushDue(msg) {
		err = multierr.Append(err, l.flushSinks())
	}
	return err
}

func (l *Logger) format(f types.Formatter, msg types.LogMessage) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewLogError(types.ErrFormat, "format", "", fmt.Sprintf("formatter panic: %v", r), nil)
		}
	}()

	text, err = f.Format(msg)
	if err != nil {
		return "", asLogError(err, types.ErrFormat, "format", "")
	}
	if types.SeverityMask(l.isolated.Load()).Has(msg.Level) {
		text = "\n" + text + "\n"
	}
	return text, nil
}

func (l *Logger) print(a *attachment, msg types.LogMessage, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewLogError(types.ErrLogIO, "print", a.name, fmt.Sprintf("sink panic: %v", r), nil)
		}
	}()

	if err := a.sink.Print(msg, text); err != nil {
		return asLogError(err, types.ErrLogIO, "print", a.name)
	}
	return nil
}

// asLogError keeps errors that already carry a LogError and wraps the rest.
func asLogError(err error, kind error, op, sink string) error {
	var le *types.LogError
	if errors.As(err, &le) {
		return err
	}
	return types.NewLogError(kind, op, sink, "", err)
}

func (l *Logger) enqueue(msg types.LogMessage) error {
	if err := l.queue.push(msg, l.evicted); err != nil {
		l.metrics.TrackMessageDropped()
		return types.NewLogError(types.ErrQueueSpaceExceeded, "enqueue", "",
			fmt.Sprintf("queue full (%d entries), message %d dropped", l.queue.capacity(), msg.Seq), nil)
	}
	return nil
}

// evicted reports an entry removed by OverflowDropOldest.
func (l *Logger) evicted(msg types.LogMessage) {
	l.metrics.TrackMessageDropped()
	l.report(types.NewLogError(types.ErrQueueSpaceExceeded, "enqueue", "",
		fmt.Sprintf("queue full, oldest message %d dropped", msg.Seq), nil))
}

// process runs on the worker goroutine.
func (l *Logger) process(msg types.LogMessage) {
	defer func() {
		if r := recover(); r != nil {
			err := types.NewLogError(types.ErrLogIO, "worker", "", fmt.Sprintf("recovered panic: %v", r), nil)
			l.report(err)
			l.record(err)
		}
	}()

	err := l.dispatch(msg)
	if l.flushDue(msg) {
		err = multierr.Append(err, l.flushSinks())
		l.unsync.Store(false)
	} else {
		l.unsync.Store(true)
	}
	for _, e := range multierr.Errors(err) {
		var le *types.LogError
		if !errors.As(e, &le) {
			le = types.NewLogError(types.ErrLogIO, "worker", "", "", e)
		}
		l.report(le)
		l.record(e)
	}
}

func (l *Logger) discard(types.LogMessage) {
	l.metrics.TrackMessageDropped()
}

// idle flushes sinks once the worker has been quiet for a poll interval.
func (l *Logger) idle() {
	if !l.unsync.Swap(false) {
		return
	}
	for _, err := range multierr.Errors(l.flushSinks()) {
		var le *types.LogError
		if !errors.As(err, &le) {
			le = types.NewLogError(types.ErrLogIO, "flush", "", "", err)
		}
		l.report(le)
		l.record(err)
	}
}

// Flush waits for queued entries and flushes every sink.
func (l *Logger) Flush() error {
	return l.FlushContext(context.Background())
}

// FlushContext waits until every entry enqueued before the call has been
// written or dropped, then flushes every sink. The result aggregates worker
// errors recorded since the previous flush and the flush errors themselves.
func (l *Logger) FlushContext(ctx context.Context) error {
	if l.closed.Load() {
		return types.ErrLoggerClosed
	}
	if l.queue != nil {
		if err := l.barrier(ctx); err != nil {
			return err
		}
	}
	errs := multierr.Combine(l.takeErrors()...)
	l.lastFlush.Store(l.clock().UnixNano())
	return multierr.Append(errs, l.flushSinks())
}

// barrier waits for a marker sent behind every entry already queued.
func (l *Logger) barrier(ctx context.Context) error {
	l.closeMu.RLock()
	if l.closed.Load() {
		l.closeMu.RUnlock()
		return types.ErrLoggerClosed
	}
	marker, err := l.queue.mark(ctx)
	l.closeMu.RUnlock()
	if err != nil {
		return err
	}

	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Logger) flushSinks() error {
	l.sinksMu.RLock()
	defer l.sinksMu.RUnlock()

	var errs error
	for _, a := range l.sinks.list {
		if err := a.sink.Flush(); err != nil {
			errs = multierr.Append(errs, asLogError(err, types.ErrLogIO, "flush", a.name))
		}
	}
	return errs
}

// Close stops the worker, drains or discards the queue per the shutdown mode,
// and closes every sink. Only the first call does any work.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.close()
	})
	return l.closeErr
}

func (l *Logger) close() error {
	l.closed.Store(true)
	// wait for producers already past the closed check
	l.closeMu.Lock()
	l.closeMu.Unlock() //nolint:staticcheck

	if l.queue != nil {
		l.queue.shutdown()
	}

	errs := multierr.Combine(l.takeErrors()...)

	l.sinksMu.Lock()
	set := l.sinks
	l.sinks = &sinkSet{slots: 1}
	l.sinksMu.Unlock()

	for _, a := range set.list {
		a.unhook()
		if err := a.sink.Close(); err != nil {
			errs = multierr.Append(errs, asLogError(err, types.ErrLogIO, "close", a.name))
		}
	}
	return errs
}

// Shutdown closes the logger, giving up when ctx is done.
func (l *Logger) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- l.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsClosed reports whether Close has been called
func (l *Logger) IsClosed() bool {
	return l.closed.Load()
}
