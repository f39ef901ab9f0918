// Package sinklog is a multi-sink logger with severity filtering, per-sink
// formatting and policy-driven file rotation.
//
// A Logger renders each message at most once per formatter and hands the
// result to every attached sink. Sinks fail independently: an error from one
// does not stop delivery to the others.
//
// Basic Usage:
//
//	logger, err := sinklog.New("app",
//		sinklog.WithLevel(types.SeverityInfo),
//		sinklog.WithSink(backends.NewStdoutSink(backends.ColorAuto)),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer logger.Close()
//
//	logger.Info("application started")
//
// Asynchronous mode:
//
// WithAsync moves sink I/O onto one worker goroutine fed by a bounded queue.
// When the queue is full the overflow policy decides: OverflowBlock waits up
// to Config.BlockTimeout and then fails with ErrQueueSpaceExceeded,
// OverflowDropNewest fails at once, and OverflowDropOldest evicts the oldest
// entry and reports it to the ErrorHandler. Flush waits for every entry
// enqueued before the call.
//
//	logger, _ := sinklog.New("app",
//		sinklog.WithAsync(4096),
//		sinklog.WithOverflow(sinklog.OverflowDropOldest),
//		sinklog.WithSink(fileSink),
//	)
//
// Flushing:
//
// After each write the FlushPolicy decides whether sinks are flushed. The
// default flushes after warnings and errors and at least once a second;
// InstantFlushPolicy flushes every line and ManualFlushPolicy leaves it to
// Flush and Close.
//
//	sinklog.WithFlushPolicy(sinklog.FlushPolicy{
//		Triggers: sinklog.FlushLevelled | sinklog.FlushFilled,
//		Level:    types.SeverityError,
//	})
//
// Rotation:
//
//	policy, _ := features.NewSizeLimitPolicy(10 << 20)
//	manager := features.NewRotationManager(policy, features.NewPatternStrategy("%n-%Y%m%d%e"))
//	sink, _ := backends.NewRotatingFileSink("/var/log/app.log", manager)
//
// Configuration files:
//
// NewFromConfigFile builds a logger from YAML or JSON (see FileConfig), and
// WatchConfig reapplies its level whenever the file changes.
//
// Loggers are usually kept in a Registry created by the application and
// closed on exit.
package sinklog
