package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"

	"github.com/wayneeseguin/sinklog/pkg/backends"
	"github.com/wayneeseguin/sinklog/pkg/features"
	"github.com/wayneeseguin/sinklog/pkg/formatters"
	"github.com/wayneeseguin/sinklog/pkg/sinklog"
	"github.com/wayneeseguin/sinklog/pkg/types"
)

func pipeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML or JSON logger configuration; other logger flags are ignored",
		},
		&cli.BoolFlag{
			Name:  "watch",
			Usage: "reapply the level from --config when the file changes",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "logger name",
			Value: "sinklog",
		},
		&cli.StringFlag{
			Name:    "level",
			Aliases: []string{"l"},
			Usage:   "severity threshold (error, warn, info, verbose)",
			Value:   "info",
		},
		&cli.StringFlag{
			Name:  "default-level",
			Usage: "level for lines without a level prefix",
			Value: "info",
		},
		&cli.BoolFlag{
			Name:  "async",
			Usage: "write through a background worker",
		},
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "log file; standard output when empty",
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "formatter: pattern, json or xml",
			Value: formatters.NamePattern,
		},
		&cli.StringFlag{
			Name:  "pattern",
			Usage: "pattern formatter template",
		},
		&cli.BoolFlag{
			Name:  "utc",
			Usage: "format timestamps in UTC",
		},
		&cli.StringFlag{
			Name:  "color",
			Usage: "colour for standard output: auto, always or never",
			Value: "auto",
		},
		&cli.Int64Flag{
			Name:  "max-bytes",
			Usage: "rotate --file once it holds this many bytes",
		},
		&cli.IntFlag{
			Name:  "max-files",
			Usage: "archives to keep when rotating",
		},
		&cli.BoolFlag{
			Name:  "compress",
			Usage: "gzip archives when rotating",
		},
	}
}

func pipeAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() > 0 {
		return usagef("unexpected argument %q", cmd.Args().First())
	}
	def, err := types.ParseSeverity(cmd.String("default-level"))
	if err != nil {
		return err
	}

	logger, err := loggerFromFlags(cmd)
	if err != nil {
		return err
	}

	if path := cmd.String("config"); path != "" && cmd.Bool("watch") {
		w, err := sinklog.WatchConfig(path, logger)
		if err != nil {
			return multierr.Append(err, logger.Close())
		}
		defer w.Close()
	}

	_, err = pipe(ctx, cmd.Root().Reader, logger, def)
	return multierr.Append(err, logger.Shutdown(context.Background()))
}

func loggerFromFlags(cmd *cli.Command) (*sinklog.Logger, error) {
	if path := cmd.String("config"); path != "" {
		return sinklog.NewFromConfigFile(path, sinklog.WithErrorHandler(sinklog.StderrErrorHandler))
	}

	level, err := types.ParseSeverity(cmd.String("level"))
	if err != nil {
		return nil, err
	}
	formatter, err := formatters.NewFactory().Create(cmd.String("format"), formatters.Spec{
		Pattern: cmd.String("pattern"),
		UTC:     cmd.Bool("utc"),
	})
	if err != nil {
		return nil, err
	}
	sink, err := sinkFromFlags(cmd)
	if err != nil {
		return nil, err
	}

	opts := []sinklog.Option{
		sinklog.WithLevel(level),
		sinklog.WithFormatter(formatter),
		sinklog.WithSink(sink),
		sinklog.WithErrorHandler(sinklog.StderrErrorHandler),
	}
	if cmd.Bool("async") {
		opts = append(opts, sinklog.WithAsync(0))
	}
	logger, err := sinklog.New(cmd.String("name"), opts...)
	if err != nil {
		return nil, multierr.Append(err, sink.Close())
	}
	return logger, nil
}

func sinkFromFlags(cmd *cli.Command) (types.Sink, error) {
	path := cmd.String("file")
	if path == "" {
		mode, err := backends.ParseColorMode(cmd.String("color"))
		if err != nil {
			return nil, err
		}
		return backends.NewWriteCloserSink(nopCloser{cmd.Root().Writer}, "stdout", mode), nil
	}

	maxBytes := cmd.Int64("max-bytes")
	if maxBytes <= 0 {
		return backends.NewFileSink(path)
	}
	policy, err := features.NewSizeLimitPolicy(maxBytes)
	if err != nil {
		return nil, err
	}
	strategy := features.NewPatternStrategy("")
	strategy.MaxFiles = cmd.Int("max-files")
	strategy.Compress = cmd.Bool("compress")
	strategy.UTC = cmd.Bool("utc")
	return backends.NewRotatingFileSink(path, features.NewRotationManager(policy, strategy))
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// pipe logs every line of r and returns the number of lines read. It stops
// early when ctx is cancelled.
func pipe(ctx context.Context, r io.Reader, logger *sinklog.Logger, def types.Severity) (int, error) {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				scanErr <- nil
				return
			}
		}
		scanErr <- sc.Err()
	}()

	var errs error
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n, errs
		case line, ok := <-lines:
			if !ok {
				return n, multierr.Append(errs, <-scanErr)
			}
			n++
			level, text := parseLine(line, def)
			errs = multierr.Append(errs, logger.Log(level, text))
		}
	}
}

// parseLine splits an optional "level:" prefix from line
func parseLine(line string, def types.Severity) (types.Severity, string) {
	prefix, rest, ok := strings.Cut(line, ":")
	if !ok || strings.ContainsAny(prefix, " \t") {
		return def, line
	}
	level, err := types.ParseSeverity(prefix)
	if err != nil {
		return def, line
	}
	return level, strings.TrimPrefix(rest, " ")
}

func rotateCommand() *cli.Command {
	return &cli.Command{
		Name:  "rotate",
		Usage: "archive a log file now and start an empty one",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "log file to rotate",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "pattern",
				Usage: "archive name pattern (%n name, %e extension, %i index, date tokens)",
				Value: features.DefaultArchivePattern,
			},
			&cli.BoolFlag{
				Name:  "numbered",
				Usage: "keep numbered archives name.1.ext .. name.N.ext instead of using --pattern",
			},
			&cli.IntFlag{
				Name:  "max-files",
				Usage: "archives to keep; 0 keeps all (numbered default 5)",
			},
			&cli.BoolFlag{
				Name:  "compress",
				Usage: "gzip the archive",
			},
		},
		Action: rotateAction,
	}
}

func rotateAction(_ context.Context, cmd *cli.Command) error {
	path := cmd.String("file")
	if _, err := os.Stat(path); err != nil {
		return usagef("cannot rotate %s: %v", path, err)
	}

	var strategy types.RotationStrategy
	if cmd.Bool("numbered") {
		maxFiles := cmd.Int("max-files")
		if maxFiles <= 0 {
			maxFiles = features.DefaultMaxFiles
		}
		behaviour := features.ArchiveMove
		if cmd.Bool("compress") {
			behaviour = features.ArchiveCompress
		}
		strategy = features.NewNumberedStrategy(maxFiles, behaviour)
	} else {
		s := features.NewPatternStrategy(cmd.String("pattern"))
		s.MaxFiles = cmd.Int("max-files")
		s.Compress = cmd.Bool("compress")
		strategy = s
	}

	sink, err := backends.NewRotatingFileSink(path, features.NewRotationManager(nil, strategy))
	if err != nil {
		return err
	}
	archive, err := sink.Rotate()
	err = multierr.Append(err, sink.Close())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.Root().Writer, archive)
	return nil
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "check that a configuration file builds a logger",
		ArgsUsage: "<config>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return usagef("validate takes exactly one configuration file")
			}
			path := cmd.Args().First()
			fc, err := sinklog.LoadConfig(path)
			if err != nil {
				return err
			}
			cfg, err := fc.Build()
			if err != nil {
				return err
			}
			var errs error
			for _, a := range cfg.Sinks {
				errs = multierr.Append(errs, a.Sink.Close())
			}
			if errs != nil {
				return errs
			}
			fmt.Fprintf(cmd.Root().Writer, "%s: %d sinks, level %s\n", path, len(cfg.Sinks), fc.Level)
			return nil
		},
	}
}
