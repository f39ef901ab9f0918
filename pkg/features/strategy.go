package features

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/sinklog/pkg/formatters"
	"github.com/wayneeseguin/sinklog/pkg/types"
)

// DefaultArchivePattern names archives after the log file and the rotation
// time, e.g. app.log -> app-20240115-143052.log
const DefaultArchivePattern = "%n-%Y%m%d-%H%M%S%e"

// maxArchiveIndex bounds the search for an unused archive name
const maxArchiveIndex = 9999

// PatternStrategy moves the log file to a name built from Pattern.
//
// Tokens:
//
//	%n  file name without extension   %e  extension including the dot
//	%i  collision index, from 1       %%  literal percent
//
// plus the time tokens of the pattern formatter (%Y %m %d %H %M %S ...),
// taken from the rotation time. A relative result is placed next to the log
// file. When the name is taken, the lowest free %i is used; a pattern without
// %i gets a ".N" suffix instead.
type PatternStrategy struct {
	Pattern  string
	MaxFiles int  // Archives to keep; 0 keeps all
	Compress bool // Gzip each archive and append CompressedExt
	UTC      bool
}

// NewPatternStrategy creates a pattern strategy; an empty pattern selects
// DefaultArchivePattern
func NewPatternStrategy(pattern string) *PatternStrategy {
	if pattern == "" {
		pattern = DefaultArchivePattern
	}
	return &PatternStrategy{Pattern: pattern}
}

// Archive implements types.RotationStrategy
func (s *PatternStrategy) Archive(ctx types.RotationContext) (string, error) {
	path := filepath.Clean(ctx.Path)
	if _, err := os.Stat(path); err != nil {
		return "", types.NewLogError(types.ErrLogRotation, "rotate", path, "log file not found", err)
	}

	t := ctx.Time
	if t.IsZero() {
		t = time.Now()
	}
	if s.UTC {
		t = t.UTC()
	}

	target, err := s.resolve(path, t)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil { // #nosec G301 - log directories
		return "", errors.Wrap(err, "creating archive directory")
	}
	if err := os.Rename(path, target); err != nil {
		return "", errors.Wrapf(err, "moving %s to %s", path, target)
	}

	if s.Compress {
		gz := target + CompressedExt
		if err := CompressFile(target, gz); err != nil {
			return target, types.NewLogError(types.ErrLogIO, "compress", target, "archive left uncompressed", err)
		}
		target = gz
	}

	if s.MaxFiles > 0 {
		if err := s.prune(path); err != nil {
			return target, types.NewLogError(types.ErrLogIO, "cleanup", path, "removing old archives", err)
		}
	}
	return target, nil
}

// Name returns the archive name the pattern yields for path at t, with %i
// resolved to index
func (s *PatternStrategy) Name(path string, t time.Time, index int) string {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	pattern := s.Pattern
	if pattern == "" {
		pattern = DefaultArchivePattern
	}

	var sb strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' || i+1 >= len(pattern) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch pattern[i] {
		case 'n':
			sb.WriteString(stem)
		case 'e':
			sb.WriteString(ext)
		case 'i':
			sb.WriteString(strconv.Itoa(index))
		case '%':
			sb.WriteByte('%')
		default:
			if !formatters.WriteTimeToken(&sb, pattern[i], t) {
				sb.WriteByte('%')
				sb.WriteByte(pattern[i])
			}
		}
	}

	name := sb.String()
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

func (s *PatternStrategy) resolve(path string, t time.Time) (string, error) {
	indexed := strings.Contains(s.Pattern, "%i")

	for i := 1; i <= maxArchiveIndex; i++ {
		var candidate string
		switch {
		case indexed:
			candidate = s.Name(path, t, i)
		case i == 1:
			candidate = s.Name(path, t, 0)
		default:
			candidate = fmt.Sprintf("%s.%d", s.Name(path, t, 0), i-1)
		}

		if candidate == path {
			return "", types.NewLogError(types.ErrLogRotation, "rotate", path, fmt.Sprintf("archive pattern %q resolves to the log file itself", s.Pattern), nil)
		}
		if s.free(candidate) {
			return candidate, nil
		}
	}
	return "", types.NewLogError(types.ErrLogRotation, "rotate", path, fmt.Sprintf("no unused archive name for pattern %q", s.Pattern), nil)
}

func (s *PatternStrategy) free(candidate string) bool {
	if exists(candidate) {
		return false
	}
	return !s.Compress || !exists(candidate+CompressedExt)
}

// Archives lists the existing archives of path, newest first. Archives are
// looked for in the directory the pattern resolves to.
func (s *PatternStrategy) Archives(path string) ([]string, error) {
	dir := filepath.Dir(s.Name(path, time.Now(), 0))
	matcher, err := s.matcher(path)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading log directory")
	}

	type archive struct {
		path    string
		modTime time.Time
	}
	var found []archive
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		full := filepath.Join(dir, entry.Name())
		if full == filepath.Clean(path) || !matcher.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, archive{path: full, modTime: info.ModTime()})
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].modTime.Equal(found[j].modTime) {
			return found[i].path > found[j].path
		}
		return found[i].modTime.After(found[j].modTime)
	})

	paths := make([]string, len(found))
	for i, a := range found {
		paths[i] = a.path
	}
	return paths, nil
}

func (s *PatternStrategy) prune(path string) error {
	archives, err := s.Archives(path)
	if err != nil {
		return err
	}
	if len(archives) <= s.MaxFiles {
		return nil
	}

	var firstErr error
	for _, old := range archives[s.MaxFiles:] {
		if err := os.Remove(old); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "removing %s", old)
		}
	}
	return firstErr
}

// matcher builds a regexp matching the base names this strategy produces
// for path
func (s *PatternStrategy) matcher(path string) (*regexp.Regexp, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	pattern := filepath.Base(s.Pattern)
	var sb strings.Builder
	sb.WriteByte('^')
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' || i+1 >= len(pattern) {
			sb.WriteString(regexp.QuoteMeta(string(c)))
			continue
		}
		i++
		switch pattern[i] {
		case 'n':
			sb.WriteString(regexp.QuoteMeta(stem))
		case 'e':
			sb.WriteString(regexp.QuoteMeta(ext))
		case 'i':
			sb.WriteString(`\d+`)
		case '%':
			sb.WriteString("%")
		default:
			sb.WriteString(`.+?`)
		}
	}
	sb.WriteString(`(\.\d+)?(` + regexp.QuoteMeta(CompressedExt) + `)?$`)

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, types.NewLogError(types.ErrLogRotation, "rotate", path, fmt.Sprintf("archive pattern %q", s.Pattern), err)
	}
	return re, nil
}

// ArchiveBehaviour selects what NumberedStrategy does with the rotated file
type ArchiveBehaviour int

const (
	// ArchiveCompress gzips the file to name.1.ext.gz
	ArchiveCompress ArchiveBehaviour = iota
	// ArchiveMove renames the file to name.1.ext
	ArchiveMove
	// ArchiveDelete discards the file
	ArchiveDelete
)

// String returns the configuration name of the behaviour
func (b ArchiveBehaviour) String() string {
	switch b {
	case ArchiveCompress:
		return "compress"
	case ArchiveMove:
		return "move"
	case ArchiveDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseArchiveBehaviour parses "compress", "move" or "delete"
func ParseArchiveBehaviour(s string) (ArchiveBehaviour, error) {
	switch strings.ToLower(s) {
	case "compress", "":
		return ArchiveCompress, nil
	case "move":
		return ArchiveMove, nil
	case "delete":
		return ArchiveDelete, nil
	}
	return ArchiveCompress, fmt.Errorf("%w: unknown archive behaviour %q", types.ErrInvalidConfig, s)
}

// DefaultMaxFiles is the number of numbered archives kept when none is set
const DefaultMaxFiles = 5

// NumberedStrategy keeps a fixed window of numbered archives next to the log
// file: name.1.ext is the newest and name.<MaxFiles>.ext the oldest. On each
// rotation existing archives shift up by one and the oldest is removed.
type NumberedStrategy struct {
	MaxFiles  int
	Behaviour ArchiveBehaviour
}

// NewNumberedStrategy creates a numbered strategy
func NewNumberedStrategy(maxFiles int, behaviour ArchiveBehaviour) *NumberedStrategy {
	return &NumberedStrategy{MaxFiles: maxFiles, Behaviour: behaviour}
}

// ArchiveName returns the path of archive number n for path
func (s *NumberedStrategy) ArchiveName(path string, n int) string {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	name := fmt.Sprintf("%s.%d%s", strings.TrimSuffix(base, ext), n, ext)
	if s.Behaviour == ArchiveCompress {
		name += CompressedExt
	}
	return filepath.Join(dir, name)
}

// Archive implements types.RotationStrategy
func (s *NumberedStrategy) Archive(ctx types.RotationContext) (string, error) {
	path := filepath.Clean(ctx.Path)
	if !exists(path) {
		return "", types.NewLogError(types.ErrLogRotation, "rotate", path, "log file not found", os.ErrNotExist)
	}

	if s.Behaviour == ArchiveDelete {
		if err := os.Remove(path); err != nil {
			return "", errors.Wrapf(err, "removing %s", path)
		}
		return "", nil
	}

	maxFiles := s.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}

	for i := maxFiles; i > 0; i-- {
		current := s.ArchiveName(path, i)
		if !exists(current) {
			continue
		}
		if i == maxFiles {
			if err := os.Remove(current); err != nil {
				return "", errors.Wrapf(err, "removing %s", current)
			}
			continue
		}
		if err := os.Rename(current, s.ArchiveName(path, i+1)); err != nil {
			return "", errors.Wrapf(err, "shifting %s", current)
		}
	}

	target := s.ArchiveName(path, 1)
	if s.Behaviour == ArchiveCompress {
		if err := CompressFile(path, target); err != nil {
			return "", err
		}
		return target, nil
	}

	if err := os.Rename(path, target); err != nil {
		return "", errors.Wrapf(err, "moving %s to %s", path, target)
	}
	return target, nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
