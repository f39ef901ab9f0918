package backends

import (
	"os"

	"go.uber.org/multierr"

	"github.com/wayneeseguin/sinklog/pkg/features"
	"github.com/wayneeseguin/sinklog/pkg/types"
)

// RotatingFileSink is a FileSink that consults a RotationManager before every
// write
type RotatingFileSink struct {
	*FileSink
	manager *features.RotationManager
}

// NewRotatingFileSink opens path and attaches manager. The manager's policy
// is seeded from the existing file.
func NewRotatingFileSink(path string, manager *features.RotationManager, opts ...FileOption) (*RotatingFileSink, error) {
	if manager == nil {
		manager = features.NewRotationManager(nil, nil)
	}

	fs, err := NewFileSink(path, opts...)
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(fs.path); err == nil {
		manager.Seed(info)
	}

	return &RotatingFileSink{FileSink: fs, manager: manager}, nil
}

// Manager returns the rotation manager
func (s *RotatingFileSink) Manager() *features.RotationManager {
	return s.manager
}

// Print checks the rotation policy and writes the line. When rotation fails
// the line still goes to the original file under RotationContinue; under
// RotationPropagate it is not written.
func (s *RotatingFileSink) Print(msg types.LogMessage, rendered string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil && !s.closed && s.path != "" {
		// a failed rotation could not reopen the file
		if err := s.open(s.path, ModeAppend); err != nil {
			s.record(0, err)
			return err
		}
	}
	if s.file == nil {
		return s.print(rendered)
	}

	_, err := s.manager.Check(heldFile{s.FileSink}, types.RotationPolicyArgs{
		Path:     s.path,
		Size:     s.size,
		Message:  msg,
		Rendered: rendered,
	})
	if err != nil && s.manager.FailureMode() == features.RotationPropagate {
		s.record(0, err)
		return err
	}
	return multierr.Append(err, s.print(rendered))
}

// Rotate forces a rotation and returns the archive path
func (s *RotatingFileSink) Rotate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", types.NewLogError(types.ErrLogRotation, "rotate", s.path, "sink is closed", nil)
	}
	return s.manager.ForceRotate(heldFile{s.FileSink})
}
