package formatters

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// Formatter names registered by NewFactory
const (
	NamePattern = "pattern"
	NameJSON    = "json"
	NameXML     = "xml"
)

// Spec carries the settings a named formatter is built from
type Spec struct {
	Pattern string
	Indent  int
	Fields  []string
	UTC     bool
}

// Factory creates formatter instances
type Factory struct {
	mu         sync.RWMutex
	formatters map[string]FormatterConstructor
}

// FormatterConstructor is a function that creates a formatter
type FormatterConstructor func(spec Spec) (types.Formatter, error)

// NewFactory creates a new formatter factory with default formatters registered
func NewFactory() *Factory {
	f := &Factory{
		formatters: make(map[string]FormatterConstructor),
	}

	_ = f.Register(NamePattern, func(spec Spec) (types.Formatter, error) {
		pf := NewPatternFormatter(spec.Pattern)
		if spec.UTC {
			pf.TimeZone = time.UTC
		}
		return pf, nil
	})

	_ = f.Register(NameJSON, func(spec Spec) (types.Formatter, error) {
		jf := NewJSONFormatter()
		jf.Options.Indent = spec.Indent
		jf.Options.Fields = spec.Fields
		if !spec.UTC {
			jf.Options.TimeZone = time.Local
		}
		return jf, nil
	})

	_ = f.Register(NameXML, func(spec Spec) (types.Formatter, error) {
		xf := NewXMLFormatter()
		xf.Options.Indent = spec.Indent
		xf.Options.Fields = spec.Fields
		if !spec.UTC {
			xf.Options.TimeZone = time.Local
		}
		return xf, nil
	})

	return f
}

// Register registers a new formatter constructor
func (f *Factory) Register(name string, constructor FormatterConstructor) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if name == "" {
		return fmt.Errorf("formatter name cannot be empty")
	}

	if constructor == nil {
		return fmt.Errorf("formatter constructor cannot be nil")
	}

	f.formatters[name] = constructor
	return nil
}

// Create creates a formatter by name
func (f *Factory) Create(name string, spec Spec) (types.Formatter, error) {
	if name == "" {
		name = NamePattern
	}

	f.mu.RLock()
	constructor, exists := f.formatters[name]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: formatter %q not registered", types.ErrInvalidConfig, name)
	}

	return constructor(spec)
}

// Names returns the registered formatter names in sorted order
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.formatters))
	for name := range f.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
