package formatters

import (
	"errors"
	"reflect"
	"testing"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

func TestFactory_Create(t *testing.T) {
	f := NewFactory()

	tests := []struct {
		name      string
		formatter string
		wantType  reflect.Type
	}{
		{"empty defaults to pattern", "", reflect.TypeOf(&PatternFormatter{})},
		{"pattern", NamePattern, reflect.TypeOf(&PatternFormatter{})},
		{"json", NameJSON, reflect.TypeOf(&JSONFormatter{})},
		{"xml", NameXML, reflect.TypeOf(&XMLFormatter{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Create(tt.formatter, Spec{UTC: true})
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if reflect.TypeOf(got) != tt.wantType {
				t.Errorf("Create() type = %T, want %v", got, tt.wantType)
			}
		})
	}
}

func TestFactory_Unknown(t *testing.T) {
	_, err := NewFactory().Create("yaml", Spec{})
	if !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestFactory_Register(t *testing.T) {
	f := NewFactory()
	if err := f.Register("", nil); err == nil {
		t.Error("expected error for empty name")
	}
	if err := f.Register("upper", nil); err == nil {
		t.Error("expected error for nil constructor")
	}

	err := f.Register("upper", func(Spec) (types.Formatter, error) {
		return FormatterFunc(func(m types.LogMessage) (string, error) { return "UP " + m.Text, nil }), nil
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := f.Create("upper", Spec{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	out, _ := got.Format(types.LogMessage{Text: "x"})
	if out != "UP x" {
		t.Errorf("got %q", out)
	}

	want := []string{"json", "pattern", "upper", "xml"}
	if names := f.Names(); !reflect.DeepEqual(names, want) {
		t.Errorf("Names() = %v, want %v", names, want)
	}
}

func TestFormatterFunc_WrapsErrors(t *testing.T) {
	fn := FormatterFunc(func(types.LogMessage) (string, error) { return "", errors.New("boom") })
	_, err := fn.Format(types.LogMessage{})
	if !errors.Is(err, types.ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
}
