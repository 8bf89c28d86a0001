package symbols

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractGoTopLevelSymbols(t *testing.T) {
	src := []byte(`package sample

const MaxRetries = 3

var defaultTimeout = 5

type Config struct {
	Name string
}

func NewConfig() *Config {
	return &Config{}
}

func (c *Config) Validate() error {
	return nil
}
`)

	e := NewExtractor()
	defer e.Close()

	names, err := e.Extract(context.Background(), "go", src)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"MaxRetries", "defaultTimeout", "Config", "NewConfig", "Validate"}, names)
}

func TestExtractTypeScriptTopLevelSymbols(t *testing.T) {
	src := []byte(`
interface Widget {
	id: string
}

class WidgetStore {
	add(w: Widget) {}
}

function listWidgets(): Widget[] {
	return []
}

const MAX_WIDGETS = 10
`)

	e := NewExtractor()
	defer e.Close()

	names, err := e.Extract(context.Background(), "typescript", src)
	require.NoError(t, err)
	require.Contains(t, names, "Widget")
	require.Contains(t, names, "WidgetStore")
	require.Contains(t, names, "listWidgets")
	require.Contains(t, names, "MAX_WIDGETS")
}

func TestExtractPythonTopLevelSymbols(t *testing.T) {
	src := []byte(`
class Worker:
    def run(self):
        pass

def start():
    pass
`)

	e := NewExtractor()
	defer e.Close()

	names, err := e.Extract(context.Background(), "python", src)
	require.NoError(t, err)
	require.Contains(t, names, "Worker")
	require.Contains(t, names, "start")
}

func TestExtractUnsupportedLanguageReturnsNilWithoutError(t *testing.T) {
	e := NewExtractor()
	defer e.Close()

	names, err := e.Extract(context.Background(), "ruby", []byte("def x; end"))
	require.NoError(t, err)
	require.Nil(t, names)
}

func TestExtractEmptySourceReturnsNil(t *testing.T) {
	e := NewExtractor()
	defer e.Close()

	names, err := e.Extract(context.Background(), "go", nil)
	require.NoError(t, err)
	require.Nil(t, names)
}

func TestExtractDeduplicatesRepeatedNames(t *testing.T) {
	src := []byte(`package sample

func Do() {}

type Do struct{}
`)
	e := NewExtractor()
	defer e.Close()

	names, err := e.Extract(context.Background(), "go", src)
	require.NoError(t, err)

	count := 0
	for _, n := range names {
		if n == "Do" {
			count++
		}
	}
	require.Equal(t, 1, count)
}
