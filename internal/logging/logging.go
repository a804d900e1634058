package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// New builds the root logger. level is one of trace, debug, info, warn,
// error; anything else is an error.
func New(name, level string, jsonFormat bool) (hclog.Logger, error) {
	return newWithOutput(name, level, jsonFormat, os.Stderr)
}

func newWithOutput(name, level string, jsonFormat bool, out io.Writer) (hclog.Logger, error) {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      lvl,
		JSONFormat: jsonFormat,
		Output:     out,
	}), nil
}
