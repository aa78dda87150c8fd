//go:build !windows

package logger

import (
	"errors"

	"github.com/phuslu/log"

	"pmctrace/internal/config"
)

func createEventlogWriter(*config.EventlogConfig) (log.Writer, error) {
	return nil, errors.New("eventlog output is only available on windows")
}

func configureTraceLibrary(string, log.Writer) error { return nil }
