package logging_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/tandemlab/tandem/pkg/utils/logging"
)

func TestNew(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("info", buf)
	gt.V(t, logger).NotNil()

	logger.Info("test message")
	gt.S(t, buf.String()).Contains("test message")
}

func TestLevels(t *testing.T) {
	testCases := []struct {
		level       string
		expectDebug bool
		expectInfo  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"WARNING", false, false},
		{"invalid", false, true}, // defaults to info
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := logging.New(tc.level, buf)

			logger.Debug("debug message")
			logger.Info("info message")
			logger.Error("error message")

			output := buf.String()
			if tc.expectDebug {
				gt.S(t, output).Contains("debug message")
			} else {
				gt.S(t, output).NotContains("debug message")
			}
			if tc.expectInfo {
				gt.S(t, output).Contains("info message")
			} else {
				gt.S(t, output).NotContains("info message")
			}
			gt.S(t, output).Contains("error message")
		})
	}
}

func TestWithAndFrom(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("debug", buf)

	ctx := logging.With(context.Background(), logger)
	retrieved := logging.From(ctx)
	gt.V(t, retrieved).NotNil()
	gt.Equal(t, retrieved, logger)

	retrieved.Info("context message")
	gt.S(t, buf.String()).Contains("context message")
}

func TestFromWithoutLogger(t *testing.T) {
	logger := logging.From(context.Background())
	gt.V(t, logger).NotNil()
}

func TestSetDefault(t *testing.T) {
	original := logging.Default()
	defer logging.SetDefault(original)

	buf := &bytes.Buffer{}
	newLogger := logging.New("debug", buf)
	logging.SetDefault(newLogger)

	gt.Equal(t, logging.Default(), newLogger)
	logging.From(context.Background()).Info("default message")
	gt.S(t, buf.String()).Contains("default message")
}
