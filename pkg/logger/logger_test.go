package logger

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bitechdev/autoquery/pkg/errortracking"
)

func captureStdLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevLogger, prevOut, prevFlags := Logger, log.Writer(), log.Flags()
	Logger = nil
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		Logger = prevLogger
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestFallbackOmitsEmptyFields(t *testing.T) {
	buf := captureStdLog(t)

	Info("cache %s", "warm")
	assert.Equal(t, "cache warm\n", buf.String())
}

func TestFallbackPrintsFields(t *testing.T) {
	buf := captureStdLog(t)

	emit(errortracking.SeverityInfo, "query failed", "table", "people")
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "query failed "), out)
	assert.Contains(t, out, "table people")
}
