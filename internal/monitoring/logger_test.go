package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLoggerCapturesAndMutes(t *testing.T) {
	orig := Logf
	defer func() { Logf = orig }()

	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})

	Logf("run %d", 1)
	Warnf("dt=%.1f", -0.5)
	assert.Equal(t, []string{"run 1", "warning: dt=-0.5"}, got)

	SetLogger(nil)
	Logf("dropped")
	Warnf("dropped")
	assert.Len(t, got, 2)
}
