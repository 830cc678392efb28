package reporter

import (
	"context"
	"errors"
	"testing"
)

func TestNoop_NeverPanics(t *testing.T) {
	var n Noop
	n.Report(context.Background(), errors.New("ignored"), map[string]any{"k": "v"})
	n.Report(context.Background(), nil, nil)
}
