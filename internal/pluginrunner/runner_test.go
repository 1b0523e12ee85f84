package pluginrunner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ExitCodeClassification(t *testing.T) {
	cases := []struct {
		name    string
		argv    []string
		outcome Outcome
	}{
		{"ok exit 0", []string{"sh", "-c", "echo up | time=1"}, OutcomeUp},
		{"warning exit 1", []string{"sh", "-c", "echo warn; exit 1"}, OutcomeUp},
		{"critical exit 2", []string{"sh", "-c", "echo down; exit 2"}, OutcomeDown},
		{"unknown exit 3", []string{"sh", "-c", "echo dunno; exit 3"}, OutcomeUnknown},
	}

	r := New(nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := r.Run(context.Background(), tc.argv, 2*time.Second)
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, res.Outcome)
		})
	}
}

func TestRun_SplitsPerfdata(t *testing.T) {
	r := New(nil)
	res, err := r.Run(context.Background(), []string{"sh", "-c", "echo 'all good | rtt=12ms'"}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "all good", res.Message)
	assert.Equal(t, "rtt=12ms", res.Perfdata)
}

func TestRun_TimeoutIsUnknown(t *testing.T) {
	r := New(nil)
	res, err := r.Run(context.Background(), []string{"sh", "-c", "sleep 2"}, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknown, res.Outcome)
}

func TestRun_MissingExecutable(t *testing.T) {
	r := New(nil)
	_, err := r.Run(context.Background(), []string{"/no/such/plugin-binary"}, time.Second)
	require.Error(t, err)
}

func TestRun_TruncatesLongMessage(t *testing.T) {
	r := New(nil)
	res, err := r.Run(context.Background(), []string{"sh", "-c", "printf '%0.sx' {1..400}"}, 2*time.Second)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Message), 199)
}
