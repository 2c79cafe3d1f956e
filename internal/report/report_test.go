package report

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricetriboix/skal-systest/internal/logcap"
	"github.com/fabricetriboix/skal-systest/internal/runner"
)

func writeSink(t *testing.T, c *logcap.Capture, basename, content string) {
	t.Helper()
	s, err := c.SinkFor(basename)
	require.NoError(t, err)
	_, err = s.File().WriteString(content)
	require.NoError(t, err)
}

func TestBuild_AllPassedNoLeaks(t *testing.T) {
	logs := logcap.New(t.TempDir())
	writeSink(t, logs, "skald", "started\n")

	results := []runner.Result{
		{Description: "Send one message through SKALD", Success: true},
		{Description: "Send five messages through SKALD", Success: true},
	}

	v, err := Build(results, logs)
	require.NoError(t, err)
	assert.True(t, v.Pass)
	assert.Equal(t, 0, v.FailCount)
	assert.Equal(t, 2, v.Total)
	assert.Empty(t, v.Leaks)
}

func TestBuild_ScenarioFailureTaintsVerdict(t *testing.T) {
	logs := logcap.New(t.TempDir())

	results := []runner.Result{
		{Description: "first", Success: true},
		{Description: "second", Success: false},
		{Description: "third", Success: true},
	}

	v, err := Build(results, logs)
	require.NoError(t, err)
	assert.False(t, v.Pass)
	assert.Equal(t, 1, v.FailCount)
	assert.Equal(t, 3, v.Total)
}

func TestBuild_LeakTaintsCleanRun(t *testing.T) {
	logs := logcap.New(t.TempDir())
	writeSink(t, logs, "writer", "sent 1 message\nMemory leak detected\n")

	results := []runner.Result{
		{Description: "first", Success: true},
	}

	v, err := Build(results, logs)
	require.NoError(t, err)
	assert.False(t, v.Pass, "leaks fail the run even when every scenario passed")
	assert.Equal(t, 0, v.FailCount)
	require.Len(t, v.Leaks, 1)
	assert.Equal(t, "writer", v.Leaks[0].Basename)
}

func TestBuild_ClosesSinks(t *testing.T) {
	logs := logcap.New(t.TempDir())
	writeSink(t, logs, "reader", "done\n")

	_, err := Build(nil, logs)
	require.NoError(t, err)

	// A second CloseAll must be a no-op, proving Build closed the sinks.
	assert.NoError(t, logs.CloseAll())
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name    string
		verdict Verdict
		want    string
	}{
		{
			name:    "all passed",
			verdict: Verdict{Total: 4, Pass: true},
			want:    "INTEGRATION TEST PASS - 4/4 integration tests passed",
		},
		{
			name:    "one failed",
			verdict: Verdict{Total: 4, FailCount: 1},
			want:    "INTEGRATION TEST FAIL - 1/4 integration tests failed",
		},
		{
			name: "passed but leaked",
			verdict: Verdict{
				Total: 4,
				Leaks: []logcap.Leak{{Basename: "writer", Path: "writer.log"}},
			},
			want: "INTEGRATION TEST FAIL - 4/4 integration tests passed, but with memory leaks",
		},
		{
			name: "failed and leaked reports the failure",
			verdict: Verdict{
				Total:     4,
				FailCount: 2,
				Leaks:     []logcap.Leak{{Basename: "writer", Path: "writer.log"}},
			},
			want: "INTEGRATION TEST FAIL - 2/4 integration tests failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.verdict.Summary())
		})
	}
}

func renderToString(v *Verdict) []byte {
	var buf bytes.Buffer
	v.Render(&buf)
	return buf.Bytes()
}

func TestRender_Pass(t *testing.T) {
	v := &Verdict{
		Results: []runner.Result{
			{Description: "Send one message through SKALD", Success: true},
			{Description: "Send five messages through SKALD", Success: true},
		},
		Total: 2,
		Pass:  true,
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "render_pass", renderToString(v))
}

func TestRender_Failures(t *testing.T) {
	v := &Verdict{
		Results: []runner.Result{
			{Description: "Send one message through SKALD", Success: false},
			{Description: "Send five messages through SKALD", Success: true},
		},
		FailCount: 1,
		Total:     2,
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "render_failures", renderToString(v))
}

func TestRender_Leaks(t *testing.T) {
	v := &Verdict{
		Results: []runner.Result{
			{Description: "Send one message through SKALD", Success: true},
		},
		Leaks: []logcap.Leak{
			{Basename: "writer", Path: "writer.log"},
		},
		Total: 1,
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "render_leaks", renderToString(v))
}
