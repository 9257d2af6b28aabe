package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLabels_Tags(t *testing.T) {
	l := Labels{"stage": "profiling", "outcome": "", "a": "1"}

	assert.Equal(t, []string{"a:1", "outcome:unknown", "stage:profiling"}, l.Tags())
	assert.Nil(t, Labels(nil).Tags())
}

func TestKey_StableAcrossMapOrder(t *testing.T) {
	k1 := Key(WorkflowStage, Labels{"stage": "executing", "outcome": "failed"})
	k2 := Key(WorkflowStage, Labels{"outcome": "failed", "stage": "executing"})

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, Key(WorkflowFinished, Labels{"stage": "executing", "outcome": "failed"}))
}

func TestNoop(t *testing.T) {
	var r Recorder = Noop{}
	r.IncCounter(WorkflowStage, nil)
	r.ObserveDuration(WorkflowStageDuration, time.Second, nil)
	assert.NoError(t, r.Close())
}
