package decision_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/decision"
)

func TestOnParameter(t *testing.T) {
	d := decision.OnParameter("exportEnabled", "export", model.BatchStatusCompleted)
	assert.Equal(t, "exportEnabled", d.ID())

	je := model.NewJobExecution("job", "1", model.JobParameters{"export": "SKIP_EXPORT"})
	got, err := d.Decide(context.Background(), je)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatus("SKIP_EXPORT"), got)

	got, err = d.Decide(context.Background(), model.NewJobExecution("job", "2", nil))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, got)
}
