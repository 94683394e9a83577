package initialization

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/domain/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() domain.EngineConfig {
	return domain.EngineConfig{
		Address: ":0",
		Site: domain.SiteConfig{
			Name: "Example Blog",
			URL:  "https://blog.example.com",
		},
		Storage: domain.StorageConfig{Driver: domain.StorageDriverMemory},
		Engine: domain.RuntimeConfig{
			RSSLockTTL:  time.Minute,
			HTTPTimeout: 5 * time.Second,
		},
	}
}

func TestNewContainer_RunsWorkflow(t *testing.T) {
	ctx := context.Background()

	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))

	container, err := NewContainer(ctx, ContainerOptions{Config: testConfig(), Clock: mockClock})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	saved, err := container.Workflows.Save(ctx, domain.Workflow{
		ID:   "wf1",
		Name: "Greeting",
		Nodes: []domain.Node{
			{ID: "t", Type: domain.NodeTypeTrigger, Data: map[string]any{"triggerType": "manual"}},
			{ID: "out", Type: domain.NodeTypeOutput, Data: map[string]any{"content": "{{site_name}}: [Input from t]"}},
		},
		Edges: []domain.Edge{{ID: "e1", Source: "t", Target: "out"}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowActivationStatusInactive, saved.Status)

	require.NoError(t, container.StartScheduler(ctx))

	result, err := container.Executor.Execute(ctx, executor.ExecuteParams{WorkflowID: "wf1", Input: "hello"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)

	out, ok := result.Outputs.Get("out")
	require.True(t, ok)

	content, ok := out.Content.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Example Blog: hello", content["content"])
}

func TestOpenStorage(t *testing.T) {
	tests := []struct {
		name      string
		config    domain.StorageConfig
		expectErr bool
	}{
		{name: "memory", config: domain.StorageConfig{Driver: domain.StorageDriverMemory}},
		{name: "empty driver falls back to memory", config: domain.StorageConfig{}},
		{name: "unknown driver", config: domain.StorageConfig{Driver: "sqlite"}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, err := OpenStorage(context.Background(), tt.config, clock.NewMock())

			if tt.expectErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.NoError(t, storage.Close())
		})
	}
}
