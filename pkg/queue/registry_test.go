package queue_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vergnetp/queuekit/pkg/queue"
)

type resizePayload struct {
	ID    int    `json:"id"`
	Width int    `json:"width"`
	Name  string `json:"name"`
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	t.Parallel()

	registry := queue.NewRegistry()
	registry.Register(queue.NewProcessor("resize", func(_ context.Context, e resizePayload) (any, error) {
		return e.ID, nil
	}))

	t.Run("resolves bare name", func(t *testing.T) {
		t.Parallel()

		p, err := registry.Resolve(queue.Ref{Name: "resize"})
		require.NoError(t, err)
		assert.Equal(t, "resize", p.Name())
		assert.False(t, p.Blocking())
	})

	t.Run("qualified ref falls back to bare name", func(t *testing.T) {
		t.Parallel()

		p, err := registry.Resolve(queue.Ref{Name: "resize", Module: "images"})
		require.NoError(t, err)
		assert.Equal(t, "resize", p.Name())
	})

	t.Run("unknown name", func(t *testing.T) {
		t.Parallel()

		_, err := registry.Resolve(queue.Ref{Name: "missing"})
		require.ErrorIs(t, err, queue.ErrProcessorNotFound)
	})

	t.Run("empty ref", func(t *testing.T) {
		t.Parallel()

		_, err := registry.Resolve(queue.Ref{})
		require.ErrorIs(t, err, queue.ErrProcessorRefEmpty)
	})
}

func TestRegistry_Modules(t *testing.T) {
	t.Parallel()

	registry := queue.NewRegistry()
	registry.RegisterInModule("images", queue.NewProcessor("resize", func(_ context.Context, _ resizePayload) (any, error) {
		return "images", nil
	}))
	registry.RegisterInModule("videos", queue.NewProcessor("resize", func(_ context.Context, _ resizePayload) (any, error) {
		return "videos", nil
	}))

	assert.Equal(t, 2, registry.Size())

	p, err := registry.Resolve(queue.Ref{Name: "resize", Module: "videos"})
	require.NoError(t, err)
	result, err := p.Process(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "videos", result)

	// A module-qualified registration does not serve bare refs.
	_, err = registry.Resolve(queue.Ref{Name: "resize"})
	require.ErrorIs(t, err, queue.ErrProcessorNotFound)
}

func TestTypedProcessor_Decode(t *testing.T) {
	t.Parallel()

	p := queue.NewProcessor("resize", func(_ context.Context, e resizePayload) (any, error) {
		return e.Width, nil
	})

	t.Run("decodes entity into typed payload", func(t *testing.T) {
		t.Parallel()

		result, err := p.Process(context.Background(), json.RawMessage(`{"id":7,"width":640}`))
		require.NoError(t, err)
		assert.Equal(t, 640, result)
	})

	t.Run("malformed entity is a processing error", func(t *testing.T) {
		t.Parallel()

		_, err := p.Process(context.Background(), json.RawMessage(`{"width":"not-a-number"}`))
		require.Error(t, err)
	})
}

func TestNewBlockingProcessor(t *testing.T) {
	t.Parallel()

	p := queue.NewBlockingProcessor("report", func(e resizePayload) (any, error) {
		return e.Name, nil
	})

	assert.True(t, p.Blocking())

	result, err := p.Process(context.Background(), json.RawMessage(`{"name":"q3"}`))
	require.NoError(t, err)
	assert.Equal(t, "q3", result)
}

func TestRegistry_Callbacks(t *testing.T) {
	t.Parallel()

	registry := queue.NewRegistry()
	registry.RegisterCallback("notify", func(_ context.Context, _ queue.CallbackPayload) error {
		return nil
	})

	fn, err := registry.ResolveCallback(queue.Ref{Name: "notify"})
	require.NoError(t, err)
	require.NotNil(t, fn)

	// Same fallback rule as processors.
	fn, err = registry.ResolveCallback(queue.Ref{Name: "notify", Module: "billing"})
	require.NoError(t, err)
	require.NotNil(t, fn)

	_, err = registry.ResolveCallback(queue.Ref{Name: "missing"})
	require.ErrorIs(t, err, queue.ErrCallbackNotFound)
}
