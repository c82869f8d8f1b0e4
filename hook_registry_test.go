package modhooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var errHandler = errors.New("handler failed")

func suffix(s string) FilterFunc[string] {
	return func(_ context.Context, in string) (string, error) { return in + s, nil }
}

func TestFilter_OrdersByPriorityThenRegistration(t *testing.T) {
	hooks := NewHookRegistry()
	_, err := AddFilter(hooks, "greet", 20, suffix("-A"))
	require.NoError(t, err)
	_, err = AddFilter(hooks, "greet", 10, suffix("-B"))
	require.NoError(t, err)

	out, err := ApplyFilter(context.Background(), hooks, "greet", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi-B-A", out)

	_, err = AddFilter(hooks, "greet", 10, suffix("-C"))
	require.NoError(t, err)
	out, err = ApplyFilter(context.Background(), hooks, "greet", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi-B-C-A", out, "equal priorities run in registration order")
}

func TestFilter_NoHandlersReturnsPayload(t *testing.T) {
	hooks := NewHookRegistry()
	out, err := ApplyFilter(context.Background(), hooks, "unknown", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.False(t, hooks.Has("unknown"))
}

func TestFilter_ErrorAbortsChain(t *testing.T) {
	hooks := NewHookRegistry()
	called := false
	_, err := AddFilter(hooks, "greet", 1, func(_ context.Context, s string) (string, error) {
		return "", errHandler
	}, WithOwner("broken"))
	require.NoError(t, err)
	_, err = AddFilter(hooks, "greet", 2, func(_ context.Context, s string) (string, error) {
		called = true
		return s, nil
	})
	require.NoError(t, err)

	_, err = ApplyFilter(context.Background(), hooks, "greet", "hi")
	require.ErrorIs(t, err, errHandler)
	var hErr *HandlerError
	require.ErrorAs(t, err, &hErr)
	assert.Equal(t, "greet", hErr.Hook)
	assert.Equal(t, "broken", hErr.Owner)
	assert.False(t, called)
}

func TestFilter_PanicBecomesError(t *testing.T) {
	hooks := NewHookRegistry()
	_, err := AddFilter(hooks, "greet", 1, func(_ context.Context, s string) (string, error) {
		panic("kaboom")
	})
	require.NoError(t, err)

	_, err = ApplyFilter(context.Background(), hooks, "greet", "hi")
	assert.ErrorIs(t, err, ErrHandlerPanic)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestAction_FailuresAreIsolated(t *testing.T) {
	hooks := NewHookRegistry()
	var mu sync.Mutex
	var seen []string
	record := func(name string) ActionFunc[UserAction] {
		return func(_ context.Context, a UserAction) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name+":"+a.Action)
			return nil
		}
	}
	_, err := AddAction(hooks, "afterUserAction", 10, record("first"))
	require.NoError(t, err)
	_, err = AddAction(hooks, "afterUserAction", 20, func(context.Context, UserAction) error { return errHandler })
	require.NoError(t, err)
	_, err = AddAction(hooks, "afterUserAction", 30, func(context.Context, UserAction) error { panic("nope") })
	require.NoError(t, err)
	_, err = AddAction(hooks, "afterUserAction", 40, record("last"))
	require.NoError(t, err)

	DoAction(context.Background(), hooks, "afterUserAction", UserAction{Action: "attack"})

	assert.Equal(t, []string{"first:attack", "last:attack"}, seen)
	stats := hooks.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(1), stats[0].Dispatches)
	assert.Equal(t, uint64(2), stats[0].Failures)
}

func TestAction_MapPayloadIsCopiedPerHandler(t *testing.T) {
	hooks := NewHookRegistry()
	_, err := hooks.Register("track", 1, func(_ context.Context, p any) (any, error) {
		p.(map[string]any)["mutated"] = true
		return nil, nil
	})
	require.NoError(t, err)
	var sawMutation bool
	_, err = hooks.Register("track", 2, func(_ context.Context, p any) (any, error) {
		_, sawMutation = p.(map[string]any)["mutated"]
		return nil, nil
	})
	require.NoError(t, err)

	payload := map[string]any{"type": "login"}
	hooks.Action(context.Background(), "track", payload)

	assert.False(t, sawMutation)
	assert.NotContains(t, payload, "mutated")
}

func TestRegister_Validation(t *testing.T) {
	hooks := NewHookRegistry()
	_, err := hooks.Register("", 1, func(context.Context, any) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrEmptyHookName)
	_, err = hooks.Register("x", 1, nil)
	assert.ErrorIs(t, err, ErrNilHandler)
	_, err = AddFilter[string](hooks, "x", 1, nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestTypedHooks_PayloadMismatch(t *testing.T) {
	hooks := NewHookRegistry()
	_, err := AddFilter(hooks, "greet", 1, suffix("!"))
	require.NoError(t, err)

	_, err = AddFilter(hooks, "greet", 2, func(_ context.Context, n int) (int, error) { return n, nil })
	assert.ErrorIs(t, err, ErrPayloadMismatch)

	_, err = ApplyFilter(context.Background(), hooks, "greet", 7)
	assert.ErrorIs(t, err, ErrPayloadMismatch)
}

func TestStrictSchemas(t *testing.T) {
	hooks := NewHookRegistry(WithStrictSchemas())
	untyped := func(_ context.Context, p any) (any, error) { return p, nil }

	_, err := hooks.Register("greet", 1, untyped)
	assert.ErrorIs(t, err, ErrUndeclaredHook)

	require.NoError(t, DeclareHook[string](hooks, "greet", HookFilter))
	_, err = hooks.Register("greet", 1, untyped)
	assert.NoError(t, err, "declared hooks accept untyped handlers")

	assert.ErrorIs(t, DeclareHook[int](hooks, "greet", HookFilter), ErrPayloadMismatch)
	assert.NoError(t, hooks.Declare("greet", HookFilter, ""), "redeclaring the same type is a no-op")
}

func TestUnregister(t *testing.T) {
	hooks := NewHookRegistry()
	ref, err := AddFilter(hooks, "greet", 1, suffix("-A"), WithOwner("a"))
	require.NoError(t, err)
	_, err = AddFilter(hooks, "greet", 2, suffix("-B"), WithOwner("b"))
	require.NoError(t, err)
	_, err = AddFilter(hooks, "other", 2, suffix("-B"), WithOwner("b"))
	require.NoError(t, err)

	assert.True(t, hooks.Unregister(ref))
	assert.False(t, hooks.Unregister(ref), "second unregister is a no-op")
	assert.False(t, hooks.Unregister(HandlerRef{Hook: "missing", ID: 1}))

	assert.Equal(t, 2, hooks.UnregisterOwner("b"))
	assert.Equal(t, 0, hooks.UnregisterOwner("b"))
	assert.Equal(t, 0, hooks.UnregisterOwner(""))
	assert.Empty(t, hooks.Hooks())
}

func TestHandlersListing(t *testing.T) {
	hooks := NewHookRegistry()
	_, err := AddFilter(hooks, "greet", 5, suffix("-A"), WithOwner("a"), WithHandlerName("a.greet"))
	require.NoError(t, err)
	_, err = AddAction(hooks, "track", 1, func(context.Context, UserAction) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, []string{"greet", "track"}, hooks.Hooks())
	handlers := hooks.Handlers("greet")
	require.Len(t, handlers, 1)
	assert.Equal(t, 5, handlers[0].Priority)
	assert.Equal(t, "a", handlers[0].Owner)
	assert.Equal(t, HookFilter, handlers[0].Kind)
	assert.Equal(t, "a.greet", handlers[0].Name)
	assert.Nil(t, hooks.Handlers("missing"))
}

func TestRegistriesAreIsolated(t *testing.T) {
	a, b := NewHookRegistry(), NewHookRegistry()
	_, err := AddFilter(a, "greet", 1, suffix("-A"))
	require.NoError(t, err)
	assert.False(t, b.Has("greet"))
}

func TestConcurrentDispatchAndRegistration(t *testing.T) {
	hooks := NewHookRegistry()
	_, err := AddFilter(hooks, "greet", 0, suffix("!"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ref, err := AddFilter(hooks, "greet", i+1, suffix(""), WithOwner(fmt.Sprint("m", i)))
			if err == nil {
				hooks.Unregister(ref)
			}
		}()
		go func() {
			defer wg.Done()
			for range 50 {
				out, err := ApplyFilter(context.Background(), hooks, "greet", "hi")
				assert.NoError(t, err)
				assert.Equal(t, "hi!", out)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, hooks.Handlers("greet"), 1)
}

func TestDispatchIsTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	hooks := NewHookRegistry(WithTracerProvider(tp))
	_, err := AddFilter(hooks, "greet", 1, func(context.Context, string) (string, error) { return "", errHandler })
	require.NoError(t, err)

	_, _ = ApplyFilter(context.Background(), hooks, "greet", "hi")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "hook.filter", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
