package modhooks

import (
	"context"
	"fmt"
	"reflect"
)

// FilterFunc is a typed filter handler.
type FilterFunc[T any] func(ctx context.Context, payload T) (T, error)

// ActionFunc is a typed action handler.
type ActionFunc[T any] func(ctx context.Context, payload T) error

// AddFilter registers a typed filter handler. The first typed registration
// pins the hook's payload type; registering a different T later fails with
// ErrPayloadMismatch.
func AddFilter[T any](r *HookRegistry, name string, priority int, fn FilterFunc[T], opts ...RegisterOption) (HandlerRef, error) {
	if fn == nil {
		return HandlerRef{}, ErrNilHandler
	}
	handler := func(ctx context.Context, payload any) (any, error) {
		v, err := assertPayload[T](name, payload)
		if err != nil {
			return nil, err
		}
		return fn(ctx, v)
	}
	opts = append(opts, WithKind(HookFilter), withPayloadType(reflect.TypeFor[T]()))
	return r.Register(name, priority, handler, opts...)
}

// AddAction registers a typed action handler.
func AddAction[T any](r *HookRegistry, name string, priority int, fn ActionFunc[T], opts ...RegisterOption) (HandlerRef, error) {
	if fn == nil {
		return HandlerRef{}, ErrNilHandler
	}
	handler := func(ctx context.Context, payload any) (any, error) {
		v, err := assertPayload[T](name, payload)
		if err != nil {
			return nil, err
		}
		return nil, fn(ctx, v)
	}
	opts = append(opts, WithKind(HookAction), withPayloadType(reflect.TypeFor[T]()))
	return r.Register(name, priority, handler, opts...)
}

// ApplyFilter dispatches a typed filter and returns the transformed payload.
func ApplyFilter[T any](ctx context.Context, r *HookRegistry, name string, payload T) (T, error) {
	out, err := r.Filter(ctx, name, payload)
	if err != nil {
		var zero T
		return zero, err
	}
	return assertPayload[T](name, out)
}

// DoAction dispatches a typed action.
func DoAction[T any](ctx context.Context, r *HookRegistry, name string, payload T) {
	r.Action(ctx, name, payload)
}

// DeclareHook pins the payload type of a hook name before any handler exists.
func DeclareHook[T any](r *HookRegistry, name string, kind HookKind) error {
	if name == "" {
		return ErrEmptyHookName
	}
	t := reflect.TypeFor[T]()
	c := r.chain(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payloadType != nil && c.payloadType != t {
		return fmt.Errorf("%w: hook %q declared with %s, got %s", ErrPayloadMismatch, name, c.payloadType, t)
	}
	c.payloadType = t
	c.kind = kind
	return nil
}

func assertPayload[T any](hook string, payload any) (T, error) {
	if v, ok := payload.(T); ok {
		return v, nil
	}
	var zero T
	if payload == nil {
		return zero, nil
	}
	return zero, fmt.Errorf("%w: hook %q expects %s, got %T", ErrPayloadMismatch, hook, reflect.TypeFor[T](), payload)
}
