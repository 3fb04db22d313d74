package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRegisterAndInvoke(t *testing.T) {
	r := New()
	err := r.Register("echo", func(ctx context.Context, args ...any) (any, error) {
		if len(args) == 0 {
			return "", nil
		}
		return args[0], nil
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	got, err := r.Invoke(context.Background(), "echo", "hello")
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if got != "hello" {
		t.Errorf("Invoke = %v, want hello", got)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := New()
	handler := func(ctx context.Context, args ...any) (any, error) { return nil, nil }

	if err := r.Register("tool", handler); err != nil {
		t.Fatalf("first Register error: %v", err)
	}
	err := r.Register("tool", handler)
	if err == nil {
		t.Fatal("expected error for duplicate registration")
	}
	var dup *DuplicateToolError
	if !errors.As(err, &dup) {
		t.Fatalf("error type = %T, want *DuplicateToolError", err)
	}
	if dup.Name != "tool" {
		t.Errorf("dup.Name = %q, want tool", dup.Name)
	}
}

func TestRegister_Invalid(t *testing.T) {
	r := New()
	handler := func(ctx context.Context, args ...any) (any, error) { return nil, nil }

	if err := r.Register("", handler); err == nil {
		t.Error("expected error for empty name")
	}
	if err := r.Register("tool", nil); err == nil {
		t.Error("expected error for nil handler")
	}
}

func TestInvoke_Unknown(t *testing.T) {
	r := New()
	_, err := r.Invoke(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	var unknown *UnknownToolError
	if !errors.As(err, &unknown) {
		t.Fatalf("error type = %T, want *UnknownToolError", err)
	}
	if unknown.Name != "missing" {
		t.Errorf("unknown.Name = %q, want missing", unknown.Name)
	}
}

func TestInvoke_HandlerError(t *testing.T) {
	r := New()
	wantErr := errors.New("backend down")
	r.Register("failing", func(ctx context.Context, args ...any) (any, error) {
		return nil, wantErr
	})

	_, err := r.Invoke(context.Background(), "failing")
	if !errors.Is(err, wantErr) {
		t.Errorf("Invoke error = %v, want %v", err, wantErr)
	}
}

func TestNames_Sorted(t *testing.T) {
	r := New()
	handler := func(ctx context.Context, args ...any) (any, error) { return nil, nil }
	for _, name := range []string{"get_today_events", "get_yesterday_metrics", "get_group_updates"} {
		if err := r.Register(name, handler); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}

	names := r.Names()
	want := []string{"get_group_updates", "get_today_events", "get_yesterday_metrics"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	handler := func(ctx context.Context, args ...any) (any, error) { return "ok", nil }
	r.Register("shared", handler)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Register(fmt.Sprintf("tool-%d", i), handler)
		}(i)
		go func() {
			defer wg.Done()
			if _, err := r.Invoke(context.Background(), "shared"); err != nil {
				t.Errorf("Invoke error: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(r.Names()) != 21 {
		t.Errorf("registered tools = %d, want 21", len(r.Names()))
	}
}

func TestInvoke_ReentrantHandler(t *testing.T) {
	r := New()
	r.Register("inner", func(ctx context.Context, args ...any) (any, error) {
		return 42, nil
	})
	r.Register("outer", func(ctx context.Context, args ...any) (any, error) {
		return r.Invoke(ctx, "inner")
	})

	got, err := r.Invoke(context.Background(), "outer")
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if got != 42 {
		t.Errorf("Invoke = %v, want 42", got)
	}
}
