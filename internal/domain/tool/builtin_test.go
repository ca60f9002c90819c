package tool_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"assistant-server/internal/domain/tool"
)

func builtinRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	r := newRegistry(t)
	if err := tool.RegisterBuiltins(r); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	return r
}

func TestCalculator_Invoke(t *testing.T) {
	r := builtinRegistry(t)

	tests := []struct {
		name string
		args string
		want string
	}{
		{"add", `{"operation":"add","a":2,"b":3}`, "5"},
		{"subtract", `{"operation":"subtract","a":2,"b":3}`, "-1"},
		{"multiply", `{"operation":"multiply","a":4,"b":2.5}`, "10"},
		{"divide", `{"operation":"divide","a":7,"b":2}`, "3.5"},
		{"power", `{"operation":"power","a":2,"b":10}`, "1024"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Invoke(context.Background(), "calculator", []byte(tt.args))
			if err != nil {
				t.Fatalf("invoke: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCalculator_InvokeErrors(t *testing.T) {
	r := builtinRegistry(t)

	tests := []struct {
		name string
		args string
	}{
		{"division by zero", `{"operation":"divide","a":1,"b":0}`},
		{"unknown operation", `{"operation":"modulo","a":1,"b":2}`},
		{"malformed json", `{"operation":`},
		{"non-finite result", `{"operation":"power","a":-1,"b":0.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Invoke(context.Background(), "calculator", []byte(tt.args)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCurrentTime_Invoke(t *testing.T) {
	r := builtinRegistry(t)

	out, err := r.Invoke(context.Background(), "get_current_time", []byte(`{}`))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, out); err != nil {
		t.Errorf("output %q is not RFC3339: %v", out, err)
	}
	if !strings.HasSuffix(out, "Z") && !strings.Contains(out, "+") && !strings.Contains(out, "-") {
		t.Errorf("output %q carries no offset", out)
	}

	out, err = r.Invoke(context.Background(), "get_current_time", []byte(`{"timezone":"America/New_York"}`))
	if err != nil {
		t.Fatalf("invoke with timezone: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, out); err != nil {
		t.Errorf("output %q is not RFC3339: %v", out, err)
	}

	if _, err := r.Invoke(context.Background(), "get_current_time", []byte(`{"timezone":"Atlantis/Lost"}`)); err == nil {
		t.Error("unknown timezone must fail")
	}
}
