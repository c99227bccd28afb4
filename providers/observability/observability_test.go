package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAttributeConstructors(t *testing.T) {
	cases := []struct {
		name  string
		attr  Attribute
		key   string
		value any
	}{
		{"string", String("k", "v"), "k", "v"},
		{"int", Int("k", 3), "k", 3},
		{"int64", Int64("k", 4), "k", int64(4)},
		{"float", Float64("k", 1.5), "k", 1.5},
		{"bool", Bool("k", true), "k", true},
		{"duration", Duration("k", time.Second), "k", time.Second},
		{"error", Error(errors.New("boom")), AttrError, "boom"},
		{"nil error", Error(nil), AttrError, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.attr.Key != tc.key {
				t.Errorf("key = %q, want %q", tc.attr.Key, tc.key)
			}
			if tc.attr.Value != tc.value {
				t.Errorf("value = %v, want %v", tc.attr.Value, tc.value)
			}
		})
	}
}

func TestStrings_CopiesInput(t *testing.T) {
	input := []string{"a", "b"}
	attr := Strings("spaces", input)
	input[0] = "changed"

	values := attr.Value.([]string)
	if values[0] != "a" {
		t.Fatalf("attribute must not alias the caller's slice, got %v", values)
	}
}

func TestNop_StartSpanCarriesSpan(t *testing.T) {
	ctx, span := Nop().StartSpan(context.Background(), SpanConversationTurn)
	if span == nil {
		t.Fatal("expected a span")
	}
	if SpanFromContext(ctx) == nil {
		t.Fatal("expected the span to be attached to the returned context")
	}
	span.SetStatus(StatusOK, "")
	span.End()
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) must return a usable provider")
	}
	custom := Nop()
	if OrNop(custom) != custom {
		t.Fatal("OrNop must return a non-nil provider unchanged")
	}
}
