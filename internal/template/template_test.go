package template

import (
	"context"
	"errors"
	"testing"

	"github.com/banyanstay/notify-dispatch/internal/model"
)

func TestRender(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		vars map[string]string
		want string
	}{
		{
			name: "simple substitution",
			body: "Hello {{name}}!",
			vars: map[string]string{"name": "Nida"},
			want: "Hello Nida!",
		},
		{
			name: "whitespace tolerant",
			body: "Hello {{ name }} and {{  other  }}",
			vars: map[string]string{"name": "A", "other": "B"},
			want: "Hello A and B",
		},
		{
			name: "unmatched placeholder stays verbatim",
			body: "Hi {{name}}, room {{roomName}}",
			vars: map[string]string{"name": "Nida"},
			want: "Hi Nida, room {{roomName}}",
		},
		{
			name: "repeated placeholder",
			body: "{{a}} {{a}}",
			vars: map[string]string{"a": "x"},
			want: "x x",
		},
		{
			name: "no variables at all",
			body: "Plain text",
			vars: nil,
			want: "Plain text",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Render(tc.body, tc.vars); got != tc.want {
				t.Fatalf("Render() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRenderTemplate_MarketingGetsOptOutSuffix(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	store.Put(&model.Template{ID: "promo", Category: model.CategoryMarketing, Body: "Deal for {{name}}"})
	store.Put(&model.Template{ID: "confirm", Category: model.CategoryTransactional, Body: "Booking {{id}} confirmed"})

	r := NewRenderer(store)

	body, category, err := r.RenderTemplate(context.Background(), "promo", map[string]string{"name": "Nida"}, "Reply STOP to unsubscribe")
	if err != nil {
		t.Fatalf("RenderTemplate error: %v", err)
	}
	if category != model.CategoryMarketing {
		t.Fatalf("expected marketing category, got %s", category)
	}
	if body != "Deal for Nida Reply STOP to unsubscribe" {
		t.Fatalf("unexpected body %q", body)
	}

	body, _, err = r.RenderTemplate(context.Background(), "confirm", map[string]string{"id": "100"}, "Reply STOP to unsubscribe")
	if err != nil {
		t.Fatalf("RenderTemplate error: %v", err)
	}
	if body != "Booking 100 confirmed" {
		t.Fatalf("transactional body must not get a suffix, got %q", body)
	}
}

func TestRenderTemplate_NotFound(t *testing.T) {
	t.Parallel()

	r := NewRenderer(NewMemoryStore())
	_, _, err := r.RenderTemplate(context.Background(), "missing", nil, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
