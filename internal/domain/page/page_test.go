package page_test

import (
	"testing"

	"assistant-server/internal/domain/page"
)

func TestParams_Normalize(t *testing.T) {
	tests := []struct {
		name  string
		in    page.Params
		order page.Order
		limit int
	}{
		{"defaults", page.Params{}, page.OrderDesc, page.DefaultLimit},
		{"keeps asc", page.Params{Order: page.OrderAsc, Limit: 5}, page.OrderAsc, 5},
		{"unknown order falls back to desc", page.Params{Order: "sideways"}, page.OrderDesc, page.DefaultLimit},
		{"negative limit uses default", page.Params{Limit: -3}, page.OrderDesc, page.DefaultLimit},
		{"limit clamped to max", page.Params{Limit: 5000}, page.OrderDesc, page.MaxLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			if got.Order != tt.order {
				t.Errorf("order = %v, want %v", got.Order, tt.order)
			}
			if got.Limit != tt.limit {
				t.Errorf("limit = %d, want %d", got.Limit, tt.limit)
			}
		})
	}
}

type row struct{ id string }

func TestFromLookahead(t *testing.T) {
	id := func(r row) string { return r.id }

	t.Run("extra row signals has_more and is dropped", func(t *testing.T) {
		rows := []row{{"a"}, {"b"}, {"c"}}
		p := page.FromLookahead(rows, 2, id)
		if !p.HasMore {
			t.Error("expected HasMore")
		}
		if len(p.Data) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(p.Data))
		}
		if p.FirstID != "a" || p.LastID != "b" {
			t.Errorf("cursor ids = %q, %q", p.FirstID, p.LastID)
		}
	})

	t.Run("short page", func(t *testing.T) {
		p := page.FromLookahead([]row{{"a"}}, 2, id)
		if p.HasMore {
			t.Error("unexpected HasMore")
		}
		if p.FirstID != "a" || p.LastID != "a" {
			t.Errorf("cursor ids = %q, %q", p.FirstID, p.LastID)
		}
	})

	t.Run("empty page", func(t *testing.T) {
		p := page.FromLookahead(nil, 2, id)
		if p.HasMore || p.FirstID != "" || p.LastID != "" {
			t.Errorf("empty page must carry no cursors: %+v", p)
		}
	})
}
