package cursor_test

import (
	"context"
	"testing"

	"assistant-server/internal/domain/page"
	"assistant-server/internal/infrastructure/repository/cursor"
	"assistant-server/internal/utils/platformerrors"
)

type row struct {
	id  uint
	pub string
}

func rows(n int) []row {
	out := make([]row, n)
	for i := range out {
		out[i] = row{id: uint(i + 1), pub: "row_" + string(rune('a'+i))}
	}
	return out
}

func ids(items []row) []uint {
	out := make([]uint, len(items))
	for i, r := range items {
		out[i] = r.id
	}
	return out
}

func window(t *testing.T, items []row, params page.Params) []row {
	t.Helper()
	out, err := cursor.Window(context.Background(), items, params,
		func(r row) uint { return r.id },
		func(r row) string { return r.pub })
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	return out
}

func TestWindow(t *testing.T) {
	all := rows(5) // row_a .. row_e, ids 1..5

	tests := []struct {
		name   string
		params page.Params
		want   []uint
	}{
		{
			name:   "asc full",
			params: page.Params{Order: page.OrderAsc, Limit: 10},
			want:   []uint{1, 2, 3, 4, 5},
		},
		{
			name:   "desc full",
			params: page.Params{Order: page.OrderDesc, Limit: 10},
			want:   []uint{5, 4, 3, 2, 1},
		},
		{
			name:   "asc after",
			params: page.Params{Order: page.OrderAsc, Limit: 10, After: "row_b"},
			want:   []uint{3, 4, 5},
		},
		{
			name:   "desc after walks backwards",
			params: page.Params{Order: page.OrderDesc, Limit: 10, After: "row_d"},
			want:   []uint{3, 2, 1},
		},
		{
			name:   "asc before",
			params: page.Params{Order: page.OrderAsc, Limit: 10, Before: "row_d"},
			want:   []uint{1, 2, 3},
		},
		{
			name:   "desc before",
			params: page.Params{Order: page.OrderDesc, Limit: 10, Before: "row_b"},
			want:   []uint{5, 4, 3},
		},
		{
			name:   "after and before bracket",
			params: page.Params{Order: page.OrderAsc, Limit: 10, After: "row_a", Before: "row_e"},
			want:   []uint{2, 3, 4},
		},
		{
			name:   "after the last row",
			params: page.Params{Order: page.OrderAsc, Limit: 10, After: "row_e"},
			want:   nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ids(window(t, all, tc.params))
			if len(got) != len(tc.want) {
				t.Fatalf("got ids %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got ids %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestWindow_LookaheadRow(t *testing.T) {
	all := rows(5)

	// Window over-fetches by one so FromLookahead can detect more data.
	out := window(t, all, page.Params{Order: page.OrderAsc, Limit: 2})
	if len(out) != 3 {
		t.Fatalf("expected limit+1 rows, got %d", len(out))
	}

	pg := page.FromLookahead(out, 2, func(r row) string { return r.pub })
	if !pg.HasMore {
		t.Error("lookahead row must set HasMore")
	}
	if len(pg.Data) != 2 || pg.FirstID != "row_a" || pg.LastID != "row_b" {
		t.Errorf("page wrong: %+v", pg)
	}

	// Exactly limit rows left: no lookahead row, no more data.
	out = window(t, all, page.Params{Order: page.OrderAsc, Limit: 2, After: "row_c"})
	pg = page.FromLookahead(out, 2, func(r row) string { return r.pub })
	if pg.HasMore {
		t.Error("final page must not report more data")
	}
	if pg.FirstID != "row_d" || pg.LastID != "row_e" {
		t.Errorf("page wrong: %+v", pg)
	}
}

func TestWindow_UnknownCursor(t *testing.T) {
	_, err := cursor.Window(context.Background(), rows(3),
		page.Params{Order: page.OrderAsc, Limit: 10, After: "row_zz"},
		func(r row) uint { return r.id },
		func(r row) string { return r.pub })
	if err == nil {
		t.Fatal("expected an error for an unknown cursor")
	}
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation) {
		t.Errorf("unknown cursor must be a validation error, got %v", err)
	}
}

func TestWindow_EmptyInput(t *testing.T) {
	out := window(t, nil, page.Params{Order: page.OrderDesc, Limit: 10})
	if len(out) != 0 {
		t.Errorf("expected no rows, got %d", len(out))
	}
}
