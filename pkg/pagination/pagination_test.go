package pagination

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestResolveClampsLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 7: 7, MaxLimit + 50: MaxLimit}
	for in, want := range cases {
		page, err := Params{Limit: in}.Resolve()
		if err != nil {
			t.Fatalf("limit %d: unexpected error %v", in, err)
		}
		if page.Limit != want {
			t.Fatalf("limit %d: expected %d, got %d", in, want, page.Limit)
		}
		if page.After != nil {
			t.Fatalf("limit %d: expected first page", in)
		}
	}
}

func TestCursorRoundTrip(t *testing.T) {
	key := Key{CreatedAt: time.Date(2026, 10, 1, 9, 30, 0, 123, time.UTC), ID: uuid.New()}

	got, err := DecodeCursor(key.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.CreatedAt.Equal(key.CreatedAt) || got.ID != key.ID {
		t.Fatalf("expected %+v, got %+v", key, *got)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"%%%", "bm8tc2VwYXJhdG9y", "YWJjLm5vdC1hLXV1aWQ"} {
		if _, err := DecodeCursor(raw); !errors.Is(err, ErrInvalidCursor) {
			t.Fatalf("%q: expected ErrInvalidCursor, got %v", raw, err)
		}
	}
}

func TestCutReportsNextCursorOnlyWhenMoreRows(t *testing.T) {
	page := Page{Limit: 2}
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	keys := []Key{
		{CreatedAt: base.Add(2 * time.Hour), ID: uuid.New()},
		{CreatedAt: base.Add(time.Hour), ID: uuid.New()},
		{CreatedAt: base, ID: uuid.New()},
	}
	identity := func(k Key) Key { return k }

	rows, next := Cut(page, keys, identity)
	if len(rows) != 2 || next != keys[1].Encode() {
		t.Fatalf("expected two rows and cursor at second key, got %d rows next=%q", len(rows), next)
	}

	rows, next = Cut(page, keys[:2], identity)
	if len(rows) != 2 || next != "" {
		t.Fatalf("expected last page without cursor, got %d rows next=%q", len(rows), next)
	}
}
