// Package pagination implements keyset pages over rows ordered by
// created_at DESC, id DESC.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Params are the raw page inputs taken from a request.
type Params struct {
	Limit  int
	Cursor string
}

// Key is the position of a row in the feed ordering.
type Key struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Page is a resolved request. After is nil for the first page.
type Page struct {
	Limit int
	After *Key
}

// Resolve clamps the limit and decodes the cursor.
func (p Params) Resolve() (Page, error) {
	page := Page{Limit: p.Limit}
	switch {
	case page.Limit <= 0:
		page.Limit = DefaultLimit
	case page.Limit > MaxLimit:
		page.Limit = MaxLimit
	}

	after, err := DecodeCursor(p.Cursor)
	if err != nil {
		return Page{}, err
	}
	page.After = after
	return page, nil
}

// Fetch is the row count to query; the extra row tells whether another page exists.
func (p Page) Fetch() int {
	return p.Limit + 1
}

// Cut trims rows queried with Fetch down to the page and returns the cursor
// of the following page, or "" when rows held the last page.
func Cut[T any](p Page, rows []T, key func(T) Key) ([]T, string) {
	if len(rows) <= p.Limit {
		return rows, ""
	}
	rows = rows[:p.Limit]
	return rows, key(rows[len(rows)-1]).Encode()
}

// Encode renders the key as an opaque URL-safe cursor.
func (k Key) Encode() string {
	raw := strconv.FormatInt(k.CreatedAt.UnixNano(), 10) + "." + k.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor produced by Key.Encode. An empty cursor yields nil.
func DecodeCursor(value string) (*Key, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	nanos, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", ErrInvalidCursor, err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrInvalidCursor, err)
	}
	return &Key{CreatedAt: time.Unix(0, n).UTC(), ID: parsed}, nil
}
