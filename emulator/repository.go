package emulator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"time"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrConflict      = errors.New("record already exists")
	ErrInvalidRecord = errors.New("invalid record")
)

// Record is a single stored document. Body is the JSON document including its _id.
type Record struct {
	ID        string          `json:"-"`
	Body      json.RawMessage `json:"body"`
	CreatedAt time.Time       `json:"created_at"`
}

// Filter narrows a listing. All conditions must hold.
type Filter struct {
	Equals map[string]any    // top level field equals the value
	Match  map[string]string // top level string field matches the regular expression
}

// Empty reports whether the filter has no conditions.
func (f Filter) Empty() bool {
	return len(f.Equals) == 0 && len(f.Match) == 0
}

// Repository stores the collections served by the emulator.
type Repository interface {
	Insert(ctx context.Context, collection string, rec Record) error
	Get(ctx context.Context, collection, id string) (Record, error)
	List(ctx context.Context, collection string, filter Filter, offset, limit int) ([]Record, int, error)
	Replace(ctx context.Context, collection string, rec Record) error
	Delete(ctx context.Context, collection, id string) error
	Truncate(ctx context.Context, collection string) error
	Collections(ctx context.Context) ([]string, error)
	Disconnect(ctx context.Context) error
}

// Matches evaluates the filter against a JSON document.
func Matches(body json.RawMessage, f Filter) (bool, error) {
	if f.Empty() {
		return true, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return false, errors.Join(ErrInvalidRecord, err)
	}
	for field, want := range f.Equals {
		got, ok := doc[field]
		if !ok {
			return false, nil
		}
		raw, err := json.Marshal(want)
		if err != nil {
			return false, err
		}
		if !sameJSON(got, raw) {
			return false, nil
		}
	}
	for field, expr := range f.Match {
		re, err := regexp.Compile(expr)
		if err != nil {
			return false, err
		}
		var s string
		if err := json.Unmarshal(doc[field], &s); err != nil {
			return false, nil
		}
		if !re.MatchString(s) {
			return false, nil
		}
	}
	return true, nil
}

func sameJSON(a, b []byte) bool {
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return bytes.Equal(a, b)
	}
	ra, _ := json.Marshal(va)
	rb, _ := json.Marshal(vb)
	return bytes.Equal(ra, rb)
}

// window returns the bounds of the page within n elements. limit <= 0 selects everything after offset.
func window(n, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}
