package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bartossh/Rampart/entity"
	"github.com/bartossh/Rampart/resource"
)

// DateFormat is the layout of dates sent to the transaction search.
const DateFormat = "2006-01-02T15:04:05.000Z"

var ErrInvalidFilter = errors.New("invalid transaction filter")

// TransactionFilter selects transactions logged between Start and End.
// Each entry of Filters is a JSON encoded condition.
type TransactionFilter struct {
	Start   time.Time
	End     time.Time
	Filters []string
}

type searchBody struct {
	LogTimeStart string            `json:"logtime_start"`
	LogTimeEnd   string            `json:"logtime_end"`
	Filters      []json.RawMessage `json:"filters"`
}

func (f TransactionFilter) body() (searchBody, error) {
	if f.End.Before(f.Start) {
		return searchBody{}, errors.Join(ErrInvalidFilter, fmt.Errorf("end %s before start %s", f.End, f.Start))
	}
	b := searchBody{
		LogTimeStart: f.Start.UTC().Format(DateFormat),
		LogTimeEnd:   f.End.UTC().Format(DateFormat),
		Filters:      make([]json.RawMessage, 0, len(f.Filters)),
	}
	for _, raw := range f.Filters {
		if !json.Valid([]byte(raw)) {
			return searchBody{}, errors.Join(ErrInvalidFilter, fmt.Errorf("filter %q is not JSON", raw))
		}
		b.Filters = append(b.Filters, json.RawMessage(raw))
	}
	return b, nil
}

type Transactions struct {
	*resource.Client[entity.TransactionLog, string]
}

// Search lists transactions matching the filter.
func (t *Transactions) Search(ctx context.Context, filter TransactionFilter, pagination *resource.PageMeta) (resource.Page[entity.TransactionLog], error) {
	var p resource.Page[entity.TransactionLog]
	body, err := filter.body()
	if err != nil {
		return p, err
	}
	q := url.Values{}
	withPage(q, pagination)
	err = t.Send(ctx, http.MethodPost, "", q, body, &p)
	return p, err
}

// TPM returns transactions per minute for the filter.
func (t *Transactions) TPM(ctx context.Context, filter TransactionFilter) ([]entity.TPMPoint, error) {
	body, err := filter.body()
	if err != nil {
		return nil, err
	}
	var out []entity.TPMPoint
	err = t.Send(ctx, http.MethodPost, "/stats/tpm", nil, body, &out)
	return out, err
}
