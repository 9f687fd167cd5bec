package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bartossh/Rampart/entity"
	"github.com/bartossh/Rampart/resource"
)

type RuleCategories struct {
	*resource.Client[entity.RuleCategory, int]
}

// GetByPhases lists categories having rules in any of the phases.
func (r *RuleCategories) GetByPhases(ctx context.Context, phases []int) ([]entity.RuleCategory, error) {
	parts := make([]string, 0, len(phases))
	for _, p := range phases {
		parts = append(parts, strconv.Itoa(p))
	}
	var out []entity.RuleCategory
	err := r.Send(ctx, http.MethodGet, "", url.Values{"phases": {strings.Join(parts, ",")}}, nil, &out)
	return out, err
}

// GetBySingleName returns the category with exactly that name.
func (r *RuleCategories) GetBySingleName(ctx context.Context, name string) (entity.RuleCategory, error) {
	var out entity.RuleCategory
	err := r.Send(ctx, http.MethodGet, "/by_name/"+url.PathEscape(name), nil, nil, &out)
	return out, err
}

// GetByNameAndPhases lists categories matching the name in the phases.
func (r *RuleCategories) GetByNameAndPhases(ctx context.Context, name string, phases []int) ([]entity.RuleCategory, error) {
	q := url.Values{"name": {name}}
	for _, p := range phases {
		q.Add("phases", strconv.Itoa(p))
	}
	var out []entity.RuleCategory
	err := r.Send(ctx, http.MethodGet, "", q, nil, &out)
	return out, err
}

type Rules struct {
	*resource.Client[entity.SecRule, string]
}

// GetByCode returns rules with the code.
func (r *Rules) GetByCode(ctx context.Context, code int) (resource.Page[entity.SecRule], error) {
	var p resource.Page[entity.SecRule]
	err := r.Send(ctx, http.MethodGet, "/by_code/"+strconv.Itoa(code), nil, nil, &p)
	return p, err
}

// DictionaryFilter narrows dictionary search.
type DictionaryFilter struct {
	UserOnly bool
	Regex    string
}

type Dictionaries struct {
	*resource.Client[entity.Dictionary, string]
}

// Search lists dictionaries matching the filter.
func (d *Dictionaries) Search(ctx context.Context, filter DictionaryFilter, pagination *resource.PageMeta) (resource.Page[entity.Dictionary], error) {
	q := url.Values{
		"user_only": {strconv.FormatBool(filter.UserOnly)},
		"regex":     {filter.Regex},
	}
	withPage(q, pagination)
	var p resource.Page[entity.Dictionary]
	err := d.Send(ctx, http.MethodGet, "", q, nil, &p)
	return p, err
}
