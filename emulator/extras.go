package emulator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DateFormat is the layout of dates in transaction search bodies.
const DateFormat = "2006-01-02T15:04:05.000Z"

type category struct {
	Rules []struct {
		Phase json.RawMessage `json:"phase"`
	} `json:"rules"`
}

func phaseOf(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (s *Server) ruleCategoriesByPhases(c *fiber.Ctx, f Filter) error {
	phases := make(map[string]struct{})
	for _, p := range splitMulti(c.Context().QueryArgs().PeekMulti("phases")) {
		phases[p] = struct{}{}
	}
	recs, _, err := s.repo.List(c.UserContext(), ruleCategoryColl, f, 0, 0)
	if err != nil {
		return err
	}
	out := make([]json.RawMessage, 0, len(recs))
	for _, r := range recs {
		var cat category
		if err := json.Unmarshal(r.Body, &cat); err != nil {
			continue
		}
		for _, rule := range cat.Rules {
			if _, ok := phases[phaseOf(rule.Phase)]; ok {
				out = append(out, r.Body)
				break
			}
		}
	}
	return c.JSON(out)
}

func (s *Server) ruleCategoryByName(c *fiber.Ctx) error {
	f := Filter{Equals: map[string]any{"name": c.Params("name")}}
	recs, _, err := s.repo.List(c.UserContext(), ruleCategoryColl, f, 0, 1)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return ErrNotFound
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(recs[0].Body)
}

func (s *Server) rulesByCode(c *fiber.Ctx) error {
	code, err := strconv.Atoi(c.Params("code"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "code must be a number")
	}
	f := Filter{Equals: map[string]any{"code": code}}
	recs, total, err := s.repo.List(c.UserContext(), ruleCollection, f, 0, 0)
	if err != nil {
		return err
	}
	return c.JSON(newPage(bodies(recs), total, 0, 0))
}

type searchBody struct {
	LogTimeStart string            `json:"logtime_start"`
	LogTimeEnd   string            `json:"logtime_end"`
	Filters      []json.RawMessage `json:"filters"`
}

type tpmPoint struct {
	Count   int64     `json:"count"`
	LogTime time.Time `json:"logtime"`
}

type logged struct {
	LogTime time.Time `json:"logtime"`
}

type timedRecord struct {
	body json.RawMessage
	at   time.Time
}

// transactions selects the transactions logged within the window of the search body.
func (s *Server) transactions(c *fiber.Ctx) ([]timedRecord, error) {
	var b searchBody
	if err := json.Unmarshal(c.Body(), &b); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid search body")
	}
	start, err := time.Parse(DateFormat, b.LogTimeStart)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid logtime_start %q", b.LogTimeStart))
	}
	end, err := time.Parse(DateFormat, b.LogTimeEnd)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid logtime_end %q", b.LogTimeEnd))
	}
	if end.Before(start) {
		return nil, fiber.NewError(fiber.StatusBadRequest, "logtime_end before logtime_start")
	}

	f := Filter{Equals: map[string]any{}}
	for _, raw := range b.Filters {
		var cond map[string]any
		if err := json.Unmarshal(raw, &cond); err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid filter %s", raw))
		}
		for k, v := range cond {
			f.Equals[k] = v
		}
	}

	recs, _, err := s.repo.List(c.UserContext(), transactionCollection, f, 0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]timedRecord, 0, len(recs))
	for _, r := range recs {
		var l logged
		if err := json.Unmarshal(r.Body, &l); err != nil {
			continue
		}
		if l.LogTime.Before(start) || l.LogTime.After(end) {
			continue
		}
		out = append(out, timedRecord{body: r.Body, at: l.LogTime})
	}
	return out, nil
}

func (s *Server) searchTransactions(c *fiber.Ctx) error {
	found, err := s.transactions(c)
	if err != nil {
		return err
	}
	pg, size, ok, err := pagination(c)
	if err != nil {
		return err
	}
	from, to := 0, len(found)
	if ok {
		from, to = window(len(found), (pg-1)*size, size)
	}
	data := make([]json.RawMessage, 0, to-from)
	for _, t := range found[from:to] {
		data = append(data, t.body)
	}
	return c.JSON(newPage(data, len(found), pg, size))
}

func (s *Server) transactionsPerMinute(c *fiber.Ctx) error {
	found, err := s.transactions(c)
	if err != nil {
		return err
	}
	buckets := make(map[time.Time]int64)
	for _, t := range found {
		buckets[t.at.UTC().Truncate(time.Minute)]++
	}
	out := make([]tpmPoint, 0, len(buckets))
	for at, n := range buckets {
		out = append(out, tpmPoint{Count: n, LogTime: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogTime.Before(out[j].LogTime) })
	return c.JSON(out)
}
