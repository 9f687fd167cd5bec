package emulator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/bcrypt"
)

const (
	certificateCollection = "certificate"
	serviceCollection     = "service"
	upstreamCollection    = "upstream"
	sensorCollection      = "sensor"
	jailCollection        = "jail"
	feedCollection        = "feed"
	routeFilterCollection = "route_filter"
	dictionaryCollection  = "dictionary"
	userCollection        = "user"
	ruleCategoryColl      = "rulecat"
	ruleCollection        = "rulesec"
	transactionCollection = "trn"
	changeCollection      = "change"
	configCollection      = "config"
)

// collections served by the generic handlers, mapped to whether a mutation is a pending change.
var collections = map[string]bool{
	certificateCollection: true,
	serviceCollection:     true,
	upstreamCollection:    true,
	sensorCollection:      true,
	jailCollection:        true,
	feedCollection:        true,
	routeFilterCollection: true,
	dictionaryCollection:  true,
	ruleCategoryColl:      true,
	ruleCollection:        true,
	userCollection:        false,
	transactionCollection: false,
}

type document map[string]any

func decodeDocument(raw []byte) (document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Join(ErrInvalidRecord, err)
	}
	if doc == nil {
		return nil, errors.Join(ErrInvalidRecord, errors.New("document must be a JSON object"))
	}
	return doc, nil
}

func idKey(v any) (string, error) {
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", errors.Join(ErrInvalidRecord, errors.New("empty _id"))
		}
		return id, nil
	case json.Number:
		return id.String(), nil
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(id), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	default:
		return "", errors.Join(ErrInvalidRecord, fmt.Errorf("unsupported _id %v", v))
	}
}

// RecordOf builds a Record from a JSON document carrying its _id.
func RecordOf(body []byte) (Record, error) {
	doc, err := decodeDocument(body)
	if err != nil {
		return Record{}, err
	}
	id, err := idKey(doc["_id"])
	if err != nil {
		return Record{}, err
	}
	return Record{ID: id, Body: body}, nil
}

func newID() string {
	u := uuid.New()
	return base58.Encode(u[:])
}

func collectionParam(c *fiber.Ctx) (string, error) {
	name := c.Params("collection")
	if _, ok := collections[name]; !ok {
		return "", ErrNotFound
	}
	return name, nil
}

// public removes fields never returned by the API.
func public(collection string, body json.RawMessage) json.RawMessage {
	if collection != userCollection {
		return body
	}
	doc, err := decodeDocument(body)
	if err != nil {
		return body
	}
	delete(doc, "password")
	raw, err := json.Marshal(doc)
	if err != nil {
		return body
	}
	return raw
}

func publicAll(collection string, recs []Record) []json.RawMessage {
	out := bodies(recs)
	for i := range out {
		out[i] = public(collection, out[i])
	}
	return out
}

func (s *Server) filter(collection string, c *fiber.Ctx) (Filter, error) {
	f := Filter{Equals: map[string]any{}, Match: map[string]string{}}
	if name := c.Query("name"); name != "" {
		f.Match["name"] = "(?i)" + regexp.QuoteMeta(name)
	}
	switch collection {
	case certificateCollection:
		if provider := c.Query("provider"); provider != "" {
			f.Equals["provider"] = provider
		}
	case dictionaryCollection:
		if c.QueryBool("user_only") {
			f.Equals["scope"] = "user"
		}
		if expr := c.Query("regex"); expr != "" {
			if _, err := regexp.Compile(expr); err != nil {
				return f, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid regex %q", expr))
			}
			f.Match["name"] = expr
		}
	}
	return f, nil
}

func (s *Server) list(c *fiber.Ctx) error {
	collection, err := collectionParam(c)
	if err != nil {
		return err
	}
	f, err := s.filter(collection, c)
	if err != nil {
		return err
	}
	if collection == ruleCategoryColl && len(c.Context().QueryArgs().PeekMulti("phases")) > 0 {
		return s.ruleCategoriesByPhases(c, f)
	}
	pg, size, ok, err := pagination(c)
	if err != nil {
		return err
	}
	offset, limit := 0, 0
	if ok {
		offset, limit = (pg-1)*size, size
	}
	recs, total, err := s.repo.List(c.UserContext(), collection, f, offset, limit)
	if err != nil {
		return err
	}
	return c.JSON(newPage(publicAll(collection, recs), total, pg, size))
}

func (s *Server) read(c *fiber.Ctx) error {
	collection, err := collectionParam(c)
	if err != nil {
		return err
	}
	rec, err := s.repo.Get(c.UserContext(), collection, c.Params("id"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(public(collection, rec.Body))
}

func (s *Server) create(c *fiber.Ctx) error {
	collection, err := collectionParam(c)
	if err != nil {
		return err
	}
	doc, err := decodeDocument(c.Body())
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	s.writeMux.Lock()
	defer s.writeMux.Unlock()

	switch collection {
	case userCollection:
		if err := s.prepareUser(ctx, doc, nil); err != nil {
			return err
		}
		doc["_id"] = newID()
	case ruleCategoryColl:
		id, err := s.nextCategoryID(ctx)
		if err != nil {
			return err
		}
		doc["_id"] = id
	default:
		doc["_id"] = newID()
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	rec, err := RecordOf(raw)
	if err != nil {
		return err
	}
	rec.CreatedAt = s.now()
	if err := s.repo.Insert(ctx, collection, rec); err != nil {
		return err
	}
	if err := s.mutated(ctx, collection); err != nil {
		return err
	}
	c.Status(fiber.StatusCreated)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(public(collection, rec.Body))
}

func (s *Server) replace(c *fiber.Ctx) error {
	return s.update(c, false)
}

func (s *Server) patch(c *fiber.Ctx) error {
	return s.update(c, true)
}

func (s *Server) update(c *fiber.Ctx, merge bool) error {
	collection, err := collectionParam(c)
	if err != nil {
		return err
	}
	doc, err := decodeDocument(c.Body())
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	s.writeMux.Lock()
	defer s.writeMux.Unlock()

	rec, err := s.repo.Get(ctx, collection, c.Params("id"))
	if err != nil {
		return err
	}
	old, err := decodeDocument(rec.Body)
	if err != nil {
		return err
	}
	if merge {
		merged := make(document, len(old)+len(doc))
		for k, v := range old {
			merged[k] = v
		}
		for k, v := range doc {
			merged[k] = v
		}
		if _, ok := doc["password"]; !ok {
			delete(merged, "password")
		}
		doc = merged
	}
	doc["_id"] = old["_id"]
	if collection == userCollection {
		if err := s.prepareUser(ctx, doc, old); err != nil {
			return err
		}
	}

	rec.Body, err = json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := s.repo.Replace(ctx, collection, rec); err != nil {
		return err
	}
	if err := s.mutated(ctx, collection); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(public(collection, rec.Body))
}

func (s *Server) remove(c *fiber.Ctx) error {
	collection, err := collectionParam(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	ctx := c.UserContext()
	if err := s.repo.Delete(ctx, collection, id); err != nil {
		return err
	}
	if err := s.mutated(ctx, collection); err != nil {
		return err
	}
	return c.JSON(removed{Message: fmt.Sprintf("Record %s removed", id), Code: fiber.StatusOK})
}

// prepareUser validates the account and hashes a new password. old is nil for a new account.
func (s *Server) prepareUser(ctx context.Context, doc, old document) error {
	email, _ := doc["email"].(string)
	if email == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email is required")
	}
	recs, _, err := s.repo.List(ctx, userCollection, Filter{Equals: map[string]any{"email": email}}, 0, 1)
	if err != nil {
		return err
	}
	if len(recs) > 0 && (old == nil || recs[0].ID != fmt.Sprint(old["_id"])) {
		return ErrConflict
	}

	password, _ := doc["password"].(string)
	switch {
	case password != "":
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		doc["password"] = string(hash)
	case old != nil:
		doc["password"] = old["password"]
	default:
		return fiber.NewError(fiber.StatusBadRequest, "password is required")
	}
	if role, _ := doc["role"].(string); role == "" {
		doc["role"] = "operator"
	}
	return nil
}

func (s *Server) nextCategoryID(ctx context.Context) (int64, error) {
	recs, _, err := s.repo.List(ctx, ruleCategoryColl, Filter{}, 0, 0)
	if err != nil {
		return 0, err
	}
	var highest int64
	for _, r := range recs {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err == nil && id > highest {
			highest = id
		}
	}
	return highest + 1, nil
}

func (s *Server) mutated(ctx context.Context, collection string) error {
	if !collections[collection] {
		return nil
	}
	return s.track(ctx, collection)
}

func splitMulti(values [][]byte) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(string(v), ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
