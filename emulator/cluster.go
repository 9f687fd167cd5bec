package emulator

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bartossh/Rampart/entity"
	"github.com/bartossh/Rampart/realtime"
)

const (
	activeConfigID = "active"
	restoreField   = "zipfile"
	restoreChange  = "backup"
)

type health struct {
	ApplyPending []json.RawMessage `json:"apply_pendding"`
	ApplyActive  bool              `json:"apply_active"`
}

// track records a pending change once per name and notifies the sockets.
func (s *Server) track(ctx context.Context, name string) error {
	_, total, err := s.repo.List(ctx, changeCollection, Filter{Equals: map[string]any{"name": name}}, 0, 1)
	if err != nil {
		return err
	}
	if total == 0 {
		now := s.now().UTC()
		raw, err := json.Marshal(entity.Change{ID: newID(), Name: name, CreatedOn: &now})
		if err != nil {
			return err
		}
		rec, err := RecordOf(raw)
		if err != nil {
			return err
		}
		rec.CreatedAt = now
		if err := s.repo.Insert(ctx, changeCollection, rec); err != nil {
			return err
		}
	}
	s.hub.emit(realtime.EventTracking)
	return nil
}

func (s *Server) health(c *fiber.Ctx) error {
	recs, _, err := s.repo.List(c.UserContext(), changeCollection, Filter{}, 0, 0)
	if err != nil {
		return err
	}
	return c.JSON(health{ApplyPending: bodies(recs), ApplyActive: s.applying.Load()})
}

func (s *Server) changes(c *fiber.Ctx) error {
	pg, size, ok, err := pagination(c)
	if err != nil {
		return err
	}
	offset, limit := 0, 0
	if ok {
		offset, limit = (pg-1)*size, size
	}
	recs, total, err := s.repo.List(c.UserContext(), changeCollection, Filter{}, offset, limit)
	if err != nil {
		return err
	}
	return c.JSON(newPage(bodies(recs), total, pg, size))
}

func (s *Server) apply(c *fiber.Ctx) error {
	if !s.applying.CompareAndSwap(false, true) {
		return s.fail(c, fiber.StatusConflict, "Apply already in progress", "")
	}
	defer s.applying.Store(false)

	ctx := c.UserContext()
	recs, _, err := s.repo.List(ctx, changeCollection, Filter{}, 0, 0)
	if err != nil {
		return err
	}
	if s.cfg.ApplyDelay > 0 {
		t := time.NewTimer(s.cfg.ApplyDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return s.fail(c, fiber.StatusInternalServerError, "Apply interrupted", ctx.Err().Error())
		}
	}
	for _, r := range recs {
		if err := s.repo.Delete(ctx, changeCollection, r.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	s.hub.emit(realtime.EventApplied)
	s.log.Info(fmt.Sprintf("emulator applied %d changes", len(recs)))
	return c.JSON(entity.ApplyResult{Succeed: true, Message: fmt.Sprintf("Applied %d changes", len(recs))})
}

func (s *Server) backup(c *fiber.Ctx) error {
	ctx := c.UserContext()
	names, err := s.repo.Collections(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		if name == changeCollection {
			continue
		}
		recs, _, err := s.repo.List(ctx, name, Filter{}, 0, 0)
		if err != nil {
			return err
		}
		w, err := zw.Create(name + ".json")
		if err != nil {
			return err
		}
		if err := json.NewEncoder(w).Encode(recs); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=\"rampart-backup-%s.zip\"", s.now().UTC().Format("20060102150405")))
	return c.Send(buf.Bytes())
}

func (s *Server) restore(c *fiber.Ctx) error {
	fh, err := c.FormFile(restoreField)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("missing %s field", restoreField))
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".zip") {
		return fiber.NewError(fiber.StatusBadRequest, "backup must be a .zip archive")
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "backup is not a valid zip archive")
	}

	restored := make(map[string][]Record, len(zr.File))
	for _, zf := range zr.File {
		name := strings.TrimSuffix(path.Base(zf.Name), ".json")
		if _, ok := collections[name]; !ok && name != configCollection {
			continue
		}
		recs, err := readArchived(zf)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid archive entry %s: %s", zf.Name, err))
		}
		restored[name] = recs
	}

	ctx := c.UserContext()
	s.writeMux.Lock()
	defer s.writeMux.Unlock()
	for name, recs := range restored {
		if err := s.repo.Truncate(ctx, name); err != nil {
			return err
		}
		for _, r := range recs {
			if err := s.repo.Insert(ctx, name, r); err != nil {
				return err
			}
		}
	}
	if err := s.track(ctx, restoreChange); err != nil {
		return err
	}
	s.log.Info(fmt.Sprintf("emulator restored %d collections", len(restored)))
	return c.JSON(removed{Message: "Backup restored", Code: fiber.StatusOK})
}

func readArchived(zf *zip.File) ([]Record, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var recs []Record
	if err := json.NewDecoder(rc).Decode(&recs); err != nil {
		return nil, err
	}
	for i := range recs {
		r, err := RecordOf(recs[i].Body)
		if err != nil {
			return nil, err
		}
		recs[i].ID = r.ID
		if recs[i].CreatedAt.IsZero() {
			recs[i].CreatedAt = time.Now()
		}
	}
	return recs, nil
}

func (s *Server) nodes(c *fiber.Ctx) error {
	now := s.now().UTC()
	out := make([]json.RawMessage, 0, len(s.cfg.Nodes))
	for i, name := range s.cfg.Nodes {
		role := "worker"
		if i == 0 {
			role = "main"
		}
		raw, err := json.Marshal(entity.NodeStatus{
			ID:        name,
			Name:      name,
			SCN:       "0",
			Version:   ApiVersion,
			Role:      role,
			Healthy:   !s.applying.Load(),
			LastCheck: &now,
			Upstreams: []entity.UpstreamStatus{},
		})
		if err != nil {
			return err
		}
		out = append(out, raw)
	}
	return c.JSON(newPage(out, len(out), 0, 0))
}

func (s *Server) config(c *fiber.Ctx) error {
	rec, err := s.repo.Get(c.UserContext(), configCollection, activeConfigID)
	if errors.Is(err, ErrNotFound) {
		return c.JSON(entity.Config{ID: activeConfigID})
	}
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(rec.Body)
}

func (s *Server) updateConfig(c *fiber.Ctx) error {
	doc, err := decodeDocument(c.Body())
	if err != nil {
		return err
	}
	doc["_id"] = activeConfigID
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	rec := Record{ID: activeConfigID, Body: raw, CreatedAt: s.now()}

	ctx := c.UserContext()
	s.writeMux.Lock()
	defer s.writeMux.Unlock()
	err = s.repo.Replace(ctx, configCollection, rec)
	if errors.Is(err, ErrNotFound) {
		err = s.repo.Insert(ctx, configCollection, rec)
	}
	if err != nil {
		return err
	}
	if err := s.track(ctx, configCollection); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}
