package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bartossh/Rampart/entity"
	"github.com/bartossh/Rampart/httpclient"
	"github.com/bartossh/Rampart/resource"
)

const restoreField = "zipfile"

var (
	ErrApplyInProgress = errors.New("apply already in progress")
	ErrApplyFailed     = errors.New("apply failed")
	ErrNotZip          = errors.New("restore file must be a .zip archive")
)

// Config reads and writes the active cluster configuration.
type Config struct {
	c *resource.Client[entity.Config, string]
}

// GetActive returns the active configuration.
func (c *Config) GetActive(ctx context.Context) (entity.Config, error) {
	var out entity.Config
	err := c.c.Send(ctx, http.MethodGet, "/config", nil, nil, &out)
	return out, err
}

// Update replaces the active configuration.
func (c *Config) Update(ctx context.Context, cfg entity.Config) (entity.Config, error) {
	var out entity.Config
	err := c.c.Send(ctx, http.MethodPut, "/config", nil, cfg, &out)
	return out, err
}

// Cluster controls applying changes to the cluster nodes.
type Cluster struct {
	c *resource.Client[entity.Change, string]
}

// Health returns pending changes and apply state.
func (c *Cluster) Health(ctx context.Context) (entity.HealthStatus, error) {
	var out entity.HealthStatus
	err := c.c.Send(ctx, http.MethodGet, "/health", nil, nil, &out)
	return out, err
}

// Changes lists changes waiting for apply.
func (c *Cluster) Changes(ctx context.Context) (resource.Page[entity.Change], error) {
	var p resource.Page[entity.Change]
	err := c.c.Send(ctx, http.MethodGet, "/changes", nil, nil, &p)
	if errors.Is(err, httpclient.ErrNotFound) {
		return resource.Page[entity.Change]{Metadata: resource.DefaultPageMeta()}, nil
	}
	return p, err
}

// Apply pushes pending changes to the nodes.
// It refuses with ErrApplyInProgress when another apply is running.
func (c *Cluster) Apply(ctx context.Context) (entity.ApplyResult, error) {
	h, err := c.Health(ctx)
	if err != nil {
		return entity.ApplyResult{}, err
	}
	if h.ApplyActive {
		return entity.ApplyResult{}, ErrApplyInProgress
	}
	var out entity.ApplyResult
	if err := c.c.Send(ctx, http.MethodGet, "/apply", nil, nil, &out); err != nil {
		return out, err
	}
	if !out.Succeed {
		return out, errors.Join(ErrApplyFailed, errors.New(out.Message))
	}
	return out, nil
}

// Backup writes the zipped configuration backup to w.
func (c *Cluster) Backup(ctx context.Context, w io.Writer) (int64, error) {
	return c.c.Download(ctx, "/backup", w)
}

// Restore uploads a backup archive. name has to end with .zip.
func (c *Cluster) Restore(ctx context.Context, name string, r io.Reader) error {
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		return errors.Join(ErrNotZip, fmt.Errorf("file %q", name))
	}
	return c.c.SendMultipart(ctx, "/backup", restoreField, name, r, nil)
}

// Nodes returns health of the cluster nodes.
func (c *Cluster) Nodes(ctx context.Context) (resource.Page[entity.NodeStatus], error) {
	var p resource.Page[entity.NodeStatus]
	err := c.c.Send(ctx, http.MethodGet, "/nodes", nil, nil, &p)
	if errors.Is(err, httpclient.ErrNotFound) {
		return resource.Page[entity.NodeStatus]{Metadata: resource.DefaultPageMeta()}, nil
	}
	return p, err
}
