package multitenantengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/easyrules/rules"
)

// Bundle is a tenant file: the tenant id plus its config
type Bundle struct {
	Tenant       string `json:"tenant" yaml:"tenant"`
	TenantConfig `yaml:",inline"`
}

// bundleExtensions lists the files LoadDirectory reads. JSON decodes as YAML.
var bundleExtensions = []string{".yaml", ".yml", ".json"}

func isBundleFile(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, valid := range bundleExtensions {
		if ext == valid {
			return true
		}
	}
	return false
}

// DecodeBundle reads one tenant file. Parameters missing from the file keep
// the values in defaults. A missing tenant id falls back to fallbackID.
func DecodeBundle(r io.Reader, fallbackID string, defaults rules.Parameters) (Bundle, error) {
	params := defaults
	b := Bundle{TenantConfig: TenantConfig{Parameters: &params}}
	if err := yaml.NewDecoder(r).Decode(&b); err != nil && !errors.Is(err, io.EOF) {
		return Bundle{}, fmt.Errorf("decode tenant bundle: %w", err)
	}
	if b.Tenant == "" {
		b.Tenant = fallbackID
	}
	return b, nil
}

func readBundle(path string, defaults rules.Parameters) (Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return Bundle{}, err
	}
	defer f.Close()

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	b, err := DecodeBundle(f, id, defaults)
	if err != nil {
		return Bundle{}, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// LoadDirectory reads every tenant file in dir and swaps all of them in at
// once. Nothing changes if any file fails. Tenants previously loaded from dir
// whose file is gone are removed. It returns the loaded tenant ids.
func (m *MultiTenantEngineManager) LoadDirectory(ctx context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && isBundleFile(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}

	built := make([]*TenantEngine, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := readBundle(path, m.defaults)
			if err != nil {
				return err
			}
			te, err := m.build(b.Tenant, b.TenantConfig)
			if err != nil {
				return fmt.Errorf("%s: tenant %s: %w", path, b.Tenant, err)
			}
			built[i] = te
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]string, len(built))
	for i, te := range built {
		if prev, dup := seen[te.TenantID]; dup {
			return nil, fmt.Errorf("tenant %s defined in both %s and %s", te.TenantID, prev, paths[i])
		}
		seen[te.TenantID] = paths[i]
	}

	m.mu.Lock()
	for id, source := range m.sources {
		if _, still := seen[id]; !still && source == dir {
			delete(m.engines, id)
			delete(m.sources, id)
			m.logger.Info("Tenant removed", "tenant", id, "dir", dir)
		}
	}
	ids := make([]string, 0, len(built))
	for _, te := range built {
		m.engines[te.TenantID] = te
		m.sources[te.TenantID] = dir
		ids = append(ids, te.TenantID)
	}
	m.mu.Unlock()

	m.logger.Info("Tenants loaded", "dir", dir, "count", len(ids))
	return ids, nil
}
