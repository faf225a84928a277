// Package registry owns model bundle discovery and loading. Bundles live in
// versioned directories under the models dir (model_v1.0.0, model_v1.0.1,
// ...) as JSON artifacts; the highest version is the active bundle. The
// registry hands out read-only bundles and caches them by version.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/logsieve/logsieve/internal/encoder"
	"github.com/logsieve/logsieve/internal/model"
)

// ErrNoModel is returned when no trained bundle exists. Callers must treat
// this as a valid runtime state, not a failure: the detector runs fail-safe
// (all benign) until a first model is published.
var ErrNoModel = errors.New("no trained model available")

const versionPrefix = "model_v"

// Artifact file names inside a bundle directory.
const (
	metaFile       = "meta.json"
	vectorizerFile = "vectorizer.json"
	encodersFile   = "encoders.json"
	binaryFile     = "binary.json"
	typeFile       = "type.json"
)

// Registry scans a models directory and loads bundles on demand.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*model.Bundle
}

// New creates a registry over dir. The directory does not need to exist yet.
func New(dir string, logger *slog.Logger) *Registry {
	return &Registry{dir: dir, logger: logger, cache: map[string]*model.Bundle{}}
}

// Versions returns available bundle versions, newest first.
func (r *Registry) Versions() []string {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil
	}
	var versions []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), versionPrefix) {
			continue
		}
		v := strings.TrimPrefix(e.Name(), versionPrefix)
		if _, ok := parseVersion(v); ok {
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		a, _ := parseVersion(versions[i])
		b, _ := parseVersion(versions[j])
		return compareVersions(a, b) > 0
	})
	return versions
}

// Latest returns the newest available version, or ErrNoModel.
func (r *Registry) Latest() (string, error) {
	versions := r.Versions()
	if len(versions) == 0 {
		return "", ErrNoModel
	}
	return versions[0], nil
}

// LoadActive loads the newest bundle. Returns ErrNoModel when no bundle has
// been published yet.
func (r *Registry) LoadActive() (*model.Bundle, error) {
	version, err := r.Latest()
	if err != nil {
		return nil, err
	}
	return r.Load(version)
}

// Load loads (or returns the cached) bundle for a specific version.
func (r *Registry) Load(version string) (*model.Bundle, error) {
	r.mu.RLock()
	if b, ok := r.cache[version]; ok {
		r.mu.RUnlock()
		return b, nil
	}
	r.mu.RUnlock()

	b, err := r.read(version)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[version] = b
	r.mu.Unlock()
	r.logger.Info("model bundle loaded", "version", version, "pattern_cols", len(b.Meta.PatternCols), "type_model", b.HasTypeModel())
	return b, nil
}

// ClearCache drops all cached bundles, forcing a re-read on next load.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	r.cache = map[string]*model.Bundle{}
	r.mu.Unlock()
}

func (r *Registry) read(version string) (*model.Bundle, error) {
	dir := filepath.Join(r.dir, versionPrefix+version)

	var meta model.Meta
	if err := readJSON(filepath.Join(dir, metaFile), &meta); err != nil {
		return nil, fmt.Errorf("bundle v%s: %w", version, err)
	}

	var vec model.Vectorizer
	if err := readJSON(filepath.Join(dir, vectorizerFile), &vec); err != nil {
		return nil, fmt.Errorf("bundle v%s: %w", version, err)
	}

	var encs struct {
		Method *encoder.Safe `json:"method"`
		Agent  *encoder.Safe `json:"agent"`
	}
	if err := readJSON(filepath.Join(dir, encodersFile), &encs); err != nil {
		return nil, fmt.Errorf("bundle v%s: %w", version, err)
	}

	var binary model.Linear
	if err := readJSON(filepath.Join(dir, binaryFile), &binary); err != nil {
		return nil, fmt.Errorf("bundle v%s: %w", version, err)
	}

	bundle := &model.Bundle{
		Vectorizer:    &vec,
		MethodEncoder: encs.Method,
		AgentEncoder:  encs.Agent,
		Binary:        &binary,
		Meta:          meta,
	}

	// Stage-2 artifacts are optional: a bundle trained without an attack-type
	// classifier still serves the binary stage.
	typePath := filepath.Join(dir, typeFile)
	if _, err := os.Stat(typePath); err == nil {
		var typeClf model.Multiclass
		if err := readJSON(typePath, &typeClf); err != nil {
			return nil, fmt.Errorf("bundle v%s: %w", version, err)
		}
		bundle.Type = &typeClf
	}

	if bundle.Meta.Version == "" {
		bundle.Meta.Version = version
	}
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	return bundle, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

func parseVersion(v string) ([3]int, bool) {
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return [3]int{}, false
	}
	var out [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return [3]int{}, false
		}
		out[i] = n
	}
	return out, true
}

func compareVersions(a, b [3]int) int {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			return a[i] - b[i]
		}
	}
	return 0
}
