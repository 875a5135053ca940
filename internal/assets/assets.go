package assets

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/lightscan/internal/model"
	"github.com/nao1215/lightscan/internal/trace"
)

// ManifestFile is the name of the manifest within a saved run.
const ManifestFile = "manifest.json"

// File kinds in a manifest.
const (
	KindArtifact = "artifact"
	KindTrace    = "trace"
	KindNetwork  = "network"
)

// maxConcurrentFiles bounds parallel reads and writes.
const maxConcurrentFiles = 8

var (
	// ErrDigestMismatch is returned when a saved file does not match its
	// manifest digest.
	ErrDigestMismatch = errors.New("artifact digest mismatch")

	// ErrNoManifest is returned when a directory holds no saved run.
	ErrNoManifest = errors.New("no artifact manifest found")

	// ErrInvalidName is returned for artifact or pass names that cannot be
	// used as file names.
	ErrInvalidName = errors.New("invalid artifact name")
)

// Manifest describes a saved run.
type Manifest struct {
	RunID     string      `json:"run_id"`
	CreatedAt time.Time   `json:"created_at"`
	Files     []FileEntry `json:"files"`
}

// FileEntry is one file of a saved run.
type FileEntry struct {
	// Path is relative to the run directory.
	Path string `json:"path"`

	// Kind is KindArtifact, KindTrace or KindNetwork.
	Kind string `json:"kind"`

	// Name is the artifact name for artifacts and the pass name otherwise.
	Name string `json:"name"`

	// SHA3 is the hex encoded SHA3-256 digest of the file.
	SHA3 string `json:"sha3_256"`
}

// savedArtifact wraps an artifact so that gatherer errors survive the round
// trip.
type savedArtifact struct {
	Value json.RawMessage      `json:"value,omitempty"`
	Error *model.ArtifactError `json:"error,omitempty"`
}

// DecodeFunc rebuilds an artifact value from its JSON.
type DecodeFunc func(name string, raw json.RawMessage) (any, error)

// pendingFile is a file to be written.
type pendingFile struct {
	entry FileEntry
	data  []byte
}

// Save writes artifacts to dir and returns the manifest.
func Save(ctx context.Context, dir, runID string, artifacts *model.Artifacts) (*Manifest, error) {
	files, err := encode(artifacts)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(dir, "artifacts"), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFiles)
	for i := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f := &files[i]
			f.entry.SHA3 = digest(f.data)
			if err := os.WriteFile(filepath.Join(dir, f.entry.Path), f.data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", f.entry.Path, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := &Manifest{RunID: runID, CreatedAt: time.Now().UTC()}
	for _, f := range files {
		m.Files = append(m.Files, f.entry)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return m, nil
}

// encode serializes artifacts into files in a stable order.
func encode(artifacts *model.Artifacts) ([]pendingFile, error) {
	var files []pendingFile

	for _, name := range sortedKeys(artifacts.Values) {
		if err := checkName(name); err != nil {
			return nil, err
		}
		var saved savedArtifact
		if ae, ok := model.AsArtifactError(artifacts.Values[name]); ok {
			saved.Error = ae
		} else {
			raw, err := json.Marshal(artifacts.Values[name])
			if err != nil {
				return nil, fmt.Errorf("failed to encode %s artifact: %w", name, err)
			}
			saved.Value = raw
		}
		data, err := json.MarshalIndent(saved, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s artifact: %w", name, err)
		}
		files = append(files, pendingFile{
			entry: FileEntry{Path: filepath.Join("artifacts", name+".json"), Kind: KindArtifact, Name: name},
			data:  data,
		})
	}

	for _, pass := range sortedKeys(artifacts.Traces) {
		if err := checkName(pass); err != nil {
			return nil, err
		}
		data, err := json.Marshal(artifacts.Traces[pass])
		if err != nil {
			return nil, fmt.Errorf("failed to encode trace of %s: %w", pass, err)
		}
		files = append(files, pendingFile{
			entry: FileEntry{Path: pass + ".trace.json", Kind: KindTrace, Name: pass},
			data:  data,
		})
	}

	for _, pass := range sortedKeys(artifacts.NetworkRecords) {
		if err := checkName(pass); err != nil {
			return nil, err
		}
		data, err := json.MarshalIndent(artifacts.NetworkRecords[pass], "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode network records of %s: %w", pass, err)
		}
		files = append(files, pendingFile{
			entry: FileEntry{Path: pass + ".network.json", Kind: KindNetwork, Name: pass},
			data:  data,
		})
	}
	return files, nil
}

// Load reads a saved run from dir. decode rebuilds artifact values; when nil
// they are left as generic JSON values.
func Load(ctx context.Context, dir string, decode DecodeFunc) (*model.Artifacts, *Manifest, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, nil, err
	}
	if decode == nil {
		decode = decodeGeneric
	}

	var mu sync.Mutex
	artifacts := model.NewArtifacts()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFiles)
	for _, entry := range m.Files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !filepath.IsLocal(entry.Path) {
				return fmt.Errorf("%w: %q escapes the artifact directory", ErrInvalidName, entry.Path)
			}
			data, err := os.ReadFile(filepath.Join(dir, entry.Path))
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", entry.Path, err)
			}
			if got := digest(data); got != entry.SHA3 {
				return fmt.Errorf("%w: %s", ErrDigestMismatch, entry.Path)
			}
			return loadEntry(&mu, artifacts, entry, data, decode)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return artifacts, m, nil
}

func loadEntry(mu *sync.Mutex, artifacts *model.Artifacts, entry FileEntry, data []byte, decode DecodeFunc) error {
	switch entry.Kind {
	case KindArtifact:
		var saved savedArtifact
		if err := json.Unmarshal(data, &saved); err != nil {
			return fmt.Errorf("failed to decode %s: %w", entry.Path, err)
		}
		var value any = saved.Error
		if saved.Error == nil {
			v, err := decode(entry.Name, saved.Value)
			if err != nil {
				return fmt.Errorf("failed to decode %s artifact: %w", entry.Name, err)
			}
			value = v
		}
		mu.Lock()
		artifacts.Values[entry.Name] = value
		mu.Unlock()
	case KindTrace:
		d, err := trace.Parse(data)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", entry.Path, err)
		}
		mu.Lock()
		artifacts.Traces[entry.Name] = d
		mu.Unlock()
	case KindNetwork:
		var records []model.NetworkRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("failed to decode %s: %w", entry.Path, err)
		}
		mu.Lock()
		artifacts.NetworkRecords[entry.Name] = records
		mu.Unlock()
	default:
		return fmt.Errorf("unknown file kind %q for %s", entry.Kind, entry.Path)
	}
	return nil
}

// ReadManifest reads the manifest of the run saved in dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrNoManifest, dir)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

func decodeGeneric(_ string, raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func digest(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
