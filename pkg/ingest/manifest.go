package ingest

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Manifest names a set of source documents to ingest in one run
type Manifest struct {
	Documents []ManifestDoc `yaml:"documents"`
}

// ManifestDoc is one entry of a manifest. Name is optional; when empty the
// file's base name is used.
type ManifestDoc struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// LoadManifest parses a YAML manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read manifest", goerr.V("path", path))
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, goerr.Wrap(err, "malformed manifest", goerr.V("path", path))
	}

	if len(manifest.Documents) == 0 {
		return nil, goerr.New("manifest lists no documents", goerr.V("path", path))
	}
	for _, doc := range manifest.Documents {
		if doc.Path == "" {
			return nil, goerr.New("manifest entry without path", goerr.V("name", doc.Name))
		}
	}

	return &manifest, nil
}

// IngestManifest ingests every document a manifest names. Relative paths are
// resolved against the manifest's own directory. Returns the total number of
// chunks inserted.
func (x *Ingestor) IngestManifest(ctx context.Context, manifestPath string) (int, error) {
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return 0, err
	}

	baseDir := filepath.Dir(manifestPath)
	total := 0
	for _, doc := range manifest.Documents {
		path := doc.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}

		var n int
		if doc.Name != "" {
			data, err := os.ReadFile(filepath.Clean(path))
			if err != nil {
				return total, goerr.Wrap(err, "failed to read document", goerr.V("path", path))
			}
			n, err = x.IngestText(ctx, doc.Name, string(data))
			if err != nil {
				return total, err
			}
		} else {
			n, err = x.IngestFile(ctx, path)
			if err != nil {
				return total, err
			}
		}
		total += n
	}

	return total, nil
}
