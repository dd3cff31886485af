package card

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alanorth/safari-bingo/internal/models"
	"github.com/alanorth/safari-bingo/internal/storage"
)

// Manifest records what is on a card so it can be checked or regenerated
type Manifest struct {
	Generated time.Time `yaml:"generated"`
	Across    int       `yaml:"across"`
	Seed      uint64    `yaml:"seed"`
	Source    string    `yaml:"source,omitempty"`
	Output    string    `yaml:"output"`
	Cells     []Cell    `yaml:"cells"`
}

// Cell is one square of the card, counted from the top-left starting at 1
type Cell struct {
	Row        int    `yaml:"row"`
	Column     int    `yaml:"column"`
	ID         string `yaml:"id"`
	CommonName string `yaml:"common_name"`
}

// NewManifest lays sampled out row by row
func NewManifest(generated time.Time, opts Options, seed uint64, sampled []models.Animal) Manifest {
	cells := make([]Cell, len(sampled))
	for i, a := range sampled {
		cells[i] = Cell{
			Row:        i/opts.Across + 1,
			Column:     i%opts.Across + 1,
			ID:         a.ID,
			CommonName: a.CommonName,
		}
	}
	return Manifest{
		Generated: generated.UTC().Truncate(time.Second),
		Across:    opts.Across,
		Seed:      seed,
		Source:    opts.Source,
		Output:    filepath.Base(opts.OutputPath),
		Cells:     cells,
	}
}

// ManifestPath returns the manifest location for a card, card.jpg becomes card.yaml
func ManifestPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".yaml"
}

// WriteManifest saves m as YAML
func WriteManifest(path string, m Manifest) error {
	err := storage.WriteAtomic(path, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}
