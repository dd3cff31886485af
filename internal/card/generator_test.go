package card

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alanorth/safari-bingo/internal/grid"
	"github.com/alanorth/safari-bingo/internal/models"
	"github.com/alanorth/safari-bingo/internal/thumbnail"
)

type fakeFetcher struct {
	mu     sync.Mutex
	calls  int
	fail   map[string]bool
	cached map[string]bool
}

func (f *fakeFetcher) EnsureImage(ctx context.Context, a models.Animal) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[a.ID] {
		return false, fmt.Errorf("status 404 for %s", a.ID)
	}
	return !f.cached[a.ID], nil
}

type fakeBuilder struct {
	missing map[string]bool
	broken  map[string]bool
	cached  map[string]bool
}

func (b *fakeBuilder) EnsureThumbnail(a models.Animal) (bool, error) {
	switch {
	case b.missing[a.ID]:
		return false, thumbnail.ErrMissingSourceImage
	case b.broken[a.ID]:
		return false, &thumbnail.BuildError{ID: a.ID, Err: errors.New("bad data")}
	}
	return !b.cached[a.ID], nil
}

type fakeAssembler struct {
	ids    []string
	across int
	err    error
}

func (a *fakeAssembler) Assemble(ids []string, across int, outputPath string) error {
	a.ids = ids
	a.across = across
	return a.err
}

func makeAnimals(n int) []models.Animal {
	out := make([]models.Animal, n)
	for i := range out {
		out[i] = models.Animal{
			ID:         fmt.Sprint(i + 1),
			CommonName: fmt.Sprintf("Animal %d", i+1),
			ImageURL:   fmt.Sprintf("https://images.example.org/%d.jpg", i+1),
			CropFocus:  models.CropCentre,
		}
	}
	return out
}

func TestGenerateCounts(t *testing.T) {
	fetcher := &fakeFetcher{
		fail:   map[string]bool{"3": true},
		cached: map[string]bool{"1": true},
	}
	builder := &fakeBuilder{
		missing: map[string]bool{"3": true},
		broken:  map[string]bool{"4": true},
		cached:  map[string]bool{"2": true},
	}
	assembler := &fakeAssembler{}

	out := filepath.Join(t.TempDir(), "card.jpg")
	g := NewGenerator(fetcher, builder, assembler, nil)

	res, err := g.Generate(context.Background(), makeAnimals(9), Options{Across: 3, OutputPath: out, Seed: 5})
	require.NoError(t, err)

	assert.Equal(t, 7, res.Downloaded)
	assert.Equal(t, 1, res.ImagesCached)
	assert.Equal(t, 1, res.FetchFailed)
	assert.Equal(t, 6, res.Built)
	assert.Equal(t, 1, res.ThumbnailsCached)
	assert.Equal(t, 1, res.BuildFailed)
	assert.Equal(t, 1, res.MissingSource)

	assert.Equal(t, 3, assembler.across)
	assert.Equal(t, res.SampledIDs(), assembler.ids)
	assert.Equal(t, uint64(5), res.Seed)
	assert.Equal(t, filepath.Join(filepath.Dir(out), "card.yaml"), res.ManifestPath)

	m, err := ReadManifest(res.ManifestPath)
	require.NoError(t, err)
	assert.Len(t, m.Cells, 9)
	assert.Equal(t, uint64(5), m.Seed)
}

func TestGenerateSameSeedSameCard(t *testing.T) {
	records := makeAnimals(40)
	dir := t.TempDir()

	a1 := &fakeAssembler{}
	_, err := NewGenerator(&fakeFetcher{}, &fakeBuilder{}, a1, nil).
		Generate(context.Background(), records, Options{Across: 4, OutputPath: filepath.Join(dir, "a.jpg"), Seed: 99})
	require.NoError(t, err)

	a2 := &fakeAssembler{}
	_, err = NewGenerator(&fakeFetcher{}, &fakeBuilder{}, a2, nil).
		Generate(context.Background(), records, Options{Across: 4, OutputPath: filepath.Join(dir, "b.jpg"), Seed: 99})
	require.NoError(t, err)

	assert.Len(t, a1.ids, 16)
	assert.Equal(t, a1.ids, a2.ids)
}

func TestGenerateTooFewRecords(t *testing.T) {
	g := NewGenerator(&fakeFetcher{}, &fakeBuilder{}, &fakeAssembler{}, nil)

	_, err := g.Generate(context.Background(), makeAnimals(15), Options{Across: 4, OutputPath: "card.jpg"})
	assert.ErrorContains(t, err, "needs 16 animals but only 15")
}

func TestGenerateInvalidAcross(t *testing.T) {
	g := NewGenerator(&fakeFetcher{}, &fakeBuilder{}, &fakeAssembler{}, nil)

	_, err := g.Generate(context.Background(), makeAnimals(4), Options{Across: 0, OutputPath: "card.jpg"})
	assert.ErrorIs(t, err, grid.ErrInvalidGridSize)
}

func TestGenerateRejectsManifestOutputPath(t *testing.T) {
	for _, name := range []string{"card.yaml", "card.YML"} {
		fetcher := &fakeFetcher{}
		assembler := &fakeAssembler{}
		g := NewGenerator(fetcher, &fakeBuilder{}, assembler, nil)

		out := filepath.Join(t.TempDir(), name)
		_, err := g.Generate(context.Background(), makeAnimals(4), Options{Across: 2, OutputPath: out})
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), "manifest")
		assert.Zero(t, fetcher.calls)
		assert.Nil(t, assembler.ids)
		assert.NoFileExists(t, out)
	}
}

func TestGenerateAssemblyErrorIsFatal(t *testing.T) {
	assembler := &fakeAssembler{err: &grid.MissingThumbnailError{ID: "2"}}
	out := filepath.Join(t.TempDir(), "card.jpg")
	g := NewGenerator(&fakeFetcher{}, &fakeBuilder{}, assembler, nil)

	res, err := g.Generate(context.Background(), makeAnimals(4), Options{Across: 2, OutputPath: out})
	require.ErrorIs(t, err, grid.ErrMissingThumbnail)
	require.NotNil(t, res)
	assert.Equal(t, 4, res.Built)
	assert.Empty(t, res.ManifestPath)
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{}
	g := NewGenerator(fetcher, &fakeBuilder{}, &fakeAssembler{}, nil)

	_, err := g.Generate(ctx, makeAnimals(4), Options{Across: 2, OutputPath: "card.jpg"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fetcher.calls)
}

func TestPrefetchConcurrent(t *testing.T) {
	defer goleak.VerifyNone(t)

	fetcher := &fakeFetcher{fail: map[string]bool{"7": true}}
	g := NewGenerator(fetcher, &fakeBuilder{}, &fakeAssembler{}, nil)

	res, err := g.Prefetch(context.Background(), makeAnimals(50), 4)
	require.NoError(t, err)

	assert.Equal(t, 50, fetcher.calls)
	assert.Equal(t, 49, res.Downloaded)
	assert.Equal(t, 1, res.FetchFailed)
}

func TestNewManifestLayout(t *testing.T) {
	generated := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	m := NewManifest(generated, Options{Across: 2, OutputPath: "/tmp/cards/card.jpg", Source: "animals.csv"}, 3, makeAnimals(4))

	assert.Equal(t, "card.jpg", m.Output)
	assert.Equal(t, Cell{Row: 1, Column: 2, ID: "2", CommonName: "Animal 2"}, m.Cells[1])
	assert.Equal(t, Cell{Row: 2, Column: 1, ID: "3", CommonName: "Animal 3"}, m.Cells[2])
}

func TestManifestPath(t *testing.T) {
	assert.Equal(t, "out/card.yaml", ManifestPath("out/card.jpg"))
	assert.Equal(t, "card.yaml", ManifestPath("card"))
}
