package animals

import (
	"fmt"
	"math/rand/v2"

	"github.com/alanorth/safari-bingo/internal/models"
)

// NewRand returns a generator for Sample. A zero seed picks a random one; the seed in use is returned
// so a card can be reproduced.
func NewRand(seed uint64) (*rand.Rand, uint64) {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), seed
}

// Sample picks n distinct records in random order
func Sample(records []models.Animal, n int, rng *rand.Rand) ([]models.Animal, error) {
	if n < 1 {
		return nil, fmt.Errorf("sample size must be positive, got %d", n)
	}
	if n > len(records) {
		return nil, fmt.Errorf("need %d animals but the table only has %d", n, len(records))
	}

	perm := rng.Perm(len(records))
	sample := make([]models.Animal, n)
	for i := range n {
		sample[i] = records[perm[i]]
	}
	return sample, nil
}

// IDs returns the ids of records in order
func IDs(records []models.Animal) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
