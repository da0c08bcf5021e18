package answerer

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"metasearch/internal/domain"
)

const randomChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Random answers "random <type>" with a freshly generated value.
type Random struct {
	mu   sync.Mutex
	rng  *rand.Rand
	gens map[string]func() string
}

// NewRandom creates the random value answerer. A nil source is seeded
// randomly; tests pass a fixed one.
func NewRandom(src rand.Source) *Random {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	a := &Random{rng: rand.New(src)}
	a.gens = map[string]func() string{
		"string": a.randomString,
		"int":    a.randomInt,
		"float":  a.randomFloat,
		"sha256": a.randomSHA256,
		"uuid":   a.randomUUID,
	}
	return a
}

func (a *Random) randomString() string {
	n := 8 + a.rng.IntN(25)
	var b strings.Builder
	b.Grow(n)
	for range n {
		b.WriteByte(randomChars[a.rng.IntN(len(randomChars))])
	}
	return b.String()
}

func (a *Random) randomInt() string {
	return strconv.FormatInt(a.rng.Int64N(2*math.MaxInt32+1)-math.MaxInt32, 10)
}

func (a *Random) randomFloat() string {
	return strconv.FormatFloat(a.rng.Float64(), 'f', -1, 64)
}

func (a *Random) randomSHA256() string {
	sum := sha256.Sum256([]byte(a.randomString()))
	return hex.EncodeToString(sum[:])
}

func (a *Random) randomUUID() string {
	id, err := uuid.NewRandomFromReader(rngReader{a.rng})
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

type rngReader struct{ r *rand.Rand }

func (rr rngReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(rr.r.Uint32())
	}
	return len(p), nil
}

func (a *Random) types() []string {
	types := make([]string, 0, len(a.gens))
	for t := range a.gens {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func (a *Random) Keywords() []string { return []string{"random"} }

// Answer only reacts to exactly "random <type>".
func (a *Random) Answer(q domain.SearchQuery) []domain.Result {
	parts := strings.Fields(q.Query)
	if len(parts) != 2 {
		return nil
	}
	gen, ok := a.gens[parts[1]]
	if !ok {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return []domain.Result{{Answer: gen()}}
}

func (a *Random) Info() domain.AnswererInfo {
	examples := make([]string, 0, len(a.gens))
	for _, t := range a.types() {
		examples = append(examples, "random "+t)
	}
	return domain.AnswererInfo{
		Name:        "Random value generator",
		Description: "Generate different random values",
		Examples:    examples,
	}
}
