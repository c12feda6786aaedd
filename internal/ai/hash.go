package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const hashEmbedDim = 256

type hashConfig struct {
	Dim int `json:"dim"`
}

// hashEmbedProvider folds lowercased tokens into a fixed number of hash
// buckets and L2-normalizes the counts. No network, fully deterministic:
// the same text always yields the same vector, which keeps the ingest/query
// embedding-space invariant trivially true for local setups and tests.
type hashEmbedProvider struct {
	dim int
}

func (p *hashEmbedProvider) Name() string {
	return "hash"
}

func (p *hashEmbedProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	_ = ctx
	_ = model
	_ = taskType
	vec := make([]float32, p.dim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[int(h.Sum32())%p.dim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func createHashEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &hashConfig{}
	if args != nil {
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
	}
	dim := cfg.Dim
	if dim <= 0 {
		dim = hashEmbedDim
	}
	return &hashEmbedProvider{dim: dim}, nil
}

func init() {
	RegisterEmbed("hash", createHashEmbedFactory)
}
