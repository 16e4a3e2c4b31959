package hashembed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	DefaultDimensions = 512

	tfSaturationK  = 1.2
	bigramWeight   = 0.5
	trigramWeight  = 0.35
	minTokenLength = 1
)

// Embedder builds dense vectors locally by feature hashing word unigrams,
// word bigrams and character trigrams. Equal texts up to case and
// punctuation map to the same vector.
type Embedder struct {
	dims int
}

func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: dims}
}

func (e *Embedder) Dimensions() int {
	return e.dims
}

func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.Vector(text)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.Vector(text), nil
}

func (e *Embedder) Vector(text string) []float32 {
	tf := make(map[string]float64, 64)
	tokens := tokenize(text)
	for _, tok := range tokens {
		tf["w:"+tok] += 1
	}
	for i := 1; i < len(tokens); i++ {
		tf["b:"+tokens[i-1]+" "+tokens[i]] += bigramWeight
	}
	for _, tok := range tokens {
		runes := []rune("^" + tok + "$")
		for i := 0; i+3 <= len(runes); i++ {
			tf["c:"+string(runes[i:i+3])] += trigramWeight
		}
	}

	vec := make([]float64, e.dims)
	for feature, freq := range tf {
		idx, sign := e.slot(feature)
		weight := (freq * (tfSaturationK + 1.0)) / (freq + tfSaturationK)
		vec[idx] += sign * weight
	}
	return normalize(vec)
}

func (e *Embedder) slot(feature string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}
	return int(sum % uint64(e.dims)), sign
}

func normalize(vec []float64) []float32 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	flush := func() {
		if b.Len() >= minTokenLength {
			out = append(out, b.String())
		}
		b.Reset()
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			flush()
		}
	}
	if b.Len() > 0 {
		flush()
	}
	return out
}

// CosineDistance returns 1 - cos(a, b). Zero vectors are maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	if d < 0 {
		return 0
	}
	return d
}
