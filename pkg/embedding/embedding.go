// Package embedding provides a deterministic, dependency-free text embedding
// for approximate similarity search over short social-media posts. Tokens are
// hashed into a fixed number of buckets; bucket collisions are an accepted
// dimensionality-reduction trade-off.
package embedding

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Dimensions is the fixed embedding vector length
const Dimensions = 64

// Vector is an L2-normalized embedding. A nil Vector means "no embedding"
// (empty or degenerate input) and compares as 0 similarity to everything.
type Vector = []float64

var punctReplacer = strings.NewReplacer(
	"|", " ", "｜", " ",
	"，", " ", ",", " ",
	"。", " ", "！", " ", "!", " ",
	"？", " ", "?", " ",
	"；", " ", ";", " ", "、", " ",
	"\n", " ", "\r", " ",
)

// Embed maps text to a 64-dimension unit vector. CJK runs are tokenized as
// overlapping character bigrams since they carry no whitespace word
// boundaries; short CJK tokens are additionally kept whole.
func Embed(text string) Vector {
	if text == "" {
		return nil
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	freq := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freq[tok]++
	}

	vec := make(Vector, Dimensions)
	for tok, n := range freq {
		vec[bucket(tok)] += float64(n)
	}

	norm := floats.Norm(vec, 2)
	if norm > 0 {
		floats.Scale(1/norm, vec)
	}

	return vec
}

// Cosine returns the cosine similarity of two embeddings in [-1, 1]. Since
// Embed output is pre-normalized this is just the dot product, clamped to
// absorb floating-point drift. Missing or mismatched vectors yield 0.
func Cosine(a, b Vector) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	dot := floats.Dot(a, b)
	return math.Max(-1, math.Min(1, dot))
}

func tokenize(text string) []string {
	cleaned := punctReplacer.Replace(strings.ToLower(text))
	cleaned = stripEmoji(cleaned)

	var tokens []string
	for _, word := range strings.Fields(cleaned) {
		runes := []rune(word)
		if !containsCJK(runes) {
			tokens = append(tokens, word)
			continue
		}

		for i := 0; i+1 < len(runes); i++ {
			tokens = append(tokens, string(runes[i:i+2]))
		}
		if len(runes) <= 4 {
			tokens = append(tokens, word)
		}
	}

	return tokens
}

func stripEmoji(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 0x1F300 && r <= 0x1F64F,
			r >= 0x1F680 && r <= 0x1F6FF,
			r >= 0x1F1E0 && r <= 0x1F1FF,
			r >= 0x2600 && r <= 0x26FF,
			r >= 0x2700 && r <= 0x27BF:
			return -1
		}
		return r
	}, s)
}

func containsCJK(runes []rune) bool {
	for _, r := range runes {
		if r >= 0x4E00 && r <= 0x9FA5 {
			return true
		}
	}
	return false
}

// bucket hashes a token into [0, Dimensions) with a 31-polynomial hash
// accumulated as a wrapping 32-bit signed integer.
func bucket(token string) int {
	var h int32
	for _, r := range token {
		h = h*31 + int32(r)
	}

	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v % Dimensions)
}
