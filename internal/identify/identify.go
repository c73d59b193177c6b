// Package identify matches voice embeddings against a registry of
// known speakers.
package identify

import (
	"math"
	"sync"
)

// DefaultThreshold is the minimum cosine similarity for a match.
// Similarity must be strictly greater than the threshold; an exact-
// threshold score is not a match.
const DefaultThreshold = 0.8

// Registry is the process-wide map of speaker name to voice embedding.
// Identification runs once per qualifying segment per chunk, while
// registration is rare, so reads take a shared lock.
type Registry struct {
	threshold float64

	mu         sync.RWMutex
	embeddings map[string][]float32
}

// NewRegistry creates a registry with the given match threshold.
// A non-positive threshold falls back to DefaultThreshold.
func NewRegistry(threshold float64) *Registry {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Registry{
		threshold:  threshold,
		embeddings: make(map[string][]float32),
	}
}

// Register inserts or overwrites the embedding for a speaker name.
// Empty embeddings are ignored; dimension is otherwise not validated,
// it is fixed by the external extractor.
func (r *Registry) Register(name string, embedding []float32) {
	if name == "" || len(embedding) == 0 {
		return
	}
	stored := make([]float32, len(embedding))
	copy(stored, embedding)

	r.mu.Lock()
	r.embeddings[name] = stored
	r.mu.Unlock()
}

// Remove deletes a speaker from the registry.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	delete(r.embeddings, name)
	r.mu.Unlock()
}

// Len returns the number of registered speakers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.embeddings)
}

// Identify returns the name of the known speaker whose embedding is
// most similar to the input, provided that similarity is strictly
// greater than the registry threshold. The boolean is false when the
// registry is empty or nothing clears the threshold.
func (r *Registry) Identify(embedding []float32) (string, bool) {
	if len(embedding) == 0 {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	bestName := ""
	bestSimilarity := r.threshold

	for name, known := range r.embeddings {
		similarity := cosineSimilarity(embedding, known)
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			bestName = name
		}
	}

	return bestName, bestName != ""
}

// cosineSimilarity computes the cosine of the angle between two
// vectors. Mismatched dimensions or zero-norm vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
