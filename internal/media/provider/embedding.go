package provider

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"video_clip_service/pkg/logger"

	"go.uber.org/zap"
)

// CosineSimilarity returns dot(a,b)/(|a|*|b|) in [-1,1], and 0 when
// either norm is zero.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// EncodeVector serializes the vector as raw little-endian float32
// bytes; the relational store has no native vector column type.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector reverses EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector bytes length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// guardedBatch implements the batch contract shared by both backends:
// blank inputs are filtered out before the call but keep their position
// in the output with an empty vector; a count mismatch or any
// batch-level failure falls back to sequential single-item embedding so
// one bad input cannot lose the whole batch.
func guardedBatch(
	ctx context.Context,
	texts []string,
	batch func(ctx context.Context, texts []string) ([][]float32, string, error),
	single func(ctx context.Context, text string) (*Embedding, error),
) ([]Embedding, error) {
	out := make([]Embedding, len(texts))
	var positions []int
	var filtered []string
	for i, t := range texts {
		out[i] = Embedding{Text: t}
		if strings.TrimSpace(t) == "" {
			continue
		}
		positions = append(positions, i)
		filtered = append(filtered, t)
	}
	if len(filtered) == 0 {
		return out, nil
	}

	vecs, model, err := batch(ctx, filtered)
	if err == nil && len(vecs) != len(filtered) {
		err = fmt.Errorf("backend returned %d vectors for %d inputs", len(vecs), len(filtered))
	}
	if err != nil {
		logger.Log.Warn("batch embedding failed, falling back to sequential",
			zap.Int("inputs", len(filtered)), zap.Error(err))
		for k, pos := range positions {
			e, serr := single(ctx, filtered[k])
			if serr != nil {
				// Per-item isolation: log and skip, never abort siblings.
				logger.Log.Errorf("single embedding failed, skipping item:", serr,
					zap.Int("position", pos))
				continue
			}
			out[pos] = *e
		}
		return out, nil
	}

	for k, pos := range positions {
		out[pos] = Embedding{Vector: vecs[k], Text: filtered[k], Model: model}
	}
	return out, nil
}
