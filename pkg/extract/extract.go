// Package extract turns canonical records into candidate entities and
// relationships. Extractors never filter by confidence; validation and
// identity resolution decide what reaches the graph.
package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// ErrExtractionDegraded marks a record whose extraction failed and was
// replaced by an empty result.
var ErrExtractionDegraded = errors.New("extraction degraded")

// MaxConfidence is the ceiling for extracted confidence. Extraction is
// never certain.
const MaxConfidence = 0.99

type Result struct {
	Entities      []common.CandidateEntity
	Relationships []common.CandidateRelationship
}

// Empty reports whether nothing was extracted.
func (r Result) Empty() bool {
	return len(r.Entities) == 0 && len(r.Relationships) == 0
}

type Extractor interface {
	Extract(ctx context.Context, rec common.CanonicalRecord) (Result, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, rec common.CanonicalRecord) (Result, error)

func (f ExtractorFunc) Extract(ctx context.Context, rec common.CanonicalRecord) (Result, error) {
	return f(ctx, rec)
}

// ClampConfidence bounds c to [0, MaxConfidence]. NaN becomes 0.
func ClampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > MaxConfidence:
		return MaxConfidence
	}
	return c
}

// Clamp applies ClampConfidence to every candidate in r.
func Clamp(r Result) Result {
	for i := range r.Entities {
		r.Entities[i].Confidence = ClampConfidence(r.Entities[i].Confidence)
	}
	for i := range r.Relationships {
		r.Relationships[i].Confidence = ClampConfidence(r.Relationships[i].Confidence)
	}
	return r
}

type isolated struct {
	inner Extractor
}

// Isolated wraps e so that a failure or panic yields an empty result and
// an ErrExtractionDegraded error instead of aborting the caller. Results
// are clamped. Partial results that already wrap ErrExtractionDegraded,
// as a Chain returns them, are kept.
func Isolated(e Extractor) Extractor {
	return isolated{inner: e}
}

func (i isolated) Extract(ctx context.Context, rec common.CanonicalRecord) (Result, error) {
	res, err := protect(ctx, i.inner, rec)
	if err == nil {
		return res, nil
	}
	logger.Warn("[Extract] Extraction degraded", "record", rec.ID, "source", rec.SourceName, "err", err)
	if errors.Is(err, ErrExtractionDegraded) {
		return res, err
	}
	return Result{}, fmt.Errorf("%w: %s: %v", ErrExtractionDegraded, rec.ID, err)
}

// protect runs e, turning a panic into an error. Results are clamped and
// dropped on any error that is not a degradation.
func protect(ctx context.Context, e Extractor, rec common.CanonicalRecord) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{}
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	res, err = e.Extract(ctx, rec)
	if err != nil && !errors.Is(err, ErrExtractionDegraded) {
		return Result{}, err
	}
	return Clamp(res), err
}

// Chain runs several extractors concurrently and concatenates their
// results. Local ids are prefixed per extractor so they cannot collide.
// Failed or panicking extractors are skipped; the joined error wraps
// ErrExtractionDegraded when any failed.
type Chain []Extractor

func (c Chain) Extract(ctx context.Context, rec common.CanonicalRecord) (Result, error) {
	if len(c) == 1 {
		return protect(ctx, c[0], rec)
	}

	results := make([]Result, len(c))
	errs := make([]error, len(c))
	var g errgroup.Group
	for i, e := range c {
		g.Go(func() error {
			results[i], errs[i] = protect(ctx, e, rec)
			return nil
		})
	}
	_ = g.Wait()

	var out Result
	var failed []error
	for i, r := range results {
		if errs[i] != nil {
			failed = append(failed, errs[i])
		}
		prefix := "x" + strconv.Itoa(i) + "."
		for _, e := range r.Entities {
			e.LocalID = prefix + e.LocalID
			out.Entities = append(out.Entities, e)
		}
		for _, rel := range r.Relationships {
			if rel.SourceLocalID != "" {
				rel.SourceLocalID = prefix + rel.SourceLocalID
			}
			if rel.TargetLocalID != "" {
				rel.TargetLocalID = prefix + rel.TargetLocalID
			}
			out.Relationships = append(out.Relationships, rel)
		}
	}
	if len(failed) == len(c) && out.Empty() {
		return Result{}, errors.Join(failed...)
	}
	if len(failed) > 0 {
		return out, fmt.Errorf("%w: %w", ErrExtractionDegraded, errors.Join(failed...))
	}
	return out, nil
}
