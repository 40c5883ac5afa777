package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/go-cmp/cmp"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/tessera/pkg/core"
	"github.com/aretw0/tessera/pkg/model"
)

// SaveResult reports what a Save call did with each object.
type SaveResult struct {
	// Written holds the keys persisted by this call.
	Written []string
	// Unchanged holds the keys whose document equals the last persisted one.
	Unchanged []string
	// Skipped holds the placeholders, which are never written.
	Skipped []*model.Instance
	// Pending holds referenced instances outside the batch with changes not
	// yet persisted. Save does not cascade; pass them to another Save call.
	Pending []*model.Instance
}

type saveOutcome int

const (
	outcomeNone saveOutcome = iota
	outcomeWritten
	outcomeUnchanged
	outcomeSkipped
)

type saveJob struct {
	inst    *model.Instance
	key     string
	doc     core.Value
	outcome saveOutcome
}

// Save persists each loaded object under its key, using the token recorded
// when it was read as precondition. Objects equal to their last persisted
// document cause no I/O. Writes run concurrently; every failure is reported
// in the returned error and only successful writes update their object.
func (s *Store) Save(ctx context.Context, objs ...*model.Instance) (*SaveResult, error) {
	ctx, span := tracer.Start(ctx, "graph.Save", trace.WithAttributes(attribute.Int("tessera.objects", len(objs))))
	defer span.End()

	jobs := make([]*saveJob, 0, len(objs))
	inBatch := make(map[*model.Instance]struct{}, len(objs))
	var refs []*model.Instance
	var errs []error

	for _, inst := range objs {
		if inst == nil {
			continue
		}
		if _, dup := inBatch[inst]; dup {
			continue
		}
		inBatch[inst] = struct{}{}

		job := &saveJob{inst: inst}
		jobs = append(jobs, job)

		if !inst.Loaded() {
			job.outcome = outcomeSkipped
			continue
		}
		key, err := inst.Key()
		if err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", inst.Type().Name, err))
			continue
		}
		res, err := s.codec.EncodeRoot(inst)
		if err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", key, err))
			continue
		}
		job.key, job.doc = key, res.Doc
		refs = append(refs, res.Refs...)

		if model.Unchanged(inst, res.Doc) {
			job.outcome = outcomeUnchanged
		}
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(s.saveConcurrency)
	for _, job := range jobs {
		if job.outcome != outcomeNone || job.key == "" {
			continue
		}
		p.Go(func(ctx context.Context) error {
			return s.write(ctx, job)
		})
	}
	if err := p.Wait(); err != nil {
		errs = append(errs, err)
	}

	result := &SaveResult{Pending: s.pending(refs, inBatch)}
	for _, job := range jobs {
		switch job.outcome {
		case outcomeWritten:
			result.Written = append(result.Written, job.key)
		case outcomeUnchanged:
			result.Unchanged = append(result.Unchanged, job.key)
		case outcomeSkipped:
			result.Skipped = append(result.Skipped, job.inst)
		}
	}
	recordSave(ctx, len(result.Written), len(result.Unchanged), len(result.Skipped))
	s.count(func(st *storeStats) { st.skipped += int64(len(result.Skipped)) })

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
	}
	return result, err
}

func (s *Store) write(ctx context.Context, job *saveJob) error {
	if s.logger.Enabled(ctx, slog.LevelDebug) {
		if prev, ok := job.inst.Snapshot(); ok {
			s.logger.Debug("saving changed document", "key", job.key, "diff", cmp.Diff(prev.ToAny(), job.doc.ToAny()))
		} else {
			s.logger.Debug("saving new document", "key", job.key)
		}
	}

	token, err := s.bucket.Set(ctx, job.key, job.doc, job.inst.Token())
	if err != nil {
		return fmt.Errorf("save %s: %w", job.key, err)
	}
	model.MarkSaved(job.inst, job.doc, token)
	job.outcome = outcomeWritten
	s.count(func(st *storeStats) { st.writes++ })
	return nil
}

// pending returns the referenced instances outside the batch whose current
// document differs from the persisted one, each once.
func (s *Store) pending(refs []*model.Instance, inBatch map[*model.Instance]struct{}) []*model.Instance {
	var out []*model.Instance
	seen := make(map[*model.Instance]struct{}, len(refs))
	for _, inst := range refs {
		if _, ok := inBatch[inst]; ok {
			continue
		}
		if _, ok := seen[inst]; ok {
			continue
		}
		seen[inst] = struct{}{}
		if !inst.Loaded() {
			continue
		}
		res, err := s.codec.EncodeRoot(inst)
		if err == nil && model.Unchanged(inst, res.Doc) {
			continue
		}
		out = append(out, inst)
	}
	return out
}

// Remove deletes the document of inst, using its token as precondition.
// The bucket must implement core.Remover.
func (s *Store) Remove(ctx context.Context, inst *model.Instance) error {
	r, ok := s.bucket.(core.Remover)
	if !ok {
		return fmt.Errorf("remove: %w", errors.ErrUnsupported)
	}
	key, err := inst.Key()
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	if err := r.Remove(ctx, key, inst.Token()); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	s.logger.Debug("removed document", "key", key)
	return nil
}
