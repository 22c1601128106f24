package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	aio "github.com/ehrlich-b/go-aio"
	"github.com/ehrlich-b/go-aio/internal/config"
	"github.com/ehrlich-b/go-aio/internal/data"
	"github.com/ehrlich-b/go-aio/internal/load"
	"github.com/ehrlich-b/go-aio/internal/store"
)

var errNeedStore = errors.New("no item store configured (-db)")

// stepPlan is one load step ready to run
type stepPlan struct {
	step  load.Step
	input *data.Input
	ops   []*aio.Operation
}

// planStep builds the operations of one step. CREATE and NOOP generate
// fresh items; READ, UPDATE and COPY reload items an earlier step stored,
// optionally only those under lc.SrcPath.
func planStep(st *store.Store, lc config.LoadConfig, typ aio.OpType) (*stepPlan, error) {
	input, err := loadInput(st, lc)
	if err != nil {
		return nil, err
	}

	dst := lc.DstPath
	if dst != "" || typ == aio.OpCreate || typ == aio.OpCopy {
		if dst, err = filepath.Abs(dst); err != nil {
			return nil, err
		}
	}
	step := load.NewStep(typ, lc.SrcPath, dst)
	plan := &stepPlan{step: step, input: input}

	switch typ {
	case aio.OpNoop, aio.OpCreate:
		if lc.Count <= 0 {
			return nil, fmt.Errorf("%s needs a positive item count", typ)
		}
		step.UpdateRanges = lc.UpdateRanges
		plan.step = step
		plan.ops = step.Operations(step.NewItems(input, lc.Count, lc.ItemSize.Int64()))
		return plan, nil

	case aio.OpRead, aio.OpUpdate, aio.OpCopy:
		if st == nil {
			return nil, fmt.Errorf("%s: %w", typ, errNeedStore)
		}
		recs, err := st.Items()
		if err != nil {
			return nil, err
		}
		src := lc.SrcPath
		if src != "" {
			if src, err = filepath.Abs(src); err != nil {
				return nil, err
			}
		}
		for _, rec := range recs {
			if src != "" && rec.Path != src {
				continue
			}
			if lc.Count > 0 && len(plan.ops) == lc.Count {
				break
			}
			plan.ops = append(plan.ops, aio.NewOperation(input.Restore(rec.Record), typ, rec.Path, dst))
		}
		return plan, nil
	}
	return nil, fmt.Errorf("%s is not supported by the load generator", typ)
}

// loadInput returns the stored content source, or creates and stores one
// from lc. Every step sharing a store must agree on the input.
func loadInput(st *store.Store, lc config.LoadConfig) (*data.Input, error) {
	if st == nil {
		return data.NewInput(lc.Seed, int(lc.InputSize)), nil
	}
	rec, found, err := st.Input()
	if err != nil {
		return nil, err
	}
	if found {
		return data.NewInput(rec.Seed, rec.Size), nil
	}
	rec = store.InputRecord{Seed: lc.Seed, Size: int(lc.InputSize)}
	if err := st.SaveInput(rec); err != nil {
		return nil, err
	}
	return data.NewInput(rec.Seed, rec.Size), nil
}

// persist records the step and, for steps that write items, the items
// that now exist under the destination.
func (p *stepPlan) persist(st *store.Store, res load.Result, started time.Time, runErr error) error {
	if p.step.Op == aio.OpCreate || p.step.Op == aio.OpCopy {
		items := load.Succeeded(p.ops)
		recs := make([]store.ItemRecord, len(items))
		for i, it := range items {
			recs[i] = store.ItemRecord{Record: it.Record(), Path: p.step.DstPath, Step: p.step.ID}
		}
		if err := st.SaveItems(recs); err != nil {
			return err
		}
	}

	rec := &store.StepRecord{
		ID:        p.step.ID,
		Op:        p.step.Op.String(),
		SrcPath:   p.step.SrcPath,
		DstPath:   p.step.DstPath,
		Count:     len(p.ops),
		Succeeded: res.ByStatus[aio.StatusSucc],
		Failed:    res.Failed(),
		Started:   started,
		Elapsed:   res.Elapsed,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return st.SaveStep(rec)
}
