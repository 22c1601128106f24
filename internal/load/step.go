package load

import (
	"fmt"

	"github.com/google/uuid"

	aio "github.com/ehrlich-b/go-aio"
	"github.com/ehrlich-b/go-aio/internal/data"
)

// Step is one batch of operations of a single type
type Step struct {
	ID           string
	Op           aio.OpType
	SrcPath      string
	DstPath      string
	UpdateRanges []int
}

// NewStep creates a step with a fresh ID
func NewStep(op aio.OpType, srcPath, dstPath string) Step {
	return Step{
		ID:      uuid.NewString(),
		Op:      op,
		SrcPath: srcPath,
		DstPath: dstPath,
	}
}

// NewItems generates count items of the given size named after the step.
// Ranges listed in UpdateRanges are marked updated before any content is
// produced.
func (s Step) NewItems(in *data.Input, count int, size int64) []*data.Item {
	prefix := s.ID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	items := make([]*data.Item, count)
	for i := range items {
		items[i] = in.NewItem(fmt.Sprintf("%s-%06d", prefix, i), size)
		if len(s.UpdateRanges) > 0 {
			items[i].MarkUpdated(s.UpdateRanges...)
		}
	}
	return items
}

// Operations builds one PENDING operation per item
func (s Step) Operations(items []*data.Item) []*aio.Operation {
	ops := make([]*aio.Operation, len(items))
	for i, it := range items {
		ops[i] = aio.NewOperation(it, s.Op, s.SrcPath, s.DstPath)
	}
	return ops
}

// Succeeded returns the items whose operation finished SUCC
func Succeeded(ops []*aio.Operation) []*data.Item {
	var items []*data.Item
	for _, op := range ops {
		if op.Status() != aio.StatusSucc {
			continue
		}
		if it, ok := op.Item().(*data.Item); ok {
			items = append(items, it)
		}
	}
	return items
}
