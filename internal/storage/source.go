package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/steveyegge/sgcc/internal/dataset"
	"github.com/steveyegge/sgcc/internal/logging"
	"github.com/steveyegge/sgcc/internal/types"
)

// DefaultImportBatch is the number of edges buffered per AddEdges call.
const DefaultImportBatch = 10000

// LoadEdges reads every stored edge into a partitioned collection ready for
// the resolver.
func LoadEdges(ctx context.Context, st Storage, opts dataset.Options) (dataset.Collection[types.NodeID], error) {
	var pairs []dataset.Pair[types.NodeID]
	err := st.StreamEdges(ctx, func(e types.Edge) error {
		pairs = append(pairs, dataset.Pair[types.NodeID]{Key: e.U, Value: e.V})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	return dataset.Parallelize(pairs, opts)
}

// Importer buffers edges and writes them to storage in batches, logging
// progress at most every few seconds.
type Importer struct {
	st       Storage
	batch    []types.Edge
	size     int
	read     int64
	added    int64
	started  time.Time
	progress rate.Sometimes
	logger   *slog.Logger
}

// NewImporter returns an Importer writing batchSize edges at a time.
// batchSize <= 0 selects DefaultImportBatch.
func NewImporter(ctx context.Context, st Storage, batchSize int) *Importer {
	if batchSize <= 0 {
		batchSize = DefaultImportBatch
	}
	return &Importer{
		st:       st,
		batch:    make([]types.Edge, 0, batchSize),
		size:     batchSize,
		started:  time.Now(),
		progress: rate.Sometimes{Interval: 2 * time.Second},
		logger:   logging.FromContext(ctx),
	}
}

// Add queues one edge, flushing when the batch is full.
func (im *Importer) Add(ctx context.Context, e types.Edge) error {
	im.batch = append(im.batch, e)
	im.read++
	if len(im.batch) >= im.size {
		return im.Flush(ctx)
	}
	return nil
}

// Flush writes any buffered edges.
func (im *Importer) Flush(ctx context.Context) error {
	if len(im.batch) == 0 {
		return nil
	}
	n, err := im.st.AddEdges(ctx, im.batch)
	im.added += int64(n)
	im.batch = im.batch[:0]
	if err != nil {
		return err
	}
	im.progress.Do(func() {
		im.logger.Info("importing edges", "read", im.read, "added", im.added, "elapsed", time.Since(im.started).Round(time.Millisecond))
	})
	return nil
}

// Read returns how many edges were passed to Add.
func (im *Importer) Read() int64 { return im.read }

// Added returns how many new edges were stored.
func (im *Importer) Added() int64 { return im.added }
