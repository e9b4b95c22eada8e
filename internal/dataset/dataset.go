// Package dataset defines the partitioned key-value collection the resolver
// runs on, plus a local in-process backend.
//
// A Collection is an immutable snapshot split into partitions. Transforms
// never modify their receiver; they return a new Collection. Narrow
// transforms (Map, FlatMap, Union) work partition by partition. Wide
// transforms (GroupByKey, Distinct, Subtract) redistribute records by a
// deterministic hash so that equal keys (or equal pairs) meet in the same
// partition.
package dataset

import (
	"context"
	"errors"
	"fmt"
)

// ID is the constraint on collection element types: integer identifiers with
// a total order.
type ID interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Pair is one element of a Collection.
type Pair[K ID] struct {
	Key   K
	Value K
}

// Swap returns the pair with key and value exchanged.
func (p Pair[K]) Swap() Pair[K] {
	return Pair[K]{Key: p.Value, Value: p.Key}
}

// Less orders pairs by key, then value.
func (p Pair[K]) Less(o Pair[K]) bool {
	if p.Key != o.Key {
		return p.Key < o.Key
	}
	return p.Value < o.Value
}

// Emit receives the output of FlatMap style transforms.
type Emit[K ID] func(Pair[K])

// Collection is a partitioned, immutable multiset of pairs.
//
// Every method that does work takes a context; a canceled context makes the
// transform return an error and no collection.
type Collection[K ID] interface {
	// NumPartitions reports how many partitions hold the data.
	NumPartitions() int

	// Map applies fn to each element.
	Map(ctx context.Context, fn func(Pair[K]) Pair[K]) (Collection[K], error)

	// FlatMap calls fn once per element; fn may emit zero or more pairs.
	FlatMap(ctx context.Context, fn func(Pair[K], Emit[K])) (Collection[K], error)

	// GroupByKey gathers all values sharing a key into one group.
	GroupByKey(ctx context.Context) (Grouped[K], error)

	// Distinct removes duplicate pairs.
	Distinct(ctx context.Context) (Collection[K], error)

	// Union concatenates two collections, keeping duplicates.
	Union(ctx context.Context, other Collection[K]) (Collection[K], error)

	// Subtract keeps the elements whose pair does not occur in other.
	Subtract(ctx context.Context, other Collection[K]) (Collection[K], error)

	// Collect returns every element. It is a blocking barrier.
	Collect(ctx context.Context) ([]Pair[K], error)

	// Cache asks the backend to materialize the collection for reuse.
	Cache(ctx context.Context) (Collection[K], error)

	// Count returns the number of elements.
	Count(ctx context.Context) (int64, error)
}

// Grouped is the result of GroupByKey.
type Grouped[K ID] interface {
	NumPartitions() int

	// FlatMapGroups calls fn once per distinct key with all of its values in
	// ascending order. values is only valid for the duration of the call.
	FlatMapGroups(ctx context.Context, fn func(key K, values []K, emit Emit[K])) (Collection[K], error)
}

// ErrTaskFailed is wrapped by *TaskError when a partition task keeps failing
// after every allowed attempt.
var ErrTaskFailed = errors.New("partition task failed")

// ErrIncompatible is returned when two collections from different backends
// are combined.
var ErrIncompatible = errors.New("incompatible collections")

// TaskError reports the partition task that exhausted its attempts.
type TaskError struct {
	Stage     string
	Partition int
	Attempts  int
	Err       error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%v: stage %s partition %d after %d attempts: %v",
		ErrTaskFailed, e.Stage, e.Partition, e.Attempts, e.Err)
}

// Unwrap exposes both the sentinel and the last underlying failure.
func (e *TaskError) Unwrap() []error {
	return []error{ErrTaskFailed, e.Err}
}
