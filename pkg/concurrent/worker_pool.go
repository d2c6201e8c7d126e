package concurrent

import (
	"context"
	"sync"
)

type Job[T any] struct {
	Index int
	Item  T
}

type Result[G any] struct {
	Index int
	Value G
}

type JobFunc[T any, G any] func(ctx context.Context, job Job[T]) G

// WorkerPool runs jobs on a fixed number of goroutines. Results arrive in completion order
// tagged with the job index.
type WorkerPool[T any, G any] struct {
	numWorkers int
	jobQueue   chan Job[T]
	results    chan Result[G]
	wg         sync.WaitGroup
}

func NewWorkerPool[T any, G any](numWorkers, jobQueueSize int) *WorkerPool[T, G] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool[T, G]{
		numWorkers: numWorkers,
		jobQueue:   make(chan Job[T], jobQueueSize),
		results:    make(chan Result[G], jobQueueSize),
	}
}

func (wp *WorkerPool[T, G]) worker(ctx context.Context, jobFunc JobFunc[T, G]) {
	defer wp.wg.Done()
	for job := range wp.jobQueue {
		wp.results <- Result[G]{Index: job.Index, Value: jobFunc(ctx, job)}
	}
}

func (wp *WorkerPool[T, G]) Start(ctx context.Context, jobFunc JobFunc[T, G]) {
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, jobFunc)
	}
}

// Wait blocks until every worker is done, then closes the results channel.
func (wp *WorkerPool[T, G]) Wait() {
	wp.wg.Wait()
	close(wp.results)
}

func (wp *WorkerPool[T, G]) AddJob(job Job[T]) {
	wp.jobQueue <- job
}

func (wp *WorkerPool[T, G]) CollectResults() <-chan Result[G] {
	return wp.results
}

func (wp *WorkerPool[T, G]) Close() {
	close(wp.jobQueue)
}

// Map applies fn to every item on numWorkers goroutines and returns the outputs in input order.
func Map[T any, G any](ctx context.Context, numWorkers int, items []T, fn JobFunc[T, G]) []G {
	wp := NewWorkerPool[T, G](numWorkers, len(items))
	wp.Start(ctx, fn)
	for i, item := range items {
		wp.AddJob(Job[T]{Index: i, Item: item})
	}
	wp.Close()

	out := make([]G, len(items))
	go wp.Wait()
	for res := range wp.CollectResults() {
		out[res.Index] = res.Value
	}
	return out
}
