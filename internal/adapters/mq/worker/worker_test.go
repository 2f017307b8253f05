package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/mixseek/internal/adapters/mq/queue"
	worker "github.com/okian/mixseek/internal/adapters/mq/worker"
	model "github.com/okian/mixseek/internal/domain/model"
	logging "github.com/okian/mixseek/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type recordingHandler struct {
	mu      sync.Mutex
	handled map[string]int
	fail    map[string]error
	delay   time.Duration
	wg      *sync.WaitGroup
}

func newRecordingHandler(expected int) *recordingHandler {
	wg := &sync.WaitGroup{}
	wg.Add(expected)
	return &recordingHandler{handled: map[string]int{}, fail: map[string]error{}, wg: wg}
}

func (h *recordingHandler) HandleTeam(_ context.Context, job queue.Job) error {
	defer h.wg.Done()
	time.Sleep(h.delay)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled[job.Task.TeamID]++
	return h.fail[job.Task.TeamID]
}

func (h *recordingHandler) count(team string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handled[team]
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func teamJob(team string) queue.Job {
	return queue.Job{Task: model.RoundTask{ExecutionID: "exec", TeamID: team}, EnqueuedAt: time.Now()}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		h := newRecordingHandler(2)
		h.fail["beta"] = errors.New("team failed")
		w := worker.NewInMemoryWorker(q, h, worker.WithName("test-worker"), worker.WithLogger(logging.Get()))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.So(q.Enqueue(ctx, teamJob("alpha")), convey.ShouldBeNil)
		convey.So(q.Enqueue(ctx, teamJob("beta")), convey.ShouldBeNil)

		convey.Convey("Then every job reaches the handler, failures included", func() {
			convey.So(waitTimeout(h.wg, time.Second), convey.ShouldBeTrue)
			convey.So(h.count("alpha"), convey.ShouldEqual, 1)
			convey.So(h.count("beta"), convey.ShouldEqual, 1)
		})

		convey.Convey("And when shutting down", func() {
			convey.So(waitTimeout(h.wg, time.Second), convey.ShouldBeTrue)
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer shutdownCancel()

			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool of four workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		const teams = 40
		h := newRecordingHandler(teams)
		h.delay = 5 * time.Millisecond
		h.fail["team-3"] = errors.New("boom")

		pool := worker.NewPool(4, q, h)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		for i := 0; i < teams; i++ {
			convey.So(q.Enqueue(ctx, teamJob(fmt.Sprintf("team-%d", i))), convey.ShouldBeNil)
		}

		convey.Convey("Then all jobs are processed exactly once", func() {
			convey.So(waitTimeout(h.wg, 2*time.Second), convey.ShouldBeTrue)
			for i := 0; i < teams; i++ {
				convey.So(h.count(fmt.Sprintf("team-%d", i)), convey.ShouldEqual, 1)
			}

			convey.Convey("And stats reflect the failure", func() {
				// processed is counted right after the handler returns
				time.Sleep(10 * time.Millisecond)
				stats := pool.Stats()
				convey.So(stats.Workers, convey.ShouldEqual, 4)
				convey.So(stats.Processed, convey.ShouldEqual, int64(teams))
				convey.So(stats.Failed, convey.ShouldEqual, int64(1))
				convey.So(stats.Busy, convey.ShouldEqual, int64(0))
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()

			convey.Convey("Then queued jobs drain first", func() {
				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(waitTimeout(h.wg, time.Second), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool with default worker count", t, func() {
		pool := worker.NewPool(0, queue.NewInMemoryQueue(), worker.HandlerFunc(func(context.Context, queue.Job) error { return nil }))
		convey.So(pool.Stats().Workers, convey.ShouldBeGreaterThan, 0)
	})
}
