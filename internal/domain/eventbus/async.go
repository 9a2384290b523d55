package eventbus

import (
	"sync"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"

	"plant-detector-go/internal/utils"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
)

// AsyncEventBus dispatches published events to subscribers on a small worker pool.
// When the queue is full new events are dropped rather than blocking the publisher.
type AsyncEventBus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	dropped   atomic.Int64
	logger    *utils.Logger

	// mu orders PublishAsync against Stop: no send happens once stopped is set.
	mu      sync.RWMutex
	stopped bool
	pending inflight
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// inflight counts queued events. Unlike sync.WaitGroup it allows add to race with wait.
type inflight struct {
	mu   sync.Mutex
	cond *sync.Cond
	n    int
}

func (c *inflight) init() {
	c.cond = sync.NewCond(&c.mu)
}

func (c *inflight) add() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *inflight) done() {
	c.mu.Lock()
	c.n--
	if c.n <= 0 {
		c.n = 0
		c.cond.Broadcast()
	}
	c.mu.Unlock()
}

func (c *inflight) wait() {
	c.mu.Lock()
	for c.n > 0 {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

// NewAsyncEventBus creates a bus; call Start before publishing.
func NewAsyncEventBus(workerNum, queueSize int, logger *utils.Logger) *AsyncEventBus {
	if workerNum <= 0 {
		workerNum = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = utils.DefaultLogger
	}

	aeb := &AsyncEventBus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, queueSize),
		stopChan:  make(chan struct{}),
		logger:    logger,
	}
	aeb.pending.init()
	return aeb
}

// Start launches the workers. Calling it more than once is a no-op.
func (aeb *AsyncEventBus) Start() {
	aeb.startOnce.Do(func() {
		for i := 0; i < aeb.workerNum; i++ {
			aeb.wg.Add(1)
			go aeb.worker()
		}
	})
}

// Stop delivers what is already queued, then stops the workers.
// Events published after Stop are counted as dropped.
func (aeb *AsyncEventBus) Stop() {
	aeb.stopOnce.Do(func() {
		aeb.mu.Lock()
		aeb.stopped = true
		close(aeb.stopChan)
		aeb.mu.Unlock()

		aeb.wg.Wait()
		// nothing left to pick up the remainder if Start was never called
		for {
			select {
			case <-aeb.workChan:
				aeb.pending.done()
			default:
				return
			}
		}
	})
}

func (aeb *AsyncEventBus) worker() {
	defer aeb.wg.Done()

	for {
		select {
		case <-aeb.stopChan:
			for {
				select {
				case event := <-aeb.workChan:
					aeb.dispatch(event)
				default:
					return
				}
			}
		case event := <-aeb.workChan:
			aeb.dispatch(event)
		}
	}
}

func (aeb *AsyncEventBus) dispatch(event asyncEvent) {
	defer aeb.pending.done()
	defer func() {
		if r := recover(); r != nil {
			aeb.logger.ErrorTag("Events", "subscriber panic on %s: %v", event.topic, r)
		}
	}()
	aeb.bus.Publish(event.topic, event.args...)
}

// PublishAsync queues the event for the workers.
func (aeb *AsyncEventBus) PublishAsync(topic string, args ...interface{}) {
	aeb.mu.RLock()
	defer aeb.mu.RUnlock()

	if aeb.stopped {
		aeb.dropped.Add(1)
		return
	}

	aeb.pending.add()
	select {
	case aeb.workChan <- asyncEvent{topic: topic, args: args}:
	default:
		aeb.pending.done()
		n := aeb.dropped.Add(1)
		aeb.logger.WarnTag("Events", "queue full, dropped %s (total dropped %d)", topic, n)
	}
}

// Subscribe registers fn for topic. fn's parameters must match what publishers send.
func (aeb *AsyncEventBus) Subscribe(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

// Dropped is the number of events discarded because the queue was full or the bus stopped.
func (aeb *AsyncEventBus) Dropped() int64 {
	return aeb.dropped.Load()
}

// waitIdle blocks until every queued event has been delivered or discarded.
func (aeb *AsyncEventBus) waitIdle() {
	aeb.pending.wait()
}
