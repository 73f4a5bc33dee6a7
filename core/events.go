package core

// Event is a channel sample captured in interrupt or timer context for the
// foreground loop.
type Event struct {
	Channel ChannelID
	Value   uint32
	Tick    uint32
}

// EventQueue is a bounded single-consumer ring. Producers may run in
// interrupt context; the foreground loop is the only consumer.
type EventQueue struct {
	buf     []Event
	head    int // next read
	count   int
	dropped uint32
}

// NewEventQueue creates a queue holding up to size events.
func NewEventQueue(size int) *EventQueue {
	if size < 1 {
		size = 1
	}
	return &EventQueue{buf: make([]Event, size)}
}

// Post appends an event. When the queue is full the new event is dropped,
// counted, and false is returned.
func (q *EventQueue) Post(e Event) bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if q.count == len(q.buf) {
		q.dropped++
		RecordTrace(EvtQueueOverflow, uint8(e.Channel), q.dropped)
		return false
	}
	q.buf[(q.head+q.count)%len(q.buf)] = e
	q.count++
	return true
}

// Pop removes the oldest event.
func (q *EventQueue) Pop() (Event, bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if q.count == 0 {
		return Event{}, false
	}
	e := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return e, true
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return q.count
}

// Cap returns the queue capacity.
func (q *EventQueue) Cap() int {
	return len(q.buf)
}

// Dropped returns how many events were lost to overflow.
func (q *EventQueue) Dropped() uint32 {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return q.dropped
}
