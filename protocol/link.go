package protocol

import "errors"

// ErrHandlerPanic is left in Link.LastError when a handler panicked. The rest
// of that block is dropped.
var ErrHandlerPanic = errors.New("command handler panicked")

// Handler decodes the arguments of one command from args and runs it.
type Handler func(cmd uint16, args *[]byte) error

// Link is the firmware end of the serial link. Every received block is
// acknowledged with an empty block carrying the next expected sequence;
// replies share that sequence.
type Link struct {
	scan    Scanner
	next    uint8
	output  OutputBuffer
	handler Handler
	onReset func()
	onPanic func(cmd uint16)
	flush   func()

	// LastError holds the most recent handler failure for diagnostics.
	LastError error
}

// NewLink creates a link writing replies to output.
func NewLink(output OutputBuffer, handler Handler) *Link {
	return &Link{next: MessageDest, output: output, handler: handler}
}

// SetResetCallback is called when the host restarts its sequence.
func (l *Link) SetResetCallback(fn func()) { l.onReset = fn }

// SetPanicCallback is called with the command id after a handler panicked.
func (l *Link) SetPanicCallback(fn func(cmd uint16)) { l.onPanic = fn }

// SetFlushCallback is called after every acknowledgement so it reaches the
// host ahead of any reply.
func (l *Link) SetFlushCallback(fn func()) { l.flush = fn }

// Receive parses every complete block in input and consumes it.
func (l *Link) Receive(input InputBuffer) {
	data := input.Data()
	consumed := 0
	for {
		f, n, ok := l.scan.Next(data[consumed:])
		consumed += n
		if !ok {
			break
		}

		if f.Seq == MessageDest && l.next != MessageDest {
			l.next = MessageDest
			if l.onReset != nil {
				l.onReset()
			}
		}
		if f.Seq == l.next {
			l.next = nextSeq(f.Seq)
			l.ack()
			l.dispatch(f.Payload)
		} else {
			// Out of order: the ack tells the host which sequence is expected.
			l.ack()
		}
	}
	input.Pop(consumed)
}

func (l *Link) dispatch(payload []byte) {
	var cmd uint32
	defer func() {
		if r := recover(); r != nil {
			l.LastError = ErrHandlerPanic
			if l.onPanic != nil {
				l.onPanic(uint16(cmd))
			}
		}
	}()
	for len(payload) > 0 {
		var err error
		cmd, err = DecodeVLQUint(&payload)
		if err != nil {
			l.LastError = err
			return
		}
		if l.handler == nil {
			return
		}
		if err := l.handler(uint16(cmd), &payload); err != nil {
			l.LastError = err
			return
		}
	}
}

func (l *Link) ack() {
	AppendBlock(l.output, l.next, nil)
	if l.flush != nil {
		l.flush()
	}
}

// Send writes one message block.
func (l *Link) Send(id uint16, args func(OutputBuffer)) {
	AppendBlock(l.output, l.next, func(out OutputBuffer) {
		EncodeVLQUint(out, uint32(id))
		if args != nil {
			args(out)
		}
	})
}

// Reset returns the link to its power-on state.
func (l *Link) Reset() {
	l.next = MessageDest
	l.scan = Scanner{}
	if l.onReset != nil {
		l.onReset()
	}
}
