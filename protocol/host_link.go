//go:build !tinygo

package protocol

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Message is one decoded non-empty block received by the host.
type Message struct {
	Seq  uint8
	ID   uint16
	Args []byte
}

// DefaultResendInterval is how long Send waits for an acknowledgement before
// writing the block again.
const DefaultResendInterval = 500 * time.Millisecond

// ErrClosed is returned once the link has been closed.
var ErrClosed = errors.New("link closed")

// HostLink is the host end of the serial link. A background reader splits the
// stream into acknowledgements and messages.
type HostLink struct {
	port io.ReadWriteCloser

	sendMu sync.Mutex
	seq    uint8
	resend time.Duration

	acks     chan uint8
	messages chan Message

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	readErr   error
}

// NewHostLink starts reading from port.
func NewHostLink(port io.ReadWriteCloser) *HostLink {
	l := &HostLink{
		port:     port,
		seq:      MessageDest,
		resend:   DefaultResendInterval,
		acks:     make(chan uint8, 1),
		messages: make(chan Message, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// SetResendInterval changes how long Send waits for an acknowledgement before
// writing the block again.
func (l *HostLink) SetResendInterval(d time.Duration) {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	l.resend = d
}

// Send writes one command block and waits for its acknowledgement, writing the
// block again after every resend interval without one. The firmware acks a
// repeated sequence without running it twice.
func (l *HostLink) Send(ctx context.Context, id uint16, args func(OutputBuffer)) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	scratch := NewScratchOutput()
	AppendBlock(scratch, l.seq, func(out OutputBuffer) {
		EncodeVLQUint(out, uint32(id))
		if args != nil {
			args(out)
		}
	})
	block := scratch.Result()
	if len(block) > MessageLengthMax {
		return errors.Errorf("%s: block of %d bytes exceeds %d", MessageName(id), len(block), MessageLengthMax)
	}
	if _, err := l.port.Write(block); err != nil {
		return errors.Wrapf(err, "writing %s", MessageName(id))
	}

	want := nextSeq(l.seq)
	resend := time.NewTimer(l.resend)
	defer resend.Stop()
	for {
		select {
		case <-resend.C:
			if _, err := l.port.Write(block); err != nil {
				return errors.Wrapf(err, "resending %s", MessageName(id))
			}
			resend.Reset(l.resend)
		case got := <-l.acks:
			if got != want {
				// A stale acknowledgement from before a reset; keep waiting.
				continue
			}
			l.seq = want
			return nil
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "waiting for %s ack", MessageName(id))
		case <-l.done:
			return l.closedErr()
		}
	}
}

// Receive returns the next message from the firmware.
func (l *HostLink) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-l.messages:
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-l.done:
		// Drain what arrived before the reader stopped.
		select {
		case m := <-l.messages:
			return m, nil
		default:
		}
		return Message{}, l.closedErr()
	}
}

func (l *HostLink) closedErr() error {
	if l.readErr != nil && !errors.Is(l.readErr, io.EOF) {
		return errors.Wrap(l.readErr, "reading link")
	}
	return ErrClosed
}

// Close stops the reader and closes the port.
func (l *HostLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stop)
		err = l.port.Close()
		<-l.done
	})
	return err
}

func (l *HostLink) readLoop() {
	defer close(l.done)

	var (
		scan    Scanner
		pending []byte
		buf     = make([]byte, 256)
	)
	for {
		n, err := l.port.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			pending = l.split(&scan, pending)
		}
		if err != nil {
			select {
			case <-l.stop:
			default:
				l.readErr = err
			}
			return
		}
	}
}

// split dispatches every complete block in data and returns the remainder.
func (l *HostLink) split(scan *Scanner, data []byte) []byte {
	for {
		f, n, ok := scan.Next(data)
		if !ok {
			return append(data[:0], data[n:]...)
		}
		data = data[n:]

		if len(f.Payload) == 0 {
			select {
			case l.acks <- f.Seq:
			default:
				// Replace an unread stale ack.
				select {
				case <-l.acks:
				default:
				}
				l.acks <- f.Seq
			}
			continue
		}

		payload := append([]byte(nil), f.Payload...)
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			continue
		}
		select {
		case l.messages <- Message{Seq: f.Seq, ID: uint16(id), Args: payload}:
		case <-l.stop:
			return data[:0]
		}
	}
}
