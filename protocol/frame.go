package protocol

import "bytes"

// Frame is one validated block. Payload aliases the scanned input.
type Frame struct {
	Seq     uint8
	Payload []byte
}

// Scanner splits a byte stream into validated blocks. After a malformed block
// it discards input up to and including the next sync byte.
type Scanner struct {
	desync  bool
	Resyncs uint32 // malformed blocks seen
}

// Next returns the first complete block in data and how many bytes were
// consumed. When ok is false, n bytes can still be discarded and the rest must
// be kept until more input arrives.
func (s *Scanner) Next(data []byte) (f Frame, n int, ok bool) {
	pos := 0
	for pos < len(data) {
		rest := data[pos:]
		if s.desync {
			i := bytes.IndexByte(rest, MessageValueSync)
			if i < 0 {
				return Frame{}, len(data), false
			}
			pos += i + 1
			s.desync = false
			continue
		}
		if rest[0] == MessageValueSync {
			pos++
			continue
		}
		if len(rest) < MessageLengthMin {
			break
		}
		size := int(rest[MessagePositionLen])
		seq := rest[MessagePositionSeq]
		if size < MessageLengthMin || size > MessageLengthMax || seq&^MessageSeqMask != MessageDest {
			s.fail()
			continue
		}
		if len(rest) < size {
			break
		}
		if rest[size-MessageTrailerSync] != MessageValueSync {
			s.fail()
			continue
		}
		crc := uint16(rest[size-MessageTrailerCRC])<<8 | uint16(rest[size-MessageTrailerCRC+1])
		if crc != CRC16(rest[:size-MessageTrailerSize]) {
			s.fail()
			continue
		}
		return Frame{Seq: seq, Payload: rest[MessageHeaderSize : size-MessageTrailerSize]}, pos + size, true
	}
	return Frame{}, pos, false
}

func (s *Scanner) fail() {
	s.desync = true
	s.Resyncs++
}

// AppendBlock writes one complete block carrying payload to output.
func AppendBlock(output OutputBuffer, seq uint8, payload func(OutputBuffer)) {
	cursor := output.CurPosition()
	output.Output([]byte{0, seq})
	if payload != nil {
		payload(output)
	}
	size := len(output.DataSince(cursor)) + MessageTrailerSize
	output.Update(cursor, uint8(size))

	crc := CRC16(output.DataSince(cursor))
	output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}
