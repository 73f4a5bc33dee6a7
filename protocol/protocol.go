// Package protocol implements the framed serial link between the firmware and
// the host tool: VLQ-encoded command blocks wrapped in a length, sequence,
// CRC16 and sync byte.
package protocol

// Version is the firmware/host protocol version reported by identify.
const Version = "0.1.0"

// Block layout: [len][seq][payload...][crc hi][crc lo][sync]
const (
	MessageMax         = 512 // scratch output capacity; holds several blocks
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10

	MessageSeqMask = 0x0F
)

// nextSeq advances a sequence byte within the 0x10-0x1F window.
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
