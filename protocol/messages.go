package protocol

// Command ids (host to firmware). The set is closed, so no dictionary is
// exchanged; both ends compile against these constants.
const (
	CmdIdentify uint16 = iota + 1
	CmdGPIORead
	CmdGPIOWrite
	CmdGPIOToggle
	CmdSPISelect
	CmdSPIDeselect
	CmdSPIWrite
	CmdSPIRead
	CmdADCStart
	CmdADCValue
	CmdADCQuery
	CmdTraceDump
)

// Response ids (firmware to host).
const (
	RspStatus uint16 = iota + 0x40
	RspIdentify
	RspGPIOState
	RspSPIData
	RspADCState
	RspSampleEvent
	RspTrace
)

var messageNames = map[uint16]string{
	CmdIdentify:    "identify",
	CmdGPIORead:    "gpio_read",
	CmdGPIOWrite:   "gpio_write",
	CmdGPIOToggle:  "gpio_toggle",
	CmdSPISelect:   "spi_select",
	CmdSPIDeselect: "spi_deselect",
	CmdSPIWrite:    "spi_write",
	CmdSPIRead:     "spi_read",
	CmdADCStart:    "adc_start",
	CmdADCValue:    "adc_value",
	CmdADCQuery:    "adc_query",
	CmdTraceDump:   "trace_dump",
	RspStatus:      "status",
	RspIdentify:    "identify_response",
	RspGPIOState:   "gpio_state",
	RspSPIData:     "spi_data",
	RspADCState:    "adc_state",
	RspSampleEvent: "sample_event",
	RspTrace:       "trace",
}

// MessageName returns the protocol name of a message id, or "" if unknown.
func MessageName(id uint16) string {
	return messageNames[id]
}

// EncodeArgs writes each value as an unsigned VLQ.
func EncodeArgs(output OutputBuffer, vals ...uint32) {
	for _, v := range vals {
		EncodeVLQUint(output, v)
	}
}

// DecodeArgs reads len(dst) unsigned VLQ values from data.
func DecodeArgs(data *[]byte, dst ...*uint32) error {
	for _, p := range dst {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

// Identity is the payload of identify_response.
type Identity struct {
	Version  string
	Board    string
	Pins     uint32
	Streams  uint32
	Buses    uint32
	ADCs     uint32
	Channels uint32
}

func (id *Identity) Encode(output OutputBuffer) {
	EncodeVLQString(output, id.Version)
	EncodeVLQString(output, id.Board)
	EncodeArgs(output, id.Pins, id.Streams, id.Buses, id.ADCs, id.Channels)
}

func (id *Identity) Decode(data *[]byte) error {
	var err error
	if id.Version, err = DecodeVLQString(data); err != nil {
		return err
	}
	if id.Board, err = DecodeVLQString(data); err != nil {
		return err
	}
	return DecodeArgs(data, &id.Pins, &id.Streams, &id.Buses, &id.ADCs, &id.Channels)
}

// Status is the payload of the status reply that closes every command.
type Status struct {
	Command uint32
	Code    uint32
}

func (s *Status) Encode(output OutputBuffer) {
	EncodeArgs(output, s.Command, s.Code)
}

func (s *Status) Decode(data *[]byte) error {
	return DecodeArgs(data, &s.Command, &s.Code)
}

// SampleEvent is the payload of an asynchronous sample_event.
type SampleEvent struct {
	Channel uint32
	Value   uint32
	Tick    uint32
}

func (e *SampleEvent) Encode(output OutputBuffer) {
	EncodeArgs(output, e.Channel, e.Value, e.Tick)
}

func (e *SampleEvent) Decode(data *[]byte) error {
	return DecodeArgs(data, &e.Channel, &e.Value, &e.Tick)
}

// TraceEntry is the payload of one trace reply.
type TraceEntry struct {
	Kind  uint32
	ID    uint32
	Tick  uint32
	Value uint32
}

func (t *TraceEntry) Encode(output OutputBuffer) {
	EncodeArgs(output, t.Kind, t.ID, t.Tick, t.Value)
}

func (t *TraceEntry) Decode(data *[]byte) error {
	return DecodeArgs(data, &t.Kind, &t.ID, &t.Tick, &t.Value)
}
