// SPI bus
// Blocking, caller-driven transfers with software chip select. Every flag wait
// is bounded so a missing device returns ErrTimeout instead of hanging.
package core

import "tinygo.org/x/drivers"

// Filler clocked out while reading.
const spiFill = 0xFF

// BusDescriptor is the compile-time description of one SPI bus.
type BusDescriptor struct {
	Controller    SPIController
	ChipSelect    PinID // active low
	Config        SPIConfig
	CRCPolynomial uint16
	Protocol      SPIProtocol
	Clock         Clock
}

// PinWriter drives a logical pin; the GPIO registry satisfies it.
type PinWriter interface {
	Write(pin PinID, high bool) error
}

// SPIBackend is the hardware an SPIManager drives.
type SPIBackend interface {
	SPIHardware
	ClockTree
}

// SPIManager configures SPI buses and runs transfers on them.
type SPIManager struct {
	hw        SPIBackend
	cs        PinWriter
	buses     Table[BusID, BusDescriptor]
	spinLimit uint32
}

// NewSPIManager returns a manager over the bus table. spinLimit bounds every
// wait on a ready flag.
func NewSPIManager(hw SPIBackend, cs PinWriter, buses Table[BusID, BusDescriptor], spinLimit uint32) *SPIManager {
	return &SPIManager{hw: hw, cs: cs, buses: buses, spinLimit: spinLimit}
}

// Buses returns the descriptor table.
func (s *SPIManager) Buses() Table[BusID, BusDescriptor] {
	return s.buses
}

// Init enables and configures one bus. Only the base configuration can be
// rejected; CRC polynomial and protocol variant are applied unconditionally.
func (s *SPIManager) Init(id BusID) error {
	d, err := s.buses.Get(id)
	if err != nil {
		return err
	}
	s.hw.EnableClock(d.Clock)
	if err := s.hw.ConfigureSPI(d.Controller, d.Config); err != nil {
		RecordTrace(EvtBusRejected, uint8(id), 0)
		return ErrConfigRejected
	}
	s.hw.SetCRCPolynomial(d.Controller, d.CRCPolynomial)
	s.hw.SetProtocol(d.Controller, d.Protocol)
	s.hw.EnableSPI(d.Controller)
	return nil
}

// Select drives the bus's chip-select pin low. Setup-time delays are the
// caller's responsibility.
func (s *SPIManager) Select(id BusID) error {
	d, err := s.buses.Get(id)
	if err != nil {
		return err
	}
	return s.cs.Write(d.ChipSelect, false)
}

// Deselect drives the bus's chip-select pin high.
func (s *SPIManager) Deselect(id BusID) error {
	d, err := s.buses.Get(id)
	if err != nil {
		return err
	}
	return s.cs.Write(d.ChipSelect, true)
}

// Write clocks buf out and discards what comes back. On a 16-bit bus bytes are
// packed big-endian two per frame and an odd trailing byte is padded with 0xFF.
func (s *SPIManager) Write(id BusID, buf []byte) error {
	d, err := s.buses.Get(id)
	if err != nil {
		return err
	}
	return s.exchange(id, d, buf, nil, len(buf))
}

// Read fills buf with received data while clocking out 0xFF (0xFFFF on a
// 16-bit bus). The low byte of a final frame that has no slot in buf is dropped.
func (s *SPIManager) Read(id BusID, buf []byte) error {
	d, err := s.buses.Get(id)
	if err != nil {
		return err
	}
	return s.exchange(id, d, nil, buf, len(buf))
}

// Transfer exchanges tx for rx in full duplex. Either may be nil; when both are
// given they must be the same length.
func (s *SPIManager) Transfer(id BusID, tx, rx []byte) error {
	d, err := s.buses.Get(id)
	if err != nil {
		return err
	}
	n := len(tx)
	switch {
	case tx == nil:
		n = len(rx)
	case rx != nil && len(rx) != len(tx):
		return ErrLength
	}
	return s.exchange(id, d, tx, rx, n)
}

func (s *SPIManager) exchange(id BusID, d BusDescriptor, tx, rx []byte, n int) error {
	wide := d.Config.Width == Width16
	ctrl := d.Controller

	for i := 0; i < n; {
		if !s.await(ctrl, true) {
			return s.timeout(id)
		}

		if wide {
			frame := uint16(0xFFFF)
			if tx != nil {
				lo := byte(spiFill)
				if i+1 < n {
					lo = tx[i+1]
				}
				frame = uint16(tx[i])<<8 | uint16(lo)
			}
			s.hw.WriteData(ctrl, frame)
		} else {
			out := byte(spiFill)
			if tx != nil {
				out = tx[i]
			}
			s.hw.WriteData(ctrl, uint16(out))
		}

		if !s.await(ctrl, false) {
			return s.timeout(id)
		}
		in := s.hw.ReadData(ctrl)

		if wide {
			if rx != nil {
				rx[i] = byte(in >> 8)
				if i+1 < n {
					rx[i+1] = byte(in)
				}
			}
			i += 2
		} else {
			if rx != nil {
				rx[i] = byte(in)
			}
			i++
		}
	}
	return nil
}

// await spins on TXE (tx) or RXNE (!tx) for at most spinLimit polls.
func (s *SPIManager) await(ctrl SPIController, tx bool) bool {
	for spins := uint32(0); spins < s.spinLimit; spins++ {
		if tx && s.hw.TxEmpty(ctrl) || !tx && s.hw.RxNotEmpty(ctrl) {
			return true
		}
	}
	return false
}

func (s *SPIManager) timeout(id BusID) error {
	RecordTrace(EvtBusTimeout, uint8(id), s.spinLimit)
	return ErrTimeout
}

// Device returns a drivers.SPI view of one bus so TinyGo device drivers can
// run over it. Chip select stays with the caller.
func (s *SPIManager) Device(id BusID) (*SPIDevice, error) {
	if !s.buses.Valid(id) {
		return nil, ErrRange
	}
	return &SPIDevice{bus: s, id: id}, nil
}

// SPIDevice adapts one bus to tinygo.org/x/drivers.SPI.
type SPIDevice struct {
	bus *SPIManager
	id  BusID
}

var _ drivers.SPI = (*SPIDevice)(nil)

// Tx performs a full-duplex exchange.
func (d *SPIDevice) Tx(w, r []byte) error {
	return d.bus.Transfer(d.id, w, r)
}

// Transfer exchanges a single byte.
func (d *SPIDevice) Transfer(b byte) (byte, error) {
	var in [1]byte
	err := d.bus.Transfer(d.id, []byte{b}, in[:])
	return in[0], err
}
