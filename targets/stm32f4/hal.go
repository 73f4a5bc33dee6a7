//go:build stm32f4

package main

import (
	"errors"
	"unsafe"

	"f4periph/core"
)

var (
	errPinConfig    = errors.New("pin configuration not supported")
	errStreamConfig = errors.New("stream configuration not supported")
	errSPIConfig    = errors.New("spi configuration not supported")
	errADCConfig    = errors.New("adc configuration not supported")
)

// registerHAL implements core.HAL over the memory-mapped peripherals.
type registerHAL struct{}

var _ core.HAL = registerHAL{}

func (registerHAL) EnableClock(c core.Clock) {
	switch c.Bus {
	case core.AHB1:
		rcc.AHB1ENR.SetBits(c.Mask)
		_ = rcc.AHB1ENR.Get() // read back so the clock is running before first access
	case core.AHB2:
		rcc.AHB2ENR.SetBits(c.Mask)
		_ = rcc.AHB2ENR.Get()
	case core.APB1:
		rcc.APB1ENR.SetBits(c.Mask)
		_ = rcc.APB1ENR.Get()
	case core.APB2:
		rcc.APB2ENR.SetBits(c.Mask)
		_ = rcc.APB2ENR.Get()
	}
}

func (registerHAL) SetPriority(irq core.IRQ, priority uint8) {
	nvicPriority(int16(irq), priority)
}

func (registerHAL) EnableIRQ(irq core.IRQ) {
	nvicEnable(int16(irq))
}

// GPIO

func (registerHAL) ConfigurePin(port core.Port, pin uint8, cfg core.PinConfig) error {
	if port > core.PortI || pin > 15 || cfg.Alternate > 15 || cfg.Pull > core.PullDown {
		return errPinConfig
	}
	g := gpioPort(uint8(port))
	shift2 := uint8(pin) * 2

	if cfg.Mode == core.ModeAlternate {
		reg := &g.AFR[pin/8]
		shift4 := (pin % 8) * 4
		reg.ReplaceBits(uint32(cfg.Alternate), 0xF, shift4)
	}
	g.OSPEEDR.ReplaceBits(uint32(cfg.Speed), 0x3, shift2)
	g.OTYPER.ReplaceBits(uint32(cfg.OutputType), 0x1, pin)
	g.PUPDR.ReplaceBits(uint32(cfg.Pull), 0x3, shift2)
	g.MODER.ReplaceBits(uint32(cfg.Mode), 0x3, shift2)
	return nil
}

func (registerHAL) SetPin(port core.Port, pin uint8, high bool) {
	if high {
		gpioPort(uint8(port)).BSRR.Set(1 << pin)
	} else {
		gpioPort(uint8(port)).BSRR.Set(1 << (pin + 16))
	}
}

func (registerHAL) TogglePin(port core.Port, pin uint8) {
	g := gpioPort(uint8(port))
	if g.ODR.HasBits(1 << pin) {
		g.BSRR.Set(1 << (pin + 16))
	} else {
		g.BSRR.Set(1 << pin)
	}
}

func (registerHAL) OutputSet(port core.Port, pin uint8) bool {
	return gpioPort(uint8(port)).ODR.HasBits(1 << pin)
}

func (registerHAL) InputSet(port core.Port, pin uint8) bool {
	return gpioPort(uint8(port)).IDR.HasBits(1 << pin)
}

func (registerHAL) ConfigureEXTI(line uint8, port core.Port, trigger core.Trigger) {
	rcc.APB2ENR.SetBits(1 << 14) // SYSCFG
	syscfg.EXTICR[line/4].ReplaceBits(uint32(port), 0xF, (line%4)*4)

	mask := uint32(1) << line
	if trigger&core.TriggerRising != 0 {
		exti.RTSR.SetBits(mask)
	} else {
		exti.RTSR.ClearBits(mask)
	}
	if trigger&core.TriggerFalling != 0 {
		exti.FTSR.SetBits(mask)
	} else {
		exti.FTSR.ClearBits(mask)
	}
	exti.IMR.SetBits(mask)
}

func (registerHAL) ClearEXTI(line uint8) {
	exti.PR.Set(1 << line) // write-one-to-clear
}

// DMA

// tcFlag returns the register index and transfer-complete bit of a stream.
func tcFlag(stream uint8) (int, uint32) {
	offsets := [4]uint8{5, 11, 21, 27}
	return int(stream / 4), 1 << offsets[stream%4]
}

func (registerHAL) ConfigureStream(ctrl core.DMAController, stream uint8, cfg core.StreamConfig) error {
	if stream > 7 || cfg.Channel > 7 || cfg.Count == 0 {
		return errStreamConfig
	}
	if cfg.Direction == core.MemoryToMemory && (ctrl == core.DMA1 || cfg.Circular) {
		return errStreamConfig
	}
	s := &dmaController(uint8(ctrl)).Stream[stream]

	s.CR.ClearBits(1) // EN
	for s.CR.HasBits(1) {
	}

	cr := uint32(cfg.Channel)<<25 |
		uint32(cfg.Priority)<<16 |
		uint32(cfg.MemSize)<<13 |
		uint32(cfg.PeriphSize)<<11 |
		uint32(cfg.Direction)<<6
	if cfg.MemIncrement {
		cr |= 1 << 10
	}
	if cfg.PeriphIncrement {
		cr |= 1 << 9
	}
	if cfg.Circular {
		cr |= 1 << 8
	}
	s.CR.Set(cr)
	s.NDTR.Set(uint32(cfg.Count))
	s.PAR.Set(uint32(cfg.PeriphAddr))
	s.M0AR.Set(uint32(cfg.MemAddr))
	return nil
}

func (registerHAL) SetFIFO(ctrl core.DMAController, stream uint8, enabled bool) {
	s := &dmaController(uint8(ctrl)).Stream[stream]
	if enabled {
		s.FCR.SetBits(1 << 2) // DMDIS
	} else {
		s.FCR.ClearBits(1 << 2)
	}
}

func (registerHAL) SetTransferCompleteIRQ(ctrl core.DMAController, stream uint8, enabled bool) {
	s := &dmaController(uint8(ctrl)).Stream[stream]
	if enabled {
		s.CR.SetBits(1 << 4)
	} else {
		s.CR.ClearBits(1 << 4)
	}
}

func (registerHAL) SetStreamEnabled(ctrl core.DMAController, stream uint8, enabled bool) {
	s := &dmaController(uint8(ctrl)).Stream[stream]
	if enabled {
		s.CR.SetBits(1)
	} else {
		s.CR.ClearBits(1)
	}
}

func (registerHAL) ClearTransferComplete(ctrl core.DMAController, stream uint8) {
	reg, bit := tcFlag(stream)
	dmaController(uint8(ctrl)).IFCR[reg].Set(bit)
}

// transferComplete reports a latched transfer-complete flag.
func transferComplete(ctrl core.DMAController, stream uint8) bool {
	reg, bit := tcFlag(stream)
	return dmaController(uint8(ctrl)).ISR[reg].HasBits(bit)
}

// SPI

func (registerHAL) ConfigureSPI(ctrl core.SPIController, cfg core.SPIConfig) error {
	if ctrl > core.SPI3 || cfg.BaudDivisor > 7 {
		return errSPIConfig
	}
	if cfg.Role == core.RoleSlave && cfg.NSS == core.NSSHardOutput {
		return errSPIConfig
	}
	r := spiController(uint8(ctrl))
	r.CR1.ClearBits(1 << 6) // SPE

	cr1 := uint32(cfg.BaudDivisor)<<3 | uint32(cfg.Phase) | uint32(cfg.Polarity)<<1
	if cfg.Role == core.RoleMaster {
		cr1 |= 1 << 2
	}
	if cfg.BitOrder == core.LSBFirst {
		cr1 |= 1 << 7
	}
	if cfg.NSS == core.NSSSoft {
		cr1 |= 1<<9 | 1<<8 // SSM, SSI
	}
	if cfg.Width == core.Width16 {
		cr1 |= 1 << 11
	}
	if cfg.CRC {
		cr1 |= 1 << 13
	}
	switch cfg.Direction {
	case core.SimplexRx:
		cr1 |= 1 << 10
	case core.HalfDuplexRx:
		cr1 |= 1 << 15
	case core.HalfDuplexTx:
		cr1 |= 1<<15 | 1<<14
	}
	r.CR1.Set(cr1)

	if cfg.NSS == core.NSSHardOutput {
		r.CR2.SetBits(1 << 2)
	} else {
		r.CR2.ClearBits(1 << 2)
	}
	return nil
}

func (registerHAL) SetCRCPolynomial(ctrl core.SPIController, poly uint16) {
	spiController(uint8(ctrl)).CRCPR.Set(uint32(poly))
}

func (registerHAL) SetProtocol(ctrl core.SPIController, p core.SPIProtocol) {
	r := spiController(uint8(ctrl))
	if p == core.ProtocolTI {
		r.CR2.SetBits(1 << 4)
	} else {
		r.CR2.ClearBits(1 << 4)
	}
}

func (registerHAL) EnableSPI(ctrl core.SPIController) {
	spiController(uint8(ctrl)).CR1.SetBits(1 << 6)
}

func (registerHAL) TxEmpty(ctrl core.SPIController) bool {
	return spiController(uint8(ctrl)).SR.HasBits(1 << 1)
}

func (registerHAL) RxNotEmpty(ctrl core.SPIController) bool {
	return spiController(uint8(ctrl)).SR.HasBits(1 << 0)
}

func (registerHAL) WriteData(ctrl core.SPIController, v uint16) {
	spiController(uint8(ctrl)).DR.Set(uint32(v))
}

func (registerHAL) ReadData(ctrl core.SPIController) uint16 {
	return uint16(spiController(uint8(ctrl)).DR.Get())
}

// ADC

var extsel = [...]uint32{
	core.TriggerTimer1CC1:  0x0,
	core.TriggerTimer2TRGO: 0x6,
	core.TriggerEXTI11:     0xF,
}

func (registerHAL) SetCommonPrescaler(p core.ADCPrescaler) {
	adcCCR.CCR.ReplaceBits(uint32(p), 0x3, 16)
}

func (registerHAL) ConfigureADC(ctrl core.ADCController, cfg core.ADCConfig) error {
	if ctrl > core.ADC3 || cfg.Resolution > core.Resolution6 {
		return errADCConfig
	}
	r := adcController(uint8(ctrl))
	cr1 := uint32(cfg.Resolution) << 24
	if cfg.Scan {
		cr1 |= 1 << 8
	}
	r.CR1.Set(cr1)
	r.CR2.ReplaceBits(uint32(cfg.Alignment), 0x1, 11)
	return nil
}

func (registerHAL) ConfigureRegular(ctrl core.ADCController, cfg core.RegularConfig) error {
	if cfg.Length == 0 || cfg.Length > 16 || cfg.Continuous && cfg.Discontinuous {
		return errADCConfig
	}
	r := adcController(uint8(ctrl))
	r.SQR1.ReplaceBits(uint32(cfg.Length-1), 0xF, 20)

	if cfg.Discontinuous {
		r.CR1.SetBits(1 << 11)
	} else {
		r.CR1.ClearBits(1 << 11)
	}

	cr2 := r.CR2.Get() &^ (0x3<<28 | 0xF<<24 | 1<<9 | 1<<8 | 1<<1)
	if cfg.Trigger != core.TriggerSoftware {
		cr2 |= 1<<28 | extsel[cfg.Trigger]<<24 // rising edge
	}
	if cfg.Continuous {
		cr2 |= 1 << 1
	}
	if cfg.DMA {
		cr2 |= 1<<8 | 1<<9 // DMA, DDS: keep requesting in circular mode
	} else {
		r.CR1.SetBits(1 << 5) // EOCIE
		cr2 |= 1 << 10        // EOCS: flag each conversion
	}
	r.CR2.Set(cr2)
	return nil
}

func (registerHAL) ConfigureChannel(ctrl core.ADCController, rank uint8, channel uint8, sampling core.SamplingTime) {
	r := adcController(uint8(ctrl))
	pos := (rank - 1) % 6 * 5
	switch {
	case rank <= 6:
		r.SQR3.ReplaceBits(uint32(channel), 0x1F, pos)
	case rank <= 12:
		r.SQR2.ReplaceBits(uint32(channel), 0x1F, pos)
	default:
		r.SQR1.ReplaceBits(uint32(channel), 0x1F, pos)
	}
	if channel < 10 {
		r.SMPR2.ReplaceBits(uint32(sampling), 0x7, channel*3)
	} else {
		r.SMPR1.ReplaceBits(uint32(sampling), 0x7, (channel-10)*3)
	}
}

func (registerHAL) EnableADC(ctrl core.ADCController) {
	adcController(uint8(ctrl)).CR2.SetBits(1)
}

func (registerHAL) StartRegular(ctrl core.ADCController) {
	adcController(uint8(ctrl)).CR2.SetBits(1 << 30)
}

func (registerHAL) DataAddress(ctrl core.ADCController) uintptr {
	return uintptr(unsafe.Pointer(&adcController(uint8(ctrl)).DR))
}

func (registerHAL) ReadConversion(ctrl core.ADCController) uint32 {
	return adcController(uint8(ctrl)).DR.Get()
}

// conversionDone reports the end-of-conversion flag.
func conversionDone(ctrl core.ADCController) bool {
	return adcController(uint8(ctrl)).SR.HasBits(1 << 1)
}
