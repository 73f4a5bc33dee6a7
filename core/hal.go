package core

// The hardware-access layer. Core code never touches registers itself; a target
// (targets/stm32f4) implements these interfaces over memory-mapped registers and
// core/coretest implements them as a recording simulator.

// ClockBus selects the RCC enable register a Clock lives in.
type ClockBus uint8

const (
	AHB1 ClockBus = iota
	AHB2
	APB1
	APB2
)

// Clock names one peripheral clock-enable bit.
type Clock struct {
	Bus  ClockBus
	Mask uint32
}

// IRQ is an NVIC interrupt number.
type IRQ int16

// ClockTree enables clock domains. Enabling an enabled clock is a no-op.
type ClockTree interface {
	EnableClock(c Clock)
}

// InterruptController arms NVIC lines.
type InterruptController interface {
	SetPriority(irq IRQ, priority uint8)
	EnableIRQ(irq IRQ)
}

// Port identifies a GPIO port (A..I).
type Port uint8

const (
	PortA Port = iota
	PortB
	PortC
	PortD
	PortE
	PortF
	PortG
	PortH
	PortI
)

// PinMode is the electrical mode of a pin.
type PinMode uint8

const (
	ModeInput PinMode = iota
	ModeOutput
	ModeAlternate
	ModeAnalog
)

// Speed is the output drive speed.
type Speed uint8

const (
	SpeedLow Speed = iota
	SpeedMedium
	SpeedHigh
	SpeedVeryHigh
)

// OutputType selects push-pull or open-drain drive.
type OutputType uint8

const (
	PushPull OutputType = iota
	OpenDrain
)

// Pull is the pin's pull resistor configuration.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Trigger is the edge polarity of an external interrupt line.
type Trigger uint8

const (
	TriggerRising Trigger = 1 << iota
	TriggerFalling
	TriggerBoth = TriggerRising | TriggerFalling
)

// PinConfig is the electrical configuration applied to one pin.
type PinConfig struct {
	Mode       PinMode
	Speed      Speed
	OutputType OutputType
	Pull       Pull
	Alternate  uint8
}

// GPIOHardware is the register-level GPIO and EXTI capability.
type GPIOHardware interface {
	// ConfigurePin applies cfg to one pin; a non-nil error means the
	// combination was rejected.
	ConfigurePin(port Port, pin uint8, cfg PinConfig) error
	SetPin(port Port, pin uint8, high bool)
	TogglePin(port Port, pin uint8)
	// OutputSet reads the output data register bit.
	OutputSet(port Port, pin uint8) bool
	// InputSet reads the input data register bit.
	InputSet(port Port, pin uint8) bool
	// ConfigureEXTI sets the edge detector of line, routes port to it
	// through the SYSCFG multiplexer and unmasks it.
	ConfigureEXTI(line uint8, port Port, trigger Trigger)
	// ClearEXTI clears the latched pending flag of line.
	ClearEXTI(line uint8)
}

// DMAController identifies DMA1 or DMA2.
type DMAController uint8

const (
	DMA1 DMAController = iota
	DMA2
)

// Direction is the DMA transfer direction.
type Direction uint8

const (
	PeriphToMemory Direction = iota
	MemoryToPeriph
	MemoryToMemory
)

// DMAPriority is the stream arbitration priority.
type DMAPriority uint8

const (
	PriorityLow DMAPriority = iota
	PriorityMedium
	PriorityHigh
	PriorityVeryHigh
)

// DataSize is a DMA transfer word size.
type DataSize uint8

const (
	SizeByte DataSize = iota
	SizeHalfWord
	SizeWord
)

// StreamConfig is everything applied to a stream in one configuration step.
type StreamConfig struct {
	Channel         uint8
	Direction       Direction
	Priority        DMAPriority
	Circular        bool
	PeriphIncrement bool
	MemIncrement    bool
	PeriphSize      DataSize
	MemSize         DataSize
	Count           uint16
	PeriphAddr      uintptr
	MemAddr         uintptr
}

// DMAHardware is the register-level DMA capability.
type DMAHardware interface {
	ConfigureStream(ctrl DMAController, stream uint8, cfg StreamConfig) error
	SetFIFO(ctrl DMAController, stream uint8, enabled bool)
	SetTransferCompleteIRQ(ctrl DMAController, stream uint8, enabled bool)
	SetStreamEnabled(ctrl DMAController, stream uint8, enabled bool)
	ClearTransferComplete(ctrl DMAController, stream uint8)
}

// SPIController identifies SPI1..SPI3.
type SPIController uint8

const (
	SPI1 SPIController = iota
	SPI2
	SPI3
)

// SPI configuration vocabulary.
type (
	SPIDirection uint8
	SPIRole      uint8
	DataWidth    uint8
	Polarity     uint8
	Phase        uint8
	NSSMode      uint8
	BitOrder     uint8
	SPIProtocol  uint8
)

const (
	FullDuplex SPIDirection = iota
	SimplexRx
	HalfDuplexRx
	HalfDuplexTx
)

const (
	RoleSlave SPIRole = iota
	RoleMaster
)

const (
	Width8 DataWidth = iota
	Width16
)

const (
	PolarityLow Polarity = iota
	PolarityHigh
)

const (
	PhaseFirstEdge Phase = iota
	PhaseSecondEdge
)

const (
	NSSSoft NSSMode = iota
	NSSHardInput
	NSSHardOutput
)

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

const (
	ProtocolMotorola SPIProtocol = iota
	ProtocolTI
)

// SPIConfig is the base configuration checked by the hardware layer.
type SPIConfig struct {
	Direction   SPIDirection
	Role        SPIRole
	Width       DataWidth
	Polarity    Polarity
	Phase       Phase
	NSS         NSSMode
	BaudDivisor uint8 // log2 of the prescaler minus one: 0 = /2 ... 7 = /256
	BitOrder    BitOrder
	CRC         bool
}

// SPIHardware is the register-level SPI capability.
type SPIHardware interface {
	ConfigureSPI(ctrl SPIController, cfg SPIConfig) error
	SetCRCPolynomial(ctrl SPIController, poly uint16)
	SetProtocol(ctrl SPIController, p SPIProtocol)
	EnableSPI(ctrl SPIController)
	TxEmpty(ctrl SPIController) bool
	RxNotEmpty(ctrl SPIController) bool
	WriteData(ctrl SPIController, v uint16)
	ReadData(ctrl SPIController) uint16
}

// ADCController identifies ADC1..ADC3.
type ADCController uint8

const (
	ADC1 ADCController = iota
	ADC2
	ADC3
)

// ADC configuration vocabulary.
type (
	Resolution   uint8
	Alignment    uint8
	ADCPrescaler uint8
	ADCTrigger   uint8
	SamplingTime uint8
)

const (
	Resolution12 Resolution = iota
	Resolution10
	Resolution8
	Resolution6
)

const (
	AlignRight Alignment = iota
	AlignLeft
)

const (
	PrescalerDiv2 ADCPrescaler = iota
	PrescalerDiv4
	PrescalerDiv6
	PrescalerDiv8
)

const (
	TriggerSoftware ADCTrigger = iota
	TriggerTimer1CC1
	TriggerTimer2TRGO
	TriggerEXTI11
)

const (
	Sampling3 SamplingTime = iota
	Sampling15
	Sampling28
	Sampling56
	Sampling84
	Sampling112
	Sampling144
	Sampling480
)

// ADCConfig is the instance-level configuration.
type ADCConfig struct {
	Resolution Resolution
	Alignment  Alignment
	Scan       bool
}

// RegularConfig is the regular-sequence configuration.
type RegularConfig struct {
	Trigger       ADCTrigger
	Length        uint8
	Discontinuous bool
	Continuous    bool
	DMA           bool
}

// ADCHardware is the register-level ADC capability.
type ADCHardware interface {
	SetCommonPrescaler(p ADCPrescaler)
	ConfigureADC(ctrl ADCController, cfg ADCConfig) error
	ConfigureRegular(ctrl ADCController, cfg RegularConfig) error
	ConfigureChannel(ctrl ADCController, rank uint8, channel uint8, sampling SamplingTime)
	EnableADC(ctrl ADCController)
	StartRegular(ctrl ADCController)
	// DataAddress is the bus address of the data register, used as a DMA source.
	DataAddress(ctrl ADCController) uintptr
	// ReadConversion reads the data register, clearing end-of-conversion.
	ReadConversion(ctrl ADCController) uint32
}

// HAL is the complete hardware-access capability a PeripheralContext needs.
type HAL interface {
	ClockTree
	InterruptController
	GPIOHardware
	DMAHardware
	SPIHardware
	ADCHardware
}
