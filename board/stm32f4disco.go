// Package board declares the peripheral wiring of an STM32F4 Discovery board:
// the logical ids the rest of the firmware uses and the descriptor tables
// behind them.
package board

import "f4periph/core"

// Name is reported by identify.
const Name = "stm32f4disco"

// Logical pins.
const (
	PinDebugTx core.PinID = iota
	PinDebugRx
	PinADC1Ch0
	PinADC1Ch1
	PinSdCardCS
	PinSPI2SCK
	PinSPI2MISO
	PinSPI2MOSI
	PinLED
	PinTrigger
	PinLast
)

// Logical DMA streams.
const (
	StreamADC1 core.StreamID = iota
	StreamLast
)

// Logical SPI buses.
const (
	BusSdCard core.BusID = iota
	BusLast
)

// Logical ADC instances.
const (
	ADCMain core.ADCID = iota
	ADCLast
)

// Logical ADC channels.
const (
	ChannelIn0 core.ChannelID = iota
	ChannelIn1
	ChannelLast
)

// RCC enable bits.
var (
	clockGPIOA = core.Clock{Bus: core.AHB1, Mask: 1 << 0}
	clockGPIOB = core.Clock{Bus: core.AHB1, Mask: 1 << 1}
	clockGPIOC = core.Clock{Bus: core.AHB1, Mask: 1 << 2}
	clockGPIOD = core.Clock{Bus: core.AHB1, Mask: 1 << 3}
	clockDMA2  = core.Clock{Bus: core.AHB1, Mask: 1 << 22}
	clockSPI2  = core.Clock{Bus: core.APB1, Mask: 1 << 14}
	clockADC1  = core.Clock{Bus: core.APB2, Mask: 1 << 8}
)

// NVIC lines.
const (
	IRQEXTI1       core.IRQ = 7
	IRQADC         core.IRQ = 18
	IRQDMA2Stream0 core.IRQ = 56
)

func alternate(af uint8, pull core.Pull) core.PinConfig {
	return core.PinConfig{
		Mode:       core.ModeAlternate,
		Speed:      core.SpeedVeryHigh,
		OutputType: core.PushPull,
		Pull:       pull,
		Alternate:  af,
	}
}

var analog = core.PinConfig{Mode: core.ModeAnalog, Pull: core.PullNone}

// Pins lists every logical pin, indexed by its id.
func Pins() core.Table[core.PinID, core.PinDescriptor] {
	return core.NewTable[core.PinID](
		core.PinDescriptor{Port: core.PortA, Pin: 2, Config: alternate(7, core.PullNone), Clock: clockGPIOA},
		core.PinDescriptor{Port: core.PortA, Pin: 3, Config: alternate(7, core.PullUp), Clock: clockGPIOA},
		core.PinDescriptor{Port: core.PortA, Pin: 0, Config: analog, Clock: clockGPIOA},
		core.PinDescriptor{Port: core.PortA, Pin: 1, Config: analog, Clock: clockGPIOA},
		core.PinDescriptor{
			Port: core.PortB, Pin: 12, Clock: clockGPIOB,
			Config: core.PinConfig{Mode: core.ModeOutput, Speed: core.SpeedHigh, OutputType: core.PushPull},
		},
		core.PinDescriptor{Port: core.PortB, Pin: 13, Config: alternate(5, core.PullNone), Clock: clockGPIOB},
		core.PinDescriptor{Port: core.PortB, Pin: 14, Config: alternate(5, core.PullUp), Clock: clockGPIOB},
		core.PinDescriptor{Port: core.PortB, Pin: 15, Config: alternate(5, core.PullNone), Clock: clockGPIOB},
		core.PinDescriptor{
			Port: core.PortD, Pin: 12, Clock: clockGPIOD,
			Config: core.PinConfig{Mode: core.ModeOutput, Speed: core.SpeedLow, OutputType: core.PushPull},
		},
		core.PinDescriptor{
			Port: core.PortC, Pin: 1, Clock: clockGPIOC,
			Config: core.PinConfig{Mode: core.ModeInput, Pull: core.PullDown},
			Interrupt: &core.PinInterrupt{
				Line:     1,
				Trigger:  core.TriggerRising,
				Enabled:  true,
				PortMux:  core.PortC,
				IRQ:      IRQEXTI1,
				Priority: 5,
			},
		},
	)
}

// Streams lists every logical DMA stream.
func Streams() core.Table[core.StreamID, core.StreamDescriptor] {
	return core.NewTable[core.StreamID](
		core.StreamDescriptor{
			Controller:          core.DMA2,
			Stream:              0,
			Channel:             0,
			Direction:           core.PeriphToMemory,
			Priority:            core.PriorityHigh,
			Circular:            true,
			PeriphIncrement:     false,
			MemIncrement:        true,
			PeriphSize:          core.SizeWord,
			MemSize:             core.SizeWord,
			FIFO:                false,
			InterruptOnComplete: true,
			IRQ:                 IRQDMA2Stream0,
			IRQPriority:         6,
			Clock:               clockDMA2,
		},
	)
}

// Buses lists every logical SPI bus.
func Buses() core.Table[core.BusID, core.BusDescriptor] {
	return core.NewTable[core.BusID](
		core.BusDescriptor{
			Controller: core.SPI2,
			ChipSelect: PinSdCardCS,
			Config: core.SPIConfig{
				Direction:   core.FullDuplex,
				Role:        core.RoleMaster,
				Width:       core.Width8,
				Polarity:    core.PolarityLow,
				Phase:       core.PhaseFirstEdge,
				NSS:         core.NSSSoft,
				BaudDivisor: 2, // 42 MHz APB1 / 8
				BitOrder:    core.MSBFirst,
			},
			CRCPolynomial: 7,
			Protocol:      core.ProtocolMotorola,
			Clock:         clockSPI2,
		},
	)
}

// ADCs lists every ADC instance.
func ADCs() core.Table[core.ADCID, core.ADCDescriptor] {
	return core.NewTable[core.ADCID](
		core.ADCDescriptor{
			Controller: core.ADC1,
			Config: core.ADCConfig{
				Resolution: core.Resolution12,
				Alignment:  core.AlignRight,
				Scan:       true,
			},
			Regular: core.RegularConfig{
				Trigger: core.TriggerSoftware,
				Length:  uint8(ChannelLast),
				DMA:     true,
			},
			Prescaler:   core.PrescalerDiv4,
			Clock:       clockADC1,
			Stream:      StreamADC1,
			IRQ:         IRQADC,
			IRQPriority: 7,
		},
	)
}

// Channels binds each logical channel to its ADC rank.
func Channels() core.Table[core.ChannelID, core.ChannelBinding] {
	return core.NewTable[core.ChannelID](
		core.ChannelBinding{ADC: ADCMain, Rank: 1, Channel: 0, Sampling: core.Sampling84},
		core.ChannelBinding{ADC: ADCMain, Rank: 2, Channel: 1, Sampling: core.Sampling84},
	)
}

// Tables returns the complete board description.
func Tables() core.BoardTables {
	return core.BoardTables{
		Name:     Name,
		Pins:     Pins(),
		Streams:  Streams(),
		Buses:    Buses(),
		ADCs:     ADCs(),
		Channels: Channels(),
		Triggers: []core.TriggerBinding{
			{Pin: PinTrigger, Channel: ChannelIn0},
		},
	}
}
