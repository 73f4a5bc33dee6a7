//go:build stm32f4

package main

import (
	"runtime/interrupt"

	"f4periph/core"
)

// NVIC numbers of the vectors this firmware services.
const (
	irqEXTI0       = 6
	irqEXTI1       = 7
	irqEXTI2       = 8
	irqEXTI3       = 9
	irqEXTI4       = 10
	irqADC         = 18
	irqEXTI9_5     = 23
	irqEXTI15_10   = 40
	irqDMA2Stream0 = 56
)

// installHandlers registers the vector table entries. The peripheral
// components arm the NVIC lines themselves during Init.
func installHandlers() {
	interrupt.New(irqEXTI0, func(interrupt.Interrupt) { handleEXTI(0, 0) })
	interrupt.New(irqEXTI1, func(interrupt.Interrupt) { handleEXTI(1, 1) })
	interrupt.New(irqEXTI2, func(interrupt.Interrupt) { handleEXTI(2, 2) })
	interrupt.New(irqEXTI3, func(interrupt.Interrupt) { handleEXTI(3, 3) })
	interrupt.New(irqEXTI4, func(interrupt.Interrupt) { handleEXTI(4, 4) })
	interrupt.New(irqEXTI9_5, func(interrupt.Interrupt) { handleEXTI(5, 9) })
	interrupt.New(irqEXTI15_10, func(interrupt.Interrupt) { handleEXTI(10, 15) })
	interrupt.New(irqDMA2Stream0, func(interrupt.Interrupt) { handleDMA(core.DMA2, 0) })
	interrupt.New(irqADC, func(interrupt.Interrupt) { handleADC() })
}

// handleEXTI services every pending line in [first, last]; shared vectors
// cover several lines.
func handleEXTI(first, last uint8) {
	pending := exti.PR.Get()
	for line := first; line <= last; line++ {
		if pending&(1<<line) != 0 {
			periph.GPIO.HandleEXTI(line)
		}
	}
}

func handleDMA(ctrl core.DMAController, stream uint8) {
	if !transferComplete(ctrl, stream) {
		return
	}
	periph.DMA.Streams().Each(func(id core.StreamID, d core.StreamDescriptor) {
		if d.Controller == ctrl && d.Stream == stream {
			periph.DMA.HandleTransferComplete(id)
		}
	})
}

// handleADC delivers end-of-conversion results for instances without DMA.
func handleADC() {
	periph.ADC.Instances().Each(func(id core.ADCID, d core.ADCDescriptor) {
		if conversionDone(d.Controller) {
			periph.ADC.HandleInterrupt(id)
		}
	})
}

