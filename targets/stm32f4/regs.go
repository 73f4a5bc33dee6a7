//go:build stm32f4

package main

import (
	"runtime/volatile"
	"unsafe"
)

// STM32F405/407 memory map
const (
	rccBase    = 0x40023800
	gpioBase   = 0x40020000
	gpioStride = 0x400
	syscfgBase = 0x40013800
	extiBase   = 0x40013C00
	dma1Base   = 0x40026000
	dma2Base   = 0x40026400
	spi1Base   = 0x40013000
	spi2Base   = 0x40003800
	spi3Base   = 0x40003C00
	adc1Base   = 0x40012000
	adcStride  = 0x100
	adcCommon  = 0x40012300
	nvicISER   = 0xE000E100
	nvicIPR    = 0xE000E400
)

type rccRegs struct {
	CR, PLLCFGR, CFGR, CIR          volatile.Register32
	AHB1RSTR, AHB2RSTR, AHB3RSTR, _ volatile.Register32
	APB1RSTR, APB2RSTR, _, _        volatile.Register32
	AHB1ENR, AHB2ENR, AHB3ENR, _    volatile.Register32
	APB1ENR, APB2ENR                volatile.Register32
}

type gpioRegs struct {
	MODER, OTYPER, OSPEEDR, PUPDR volatile.Register32
	IDR, ODR, BSRR, LCKR          volatile.Register32
	AFR                           [2]volatile.Register32
}

type syscfgRegs struct {
	MEMRMP, PMC volatile.Register32
	EXTICR      [4]volatile.Register32
}

type extiRegs struct {
	IMR, EMR, RTSR, FTSR, SWIER, PR volatile.Register32
}

type dmaStreamRegs struct {
	CR, NDTR, PAR, M0AR, M1AR, FCR volatile.Register32
}

type dmaRegs struct {
	ISR    [2]volatile.Register32 // LISR, HISR
	IFCR   [2]volatile.Register32 // LIFCR, HIFCR
	Stream [8]dmaStreamRegs
}

type spiRegs struct {
	CR1, CR2, SR, DR, CRCPR, RXCRCR, TXCRCR, I2SCFGR, I2SPR volatile.Register32
}

type adcRegs struct {
	SR, CR1, CR2, SMPR1, SMPR2 volatile.Register32
	JOFR                       [4]volatile.Register32
	HTR, LTR                   volatile.Register32
	SQR1, SQR2, SQR3           volatile.Register32
	JSQR                       volatile.Register32
	JDR                        [4]volatile.Register32
	DR                         volatile.Register32
}

type adcCommonRegs struct {
	CSR, CCR, CDR volatile.Register32
}

var (
	rcc    = (*rccRegs)(unsafe.Pointer(uintptr(rccBase)))
	syscfg = (*syscfgRegs)(unsafe.Pointer(uintptr(syscfgBase)))
	exti   = (*extiRegs)(unsafe.Pointer(uintptr(extiBase)))
	adcCCR = (*adcCommonRegs)(unsafe.Pointer(uintptr(adcCommon)))
)

func gpioPort(port uint8) *gpioRegs {
	return (*gpioRegs)(unsafe.Pointer(uintptr(gpioBase + gpioStride*uintptr(port))))
}

func dmaController(ctrl uint8) *dmaRegs {
	if ctrl == 0 {
		return (*dmaRegs)(unsafe.Pointer(uintptr(dma1Base)))
	}
	return (*dmaRegs)(unsafe.Pointer(uintptr(dma2Base)))
}

var spiBases = [3]uintptr{spi1Base, spi2Base, spi3Base}

func spiController(ctrl uint8) *spiRegs {
	return (*spiRegs)(unsafe.Pointer(spiBases[ctrl]))
}

func adcController(ctrl uint8) *adcRegs {
	return (*adcRegs)(unsafe.Pointer(uintptr(adc1Base + adcStride*uintptr(ctrl))))
}

func nvicEnable(irq int16) {
	reg := (*volatile.Register32)(unsafe.Pointer(uintptr(nvicISER + 4*uintptr(irq/32))))
	reg.Set(1 << (uint32(irq) % 32))
}

func nvicPriority(irq int16, priority uint8) {
	reg := (*volatile.Register8)(unsafe.Pointer(uintptr(nvicIPR + uintptr(irq))))
	reg.Set(priority << 4) // 4 implemented priority bits
}
