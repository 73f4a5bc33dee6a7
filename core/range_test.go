package core_test

import (
	"errors"
	"testing"

	"f4periph/core"
)

func TestOutOfRangeTouchesNoHardware(t *testing.T) {
	ctx, hal := initContext(t, testTables())

	type op struct {
		name string
		call func() error
	}
	ops := func(pin core.PinID, stream core.StreamID, bus core.BusID, adc core.ADCID, ch core.ChannelID) []op {
		buf := []byte{0xA5, 0x5A}
		return []op{
			{"gpio write", func() error { return ctx.GPIO.Write(pin, true) }},
			{"gpio toggle", func() error { return ctx.GPIO.Toggle(pin) }},
			{"gpio read", func() error { _, err := ctx.GPIO.Read(pin); return err }},
			{"gpio subscribe", func() error { return ctx.GPIO.Subscribe(pin, func(core.PinID) {}) }},

			{"dma init", func() error {
				return ctx.DMA.Init(stream, core.Binding{Source: 0x4001204C, Dest: 0x20000000, Count: 2})
			}},
			{"dma enable", func() error { return ctx.DMA.EnableStream(stream) }},
			{"dma disable", func() error { return ctx.DMA.DisableStream(stream) }},
			{"dma binding", func() error { _, _, err := ctx.DMA.Binding(stream); return err }},

			{"spi init", func() error { return ctx.SPI.Init(bus) }},
			{"spi select", func() error { return ctx.SPI.Select(bus) }},
			{"spi deselect", func() error { return ctx.SPI.Deselect(bus) }},
			{"spi write", func() error { return ctx.SPI.Write(bus, buf) }},
			{"spi read", func() error { return ctx.SPI.Read(bus, make([]byte, 2)) }},
			{"spi transfer", func() error { return ctx.SPI.Transfer(bus, buf, make([]byte, 2)) }},
			{"spi device", func() error { _, err := ctx.SPI.Device(bus); return err }},

			{"adc init", func() error { return ctx.ADC.Init(adc) }},
			{"adc start", func() error { return ctx.ADC.StartConversion(adc) }},
			{"adc state", func() error { _, err := ctx.ADC.State(adc); return err }},
			{"adc generation", func() error { _, err := ctx.ADC.Generation(adc); return err }},
			{"adc value", func() error { _, err := ctx.ADC.ChannelValue(ch); return err }},
			{"adc channel", func() error { _, err := ctx.ADC.ChannelADC(ch); return err }},

			{"query", func() error { return ctx.Query(ch, 100) }},
			{"bind trigger", func() error { return ctx.BindTrigger(pin, ch) }},
		}
	}

	ranges := []struct {
		name string
		ops  []op
	}{
		{"last", ops(pinLast, streamLast, busLast, adcLast, chLast)},
		{"max", ops(0xFF, 0xFF, 0xFF, 0xFF, 0xFF)},
	}
	for _, r := range ranges {
		for _, o := range r.ops {
			t.Run(r.name+"/"+o.name, func(t *testing.T) {
				hal.ResetCalls()
				if err := o.call(); !errors.Is(err, core.ErrRange) {
					t.Errorf("Expected ErrRange, got %v", err)
				}
				if calls := hal.Calls(); len(calls) != 0 {
					t.Errorf("Expected no hardware access, got %v", calls)
				}
			})
		}
	}

	// Interrupt entry points have no error return; a bad id must be ignored.
	hal.ResetCalls()
	ctx.DMA.HandleTransferComplete(streamLast)
	ctx.ADC.HandleInterrupt(adcLast)
	ctx.GPIO.HandleEXTI(16)
	if calls := hal.Calls(); len(calls) != 0 {
		t.Errorf("Interrupt paths touched hardware for unknown ids: %v", calls)
	}
}
