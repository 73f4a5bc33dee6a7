package core

import "f4periph/protocol"

// maxSPIRead keeps an spi_data reply inside one block.
const maxSPIRead = protocol.MessagePayloadMax - 8

// RegisterPeripheralCommands wires every host command to the components of c.
// Replies beyond the closing status go through send.
func RegisterPeripheralCommands(r *CommandRegistry, c *Context, send Replier) {
	r.Register(protocol.CmdIdentify, func(data *[]byte) error {
		id := protocol.Identity{
			Version:  protocol.Version,
			Board:    c.Name,
			Pins:     uint32(c.GPIO.Pins().Len()),
			Streams:  uint32(c.DMA.Streams().Len()),
			Buses:    uint32(c.SPI.Buses().Len()),
			ADCs:     uint32(c.ADC.Instances().Len()),
			Channels: uint32(c.ADC.Channels().Len()),
		}
		send(protocol.RspIdentify, id.Encode)
		return nil
	})

	r.Register(protocol.CmdGPIORead, func(data *[]byte) error {
		var pin uint32
		if err := decode(data, &pin); err != nil {
			return err
		}
		id, err := idArg[PinID](pin)
		if err != nil {
			return err
		}
		high, err := c.GPIO.Read(id)
		if err != nil {
			return err
		}
		send(protocol.RspGPIOState, func(out protocol.OutputBuffer) {
			protocol.EncodeArgs(out, pin, boolToUint(high))
		})
		return nil
	})

	r.Register(protocol.CmdGPIOWrite, func(data *[]byte) error {
		var pin, value uint32
		if err := decode(data, &pin, &value); err != nil {
			return err
		}
		id, err := idArg[PinID](pin)
		if err != nil {
			return err
		}
		return c.GPIO.Write(id, value != 0)
	})

	r.Register(protocol.CmdGPIOToggle, func(data *[]byte) error {
		var pin uint32
		if err := decode(data, &pin); err != nil {
			return err
		}
		id, err := idArg[PinID](pin)
		if err != nil {
			return err
		}
		return c.GPIO.Toggle(id)
	})

	r.Register(protocol.CmdSPISelect, func(data *[]byte) error {
		var bus uint32
		if err := decode(data, &bus); err != nil {
			return err
		}
		id, err := idArg[BusID](bus)
		if err != nil {
			return err
		}
		return c.SPI.Select(id)
	})

	r.Register(protocol.CmdSPIDeselect, func(data *[]byte) error {
		var bus uint32
		if err := decode(data, &bus); err != nil {
			return err
		}
		id, err := idArg[BusID](bus)
		if err != nil {
			return err
		}
		return c.SPI.Deselect(id)
	})

	r.Register(protocol.CmdSPIWrite, func(data *[]byte) error {
		var bus uint32
		if err := decode(data, &bus); err != nil {
			return err
		}
		buf, err := protocol.DecodeVLQBytes(data)
		if err != nil {
			return ErrMalformed
		}
		id, err := idArg[BusID](bus)
		if err != nil {
			return err
		}
		return c.SPI.Write(id, buf)
	})

	r.Register(protocol.CmdSPIRead, func(data *[]byte) error {
		var bus, count uint32
		if err := decode(data, &bus, &count); err != nil {
			return err
		}
		id, err := idArg[BusID](bus)
		if err != nil {
			return err
		}
		if count > maxSPIRead {
			return ErrLength
		}
		buf := make([]byte, count)
		if err := c.SPI.Read(id, buf); err != nil {
			return err
		}
		send(protocol.RspSPIData, func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, bus)
			protocol.EncodeVLQBytes(out, buf)
		})
		return nil
	})

	r.Register(protocol.CmdADCStart, func(data *[]byte) error {
		var adc uint32
		if err := decode(data, &adc); err != nil {
			return err
		}
		id, err := idArg[ADCID](adc)
		if err != nil {
			return err
		}
		return c.ADC.StartConversion(id)
	})

	r.Register(protocol.CmdADCValue, func(data *[]byte) error {
		var ch uint32
		if err := decode(data, &ch); err != nil {
			return err
		}
		id, err := idArg[ChannelID](ch)
		if err != nil {
			return err
		}
		v, err := c.ADC.ChannelValue(id)
		if err != nil {
			return err
		}
		adc, _ := c.ADC.ChannelADC(id)
		gen, _ := c.ADC.Generation(adc)
		send(protocol.RspADCState, func(out protocol.OutputBuffer) {
			protocol.EncodeArgs(out, ch, v, gen)
		})
		return nil
	})

	r.Register(protocol.CmdADCQuery, func(data *[]byte) error {
		var ch, period uint32
		if err := decode(data, &ch, &period); err != nil {
			return err
		}
		id, err := idArg[ChannelID](ch)
		if err != nil {
			return err
		}
		return c.Query(id, period)
	})

	r.Register(protocol.CmdTraceDump, func(data *[]byte) error {
		for _, evt := range TraceSnapshot() {
			entry := protocol.TraceEntry{Kind: uint32(evt.Kind), ID: uint32(evt.ID), Tick: evt.Tick, Value: evt.Value}
			send(protocol.RspTrace, entry.Encode)
		}
		return nil
	})
}

// ForwardEvents drains the context's event queue to the host as sample events.
func ForwardEvents(c *Context, send Replier) int {
	return c.Poll(func(e Event) {
		ev := protocol.SampleEvent{Channel: uint32(e.Channel), Value: e.Value, Tick: e.Tick}
		send(protocol.RspSampleEvent, ev.Encode)
	})
}

// idArg narrows a wire id to a logical id. Values that do not fit are out of
// range rather than wrapped onto a valid id.
func idArg[K ID](v uint32) (K, error) {
	if v > 0xFF {
		return 0, ErrRange
	}
	return K(v), nil
}

func decode(data *[]byte, dst ...*uint32) error {
	if err := protocol.DecodeArgs(data, dst...); err != nil {
		return ErrMalformed
	}
	return nil
}

func boolToUint(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
