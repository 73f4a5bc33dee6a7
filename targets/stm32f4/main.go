//go:build stm32f4

package main

import (
	"machine"
	"time"

	"f4periph/board"
	"f4periph/core"
	"f4periph/protocol"
)

// Leave room for the largest reply block before flushing.
const flushThreshold = protocol.MessageLengthMax

var (
	periph *core.Context
	uart   = machine.Serial

	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	link         *protocol.Link

	msgerrors uint32
)

func main() {
	err := uart.Configure(machine.UARTConfig{BaudRate: 250000})
	if err != nil {
		return
	}
	InitClock()

	core.SetDebugWriter(func(s string) {
		uart.Write([]byte(s))
		uart.Write([]byte("\r\n"))
	})

	periph, err = core.NewContext(registerHAL{}, board.Tables(), core.Options{})
	if err != nil {
		halt(err)
	}
	installHandlers()
	if err := periph.Init(); err != nil {
		// A rejected subsystem leaves the rest usable; the host sees
		// the failures as status codes.
		core.DebugPrintln("init: " + err.Error())
	}

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	registry := core.NewCommandRegistry()
	core.RegisterPeripheralCommands(registry, periph, send)

	link = protocol.NewLink(outputBuffer, registry.Handler(send))
	// Replies queued for the previous host session are stale.
	link.SetResetCallback(outputBuffer.Reset)
	link.SetPanicCallback(core.RecordCommandPanic)
	link.SetFlushCallback(flush)

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					core.DumpTrace()
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			UpdateSystemTime()
			readUART()

			if inputBuffer.Available() > 0 {
				link.Receive(inputBuffer)
			}

			periph.Tick(core.GetTime())
			core.ForwardEvents(periph, send)
			flush()
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// send is the Replier used by command handlers and event forwarding.
func send(id uint16, args func(protocol.OutputBuffer)) {
	if outputBuffer.Free() < flushThreshold {
		flush()
	}
	link.Send(id, args)
}

func readUART() {
	for uart.Buffered() > 0 && inputBuffer.Free() > 0 {
		b, err := uart.ReadByte()
		if err != nil {
			msgerrors++
			return
		}
		inputBuffer.Write([]byte{b})
	}
}

func flush() {
	result := outputBuffer.Result()
	if len(result) == 0 {
		return
	}
	if _, err := uart.Write(result); err != nil {
		msgerrors++
	}
	outputBuffer.Reset()
}

// halt reports a fatal board description error and blinks the LED forever.
func halt(err error) {
	core.SetDebugEnabled(true)
	core.DebugPrintln("fatal: " + err.Error())
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.Set(!led.Get())
		time.Sleep(100 * time.Millisecond)
	}
}
