package core_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"f4periph/core"
	"f4periph/core/coretest"
)

func TestGPIOInitOrder(t *testing.T) {
	hal := coretest.New()
	g, err := core.NewGPIORegistry(hal, testPins())
	if err != nil {
		t.Fatalf("NewGPIORegistry failed: %v", err)
	}
	if err := g.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	want := []string{
		"EnableClock(0,0x8)",
		"SetPin(3,12,false)",
		"ConfigurePin(3,12,mode=1)",
		"EnableClock(0,0x2)",
		"SetPin(1,12,false)",
		"ConfigurePin(1,12,mode=1)",
		"EnableClock(0,0x1)",
		"ConfigurePin(0,0,mode=0)",
		"ConfigureEXTI(0,0,1)",
		"SetPriority(6,3)",
		"EnableIRQ(6)",
		"EnableClock(0,0x1)",
		"ConfigurePin(0,1,mode=3)",
	}
	if diff := cmp.Diff(want, hal.Calls()); diff != "" {
		t.Errorf("Init call sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestGPIOInitCollectsRejections(t *testing.T) {
	hal := coretest.New()
	hal.RejectPin(core.PortB, 12)
	hal.RejectPin(core.PortA, 1)
	g, _ := core.NewGPIORegistry(hal, testPins())

	err := g.Init()
	if !errors.Is(err, core.ErrConfigRejected) {
		t.Fatalf("Expected ErrConfigRejected, got %v", err)
	}

	var pins []core.PinID
	for _, e := range multierr.Errors(err) {
		var pe *core.PinError
		if !errors.As(e, &pe) {
			t.Fatalf("Expected PinError, got %T", e)
		}
		pins = append(pins, pe.Pin)
	}
	if diff := cmp.Diff([]core.PinID{pinCS, pinAnalog}, pins); diff != "" {
		t.Errorf("Rejected pins mismatch (-want +got):\n%s", diff)
	}

	// Pins after a rejection are still configured.
	if _, ok := hal.PinConfig(core.PortA, 0); !ok {
		t.Error("Button pin was not configured after an earlier rejection")
	}
	if !hal.Enabled[6] {
		t.Error("Button interrupt was not enabled")
	}
}

func TestGPIORejectedPinSkipsEXTI(t *testing.T) {
	hal := coretest.New()
	hal.RejectPin(core.PortA, 0)
	g, _ := core.NewGPIORegistry(hal, testPins())

	if err := g.Init(); err == nil {
		t.Fatal("Expected an error")
	}
	for _, call := range hal.Calls() {
		if call == "ConfigureEXTI(0,0,1)" || call == "EnableIRQ(6)" {
			t.Errorf("Unexpected %s on a rejected pin", call)
		}
	}
}

func TestGPIOOutOfRangeTouchesNoHardware(t *testing.T) {
	ctx, hal := initContext(t, testTables())

	if err := ctx.GPIO.Write(pinLast, true); !errors.Is(err, core.ErrRange) {
		t.Errorf("Write: expected ErrRange, got %v", err)
	}
	if err := ctx.GPIO.Toggle(pinLast); !errors.Is(err, core.ErrRange) {
		t.Errorf("Toggle: expected ErrRange, got %v", err)
	}
	if _, err := ctx.GPIO.Read(pinLast); !errors.Is(err, core.ErrRange) {
		t.Errorf("Read: expected ErrRange, got %v", err)
	}
	if calls := hal.Calls(); len(calls) != 0 {
		t.Errorf("Expected no hardware access, got %v", calls)
	}
}

func TestGPIOWriteRead(t *testing.T) {
	ctx, _ := initContext(t, testTables())

	for _, level := range []bool{true, false, true} {
		if err := ctx.GPIO.Write(pinLED, level); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		got, err := ctx.GPIO.Read(pinLED)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if got != level {
			t.Errorf("Expected %t after write, got %t", level, got)
		}
	}
}

func TestGPIOOutputsStartLow(t *testing.T) {
	ctx, _ := initContext(t, testTables())

	for _, pin := range []core.PinID{pinLED, pinCS} {
		high, err := ctx.GPIO.Read(pin)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if high {
			t.Errorf("Pin %d is high after init", pin)
		}
	}
}

func TestGPIOToggleTwiceRestores(t *testing.T) {
	ctx, _ := initContext(t, testTables())

	_ = ctx.GPIO.Write(pinLED, true)
	_ = ctx.GPIO.Toggle(pinLED)
	if high, _ := ctx.GPIO.Read(pinLED); high {
		t.Error("Expected low after one toggle")
	}
	_ = ctx.GPIO.Toggle(pinLED)
	if high, _ := ctx.GPIO.Read(pinLED); !high {
		t.Error("Expected high after two toggles")
	}
}

func TestGPIOModeErrors(t *testing.T) {
	ctx, hal := initContext(t, testTables())

	if err := ctx.GPIO.Toggle(pinButton); !errors.Is(err, core.ErrMode) {
		t.Errorf("Toggle input: expected ErrMode, got %v", err)
	}
	if _, err := ctx.GPIO.Read(pinAnalog); !errors.Is(err, core.ErrMode) {
		t.Errorf("Read analog: expected ErrMode, got %v", err)
	}

	hal.Drive(core.PortA, 0, true)
	high, err := ctx.GPIO.Read(pinButton)
	if err != nil || !high {
		t.Errorf("Read input: expected high, got %t (%v)", high, err)
	}
}

func TestGPIOEXTIClearsBeforeSubscribers(t *testing.T) {
	hal := coretest.New()
	g, _ := core.NewGPIORegistry(hal, testPins())

	var pendingAtCall []bool
	err := g.Subscribe(pinButton, func(pin core.PinID) {
		if pin != pinButton {
			t.Errorf("Expected pin %d, got %d", pinButton, pin)
		}
		pendingAtCall = append(pendingAtCall, hal.Pending(0))
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := g.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	hal.Drive(core.PortA, 0, true)
	if !hal.Pending(0) {
		t.Fatal("Rising edge did not latch")
	}
	g.HandleEXTI(0)

	if diff := cmp.Diff([]bool{false}, pendingAtCall); diff != "" {
		t.Errorf("Flag state seen by subscriber (-want +got):\n%s", diff)
	}

	// A falling edge does not latch a rising-only line.
	hal.Drive(core.PortA, 0, false)
	if hal.Pending(0) {
		t.Error("Falling edge latched a rising-only line")
	}
}

func TestGPIOSubscribeErrors(t *testing.T) {
	hal := coretest.New()
	g, _ := core.NewGPIORegistry(hal, testPins())

	noop := func(core.PinID) {}
	tests := []struct {
		name string
		pin  core.PinID
		fn   core.EdgeHandler
		want error
	}{
		{"out of range", pinLast, noop, core.ErrRange},
		{"nil handler", pinButton, nil, core.ErrNilArgument},
		{"no interrupt", pinLED, noop, core.ErrNoInterrupt},
	}
	for _, tt := range tests {
		if err := g.Subscribe(tt.pin, tt.fn); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}

	_ = g.Init()
	if err := g.Subscribe(pinButton, noop); !errors.Is(err, core.ErrInitialized) {
		t.Errorf("After init: expected ErrInitialized, got %v", err)
	}
}

func TestGPIORejectsConflictingLines(t *testing.T) {
	pins := core.NewTable[core.PinID](
		core.PinDescriptor{Port: core.PortA, Pin: 3, Interrupt: &core.PinInterrupt{Line: 3, PortMux: core.PortA}},
		core.PinDescriptor{Port: core.PortC, Pin: 3, Interrupt: &core.PinInterrupt{Line: 3, PortMux: core.PortC}},
	)
	_, err := core.NewGPIORegistry(coretest.New(), pins)
	var pe *core.PinError
	if !errors.As(err, &pe) || pe.Pin != 1 || !errors.Is(err, core.ErrBadDescriptor) {
		t.Errorf("Expected PinError for pin 1 wrapping ErrBadDescriptor, got %v", err)
	}
}
