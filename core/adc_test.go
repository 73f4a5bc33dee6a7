package core_test

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"f4periph/core"
)

func TestADCInitOrder(t *testing.T) {
	ctx, hal := newContext(t, testTables())

	if err := ctx.ADC.Init(adcDMA); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	want := []string{
		"EnableClock(3,0x100)",
		"SetCommonPrescaler(1)",
		"ConfigureADC(0)",
		"ConfigureRegular(0,len=2,dma=true)",
		"ConfigureChannel(0,rank=2,ch=16)",
		"ConfigureChannel(0,rank=1,ch=17)",
		"EnableClock(0,0x400000)",
		"ConfigureStream(1,0,ch=0,count=2)",
		"SetFIFO(1,0,false)",
		"SetTransferCompleteIRQ(1,0,true)",
		"SetPriority(56,4)",
		"EnableIRQ(56)",
		"SetStreamEnabled(1,0,true)",
		"EnableADC(0)",
		"SetPriority(18,0)",
		"EnableIRQ(18)",
	}
	if diff := cmp.Diff(want, hal.Calls()); diff != "" {
		t.Errorf("Init call sequence mismatch (-want +got):\n%s", diff)
	}

	// The stream moves one word per bound channel into the instance's slots.
	s := hal.Stream(core.DMA2, 0)
	if s.Config.Count != 2 {
		t.Errorf("Expected element count 2, got %d", s.Config.Count)
	}
	if s.Config.MemAddr != ctx.ADC.Samples().Addr(0) {
		t.Errorf("Stream destination %#x is not the first sample slot", s.Config.MemAddr)
	}
	if s.Config.PeriphAddr != hal.DataAddress(core.ADC1) {
		t.Errorf("Stream source %#x is not the ADC data register", s.Config.PeriphAddr)
	}

	if st, _ := ctx.ADC.State(adcDMA); st != core.ADCRunning {
		t.Errorf("Expected ADCRunning, got %d", st)
	}
	if err := ctx.ADC.Init(adcDMA); !errors.Is(err, core.ErrInitialized) {
		t.Errorf("Expected ErrInitialized, got %v", err)
	}
}

func TestADCDMADelivery(t *testing.T) {
	ctx, hal := initContext(t, testTables())
	hal.SetInput(core.ADC1, 16, 1000)
	hal.SetInput(core.ADC1, 17, 1200)

	if err := ctx.ADC.StartConversion(adcDMA); err != nil {
		t.Fatalf("StartConversion failed: %v", err)
	}
	if !hal.Stream(core.DMA2, 0).TCPending {
		t.Fatal("Expected a transfer-complete flag")
	}
	ctx.DMA.HandleTransferComplete(streamADC)

	want := map[core.ChannelID]uint32{chTemp: 1000, chVref: 1200}
	for ch, v := range want {
		got, err := ctx.ADC.ChannelValue(ch)
		if err != nil {
			t.Fatalf("ChannelValue(%d) failed: %v", ch, err)
		}
		if got != v {
			t.Errorf("Channel %d: expected %d, got %d", ch, v, got)
		}
	}
	if gen, _ := ctx.ADC.Generation(adcDMA); gen != 1 {
		t.Errorf("Expected generation 1, got %d", gen)
	}

	// A later sequence overwrites in place.
	hal.SetInput(core.ADC1, 16, 2000)
	_ = ctx.ADC.StartConversion(adcDMA)
	ctx.DMA.HandleTransferComplete(streamADC)
	if got, _ := ctx.ADC.ChannelValue(chTemp); got != 2000 {
		t.Errorf("Expected 2000 after second sequence, got %d", got)
	}
	if gen, _ := ctx.ADC.Generation(adcDMA); gen != 2 {
		t.Errorf("Expected generation 2, got %d", gen)
	}
}

func TestADCInterruptDelivery(t *testing.T) {
	ctx, hal := initContext(t, testTables())
	hal.SetInput(core.ADC2, 1, 3000)

	if err := ctx.ADC.StartConversion(adcIRQ); err != nil {
		t.Fatalf("StartConversion failed: %v", err)
	}
	ctx.ADC.HandleInterrupt(adcIRQ)

	if got, _ := ctx.ADC.ChannelValue(chPot); got != 3000 {
		t.Errorf("Expected 3000, got %d", got)
	}
	if gen, _ := ctx.ADC.Generation(adcIRQ); gen != 1 {
		t.Errorf("Expected generation 1, got %d", gen)
	}

	// DMA instances ignore the conversion interrupt.
	ctx.ADC.HandleInterrupt(adcDMA)
	if gen, _ := ctx.ADC.Generation(adcDMA); gen != 0 {
		t.Errorf("Expected DMA generation 0, got %d", gen)
	}
}

func TestADCErrors(t *testing.T) {
	ctx, hal := newContext(t, testTables())

	if err := ctx.ADC.StartConversion(adcDMA); !errors.Is(err, core.ErrNotRunning) {
		t.Errorf("Before init: expected ErrNotRunning, got %v", err)
	}
	if err := ctx.ADC.StartConversion(adcLast); !errors.Is(err, core.ErrRange) {
		t.Errorf("Expected ErrRange, got %v", err)
	}
	if _, err := ctx.ADC.ChannelValue(chLast); !errors.Is(err, core.ErrRange) {
		t.Errorf("Expected ErrRange, got %v", err)
	}
	if _, err := ctx.ADC.Generation(adcLast); !errors.Is(err, core.ErrRange) {
		t.Errorf("Expected ErrRange, got %v", err)
	}
	if calls := hal.Calls(); len(calls) != 0 {
		t.Errorf("Expected no hardware access, got %v", calls)
	}

	hal.RejectADC = true
	if err := ctx.ADC.Init(adcDMA); !errors.Is(err, core.ErrConfigRejected) {
		t.Errorf("Expected ErrConfigRejected, got %v", err)
	}
	if st, _ := ctx.ADC.State(adcDMA); st != core.ADCUninitialized {
		t.Errorf("Expected ADCUninitialized after rejection, got %d", st)
	}
}

func TestADCTableValidation(t *testing.T) {
	d, _ := testStreams().Get(streamADC)
	d.Circular = false
	notCircular := core.NewTable[core.StreamID](d)

	tests := []struct {
		name     string
		streams  core.Table[core.StreamID, core.StreamDescriptor]
		adcs     core.Table[core.ADCID, core.ADCDescriptor]
		channels core.Table[core.ChannelID, core.ChannelBinding]
	}{
		{
			name:    "length mismatch",
			streams: testStreams(),
			adcs: core.NewTable[core.ADCID](core.ADCDescriptor{
				Regular: core.RegularConfig{Length: 3},
			}),
			channels: core.NewTable[core.ChannelID](core.ChannelBinding{Rank: 1}),
		},
		{
			name:    "duplicate rank",
			streams: testStreams(),
			adcs: core.NewTable[core.ADCID](core.ADCDescriptor{
				Regular: core.RegularConfig{Length: 2},
			}),
			channels: core.NewTable[core.ChannelID](
				core.ChannelBinding{Rank: 1},
				core.ChannelBinding{Rank: 1},
			),
		},
		{
			name:    "unknown instance",
			streams: testStreams(),
			adcs: core.NewTable[core.ADCID](core.ADCDescriptor{
				Regular: core.RegularConfig{Length: 1},
			}),
			channels: core.NewTable[core.ChannelID](core.ChannelBinding{ADC: 4, Rank: 1}),
		},
		{
			name:     "stream not circular",
			streams:  notCircular,
			adcs:     testADCs(),
			channels: testChannels(),
		},
	}
	for _, tt := range tests {
		dma, err := core.NewDMAManager(nil, tt.streams)
		if err != nil {
			t.Fatalf("%s: NewDMAManager failed: %v", tt.name, err)
		}
		if _, err := core.NewADCSampler(nil, dma, tt.adcs, tt.channels); !errors.Is(err, core.ErrBadDescriptor) {
			t.Errorf("%s: expected ErrBadDescriptor, got %v", tt.name, err)
		}
	}
}

func TestSampleBufferNoTornReads(t *testing.T) {
	buf := core.NewSampleBuffer(4)
	patterns := []uint32{0x00000000, 0xFFFFFFFF, 0x0F0F0F0F, 0xF0F0F0F0}
	valid := make(map[uint32]bool)
	for _, p := range patterns {
		valid[p] = true
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		r := rand.New(rand.NewSource(1))
		for {
			select {
			case <-done:
				return
			default:
			}
			slot := r.Intn(buf.Len())
			buf.StoreAddr(buf.Addr(slot), patterns[r.Intn(len(patterns))])
		}
	}()

	for i := 0; i < 100000; i++ {
		if v := buf.Load(i % buf.Len()); !valid[v] {
			t.Fatalf("Torn read: %#x", v)
		}
	}
	close(done)
	wg.Wait()
}

func TestSampleBufferStoreAddr(t *testing.T) {
	buf := core.NewSampleBuffer(2)

	if !buf.StoreAddr(buf.Addr(1), 7) || buf.Load(1) != 7 {
		t.Error("StoreAddr on slot 1 failed")
	}
	if buf.StoreAddr(buf.Addr(0)+1, 7) {
		t.Error("Unaligned address accepted")
	}
	if buf.StoreAddr(buf.Addr(1)+4, 7) {
		t.Error("Address past the end accepted")
	}
	if buf.Addr(2) != 0 {
		t.Error("Expected zero address past the end")
	}
}
