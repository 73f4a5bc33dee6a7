//go:build stm32f4

package main

import (
	"time"

	"f4periph/core"
)

var bootTime time.Time

// InitClock records the tick origin; core ticks are microseconds since boot.
func InitClock() {
	bootTime = time.Now()
}

// UpdateSystemTime updates the core timer from the runtime clock.
// Called once per main loop iteration.
func UpdateSystemTime() {
	core.SetTime(uint32(time.Since(bootTime).Microseconds()))
}
