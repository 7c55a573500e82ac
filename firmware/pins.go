//go:build tinygo

package main

import "machine"

const (
	// Sampling
	SAMPLE_INTERVAL_US = 1000 // 1 kHz
	BURST_SAMPLES      = 16   // Readings per serial line

	// ADC
	ADC_REFERENCE_MV = 3300
	ADC_RESOLUTION   = 12 // 0-4095
	ADC_SHIFT        = 16 - ADC_RESOLUTION

	// Hall sensor on the bell clapper
	PIN_HALL = machine.A1

	// Common cathode RGB status LED
	PIN_LED_R = machine.D7
	PIN_LED_G = machine.D8
	PIN_LED_B = machine.D9
	LED_LEVEL = 0x80 // Channel values at or above this light the LED

	// Serial
	// A line is "ticks,r0,...,r15\n": at most 11 + 16*5 = 91 bytes.
	// 62.5 lines/sec * 91 bytes = ~5.7 kB/s, so 115200 leaves 2x headroom
	// on a real UART. USB CDC ignores the rate.
	UART_BAUD_RATE = 115200
	LINE_MAX       = 96
	CMD_MAX        = 8 // "Lrrggbb"

	// Reset the MCU when the main loop stalls
	WATCHDOG_TIMEOUT_MS = 2000
)
