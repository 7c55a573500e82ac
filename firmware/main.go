//go:build tinygo

//go:generate tinygo flash -target=xiao

// Firmware for the doorbell sensor board. It samples the Hall sensor at
// 1 kHz and streams bursts of raw readings to the host:
//
//	ticks_us,r0,r1,...,r15\n
//
// and accepts LED commands from the host:
//
//	Lrrggbb\n
package main

import (
	"machine"
	"strconv"
	"time"
)

var (
	hall   machine.ADC
	serial = machine.Serial

	burst      [BURST_SAMPLES]uint16
	burstCount int
	lastSample time.Time
	start      time.Time

	line [LINE_MAX]byte

	cmd    [CMD_MAX]byte
	cmdPos int
)

func main() {
	PIN_LED_R.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_LED_G.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_LED_B.Configure(machine.PinConfig{Mode: machine.PinOutput})
	setLED(0, 0, 0)

	machine.InitADC()
	PIN_HALL.Configure(machine.PinConfig{Mode: machine.PinInput})
	hall = machine.ADC{Pin: PIN_HALL}
	hall.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	serial.Configure(machine.UARTConfig{BaudRate: UART_BAUD_RATE})

	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: WATCHDOG_TIMEOUT_MS})
	machine.Watchdog.Start()

	start = time.Now()
	lastSample = start

	for {
		machine.Watchdog.Update()
		processSerial()

		now := time.Now()
		if now.Sub(lastSample) >= SAMPLE_INTERVAL_US*time.Microsecond {
			lastSample = lastSample.Add(SAMPLE_INTERVAL_US * time.Microsecond)
			// Skip missed slots instead of bursting to catch up.
			if now.Sub(lastSample) > SAMPLE_INTERVAL_US*time.Microsecond {
				lastSample = now
			}
			// machine.ADC.Get is left aligned to 16 bits.
			burst[burstCount] = hall.Get() >> ADC_SHIFT
			burstCount++
		}

		if burstCount == BURST_SAMPLES {
			writeBurst(uint64(now.Sub(start).Microseconds()))
			burstCount = 0
		}

		time.Sleep(50 * time.Microsecond)
	}
}

func writeBurst(ticks uint64) {
	b := strconv.AppendUint(line[:0], ticks, 10)
	for _, v := range burst[:burstCount] {
		b = append(b, ',')
		b = strconv.AppendUint(b, uint64(v), 10)
	}
	b = append(b, '\n')
	serial.Write(b)
}

func processSerial() {
	for serial.Buffered() > 0 {
		c, err := serial.ReadByte()
		if err != nil {
			return
		}

		switch {
		case c == '\n' || c == '\r':
			if cmdPos == CMD_MAX-1 && cmd[0] == 'L' {
				handleLED(cmd[1:cmdPos])
			}
			cmdPos = 0
		case c == ' ' || c == '\t':
		case cmdPos < CMD_MAX:
			cmd[cmdPos] = c
			cmdPos++
		default:
			// Overlong command, drop it at the next newline.
			cmdPos = CMD_MAX
		}
	}
}

// handleLED parses "rrggbb" and drives the LED. Malformed colors are ignored.
func handleLED(hex []byte) {
	var rgb [3]uint8
	for i := range rgb {
		hi, ok1 := nibble(hex[2*i])
		lo, ok2 := nibble(hex[2*i+1])
		if !ok1 || !ok2 {
			return
		}
		rgb[i] = hi<<4 | lo
	}
	setLED(rgb[0], rgb[1], rgb[2])
}

func nibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func setLED(r, g, b uint8) {
	PIN_LED_R.Set(r >= LED_LEVEL)
	PIN_LED_G.Set(g >= LED_LEVEL)
	PIN_LED_B.Set(b >= LED_LEVEL)
}
