package adc

import (
	"encoding/binary"
	"time"
)

// ADS1115 register addresses.
const (
	regConversion = 0x00
	regConfig     = 0x01
)

// Config word bit layout, matching the ADS1115 datasheet and the knowledge
// embedded in periph's experimental ads1x15 driver: OS, MUX, PGA, MODE, data
// rate, comparator-queue-disable.
const (
	cfgOSSingle       = 1 << 15
	cfgMuxSingleEnded = 4 // MUX = 4+channel selects AINn vs GND
	cfgMuxOffset      = 12
	cfgModeSingle     = 1 << 8
	cfgCompQueDisable = 0x0003
)

var gainBits = map[Gain]uint16{
	Gain2_3: 0x0000,
	Gain1:   0x0200,
	Gain2:   0x0400,
	Gain4:   0x0600,
	Gain8:   0x0800,
	Gain16:  0x0A00,
}

// dataRateTable enumerates the ADS1115's supported data rates to their
// 3-bit config field value, closest-match when the configured rate isn't
// exact.
var dataRateTable = []struct {
	sps int
	bits uint16
}{
	{8, 0x0000},
	{16, 0x0020},
	{32, 0x0040},
	{64, 0x0060},
	{128, 0x0080},
	{250, 0x00A0},
	{475, 0x00C0},
	{860, 0x00E0},
}

func nearestDataRateBits(sps int) (bits uint16, actualSps int) {
	best := dataRateTable[0]
	bestDiff := abs(sps - best.sps)
	for _, r := range dataRateTable[1:] {
		if d := abs(sps - r.sps); d < bestDiff {
			best, bestDiff = r, d
		}
	}
	return best.bits, best.sps
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// buildConfigWord composes the 16-bit ADS1115 config register value for a
// single-shot, single-ended conversion on the given channel.
func buildConfigWord(channel int, gain Gain, sampleRate int) uint16 {
	mux := uint16(cfgMuxSingleEnded+channel) << cfgMuxOffset
	rateBits, _ := nearestDataRateBits(sampleRate)
	return cfgOSSingle | mux | gainBits[gain] | cfgModeSingle | rateBits | cfgCompQueDisable
}

// waitForConversion sleeps the minimum conversion time for sampleRate, then
// polls done up to 10 times at 1ms intervals for the OS bit to report
// completion, as specified for the raw register protocol.
func waitForConversion(sampleRate int, done func() (bool, error)) {
	_, actual := nearestDataRateBits(sampleRate)
	time.Sleep(time.Second/time.Duration(actual) + time.Millisecond)
	for i := 0; i < 10; i++ {
		ok, err := done()
		if err == nil && ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// sampleFromRaw interprets two conversion-register bytes as a signed 16-bit
// big-endian count and converts it to volts via the gain's full-scale range,
// clamping negative noise to 0V.
func sampleFromRaw(channel int, data [2]byte, gain Gain) Sample {
	raw := int16(binary.BigEndian.Uint16(data[:]))
	volts := float64(raw) / 32768.0 * gain.FullScaleVolts()
	if volts < 0 {
		volts = 0
	}
	return Sample{
		Channel:   channel,
		Voltage:   volts,
		RawCount:  raw,
		Timestamp: time.Now(),
	}
}
