// Package timing converts between wall clock time, NTP timestamps and
// sample clock timestamps used on the control channel.
package timing

import (
	"math/bits"
	"time"
)

// Seconds between the NTP epoch (1900) and the unix epoch (1970).
const ntpEpochOffset uint64 = 0x83AA7E80

// NtpNow returns the current wall clock time as a 64 bit NTP timestamp
// (32 bit seconds, 32 bit fraction).
func NtpNow() uint64 {
	return TimeToNtp(time.Now())
}

func TimeToNtp(t time.Time) uint64 {
	seconds := uint64(t.Unix()) + ntpEpochOffset
	fraction := (uint64(t.Nanosecond()) << 32) / uint64(time.Second)
	return seconds<<32 | fraction
}

// NtpToTs converts an NTP timestamp into sample clock units at rate.
func NtpToTs(ntp uint64, rate uint64) uint64 {
	hi, lo := bits.Mul64(ntp>>16, rate)
	return hi<<48 | lo>>16
}

// TsToNtp converts a sample clock timestamp back into NTP units.
func TsToNtp(ts uint64, rate uint64) uint64 {
	if rate == 0 || ts>>48 >= rate {
		return 0
	}
	quotient, _ := bits.Div64(ts>>48, ts<<16, rate)
	return quotient << 16
}

// NtpToMs converts an NTP duration into whole milliseconds.
func NtpToMs(ntp uint64) uint64 {
	hi, lo := bits.Mul64(ntp>>10, 1000)
	return hi<<42 | lo>>22
}

// TsToMs converts a sample clock delta into milliseconds.
func TsToMs(ts uint64, rate uint64) float64 {
	if rate == 0 {
		return 0
	}
	return float64(ts) * 1000 / float64(rate)
}
