// Copyright 2015 Matthew Holt and The Caddy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package neighbor

import (
	"math"
	"math/rand/v2"
)

// ChannelFunction is the Wi-SUN unicast channel function in use with
// a neighbor, grounded on ws_neigh.c's WS_CHAN_FUNC_* constants.
type ChannelFunction uint8

const (
	ChanFuncFixed ChannelFunction = iota
	ChanFuncTR51CF
	ChanFuncDH1CF
)

// lfnScheduleGuardTimeMs is the LFN_SCHEDULE_GUARD_TIME_MS constant
// from ws_neigh.c: the minimum separation kept between an LFN's
// unicast and broadcast listening slots.
const lfnScheduleGuardTimeMs = 300

// FFNTiming is the unicast timing state tracked for a full-function
// neighbor, populated by UT-IE updates.
type FFNTiming struct {
	UTTRxTimestampUs  uint64
	UFSI              uint32 // 24-bit value, stored widened
	UCDwellIntervalMs uint32
}

// LFNTiming is the unicast/discovery timing state tracked for a
// limited-function neighbor, populated by LUT-IE/LND-IE/LUS-IE
// updates.
type LFNTiming struct {
	LUTTRxTimestampUs  uint64
	UCSlotNumber       uint16
	UCIntervalOffsetMs uint32

	LPAResponseDelayMs uint32
	LPASlotDurationMs  uint32
	LPASlotCount       uint8
	LPASlotFirst       uint8
	LNDRxTimestampUs   uint64

	UCListenIntervalMs uint32
}

// LFNBounds is the NR-IE-advertised acceptable range for an LFN's
// unicast listening interval.
type LFNBounds struct {
	UCIntervalMinMs uint32
	UCIntervalMaxMs uint32
}

// LNDInfo is the decoded content of an LND-IE.
type LNDInfo struct {
	ResponseDelayMs uint32
	SlotDurationMs  uint32
	SlotCount       uint8
	SlotFirst       uint8
}

// FHSSState is the per-neighbor frequency-hopping schedule state,
// grounded on struct fhss_ws_neighbor_timing_info in ws_neigh.c.
type FHSSState struct {
	UCChanFunc    ChannelFunction
	UCChanFixed   uint8
	UCChanCount   uint16
	UCChannelList [32]byte

	FFN FFNTiming
	LFN LFNTiming
}

// UTUpdate records a UT-IE sample (UFSI + receive timestamp) from an
// FFN neighbor, reporting the estimated clock drift (in ppm) measured
// against the previous sample. driftAvailable is false when there was
// no previous sample, the channel function is fixed, the window is
// shorter than the 10s precision floor, or the sample is unchanged.
func (f *FHSSState) UTUpdate(ufsi uint32, tsUs uint64) (driftPPM float64, driftAvailable bool) {
	if f.FFN.UTTRxTimestampUs != 0 && f.FFN.UFSI != 0 {
		driftPPM, driftAvailable = f.calculateUFSIDrift(ufsi, tsUs)
	}

	if f.FFN.UTTRxTimestampUs == tsUs && f.FFN.UFSI == ufsi {
		return driftPPM, driftAvailable // sample unchanged, skip the write
	}
	f.FFN.UTTRxTimestampUs = tsUs
	f.FFN.UFSI = ufsi
	return driftPPM, driftAvailable
}

func (f *FHSSState) calculateUFSIDrift(ufsi uint32, tsUs uint64) (driftPPM float64, ok bool) {
	if f.UCChanFunc == ChanFuncFixed {
		return 0, false // no UFSI on a fixed channel
	}

	seqLength := float64(0x10000)
	if f.UCChanFunc == ChanFuncTR51CF {
		seqLength = float64(f.UCChanCount)
	}

	ufsiPrev := float64(f.FFN.UFSI)
	ufsiCur := float64(ufsi)
	if f.UCChanFunc == ChanFuncDH1CF && ufsiCur < ufsiPrev {
		ufsiCur += 0xffffff
	}

	dwellMs := float64(f.FFN.UCDwellIntervalMs)
	tPrevMs := ufsiPrev * seqLength * dwellMs / 0x1000000
	tCurMs := ufsiCur * seqLength * dwellMs / 0x1000000
	elapsedUs := tsUs - f.FFN.UTTRxTimestampUs

	if f.UCChanFunc == ChanFuncTR51CF {
		fullScheduleMs := seqLength * dwellMs
		if fullScheduleMs <= 0 {
			return 0, false
		}
		// Normalize by adding whole schedules only when t_c has
		// actually wrapped behind t_p -- never subtract a schedule
		// count derived from the elapsed window itself (that count can
		// be 0 for any sample taken within one hopping schedule, which
		// underflowed here before).
		if tCurMs < tPrevMs {
			tCurMs += math.Ceil((tPrevMs-tCurMs)/fullScheduleMs) * fullScheduleMs
		}
	}

	driftMs := tCurMs - tPrevMs
	if driftMs < 0 {
		// DH1CF wraparound not already normalized above.
		driftMs += seqLength * dwellMs
	}
	driftMs = float64(elapsedUs)/1000.0 - driftMs

	if elapsedUs < 10_000_000 {
		return 0, false
	}
	return 1_000_000_000.0 * driftMs / float64(elapsedUs), true
}

// LUTUpdate records a bare LUT-IE (slot number, interval offset) from
// an LFN neighbor. Per Wi-SUN FAN 1.1v08 §6.3.4.6.4.2.6, this MUST NOT
// trigger drift computation -- an FFN never adjusts against an LFN's
// own listening reference.
func (f *FHSSState) LUTUpdate(slotNumber uint16, intervalOffsetMs uint32, tsUs uint64) {
	f.LFN.LUTTRxTimestampUs = tsUs
	f.LFN.UCSlotNumber = slotNumber
	f.LFN.UCIntervalOffsetMs = intervalOffsetMs
}

// LNDUpdate records an LND-IE (LFN discovery schedule) sample.
func (f *FHSSState) LNDUpdate(info LNDInfo, tsUs uint64) {
	f.LFN.LPAResponseDelayMs = info.ResponseDelayMs
	f.LFN.LPASlotDurationMs = info.SlotDurationMs
	f.LFN.LPASlotCount = info.SlotCount
	f.LFN.LPASlotFirst = info.SlotFirst
	f.LFN.LNDRxTimestampUs = tsUs
}

// CalcLFNAdjustedInterval computes the harmonically-aligned listening
// interval for an LFN neighbor, per spec.md §4.3 "LFN listen-interval
// adjustment". Returns 0 when no adjustment is possible (any input
// zero, or ucInterval outside [ucIntervalMin, ucIntervalMax]).
func CalcLFNAdjustedInterval(bcInterval, ucInterval, ucIntervalMin, ucIntervalMax uint32) uint32 {
	if bcInterval == 0 || ucInterval == 0 || ucIntervalMin == 0 || ucIntervalMax == 0 {
		return 0
	}
	if ucInterval < ucIntervalMin || ucInterval > ucIntervalMax {
		return 0
	}

	if ucInterval > bcInterval {
		r := ucInterval % bcInterval
		if r == 0 {
			return ucInterval
		}
		if ucInterval+bcInterval-r <= ucIntervalMax {
			return ucInterval + bcInterval - r
		}
		if ucInterval-r >= ucIntervalMin {
			return ucInterval - r
		}
		return ucInterval
	}

	if bcInterval%ucInterval == 0 {
		return ucInterval
	}
	below, above := closestDivisors(bcInterval, bcInterval/ucInterval)
	if above != 0 && bcInterval/above >= ucIntervalMin {
		return bcInterval / above
	}
	if below != 0 && bcInterval/below <= ucIntervalMax {
		return bcInterval / below
	}
	return ucInterval
}

// closestDivisors finds the divisors of val immediately below and
// above qRef (below <= qRef < above), 0 meaning "none found".
func closestDivisors(val, qRef uint32) (below, above uint32) {
	var q uint32
	for q = 1; q*q <= val; q++ {
		if val%q != 0 {
			continue
		}
		if q <= qRef {
			below = q
		} else {
			above = q
			return below, above
		}
	}
	q--
	for ; q > 0; q-- {
		d := val / q
		if val%d != 0 {
			continue
		}
		if d <= qRef {
			below = d
		} else {
			above = d
			return below, above
		}
	}
	return below, above
}

// CalcLFNOffset computes the offset within the LFN broadcast interval
// that the targeted LFN's unicast slot should use, per spec.md §4.3
// "LFN broadcast offset". Guard time keeps unicast and broadcast
// slots at least lfnScheduleGuardTimeMs apart.
func CalcLFNOffset(adjustedListeningIntervalMs, bcIntervalMs uint32) uint32 {
	if adjustedListeningIntervalMs < 2*lfnScheduleGuardTimeMs {
		return 0
	}

	var maxOffsetMs uint32
	if adjustedListeningIntervalMs >= bcIntervalMs {
		maxOffsetMs = bcIntervalMs - lfnScheduleGuardTimeMs
	} else {
		maxOffsetMs = adjustedListeningIntervalMs - lfnScheduleGuardTimeMs
	}
	return lfnScheduleGuardTimeMs * uniformInt(1, maxOffsetMs/lfnScheduleGuardTimeMs)
}

func uniformInt(lo, hi uint32) uint32 {
	if hi <= lo {
		return lo
	}
	return lo + uint32(rand.IntN(int(hi-lo+1)))
}

// USUpdate records a US-IE (unicast schedule) sample: channel
// function, dwell interval and -- for non-fixed functions -- the
// derived channel mask.
func (f *FHSSState) USUpdate(plan ChannelPlan, excluded ExcludedChannels, dwellIntervalMs uint32) error {
	f.UCChanFunc = plan.ChannelFunction
	if plan.ChannelFunction == ChanFuncFixed {
		f.UCChanFixed = plan.FixedChannel
		f.UCChanCount = 1
		f.FFN.UCDwellIntervalMs = dwellIntervalMs
		return nil
	}
	count, err := DeriveChannelMask(plan, excluded, f.UCChannelList[:])
	if err != nil {
		return err
	}
	f.UCChanCount = count
	f.FFN.UCDwellIntervalMs = dwellIntervalMs
	return nil
}

// HasUS reports whether a unicast schedule has been recorded for this
// neighbor (spec.md §4.2's "unknown unicast schedule" TX-abort check).
func (f *FHSSState) HasUS() bool {
	for _, b := range f.UCChannelList {
		if b != 0 {
			return true
		}
	}
	return f.UCChanFunc == ChanFuncFixed && f.UCChanCount > 0
}

// LUSUpdate records a LUS-IE (listen interval change) sample,
// recomputing the harmonically-adjusted interval when the advertised
// interval changed. It reports whether the caller's already-announced
// offset remains valid (false means the LTO-IE offset must be
// recomputed and re-sent).
func (f *FHSSState) LUSUpdate(listenIntervalMs uint32, bounds LFNBounds, bcIntervalMs uint32) (offsetStillValid bool) {
	offsetStillValid = true
	if f.LFN.UCListenIntervalMs != listenIntervalMs {
		adjusted := CalcLFNAdjustedInterval(bcIntervalMs, listenIntervalMs, bounds.UCIntervalMinMs, bounds.UCIntervalMaxMs)
		if adjusted != 0 && adjusted != listenIntervalMs {
			offsetStillValid = false
		}
	}
	f.LFN.UCListenIntervalMs = listenIntervalMs
	return offsetStillValid
}
