// Package c37118 implements the IEEE C37.118 synchrophasor frame codec:
// big-endian wire types, the sync-word frame-type/version nibble, and the
// CRC-CCITT-false checksum, grounded on
// include/villas/nodes/c37_118/types.hpp and lib/nodes/c37_118/parser.cpp.
// Config3 framing is explicitly unsupported, matching the original's
// assert("unimplemented") in parser.cpp.
package c37118

import "errors"

var (
	ErrInvalidSync         = errors.New("c37118: invalid sync word")
	ErrChecksum            = errors.New("c37118: checksum mismatch")
	ErrTruncated           = errors.New("c37118: frame truncated")
	ErrMissingConfig       = errors.New("c37118: data frame requires a Config2 context")
	ErrConfig3Unsupported  = errors.New("c37118: config3 frames are not supported")
	ErrInvalidFrameType    = errors.New("c37118: unknown frame type nibble")
)

// FrameType is the high nibble of the sync word's low byte.
type FrameType uint8

const (
	FrameData FrameType = iota
	FrameHeader
	FrameConfig1
	FrameConfig2
	FrameCommand
	FrameConfig3
)

// PhasorFormat selects the wire representation of a Phasor value: bit 0
// selects polar (1) vs rectangular (0), bit 1 selects float32 (1) vs int16
// fixed-point (0) — mirroring format&0x3 in Context::format().
type PhasorFormat uint8

const (
	PhasorRectInt   PhasorFormat = 0x0
	PhasorRectFloat PhasorFormat = 0x2
	PhasorPolarInt  PhasorFormat = 0x1
	PhasorPolarFloat PhasorFormat = 0x3
)

// DataFormat bits, per Context::format(): bits 0-1 phasor format, bit 2
// analog format (0=int16, 1=float32), bit 3 freq/dfreq format (0=int16,
// 1=float32).
type DataFormat uint16

func (f DataFormat) PhasorFormat() PhasorFormat { return PhasorFormat(f & 0x3) }
func (f DataFormat) AnalogFloat() bool          { return f&0x4 != 0 }
func (f DataFormat) FreqFloat() bool            { return f&0x8 != 0 }

// ChannelInfo names one phasor or analog channel and its conversion unit
// factor, grounded on PmuConfig1's phinfo/aninfo vectors.
type ChannelInfo struct {
	Name string
	Unit uint32
}

// DigitalInfo names one digital status word and its mask, grounded on
// PmuConfig1's dginfo vector.
type DigitalInfo struct {
	Name string
	Unit uint32
}

// PmuConfig1 is one PMU's configuration block, shared by Config1 and
// Config2 frames (CFG-2 has the same wire shape as CFG-1 in the original).
type PmuConfig1 struct {
	Station string
	IDCode  uint16
	Format  DataFormat

	Phasors  []ChannelInfo
	Analogs  []ChannelInfo
	Digitals []DigitalInfo

	Nominal     uint16
	ConfigCount uint16
}

// Config1 describes a PMU station's configuration; Config2 has the
// identical wire shape under the original and is kept as a distinct Go type
// only to tag which frame-type nibble produced/consumes it.
type Config1 struct {
	TimeBase uint32
	PMUs     []PmuConfig1
	DataRate int16
}

// Config2 carries the negotiated data-frame shape a Data frame is decoded
// against; structurally identical to Config1.
type Config2 Config1

// PmuData is one PMU's measurement block within a Data frame. Phasor values
// are normalized to complex128 and analog/freq values to float64 regardless
// of their int16-fixed-point or float32 wire representation; the codec
// performs the conversion using the owning Config2's Format per PMU.
type PmuData struct {
	Status   uint16
	Phasors  []complex128
	Freq     float64
	DFreq    float64
	Analogs  []float64
	Digitals []uint16
}

// Data is a measurement frame for every PMU described by a Config2.
type Data struct {
	PMUs []PmuData
}

// Command is a command frame sent to a PMU (turn on/off, send config, ...).
type Command struct {
	Code uint16
	Ext  []byte
}

// Frame is the common envelope: sync word, frame size, PMU ID code, SOC
// timestamp, fraction-of-second, one message variant, and the trailing CRC
// (verified/computed by Decode/Encode, not stored here).
type Frame struct {
	Version int
	IDCode  uint16
	SOC     uint32
	FracSec uint32

	Type    FrameType
	Message interface{} // one of Data, Header([]byte), Config1, Config2, Command
}
