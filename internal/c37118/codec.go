package c37118

import (
	"encoding/binary"
	"fmt"
	"math"
)

const nameLen = 16 // Name1: a fixed 16-byte ASCII field.

func frameTypeNibble(t FrameType) uint16 {
	switch t {
	case FrameData:
		return 0x00
	case FrameHeader:
		return 0x10
	case FrameConfig1:
		return 0x20
	case FrameConfig2:
		return 0x30
	case FrameCommand:
		return 0x40
	case FrameConfig3:
		return 0x50
	default:
		return 0xF0
	}
}

func frameTypeFromNibble(n uint16) (FrameType, error) {
	switch n {
	case 0x00:
		return FrameData, nil
	case 0x10:
		return FrameHeader, nil
	case 0x20:
		return FrameConfig1, nil
	case 0x30:
		return FrameConfig2, nil
	case 0x40:
		return FrameCommand, nil
	case 0x50:
		return FrameConfig3, nil
	default:
		return 0, ErrInvalidFrameType
	}
}

// Encode serializes f into its wire representation. cfg is required (and
// used for per-PMU format/channel counts) only when f.Message is a Data
// value; it is ignored otherwise. Uses the two-pass offset-patch technique:
// the body is built first so its total length is known, then the framesize
// field is patched into the fixed-size header before the CRC is computed
// over the whole thing and appended.
func Encode(f *Frame, cfg *Config2) ([]byte, error) {
	if f.Type == FrameConfig3 {
		return nil, ErrConfig3Unsupported
	}

	body, err := encodeMessage(f.Message, cfg, f.Type)
	if err != nil {
		return nil, err
	}

	header := make([]byte, 14)
	sync := uint16(0xAA00) | frameTypeNibble(f.Type) | uint16(f.Version&0xF)
	binary.BigEndian.PutUint16(header[0:2], sync)
	binary.BigEndian.PutUint16(header[4:6], f.IDCode)
	binary.BigEndian.PutUint32(header[6:10], f.SOC)
	binary.BigEndian.PutUint32(header[10:14], f.FracSec)

	total := len(header) + len(body) + 2 // + trailing CRC
	binary.BigEndian.PutUint16(header[2:4], uint16(total))

	full := make([]byte, 0, total)
	full = append(full, header...)
	full = append(full, body...)

	crc := CRC(full)
	crcBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(crcBytes, crc)
	full = append(full, crcBytes...)
	return full, nil
}

// Decode parses a single frame from buf. cfg must describe the Data frame's
// shape if the frame is a Data frame.
func Decode(buf []byte, cfg *Config2) (*Frame, error) {
	if len(buf) < 16 {
		return nil, ErrTruncated
	}
	sync := binary.BigEndian.Uint16(buf[0:2])
	if sync&0xFF00 != 0xAA00 {
		return nil, ErrInvalidSync
	}
	framesize := binary.BigEndian.Uint16(buf[2:4])
	if int(framesize) > len(buf) {
		return nil, ErrTruncated
	}

	frameType, err := frameTypeFromNibble(sync & 0xF0)
	if err != nil {
		return nil, err
	}
	if frameType == FrameConfig3 {
		return nil, ErrConfig3Unsupported
	}

	f := &Frame{
		Version: int(sync & 0xF),
		Type:    frameType,
		IDCode:  binary.BigEndian.Uint16(buf[4:6]),
		SOC:     binary.BigEndian.Uint32(buf[6:10]),
		FracSec: binary.BigEndian.Uint32(buf[10:14]),
	}

	body := buf[14 : framesize-2]
	crcWant := binary.BigEndian.Uint16(buf[framesize-2 : framesize])
	crcGot := CRC(buf[0 : framesize-2])
	if crcWant != crcGot {
		return nil, ErrChecksum
	}

	msg, err := decodeMessage(body, cfg, frameType)
	if err != nil {
		return nil, err
	}
	f.Message = msg
	return f, nil
}

func encodeMessage(msg interface{}, cfg *Config2, t FrameType) ([]byte, error) {
	switch t {
	case FrameHeader:
		hdr, _ := msg.([]byte)
		return hdr, nil
	case FrameConfig1, FrameConfig2:
		c, ok := msg.(Config1)
		if !ok {
			if c2, ok2 := msg.(Config2); ok2 {
				c = Config1(c2)
			} else {
				return nil, fmt.Errorf("c37118: message does not match frame type config")
			}
		}
		return encodeConfig1(&c), nil
	case FrameCommand:
		c, ok := msg.(Command)
		if !ok {
			return nil, fmt.Errorf("c37118: message does not match frame type command")
		}
		buf := make([]byte, 2+len(c.Ext))
		binary.BigEndian.PutUint16(buf[0:2], c.Code)
		copy(buf[2:], c.Ext)
		return buf, nil
	case FrameData:
		d, ok := msg.(Data)
		if !ok {
			return nil, fmt.Errorf("c37118: message does not match frame type data")
		}
		if cfg == nil {
			return nil, ErrMissingConfig
		}
		return encodeData(&d, cfg)
	default:
		return nil, ErrInvalidFrameType
	}
}

func decodeMessage(body []byte, cfg *Config2, t FrameType) (interface{}, error) {
	switch t {
	case FrameHeader:
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	case FrameConfig1:
		c, err := decodeConfig1(body)
		if err != nil {
			return nil, err
		}
		return *c, nil
	case FrameConfig2:
		c, err := decodeConfig1(body)
		if err != nil {
			return nil, err
		}
		return Config2(*c), nil
	case FrameCommand:
		if len(body) < 2 {
			return nil, ErrTruncated
		}
		return Command{Code: binary.BigEndian.Uint16(body[0:2]), Ext: append([]byte(nil), body[2:]...)}, nil
	case FrameData:
		if cfg == nil {
			return nil, ErrMissingConfig
		}
		return decodeData(body, cfg)
	default:
		return nil, ErrInvalidFrameType
	}
}

func putName(buf []byte, name string) {
	copy(buf, []byte(name))
	for i := len(name); i < len(buf); i++ {
		buf[i] = ' '
	}
}

func getName(buf []byte) string {
	end := len(buf)
	for end > 0 && (buf[end-1] == ' ' || buf[end-1] == 0) {
		end--
	}
	return string(buf[:end])
}

func encodeConfig1(c *Config1) []byte {
	buf := make([]byte, 0, 64)
	tmp := make([]byte, 4)

	binary.BigEndian.PutUint32(tmp, c.TimeBase)
	buf = append(buf, tmp...)

	binary.BigEndian.PutUint16(tmp[:2], uint16(len(c.PMUs)))
	buf = append(buf, tmp[:2]...)

	for _, p := range c.PMUs {
		buf = append(buf, encodePmuConfig1(&p)...)
	}

	binary.BigEndian.PutUint16(tmp[:2], uint16(c.DataRate))
	buf = append(buf, tmp[:2]...)
	return buf
}

func encodePmuConfig1(p *PmuConfig1) []byte {
	buf := make([]byte, nameLen)
	putName(buf, p.Station)

	tmp := make([]byte, 4)
	binary.BigEndian.PutUint16(tmp[:2], p.IDCode)
	buf = append(buf, tmp[:2]...)
	binary.BigEndian.PutUint16(tmp[:2], uint16(p.Format))
	buf = append(buf, tmp[:2]...)

	binary.BigEndian.PutUint16(tmp[:2], uint16(len(p.Phasors)))
	buf = append(buf, tmp[:2]...)
	binary.BigEndian.PutUint16(tmp[:2], uint16(len(p.Analogs)))
	buf = append(buf, tmp[:2]...)
	binary.BigEndian.PutUint16(tmp[:2], uint16(len(p.Digitals)))
	buf = append(buf, tmp[:2]...)

	for _, ch := range p.Phasors {
		name := make([]byte, nameLen)
		putName(name, ch.Name)
		buf = append(buf, name...)
	}
	for _, ch := range p.Analogs {
		name := make([]byte, nameLen)
		putName(name, ch.Name)
		buf = append(buf, name...)
	}
	for _, ch := range p.Digitals {
		name := make([]byte, nameLen)
		putName(name, ch.Name)
		buf = append(buf, name...)
	}

	for _, ch := range p.Phasors {
		binary.BigEndian.PutUint32(tmp, ch.Unit)
		buf = append(buf, tmp...)
	}
	for _, ch := range p.Analogs {
		binary.BigEndian.PutUint32(tmp, ch.Unit)
		buf = append(buf, tmp...)
	}
	for _, ch := range p.Digitals {
		binary.BigEndian.PutUint32(tmp, ch.Unit)
		buf = append(buf, tmp...)
	}

	binary.BigEndian.PutUint16(tmp[:2], p.Nominal)
	buf = append(buf, tmp[:2]...)
	binary.BigEndian.PutUint16(tmp[:2], p.ConfigCount)
	buf = append(buf, tmp[:2]...)

	return buf
}

func decodeConfig1(body []byte) (*Config1, error) {
	if len(body) < 6 {
		return nil, ErrTruncated
	}
	c := &Config1{}
	off := 0
	c.TimeBase = binary.BigEndian.Uint32(body[off:])
	off += 4
	numPmu := binary.BigEndian.Uint16(body[off:])
	off += 2

	c.PMUs = make([]PmuConfig1, numPmu)
	for i := range c.PMUs {
		p, n, err := decodePmuConfig1(body[off:])
		if err != nil {
			return nil, err
		}
		c.PMUs[i] = *p
		off += n
	}

	if off+2 > len(body) {
		return nil, ErrTruncated
	}
	c.DataRate = int16(binary.BigEndian.Uint16(body[off:]))
	off += 2
	return c, nil
}

func decodePmuConfig1(body []byte) (*PmuConfig1, int, error) {
	if len(body) < nameLen+10 {
		return nil, 0, ErrTruncated
	}
	p := &PmuConfig1{}
	off := 0
	p.Station = getName(body[off : off+nameLen])
	off += nameLen

	p.IDCode = binary.BigEndian.Uint16(body[off:])
	off += 2
	p.Format = DataFormat(binary.BigEndian.Uint16(body[off:]))
	off += 2

	phnmr := binary.BigEndian.Uint16(body[off:])
	off += 2
	annmr := binary.BigEndian.Uint16(body[off:])
	off += 2
	dgnmr := binary.BigEndian.Uint16(body[off:])
	off += 2

	phNames := make([]string, phnmr)
	for i := range phNames {
		if off+nameLen > len(body) {
			return nil, 0, ErrTruncated
		}
		phNames[i] = getName(body[off : off+nameLen])
		off += nameLen
	}
	anNames := make([]string, annmr)
	for i := range anNames {
		if off+nameLen > len(body) {
			return nil, 0, ErrTruncated
		}
		anNames[i] = getName(body[off : off+nameLen])
		off += nameLen
	}
	dgNames := make([]string, dgnmr)
	for i := range dgNames {
		if off+nameLen > len(body) {
			return nil, 0, ErrTruncated
		}
		dgNames[i] = getName(body[off : off+nameLen])
		off += nameLen
	}

	p.Phasors = make([]ChannelInfo, phnmr)
	for i := range p.Phasors {
		if off+4 > len(body) {
			return nil, 0, ErrTruncated
		}
		p.Phasors[i] = ChannelInfo{Name: phNames[i], Unit: binary.BigEndian.Uint32(body[off:])}
		off += 4
	}
	p.Analogs = make([]ChannelInfo, annmr)
	for i := range p.Analogs {
		if off+4 > len(body) {
			return nil, 0, ErrTruncated
		}
		p.Analogs[i] = ChannelInfo{Name: anNames[i], Unit: binary.BigEndian.Uint32(body[off:])}
		off += 4
	}
	p.Digitals = make([]DigitalInfo, dgnmr)
	for i := range p.Digitals {
		if off+4 > len(body) {
			return nil, 0, ErrTruncated
		}
		p.Digitals[i] = DigitalInfo{Name: dgNames[i], Unit: binary.BigEndian.Uint32(body[off:])}
		off += 4
	}

	if off+4 > len(body) {
		return nil, 0, ErrTruncated
	}
	p.Nominal = binary.BigEndian.Uint16(body[off:])
	off += 2
	p.ConfigCount = binary.BigEndian.Uint16(body[off:])
	off += 2

	return p, off, nil
}

func encodeData(d *Data, cfg *Config2) ([]byte, error) {
	if len(d.PMUs) != len(cfg.PMUs) {
		return nil, fmt.Errorf("c37118: data has %d pmus, config describes %d", len(d.PMUs), len(cfg.PMUs))
	}
	var buf []byte
	for i, pd := range d.PMUs {
		enc, err := encodePmuData(&pd, &cfg.PMUs[i])
		if err != nil {
			return nil, err
		}
		buf = append(buf, enc...)
	}
	return buf, nil
}

func decodeData(body []byte, cfg *Config2) (Data, error) {
	d := Data{PMUs: make([]PmuData, len(cfg.PMUs))}
	off := 0
	for i := range cfg.PMUs {
		pd, n, err := decodePmuData(body[off:], &cfg.PMUs[i])
		if err != nil {
			return Data{}, err
		}
		d.PMUs[i] = *pd
		off += n
	}
	return d, nil
}

func encodePmuData(pd *PmuData, cfg *PmuConfig1) ([]byte, error) {
	if len(pd.Phasors) != len(cfg.Phasors) || len(pd.Analogs) != len(cfg.Analogs) || len(pd.Digitals) != len(cfg.Digitals) {
		return nil, fmt.Errorf("c37118: pmu data shape mismatches its config")
	}
	var buf []byte
	tmp := make([]byte, 4)

	binary.BigEndian.PutUint16(tmp[:2], pd.Status)
	buf = append(buf, tmp[:2]...)

	pf := cfg.Format.PhasorFormat()
	for _, ph := range pd.Phasors {
		buf = append(buf, encodePhasor(ph, pf)...)
	}

	if cfg.Format.FreqFloat() {
		binary.BigEndian.PutUint32(tmp, math.Float32bits(float32(pd.Freq)))
		buf = append(buf, tmp...)
		binary.BigEndian.PutUint32(tmp, math.Float32bits(float32(pd.DFreq)))
		buf = append(buf, tmp...)
	} else {
		binary.BigEndian.PutUint16(tmp[:2], uint16(int16(pd.Freq)))
		buf = append(buf, tmp[:2]...)
		binary.BigEndian.PutUint16(tmp[:2], uint16(int16(pd.DFreq)))
		buf = append(buf, tmp[:2]...)
	}

	for _, a := range pd.Analogs {
		if cfg.Format.AnalogFloat() {
			binary.BigEndian.PutUint32(tmp, math.Float32bits(float32(a)))
			buf = append(buf, tmp...)
		} else {
			binary.BigEndian.PutUint16(tmp[:2], uint16(int16(a)))
			buf = append(buf, tmp[:2]...)
		}
	}

	for _, dg := range pd.Digitals {
		binary.BigEndian.PutUint16(tmp[:2], dg)
		buf = append(buf, tmp[:2]...)
	}

	return buf, nil
}

func decodePmuData(body []byte, cfg *PmuConfig1) (*PmuData, int, error) {
	if len(body) < 2 {
		return nil, 0, ErrTruncated
	}
	pd := &PmuData{}
	off := 0
	pd.Status = binary.BigEndian.Uint16(body[off:])
	off += 2

	pf := cfg.Format.PhasorFormat()
	pd.Phasors = make([]complex128, len(cfg.Phasors))
	for i := range pd.Phasors {
		v, n, err := decodePhasor(body[off:], pf)
		if err != nil {
			return nil, 0, err
		}
		pd.Phasors[i] = v
		off += n
	}

	if cfg.Format.FreqFloat() {
		if off+8 > len(body) {
			return nil, 0, ErrTruncated
		}
		pd.Freq = float64(math.Float32frombits(binary.BigEndian.Uint32(body[off:])))
		off += 4
		pd.DFreq = float64(math.Float32frombits(binary.BigEndian.Uint32(body[off:])))
		off += 4
	} else {
		if off+4 > len(body) {
			return nil, 0, ErrTruncated
		}
		pd.Freq = float64(int16(binary.BigEndian.Uint16(body[off:])))
		off += 2
		pd.DFreq = float64(int16(binary.BigEndian.Uint16(body[off:])))
		off += 2
	}

	pd.Analogs = make([]float64, len(cfg.Analogs))
	for i := range pd.Analogs {
		if cfg.Format.AnalogFloat() {
			if off+4 > len(body) {
				return nil, 0, ErrTruncated
			}
			pd.Analogs[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(body[off:])))
			off += 4
		} else {
			if off+2 > len(body) {
				return nil, 0, ErrTruncated
			}
			pd.Analogs[i] = float64(int16(binary.BigEndian.Uint16(body[off:])))
			off += 2
		}
	}

	pd.Digitals = make([]uint16, len(cfg.Digitals))
	for i := range pd.Digitals {
		if off+2 > len(body) {
			return nil, 0, ErrTruncated
		}
		pd.Digitals[i] = binary.BigEndian.Uint16(body[off:])
		off += 2
	}

	return pd, off, nil
}

func encodePhasor(v complex128, pf PhasorFormat) []byte {
	tmp := make([]byte, 4)
	switch pf {
	case PhasorRectInt:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint16(buf[0:2], uint16(int16(real(v))))
		binary.BigEndian.PutUint16(buf[2:4], uint16(int16(imag(v))))
		return buf
	case PhasorRectFloat:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint32(tmp, math.Float32bits(float32(real(v))))
		copy(buf[0:4], tmp)
		binary.BigEndian.PutUint32(tmp, math.Float32bits(float32(imag(v))))
		copy(buf[4:8], tmp)
		return buf
	case PhasorPolarInt:
		mag, phase := polar(v)
		buf := make([]byte, 4)
		binary.BigEndian.PutUint16(buf[0:2], uint16(mag))
		binary.BigEndian.PutUint16(buf[2:4], uint16(int16(phase*10000)))
		return buf
	default: // PhasorPolarFloat
		mag, phase := polar(v)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint32(tmp, math.Float32bits(float32(mag)))
		copy(buf[0:4], tmp)
		binary.BigEndian.PutUint32(tmp, math.Float32bits(float32(phase)))
		copy(buf[4:8], tmp)
		return buf
	}
}

func decodePhasor(body []byte, pf PhasorFormat) (complex128, int, error) {
	switch pf {
	case PhasorRectInt:
		if len(body) < 4 {
			return 0, 0, ErrTruncated
		}
		re := float64(int16(binary.BigEndian.Uint16(body[0:2])))
		im := float64(int16(binary.BigEndian.Uint16(body[2:4])))
		return complex(re, im), 4, nil
	case PhasorRectFloat:
		if len(body) < 8 {
			return 0, 0, ErrTruncated
		}
		re := float64(math.Float32frombits(binary.BigEndian.Uint32(body[0:4])))
		im := float64(math.Float32frombits(binary.BigEndian.Uint32(body[4:8])))
		return complex(re, im), 8, nil
	case PhasorPolarInt:
		if len(body) < 4 {
			return 0, 0, ErrTruncated
		}
		mag := float64(binary.BigEndian.Uint16(body[0:2]))
		phase := float64(int16(binary.BigEndian.Uint16(body[2:4]))) / 10000
		return rect(mag, phase), 4, nil
	default: // PhasorPolarFloat
		if len(body) < 8 {
			return 0, 0, ErrTruncated
		}
		mag := float64(math.Float32frombits(binary.BigEndian.Uint32(body[0:4])))
		phase := float64(math.Float32frombits(binary.BigEndian.Uint32(body[4:8])))
		return rect(mag, phase), 8, nil
	}
}

func polar(v complex128) (mag, phase float64) {
	re, im := real(v), imag(v)
	mag = math.Hypot(re, im)
	phase = math.Atan2(im, re)
	return
}

func rect(mag, phase float64) complex128 {
	return complex(mag*math.Cos(phase), mag*math.Sin(phase))
}
