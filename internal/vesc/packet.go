package vesc

import (
	"encoding/binary"
	"errors"
)

// Frame delimiters of the VESC UART protocol. Payloads up to 255 bytes use
// the short header; longer ones carry a 16-bit length.
const (
	startShort = 0x02
	startLong  = 0x03
	stop       = 0x03

	maxShortPayload = 0xff
	maxPayload      = 0xffff
)

var (
	errIncomplete  = errors.New("incomplete frame")
	errBadFrame    = errors.New("malformed frame")
	errTooLarge    = errors.New("payload too large")
	errEmptyPacket = errors.New("empty payload")
)

// encodePacket wraps payload in a frame: start, length, payload, crc, stop.
func encodePacket(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errEmptyPacket
	}
	if len(payload) > maxPayload {
		return nil, errTooLarge
	}

	frame := make([]byte, 0, len(payload)+6)
	if len(payload) <= maxShortPayload {
		frame = append(frame, startShort, byte(len(payload)))
	} else {
		frame = append(frame, startLong)
		frame = binary.BigEndian.AppendUint16(frame, uint16(len(payload)))
	}
	frame = append(frame, payload...)
	frame = binary.BigEndian.AppendUint16(frame, crc16(payload))
	frame = append(frame, stop)

	return frame, nil
}

// decodePacket extracts the first frame at the start of buf. It returns the
// payload and the number of bytes consumed. errIncomplete means more bytes
// are needed; errBadFrame means buf[0] does not start a valid frame.
func decodePacket(buf []byte) ([]byte, int, error) {
	if len(buf) == 0 {
		return nil, 0, errIncomplete
	}

	var length, header int
	switch buf[0] {
	case startShort:
		if len(buf) < 2 {
			return nil, 0, errIncomplete
		}
		length, header = int(buf[1]), 2
	case startLong:
		if len(buf) < 3 {
			return nil, 0, errIncomplete
		}
		length, header = int(binary.BigEndian.Uint16(buf[1:3])), 3
	default:
		return nil, 0, errBadFrame
	}

	if length == 0 {
		return nil, 0, errBadFrame
	}

	total := header + length + 3
	if len(buf) < total {
		return nil, 0, errIncomplete
	}

	payload := buf[header : header+length]
	crc := binary.BigEndian.Uint16(buf[header+length : header+length+2])
	if buf[total-1] != stop || crc != crc16(payload) {
		return nil, 0, errBadFrame
	}

	out := make([]byte, length)
	copy(out, payload)

	return out, total, nil
}

// crc16 is CRC-16/XMODEM (poly 0x1021, init 0) as used by the VESC firmware.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}

	return crc
}
