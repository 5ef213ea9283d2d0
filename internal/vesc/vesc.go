package vesc

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"codeberg.org/mutker/mccli/internal/errors"
	"codeberg.org/mutker/mccli/internal/logger"
	"go.bug.st/serial"
)

// Command ids from the VESC firmware's COMM_PACKET_ID enum.
const (
	CommGetValues = 4
	CommSetDuty   = 5
	CommSetRPM    = 8
	CommReboot    = 29
)

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 100 * time.Millisecond

	dutyScale     = 100000
	readChunk     = 128
	maxEmptyReads = 3
	maxReads      = 64
	maxBuffered   = 4096

	// COMM_GET_VALUES payload bytes up to and including v_in, after the id.
	valuesLength = 28
)

// Measurements is the subset of COMM_GET_VALUES the bench cares about.
type Measurements struct {
	TempFET         float64 // °C
	TempMotor       float64 // °C
	AvgMotorCurrent float64 // A
	AvgInputCurrent float64 // A
	DutyCycle       float64
	RPM             float64 // electrical RPM as reported
	VIn             float64 // V
}

// Conn speaks the VESC UART protocol over a byte stream. A Conn is not
// safe for concurrent use; callers serialize access.
type Conn struct {
	port   io.ReadWriteCloser
	buf    []byte
	logger logger.Logger
}

// Open opens the serial port at name and returns a Conn on it.
func Open(name string, baudRate int, readTimeout time.Duration) (*Conn, error) {
	errFactory := errors.New()

	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	port, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, errFactory.Wrap(ErrOpenFailed, err).WithMessage(fmt.Sprintf("failed to open %s", name))
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, errFactory.Wrap(ErrOpenFailed, err)
	}

	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, errFactory.Wrap(ErrOpenFailed, err)
	}

	logger.Info().
		Str("port", name).
		Int("baud_rate", baudRate).
		Dur("read_timeout", readTimeout).
		Msg("Opened ESC serial port")

	return NewConn(port), nil
}

// NewConn returns a Conn over an already open stream. Reads are expected
// to return (0, nil) or io.EOF when nothing arrives in time.
func NewConn(port io.ReadWriteCloser) *Conn {
	return &Conn{
		port:   port,
		logger: logger.With("vesc"),
	}
}

// GetMeasurements requests COMM_GET_VALUES. It returns nil without an error
// when the controller does not answer with a complete frame.
func (c *Conn) GetMeasurements() (*Measurements, error) {
	if err := c.send([]byte{CommGetValues}); err != nil {
		return nil, err
	}

	payload, err := c.receive(CommGetValues)
	if err != nil || payload == nil {
		return nil, err
	}

	m, ok := parseValues(payload[1:])
	if !ok {
		c.logger.Debug().Int("length", len(payload)).Msg("Short COMM_GET_VALUES reply")
		return nil, nil
	}

	return m, nil
}

// SetRPM sets the electrical RPM setpoint.
func (c *Conn) SetRPM(rpm int) error {
	if rpm > math.MaxInt32 || rpm < math.MinInt32 {
		return errors.New().WithData(errors.ErrInvalidArgument, fmt.Sprintf("rpm out of range: %d", rpm))
	}

	payload := []byte{CommSetRPM}
	payload = binary.BigEndian.AppendUint32(payload, uint32(int32(rpm)))

	return c.send(payload)
}

// SetDutyCycle sets the duty cycle. The controller scales it by 100000.
func (c *Conn) SetDutyCycle(duty float64) error {
	payload := []byte{CommSetDuty}
	payload = binary.BigEndian.AppendUint32(payload, uint32(int32(math.Round(duty*dutyScale))))

	return c.send(payload)
}

// Reboot asks the controller to restart.
func (c *Conn) Reboot() error {
	return c.send([]byte{CommReboot})
}

func (c *Conn) Close() error {
	if err := c.port.Close(); err != nil {
		return errors.New().Wrap(ErrCloseFailed, err)
	}
	return nil
}

// inputResetter is implemented by ports that can discard unread input,
// such as serial.Port.
type inputResetter interface {
	ResetInputBuffer() error
}

func (c *Conn) send(payload []byte) error {
	errFactory := errors.New()

	frame, err := encodePacket(payload)
	if err != nil {
		return errFactory.Wrap(ErrEncodeFailed, err)
	}

	c.discardInput()

	if _, err := c.port.Write(frame); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	return nil
}

// discardInput drops bytes left over from an earlier request, so that a
// reply arriving after its receive gave up is never taken for the next one.
func (c *Conn) discardInput() {
	if len(c.buf) > 0 {
		c.logger.Debug().Int("length", len(c.buf)).Msg("Discarding stale input")
		c.buf = c.buf[:0]
	}

	if r, ok := c.port.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to reset input buffer")
		}
	}
}

// receive reads until a frame whose payload starts with id arrives. It
// returns a nil payload when the stream goes quiet first.
func (c *Conn) receive(id byte) ([]byte, error) {
	chunk := make([]byte, readChunk)
	empty := 0

	for reads := 0; ; reads++ {
		for len(c.buf) > 0 {
			payload, n, err := decodePacket(c.buf)
			if err == errIncomplete {
				break
			}
			if err != nil {
				// resync on the next byte
				c.buf = c.buf[1:]
				continue
			}

			c.buf = c.buf[n:]
			if payload[0] == id {
				return payload, nil
			}
			c.logger.Debug().Int("id", int(payload[0])).Msg("Skipping unexpected frame")
		}

		if empty >= maxEmptyReads || reads >= maxReads {
			return nil, nil
		}

		n, err := c.port.Read(chunk)
		if err != nil && err != io.EOF {
			return nil, errors.New().Wrap(ErrReadFailed, err)
		}
		if n == 0 {
			empty++
			continue
		}

		c.buf = append(c.buf, chunk[:n]...)
		if len(c.buf) > maxBuffered {
			c.buf = c.buf[len(c.buf)-maxBuffered:]
		}
	}
}

func parseValues(data []byte) (*Measurements, bool) {
	if len(data) < valuesLength {
		return nil, false
	}

	i16 := func(off int) float64 { return float64(int16(binary.BigEndian.Uint16(data[off:]))) }
	i32 := func(off int) float64 { return float64(int32(binary.BigEndian.Uint32(data[off:]))) }

	return &Measurements{
		TempFET:         i16(0) / 10,
		TempMotor:       i16(2) / 10,
		AvgMotorCurrent: i32(4) / 100,
		AvgInputCurrent: i32(8) / 100,
		DutyCycle:       i16(20) / 1000,
		RPM:             i32(22),
		VIn:             i16(26) / 10,
	}, true
}
