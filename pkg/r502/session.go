// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the position of a Session within one command/response exchange.
type State int

// Exchange states
const (
	StateIdle State = iota
	StateSent
	StateAwaitingFirstPacket
	StateAwaitingMore
	StateComplete
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                "Idle",
	StateSent:                "Sent",
	StateAwaitingFirstPacket: "AwaitingFirstPacket",
	StateAwaitingMore:        "AwaitingMore",
	StateComplete:            "Complete",
	StateFailed:              "Failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session defaults
const (
	DefaultTimeout      = 2 * time.Second
	DefaultPollInterval = 50 * time.Millisecond

	readChunkSize = 512
)

// Option configures a Session.
type Option func(*Session)

// WithTimeout bounds each wait for the next packet of a reply.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithPollInterval sets how long a single transport read may block. Context
// cancellation is observed between reads.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.poll = d
		}
	}
}

// WithPacketSize fixes the data chunk size used for outbound transfers.
// Without it the size is learned from ReadSystemParameters.
func WithPacketSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.packetSize = n
			s.packetSizeFixed = true
		}
	}
}

// WithAddress sets the module address placed in outgoing packets.
func WithAddress(address uint32) Option {
	return func(s *Session) {
		s.address = address
	}
}

// WithLogger sets the logger. Packets are logged at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers an observer for packets and exchanges.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// Session drives command/response exchanges with one module over a Transport.
// Calls are serialised; a Session is safe for use by multiple goroutines but
// never has more than one exchange in flight.
type Session struct {
	mu sync.Mutex

	transport Transport
	address   uint32
	timeout   time.Duration
	poll      time.Duration
	logger    *zap.Logger
	observer  Observer

	packetSize      int
	packetSizeFixed bool

	state       State
	dirty       bool
	buf         []byte // reassembly window, owned by the current exchange
	readBuf     []byte
	readTimeout time.Duration // last value applied to the transport
}

// NewSession creates a Session over t.
func NewSession(t Transport, opts ...Option) *Session {
	s := &Session{
		transport:  t,
		address:    DefaultAddress,
		timeout:    DefaultTimeout,
		poll:       DefaultPollInterval,
		logger:     zap.NewNop(),
		observer:   nopObserver{},
		packetSize: DefaultPacketSize,
		readBuf:    make([]byte, readChunkSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the state the last exchange ended in.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PacketSize returns the chunk size used for outbound data transfers.
func (s *Session) PacketSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packetSize
}

// Address returns the module address used in outgoing packets.
func (s *Session) Address() uint32 {
	return s.address
}

// Execute sends cmd and waits for its complete reply.
//
// A reply with a non-zero confirmation code is returned as a *DeviceError.
// Transport failures, corrupt packets, timeouts and cancellation are returned
// as an *ExchangeError recording the state the exchange failed in.
func (s *Session) Execute(ctx context.Context, cmd Command) (*Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execute(ctx, cmd)
}

// ExecuteDownload sends cmd, waits for a successful acknowledgement, then
// sends payload as data packets. cmd must be a download command.
func (s *Session) ExecuteDownload(ctx context.Context, cmd Command, payload []byte) error {
	if cmd.Spec().Transfer != TransferDownload {
		return &ParamError{Instruction: cmd.Instruction, Param: "transfer", Value: int(cmd.Spec().Transfer), Reason: "not a download command"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.execute(ctx, cmd); err != nil {
		return err
	}
	return s.sendData(ctx, cmd.Instruction, payload)
}

// SendData frames payload into data packets of the session packet size and
// writes them, the last one tagged end-of-data.
func (s *Session) SendData(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendData(ctx, 0, payload)
}

func (s *Session) execute(ctx context.Context, cmd Command) (*Reply, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	reply, err := s.exchange(ctx, cmd)
	elapsed := time.Since(start)

	s.observer.ExchangeDone(cmd.Instruction, elapsed, err)
	if err != nil {
		var de *DeviceError
		if errors.As(err, &de) {
			s.logger.Debug("device rejected command",
				zap.String("instruction", FormatInstruction(cmd.Instruction)),
				zap.Uint8("code", uint8(de.Code)),
				zap.String("category", de.Category.String()))
		} else {
			s.logger.Warn("exchange failed",
				zap.String("instruction", FormatInstruction(cmd.Instruction)),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
		}
	}
	return reply, err
}

func (s *Session) exchange(ctx context.Context, cmd Command) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.prepare(); err != nil {
		return nil, s.fail(cmd.Instruction, err)
	}

	// Idle -> Sent
	packet := NewCommandPacket(s.address, cmd)
	if err := s.write(packet); err != nil {
		return nil, s.fail(cmd.Instruction, err)
	}

	// Sent -> AwaitingFirstPacket
	s.state = StateAwaitingFirstPacket
	first, err := s.readPacket(ctx)
	if err != nil {
		return nil, s.fail(cmd.Instruction, err)
	}

	var reply *Reply
	switch first.PID() {
	case PIDAck:
		reply, err = DecodeReply(cmd.Instruction, first)
		if err != nil {
			var de *DeviceError
			if errors.As(err, &de) {
				s.complete()
				return nil, de
			}
			return nil, s.fail(cmd.Instruction, err)
		}
		if cmd.Spec().Transfer != TransferUpload {
			s.complete()
			return reply, nil
		}
		reply.Bulk = []byte{}

	case PIDData, PIDEndOfData:
		reply = &Reply{Instruction: cmd.Instruction, Code: CodeOK, Bulk: append([]byte{}, first.Payload()...)}
		if first.PID() == PIDEndOfData {
			s.complete()
			return reply, nil
		}

	default:
		return nil, s.fail(cmd.Instruction, &UnexpectedPacketError{PID: first.PID(), State: s.state})
	}

	// AwaitingMore: data ... end-of-data
	s.state = StateAwaitingMore
	for {
		p, err := s.readPacket(ctx)
		if err != nil {
			return nil, s.fail(cmd.Instruction, err)
		}
		switch p.PID() {
		case PIDData:
			reply.Bulk = append(reply.Bulk, p.Payload()...)
		case PIDEndOfData:
			reply.Bulk = append(reply.Bulk, p.Payload()...)
			s.complete()
			return reply, nil
		default:
			return nil, s.fail(cmd.Instruction, &UnexpectedPacketError{PID: p.PID(), State: s.state})
		}
	}
}

func (s *Session) sendData(ctx context.Context, ins Instruction, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	frames, err := SplitData(s.address, payload, s.packetSize)
	if err != nil {
		return err
	}

	s.state = StateSent
	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return s.fail(ins, err)
		}
		if err := s.writeFrame(frame); err != nil {
			return s.fail(ins, err)
		}
		if p, _, err := DecodePacket(frame); err == nil {
			s.observer.PacketSent(p)
		}
	}
	s.logger.Debug("data sent",
		zap.Int("bytes", len(payload)),
		zap.Int("packets", len(frames)),
		zap.Int("packet_size", s.packetSize))
	s.state = StateComplete
	return nil
}

// prepare starts a new exchange, draining stale input left by a failed one.
func (s *Session) prepare() error {
	s.state = StateIdle
	if !s.dirty {
		return nil
	}

	s.logger.Debug("clearing stale input", zap.Int("buffered", len(s.buf)))
	s.buf = s.buf[:0]
	if r, ok := s.transport.(InputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			return &TransportError{Op: "reset", Err: err}
		}
	} else if err := s.drain(); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// drain reads and discards input until one poll interval passes with nothing
// received, or the session timeout is reached.
func (s *Session) drain() error {
	if s.poll != s.readTimeout {
		if err := s.transport.SetReadTimeout(s.poll); err != nil {
			return &TransportError{Op: "configure", Err: err}
		}
		s.readTimeout = s.poll
	}

	deadline := time.Now().Add(s.timeout)
	discarded := 0
	for time.Now().Before(deadline) {
		n, err := s.transport.Read(s.readBuf)
		if err != nil {
			return &TransportError{Op: "read", Err: err}
		}
		if n == 0 {
			break
		}
		discarded += n
	}
	if discarded > 0 {
		s.logger.Debug("discarded stale input", zap.Int("bytes", discarded))
	}
	return nil
}

func (s *Session) write(p *Packet) error {
	frame, err := EncodePacket(p)
	if err != nil {
		return err
	}
	if err := s.writeFrame(frame); err != nil {
		return err
	}
	s.observer.PacketSent(p)
	s.logger.Debug("packet sent",
		zap.String("pid", FormatPackageID(p.PID())),
		zap.Int("len", len(p.Payload())))
	return nil
}

func (s *Session) writeFrame(frame []byte) error {
	s.state = StateSent
	n, err := s.transport.Write(frame)
	if err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if n < len(frame) {
		return &TransportError{Op: "write", Err: io.ErrShortWrite}
	}
	return nil
}

// readPacket waits for the next complete packet. The timeout applies to this
// wait alone, so long transfers are bounded per packet.
func (s *Session) readPacket(ctx context.Context) (*Packet, error) {
	deadline := time.Now().Add(s.timeout)

	for {
		if len(s.buf) > 0 {
			p, n, err := DecodePacket(s.buf)
			switch {
			case err == nil:
				s.buf = append(s.buf[:0], s.buf[n:]...)
				s.observer.PacketReceived(p)
				s.logger.Debug("packet received",
					zap.String("pid", FormatPackageID(p.PID())),
					zap.Int("len", len(p.Payload())),
					zap.Stringer("state", s.state))
				return p, nil
			case !errors.Is(err, ErrIncomplete):
				return nil, err
			}
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &TimeoutError{State: s.state, Buffered: len(s.buf)}
		}

		wait := s.poll
		if remaining < wait {
			wait = remaining
		}
		if wait != s.readTimeout {
			if err := s.transport.SetReadTimeout(wait); err != nil {
				return nil, &TransportError{Op: "configure", Err: err}
			}
			s.readTimeout = wait
		}

		n, err := s.transport.Read(s.readBuf)
		if n > 0 {
			s.buf = append(s.buf, s.readBuf[:n]...)
		}
		if err != nil {
			return nil, &TransportError{Op: "read", Err: err}
		}
	}
}

func (s *Session) complete() {
	s.state = StateComplete
	s.buf = s.buf[:0]
}

// fail ends the exchange and marks the session for draining before the next
// one.
func (s *Session) fail(ins Instruction, err error) error {
	failedIn := s.state
	s.state = StateFailed
	s.dirty = true
	s.buf = s.buf[:0]
	return &ExchangeError{Instruction: ins, State: failedIn, Err: err}
}

// =============================================================================
// Typed commands
// =============================================================================

// VerifyPassword performs the password handshake.
func (s *Session) VerifyPassword(ctx context.Context, password uint32) error {
	_, err := s.Execute(ctx, NewVerifyPassword(password))
	return err
}

// SetPassword changes the handshake password.
func (s *Session) SetPassword(ctx context.Context, password uint32) error {
	_, err := s.Execute(ctx, NewSetPassword(password))
	return err
}

// ReadSystemParameters reads the module status and configuration. Unless a
// packet size was fixed with WithPacketSize, the reported packet size becomes
// the session's outbound chunk size.
func (s *Session) ReadSystemParameters(ctx context.Context) (SystemParameters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply, err := s.execute(ctx, NewReadSysPara())
	if err != nil {
		return SystemParameters{}, err
	}
	sp, err := ParseSystemParameters(reply.Data)
	if err != nil {
		return SystemParameters{}, err
	}
	if size := sp.PacketSizeBytes(); size > 0 && !s.packetSizeFixed {
		s.packetSize = size
	}
	return sp, nil
}

// SetSystemParameter writes one of the SysParam registers.
func (s *Session) SetSystemParameter(ctx context.Context, param, value uint8) error {
	_, err := s.Execute(ctx, NewSetSysPara(param, value))
	return err
}

// CaptureImage captures a finger image. With no finger on the sensor the
// error matches IsDeviceCode(err, CodeNoFinger).
func (s *Session) CaptureImage(ctx context.Context) error {
	_, err := s.Execute(ctx, NewGenImg())
	return err
}

// ConvertImage generates a character file from the image into buffer.
func (s *Session) ConvertImage(ctx context.Context, buffer uint8) error {
	_, err := s.Execute(ctx, NewImg2Tz(buffer))
	return err
}

// Match compares the two character buffers and returns the score.
func (s *Session) Match(ctx context.Context) (uint16, error) {
	reply, err := s.Execute(ctx, NewMatch())
	if err != nil {
		return 0, err
	}
	return ParseMatchScore(reply.Data)
}

// Search looks for the character file in buffer among count library pages
// from start.
func (s *Session) Search(ctx context.Context, buffer uint8, start, count uint16) (SearchResult, error) {
	reply, err := s.Execute(ctx, NewSearch(buffer, start, count))
	if err != nil {
		return SearchResult{}, err
	}
	return ParseSearchResult(reply.Data)
}

// CreateModel merges both character buffers into a template.
func (s *Session) CreateModel(ctx context.Context) error {
	_, err := s.Execute(ctx, NewRegModel())
	return err
}

// Store writes the template in buffer to library page.
func (s *Session) Store(ctx context.Context, buffer uint8, page uint16) error {
	_, err := s.Execute(ctx, NewStore(buffer, page))
	return err
}

// LoadTemplate reads library page into buffer.
func (s *Session) LoadTemplate(ctx context.Context, buffer uint8, page uint16) error {
	_, err := s.Execute(ctx, NewLoadChar(buffer, page))
	return err
}

// UploadTemplate transfers the character file in buffer to the host.
func (s *Session) UploadTemplate(ctx context.Context, buffer uint8) ([]byte, error) {
	reply, err := s.Execute(ctx, NewUpChar(buffer))
	if err != nil {
		return nil, err
	}
	return reply.Bulk, nil
}

// DownloadTemplate transfers a character file from the host into buffer.
func (s *Session) DownloadTemplate(ctx context.Context, buffer uint8, data []byte) error {
	return s.ExecuteDownload(ctx, NewDownChar(buffer), data)
}

// UploadImage transfers the image buffer to the host.
func (s *Session) UploadImage(ctx context.Context) ([]byte, error) {
	reply, err := s.Execute(ctx, NewUpImage())
	if err != nil {
		return nil, err
	}
	return reply.Bulk, nil
}

// Delete removes count templates starting at page.
func (s *Session) Delete(ctx context.Context, page, count uint16) error {
	_, err := s.Execute(ctx, NewDeletChar(page, count))
	return err
}

// EmptyLibrary removes every template.
func (s *Session) EmptyLibrary(ctx context.Context) error {
	_, err := s.Execute(ctx, NewEmpty())
	return err
}

// TemplateCount returns the number of stored templates.
func (s *Session) TemplateCount(ctx context.Context) (uint16, error) {
	reply, err := s.Execute(ctx, NewTemplateNum())
	if err != nil {
		return 0, err
	}
	return ParseTemplateCount(reply.Data)
}

// ReadIndexTable reads one page of the library occupancy bitmap.
func (s *Session) ReadIndexTable(ctx context.Context, page uint8) (IndexTable, error) {
	reply, err := s.Execute(ctx, NewReadIndexTable(page))
	if err != nil {
		return IndexTable{}, err
	}
	return ParseIndexTable(page, reply.Data)
}

// RandomCode asks the module for a random number.
func (s *Session) RandomCode(ctx context.Context) (uint32, error) {
	reply, err := s.Execute(ctx, NewGetRandomCode())
	if err != nil {
		return 0, err
	}
	return ParseRandomCode(reply.Data)
}

// WriteNotepad writes a 32-byte notepad page.
func (s *Session) WriteNotepad(ctx context.Context, page uint8, content []byte) error {
	_, err := s.Execute(ctx, NewWriteNotepad(page, content))
	return err
}

// ReadNotepad reads a 32-byte notepad page.
func (s *Session) ReadNotepad(ctx context.Context, page uint8) ([]byte, error) {
	reply, err := s.Execute(ctx, NewReadNotepad(page))
	if err != nil {
		return nil, err
	}
	return ParseNotepad(reply.Data)
}

// Cancel aborts a pending automatic operation.
func (s *Session) Cancel(ctx context.Context) error {
	_, err := s.Execute(ctx, NewCancel())
	return err
}

// SetLED configures the ring LED (R503).
func (s *Session) SetLED(ctx context.Context, control, speed, color, times uint8) error {
	_, err := s.Execute(ctx, NewAuraLedConfig(control, speed, color, times))
	return err
}

// CheckSensor runs the sensor self-test.
func (s *Session) CheckSensor(ctx context.Context) error {
	_, err := s.Execute(ctx, NewCheckSensor())
	return err
}

// HandShake checks that the module is ready.
func (s *Session) HandShake(ctx context.Context) error {
	_, err := s.Execute(ctx, NewHandShake())
	return err
}
