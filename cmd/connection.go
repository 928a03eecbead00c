// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Thermoquad/whorl/pkg/r502"
)

// Connection is a byte transport to a module, over serial or a WebSocket
// bridge.
type Connection interface {
	r502.Transport
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// SetReadTimeout bounds each Read; an expired Read returns 0, nil.
func (s *SerialConnection) SetReadTimeout(t time.Duration) error {
	return s.port.SetReadTimeout(t)
}

// ResetInputBuffer discards bytes the module sent that nobody read.
func (s *SerialConnection) ResetInputBuffer() error {
	return s.port.ResetInputBuffer()
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection carries the serial byte stream over a WebSocket bridge.
// A reader goroutine queues binary messages so Read can honour a timeout.
type WebSocketConnection struct {
	conn     *websocket.Conn
	messages chan []byte
	done     chan struct{}

	mu          sync.Mutex
	buf         []byte
	readTimeout time.Duration
	err         error
	closeOnce   sync.Once
}

func newWebSocketConnection(conn *websocket.Conn) *WebSocketConnection {
	w := &WebSocketConnection{
		conn:     conn,
		messages: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
	go w.readLoop()
	return w
}

func (w *WebSocketConnection) readLoop() {
	defer close(w.messages)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
			return
		}

		// Only binary messages carry module traffic
		if messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case w.messages <- data:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	w.mu.Lock()
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		w.mu.Unlock()
		return n, nil
	}
	timeout := w.readTimeout
	w.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case data, ok := <-w.messages:
		if !ok {
			return 0, ErrConnectionClosed
		}
		n := copy(p, data)
		if n < len(data) {
			w.mu.Lock()
			w.buf = append(w.buf, data[n:]...)
			w.mu.Unlock()
		}
		return n, nil
	case <-expired:
		return 0, nil
	case <-w.done:
		return 0, ErrConnectionClosed
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetReadTimeout bounds each Read; zero blocks until data arrives.
func (w *WebSocketConnection) SetReadTimeout(t time.Duration) error {
	w.mu.Lock()
	w.readTimeout = t
	w.mu.Unlock()
	return nil
}

// ResetInputBuffer drops queued messages.
func (w *WebSocketConnection) ResetInputBuffer() error {
	w.mu.Lock()
	w.buf = nil
	w.mu.Unlock()
	for {
		select {
		case _, ok := <-w.messages:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

// Err returns the error that stopped the reader, if any.
func (w *WebSocketConnection) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *WebSocketConnection) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.conn.Close()
	})
	return err
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketConnection(conn), nil
}

// GetPassword reads a secret from the environment variable env or prompts
// for it on the terminal.
func GetPassword(env, prompt string) (string, error) {
	if pw := os.Getenv(env); pw != "" {
		return pw, nil
	}

	fmt.Fprintf(os.Stderr, "%s: ", prompt)

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal; read a plain line
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket connection based on
// flags and config.
func OpenConnection() (Connection, string, error) {
	if cfg.Bridge.URL != "" {
		password := ""
		if cfg.Bridge.Username != "" {
			var err error
			password, err = GetPassword("WHORL_BRIDGE_PASSWORD", "Bridge password")
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(cfg.Bridge.URL, cfg.Bridge.Username, password, cfg.Bridge.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("WebSocket: %s", cfg.Bridge.URL), nil
	}

	if cfg.Serial.Port != "" {
		conn, err := OpenSerialConnection(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("Serial: %s @ %d baud", cfg.Serial.Port, cfg.Serial.Baud), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// modulePassword resolves the handshake password: --password, then
// WHORL_PASSWORD, then a prompt when --ask-password is set, then config.
func modulePassword() (uint32, error) {
	switch {
	case devicePassword != "":
		return parseHex32(devicePassword)
	case os.Getenv("WHORL_PASSWORD") != "":
		return parseHex32(os.Getenv("WHORL_PASSWORD"))
	case askPassword:
		pw, err := GetPassword("WHORL_PASSWORD", "Module password (hex)")
		if err != nil {
			return 0, err
		}
		return parseHex32(pw)
	}
	return cfg.Device.Password, nil
}

// openSession connects, builds a Session and verifies the module password.
// Extra observers are attached alongside the trace logger.
func openSession(ctx context.Context, observers ...r502.Observer) (*r502.Session, Connection, string, error) {
	password, err := modulePassword()
	if err != nil {
		return nil, nil, "", fmt.Errorf("invalid module password: %w", err)
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return nil, nil, "", err
	}

	if trace {
		observers = append(observers, traceObserver{logger: logger.Named("trace")})
	}

	opts := []r502.Option{
		r502.WithAddress(cfg.Device.Address),
		r502.WithTimeout(cfg.Device.Timeout),
		r502.WithLogger(logger.Named("r502")),
	}
	if cfg.Device.PacketSize > 0 {
		opts = append(opts, r502.WithPacketSize(cfg.Device.PacketSize))
	}
	if len(observers) > 0 {
		opts = append(opts, r502.WithObserver(r502.MultiObserver(observers)))
	}

	session := r502.NewSession(conn, opts...)

	if err := session.VerifyPassword(ctx, password); err != nil {
		conn.Close()
		return nil, nil, "", fmt.Errorf("password handshake failed: %w", err)
	}
	logger.Debug("connected", zap.String("connection", connInfo), zap.String("address", fmt.Sprintf("%08X", cfg.Device.Address)))

	return session, conn, connInfo, nil
}

// traceObserver logs every packet in formatter form.
type traceObserver struct {
	logger *zap.Logger
}

func (t traceObserver) PacketSent(p *r502.Packet) {
	t.logger.Debug("tx", zap.String("packet", oneLine(r502.FormatPacket(p))))
}

func (t traceObserver) PacketReceived(p *r502.Packet) {
	t.logger.Debug("rx", zap.String("packet", oneLine(r502.FormatPacket(p))))
}

func (t traceObserver) ExchangeDone(ins r502.Instruction, elapsed time.Duration, err error) {
	t.logger.Debug("exchange",
		zap.String("instruction", r502.FormatInstruction(ins)),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
}

func oneLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, " | ")
}
