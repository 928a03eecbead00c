// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Observer is notified of session traffic. Methods are called synchronously
// from the exchange and must not block.
type Observer interface {
	PacketSent(p *Packet)
	PacketReceived(p *Packet)
	ExchangeDone(ins Instruction, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) PacketSent(*Packet)                             {}
func (nopObserver) PacketReceived(*Packet)                         {}
func (nopObserver) ExchangeDone(Instruction, time.Duration, error) {}

// MultiObserver fans notifications out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) PacketSent(p *Packet) {
	for _, o := range m {
		o.PacketSent(p)
	}
}

func (m MultiObserver) PacketReceived(p *Packet) {
	for _, o := range m {
		o.PacketReceived(p)
	}
}

func (m MultiObserver) ExchangeDone(ins Instruction, elapsed time.Duration, err error) {
	for _, o := range m {
		o.ExchangeDone(ins, elapsed, err)
	}
}

// Counters is a point-in-time copy of the statistics.
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	PacketsSent     uint64
	PacketsReceived uint64
	BytesReceived   uint64
	Exchanges       uint64
	Completed       uint64
	DeviceErrors    uint64
	ChecksumErrors  uint64
	BadMagic        uint64
	Timeouts        uint64
	TransportErrors uint64
	OtherErrors     uint64
	TotalLatency    time.Duration

	// Rates (calculated)
	ExchangeRate float64 // exchanges/sec
	ErrorRate    float64 // failed exchanges/sec
}

// Statistics tracks exchange outcomes and error rates
type Statistics struct {
	mu sync.Mutex
	Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{Counters: Counters{
		StartTime:      now,
		LastUpdateTime: now,
	}}
}

// PacketSent counts an outgoing packet.
func (s *Statistics) PacketSent(*Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PacketsSent++
}

// PacketReceived counts an incoming packet.
func (s *Statistics) PacketReceived(p *Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PacketsReceived++
	s.BytesReceived += uint64(MinPacketSize + len(p.Payload()))
}

// ExchangeDone classifies the outcome of an exchange.
func (s *Statistics) ExchangeDone(_ Instruction, elapsed time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Exchanges++
	s.TotalLatency += elapsed
	s.LastUpdateTime = time.Now()

	var de *DeviceError
	var te *TransportError
	switch {
	case err == nil:
		s.Completed++
	case errors.As(err, &de):
		// The exchange itself succeeded
		s.Completed++
		s.DeviceErrors++
	case errors.Is(err, ErrChecksum):
		s.ChecksumErrors++
	case errors.Is(err, ErrBadMagic):
		s.BadMagic++
	case errors.Is(err, ErrTimeout):
		s.Timeouts++
	case errors.As(err, &te):
		s.TransportErrors++
	default:
		s.OtherErrors++
	}
}

// Failed returns the number of exchanges that did not complete.
func (s *Statistics) Failed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Exchanges - s.Completed
}

// CalculateRates calculates exchange and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.ExchangeRate = float64(s.Exchanges) / elapsed
		s.ErrorRate = float64(s.Exchanges-s.Completed) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()

	var completedPercent, avgLatency float64
	if s.Exchanges > 0 {
		completedPercent = float64(s.Completed) * 100.0 / float64(s.Exchanges)
		avgLatency = float64(s.TotalLatency.Milliseconds()) / float64(s.Exchanges)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Exchanges:       %8d\n", s.Exchanges)
	result += fmt.Sprintf("Completed:       %8d (%.1f%%)\n", s.Completed, completedPercent)

	if s.DeviceErrors > 0 {
		result += fmt.Sprintf("  Device Errors:    %5d\n", s.DeviceErrors)
	}
	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", s.ChecksumErrors)
	}
	if s.BadMagic > 0 {
		result += fmt.Sprintf("Bad Magic:       %8d\n", s.BadMagic)
	}
	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}
	if s.TransportErrors > 0 {
		result += fmt.Sprintf("Transport Errors:%8d\n", s.TransportErrors)
	}
	if s.OtherErrors > 0 {
		result += fmt.Sprintf("Other Errors:    %8d\n", s.OtherErrors)
	}

	result += fmt.Sprintf("Packets Out/In:  %8d / %d\n", s.PacketsSent, s.PacketsReceived)
	result += fmt.Sprintf("Avg Latency:     %8.1f ms\n", avgLatency)
	result += fmt.Sprintf("Exchange Rate:   %8.1f exch/sec\n", s.ExchangeRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Snapshot returns a copy of the counters with rates calculated.
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
	return s.Counters
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.Counters = Counters{
		StartTime:      now,
		LastUpdateTime: now,
	}
}
