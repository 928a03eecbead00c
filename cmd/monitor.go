// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/whorl/internal/enroll"
	"github.com/Thermoquad/whorl/internal/metrics"
	"github.com/Thermoquad/whorl/pkg/r502"
)

var (
	monitorInterval    time.Duration
	monitorMetricsAddr string
	monitorTUI         bool
	monitorStatsEvery  int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch module status and library usage",
	Long: `Poll the module's system parameters, template count and index table
at a fixed interval and display them with exchange statistics.

In the terminal UI, press 'i' to identify a finger, 'r' to reset statistics
and 'q' to quit.

With --metrics-addr (or metrics.addr in the config file), exchange counters,
latency and library gauges are served for Prometheus.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 2*time.Second, "Status poll interval")
	monitorCmd.Flags().StringVar(&monitorMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9502)")
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", true, "Use terminal UI (false for text mode)")
	monitorCmd.Flags().IntVar(&monitorStatsEvery, "stats-interval", 10, "Statistics interval in seconds (text mode)")
}

// Poller messages, delivered to the TUI or the text printer

type statusMsg struct {
	at        time.Time
	params    r502.SystemParameters
	templates uint16
	slots     []uint16
	anomalies []r502.ValidationError
	err       error
}

type identifyMsg struct {
	result r502.SearchResult
	err    error
}

type stepMsg struct {
	step enroll.Step
}

type eventMsg struct {
	message string
	isError bool
}

// modulePoller owns the session; every exchange happens on its goroutine.
type modulePoller struct {
	session   *r502.Session
	collector *metrics.Collector
	interval  time.Duration
	identify  chan struct{}
}

func (p *modulePoller) run(ctx context.Context, send func(tea.Msg)) {
	p.startup(ctx, send)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	send(p.poll(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send(p.poll(ctx))
		case <-p.identify:
			send(p.identifyFinger(ctx, send))
		}
	}
}

// startup checks the link and sensor before polling.
func (p *modulePoller) startup(ctx context.Context, send func(tea.Msg)) {
	if err := p.session.HandShake(ctx); err != nil {
		send(eventMsg{message: fmt.Sprintf("Handshake: %s", describeError(err)), isError: true})
	} else {
		send(eventMsg{message: "Handshake OK"})
	}
	if err := p.session.CheckSensor(ctx); err != nil {
		send(eventMsg{message: fmt.Sprintf("Sensor check: %s", describeError(err)), isError: true})
	} else {
		send(eventMsg{message: "Sensor OK"})
	}
}

func (p *modulePoller) poll(ctx context.Context) statusMsg {
	msg := statusMsg{at: time.Now()}

	msg.params, msg.err = p.session.ReadSystemParameters(ctx)
	if msg.err != nil {
		return msg
	}
	msg.anomalies = r502.ValidateSystemParameters(msg.params)

	msg.templates, msg.err = p.session.TemplateCount(ctx)
	if msg.err != nil {
		return msg
	}

	pages := (int(msg.params.LibraryCapacity) + r502.SlotsPerIndexPage - 1) / r502.SlotsPerIndexPage
	for page := 0; page < pages && page < r502.IndexTablePages; page++ {
		table, err := p.session.ReadIndexTable(ctx, uint8(page))
		if err != nil {
			msg.err = fmt.Errorf("index page %d: %w", page, err)
			return msg
		}
		msg.slots = append(msg.slots, table.Occupied()...)
	}

	if p.collector != nil {
		p.collector.UpdateLibrary(msg.templates, msg.params)
	}
	return msg
}

func (p *modulePoller) identifyFinger(ctx context.Context, send func(tea.Msg)) identifyMsg {
	ctx, cancel := context.WithTimeout(ctx, cfg.Capture.Timeout)
	defer cancel()

	capacity := uint16(0)
	if sp, err := p.session.ReadSystemParameters(ctx); err == nil {
		capacity = sp.LibraryCapacity
	}

	res, err := enroll.Identify(ctx, p.session, 0, capacity, enroll.Options{
		Limiter:  enroll.NewLimiter(cfg.Capture.PollRate),
		Progress: func(s enroll.Step) { send(stepMsg{step: s}) },
	})
	return identifyMsg{result: res, err: err}
}

func validateMonitorFlags() error {
	if monitorInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	if !monitorTUI && monitorStatsEvery <= 0 {
		return fmt.Errorf("--stats-interval must be positive")
	}
	return nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if err := validateMonitorFlags(); err != nil {
		return err
	}

	stats := r502.NewStatistics()
	observers := []r502.Observer{stats}

	addr := cfg.Metrics.Addr
	if monitorMetricsAddr != "" {
		addr = monitorMetricsAddr
	}

	var collector *metrics.Collector
	if addr != "" {
		reg := metrics.NewRegistry()
		collector = metrics.NewCollector(reg)
		observers = append(observers, collector)

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler(reg))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", zap.String("addr", addr), zap.String("path", cfg.Metrics.Path))
	}

	return withSession(func(ctx context.Context, s *r502.Session) error {
		poller := &modulePoller{
			session:   s,
			collector: collector,
			interval:  monitorInterval,
			identify:  make(chan struct{}, 1),
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		if !monitorTUI {
			return runMonitorText(ctx, poller, stats)
		}

		m := initialMonitorModel(s.Address(), stats, poller.identify)
		p := tea.NewProgram(m, tea.WithAltScreen())

		done := make(chan struct{})
		go func() {
			defer close(done)
			poller.run(ctx, p.Send)
		}()

		_, err := p.Run()
		cancel()
		<-done
		if err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}
		return nil
	}, observers...)
}

// runMonitorText prints status changes and periodic statistics.
func runMonitorText(ctx context.Context, poller *modulePoller, stats *r502.Statistics) error {
	fmt.Printf("Whorl - Module Monitor\n")
	fmt.Printf("Poll interval: %s\n", monitorInterval)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	msgs := make(chan tea.Msg, 16)
	go func() {
		defer close(msgs)
		poller.run(ctx, func(msg tea.Msg) {
			select {
			case msgs <- msg:
			case <-ctx.Done():
			}
		})
	}()

	statsTicker := time.NewTicker(time.Duration(monitorStatsEvery) * time.Second)
	defer statsTicker.Stop()

	var last *statusMsg
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			printMonitorMsg(msg, last)
			if s, isStatus := msg.(statusMsg); isStatus && s.err == nil {
				last = &s
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}

func printMonitorMsg(msg tea.Msg, last *statusMsg) {
	timestamp := time.Now().Format("15:04:05.000")

	switch msg := msg.(type) {
	case eventMsg:
		if msg.isError {
			fmt.Printf("[%s] \033[1;31mERROR:\033[0m %s\n", timestamp, msg.message)
		} else {
			fmt.Printf("[%s] %s\n", timestamp, msg.message)
		}

	case statusMsg:
		if msg.err != nil {
			fmt.Printf("[%s] \033[1;31mPOLL FAILED:\033[0m %s\n", timestamp, describeError(msg.err))
			return
		}
		if last != nil && last.templates == msg.templates && last.params.StatusRegister == msg.params.StatusRegister {
			return
		}
		fmt.Printf("[%s] Library %d/%d, status=0x%04X\n",
			timestamp, msg.templates, msg.params.LibraryCapacity, msg.params.StatusRegister)
		for _, a := range msg.anomalies {
			fmt.Printf("  \033[1;33mANOMALY:\033[0m %s\n", a.Message)
		}
	}
}
