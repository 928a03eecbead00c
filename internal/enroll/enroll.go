// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package enroll implements the multi-command fingerprint workflows: waiting
// for a finger, enrolling a template and identifying a finger.
package enroll

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/Thermoquad/whorl/pkg/r502"
)

// Device is the subset of *r502.Session the workflows drive.
type Device interface {
	CaptureImage(ctx context.Context) error
	ConvertImage(ctx context.Context, buffer uint8) error
	CreateModel(ctx context.Context) error
	Store(ctx context.Context, buffer uint8, page uint16) error
	Search(ctx context.Context, buffer uint8, start, count uint16) (r502.SearchResult, error)
}

// ErrDuplicate is returned by Enroll when the finger already matches a
// stored template and duplicates are rejected.
var ErrDuplicate = errors.New("fingerprint already enrolled")

// Step identifies a stage of a workflow for progress reporting.
type Step int

// Workflow steps
const (
	StepPlaceFinger Step = iota
	StepConvertFirst
	StepCheckDuplicate
	StepLiftFinger
	StepPlaceAgain
	StepConvertSecond
	StepCreateModel
	StepStore
	StepSearch
	StepDone
)

var stepNames = map[Step]string{
	StepPlaceFinger:    "place finger",
	StepConvertFirst:   "processing first image",
	StepCheckDuplicate: "checking library",
	StepLiftFinger:     "lift finger",
	StepPlaceAgain:     "place same finger again",
	StepConvertSecond:  "processing second image",
	StepCreateModel:    "creating template",
	StepStore:          "storing template",
	StepSearch:         "searching library",
	StepDone:           "done",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Options tunes Enroll and Identify.
type Options struct {
	// Limiter paces GenImg polling. Nil polls at 5 attempts per second.
	Limiter *rate.Limiter

	// Progress is called as each step starts.
	Progress func(Step)

	// RejectDuplicates searches the first DuplicateSearchCount pages for the
	// finger before storing it.
	RejectDuplicates     bool
	DuplicateSearchCount uint16
}

// NewLimiter returns a limiter allowing perSecond capture attempts.
func NewLimiter(perSecond float64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

func (o Options) limiter() *rate.Limiter {
	if o.Limiter != nil {
		return o.Limiter
	}
	return NewLimiter(5)
}

func (o Options) report(s Step) {
	if o.Progress != nil {
		o.Progress(s)
	}
}

// WaitForFinger polls CaptureImage until an image is captured. "No finger"
// replies are retried; any other error ends the wait.
func WaitForFinger(ctx context.Context, dev Device, limiter *rate.Limiter) error {
	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		err := dev.CaptureImage(ctx)
		if err == nil {
			return nil
		}
		if !r502.IsDeviceCode(err, r502.CodeNoFinger) {
			return err
		}
	}
}

// WaitForLift polls CaptureImage until the sensor reports no finger.
func WaitForLift(ctx context.Context, dev Device, limiter *rate.Limiter) error {
	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		err := dev.CaptureImage(ctx)
		switch {
		case r502.IsDeviceCode(err, r502.CodeNoFinger):
			return nil
		case err == nil, r502.IsCategory(err, r502.CategoryImage):
			// Finger still present
		default:
			return err
		}
	}
}

// Enroll captures the same finger twice, merges the character files and
// stores the template at page.
func Enroll(ctx context.Context, dev Device, page uint16, opts Options) error {
	limiter := opts.limiter()

	opts.report(StepPlaceFinger)
	if err := WaitForFinger(ctx, dev, limiter); err != nil {
		return fmt.Errorf("first capture: %w", err)
	}
	opts.report(StepConvertFirst)
	if err := dev.ConvertImage(ctx, r502.CharBuffer1); err != nil {
		return fmt.Errorf("first image: %w", err)
	}

	if opts.RejectDuplicates && opts.DuplicateSearchCount > 0 {
		opts.report(StepCheckDuplicate)
		res, err := dev.Search(ctx, r502.CharBuffer1, 0, opts.DuplicateSearchCount)
		switch {
		case err == nil:
			return fmt.Errorf("%w at page %d", ErrDuplicate, res.PageID)
		case !r502.IsDeviceCode(err, r502.CodeNotFound):
			return fmt.Errorf("duplicate check: %w", err)
		}
	}

	opts.report(StepLiftFinger)
	if err := WaitForLift(ctx, dev, limiter); err != nil {
		return fmt.Errorf("waiting for lift: %w", err)
	}

	opts.report(StepPlaceAgain)
	if err := WaitForFinger(ctx, dev, limiter); err != nil {
		return fmt.Errorf("second capture: %w", err)
	}
	opts.report(StepConvertSecond)
	if err := dev.ConvertImage(ctx, r502.CharBuffer2); err != nil {
		return fmt.Errorf("second image: %w", err)
	}

	opts.report(StepCreateModel)
	if err := dev.CreateModel(ctx); err != nil {
		return fmt.Errorf("create model: %w", err)
	}

	opts.report(StepStore)
	if err := dev.Store(ctx, r502.CharBuffer1, page); err != nil {
		return fmt.Errorf("store page %d: %w", page, err)
	}

	opts.report(StepDone)
	return nil
}

// Identify captures a finger and searches count library pages from start.
// A finger with no match returns an error matching
// r502.IsDeviceCode(err, r502.CodeNotFound).
func Identify(ctx context.Context, dev Device, start, count uint16, opts Options) (r502.SearchResult, error) {
	opts.report(StepPlaceFinger)
	if err := WaitForFinger(ctx, dev, opts.limiter()); err != nil {
		return r502.SearchResult{}, fmt.Errorf("capture: %w", err)
	}
	opts.report(StepConvertFirst)
	if err := dev.ConvertImage(ctx, r502.CharBuffer1); err != nil {
		return r502.SearchResult{}, fmt.Errorf("image: %w", err)
	}
	opts.report(StepSearch)
	res, err := dev.Search(ctx, r502.CharBuffer1, start, count)
	if err != nil {
		return r502.SearchResult{}, fmt.Errorf("search: %w", err)
	}
	opts.report(StepDone)
	return res, nil
}
