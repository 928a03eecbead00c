// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package enroll

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/whorl/pkg/r502"
)

var (
	noFinger = r502.NewDeviceError(r502.CodeNoFinger)
	notFound = r502.NewDeviceError(r502.CodeNotFound)
)

// fakeDevice replays scripted GenImg outcomes and records the calls made.
type fakeDevice struct {
	captures []error // consumed in order; exhausted means no finger
	convert  error
	model    error
	store    error
	search   r502.SearchResult
	searchE  error
	calls    []string
}

func (d *fakeDevice) CaptureImage(context.Context) error {
	d.calls = append(d.calls, "GenImg")
	if len(d.captures) == 0 {
		return noFinger
	}
	err := d.captures[0]
	d.captures = d.captures[1:]
	return err
}

func (d *fakeDevice) ConvertImage(_ context.Context, buffer uint8) error {
	d.calls = append(d.calls, fmt.Sprintf("Img2Tz%d", buffer))
	return d.convert
}

func (d *fakeDevice) CreateModel(context.Context) error {
	d.calls = append(d.calls, "RegModel")
	return d.model
}

func (d *fakeDevice) Store(context.Context, uint8, uint16) error {
	d.calls = append(d.calls, "Store")
	return d.store
}

func (d *fakeDevice) Search(context.Context, uint8, uint16, uint16) (r502.SearchResult, error) {
	d.calls = append(d.calls, "Search")
	return d.search, d.searchE
}

func fastOptions() Options {
	return Options{Limiter: rate.NewLimiter(rate.Inf, 1)}
}

func TestWaitForFinger_RetriesNoFinger(t *testing.T) {
	dev := &fakeDevice{captures: []error{noFinger, noFinger, nil}}
	require.NoError(t, WaitForFinger(context.Background(), dev, rate.NewLimiter(rate.Inf, 1)))
	assert.Len(t, dev.calls, 3)
}

func TestWaitForFinger_PropagatesOtherErrors(t *testing.T) {
	sensor := r502.NewDeviceError(r502.CodeSensorError)
	dev := &fakeDevice{captures: []error{noFinger, sensor}}

	err := WaitForFinger(context.Background(), dev, rate.NewLimiter(rate.Inf, 1))
	assert.True(t, r502.IsDeviceCode(err, r502.CodeSensorError))
}

func TestWaitForFinger_ContextDeadline(t *testing.T) {
	dev := &fakeDevice{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := WaitForFinger(ctx, dev, rate.NewLimiter(rate.Every(10*time.Millisecond), 1))
	require.Error(t, err)
	assert.NotEmpty(t, dev.calls)
}

func TestWaitForLift(t *testing.T) {
	dev := &fakeDevice{captures: []error{nil, r502.NewDeviceError(r502.CodeImageFail), noFinger}}
	require.NoError(t, WaitForLift(context.Background(), dev, rate.NewLimiter(rate.Inf, 1)))
	assert.Len(t, dev.calls, 3)
}

func TestEnroll_Sequence(t *testing.T) {
	dev := &fakeDevice{captures: []error{
		noFinger, nil, // first placement
		nil, noFinger, // lift
		nil,           // second placement
	}}

	var steps []Step
	opts := fastOptions()
	opts.Progress = func(s Step) { steps = append(steps, s) }

	require.NoError(t, Enroll(context.Background(), dev, 3, opts))

	assert.Equal(t, []string{
		"GenImg", "GenImg", "Img2Tz1",
		"GenImg", "GenImg",
		"GenImg", "Img2Tz2",
		"RegModel", "Store",
	}, dev.calls)
	assert.Equal(t, []Step{
		StepPlaceFinger, StepConvertFirst, StepLiftFinger, StepPlaceAgain,
		StepConvertSecond, StepCreateModel, StepStore, StepDone,
	}, steps)
}

func TestEnroll_RejectsDuplicate(t *testing.T) {
	dev := &fakeDevice{
		captures: []error{nil},
		search:   r502.SearchResult{PageID: 9, Score: 180},
	}
	opts := fastOptions()
	opts.RejectDuplicates = true
	opts.DuplicateSearchCount = 200

	err := Enroll(context.Background(), dev, 3, opts)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.ErrorContains(t, err, "page 9")
	assert.NotContains(t, dev.calls, "Store")
}

func TestEnroll_DuplicateCheckPassesOnNotFound(t *testing.T) {
	dev := &fakeDevice{
		captures: []error{nil, noFinger, nil},
		searchE:  notFound,
	}
	opts := fastOptions()
	opts.RejectDuplicates = true
	opts.DuplicateSearchCount = 200

	require.NoError(t, Enroll(context.Background(), dev, 3, opts))
	assert.Contains(t, dev.calls, "Search")
}

func TestEnroll_MergeFailure(t *testing.T) {
	dev := &fakeDevice{
		captures: []error{nil, noFinger, nil},
		model:    r502.NewDeviceError(r502.CodeEnrollMismatch),
	}

	err := Enroll(context.Background(), dev, 3, fastOptions())
	assert.True(t, r502.IsCategory(err, r502.CategoryEnroll))
	assert.ErrorContains(t, err, "create model")
	assert.NotContains(t, dev.calls, "Store")
}

func TestIdentify(t *testing.T) {
	dev := &fakeDevice{
		captures: []error{noFinger, nil},
		search:   r502.SearchResult{PageID: 4, Score: 97},
	}

	var steps []Step
	opts := fastOptions()
	opts.Progress = func(s Step) { steps = append(steps, s) }

	res, err := Identify(context.Background(), dev, 0, 200, opts)
	require.NoError(t, err)
	assert.Equal(t, r502.SearchResult{PageID: 4, Score: 97}, res)
	assert.Equal(t, []Step{StepPlaceFinger, StepConvertFirst, StepSearch, StepDone}, steps)
	assert.Equal(t, "searching library", StepSearch.String())
}

func TestIdentify_NoMatch(t *testing.T) {
	dev := &fakeDevice{captures: []error{nil}, searchE: notFound}

	_, err := Identify(context.Background(), dev, 0, 200, fastOptions())
	assert.True(t, r502.IsDeviceCode(err, r502.CodeNotFound))
	assert.False(t, errors.Is(err, ErrDuplicate))
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "lift finger", StepLiftFinger.String())
	assert.Equal(t, "step(99)", Step(99).String())
}
