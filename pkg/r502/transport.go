// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

import (
	"io"
	"time"
)

// Transport is the byte stream a Session talks to the module over.
//
// SetReadTimeout bounds subsequent Read calls. A Read that times out returns
// 0, nil. go.bug.st/serial ports satisfy Transport as-is.
type Transport interface {
	io.Reader
	io.Writer
	SetReadTimeout(t time.Duration) error
}

// InputResetter is implemented by transports that can discard unread input.
// A Session calls it before the first exchange following a failure. Other
// transports are drained by reading until the line goes quiet.
type InputResetter interface {
	ResetInputBuffer() error
}
