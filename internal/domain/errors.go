/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "errors"

// Error taxonomy. Call sites wrap these with context; callers classify with errors.Is.
var (
	// ErrNotFound: catalog document or artifact missing. Recoverable by seeding a library.
	ErrNotFound = errors.New("not found")
	// ErrCorrupt: catalog document failed to parse or validate. No partial catalog is exposed.
	ErrCorrupt = errors.New("catalog document corrupt")
	// ErrUnsupportedNodeKind: node or asset renderer outside the fixed renderer set.
	ErrUnsupportedNodeKind = errors.New("unsupported node kind")
	// ErrMissingColorConfig: renderer needs a global colour-management config that is not set.
	ErrMissingColorConfig = errors.New("colour management config missing")
	// ErrRenderTimeout: the preview render did not signal completion in time. Soft failure.
	ErrRenderTimeout = errors.New("render timed out")
	// ErrIO: artifact or document read/write failure.
	ErrIO = errors.New("i/o error")
)

// IOError wraps err so that it matches both ErrIO and the underlying error.
func IOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ioError{op: op, err: err}
}

type ioError struct {
	op  string
	err error
}

func (e *ioError) Error() string { return e.op + ": " + e.err.Error() }

func (e *ioError) Unwrap() []error { return []error{ErrIO, e.err} }
