/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"matlib/internal/host/hosttest"
)

// cliHost is the headless host of the command line: an in-memory scene graph
// whose confirmations are asked on the terminal.
type cliHost struct {
	*hosttest.Host
	in  *bufio.Reader
	out io.Writer
	yes bool
}

func newCLIHost(in io.Reader, out io.Writer, yes bool) *cliHost {
	return &cliHost{Host: hosttest.New(), in: bufio.NewReader(in), out: out, yes: yes}
}

func (h *cliHost) Confirm(prompt string) bool {
	if h.yes {
		return true
	}
	_, _ = fmt.Fprintf(h.out, "%s [y/N]: ", prompt)
	line, err := h.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// SelectFile never picks anything; the directory comes from flags or config.
func (h *cliHost) SelectFile(string) string { return "" }
