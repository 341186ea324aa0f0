// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package generate

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one Server-Sent Event. kind is the "event:" field value,
// empty for the default event type. data joins the "data:" lines with
// newlines per the SSE specification.
type sseEvent struct {
	kind string
	data string
}

// sseScanner reads Server-Sent Events from a reader. Events are
// delimited by blank lines; comment lines and unknown fields are
// ignored. After next returns false, err distinguishes a clean EOF
// from a read failure.
type sseScanner struct {
	reader  *bufio.Reader
	current sseEvent
	readErr error
}

func newSSEScanner(reader io.Reader) *sseScanner {
	return &sseScanner{reader: bufio.NewReaderSize(reader, 64*1024)}
}

func (scanner *sseScanner) next() bool {
	scanner.current = sseEvent{}

	var dataLines []string
	var kind string
	hasData := false

	for {
		line, err := scanner.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				// A partial final event (no trailing blank line) still
				// gets delivered before the scanner stops.
				if hasData {
					scanner.current = sseEvent{kind: kind, data: strings.Join(dataLines, "\n")}
					scanner.readErr = io.EOF
					return true
				}
				return false
			}
			scanner.readErr = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		// Blank line ends the event.
		if line == "" {
			if hasData {
				scanner.current = sseEvent{kind: kind, data: strings.Join(dataLines, "\n")}
				return true
			}
			kind = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, hasColon := strings.Cut(line, ":")
		if !hasColon {
			field, value = line, ""
		} else {
			// One leading space after the colon is separator, not payload.
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			kind = value
		}
	}
}

func (scanner *sseScanner) event() sseEvent {
	return scanner.current
}

func (scanner *sseScanner) err() error {
	if scanner.readErr == io.EOF {
		return nil
	}
	return scanner.readErr
}
