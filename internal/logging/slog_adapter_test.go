// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestSlogHandlerWritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	logger := slog.New(NewSlogHandler()).With("service", "http").WithGroup("req")
	logger.Warn("slow", "took", 2*time.Second, "ok", true, "err", errors.New("x"))

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"service":"http"`, `"req.ok":true`, `"req.err":"x"`, `"message":"slow"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestSlogHandlerNestedGroup(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	slog.New(NewSlogHandler()).Info("x", slog.Group("svc", slog.String("name", "hub")))

	if !strings.Contains(buf.String(), `"svc.name":"hub"`) {
		t.Errorf("expected grouped key, got %s", buf.String())
	}
}

func TestZerologLevelMapping(t *testing.T) {
	t.Parallel()

	if zerologLevel(slog.LevelDebug).String() != "debug" ||
		zerologLevel(slog.LevelInfo).String() != "info" ||
		zerologLevel(slog.LevelWarn).String() != "warn" ||
		zerologLevel(slog.LevelError+4).String() != "error" {
		t.Error("unexpected level mapping")
	}
}
