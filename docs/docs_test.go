// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package docs

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/swaggo/swag"
)

func TestSwaggerDocumentIsValidJSON(t *testing.T) {
	t.Parallel()

	doc, err := swag.ReadDoc(SwaggerInfo.InstanceName())
	if err != nil {
		t.Fatalf("ReadDoc: %v", err)
	}
	var parsed struct {
		BasePath string                     `json:"basePath"`
		Paths    map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("document is not JSON: %v", err)
	}
	if parsed.BasePath != "/api/v1" {
		t.Errorf("basePath = %q", parsed.BasePath)
	}
	for _, p := range []string{"/webhooks/telemetry", "/vehicles/{id}/state", "/stream"} {
		if _, ok := parsed.Paths[p]; !ok {
			t.Errorf("path %s missing", p)
		}
	}
}
