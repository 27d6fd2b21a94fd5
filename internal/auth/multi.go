// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package auth

import (
	"context"
	"errors"
	"net/http"
	"sort"
)

// MultiAuthenticator tries authenticators by ascending Priority.
type MultiAuthenticator struct {
	authenticators []Authenticator
}

func NewMultiAuthenticator(authenticators ...Authenticator) *MultiAuthenticator {
	list := make([]Authenticator, 0, len(authenticators))
	for _, a := range authenticators {
		if a != nil {
			list = append(list, a)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Priority() < list[j].Priority() })
	return &MultiAuthenticator{authenticators: list}
}

func (m *MultiAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Subject, error) {
	var unavailable error
	for _, a := range m.authenticators {
		subject, err := a.Authenticate(ctx, r)
		if err == nil {
			return subject, nil
		}
		switch {
		case errors.Is(err, ErrNoCredentials):
			continue
		case errors.Is(err, ErrAuthenticatorUnavailable):
			unavailable = err
			continue
		}
		return nil, err
	}
	// A provider outage must not look like a missing credential.
	if unavailable != nil {
		return nil, unavailable
	}
	return nil, ErrNoCredentials
}

// Names lists the chain in evaluation order.
func (m *MultiAuthenticator) Names() []string {
	names := make([]string, len(m.authenticators))
	for i, a := range m.authenticators {
		names[i] = a.Name()
	}
	return names
}

func (m *MultiAuthenticator) Name() string { return "multi" }

func (m *MultiAuthenticator) Priority() int { return 0 }

var _ Authenticator = (*MultiAuthenticator)(nil)
