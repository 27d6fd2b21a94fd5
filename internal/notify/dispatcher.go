// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/store"
)

// Store is what the dispatcher and the alert evaluator read.
type Store interface {
	ListTenantUsers(ctx context.Context, tenantID string) ([]models.User, error)
	GetAlertPreferences(ctx context.Context, userID string) (*models.AlertPreferences, error)
	GetVehicle(ctx context.Context, tenantID, id string) (*models.Vehicle, error)
}

// Recipient is a tenant user with effective alert preferences.
type Recipient struct {
	User  models.User
	Prefs *models.AlertPreferences
}

// Dispatcher routes messages to the channels each recipient enabled.
// Channels without a configured Notifier are skipped.
type Dispatcher struct {
	store            Store
	notifiers        map[string]Notifier
	defaultThreshold int
}

func NewDispatcher(s Store, defaultThreshold int, notifiers ...Notifier) *Dispatcher {
	d := &Dispatcher{
		store:            s,
		notifiers:        make(map[string]Notifier, len(notifiers)),
		defaultThreshold: defaultThreshold,
	}
	for _, n := range notifiers {
		if n != nil {
			d.notifiers[n.Channel()] = n
		}
	}
	return d
}

// Channels lists the configured channel names.
func (d *Dispatcher) Channels() []string {
	out := make([]string, 0, len(d.notifiers))
	for _, c := range []string{ChannelSMS, ChannelEmail} {
		if _, ok := d.notifiers[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Recipients loads every user of the tenant with saved or default
// preferences.
func (d *Dispatcher) Recipients(ctx context.Context, tenantID string) ([]Recipient, error) {
	users, err := d.store.ListTenantUsers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant users: %w", err)
	}
	out := make([]Recipient, 0, len(users))
	for _, u := range users {
		prefs, err := d.store.GetAlertPreferences(ctx, u.ID)
		if errors.Is(err, store.ErrNotFound) {
			prefs = DefaultPreferences(u.ID, d.defaultThreshold)
		} else if err != nil {
			return nil, fmt.Errorf("load alert preferences for %s: %w", u.ID, err)
		}
		out = append(out, Recipient{User: u, Prefs: prefs})
	}
	return out, nil
}

// Deliver sends subject and body to r on every enabled channel. It returns
// the joined channel errors; a failure on one channel does not stop the
// others.
func (d *Dispatcher) Deliver(ctx context.Context, r Recipient, subject, body string) error {
	var errs []error
	if r.Prefs.SMSEnabled && r.User.Phone != "" {
		if n, ok := d.notifiers[ChannelSMS]; ok {
			if err := n.Send(ctx, Notification{To: r.User.Phone, Subject: subject, Body: body}); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if r.Prefs.EmailEnabled && r.User.Email != "" {
		if n, ok := d.notifiers[ChannelEmail]; ok {
			if err := n.Send(ctx, Notification{To: r.User.Email, Subject: subject, Body: body}); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		logging.Ctx(ctx).Warn().Err(errors.Join(errs...)).Str("user_id", r.User.ID).Msg("alert delivery failed")
	}
	return errors.Join(errs...)
}
