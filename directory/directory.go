// Package directory implements the access-control directory: persisted role
// grants keyed by normalized sender identifier, and the resolver that maps a
// sender to the most privileged role it holds.
package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-concierge/core"
)

type Directory struct {
	store  core.AuthorizationStore
	logger core.Logger
	now    func() time.Time
}

type Option func(*Directory)

func WithLogger(logger core.Logger) Option {
	return func(d *Directory) {
		d.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		if now != nil {
			d.now = now
		}
	}
}

func New(store core.AuthorizationStore, options ...Option) (*Directory, error) {
	if store == nil {
		return nil, fmt.Errorf("directory: authorization store is required")
	}
	d := &Directory{
		store: store,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range options {
		if opt != nil {
			opt(d)
		}
	}
	d.logger = glog.Ensure(d.logger)
	return d, nil
}

// IsAuthorized reports whether the sender may act under the given role. The
// open role is always authorized; restricted roles require an active record
// for the normalized sender.
func (d *Directory) IsAuthorized(ctx context.Context, sender string, role core.Role) (bool, error) {
	if d == nil || d.store == nil {
		return false, fmt.Errorf("directory: directory is not configured")
	}
	if !role.Restricted() {
		return true, nil
	}
	normalized := core.NormalizeSenderID(sender)
	if normalized == "" {
		return false, nil
	}
	_, found, err := d.store.FindActive(ctx, normalized, role)
	if err != nil {
		return false, err
	}
	return found, nil
}

// ResolveAccountID returns the owning-account reference recorded when the
// sender was granted the role.
func (d *Directory) ResolveAccountID(ctx context.Context, sender string, role core.Role) (string, bool, error) {
	if d == nil || d.store == nil {
		return "", false, fmt.Errorf("directory: directory is not configured")
	}
	normalized := core.NormalizeSenderID(sender)
	if normalized == "" {
		return "", false, nil
	}
	record, found, err := d.store.FindActive(ctx, normalized, role)
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, nil
	}
	return record.GrantedBy, true, nil
}

// FindBySender lists every record held by the sender, active or not.
func (d *Directory) FindBySender(ctx context.Context, sender string) ([]core.AuthorizationRecord, error) {
	if d == nil || d.store == nil {
		return nil, fmt.Errorf("directory: directory is not configured")
	}
	normalized := core.NormalizeSenderID(sender)
	if normalized == "" {
		return nil, fmt.Errorf("directory: sender identifier is required")
	}
	return d.store.FindBySender(ctx, normalized)
}

// Grant creates an active authorization record. Granting the open role is
// rejected: every sender holds it implicitly.
func (d *Directory) Grant(ctx context.Context, sender string, role core.Role, grantedBy string) (core.AuthorizationRecord, error) {
	if d == nil || d.store == nil {
		return core.AuthorizationRecord{}, fmt.Errorf("directory: directory is not configured")
	}
	if _, err := core.ParseRole(string(role)); err != nil {
		return core.AuthorizationRecord{}, err
	}
	if !role.Restricted() {
		return core.AuthorizationRecord{}, fmt.Errorf("directory: role %q requires no grant", role)
	}
	normalized := core.NormalizeSenderID(sender)
	if normalized == "" {
		return core.AuthorizationRecord{}, fmt.Errorf("directory: sender identifier is required")
	}
	if strings.TrimSpace(grantedBy) == "" {
		return core.AuthorizationRecord{}, fmt.Errorf("directory: granting account is required")
	}

	_, exists, err := d.store.FindActive(ctx, normalized, role)
	if err != nil {
		return core.AuthorizationRecord{}, err
	}
	if exists {
		return core.AuthorizationRecord{}, fmt.Errorf("directory: %s %s: %w", normalized, role, core.ErrDuplicateGrant)
	}

	record, err := d.store.Create(ctx, core.AuthorizationRecord{
		Sender:    normalized,
		Role:      role,
		Active:    true,
		GrantedBy: strings.TrimSpace(grantedBy),
		CreatedAt: d.now(),
	})
	if err != nil {
		return core.AuthorizationRecord{}, err
	}
	d.logger.Info("authorization granted", "sender", normalized, "role", string(role), "granted_by", record.GrantedBy)
	return record, nil
}

// Revoke hard-deletes every record held by the sender. Returns false when
// nothing matched.
func (d *Directory) Revoke(ctx context.Context, sender string) (bool, error) {
	if d == nil || d.store == nil {
		return false, fmt.Errorf("directory: directory is not configured")
	}
	normalized := core.NormalizeSenderID(sender)
	if normalized == "" {
		return false, fmt.Errorf("directory: sender identifier is required")
	}
	removed, err := d.store.Delete(ctx, normalized)
	if err != nil {
		return false, err
	}
	if removed == 0 {
		return false, nil
	}
	d.logger.Info("authorization revoked", "sender", normalized, "records", removed)
	return true, nil
}

// SetActive soft-toggles every record held by the sender. Returns false when
// nothing matched.
func (d *Directory) SetActive(ctx context.Context, sender string, active bool) (bool, error) {
	if d == nil || d.store == nil {
		return false, fmt.Errorf("directory: directory is not configured")
	}
	normalized := core.NormalizeSenderID(sender)
	if normalized == "" {
		return false, fmt.Errorf("directory: sender identifier is required")
	}
	updated, err := d.store.SetActive(ctx, normalized, active)
	if err != nil {
		return false, err
	}
	if updated == 0 {
		return false, nil
	}
	d.logger.Info("authorization toggled", "sender", normalized, "active", active, "records", updated)
	return true, nil
}
