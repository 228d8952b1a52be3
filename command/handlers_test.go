package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-concierge/core"
)

type stubMutatingService struct {
	grantFn     func(ctx context.Context, sender string, role core.Role, grantedBy string) (core.AuthorizationRecord, error)
	revokeFn    func(ctx context.Context, sender string) (bool, error)
	setActiveFn func(ctx context.Context, sender string, active bool) (bool, error)
}

func (s stubMutatingService) Grant(ctx context.Context, sender string, role core.Role, grantedBy string) (core.AuthorizationRecord, error) {
	if s.grantFn == nil {
		return core.AuthorizationRecord{}, errors.New("unexpected grant call")
	}
	return s.grantFn(ctx, sender, role, grantedBy)
}

func (s stubMutatingService) Revoke(ctx context.Context, sender string) (bool, error) {
	if s.revokeFn == nil {
		return false, errors.New("unexpected revoke call")
	}
	return s.revokeFn(ctx, sender)
}

func (s stubMutatingService) SetActive(ctx context.Context, sender string, active bool) (bool, error) {
	if s.setActiveFn == nil {
		return false, errors.New("unexpected set active call")
	}
	return s.setActiveFn(ctx, sender, active)
}

func TestGrantAccessCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.AuthorizationRecord{
		ID:        "grant_1",
		Sender:    "+15550000002",
		Role:      core.RoleStaff,
		Active:    true,
		GrantedBy: "acct_owner",
	}
	called := false

	svc := stubMutatingService{
		grantFn: func(_ context.Context, sender string, role core.Role, grantedBy string) (core.AuthorizationRecord, error) {
			called = true
			if sender != "+15550000002" || role != core.RoleStaff || grantedBy != "acct_owner" {
				t.Fatalf("unexpected grant payload: %q %q %q", sender, role, grantedBy)
			}
			return expected, nil
		},
	}

	cmd := NewGrantAccessCommand(svc)
	collector := gocmd.NewResult[core.AuthorizationRecord]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, GrantAccessMessage{
		Sender:    "+15550000002",
		Role:      "staff",
		GrantedBy: "acct_owner",
	})
	if err != nil {
		t.Fatalf("execute grant: %v", err)
	}
	if !called {
		t.Fatalf("expected grant service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.ID != expected.ID || result.Role != expected.Role {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestGrantAccessCommand_DuplicateGrantBubbles(t *testing.T) {
	svc := stubMutatingService{
		grantFn: func(context.Context, string, core.Role, string) (core.AuthorizationRecord, error) {
			return core.AuthorizationRecord{}, core.ErrDuplicateGrant
		},
	}
	cmd := NewGrantAccessCommand(svc)
	err := cmd.Execute(context.Background(), GrantAccessMessage{
		Sender: "+15550000002", Role: "staff", GrantedBy: "acct_owner",
	})
	if !errors.Is(err, core.ErrDuplicateGrant) {
		t.Fatalf("expected duplicate grant sentinel, got %v", err)
	}
}

func TestRevokeAccessCommand_NotFound(t *testing.T) {
	called := false
	svc := stubMutatingService{
		revokeFn: func(_ context.Context, sender string) (bool, error) {
			called = true
			if sender != "+15550000002" {
				t.Fatalf("unexpected revoke sender: %q", sender)
			}
			return false, nil
		},
	}
	cmd := NewRevokeAccessCommand(svc)
	err := cmd.Execute(context.Background(), RevokeAccessMessage{Sender: "+15550000002"})
	if !called {
		t.Fatalf("expected revoke invocation")
	}
	if !errors.Is(err, core.ErrGrantNotFound) {
		t.Fatalf("expected grant-not-found sentinel, got %v", err)
	}
}

func TestSetAccessActiveCommand_Delegates(t *testing.T) {
	var gotActive bool
	svc := stubMutatingService{
		setActiveFn: func(_ context.Context, sender string, active bool) (bool, error) {
			if sender != "+15550000002" {
				t.Fatalf("unexpected sender: %q", sender)
			}
			gotActive = active
			return true, nil
		},
	}
	cmd := NewSetAccessActiveCommand(svc)
	if err := cmd.Execute(context.Background(), SetAccessActiveMessage{Sender: "+15550000002", Active: false}); err != nil {
		t.Fatalf("execute set active: %v", err)
	}
	if gotActive {
		t.Fatalf("expected active=false to be forwarded")
	}
}

func TestGrantAccessMessage_Validate(t *testing.T) {
	valid := GrantAccessMessage{Sender: "+15550000002", Role: "staff", GrantedBy: "acct_owner"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid message: %v", err)
	}

	cases := []struct {
		name string
		msg  GrantAccessMessage
	}{
		{"blank sender", GrantAccessMessage{Role: "staff", GrantedBy: "acct_owner"}},
		{"unknown role", GrantAccessMessage{Sender: "+15550000002", Role: "root", GrantedBy: "acct_owner"}},
		{"open role", GrantAccessMessage{Sender: "+15550000002", Role: "customer", GrantedBy: "acct_owner"}},
		{"blank granted by", GrantAccessMessage{Sender: "+15550000002", Role: "staff"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.msg.Validate(); err == nil {
				t.Fatalf("expected validation failure")
			}
		})
	}
}
