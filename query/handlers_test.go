package query

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-concierge/core"
)

type stubRoleResolver struct {
	role core.Role
}

func (s stubRoleResolver) Resolve(context.Context, string) core.Role {
	return s.role
}

type stubAccessReader struct {
	authorized bool
	err        error
	gotSender  string
	gotRole    core.Role
}

func (s *stubAccessReader) IsAuthorized(_ context.Context, sender string, role core.Role) (bool, error) {
	s.gotSender = sender
	s.gotRole = role
	return s.authorized, s.err
}

type stubGrantReader struct {
	records   []core.AuthorizationRecord
	gotSender string
}

func (s *stubGrantReader) FindBySender(_ context.Context, sender string) ([]core.AuthorizationRecord, error) {
	s.gotSender = sender
	return s.records, nil
}

func TestResolveRoleQuery_DelegatesToResolver(t *testing.T) {
	q := NewResolveRoleQuery(stubRoleResolver{role: core.RoleStaff})
	role, err := q.Query(context.Background(), ResolveRoleMessage{Sender: "+15550000002"})
	if err != nil {
		t.Fatalf("resolve role: %v", err)
	}
	if role != core.RoleStaff {
		t.Fatalf("expected staff, got %q", role)
	}
}

func TestCheckAccessQuery_ParsesRoleAndDelegates(t *testing.T) {
	reader := &stubAccessReader{authorized: true}
	q := NewCheckAccessQuery(reader)

	authorized, err := q.Query(context.Background(), CheckAccessMessage{Sender: "+15550000002", Role: "Admin"})
	if err != nil {
		t.Fatalf("check access: %v", err)
	}
	if !authorized {
		t.Fatalf("expected authorized result")
	}
	if reader.gotRole != core.RoleAdmin {
		t.Fatalf("expected parsed admin role, got %q", reader.gotRole)
	}

	if _, err := q.Query(context.Background(), CheckAccessMessage{Sender: "+15550000002", Role: "root"}); err == nil {
		t.Fatalf("expected unknown role rejection")
	}
}

func TestCheckAccessQuery_PropagatesReaderError(t *testing.T) {
	reader := &stubAccessReader{err: errors.New("db offline")}
	q := NewCheckAccessQuery(reader)
	if _, err := q.Query(context.Background(), CheckAccessMessage{Sender: "+15550000002", Role: "staff"}); err == nil {
		t.Fatalf("expected reader error propagation")
	}
}

func TestListGrantsQuery_NormalizesSender(t *testing.T) {
	reader := &stubGrantReader{records: []core.AuthorizationRecord{{ID: "grant_1"}}}
	q := NewListGrantsQuery(reader)

	records, err := q.Query(context.Background(), ListGrantsMessage{Sender: " +1 (555) 000-0002 "})
	if err != nil {
		t.Fatalf("list grants: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if reader.gotSender != "+15550000002" {
		t.Fatalf("expected normalized sender, got %q", reader.gotSender)
	}
}

func TestQueries_NilDependenciesReturnError(t *testing.T) {
	var roleQuery *ResolveRoleQuery
	if _, err := roleQuery.Query(context.Background(), ResolveRoleMessage{Sender: "+15550000002"}); err == nil {
		t.Fatalf("expected dependency error from nil role query")
	}
	var accessQuery *CheckAccessQuery
	if _, err := accessQuery.Query(context.Background(), CheckAccessMessage{Sender: "+15550000002", Role: "staff"}); err == nil {
		t.Fatalf("expected dependency error from nil access query")
	}
	var grantsQuery *ListGrantsQuery
	if _, err := grantsQuery.Query(context.Background(), ListGrantsMessage{Sender: "+15550000002"}); err == nil {
		t.Fatalf("expected dependency error from nil grants query")
	}
}
