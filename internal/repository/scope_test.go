package repository

import (
	"errors"
	"testing"
)

func TestForCompanyRequiresTenant(t *testing.T) {
	if _, err := forCompany("  "); !errors.Is(err, ErrMissingTenant) {
		t.Fatalf("expected ErrMissingTenant, got %v", err)
	}
}

func TestTenantQueryAlwaysScopesByCompany(t *testing.T) {
	q, err := forCompany("c1")
	if err != nil {
		t.Fatal(err)
	}
	q.where("id", "t1").whereIn("status", []string{"open", "waiting"}).whereExpr("agent_id IS DISTINCT FROM %s", "a1")

	want := " WHERE company_id=$1 AND id=$2 AND status = ANY($3) AND agent_id IS DISTINCT FROM $4"
	if got := q.sql(); got != want {
		t.Fatalf("sql = %q\nwant %q", got, want)
	}
	if len(q.args) != 4 || q.args[0] != "c1" {
		t.Fatalf("unexpected args %v", q.args)
	}
}

func TestWhereInEmptyMatchesNothing(t *testing.T) {
	q, _ := forCompany("c1")
	q.whereIn("id", nil)
	if got := q.sql(); got != " WHERE company_id=$1 AND FALSE" {
		t.Fatalf("sql = %q", got)
	}
}
