package db

import (
	"strings"
	"testing"

	"github.com/rajivgeraev/skillswap-api/internal/remote"
)

func TestBuildQueryEquality(t *testing.T) {
	q := remote.Collection("exchanges").
		Where("initiator_id", remote.OpEqual, "u1").
		OrderedBy("created_at", true)

	sql, args, err := BuildQuery(q)
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	want := "SELECT id, data FROM documents WHERE collection = $1 AND data @> $2::jsonb ORDER BY data -> $3::text DESC, id ASC"
	if sql != want {
		t.Fatalf("unexpected sql:\n%s\nwant:\n%s", sql, want)
	}
	if len(args) != 3 || args[0] != "exchanges" || args[1] != `{"initiator_id":"u1"}` || args[2] != "created_at" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestBuildQueryArrayContainsRangeAndLimit(t *testing.T) {
	q := remote.Query{
		Collection: "conversations",
		Filters: []remote.Filter{
			{Field: "participants", Op: remote.OpArrayContains, Value: "u2"},
			{Field: "updated_at", Op: remote.OpGreater, Value: "2024-01-01T00:00:00Z"},
		},
		Limit: 20,
	}
	sql, args, err := BuildQuery(q)
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	if !strings.Contains(sql, "data @> $2::jsonb") || !strings.Contains(sql, "data -> $3::text > $4::jsonb") || !strings.HasSuffix(sql, "LIMIT $5") {
		t.Fatalf("unexpected sql %s", sql)
	}
	if args[1] != `{"participants":["u2"]}` || args[3] != `"2024-01-01T00:00:00Z"` || args[4] != 20 {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestBuildQueryRejectsInvalid(t *testing.T) {
	if _, _, err := BuildQuery(remote.Query{}); err == nil {
		t.Fatalf("expected error for query without collection")
	}
}
