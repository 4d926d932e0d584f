package remote

import "testing"

func TestMatchOperators(t *testing.T) {
	fields := map[string]any{
		"status":       "pending",
		"duration":     float64(60),
		"participants": []any{"u1", "u2"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"equal string", Filter{"status", OpEqual, "pending"}, true},
		{"equal named type", Filter{"status", OpEqual, testStatus("pending")}, true},
		{"not equal", Filter{"status", OpEqual, "accepted"}, false},
		{"int against float", Filter{"duration", OpEqual, 60}, true},
		{"greater", Filter{"duration", OpGreater, 30}, true},
		{"less equal", Filter{"duration", OpLessEqual, 59}, false},
		{"array contains", Filter{"participants", OpArrayContains, "u2"}, true},
		{"array missing", Filter{"participants", OpArrayContains, "u3"}, false},
		{"missing field", Filter{"location", OpEqual, "Cafe"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(fields, []Filter{tt.filter}); got != tt.want {
				t.Fatalf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

type testStatus string

func TestQueryKeyIsStable(t *testing.T) {
	a := Collection("messages").Where("sender_id", OpEqual, "u1").OrderedBy("timestamp", true)
	b := Collection("messages").Where("sender_id", OpEqual, "u1").OrderedBy("timestamp", true)
	if a.Key() != b.Key() {
		t.Fatalf("expected equal keys, got %q and %q", a.Key(), b.Key())
	}
	c := Collection("messages").Where("receiver_id", OpEqual, "u1")
	if a.Key() == c.Key() {
		t.Fatalf("expected different disjuncts to have different keys")
	}
}

func TestWhereDoesNotAlias(t *testing.T) {
	base := Collection("exchanges").Where("status", OpEqual, "pending")
	left := base.Where("initiator_id", OpEqual, "u1")
	right := base.Where("recipient_id", OpEqual, "u1")
	if left.Filters[1].Field != "initiator_id" || right.Filters[1].Field != "recipient_id" {
		t.Fatalf("derived queries share filter storage")
	}
}

func TestValidateRejectsUnknownOperator(t *testing.T) {
	q := Collection("skills").Where("name", Op("like"), "go")
	if err := q.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}
