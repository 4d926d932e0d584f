package models

import "testing"

func TestConversationIDIsSymmetric(t *testing.T) {
	cases := [][2]string{{"u1", "u2"}, {"b", "a"}, {"same", "same"}, {"user-9", "user-10"}}
	for _, c := range cases {
		if ConversationID(c[0], c[1]) != ConversationID(c[1], c[0]) {
			t.Fatalf("conversation id differs for %v", c)
		}
	}
	if got := ConversationID("u2", "u1"); got != "u1-u2" {
		t.Fatalf("expected u1-u2, got %s", got)
	}
}

func TestTrustScore(t *testing.T) {
	if TrustScore(nil) != 0 {
		t.Fatalf("expected zero score without ratings")
	}
	got := TrustScore([]Rating{{Score: 5}, {Score: 4}, {Score: 3}})
	if got != 4 {
		t.Fatalf("expected mean 4, got %v", got)
	}
}

func TestEnumsValidation(t *testing.T) {
	if !CategoryMusic.Valid() || SkillCategory("gardening").Valid() {
		t.Fatalf("category validation mismatch")
	}
	if !LevelExpert.Valid() || SkillLevel("guru").Valid() {
		t.Fatalf("level validation mismatch")
	}
	if !NotificationSystem.Valid() || NotificationType("promo").Valid() {
		t.Fatalf("notification type validation mismatch")
	}
	if !StatusCompleted.Terminal() || StatusAccepted.Terminal() {
		t.Fatalf("terminal status mismatch")
	}
}

func TestCoordinatesValid(t *testing.T) {
	if !(Coordinates{Latitude: 55.75, Longitude: 37.61}).Valid() {
		t.Fatalf("expected valid coordinates")
	}
	if (Coordinates{Latitude: 91}).Valid() || (Coordinates{Longitude: -181}).Valid() {
		t.Fatalf("expected out of range coordinates to be rejected")
	}
}
