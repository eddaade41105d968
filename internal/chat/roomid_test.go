package chat

import "testing"

func TestDeriveRoomIDSymmetry(t *testing.T) {
	cases := []struct {
		a, b, context string
	}{
		{"r1", "c1", ""},
		{"r1", "c1", "job42"},
		{"alpha", "beta", "ctx"},
		{"zzz", "aaa", ""},
		{"same", "same", "job1"},
	}
	for _, tc := range cases {
		got := DeriveRoomID(tc.a, tc.b, tc.context)
		flipped := DeriveRoomID(tc.b, tc.a, tc.context)
		if got != flipped {
			t.Errorf("DeriveRoomID(%q,%q,%q) = %q but flipped = %q", tc.a, tc.b, tc.context, got, flipped)
		}
	}
}

func TestDeriveRoomIDContextDistinctness(t *testing.T) {
	withJob := DeriveRoomID("r1", "c1", "job1")
	withOtherJob := DeriveRoomID("r1", "c1", "job2")
	without := DeriveRoomID("r1", "c1", "")

	if withJob == withOtherJob {
		t.Errorf("different contexts produced the same id %q", withJob)
	}
	if withJob == without {
		t.Errorf("context id %q collides with the context-free id", withJob)
	}
}

func TestDeriveRoomIDComposition(t *testing.T) {
	if got := DeriveRoomID("r1", "c1", "job42"); got != "c1_r1_job42" {
		t.Errorf("DeriveRoomID(r1,c1,job42) = %q, want c1_r1_job42", got)
	}
	if got := DeriveRoomID("r1", "c1", ""); got != "c1_r1" {
		t.Errorf("DeriveRoomID(r1,c1) = %q, want c1_r1", got)
	}
}

func TestValidateParticipantID(t *testing.T) {
	for id, want := range map[string]bool{
		"r1":     true,
		"":       false,
		"a_b":    false,
		"user-7": true,
	} {
		if got := ValidateParticipantID(id); got != want {
			t.Errorf("ValidateParticipantID(%q) = %v, want %v", id, got, want)
		}
	}
}
