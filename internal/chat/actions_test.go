package chat

import (
	"regexp"
	"testing"
)

func TestSanitizeReply_NoTag(t *testing.T) {
	clean, actions := SanitizeReply("Got it! What does that look like?")
	if clean != "Got it! What does that look like?" {
		t.Errorf("reply without tags must pass through, got %q", clean)
	}
	if len(actions) != 0 {
		t.Errorf("expected no actions, got %+v", actions)
	}
}

func TestSanitizeReply_StripsTagAndParsesAction(t *testing.T) {
	clean, actions := SanitizeReply("Sure, let's switch! <system_action>topic=recursion</system_action>")
	if clean != "Sure, let's switch!" {
		t.Errorf("tag not stripped: %q", clean)
	}
	if len(actions) != 1 || actions[0].Key != "topic" || actions[0].Value != "recursion" {
		t.Fatalf("unexpected actions %+v", actions)
	}
}

func TestSanitizeReply_MultipleTagsAndSemicolons(t *testing.T) {
	reply := "Opening a fresh chat. <system_action>session=new</system_action>" +
		"<system_action>topic=sorting; reset</system_action>"
	clean, actions := SanitizeReply(reply)
	if clean != "Opening a fresh chat." {
		t.Errorf("tags not stripped: %q", clean)
	}
	want := []Action{{Key: "session", Value: "new"}, {Key: "topic", Value: "sorting"}, {Key: "reset"}}
	if len(actions) != len(want) {
		t.Fatalf("expected %d actions, got %+v", len(want), actions)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("action %d: want %+v, got %+v", i, want[i], actions[i])
		}
	}
}

func TestSanitizeReply_UnknownTagStillStripped(t *testing.T) {
	clean, actions := SanitizeReply("Okay. <system_action>self_destruct=now</system_action>")
	if clean != "Okay." {
		t.Errorf("unknown tag must still be stripped: %q", clean)
	}
	if len(actions) != 1 || actions[0].Key != "self_destruct" {
		t.Fatalf("unknown actions should still parse for the caller to ignore, got %+v", actions)
	}
}

func TestSanitizeReply_MultilineTag(t *testing.T) {
	clean, actions := SanitizeReply("Done.\n<system_action>\ntopic=graphs\n</system_action>")
	if clean != "Done." {
		t.Errorf("multiline tag not stripped: %q", clean)
	}
	if len(actions) != 1 || actions[0].Key != "topic" || actions[0].Value != "graphs" {
		t.Fatalf("unexpected actions %+v", actions)
	}
}

func TestDetectDevCommand(t *testing.T) {
	if cmd := DetectDevCommand("tell me about /reset buttons"); cmd != nil {
		t.Errorf("mid-sentence slash must not trigger, got %+v", cmd)
	}
	cmd := DetectDevCommand("  /search_topic linked lists ")
	if cmd == nil || cmd.Cmd != "search_topic" || cmd.Arg != "linked lists" {
		t.Fatalf("unexpected dev command %+v", cmd)
	}
	if cmd := DetectDevCommand("/reset"); cmd == nil || cmd.Cmd != "reset" {
		t.Fatalf("unexpected dev command %+v", cmd)
	}
	if cmd := DetectDevCommand("just chatting"); cmd != nil {
		t.Errorf("plain prompt must not trigger, got %+v", cmd)
	}
}

func TestNewSessionID(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{8}-\d{6}-[0-9a-f]{8}$`)
	a, b := NewSessionID(), NewSessionID()
	if !pattern.MatchString(a) {
		t.Errorf("unexpected session id format %q", a)
	}
	if a == b {
		t.Error("session ids must be unique")
	}
}
