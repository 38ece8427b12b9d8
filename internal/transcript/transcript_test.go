package transcript

import "testing"

func TestToQAText(t *testing.T) {
	turns := []Turn{
		{Role: "agent", Message: "Hi"},
		{Role: "user", Message: "Hello"},
		{Role: "agent", Message: ""},
	}

	got := ToQAText(turns)
	want := "Q: Hi\n\nA: Hello"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestToQATextEmpty(t *testing.T) {
	if got := ToQAText(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
	if got := ToQAText([]Turn{{Role: "agent", Message: "   "}}); got != "" {
		t.Fatalf("expected whitespace-only turn to be dropped, got %q", got)
	}
}

func TestToQATextFieldVariants(t *testing.T) {
	turns := []Turn{
		{Speaker: "assistant", OriginalMessage: "State your name."},
		{Speaker: "caller", Text: "Jane Doe."},
		{Role: "user", Content: "That is all."},
	}

	got := ToQAText(turns)
	want := "Q: State your name.\n\nA: Jane Doe.\n\nA: That is all."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestToQATextUnknownRoleIsAnswer(t *testing.T) {
	got := ToQAText([]Turn{{Message: "no role at all"}})
	if got != "A: no role at all" {
		t.Fatalf("got %q", got)
	}
}

func TestToQATextRoleCaseInsensitive(t *testing.T) {
	got := ToQAText([]Turn{{Role: "Agent", Message: "Please continue."}})
	if got != "Q: Please continue." {
		t.Fatalf("got %q", got)
	}
}

func TestBodyPrecedence(t *testing.T) {
	turn := Turn{Message: "primary", Text: "secondary"}
	if turn.Body() != "primary" {
		t.Fatalf("expected message field to win, got %q", turn.Body())
	}
}

func TestAnswerCount(t *testing.T) {
	qa := ToQAText([]Turn{
		{Role: "agent", Message: "Q1"},
		{Role: "user", Message: "A1"},
		{Role: "agent", Message: "Q2"},
		{Role: "user", Message: "A2"},
		{Role: "user", Message: "A3"},
	})
	if got := AnswerCount(qa); got != 3 {
		t.Fatalf("expected 3 answers, got %d", got)
	}
	if got := AnswerCount(""); got != 0 {
		t.Fatalf("expected 0 answers for empty transcript, got %d", got)
	}
}
