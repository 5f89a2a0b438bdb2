package auth

import "testing"

func TestSessionSignInOut(t *testing.T) {
	s := NewSession("")
	if _, ok := s.CurrentUserID(); ok {
		t.Fatal("new empty session should be signed out")
	}

	var seen []string
	s.OnChange(func(id string) { seen = append(seen, id) })

	s.SignIn("u1")
	if id, ok := s.CurrentUserID(); !ok || id != "u1" {
		t.Errorf("got %q/%v, want u1/true", id, ok)
	}
	s.SignIn("u1")
	s.SignOut()
	if _, ok := s.CurrentUserID(); ok {
		t.Error("still signed in after SignOut")
	}

	if len(seen) != 2 || seen[0] != "u1" || seen[1] != "" {
		t.Errorf("hooks saw %q, want [u1 \"\"]", seen)
	}
}

func TestStatic(t *testing.T) {
	if _, ok := Static("").CurrentUserID(); ok {
		t.Error("empty Static should be signed out")
	}
	if id, ok := Static("u9").CurrentUserID(); !ok || id != "u9" {
		t.Errorf("got %q/%v", id, ok)
	}
}
