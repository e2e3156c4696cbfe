package operator

import "testing"

func TestValidateUsername(t *testing.T) {
	ok := []string{"alice1", "alice_01", "a1234", "john-doe", "alice.dev"}
	for _, v := range ok {
		if err := ValidateUsername(v); err != nil {
			t.Fatalf("expected valid username %q: %v", v, err)
		}
	}
	bad := []string{"", "1alice", "a", "ab", "a_", "a..", "a*", "toolongusername_over_32_chars_abc"}
	for _, v := range bad {
		if err := ValidateUsername(v); err == nil {
			t.Fatalf("expected invalid username %q", v)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("S3cure!Passw0rd", "alice"); err != nil {
		t.Fatalf("expected valid password: %v", err)
	}
	if err := ValidatePassword("short1!", "alice"); err == nil {
		t.Fatalf("expected error for short password")
	}
	if err := ValidatePassword("alllowercase123!", "alice"); err == nil {
		t.Fatalf("expected error for missing upper")
	}
	if err := ValidatePassword("ALLUPPERCASE123!", "alice"); err == nil {
		t.Fatalf("expected error for missing lower")
	}
	if err := ValidatePassword("NoDigits!!!!!!!", "alice"); err == nil {
		t.Fatalf("expected error for missing digit")
	}
	if err := ValidatePassword("NoSpecial12345", "alice"); err == nil {
		t.Fatalf("expected error for missing special")
	}
	if err := ValidatePassword("Alice!Passw0rd", "alice"); err == nil {
		t.Fatalf("expected error for containing username")
	}
}

func TestNewOperator(t *testing.T) {
	o, err := NewOperator("  Alice ", "S3cure!Passw0rd", RoleOperator, []string{"Finance", "finance", " "})
	if err != nil {
		t.Fatalf("expected operator: %v", err)
	}
	if o.Username != "alice" {
		t.Fatalf("expected normalized username, got %q", o.Username)
	}
	if len(o.Groups) != 1 || o.Groups[0] != "finance" {
		t.Fatalf("unexpected groups %v", o.Groups)
	}
	if !VerifyPassword(o.PasswordHash, "S3cure!Passw0rd") {
		t.Fatalf("expected password to verify")
	}
	if o.ActorString() != "user:alice" {
		t.Fatalf("unexpected actor %q", o.ActorString())
	}
	if _, err := NewOperator("alice", "S3cure!Passw0rd", Role("ROOT"), nil); err == nil {
		t.Fatalf("expected invalid role error")
	}
}
