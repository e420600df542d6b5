package ident

import (
	"strings"
	"testing"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		ownerID  int64
		env      string
		table    string
		expected string
	}{
		{42, "e1", "t1", "_42_e1_t1"},
		{1, "production", "orders", "_1_production_orders"},
		{0, "e", "t", "_0_e_t"},
		{9001, "Env_2", "_private", "_9001_Env_2__private"},
	}

	for _, test := range tests {
		result := Derive(test.ownerID, test.env, test.table)
		if result != test.expected {
			t.Errorf("Derive(%d, %q, %q) = %q, expected %q", test.ownerID, test.env, test.table, result, test.expected)
		}
	}
}

func TestDeriveDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		if Derive(42, "e1", "t1") != "_42_e1_t1" {
			t.Fatal("Derive is not deterministic")
		}
	}
}

func TestDeriveInjective(t *testing.T) {
	seen := make(map[string]string)
	triples := []struct {
		owner int64
		env   string
		table string
	}{
		{1, "a", "b"}, {1, "b", "a"}, {2, "a", "b"},
		{1, "a", "c"}, {11, "a", "b"}, {1, "aa", "b"},
	}
	for _, tr := range triples {
		id := Derive(tr.owner, tr.env, tr.table)
		if prev, ok := seen[id]; ok {
			t.Errorf("collision: %q produced by two distinct triples (%s)", id, prev)
		}
		seen[id] = id
	}
}

func TestValidateEnvironmentName(t *testing.T) {
	valid := []string{"e1", "production", "Env_2", "_", strings.Repeat("a", 25)}
	for _, name := range valid {
		if err := ValidateEnvironmentName(name); err != nil {
			t.Errorf("ValidateEnvironmentName(%q) = %v, expected nil", name, err)
		}
	}

	invalid := []string{"", "has space", "has-dash", "dot.name", strings.Repeat("a", 26)}
	for _, name := range invalid {
		if err := ValidateEnvironmentName(name); err == nil {
			t.Errorf("ValidateEnvironmentName(%q) = nil, expected error", name)
		}
	}
}

func TestValidateTableName(t *testing.T) {
	valid := []string{"t1", "_private", "Orders_2024", strings.Repeat("a", 31)}
	for _, name := range valid {
		if err := ValidateTableName(name); err != nil {
			t.Errorf("ValidateTableName(%q) = %v, expected nil", name, err)
		}
	}

	invalid := []string{"", "1table", "_id", "bad name", "semi;colon", strings.Repeat("a", 32)}
	for _, name := range invalid {
		if err := ValidateTableName(name); err == nil {
			t.Errorf("ValidateTableName(%q) = nil, expected error", name)
		}
	}
}

func TestValidateFieldName(t *testing.T) {
	valid := []string{"title", "count", "_hidden", strings.Repeat("f", 50)}
	for _, name := range valid {
		if err := ValidateFieldName(name); err != nil {
			t.Errorf("ValidateFieldName(%q) = %v, expected nil", name, err)
		}
	}

	invalid := []string{"", "_id", "with space", "1st", strings.Repeat("f", 51)}
	for _, name := range invalid {
		if err := ValidateFieldName(name); err == nil {
			t.Errorf("ValidateFieldName(%q) = nil, expected error", name)
		}
	}
}

func TestValidateDescription(t *testing.T) {
	if err := ValidateDescription(strings.Repeat("d", 500)); err != nil {
		t.Errorf("500 character description rejected: %v", err)
	}
	if err := ValidateDescription(strings.Repeat("d", 501)); err == nil {
		t.Error("501 character description accepted")
	}
	// The bound is on characters, not bytes
	if err := ValidateDescription(strings.Repeat("é", 500)); err != nil {
		t.Errorf("500 character multibyte description rejected: %v", err)
	}
	if err := ValidateDescription(strings.Repeat("é", 501)); err == nil {
		t.Error("501 character multibyte description accepted")
	}
}
