package branchname

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty", "", true},
		{"at", "@", true},
		{"dotdot", "a..b", true},
		{"trailing slash", "a/", true},
		{"shell dollar", "a$b", true},
		{"slash dot", "a/.b", true},
		{"dot lock", "a.lock", true},
		{"at brace", "a@{1}", true},
		{"control char", "a\tb", true},
		{"leading dot", ".a", true},
		{"double slash", "a//b", true},
		{"reserved tilde", "a~b", true},
		{"valid", "a-b_c/d.e", false},
		{"valid simple", "feature/foo", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	a := MustParse("feature/foo")
	b := MustParse("feature/foo")
	c := MustParse("feature/bar")
	if !a.Equal(b) {
		t.Fatal("expected equal names to compare equal")
	}
	if a.Equal(c) {
		t.Fatal("expected different names to compare unequal")
	}
}
