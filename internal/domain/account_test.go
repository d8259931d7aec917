package domain

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "+963980907351", "+963980907351", false},
		{"spaces and dashes", "+963 980-907-351", "+963980907351", false},
		{"parens", "+1 (555) 123-4567", "+15551234567", false},
		{"missing prefix", "963980907351", "", true},
		{"letters", "+96398090abcd", "", true},
		{"too short", "+1234567", "", true},
		{"empty", "", "", true},
		{"prefix only", "+", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizePhone(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	inputs := []string{"+963 980 907 351", "+1 (555) 123-4567", "+442071234567"}
	for _, in := range inputs {
		once, err := NormalizePhone(in)
		if err != nil {
			t.Fatalf("NormalizePhone(%q) failed: %v", in, err)
		}
		twice, err := NormalizePhone(once)
		if err != nil {
			t.Fatalf("NormalizePhone(%q) failed on second pass: %v", once, err)
		}
		if once != twice {
			t.Errorf("normalization not idempotent: %q != %q", once, twice)
		}
	}
}

func TestValidCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"12345", true},
		{"0000", true},
		{"123", false},
		{"12a45", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidCode(tt.code); got != tt.want {
			t.Errorf("ValidCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
