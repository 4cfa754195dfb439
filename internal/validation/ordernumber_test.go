package validation

import "testing"

func TestIsValidOrderNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
		want   bool
	}{
		{name: "valid", number: "RGO2608290001", want: true},
		{name: "empty", number: "", want: false},
		{name: "missing prefix", number: "2608290001", want: false},
		{name: "lowercase prefix", number: "rgo2608290001", want: false},
		{name: "wrong prefix", number: "ABC2608290001", want: false},
		{name: "too short", number: "RGO260829001", want: false},
		{name: "too long", number: "RGO26082900011", want: false},
		{name: "letters in sequence", number: "RGO26O8290001", want: false},
		{name: "prefix only", number: "RGO", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidOrderNumber(tt.number); got != tt.want {
				t.Fatalf("IsValidOrderNumber(%q) = %v, want %v", tt.number, got, tt.want)
			}
		})
	}
}
