package util

import "testing"

func TestSanitizePostgresText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain sds text",
			input: "Sulfuric acid (H₂SO₄) boils at 337 °C.",
			want:  "Sulfuric acid (H₂SO₄) boils at 337 °C.",
		},
		{
			name:  "null byte inside formula",
			input: "H2\x00SO4",
			want:  "H2SO4",
		},
		{
			name:  "invalid utf8 from a broken export",
			input: string([]byte{'C', 'a', 0xff, 'C', 'O', '3'}),
			want:  "CaCO3",
		},
		{
			name:  "page break between sections",
			input: "Section 7: Handling\fSection 8: Exposure",
			want:  "Section 7: Handling Section 8: Exposure",
		},
		{
			name:  "line breaks and tabs kept",
			input: "Hazard:\tcorrosive\r\nGHS05",
			want:  "Hazard:\tcorrosive\r\nGHS05",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizePostgresText(tt.input); got != tt.want {
				t.Fatalf("SanitizePostgresText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
