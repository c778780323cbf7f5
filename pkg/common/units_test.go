package common

import (
	"testing"
	"time"
)

func TestNormalizeUnit(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want Value
	}{
		{name: "kilograms to grams", in: NumberValue(1.5, "kg"), want: NumberValue(1500, "g")},
		{name: "milligrams to grams", in: NumberValue(250, "mg"), want: NumberValue(0.25, "g")},
		{name: "kelvin to celsius", in: NumberValue(373.15, "K"), want: NumberValue(100, "°C")},
		{name: "fahrenheit to celsius", in: NumberValue(212, "°F"), want: NumberValue(100, "°C")},
		{name: "celsius spelling", in: NumberValue(-20, "degC"), want: NumberValue(-20, "°C")},
		{name: "bar to kilopascal", in: NumberValue(2, "bar"), want: NumberValue(200, "kPa")},
		{name: "unknown unit unchanged", in: NumberValue(3, "furlong"), want: NumberValue(3, "furlong")},
		{name: "strings unchanged", in: StringValue("kg"), want: StringValue("kg")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeUnit(tt.in); !got.Equal(tt.want) {
				t.Fatalf("NormalizeUnit(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw  string
		want Value
	}{
		{raw: "98.08 g/mol", want: NumberValue(98.08, "g/mol")},
		{raw: "98.08 g", want: NumberValue(98.08, "g")},
		{raw: "12", want: NumberValue(12, "")},
		{raw: "yes", want: BoolValue(true)},
		{raw: "2024-03-01", want: DateValue(mustDate("2024-03-01"))},
		{raw: "H2SO4", want: StringValue("H2SO4")},
		{raw: "7664-93-9", want: StringValue("7664-93-9")},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseValue(tt.raw); !got.Equal(tt.want) {
				t.Fatalf("ParseValue(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestAttributeSourceNewer(t *testing.T) {
	early := mustDate("2024-01-01")
	late := mustDate("2024-06-01")
	if !(AttributeSource{RecordID: "a", RetrievedAt: late}).Newer(AttributeSource{RecordID: "z", RetrievedAt: early}) {
		t.Fatal("later retrieval should win")
	}
	if !(AttributeSource{RecordID: "b", RetrievedAt: early}).Newer(AttributeSource{RecordID: "a", RetrievedAt: early}) {
		t.Fatal("greater record id should win on equal timestamps")
	}
	if (AttributeSource{RecordID: "a", RetrievedAt: early}).Newer(AttributeSource{RecordID: "b", RetrievedAt: early}) {
		t.Fatal("smaller record id should lose on equal timestamps")
	}
}

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
