package telemetry

import "testing"

func TestDecode(t *testing.T) {
	d := NewDecoder("INTERLOCK")

	tests := []struct {
		name string
		line string
		want Raw
		kind Kind
	}{
		{
			name: "valid reading",
			line: "5.2,3.1,20",
			want: Raw{UpperDistance: 5.2, LowerDistance: 3.1, PumpRaw: 20},
			kind: Reading,
		},
		{
			name: "handshake token",
			line: "INTERLOCK",
			kind: Handshake,
		},
		{
			name: "handshake token embedded in text",
			line: "BOOT OK INTERLOCK READY",
			kind: Handshake,
		},
		{
			name: "non-numeric field",
			line: "5.2,abc,20",
			kind: None,
		},
		{
			name: "two fields",
			line: "5.2,3.1",
			kind: None,
		},
		{
			name: "four fields",
			line: "5.2,3.1,20,7",
			kind: None,
		},
		{
			name: "no separator",
			line: "garbage",
			kind: None,
		},
		{
			name: "empty line",
			line: "",
			kind: None,
		},
		{
			name: "float pump value rejected",
			line: "5.2,3.1,20.5",
			kind: None,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, kind := d.Decode(tt.line)
			if kind != tt.kind {
				t.Fatalf("Decode(%q) kind = %v, want %v", tt.line, kind, tt.kind)
			}
			if kind == Reading && raw != tt.want {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.line, raw, tt.want)
			}
		})
	}
}
