package config

import (
	"encoding/binary"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Target
		wantErr bool
	}{
		{
			name:    "empty uses defaults",
			content: "",
			want:    Default(),
		},
		{
			name: "pic big endian",
			content: "endianness: big\n" +
				"relocation-model: pic\n" +
				"fix-global-base-register: false\n",
			want: Target{
				Endianness:         BigEndian,
				RelocationModel:    PICRelocation,
				DeleteUselessJumps: true,
			},
		},
		{
			name:    "unknown field",
			content: "frame-pointer: always\n",
			wantErr: true,
		},
		{
			name:    "unknown endianness",
			content: "endianness: middle\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		got, err := Parse([]byte(tt.content))
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.name)
			}
			continue
		}

		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
			continue
		}

		if got != tt.want {
			t.Errorf("%s: got %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestWithEnvironment(t *testing.T) {
	t.Setenv(EndiannessEnv, "BIG")
	t.Setenv(RelocationModelEnv, "pic")
	t.Setenv(DisableFPEliminationEnv, "true")

	got, err := Default().WithEnvironment()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Endianness != BigEndian {
		t.Errorf("got endianness %q, want %q", got.Endianness, BigEndian)
	}
	if !got.IsPIC() || !got.UsesGlobalBaseRestore() {
		t.Errorf("expected pic with global base restore: %+v", got)
	}
	if !got.DisableFramePointerElimination {
		t.Errorf("expected frame pointer elimination disabled")
	}
	if got.ByteOrder() != binary.BigEndian {
		t.Errorf("expected big endian byte order")
	}
}

func TestByteOrder(t *testing.T) {
	target := Default()
	if target.ByteOrder() != binary.LittleEndian {
		t.Errorf("expected little endian default")
	}

	target.Endianness = NativeEndian
	if target.ByteOrder() == nil {
		t.Errorf("expected native byte order")
	}
}
