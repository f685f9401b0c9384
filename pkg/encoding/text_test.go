package encoding

import "testing"

func TestToUTF8(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		enc  string
		want string
	}{
		{"utf-8 passthrough", []byte("curva"), UTF8, "curva"},
		{"default is utf-8", []byte("Ascari"), "", "Ascari"},
		{"windows-1252", []byte{'c', 'h', 'i', 'c', 'a', 'n', 'e', 0xE9}, Windows1252, "chicané"},
		{"latin1 alias", []byte{0xFC}, "latin1", "ü"},
		{"unknown encoding", []byte("abc"), "ebcdic", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToUTF8(tt.data, tt.enc); got != tt.want {
				t.Errorf("ToUTF8() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecoderUnknown(t *testing.T) {
	if _, ok := Decoder("shift-jis"); ok {
		t.Error("Decoder(shift-jis) should report !ok")
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  1ROAD_main \t", "1ROAD_main"},
		{"e\u0301tape", "\u00e9tape"}, // decomposed é becomes composed
		{"AC_START\x00_0", "AC_START_0"},
	}

	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`textures\asphalt.dds`, "textures/asphalt.dds"},
		{"a/./b/../asphalt.dds", "a/asphalt.dds"},
		{"/abs//path/x.png", "/abs/path/x.png"},
	}

	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := BaseName(`C:\tracks\grass.dds`); got != "grass.dds" {
		t.Errorf("BaseName() = %q, want grass.dds", got)
	}
}
