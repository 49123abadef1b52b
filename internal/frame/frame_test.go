package frame

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	valid := New(4, 2)

	tests := []struct {
		name     string
		mutate   func(f *Frame)
		wantCode string
	}{
		{"valid", func(*Frame) {}, ""},
		{"short payload", func(f *Frame) { f.Data = f.Data[:10] }, CodeSizeMismatch},
		{"long payload", func(f *Frame) { f.Data = append(f.Data, 0) }, CodeSizeMismatch},
		{"zero width", func(f *Frame) { f.Width = 0 }, CodeInvalidDimensions},
		{"narrow stride", func(f *Frame) { f.BytesPerRow = 8 }, CodeInvalidDimensions},
		{"wrong format", func(f *Frame) { f.PixelFormat = 0x34323076 }, CodeUnsupportedFormat},
		{"padded stride", func(f *Frame) {
			f.BytesPerRow = 32
			f.Data = make([]byte, 64)
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid.Clone()
			tt.mutate(&f)

			err := Validate(f)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !HasCode(err, tt.wantCode) {
				t.Fatalf("Validate() error = %v, want code %s", err, tt.wantCode)
			}
			if !errors.Is(err, ErrInvalidFrame) {
				t.Error("validation error should match ErrInvalidFrame")
			}
		})
	}
}

func TestDeclaredFullHDWithTinyPayload(t *testing.T) {
	f := Frame{
		Width:       1920,
		Height:      1080,
		BytesPerRow: 1920 * 4,
		PixelFormat: BGRA32,
		Data:        make([]byte, 100),
	}
	if !HasCode(Validate(f), CodeSizeMismatch) {
		t.Fatal("expected size mismatch")
	}
}

func TestClone(t *testing.T) {
	f := New(2, 2)
	f.Data[0] = 7
	c := f.Clone()
	c.Data[0] = 9
	if f.Data[0] != 7 {
		t.Error("Clone shares payload with the original")
	}
}

func TestGeneratedFramesAreValid(t *testing.T) {
	for name, f := range map[string]Frame{
		"test pattern": TestPattern(64, 36, 5),
		"splash":       Splash(64, 36),
	} {
		if err := Validate(f); err != nil {
			t.Errorf("%s: Validate() = %v", name, err)
		}
		if f.Data[3] != 0xff {
			t.Errorf("%s: alpha = %d, want opaque", name, f.Data[3])
		}
	}

	a := TestPattern(16, 16, 0)
	b := TestPattern(16, 16, 40)
	if a.Data[0] == b.Data[0] && a.Data[2] == b.Data[2] {
		t.Error("test pattern does not change with phase")
	}
}

func TestPixelFormatString(t *testing.T) {
	if BGRA32.String() != "BGRA32" {
		t.Errorf("String() = %q", BGRA32.String())
	}
	if PixelFormat(1).String() != "0x00000001" {
		t.Errorf("String() = %q", PixelFormat(1).String())
	}
}

func TestPacked(t *testing.T) {
	packed := New(2, 2)
	if got := Packed(packed); &got.Data[0] != &packed.Data[0] {
		t.Error("packed frame should share its data")
	}

	padded := Frame{Width: 2, Height: 2, BytesPerRow: 12, PixelFormat: BGRA32, Data: make([]byte, 24)}
	padded.Data[0], padded.Data[12] = 1, 2
	got := Packed(padded)
	if got.BytesPerRow != 8 || len(got.Data) != 16 {
		t.Fatalf("stride %d len %d", got.BytesPerRow, len(got.Data))
	}
	if got.Data[0] != 1 || got.Data[8] != 2 {
		t.Errorf("rows not packed: %v", got.Data)
	}
	if err := Validate(got); err != nil {
		t.Errorf("packed frame invalid: %v", err)
	}
}
