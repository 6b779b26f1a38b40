package charset

import (
	"errors"
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name         string
		input        []byte
		wantText     string
		wantEncoding string
		wantErr      bool
	}{
		{
			name:         "valid UTF-8 with accents",
			input:        []byte("Montréal,Québec"),
			wantText:     "Montréal,Québec",
			wantEncoding: "utf-8",
		},
		{
			name:         "UTF-8 with BOM",
			input:        append([]byte{0xEF, 0xBB, 0xBF}, []byte("Trois-Rivières")...),
			wantText:     "Trois-Rivières",
			wantEncoding: "utf-8",
		},
		{
			// "Montréal" with é as the single Latin-1 byte 0xE9.
			name:         "latin-1 accents",
			input:        []byte{'M', 'o', 'n', 't', 'r', 0xE9, 'a', 'l'},
			wantText:     "Montréal",
			wantEncoding: "iso-8859-1",
		},
		{
			name:    "ASCII only, no diagnostic characters",
			input:   []byte("AN,CLAS,MARQ_VEH\n2020,PAU,TOYOTA"),
			wantErr: true,
		},
		{
			name:    "empty input",
			input:   []byte{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, enc, err := Resolve(tt.input, DefaultCandidates())
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Resolve() succeeded with encoding %q, want error", enc)
				}
				if !errors.Is(err, ErrUnresolvable) {
					t.Errorf("error = %v, want ErrUnresolvable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if enc != tt.wantEncoding {
				t.Errorf("encoding = %q, want %q", enc, tt.wantEncoding)
			}
		})
	}
}

func TestResolve_UTF8WinsOverLatin1(t *testing.T) {
	// Valid UTF-8 must be claimed by the utf-8 candidate even though
	// iso-8859-1 would also decode the same bytes without error.
	input := []byte("Côte-Nord")
	_, enc, err := Resolve(input, DefaultCandidates())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if enc != "utf-8" {
		t.Errorf("encoding = %q, want utf-8", enc)
	}
}

func TestResolve_LargeFileStaysIntact(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 1000; i++ {
		b.WriteString("Chaudière-Appalaches,Lévis\n")
	}
	text, _, err := Resolve([]byte(b.String()), DefaultCandidates())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(text) != b.Len() {
		t.Errorf("decoded length = %d, want %d", len(text), b.Len())
	}
}
