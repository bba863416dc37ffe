package questions

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefaultSchemaShape(t *testing.T) {
	s := Default()
	if s.Len() != 9 {
		t.Fatalf("expected 9 questions, got %d", s.Len())
	}
	if s.At(0).ID != "title" || s.At(8).ID != "images" {
		t.Fatalf("unexpected order: first %s last %s", s.At(0).ID, s.At(8).ID)
	}
	if steps := s.FileSteps(); len(steps) != 1 || steps[0] != 8 {
		t.Fatalf("unexpected file steps %v", steps)
	}
}

func TestNewRejectsBrokenSchemas(t *testing.T) {
	cases := map[string][]Descriptor{
		"empty":       nil,
		"missing id":  {{Label: "x", Kind: KindText}},
		"duplicate":   {{ID: "a", Kind: KindText}, {ID: "a", Kind: KindNumber}},
		"radio":       {{ID: "r", Kind: KindRadio}},
		"unknown":     {{ID: "u", Kind: "color"}},
	}
	for name, descs := range cases {
		if _, err := New(descs); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestValidatePerKind(t *testing.T) {
	s := Default()
	title, mrp, condition, images := s.At(0), s.At(2), s.At(4), s.At(8)

	var verr *ValidationError
	if _, err := title.Validate("   ", 0); !errors.As(err, &verr) || verr.Field != "title" {
		t.Fatalf("expected validation error on title, got %v", err)
	}
	if v, err := title.Validate(" Dune ", 0); err != nil || v != "Dune" {
		t.Fatalf("unexpected title result %v %v", v, err)
	}
	if _, err := mrp.Validate("abc", 0); err == nil {
		t.Fatalf("expected number error")
	}
	if v, err := mrp.Validate("499.5", 0); err != nil || v != 499.5 {
		t.Fatalf("unexpected mrp result %v %v", v, err)
	}
	if _, err := condition.Validate("mint", 0); err == nil {
		t.Fatalf("expected radio option error")
	}
	if v, err := condition.Validate("best", 0); err != nil || v != "best" {
		t.Fatalf("unexpected condition result %v %v", v, err)
	}
	if _, err := images.Validate("", 0); !errors.As(err, &verr) || verr.Field != "images" {
		t.Fatalf("expected images validation error, got %v", err)
	}
	if _, err := images.Validate("", 2); err != nil {
		t.Fatalf("images with staged files: %v", err)
	}
}

func TestFormatRoundTripsRecordedValues(t *testing.T) {
	mrp := Default().At(2)
	v, err := mrp.Validate("250", 0)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := mrp.Format(v); got != "250" {
		t.Fatalf("format mismatch: %q", got)
	}
}

func TestAccepts(t *testing.T) {
	images := Default().At(8)
	if !images.Accepts("image/png") || !images.Accepts("image/jpeg; charset=binary") {
		t.Fatalf("image types should be accepted")
	}
	if images.Accepts("application/pdf") {
		t.Fatalf("pdf should be rejected")
	}
	exact := Descriptor{ID: "f", Kind: KindFileMulti, Files: &FileConstraints{Accept: "image/png, image/gif"}}
	if !exact.Accepts("image/gif") || exact.Accepts("image/jpeg") {
		t.Fatalf("exact list mismatch")
	}
}

func TestLoadYAMLMatchesMarshal(t *testing.T) {
	data, err := yaml.Marshal(Default())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "questions.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Len() != Default().Len() {
		t.Fatalf("loaded %d questions", s.Len())
	}
	if got := s.At(5).HelpText; got == "" {
		t.Fatalf("help text lost")
	}
	if s.At(8).Files == nil || s.At(8).Files.Accept != "image/*" {
		t.Fatalf("file constraints lost: %#v", s.At(8).Files)
	}
}
