// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestBindFlags_BasicTypes(t *testing.T) {
	type params struct {
		Name      string        `flag:"name" desc:"the name"`
		Recursive bool          `flag:"recursive,r" desc:"descend into subdirectories"`
		Count     int           `flag:"count" desc:"number of items"`
		Offset    int64         `flag:"offset" desc:"byte offset"`
		Timeout   time.Duration `flag:"timeout" desc:"request timeout"`
		Exclude   []string      `flag:"exclude" desc:"patterns to skip"`
		Length    ByteSize      `flag:"length" desc:"new length"`
		Untagged  string        // no flag tag, skipped
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	err := flagSet.Parse([]string{
		"--name", "alice",
		"-r",
		"--count", "42",
		"--offset", "1099511627776",
		"--timeout", "30s",
		"--exclude", "*.tmp,.git",
		"--length", "4MiB",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Name != "alice" {
		t.Errorf("Name = %q, want %q", p.Name, "alice")
	}
	if !p.Recursive {
		t.Error("Recursive = false, want true")
	}
	if p.Count != 42 {
		t.Errorf("Count = %d, want 42", p.Count)
	}
	if p.Offset != 1099511627776 {
		t.Errorf("Offset = %d, want 1099511627776", p.Offset)
	}
	if p.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", p.Timeout)
	}
	if len(p.Exclude) != 2 || p.Exclude[0] != "*.tmp" || p.Exclude[1] != ".git" {
		t.Errorf("Exclude = %v, want [*.tmp .git]", p.Exclude)
	}
	if p.Length != 4<<20 {
		t.Errorf("Length = %d, want %d", p.Length, 4<<20)
	}
	if p.Untagged != "" {
		t.Errorf("Untagged = %q, want empty (should be skipped)", p.Untagged)
	}
}

func TestBindFlags_Defaults(t *testing.T) {
	type params struct {
		Drive     string        `flag:"drive" desc:"drive file" default:"drive.vd"`
		Count     int           `flag:"count" desc:"count" default:"8"`
		Offset    int64         `flag:"offset" desc:"byte offset" default:"100"`
		Timeout   time.Duration `flag:"timeout" desc:"timeout" default:"10s"`
		Recursive bool          `flag:"recursive" desc:"recursive" default:"true"`
		Exclude   []string      `flag:"exclude" desc:"exclude" default:"x,y"`
		Chunk     ByteSize      `flag:"chunk" desc:"chunk size" default:"64KiB"`
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	if err := flagSet.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Drive != "drive.vd" {
		t.Errorf("Drive = %q, want %q", p.Drive, "drive.vd")
	}
	if p.Count != 8 {
		t.Errorf("Count = %d, want 8", p.Count)
	}
	if p.Offset != 100 {
		t.Errorf("Offset = %d, want 100", p.Offset)
	}
	if p.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", p.Timeout)
	}
	if !p.Recursive {
		t.Error("Recursive = false, want true")
	}
	if len(p.Exclude) != 2 || p.Exclude[0] != "x" || p.Exclude[1] != "y" {
		t.Errorf("Exclude = %v, want [x y]", p.Exclude)
	}
	if p.Chunk != 64<<10 {
		t.Errorf("Chunk = %d, want %d", p.Chunk, 64<<10)
	}
}

// testBinder binds its own flags.
type testBinder struct {
	Alpha string
	Beta  int
}

func (b *testBinder) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&b.Alpha, "alpha", "", "alpha value")
	flagSet.IntVar(&b.Beta, "beta", 0, "beta value")
}

func TestBindFlags_NamedFlagBinder(t *testing.T) {
	type params struct {
		Binder testBinder
		Extra  string `flag:"extra" desc:"extra flag"`
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	if err := flagSet.Parse([]string{"--alpha", "hello", "--beta", "7", "--extra", "world"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Binder.Alpha != "hello" {
		t.Errorf("Binder.Alpha = %q, want %q", p.Binder.Alpha, "hello")
	}
	if p.Binder.Beta != 7 {
		t.Errorf("Binder.Beta = %d, want 7", p.Binder.Beta)
	}
	if p.Extra != "world" {
		t.Errorf("Extra = %q, want %q", p.Extra, "world")
	}
}

func TestBindFlags_EmbeddedStructRecursion(t *testing.T) {
	type inner struct {
		Foo string `flag:"foo" desc:"foo flag"`
		Bar int    `flag:"bar" desc:"bar flag"`
	}
	type params struct {
		inner
		Baz bool `flag:"baz" desc:"baz flag"`
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	if err := flagSet.Parse([]string{"--foo", "hello", "--bar", "5", "--baz"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Foo != "hello" {
		t.Errorf("Foo = %q, want %q", p.Foo, "hello")
	}
	if p.Bar != 5 {
		t.Errorf("Bar = %d, want 5", p.Bar)
	}
	if !p.Baz {
		t.Error("Baz = false, want true")
	}
}

func TestBindFlags_ErrorNotPointer(t *testing.T) {
	type params struct {
		Name string `flag:"name"`
	}
	var p params
	err := BindFlags(p, pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err == nil {
		t.Fatal("expected error for non-pointer, got nil")
	}
	if want := "params must be a pointer to a struct"; !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want substring %q", err.Error(), want)
	}
}

func TestBindFlags_ErrorBadDefault(t *testing.T) {
	tests := []struct {
		name   string
		params any
	}{
		{"int", &struct {
			Count int `flag:"count" default:"not_a_number"`
		}{}},
		{"size", &struct {
			Size ByteSize `flag:"size" default:"lots"`
		}{}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := BindFlags(test.params, pflag.NewFlagSet("test", pflag.ContinueOnError)); err == nil {
				t.Fatal("expected error for bad default, got nil")
			}
		})
	}
}

func TestBindFlags_UnsupportedType(t *testing.T) {
	params := &struct {
		Rate float32 `flag:"rate"`
	}{}
	err := BindFlags(params, pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err == nil || !strings.Contains(err.Error(), "unsupported type") {
		t.Errorf("BindFlags = %v, want unsupported type error", err)
	}
}

func TestFlagsFromParams_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for nil input, got none")
		}
	}()
	FlagsFromParams("test", nil)
}

func TestByteSize(t *testing.T) {
	tests := []struct {
		input string
		want  ByteSize
	}{
		{"0", 0},
		{"4096", 4096},
		{"4KiB", 4096},
		{"1 MiB", 1 << 20},
		{"2kb", 2000},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			var size ByteSize
			if err := size.Set(test.input); err != nil {
				t.Fatalf("Set(%q): %v", test.input, err)
			}
			if size != test.want {
				t.Errorf("Set(%q) = %d, want %d", test.input, size, test.want)
			}
		})
	}

	var size ByteSize
	if err := size.Set("twelve"); err == nil {
		t.Error("Set(\"twelve\") = nil, want error")
	}
	size = 3 << 20
	if got := size.String(); got != "3.0 MiB" {
		t.Errorf("String() = %q, want %q", got, "3.0 MiB")
	}
}
