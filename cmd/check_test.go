package cmd_test

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/knotapp/knot/cmd"
)

// fakeCheckIO serves file contents from a map.
type fakeCheckIO struct {
	files map[string][]byte
}

func (f *fakeCheckIO) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func runCheck(t *testing.T, io cmd.CheckIO, args ...string) (string, error) {
	t.Helper()
	c := cmd.NewCheckCmd(io)
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetErr(&out)
	c.SetArgs(args)
	err := c.Execute()
	return out.String(), err
}

func TestCheckCmd_Valid(t *testing.T) {
	io := &fakeCheckIO{files: map[string][]byte{
		"good.md": []byte("---\nid: abc\ntitle: \"Good\"\n---\n- a\n"),
	}}

	out, err := runCheck(t, io, "good.md")
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if !strings.Contains(out, "good.md is valid") {
		t.Errorf("output = %q, want validity confirmation", out)
	}
}

func TestCheckCmd_Invalid(t *testing.T) {
	io := &fakeCheckIO{files: map[string][]byte{
		"bad.md": []byte("no header\n"),
	}}

	_, err := runCheck(t, io, "bad.md")
	if err == nil {
		t.Fatal("Execute succeeded, want error for headerless file")
	}
	if !strings.Contains(err.Error(), "not a valid document") {
		t.Errorf("error = %v, want validity failure", err)
	}
}

func TestCheckCmd_MissingFile(t *testing.T) {
	io := &fakeCheckIO{files: map[string][]byte{}}

	_, err := runCheck(t, io, "absent.md")
	if err == nil {
		t.Fatal("Execute succeeded, want read error")
	}
}
