package kfmt

import (
	"bytes"
	"errors"
	"testing"
)

func TestPrefixWriter(t *testing.T) {
	specs := []struct {
		input string
		exp   string
	}{
		{
			"",
			"",
		},
		{
			"\n",
			"\t\n",
		},
		{
			"no line break anywhere",
			"\tno line break anywhere",
		},
		{
			"line feed at the end\n",
			"\tline feed at the end\n",
		},
		{
			"\n11110000\n00001111\n0000\n",
			"\t\n\t11110000\n\t00001111\n\t0000\n",
		},
	}

	var (
		buf bytes.Buffer
		w   = PrefixWriter{
			Sink:   &buf,
			Prefix: []byte("\t"),
		}
	)

	for specIndex, spec := range specs {
		buf.Reset()
		w.midLine = false

		wrote, err := w.Write([]byte(spec.input))
		if err != nil {
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
		}

		if expLen := len(spec.input); expLen != wrote {
			t.Errorf("[spec %d] expected writer to write %d bytes; wrote %d", specIndex, expLen, wrote)
		}

		if got := buf.String(); got != spec.exp {
			t.Errorf("[spec %d] expected output:\n%q\ngot:\n%q", specIndex, spec.exp, got)
		}
	}
}

func TestPrefixWriterAcrossWrites(t *testing.T) {
	var (
		buf bytes.Buffer
		w   = PrefixWriter{Sink: &buf, Prefix: []byte("[vmm] ")}
	)

	Fprintf(&w, "line %d", 1)
	Fprintf(&w, " continued\nline %d\n", 2)

	if exp, got := "[vmm] line 1 continued\n[vmm] line 2\n", buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}

type errWriter struct{}

func (errWriter) Write(_ []byte) (int, error) { return 0, errors.New("write failed") }

func TestPrefixWriterErrors(t *testing.T) {
	w := PrefixWriter{Sink: errWriter{}, Prefix: []byte("prefix: ")}
	if _, err := w.Write([]byte("data\n")); err == nil {
		t.Fatal("expected an error")
	}
}
