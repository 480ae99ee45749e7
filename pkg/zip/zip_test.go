package zip

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func entry(name, body string) Entry {
	return Entry{Filename: name, Open: func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}}
}

func TestWrite(t *testing.T) {
	buf := &bytes.Buffer{}
	err := Write(buf, []Entry{entry("a.png", "one"), entry("a.png", "two"), entry("../../etc/b.jpg", "three")})
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	want := map[string]string{"a.png": "one", "a-1.png": "two", "b.jpg": "three"}
	if len(zr.File) != len(want) {
		t.Fatalf("files = %d", len(zr.File))
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if want[f.Name] != string(data) {
			t.Fatalf("%s = %q", f.Name, data)
		}
	}
}

func TestWriteOpenError(t *testing.T) {
	boom := errors.New("boom")
	err := Write(io.Discard, []Entry{{Filename: "x.png", Open: func() (io.ReadCloser, error) { return nil, boom }}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
