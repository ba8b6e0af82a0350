package fileid

import (
	"strings"
	"testing"
)

func TestDocID_Stable(t *testing.T) {
	a := DocID("/data/notes/todo.txt")
	b := DocID("/data/notes/todo.txt")
	if a != b {
		t.Errorf("same path produced different IDs: %s vs %s", a, b)
	}
}

func TestDocID_NormalizesPath(t *testing.T) {
	a := DocID("/data/notes/todo.txt")
	b := DocID("/data/notes/../notes/todo.txt")
	if a != b {
		t.Errorf("equivalent paths produced different IDs: %s vs %s", a, b)
	}
}

func TestDocID_DistinctPaths(t *testing.T) {
	if DocID("/a.txt") == DocID("/b.txt") {
		t.Error("different paths produced the same ID")
	}
}

func TestDocID_Prefix(t *testing.T) {
	if id := DocID("/a.txt"); !strings.HasPrefix(id, "file:") {
		t.Errorf("ID missing file: prefix: %s", id)
	}
}
