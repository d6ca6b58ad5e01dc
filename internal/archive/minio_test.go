package archive

import "testing"

func TestObjectKeys(t *testing.T) {
	if got := SnapshotKey("tpl-1", "ver-2"); got != "templates/tpl-1/versions/ver-2/snapshot.json" {
		t.Errorf("SnapshotKey() = %q", got)
	}
	if got := PDFKey("doc-9"); got != "documents/doc-9/document.pdf" {
		t.Errorf("PDFKey() = %q", got)
	}
}
