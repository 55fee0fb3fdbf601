package events

import "testing"

func TestParseObjectKey(t *testing.T) {
	tests := []struct {
		name      string
		objectKey string
		wantDocID string
		wantFile  string
		wantErr   bool
	}{
		{name: "valid", objectKey: "abc-123/inv-001.pdf", wantDocID: "abc-123", wantFile: "inv-001.pdf"},
		{name: "valid nested", objectKey: "abc-123/batch/inv-001.pdf", wantDocID: "abc-123", wantFile: "batch/inv-001.pdf"},
		{name: "invalid no slash", objectKey: "abc-123", wantErr: true},
		{name: "invalid empty", objectKey: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			docID, filename, err := parseObjectKey(tc.objectKey)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if docID != tc.wantDocID {
				t.Fatalf("docID mismatch: got %q want %q", docID, tc.wantDocID)
			}
			if filename != tc.wantFile {
				t.Fatalf("filename mismatch: got %q want %q", filename, tc.wantFile)
			}
		})
	}
}

func TestDecodeObjectKey(t *testing.T) {
	decoded, err := decodeObjectKey("abc-123%2Finvoice%20final.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != "abc-123/invoice final.pdf" {
		t.Fatalf("decoded mismatch: got %q", decoded)
	}
}
