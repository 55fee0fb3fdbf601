package api

import "bytes"

var pdfMagic = []byte("%PDF-")

// isSupportedScanUpload accepts only PDF payloads; the analysis engine
// rejects anything else, so the upload surface filters early.
func isSupportedScanUpload(body []byte) bool {
	return bytes.HasPrefix(body, pdfMagic)
}
