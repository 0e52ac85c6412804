package utils

import "testing"

func TestIsValidFileExtension(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		allowed  []string
		want     bool
	}{
		{"jpg proof", "payment-proof.jpg", ReceiptAttachmentExtensions, true},
		{"uppercase extension", "SCAN.PDF", ReceiptAttachmentExtensions, true},
		{"webp proof", "cheque.webp", ReceiptAttachmentExtensions, true},
		{"executable rejected", "proof.exe", ReceiptAttachmentExtensions, false},
		{"no extension", "receipt", ReceiptAttachmentExtensions, false},
		{"empty filename", "", ReceiptAttachmentExtensions, false},
		{"double extension uses last", "proof.pdf.exe", ReceiptAttachmentExtensions, false},
		{"custom allow list", "report.csv", []string{"csv", "xlsx"}, true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidFileExtension(tc.filename, tc.allowed); got != tc.want {
				t.Fatalf("IsValidFileExtension(%q, %v) = %v, want %v", tc.filename, tc.allowed, got, tc.want)
			}
		})
	}
}
