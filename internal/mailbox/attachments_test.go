package mailbox

import (
	"errors"
	"strings"
	"testing"
)

// crlf converts \n line endings to the \r\n that RFC 822 messages use.
func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

const invoiceMessage = `From: "ACME Billing" <billing@acme.com>
To: user@example.com
Subject: Invoice ACME
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8

Invoice attached.
--inner
Content-Type: text/html; charset=utf-8

<p>Invoice attached.</p>
--inner--
--outer
Content-Type: application/pdf; name="invoice-42.pdf"
Content-Disposition: attachment; filename="invoice-42.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQgdGVzdA==
--outer--
`

func TestCollectAttachments(t *testing.T) {
	atts, err := collectAttachments(crlf(invoiceMessage))
	if err != nil {
		t.Fatalf("collectAttachments error = %v", err)
	}

	if len(atts) != 1 {
		t.Fatalf("got %d attachments, want 1: %+v", len(atts), atts)
	}
	att := atts[0]
	if att.Filename != "invoice-42.pdf" {
		t.Errorf("Filename = %q, want %q", att.Filename, "invoice-42.pdf")
	}
	if att.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q, want application/pdf", att.ContentType)
	}
	if !att.IsPDF {
		t.Error("IsPDF = false, want true")
	}
}

func TestCollectAttachments_EncodedFilename(t *testing.T) {
	msg := crlf(`From: billing@acme.com
Subject: Racun
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="b"

--b
Content-Type: text/plain

see attachment
--b
Content-Type: application/octet-stream
Content-Disposition: attachment; filename="=?UTF-8?B?UmHEjXVuLnBkZg==?="

payload
--b--
`)

	atts, err := collectAttachments(msg)
	if err != nil {
		t.Fatalf("collectAttachments error = %v", err)
	}
	if len(atts) != 1 {
		t.Fatalf("got %d attachments, want 1", len(atts))
	}
	if atts[0].Filename != "Račun.pdf" {
		t.Errorf("Filename = %q, want %q", atts[0].Filename, "Račun.pdf")
	}
	// Content type is not PDF, but the decoded filename extension is.
	if !atts[0].IsPDF {
		t.Error("IsPDF = false, want true")
	}
}

func TestCollectAttachments_NameParamOnly(t *testing.T) {
	msg := crlf(`From: a@b.c
Subject: report
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="b"

--b
Content-Type: application/zip; name="Report.ZIP"

data
--b--
`)

	atts, err := collectAttachments(msg)
	if err != nil {
		t.Fatalf("collectAttachments error = %v", err)
	}
	if len(atts) != 1 {
		t.Fatalf("got %d attachments, want 1", len(atts))
	}
	if atts[0].Filename != "Report.ZIP" {
		t.Errorf("Filename = %q, want %q", atts[0].Filename, "Report.ZIP")
	}
	if atts[0].IsPDF {
		t.Error("IsPDF = true for a zip attachment")
	}
}

func TestCollectAttachments_NoAttachments(t *testing.T) {
	msg := crlf(`From: a@b.c
Subject: plain
Content-Type: text/plain

just text
`)

	atts, err := collectAttachments(msg)
	if err != nil {
		t.Fatalf("collectAttachments error = %v", err)
	}
	if len(atts) != 0 {
		t.Fatalf("got %d attachments, want 0", len(atts))
	}
}

func TestFindAttachment(t *testing.T) {
	data, err := findAttachment(crlf(invoiceMessage), "invoice-42.pdf")
	if err != nil {
		t.Fatalf("findAttachment error = %v", err)
	}
	if string(data) != "%PDF-1.4 test" {
		t.Errorf("payload = %q, want %q", data, "%PDF-1.4 test")
	}
}

func TestFindAttachment_NotFound(t *testing.T) {
	_, err := findAttachment(crlf(invoiceMessage), "missing.pdf")
	if !errors.Is(err, ErrAttachmentNotFound) {
		t.Errorf("error = %v, want ErrAttachmentNotFound", err)
	}
}

func TestIsPDF(t *testing.T) {
	tests := []struct {
		contentType string
		filename    string
		want        bool
	}{
		{"application/pdf", "whatever.bin", true},
		{"application/octet-stream", "invoice.pdf", true},
		{"application/octet-stream", "INVOICE.PDF", true},
		{"text/plain", "notes.txt", false},
		{"image/png", "scan.png", false},
	}

	for _, tt := range tests {
		if got := isPDF(tt.contentType, tt.filename); got != tt.want {
			t.Errorf("isPDF(%q, %q) = %v, want %v", tt.contentType, tt.filename, got, tt.want)
		}
	}
}
