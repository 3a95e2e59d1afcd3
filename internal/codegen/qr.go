package codegen

import (
	"encoding/base64"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultQRSize = 300

// QREncoder renders a ticket code as a QR image whose payload is the
// verification URL for that code.
type QREncoder struct {
	baseURL string
	size    int
}

// NewQREncoder builds an encoder rooted at baseURL.
func NewQREncoder(baseURL string, size int) *QREncoder {
	if size <= 0 {
		size = defaultQRSize
	}
	return &QREncoder{baseURL: strings.TrimRight(baseURL, "/"), size: size}
}

// VerificationURL returns the URL a scanner opens for code.
func (e *QREncoder) VerificationURL(code string) string {
	return e.baseURL + "/verify/" + url.PathEscape(code)
}

// PNG returns the QR image for code.
func (e *QREncoder) PNG(code string) ([]byte, error) {
	return qrcode.Encode(e.VerificationURL(code), qrcode.Medium, e.size)
}

// DataURL returns the QR image as a data URL for embedding in mail.
func (e *QREncoder) DataURL(code string) (string, error) {
	png, err := e.PNG(code)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
