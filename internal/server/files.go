package server

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxFileSize is the largest attachment the relay forwards, in bytes.
const MaxFileSize = 5 * 1024 * 1024

const (
	defaultFileName = "file"

	// mimetype reads at most 3072 bytes; 4096 base64 characters cover them.
	sniffPrefixLen = 4096
)

// prepareFile validates an attachment independently of anything the client
// checked and returns the payload to relay. The effective size is the larger
// of the claimed size and the decoded size of the data.
func prepareFile(sender string, file FileMessage) (FileBroadcast, error) {
	mediaType, body, err := splitDataURI(file.Data)
	if err != nil {
		return FileBroadcast{}, err
	}

	actual, err := decodedLen(body)
	if err != nil {
		return FileBroadcast{}, err
	}

	size := file.Size
	if actual > size {
		size = actual
	}
	if size > MaxFileSize {
		return FileBroadcast{}, fmt.Errorf("%w: %d bytes", ErrOversizedPayload, size)
	}

	fileType := strings.TrimSpace(file.Type)
	if fileType == "" {
		fileType = mediaType
	}
	if fileType == "" {
		fileType = sniffType(body)
	}

	return FileBroadcast{
		Sender: sender,
		Name:   sanitizeFileName(file.Name),
		Type:   fileType,
		Data:   file.Data,
	}, nil
}

// splitDataURI separates "data:<mime>[;params];base64,<body>" into its
// media type and base64 body. Bare base64 is accepted with no media type.
func splitDataURI(data string) (string, string, error) {
	if data == "" {
		return "", "", fmt.Errorf("%w: empty file data", ErrInvalidPayload)
	}
	if !strings.HasPrefix(data, "data:") {
		return "", data, nil
	}

	header, body, ok := strings.Cut(data[len("data:"):], ",")
	if !ok {
		return "", "", fmt.Errorf("%w: malformed data URI", ErrInvalidPayload)
	}

	params := strings.Split(header, ";")
	if params[len(params)-1] != "base64" {
		return "", "", fmt.Errorf("%w: data URI is not base64 encoded", ErrInvalidPayload)
	}
	return strings.TrimSpace(params[0]), body, nil
}

// decodedLen returns the number of bytes body decodes to, accepting padded
// and unpadded standard base64, without decoding it.
func decodedLen(body string) (int64, error) {
	n := len(body)
	padding := 0
	for padding < 2 && n > 0 && body[n-1] == '=' {
		n--
		padding++
	}

	for i := 0; i < n; i++ {
		if !isBase64Char(body[i]) {
			return 0, fmt.Errorf("%w: invalid base64 at offset %d", ErrInvalidPayload, i)
		}
	}

	if padding > 0 && len(body)%4 != 0 {
		return 0, fmt.Errorf("%w: bad base64 padding", ErrInvalidPayload)
	}
	if n%4 == 1 {
		return 0, fmt.Errorf("%w: truncated base64", ErrInvalidPayload)
	}

	full := int64(n/4) * 3
	switch n % 4 {
	case 2:
		full++
	case 3:
		full += 2
	}
	return full, nil
}

func isBase64Char(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '+' || c == '/'
}

// sniffType detects the media type from the first decoded bytes.
func sniffType(body string) string {
	prefix := body
	if len(prefix) > sniffPrefixLen {
		prefix = prefix[:sniffPrefixLen]
	}
	prefix = strings.TrimRight(prefix, "=")
	prefix = prefix[:len(prefix)-len(prefix)%4]

	head, err := base64.StdEncoding.DecodeString(prefix)
	if err != nil || len(head) == 0 {
		return "application/octet-stream"
	}
	return mimetype.Detect(head).String()
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == ".." || name == "/" {
		return defaultFileName
	}
	return name
}
