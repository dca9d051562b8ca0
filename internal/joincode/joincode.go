// Package joincode allocates shareable group ids and renders the scannable
// join artifact handed to a group's creator.
package joincode

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrGeneration is returned when a code or its artifact cannot be produced.
var ErrGeneration = errors.New("join code generation failed")

// Unambiguous uppercase alphabet, no 0/O or 1/I.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const defaultLength = 6

// Generator issues codes and QR artifacts.
type Generator struct {
	length  int
	urlBase string
	size    int
	rand    io.Reader
}

// NewGenerator builds a Generator. urlBase, when set, is prefixed to the code
// inside the QR image (for example "https://listen.example/join/").
func NewGenerator(urlBase string) *Generator {
	return &Generator{length: defaultLength, urlBase: urlBase, size: 256, rand: rand.Reader}
}

// NewCode returns a random code.
func (g *Generator) NewCode() (string, error) {
	buf := make([]byte, g.length)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	var sb strings.Builder
	sb.Grow(g.length)
	for _, b := range buf {
		sb.WriteByte(alphabet[int(b)%len(alphabet)])
	}
	return sb.String(), nil
}

// JoinURL is the content encoded in the artifact.
func (g *Generator) JoinURL(code string) string {
	return g.urlBase + code
}

// Artifact renders the QR code for code as a PNG data URL.
func (g *Generator) Artifact(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("%w: empty code", ErrGeneration)
	}
	png, err := qrcode.Encode(g.JoinURL(code), qrcode.Medium, g.size)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
