package testutils

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/ahrav/questlog/internal/ports"
)

// PNGProof returns a small valid PNG image for proof uploads.
func PNGProof() ports.Image {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return ports.Image{MIMEType: "image/png", Data: buf.Bytes()}
}
