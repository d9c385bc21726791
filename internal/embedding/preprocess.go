package embedding

import (
	"errors"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// CLIP pixel statistics (RGB).
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Preprocess converts img to the CLIP visual encoder input: the shortest side is
// resized to size (Catmull-Rom), the centre size x size square is cropped, and
// each channel is normalized with the CLIP mean and std. The result is CHW order,
// 3*size*size values.
func Preprocess(img image.Image, size int) ([]float32, error) {
	if size <= 0 {
		return nil, errors.New("preprocess: size must be positive")
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("preprocess: empty image")
	}
	scale := float64(size) / float64(min(w, h))
	nw := max(size, int(math.Round(float64(w)*scale)))
	nh := max(size, int(math.Round(float64(h)*scale)))

	resized := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, b, draw.Src, nil)

	x0 := (nw - size) / 2
	y0 := (nh - size) / 2
	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := resized.RGBAAt(x0+x, y0+y)
			i := y*size + x
			out[i] = (float32(c.R)/255 - clipMean[0]) / clipStd[0]
			out[plane+i] = (float32(c.G)/255 - clipMean[1]) / clipStd[1]
			out[2*plane+i] = (float32(c.B)/255 - clipMean[2]) / clipStd[2]
		}
	}
	return out, nil
}
