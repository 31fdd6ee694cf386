package image

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// ToMat converts a Go image to a BGR gocv.Mat. The caller owns the result.
func ToMat(img image.Image) (gocv.Mat, error) {
	if img == nil {
		return gocv.Mat{}, fmt.Errorf("nil image")
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return gocv.Mat{}, fmt.Errorf("empty image %dx%d", width, height)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Copy(rgba, image.Point{}, img, bounds, draw.Src, nil)
	}

	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)

	parallelRows(height, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			row := rgba.Pix[y*rgba.Stride:]
			for x := 0; x < width; x++ {
				// OpenCV uses BGR order
				mat.SetUCharAt(y, x*3+0, row[x*4+2])
				mat.SetUCharAt(y, x*3+1, row[x*4+1])
				mat.SetUCharAt(y, x*3+2, row[x*4+0])
			}
		}
	})

	return mat, nil
}

// FromMat converts a single-channel or BGR gocv.Mat to a Go image.
func FromMat(mat gocv.Mat) (image.Image, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("empty mat")
	}
	h := mat.Rows()
	w := mat.Cols()

	switch mat.Channels() {
	case 1:
		img := image.NewGray(image.Rect(0, 0, w, h))
		parallelRows(h, func(yStart, yEnd int) {
			for y := yStart; y < yEnd; y++ {
				off := y * img.Stride
				for x := 0; x < w; x++ {
					img.Pix[off+x] = mat.GetUCharAt(y, x)
				}
			}
		})
		return img, nil
	case 3:
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		parallelRows(h, func(yStart, yEnd int) {
			for y := yStart; y < yEnd; y++ {
				off := y * img.Stride
				for x := 0; x < w; x++ {
					p := off + x*4
					img.Pix[p+0] = mat.GetUCharAt(y, x*3+2)
					img.Pix[p+1] = mat.GetUCharAt(y, x*3+1)
					img.Pix[p+2] = mat.GetUCharAt(y, x*3+0)
					img.Pix[p+3] = 255
				}
			}
		})
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported channel count %d", mat.Channels())
	}
}

// LoadMat loads path and converts it straight to a BGR Mat.
func LoadMat(path string) (gocv.Mat, error) {
	img, err := Load(path)
	if err != nil {
		return gocv.Mat{}, err
	}
	return ToMat(img)
}

// SaveMat writes a Mat to path.
func SaveMat(path string, mat gocv.Mat) error {
	img, err := FromMat(mat)
	if err != nil {
		return fmt.Errorf("failed to convert %s: %w", path, err)
	}
	return Save(path, img)
}

// parallelRows splits [0, height) into horizontal stripes, one per CPU.
func parallelRows(height int, fn func(yStart, yEnd int)) {
	numWorkers := runtime.NumCPU()
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := min(startY+rowsPerWorker, height)
		if startY >= height {
			break
		}
		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			fn(yStart, yEnd)
		}(startY, endY)
	}
	wg.Wait()
}
