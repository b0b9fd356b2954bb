package tensor

import "math"

// NearestUpsample2x doubles spatial resolution of an NCHW buffer by nearest
// neighbor repetition, used by the layout encoder's FPN top-down path.
func NearestUpsample2x(input []float32, c, h, w int) (out []float32, outH, outW int) {
	outH, outW = h*2, w*2
	out = make([]float32, c*outH*outW)
	for ch := 0; ch < c; ch++ {
		for y := 0; y < outH; y++ {
			sy := y / 2
			for x := 0; x < outW; x++ {
				sx := x / 2
				out[ch*outH*outW+y*outW+x] = input[ch*h*w+sy*w+sx]
			}
		}
	}
	return out, outH, outW
}

// BilinearUpsample2x doubles spatial resolution with bilinear interpolation
// and align_corners=false semantics, used by the mask-feature scale heads.
func BilinearUpsample2x(input []float32, c, h, w int) (out []float32, outH, outW int) {
	return BilinearResize(input, c, h, w, h*2, w*2)
}

// BilinearResize resizes an NCHW buffer to (outH, outW) with align_corners=false
// semantics, used for both encoder upsampling and mask-to-box resizing.
func BilinearResize(input []float32, c, h, w, outH, outW int) ([]float32, int, int) {
	out := make([]float32, c*outH*outW)
	scaleY := float64(h) / float64(outH)
	scaleX := float64(w) / float64(outW)
	for ch := 0; ch < c; ch++ {
		base := ch * h * w
		obase := ch * outH * outW
		for oy := 0; oy < outH; oy++ {
			sy := (float64(oy)+0.5)*scaleY - 0.5
			if sy < 0 {
				sy = 0
			}
			y0 := int(math.Floor(sy))
			y1 := y0 + 1
			wy := float32(sy - float64(y0))
			if y1 >= h {
				y1 = h - 1
			}
			if y0 >= h {
				y0 = h - 1
			}
			for ox := 0; ox < outW; ox++ {
				sx := (float64(ox)+0.5)*scaleX - 0.5
				if sx < 0 {
					sx = 0
				}
				x0 := int(math.Floor(sx))
				x1 := x0 + 1
				wx := float32(sx - float64(x0))
				if x1 >= w {
					x1 = w - 1
				}
				if x0 >= w {
					x0 = w - 1
				}
				v00 := input[base+y0*w+x0]
				v01 := input[base+y0*w+x1]
				v10 := input[base+y1*w+x0]
				v11 := input[base+y1*w+x1]
				top := v00 + (v01-v00)*wx
				bot := v10 + (v11-v10)*wx
				out[obase+oy*outW+ox] = top + (bot-top)*wy
			}
		}
	}
	return out, outH, outW
}

// NearestResize resizes a single-channel mask to (outH, outW) with nearest
// neighbor sampling, used by layout polygon extraction (spec §4.3.7 step 4).
func NearestResize(input []float32, h, w, outH, outW int) []float32 {
	out := make([]float32, outH*outW)
	scaleY := float64(h) / float64(outH)
	scaleX := float64(w) / float64(outW)
	for oy := 0; oy < outH; oy++ {
		sy := int(float64(oy) * scaleY)
		if sy >= h {
			sy = h - 1
		}
		for ox := 0; ox < outW; ox++ {
			sx := int(float64(ox) * scaleX)
			if sx >= w {
				sx = w - 1
			}
			out[oy*outW+ox] = input[sy*w+sx]
		}
	}
	return out
}

// BicubicResizeRGB resizes an interleaved RGB float32 buffer (HxWx3) to
// (outH, outW) using a Catmull-Rom bicubic kernel, used by the layout
// detector's fixed-800x800 input preprocessing (spec §4.3.1). Values are
// clamped to [0,1].
func BicubicResizeRGB(input []float32, h, w, outH, outW int) []float32 {
	out := make([]float32, outH*outW*3)
	scaleY := float64(h) / float64(outH)
	scaleX := float64(w) / float64(outW)
	for oy := 0; oy < outH; oy++ {
		sy := (float64(oy)+0.5)*scaleY - 0.5
		for ox := 0; ox < outW; ox++ {
			sx := (float64(ox)+0.5)*scaleX - 0.5
			for ch := 0; ch < 3; ch++ {
				v := cubicSample(input, h, w, ch, sy, sx)
				if v < 0 {
					v = 0
				}
				if v > 1 {
					v = 1
				}
				out[(oy*outW+ox)*3+ch] = v
			}
		}
	}
	return out
}

func cubicSample(input []float32, h, w, ch int, sy, sx float64) float32 {
	y0 := int(math.Floor(sy))
	x0 := int(math.Floor(sx))
	fy := sy - float64(y0)
	fx := sx - float64(x0)

	get := func(yy, xx int) float32 {
		if yy < 0 {
			yy = 0
		}
		if yy >= h {
			yy = h - 1
		}
		if xx < 0 {
			xx = 0
		}
		if xx >= w {
			xx = w - 1
		}
		return input[(yy*w+xx)*3+ch]
	}

	var rows [4]float32
	for j := -1; j <= 2; j++ {
		var vals [4]float32
		for i := -1; i <= 2; i++ {
			vals[i+1] = get(y0+j, x0+i)
		}
		rows[j+1] = catmullRom(vals, fx)
	}
	return catmullRom(rows, fy)
}

func catmullRom(p [4]float32, t float64) float32 {
	t2 := t * t
	t3 := t2 * t
	a := -0.5*t3 + t2 - 0.5*t
	b := 1.5*t3 - 2.5*t2 + 1
	c := -1.5*t3 + 2*t2 + 0.5*t
	d := 0.5*t3 - 0.5*t2
	return float32(a)*p[0] + float32(b)*p[1] + float32(c)*p[2] + float32(d)*p[3]
}
