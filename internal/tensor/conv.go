package tensor

// Conv2D performs a standard 2D convolution over an NCHW input with an
// OutC x InC x KH x KW weight, stride and padding given per-axis. Used by
// the layout backbone's stem/stage convolutions.
func Conv2D(input []float32, inC, inH, inW int, weight []float32, outC, kh, kw int,
	strideH, strideW, padH, padW int, bias []float32, groups int,
) (out []float32, outH, outW int) {
	outH = (inH+2*padH-kh)/strideH + 1
	outW = (inW+2*padW-kw)/strideW + 1
	out = make([]float32, outC*outH*outW)

	inCPerGroup := inC / groups
	outCPerGroup := outC / groups

	for oc := 0; oc < outC; oc++ {
		g := oc / outCPerGroup
		icStart := g * inCPerGroup
		var b float32
		if bias != nil {
			b = bias[oc]
		}
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				var sum float32
				iy0 := oy*strideH - padH
				ix0 := ox*strideW - padW
				for icRel := 0; icRel < inCPerGroup; icRel++ {
					ic := icStart + icRel
					for ky := 0; ky < kh; ky++ {
						iy := iy0 + ky
						if iy < 0 || iy >= inH {
							continue
						}
						inRowBase := ic*inH*inW + iy*inW
						wRowBase := ((oc*inCPerGroup+icRel)*kh+ky)*kw
						for kx := 0; kx < kw; kx++ {
							ix := ix0 + kx
							if ix < 0 || ix >= inW {
								continue
							}
							sum += input[inRowBase+ix] * weight[wRowBase+kx]
						}
					}
				}
				out[oc*outH*outW+oy*outW+ox] = sum + b
			}
		}
	}
	return out, outH, outW
}

// DepthwiseConv2D performs a per-channel (groups == channels) 2D
// convolution, used by the backbone's "light block" depthwise stage.
func DepthwiseConv2D(input []float32, c, h, w int, weight []float32, kh, kw,
	strideH, strideW, padH, padW int, bias []float32,
) (out []float32, outH, outW int) {
	return Conv2D(input, c, h, w, weight, c, kh, kw, strideH, strideW, padH, padW, bias, c)
}

// Conv3D performs a 3D convolution with stride == kernel size (no overlap,
// no padding), as used by the recognizer's patch embedding over
// (temporal, height, width) patches.
func Conv3D(input []float32, inC, t, h, w int, weight []float32, outC, kt, kh, kw int) []float32 {
	outT := t / kt
	outH := h / kh
	outW := w / kw
	out := make([]float32, outC*outT*outH*outW)

	for oc := 0; oc < outC; oc++ {
		for ot := 0; ot < outT; ot++ {
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					var sum float32
					for ic := 0; ic < inC; ic++ {
						for kz := 0; kz < kt; kz++ {
							iz := ot*kt + kz
							for ky := 0; ky < kh; ky++ {
								iy := oy*kh + ky
								inRowBase := ((ic*t+iz)*h+iy)*w + ox*kw
								wRowBase := (((oc*inC+ic)*kt+kz)*kh+ky)*kw
								for kx := 0; kx < kw; kx++ {
									sum += input[inRowBase+kx] * weight[wRowBase+kx]
								}
							}
						}
					}
					out[((oc*outT+ot)*outH+oy)*outW+ox] = sum
				}
			}
		}
	}
	return out
}

// PadZero2D pads an NCHW buffer with zero padding. Used by the
// backbone stem before kernels that need explicit padding.
func PadZero2D(input []float32, c, h, w, padH, padW int) (out []float32, outH, outW int) {
	outH = h + 2*padH
	outW = w + 2*padW
	out = make([]float32, c*outH*outW)
	for ch := 0; ch < c; ch++ {
		for y := 0; y < h; y++ {
			srcBase := ch*h*w + y*w
			dstBase := ch*outH*outW + (y+padH)*outW + padW
			copy(out[dstBase:dstBase+w], input[srcBase:srcBase+w])
		}
	}
	return out, outH, outW
}
