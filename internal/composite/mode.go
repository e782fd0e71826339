package composite

import "fmt"

// Mode is a layer blend mode. The numeric values are those stored in XCF
// files.
type Mode uint8

const (
	Normal Mode = iota
	Dissolve
	Behind
	Multiply
	Screen
	Overlay
	Difference
	Addition
	Subtract
	DarkenOnly
	LightenOnly
	Hue
	Saturation
	Color
	Value
	Divide
	Erase
	Replace
	AntiErase
)

var modeNames = [...]string{
	Normal:      "normal",
	Dissolve:    "dissolve",
	Behind:      "behind",
	Multiply:    "multiply",
	Screen:      "screen",
	Overlay:     "overlay",
	Difference:  "difference",
	Addition:    "addition",
	Subtract:    "subtract",
	DarkenOnly:  "darken-only",
	LightenOnly: "lighten-only",
	Hue:         "hue",
	Saturation:  "saturation",
	Color:       "color",
	Value:       "value",
	Divide:      "divide",
	Erase:       "erase",
	Replace:     "replace",
	AntiErase:   "anti-erase",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return int(m) < len(modeNames) }

// separate reports whether the mode mixes colors before alpha compositing.
// Paint-only modes behave like Normal when layers are flattened.
func (m Mode) separate() bool {
	switch m {
	case Normal, Dissolve, Behind, Erase, Replace, AntiErase:
		return false
	}
	return m.Valid()
}

// mul returns a*b/255 rounded to nearest.
func mul(a, b uint8) uint8 {
	t := uint32(a)*uint32(b) + 0x80
	return uint8(((t >> 8) + t) >> 8)
}

// blend mixes the colors of src onto dst according to m. Gray pixels carry
// the same value in all three slots; the hue based modes leave them alone
// except Value, which takes the source value.
func (m Mode) blend(s, d pixel, gray bool) pixel {
	out := s
	switch m {
	case Multiply:
		out.r, out.g, out.b = mul(s.r, d.r), mul(s.g, d.g), mul(s.b, d.b)
	case Screen:
		out.r, out.g, out.b = screen(s.r, d.r), screen(s.g, d.g), screen(s.b, d.b)
	case Overlay:
		out.r, out.g, out.b = overlay(s.r, d.r), overlay(s.g, d.g), overlay(s.b, d.b)
	case Difference:
		out.r, out.g, out.b = diff(s.r, d.r), diff(s.g, d.g), diff(s.b, d.b)
	case Addition:
		out.r, out.g, out.b = add(s.r, d.r), add(s.g, d.g), add(s.b, d.b)
	case Subtract:
		out.r, out.g, out.b = sub(d.r, s.r), sub(d.g, s.g), sub(d.b, s.b)
	case DarkenOnly:
		out.r, out.g, out.b = min(s.r, d.r), min(s.g, d.g), min(s.b, d.b)
	case LightenOnly:
		out.r, out.g, out.b = max(s.r, d.r), max(s.g, d.g), max(s.b, d.b)
	case Divide:
		out.r, out.g, out.b = divide(s.r, d.r), divide(s.g, d.g), divide(s.b, d.b)
	case Hue, Saturation, Value:
		if gray {
			if m != Value {
				out.r, out.g, out.b = d.r, d.g, d.b
			}
			break
		}
		sh, ss, sv := rgbToHSV(s.r, s.g, s.b)
		dh, ds, dv := rgbToHSV(d.r, d.g, d.b)
		switch m {
		case Hue:
			if ss == 0 {
				out.r, out.g, out.b = d.r, d.g, d.b
				break
			}
			out.r, out.g, out.b = hsvToRGB(sh, ds, dv)
		case Saturation:
			out.r, out.g, out.b = hsvToRGB(dh, ss, dv)
		case Value:
			out.r, out.g, out.b = hsvToRGB(dh, ds, sv)
		}
	case Color:
		if gray {
			out.r, out.g, out.b = d.r, d.g, d.b
			break
		}
		sh, _, ss := rgbToHLS(s.r, s.g, s.b)
		_, dl, _ := rgbToHLS(d.r, d.g, d.b)
		out.r, out.g, out.b = hlsToRGB(sh, dl, ss)
	}
	return out
}

func screen(s, d uint8) uint8 { return 255 - mul(255-s, 255-d) }

func overlay(s, d uint8) uint8 {
	m := mul(d, s)
	sc := screen(s, d)
	return uint8(min(255, int(mul(255-d, m))+int(mul(d, sc))))
}

func diff(s, d uint8) uint8 {
	if s > d {
		return s - d
	}
	return d - s
}

func add(s, d uint8) uint8 { return uint8(min(255, int(s)+int(d))) }

func sub(a, b uint8) uint8 { return uint8(max(0, int(a)-int(b))) }

func divide(s, d uint8) uint8 {
	return uint8(min(255, int(d)*256/(int(s)+1)))
}

// rgbToHSV returns hue in [0,360), saturation and value in [0,1].
func rgbToHSV(r, g, b uint8) (h, s, v float32) {
	rf, gf, bf := float32(r)/255, float32(g)/255, float32(b)/255
	hi := max(rf, gf, bf)
	lo := min(rf, gf, bf)
	v = hi
	d := hi - lo
	if hi > 0 {
		s = d / hi
	}
	if d == 0 {
		return 0, s, v
	}
	switch hi {
	case rf:
		h = (gf - bf) / d
	case gf:
		h = 2 + (bf-rf)/d
	default:
		h = 4 + (rf-gf)/d
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, s, v
}

func hsvToRGB(h, s, v float32) (uint8, uint8, uint8) {
	if s == 0 {
		c := to8(v)
		return c, c, c
	}
	h /= 60
	i := int(h) % 6
	f := h - float32(int(h))
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	var r, g, b float32
	switch i {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return to8(r), to8(g), to8(b)
}

// rgbToHLS returns hue in [0,360), lightness and saturation in [0,1].
func rgbToHLS(r, g, b uint8) (h, l, s float32) {
	rf, gf, bf := float32(r)/255, float32(g)/255, float32(b)/255
	hi := max(rf, gf, bf)
	lo := min(rf, gf, bf)
	l = (hi + lo) / 2
	d := hi - lo
	if d == 0 {
		return 0, l, 0
	}
	if l <= 0.5 {
		s = d / (hi + lo)
	} else {
		s = d / (2 - hi - lo)
	}
	switch hi {
	case rf:
		h = (gf - bf) / d
	case gf:
		h = 2 + (bf-rf)/d
	default:
		h = 4 + (rf-gf)/d
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, l, s
}

func hlsToRGB(h, l, s float32) (uint8, uint8, uint8) {
	if s == 0 {
		c := to8(l)
		return c, c, c
	}
	var m2 float32
	if l <= 0.5 {
		m2 = l * (1 + s)
	} else {
		m2 = l + s - l*s
	}
	m1 := 2*l - m2
	return to8(hlsValue(m1, m2, h+120)), to8(hlsValue(m1, m2, h)), to8(hlsValue(m1, m2, h-120))
}

func hlsValue(n1, n2, hue float32) float32 {
	if hue >= 360 {
		hue -= 360
	} else if hue < 0 {
		hue += 360
	}
	switch {
	case hue < 60:
		return n1 + (n2-n1)*hue/60
	case hue < 180:
		return n2
	case hue < 240:
		return n1 + (n2-n1)*(240-hue)/60
	}
	return n1
}

func to8(f float32) uint8 {
	v := f*255 + 0.5
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
