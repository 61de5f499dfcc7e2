package wcag

import (
	"fmt"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// RGBA is an sRGB color with straight alpha in [0,1].
type RGBA struct {
	colorful.Color
	A float64
}

// Opaque reports whether the color fully covers what is behind it.
func (c RGBA) Opaque() bool { return c.A >= 1 }

// Transparent reports whether the color contributes nothing.
func (c RGBA) Transparent() bool { return c.A <= 0 }

// Over composites c on top of an opaque backdrop.
func (c RGBA) Over(backdrop colorful.Color) colorful.Color {
	if c.Opaque() {
		return c.Color
	}
	return colorful.Color{
		R: c.R*c.A + backdrop.R*(1-c.A),
		G: c.G*c.A + backdrop.G*(1-c.A),
		B: c.B*c.A + backdrop.B*(1-c.A),
	}
}

var namedColors = map[string]string{
	"black":   "#000000",
	"white":   "#ffffff",
	"red":     "#ff0000",
	"green":   "#008000",
	"blue":    "#0000ff",
	"gray":    "#808080",
	"grey":    "#808080",
	"silver":  "#c0c0c0",
	"yellow":  "#ffff00",
	"navy":    "#000080",
	"maroon":  "#800000",
	"orange":  "#ffa500",
	"purple":  "#800080",
	"teal":    "#008080",
	"olive":   "#808000",
	"lime":    "#00ff00",
	"aqua":    "#00ffff",
	"fuchsia": "#ff00ff",
}

// ParseColor understands the forms getComputedStyle returns (rgb/rgba) plus
// hex notation and a handful of keywords.
func ParseColor(css string) (RGBA, error) {
	s := strings.ToLower(strings.TrimSpace(css))
	switch {
	case s == "":
		return RGBA{}, fmt.Errorf("empty color")
	case s == "transparent":
		return RGBA{A: 0}, nil
	case strings.HasPrefix(s, "#"):
		return parseHex(s)
	case strings.HasPrefix(s, "rgb"):
		return parseRGBFunc(s)
	}
	if hex, ok := namedColors[s]; ok {
		return parseHex(hex)
	}
	return RGBA{}, fmt.Errorf("unsupported color %q", css)
}

func parseHex(s string) (RGBA, error) {
	alpha := 1.0
	// #rgba and #rrggbbaa carry alpha; go-colorful only understands the 3 and 6 digit forms.
	switch len(s) {
	case 5:
		a, err := strconv.ParseUint(s[4:5], 16, 8)
		if err != nil {
			return RGBA{}, fmt.Errorf("parse color %q: %w", s, err)
		}
		alpha = float64(a*17) / 255
		s = s[:4]
	case 9:
		a, err := strconv.ParseUint(s[7:9], 16, 8)
		if err != nil {
			return RGBA{}, fmt.Errorf("parse color %q: %w", s, err)
		}
		alpha = float64(a) / 255
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return RGBA{}, fmt.Errorf("parse color %q: %w", s, err)
	}
	return RGBA{Color: c, A: alpha}, nil
}

func parseRGBFunc(s string) (RGBA, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return RGBA{}, fmt.Errorf("malformed color %q", s)
	}
	body := s[open+1 : len(s)-1]
	// Both "r, g, b, a" and the space separated "r g b / a" forms are accepted.
	body = strings.NewReplacer(",", " ", "/", " ").Replace(body)
	parts := strings.Fields(body)
	if len(parts) != 3 && len(parts) != 4 {
		return RGBA{}, fmt.Errorf("malformed color %q", s)
	}
	var ch [3]float64
	for i := 0; i < 3; i++ {
		v, err := parseChannel(parts[i])
		if err != nil {
			return RGBA{}, fmt.Errorf("parse color %q: %w", s, err)
		}
		ch[i] = v
	}
	alpha := 1.0
	if len(parts) == 4 {
		a, err := parseAlpha(parts[3])
		if err != nil {
			return RGBA{}, fmt.Errorf("parse color %q: %w", s, err)
		}
		alpha = a
	}
	return RGBA{Color: colorful.Color{R: ch[0], G: ch[1], B: ch[2]}, A: alpha}, nil
}

func parseChannel(p string) (float64, error) {
	if strings.HasSuffix(p, "%") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(p, "%"), 64)
		if err != nil {
			return 0, err
		}
		return clamp01(v / 100), nil
	}
	v, err := strconv.ParseFloat(p, 64)
	if err != nil {
		return 0, err
	}
	return clamp01(v / 255), nil
}

func parseAlpha(p string) (float64, error) {
	if strings.HasSuffix(p, "%") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(p, "%"), 64)
		if err != nil {
			return 0, err
		}
		return clamp01(v / 100), nil
	}
	v, err := strconv.ParseFloat(p, 64)
	if err != nil {
		return 0, err
	}
	return clamp01(v), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RelativeLuminance is 0.2126 R + 0.7152 G + 0.0722 B over linearized sRGB channels.
func RelativeLuminance(c colorful.Color) float64 {
	r, g, b := c.Clamped().LinearRgb()
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// ContrastRatio returns (Lmax + 0.05) / (Lmin + 0.05). It is symmetric in its arguments.
func ContrastRatio(a, b colorful.Color) float64 {
	la, lb := RelativeLuminance(a), RelativeLuminance(b)
	if la < lb {
		la, lb = lb, la
	}
	return (la + 0.05) / (lb + 0.05)
}
