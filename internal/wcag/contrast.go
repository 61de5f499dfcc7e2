package wcag

import (
	"fmt"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/user/a11y-audit-service/internal/entity"
)

var textRoles = []string{"StaticText", "text"}

const (
	largeTextPx     = 18 * 4 / 3.0 // 18pt
	largeBoldTextPx = 14 * 4 / 3.0 // 14pt
	boldWeight      = 700
)

// canvas is the backdrop used when no ancestor paints an opaque background.
var canvas = colorful.Color{R: 1, G: 1, B: 1}

// Thresholds returns the minimum ratios (normal, large) for a contrast criterion.
func Thresholds(enhanced bool) (normal, large float64) {
	if enhanced {
		return 7.0, 4.5
	}
	return 4.5, 3.0
}

type contrastSample struct {
	node       *entity.AXNode
	ratio      float64
	large      bool
	foreground string
	background string
}

func checkContrastMinimum(c *evalContext) []finding {
	return c.contrastFindings(entity.KindLowContrast, false)
}

func checkContrastEnhanced(c *evalContext) []finding {
	return c.contrastFindings(entity.KindLowContrastEnhanced, true)
}

func (c *evalContext) contrastFindings(kind entity.ViolationKind, enhanced bool) []finding {
	normal, large := Thresholds(enhanced)
	var out []finding
	for _, s := range c.contrastSamples() {
		required := normal
		label := ""
		if s.large {
			required = large
			label = "large "
		}
		if s.ratio >= required {
			continue
		}
		out = append(out, finding{
			kind:    kind,
			node:    s.node,
			message: fmt.Sprintf("Insufficient color contrast ratio: %.2f:1 (%stext, requires %.1f:1)", s.ratio, label, required),
			fix:     fmt.Sprintf("Adjust colors to improve contrast. Current: foreground=%s, background=%s", s.foreground, s.background),
			contrast: &entity.ContrastDetail{
				Ratio:      s.ratio,
				Required:   required,
				LargeText:  s.large,
				Foreground: s.foreground,
				Background: s.background,
			},
		})
	}
	return out
}

// contrastSamples measures every visible text node once per evaluation.
func (c *evalContext) contrastSamples() []contrastSample {
	if c.samples != nil {
		return *c.samples
	}
	var out []contrastSample
	for _, n := range c.visibleWithRole(textRoles...) {
		if strings.TrimSpace(n.Name) == "" {
			continue
		}
		st, ok := c.style(n.ID)
		if !ok || !st.Visible {
			continue
		}
		fg, err := ParseColor(st.Color)
		if err != nil {
			c.logger.Debug("Skipping text node with unparseable color", "node", n.ID, "color", st.Color)
			continue
		}
		bg := c.effectiveBackground(n.ID)
		fgOpaque := fg.Over(bg)
		out = append(out, contrastSample{
			node:       n,
			ratio:      ContrastRatio(fgOpaque, bg),
			large:      IsLargeText(st.FontSize, st.FontWeight),
			foreground: fgOpaque.Hex(),
			background: bg.Hex(),
		})
	}
	c.samples = &out
	return out
}

// effectiveBackground ascends from the node until an opaque background is
// found. Transparent layers are skipped and translucent ones are composited
// over whatever lies beneath them.
func (c *evalContext) effectiveBackground(id entity.NodeID) colorful.Color {
	var layers []RGBA
	base := canvas
	chain := append([]entity.NodeID{id}, c.tree.Ancestors(id)...)
	for _, a := range chain {
		st, ok := c.style(a)
		if !ok {
			continue
		}
		bg, err := ParseColor(st.BackgroundColor)
		if err != nil || bg.Transparent() {
			continue
		}
		if bg.Opaque() {
			base = bg.Color
			break
		}
		layers = append(layers, bg)
	}
	for i := len(layers) - 1; i >= 0; i-- {
		base = layers[i].Over(base)
	}
	return base
}

// IsLargeText applies the WCAG large-text definition: at least 18pt, or 14pt when bold.
func IsLargeText(fontSize, fontWeight string) bool {
	px, ok := FontSizePx(fontSize)
	if !ok {
		return false
	}
	if px >= largeTextPx {
		return true
	}
	return px >= largeBoldTextPx && fontWeightValue(fontWeight) >= boldWeight
}

// FontSizePx converts a CSS font size to pixels. Relative units assume a 16px root.
func FontSizePx(size string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(size))
	// Multiply before dividing so whole-number thresholds stay exact.
	units := []struct {
		suffix   string
		num, den float64
	}{
		{"rem", 16, 1}, {"px", 1, 1}, {"pt", 4, 3}, {"em", 16, 1}, {"%", 16, 100},
	}
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), 64)
			if err != nil {
				return 0, false
			}
			return v * u.num / u.den, true
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func fontWeightValue(w string) int {
	switch strings.ToLower(strings.TrimSpace(w)) {
	case "bold", "bolder":
		return 700
	case "", "normal", "lighter":
		return 400
	}
	v, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return 400
	}
	return v
}
