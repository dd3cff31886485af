package thumbnail

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/net/html"
)

const (
	LabelForeground = "white"
	LabelBackground = "#702D3E"
	LabelBgAlpha    = "80%"
	LabelSize       = "48pt"

	labelDPI = 72
)

// LabelMarkup wraps a common name in the span used for thumbnail captions.
// The name is escaped, so markup characters in it are drawn literally.
func LabelMarkup(name string) string {
	return fmt.Sprintf(`<span foreground="%s" background="%s" bgalpha="%s" size="%s">%s</span>`,
		LabelForeground, LabelBackground, LabelBgAlpha, LabelSize, html.EscapeString(name))
}

// Style is the text attributes of a run
type Style struct {
	Foreground color.NRGBA
	Background color.NRGBA
	Size       float64 // points
}

// Run is a piece of text sharing one Style
type Run struct {
	Text  string
	Style Style
}

var defaultStyle = Style{
	Foreground: color.NRGBA{A: 0xff},
	Size:       12,
}

// ParseMarkup parses the span subset of Pango markup into styled runs.
// Spans may nest; entities in text are decoded.
func ParseMarkup(markup string) ([]Run, error) {
	z := html.NewTokenizer(strings.NewReader(markup))
	stack := []Style{defaultStyle}
	var runs []Run

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				if len(stack) != 1 {
					return nil, fmt.Errorf("unclosed span in markup")
				}
				return runs, nil
			}
			return nil, fmt.Errorf("failed to parse markup: %w", z.Err())
		case html.TextToken:
			text := string(z.Text())
			if text == "" {
				continue
			}
			style := stack[len(stack)-1]
			if n := len(runs); n > 0 && runs[n-1].Style == style {
				runs[n-1].Text += text
				continue
			}
			runs = append(runs, Run{Text: text, Style: style})
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "span" {
				return nil, fmt.Errorf("unsupported markup tag <%s>", name)
			}
			style, err := spanStyle(z, stack[len(stack)-1], hasAttr)
			if err != nil {
				return nil, err
			}
			if tt == html.StartTagToken {
				stack = append(stack, style)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) != "span" {
				return nil, fmt.Errorf("unsupported markup tag </%s>", name)
			}
			if len(stack) == 1 {
				return nil, fmt.Errorf("unbalanced </span> in markup")
			}
			stack = stack[:len(stack)-1]
		}
	}
}

func spanStyle(z *html.Tokenizer, parent Style, hasAttr bool) (Style, error) {
	style := parent
	var fgAlpha, bgAlpha string

	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		v := string(val)

		var err error
		switch string(key) {
		case "foreground", "fgcolor", "color":
			style.Foreground, err = parseColor(v)
		case "background", "bgcolor":
			style.Background, err = parseColor(v)
		case "fgalpha":
			fgAlpha = v
		case "bgalpha":
			bgAlpha = v
		case "size":
			style.Size, err = parseSize(v)
		default:
			err = fmt.Errorf("unsupported span attribute %q", key)
		}
		if err != nil {
			return Style{}, err
		}
	}

	if fgAlpha != "" {
		a, err := parseAlpha(fgAlpha)
		if err != nil {
			return Style{}, err
		}
		style.Foreground.A = a
	}
	if bgAlpha != "" {
		a, err := parseAlpha(bgAlpha)
		if err != nil {
			return Style{}, err
		}
		style.Background.A = a
	}
	return style, nil
}

var namedColors = map[string]color.NRGBA{
	"white": {R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	"black": {A: 0xff},
	"red":   {R: 0xff, A: 0xff},
	"green": {G: 0x80, A: 0xff},
	"blue":  {B: 0xff, A: 0xff},
}

func parseColor(s string) (color.NRGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	if !strings.HasPrefix(s, "#") {
		return color.NRGBA{}, fmt.Errorf("unknown color %q", s)
	}

	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 && len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// parseAlpha accepts a percentage or a value in 1..65536
func parseAlpha(s string) (uint8, error) {
	s = strings.TrimSpace(s)
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		p, err := strconv.ParseFloat(pct, 64)
		if err != nil || p < 0 || p > 100 {
			return 0, fmt.Errorf("invalid alpha %q", s)
		}
		return uint8(p*255/100 + 0.5), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65536 {
		return 0, fmt.Errorf("invalid alpha %q", s)
	}
	return uint8((n - 1) >> 8), nil
}

// parseSize accepts "48pt" or a plain number in 1024ths of a point
func parseSize(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if pt, ok := strings.CutSuffix(s, "pt"); ok {
		v, err := strconv.ParseFloat(pt, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid size %q", s)
		}
		return v, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return float64(v) / 1024, nil
}

// LabelRenderer draws markup with the Go Bold face
type LabelRenderer struct {
	mu    sync.Mutex
	font  *opentype.Font
	faces map[float64]font.Face
}

// NewLabelRenderer parses the embedded font
func NewLabelRenderer() (*LabelRenderer, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return &LabelRenderer{
		font:  f,
		faces: make(map[float64]font.Face),
	}, nil
}

func (r *LabelRenderer) face(size float64) (font.Face, error) {
	if f, ok := r.faces[size]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     labelDPI,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	r.faces[size] = f
	return f, nil
}

// Close releases the cached faces
func (r *LabelRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for size, f := range r.faces {
		_ = f.Close()
		delete(r.faces, size)
	}
	return nil
}

type placedRun struct {
	run  Run
	face font.Face
	x    fixed.Int26_6
	w    fixed.Int26_6
}

type line struct {
	runs    []placedRun
	width   fixed.Int26_6
	ascent  fixed.Int26_6
	descent fixed.Int26_6
}

// Render draws markup onto a transparent image sized to the text's logical extents.
// Each run's background covers its own extents; newlines start a new line.
func (r *LabelRenderer) Render(markup string) (*image.RGBA, error) {
	runs, err := ParseMarkup(markup)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lines := []*line{{}}
	for _, run := range runs {
		face, err := r.face(run.Style.Size)
		if err != nil {
			return nil, err
		}
		for i, part := range strings.Split(run.Text, "\n") {
			if i > 0 {
				lines = append(lines, &line{})
			}
			cur := lines[len(lines)-1]
			m := face.Metrics()
			cur.ascent = max(cur.ascent, m.Ascent)
			cur.descent = max(cur.descent, m.Descent)
			if part == "" {
				continue
			}
			w := font.MeasureString(face, part)
			cur.runs = append(cur.runs, placedRun{
				run:  Run{Text: part, Style: run.Style},
				face: face,
				x:    cur.width,
				w:    w,
			})
			cur.width += w
		}
	}

	var width, height fixed.Int26_6
	for _, l := range lines {
		width = max(width, l.width)
		height += l.ascent + l.descent
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("label markup has no visible text")
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width.Ceil(), height.Ceil()))

	var top fixed.Int26_6
	for _, l := range lines {
		lineHeight := l.ascent + l.descent
		for _, pr := range l.runs {
			if pr.run.Style.Background.A > 0 {
				bg := image.Rect(pr.x.Floor(), top.Floor(), (pr.x + pr.w).Ceil(), (top + lineHeight).Ceil())
				draw.Draw(canvas, bg, image.NewUniform(pr.run.Style.Background), image.Point{}, draw.Over)
			}
			d := &font.Drawer{
				Dst:  canvas,
				Src:  image.NewUniform(pr.run.Style.Foreground),
				Face: pr.face,
				Dot:  fixed.Point26_6{X: pr.x, Y: top + l.ascent},
			}
			d.DrawString(pr.run.Text)
		}
		top += lineHeight
	}

	return canvas, nil
}
