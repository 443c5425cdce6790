package vis

import (
	"fmt"
	"sort"
)

// Color is an RGB triple with components in [0, 1].
type Color [3]float64

// Label associates a class id with a display name and color.
type Label struct {
	Name  string
	Value int
	Color Color
}

// Colormap names accepted by NewLabelLUT.
const (
	ColormapDefault  = "default"
	ColormapSpectrum = "spectrum"
)

// defaultColors is the palette used when labels are added without an
// explicit color. Entries beyond the palette fall back to overflowColor.
var defaultColors = []Color{
	{0, 0, 0}, {0.96078431, 0.58823529, 0.39215686},
	{0.96078431, 0.90196078, 0.39215686},
	{0.58823529, 0.23529412, 0.11764706},
	{0.70588235, 0.11764706, 0.31372549}, {1, 0, 0},
	{0.11764706, 0.11764706, 1}, {0.78431373, 0.15686275, 1},
	{0.35294118, 0.11764706, 0.58823529}, {1, 0, 1},
	{1, 0.58823529, 1}, {0.29411765, 0, 0.29411765},
	{0.29411765, 0, 0.68627451}, {0, 0.78431373, 1},
	{0.19607843, 0.47058824, 1}, {0, 0.68627451, 0},
	{0, 0.23529412, 0.52941176},
	{0.31372549, 0.94117647, 0.58823529},
	{0.58823529, 0.94117647, 1},
	{0, 0, 1}, {1.0, 1.0, 0.25}, {0.5, 1.0, 0.25},
	{0.25, 1.0, 0.25}, {0.25, 1.0, 0.5}, {0.25, 1.0, 1.25},
	{0.25, 0.5, 1.25}, {0.25, 0.25, 1.0}, {0.125, 0.125, 0.125},
	{0.25, 0.25, 0.25}, {0.375, 0.375, 0.375}, {0.5, 0.5, 0.5},
	{0.625, 0.625, 0.625}, {0.75, 0.75, 0.75},
	{0.875, 0.875, 0.875},
}

// spectrumColors is the categorical 12-color palette from Adobe Spectrum.
// https://spectrum.adobe.com/page/color-for-data-visualization/#Options
var spectrumColors = []Color{
	{0.0, 0.7529411764705882, 0.7803921568627451},
	{0.3176470588235294, 0.26666666666666666, 0.8274509803921568},
	{0.9098039215686274, 0.5294117647058824, 0.10196078431372549},
	{0.8549019607843137, 0.20392156862745098, 0.5647058823529412},
	{0.5647058823529412, 0.5372549019607843, 0.9803921568627451},
	{0.2784313725490196, 0.8862745098039215, 0.43529411764705883},
	{0.15294117647058825, 0.5019607843137255, 0.9215686274509803},
	{0.43529411764705883, 0.2196078431372549, 0.6941176470588235},
	{0.8745098039215686, 0.7490196078431373, 0.011764705882352941},
	{0.796078431372549, 0.43529411764705883, 0.06274509803921569},
	{0.14901960784313725, 0.5529411764705883, 0.4235294117647059},
	{0.6078431372549019, 0.9254901960784314, 0.32941176470588235},
}

// overflowColor is assigned once the palette is exhausted.
var overflowColor = Color{0.85, 1.0, 1.0}

// LabelLUT manages the look-up table assigning colors to labels.
// It is populated at construction (or via AddLabel) and read-only afterward.
type LabelLUT struct {
	labels    map[int]Label
	colors    []Color
	nextColor int
}

// NewLabelLUT creates a LUT using the named colormap. When labelToNames is
// non-nil a label is added for each entry in ascending key order, so color
// assignment is deterministic.
func NewLabelLUT(labelToNames map[int]string, colormap string) (*LabelLUT, error) {
	var colors []Color
	switch colormap {
	case "", ColormapDefault:
		colors = defaultColors
	case ColormapSpectrum:
		colors = spectrumColors
	default:
		return nil, fmt.Errorf("unknown colormap %q", colormap)
	}

	lut := &LabelLUT{
		labels: make(map[int]Label),
		colors: colors,
	}

	if labelToNames != nil {
		values := make([]int, 0, len(labelToNames))
		for v := range labelToNames {
			values = append(values, v)
		}
		sort.Ints(values)
		for _, v := range values {
			lut.AddLabel(labelToNames[v], v, nil)
		}
	}

	return lut, nil
}

// AddLabel adds a label to the table. When color is nil the next palette
// color is assigned; an existing entry for value is replaced without
// consuming a palette slot twice.
func (lut *LabelLUT) AddLabel(name string, value int, color *Color) {
	var c Color
	if color != nil {
		c = *color
	} else if prev, ok := lut.labels[value]; ok {
		c = prev.Color
	} else if lut.nextColor >= len(lut.colors) {
		c = overflowColor
	} else {
		c = lut.colors[lut.nextColor]
		lut.nextColor++
	}
	lut.labels[value] = Label{Name: name, Value: value, Color: c}
}

// Lookup returns the label registered for value.
func (lut *LabelLUT) Lookup(value int) (Label, bool) {
	l, ok := lut.labels[value]
	return l, ok
}

// Len returns the number of registered labels.
func (lut *LabelLUT) Len() int {
	return len(lut.labels)
}

// Values returns the registered class ids in ascending order.
func (lut *LabelLUT) Values() []int {
	values := make([]int, 0, len(lut.labels))
	for v := range lut.labels {
		values = append(values, v)
	}
	sort.Ints(values)
	return values
}
