package icon

import (
	"image"
	"image/color"
	"math"
	"strings"
)

// Category is the coarse application class used for default icons.
type Category string

const (
	CategoryDevelopment Category = "development"
	CategoryMultimedia  Category = "multimedia"
	CategoryGraphics    Category = "graphics"
	CategoryGame        Category = "game"
	CategoryNetwork     Category = "network"
	CategoryOffice      Category = "office"
	CategoryEducation   Category = "education"
	CategorySystem      Category = "system"
	CategoryOther       Category = "other"
)

// Keys are freedesktop.org main and additional categories, lowercased.
var categoryTable = map[string]Category{
	"development":      CategoryDevelopment,
	"ide":              CategoryDevelopment,
	"debugger":         CategoryDevelopment,
	"audiovideo":       CategoryMultimedia,
	"audio":            CategoryMultimedia,
	"video":            CategoryMultimedia,
	"player":           CategoryMultimedia,
	"graphics":         CategoryGraphics,
	"photography":      CategoryGraphics,
	"2dgraphics":       CategoryGraphics,
	"3dgraphics":       CategoryGraphics,
	"game":             CategoryGame,
	"network":          CategoryNetwork,
	"webbrowser":       CategoryNetwork,
	"email":            CategoryNetwork,
	"chat":             CategoryNetwork,
	"office":           CategoryOffice,
	"wordprocessor":    CategoryOffice,
	"spreadsheet":      CategoryOffice,
	"education":        CategoryEducation,
	"science":          CategoryEducation,
	"system":           CategorySystem,
	"settings":         CategorySystem,
	"utility":          CategorySystem,
	"terminalemulator": CategorySystem,
}

// InferCategory maps desktop-entry categories to a Category. The first
// recognized category wins.
func InferCategory(categories []string) Category {
	for _, c := range categories {
		if cat, ok := categoryTable[strings.ToLower(strings.TrimSpace(c))]; ok {
			return cat
		}
	}
	return CategoryOther
}

var categoryColors = map[Category]color.NRGBA{
	CategoryDevelopment: {0x3b, 0x6e, 0xd1, 0xff},
	CategoryMultimedia:  {0xd1, 0x3b, 0x6e, 0xff},
	CategoryGraphics:    {0xe0, 0x8a, 0x1e, 0xff},
	CategoryGame:        {0x6e, 0x3b, 0xd1, 0xff},
	CategoryNetwork:     {0x1e, 0x9e, 0xb8, 0xff},
	CategoryOffice:      {0x2e, 0x9e, 0x4f, 0xff},
	CategoryEducation:   {0x8a, 0x6e, 0x1e, 0xff},
	CategorySystem:      {0x5a, 0x63, 0x70, 0xff},
	CategoryOther:       {0x78, 0x78, 0x78, 0xff},
}

// DefaultImage draws the generic icon for cat: a rounded tile in the
// category color with a light disc in the middle.
func DefaultImage(cat Category, size int) image.Image {
	fill, ok := categoryColors[cat]
	if !ok {
		fill = categoryColors[CategoryOther]
	}
	disc := color.NRGBA{0xff, 0xff, 0xff, 0xd0}

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	s := float64(size)
	radius := s * 0.18
	margin := s * 0.06
	center := s / 2
	discR := s * 0.22

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5
			if !insideRoundedRect(px, py, margin, s-margin, radius) {
				continue
			}
			if math.Hypot(px-center, py-center) <= discR {
				img.SetNRGBA(x, y, disc)
			} else {
				img.SetNRGBA(x, y, fill)
			}
		}
	}
	return img
}

func insideRoundedRect(x, y, lo, hi, r float64) bool {
	if x < lo || x > hi || y < lo || y > hi {
		return false
	}
	cx := math.Max(lo+r, math.Min(x, hi-r))
	cy := math.Max(lo+r, math.Min(y, hi-r))
	return math.Hypot(x-cx, y-cy) <= r
}
