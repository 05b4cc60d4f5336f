package validator

import (
	"fmt"
	"math"
	"strings"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

const ratioTolerance = 0.02

type ratio struct {
	value float64
	typ   domain.ImageType
	label string
}

// checked in order, the first ratio within tolerance wins
var ratios = []ratio{
	{1.91, domain.MarketingImage, "HORIZONTAL (1.91:1)"},
	{1.0, domain.SquareMarketingImage, "SQUARE (1:1)"},
	{0.5625, domain.TallPortraitMarketingImage, "VERTICAL (9:16)"},
	{0.8, domain.PortraitMarketingImage, "VERTICAL (4:5)"},
}

// NormalizeImageType maps the sheet's image type cell to a field type.
// It only decides whether the cell is usable; the linked field type comes
// from the image dimensions.
func NormalizeImageType(raw string) domain.ImageType {
	s := strings.ToUpper(raw)
	switch {
	case strings.Contains(s, "HORIZONTAL") || strings.Contains(s, "19"):
		return domain.MarketingImage
	case strings.Contains(s, "SQUARE") || strings.Contains(s, "1:1"):
		return domain.SquareMarketingImage
	case strings.Contains(s, "VERTICAL") || strings.Contains(s, "4:5") || strings.Contains(s, "9:16"):
		return domain.PortraitMarketingImage
	}
	return domain.UnknownImage
}

// expectedImageType is the field type the user meant
func expectedImageType(raw string) domain.ImageType {
	s := strings.ToUpper(raw)
	switch {
	case strings.Contains(s, "HORIZONTAL") || strings.Contains(s, "1.91") || strings.Contains(s, "19"):
		return domain.MarketingImage
	case strings.Contains(s, "SQUARE") || strings.Contains(s, "1:1"):
		return domain.SquareMarketingImage
	case strings.Contains(s, "9:16"):
		return domain.TallPortraitMarketingImage
	case strings.Contains(s, "4:5") || strings.Contains(s, "VERTICAL"):
		return domain.PortraitMarketingImage
	}
	return domain.UnknownImage
}

// Detection is the field type derived from an image's dimensions
type Detection struct {
	FieldType domain.ImageType
	Expected  domain.ImageType
	Detected  string
	Mismatch  bool
	Err       string
}

// DetectImageType decides the field type of an image. Without dimensions it
// falls back to the user's type, or portrait.
func DetectImageType(raw string, width, height int) Detection {
	expected := expectedImageType(raw)
	if width <= 0 || height <= 0 {
		ft := expected
		if ft == domain.UnknownImage {
			ft = domain.PortraitMarketingImage
		}
		return Detection{FieldType: ft, Expected: expected}
	}

	actual := float64(width) / float64(height)
	for _, r := range ratios {
		if math.Abs(actual-r.value) <= ratioTolerance {
			return Detection{
				FieldType: r.typ,
				Expected:  expected,
				Detected:  r.label,
				Mismatch:  expected != domain.UnknownImage && expected != r.typ,
			}
		}
	}
	return Detection{
		FieldType: domain.UnknownImage,
		Expected:  expected,
		Detected:  fmt.Sprintf("unknown (%.2f:1)", actual),
		Err: fmt.Sprintf("Unsupported aspect ratio: %dx%d (%.2f:1). Supported: 1.91:1 (HORIZONTAL), 1:1 (SQUARE), 4:5 or 9:16 (VERTICAL)",
			width, height, actual),
	}
}

// CheckAspectRatio verifies an image fits the ratio of a field type. It
// returns "" when it does.
func CheckAspectRatio(width, height int, ft domain.ImageType) string {
	if width <= 0 || height <= 0 {
		return "Invalid image dimensions"
	}
	actual := float64(width) / float64(height)
	for _, r := range ratios {
		if r.typ != ft {
			continue
		}
		if math.Abs(actual-r.value) <= ratioTolerance {
			return ""
		}
		return fmt.Sprintf("Aspect ratio error: %dx%d = %.2f:1, expected %s", width, height, actual, r.label)
	}
	return ""
}
