package models

import (
	"fmt"
	"strings"
)

// Animal represents one row of the animal table
type Animal struct {
	ID         string    `json:"id" yaml:"id"`
	CommonName string    `json:"common_name" yaml:"common_name"`
	ImageURL   string    `json:"image" yaml:"image"`
	CropFocus  CropFocus `json:"vips_smartcrop" yaml:"vips_smartcrop"`
}

// CropFocus selects the region of interest kept when a photo is cropped to a square.
// The names follow the libvips "interesting" enum used by the source data.
type CropFocus string

const (
	CropNone      CropFocus = "none"
	CropCentre    CropFocus = "centre"
	CropEntropy   CropFocus = "entropy"
	CropAttention CropFocus = "attention"
	CropLow       CropFocus = "low"
	CropHigh      CropFocus = "high"
)

// CropFocuses lists every accepted crop hint
var CropFocuses = []CropFocus{CropNone, CropCentre, CropEntropy, CropAttention, CropLow, CropHigh}

// ParseCropFocus normalizes a crop hint from the input table
func ParseCropFocus(s string) (CropFocus, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "center" {
		v = string(CropCentre)
	}
	for _, c := range CropFocuses {
		if string(c) == v {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown crop hint %q", s)
}

func (c CropFocus) String() string {
	return string(c)
}
