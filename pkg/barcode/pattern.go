// Package barcode renders a member's check-in value as a visual bar pattern.
//
// The pattern is a proprietary visual encoding, not a scannable symbology. It
// is a pure function of the input: identical values always yield identical
// cells.
package barcode

import "unicode/utf16"

// QuietZoneWidth is the number of space cells on each side of the pattern.
const QuietZoneWidth = 8

// Pattern returns the ordered sequence of cells for value. true is a bar,
// false is a space. Each UTF-16 code unit contributes between three and five
// bars, every bar followed by one space. Empty input yields only the quiet
// zones.
func Pattern(value string) []bool {
	units := utf16.Encode([]rune(value))

	cells := make([]bool, 0, Width(value))
	cells = append(cells, make([]bool, QuietZoneWidth)...)
	for _, unit := range units {
		code := int(unit) % 16
		for j := 0; j < barCount(code); j++ {
			cells = append(cells, (code+j)%2 == 0, false)
		}
	}
	return append(cells, make([]bool, QuietZoneWidth)...)
}

// Width returns len(Pattern(value)) without building the pattern.
func Width(value string) int {
	width := 2 * QuietZoneWidth
	for _, unit := range utf16.Encode([]rune(value)) {
		width += 2 * barCount(int(unit)%16)
	}
	return width
}

func barCount(code int) int {
	return 3 + code%3
}
