package hsv

import (
	"strconv"
	"strings"

	"github.com/matzehuels/tessera/pkg/errors"
)

// legacyExt is the extension used by color-named tile files.
const legacyExt = ".jpg"

// Key renders c as "(h, s, v)". Whole numbers keep one decimal place
// ("1.0", "0.0") so keys match the names of existing tile files.
func (c Color) Key() string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(formatComponent(c.H))
	b.WriteString(", ")
	b.WriteString(formatComponent(c.S))
	b.WriteString(", ")
	b.WriteString(formatComponent(c.V))
	b.WriteByte(')')
	return b.String()
}

// String implements fmt.Stringer.
func (c Color) String() string {
	return c.Key()
}

func formatComponent(x float64) string {
	s := strconv.FormatFloat(Round3(x), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ParseKey parses a key produced by [Color.Key]. A trailing ".jpg" is
// accepted so file names can be passed directly. The parsed channels are
// rounded to three decimals and must lie in [0,1].
func ParseKey(key string) (Color, error) {
	s := strings.TrimSuffix(strings.TrimSpace(key), legacyExt)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return Color{}, errors.New(errors.ErrCodeInvalidInput, "color key %q: want \"(h, s, v)\"", key)
	}

	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != 3 {
		return Color{}, errors.New(errors.ErrCodeInvalidInput, "color key %q: want 3 components, got %d", key, len(parts))
	}

	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Color{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "color key %q: component %d", key, i)
		}
		vals[i] = v
	}

	c := New(vals[0], vals[1], vals[2])
	if !c.Valid() {
		return Color{}, errors.New(errors.ErrCodeInvalidInput, "color key %q: components must lie in [0,1]", key)
	}
	return c, nil
}
