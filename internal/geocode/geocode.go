package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/civicdesk/backend/internal/apperr"
)

var ErrNotFound = errors.New("address not found")

type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

func FormatCoordinates(lat, lon float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lon)
}

// JoinAddressParts joins the non-empty parts with ", ", skipping repeats.
func JoinAddressParts(parts ...string) string {
	out := []string{}
	seen := map[string]bool{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[strings.ToLower(p)] {
			continue
		}
		seen[strings.ToLower(p)] = true
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}

// ResolveAddress always returns a usable location string. When g is nil or
// the lookup fails the coordinates themselves are returned; a failed lookup
// also reports an error wrapping apperr.ErrUpstreamUnavailable.
func ResolveAddress(ctx context.Context, g ReverseGeocoder, lat, lon float64) (string, error) {
	fallback := FormatCoordinates(lat, lon)
	if g == nil {
		return fallback, nil
	}
	address, err := g.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return fallback, fmt.Errorf("%w: reverse geocode: %v", apperr.ErrUpstreamUnavailable, err)
	}
	if strings.TrimSpace(address) == "" {
		return fallback, nil
	}
	return address, nil
}
