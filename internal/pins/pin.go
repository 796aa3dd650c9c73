package pins

import (
	"strings"

	"webmap/server/internal/world"
)

// Kind is the icon a pin is drawn with.
type Kind string

const (
	KindDot   Kind = "dot"
	KindFire  Kind = "fire"
	KindMine  Kind = "mine"
	KindHouse Kind = "house"
	KindCave  Kind = "cave"
)

const (
	// MaxLabelLength caps pin labels, in characters.
	MaxLabelLength = 40
	// DefaultMaxPerOwner is the default per-owner pin quota.
	DefaultMaxPerOwner = 50
)

var allowedKinds = map[Kind]struct{}{
	KindDot:   {},
	KindFire:  {},
	KindMine:  {},
	KindHouse: {},
	KindCave:  {},
}

// ParseKind reports whether s names an allowed pin kind.
func ParseKind(s string) (Kind, bool) {
	kind := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := allowedKinds[kind]; ok {
		return kind, true
	}
	return KindDot, false
}

// NormalizeKind returns kind when allowed and KindDot otherwise.
func NormalizeKind(kind Kind) Kind {
	normalized, _ := ParseKind(string(kind))
	return normalized
}

// Pin is a user-placed map marker. Pins are never modified after creation.
type Pin struct {
	OwnerID     string         `json:"ownerId"`
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind"`
	CreatorName string         `json:"name"`
	Position    world.Position `json:"position"`
	Label       string         `json:"label"`
}

// SanitizeLabel truncates text to MaxLabelLength characters and then drops
// everything that is not an ASCII letter, digit or space.
func SanitizeLabel(text string) string {
	runes := []rune(text)
	if len(runes) > MaxLabelLength {
		runes = runes[:MaxLabelLength]
	}
	var b strings.Builder
	b.Grow(len(runes))
	for _, r := range runes {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		}
	}
	return b.String()
}
