package proto

import (
	"strconv"
	"strings"

	"webmap/server/internal/world"
)

// Tag identifiers for server to viewer frames.
const (
	TagPlayers   = "players"
	TagTime      = "time"
	TagSay       = "say"
	TagChat      = "chat"
	TagPing      = "ping"
	TagLogin     = "login"
	TagLogout    = "logout"
	TagDeath     = "ondeath"
	TagMessage   = "message"
	TagPin       = "pin"
	TagRemovePin = "rmpin"
)

// Message is one logical broadcast. Encode renders the complete text frame.
type Message interface {
	Tag() string
	Encode() []byte
}

func frame(tag string, fields ...string) []byte {
	var b strings.Builder
	size := len(tag)
	for _, f := range fields {
		size += len(f) + 1
	}
	b.Grow(size)
	b.WriteString(tag)
	for _, f := range fields {
		b.WriteByte('\n')
		b.WriteString(f)
	}
	return []byte(b.String())
}

// PlayerEntry is one record of a players frame.
type PlayerEntry struct {
	ID         string
	Name       string
	Hidden     bool
	Position   world.Position
	Health     float64
	MaxHealth  float64
	Stamina    float64
	MaxStamina float64
}

// Players carries every reportable entity of one telemetry tick.
type Players struct {
	Entries []PlayerEntry
}

func (Players) Tag() string { return TagPlayers }

func (m Players) Encode() []byte {
	var b strings.Builder
	b.WriteString(TagPlayers)
	b.WriteByte('\n')
	for _, entry := range m.Entries {
		b.WriteString(entry.ID)
		b.WriteByte('\n')
		b.WriteString(entry.Name)
		b.WriteByte('\n')
		if entry.Hidden {
			b.WriteString("hidden\n\n")
			continue
		}
		b.WriteString(entry.Position.String())
		b.WriteByte('\n')
		b.WriteString(world.FormatNumber(entry.Health))
		b.WriteByte('\n')
		b.WriteString(world.FormatNumber(entry.MaxHealth))
		b.WriteByte('\n')
		b.WriteString(world.FormatNumber(entry.Stamina))
		b.WriteByte('\n')
		b.WriteString(world.FormatNumber(entry.MaxStamina))
		b.WriteString("\n\n")
	}
	return []byte(b.String())
}

// Time reports the host's in-game calendar.
type Time struct {
	Day      int
	Fraction float64
}

func (Time) Tag() string { return TagTime }

func (m Time) Encode() []byte {
	fraction := strconv.FormatFloat(m.Fraction, 'f', -1, 64)
	return frame(TagTime, strconv.Itoa(m.Day)+","+fraction+","+world.ClockString(m.Fraction))
}

// Say is plain chat from a player.
type Say struct {
	Type int
	Name string
	Text string
}

func (Say) Tag() string { return TagSay }

func (m Say) Encode() []byte {
	return frame(TagSay, strconv.Itoa(m.Type), m.Name, m.Text)
}

// Chat is a positional chat message (shout, whisper).
type Chat struct {
	Type     int
	Name     string
	Position world.Position
	Text     string
}

func (Chat) Tag() string { return TagChat }

func (m Chat) Encode() []byte {
	return frame(TagChat, strconv.Itoa(m.Type), m.Name, m.Position.String(), m.Text)
}

// Ping marks a map location.
type Ping struct {
	Name     string
	Position world.Position
}

func (Ping) Tag() string { return TagPing }

func (m Ping) Encode() []byte {
	return frame(TagPing, m.Name, m.Position.String())
}

// Login announces a player joining.
type Login struct{ Name string }

func (Login) Tag() string { return TagLogin }

func (m Login) Encode() []byte { return frame(TagLogin, m.Name) }

// Logout announces a player leaving.
type Logout struct{ Name string }

func (Logout) Tag() string { return TagLogout }

func (m Logout) Encode() []byte { return frame(TagLogout, m.Name) }

// Death announces a player death.
type Death struct{ Name string }

func (Death) Tag() string { return TagDeath }

func (m Death) Encode() []byte { return frame(TagDeath, m.Name) }

// Status is a generic host status message.
type Status struct {
	Name   string
	Type   int
	Text   string
	Amount int
}

func (Status) Tag() string { return TagMessage }

func (m Status) Encode() []byte {
	return frame(TagMessage, m.Name, strconv.Itoa(m.Type), m.Text, strconv.Itoa(m.Amount))
}

// PinAdded carries a new pin in pins.csv field order.
type PinAdded struct {
	OwnerID  string
	ID       string
	Kind     string
	Name     string
	Position world.Position
	Label    string
}

func (PinAdded) Tag() string { return TagPin }

func (m PinAdded) Encode() []byte {
	return frame(TagPin, m.OwnerID, m.ID, m.Kind, m.Name, m.Position.String(), m.Label)
}

// PinRemoved carries the id of a removed pin.
type PinRemoved struct{ ID string }

func (PinRemoved) Tag() string { return TagRemovePin }

func (m PinRemoved) Encode() []byte { return frame(TagRemovePin, m.ID) }
