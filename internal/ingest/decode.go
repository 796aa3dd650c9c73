package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"webmap/server/internal/world"
)

// ErrMalformed is returned when an event's parameters do not match its method.
var ErrMalformed = errors.New("ingest: malformed event")

// Host method names accepted on the event feed.
const (
	MethodSay         = "Say"
	MethodChatMessage = "ChatMessage"
	MethodLogin       = "Login"
	MethodLogout      = "Logout"
	MethodDeath       = "Death"
	MethodMessage     = "Message"
)

// Event is one decoded protocol call delivered by the host: a method tag,
// the sending entity and the call's positional parameters.
type Event struct {
	Method string   `json:"method"`
	Sender string   `json:"sender"`
	Params []string `json:"params"`
}

// Kind classifies a decoded event.
type Kind int

const (
	KindUnknown Kind = iota
	KindSay
	KindChat
	KindLogin
	KindLogout
	KindDeath
	KindMessage
)

var kindNames = [...]string{"unknown", "say", "chat", "login", "logout", "death", "message"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Decoded is an event with its parameters parsed. Only the fields relevant
// to Kind are set.
type Decoded struct {
	Kind     Kind
	Sender   string
	Type     int
	Name     string
	Text     string
	Position world.Position
	Amount   int
}

// Decode maps a raw event onto its Kind. Unknown methods decode to
// KindUnknown without error.
//
//	Say          type, name, text
//	ChatMessage  type, name, x, y, z, text
//	Login        name
//	Logout       name
//	Death        name
//	Message      name, type, text, amount
func Decode(ev Event) (Decoded, error) {
	out := Decoded{Sender: ev.Sender}
	p := ev.Params
	var err error
	switch strings.TrimSpace(ev.Method) {
	case MethodSay:
		if err = want(ev, 3); err != nil {
			return out, err
		}
		out.Kind = KindSay
		if out.Type, err = parseInt(ev, "type", p[0]); err != nil {
			return out, err
		}
		out.Name, out.Text = p[1], p[2]
	case MethodChatMessage:
		if err = want(ev, 6); err != nil {
			return out, err
		}
		out.Kind = KindChat
		if out.Type, err = parseInt(ev, "type", p[0]); err != nil {
			return out, err
		}
		out.Name = p[1]
		if out.Position, err = world.ParsePosition(p[2], p[3], p[4]); err != nil {
			return out, fmt.Errorf("%w: %s position: %v", ErrMalformed, ev.Method, err)
		}
		out.Text = p[5]
	case MethodLogin:
		return nameOnly(ev, out, KindLogin)
	case MethodLogout:
		return nameOnly(ev, out, KindLogout)
	case MethodDeath:
		return nameOnly(ev, out, KindDeath)
	case MethodMessage:
		if err = want(ev, 4); err != nil {
			return out, err
		}
		out.Kind = KindMessage
		out.Name = p[0]
		if out.Type, err = parseInt(ev, "type", p[1]); err != nil {
			return out, err
		}
		out.Text = p[2]
		if out.Amount, err = parseInt(ev, "amount", p[3]); err != nil {
			return out, err
		}
	default:
		out.Kind = KindUnknown
	}
	return out, nil
}

func nameOnly(ev Event, out Decoded, kind Kind) (Decoded, error) {
	if err := want(ev, 1); err != nil {
		return out, err
	}
	out.Kind = kind
	out.Name = ev.Params[0]
	return out, nil
}

func want(ev Event, n int) error {
	if len(ev.Params) < n {
		return fmt.Errorf("%w: %s wants %d params, got %d", ErrMalformed, ev.Method, n, len(ev.Params))
	}
	return nil
}

func parseInt(ev Event, field, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s %q", ErrMalformed, ev.Method, field, value)
	}
	return n, nil
}
