package pins

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"webmap/server/internal/world"
)

// recordFields is the fixed column count of a pins.csv line:
// owner id, pin id, kind, creator name, x, y, z, label.
const recordFields = 8

// ErrMalformedRecord is returned for lines that do not carry recordFields
// columns or whose position does not parse.
var ErrMalformedRecord = errors.New("pins: malformed record")

// Record renders a pin in file field order. Coordinates keep full
// precision so a save and load reproduce the stored position exactly.
func Record(pin Pin) []string {
	return []string{
		pin.OwnerID,
		pin.ID,
		string(pin.Kind),
		pin.CreatorName,
		formatCoord(pin.Position.X),
		formatCoord(pin.Position.Y),
		formatCoord(pin.Position.Z),
		pin.Label,
	}
}

func formatCoord(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Encode writes one line per pin.
func Encode(w io.Writer, pins []Pin) error {
	writer := csv.NewWriter(w)
	for _, pin := range pins {
		if err := writer.Write(Record(pin)); err != nil {
			return fmt.Errorf("encode pin %s: %w", pin.ID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Marshal encodes pins into a byte slice.
func Marshal(pins []Pin) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, pins); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads pins written by Encode. The whole input is rejected on the
// first malformed line.
func Decode(r io.Reader) ([]Pin, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = recordFields
	reader.ReuseRecord = true

	var out []Pin
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRecord, line, err)
		}
		pos, err := world.ParsePosition(record[4], record[5], record[6])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRecord, line, err)
		}
		out = append(out, Pin{
			OwnerID:     record[0],
			ID:          record[1],
			Kind:        NormalizeKind(Kind(record[2])),
			CreatorName: record[3],
			Position:    pos,
			Label:       record[7],
		})
	}
}
