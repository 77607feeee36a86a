package order

import (
	"encoding/binary"
	"time"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
)

// OrderID is a time-ordered 128-bit identifier laid out as a UUIDv7:
// a 48-bit unix millisecond prefix followed by version bits and randomness.
// Two OrderIDs are equal iff their raw bytes are equal, so the type can be
// used as a map key.
type OrderID uuid.UUID

// NilOrderID is the zero identifier
var NilOrderID OrderID

// NewOrderID generates a fresh identifier. Identifiers generated in the same
// millisecond still sort in generation order.
func NewOrderID() OrderID {
	return OrderID(uuid.Must(uuid.NewV7()))
}

// ParseOrderID parses the canonical textual form and validates it
func ParseOrderID(s string) (OrderID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilOrderID, shared.NewInvalidError(shared.ErrInvalidOrderID.Code, "malformed order id: "+s)
	}
	id := OrderID(u)
	if err := id.Validate(time.Now()); err != nil {
		return NilOrderID, err
	}
	return id, nil
}

// OrderIDFromUUID wraps a raw value read from storage
func OrderIDFromUUID(u uuid.UUID) OrderID {
	return OrderID(u)
}

// UUID returns the raw value
func (id OrderID) UUID() uuid.UUID {
	return uuid.UUID(id)
}

// String returns the canonical textual form
func (id OrderID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the nil identifier
func (id OrderID) IsZero() bool {
	return id == NilOrderID
}

// Time returns the creation timestamp embedded in the identifier
func (id OrderID) Time() time.Time {
	ms := binary.BigEndian.Uint64(id[:8]) >> 16
	return time.UnixMilli(int64(ms))
}

// Validate checks the layout and that the embedded timestamp is not after now
func (id OrderID) Validate(now time.Time) error {
	u := uuid.UUID(id)
	if id.IsZero() || u.Version() != 7 || u.Variant() != uuid.RFC4122 {
		return shared.NewInvalidError(shared.ErrInvalidOrderID.Code, "order id is not time-ordered: "+id.String())
	}
	if id.Time().After(now) {
		return shared.NewInvalidError(shared.ErrInvalidOrderID.Code, "order id timestamp is in the future: "+id.String())
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (id OrderID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *OrderID) UnmarshalText(data []byte) error {
	parsed, err := ParseOrderID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
