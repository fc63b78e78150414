package objects

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature identifies who made a change and when. It serializes in git's
// identity format:
//
//	Name <email> 1609459200 +0000
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// NewSignature creates a signature; the timestamp is truncated to second
// precision since the wire format carries unix seconds.
func NewSignature(name, email string, when time.Time) Signature {
	return Signature{Name: name, Email: email, When: when.Truncate(time.Second)}
}

// Format renders the identity line fragment.
func (s Signature) Format() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), s.When.Format("-0700"))
}

// ParseSignature parses an identity line fragment ("Name <email> secs zone").
func ParseSignature(raw string) (Signature, error) {
	open := strings.LastIndex(raw, " <")
	end := strings.LastIndex(raw, "> ")
	if open == -1 || end == -1 || end < open {
		return Signature{}, fmt.Errorf("invalid signature: %q", raw)
	}

	name := raw[:open]
	email := raw[open+2 : end]
	rest := strings.Fields(raw[end+2:])
	if len(rest) != 2 {
		return Signature{}, fmt.Errorf("invalid signature timestamp: %q", raw)
	}

	secs, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("invalid signature seconds: %w", err)
	}

	loc, err := parseZone(rest[1])
	if err != nil {
		return Signature{}, err
	}

	return Signature{Name: name, Email: email, When: time.Unix(secs, 0).In(loc)}, nil
}

// parseZone converts a "+hhmm"/"-hhmm" offset into a fixed location.
func parseZone(zone string) (*time.Location, error) {
	if len(zone) != 5 || (zone[0] != '+' && zone[0] != '-') {
		return nil, fmt.Errorf("invalid timezone offset: %q", zone)
	}
	hours, err := strconv.Atoi(zone[1:3])
	if err != nil {
		return nil, fmt.Errorf("invalid timezone offset: %q", zone)
	}
	mins, err := strconv.Atoi(zone[3:5])
	if err != nil {
		return nil, fmt.Errorf("invalid timezone offset: %q", zone)
	}
	offset := (hours*60 + mins) * 60
	if zone[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(zone, offset), nil
}
