package objects

import (
	"fmt"
	"io"
	"strings"
)

// Tag is an annotated tag: a named, signed pointer at another object.
//
// Payload layout:
//
//	object <hex>
//	type <kind>
//	tag <name>
//	tagger <signature>  (optional)
//	<blank line>
//	<message>
type Tag struct {
	Object     Hash
	TargetKind Kind
	Name       string
	Tagger     Signature
	Message    string

	hasTagger bool
	sha       *Hash
}

// NewTag creates a tag with a tagger identity.
func NewTag(object Hash, targetKind Kind, name string, tagger Signature, message string) *Tag {
	return &Tag{
		Object:     object,
		TargetKind: targetKind,
		Name:       name,
		Tagger:     tagger,
		Message:    message,
		hasTagger:  true,
	}
}

// Validate checks that the required fields are present.
func (t *Tag) Validate() error {
	if t.Object.IsZero() {
		return fmt.Errorf("tag object is required")
	}
	if _, err := ParseKind(string(t.TargetKind)); err != nil {
		return fmt.Errorf("invalid tag target kind: %w", err)
	}
	if t.Name == "" {
		return fmt.Errorf("tag name is required")
	}
	return nil
}

// Kind returns the object variant.
func (t *Tag) Kind() Kind {
	return TagKind
}

// Payload serializes the tag metadata and message.
func (t *Tag) Payload() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var buf strings.Builder
	buf.WriteString("object ")
	buf.WriteString(t.Object.Hex())
	buf.WriteString("\ntype ")
	buf.WriteString(string(t.TargetKind))
	buf.WriteString("\ntag ")
	buf.WriteString(t.Name)
	buf.WriteString("\n")

	if t.hasTagger {
		buf.WriteString("tagger ")
		buf.WriteString(t.Tagger.Format())
		buf.WriteString("\n")
	}

	buf.WriteString("\n")
	buf.WriteString(t.Message)

	return []byte(buf.String()), nil
}

// Hash returns the digest of the canonical bytes.
func (t *Tag) Hash() (Hash, error) {
	if t.sha != nil {
		return *t.sha, nil
	}
	payload, err := t.Payload()
	if err != nil {
		return Hash{}, err
	}
	sha := ComputeHash(TagKind, payload)
	t.sha = &sha
	return sha, nil
}

// Size returns the payload length in bytes.
func (t *Tag) Size() (int64, error) {
	payload, err := t.Payload()
	if err != nil {
		return 0, err
	}
	return int64(len(payload)), nil
}

// Serialize writes the canonical bytes.
func (t *Tag) Serialize(w io.Writer) error {
	payload, err := t.Payload()
	if err != nil {
		return err
	}
	return serialize(w, TagKind, payload)
}

// String returns a human-readable representation.
func (t *Tag) String() string {
	h, _ := t.Hash()
	return fmt.Sprintf("Tag{hash: %s, name: %s, target: %s}", h.Short(), t.Name, t.Object.Short())
}

// DecodeTag parses a tag payload (without header).
func DecodeTag(payload []byte) (*Tag, error) {
	headers, message, err := splitHeaders(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid tag: %w", err)
	}

	t := &Tag{Message: message}
	for _, line := range headers {
		key, value, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("invalid tag header line: %q", line)
		}
		switch key {
		case "object":
			t.Object, err = HashFromHex(value)
			if err != nil {
				return nil, fmt.Errorf("invalid tag object: %w", err)
			}
		case "type":
			t.TargetKind, err = ParseKind(value)
			if err != nil {
				return nil, fmt.Errorf("invalid tag type: %w", err)
			}
		case "tag":
			t.Name = value
		case "tagger":
			t.Tagger, err = ParseSignature(value)
			if err != nil {
				return nil, fmt.Errorf("invalid tagger: %w", err)
			}
			t.hasTagger = true
		default:
			// Tolerated for foreign tags (gpg signatures travel in the
			// message body, extra headers are rare but legal).
		}
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tag: %w", err)
	}

	return t, nil
}
