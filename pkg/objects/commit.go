package objects

import (
	"fmt"
	"io"
	"strings"
)

// Commit is a snapshot in the repository's history. It points at a root
// tree, zero or more parents, carries author and committer identities and a
// message.
//
// Payload layout:
//
//	tree <hex>
//	parent <hex>        (zero or more)
//	author <signature>
//	committer <signature>
//	<blank line>
//	<message>
type Commit struct {
	Tree      Hash
	Parents   []Hash
	Author    Signature
	Committer Signature
	Message   string

	sha *Hash
}

// Validate checks that the required fields are present.
func (c *Commit) Validate() error {
	if c.Tree.IsZero() {
		return fmt.Errorf("commit tree is required")
	}
	if c.Author.Name == "" && c.Author.Email == "" {
		return fmt.Errorf("commit author is required")
	}
	if c.Committer.Name == "" && c.Committer.Email == "" {
		return fmt.Errorf("commit committer is required")
	}
	return nil
}

// Kind returns the object variant.
func (c *Commit) Kind() Kind {
	return CommitKind
}

// Payload serializes the commit metadata and message.
func (c *Commit) Payload() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var buf strings.Builder
	buf.WriteString("tree ")
	buf.WriteString(c.Tree.Hex())
	buf.WriteString("\n")

	for _, parent := range c.Parents {
		buf.WriteString("parent ")
		buf.WriteString(parent.Hex())
		buf.WriteString("\n")
	}

	buf.WriteString("author ")
	buf.WriteString(c.Author.Format())
	buf.WriteString("\n")

	buf.WriteString("committer ")
	buf.WriteString(c.Committer.Format())
	buf.WriteString("\n")

	buf.WriteString("\n")
	buf.WriteString(c.Message)

	return []byte(buf.String()), nil
}

// Hash returns the digest of the canonical bytes.
func (c *Commit) Hash() (Hash, error) {
	if c.sha != nil {
		return *c.sha, nil
	}
	payload, err := c.Payload()
	if err != nil {
		return Hash{}, err
	}
	sha := ComputeHash(CommitKind, payload)
	c.sha = &sha
	return sha, nil
}

// Size returns the payload length in bytes.
func (c *Commit) Size() (int64, error) {
	payload, err := c.Payload()
	if err != nil {
		return 0, err
	}
	return int64(len(payload)), nil
}

// Serialize writes the canonical bytes.
func (c *Commit) Serialize(w io.Writer) error {
	payload, err := c.Payload()
	if err != nil {
		return err
	}
	return serialize(w, CommitKind, payload)
}

// String returns a human-readable representation.
func (c *Commit) String() string {
	h, _ := c.Hash()
	return fmt.Sprintf("Commit{hash: %s, tree: %s, parents: %d}", h.Short(), c.Tree.Short(), len(c.Parents))
}

// DecodeCommit parses a commit payload (without header).
func DecodeCommit(payload []byte) (*Commit, error) {
	headers, message, err := splitHeaders(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid commit: %w", err)
	}

	c := &Commit{Message: message}
	for _, line := range headers {
		key, value, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("invalid commit header line: %q", line)
		}
		switch key {
		case "tree":
			c.Tree, err = HashFromHex(value)
			if err != nil {
				return nil, fmt.Errorf("invalid commit tree: %w", err)
			}
		case "parent":
			parent, err := HashFromHex(value)
			if err != nil {
				return nil, fmt.Errorf("invalid commit parent: %w", err)
			}
			c.Parents = append(c.Parents, parent)
		case "author":
			c.Author, err = ParseSignature(value)
			if err != nil {
				return nil, fmt.Errorf("invalid commit author: %w", err)
			}
		case "committer":
			c.Committer, err = ParseSignature(value)
			if err != nil {
				return nil, fmt.Errorf("invalid commit committer: %w", err)
			}
		default:
			// Unknown headers (gpgsig, encoding, ...) are tolerated so
			// foreign commits round-trip through read paths that do not
			// re-serialize them.
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid commit: %w", err)
	}

	return c, nil
}

// splitHeaders separates the header lines from the message. Continuation
// lines (leading space) extend the previous header.
func splitHeaders(payload []byte) ([]string, string, error) {
	text := string(payload)
	headerPart, message, found := strings.Cut(text, "\n\n")
	if !found {
		return nil, "", fmt.Errorf("missing blank line before message")
	}

	var headers []string
	for _, line := range strings.Split(headerPart, "\n") {
		if strings.HasPrefix(line, " ") && len(headers) > 0 {
			headers[len(headers)-1] += "\n" + line
			continue
		}
		headers = append(headers, line)
	}

	return headers, message, nil
}
