package sync

import (
	"strings"

	"github.com/driftwatch/deltasync/pkg/errors"
)

// Text operation kinds. A text edit is a sequence of ops consuming the
// document left to right.
const (
	TextRetain = "retain"
	TextInsert = "insert"
	TextDelete = "delete"
)

// TextOp is one component of a text edit. Retain and delete consume Len
// characters of the source document; insert emits Text without consuming.
type TextOp struct {
	Kind string `json:"kind"`
	Len  int    `json:"len,omitempty"`
	Text string `json:"text,omitempty"`
}

// TransformTextOps rewrites the client edit so it applies cleanly after the
// server edit has already been applied. Both inputs must consume the same
// source document length. Concurrent inserts at the same position keep the
// server's insert first.
func TransformTextOps(client, server []TextOp) ([]TextOp, error) {
	var out []TextOp
	ci, si := 0, 0
	var c, sv TextOp
	cHave, sHave := false, false

	emit := func(op TextOp) {
		if op.Kind != TextInsert && op.Len == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Kind == op.Kind {
			out[n-1].Len += op.Len
			out[n-1].Text += op.Text
			return
		}
		out = append(out, op)
	}

	for {
		if !cHave && ci < len(client) {
			c = client[ci]
			ci++
			cHave = true
		}
		if !sHave && si < len(server) {
			sv = server[si]
			si++
			sHave = true
		}

		// inserts consume nothing from the source, so they can always go
		// through; server inserts shift the client's position
		if sHave && sv.Kind == TextInsert {
			emit(TextOp{Kind: TextRetain, Len: len(sv.Text)})
			sHave = false
			continue
		}
		if cHave && c.Kind == TextInsert {
			emit(c)
			cHave = false
			continue
		}

		if !cHave && !sHave {
			break
		}
		if !cHave || !sHave {
			return nil, errors.New("text operations consume different document lengths")
		}

		n := c.Len
		if sv.Len < n {
			n = sv.Len
		}

		switch {
		case c.Kind == TextRetain && sv.Kind == TextRetain:
			emit(TextOp{Kind: TextRetain, Len: n})
		case c.Kind == TextDelete && sv.Kind == TextRetain:
			emit(TextOp{Kind: TextDelete, Len: n})
		case c.Kind == TextRetain && sv.Kind == TextDelete:
			// the server already removed this span; nothing left to retain
		case c.Kind == TextDelete && sv.Kind == TextDelete:
			// both sides deleted the same span; deleting it twice is a no-op
		default:
			return nil, errors.New("unknown text operation kind %q/%q", c.Kind, sv.Kind)
		}

		c.Len -= n
		sv.Len -= n
		if c.Len == 0 {
			cHave = false
		}
		if sv.Len == 0 {
			sHave = false
		}
	}

	return out, nil
}

// ApplyTextOps applies an edit to a document.
func ApplyTextOps(doc string, ops []TextOp) (string, error) {
	var b strings.Builder
	pos := 0
	for _, op := range ops {
		switch op.Kind {
		case TextRetain:
			if pos+op.Len > len(doc) {
				return "", errors.New("retain past end of document")
			}
			b.WriteString(doc[pos : pos+op.Len])
			pos += op.Len
		case TextInsert:
			b.WriteString(op.Text)
		case TextDelete:
			if pos+op.Len > len(doc) {
				return "", errors.New("delete past end of document")
			}
			pos += op.Len
		default:
			return "", errors.New("unknown text operation kind %q", op.Kind)
		}
	}
	b.WriteString(doc[pos:])
	return b.String(), nil
}

// Array operation kinds.
const (
	ArrayInsert = "insert"
	ArrayRemove = "remove"
	ArrayNoop   = "noop"
)

// ArrayOp is one positional edit against a list field.
type ArrayOp struct {
	Kind  string `json:"kind"`
	Index int    `json:"index"`
	Value any    `json:"value,omitempty"`
}

// TransformArrayOp shifts the client op's index to account for a server op
// that was applied first. Two removals of the same element collapse the
// client's into a noop.
func TransformArrayOp(client, server ArrayOp) ArrayOp {
	switch server.Kind {
	case ArrayInsert:
		if server.Index <= client.Index {
			client.Index++
		}
	case ArrayRemove:
		if client.Kind == ArrayRemove && client.Index == server.Index {
			return ArrayOp{Kind: ArrayNoop, Index: client.Index}
		}
		if server.Index < client.Index {
			client.Index--
		}
	}
	return client
}

// ApplyArrayOps applies positional edits to a list.
func ApplyArrayOps(list []any, ops []ArrayOp) ([]any, error) {
	out := append([]any(nil), list...)
	for _, op := range ops {
		switch op.Kind {
		case ArrayInsert:
			if op.Index < 0 || op.Index > len(out) {
				return nil, errors.New("insert index %d out of range", op.Index)
			}
			out = append(out[:op.Index], append([]any{op.Value}, out[op.Index:]...)...)
		case ArrayRemove:
			if op.Index < 0 || op.Index >= len(out) {
				return nil, errors.New("remove index %d out of range", op.Index)
			}
			out = append(out[:op.Index], out[op.Index+1:]...)
		case ArrayNoop:
		default:
			return nil, errors.New("unknown array operation kind %q", op.Kind)
		}
	}
	return out, nil
}
