package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyTextOps(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		ops  []TextOp
		want string
	}{
		{
			name: "insert in the middle",
			doc:  "hello world",
			ops: []TextOp{
				{Kind: TextRetain, Len: 5},
				{Kind: TextInsert, Text: " there"},
			},
			want: "hello there world",
		},
		{
			name: "delete a span",
			doc:  "hello world",
			ops: []TextOp{
				{Kind: TextRetain, Len: 5},
				{Kind: TextDelete, Len: 6},
			},
			want: "hello",
		},
		{
			name: "replace",
			doc:  "abc",
			ops: []TextOp{
				{Kind: TextDelete, Len: 3},
				{Kind: TextInsert, Text: "xyz"},
			},
			want: "xyz",
		},
		{
			name: "trailing text kept",
			doc:  "abcdef",
			ops: []TextOp{
				{Kind: TextRetain, Len: 2},
				{Kind: TextInsert, Text: "X"},
			},
			want: "abXcdef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyTextOps(tt.doc, tt.ops)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyTextOpsOutOfRange(t *testing.T) {
	_, err := ApplyTextOps("abc", []TextOp{{Kind: TextRetain, Len: 10}})
	assert.Error(t, err)

	_, err = ApplyTextOps("abc", []TextOp{{Kind: TextDelete, Len: 10}})
	assert.Error(t, err)
}

// Transforming the client edit over the server edit must land both replicas
// on the same document: apply(apply(doc, server), transform(client, server)).
func TestTransformTextOpsConvergence(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		client []TextOp
		server []TextOp
		want   string
	}{
		{
			name: "concurrent inserts at different positions",
			doc:  "abcdef",
			client: []TextOp{
				{Kind: TextRetain, Len: 1},
				{Kind: TextInsert, Text: "C"},
				{Kind: TextRetain, Len: 5},
			},
			server: []TextOp{
				{Kind: TextRetain, Len: 4},
				{Kind: TextInsert, Text: "S"},
				{Kind: TextRetain, Len: 2},
			},
			want: "aCbcdSef",
		},
		{
			name: "client insert after server delete",
			doc:  "abcdef",
			client: []TextOp{
				{Kind: TextRetain, Len: 6},
				{Kind: TextInsert, Text: "!"},
			},
			server: []TextOp{
				{Kind: TextDelete, Len: 3},
				{Kind: TextRetain, Len: 3},
			},
			want: "def!",
		},
		{
			name: "overlapping deletes collapse",
			doc:  "abcdef",
			client: []TextOp{
				{Kind: TextDelete, Len: 4},
				{Kind: TextRetain, Len: 2},
			},
			server: []TextOp{
				{Kind: TextRetain, Len: 2},
				{Kind: TextDelete, Len: 4},
			},
			want: "",
		},
		{
			name: "client delete inside retained span",
			doc:  "abcdef",
			client: []TextOp{
				{Kind: TextRetain, Len: 2},
				{Kind: TextDelete, Len: 2},
				{Kind: TextRetain, Len: 2},
			},
			server: []TextOp{
				{Kind: TextInsert, Text: "S"},
				{Kind: TextRetain, Len: 6},
			},
			want: "Sabef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			afterServer, err := ApplyTextOps(tt.doc, tt.server)
			require.NoError(t, err)

			transformed, err := TransformTextOps(tt.client, tt.server)
			require.NoError(t, err)

			got, err := ApplyTextOps(afterServer, transformed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransformTextOpsLengthMismatch(t *testing.T) {
	_, err := TransformTextOps(
		[]TextOp{{Kind: TextRetain, Len: 3}},
		[]TextOp{{Kind: TextRetain, Len: 5}},
	)
	assert.Error(t, err)
}

func TestTransformArrayOp(t *testing.T) {
	tests := []struct {
		name   string
		client ArrayOp
		server ArrayOp
		want   ArrayOp
	}{
		{
			name:   "server insert before shifts client right",
			client: ArrayOp{Kind: ArrayInsert, Index: 3, Value: "c"},
			server: ArrayOp{Kind: ArrayInsert, Index: 1, Value: "s"},
			want:   ArrayOp{Kind: ArrayInsert, Index: 4, Value: "c"},
		},
		{
			name:   "server insert after leaves client alone",
			client: ArrayOp{Kind: ArrayRemove, Index: 1},
			server: ArrayOp{Kind: ArrayInsert, Index: 5, Value: "s"},
			want:   ArrayOp{Kind: ArrayRemove, Index: 1},
		},
		{
			name:   "server remove before shifts client left",
			client: ArrayOp{Kind: ArrayRemove, Index: 3},
			server: ArrayOp{Kind: ArrayRemove, Index: 0},
			want:   ArrayOp{Kind: ArrayRemove, Index: 2},
		},
		{
			name:   "both remove the same element",
			client: ArrayOp{Kind: ArrayRemove, Index: 2},
			server: ArrayOp{Kind: ArrayRemove, Index: 2},
			want:   ArrayOp{Kind: ArrayNoop, Index: 2},
		},
		{
			name:   "insert at same index keeps server first",
			client: ArrayOp{Kind: ArrayInsert, Index: 2, Value: "c"},
			server: ArrayOp{Kind: ArrayInsert, Index: 2, Value: "s"},
			want:   ArrayOp{Kind: ArrayInsert, Index: 3, Value: "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TransformArrayOp(tt.client, tt.server))
		})
	}
}

func TestTransformArrayOpConvergence(t *testing.T) {
	list := []any{"a", "b", "c", "d"}

	client := ArrayOp{Kind: ArrayRemove, Index: 3}
	server := ArrayOp{Kind: ArrayInsert, Index: 1, Value: "x"}

	afterServer, err := ApplyArrayOps(list, []ArrayOp{server})
	require.NoError(t, err)

	got, err := ApplyArrayOps(afterServer, []ArrayOp{TransformArrayOp(client, server)})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "x", "b", "c"}, got)
}

func TestApplyArrayOpsOutOfRange(t *testing.T) {
	_, err := ApplyArrayOps([]any{"a"}, []ArrayOp{{Kind: ArrayRemove, Index: 4}})
	assert.Error(t, err)

	_, err = ApplyArrayOps([]any{"a"}, []ArrayOp{{Kind: ArrayInsert, Index: 4, Value: "x"}})
	assert.Error(t, err)
}
