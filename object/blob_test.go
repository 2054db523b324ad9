package object_test

import (
	"testing"

	"github.com/puregit/git/object"
	"github.com/stretchr/testify/assert"
)

func TestAsBlob(t *testing.T) {
	t.Parallel()

	content := []byte("package main\n")
	o := object.New(object.TypeBlob, content)
	blob := o.AsBlob()

	assert.Equal(t, o.ID(), blob.ID())
	assert.Equal(t, o.Size(), blob.Size())
	assert.Equal(t, o.Bytes(), blob.Bytes())
	assert.Equal(t, object.TypeBlob, blob.Type())
}

func TestNewBlobFromBytes(t *testing.T) {
	t.Parallel()

	blob := object.NewBlobFromBytes([]byte("hi"))
	assert.Equal(t, object.TypeBlob, blob.Type())
	assert.Equal(t, []byte("hi"), blob.Bytes())
}
