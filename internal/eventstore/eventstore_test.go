package eventstore

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestAppendAndRead_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.Append("messages", record{Name: "a", N: 1}))
	require.NoError(t, s.Append("messages", record{Name: "b", N: 2}))
	require.NoError(t, s.Close())

	var got []record
	err := Read(streamPath(dir, "messages"), func(line []byte) error {
		var r record
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []record{{Name: "a", N: 1}, {Name: "b", N: 2}}, got)
}

func TestRead_MissingStreamYieldsNoRecordsNoError(t *testing.T) {
	dir := t.TempDir()
	called := false
	err := Read(streamPath(dir, "nonexistent"), func(line []byte) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestAppend_SerializesConcurrentWritersWithoutInterleaving(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(i int) {
			_ = s.Append("concurrent", record{Name: "x", N: i})
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	require.NoError(t, s.Close())

	count := 0
	err := Read(streamPath(dir, "concurrent"), func(line []byte) error {
		var r record
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

func TestStreamPath_JoinsDirAndStreamName(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, "messages.jsonl"), streamPath(dir, "messages"))
}
