package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-recliner/audio_capture"
)

func TestVocabularyCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"vocabulary", "--table", "en"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "recliner")
	assert.Contains(t, out.String(), `"[unk]"]`)

	root.SetArgs([]string{"vocabulary", "--table", "klingon"})
	assert.Error(t, root.Execute())
}

func TestRecord(t *testing.T) {
	fs := afero.NewMemMapFs()
	recorder, err := audio_capture.NewRecorder(fs, "template.wav")
	require.NoError(t, err)

	chunks := make(chan audio_capture.Chunk, 3)
	for i := 0; i < 3; i++ {
		chunks <- audio_capture.Chunk{Seq: uint64(i), Samples: make([]int16, 4000)}
	}

	require.NoError(t, record(context.Background(), chunks, recorder, 10000))
	assert.Equal(t, 10000, recorder.Samples())
	require.NoError(t, recorder.Close())

	t.Run("source closing early is an error", func(t *testing.T) {
		recorder, err := audio_capture.NewRecorder(fs, "short.wav")
		require.NoError(t, err)
		defer recorder.Close()

		chunks := make(chan audio_capture.Chunk, 1)
		chunks <- audio_capture.Chunk{Samples: make([]int16, 4000)}
		close(chunks)

		assert.Error(t, record(context.Background(), chunks, recorder, 10000))
	})
}
