package audio_capture

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"
)

// Recorder writes chunks to a 16 kHz mono 16-bit WAV file.
type Recorder struct {
	writer  *wave.Writer
	samples int
}

func NewRecorder(fileSys afero.Fs, path string) (*Recorder, error) {
	if fileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	waveFile, err := fileSys.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}

	param := wave.WriterParam{
		Out:           waveFile,
		Channel:       1,
		SampleRate:    SampleRate,
		BitsPerSample: 16,
	}

	waveWriter, err := wave.NewWriter(param)
	if err != nil {
		waveFile.Close()
		return nil, err
	}

	return &Recorder{writer: waveWriter}, nil
}

func (r *Recorder) Write(samples []int16) error {
	n, err := r.writer.WriteSample16(samples)
	if err != nil {
		return err
	}

	r.samples += n
	return nil
}

// Samples is the number of samples written so far.
func (r *Recorder) Samples() int {
	return r.samples
}

func (r *Recorder) Close() error {
	return r.writer.Close()
}
