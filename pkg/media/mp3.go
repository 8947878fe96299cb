package media

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	shine "github.com/braheezy/shine-mp3/pkg/mp3"
	gomp3 "github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes an MP3 stream into a mono Clip. go-mp3 always emits
// 16-bit stereo PCM, so the output is downmixed.
func DecodeMP3(r io.Reader) (Clip, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return Clip{}, mediaErr("mp3 decode", err)
	}
	stereo, err := io.ReadAll(dec)
	if err != nil {
		return Clip{}, mediaErr("mp3 decode", err)
	}
	return Clip{Data: stereoToMono(stereo), SampleRate: dec.SampleRate()}, nil
}

// ReadMP3File decodes the MP3 file at path into a mono Clip.
func ReadMP3File(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, mediaErr("mp3 read", err)
	}
	defer f.Close()
	return DecodeMP3(f)
}

// EncodeMP3 encodes the clip as MP3 using the pure-Go shine encoder.
// The whole clip is encoded in one pass; streaming is not needed here since
// dubbing artifacts are finite files.
func EncodeMP3(w io.Writer, c Clip) error {
	enc := shine.NewEncoder(c.SampleRate, 1)
	samples := make([]int16, c.Samples())
	for i := range samples {
		samples[i] = int16(c.Data[i*2]) | int16(c.Data[i*2+1])<<8
	}
	if err := enc.Write(w, samples); err != nil {
		return mediaErr("mp3 encode", err)
	}
	return nil
}

// WriteMP3File encodes the clip to an MP3 file at path.
func WriteMP3File(path string, c Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return mediaErr("mp3 write", err)
	}
	if err := EncodeMP3(f, c); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return mediaErr("mp3 write", err)
	}
	return nil
}

// ReadAudioFile decodes a WAV or MP3 file based on its extension, returning
// a mono Clip. Unknown extensions are tried as WAV first, then MP3.
func ReadAudioFile(path string) (Clip, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return ReadWAVFile(path)
	case ".mp3":
		return ReadMP3File(path)
	}
	if c, err := ReadWAVFile(path); err == nil {
		return c, nil
	}
	return ReadMP3File(path)
}
