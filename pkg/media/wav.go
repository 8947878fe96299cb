package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// DecodeWAV parses a RIFF/WAVE stream into a mono Clip. 16-bit PCM mono and
// stereo inputs are supported; stereo is downmixed. Other encodings fail.
func DecodeWAV(r io.Reader) (Clip, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Clip{}, mediaErr("wav decode", err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, mediaErr("wav decode", errors.New("not a RIFF/WAVE stream"))
	}

	var (
		sampleRate    int
		channels      int
		bitsPerSample int
		pcm           []byte
		haveFmt       bool
	)

	// Walk the chunk list; only fmt and data matter.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return Clip{}, mediaErr("wav decode", errors.New("short fmt chunk"))
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 { // PCM
				return Clip{}, mediaErr("wav decode", fmt.Errorf("unsupported format tag %d", format))
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt || pcm == nil {
		return Clip{}, mediaErr("wav decode", errors.New("missing fmt or data chunk"))
	}
	if bitsPerSample != 16 {
		return Clip{}, mediaErr("wav decode", fmt.Errorf("unsupported bit depth %d", bitsPerSample))
	}
	switch channels {
	case 1:
		// already mono
	case 2:
		pcm = stereoToMono(pcm)
	default:
		return Clip{}, mediaErr("wav decode", fmt.Errorf("unsupported channel count %d", channels))
	}

	// Copy out of the file buffer so the clip owns its data.
	out := make([]byte, len(pcm))
	copy(out, pcm)
	return Clip{Data: out, SampleRate: sampleRate}, nil
}

// EncodeWAV writes the clip as a 16-bit PCM mono RIFF/WAVE stream.
func EncodeWAV(w io.Writer, c Clip) error {
	if c.SampleRate <= 0 {
		return mediaErr("wav encode", errors.New("clip has no sample rate"))
	}
	var hdr bytes.Buffer
	dataLen := uint32(len(c.Data))
	byteRate := uint32(c.SampleRate * 2)

	hdr.WriteString("RIFF")
	binary.Write(&hdr, binary.LittleEndian, uint32(36+dataLen))
	hdr.WriteString("WAVE")
	hdr.WriteString("fmt ")
	binary.Write(&hdr, binary.LittleEndian, uint32(16))
	binary.Write(&hdr, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&hdr, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&hdr, binary.LittleEndian, uint32(c.SampleRate))
	binary.Write(&hdr, binary.LittleEndian, byteRate)
	binary.Write(&hdr, binary.LittleEndian, uint16(2))  // block align
	binary.Write(&hdr, binary.LittleEndian, uint16(16)) // bits per sample
	hdr.WriteString("data")
	binary.Write(&hdr, binary.LittleEndian, dataLen)

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return mediaErr("wav encode", err)
	}
	if _, err := w.Write(c.Data); err != nil {
		return mediaErr("wav encode", err)
	}
	return nil
}

// ReadWAVFile decodes the WAV file at path into a mono Clip.
func ReadWAVFile(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, mediaErr("wav read", err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// WriteWAVFile encodes the clip to path, creating or truncating the file.
func WriteWAVFile(path string, c Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return mediaErr("wav write", err)
	}
	if err := EncodeWAV(f, c); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return mediaErr("wav write", err)
	}
	return nil
}

// WAVDuration returns the duration in seconds of the WAV file at path using
// only header arithmetic, without decoding the sample data.
func WAVDuration(path string) (float64, error) {
	c, err := ReadWAVFile(path)
	if err != nil {
		return 0, err
	}
	return c.Duration(), nil
}
