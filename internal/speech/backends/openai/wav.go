package openai

import (
	"encoding/binary"
	"io"
)

// wavHeader is the fixed 44-byte RIFF prelude for 16-bit mono PCM.
type wavHeader struct {
	RIFF          [4]byte
	TotalSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// writeWAV writes pcm as a minimal mono 16-bit WAV at the given rate.
func writeWAV(w io.Writer, sampleRate int, pcm []byte) error {
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		TotalSize:     uint32(36 + len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		Channels:      1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * 2),
		BlockAlign:    2,
		BitsPerSample: 16,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}
