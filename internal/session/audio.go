package session

import (
	"bytes"
	"encoding/base64"
	"time"

	"github.com/fixmate/fixmate/pkg/events"
)

// maxSegmentBytes caps one inbound audio segment (about 60s at 16kHz PCM16).
const maxSegmentBytes = 2 << 20

// audioSegment accumulates one utterance of inbound PCM between
// audio.start and audio.end.
type audioSegment struct {
	sampleRate int
	language   string
	buf        []byte
	lastSeq    int64
	hasSeq     bool
}

// HandleAudioStart opens an inbound audio segment.
func (s *Session) HandleAudioStart(p *AudioStart) {
	if s.engine == nil {
		s.sendError(CodeNoSession, "start a session first", false)
		return
	}
	if s.audio != nil {
		s.sendError(CodeBadRequest, "audio segment already open", false)
		return
	}
	s.audio = &audioSegment{
		sampleRate: p.SampleRate,
		language:   p.Language,
		lastSeq:    -1,
	}
}

// HandleAudioChunk appends a base64 chunk. Chunks carrying a seq must
// arrive in non-decreasing order; an out-of-order chunk is rejected without
// discarding the segment.
func (s *Session) HandleAudioChunk(p *AudioChunk) {
	if s.audio == nil {
		s.sendError(CodeBadRequest, "no audio segment open", false)
		return
	}
	if p.Seq != nil {
		if s.audio.hasSeq && *p.Seq < s.audio.lastSeq {
			s.sendError(CodeBadRequest, "audio chunk out of order", false)
			return
		}
		s.audio.lastSeq = *p.Seq
		s.audio.hasSeq = true
	}
	pcm, err := base64.StdEncoding.DecodeString(p.ChunkBase64)
	if err != nil {
		s.sendError(CodeBadRequest, "chunkBase64 is not valid base64", false)
		return
	}
	s.appendAudio(pcm)
}

// HandleBinaryAudio appends a raw binary frame to the open segment.
func (s *Session) HandleBinaryAudio(data []byte) {
	if s.audio == nil {
		s.sendError(CodeBadRequest, "no audio segment open", false)
		return
	}
	s.appendAudio(data)
}

func (s *Session) appendAudio(pcm []byte) {
	if len(s.audio.buf)+len(pcm) > maxSegmentBytes {
		s.audio = nil
		s.sendError(CodeBadRequest, "audio segment too large", false)
		return
	}
	s.audio.buf = append(s.audio.buf, pcm...)
}

// HandleAudioEnd closes the segment, transcribes it and feeds any final
// transcript through the same path as typed text.
func (s *Session) HandleAudioEnd(_ *AudioEnd) {
	if s.audio == nil {
		s.sendError(CodeBadRequest, "no audio segment open", false)
		return
	}
	seg := s.audio
	s.audio = nil

	if s.deps.ASR == nil {
		s.sendError(CodeUnsupported, "no speech-to-text backend configured", false)
		return
	}
	if len(seg.buf) == 0 {
		return
	}

	start := time.Now()
	results, err := s.deps.ASR.Transcribe(s.ctx, bytes.NewReader(seg.buf))
	if err != nil {
		s.sendError(CodeBadRequest, "transcription failed", true)
		return
	}

	for res := range results {
		if !res.IsFinal || res.Text == "" {
			continue
		}
		s.send(TypeTranscriptFinal, &Transcript{Text: res.Text, From: "stt"})
		s.emit(events.STTFinal, &events.STTFinalData{
			Text:       res.Text,
			Confidence: res.Confidence,
			DurationMs: time.Since(start).Milliseconds(),
		})
		s.HandleUserText(&UserText{Text: res.Text, Source: "voice", IsFinal: true})
	}

	s.stt.Segments++
	s.stt.Bytes += int64(len(seg.buf))
	s.stt.LastDecodeMs = time.Since(start).Milliseconds()
	s.send(TypeSTTMetrics, &s.stt)
}
