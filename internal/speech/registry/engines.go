package registry

import "github.com/fixmate/fixmate/internal/speech/engine"

// TTS is the global text-to-speech registry. Backends register
// themselves in init().
var TTS = New[engine.TTSEngine]("tts")

// ASR is the global speech-to-text registry.
var ASR = New[engine.ASREngine]("stt")
