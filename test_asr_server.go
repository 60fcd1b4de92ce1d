//go:build ignore

// Standalone mock ASR server for local development. It speaks the
// whisper-style multipart API the daemon's ASR backend expects and returns
// canned segments sized to the uploaded audio.
//
// Run with: go run test_asr_server.go
package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

type segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type response struct {
	Segments []segment `json:"segments"`
	Text     string    `json:"text"`
	Language string    `json:"language"`
}

var requestCount int

// wavDuration reads the sample rate and data length out of a WAV upload
func wavDuration(data []byte) float64 {
	if len(data) < 44 {
		return 0
	}
	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	if sampleRate == 0 {
		return 0
	}
	dataLen := len(data) - 44
	return float64(dataLen/2) / float64(sampleRate)
}

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading file", http.StatusBadRequest)
		return
	}

	requestCount++
	duration := wavDuration(data)
	language := r.FormValue("language")
	if language == "" {
		language = "en"
	}

	log.Printf("Transcription request #%d: file=%s size=%d duration=%.2fs language=%s",
		requestCount, header.Filename, len(data), duration, language)

	// Simulate model latency
	time.Sleep(100 * time.Millisecond)

	resp := response{
		Segments: []segment{
			{
				Text:  fmt.Sprintf("Mock transcription segment %d.", requestCount),
				Start: 0,
				End:   duration,
			},
		},
		Text:     fmt.Sprintf("Mock transcription segment %d.", requestCount),
		Language: language,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	flag.Parse()

	http.HandleFunc("/transcribe", transcribeHandler)
	http.HandleFunc("/health", healthHandler)

	log.Printf("Mock ASR server listening on %s", *addr)
	log.Printf("Point the daemon at http://localhost%s/transcribe", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
