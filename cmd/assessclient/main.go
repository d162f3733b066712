package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"speech-assessment-service/internal/audio/wav"
)

// Azure expects 16 kHz 16-bit mono PCM for file input.
const expectedSampleRate = 16000

func main() {
	audioFile := flag.String("audio", "./audio.wav", "Path to WAV file (16kHz 16-bit mono)")
	serverURL := flag.String("server", "http://localhost:8501", "HTTP server base URL")
	topic := flag.String("topic", "how IT impact to our world", "Assessment topic")
	language := flag.String("language", "en-US", "Language code")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	h, err := wav.ReadHeader(f)
	if err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	log.Printf("WAV file: channels=%d sampleRate=%d bitsPerSample=%d duration=%dms",
		h.Channels, h.SampleRate, h.BitsPerSample, h.DurationMs())
	if h.SampleRate != expectedSampleRate || h.Channels != 1 || h.BitsPerSample != 16 {
		log.Printf("Warning: expected %d Hz 16-bit mono audio", expectedSampleRate)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		log.Fatalf("Failed to rewind audio file: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("topic", *topic)
	mw.WriteField("language", *language)
	part, err := mw.CreateFormFile("audio", filepath.Base(*audioFile))
	if err != nil {
		log.Fatalf("Failed to build request: %v", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		log.Fatalf("Failed to read audio: %v", err)
	}
	mw.Close()

	client := &http.Client{Timeout: 6 * time.Minute}
	start := time.Now()
	resp, err := client.Post(*serverURL+"/v1/assessments/upload", mw.FormDataContentType(), &body)
	if err != nil {
		log.Fatalf("Upload failed: %v", err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	fmt.Println(string(out))
	log.Printf("Status %s after %v", resp.Status, time.Since(start))
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
