package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	grpcapi "speech-assessment-service/internal/api/grpc"
)

func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	audioFile := flag.String("audio", "./audio.wav", "Path to WAV file, as seen by the server")
	topic := flag.String("topic", "how IT impact to our world", "Assessment topic")
	language := flag.String("language", "en-US", "Language code")
	timeout := flag.Duration("timeout", 5*time.Minute, "Call timeout")
	flag.Parse()

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("Connected to %s", *serverAddr)

	in, err := structpb.NewStruct(map[string]any{
		"audio_file": *audioFile,
		"topic":      *topic,
		"language":   *language,
	})
	if err != nil {
		log.Fatalf("failed to build request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, grpcapi.AssessMethod, in, out); err != nil {
		log.Fatalf("assess failed: %v", err)
	}

	b, _ := json.MarshalIndent(out.AsMap(), "", "  ")
	fmt.Println(string(b))
	log.Printf("Assessment finished in %v", time.Since(start))
}
