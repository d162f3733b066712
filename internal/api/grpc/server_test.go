package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"speech-assessment-service/internal/languages"
	"speech-assessment-service/internal/observability"
	"speech-assessment-service/internal/observability/metrics"
	"speech-assessment-service/internal/service/assessment"
	"speech-assessment-service/internal/service/speech"
	"speech-assessment-service/internal/service/speech/mock"
)

// testAssessor implements Assessor for testing
type testAssessor struct {
	err error
	req assessment.Request
}

func (a *testAssessor) Assess(ctx context.Context, req assessment.Request) (*assessment.Result, error) {
	a.req = req
	return nil, a.err
}

func dial(t *testing.T, a Assessor) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(observability.UnaryServerInterceptor(metrics.DefaultMetrics)))
	Register(srv, a)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func invoke(conn *grpc.ClientConn, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, AssessMethod, in, out)
	return out, err
}

func TestAssess_WithMockProvider(t *testing.T) {
	bridge := assessment.NewBridge(mock.New(), assessment.Options{MaxWait: 2 * time.Second})
	conn := dial(t, bridge)

	out, err := invoke(conn, map[string]any{"audio_file": "answer.wav", "topic": "technology", "language": "de-DE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f := out.GetFields()
	if f["language"].GetStringValue() != "de-DE" || f["termination"].GetStringValue() != "stopped" {
		t.Errorf("unexpected result fields: %v", f)
	}
	if !f["contentAvailable"].GetBoolValue() {
		t.Error("expected content scores")
	}
	if got := f["content"].GetStructValue().GetFields()["grammar"].GetNumberValue(); got != 86 {
		t.Errorf("expected grammar 86, got %v", got)
	}
	if n := len(f["utterances"].GetListValue().GetValues()); n != 3 {
		t.Errorf("expected 3 utterances, got %d", n)
	}
}

func TestAssess_ForwardsFields(t *testing.T) {
	a := &testAssessor{err: assessment.ErrNoResults}
	conn := dial(t, a)

	invoke(conn, map[string]any{"audio_file": "x.wav", "topic": "t", "language": "ja-JP"})
	want := assessment.Request{AudioPath: "x.wav", Topic: "t", Language: "ja-JP"}
	if a.req != want {
		t.Errorf("expected %+v, got %+v", want, a.req)
	}
}

func TestAssess_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"empty topic", assessment.ErrEmptyTopic, codes.InvalidArgument},
		{"language", fmt.Errorf("%w: xx", languages.ErrUnsupported), codes.InvalidArgument},
		{"canceled", &speech.CanceledError{Operation: "assessment", Cancellation: speech.NewCancellation(speech.CancelError, "X", "y")}, codes.Unavailable},
		{"timeout", assessment.ErrTimeout, codes.DeadlineExceeded},
		{"no results", assessment.ErrNoResults, codes.FailedPrecondition},
		{"other", errors.New("boom"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, &testAssessor{err: tt.err})
			_, err := invoke(conn, map[string]any{"audio_file": "x.wav", "topic": "t"})
			if got := status.Code(err); got != tt.want {
				t.Errorf("expected %v, got %v (%v)", tt.want, got, err)
			}
		})
	}
}

func TestAssess_MissingAudio(t *testing.T) {
	a := &testAssessor{}
	conn := dial(t, a)

	_, err := invoke(conn, map[string]any{"topic": "t"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
	if a.req.Topic != "" {
		t.Error("expected the assessor not to be called")
	}
}
