// Package grpcapi exposes the assessment bridge as a unary gRPC method.
// Messages are google.protobuf.Struct values whose fields mirror the HTTP
// JSON API, so clients need no generated stubs.
package grpcapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"speech-assessment-service/internal/audio/wav"
	"speech-assessment-service/internal/languages"
	"speech-assessment-service/internal/observability/logging"
	"speech-assessment-service/internal/service/assessment"
	"speech-assessment-service/internal/service/speech"
)

const (
	ServiceName  = "speechassess.v1.AssessmentService"
	AssessMethod = "/" + ServiceName + "/Assess"
)

// Assessor runs a blocking assessment (assessment.Bridge).
type Assessor interface {
	Assess(ctx context.Context, req assessment.Request) (*assessment.Result, error)
}

type assessmentServer interface {
	Assess(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*assessmentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Assess", Handler: assessHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "speechassess/v1/assessment.proto",
}

func assessHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(assessmentServer).Assess(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AssessMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(assessmentServer).Assess(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type Server struct {
	assessments Assessor
	log         zerolog.Logger
}

// Register adds the assessment service to g.
func Register(g *grpc.Server, a Assessor) *Server {
	s := &Server{assessments: a, log: logging.WithComponent("grpc")}
	g.RegisterService(&serviceDesc, s)
	return s
}

// Assess reads audio_file, topic and language and returns the result with
// the same field names as the HTTP API.
func (s *Server) Assess(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	req := assessment.Request{
		AudioPath: fields["audio_file"].GetStringValue(),
		Topic:     fields["topic"].GetStringValue(),
		Language:  fields["language"].GetStringValue(),
	}
	if req.AudioPath == "" {
		return nil, toStatus(assessment.ErrEmptyAudio)
	}

	res, err := s.assessments.Assess(ctx, req)
	if err != nil {
		s.log.Warn().Err(err).Str("audioPath", req.AudioPath).Msg("Assess failed")
		return nil, toStatus(err)
	}

	out, err := toStruct(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func toStatus(err error) error {
	var canceled *speech.CanceledError
	switch {
	case errors.Is(err, assessment.ErrEmptyTopic),
		errors.Is(err, assessment.ErrEmptyAudio),
		errors.Is(err, languages.ErrUnsupported),
		errors.Is(err, speech.ErrMicrophoneUnsupported),
		errors.Is(err, wav.ErrNotWAV),
		errors.Is(err, wav.ErrNotPCM):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &canceled):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, assessment.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, assessment.ErrNoResults):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, fmt.Sprintf("assessment failed: %v", err))
	}
}
