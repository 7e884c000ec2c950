//go:build protogen

package directory

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"github.com/asif-mahmud/medisched/libs/grpcx"
	directoryv1 "github.com/asif-mahmud/medisched/protos/gen/directory/v1"
)

type grpcDoctorSource struct {
	client directoryv1.DoctorDirectoryClient
}

// GRPCDoctorSource dials the doctor directory's gRPC endpoint. An empty addr
// disables it and the caller keeps the HTTP client.
func GRPCDoctorSource(addr string) (DoctorSource, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcDoctorSource{client: directoryv1.NewDoctorDirectoryClient(conn)}, nil
}

func (s *grpcDoctorSource) ResolveDoctor(ctx context.Context, _ string, id string) (DoctorRef, error) {
	resp, err := s.client.GetDoctor(ctx, &directoryv1.GetDoctorRequest{Id: id})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return DoctorRef{}, ErrUnknownIdentity
		}
		return DoctorRef{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return DoctorRef{
		ID:             resp.GetId(),
		DisplayName:    resp.GetName(),
		Specialization: resp.GetSpecialization(),
		Active:         resp.GetActive(),
	}, nil
}
