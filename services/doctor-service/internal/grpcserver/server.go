//go:build protogen

package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	directoryv1 "github.com/asif-mahmud/medisched/protos/gen/directory/v1"
	"github.com/asif-mahmud/medisched/services/doctor-service/internal/storage"
)

type server struct {
	directoryv1.UnimplementedDoctorDirectoryServer
	repo *storage.Repository
}

func Register(grpcServer *grpc.Server, repo *storage.Repository) {
	directoryv1.RegisterDoctorDirectoryServer(grpcServer, &server{repo: repo})
}

func (s *server) GetDoctor(ctx context.Context, req *directoryv1.GetDoctorRequest) (*directoryv1.GetDoctorResponse, error) {
	if req.GetId() == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	d, err := s.repo.Get(ctx, req.GetId())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, status.Error(codes.NotFound, "doctor not found")
		}
		return nil, status.Error(codes.Internal, "doctor lookup failed")
	}
	return &directoryv1.GetDoctorResponse{
		Id:             d.ID,
		Name:           d.Name,
		Specialization: d.Specialization,
		Active:         d.Active,
	}, nil
}
