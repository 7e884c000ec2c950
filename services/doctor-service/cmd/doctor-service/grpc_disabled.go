//go:build !protogen

package main

import (
	"context"
	"log/slog"

	"github.com/asif-mahmud/medisched/services/doctor-service/internal/storage"
)

func startGrpcServer(_ context.Context, _ *slog.Logger, _ *storage.Repository) error {
	return nil
}
