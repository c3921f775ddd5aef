package grpcserver

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"journaltransporter/internal/ingest"
	"journaltransporter/internal/journal"
)

type Server struct {
	Importer *ingest.Importer
	Journals *journal.Repo
	Logger   *zap.Logger
}

func NewServer(importer *ingest.Importer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{Importer: importer, Journals: journal.NewRepo(importer.DB), Logger: log}
}

func (s *Server) ImportJournal(ctx context.Context, req *ImportJournalRequest) (*ImportJournalResponse, error) {
	if req == nil || req.Journal == nil {
		return nil, status.Error(codes.InvalidArgument, "journal required")
	}

	res, err := s.Importer.ImportSingle(ctx, req.Journal)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &ImportJournalResponse{Result: res}, nil
}

func (s *Server) GetJournal(ctx context.Context, req *GetJournalRequest) (*GetJournalResponse, error) {
	if req == nil || strings.TrimSpace(req.Path) == "" {
		return nil, status.Error(codes.InvalidArgument, "path required")
	}

	j, err := s.Journals.GetByCode(ctx, strings.TrimSpace(req.Path))
	if err != nil {
		return nil, s.toStatus(err)
	}
	if j == nil {
		return nil, status.Error(codes.NotFound, "not found")
	}

	resp := &GetJournalResponse{Journal: j}
	if req.Nested {
		if resp.Export, err = s.Importer.ExportJournal(ctx, j); err != nil {
			return nil, s.toStatus(err)
		}
	}
	return resp, nil
}

func (s *Server) ImportAccount(ctx context.Context, req *ImportAccountRequest) (*ImportAccountResponse, error) {
	if req == nil || req.Account == nil {
		return nil, status.Error(codes.InvalidArgument, "account required")
	}

	acc, created, err := s.Importer.ImportAccount(ctx, req.Account)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &ImportAccountResponse{Account: acc, Created: created}, nil
}

func (s *Server) toStatus(err error) error {
	var verr *ingest.ValidationError
	var perr *ingest.PersistenceError

	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Error())
	case errors.Is(err, ingest.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.As(err, &perr) && perr.Constraint():
		return status.Error(codes.AlreadyExists, perr.Error())
	default:
		s.Logger.Error("grpc request failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}
