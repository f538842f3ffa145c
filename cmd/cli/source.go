package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/toolsascode/bfm/info/internal/api/http/dto"
	pbapi "github.com/toolsascode/bfm/info/internal/api/protobuf"
	"github.com/toolsascode/bfm/info/internal/info"
	"github.com/toolsascode/bfm/info/internal/version"
)

var errValidationFailed = errors.New("validation failed")

// infoSource answers info and validate queries
type infoSource interface {
	Info(ctx context.Context, view, state string) (dto.InfoResponse, error)
	Validate(ctx context.Context) (dto.ValidateResponse, error)
	Close() error
}

// infoService is the part of info.Service the local source reads
type infoService interface {
	All() []*info.MigrationInfo
	Current() *info.MigrationInfo
	Pending() []*info.MigrationInfo
	Applied() []*info.MigrationInfo
	Resolved() []*info.MigrationInfo
	Failed() []*info.MigrationInfo
	Future() []*info.MigrationInfo
	OutOfOrder() []*info.MigrationInfo
	Validate() error
	Summary() map[info.State]int
	Target() version.Version
}

// localSource reads a refreshed info service in this process
type localSource struct {
	service infoService
	closer  io.Closer
}

func (s *localSource) view(name string) (func() []*info.MigrationInfo, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "all":
		return s.service.All, nil
	case "pending":
		return s.service.Pending, nil
	case "applied":
		return s.service.Applied, nil
	case "resolved":
		return s.service.Resolved, nil
	case "failed":
		return s.service.Failed, nil
	case "future":
		return s.service.Future, nil
	case "out-of-order":
		return s.service.OutOfOrder, nil
	default:
		return nil, fmt.Errorf("unknown view: %s", name)
	}
}

func (s *localSource) Info(ctx context.Context, view, state string) (dto.InfoResponse, error) {
	list, err := s.view(view)
	if err != nil {
		return dto.InfoResponse{}, err
	}

	items := list()
	if state != "" {
		st, ok := info.ParseState(state)
		if !ok {
			return dto.InfoResponse{}, fmt.Errorf("unknown state: %s", state)
		}
		items = dto.FilterByState(items, st)
	}

	resp := dto.NewInfoResponse(s.service.Target().String(), s.service.Current(), items)
	resp.Summary = info.SummaryCodes(s.service.Summary())
	return resp, nil
}

func (s *localSource) Validate(ctx context.Context) (dto.ValidateResponse, error) {
	return dto.FromValidation(s.service.Validate()), nil
}

func (s *localSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// remoteSource queries a BfM server over gRPC
type remoteSource struct {
	conn   io.Closer
	client *pbapi.Client
	token  string
}

func dialRemote(addr, token string) (*remoteSource, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &remoteSource{conn: conn, client: pbapi.NewClient(conn), token: token}, nil
}

func (s *remoteSource) outgoing(ctx context.Context) context.Context {
	if s.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+s.token)
}

func (s *remoteSource) Info(ctx context.Context, view, state string) (dto.InfoResponse, error) {
	req, err := structpb.NewStruct(map[string]interface{}{"view": view, "state": state})
	if err != nil {
		return dto.InfoResponse{}, err
	}
	reply, err := s.client.Info(s.outgoing(ctx), req)
	if err != nil {
		return dto.InfoResponse{}, err
	}
	var resp dto.InfoResponse
	return resp, fromStruct(reply, &resp)
}

func (s *remoteSource) Validate(ctx context.Context) (dto.ValidateResponse, error) {
	reply, err := s.client.Validate(s.outgoing(ctx), &structpb.Struct{})
	if err != nil {
		return dto.ValidateResponse{}, err
	}
	var resp dto.ValidateResponse
	return resp, fromStruct(reply, &resp)
}

func (s *remoteSource) Close() error {
	return s.conn.Close()
}

// fromStruct decodes a reply into a response DTO through its JSON form
func fromStruct(s *structpb.Struct, v interface{}) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
