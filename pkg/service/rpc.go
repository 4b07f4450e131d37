package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/storage"
	"github.com/rhuss/aython/pkg/transport"
)

// InitParams are the params of init_agent.
type InitParams struct {
	Model string `json:"model,omitempty"`
}

// InitResult is the reply of init_agent.
type InitResult struct {
	Message string `json:"message"`
}

// GenerateParams are the params of generate and generate_and_run.
type GenerateParams struct {
	Requirements string   `json:"requirements"`
	Context      string   `json:"context,omitempty"`
	Deps         []string `json:"deps,omitempty"`
	Name         string   `json:"name,omitempty"`
}

func (p GenerateParams) request() *api.GenerationRequest {
	return &api.GenerationRequest{
		Requirement:  p.Requirements,
		Context:      p.Context,
		Dependencies: p.Deps,
		Name:         p.Name,
	}
}

// RunReply is the reply of generate_and_run.
type RunReply struct {
	ID        string               `json:"id"`
	Code      string               `json:"code_snippet"`
	Execution *api.ExecutionResult `json:"execution_result"`
}

// GenerateReply is the reply of generate.
type GenerateReply struct {
	Code     string   `json:"code_snippet"`
	Name     string   `json:"name,omitempty"`
	Deps     []string `json:"deps,omitempty"`
	Attempts int      `json:"attempts"`
	DebugLog string   `json:"debug_log"`
}

// ExecuteParams are the params of execute. Timeout is in seconds.
type ExecuteParams struct {
	Code    string   `json:"code"`
	Timeout float64  `json:"timeout,omitempty"`
	Deps    []string `json:"deps,omitempty"`
}

// HistoryParams are the params of history.
type HistoryParams struct {
	Limit int    `json:"limit,omitempty"`
	Model string `json:"model,omitempty"`
	Order string `json:"order,omitempty"`
	After string `json:"after,omitempty"`
}

// HistoryReply is the reply of history.
type HistoryReply struct {
	Runs []*api.RunRecord `json:"runs"`
}

// Register binds the agent methods to r.
func (s *Service) Register(r *transport.Router) {
	r.Handle("init_agent", s.rpcInit)
	r.Handle("generate_and_run", s.rpcGenerateAndRun)
	r.Handle("generate", s.rpcGenerate)
	r.Handle("execute", s.rpcExecute)
	r.Handle("history", s.rpcHistory)
}

func (s *Service) rpcInit(ctx context.Context, raw json.RawMessage) (any, error) {
	var p InitParams
	if err := transport.DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	msg, err := s.Init(ctx, p.Model)
	if err != nil {
		return nil, transport.NewError(transport.CodeInitFailed, err.Error())
	}
	return InitResult{Message: msg}, nil
}

func (s *Service) rpcGenerateAndRun(ctx context.Context, raw json.RawMessage) (any, error) {
	var p GenerateParams
	if err := transport.DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	run, err := s.GenerateAndRun(ctx, p.request())
	if err != nil {
		return nil, rpcError(err)
	}
	return RunReply{ID: run.ID, Code: run.Code, Execution: run.Execution}, nil
}

func (s *Service) rpcGenerate(ctx context.Context, raw json.RawMessage) (any, error) {
	var p GenerateParams
	if err := transport.DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	res, err := s.Generate(ctx, p.request())
	if err != nil {
		return nil, rpcError(err)
	}
	return GenerateReply{
		Code:     res.Code,
		Name:     res.Name,
		Deps:     res.Dependencies,
		Attempts: res.Attempts,
		DebugLog: res.DebugText(),
	}, nil
}

func (s *Service) rpcExecute(ctx context.Context, raw json.RawMessage) (any, error) {
	var p ExecuteParams
	if err := transport.DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	res, err := s.Execute(ctx, ExecuteRequest{
		Code:         p.Code,
		Dependencies: p.Deps,
		Timeout:      time.Duration(p.Timeout * float64(time.Second)),
	})
	if err != nil {
		return nil, rpcError(err)
	}
	return res, nil
}

func (s *Service) rpcHistory(ctx context.Context, raw json.RawMessage) (any, error) {
	var p HistoryParams
	if err := transport.DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Limit < 0 {
		return nil, transport.NewError(transport.CodeInvalidParams, "limit must not be negative")
	}
	runs, err := s.History(ctx, storage.ListOptions{Limit: p.Limit, Model: p.Model, Order: p.Order, After: p.After})
	if err != nil {
		return nil, rpcError(err)
	}
	return HistoryReply{Runs: runs}, nil
}

// rpcError maps service errors onto the agent's JSON-RPC codes. Anything
// unexpected becomes -32003.
func rpcError(err error) error {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return transport.NewError(transport.CodeGenerationFailed, genErr.Message).
			WithData(map[string]string{"debug_log": genErr.DebugLog})
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return transport.AsError(apiErr)
	}
	return transport.NewError(transport.CodeUnexpected, err.Error())
}
