package nodes

import (
	"context"
	"fmt"
	"slices"

	"github.com/pushkal/server/internal/analysis/model"
	logx "github.com/pushkal/server/pkg/logger"
)

// GenerateCode asks the oracle for analysis code over the selected files.
// Validation errors of the previous attempt are passed along so a
// regeneration can correct them.
func (n *Nodes) GenerateCode(ctx context.Context, s model.State) (model.State, []string) {
	s.GeneratedCode = ""
	if !hasInput(&s) {
		return s, nil
	}
	code, err := n.oracle.GenerateCode(ctx, model.CodeRequest{
		Query:          s.UserQuery,
		Plan:           s.Plan,
		Alignment:      s.AlignmentInfo,
		Files:          s.SelectedFiles(),
		PreviousErrors: slices.Clone(s.ValidationErrors),
	})
	if err != nil {
		logx.Warn().Err(err).Str("run_id", s.RunID).Int("retry_count", s.RetryCount).Msg("code generation failed")
		return s, []string{fmt.Sprintf("Code generation error: %v", err)}
	}
	s.GeneratedCode = code
	return s, nil
}

// ValidateCode runs the safety validator. Repaired code replaces the
// generated code only when validation succeeds.
func (n *Nodes) ValidateCode(_ context.Context, s model.State) (model.State, []string) {
	rep := n.validator.Validate(s.GeneratedCode)
	s.CodeValid = rep.Valid
	s.ValidationErrors = slices.Clone(rep.Errors)
	if s.ValidationErrors == nil {
		s.ValidationErrors = []string{}
	}
	if rep.Valid {
		s.GeneratedCode = rep.Code
		return s, nil
	}
	logx.Debug().Str("run_id", s.RunID).Strs("validation_errors", s.ValidationErrors).Msg("generated code rejected")
	return s, nil
}

func (n *Nodes) IncrementRetry(_ context.Context, s model.State) (model.State, []string) {
	s.RetryCount++
	return s, nil
}

// ExecuteCode runs validated code in the sandbox. Any failure is recorded in
// the execution result and as an error entry.
func (n *Nodes) ExecuteCode(ctx context.Context, s model.State) (model.State, []string) {
	s.ResultData = nil
	if s.GeneratedCode == "" || !s.CodeValid {
		msg := "No valid code to execute"
		s.ExecutionResult = &model.ExecutionResult{Error: msg}
		return s, []string{fmt.Sprintf("Execution error: %s", msg)}
	}
	out := n.sandbox.Execute(ctx, s.GeneratedCode)
	res := out.Result
	s.ExecutionResult = &res
	if !res.Success {
		return s, []string{fmt.Sprintf("Execution error: %s", res.Error)}
	}
	s.ResultData = out.Data
	return s, nil
}
