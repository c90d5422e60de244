package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tablekit-backend/internal/store"
	"tablekit-backend/internal/table"
)

// ActionResponse is the fixed envelope for action and bulk-action results.
type ActionResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Count    int    `json:"count,omitempty"`
}

// Executor resolves capability tokens into authorized action executions.
type Executor struct {
	source Source
	tokens *TokenService
}

func NewExecutor(source Source, tokens *TokenService) *Executor {
	return &Executor{source: source, tokens: tokens}
}

// ExecuteAction runs one row action. The pipeline is terminal on first
// failure: verify token, resolve action, authorize, load row, check
// disabled, then dispatch to the handler or return the URL as a redirect.
func (e *Executor) ExecuteAction(ctx context.Context, token, actionName, id string, user *table.UserContext) (*ActionResponse, *AppError) {
	def, _, appErr := e.tokens.Verify(token)
	if appErr != nil {
		return nil, appErr
	}

	action := def.Action(actionName)
	if action == nil {
		return nil, ActionNotFoundError(actionName)
	}

	if action.Authorize != nil && !action.Authorize(user) {
		return nil, ForbiddenError(fmt.Sprintf("Not allowed to run %s on %s", actionName, def.Name))
	}

	row, err := e.source.FetchByID(ctx, def, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError(def.Name, id)
		}
		log.Printf("ERROR: fetch %s/%s: %v", def.Name, id, err)
		return nil, NewAppError("INTERNAL_ERROR", 500, "Internal server error")
	}

	if action.Disabled != nil && action.Disabled(row, user) {
		return nil, ActionDisabledError(actionName)
	}

	if action.Handle != nil {
		return runHandler(ctx, action, row)
	}
	if action.URL != nil {
		return &ActionResponse{Success: true, Redirect: action.URL(row)}, nil
	}
	return nil, HandlerFailedError(fmt.Sprintf("Action %s has no handler or URL", actionName))
}

// runHandler invokes the action handler, recovering panics so a misbehaving
// callback can never crash the endpoint.
func runHandler(ctx context.Context, action *table.Action, row table.Row) (resp *ActionResponse, appErr *AppError) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: action %s panicked: %v", action.Name, r)
			resp, appErr = nil, HandlerFailedError(action.ErrorMessage)
		}
	}()

	msg, err := action.Handle(ctx, row)
	if err != nil {
		return nil, handlerError(action.ErrorMessage, err)
	}
	if msg == "" {
		msg = action.SuccessMessage
	}
	return &ActionResponse{Success: true, Message: msg}, nil
}

// handlerError surfaces the configured error message when present,
// otherwise the handler's own message.
func handlerError(configured string, err error) *AppError {
	if configured != "" {
		return HandlerFailedError(configured)
	}
	return HandlerFailedError(err.Error())
}
